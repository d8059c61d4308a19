// Package policy manages the access policies provisioned alongside each
// secrets group: one admin policy covering full control of the group's store
// and key, and one readonly policy covering retrieval only.
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// iamAPI is the subset of the IAM client used by the manager.
type iamAPI interface {
	CreatePolicy(ctx context.Context, in *iam.CreatePolicyInput, opts ...func(*iam.Options)) (*iam.CreatePolicyOutput, error)
	DeletePolicy(ctx context.Context, in *iam.DeletePolicyInput, opts ...func(*iam.Options)) (*iam.DeletePolicyOutput, error)
	GetPolicy(ctx context.Context, in *iam.GetPolicyInput, opts ...func(*iam.Options)) (*iam.GetPolicyOutput, error)
	AttachUserPolicy(ctx context.Context, in *iam.AttachUserPolicyInput, opts ...func(*iam.Options)) (*iam.AttachUserPolicyOutput, error)
	DetachUserPolicy(ctx context.Context, in *iam.DetachUserPolicyInput, opts ...func(*iam.Options)) (*iam.DetachUserPolicyOutput, error)
	ListEntitiesForPolicy(ctx context.Context, in *iam.ListEntitiesForPolicyInput, opts ...func(*iam.Options)) (*iam.ListEntitiesForPolicyOutput, error)
}

// stsAPI is the subset of the STS client used by the manager.
type stsAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, opts ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Access is the permission level of a group policy.
type Access string

const (
	// AccessAdmin grants full control over the group.
	AccessAdmin Access = "admin"
	// AccessReadOnly grants retrieval only.
	AccessReadOnly Access = "readonly"
)

// policyDocument is the serialized policy language document.
type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

// Manager provisions and attaches the per-group access policies.
type Manager struct {
	iamClient iamAPI
	stsClient stsAPI
	group     domain.GroupIdentifier
}

// NewManager creates a policy manager for one group.
func NewManager(iamClient iamAPI, stsClient stsAPI, group domain.GroupIdentifier) *Manager {
	return &Manager{iamClient: iamClient, stsClient: stsClient, group: group}
}

// PolicyName returns the managed policy name for an access level.
func PolicyName(group domain.GroupIdentifier, access Access) string {
	return "strongroom_" + group.Region() + "_" + group.Name() + "_" + string(access)
}

// AccountID resolves the account the manager operates in.
func (m *Manager) AccountID(ctx context.Context) (string, error) {
	out, err := m.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", apperrors.Wrap(err, "failed to resolve caller identity")
	}
	return aws.ToString(out.Account), nil
}

// CreatePolicy provisions the managed policy for an access level, scoped to
// the group's store and key.
func (m *Manager) CreatePolicy(ctx context.Context, access Access, storeARN, keyARN string) (string, error) {
	doc, err := m.document(access, storeARN, keyARN)
	if err != nil {
		return "", err
	}

	out, err := m.iamClient.CreatePolicy(ctx, &iam.CreatePolicyInput{
		PolicyName:     aws.String(PolicyName(m.group, access)),
		PolicyDocument: aws.String(doc),
		Description:    aws.String("strongroom " + string(access) + " access for group " + m.group.String()),
	})
	if err != nil {
		var exists *iamtypes.EntityAlreadyExistsException
		if errors.As(err, &exists) {
			return "", apperrors.Wrapf(apperrors.ErrAlreadyExists,
				"policy %s", PolicyName(m.group, access))
		}
		return "", apperrors.Wrap(err, "failed to create policy")
	}
	return aws.ToString(out.Policy.Arn), nil
}

// DeletePolicy removes the managed policy for an access level.
func (m *Manager) DeletePolicy(ctx context.Context, access Access) error {
	arn, err := m.policyARN(ctx, access)
	if err != nil {
		return err
	}
	if _, err := m.iamClient.DeletePolicy(ctx, &iam.DeletePolicyInput{
		PolicyArn: aws.String(arn),
	}); err != nil {
		var notFound *iamtypes.NoSuchEntityException
		if errors.As(err, &notFound) {
			return apperrors.Wrapf(apperrors.ErrDoesNotExist,
				"policy %s", PolicyName(m.group, access))
		}
		return apperrors.Wrap(err, "failed to delete policy")
	}
	return nil
}

// Exists reports whether the managed policy for an access level exists.
func (m *Manager) Exists(ctx context.Context, access Access) (bool, error) {
	_, err := m.getPolicy(ctx, access)
	if apperrors.Is(err, apperrors.ErrDoesNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Attach grants the access level to an IAM user.
func (m *Manager) Attach(ctx context.Context, access Access, userName string) error {
	arn, err := m.policyARN(ctx, access)
	if err != nil {
		return err
	}
	if _, err := m.iamClient.AttachUserPolicy(ctx, &iam.AttachUserPolicyInput{
		PolicyArn: aws.String(arn),
		UserName:  aws.String(userName),
	}); err != nil {
		var notFound *iamtypes.NoSuchEntityException
		if errors.As(err, &notFound) {
			return apperrors.Wrapf(apperrors.ErrDoesNotExist, "user %s", userName)
		}
		return apperrors.Wrap(err, "failed to attach policy")
	}
	return nil
}

// Detach revokes the access level from an IAM user.
func (m *Manager) Detach(ctx context.Context, access Access, userName string) error {
	arn, err := m.policyARN(ctx, access)
	if err != nil {
		return err
	}
	if _, err := m.iamClient.DetachUserPolicy(ctx, &iam.DetachUserPolicyInput{
		PolicyArn: aws.String(arn),
		UserName:  aws.String(userName),
	}); err != nil {
		var notFound *iamtypes.NoSuchEntityException
		if errors.As(err, &notFound) {
			return apperrors.Wrapf(apperrors.ErrDoesNotExist, "user %s", userName)
		}
		return apperrors.Wrap(err, "failed to detach policy")
	}
	return nil
}

// ListAttachedUsers returns the names of the IAM users holding the access
// level, following pagination markers until exhausted.
func (m *Manager) ListAttachedUsers(ctx context.Context, access Access) ([]string, error) {
	arn, err := m.policyARN(ctx, access)
	if err != nil {
		return nil, err
	}

	var users []string
	var marker *string
	for {
		out, err := m.iamClient.ListEntitiesForPolicy(ctx, &iam.ListEntitiesForPolicyInput{
			PolicyArn:    aws.String(arn),
			EntityFilter: iamtypes.EntityTypeUser,
			Marker:       marker,
		})
		if err != nil {
			var notFound *iamtypes.NoSuchEntityException
			if errors.As(err, &notFound) {
				return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist,
					"policy %s", PolicyName(m.group, access))
			}
			return nil, apperrors.Wrap(err, "failed to list policy entities")
		}
		for _, user := range out.PolicyUsers {
			users = append(users, aws.ToString(user.UserName))
		}
		if !out.IsTruncated {
			return users, nil
		}
		marker = out.Marker
	}
}

// policyARN derives the managed policy ARN in the caller's account.
func (m *Manager) policyARN(ctx context.Context, access Access) (string, error) {
	account, err := m.AccountID(ctx)
	if err != nil {
		return "", err
	}
	return "arn:aws:iam::" + account + ":policy/" + url.PathEscape(PolicyName(m.group, access)), nil
}

// getPolicy fetches the managed policy, mapping a missing one to
// ErrDoesNotExist.
func (m *Manager) getPolicy(ctx context.Context, access Access) (*iamtypes.Policy, error) {
	arn, err := m.policyARN(ctx, access)
	if err != nil {
		return nil, err
	}
	out, err := m.iamClient.GetPolicy(ctx, &iam.GetPolicyInput{
		PolicyArn: aws.String(arn),
	})
	if err != nil {
		var notFound *iamtypes.NoSuchEntityException
		if errors.As(err, &notFound) {
			return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist,
				"policy %s", PolicyName(m.group, access))
		}
		return nil, apperrors.Wrap(err, "failed to get policy")
	}
	return out.Policy, nil
}

// document renders the policy language document for an access level.
func (m *Manager) document(access Access, storeARN, keyARN string) (string, error) {
	var statements []policyStatement
	switch access {
	case AccessAdmin:
		statements = []policyStatement{
			{
				Effect:   "Allow",
				Action:   []string{"dynamodb:*"},
				Resource: []string{storeARN},
			},
			{
				Effect: "Allow",
				Action: []string{
					"kms:Encrypt", "kms:Decrypt", "kms:GenerateDataKey",
					"kms:DescribeKey", "kms:GenerateRandom",
				},
				Resource: []string{keyARN},
			},
		}
	case AccessReadOnly:
		statements = []policyStatement{
			{
				Effect:   "Allow",
				Action:   []string{"dynamodb:Query", "dynamodb:Scan", "dynamodb:GetItem"},
				Resource: []string{storeARN},
			},
			{
				Effect:   "Allow",
				Action:   []string{"kms:Decrypt", "kms:DescribeKey"},
				Resource: []string{keyARN},
			},
		}
	default:
		return "", apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown access level %q", string(access))
	}

	raw, err := json.Marshal(policyDocument{Version: "2012-10-17", Statement: statements})
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encode policy document")
	}
	return string(raw), nil
}
