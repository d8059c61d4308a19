package service

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	cryptoDomain "github.com/allisson/strongroom/internal/crypto/domain"
	apperrors "github.com/allisson/strongroom/internal/errors"
	secretsDomain "github.com/allisson/strongroom/internal/secrets/domain"
)

// kmsAPI is the subset of the KMS client used by the encryptor.
type kmsAPI interface {
	GenerateDataKey(ctx context.Context, in *kms.GenerateDataKeyInput, opts ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, in *kms.DecryptInput, opts ...func(*kms.Options)) (*kms.DecryptOutput, error)
	GenerateRandom(ctx context.Context, in *kms.GenerateRandomInput, opts ...func(*kms.Options)) (*kms.GenerateRandomOutput, error)
	CreateKey(ctx context.Context, in *kms.CreateKeyInput, opts ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, in *kms.CreateAliasInput, opts ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
	DescribeKey(ctx context.Context, in *kms.DescribeKeyInput, opts ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	EnableKey(ctx context.Context, in *kms.EnableKeyInput, opts ...func(*kms.Options)) (*kms.EnableKeyOutput, error)
	CancelKeyDeletion(ctx context.Context, in *kms.CancelKeyDeletionInput, opts ...func(*kms.Options)) (*kms.CancelKeyDeletionOutput, error)
	ScheduleKeyDeletion(ctx context.Context, in *kms.ScheduleKeyDeletionInput, opts ...func(*kms.Options)) (*kms.ScheduleKeyDeletionOutput, error)
}

// Deletion and polling budgets for key lifecycle operations.
const (
	keyDeletionPendingDays = 7
	keyStatePollInterval   = 2 * time.Second
	keyStatePollAttempts   = 30
)

// KMSEncryptor implements Encryptor against AWS KMS. Entry payloads exceed the
// service's direct-encryption limit, so each Encrypt generates a fresh data key
// of the configured strength and seals the payload locally with AES-GCM; the
// encryption context is bound both to the data key and, canonically, as
// authenticated data of the local cipher.
type KMSEncryptor struct {
	client   kmsAPI
	alias    string
	strength cryptoDomain.Strength
}

// NewKMSEncryptor creates an encryptor for one group's key alias.
func NewKMSEncryptor(client kmsAPI, group secretsDomain.GroupIdentifier, strength cryptoDomain.Strength) (*KMSEncryptor, error) {
	if _, err := strength.KeyLength(); err != nil {
		return nil, err
	}
	return &KMSEncryptor{
		client:   client,
		alias:    KeyAlias(group),
		strength: strength,
	}, nil
}

// KeyAlias returns the KMS alias name used for a group's master key.
func KeyAlias(group secretsDomain.GroupIdentifier) string {
	return "alias/strongroom_" + group.Region() + "_" + group.Name()
}

// Encrypt generates a data key under the group's master key and seals the
// plaintext with it.
func (k *KMSEncryptor) Encrypt(
	ctx context.Context,
	plaintext []byte,
	ec cryptoDomain.EncryptionContext,
) ([]byte, error) {
	out, err := k.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:             aws.String(k.alias),
		KeySpec:           kmstypes.DataKeySpec(k.strength.DataKeySpec()),
		EncryptionContext: ec,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to generate data key")
	}
	defer secretsDomain.Zero(out.Plaintext)

	cipher, err := NewAESGCM(out.Plaintext)
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, err := cipher.Encrypt(plaintext, ec.Canonical())
	if err != nil {
		return nil, err
	}

	return packEnvelope(out.CiphertextBlob, nonce, ec, ciphertext)
}

// Decrypt unwraps the data key via the service, then opens the local
// ciphertext with the context recorded in the blob as authenticated data.
func (k *KMSEncryptor) Decrypt(
	ctx context.Context,
	ciphertext []byte,
) ([]byte, string, map[string]string, error) {
	blob, err := unpackEnvelope(ciphertext)
	if err != nil {
		return nil, "", nil, err
	}

	out, err := k.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    blob.encryptedKey,
		EncryptionContext: blob.context,
	})
	if err != nil {
		return nil, "", nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, err.Error())
	}
	defer secretsDomain.Zero(out.Plaintext)

	cipher, err := NewAESGCM(out.Plaintext)
	if err != nil {
		return nil, "", nil, err
	}

	plaintext, err := cipher.Decrypt(blob.ciphertext, blob.nonce, cryptoDomain.EncryptionContext(blob.context).Canonical())
	if err != nil {
		return nil, "", nil, err
	}

	return plaintext, aws.ToString(out.KeyId), blob.context, nil
}

// GenerateRandom returns n secure random bytes from the service.
func (k *KMSEncryptor) GenerateRandom(ctx context.Context, n int) ([]byte, error) {
	out, err := k.client.GenerateRandom(ctx, &kms.GenerateRandomInput{
		NumberOfBytes: aws.Int32(int32(n)),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to generate random bytes")
	}
	return out.Plaintext, nil
}

// CreateKey provisions the group's master key and alias. An existing enabled
// key is a conflict; an existing disabled or pending-deletion key is
// re-enabled when allowKeyReuse is set.
func (k *KMSEncryptor) CreateKey(ctx context.Context, allowKeyReuse bool) (string, error) {
	meta, err := k.describe(ctx)
	switch {
	case err == nil:
		if !allowKeyReuse {
			return "", apperrors.Wrapf(apperrors.ErrAlreadyExists, "encryption key %s", k.alias)
		}
		return k.reuseKey(ctx, meta)
	case apperrors.Is(err, apperrors.ErrDoesNotExist):
	default:
		return "", err
	}

	created, err := k.client.CreateKey(ctx, &kms.CreateKeyInput{
		Description: aws.String("strongroom secrets group key " + k.alias),
	})
	if err != nil {
		return "", apperrors.Wrap(err, "failed to create encryption key")
	}
	keyID := aws.ToString(created.KeyMetadata.KeyId)

	_, err = k.client.CreateAlias(ctx, &kms.CreateAliasInput{
		AliasName:   aws.String(k.alias),
		TargetKeyId: aws.String(keyID),
	})
	if err != nil {
		return "", apperrors.Wrap(err, "failed to alias encryption key")
	}

	if err := k.waitForState(ctx, kmstypes.KeyStateEnabled); err != nil {
		return "", err
	}
	return aws.ToString(created.KeyMetadata.Arn), nil
}

// reuseKey re-enables a disabled or pending-deletion key.
func (k *KMSEncryptor) reuseKey(ctx context.Context, meta *kmstypes.KeyMetadata) (string, error) {
	keyID := aws.ToString(meta.KeyId)

	switch meta.KeyState {
	case kmstypes.KeyStateEnabled:
		return "", apperrors.Wrapf(apperrors.ErrAlreadyExists, "encryption key %s is enabled", k.alias)
	case kmstypes.KeyStatePendingDeletion:
		if _, err := k.client.CancelKeyDeletion(ctx, &kms.CancelKeyDeletionInput{
			KeyId: aws.String(keyID),
		}); err != nil {
			return "", apperrors.Wrap(err, "failed to cancel key deletion")
		}
		fallthrough
	case kmstypes.KeyStateDisabled:
		if _, err := k.client.EnableKey(ctx, &kms.EnableKeyInput{
			KeyId: aws.String(keyID),
		}); err != nil {
			return "", apperrors.Wrap(err, "failed to re-enable key")
		}
	default:
		return "", apperrors.Wrapf(apperrors.ErrUnexpectedState,
			"encryption key %s is %s", k.alias, meta.KeyState)
	}

	if err := k.waitForState(ctx, kmstypes.KeyStateEnabled); err != nil {
		return "", err
	}
	return aws.ToString(meta.Arn), nil
}

// ScheduleKeyDeletion schedules delayed deletion of the group's key.
func (k *KMSEncryptor) ScheduleKeyDeletion(ctx context.Context) (time.Time, error) {
	meta, err := k.describe(ctx)
	if err != nil {
		return time.Time{}, err
	}

	out, err := k.client.ScheduleKeyDeletion(ctx, &kms.ScheduleKeyDeletionInput{
		KeyId:               meta.KeyId,
		PendingWindowInDays: aws.Int32(keyDeletionPendingDays),
	})
	if err != nil {
		return time.Time{}, apperrors.Wrap(err, "failed to schedule key deletion")
	}
	return aws.ToTime(out.DeletionDate), nil
}

// Exists reports whether a conflicting key exists under the group's alias.
func (k *KMSEncryptor) Exists(ctx context.Context, allowKeyReuse bool) (bool, error) {
	meta, err := k.describe(ctx)
	if apperrors.Is(err, apperrors.ErrDoesNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if allowKeyReuse {
		switch meta.KeyState {
		case kmstypes.KeyStateDisabled, kmstypes.KeyStatePendingDeletion:
			return false, nil
		}
	}
	return true, nil
}

// ARN returns the identity of the group's key.
func (k *KMSEncryptor) ARN(ctx context.Context) (string, error) {
	meta, err := k.describe(ctx)
	if err != nil {
		return "", err
	}
	return aws.ToString(meta.Arn), nil
}

// describe fetches the key metadata behind the group alias, mapping a missing
// alias to ErrDoesNotExist.
func (k *KMSEncryptor) describe(ctx context.Context) (*kmstypes.KeyMetadata, error) {
	out, err := k.client.DescribeKey(ctx, &kms.DescribeKeyInput{
		KeyId: aws.String(k.alias),
	})
	if err != nil {
		var notFound *kmstypes.NotFoundException
		if errors.As(err, &notFound) {
			return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "encryption key %s", k.alias)
		}
		return nil, apperrors.Wrap(err, "failed to describe encryption key")
	}
	return out.KeyMetadata, nil
}

// waitForState polls the key until it reaches the wanted state or the budget
// is exhausted, surfacing the last observed state.
func (k *KMSEncryptor) waitForState(ctx context.Context, want kmstypes.KeyState) error {
	var last kmstypes.KeyState
	for attempt := 0; attempt < keyStatePollAttempts; attempt++ {
		meta, err := k.describe(ctx)
		if err != nil {
			return err
		}
		last = meta.KeyState
		if last == want {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(keyStatePollInterval):
		}
	}
	return apperrors.Wrapf(apperrors.ErrUnexpectedState,
		"encryption key %s is %s, wanted %s", k.alias, last, want)
}

// envelopeBlob is the decoded wire form of a sealed payload.
type envelopeBlob struct {
	encryptedKey []byte
	nonce        []byte
	context      map[string]string
	ciphertext   []byte
}

const envelopeVersionTag byte = 1

// packEnvelope serializes the sealed payload: version tag, length-prefixed
// encrypted data key, nonce and context JSON, then the ciphertext.
func packEnvelope(encryptedKey, nonce []byte, ec cryptoDomain.EncryptionContext, ciphertext []byte) ([]byte, error) {
	contextJSON, err := json.Marshal(map[string]string(ec))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode encryption context")
	}

	blob := make([]byte, 0, 1+12+len(encryptedKey)+len(nonce)+len(contextJSON)+len(ciphertext))
	blob = append(blob, envelopeVersionTag)
	blob = appendLengthPrefixed(blob, encryptedKey)
	blob = appendLengthPrefixed(blob, nonce)
	blob = appendLengthPrefixed(blob, contextJSON)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// unpackEnvelope parses a sealed payload blob.
func unpackEnvelope(blob []byte) (*envelopeBlob, error) {
	if len(blob) < 1 || blob[0] != envelopeVersionTag {
		return nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, "malformed envelope")
	}
	rest := blob[1:]

	encryptedKey, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return nil, err
	}
	nonce, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return nil, err
	}
	contextJSON, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return nil, err
	}

	var ec map[string]string
	if err := json.Unmarshal(contextJSON, &ec); err != nil {
		return nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, "malformed envelope context")
	}

	return &envelopeBlob{
		encryptedKey: encryptedKey,
		nonce:        nonce,
		context:      ec,
		ciphertext:   rest,
	}, nil
}

func appendLengthPrefixed(dst, b []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	dst = append(dst, l[:]...)
	return append(dst, b...)
}

func readLengthPrefixed(b []byte) (field, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, "truncated envelope")
	}
	length := int(binary.BigEndian.Uint32(b[:4]))
	b = b[4:]
	if length > len(b) {
		return nil, nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, "truncated envelope")
	}
	return b[:length], b[length:], nil
}
