package storage

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/time/rate"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/query"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// dynamoAPI is the subset of the DynamoDB client used by the store.
type dynamoAPI interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Table provisioning poll budget.
const (
	tablePollInterval = 2 * time.Second
	tablePollAttempts = 60
)

// DynamoDBStore is a Store backed by one DynamoDB table per group. Rows use
// the positional schema directly as attribute names.
type DynamoDBStore struct {
	client  dynamoAPI
	table   string
	limiter *rate.Limiter
}

// NewDynamoDBStore creates a store over the group's table. scanRatePerSec
// throttles paginated reads; zero disables throttling.
func NewDynamoDBStore(client dynamoAPI, group domain.GroupIdentifier, scanRatePerSec int) *DynamoDBStore {
	limit := rate.Inf
	if scanRatePerSec > 0 {
		limit = rate.Limit(scanRatePerSec)
	}
	return &DynamoDBStore{
		client:  client,
		table:   TableName(group),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// TableName returns the table name used for a group's store.
func TableName(group domain.GroupIdentifier) string {
	return "strongroom_" + group.Region() + "_" + group.Name()
}

// Kind implements Store.
func (d *DynamoDBStore) Kind() Kind {
	return KindDynamoDB
}

// Create implements Store.
func (d *DynamoDBStore) Create(ctx context.Context) error {
	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(d.table),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String(PosName), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(PosVersion), AttributeType: ddbtypes.ScalarAttributeTypeN},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(PosName), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String(PosVersion), KeyType: ddbtypes.KeyTypeRange},
		},
	})
	if err != nil {
		var inUse *ddbtypes.ResourceInUseException
		if errors.As(err, &inUse) {
			return apperrors.Wrapf(apperrors.ErrAlreadyExists, "table %s", d.table)
		}
		return apperrors.Wrap(err, "failed to create table")
	}
	return d.waitForTable(ctx, true)
}

// Destroy implements Store.
func (d *DynamoDBStore) Destroy(ctx context.Context) error {
	_, err := d.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(d.table),
	})
	if err != nil {
		var notFound *ddbtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return apperrors.Wrapf(apperrors.ErrDoesNotExist, "table %s", d.table)
		}
		return apperrors.Wrap(err, "failed to delete table")
	}
	return d.waitForTable(ctx, false)
}

// Exists implements Store.
func (d *DynamoDBStore) Exists(ctx context.Context) (bool, error) {
	_, err := d.describe(ctx)
	if apperrors.Is(err, apperrors.ErrDoesNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ARN implements Store.
func (d *DynamoDBStore) ARN(ctx context.Context) (string, error) {
	desc, err := d.describe(ctx)
	if err != nil {
		return "", err
	}
	return aws.ToString(desc.TableArn), nil
}

// CreateEntry implements Store.
func (d *DynamoDBStore) CreateEntry(ctx context.Context, entry *domain.RawSecretEntry) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(d.table),
		Item:                     marshalEntry(entry),
		ConditionExpression:      aws.String("attribute_not_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": PosName},
	})
	if err != nil {
		var failed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return apperrors.Wrapf(apperrors.ErrAlreadyExists,
				"entry %s v%d", entry.Identifier, entry.Version)
		}
		return apperrors.Wrap(err, "failed to put entry")
	}
	return nil
}

// UpdateEntry implements Store.
func (d *DynamoDBStore) UpdateEntry(ctx context.Context, entry *domain.RawSecretEntry, expectedDigest []byte) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(d.table),
		Item:                     marshalEntry(entry),
		ConditionExpression:      aws.String("#d = :d"),
		ExpressionAttributeNames: map[string]string{"#d": PosDigest},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":d": &ddbtypes.AttributeValueMemberB{Value: expectedDigest},
		},
	})
	if err != nil {
		var failed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return apperrors.Wrapf(apperrors.ErrConflict,
				"entry %s v%d was modified concurrently", entry.Identifier, entry.Version)
		}
		return apperrors.Wrap(err, "failed to update entry")
	}
	return nil
}

// DeleteEntries implements Store.
func (d *DynamoDBStore) DeleteEntries(ctx context.Context, id domain.SecretIdentifier) (int, error) {
	kc := query.NewKeyCondition(Schema.Name.Equal(query.StringValue(id.Name())))
	entries, err := d.Stream(ctx, &Filter{Key: kc}, QueryOptions{})
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(d.table),
			Key: map[string]ddbtypes.AttributeValue{
				PosName:    &ddbtypes.AttributeValueMemberS{Value: entry.Identifier.Name()},
				PosVersion: &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(entry.Version, 10)},
			},
		})
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to delete entry")
		}
	}
	return len(entries), nil
}

// KeySet implements Store.
func (d *DynamoDBStore) KeySet(ctx context.Context) ([]domain.SecretIdentifier, error) {
	seen := make(map[string]struct{})
	var startKey map[string]ddbtypes.AttributeValue

	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                aws.String(d.table),
			ProjectionExpression:     aws.String("#n"),
			ExpressionAttributeNames: map[string]string{"#n": PosName},
			ExclusiveStartKey:        startKey,
		})
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan table")
		}

		for _, item := range out.Items {
			if name, ok := item[PosName].(*ddbtypes.AttributeValueMemberS); ok {
				seen[name.Value] = struct{}{}
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	ids := make([]domain.SecretIdentifier, 0, len(seen))
	for name := range seen {
		id, err := domain.NewSecretIdentifier(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sortIdentifiers(ids)
	return ids, nil
}

// Stream implements Store. A key condition becomes a table query; without
// one the call falls back to a table scan, filtered server-side when an
// attribute condition is present.
func (d *DynamoDBStore) Stream(ctx context.Context, filter *Filter, opts QueryOptions) ([]*domain.RawSecretEntry, error) {
	if err := filter.Err(); err != nil {
		return nil, err
	}

	var (
		entries []*domain.RawSecretEntry
		err     error
	)
	if filter.Key != nil {
		entries, err = d.queryEntries(ctx, filter, opts)
	} else {
		entries, err = d.scanEntries(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	return finalize(entries, filter, opts)
}

// queryEntries runs the indexed lookup for a filter carrying a key condition.
func (d *DynamoDBStore) queryEntries(ctx context.Context, filter *Filter, opts QueryOptions) ([]*domain.RawSecretEntry, error) {
	keyExpr, filterExpr, err := query.CompileQuery(filter.Key, filter.Attr)
	if err != nil {
		return nil, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(d.table),
		KeyConditionExpression:    aws.String(keyExpr.Condition),
		ExpressionAttributeNames:  keyExpr.Names,
		ExpressionAttributeValues: keyExpr.Values,
		ScanIndexForward:          aws.Bool(!opts.Reverse),
	}
	if filterExpr != nil {
		input.FilterExpression = aws.String(filterExpr.Condition)
		for k, v := range filterExpr.Names {
			input.ExpressionAttributeNames[k] = v
		}
		if input.ExpressionAttributeValues == nil {
			input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{}
		}
		for k, v := range filterExpr.Values {
			input.ExpressionAttributeValues[k] = v
		}
	}

	var entries []*domain.RawSecretEntry
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := d.client.Query(ctx, input)
		if err != nil {
			var notFound *ddbtypes.ResourceNotFoundException
			if errors.As(err, &notFound) {
				return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "table %s", d.table)
			}
			return nil, apperrors.Wrap(err, "failed to query table")
		}

		for _, item := range out.Items {
			entry, err := unmarshalEntry(item)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return entries, nil
}

// scanEntries runs the scan fallback for a filter without a key condition.
func (d *DynamoDBStore) scanEntries(ctx context.Context, filter *Filter) ([]*domain.RawSecretEntry, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(d.table),
	}
	if filter.Attr != nil {
		filterExpr, err := query.CompileFilter(filter.Attr)
		if err != nil {
			return nil, err
		}
		input.FilterExpression = aws.String(filterExpr.Condition)
		input.ExpressionAttributeNames = filterExpr.Names
		input.ExpressionAttributeValues = filterExpr.Values
	}

	var entries []*domain.RawSecretEntry
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := d.client.Scan(ctx, input)
		if err != nil {
			var notFound *ddbtypes.ResourceNotFoundException
			if errors.As(err, &notFound) {
				return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "table %s", d.table)
			}
			return nil, apperrors.Wrap(err, "failed to scan table")
		}

		for _, item := range out.Items {
			entry, err := unmarshalEntry(item)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return entries, nil
}

// Close implements Store.
func (d *DynamoDBStore) Close() error {
	return nil
}

// describe fetches the table description, mapping a missing table to
// ErrDoesNotExist.
func (d *DynamoDBStore) describe(ctx context.Context) (*ddbtypes.TableDescription, error) {
	out, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.table),
	})
	if err != nil {
		var notFound *ddbtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "table %s", d.table)
		}
		return nil, apperrors.Wrap(err, "failed to describe table")
	}
	return out.Table, nil
}

// waitForTable polls until the table is active (or gone), surfacing the last
// observed status on budget exhaustion.
func (d *DynamoDBStore) waitForTable(ctx context.Context, wantExists bool) error {
	var last ddbtypes.TableStatus
	for attempt := 0; attempt < tablePollAttempts; attempt++ {
		desc, err := d.describe(ctx)
		switch {
		case apperrors.Is(err, apperrors.ErrDoesNotExist):
			if !wantExists {
				return nil
			}
			last = ""
		case err != nil:
			return err
		default:
			last = desc.TableStatus
			if wantExists && last == ddbtypes.TableStatusActive {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tablePollInterval):
		}
	}
	return apperrors.Wrapf(apperrors.ErrUnexpectedState,
		"table %s stuck in status %q", d.table, last)
}

// marshalEntry renders an entry as a positional item.
func marshalEntry(entry *domain.RawSecretEntry) map[string]ddbtypes.AttributeValue {
	item := map[string]ddbtypes.AttributeValue{
		PosName:    &ddbtypes.AttributeValueMemberS{Value: entry.Identifier.Name()},
		PosVersion: &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(entry.Version, 10)},
		PosPayload: &ddbtypes.AttributeValueMemberB{Value: entry.EncryptedPayload},
		PosDigest:  &ddbtypes.AttributeValueMemberB{Value: entry.Digest()},
	}
	if digit, err := entry.State.Digit(); err == nil {
		item[PosState] = &ddbtypes.AttributeValueMemberS{Value: string(digit)}
	}
	if entry.NotBefore != nil {
		item[PosNotBefore] = &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(entry.NotBefore.Unix(), 10)}
	}
	if entry.NotAfter != nil {
		item[PosNotAfter] = &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(entry.NotAfter.Unix(), 10)}
	}
	return item
}

// unmarshalEntry parses a positional item back into an entry.
func unmarshalEntry(item map[string]ddbtypes.AttributeValue) (*domain.RawSecretEntry, error) {
	name, ok := item[PosName].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrUnexpectedState, "item missing name attribute")
	}
	id, err := domain.NewSecretIdentifier(name.Value)
	if err != nil {
		return nil, err
	}

	versionAttr, ok := item[PosVersion].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrUnexpectedState, "item missing version attribute")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnexpectedState, "malformed version attribute")
	}

	stateAttr, ok := item[PosState].(*ddbtypes.AttributeValueMemberS)
	if !ok || len(stateAttr.Value) != 1 {
		return nil, apperrors.Wrap(apperrors.ErrUnexpectedState, "item missing state attribute")
	}
	state, err := domain.StateFromDigit(stateAttr.Value[0])
	if err != nil {
		return nil, err
	}

	payload, ok := item[PosPayload].(*ddbtypes.AttributeValueMemberB)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrUnexpectedState, "item missing payload attribute")
	}

	entry := &domain.RawSecretEntry{
		Identifier:       id,
		Version:          version,
		State:            state,
		EncryptedPayload: append([]byte(nil), payload.Value...),
	}

	if nb, ok := item[PosNotBefore].(*ddbtypes.AttributeValueMemberN); ok {
		epoch, err := strconv.ParseInt(nb.Value, 10, 64)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrUnexpectedState, "malformed notBefore attribute")
		}
		t := time.Unix(epoch, 0).UTC()
		entry.NotBefore = &t
	}
	if na, ok := item[PosNotAfter].(*ddbtypes.AttributeValueMemberN); ok {
		epoch, err := strconv.ParseInt(na.Value, 10, 64)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrUnexpectedState, "malformed notAfter attribute")
		}
		t := time.Unix(epoch, 0).UTC()
		entry.NotAfter = &t
	}
	return entry, nil
}

// sortIdentifiers orders identifiers by name.
func sortIdentifiers(ids []domain.SecretIdentifier) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Name() < ids[j].Name()
	})
}
