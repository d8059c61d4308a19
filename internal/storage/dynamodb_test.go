package storage

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/query"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// fakeDynamoDB returns canned responses for the store tests.
type fakeDynamoDB struct {
	putErr     error
	queryOut   []*dynamodb.QueryOutput
	queryErr   error
	queryIdx   int
	putInputs  []*dynamodb.PutItemInput
	scanOut    []*dynamodb.ScanOutput
	scanIdx    int
	scanInputs []*dynamodb.ScanInput
}

func (f *fakeDynamoDB) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamoDB) DeleteTable(context.Context, *dynamodb.DeleteTableInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	return &dynamodb.DeleteTableOutput{}, nil
}

func (f *fakeDynamoDB) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{
		Table: &ddbtypes.TableDescription{
			TableArn:    aws.String("arn:aws:dynamodb:eu-west-1:123456789012:table/strongroom_eu-west-1_payments"),
			TableStatus: ddbtypes.TableStatusActive,
		},
	}, nil
}

func (f *fakeDynamoDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, in)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamoDB) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := f.queryOut[f.queryIdx]
	f.queryIdx++
	return out, nil
}

func (f *fakeDynamoDB) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scanInputs = append(f.scanInputs, in)
	if f.scanIdx < len(f.scanOut) {
		out := f.scanOut[f.scanIdx]
		f.scanIdx++
		return out, nil
	}
	return &dynamodb.ScanOutput{}, nil
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "strongroom_eu-west-1_payments", TableName(testGroup(t)))
}

func TestDynamoDBEntryCodec(t *testing.T) {
	notBefore := time.Unix(1700000000, 0).UTC()
	entry := testEntry(t, "api-key", 3, domain.StateDisabled)
	entry.NotBefore = &notBefore

	item := marshalEntry(entry)
	got, err := unmarshalEntry(item)
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	t.Run("digest attribute carried on the item", func(t *testing.T) {
		digest, ok := item[PosDigest].(*ddbtypes.AttributeValueMemberB)
		require.True(t, ok)
		assert.Equal(t, entry.Digest(), digest.Value)
	})

	t.Run("missing payload rejected", func(t *testing.T) {
		delete(item, PosPayload)
		_, err := unmarshalEntry(item)
		assert.ErrorIs(t, err, apperrors.ErrUnexpectedState)
	})
}

func TestDynamoDBStoreCreateEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("conditional insert", func(t *testing.T) {
		client := &fakeDynamoDB{}
		store := NewDynamoDBStore(client, testGroup(t), 0)

		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "api-key", 1, domain.StateEnabled)))
		require.Len(t, client.putInputs, 1)
		assert.Equal(t, "attribute_not_exists(#n)", aws.ToString(client.putInputs[0].ConditionExpression))
	})

	t.Run("condition failure maps to already exists", func(t *testing.T) {
		client := &fakeDynamoDB{putErr: &ddbtypes.ConditionalCheckFailedException{}}
		store := NewDynamoDBStore(client, testGroup(t), 0)

		err := store.CreateEntry(ctx, testEntry(t, "api-key", 1, domain.StateEnabled))
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})
}

func TestDynamoDBStoreUpdateEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("conditional replace on digest", func(t *testing.T) {
		client := &fakeDynamoDB{}
		store := NewDynamoDBStore(client, testGroup(t), 0)
		entry := testEntry(t, "api-key", 1, domain.StateDisabled)

		require.NoError(t, store.UpdateEntry(ctx, entry, []byte("token")))
		require.Len(t, client.putInputs, 1)
		assert.Equal(t, "#d = :d", aws.ToString(client.putInputs[0].ConditionExpression))
	})

	t.Run("condition failure maps to conflict", func(t *testing.T) {
		client := &fakeDynamoDB{putErr: &ddbtypes.ConditionalCheckFailedException{}}
		store := NewDynamoDBStore(client, testGroup(t), 0)

		err := store.UpdateEntry(ctx, testEntry(t, "api-key", 1, domain.StateEnabled), []byte("stale"))
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})
}

func TestDynamoDBStoreStream(t *testing.T) {
	ctx := context.Background()

	t.Run("follows pagination", func(t *testing.T) {
		first := testEntry(t, "api-key", 1, domain.StateEnabled)
		second := testEntry(t, "api-key", 2, domain.StateEnabled)

		client := &fakeDynamoDB{queryOut: []*dynamodb.QueryOutput{
			{
				Items: []map[string]ddbtypes.AttributeValue{marshalEntry(first)},
				LastEvaluatedKey: map[string]ddbtypes.AttributeValue{
					PosName: &ddbtypes.AttributeValueMemberS{Value: "api-key"},
				},
			},
			{
				Items: []map[string]ddbtypes.AttributeValue{marshalEntry(second)},
			},
		}}
		store := NewDynamoDBStore(client, testGroup(t), 0)

		entries, err := store.Stream(ctx, nameFilter("api-key"), QueryOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, uint64(1), entries[0].Version)
		assert.Equal(t, uint64(2), entries[1].Version)
		assert.Equal(t, 2, client.queryIdx)
	})

	t.Run("attribute condition alone scans the table", func(t *testing.T) {
		enabled := testEntry(t, "api-key", 2, domain.StateEnabled)
		other := testEntry(t, "other", 1, domain.StateEnabled)
		client := &fakeDynamoDB{scanOut: []*dynamodb.ScanOutput{
			{
				Items: []map[string]ddbtypes.AttributeValue{marshalEntry(enabled)},
				LastEvaluatedKey: map[string]ddbtypes.AttributeValue{
					PosName: &ddbtypes.AttributeValueMemberS{Value: "api-key"},
				},
			},
			{Items: []map[string]ddbtypes.AttributeValue{marshalEntry(other)}},
		}}
		store := NewDynamoDBStore(client, testGroup(t), 0)

		filter := &Filter{Attr: Schema.State.Equal(query.StringValue("1"))}
		entries, err := store.Stream(ctx, filter, QueryOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "api-key", entries[0].Identifier.Name())
		assert.Equal(t, "other", entries[1].Identifier.Name())

		assert.Zero(t, client.queryIdx)
		require.Len(t, client.scanInputs, 2)
		require.NotNil(t, client.scanInputs[0].FilterExpression)
		assert.Contains(t, aws.ToString(client.scanInputs[0].FilterExpression), "#"+PosState)
	})

	t.Run("empty filter scans without a filter expression", func(t *testing.T) {
		client := &fakeDynamoDB{}
		store := NewDynamoDBStore(client, testGroup(t), 0)

		entries, err := store.Stream(ctx, &Filter{}, QueryOptions{})
		require.NoError(t, err)
		assert.Empty(t, entries)
		require.Len(t, client.scanInputs, 1)
		assert.Nil(t, client.scanInputs[0].FilterExpression)
	})

	t.Run("missing table maps to does not exist", func(t *testing.T) {
		client := &fakeDynamoDB{queryErr: &ddbtypes.ResourceNotFoundException{}}
		store := NewDynamoDBStore(client, testGroup(t), 0)

		_, err := store.Stream(ctx, nameFilter("api-key"), QueryOptions{})
		assert.ErrorIs(t, err, apperrors.ErrDoesNotExist)
	})

	t.Run("row outside predicate is an integrity error", func(t *testing.T) {
		stray := testEntry(t, "other", 1, domain.StateEnabled)
		client := &fakeDynamoDB{queryOut: []*dynamodb.QueryOutput{
			{Items: []map[string]ddbtypes.AttributeValue{marshalEntry(stray)}},
		}}
		store := NewDynamoDBStore(client, testGroup(t), 0)

		_, err := store.Stream(ctx, nameFilter("api-key"), QueryOptions{})
		assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	})
}

func TestDynamoDBStoreExists(t *testing.T) {
	store := NewDynamoDBStore(&fakeDynamoDB{}, testGroup(t), 0)

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)

	arn, err := store.ARN(context.Background())
	require.NoError(t, err)
	assert.Contains(t, arn, "table/strongroom_eu-west-1_payments")
}
