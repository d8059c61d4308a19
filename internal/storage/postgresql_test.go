package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/query"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

func newMockPostgreSQLStore(t *testing.T) (*PostgreSQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgreSQLStore(db, testGroup(t)), mock
}

func TestPostgreSQLStoreCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts group row", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		mock.ExpectExec(`INSERT INTO secret_groups`).
			WithArgs("eu-west-1:payments").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Create(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing group conflicts", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		mock.ExpectExec(`INSERT INTO secret_groups`).
			WithArgs("eu-west-1:payments").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Create(ctx), apperrors.ErrAlreadyExists)
	})
}

func TestPostgreSQLStoreDestroy(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes group row", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		mock.ExpectExec(`DELETE FROM secret_groups`).
			WithArgs("eu-west-1:payments").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Destroy(ctx))
	})

	t.Run("missing group fails", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		mock.ExpectExec(`DELETE FROM secret_groups`).
			WithArgs("eu-west-1:payments").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Destroy(ctx), apperrors.ErrDoesNotExist)
	})
}

func TestPostgreSQLStoreCreateEntry(t *testing.T) {
	ctx := context.Background()
	entry := func(t *testing.T) *domain.RawSecretEntry {
		return testEntry(t, "api-key", 1, domain.StateEnabled)
	}

	t.Run("inserts entry row", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		e := entry(t)
		mock.ExpectExec(`INSERT INTO secret_entries`).
			WithArgs("eu-west-1:payments", "api-key", e.Version, "1",
				sqlmock.AnyArg(), sqlmock.AnyArg(), e.EncryptedPayload, e.Digest()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.CreateEntry(ctx, e))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate version conflicts", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		mock.ExpectExec(`INSERT INTO secret_entries`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.CreateEntry(ctx, entry(t)), apperrors.ErrAlreadyExists)
	})
}

func TestPostgreSQLStoreUpdateEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("updates on matching digest", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		e := testEntry(t, "api-key", 1, domain.StateDisabled)
		mock.ExpectExec(`UPDATE secret_entries`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.UpdateEntry(ctx, e, []byte("token")))
	})

	t.Run("digest mismatch on existing row conflicts", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		e := testEntry(t, "api-key", 1, domain.StateDisabled)
		mock.ExpectExec(`UPDATE secret_entries`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		assert.ErrorIs(t, store.UpdateEntry(ctx, e, []byte("stale")), apperrors.ErrConflict)
	})

	t.Run("missing row does not exist", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		e := testEntry(t, "api-key", 1, domain.StateDisabled)
		mock.ExpectExec(`UPDATE secret_entries`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		assert.ErrorIs(t, store.UpdateEntry(ctx, e, []byte("stale")), apperrors.ErrDoesNotExist)
	})
}

func TestPostgreSQLStoreStream(t *testing.T) {
	ctx := context.Background()

	t.Run("compiles key and filter conditions", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		e := testEntry(t, "api-key", 2, domain.StateEnabled)

		rows := sqlmock.NewRows([]string{"name", "version", "state", "not_before", "not_after", "payload"}).
			AddRow("api-key", 2, "1", nil, nil, e.EncryptedPayload)
		mock.ExpectQuery(`SELECT name, version, state, not_before, not_after, payload`).
			WithArgs("eu-west-1:payments", "api-key", "1").
			WillReturnRows(rows)

		filter := nameFilter("api-key")
		filter.Attr = Schema.State.Equal(query.StringValue("1"))

		entries, err := store.Stream(ctx, filter, QueryOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, uint64(2), entries[0].Version)
		assert.Equal(t, domain.StateEnabled, entries[0].State)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("attribute condition alone scans the whole group", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		e := testEntry(t, "api-key", 2, domain.StateEnabled)

		rows := sqlmock.NewRows([]string{"name", "version", "state", "not_before", "not_after", "payload"}).
			AddRow("api-key", 2, "1", nil, nil, e.EncryptedPayload)
		mock.ExpectQuery(`SELECT name, version, state, not_before, not_after, payload`).
			WithArgs("eu-west-1:payments", "1").
			WillReturnRows(rows)

		filter := &Filter{Attr: Schema.State.Equal(query.StringValue("1"))}
		entries, err := store.Stream(ctx, filter, QueryOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "api-key", entries[0].Identifier.Name())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty filter selects the whole group", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)

		rows := sqlmock.NewRows([]string{"name", "version", "state", "not_before", "not_after", "payload"})
		mock.ExpectQuery(`SELECT name, version, state, not_before, not_after, payload`).
			WithArgs("eu-west-1:payments").
			WillReturnRows(rows)

		entries, err := store.Stream(ctx, &Filter{}, QueryOptions{})
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row outside predicate is an integrity error", func(t *testing.T) {
		store, mock := newMockPostgreSQLStore(t)
		e := testEntry(t, "other", 1, domain.StateEnabled)

		rows := sqlmock.NewRows([]string{"name", "version", "state", "not_before", "not_after", "payload"}).
			AddRow("other", 1, "1", nil, nil, e.EncryptedPayload)
		mock.ExpectQuery(`SELECT name, version, state, not_before, not_after, payload`).
			WillReturnRows(rows)

		_, err := store.Stream(ctx, nameFilter("api-key"), QueryOptions{})
		assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	})
}

func TestPostgreSQLStoreKeySet(t *testing.T) {
	store, mock := newMockPostgreSQLStore(t)

	rows := sqlmock.NewRows([]string{"name"}).AddRow("alpha").AddRow("zeta")
	mock.ExpectQuery(`SELECT DISTINCT name FROM secret_entries`).
		WithArgs("eu-west-1:payments").
		WillReturnRows(rows)

	ids, err := store.KeySet(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "alpha", ids[0].Name())
}

func TestCompileSQLNode(t *testing.T) {
	t.Run("two-phase precedence", func(t *testing.T) {
		cond, err := query.Where(Schema.State.Equal(query.StringValue("1"))).
			And(Schema.NotBefore.NotExists()).
			Or(Schema.NotAfter.LessOrEqual(query.NumberValue(42))).
			Parse()
		require.NoError(t, err)

		args := []any{}
		sql, err := compileSQLNode(cond, &args)
		require.NoError(t, err)
		assert.Equal(t, "((state = $1) AND (not_before IS NULL)) OR (not_after <= $2)", sql)
		assert.Equal(t, []any{"1", int64(42)}, args)
	})

	t.Run("negation", func(t *testing.T) {
		args := []any{}
		sql, err := compileSQLNode(query.Not(Schema.State.Equal(query.StringValue("2"))), &args)
		require.NoError(t, err)
		assert.Equal(t, "NOT (state = $1)", sql)
	})
}
