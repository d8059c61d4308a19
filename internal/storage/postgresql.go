package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/query"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// PostgreSQLStore is a Store over a shared migrated schema: one row per group
// in secret_groups and one row per entry version in secret_entries. The
// connection pool is owned by the caller and may serve multiple groups.
type PostgreSQLStore struct {
	db      *sql.DB
	groupID string
}

// NewPostgreSQLStore creates a store for one group over an already-migrated
// database.
func NewPostgreSQLStore(db *sql.DB, group domain.GroupIdentifier) *PostgreSQLStore {
	return &PostgreSQLStore{db: db, groupID: group.String()}
}

// Kind implements Store.
func (p *PostgreSQLStore) Kind() Kind {
	return KindPostgreSQL
}

// Create implements Store.
func (p *PostgreSQLStore) Create(ctx context.Context) error {
	result, err := p.db.ExecContext(ctx,
		`INSERT INTO secret_groups (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		p.groupID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create group")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to create group")
	}
	if rows == 0 {
		return apperrors.Wrapf(apperrors.ErrAlreadyExists, "group %s", p.groupID)
	}
	return nil
}

// Destroy implements Store. Entry rows go with the group row via the cascade.
func (p *PostgreSQLStore) Destroy(ctx context.Context) error {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM secret_groups WHERE id = $1`,
		p.groupID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to destroy group")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to destroy group")
	}
	if rows == 0 {
		return apperrors.Wrapf(apperrors.ErrDoesNotExist, "group %s", p.groupID)
	}
	return nil
}

// Exists implements Store.
func (p *PostgreSQLStore) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM secret_groups WHERE id = $1)`,
		p.groupID,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check group")
	}
	return exists, nil
}

// ARN implements Store.
func (p *PostgreSQLStore) ARN(ctx context.Context) (string, error) {
	exists, err := p.Exists(ctx)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", apperrors.Wrapf(apperrors.ErrDoesNotExist, "group %s", p.groupID)
	}
	return "postgresql://secret_groups/" + p.groupID, nil
}

// CreateEntry implements Store.
func (p *PostgreSQLStore) CreateEntry(ctx context.Context, entry *domain.RawSecretEntry) error {
	digit, err := entry.State.Digit()
	if err != nil {
		return err
	}

	result, err := p.db.ExecContext(ctx,
		`INSERT INTO secret_entries (group_id, name, version, state, not_before, not_after, payload, digest)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (group_id, name, version) DO NOTHING`,
		p.groupID,
		entry.Identifier.Name(),
		entry.Version,
		string(digit),
		optionalEpoch(entry.NotBefore),
		optionalEpoch(entry.NotAfter),
		entry.EncryptedPayload,
		entry.Digest(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create entry")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to create entry")
	}
	if rows == 0 {
		return apperrors.Wrapf(apperrors.ErrAlreadyExists,
			"entry %s v%d", entry.Identifier, entry.Version)
	}
	return nil
}

// UpdateEntry implements Store.
func (p *PostgreSQLStore) UpdateEntry(ctx context.Context, entry *domain.RawSecretEntry, expectedDigest []byte) error {
	digit, err := entry.State.Digit()
	if err != nil {
		return err
	}

	result, err := p.db.ExecContext(ctx,
		`UPDATE secret_entries
		 SET state = $1, not_before = $2, not_after = $3, payload = $4, digest = $5
		 WHERE group_id = $6 AND name = $7 AND version = $8 AND digest = $9`,
		string(digit),
		optionalEpoch(entry.NotBefore),
		optionalEpoch(entry.NotAfter),
		entry.EncryptedPayload,
		entry.Digest(),
		p.groupID,
		entry.Identifier.Name(),
		entry.Version,
		expectedDigest,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update entry")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update entry")
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	err = p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM secret_entries WHERE group_id = $1 AND name = $2 AND version = $3)`,
		p.groupID, entry.Identifier.Name(), entry.Version,
	).Scan(&exists)
	if err != nil {
		return apperrors.Wrap(err, "failed to update entry")
	}
	if exists {
		return apperrors.Wrapf(apperrors.ErrConflict,
			"entry %s v%d was modified concurrently", entry.Identifier, entry.Version)
	}
	return apperrors.Wrapf(apperrors.ErrDoesNotExist,
		"entry %s v%d", entry.Identifier, entry.Version)
}

// DeleteEntries implements Store.
func (p *PostgreSQLStore) DeleteEntries(ctx context.Context, id domain.SecretIdentifier) (int, error) {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM secret_entries WHERE group_id = $1 AND name = $2`,
		p.groupID, id.Name(),
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete entries")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete entries")
	}
	return int(rows), nil
}

// KeySet implements Store.
func (p *PostgreSQLStore) KeySet(ctx context.Context) ([]domain.SecretIdentifier, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT name FROM secret_entries WHERE group_id = $1 ORDER BY name`,
		p.groupID,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret names")
	}
	defer rows.Close()

	var ids []domain.SecretIdentifier
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan secret name")
		}
		id, err := domain.NewSecretIdentifier(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret names")
	}
	return ids, nil
}

// Stream implements Store.
func (p *PostgreSQLStore) Stream(ctx context.Context, filter *Filter, opts QueryOptions) ([]*domain.RawSecretEntry, error) {
	if err := filter.Err(); err != nil {
		return nil, err
	}

	args := []any{p.groupID}
	where := "group_id = $1"

	if filter.Key != nil {
		keySQL, err := compileSQLNode(filter.Key.Partition, &args)
		if err != nil {
			return nil, err
		}
		where += " AND " + keySQL
		if filter.Key.Sort != nil {
			sortSQL, err := compileSQLNode(filter.Key.Sort, &args)
			if err != nil {
				return nil, err
			}
			where += " AND " + sortSQL
		}
	}
	if filter.Attr != nil {
		attrSQL, err := compileSQLNode(filter.Attr, &args)
		if err != nil {
			return nil, err
		}
		where += " AND (" + attrSQL + ")"
	}

	querySQL := `SELECT name, version, state, not_before, not_after, payload
		 FROM secret_entries WHERE ` + where + ` ORDER BY name, version`

	rows, err := p.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to query entries")
	}
	defer rows.Close()

	var entries []*domain.RawSecretEntry
	for rows.Next() {
		var (
			name      string
			version   uint64
			state     string
			notBefore sql.NullInt64
			notAfter  sql.NullInt64
			payload   []byte
		)
		if err := rows.Scan(&name, &version, &state, &notBefore, &notAfter, &payload); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan entry")
		}

		id, err := domain.NewSecretIdentifier(name)
		if err != nil {
			return nil, err
		}
		if len(state) != 1 {
			return nil, apperrors.Wrapf(apperrors.ErrUnexpectedState,
				"entry %s v%d has malformed state", name, version)
		}
		parsedState, err := domain.StateFromDigit(state[0])
		if err != nil {
			return nil, err
		}

		entry := &domain.RawSecretEntry{
			Identifier:       id,
			Version:          version,
			State:            parsedState,
			EncryptedPayload: payload,
		}
		if notBefore.Valid {
			t := time.Unix(notBefore.Int64, 0).UTC()
			entry.NotBefore = &t
		}
		if notAfter.Valid {
			t := time.Unix(notAfter.Int64, 0).UTC()
			entry.NotAfter = &t
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to query entries")
	}
	return finalize(entries, filter, opts)
}

// Close implements Store. The shared pool is owned by the caller.
func (p *PostgreSQLStore) Close() error {
	return nil
}

// sqlColumns maps backend positions to entry table columns.
var sqlColumns = map[string]string{
	PosName:      "name",
	PosVersion:   "version",
	PosState:     "state",
	PosNotBefore: "not_before",
	PosNotAfter:  "not_after",
	PosPayload:   "payload",
	PosDigest:    "digest",
}

// compileSQLNode renders a condition subtree as a SQL fragment, appending
// literal operands to args as numbered placeholders.
func compileSQLNode(n *query.Node, args *[]any) (string, error) {
	switch n.Kind {
	case query.KindCompare:
		column, ok := sqlColumns[n.Attr.Position]
		if !ok {
			return "", apperrors.Wrapf(apperrors.ErrInvalidInput,
				"unknown attribute position %q", n.Attr.Position)
		}
		*args = append(*args, sqlLiteral(n.Value))
		return fmt.Sprintf("%s %s $%d", column, sqlOperator(n.Op), len(*args)), nil
	case query.KindExists:
		return sqlColumns[n.Attr.Position] + " IS NOT NULL", nil
	case query.KindNotExists:
		return sqlColumns[n.Attr.Position] + " IS NULL", nil
	case query.KindAnd, query.KindOr:
		left, err := compileSQLNode(n.Left, args)
		if err != nil {
			return "", err
		}
		right, err := compileSQLNode(n.Right, args)
		if err != nil {
			return "", err
		}
		op := "AND"
		if n.Kind == query.KindOr {
			op = "OR"
		}
		return fmt.Sprintf("(%s) %s (%s)", left, op, right), nil
	case query.KindNot:
		child, err := compileSQLNode(n.Child, args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", child), nil
	default:
		return "", apperrors.Wrapf(apperrors.ErrInvalidInput,
			"unknown condition node kind %d", n.Kind)
	}
}

// sqlOperator maps a comparison operator to its SQL symbol.
func sqlOperator(op query.Operator) string {
	switch op {
	case query.OpEqual:
		return "="
	case query.OpGreaterOrEqual:
		return ">="
	case query.OpGreater:
		return ">"
	case query.OpLessOrEqual:
		return "<="
	default:
		return "<"
	}
}

// sqlLiteral converts a typed literal to a driver value.
func sqlLiteral(v query.Value) any {
	switch v.Type {
	case query.TypeString:
		return v.Str
	case query.TypeNumber:
		return v.Num
	default:
		return v.Bytes
	}
}

// optionalEpoch converts an optional timestamp to a nullable epoch column.
func optionalEpoch(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
