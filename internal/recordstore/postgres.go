package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"referral-workers/internal/common/errors"
)

// Schema creates the shared records table. Each logical table is a
// partition of it keyed by table_name.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		table_name TEXT NOT NULL,
		id TEXT NOT NULL,
		fields JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (table_name, id)
	)`,
	`CREATE INDEX IF NOT EXISTS records_fields_gin ON records USING GIN (fields jsonb_path_ops)`,
}

// PostgresStore keeps records as JSONB documents.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, table, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fields, created_at FROM records WHERE table_name = $1 AND id = $2`,
		table, id,
	)
	rec, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewResourceNotFoundError(table, "id: "+id)
	}
	if err != nil {
		return nil, queryError(ctx, table, err)
	}
	return rec, nil
}

func (s *PostgresStore) Query(ctx context.Context, table string, filter Filter) ([]*Record, error) {
	args := []interface{}{table}
	where, args, err := compileSQL(filter, args)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	query := `SELECT id, fields, created_at FROM records WHERE table_name = $1`
	if where != "" {
		query += " AND " + where
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError(ctx, table, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, queryError(ctx, table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(ctx, table, err)
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, table string, fields map[string]interface{}) (*Record, error) {
	doc, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("encode fields: %v", err))
	}

	id := uuid.NewString()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO records (table_name, id, fields) VALUES ($1, $2, $3::jsonb) RETURNING id, fields, created_at`,
		table, id, string(doc),
	)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, writeError(ctx, table, err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, table, id string, fields map[string]interface{}) (*Record, error) {
	doc, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("encode fields: %v", err))
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE records SET fields = fields || $3::jsonb, updated_at = now()
		 WHERE table_name = $1 AND id = $2
		 RETURNING id, fields, created_at`,
		table, id, string(doc),
	)
	rec, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewResourceNotFoundError(table, "id: "+id)
	}
	if err != nil {
		return nil, writeError(ctx, table, err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		id      string
		raw     []byte
		created time.Time
	)
	if err := row.Scan(&id, &raw, &created); err != nil {
		return nil, err
	}
	fields := make(map[string]interface{})
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode fields for %s: %w", id, err)
		}
	}
	return &Record{ID: id, Fields: fields, CreatedTime: created}, nil
}

// compileSQL renders a filter as a WHERE fragment. Equality uses JSONB
// containment so the GIN index applies.
func compileSQL(f Filter, args []interface{}) (string, []interface{}, error) {
	switch f := f.(type) {
	case nil:
		return "", args, nil
	case EqFilter:
		doc, err := json.Marshal(map[string]interface{}{f.Field: f.Value})
		if err != nil {
			return "", nil, fmt.Errorf("encode filter on %s: %w", f.Field, err)
		}
		args = append(args, string(doc))
		return fmt.Sprintf("fields @> $%d::jsonb", len(args)), args, nil
	case AndFilter, OrFilter:
		var (
			subs []Filter
			sep  string
		)
		if and, ok := f.(AndFilter); ok {
			subs, sep = and.Filters, " AND "
		} else {
			subs, sep = f.(OrFilter).Filters, " OR "
		}
		if len(subs) == 0 {
			if sep == " OR " {
				return "FALSE", args, nil
			}
			return "", args, nil
		}
		parts := make([]string, 0, len(subs))
		for _, sub := range subs {
			var (
				part string
				err  error
			)
			part, args, err = compileSQL(sub, args)
			if err != nil {
				return "", nil, err
			}
			if part != "" {
				parts = append(parts, part)
			}
		}
		return "(" + strings.Join(parts, sep) + ")", args, nil
	default:
		return "", nil, fmt.Errorf("unsupported filter %T", f)
	}
}

func queryError(ctx context.Context, table string, err error) error {
	if ctx.Err() != nil {
		return errors.NewTimeoutError("records", err)
	}
	return errors.NewStoreQueryFailedError(table, err)
}

func writeError(ctx context.Context, table string, err error) error {
	if ctx.Err() != nil {
		return errors.NewTimeoutError("records", err)
	}
	return errors.NewStoreWriteFailedError(table, err)
}
