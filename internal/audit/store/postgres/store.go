// Package postgres persists the audit trail in the audit_entries table.
// Appends join the caller's transaction when one travels in the context,
// which is what makes the trail atomic with the mutations it describes.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"shareledger/internal/audit"
	txcontext "shareledger/pkg/platform/tx"
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_entries
			(id, table_name, record_id, operation, old_values, new_values, changed_by, changed_at, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID,
		entry.TableName,
		entry.RecordID,
		entry.Operation,
		nullableJSON(entry.OldValues),
		nullableJSON(entry.NewValues),
		entry.ChangedBy,
		entry.ChangedAt,
		nullableString(entry.RequestID),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.Table != "" {
		add("table_name = $%d", q.Table)
	}
	if q.RecordID != nil {
		add("record_id = $%d", *q.RecordID)
	}
	if q.Operation != "" {
		add("operation = $%d", q.Operation)
	}
	if q.ChangedBy != nil {
		add("changed_by = $%d", *q.ChangedBy)
	}
	if q.From != nil {
		add("changed_at >= $%d", *q.From)
	}
	if q.To != nil {
		add("changed_at <= $%d", *q.To)
	}

	query := `
		SELECT id, table_name, record_id, operation, old_values, new_values, changed_by, changed_at, request_id
		FROM audit_entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY changed_at DESC, id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e         audit.Entry
			oldVals   []byte
			newVals   []byte
			requestID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TableName, &e.RecordID, &e.Operation, &oldVals, &newVals, &e.ChangedBy, &e.ChangedAt, &requestID); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.OldValues = oldVals
		e.NewValues = newVals
		e.RequestID = requestID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM audit_entries WHERE changed_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
