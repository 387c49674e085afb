package owners

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shareledger/internal/shares/models"
	"shareledger/pkg/platform/sentinel"
)

// Postgres persists members and groups in two flat tables.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const uniqueViolation = "23505"

func (s *Postgres) CreateMember(ctx context.Context, m Member) error {
	if err := validateName(m.Name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, name, created_at) VALUES ($1, $2, $3)`,
		m.ID, m.Name, m.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *Postgres) CreateGroup(ctx context.Context, g Group) error {
	if err := validateName(g.Name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, created_at) VALUES ($1, $2, $3)`,
		g.ID, g.Name, g.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *Postgres) GetMember(ctx context.Context, id uuid.UUID) (Member, error) {
	var m Member
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM members WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, sentinel.ErrNotFound
		}
		return Member{}, fmt.Errorf("query member: %w", err)
	}
	return m, nil
}

func (s *Postgres) GetGroup(ctx context.Context, id uuid.UUID) (Group, error) {
	var g Group
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Group{}, sentinel.ErrNotFound
		}
		return Group{}, fmt.Errorf("query group: %w", err)
	}
	return g, nil
}

func (s *Postgres) Exists(ctx context.Context, owner models.OwnerRef) (bool, error) {
	table := "members"
	if owner.Type == models.OwnerGroup {
		table = "groups"
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table), owner.ID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check owner exists: %w", err)
	}
	return exists, nil
}
