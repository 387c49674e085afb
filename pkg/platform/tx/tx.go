// Package tx carries a SQL transaction through context and defines the
// Runner abstraction every ledger mutation goes through. A purchase or
// transfer is one RunInTx call: either every write inside it lands, or none
// do.
package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"shareledger/pkg/platform/sentinel"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner executes fn as one atomic unit of work. The key names the resource
// being mutated (we use the offer id) so implementations that serialize
// instead of rolling back can scope their locking.
type Runner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// KeyedMutexRunner serializes units of work per key. It backs the in-memory
// stores: no two mutations for the same offer interleave, so the
// validate-then-write sequence inside fn is indivisible to other callers.
type KeyedMutexRunner struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutexRunner() *KeyedMutexRunner {
	return &KeyedMutexRunner{locks: make(map[string]*sync.Mutex)}
}

func (r *KeyedMutexRunner) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

func (r *KeyedMutexRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l := r.lockFor(key)
	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

// SQLRunner wraps fn in a database transaction. Stores pick the transaction
// up via From, so every statement inside fn joins the same unit of work.
type SQLRunner struct {
	db *sql.DB
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

// serializationFailure is the PostgreSQL class 40 code surfaced when a
// concurrent transaction wins the commit race.
const serializationFailure = "40001"

func (r *SQLRunner) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	dbTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(WithTx(ctx, dbTx)); err != nil {
		_ = dbTx.Rollback()
		return err
	}

	if err := dbTx.Commit(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == serializationFailure {
			return fmt.Errorf("commit tx: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
