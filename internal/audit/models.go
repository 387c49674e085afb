// Package audit is the append-only trail proving every ledger mutation.
// Entries are written in the same atomic unit as the mutation they describe
// and are never edited afterwards; the only destructive surface is bulk
// pruning by retention policy.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Table names entries refer to.
const (
	TableOffers  = "share_offers"
	TableRecords = "share_records"
)

// Operations recorded against ledger entities.
const (
	OpCreate       = "create"
	OpUpdate       = "update"
	OpPurchase     = "purchase"
	OpTransferIn   = "transfer_in"
	OpTransferOut  = "transfer_out"
	OpStatusChange = "status_change"
	OpDelete       = "delete"
)

// Entry is one immutable record of a mutation: which row changed, how, the
// before/after snapshots, who did it and when.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	TableName string          `json:"table_name"`
	RecordID  uuid.UUID       `json:"record_id"`
	Operation string          `json:"operation"`
	OldValues json.RawMessage `json:"old_values,omitempty"`
	NewValues json.RawMessage `json:"new_values,omitempty"`
	ChangedBy *uuid.UUID      `json:"changed_by,omitempty"`
	ChangedAt time.Time       `json:"changed_at"`
	RequestID string          `json:"request_id,omitempty"`
}

// Query filters the trail. Zero-valued fields match everything.
type Query struct {
	Table     string
	RecordID  *uuid.UUID
	Operation string
	ChangedBy *uuid.UUID
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Store persists audit entries. Append-only: no update surface exists, and
// Prune is the single bulk deletion path for retention.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, q Query) ([]Entry, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Notifier receives entries after they commit. Used to feed downstream
// consumers (read-model refresh, Kafka fanout); delivery is best-effort and
// never part of the ledger's own correctness guarantees.
type Notifier interface {
	Notify(entry Entry)
}
