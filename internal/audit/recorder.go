package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/requestcontext"
)

// Recorder builds and appends audit entries. The store write happens inside
// the caller's atomic unit (the store picks the transaction up from
// context). Fan-out is separate: callers Announce entries only after their
// unit commits, so a rolled-back mutation is never fanned out.
type Recorder struct {
	store     Store
	logger    *slog.Logger
	notifiers []Notifier
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger attaches a structured logger for append visibility.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithNotifier registers a downstream consumer of committed entries.
func WithNotifier(n Notifier) Option {
	return func(r *Recorder) {
		if n != nil {
			r.notifiers = append(r.notifiers, n)
		}
	}
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record snapshots old and new states and appends an entry. Actor and
// timestamp come from the request context so every write in one operation
// shares them. The entry is returned so the caller can Announce it once the
// surrounding unit commits.
func (r *Recorder) Record(ctx context.Context, table string, recordID uuid.UUID, operation string, oldValues, newValues any) (Entry, error) {
	entry := Entry{
		ID:        uuid.New(),
		TableName: table,
		RecordID:  recordID,
		Operation: operation,
		ChangedBy: requestcontext.ActorID(ctx),
		ChangedAt: requestcontext.Now(ctx),
		RequestID: requestcontext.RequestID(ctx),
	}

	var err error
	if entry.OldValues, err = snapshot(oldValues); err != nil {
		return Entry{}, dErrors.Wrap(err, dErrors.CodeIntegrity, "snapshot old values")
	}
	if entry.NewValues, err = snapshot(newValues); err != nil {
		return Entry{}, dErrors.Wrap(err, dErrors.CodeIntegrity, "snapshot new values")
	}

	if err := r.store.Append(ctx, entry); err != nil {
		return Entry{}, dErrors.Wrap(err, dErrors.CodeIntegrity, "append audit entry")
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, "audit entry recorded",
			"log_type", "audit",
			"table", table,
			"record_id", recordID,
			"operation", operation,
			"request_id", entry.RequestID,
		)
	}
	return entry, nil
}

// Announce fans entries out to the registered notifiers. Callers invoke it
// after their atomic unit commits; entries from a failed unit must never be
// announced, since downstream consumers would see state that was rolled
// back.
func (r *Recorder) Announce(entries ...Entry) {
	for _, entry := range entries {
		for _, n := range r.notifiers {
			n.Notify(entry)
		}
	}
}

// Query reads the trail with the store's filters.
func (r *Recorder) Query(ctx context.Context, q Query) ([]Entry, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 100
	}
	entries, err := r.store.List(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query audit trail")
	}
	return entries, nil
}

// Prune bulk-deletes entries older than the cutoff and reports how many
// were removed. This is the only deletion path; individual entries are
// immutable.
func (r *Recorder) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := r.store.Prune(ctx, olderThan)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "prune audit trail")
	}
	if r.logger != nil {
		r.logger.InfoContext(ctx, "audit trail pruned",
			"log_type", "audit",
			"older_than", olderThan,
			"removed", n,
		)
	}
	return n, nil
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}
