package readmodel

import (
	"context"
	"encoding/json"
	"log/slog"

	"shareledger/internal/audit"
	"shareledger/internal/shares/models"
	"shareledger/internal/shares/service"
)

// RecordLoader reads an owner's lots from the authoritative store.
type RecordLoader interface {
	FindByOwner(ctx context.Context, owner models.OwnerRef) ([]*models.Record, error)
}

// Worker consumes audit entries from its inbox and refreshes the cached
// summary of every owner a mutation touched. It implements audit.Notifier;
// Notify never blocks the mutation path, dropping entries when the inbox is
// full (the TTL bounds how long a dropped refresh can stay stale).
type Worker struct {
	records RecordLoader
	cache   Cache
	logger  *slog.Logger
	inbox   chan audit.Entry
}

func NewWorker(records RecordLoader, cache Cache, logger *slog.Logger, buffer int) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	return &Worker{
		records: records,
		cache:   cache,
		logger:  logger,
		inbox:   make(chan audit.Entry, buffer),
	}
}

// Notify enqueues an entry for processing.
func (w *Worker) Notify(entry audit.Entry) {
	select {
	case w.inbox <- entry:
	default:
		w.logger.Warn("read-model inbox full, dropping refresh", "entry_id", entry.ID)
	}
}

// Run processes the inbox until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			w.process(ctx, entry)
		}
	}
}

func (w *Worker) process(ctx context.Context, entry audit.Entry) {
	if entry.TableName != audit.TableRecords {
		return
	}
	for _, owner := range ownersOf(entry) {
		records, err := w.records.FindByOwner(ctx, owner)
		if err != nil {
			w.logger.Error("read-model refresh: load records", "error", err, "owner_id", owner.ID)
			continue
		}
		summary := service.BuildOwnershipSummary(owner, records)
		if err := w.cache.SetSummary(ctx, summary); err != nil {
			w.logger.Error("read-model refresh: set summary", "error", err, "owner_id", owner.ID)
		}
	}
}

// ownersOf extracts every owner referenced by the entry's snapshots. A
// transfer entry touches one owner per side; a purchase touches one.
func ownersOf(entry audit.Entry) []models.OwnerRef {
	seen := make(map[models.OwnerRef]struct{}, 2)
	owners := make([]models.OwnerRef, 0, 2)
	for _, snapshot := range [][]byte{entry.OldValues, entry.NewValues} {
		if len(snapshot) == 0 {
			continue
		}
		var partial struct {
			Owner models.OwnerRef `json:"owner"`
		}
		if err := json.Unmarshal(snapshot, &partial); err != nil {
			continue
		}
		if !partial.Owner.Type.Valid() {
			continue
		}
		if _, ok := seen[partial.Owner]; ok {
			continue
		}
		seen[partial.Owner] = struct{}{}
		owners = append(owners, partial.Owner)
	}
	return owners
}
