package service_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"shareledger/internal/audit"
	auditmem "shareledger/internal/audit/store/memory"
	"shareledger/internal/owners"
	"shareledger/internal/shares/models"
	"shareledger/internal/shares/service"
	offerstore "shareledger/internal/shares/store/offer"
	recordstore "shareledger/internal/shares/store/record"
	"shareledger/pkg/platform/tx"
)

// fixture wires the full in-memory backend: stores, owner directory, keyed
// runner and audit recorder.
type fixture struct {
	svc     *service.Service
	offers  *offerstore.InMemory
	records *recordstore.InMemory
	dir     *owners.InMemory
	trail   *auditmem.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		offers:  offerstore.NewInMemory(),
		records: recordstore.NewInMemory(),
		dir:     owners.NewInMemory(),
		trail:   auditmem.New(),
	}
	recorder := audit.NewRecorder(f.trail)
	f.svc = service.New(f.offers, f.records, f.dir, tx.NewKeyedMutexRunner(),
		service.WithAuditor(recorder),
		service.WithLogger(slog.New(slog.DiscardHandler)),
	)
	return f
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) member(t *testing.T, name string) models.OwnerRef {
	t.Helper()
	m := owners.Member{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	require.NoError(t, f.dir.CreateMember(context.Background(), m))
	return models.OwnerRef{ID: m.ID, Type: models.OwnerMember}
}

func (f *fixture) group(t *testing.T, name string) models.OwnerRef {
	t.Helper()
	g := owners.Group{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	require.NoError(t, f.dir.CreateGroup(context.Background(), g))
	return models.OwnerRef{ID: g.ID, Type: models.OwnerGroup}
}

func (f *fixture) activeOffer(t *testing.T, price, total string) *models.Offer {
	t.Helper()
	ctx := context.Background()
	o, err := f.svc.CreateOffer(ctx, service.CreateOfferInput{
		Name:          "Offer " + uuid.NewString()[:8],
		PricePerShare: d(price),
		TotalShares:   d(total),
	})
	require.NoError(t, err)
	o, err = f.svc.ActivateOffer(ctx, o.ID)
	require.NoError(t, err)
	return o
}

func (f *fixture) auditEntries(t *testing.T, q audit.Query) []audit.Entry {
	t.Helper()
	entries, err := f.trail.List(context.Background(), q)
	require.NoError(t, err)
	return entries
}

type captureNotifier struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (n *captureNotifier) Notify(e audit.Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, e)
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

// abortRunner runs the unit of work and then fails it, the way a
// transaction that loses the commit race does.
type abortRunner struct{}

func (abortRunner) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return errors.New("commit failed")
}

// TestNotifiersFireOnlyAfterCommit pins down the fan-out contract: a unit of
// work that fails after its audit writes must not reach downstream
// consumers, while a committed one must.
func TestNotifiersFireOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	notifier := &captureNotifier{}
	recorder := audit.NewRecorder(auditmem.New(), audit.WithNotifier(notifier))
	offers := offerstore.NewInMemory()
	records := recordstore.NewInMemory()
	dir := owners.NewInMemory()

	aborted := service.New(offers, records, dir, abortRunner{},
		service.WithAuditor(recorder),
		service.WithLogger(slog.New(slog.DiscardHandler)),
	)
	_, err := aborted.CreateOffer(ctx, service.CreateOfferInput{
		Name: "Doomed", PricePerShare: d("10"), TotalShares: d("100"),
	})
	require.Error(t, err)
	require.Zero(t, notifier.count(), "a failed unit of work must not fan out")

	committed := service.New(offers, records, dir, tx.NewKeyedMutexRunner(),
		service.WithAuditor(recorder),
		service.WithLogger(slog.New(slog.DiscardHandler)),
	)
	_, err = committed.CreateOffer(ctx, service.CreateOfferInput{
		Name: "Landed", PricePerShare: d("10"), TotalShares: d("100"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, notifier.count())
}
