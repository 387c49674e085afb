package offer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shareledger/internal/shares/models"
	"shareledger/pkg/platform/sentinel"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newActiveOffer(t *testing.T, name, price, total string) *models.Offer {
	t.Helper()
	now := time.Now().UTC()
	o, err := models.NewOffer(uuid.New(), name, "", d(price), d(total), nil, now)
	require.NoError(t, err)
	require.NoError(t, o.CanActivate())
	o.ApplyActivation(nil, now)
	return o
}

func TestCreateGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	o := newActiveOffer(t, "Founding Shares", "25.00", "100")

	require.NoError(t, store.Create(ctx, o))
	assert.ErrorIs(t, store.Create(ctx, o), sentinel.ErrConflict)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Founding Shares", got.Name)

	// Mutating the returned copy must not touch the stored offer.
	got.Name = "changed"
	again, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Founding Shares", again.Name)

	got.Name = "Founding Shares II"
	require.NoError(t, store.Update(ctx, got))
	again, err = store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Founding Shares II", again.Name)

	require.NoError(t, store.Delete(ctx, o.ID))
	_, err = store.Get(ctx, o.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, o.ID), sentinel.ErrNotFound)
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	active := newActiveOffer(t, "Active", "10", "100")
	require.NoError(t, store.Create(ctx, active))

	draft, err := models.NewOffer(uuid.New(), "Draft", "", d("10"), d("100"), nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, draft))

	got, err := store.List(ctx, Filter{Status: models.StatusActive})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	page, err := store.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestApplySaleGuardsInventory(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	o := newActiveOffer(t, "Limited", "10", "10")
	require.NoError(t, store.Create(ctx, o))

	got, err := store.ApplySale(ctx, o.ID, d("8"), nil, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, got.SharesSold.Equal(d("8")))
	assert.Equal(t, models.StatusActive, got.Status)

	_, err = store.ApplySale(ctx, o.ID, d("5"), nil, time.Now().UTC())
	assert.ErrorIs(t, err, sentinel.ErrOversold)

	// Failed sale leaves counters untouched.
	after, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, after.SharesSold.Equal(d("8")))

	got, err = store.ApplySale(ctx, o.ID, d("2"), nil, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.True(t, got.SharesRemaining().IsZero())

	_, err = store.ApplySale(ctx, uuid.New(), d("1"), nil, time.Now().UTC())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestApplySaleConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	o := newActiveOffer(t, "Contested", "10", "100")
	require.NoError(t, store.Create(ctx, o))

	const workers = 50
	var wg sync.WaitGroup
	results := make(chan error, workers)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.ApplySale(ctx, o.ID, d("3"), nil, time.Now().UTC())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, sentinel.ErrOversold)
		}
	}

	// 100 shares at 3 apiece: exactly 33 sales can land.
	assert.Equal(t, 33, succeeded)
	after, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, after.SharesSold.Equal(d("99")), "sold %s", after.SharesSold)
	assert.True(t, after.SharesSold.LessThanOrEqual(after.TotalShares))
}

func TestFindEligibleOrdersByPrice(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	now := time.Now().UTC()

	cheap := newActiveOffer(t, "Cheap", "5.00", "100")
	dear := newActiveOffer(t, "Dear", "50.00", "100")
	require.NoError(t, store.Create(ctx, dear))
	require.NoError(t, store.Create(ctx, cheap))

	// Sold out: excluded even while active.
	exhausted := newActiveOffer(t, "Exhausted", "1.00", "10")
	require.NoError(t, store.Create(ctx, exhausted))
	_, err := store.ApplySale(ctx, exhausted.ID, d("10"), nil, now)
	require.NoError(t, err)

	// Window not yet open: excluded.
	future := newActiveOffer(t, "Future", "2.00", "100")
	from := now.Add(time.Hour)
	future.ValidFrom = &from
	require.NoError(t, store.Create(ctx, future))

	got, err := store.FindEligible(ctx, decimal.Zero, now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, cheap.ID, got[0].ID)
	assert.Equal(t, dear.ID, got[1].ID)
}

func TestFindEligibleHonorsQuantity(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	now := time.Now().UTC()

	small := newActiveOffer(t, "Small", "5.00", "10")
	require.NoError(t, store.Create(ctx, small))

	bounded := newActiveOffer(t, "Bounded", "6.00", "100")
	maxQ := d("20")
	bounded.MaxPurchase = &maxQ
	require.NoError(t, store.Create(ctx, bounded))

	open := newActiveOffer(t, "Open", "7.00", "100")
	require.NoError(t, store.Create(ctx, open))

	got, err := store.FindEligible(ctx, d("50"), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)
}

func TestFindExpiringSoon(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	now := time.Now().UTC()

	soon := newActiveOffer(t, "Soon", "10", "100")
	until := now.Add(12 * time.Hour)
	soon.ValidUntil = &until
	require.NoError(t, store.Create(ctx, soon))

	later := newActiveOffer(t, "Later", "10", "100")
	laterUntil := now.Add(96 * time.Hour)
	later.ValidUntil = &laterUntil
	require.NoError(t, store.Create(ctx, later))

	open := newActiveOffer(t, "Open", "10", "100")
	require.NoError(t, store.Create(ctx, open))

	got, err := store.FindExpiringSoon(ctx, now, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, soon.ID, got[0].ID)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	active := newActiveOffer(t, "Active", "10", "100")
	require.NoError(t, store.Create(ctx, active))
	_, err := store.ApplySale(ctx, active.ID, d("40"), nil, time.Now().UTC())
	require.NoError(t, err)

	draft, err := models.NewOffer(uuid.New(), "Draft", "", d("10"), d("50"), nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, draft))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CountByStatus[models.StatusActive])
	assert.Equal(t, 1, stats.CountByStatus[models.StatusDraft])
	assert.True(t, stats.TotalSharesOffered.Equal(d("150")))
	assert.True(t, stats.TotalSharesSold.Equal(d("40")))
}
