package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "shareledger/pkg/domain-errors"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newDraftOffer(t *testing.T, total string) *Offer {
	t.Helper()
	offer, err := NewOffer(uuid.New(), "Q1 Share Issuance", "", d("10"), d(total), nil, time.Now().UTC())
	require.NoError(t, err)
	return offer
}

func TestNewOfferValidation(t *testing.T) {
	now := time.Now().UTC()

	_, err := NewOffer(uuid.New(), "", "", d("10"), d("100"), nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewOffer(uuid.New(), "x", "", d("0"), d("100"), nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewOffer(uuid.New(), "x", "", d("10"), d("-1"), nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	offer, err := NewOffer(uuid.New(), "x", "", d("10"), d("100"), nil, now)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, offer.Status)
	assert.True(t, offer.SharesRemaining().Equal(d("100")))
}

func TestStatusTransitions(t *testing.T) {
	now := time.Now().UTC()

	t.Run("draft to active", func(t *testing.T) {
		offer := newDraftOffer(t, "100")
		require.NoError(t, offer.CanActivate())
		offer.ApplyActivation(nil, now)
		assert.Equal(t, StatusActive, offer.Status)
	})

	t.Run("active pauses and resumes", func(t *testing.T) {
		offer := newDraftOffer(t, "100")
		offer.ApplyActivation(nil, now)

		require.NoError(t, offer.CanPause())
		offer.ApplyPause(nil, now)
		assert.Equal(t, StatusPaused, offer.Status)

		require.NoError(t, offer.CanResume())
		offer.ApplyResume(nil, now)
		assert.Equal(t, StatusActive, offer.Status)
	})

	t.Run("activating a completed offer is rejected", func(t *testing.T) {
		offer := newDraftOffer(t, "100")
		offer.ApplyActivation(nil, now)
		require.NoError(t, offer.ApplySale(d("100"), nil, now))
		require.Equal(t, StatusCompleted, offer.Status)

		err := offer.CanActivate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBusinessRule))
		assert.Equal(t, StatusCompleted, offer.Status)
	})

	t.Run("cancel from draft, active, paused", func(t *testing.T) {
		for _, setup := range []func(*Offer){
			func(o *Offer) {},
			func(o *Offer) { o.ApplyActivation(nil, now) },
			func(o *Offer) { o.ApplyActivation(nil, now); o.ApplyPause(nil, now) },
		} {
			offer := newDraftOffer(t, "100")
			setup(offer)
			require.NoError(t, offer.CanCancel())
			offer.ApplyCancellation(nil, now)
			assert.Equal(t, StatusCancelled, offer.Status)
		}
	})

	t.Run("cancel from terminal states is rejected", func(t *testing.T) {
		offer := newDraftOffer(t, "100")
		offer.ApplyActivation(nil, now)
		require.NoError(t, offer.ApplySale(d("100"), nil, now))
		assert.True(t, dErrors.HasCode(offer.CanCancel(), dErrors.CodeBusinessRule))

		cancelled := newDraftOffer(t, "100")
		cancelled.ApplyCancellation(nil, now)
		assert.True(t, dErrors.HasCode(cancelled.CanCancel(), dErrors.CodeBusinessRule))
	})

	t.Run("only drafts can be deleted", func(t *testing.T) {
		offer := newDraftOffer(t, "100")
		require.NoError(t, offer.CanDelete())
		offer.ApplyActivation(nil, now)
		assert.True(t, dErrors.HasCode(offer.CanDelete(), dErrors.CodeBusinessRule))
	})
}

func TestApplySale(t *testing.T) {
	now := time.Now().UTC()

	t.Run("advances counters and keeps invariant", func(t *testing.T) {
		offer := newDraftOffer(t, "100")
		offer.ApplyActivation(nil, now)

		require.NoError(t, offer.ApplySale(d("40"), nil, now))
		assert.True(t, offer.SharesSold.Equal(d("40")))
		assert.True(t, offer.SharesRemaining().Equal(d("60")))
		assert.Equal(t, StatusActive, offer.Status)
	})

	t.Run("completes on exhaustion", func(t *testing.T) {
		offer := newDraftOffer(t, "100")
		offer.ApplyActivation(nil, now)

		require.NoError(t, offer.ApplySale(d("40"), nil, now))
		require.NoError(t, offer.ApplySale(d("60"), nil, now))
		assert.True(t, offer.SharesSold.Equal(d("100")))
		assert.True(t, offer.SharesRemaining().IsZero())
		assert.Equal(t, StatusCompleted, offer.Status)
	})

	t.Run("rejects oversell and leaves counters untouched", func(t *testing.T) {
		offer := newDraftOffer(t, "10")
		offer.ApplyActivation(nil, now)
		require.NoError(t, offer.ApplySale(d("8"), nil, now))

		err := offer.ApplySale(d("5"), nil, now)
		require.True(t, dErrors.HasCode(err, dErrors.CodeBusinessRule))
		assert.True(t, offer.SharesSold.Equal(d("8")))
		assert.True(t, offer.SharesRemaining().Equal(d("2")))
	})
}

func TestEligibility(t *testing.T) {
	now := time.Now().UTC()

	t.Run("draft offers are never eligible", func(t *testing.T) {
		offer := newDraftOffer(t, "100")
		assert.False(t, offer.EligibleForPurchase(d("1"), now))
	})

	t.Run("validity window", func(t *testing.T) {
		offer := newDraftOffer(t, "100")
		offer.ApplyActivation(nil, now)

		future := now.Add(time.Hour)
		offer.ValidFrom = &future
		assert.False(t, offer.EligibleForPurchase(d("1"), now))

		past := now.Add(-2 * time.Hour)
		offer.ValidFrom = &past
		assert.True(t, offer.EligibleForPurchase(d("1"), now))

		expired := now.Add(-time.Hour)
		offer.ValidUntil = &expired
		assert.False(t, offer.EligibleForPurchase(d("1"), now))
		assert.True(t, offer.Expired(now))
	})

	t.Run("min and max purchase bounds", func(t *testing.T) {
		offer := newDraftOffer(t, "100")
		offer.ApplyActivation(nil, now)
		min := d("10")
		max := d("50")
		offer.MinPurchase = &min
		offer.MaxPurchase = &max

		assert.False(t, offer.EligibleForPurchase(d("5"), now))
		assert.True(t, offer.EligibleForPurchase(d("10"), now))
		assert.True(t, offer.EligibleForPurchase(d("50"), now))
		assert.False(t, offer.EligibleForPurchase(d("51"), now))
	})

	t.Run("remaining inventory bound", func(t *testing.T) {
		offer := newDraftOffer(t, "10")
		offer.ApplyActivation(nil, now)
		require.NoError(t, offer.ApplySale(d("8"), nil, now))

		assert.True(t, offer.EligibleForPurchase(d("2"), now))
		assert.False(t, offer.EligibleForPurchase(d("3"), now))
	})
}
