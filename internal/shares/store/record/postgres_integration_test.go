//go:build integration

package record_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"shareledger/internal/shares/models"
	offerstore "shareledger/internal/shares/store/offer"
	"shareledger/internal/shares/store/record"
	"shareledger/pkg/platform/tx"
	"shareledger/pkg/testutil/containers"
)

var errInsufficient = errors.New("insufficient quantity")

type PostgresRecordSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	offers   *offerstore.Postgres
	store    *record.Postgres
	runner   *tx.SQLRunner
}

func TestPostgresRecordSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRecordSuite))
}

func (s *PostgresRecordSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.offers = offerstore.NewPostgres(s.postgres.DB)
	s.store = record.NewPostgres(s.postgres.DB)
	s.runner = tx.NewSQLRunner(s.postgres.DB)
}

func (s *PostgresRecordSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "audit_entries", "share_records", "share_offers")
	s.Require().NoError(err)
}

func (s *PostgresRecordSuite) seedLot(quantity string) *models.Record {
	ctx := context.Background()
	now := time.Now().UTC()

	o, err := models.NewOffer(uuid.New(), "Offer "+uuid.NewString(), "",
		decimal.RequireFromString("10.00"), decimal.RequireFromString("1000"), nil, now)
	s.Require().NoError(err)
	o.ApplyActivation(nil, now)
	s.Require().NoError(s.offers.Create(ctx, o))

	owner := models.OwnerRef{ID: uuid.New(), Type: models.OwnerMember}
	lot, err := models.NewRecord(uuid.New(), owner, o.ID,
		decimal.RequireFromString(quantity), o.PricePerShare, nil, now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, lot))
	return lot
}

func (s *PostgresRecordSuite) TestCreateGetRoundTrip() {
	ctx := context.Background()
	lot := s.seedLot("50")

	got, err := s.store.Get(ctx, lot.ID)
	s.Require().NoError(err)
	s.Equal(lot.Owner, got.Owner)
	s.True(got.ShareQuantity.Equal(decimal.RequireFromString("50")))
	s.True(got.TotalValue.Equal(decimal.RequireFromString("500")))
}

// TestConcurrentDrainsConserveQuantity races two 30-share drains of a
// 50-share lot through the transaction runner, mirroring the transfer
// sequence: read the source, check the quantity, shrink it, insert the
// recipient lot. The transactional read locks the row, so the second drain
// observes the shrink and fails its check instead of double-spending.
func (s *PostgresRecordSuite) TestConcurrentDrainsConserveQuantity() {
	ctx := context.Background()
	lot := s.seedLot("50")
	amount := decimal.RequireFromString("30")

	drain := func(to models.OwnerRef) error {
		return s.runner.RunInTx(ctx, lot.ShareOfferID.String(), func(ctx context.Context) error {
			src, err := s.store.Get(ctx, lot.ID)
			if err != nil {
				return err
			}
			if amount.GreaterThan(src.ShareQuantity) {
				return errInsufficient
			}
			now := time.Now().UTC()
			if err := src.SetQuantity(src.ShareQuantity.Sub(amount), nil, now); err != nil {
				return err
			}
			if err := s.store.Update(ctx, src); err != nil {
				return err
			}
			incoming, err := models.NewRecord(uuid.New(), to, src.ShareOfferID, amount, src.ShareValue, nil, now)
			if err != nil {
				return err
			}
			return s.store.Create(ctx, incoming)
		})
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			errs <- drain(models.OwnerRef{ID: uuid.New(), Type: models.OwnerMember})
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.Require().ErrorIs(err, errInsufficient)
			rejected++
		}
	}
	s.Equal(1, succeeded, "exactly one drain may land")
	s.Equal(1, rejected)

	// Conservation: the lot's quantity moved, it did not multiply.
	all, err := s.store.FindByOffer(ctx, lot.ShareOfferID)
	s.Require().NoError(err)
	total := decimal.Zero
	for _, r := range all {
		total = total.Add(r.ShareQuantity)
	}
	s.True(total.Equal(decimal.RequireFromString("50")), "ledger total %s", total)
}

func (s *PostgresRecordSuite) TestTopHoldersOrdersByValue() {
	ctx := context.Background()
	big := s.seedLot("100")
	small := s.seedLot("10")

	holders, err := s.store.TopHolders(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(holders, 2)
	s.Equal(big.Owner, holders[0].Owner)
	s.Equal(small.Owner, holders[1].Owner)
}
