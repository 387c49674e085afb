package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shareledger/internal/audit"
	auditmem "shareledger/internal/audit/store/memory"
	"shareledger/internal/owners"
	"shareledger/internal/shares/handler"
	"shareledger/internal/shares/models"
	"shareledger/internal/shares/service"
	offerstore "shareledger/internal/shares/store/offer"
	recordstore "shareledger/internal/shares/store/record"
	"shareledger/pkg/platform/tx"
	"shareledger/pkg/testutil"
)

type env struct {
	router *chi.Mux
	svc    *service.Service
	dir    *owners.InMemory
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	dir := owners.NewInMemory()
	recorder := audit.NewRecorder(auditmem.New())
	svc := service.New(offerstore.NewInMemory(), recordstore.NewInMemory(), dir, tx.NewKeyedMutexRunner(),
		service.WithAuditor(recorder),
		service.WithLogger(logger),
	)
	r := chi.NewRouter()
	handler.New(svc, logger).Register(r)
	return &env{router: r, svc: svc, dir: dir}
}

func (e *env) member(t *testing.T) models.OwnerRef {
	t.Helper()
	m := owners.Member{ID: uuid.New(), Name: "Member", CreatedAt: time.Now().UTC()}
	require.NoError(t, e.dir.CreateMember(context.Background(), m))
	return models.OwnerRef{ID: m.ID, Type: models.OwnerMember}
}

func (e *env) activeOffer(t *testing.T, price, total string) *models.Offer {
	t.Helper()
	ctx := context.Background()
	o, err := e.svc.CreateOffer(ctx, service.CreateOfferInput{
		Name:          "Offer",
		PricePerShare: decimal.RequireFromString(price),
		TotalShares:   decimal.RequireFromString(total),
	})
	require.NoError(t, err)
	_, err = e.svc.ActivateOffer(ctx, o.ID)
	require.NoError(t, err)
	return o
}

func TestCreateAndActivateOffer(t *testing.T) {
	e := newEnv(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/offers", map[string]any{
		"name":                   "Founding Shares",
		"price_per_share":        "25.00",
		"total_shares_available": "100",
	})
	rr := testutil.DoRequest(e.router, testutil.WithActor(req, uuid.New()))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	created := testutil.UnmarshalResponse[models.Offer](t, rr)
	assert.Equal(t, models.StatusDraft, created.Status)
	assert.NotNil(t, created.CreatedBy)

	rr = testutil.DoRequest(e.router,
		testutil.NewJSONRequest(t, http.MethodPost, "/offers/"+created.ID.String()+"/activate", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	activated := testutil.UnmarshalResponse[models.Offer](t, rr)
	assert.Equal(t, models.StatusActive, activated.Status)
}

func TestCreateOfferRejectsBadBody(t *testing.T) {
	e := newEnv(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/offers", map[string]any{
		"name":                   "",
		"price_per_share":        "10",
		"total_shares_available": "100",
	})
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertErrorCode(t, rr, "validation")
}

func TestPurchaseFlow(t *testing.T) {
	e := newEnv(t)
	buyer := e.member(t)
	o := e.activeOffer(t, "10.00", "100")

	req := testutil.NewJSONRequest(t, http.MethodPost, "/offers/"+o.ID.String()+"/purchase", map[string]any{
		"owner_id":   buyer.ID,
		"owner_type": "member",
		"quantity":   "40",
	})
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	summary := testutil.UnmarshalResponse[service.TransactionSummary](t, rr)
	assert.True(t, summary.TotalCost.Equal(decimal.RequireFromString("400")))
	assert.True(t, summary.SharesRemaining.Equal(decimal.RequireFromString("60")))

	// Oversell maps to 409.
	req = testutil.NewJSONRequest(t, http.MethodPost, "/offers/"+o.ID.String()+"/purchase", map[string]any{
		"owner_id":   buyer.ID,
		"owner_type": "member",
		"quantity":   "61",
	})
	rr = testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusConflict)
	testutil.AssertErrorCode(t, rr, "business_rule")
}

func TestTransferFlow(t *testing.T) {
	e := newEnv(t)
	alice := e.member(t)
	bob := e.member(t)
	o := e.activeOffer(t, "10", "100")

	purchase, err := e.svc.PurchaseShares(context.Background(), service.PurchaseInput{
		OfferID: o.ID, Owner: alice, Quantity: decimal.RequireFromString("50"),
	})
	require.NoError(t, err)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/records/"+purchase.RecordID.String()+"/transfer", map[string]any{
		"to_owner_id":   bob.ID,
		"to_owner_type": "member",
		"quantity":      "50",
	})
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	summary := testutil.UnmarshalResponse[service.TransferSummary](t, rr)
	assert.True(t, summary.SourceDeleted)

	rr = testutil.DoRequest(e.router,
		testutil.NewJSONRequest(t, http.MethodGet, "/records/"+purchase.RecordID.String(), nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestOwnershipSummaryEndpoint(t *testing.T) {
	e := newEnv(t)
	buyer := e.member(t)
	o := e.activeOffer(t, "10", "100")

	_, err := e.svc.PurchaseShares(context.Background(), service.PurchaseInput{
		OfferID: o.ID, Owner: buyer, Quantity: decimal.RequireFromString("30"),
	})
	require.NoError(t, err)

	rr := testutil.DoRequest(e.router,
		testutil.NewJSONRequest(t, http.MethodGet, "/owners/member/"+buyer.ID.String()+"/summary", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	summary := testutil.UnmarshalResponse[models.OwnershipSummary](t, rr)
	assert.True(t, summary.TotalQuantity.Equal(decimal.RequireFromString("30")))
	require.Len(t, summary.PerOffer, 1)

	rr = testutil.DoRequest(e.router,
		testutil.NewJSONRequest(t, http.MethodGet, "/owners/member/"+uuid.NewString()+"/summary", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)

	rr = testutil.DoRequest(e.router,
		testutil.NewJSONRequest(t, http.MethodGet, "/owners/robot/"+buyer.ID.String()+"/summary", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestEligibleAndStatsEndpoints(t *testing.T) {
	e := newEnv(t)
	e.activeOffer(t, "5", "100")
	e.activeOffer(t, "50", "100")

	rr := testutil.DoRequest(e.router,
		testutil.NewJSONRequest(t, http.MethodGet, "/offers/eligible?quantity=10", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	offers := testutil.UnmarshalResponse[[]models.Offer](t, rr)
	require.Len(t, *offers, 2)
	assert.True(t, (*offers)[0].PricePerShare.LessThan((*offers)[1].PricePerShare))

	rr = testutil.DoRequest(e.router,
		testutil.NewJSONRequest(t, http.MethodGet, "/offers/stats", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	stats := testutil.UnmarshalResponse[models.OfferStats](t, rr)
	assert.Equal(t, 2, stats.CountByStatus[models.StatusActive])
}

func TestInvalidOfferID(t *testing.T) {
	e := newEnv(t)
	rr := testutil.DoRequest(e.router,
		testutil.NewJSONRequest(t, http.MethodGet, "/offers/not-a-uuid", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}
