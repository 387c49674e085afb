// Package handler exposes the share ledger over HTTP. The layer stays
// thin: decode, delegate to the service, translate coded errors to status
// codes.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shareledger/internal/readmodel"
	"shareledger/internal/shares/models"
	"shareledger/internal/shares/service"
	offerstore "shareledger/internal/shares/store/offer"
	recordstore "shareledger/internal/shares/store/record"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/httputil"
)

// Service is the ledger surface the handler consumes.
type Service interface {
	CreateOffer(ctx context.Context, in service.CreateOfferInput) (*models.Offer, error)
	UpdateOffer(ctx context.Context, id uuid.UUID, in service.UpdateOfferInput) (*models.Offer, error)
	GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	ListOffers(ctx context.Context, f offerstore.Filter) ([]*models.Offer, error)
	DeleteOffer(ctx context.Context, id uuid.UUID) error
	ActivateOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	PauseOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	ResumeOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	CancelOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	PurchaseShares(ctx context.Context, in service.PurchaseInput) (*service.TransactionSummary, error)
	TransferShares(ctx context.Context, in service.TransferInput) (*service.TransferSummary, error)
	OwnershipSummary(ctx context.Context, owner models.OwnerRef) (*models.OwnershipSummary, error)
	FindEligibleOffers(ctx context.Context, quantity decimal.Decimal) ([]*models.Offer, error)
	FindExpiringOffers(ctx context.Context, within time.Duration) ([]*models.Offer, error)
	OfferStats(ctx context.Context) (models.OfferStats, error)
	TopHolders(ctx context.Context, limit int) ([]recordstore.Holder, error)
	OfferRecords(ctx context.Context, offerID uuid.UUID) ([]*models.Record, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*models.Record, error)
}

// Handler serves the shares module routes.
type Handler struct {
	svc    Service
	cache  readmodel.Cache
	logger *slog.Logger
}

type Option func(*Handler)

// WithSummaryCache makes the summary endpoint read through the read-model
// cache before computing from the ledger.
func WithSummaryCache(cache readmodel.Cache) Option {
	return func(h *Handler) { h.cache = cache }
}

func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the shares routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/offers", func(r chi.Router) {
		r.Post("/", h.handleCreateOffer)
		r.Get("/", h.handleListOffers)
		r.Get("/eligible", h.handleEligibleOffers)
		r.Get("/expiring", h.handleExpiringOffers)
		r.Get("/stats", h.handleOfferStats)
		r.Route("/{offerID}", func(r chi.Router) {
			r.Get("/", h.handleGetOffer)
			r.Patch("/", h.handleUpdateOffer)
			r.Delete("/", h.handleDeleteOffer)
			r.Post("/activate", h.transitionHandler(h.svc.ActivateOffer))
			r.Post("/pause", h.transitionHandler(h.svc.PauseOffer))
			r.Post("/resume", h.transitionHandler(h.svc.ResumeOffer))
			r.Post("/cancel", h.transitionHandler(h.svc.CancelOffer))
			r.Post("/purchase", h.handlePurchase)
			r.Get("/records", h.handleOfferRecords)
		})
	})
	r.Route("/records/{recordID}", func(r chi.Router) {
		r.Get("/", h.handleGetRecord)
		r.Post("/transfer", h.handleTransfer)
	})
	r.Get("/owners/{ownerType}/{ownerID}/summary", h.handleOwnershipSummary)
	r.Get("/holders/top", h.handleTopHolders)
}

type offerRequest struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	PricePerShare decimal.Decimal  `json:"price_per_share"`
	TotalShares   decimal.Decimal  `json:"total_shares_available"`
	ValidFrom     *time.Time       `json:"valid_from"`
	ValidUntil    *time.Time       `json:"valid_until"`
	MinPurchase   *decimal.Decimal `json:"min_purchase_quantity"`
	MaxPurchase   *decimal.Decimal `json:"max_purchase_quantity"`
}

func (h *Handler) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	o, err := h.svc.CreateOffer(r.Context(), service.CreateOfferInput{
		Name:          req.Name,
		Description:   req.Description,
		PricePerShare: req.PricePerShare,
		TotalShares:   req.TotalShares,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		MinPurchase:   req.MinPurchase,
		MaxPurchase:   req.MaxPurchase,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, o)
}

type updateOfferRequest struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	PricePerShare *decimal.Decimal `json:"price_per_share"`
	TotalShares   *decimal.Decimal `json:"total_shares_available"`
	ValidFrom     *time.Time       `json:"valid_from"`
	ValidUntil    *time.Time       `json:"valid_until"`
	MinPurchase   *decimal.Decimal `json:"min_purchase_quantity"`
	MaxPurchase   *decimal.Decimal `json:"max_purchase_quantity"`
}

func (h *Handler) handleUpdateOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "offerID")
	if !ok {
		return
	}
	var req updateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	o, err := h.svc.UpdateOffer(r.Context(), id, service.UpdateOfferInput{
		Name:          req.Name,
		Description:   req.Description,
		PricePerShare: req.PricePerShare,
		TotalShares:   req.TotalShares,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		MinPurchase:   req.MinPurchase,
		MaxPurchase:   req.MaxPurchase,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "offerID")
	if !ok {
		return
	}
	o, err := h.svc.GetOffer(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) handleListOffers(w http.ResponseWriter, r *http.Request) {
	f := offerstore.Filter{
		Status: models.OfferStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	offers, err := h.svc.ListOffers(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offers)
}

func (h *Handler) handleDeleteOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "offerID")
	if !ok {
		return
	}
	if err := h.svc.DeleteOffer(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transitionHandler(op func(ctx context.Context, id uuid.UUID) (*models.Offer, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "offerID")
		if !ok {
			return
		}
		o, err := op(r.Context(), id)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, o)
	}
}

type purchaseRequest struct {
	OwnerID   uuid.UUID       `json:"owner_id"`
	OwnerType string          `json:"owner_type"`
	Quantity  decimal.Decimal `json:"quantity"`
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	offerID, ok := pathUUID(w, r, "offerID")
	if !ok {
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	summary, err := h.svc.PurchaseShares(r.Context(), service.PurchaseInput{
		OfferID:  offerID,
		Owner:    models.OwnerRef{ID: req.OwnerID, Type: models.OwnerType(req.OwnerType)},
		Quantity: req.Quantity,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, summary)
}

type transferRequest struct {
	ToOwnerID   uuid.UUID       `json:"to_owner_id"`
	ToOwnerType string          `json:"to_owner_type"`
	Quantity    decimal.Decimal `json:"quantity"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	recordID, ok := pathUUID(w, r, "recordID")
	if !ok {
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	summary, err := h.svc.TransferShares(r.Context(), service.TransferInput{
		RecordID: recordID,
		To:       models.OwnerRef{ID: req.ToOwnerID, Type: models.OwnerType(req.ToOwnerType)},
		Quantity: req.Quantity,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "recordID")
	if !ok {
		return
	}
	rec, err := h.svc.GetRecord(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleOfferRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "offerID")
	if !ok {
		return
	}
	records, err := h.svc.OfferRecords(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) handleOwnershipSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(chi.URLParam(r, "ownerID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid owner id"))
		return
	}
	owner, err := models.NewOwnerRef(ownerID, models.OwnerType(chi.URLParam(r, "ownerType")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if h.cache != nil {
		if summary, ok, err := h.cache.GetSummary(r.Context(), owner); err == nil && ok {
			httputil.WriteJSON(w, http.StatusOK, summary)
			return
		} else if err != nil {
			h.logger.WarnContext(r.Context(), "summary cache read failed", "error", err)
		}
	}

	summary, err := h.svc.OwnershipSummary(r.Context(), owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.SetSummary(r.Context(), summary); err != nil {
			h.logger.WarnContext(r.Context(), "summary cache write failed", "error", err)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleEligibleOffers(w http.ResponseWriter, r *http.Request) {
	quantity := decimal.Zero
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid quantity"))
			return
		}
		quantity = parsed
	}
	offers, err := h.svc.FindEligibleOffers(r.Context(), quantity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offers)
}

func (h *Handler) handleExpiringOffers(w http.ResponseWriter, r *http.Request) {
	within := 72 * time.Hour
	if raw := r.URL.Query().Get("within"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid within duration"))
			return
		}
		within = parsed
	}
	offers, err := h.svc.FindExpiringOffers(r.Context(), within)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offers)
}

func (h *Handler) handleOfferStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.OfferStats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleTopHolders(w http.ResponseWriter, r *http.Request) {
	holders, err := h.svc.TopHolders(r.Context(), queryInt(r, "limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, holders)
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "invalid %s", param))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, param string) int {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
