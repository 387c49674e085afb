// Package handler exposes the audit trail query surface.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shareledger/internal/audit"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/httputil"
)

// Trail is the audit query surface the handler consumes.
type Trail interface {
	Query(ctx context.Context, q audit.Query) ([]audit.Entry, error)
}

type Handler struct {
	trail  Trail
	logger *slog.Logger
}

func New(trail Trail, logger *slog.Logger) *Handler {
	return &Handler{trail: trail, logger: logger}
}

// Register mounts the audit routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.handleQuery)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.trail.Query(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func parseQuery(r *http.Request) (audit.Query, error) {
	values := r.URL.Query()
	q := audit.Query{
		Table:     values.Get("table"),
		Operation: values.Get("operation"),
	}

	if raw := values.Get("record_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return audit.Query{}, dErrors.New(dErrors.CodeValidation, "invalid record_id")
		}
		q.RecordID = &id
	}
	if raw := values.Get("changed_by"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return audit.Query{}, dErrors.New(dErrors.CodeValidation, "invalid changed_by")
		}
		q.ChangedBy = &id
	}
	if raw := values.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Query{}, dErrors.New(dErrors.CodeValidation, "invalid from timestamp")
		}
		q.From = &t
	}
	if raw := values.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Query{}, dErrors.New(dErrors.CodeValidation, "invalid to timestamp")
		}
		q.To = &t
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return audit.Query{}, dErrors.New(dErrors.CodeValidation, "invalid limit")
		}
		q.Limit = n
	}
	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return audit.Query{}, dErrors.New(dErrors.CodeValidation, "invalid offset")
		}
		q.Offset = n
	}
	return q, nil
}
