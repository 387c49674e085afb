package owners

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/httputil"
	"shareledger/pkg/platform/sentinel"
	"shareledger/pkg/requestcontext"
)

// Handler serves the owner directory routes.
type Handler struct {
	dir    Directory
	logger *slog.Logger
}

func NewHandler(dir Directory, logger *slog.Logger) *Handler {
	return &Handler{dir: dir, logger: logger}
}

// Register mounts the directory routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/members", h.handleCreateMember)
	r.Get("/members/{memberID}", h.handleGetMember)
	r.Post("/groups", h.handleCreateGroup)
	r.Get("/groups/{groupID}", h.handleGetGroup)
}

type createOwnerRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req createOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	m := Member{ID: uuid.New(), Name: req.Name, CreatedAt: requestcontext.Now(r.Context())}
	if err := h.dir.CreateMember(r.Context(), m); err != nil {
		httputil.WriteError(w, translateErr(err, "member"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, m)
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid member id"))
		return
	}
	m, err := h.dir.GetMember(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, translateErr(err, "member"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	g := Group{ID: uuid.New(), Name: req.Name, CreatedAt: requestcontext.Now(r.Context())}
	if err := h.dir.CreateGroup(r.Context(), g); err != nil {
		httputil.WriteError(w, translateErr(err, "group"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, g)
}

func (h *Handler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid group id"))
		return
	}
	g, err := h.dir.GetGroup(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, translateErr(err, "group"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, g)
}

func translateErr(err error, kind string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "%s not found", kind)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Newf(dErrors.CodeConflict, "%s already exists", kind)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, kind+" directory")
	}
}
