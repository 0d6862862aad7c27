package users

import (
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewarden/gatewarden/internal/platform/httpx"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Handler manages account endpoints.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	defaultGuard string
	validator    *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, defaultGuard string) *Handler {
	return &Handler{logger: logger, service: service, defaultGuard: defaultGuard, validator: validator.New()}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{userID}", h.find)
	r.Patch("/{userID}", h.update)
	r.Delete("/{userID}", h.remove)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	guardName := r.URL.Query().Get("guard")
	if guardName == "" {
		guardName = h.defaultGuard
	}
	out, err := h.service.List(r.Context(), guardName)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, len(out))
	start := (pagination.Page - 1) * pagination.PerPage
	if start > len(out) {
		start = len(out)
	}
	end := start + pagination.PerPage
	if end > len(out) {
		end = len(out)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"users":      out[start:end],
		"pagination": pagination,
	})
}

type createRequest struct {
	Guard    string `json:"guard"`
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	State    string `json:"state"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.Guard == "" {
		req.Guard = h.defaultGuard
	}
	u, err := h.service.Create(r.Context(), CreateInput{
		Guard:    req.Guard,
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		State:    req.State,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}

func (h *Handler) find(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	u, err := h.service.Find(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

type updateRequest struct {
	Name  *string `json:"name"`
	State *string `json:"state"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	var (
		u   *User
		err error
	)
	if req.Name != nil {
		if u, err = h.service.Rename(r.Context(), id, *req.Name); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if req.State != nil {
		if u, err = h.service.SetState(r.Context(), id, *req.State); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if u == nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "nothing to update")
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, &shared.NotFoundError{Kind: shared.KindUser})
		return 0, false
	}
	return id, true
}
