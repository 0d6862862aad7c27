package sectiontree

import (
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/platform/httpx"
)

// Handler exposes tree read and mutation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	catalog   *catalog.Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cat *catalog.Service) *Handler {
	return &Handler{logger: logger, service: service, catalog: cat, validator: validator.New()}
}

// MountRoutes registers tree routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.tree)
	r.Post("/move", h.move)
	r.Post("/add", h.add)
	r.Post("/change", h.change)
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	onlyEnabled := true
	if raw := r.URL.Query().Get("only_enabled"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			onlyEnabled = v
		}
	}

	var nodes []Node
	var err error
	if container := strings.TrimSpace(r.URL.Query().Get("container")); container != "" {
		var cont *catalog.Container
		cont, err = h.catalog.FindContainer(r.Context(), refFrom(container), r.URL.Query().Get("guard"))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		nodes, err = h.service.Builder().ContainerTree(r.Context(), cont, onlyEnabled)
	} else {
		guardName := strings.TrimSpace(r.URL.Query().Get("guard"))
		if guardName == "" {
			guardName = h.catalog.DefaultGuard()
		}
		nodes, err = h.service.Builder().GlobalTree(r.Context(), guardName, onlyEnabled)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tree": nodes})
}

type moveRequest struct {
	Guard       string  `json:"guard"`
	Section     int64   `json:"section" validate:"required"`
	Parent      *int64  `json:"parent"`
	Position    int     `json:"position" validate:"min=0"`
	Siblings    []int64 `json:"siblings"`
	PreSiblings []int64 `json:"pre_siblings"`
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	guardName := req.Guard
	if guardName == "" {
		guardName = h.catalog.DefaultGuard()
	}
	if err := h.service.Move(r.Context(), guardName, MoveInput{
		SectionID:   req.Section,
		ParentID:    req.Parent,
		Position:    req.Position,
		Siblings:    req.Siblings,
		PreSiblings: req.PreSiblings,
	}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addRequest struct {
	Guard      string `json:"guard"`
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Locale     string `json:"locale" validate:"required,min=2,max=5"`
	State      int16  `json:"state" validate:"min=0,max=1"`
	Superadmin bool   `json:"superadmin"`
	Parent     *int64 `json:"parent"`
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	section, err := h.service.Add(r.Context(), AddInput{
		Guard:      req.Guard,
		Code:       req.Code,
		Name:       req.Name,
		Locale:     req.Locale,
		State:      catalog.State(req.State),
		Superadmin: req.Superadmin,
		ParentID:   req.Parent,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"section": section})
}

type changeRequest struct {
	Guard   string `json:"guard"`
	Section int64  `json:"section" validate:"required"`
	Field   string `json:"field" validate:"required,oneof=code name state superadmin"`
	Value   string `json:"value" validate:"required"`
	Locale  string `json:"locale"`
}

func (h *Handler) change(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	guardName := req.Guard
	if guardName == "" {
		guardName = h.catalog.DefaultGuard()
	}

	var err error
	switch req.Field {
	case "code":
		err = h.service.RenameSection(r.Context(), guardName, req.Section, req.Value)
	case "name":
		if strings.TrimSpace(req.Locale) == "" {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "locale is required when changing name")
			return
		}
		err = h.service.RelabelSection(r.Context(), guardName, req.Section, req.Locale, req.Value)
	case "state":
		state, perr := strconv.ParseInt(req.Value, 10, 16)
		if perr != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "state must be 0 or 1")
			return
		}
		err = h.service.SetSectionState(r.Context(), guardName, req.Section, catalog.State(state))
	case "superadmin":
		flag, perr := strconv.ParseBool(req.Value)
		if perr != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "superadmin must be a boolean")
			return
		}
		err = h.service.SetSectionSuperadmin(r.Context(), guardName, req.Section, flag)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// refFrom interprets a query value: all-digit values resolve by id, anything
// else by name.
func refFrom(v string) catalog.Ref {
	if id, err := strconv.ParseInt(v, 10, 64); err == nil {
		return catalog.ByID(id)
	}
	return catalog.ByName(v)
}
