package catalog

import (
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewarden/gatewarden/internal/platform/httpx"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Handler exposes CRUD endpoints for the four catalog entity kinds. The
// entities share a shape, so each kind gets the same thin adapters over the
// service.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/permissions", func(r chi.Router) {
		r.Get("/", h.listPermissions)
		r.Post("/", h.createPermission)
		r.Get("/{id}", h.findPermission)
		r.Patch("/{id}", h.updatePermission)
		r.Delete("/{id}", h.deletePermission)
	})
	r.Route("/roles", func(r chi.Router) {
		r.Get("/", h.listRoles)
		r.Post("/", h.createRole)
		r.Get("/{id}", h.findRole)
		r.Patch("/{id}", h.updateRole)
		r.Delete("/{id}", h.deleteRole)
	})
	r.Route("/sections", func(r chi.Router) {
		r.Get("/", h.listSections)
		r.Get("/{id}", h.findSection)
		r.Delete("/{id}", h.deleteSection)
	})
	r.Route("/containers", func(r chi.Router) {
		r.Get("/", h.listContainers)
		r.Post("/", h.createContainer)
		r.Get("/{id}", h.findContainer)
		r.Patch("/{id}", h.updateContainer)
		r.Delete("/{id}", h.deleteContainer)
	})
}

type createEntityRequest struct {
	Guard string `json:"guard"`
	Name  string `json:"name" validate:"required"`
	Label Label  `json:"label"`
	State int16  `json:"state" validate:"min=0,max=1"`
	Meta  Meta   `json:"meta"`
}

func (h *Handler) decodeCreate(w http.ResponseWriter, r *http.Request) (CreateInput, bool) {
	var req createEntityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return CreateInput{}, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CreateInput{}, false
	}
	return CreateInput{
		Guard: req.Guard,
		Name:  req.Name,
		Label: req.Label,
		State: State(req.State),
		Meta:  req.Meta,
	}, true
}

type updateEntityRequest struct {
	Label Label  `json:"label"`
	State *int16 `json:"state"`
	Meta  Meta   `json:"meta"`
}

func (h *Handler) decodeUpdate(w http.ResponseWriter, r *http.Request) (updateEntityRequest, bool) {
	var req updateEntityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return updateEntityRequest{}, false
	}
	if req.State != nil && !State(*req.State).Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "state must be 0 or 1")
		return updateEntityRequest{}, false
	}
	return req, true
}

func pathID(w http.ResponseWriter, r *http.Request, kind shared.Kind) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, &shared.NotFoundError{Kind: kind})
		return 0, false
	}
	return id, true
}

// --- permissions ---

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.Registrar().GetPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	p, err := h.service.CreatePermission(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) findPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindPermission)
	if !ok {
		return
	}
	p, err := h.service.FindPermission(r.Context(), ByID(id), "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindPermission)
	if !ok {
		return
	}
	req, ok := h.decodeUpdate(w, r)
	if !ok {
		return
	}
	p, err := h.service.FindPermission(r.Context(), ByID(id), "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	applyUpdate(&p.Label, &p.State, &p.Meta, req)
	if err := h.service.UpdatePermission(r.Context(), p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindPermission)
	if !ok {
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- roles ---

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	role, err := h.service.CreateRole(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) findRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindRole)
	if !ok {
		return
	}
	role, err := h.service.FindRole(r.Context(), ByID(id), "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindRole)
	if !ok {
		return
	}
	req, ok := h.decodeUpdate(w, r)
	if !ok {
		return
	}
	role, err := h.service.FindRole(r.Context(), ByID(id), "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	applyUpdate(&role.Label, &role.State, &role.Meta, req)
	if err := h.service.UpdateRole(r.Context(), role); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindRole)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- sections ---
// Creation and field changes go through the tree endpoints, which own
// ordering; the catalog only lists, reads and deletes.

func (h *Handler) listSections(w http.ResponseWriter, r *http.Request) {
	sections, err := h.service.Registrar().GetSections(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sections": sections})
}

func (h *Handler) findSection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindSection)
	if !ok {
		return
	}
	sec, err := h.service.FindSection(r.Context(), ByID(id), "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sec)
}

func (h *Handler) deleteSection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindSection)
	if !ok {
		return
	}
	if err := h.service.DeleteSection(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- containers ---

func (h *Handler) listContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := h.service.Registrar().GetContainers(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"containers": containers})
}

func (h *Handler) createContainer(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	c, err := h.service.CreateContainer(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) findContainer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindContainer)
	if !ok {
		return
	}
	c, err := h.service.FindContainer(r.Context(), ByID(id), "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) updateContainer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindContainer)
	if !ok {
		return
	}
	req, ok := h.decodeUpdate(w, r)
	if !ok {
		return
	}
	c, err := h.service.FindContainer(r.Context(), ByID(id), "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	applyUpdate(&c.Label, &c.State, &c.Meta, req)
	if err := h.service.UpdateContainer(r.Context(), c); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) deleteContainer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, shared.KindContainer)
	if !ok {
		return
	}
	if err := h.service.DeleteContainer(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func applyUpdate(label *Label, state *State, meta *Meta, req updateEntityRequest) {
	if req.Label != nil {
		*label = req.Label
	}
	if req.State != nil {
		*state = State(*req.State)
	}
	if req.Meta != nil {
		*meta = req.Meta
	}
}
