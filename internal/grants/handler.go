package grants

import (
	"context"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/guard"
	"github.com/gatewarden/gatewarden/internal/platform/httpx"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Handler exposes the association endpoints: grants to roles and actors,
// role membership, and the container links.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	catalog   *catalog.Service
	registry  *guard.Registry
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cat *catalog.Service, registry *guard.Registry) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		catalog:   cat,
		registry:  registry,
		validator: validator.New(),
	}
}

// MountRoutes registers association routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles/{role}", func(r chi.Router) {
		r.Post("/permissions", h.rolePermissions(h.service.GivePermissionsToRole))
		r.Delete("/permissions", h.rolePermissions(h.service.RevokePermissionsFromRole))
		r.Put("/permissions", h.rolePermissions(h.service.SyncRolePermissions))
		r.Post("/containers/{container}", h.roleContainer(h.service.LinkRoleToContainer))
		r.Delete("/containers/{container}", h.roleContainer(h.service.UnlinkRoleFromContainer))
	})
	r.Route("/actors/{actorID}", func(r chi.Router) {
		r.Post("/permissions", h.giveActorPermissions)
		r.Delete("/permissions", h.revokeActorPermissions)
		r.Put("/permissions", h.syncActorPermissions)
		r.Post("/roles", h.membership(h.service.AssignRoles))
		r.Delete("/roles", h.membership(h.service.RemoveRoles))
		r.Put("/roles", h.membership(h.service.SyncRoles))
	})
	r.Post("/containers/{container}/sections/{section}", h.linkSectionContainer)
	r.Delete("/containers/{container}/sections/{section}", h.unlinkSectionContainer)
}

// scope is the resolved payload shared by the grant writes.
type scope struct {
	perms     []*catalog.Permission
	section   *catalog.Section
	container *catalog.Container
}

type scopedRequest struct {
	Guard       string   `json:"guard"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
	Section     string   `json:"section" validate:"required"`
	Container   string   `json:"container" validate:"required"`
	// Enabled applies to direct actor grants only; a single value covers
	// every permission, a list sets flags positionally.
	Enabled    *bool  `json:"enabled,omitempty"`
	EnabledPer []bool `json:"enabled_per,omitempty"`
}

func (h *Handler) decodeScoped(w http.ResponseWriter, r *http.Request) (scopedRequest, bool) {
	var req scopedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return scopedRequest{}, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return scopedRequest{}, false
	}
	return req, true
}

func (h *Handler) resolveScope(ctx context.Context, guardName string, permissions []string, section, container string) (scope, error) {
	perms := make([]*catalog.Permission, 0, len(permissions))
	for _, name := range permissions {
		p, err := h.catalog.FindPermission(ctx, refFrom(name), guardName)
		if err != nil {
			return scope{}, err
		}
		perms = append(perms, p)
	}
	sec, err := h.catalog.FindSection(ctx, refFrom(section), guardName)
	if err != nil {
		return scope{}, err
	}
	cont, err := h.catalog.FindContainer(ctx, refFrom(container), guardName)
	if err != nil {
		return scope{}, err
	}
	return scope{perms: perms, section: sec, container: cont}, nil
}

func (req scopedRequest) flags() EnabledFlags {
	if len(req.EnabledPer) > 0 {
		return EnabledPer(req.EnabledPer)
	}
	if req.Enabled != nil {
		return AllEnabled(*req.Enabled)
	}
	return AllEnabled(true)
}

// --- role grants ---

func (h *Handler) rolePermissions(op func(context.Context, *catalog.Role, []*catalog.Permission, *catalog.Section, *catalog.Container) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decodeScoped(w, r)
		if !ok {
			return
		}
		role, err := h.catalog.FindRole(r.Context(), refFrom(chi.URLParam(r, "role")), req.Guard)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		sc, err := h.resolveScope(r.Context(), role.Guard, req.Permissions, req.Section, req.Container)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := op(r.Context(), role, sc.perms, sc.section, sc.container); err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- actor grants ---

func (h *Handler) actorScope(w http.ResponseWriter, r *http.Request) (guard.Actor, scopedRequest, scope, bool) {
	req, ok := h.decodeScoped(w, r)
	if !ok {
		return nil, scopedRequest{}, scope{}, false
	}
	actor, err := h.pathActor(r, req.Guard)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, scopedRequest{}, scope{}, false
	}
	sc, err := h.resolveScope(r.Context(), actor.GuardName(), req.Permissions, req.Section, req.Container)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, scopedRequest{}, scope{}, false
	}
	return actor, req, sc, true
}

func (h *Handler) giveActorPermissions(w http.ResponseWriter, r *http.Request) {
	actor, req, sc, ok := h.actorScope(w, r)
	if !ok {
		return
	}
	if err := h.service.GivePermissionsToActor(r.Context(), actor, sc.perms, sc.section, sc.container, req.flags()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeActorPermissions(w http.ResponseWriter, r *http.Request) {
	actor, _, sc, ok := h.actorScope(w, r)
	if !ok {
		return
	}
	if err := h.service.RevokePermissionsFromActor(r.Context(), actor, sc.perms, sc.section, sc.container); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) syncActorPermissions(w http.ResponseWriter, r *http.Request) {
	actor, req, sc, ok := h.actorScope(w, r)
	if !ok {
		return
	}
	if err := h.service.SyncActorPermissions(r.Context(), actor, sc.perms, sc.section, sc.container, req.flags()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- role membership ---

type membershipRequest struct {
	Guard string   `json:"guard"`
	Roles []string `json:"roles" validate:"required,min=1"`
}

func (h *Handler) membership(op func(context.Context, guard.Actor, []*catalog.Role) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req membershipRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		actor, err := h.pathActor(r, req.Guard)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		roles := make([]*catalog.Role, 0, len(req.Roles))
		for _, name := range req.Roles {
			role, err := h.catalog.FindRole(r.Context(), refFrom(name), actor.GuardName())
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			roles = append(roles, role)
		}
		if err := op(r.Context(), actor, roles); err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- container links ---

func (h *Handler) roleContainer(op func(context.Context, *catalog.Role, *catalog.Container) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guardName := r.URL.Query().Get("guard")
		role, err := h.catalog.FindRole(r.Context(), refFrom(chi.URLParam(r, "role")), guardName)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		container, err := h.catalog.FindContainer(r.Context(), refFrom(chi.URLParam(r, "container")), role.Guard)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := op(r.Context(), role, container); err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type sectionLinkRequest struct {
	Guard      string `json:"guard"`
	Superadmin *bool  `json:"superadmin"`
}

func (h *Handler) linkSectionContainer(w http.ResponseWriter, r *http.Request) {
	var req sectionLinkRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
			return
		}
	}
	section, container, err := h.pathSectionContainer(r, req.Guard)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.LinkSectionToContainer(r.Context(), section, container, req.Superadmin); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unlinkSectionContainer(w http.ResponseWriter, r *http.Request) {
	section, container, err := h.pathSectionContainer(r, r.URL.Query().Get("guard"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UnlinkSectionFromContainer(r.Context(), section, container); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathSectionContainer(r *http.Request, guardName string) (*catalog.Section, *catalog.Container, error) {
	container, err := h.catalog.FindContainer(r.Context(), refFrom(chi.URLParam(r, "container")), guardName)
	if err != nil {
		return nil, nil, err
	}
	section, err := h.catalog.FindSection(r.Context(), refFrom(chi.URLParam(r, "section")), container.Guard)
	if err != nil {
		return nil, nil, err
	}
	return section, container, nil
}

func (h *Handler) pathActor(r *http.Request, guardName string) (guard.Actor, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "actorID"), 10, 64)
	if err != nil {
		return nil, &shared.NotFoundError{Kind: shared.KindUser}
	}
	if guardName == "" {
		guardName = h.registry.DefaultGuard()
	}
	return h.registry.Resolve(r.Context(), guard.ActorRef{Guard: guardName, ID: id})
}

// refFrom interprets a path or body value: all-digit values resolve by id,
// anything else by name.
func refFrom(v string) catalog.Ref {
	if id, err := strconv.ParseInt(v, 10, 64); err == nil {
		return catalog.ByID(id)
	}
	return catalog.ByName(v)
}
