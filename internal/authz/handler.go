package authz

import (
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/guard"
	"github.com/gatewarden/gatewarden/internal/platform/httpx"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Handler exposes the check, listing and matrix endpoints.
type Handler struct {
	logger    *slog.Logger
	resolver  *Resolver
	gate      *Gate
	registry  *guard.Registry
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, gate *Gate, registry *guard.Registry) *Handler {
	return &Handler{
		logger:    logger,
		resolver:  resolver,
		gate:      gate,
		registry:  registry,
		validator: validator.New(),
	}
}

// MountRoutes registers authorization routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Get("/actors/{actorID}/permissions", h.actorPermissions)
	r.Get("/actors/{actorID}/roles", h.actorRoles)
	r.Get("/actors/{actorID}/permissions-tree", h.permissionsTree)
	r.Get("/actors/{actorID}/matrix", h.actorMatrix)
	r.Get("/matrix/roles", h.roleMatrix)
}

type checkRequest struct {
	Guard        string `json:"guard"`
	ActorID      int64  `json:"actor_id" validate:"required"`
	Permission   string `json:"permission" validate:"required"`
	Section      string `json:"section" validate:"required"`
	Container    string `json:"container" validate:"required"`
	CheckEnabled *bool  `json:"check_enabled"`
}

type checkResponse struct {
	CheckID  string `json:"check_id"`
	Decision string `json:"decision"`
	Allowed  bool   `json:"allowed"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, err := h.resolveActor(r, req.Guard, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	// checkID correlates the response with the decision log line so audits
	// can trace individual answers.
	checkID := uuid.NewString()

	var decision Decision
	if req.CheckEnabled != nil && !*req.CheckEnabled {
		// Existence query, bypassing state gates: answered by the resolver
		// directly since the gate always enforces states.
		allowed, err := h.resolver.HasPermissionTo(r.Context(), actor,
			refFrom(req.Permission), refFrom(req.Section), refFrom(req.Container), false)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		decision = Deny
		if allowed {
			decision = Allow
		}
	} else {
		decision, err = h.gate.Check(r.Context(), actor, req.Permission, refFrom(req.Section), refFrom(req.Container))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	h.logger.InfoContext(r.Context(), "authorization check",
		slog.String("check_id", checkID),
		slog.String("permission", req.Permission),
		slog.Int64("actor_id", actor.ActorID()),
		slog.String("decision", decision.String()),
	)
	httpx.JSON(w, http.StatusOK, checkResponse{CheckID: checkID, Decision: decision.String(), Allowed: decision == Allow})
}

func (h *Handler) actorPermissions(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFromPath(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	section := strings.TrimSpace(r.URL.Query().Get("section"))
	container := strings.TrimSpace(r.URL.Query().Get("container"))
	if section == "" || container == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "section and container query parameters are required")
		return
	}
	checkEnabled := queryBool(r, "check_enabled", true)

	var perms []catalog.Permission
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "all":
		perms, err = h.resolver.GetAllPermissions(r.Context(), actor, refFrom(section), refFrom(container), checkEnabled)
	case "direct":
		perms, err = h.resolver.GetDirectPermissions(r.Context(), actor, refFrom(section), refFrom(container), checkEnabled)
	case "via-roles":
		perms, err = h.resolver.GetPermissionsViaRoles(r.Context(), actor, refFrom(section), refFrom(container), checkEnabled)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "mode must be all, direct or via-roles")
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) actorRoles(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFromPath(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	names, err := h.resolver.RoleNames(r.Context(), actor, queryBool(r, "check_enabled", true))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": names})
}

func (h *Handler) permissionsTree(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFromPath(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	container := strings.TrimSpace(r.URL.Query().Get("container"))
	if container == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "container query parameter is required")
		return
	}
	tree, err := h.resolver.PermissionsTree(r.Context(), actor, refFrom(container), queryBool(r, "check_enabled", true))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sections": tree})
}

func (h *Handler) actorMatrix(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFromPath(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	section := strings.TrimSpace(r.URL.Query().Get("section"))
	container := strings.TrimSpace(r.URL.Query().Get("container"))
	if section == "" || container == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "section and container query parameters are required")
		return
	}
	row, err := h.resolver.ActorMatrixRow(r.Context(), actor, refFrom(section), refFrom(container))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) roleMatrix(w http.ResponseWriter, r *http.Request) {
	guardName := strings.TrimSpace(r.URL.Query().Get("guard"))
	if guardName == "" {
		guardName = h.registry.DefaultGuard()
	}
	section := strings.TrimSpace(r.URL.Query().Get("section"))
	container := strings.TrimSpace(r.URL.Query().Get("container"))
	if section == "" || container == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "section and container query parameters are required")
		return
	}
	matrix, err := h.resolver.RoleMatrix(r.Context(), guardName, refFrom(section), refFrom(container))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, matrix)
}

func (h *Handler) actorFromPath(r *http.Request) (guard.Actor, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "actorID"), 10, 64)
	if err != nil {
		return nil, &shared.NotFoundError{Kind: shared.KindUser}
	}
	return h.resolveActor(r, r.URL.Query().Get("guard"), id)
}

func (h *Handler) resolveActor(r *http.Request, guardName string, id int64) (guard.Actor, error) {
	guardName = strings.TrimSpace(guardName)
	if guardName == "" {
		guardName = h.registry.DefaultGuard()
	}
	return h.registry.Resolve(r.Context(), guard.ActorRef{Guard: guardName, ID: id})
}

// refFrom interprets a path or query value: all-digit values resolve by id,
// anything else by name.
func refFrom(v string) catalog.Ref {
	if id, err := strconv.ParseInt(v, 10, 64); err == nil {
		return catalog.ByID(id)
	}
	return catalog.ByName(v)
}

func queryBool(r *http.Request, key string, fallback bool) bool {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
