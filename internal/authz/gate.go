package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/guard"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Decision is a three-valued gate outcome. Abstain means the gate has no
// opinion (unknown permission or section) and the caller's fallback logic
// should run; it must not be collapsed into Deny.
type Decision int

const (
	Abstain Decision = iota
	Allow
	Deny
)

// String implements fmt.Stringer for logging and metrics labels.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "abstain"
	}
}

// DecisionRecorder observes gate outcomes, typically a metrics counter.
type DecisionRecorder interface {
	RecordDecision(decision string)
}

// nopRecorder is used when no metrics sink is wired.
type nopRecorder struct{}

func (nopRecorder) RecordDecision(string) {}

// Gate is the authorization entry point for callers that speak in ability
// names and loosely typed scope arguments, mirroring a before-hook: it runs
// ahead of any other authorization logic and abstains when the ability is not
// one it manages.
type Gate struct {
	resolver *Resolver
	recorder DecisionRecorder
	logger   *slog.Logger
}

// NewGate constructs a gate. recorder may be nil.
func NewGate(resolver *Resolver, recorder DecisionRecorder, logger *slog.Logger) *Gate {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Gate{resolver: resolver, recorder: recorder, logger: logger}
}

// Check evaluates ability for actor within scope. Scope must be exactly
// (section, container); any other shape is a hard MalformedScopeError, not an
// abstain, because it is a programming error at the call site.
//
// An unknown permission, section or container makes the gate abstain: the
// ability is simply not one this system manages. Guard mismatches and
// infrastructure errors propagate.
func (g *Gate) Check(ctx context.Context, actor guard.Actor, ability string, scope ...any) (Decision, error) {
	if len(scope) != 2 {
		return Abstain, &shared.MalformedScopeError{Got: len(scope)}
	}
	sectionRef, err := scopeRef(scope[0])
	if err != nil {
		return Abstain, err
	}
	containerRef, err := scopeRef(scope[1])
	if err != nil {
		return Abstain, err
	}

	super, err := g.resolver.IsSuperuser(ctx, actor)
	if err != nil {
		return Abstain, err
	}
	if super {
		g.record(ctx, actor, ability, Allow)
		return Allow, nil
	}

	allowed, err := g.resolver.HasPermissionTo(ctx, actor, catalog.ByName(ability), sectionRef, containerRef, true)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			g.record(ctx, actor, ability, Abstain)
			return Abstain, nil
		}
		return Abstain, err
	}
	if allowed {
		g.record(ctx, actor, ability, Allow)
		return Allow, nil
	}
	g.record(ctx, actor, ability, Deny)
	return Deny, nil
}

// Authorize is Check collapsed to an error: Deny and Abstain both become
// UnauthorizedError, for callers that have no fallback logic of their own.
func (g *Gate) Authorize(ctx context.Context, actor guard.Actor, ability string, scope ...any) error {
	decision, err := g.Check(ctx, actor, ability, scope...)
	if err != nil {
		return err
	}
	if decision != Allow {
		return &shared.UnauthorizedError{Permission: ability}
	}
	return nil
}

func (g *Gate) record(ctx context.Context, actor guard.Actor, ability string, d Decision) {
	g.recorder.RecordDecision(d.String())
	g.logger.DebugContext(ctx, "gate decision",
		slog.String("ability", ability),
		slog.String("guard", actor.GuardName()),
		slog.Int64("actor_id", actor.ActorID()),
		slog.String("decision", d.String()),
	)
}

// scopeRef coerces a loosely typed scope argument into a catalog ref. Strings
// resolve by name, integers by id, and resolved entities pass through by id.
func scopeRef(arg any) (catalog.Ref, error) {
	switch v := arg.(type) {
	case catalog.Ref:
		return v, nil
	case string:
		return catalog.ByName(v), nil
	case int:
		return catalog.ByID(int64(v)), nil
	case int64:
		return catalog.ByID(v), nil
	case *catalog.Section:
		return catalog.ByID(v.ID), nil
	case *catalog.Container:
		return catalog.ByID(v.ID), nil
	default:
		return catalog.Ref{}, &shared.MalformedScopeError{Reason: fmt.Sprintf("unsupported scope argument type %T", arg)}
	}
}
