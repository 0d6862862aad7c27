package sectiontree

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Service performs the tree mutations: add, move and field changes. Every
// mutation validates against the live tree, executes atomically and flushes
// the registrar cache.
type Service struct {
	store   Store
	catalog *catalog.Service
	builder *Builder
	logger  *slog.Logger
}

// NewService constructs the tree service.
func NewService(store Store, cat *catalog.Service, builder *Builder, logger *slog.Logger) *Service {
	return &Service{store: store, catalog: cat, builder: builder, logger: logger}
}

// Builder exposes the read side.
func (s *Service) Builder() *Builder { return s.builder }

func (s *Service) forget(ctx context.Context) {
	if err := s.catalog.Registrar().ForgetCached(ctx); err != nil {
		s.logger.Warn("forget cached catalog", slog.Any("error", err))
	}
}

// AddInput describes a new section appended as the last child of its parent.
type AddInput struct {
	Guard      string
	Code       string
	Name       string
	Locale     string
	State      catalog.State
	Superadmin bool
	ParentID   *int64
}

// Add creates the section at order max(siblings)+1, or 0 for an empty group.
// A (code, guard) collision surfaces as AlreadyExistsError so the caller can
// distinguish it from plain validation failures.
func (s *Service) Add(ctx context.Context, in AddInput) (*catalog.Section, error) {
	guardName := in.Guard
	if guardName == "" {
		guardName = s.catalog.DefaultGuard()
	}
	max, any, err := s.store.MaxSiblingOrder(ctx, guardName, in.ParentID)
	if err != nil {
		return nil, err
	}
	order := 0
	if any {
		order = max + 1
	}
	superadmin := in.Superadmin
	return s.catalog.CreateSection(ctx, catalog.CreateInput{
		Guard: guardName,
		Name:  in.Code,
		Label: catalog.Label{in.Locale: in.Name},
		State: in.State,
	}, &superadmin, in.ParentID, order)
}

// MoveInput describes a reposition. Siblings and PreSiblings are the ids the
// caller believes sit after and before the insertion point, in visual order.
type MoveInput struct {
	SectionID   int64
	ParentID    *int64
	Position    int
	Siblings    []int64
	PreSiblings []int64
}

// Move repositions a section under a new parent. The claimed sibling sets
// must exist and share the destination parent, and the destination must not
// sit inside the moved section's own subtree; any violation rejects the move
// with the tree untouched.
func (s *Service) Move(ctx context.Context, guardName string, in MoveInput) error {
	section, err := s.catalog.FindSection(ctx, catalog.ByID(in.SectionID), guardName)
	if err != nil {
		return err
	}
	if section.Guard != guardName {
		return &shared.GuardMismatchError{Kind: shared.KindSection, Expected: guardName, Got: section.Guard}
	}

	if in.ParentID != nil {
		parent, err := s.catalog.FindSection(ctx, catalog.ByID(*in.ParentID), guardName)
		if err != nil {
			return err
		}
		if parent.Guard != guardName {
			return &shared.GuardMismatchError{Kind: shared.KindSection, Expected: guardName, Got: parent.Guard}
		}
		if err := s.ensureNoCycle(ctx, section.ID, parent); err != nil {
			return err
		}
	}

	if err := s.validateSiblings(ctx, in.ParentID, in.SectionID, in.PreSiblings, in.Siblings); err != nil {
		return err
	}

	if err := s.store.Reposition(ctx, Reposition{
		SectionID:   in.SectionID,
		ParentID:    in.ParentID,
		Position:    in.Position,
		PreSiblings: in.PreSiblings,
		Siblings:    in.Siblings,
	}); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// ensureNoCycle walks the destination parent's ancestor chain; reaching the
// moved section means the move would fold the subtree into itself.
func (s *Service) ensureNoCycle(ctx context.Context, movedID int64, parent *catalog.Section) error {
	sections, err := s.catalog.Registrar().GetSections(ctx)
	if err != nil {
		return err
	}
	byID := make(map[int64]*catalog.Section, len(sections))
	for i := range sections {
		byID[sections[i].ID] = &sections[i]
	}

	seen := make(map[int64]bool)
	cur := parent
	for cur != nil {
		if cur.ID == movedID {
			return fmt.Errorf("%w: section %d cannot become a descendant of itself", shared.ErrSectionCycle, movedID)
		}
		if seen[cur.ID] {
			return fmt.Errorf("%w: section %d participates in a parent cycle", shared.ErrSectionCycle, cur.ID)
		}
		seen[cur.ID] = true
		if cur.ParentID == nil {
			return nil
		}
		cur = byID[*cur.ParentID]
	}
	return nil
}

// validateSiblings checks that every claimed sibling exists and already sits
// under the destination parent.
func (s *Service) validateSiblings(ctx context.Context, parentID *int64, movedID int64, preSiblings, siblings []int64) error {
	ids := make([]int64, 0, len(preSiblings)+len(siblings))
	ids = append(ids, preSiblings...)
	ids = append(ids, siblings...)
	if len(ids) == 0 {
		return nil
	}
	parents, err := s.store.SiblingParents(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == movedID {
			return fmt.Errorf("%w: section %d cannot appear in its own sibling list", shared.ErrValidation, id)
		}
		got, ok := parents[id]
		if !ok {
			return &shared.NotFoundError{Kind: shared.KindSection, ID: id}
		}
		if !sameParent(got, parentID) {
			return fmt.Errorf("%w: section %d does not share the destination parent", shared.ErrValidation, id)
		}
	}
	return nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// RenameSection changes the section's code, rejecting (code, guard)
// collisions with a distinguishable error.
func (s *Service) RenameSection(ctx context.Context, guardName string, sectionID int64, code string) error {
	section, err := s.findOwned(ctx, guardName, sectionID)
	if err != nil {
		return err
	}
	if _, err := s.catalog.FindSection(ctx, catalog.ByName(code), guardName); err == nil {
		return &shared.AlreadyExistsError{Kind: shared.KindSection, Name: code, Guard: guardName}
	}
	section.Name = code
	return s.catalog.UpdateSection(ctx, section)
}

// RelabelSection merges one locale's display text into the section label.
func (s *Service) RelabelSection(ctx context.Context, guardName string, sectionID int64, locale, text string) error {
	section, err := s.findOwned(ctx, guardName, sectionID)
	if err != nil {
		return err
	}
	section.Label = section.Label.Merge(locale, text)
	return s.catalog.UpdateSection(ctx, section)
}

// SetSectionState toggles the section between enabled and disabled.
func (s *Service) SetSectionState(ctx context.Context, guardName string, sectionID int64, state catalog.State) error {
	if !state.Valid() {
		return fmt.Errorf("%w: unknown state %d", shared.ErrValidation, state)
	}
	section, err := s.findOwned(ctx, guardName, sectionID)
	if err != nil {
		return err
	}
	section.State = state
	return s.catalog.UpdateSection(ctx, section)
}

// SetSectionSuperadmin changes the section's own superadmin default.
func (s *Service) SetSectionSuperadmin(ctx context.Context, guardName string, sectionID int64, superadmin bool) error {
	section, err := s.findOwned(ctx, guardName, sectionID)
	if err != nil {
		return err
	}
	section.Superadmin = &superadmin
	return s.catalog.UpdateSection(ctx, section)
}

func (s *Service) findOwned(ctx context.Context, guardName string, sectionID int64) (*catalog.Section, error) {
	section, err := s.catalog.FindSection(ctx, catalog.ByID(sectionID), guardName)
	if err != nil {
		return nil, err
	}
	if section.Guard != guardName {
		return nil, &shared.GuardMismatchError{Kind: shared.KindSection, Expected: guardName, Got: section.Guard}
	}
	return section, nil
}
