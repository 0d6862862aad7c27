package sectiontree

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewarden/gatewarden/internal/platform/db"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Store is the persistence slice the tree mutations need beyond the catalog:
// batch sibling loads, order computation and the atomic reposition.
type Store interface {
	SiblingParents(ctx context.Context, ids []int64) (map[int64]*int64, error)
	MaxSiblingOrder(ctx context.Context, guardName string, parentID *int64) (int, bool, error)
	Reposition(ctx context.Context, move Reposition) error
}

// Reposition is the atomic move payload: the target section's new parent and
// position, plus the sibling ids on both sides of the insertion point in
// visual order.
type Reposition struct {
	SectionID   int64
	ParentID    *int64
	Position    int
	PreSiblings []int64
	Siblings    []int64
}

// Repository implements Store over pgx.
type Repository struct {
	db     *pgxpool.Pool
	schema shared.SchemaConfig
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, schema shared.SchemaConfig) *Repository {
	return &Repository{db: pool, schema: schema}
}

// SiblingParents loads parent_id per section id, for validating that a
// claimed sibling set actually shares the destination parent. Missing ids are
// absent from the result.
func (r *Repository) SiblingParents(ctx context.Context, ids []int64) (map[int64]*int64, error) {
	out := make(map[int64]*int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT id, parent_id FROM %s WHERE id = ANY($1)`, r.schema.Sections)
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("sectiontree: sibling parents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id     int64
			parent *int64
		)
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, fmt.Errorf("sectiontree: scan sibling: %w", err)
		}
		out[id] = parent
	}
	return out, rows.Err()
}

// MaxSiblingOrder returns the highest sort_order within a sibling group and
// whether the group has any members.
func (r *Repository) MaxSiblingOrder(ctx context.Context, guardName string, parentID *int64) (int, bool, error) {
	var query string
	var row pgx.Row
	if parentID == nil {
		query = fmt.Sprintf(`SELECT COALESCE(MAX(sort_order), -1) FROM %s WHERE guard_name = $1 AND parent_id IS NULL`, r.schema.Sections)
		row = r.db.QueryRow(ctx, query, guardName)
	} else {
		query = fmt.Sprintf(`SELECT COALESCE(MAX(sort_order), -1) FROM %s WHERE guard_name = $1 AND parent_id = $2`, r.schema.Sections)
		row = r.db.QueryRow(ctx, query, guardName, *parentID)
	}
	var max int
	if err := row.Scan(&max); err != nil {
		return 0, false, fmt.Errorf("sectiontree: max sibling order: %w", err)
	}
	if max < 0 {
		return 0, false, nil
	}
	return max, true, nil
}

// Reposition applies the move in one transaction: the section takes the
// target parent and position, pre-siblings are renumbered downward from
// position-1 in reverse visual order, siblings upward from position+1. A
// failure at any step rolls the whole reorder back.
func (r *Repository) Reposition(ctx context.Context, move Reposition) error {
	now := time.Now().UTC()
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		moveQuery := fmt.Sprintf(`UPDATE %s SET parent_id = $1, sort_order = $2, updated_at = $3 WHERE id = $4`, r.schema.Sections)
		tag, err := tx.Exec(ctx, moveQuery, move.ParentID, move.Position, now, move.SectionID)
		if err != nil {
			return fmt.Errorf("sectiontree: move section: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return &shared.NotFoundError{Kind: shared.KindSection, ID: move.SectionID}
		}

		orderQuery := fmt.Sprintf(`UPDATE %s SET sort_order = $1, updated_at = $2 WHERE id = $3`, r.schema.Sections)

		index := move.Position - 1
		for i := len(move.PreSiblings) - 1; i >= 0; i-- {
			if _, err := tx.Exec(ctx, orderQuery, index, now, move.PreSiblings[i]); err != nil {
				return fmt.Errorf("sectiontree: renumber pre-sibling: %w", err)
			}
			index--
		}

		index = move.Position + 1
		for _, id := range move.Siblings {
			if _, err := tx.Exec(ctx, orderQuery, index, now, id); err != nil {
				return fmt.Errorf("sectiontree: renumber sibling: %w", err)
			}
			index++
		}
		return nil
	})
}
