package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/db"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/fuel"
)

// PlanCreateInput contains parameters for the PlanCreate operation.
type PlanCreateInput struct {
	Name            string   // required
	DurationMinutes int      // required, >= fuel.MinDurationMinutes
	TargetCarbs     float64  // passed to the allocator as is
	ProductIDs      []string // optional subset of the catalog; default: all
}

// PlanCreateOutput contains the result of the PlanCreate operation.
// Saved is false when the allocator reported an error; the plan is still
// returned so the caller can show it.
type PlanCreateOutput struct {
	PlannedSession *activity.PlannedSession `json:"planned_session,omitempty"`
	Plan           fuel.Plan                `json:"plan"`
	Saved          bool                     `json:"saved"`
}

// PlanCreate allocates a plan from the catalog and saves it.
func PlanCreate(ctx context.Context, database *sql.DB, cfg *config.Config, input PlanCreateInput) (*PlanCreateOutput, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.NewInvalidRequest("name is required")
	}
	if input.DurationMinutes < fuel.MinDurationMinutes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("duration_minutes must be at least %d", fuel.MinDurationMinutes))
	}

	products, err := catalogSubset(ctx, database, cfg.UserID, input.ProductIDs)
	if err != nil {
		return nil, err
	}

	plan := fuel.Allocate(input.TargetCarbs, input.DurationMinutes, products)
	if plan.Error != "" {
		return &PlanCreateOutput{Plan: plan}, nil
	}

	id, err := db.NewID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	ps := &activity.PlannedSession{
		ID:              id,
		UserID:          cfg.UserID,
		Name:            name,
		DurationMinutes: input.DurationMinutes,
		Plan:            plan,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := db.InsertPlannedSession(ctx, database, ps); err != nil {
		return nil, err
	}
	return &PlanCreateOutput{PlannedSession: ps, Plan: plan, Saved: true}, nil
}

// PlanFetch retrieves a saved plan by ID.
func PlanFetch(ctx context.Context, database *sql.DB, id string) (*activity.PlannedSession, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetPlannedSession(ctx, database, id)
}

// PlanListInput contains parameters for the PlanList operation.
type PlanListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// PlanListOutput contains the result of the PlanList operation.
type PlanListOutput struct {
	Items      []*activity.PlannedSession `json:"items"`
	Pagination Pagination                 `json:"pagination"`
}

// PlanList returns saved plans, newest first.
func PlanList(ctx context.Context, database *sql.DB, cfg *config.Config, input PlanListInput) (*PlanListOutput, error) {
	limit, offset := page(input.Limit, input.Offset)

	items, err := db.ListPlannedSessions(ctx, database, cfg.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := db.CountPlannedSessions(ctx, database, cfg.UserID)
	if err != nil {
		return nil, err
	}
	return &PlanListOutput{
		Items:      items,
		Pagination: newPagination(limit, offset, len(items), total),
	}, nil
}

// PlanSetQuantityInput contains parameters for the PlanSetQuantity operation.
type PlanSetQuantityInput struct {
	PlanID    string // required
	ProductID string // required; a catalog product not yet in the plan is added
	Quantity  int    // clamped to 0..fuel.MaxQuantity; 0 removes the item
}

// PlanSetQuantity applies a manual quantity edit and re-derives the totals.
// Selection is not re-run: other items keep their quantities and order.
func PlanSetQuantity(ctx context.Context, database *sql.DB, input PlanSetQuantityInput) (*activity.PlannedSession, error) {
	if strings.TrimSpace(input.PlanID) == "" {
		return nil, errors.NewInvalidRequest("plan_id is required")
	}
	if strings.TrimSpace(input.ProductID) == "" {
		return nil, errors.NewInvalidRequest("product_id is required")
	}

	var updated *activity.PlannedSession
	err := db.WithTx(ctx, database, func(tx *sql.Tx) error {
		ps, err := db.GetPlannedSession(ctx, tx, input.PlanID)
		if err != nil {
			return err
		}

		items := make([]fuel.Item, len(ps.Plan.Items))
		copy(items, ps.Plan.Items)

		found := false
		for i := range items {
			if items[i].ProductID == input.ProductID {
				items[i] = fuel.SetQuantity(items[i], input.Quantity, ps.DurationMinutes)
				found = true
				break
			}
		}
		if !found {
			if input.Quantity <= 0 {
				return errors.NewNotFound("plan item", input.ProductID)
			}
			p, err := db.GetProduct(ctx, tx, input.ProductID)
			if err != nil {
				return err
			}
			item := fuel.Item{ProductID: p.ID, ProductName: p.Name, CarbsPerServing: p.CarbsPerServing}
			items = append(items, fuel.SetQuantity(item, input.Quantity, ps.DurationMinutes))
		}

		plan := fuel.Recalculate(items, ps.Plan.TargetCarbs)
		now := time.Now().Unix()
		if err := db.UpdatePlannedSessionPlan(ctx, tx, ps.ID, plan, now); err != nil {
			return err
		}
		ps.Plan = plan
		ps.UpdatedAt = now
		updated = ps
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// catalogSubset loads the catalog, restricted to ids when given.
func catalogSubset(ctx context.Context, database *sql.DB, userID string, ids []string) ([]fuel.Product, error) {
	products, err := db.ListProducts(ctx, database, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return products, nil
	}

	byID := make(map[string]fuel.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	subset := make([]fuel.Product, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		p, ok := byID[id]
		if !ok {
			return nil, errors.NewNotFound("product", id)
		}
		seen[id] = true
		subset = append(subset, p)
	}
	return subset, nil
}
