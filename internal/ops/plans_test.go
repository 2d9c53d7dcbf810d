package ops

import (
	"context"
	"testing"

	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/fuel"
)

func TestPlanCreate_SavesAllocatedPlan(t *testing.T) {
	database, cfg := setupTestDB(t)
	ctx := context.Background()
	addProduct(t, database, cfg, "Gel", 25)

	out, err := PlanCreate(ctx, database, cfg, PlanCreateInput{Name: "Long run", DurationMinutes: 120, TargetCarbs: 100})
	if err != nil {
		t.Fatalf("PlanCreate failed: %v", err)
	}
	if !out.Saved || out.PlannedSession == nil {
		t.Fatalf("Saved = %v, want saved plan", out.Saved)
	}
	if out.Plan.TotalCarbs != 100 || out.Plan.MatchPercentage != 100 {
		t.Errorf("total/match = %v/%d, want 100/100", out.Plan.TotalCarbs, out.Plan.MatchPercentage)
	}

	fetched, err := PlanFetch(ctx, database, out.PlannedSession.ID)
	if err != nil {
		t.Fatalf("PlanFetch failed: %v", err)
	}
	if len(fetched.Plan.Items) != 1 || fetched.Plan.Items[0].Quantity != 4 {
		t.Fatalf("items = %+v, want one item of quantity 4", fetched.Plan.Items)
	}
	want := []int{24, 48, 72, 96}
	for i, m := range fetched.Plan.Items[0].TimingMinutes {
		if m != want[i] {
			t.Errorf("timing[%d] = %d, want %d", i, m, want[i])
		}
	}
}

func TestPlanCreate_AllocatorErrorNotSaved(t *testing.T) {
	database, cfg := setupTestDB(t)
	ctx := context.Background()

	// empty catalog
	out, err := PlanCreate(ctx, database, cfg, PlanCreateInput{Name: "Run", DurationMinutes: 60, TargetCarbs: 60})
	if err != nil {
		t.Fatalf("PlanCreate failed: %v", err)
	}
	if out.Saved || out.Plan.Error == "" {
		t.Errorf("Saved = %v, Error = %q; want unsaved plan with error", out.Saved, out.Plan.Error)
	}

	list, err := PlanList(ctx, database, cfg, PlanListInput{})
	if err != nil {
		t.Fatalf("PlanList failed: %v", err)
	}
	if list.Pagination.Total != 0 {
		t.Errorf("Total = %d, want 0", list.Pagination.Total)
	}
}

func TestPlanCreate_Validation(t *testing.T) {
	database, cfg := setupTestDB(t)
	ctx := context.Background()

	_, err := PlanCreate(ctx, database, cfg, PlanCreateInput{DurationMinutes: 60, TargetCarbs: 60})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("missing name: err = %v, want INVALID_REQUEST", err)
	}
	for _, d := range []int{0, 3, fuel.MinDurationMinutes - 1} {
		_, err = PlanCreate(ctx, database, cfg, PlanCreateInput{Name: "x", DurationMinutes: d, TargetCarbs: 60})
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("duration %d: err = %v, want INVALID_REQUEST", d, err)
		}
	}
}

func TestPlanCreate_ProductSubset(t *testing.T) {
	database, cfg := setupTestDB(t)
	ctx := context.Background()
	addProduct(t, database, cfg, "Bar", 40)
	gel := addProduct(t, database, cfg, "Gel", 25)

	out, err := PlanCreate(ctx, database, cfg, PlanCreateInput{
		Name: "Gels only", DurationMinutes: 90, TargetCarbs: 50, ProductIDs: []string{gel.ID},
	})
	if err != nil {
		t.Fatalf("PlanCreate failed: %v", err)
	}
	if len(out.Plan.Items) != 1 || out.Plan.Items[0].ProductID != gel.ID {
		t.Errorf("items = %+v, want only the gel", out.Plan.Items)
	}

	_, err = PlanCreate(ctx, database, cfg, PlanCreateInput{
		Name: "x", DurationMinutes: 90, TargetCarbs: 50, ProductIDs: []string{"nope"},
	})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown product: err = %v, want NOT_FOUND", err)
	}
}

func TestPlanList_Pagination(t *testing.T) {
	database, cfg := setupTestDB(t)
	ctx := context.Background()
	addProduct(t, database, cfg, "Gel", 25)

	for i := 0; i < 3; i++ {
		if _, err := PlanCreate(ctx, database, cfg, PlanCreateInput{Name: "p", DurationMinutes: 60, TargetCarbs: 50}); err != nil {
			t.Fatalf("PlanCreate failed: %v", err)
		}
	}

	out, err := PlanList(ctx, database, cfg, PlanListInput{Limit: 2})
	if err != nil {
		t.Fatalf("PlanList failed: %v", err)
	}
	if len(out.Items) != 2 || !out.Pagination.HasMore || out.Pagination.Total != 3 {
		t.Errorf("got %d items, pagination %+v", len(out.Items), out.Pagination)
	}
}

func TestPlanSetQuantity_ManualEdit(t *testing.T) {
	database, cfg := setupTestDB(t)
	ctx := context.Background()
	gel := addProduct(t, database, cfg, "Gel", 25)

	out, err := PlanCreate(ctx, database, cfg, PlanCreateInput{Name: "Run", DurationMinutes: 120, TargetCarbs: 100})
	if err != nil {
		t.Fatalf("PlanCreate failed: %v", err)
	}

	ps, err := PlanSetQuantity(ctx, database, PlanSetQuantityInput{PlanID: out.PlannedSession.ID, ProductID: gel.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("PlanSetQuantity failed: %v", err)
	}
	if ps.Plan.TotalCarbs != 50 || ps.Plan.MatchPercentage != 50 {
		t.Errorf("total/match = %v/%d, want 50/50", ps.Plan.TotalCarbs, ps.Plan.MatchPercentage)
	}
	if got := ps.Plan.Items[0].TimingMinutes; len(got) != 2 {
		t.Errorf("timing = %v, want 2 entries", got)
	}
	if ps.Plan.Warning == "" {
		t.Error("expected a below-target warning")
	}

	// persisted
	fetched, err := PlanFetch(ctx, database, ps.ID)
	if err != nil {
		t.Fatalf("PlanFetch failed: %v", err)
	}
	if fetched.Plan.TotalCarbs != 50 {
		t.Errorf("persisted total = %v, want 50", fetched.Plan.TotalCarbs)
	}
}

func TestPlanSetQuantity_ClampsAndRemoves(t *testing.T) {
	database, cfg := setupTestDB(t)
	ctx := context.Background()
	gel := addProduct(t, database, cfg, "Gel", 25)
	bar := addProduct(t, database, cfg, "Bar", 40)

	out, err := PlanCreate(ctx, database, cfg, PlanCreateInput{
		Name: "Run", DurationMinutes: 120, TargetCarbs: 50, ProductIDs: []string{gel.ID},
	})
	if err != nil {
		t.Fatalf("PlanCreate failed: %v", err)
	}
	id := out.PlannedSession.ID

	// add a catalog product that was not selected, over the cap
	ps, err := PlanSetQuantity(ctx, database, PlanSetQuantityInput{PlanID: id, ProductID: bar.ID, Quantity: 9})
	if err != nil {
		t.Fatalf("PlanSetQuantity failed: %v", err)
	}
	if len(ps.Plan.Items) != 2 || ps.Plan.Items[1].Quantity != fuel.MaxQuantity {
		t.Fatalf("items = %+v, want bar appended at max quantity", ps.Plan.Items)
	}

	// zero removes
	ps, err = PlanSetQuantity(ctx, database, PlanSetQuantityInput{PlanID: id, ProductID: gel.ID, Quantity: 0})
	if err != nil {
		t.Fatalf("PlanSetQuantity failed: %v", err)
	}
	if len(ps.Plan.Items) != 1 || ps.Plan.Items[0].ProductID != bar.ID {
		t.Errorf("items = %+v, want only the bar", ps.Plan.Items)
	}
	if ps.Plan.TotalCarbs != 200 {
		t.Errorf("total = %v, want 200", ps.Plan.TotalCarbs)
	}
}

func TestPlanSetQuantity_NotFound(t *testing.T) {
	database, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := PlanSetQuantity(ctx, database, PlanSetQuantityInput{PlanID: "missing", ProductID: "p", Quantity: 1})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
	_, err = PlanSetQuantity(ctx, database, PlanSetQuantityInput{ProductID: "p", Quantity: 1})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}
