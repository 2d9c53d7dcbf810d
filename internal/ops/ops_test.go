package ops

import (
	"context"
	"database/sql"
	"testing"

	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/db"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/fuel"
)

func setupTestDB(t *testing.T) (*sql.DB, *config.Config) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, config.DefaultConfig()
}

func addProduct(t *testing.T, database *sql.DB, cfg *config.Config, name string, carbs float64) *fuel.Product {
	t.Helper()
	p, err := ProductAdd(context.Background(), database, cfg, ProductAddInput{Name: name, CarbsPerServing: carbs})
	if err != nil {
		t.Fatalf("ProductAdd failed: %v", err)
	}
	return p
}

func TestPage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultListLimit, 0},
		{-5, -1, DefaultListLimit, 0},
		{500, 10, MaxListLimit, 10},
		{7, 3, 7, 3},
	}
	for _, tc := range tests {
		limit, offset := page(tc.limit, tc.offset)
		if limit != tc.wantLimit || offset != tc.wantOffset {
			t.Errorf("page(%d, %d) = (%d, %d), want (%d, %d)",
				tc.limit, tc.offset, limit, offset, tc.wantLimit, tc.wantOffset)
		}
	}
}

func TestNewPagination_HasMore(t *testing.T) {
	p := newPagination(2, 0, 2, 5)
	if !p.HasMore {
		t.Error("HasMore = false, want true")
	}
	p = newPagination(2, 4, 1, 5)
	if p.HasMore {
		t.Error("HasMore = true, want false")
	}
}

func TestCleanOptionalString(t *testing.T) {
	if cleanOptionalString(nil) != nil {
		t.Error("nil should stay nil")
	}
	blank := "   "
	if cleanOptionalString(&blank) != nil {
		t.Error("blank should become nil")
	}
	padded := "  hi "
	if got := cleanOptionalString(&padded); got == nil || *got != "hi" {
		t.Errorf("got %v, want \"hi\"", got)
	}
}

func TestProductAdd_AndList(t *testing.T) {
	database, cfg := setupTestDB(t)

	addProduct(t, database, cfg, "maurten gel", 25)
	addProduct(t, database, cfg, "Banana", 27)

	out, err := ProductList(context.Background(), database, cfg)
	if err != nil {
		t.Fatalf("ProductList failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(out.Items))
	}
	if out.Items[0].Name != "Banana" {
		t.Errorf("Items[0].Name = %q, want Banana (case-insensitive order)", out.Items[0].Name)
	}
}

func TestProductAdd_Validation(t *testing.T) {
	database, cfg := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input ProductAddInput
	}{
		{"empty name", ProductAddInput{Name: "  ", CarbsPerServing: 20}},
		{"zero carbs", ProductAddInput{Name: "Gel", CarbsPerServing: 0}},
		{"negative carbs", ProductAddInput{Name: "Gel", CarbsPerServing: -3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ProductAdd(ctx, database, cfg, tc.input)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("err = %v, want INVALID_REQUEST", err)
			}
		})
	}
}
