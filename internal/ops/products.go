package ops

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/db"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/fuel"
)

// ProductAddInput contains parameters for the ProductAdd operation.
type ProductAddInput struct {
	Name            string  // required
	CarbsPerServing float64 // required, > 0
}

// ProductListOutput contains the result of the ProductList operation.
type ProductListOutput struct {
	Items []fuel.Product `json:"items"`
}

// ProductAdd adds a product to the user's catalog.
func ProductAdd(ctx context.Context, database *sql.DB, cfg *config.Config, input ProductAddInput) (*fuel.Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.NewInvalidRequest("name is required")
	}
	if input.CarbsPerServing <= 0 || math.IsNaN(input.CarbsPerServing) || math.IsInf(input.CarbsPerServing, 0) {
		return nil, errors.NewInvalidRequest("carbs_per_serving must be greater than 0")
	}

	id, err := db.NewID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	p := fuel.Product{ID: id, Name: name, CarbsPerServing: input.CarbsPerServing}
	if err := db.InsertProduct(ctx, database, cfg.UserID, p, time.Now().Unix()); err != nil {
		return nil, err
	}
	return &p, nil
}

// ProductList returns the user's catalog ordered by name.
func ProductList(ctx context.Context, database *sql.DB, cfg *config.Config) (*ProductListOutput, error) {
	products, err := db.ListProducts(ctx, database, cfg.UserID)
	if err != nil {
		return nil, err
	}
	return &ProductListOutput{Items: products}, nil
}
