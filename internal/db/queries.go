package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/fuel"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID generates a new ULID. IDs sort by creation time.
func NewID() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// InsertProduct stores a catalog product.
func InsertProduct(ctx context.Context, q Querier, userID string, p fuel.Product, now int64) error {
	query := `
		INSERT INTO products (id, user_id, name, carbs_per_serving, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := q.ExecContext(ctx, query, p.ID, userID, p.Name, p.CarbsPerServing, now, now); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetProduct retrieves a product by ID.
func GetProduct(ctx context.Context, q Querier, id string) (*fuel.Product, error) {
	var p fuel.Product
	err := q.QueryRowContext(ctx,
		`SELECT id, name, carbs_per_serving FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.CarbsPerServing)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("product", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &p, nil
}

// ListProducts returns a user's catalog ordered by name.
func ListProducts(ctx context.Context, q Querier, userID string) ([]fuel.Product, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, carbs_per_serving
		FROM products
		WHERE user_id = ?
		ORDER BY name COLLATE NOCASE, id
	`, userID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	products := make([]fuel.Product, 0)
	for rows.Next() {
		var p fuel.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CarbsPerServing); err != nil {
			return nil, errors.NewInternal(err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return products, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// fromNullInt64 converts a sql.NullInt64 to *int64.
func fromNullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}
