package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/db"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/session"
)

// SessionListInput contains parameters for the SessionList operation.
type SessionListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// SessionListOutput contains the result of the SessionList operation.
type SessionListOutput struct {
	Items      []*activity.SessionLog `json:"items"`
	Pagination Pagination             `json:"pagination"`
	Sort       string                 `json:"sort"`
}

// SessionList returns sessions of any status, newest first.
func SessionList(ctx context.Context, database *sql.DB, cfg *config.Config, input SessionListInput) (*SessionListOutput, error) {
	limit, offset := page(input.Limit, input.Offset)

	items, err := db.ListSessions(ctx, database, cfg.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := db.CountSessions(ctx, database, cfg.UserID)
	if err != nil {
		return nil, err
	}
	return &SessionListOutput{
		Items:      items,
		Pagination: newPagination(limit, offset, len(items), total),
		Sort:       "started_at_desc",
	}, nil
}

// SessionFetch loads a session of any status with its events and plan.
func SessionFetch(ctx context.Context, recovery *session.RecoveryManager, id string) (*session.RecoveryData, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return recovery.LoadFull(ctx, id)
}

// SessionNotesInput contains parameters for the SessionNotes operation.
type SessionNotesInput struct {
	ID    string  // required
	Notes *string // nil or blank clears the notes
}

// SessionNotes replaces a session's closing notes.
func SessionNotes(ctx context.Context, database *sql.DB, store *session.CheckpointStore, input SessionNotesInput) (*activity.SessionLog, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	if err := store.UpdateNotes(ctx, id, cleanOptionalString(input.Notes)); err != nil {
		return nil, err
	}
	return db.GetSession(ctx, database, id)
}

// EventDeleteInput contains parameters for the EventDelete operation.
type EventDeleteInput struct {
	SessionID string // required
	EventID   string // required
}

// EventDelete removes a mistakenly logged event from a session.
func EventDelete(ctx context.Context, store *session.CheckpointStore, input EventDeleteInput) error {
	if strings.TrimSpace(input.SessionID) == "" || strings.TrimSpace(input.EventID) == "" {
		return errors.NewInvalidRequest("session_id and event_id are required")
	}
	return store.DeleteEvent(ctx, strings.TrimSpace(input.SessionID), strings.TrimSpace(input.EventID))
}

// IntakeInput contains parameters for the Intake operation.
type IntakeInput struct {
	ProductID     string   // catalog product; optional when ProductName is set
	ProductName   string   // defaults to the catalog name
	Quantity      *int     // default: 1
	CarbsConsumed *float64 // default: quantity × catalog carbs per serving
	Planned       bool
}

// Intake builds an intake payload, filling name and carbs from the catalog
// when a product id is given.
func Intake(ctx context.Context, database *sql.DB, input IntakeInput) (*activity.Intake, error) {
	p := &activity.Intake{
		ProductID:   strings.TrimSpace(input.ProductID),
		ProductName: strings.TrimSpace(input.ProductName),
		Quantity:    1,
		Planned:     input.Planned,
	}
	if input.Quantity != nil {
		p.Quantity = *input.Quantity
	}

	var perServing float64
	if p.ProductID != "" {
		product, err := db.GetProduct(ctx, database, p.ProductID)
		if err != nil {
			return nil, err
		}
		if p.ProductName == "" {
			p.ProductName = product.Name
		}
		perServing = product.CarbsPerServing
	}
	if input.CarbsConsumed != nil {
		p.CarbsConsumed = *input.CarbsConsumed
	} else {
		p.CarbsConsumed = float64(p.Quantity) * perServing
	}

	if err := p.Validate(); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return p, nil
}
