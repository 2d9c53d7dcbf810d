package activity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType tags the payload variant of an event.
type EventType string

const (
	EventIntake     EventType = "intake"
	EventDiscomfort EventType = "discomfort"
	EventNote       EventType = "note"
)

// Payload is the closed set of event bodies: *Intake, *Discomfort, *Note.
type Payload interface {
	Type() EventType
	Validate() error
	sealed()
}

// Intake records carbohydrate consumed during the session.
type Intake struct {
	ProductID     string  `json:"product_id,omitempty"`
	ProductName   string  `json:"product_name"`
	Quantity      int     `json:"quantity"`
	CarbsConsumed float64 `json:"carbs_consumed"`
	Planned       bool    `json:"planned"`
}

// Discomfort records a gastrointestinal symptom report.
type Discomfort struct {
	Severity int    `json:"severity"`
	Symptom  string `json:"symptom,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Note is free text logged mid-session.
type Note struct {
	Text string `json:"text"`
}

func (*Intake) Type() EventType     { return EventIntake }
func (*Discomfort) Type() EventType { return EventDiscomfort }
func (*Note) Type() EventType       { return EventNote }

func (*Intake) sealed()     {}
func (*Discomfort) sealed() {}
func (*Note) sealed()       {}

// Validate checks intake fields.
func (p *Intake) Validate() error {
	if p.Quantity < 1 {
		return fmt.Errorf("intake quantity must be at least 1, got %d", p.Quantity)
	}
	if p.CarbsConsumed < 0 {
		return fmt.Errorf("intake carbs must not be negative")
	}
	if strings.TrimSpace(p.ProductID) == "" && strings.TrimSpace(p.ProductName) == "" {
		return fmt.Errorf("intake needs a product id or name")
	}
	return nil
}

// Validate checks the severity scale.
func (p *Discomfort) Validate() error {
	if p.Severity < 1 || p.Severity > 5 {
		return fmt.Errorf("severity must be between 1 and 5, got %d", p.Severity)
	}
	return nil
}

// Validate requires non-empty text.
func (p *Note) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("note text is required")
	}
	return nil
}

// Event is an append-only record within a session, positioned by its
// offset from the session start.
type Event struct {
	ID            string  `json:"id"`
	SessionID     string  `json:"session_id"`
	OffsetSeconds int     `json:"offset_seconds"`
	Payload       Payload `json:"-"`
	CreatedAt     int64   `json:"created_at"`
}

// Type returns the tag of the event's payload.
func (e Event) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Type()
}

// MarshalJSON flattens the payload next to its type tag.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		plain
		Type    EventType `json:"type"`
		Payload Payload   `json:"payload"`
	}{plain(e), e.Type(), e.Payload})
}

// EncodePayload serializes a payload for the storage boundary.
func EncodePayload(p Payload) (EventType, string, error) {
	if p == nil {
		return "", "", fmt.Errorf("event payload is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", "", err
	}
	return p.Type(), string(data), nil
}

// DecodePayload rebuilds a payload from its stored type tag and JSON body.
func DecodePayload(t EventType, raw string) (Payload, error) {
	var p Payload
	switch t {
	case EventIntake:
		p = &Intake{}
	case EventDiscomfort:
		p = &Discomfort{}
	case EventNote:
		p = &Note{}
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
	}
	return p, nil
}
