package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/ops"
	"github.com/toreaa/ultra-gi-sub000/internal/session"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	lc  *session.Lifecycle
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, lc *session.Lifecycle) *Handlers {
	return &Handlers{db: db, cfg: cfg, lc: lc}
}

// Request types for each tool

// ProductAddRequest represents the arguments for product_add.
type ProductAddRequest struct {
	Name            string  `json:"name"`
	CarbsPerServing float64 `json:"carbs_per_serving"`
}

// PlanCreateRequest represents the arguments for plan_create.
type PlanCreateRequest struct {
	Name            string   `json:"name"`
	DurationMinutes int      `json:"duration_minutes"`
	TargetCarbs     float64  `json:"target_carbs"`
	ProductIDs      []string `json:"product_ids,omitempty"`
}

// IDRequest represents the arguments for tools addressing one record.
type IDRequest struct {
	ID string `json:"id"`
}

// PageRequest represents the arguments for list tools.
type PageRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// PlanSetQuantityRequest represents the arguments for plan_set_quantity.
type PlanSetQuantityRequest struct {
	PlanID    string `json:"plan_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// SessionStartRequest represents the arguments for session_start.
type SessionStartRequest struct {
	PlannedSessionID *string `json:"planned_session_id,omitempty"`
}

// LogEventRequest represents the arguments for session_log_event.
// Fields apply to the payload named by Type.
type LogEventRequest struct {
	Type string `json:"type"`

	ProductID     string   `json:"product_id,omitempty"`
	ProductName   string   `json:"product_name,omitempty"`
	Quantity      *int     `json:"quantity,omitempty"`
	CarbsConsumed *float64 `json:"carbs_consumed,omitempty"`
	Planned       bool     `json:"planned,omitempty"`

	Severity int    `json:"severity,omitempty"`
	Symptom  string `json:"symptom,omitempty"`
	Notes    string `json:"notes,omitempty"`

	Text string `json:"text,omitempty"`
}

// SessionEndRequest represents the arguments for session_end.
type SessionEndRequest struct {
	Notes string `json:"notes,omitempty"`
}

// SessionAbandonRequest represents the arguments for session_abandon.
type SessionAbandonRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// SessionRecoverRequest represents the arguments for session_recover.
type SessionRecoverRequest struct {
	SessionID string `json:"session_id"`
}

// SessionNotesRequest represents the arguments for session_notes.
type SessionNotesRequest struct {
	ID    string  `json:"id"`
	Notes *string `json:"notes,omitempty"`
}

// DeleteEventRequest represents the arguments for session_delete_event.
type DeleteEventRequest struct {
	SessionID string `json:"session_id"`
	EventID   string `json:"event_id"`
}

// ExportRequest represents the arguments for session_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// StatusOutput is the result of session_status.
type StatusOutput struct {
	Lifecycle  session.Status              `json:"lifecycle"`
	Recovery   *session.Inspection         `json:"recovery"`
	Suggestion *session.RecoverableSession `json:"suggestion,omitempty"`
}

// Handler implementations

// HandleProductList handles the product_list tool call.
func (h *Handlers) HandleProductList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ProductList(ctx, h.db, h.cfg)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleProductAdd handles the product_add tool call.
func (h *Handlers) HandleProductAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProductAddRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ProductAdd(ctx, h.db, h.cfg, ops.ProductAddInput{
		Name:            input.Name,
		CarbsPerServing: input.CarbsPerServing,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePlanCreate handles the plan_create tool call.
func (h *Handlers) HandlePlanCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PlanCreateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.PlanCreate(ctx, h.db, h.cfg, ops.PlanCreateInput{
		Name:            input.Name,
		DurationMinutes: input.DurationMinutes,
		TargetCarbs:     input.TargetCarbs,
		ProductIDs:      input.ProductIDs,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePlanFetch handles the plan_fetch tool call.
func (h *Handlers) HandlePlanFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.PlanFetch(ctx, h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePlanList handles the plan_list tool call.
func (h *Handlers) HandlePlanList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PageRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.PlanList(ctx, h.db, h.cfg, ops.PlanListInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePlanSetQuantity handles the plan_set_quantity tool call.
func (h *Handlers) HandlePlanSetQuantity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PlanSetQuantityRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.PlanSetQuantity(ctx, h.db, ops.PlanSetQuantityInput{
		PlanID:    input.PlanID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionStart handles the session_start tool call.
func (h *Handlers) HandleSessionStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionStartRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.lc.Start(ctx, input.PlannedSessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionLogEvent handles the session_log_event tool call.
func (h *Handlers) HandleSessionLogEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LogEventRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	payload, err := h.payloadFor(ctx, input)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.lc.LogEvent(ctx, payload)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionEnd handles the session_end tool call.
func (h *Handlers) HandleSessionEnd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionEndRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.lc.End(ctx, input.Notes)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionAbandon handles the session_abandon tool call.
// Without a session id, or with the running session's id, the running
// session is abandoned; any other id is treated as an interrupted session.
func (h *Handlers) HandleSessionAbandon(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionAbandonRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	id := strings.TrimSpace(input.SessionID)
	var result *activity.SessionLog
	if id == "" || id == h.lc.Status().SessionID {
		result, err = h.lc.Abandon(ctx, input.Reason)
	} else {
		result, err = h.lc.Recovery().Abandon(ctx, id, input.Reason)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionStatus handles the session_status tool call.
func (h *Handlers) HandleSessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inspection, err := h.lc.Recovery().Inspect(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	suggestion, err := h.lc.Recovery().SmartRecover(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	status := h.lc.Status()
	// the running session is not an interruption
	if suggestion != nil && suggestion.Session.ID == status.SessionID {
		suggestion = nil
	}
	return successResult(StatusOutput{
		Lifecycle:  status,
		Recovery:   inspection,
		Suggestion: suggestion,
	})
}

// HandleSessionRecover handles the session_recover tool call.
func (h *Handlers) HandleSessionRecover(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRecoverRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if strings.TrimSpace(input.SessionID) == "" {
		return errorResult(errors.NewInvalidRequest("session_id is required")), nil
	}

	result, err := h.lc.Resume(ctx, strings.TrimSpace(input.SessionID))
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionFetch handles the session_fetch tool call.
func (h *Handlers) HandleSessionFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SessionFetch(ctx, h.lc.Recovery(), input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionList handles the session_list tool call.
func (h *Handlers) HandleSessionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PageRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SessionList(ctx, h.db, h.cfg, ops.SessionListInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionNotes handles the session_notes tool call.
func (h *Handlers) HandleSessionNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionNotesRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SessionNotes(ctx, h.db, h.lc.Store(), ops.SessionNotesInput{ID: input.ID, Notes: input.Notes})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionDeleteEvent handles the session_delete_event tool call.
func (h *Handlers) HandleSessionDeleteEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteEventRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	err = ops.EventDelete(ctx, h.lc.Store(), ops.EventDeleteInput{SessionID: input.SessionID, EventID: input.EventID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"deleted": true, "event_id": input.EventID})
}

// HandleSessionExport handles the session_export tool call.
func (h *Handlers) HandleSessionExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// decode maps tool arguments onto a typed request. Failures are
// INVALID_REQUEST and name the offending argument when possible.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, errors.NewInvalidRequest("arguments are not valid JSON")
	}
	if err := json.Unmarshal(b, &result); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return result, errors.NewInvalidRequest(fmt.Sprintf("argument %s must be of type %s", typeErr.Field, typeErr.Type))
		}
		return result, errors.NewInvalidRequest("invalid arguments: " + err.Error())
	}
	return result, nil
}

// payloadFor builds the typed payload named by input.Type. An intake of a
// catalog product defaults its name and carbs from the catalog.
func (h *Handlers) payloadFor(ctx context.Context, input LogEventRequest) (activity.Payload, error) {
	switch activity.EventType(strings.TrimSpace(input.Type)) {
	case activity.EventIntake:
		return ops.Intake(ctx, h.db, ops.IntakeInput{
			ProductID:     input.ProductID,
			ProductName:   input.ProductName,
			Quantity:      input.Quantity,
			CarbsConsumed: input.CarbsConsumed,
			Planned:       input.Planned,
		})
	case activity.EventDiscomfort:
		return &activity.Discomfort{
			Severity: input.Severity,
			Symptom:  strings.TrimSpace(input.Symptom),
			Notes:    strings.TrimSpace(input.Notes),
		}, nil
	case activity.EventNote:
		return &activity.Note{Text: input.Text}, nil
	default:
		return nil, errors.NewInvalidRequest("type must be one of: intake, discomfort, note")
	}
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    appErr.Code,
			"message": appErr.Message,
			"status":  appErr.Status,
		}
		if appErr.Details != nil {
			errorObj["details"] = appErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
