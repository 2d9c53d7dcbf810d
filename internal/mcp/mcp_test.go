package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/db"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/session"
)

// testSetup creates a temporary database, config and handlers for testing.
func testSetup(t *testing.T) (*sql.DB, *Handlers) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	lc := session.NewLifecycle(database, cfg, session.Options{Logger: log.New(io.Discard, "", 0)})
	t.Cleanup(func() { _ = lc.Suspend(context.Background()) })

	return database, NewHandlers(database, cfg, lc)
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := handler(context.Background(), makeRequest(args))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != len(toolRegistry) {
		t.Fatalf("got %d names, want %d", len(names), len(toolRegistry))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("names not sorted: %q before %q", names[i-1], names[i])
		}
	}
	for _, want := range []string{"session_start", "session_end", "session_recover", "plan_create"} {
		if _, ok := toolRegistry[want]; !ok {
			t.Errorf("missing tool %q", want)
		}
	}
}

func TestToolDefsMatchRegistryKeys(t *testing.T) {
	for name, entry := range toolRegistry {
		if entry.def.Name != name {
			t.Errorf("registry key %q has tool def named %q", name, entry.def.Name)
		}
	}
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"session_export", "bogus_tool"})
	if len(unknown) != 1 || unknown[0] != "bogus_tool" {
		t.Errorf("unknown = %v, want [bogus_tool]", unknown)
	}
}

func TestHandleProductAddAndList(t *testing.T) {
	_, h := testSetup(t)

	out := parseOutput(t, call(t, h.HandleProductAdd, map[string]any{"name": "Gel", "carbs_per_serving": 25}))
	if out["name"] != "Gel" {
		t.Errorf("name = %v, want Gel", out["name"])
	}

	list := parseOutput(t, call(t, h.HandleProductList, nil))
	items, _ := list["items"].([]any)
	if len(items) != 1 {
		t.Errorf("items = %v, want 1", items)
	}
}

func TestHandleProductAdd_Invalid(t *testing.T) {
	_, h := testSetup(t)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing name", map[string]any{"carbs_per_serving": 25}},
		{"zero carbs", map[string]any{"name": "Gel", "carbs_per_serving": 0}},
		{"wrong type", map[string]any{"name": "Gel", "carbs_per_serving": "lots"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := call(t, h.HandleProductAdd, tc.args)
			if !result.IsError {
				t.Fatal("expected error result")
			}
			assertErrorCode(t, result, "INVALID_REQUEST")
		})
	}
}

func TestHandlePlanCreateFetchAndEdit(t *testing.T) {
	_, h := testSetup(t)

	product := parseOutput(t, call(t, h.HandleProductAdd, map[string]any{"name": "Gel", "carbs_per_serving": 25}))
	productID := product["id"].(string)

	created := parseOutput(t, call(t, h.HandlePlanCreate, map[string]any{
		"name": "Long run", "duration_minutes": 120, "target_carbs": 100,
	}))
	if created["saved"] != true {
		t.Fatalf("saved = %v, want true", created["saved"])
	}
	ps := created["planned_session"].(map[string]any)
	planID := ps["id"].(string)

	fetched := parseOutput(t, call(t, h.HandlePlanFetch, map[string]any{"id": planID}))
	plan := fetched["plan"].(map[string]any)
	if plan["total_carbs"] != float64(100) || plan["match_percentage"] != float64(100) {
		t.Errorf("plan = %v", plan)
	}

	edited := parseOutput(t, call(t, h.HandlePlanSetQuantity, map[string]any{
		"plan_id": planID, "product_id": productID, "quantity": 3,
	}))
	plan = edited["plan"].(map[string]any)
	if plan["total_carbs"] != float64(75) {
		t.Errorf("total_carbs = %v, want 75", plan["total_carbs"])
	}

	list := parseOutput(t, call(t, h.HandlePlanList, map[string]any{"limit": 5}))
	pagination := list["pagination"].(map[string]any)
	if pagination["total"] != float64(1) {
		t.Errorf("total = %v, want 1", pagination["total"])
	}

	result := call(t, h.HandlePlanFetch, map[string]any{"id": "missing"})
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandlePlanCreate_NoProducts(t *testing.T) {
	_, h := testSetup(t)

	out := parseOutput(t, call(t, h.HandlePlanCreate, map[string]any{
		"name": "Run", "duration_minutes": 60, "target_carbs": 60,
	}))
	if out["saved"] != false {
		t.Errorf("saved = %v, want false", out["saved"])
	}
	plan := out["plan"].(map[string]any)
	if plan["error"] == nil || plan["error"] == "" {
		t.Errorf("plan error missing: %v", plan)
	}
}

func TestSessionFlow(t *testing.T) {
	_, h := testSetup(t)

	product := parseOutput(t, call(t, h.HandleProductAdd, map[string]any{"name": "Gel", "carbs_per_serving": 25}))

	started := parseOutput(t, call(t, h.HandleSessionStart, nil))
	sessionID := started["id"].(string)
	if started["status"] != "active" {
		t.Errorf("status = %v, want active", started["status"])
	}

	// second start conflicts
	assertErrorCode(t, call(t, h.HandleSessionStart, nil), "CONFLICT")

	ev := parseOutput(t, call(t, h.HandleSessionLogEvent, map[string]any{
		"type": "intake", "product_id": product["id"], "quantity": 2, "planned": true,
	}))
	payload := ev["payload"].(map[string]any)
	if payload["carbs_consumed"] != float64(50) || payload["product_name"] != "Gel" {
		t.Errorf("payload = %v, want 50g of Gel", payload)
	}
	if ev["type"] != "intake" {
		t.Errorf("type = %v, want intake", ev["type"])
	}

	parseOutput(t, call(t, h.HandleSessionLogEvent, map[string]any{"type": "discomfort", "severity": 2, "symptom": "bloating"}))
	assertErrorCode(t, call(t, h.HandleSessionLogEvent, map[string]any{"type": "discomfort", "severity": 7}), "INVALID_REQUEST")
	assertErrorCode(t, call(t, h.HandleSessionLogEvent, map[string]any{"type": "sprint"}), "INVALID_REQUEST")

	status := parseOutput(t, call(t, h.HandleSessionStatus, nil))
	lifecycle := status["lifecycle"].(map[string]any)
	if lifecycle["state"] != "active" || lifecycle["session_id"] != sessionID {
		t.Errorf("lifecycle = %v", lifecycle)
	}
	if _, ok := status["suggestion"]; ok {
		t.Error("running session must not be suggested for recovery")
	}

	ended := parseOutput(t, call(t, h.HandleSessionEnd, map[string]any{"notes": "good day"}))
	if ended["status"] != "completed" || ended["notes"] != "good day" {
		t.Errorf("ended = %v", ended)
	}
	assertErrorCode(t, call(t, h.HandleSessionEnd, nil), "CONFLICT")

	fetched := parseOutput(t, call(t, h.HandleSessionFetch, map[string]any{"id": sessionID}))
	events := fetched["events"].([]any)
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}

	// notes stay editable after the end
	notes := parseOutput(t, call(t, h.HandleSessionNotes, map[string]any{"id": sessionID, "notes": "edited"}))
	if notes["notes"] != "edited" {
		t.Errorf("notes = %v, want edited", notes["notes"])
	}

	list := parseOutput(t, call(t, h.HandleSessionList, nil))
	if items := list["items"].([]any); len(items) != 1 {
		t.Errorf("items = %d, want 1", len(items))
	}
}

func TestSessionRecoverInterrupted(t *testing.T) {
	database, h := testSetup(t)
	ctx := context.Background()

	store := session.NewCheckpointStore(database)
	startedAt := time.Now().Add(-90 * time.Minute).Unix()
	sl := &activity.SessionLog{
		ID: "interrupted", UserID: "local", StartedAt: startedAt,
		Status: activity.StatusActive, CreatedAt: startedAt, UpdatedAt: startedAt,
	}
	if err := store.Create(ctx, sl); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	status := parseOutput(t, call(t, h.HandleSessionStatus, nil))
	suggestion, ok := status["suggestion"].(map[string]any)
	if !ok {
		t.Fatalf("expected a recovery suggestion, got %v", status)
	}
	if suggestion["session"].(map[string]any)["id"] != "interrupted" {
		t.Errorf("suggestion = %v", suggestion)
	}

	// cannot start a new one until it is resolved
	assertErrorCode(t, call(t, h.HandleSessionStart, nil), "CONFLICT")

	recovered := parseOutput(t, call(t, h.HandleSessionRecover, map[string]any{"session_id": "interrupted"}))
	elapsed := recovered["elapsed_seconds"].(float64)
	if elapsed < 90*60 {
		t.Errorf("elapsed_seconds = %v, want at least 5400", elapsed)
	}

	abandoned := parseOutput(t, call(t, h.HandleSessionAbandon, map[string]any{"reason": "stopped"}))
	if abandoned["status"] != "abandoned" {
		t.Errorf("status = %v, want abandoned", abandoned["status"])
	}
}

func TestSessionAbandonInterruptedByID(t *testing.T) {
	database, h := testSetup(t)
	ctx := context.Background()

	store := session.NewCheckpointStore(database)
	startedAt := time.Now().Add(-30 * time.Hour).Unix()
	sl := &activity.SessionLog{
		ID: "old", UserID: "local", StartedAt: startedAt,
		Status: activity.StatusActive, CreatedAt: startedAt, UpdatedAt: startedAt,
	}
	if err := store.Create(ctx, sl); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	assertErrorCode(t, call(t, h.HandleSessionRecover, map[string]any{"session_id": "old"}), "RECOVERY_EXPIRED")

	out := parseOutput(t, call(t, h.HandleSessionAbandon, map[string]any{"session_id": "old"}))
	if out["notes"] != session.DefaultAbandonReason {
		t.Errorf("notes = %v, want %q", out["notes"], session.DefaultAbandonReason)
	}

	// now a new session may start
	parseOutput(t, call(t, h.HandleSessionStart, nil))
}

func TestHandleSessionRecover_MissingID(t *testing.T) {
	_, h := testSetup(t)
	assertErrorCode(t, call(t, h.HandleSessionRecover, nil), "INVALID_REQUEST")
}

func TestErrorResult_HidesInternalDetails(t *testing.T) {
	result := errorResult(errors.NewInternal(fmt.Errorf("open /secret/path: permission denied")))
	if !result.IsError {
		t.Fatal("expected IsError")
	}
	text := result.Content[0].(mcp.TextContent).Text
	var payload map[string]map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["error"]["message"] != "an internal error occurred" {
		t.Errorf("message = %v", payload["error"]["message"])
	}

	result = errorResult(fmt.Errorf("wrapped: %w", errors.NewConflict("busy")))
	assertErrorCode(t, result, "CONFLICT")
}

func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}

	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}

func TestDecode_NamesMistypedArgument(t *testing.T) {
	_, err := decode[ProductAddRequest](makeRequest(map[string]any{"name": "Gel", "carbs_per_serving": "lots"}))
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("err = %v, want INVALID_REQUEST", err)
	}
	if !strings.Contains(err.Error(), "carbs_per_serving") {
		t.Errorf("message %q does not name the argument", err.Error())
	}
}
