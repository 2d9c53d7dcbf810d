package mcp

import "github.com/mark3labs/mcp-go/mcp"

var productListToolDef = mcp.NewTool("product_list",
	mcp.WithDescription("List the products in the fuel catalog, ordered by name."),
)

var productAddToolDef = mcp.NewTool("product_add",
	mcp.WithDescription("Add a product to the fuel catalog."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Product name, e.g. \"Maurten Gel 100\"")),
	mcp.WithNumber("carbs_per_serving", mcp.Required(), mcp.Description("Grams of carbohydrate per serving (> 0)")),
)

var planCreateToolDef = mcp.NewTool("plan_create",
	mcp.WithDescription("Allocate a fueling plan for a session from the catalog and save it. "+
		"Returns the plan with saved=false when allocation fails (no products, target <= 0)."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Name of the planned session")),
	mcp.WithNumber("duration_minutes", mcp.Required(), mcp.Description("Planned session length in minutes")),
	mcp.WithNumber("target_carbs", mcp.Required(), mcp.Description("Carbohydrate target in grams")),
	mcp.WithArray("product_ids",
		mcp.Description("Restrict allocation to these catalog products (default: whole catalog)"),
		mcp.Items(map[string]any{"type": "string"}),
	),
)

var planFetchToolDef = mcp.NewTool("plan_fetch",
	mcp.WithDescription("Fetch a saved plan by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Planned session id")),
)

var planListToolDef = mcp.NewTool("plan_list",
	mcp.WithDescription("List saved plans, newest first."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var planSetQuantityToolDef = mcp.NewTool("plan_set_quantity",
	mcp.WithDescription("Set the quantity of one product in a saved plan (0 removes it, max 5). "+
		"Totals and timing are recomputed; other items are untouched."),
	mcp.WithString("plan_id", mcp.Required(), mcp.Description("Planned session id")),
	mcp.WithString("product_id", mcp.Required(), mcp.Description("Catalog product id")),
	mcp.WithNumber("quantity", mcp.Required(), mcp.Description("New quantity (0-5)")),
)

var sessionStartToolDef = mcp.NewTool("session_start",
	mcp.WithDescription("Start a live session, optionally from a saved plan. "+
		"Fails with CONFLICT while another session is active or interrupted."),
	mcp.WithString("planned_session_id", mcp.Description("Saved plan to follow")),
)

var sessionLogEventToolDef = mcp.NewTool("session_log_event",
	mcp.WithDescription("Log an event in the running session at the current elapsed offset."),
	mcp.WithString("type", mcp.Required(), mcp.Enum("intake", "discomfort", "note"), mcp.Description("Event type")),
	mcp.WithString("product_id", mcp.Description("intake: catalog product id")),
	mcp.WithString("product_name", mcp.Description("intake: product name when not in the catalog")),
	mcp.WithNumber("quantity", mcp.Description("intake: servings (default 1)")),
	mcp.WithNumber("carbs_consumed", mcp.Description("intake: grams (default quantity x catalog carbs)")),
	mcp.WithBoolean("planned", mcp.Description("intake: whether this follows the plan")),
	mcp.WithNumber("severity", mcp.Description("discomfort: 1-5")),
	mcp.WithString("symptom", mcp.Description("discomfort: e.g. nausea, bloating, cramps")),
	mcp.WithString("notes", mcp.Description("discomfort: free text")),
	mcp.WithString("text", mcp.Description("note: free text")),
)

var sessionEndToolDef = mcp.NewTool("session_end",
	mcp.WithDescription("Complete the running session."),
	mcp.WithString("notes", mcp.Description("Closing notes (markdown)")),
)

var sessionAbandonToolDef = mcp.NewTool("session_abandon",
	mcp.WithDescription("Abandon the running session, or an interrupted session by id."),
	mcp.WithString("session_id", mcp.Description("Interrupted session to abandon (default: the running one)")),
	mcp.WithString("reason", mcp.Description("Stored as the session notes")),
)

var sessionStatusToolDef = mcp.NewTool("session_status",
	mcp.WithDescription("Show the running session, interrupted sessions and the recovery suggestion."),
)

var sessionRecoverToolDef = mcp.NewTool("session_recover",
	mcp.WithDescription("Resume an interrupted session. Elapsed time continues from the original start."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var sessionFetchToolDef = mcp.NewTool("session_fetch",
	mcp.WithDescription("Fetch a session of any status with its events and plan."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session id")),
)

var sessionListToolDef = mcp.NewTool("session_list",
	mcp.WithDescription("List sessions of any status, newest first."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var sessionNotesToolDef = mcp.NewTool("session_notes",
	mcp.WithDescription("Replace a session's notes. Omit notes to clear them."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithString("notes", mcp.Description("Notes (markdown)")),
)

var sessionDeleteEventToolDef = mcp.NewTool("session_delete_event",
	mcp.WithDescription("Delete a mistakenly logged event."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithString("event_id", mcp.Required(), mcp.Description("Event id")),
)

var sessionExportToolDef = mcp.NewTool("session_export",
	mcp.WithDescription("Export the session history with events to a JSONL file in the exports directory."),
	mcp.WithString("path", mcp.Description("Destination .jsonl file directly inside the exports directory")),
)
