package mcp

import (
	"context"
	"database/sql"
	"log"
	"os"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/fuel"
	"github.com/toreaa/ultra-gi-sub000/internal/reminder"
	"github.com/toreaa/ultra-gi-sub000/internal/session"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"product_list": {
		def:     productListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProductList },
	},
	"product_add": {
		def:     productAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProductAdd },
	},
	"plan_create": {
		def:     planCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePlanCreate },
	},
	"plan_fetch": {
		def:     planFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePlanFetch },
	},
	"plan_list": {
		def:     planListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePlanList },
	},
	"plan_set_quantity": {
		def:     planSetQuantityToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePlanSetQuantity },
	},
	"session_start": {
		def:     sessionStartToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionStart },
	},
	"session_log_event": {
		def:     sessionLogEventToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionLogEvent },
	},
	"session_end": {
		def:     sessionEndToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionEnd },
	},
	"session_abandon": {
		def:     sessionAbandonToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionAbandon },
	},
	"session_status": {
		def:     sessionStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionStatus },
	},
	"session_recover": {
		def:     sessionRecoverToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionRecover },
	},
	"session_fetch": {
		def:     sessionFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionFetch },
	},
	"session_list": {
		def:     sessionListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionList },
	},
	"session_notes": {
		def:     sessionNotesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionNotes },
	},
	"session_delete_event": {
		def:     sessionDeleteEventToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionDeleteEvent },
	},
	"session_export": {
		def:     sessionExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionExport },
	},
}

// AllToolNames returns a sorted list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the tools registered over one
// lifecycle. Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, lc *session.Lifecycle, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"ultragi",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, lc)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport. Stdout carries the
// protocol, so logs and reminders go to stderr. A session still running when
// the transport closes is suspended and stays recoverable.
func Run(db *sql.DB, cfg *config.Config, version string) error {
	logger := log.New(os.Stderr, "ultragi: ", log.LstdFlags)
	scheduler := reminder.NewTimerScheduler(func(sessionID string, r fuel.Reminder) {
		logger.Printf("reminder for session %s: +%dm take %s", sessionID, r.OffsetMinutes, r.ProductName)
	}, logger)

	lc := session.NewLifecycle(db, cfg, session.Options{
		Scheduler: scheduler,
		Logger:    logger,
	})
	defer func() {
		if err := lc.Suspend(context.Background()); err != nil {
			logger.Printf("suspend on shutdown: %v", err)
		}
	}()

	return server.ServeStdio(NewServer(db, cfg, lc, version))
}
