package web

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/ops"
	"github.com/toreaa/ultra-gi-sub000/internal/session"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	recovery *session.RecoveryManager
	renderer *Renderer
}

// HandleList handles GET /sessions: session history, newest first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	input := ops.SessionListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	}

	result, err := ops.SessionList(r.Context(), h.db, h.cfg, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "list", ListPageData{
		PageData: PageData{
			Title:   "Sessions",
			Version: h.renderer.version,
			Nav:     "sessions",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleDetail handles GET /sessions/{id}: one session with its events,
// plan and rendered notes.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("session ID is required"))
		return
	}

	data, err := ops.SessionFetch(r.Context(), h.recovery, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, data)
		return
	}

	page := DetailPageData{
		PageData: PageData{
			Title:   "Session " + shortID(data.Session.ID),
			Version: h.renderer.version,
			Nav:     "sessions",
		},
		Session:       data.Session,
		Events:        data.Events,
		Plan:          data.Plan,
		CarbsConsumed: carbsConsumed(data.Events),
	}
	if data.Session.Notes != nil {
		page.RenderedNotes = renderMarkdown(*data.Session.Notes)
	}
	h.renderer.renderPage(w, "detail", page)
}

// RecoveryOutput is the JSON shape of GET /recovery.
type RecoveryOutput struct {
	*session.Inspection
	Suggestion *session.RecoverableSession `json:"suggestion"`
}

// HandleRecovery handles GET /recovery: interrupted sessions and the one
// worth offering for recovery, if any.
func (h *Handlers) HandleRecovery(w http.ResponseWriter, r *http.Request) {
	inspection, err := h.recovery.Inspect(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	suggestion, err := h.recovery.Suggest(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, RecoveryOutput{Inspection: inspection, Suggestion: suggestion})
		return
	}

	h.renderer.renderPage(w, "recovery", RecoveryPageData{
		PageData: PageData{
			Title:   "Recovery",
			Version: h.renderer.version,
			Nav:     "recovery",
		},
		Inspection: inspection,
		Suggestion: suggestion,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// shortID truncates a ULID for titles.
func shortID(id string) string {
	if len(id) > 10 {
		return id[:10] + "..."
	}
	return id
}

func carbsConsumed(events []activity.Event) float64 {
	var total float64
	for _, ev := range events {
		if in, ok := ev.Payload.(*activity.Intake); ok {
			total += in.CarbsConsumed
		}
	}
	return total
}
