package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/ops"
	"github.com/toreaa/ultra-gi-sub000/internal/session"
	"github.com/toreaa/ultra-gi-sub000/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "ultragi",
		Usage:   "Fuel plans and session tracking for endurance training",
		Version: Version,
		Commands: []*cli.Command{
			productCmd(db, cfg),
			planCmd(db, cfg),
			sessionCmd(db, cfg),
			serveCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// productCmd groups the catalog commands.
func productCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "product",
		Usage: "Manage the fuel product catalog",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a product",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Product name"},
					&cli.Float64Flag{Name: "carbs", Aliases: []string{"c"}, Required: true, Usage: "Carbohydrate grams per serving"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ProductAdd(c.Context, db, cfg, ops.ProductAddInput{
						Name:            c.String("name"),
						CarbsPerServing: c.Float64("carbs"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:  "list",
				Usage: "List products",
				Action: func(c *cli.Context) error {
					output, err := ops.ProductList(c.Context, db, cfg)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
		},
	}
}

// planCmd groups the planned-session commands.
func planCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Create and edit fuel plans",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Allocate and save a fuel plan from the catalog",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Plan name"},
					&cli.IntFlag{Name: "duration", Aliases: []string{"d"}, Required: true, Usage: "Activity duration in minutes"},
					&cli.Float64Flag{Name: "target", Aliases: []string{"t"}, Required: true, Usage: "Target carbohydrate grams"},
					&cli.StringFlag{Name: "products", Aliases: []string{"p"}, Usage: "Comma-separated product IDs (default: whole catalog)"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.PlanCreate(c.Context, db, cfg, ops.PlanCreateInput{
						Name:            c.String("name"),
						DurationMinutes: c.Int("duration"),
						TargetCarbs:     c.Float64("target"),
						ProductIDs:      parseList(c.String("products")),
					})
					if err != nil {
						return outputError(err)
					}
					if err := outputJSON(c.App.Writer, output); err != nil {
						return err
					}
					if !output.Saved {
						return cli.Exit("plan not saved: "+output.Plan.Error, 1)
					}
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show a plan",
				ArgsUsage: "<plan-id>",
				Action: func(c *cli.Context) error {
					output, err := ops.PlanFetch(c.Context, db, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:  "list",
				Usage: "List plans, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.PlanList(c.Context, db, cfg, ops.PlanListInput{
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:      "set-quantity",
				Usage:     "Set the servings of one product in a plan (0 removes it)",
				ArgsUsage: "<plan-id> <product-id> <quantity>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 3 {
						return outputError(errors.NewInvalidRequest("usage: plan set-quantity <plan-id> <product-id> <quantity>"))
					}
					qty, err := strconv.Atoi(c.Args().Get(2))
					if err != nil {
						return outputError(errors.NewInvalidRequest("quantity must be an integer"))
					}
					output, err := ops.PlanSetQuantity(c.Context, db, ops.PlanSetQuantityInput{
						PlanID:    c.Args().Get(0),
						ProductID: c.Args().Get(1),
						Quantity:  qty,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
		},
	}
}

// sessionCmd groups the session commands.
func sessionCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Run, recover and review sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Start a session in the foreground and log events from stdin",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "plan", Aliases: []string{"p"}, Usage: "Planned session ID"},
					&cli.BoolFlag{Name: "ticker", Usage: "Print elapsed time on every UI tick"},
				},
				Action: func(c *cli.Context) error {
					lc := newLifecycle(c, db, cfg)
					var plan *string
					if id := c.String("plan"); id != "" {
						plan = &id
					}
					sl, err := lc.Start(c.Context, plan)
					if err != nil {
						return outputError(err)
					}
					fmt.Fprintf(c.App.Writer, "Session %s started.\n", sl.ID)
					return runForeground(c, lc, db)
				},
			},
			{
				Name:      "resume",
				Usage:     "Resume an interrupted session in the foreground",
				ArgsUsage: "[session-id]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "ticker", Usage: "Print elapsed time on every UI tick"},
				},
				Action: func(c *cli.Context) error {
					lc := newLifecycle(c, db, cfg)
					id := c.Args().First()
					if id == "" {
						suggestion, err := lc.Recovery().SmartRecover(c.Context)
						if err != nil {
							return outputError(err)
						}
						if suggestion == nil {
							return outputError(errors.NewNotFound("recoverable session", "latest"))
						}
						id = suggestion.Session.ID
					}
					data, err := lc.Resume(c.Context, id)
					if err != nil {
						return outputError(err)
					}
					fmt.Fprintf(c.App.Writer, "Session %s resumed at %s with %d events.\n",
						id, formatElapsed(data.ElapsedSeconds), len(data.Events))
					return runForeground(c, lc, db)
				},
			},
			{
				Name:  "status",
				Usage: "Show interrupted sessions and the one offered for recovery",
				Action: func(c *cli.Context) error {
					recovery := session.NewRecoveryManager(db, session.NewCheckpointStore(db), cfg)
					inspection, err := recovery.Inspect(c.Context)
					if err != nil {
						return outputError(err)
					}
					suggestion, err := recovery.SmartRecover(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, web.RecoveryOutput{Inspection: inspection, Suggestion: suggestion})
				},
			},
			{
				Name:      "show",
				Usage:     "Show a session with its events and plan",
				ArgsUsage: "<session-id>",
				Action: func(c *cli.Context) error {
					recovery := session.NewRecoveryManager(db, session.NewCheckpointStore(db), cfg)
					output, err := ops.SessionFetch(c.Context, recovery, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:  "list",
				Usage: "List sessions, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.SessionList(c.Context, db, cfg, ops.SessionListInput{
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:      "notes",
				Usage:     "Replace a session's notes (reads from stdin when --text is absent)",
				ArgsUsage: "<session-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Usage: "Notes text; empty clears the notes"},
				},
				Action: func(c *cli.Context) error {
					var notes string
					switch {
					case c.IsSet("text"):
						notes = c.String("text")
					case readerHasData(c.App.Reader):
						text, err := readAll(c.App.Reader)
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						notes = text
					default:
						return outputError(errors.NewInvalidRequest("notes must be passed with --text or piped via stdin"))
					}
					store := session.NewCheckpointStore(db)
					output, err := ops.SessionNotes(c.Context, db, store, ops.SessionNotesInput{
						ID:    c.Args().First(),
						Notes: &notes,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:      "abandon",
				Usage:     "Abandon an interrupted session",
				ArgsUsage: "<session-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reason", Aliases: []string{"r"}, Usage: "Reason stored as notes"},
				},
				Action: func(c *cli.Context) error {
					id := strings.TrimSpace(c.Args().First())
					if id == "" {
						return outputError(errors.NewInvalidRequest("session ID is required"))
					}
					recovery := session.NewRecoveryManager(db, session.NewCheckpointStore(db), cfg)
					output, err := recovery.Abandon(c.Context, id, c.String("reason"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:      "delete-event",
				Usage:     "Delete a mistakenly logged event",
				ArgsUsage: "<session-id> <event-id>",
				Action: func(c *cli.Context) error {
					err := ops.EventDelete(c.Context, session.NewCheckpointStore(db), ops.EventDeleteInput{
						SessionID: c.Args().Get(0),
						EventID:   c.Args().Get(1),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]any{
						"deleted":  true,
						"event_id": c.Args().Get(1),
					})
				},
			},
			{
				Name:  "export",
				Usage: "Export session history to a JSONL file in the exports directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "Output file path (default: exports dir with timestamp)"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.Export(c.Context, db, cfg, ops.ExportInput{Path: c.String("path")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
		},
	}
}

// serveCmd starts the read-only history UI.
func serveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the session history web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Value: 8787, Usage: "Port"},
		},
		Action: func(c *cli.Context) error {
			logger := log.New(c.App.ErrWriter, "ultragi: ", log.LstdFlags)
			recovery := session.NewRecoveryManager(db, session.NewCheckpointStore(db), cfg)
			srv := web.NewServer(db, cfg, recovery, Version, c.String("bind"), c.Int("port"), logger)
			return web.Run(srv)
		},
	}
}

// Helper functions

// outputJSON marshals result to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readerHasData reports whether r is piped input rather than a terminal.
// Non-file readers always count as data.
func readerHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readAll reads all content from r.
func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseList splits a comma-separated string into trimmed, non-empty items.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			items = append(items, t)
		}
	}
	return items
}

// formatElapsed formats seconds as "H:MM:SS".
func formatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}
