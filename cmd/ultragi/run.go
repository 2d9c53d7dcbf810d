package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/ops"
	"github.com/toreaa/ultra-gi-sub000/internal/reminder"
	"github.com/toreaa/ultra-gi-sub000/internal/session"
)

const runHelp = `Commands:
  intake <product-id> [quantity]   log servings of a catalog product
  discomfort <1-5> [symptom]       log a GI symptom
  note <text>                      log a note
  status                           show elapsed time
  end [notes]                      complete the session
  abandon [reason]                 abandon the session
  quit                             stop here; the session stays recoverable`

// newLifecycle builds a lifecycle that prints reminders (and, with
// --ticker, elapsed time) to the app's writer.
func newLifecycle(c *cli.Context, db *sql.DB, cfg *config.Config) *session.Lifecycle {
	logger := log.New(c.App.ErrWriter, "ultragi: ", log.LstdFlags)
	// reminders and ticks write from timer goroutines
	out := &syncWriter{w: c.App.Writer}
	c.App.Writer = out

	opts := session.Options{
		Scheduler: reminder.NewTimerScheduler(reminder.Writer(out), logger),
		Logger:    logger,
	}
	if c.Bool("ticker") {
		opts.OnUITick = func(elapsed int) {
			fmt.Fprintf(out, "\r%s ", formatElapsed(elapsed))
		}
	}
	return session.NewLifecycle(db, cfg, opts)
}

// runForeground reads commands line by line until the session ends. EOF,
// quit or an interrupt suspends the session instead of ending it.
func runForeground(c *cli.Context, lc *session.Lifecycle, db *sql.DB) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := c.App.Writer
	fmt.Fprintln(out, runHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.App.Reader)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return suspend(lc, out)
		case line, ok := <-lines:
			if !ok {
				return suspend(lc, out)
			}
			done, err := handleLine(ctx, lc, db, out, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", outputError(err))
			}
			if done {
				return nil
			}
			if lc.Status().State != session.StateActive {
				// ended elsewhere, e.g. abandoned from another process
				fmt.Fprintln(out, "Session is no longer running.")
				return nil
			}
		}
	}
}

// handleLine executes one command. done reports a terminal transition or quit.
func handleLine(ctx context.Context, lc *session.Lifecycle, db *sql.DB, out io.Writer, line string) (done bool, err error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "":
		return false, nil
	case "help", "?":
		fmt.Fprintln(out, runHelp)
		return false, nil
	case "status":
		st := lc.Status()
		fmt.Fprintf(out, "%s %s elapsed %s\n", st.State, st.SessionID, formatElapsed(st.ElapsedSeconds))
		if st.LastCheckpointErr != "" {
			fmt.Fprintf(out, "last checkpoint failed (%d failures): %s\n", st.CheckpointFailures, st.LastCheckpointErr)
		}
		return false, nil
	case "intake":
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return false, fmt.Errorf("usage: intake <product-id> [quantity]")
		}
		input := ops.IntakeInput{ProductID: fields[0]}
		if plan := lc.Plan(); plan != nil {
			input.Planned = plan.Plan.Includes(fields[0])
		}
		if len(fields) > 1 {
			qty, err := strconv.Atoi(fields[1])
			if err != nil {
				return false, fmt.Errorf("quantity must be an integer")
			}
			input.Quantity = &qty
		}
		payload, err := ops.Intake(ctx, db, input)
		if err != nil {
			return false, err
		}
		return false, logEvent(ctx, lc, out, payload)
	case "discomfort":
		severityStr, symptom, _ := strings.Cut(rest, " ")
		severity, err := strconv.Atoi(severityStr)
		if err != nil {
			return false, fmt.Errorf("usage: discomfort <1-5> [symptom]")
		}
		return false, logEvent(ctx, lc, out, &activity.Discomfort{Severity: severity, Symptom: strings.TrimSpace(symptom)})
	case "note":
		return false, logEvent(ctx, lc, out, &activity.Note{Text: rest})
	case "end":
		sl, err := lc.End(ctx, rest)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Session %s completed after %d minutes.\n", sl.ID, sl.DurationMinutes)
		return true, nil
	case "abandon":
		sl, err := lc.Abandon(ctx, rest)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Session %s abandoned after %d minutes.\n", sl.ID, sl.DurationMinutes)
		return true, nil
	case "quit", "exit":
		return true, suspend(lc, out)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func logEvent(ctx context.Context, lc *session.Lifecycle, out io.Writer, payload activity.Payload) error {
	ev, err := lc.LogEvent(ctx, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged %s at +%s.\n", ev.Type(), formatElapsed(ev.OffsetSeconds))
	return nil
}

// suspend stops the clock and leaves the session recoverable.
func suspend(lc *session.Lifecycle, out io.Writer) error {
	id := lc.Status().SessionID
	if err := lc.Suspend(context.Background()); err != nil {
		return outputError(err)
	}
	if id != "" {
		fmt.Fprintf(out, "Session %s suspended. Resume with: ultragi session resume %s\n", id, id)
	}
	return nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
