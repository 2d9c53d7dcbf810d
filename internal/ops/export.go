package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/db"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
)

// exportPageSize is the number of sessions read per query while exporting.
const exportPageSize = 100

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: <base>/exports/sessions-<timestamp>.jsonl
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of an export file.
type ExportHeader struct {
	UltraGIExport bool   `json:"_ultragi_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportRecord is one session with its events.
type ExportRecord struct {
	Session *activity.SessionLog `json:"session"`
	Events  []activity.Event     `json:"events"`
}

// Export writes the session history to a JSONL file: a header line, then
// one record per session, newest first. The file is written to a temp name
// and renamed into place, so an existing export survives a failure.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	exportedAt := now.Unix()

	exportPath := input.Path
	if exportPath == "" {
		dir, err := ExportsDir()
		if err != nil {
			return nil, err
		}
		exportPath = filepath.Join(dir, fmt.Sprintf("sessions-%s.jsonl", now.Format("2006-01-02T150405")))
	}
	if err := ValidateExportPath(exportPath); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	if err := enc.Encode(ExportHeader{UltraGIExport: true, SchemaVersion: "1.0", ExportedAt: exportedAt}); err != nil {
		return nil, errors.NewInternal(err)
	}

	count := 0
	for offset := 0; ; offset += exportPageSize {
		sessions, err := db.ListSessions(ctx, database, cfg.UserID, exportPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, sl := range sessions {
			if ctx.Err() != nil {
				return nil, errors.NewCancelled("export")
			}
			events, err := db.ListEvents(ctx, database, sl.ID)
			if err != nil {
				return nil, err
			}
			if err := enc.Encode(ExportRecord{Session: sl, Events: events}); err != nil {
				return nil, errors.NewInternal(err)
			}
			count++
		}
		if len(sessions) < exportPageSize {
			break
		}
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: exportedAt,
	}, nil
}
