package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/session"
)

func setExportHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	return filepath.Join(home, "exports")
}

func TestExport_HappyPath(t *testing.T) {
	exportsDir := setExportHome(t)
	database, cfg := setupTestDB(t)
	ctx := context.Background()
	store := session.NewCheckpointStore(database)

	createSession(t, store, "s1", 1000)
	createSession(t, store, "s2", 2000)
	if _, err := store.AppendEvent(ctx, "s1", 120, &activity.Discomfort{Severity: 2, Symptom: "bloating"}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	exportPath := filepath.Join(exportsDir, "history.jsonl")
	out, err := Export(ctx, database, cfg, ExportInput{Path: exportPath})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Path != exportPath || out.Count != 2 || out.ExportedAt == 0 {
		t.Errorf("output = %+v", out)
	}

	file, err := os.Open(exportPath)
	if err != nil {
		t.Fatalf("Failed to open export file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 records", len(lines))
	}

	var header ExportHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("header: %v", err)
	}
	if !header.UltraGIExport || header.SchemaVersion != "1.0" {
		t.Errorf("header = %+v", header)
	}

	var rec struct {
		Session activity.SessionLog `json:"session"`
		Events  []map[string]any    `json:"events"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Session.ID != "s1" || len(rec.Events) != 1 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Events[0]["type"] != "discomfort" {
		t.Errorf("event type = %v, want discomfort", rec.Events[0]["type"])
	}
}

func TestExport_DefaultPath(t *testing.T) {
	exportsDir := setExportHome(t)
	database, cfg := setupTestDB(t)

	out, err := Export(context.Background(), database, cfg, ExportInput{})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if filepath.Dir(out.Path) != exportsDir {
		t.Errorf("Path = %q, want inside %q", out.Path, exportsDir)
	}
	if out.Count != 0 {
		t.Errorf("Count = %d, want 0", out.Count)
	}
}

func TestExport_Cancelled(t *testing.T) {
	exportsDir := setExportHome(t)
	database, cfg := setupTestDB(t)
	store := session.NewCheckpointStore(database)
	createSession(t, store, "s1", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exportPath := filepath.Join(exportsDir, "cancelled.jsonl")
	_, err := Export(ctx, database, cfg, ExportInput{Path: exportPath})
	if err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
	if _, statErr := os.Stat(exportPath); !os.IsNotExist(statErr) {
		t.Error("no file should be left behind")
	}
}

func TestValidateExportPath(t *testing.T) {
	exportsDir := setExportHome(t)

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"inside exports", filepath.Join(exportsDir, "a.jsonl"), true},
		{"empty", "", false},
		{"traversal", exportsDir + string(filepath.Separator) + ".." + string(filepath.Separator) + "a.jsonl", false},
		{"wrong extension", filepath.Join(exportsDir, "a.json"), false},
		{"subdirectory", filepath.Join(exportsDir, "nested", "a.jsonl"), false},
		{"elsewhere", filepath.Join(t.TempDir(), "a.jsonl"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExportPath(tc.path)
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("err = %v, want INVALID_REQUEST", err)
			}
		})
	}
}

func TestValidateExportPath_RejectsSymlink(t *testing.T) {
	exportsDir := setExportHome(t)
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(t.TempDir(), "target.jsonl")
	if err := os.WriteFile(target, nil, 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(exportsDir, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if err := ValidateExportPath(link); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}
