package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func pragma(t *testing.T, q Querier, name string) string {
	t.Helper()
	var v string
	require.NoError(t, q.QueryRowContext(t.Context(), "PRAGMA "+name).Scan(&v))
	return v
}

func TestInit_SchemaAndPragmas(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "nested", ".ultragi")

	database, err := Init(baseDir)
	require.NoError(t, err)
	defer database.Close()

	_, err = os.Stat(filepath.Join(baseDir, FileName))
	require.NoError(t, err, "database file not created")

	require.Equal(t, "wal", pragma(t, database, "journal_mode"))
	require.Equal(t, "1", pragma(t, database, "foreign_keys"))
	// FULL = 2: a committed checkpoint survives power loss
	require.Equal(t, "2", pragma(t, database, "synchronous"))

	objects := map[string]string{
		"products":                          "table",
		"planned_sessions":                  "table",
		"session_logs":                      "table",
		"session_events":                    "table",
		"recovery_pointer":                  "table",
		"idx_products_user_name":            "index",
		"idx_planned_sessions_user_created": "index",
		"idx_session_logs_status_started":   "index",
		"idx_session_logs_user_started":     "index",
		"idx_session_events_session_offset": "index",
	}
	for name, kind := range objects {
		var got string
		err := database.QueryRow("SELECT name FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&got)
		require.NoError(t, err, "%s %s missing", kind, name)
	}
}

func TestInit_ReopenKeepsVersion(t *testing.T) {
	dir := t.TempDir()

	first, err := Init(dir)
	require.NoError(t, err)
	v, err := GetUserVersion(first)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, v)
	require.NoError(t, first.Close())

	second, err := Init(dir)
	require.NoError(t, err, "migrations must be idempotent")
	defer second.Close()
	v, err = GetUserVersion(second)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, v)

	require.NoError(t, SetUserVersion(second, 7))
	v, err = GetUserVersion(second)
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestSchema_RejectsInvalidRows(t *testing.T) {
	database, err := Init(t.TempDir())
	require.NoError(t, err)
	defer database.Close()

	bad := []struct {
		name string
		sql  string
	}{
		{"unknown status", `INSERT INTO session_logs (id, user_id, started_at, status, created_at, updated_at) VALUES ('s1', 'u', 1, 'paused', 1, 1)`},
		{"negative duration", `INSERT INTO session_logs (id, user_id, started_at, duration_minutes, status, created_at, updated_at) VALUES ('s2', 'u', 1, -1, 'active', 1, 1)`},
		{"event for missing session", `INSERT INTO session_events (id, session_id, type, offset_seconds, payload_json, created_at) VALUES ('e1', 'nope', 'note', 0, '{}', 1)`},
		{"second pointer slot", `INSERT INTO recovery_pointer (slot, session_id, updated_at) VALUES ('other', 's1', 1)`},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			_, err := database.Exec(tc.sql)
			require.Error(t, err)
		})
	}
}

func TestConfigurePool_NilConfig(t *testing.T) {
	database, err := Init(t.TempDir())
	require.NoError(t, err)
	defer database.Close()

	ConfigurePool(database, nil)
	require.NoError(t, database.Ping())
}
