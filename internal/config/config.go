package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HomeEnv overrides the base directory (default ~/.ultragi).
const HomeEnv = "ULTRAGI_HOME"

// Config holds application configuration.
type Config struct {
	// UserID owns every row written by this install. Single user, single device.
	UserID string `json:"user_id,omitempty"`

	// UITickMillis is the cadence of the live elapsed-time refresh.
	UITickMillis int `json:"ui_tick_ms,omitempty"`

	// CheckpointSeconds is the cadence of durable duration checkpoints.
	// At most one interval of duration precision is lost on an abrupt kill.
	CheckpointSeconds int `json:"checkpoint_seconds,omitempty"`

	// RecoveryWindowHours is the age past which an interrupted session is
	// reported as expired instead of recoverable.
	RecoveryWindowHours int `json:"recovery_window_hours,omitempty"`

	// AutoSuggestHours is the age within which an interrupted session is
	// proactively offered on restart. Must not exceed RecoveryWindowHours.
	AutoSuggestHours int `json:"auto_suggest_hours,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		UserID:              "local",
		UITickMillis:        1000,
		CheckpointSeconds:   10,
		RecoveryWindowHours: 24,
		AutoSuggestHours:    12,
	}
}

// UITick returns the UI cadence as a duration.
func (c *Config) UITick() time.Duration {
	return time.Duration(c.UITickMillis) * time.Millisecond
}

// CheckpointEvery returns the checkpoint cadence as a duration.
func (c *Config) CheckpointEvery() time.Duration {
	return time.Duration(c.CheckpointSeconds) * time.Second
}

// RecoveryWindow returns the recovery window as a duration.
func (c *Config) RecoveryWindow() time.Duration {
	return time.Duration(c.RecoveryWindowHours) * time.Hour
}

// AutoSuggestWindow returns the auto-suggest window as a duration.
func (c *Config) AutoSuggestWindow() time.Duration {
	return time.Duration(c.AutoSuggestHours) * time.Hour
}

// Validate reports settings that would break the session engine.
func (c *Config) Validate() error {
	if c.UITickMillis <= 0 {
		return fmt.Errorf("ui_tick_ms must be positive, got %d", c.UITickMillis)
	}
	if c.CheckpointSeconds <= 0 {
		return fmt.Errorf("checkpoint_seconds must be positive, got %d", c.CheckpointSeconds)
	}
	if c.RecoveryWindowHours <= 0 {
		return fmt.Errorf("recovery_window_hours must be positive, got %d", c.RecoveryWindowHours)
	}
	if c.AutoSuggestHours <= 0 || c.AutoSuggestHours > c.RecoveryWindowHours {
		return fmt.Errorf("auto_suggest_hours must be in 1..%d, got %d", c.RecoveryWindowHours, c.AutoSuggestHours)
	}
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("user_id must not be empty")
	}
	return nil
}

// BaseDir resolves the data directory: $ULTRAGI_HOME, else ~/.ultragi.
func BaseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(HomeEnv)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ultragi"), nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.ultragi.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		UserID:              strings.TrimSpace(overlay.UserID),
		UITickMillis:        overlay.UITickMillis,
		CheckpointSeconds:   overlay.CheckpointSeconds,
		RecoveryWindowHours: overlay.RecoveryWindowHours,
		AutoSuggestHours:    overlay.AutoSuggestHours,
		DBMaxOpenConns:      overlay.DBMaxOpenConns,
		DBMaxIdleConns:      overlay.DBMaxIdleConns,
	}

	// Scalars: overlay wins if non-zero, else base
	if result.UserID == "" {
		result.UserID = base.UserID
	}
	if result.UITickMillis == 0 {
		result.UITickMillis = base.UITickMillis
	}
	if result.CheckpointSeconds == 0 {
		result.CheckpointSeconds = base.CheckpointSeconds
	}
	if result.RecoveryWindowHours == 0 {
		result.RecoveryWindowHours = base.RecoveryWindowHours
	}
	if result.AutoSuggestHours == 0 {
		result.AutoSuggestHours = base.AutoSuggestHours
	}
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
