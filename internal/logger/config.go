package logger

import "fmt"

// Level represents the severity of a log entry
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Format represents the output format for logs
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Component identifies which part of the system generated the log
type Component string

const (
	ComponentControl   Component = "control"
	ComponentAgent     Component = "agent"
	ComponentBridge    Component = "bridge"
	ComponentScheduler Component = "scheduler"
	ComponentQueue     Component = "queue"
	ComponentStore     Component = "store"
)

// Config holds the logging configuration for both tiers
type Config struct {
	Level  Level  `json:"level"`
	Format Format `json:"format"`

	// Tier 1: console (always on in practice)
	Console ConsoleConfig `json:"console"`

	// Tier 2: rotating file (optional)
	File FileConfig `json:"file"`
}

// ConsoleConfig configures terminal logging
type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
	Color   bool `json:"color"` // colored level tags, text format only
}

// FileConfig configures rotating file logging
type FileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// DefaultConfig returns a default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatText,
		Console: ConsoleConfig{
			Enabled: true,
			Color:   true,
		},
		File: FileConfig{
			Enabled:    false,
			Path:       "postdeck.log",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, ok := levelRank[c.Level]; !ok {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	switch c.Format {
	case FormatJSON, FormatText:
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	if c.File.Enabled {
		if c.File.Path == "" {
			return fmt.Errorf("file logging enabled but path is empty")
		}
		if c.File.MaxSizeMB <= 0 {
			return fmt.Errorf("file max size must be > 0")
		}
	}
	return nil
}
