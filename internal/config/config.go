// Package config provides the configuration schema and loader for the
// voicepick engine.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the engine.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto the corresponding [slog.Level]. Unknown values map to
// info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CatalogSource selects where the category catalog is loaded from.
type CatalogSource string

const (
	// SourceFile loads the catalog from a YAML file.
	SourceFile CatalogSource = "file"

	// SourcePostgres loads the catalog from a PostgreSQL table.
	SourcePostgres CatalogSource = "postgres"
)

// IsValid reports whether s is a recognised catalog source.
func (s CatalogSource) IsValid() bool {
	return s == SourceFile || s == SourcePostgres
}

// Duration wraps [time.Duration] so YAML configs can use human-readable
// values like "4s" or "250ms".
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure, typically loaded from a YAML
// file with [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Search     SearchConfig     `yaml:"search"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CatalogConfig selects and parameterises the catalog source.
type CatalogConfig struct {
	// Source selects the catalog backend: "file" (default) or "postgres".
	Source CatalogSource `yaml:"source"`

	// Path is the YAML catalog file, used with the file source.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string, used with the postgres source.
	DSN string `yaml:"dsn"`

	// Table is the category table name for the postgres source.
	// Default: "categories".
	Table string `yaml:"table"`
}

// RecognizerConfig parameterises the recognizer capability boundary. The
// engine currently ships one provider: the WebSocket feed from the host UI.
type RecognizerConfig struct {
	// Provider names the recognizer backend. Default and only built-in value:
	// "websocket".
	Provider string `yaml:"provider"`
}

// SearchConfig tunes the search controller.
type SearchConfig struct {
	// ErrorDisplayWindow bounds how long a recognizer error stays visible
	// before self-clearing. Default: 4s.
	ErrorDisplayWindow Duration `yaml:"error_display_window"`

	// PhoneticAssist enables the opt-in phonetic second-pass matcher. This
	// changes matching behavior relative to the plain containment heuristic;
	// leave it off unless the looser recall is wanted.
	PhoneticAssist bool `yaml:"phonetic_assist"`

	// PhoneticThreshold is the Jaro-Winkler score a phonetic candidate must
	// reach. Default: 0.85.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
}
