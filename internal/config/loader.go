package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when fields are unset.
const (
	defaultListenAddr = ":8080"
	defaultTable      = "categories"
	defaultProvider   = "websocket"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg is coherent, applying defaults for unset fields.
// It returns a joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = SourceFile
	}
	if !cfg.Catalog.Source.IsValid() {
		errs = append(errs, fmt.Errorf("catalog.source %q is invalid; valid values: file, postgres", cfg.Catalog.Source))
	}
	switch cfg.Catalog.Source {
	case SourceFile:
		if cfg.Catalog.Path == "" {
			errs = append(errs, errors.New("catalog.path is required with the file source"))
		}
	case SourcePostgres:
		if cfg.Catalog.DSN == "" {
			errs = append(errs, errors.New("catalog.dsn is required with the postgres source"))
		}
		if cfg.Catalog.Table == "" {
			cfg.Catalog.Table = defaultTable
		}
	}

	if cfg.Recognizer.Provider == "" {
		cfg.Recognizer.Provider = defaultProvider
	}
	if cfg.Recognizer.Provider != defaultProvider {
		errs = append(errs, fmt.Errorf("recognizer.provider %q is unknown; the only built-in provider is %q", cfg.Recognizer.Provider, defaultProvider))
	}

	if cfg.Search.ErrorDisplayWindow < 0 {
		errs = append(errs, errors.New("search.error_display_window must not be negative"))
	}
	if cfg.Search.PhoneticThreshold < 0 || cfg.Search.PhoneticThreshold > 1 {
		errs = append(errs, errors.New("search.phonetic_threshold must be between 0 and 1"))
	}

	return errors.Join(errs...)
}
