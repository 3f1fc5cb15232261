package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultConfigPath  = "/etc/everywherebible/config.json"
	defaultTranslation = "kjv"
)

// Config matches the JSON schema of the generator configuration file.
type Config struct {
	Site            string   `json:"site"`
	Archive         string   `json:"archive"`
	OutputDir       string   `json:"output_dir"`
	IndexFile       string   `json:"index_path"`
	WorkDir         string   `json:"work_dir"`
	FailuresLog     string   `json:"failures_log"`
	Translation     string   `json:"translation"`
	StripClasses    []string `json:"strip_classes"`
	Workers         int      `json:"workers"`
	ContinueOnError bool     `json:"continue_on_error"`
	Force           bool     `json:"force"`
	VerifySize      bool     `json:"verify_size"`
	VerifyStructure bool     `json:"verify_structure"`
}

func DefaultPath() string {
	if path := os.Getenv("EVERYWHEREBIBLE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func Load(path string) (*Config, error) {
	cfg, err := Decode(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Decode reads path without applying defaults or validating, so callers can
// layer command-line overrides on top first.
func Decode(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Translation == "" {
		c.Translation = defaultTranslation
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
}

func (c *Config) Validate() error {
	if c.Archive == "" {
		return errors.New("config archive is required")
	}
	if c.OutputDir == "" {
		return errors.New("config output_dir is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("config workers must be positive, got %d", c.Workers)
	}
	for _, class := range c.StripClasses {
		if strings.TrimSpace(class) == "" {
			return errors.New("config strip_classes must not contain empty names")
		}
	}
	return nil
}

func (c *Config) IndexPath() string {
	if c.IndexFile != "" {
		return c.IndexFile
	}
	return filepath.Join(c.OutputDir, "search.db")
}

func (c *Config) SiteURL() string {
	return strings.TrimRight(c.Site, "/")
}
