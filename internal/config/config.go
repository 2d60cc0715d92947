package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds settings shared by the ocpm subcommands.
type Config struct {
	// GitHubToken enables authenticated GitHub API rate limits. Optional.
	GitHubToken string `yaml:"github_token"`
	// MappingPath overrides the embedded kext repository mapping. Optional.
	MappingPath string `yaml:"repo_mapping"`
	// Concurrency bounds simultaneous release lookups.
	Concurrency int `yaml:"concurrency"`
	// Timeout is the duration for a single API or download request.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for ocpm settings.
	DefaultConfigFilename = "ocpm.yaml"

	// DefaultConcurrency is the default number of parallel release lookups.
	DefaultConcurrency = 32

	// DefaultTimeout bounds a single API or download request.
	// This is an implementation choice, not part of the pipeline contract.
	DefaultTimeout = 30 * time.Second

	// DefaultFilePermissions is the default file permission for settings files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeConcurrency is returned when concurrency is below zero.
	errNegativeConcurrency = errors.New("concurrency must not be negative")
)

// Load reads settings from the provided path and validates them.
// When the default settings file is absent, built-in defaults are returned.
func Load(path string) (*Config, error) {
	usingDefault := path == ""
	if usingDefault {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if usingDefault && errors.Is(err, os.ErrNotExist) {
			cfg := new(Config)
			if err = Validate(cfg); err != nil {
				return nil, err
			}

			return cfg, nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may hold an API token.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Concurrency < 0 {
		return errNegativeConcurrency
	}

	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return nil
}
