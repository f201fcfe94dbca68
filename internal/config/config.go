// Package config loads lockbox settings from defaults, an optional YAML file
// and LOCKBOX_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. LOCKBOX_VAULT_DIR.
const EnvPrefix = "LOCKBOX"

// FileName is the config file looked up in the default directory.
const FileName = "config.yaml"

// DefaultDirName is the vault directory under the user's home.
const DefaultDirName = ".lockbox"

// Log formats
const (
	FormatAuto    = "auto"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// ErrInsecureFile is returned when the config file is group or world
// writable.
var ErrInsecureFile = errors.New("config: file has insecure permissions")

// ErrSymlink is returned when the config file is a symlink
var ErrSymlink = errors.New("config: file is a symlink")

// ErrNotOwnedByUser is returned when the config file is owned by another user
var ErrNotOwnedByUser = errors.New("config: file not owned by current user")

// Config holds the runtime settings.
type Config struct {
	VaultDir      string `yaml:"vault_dir" envconfig:"VAULT_DIR"`
	LogLevel      string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat     string `yaml:"log_format" envconfig:"LOG_FORMAT"`
	Audit         bool   `yaml:"audit" envconfig:"AUDIT"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" envconfig:"BUSY_TIMEOUT_MS"`
}

// Default returns the built-in settings.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("config: failed to get user home directory: %w", err)
	}
	return &Config{
		VaultDir:      filepath.Join(home, DefaultDirName),
		LogLevel:      "warn",
		LogFormat:     FormatAuto,
		Audit:         true,
		BusyTimeoutMS: 5000,
	}, nil
}

// DefaultPath returns the config file consulted when no path is given.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DefaultDirName, FileName), nil
}

// Load builds the configuration. An explicit path must exist; when path is
// empty the default file is read if present.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFile(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays the YAML file at path. The file is opened without
// following symlinks and checked on the open descriptor.
func (c *Config) loadFile(path string) error {
	f, err := openConfigFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := checkFile(f); err != nil {
		return err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate rejects unknown levels and formats.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.VaultDir) == "" {
		return errors.New("config: vault_dir must not be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case FormatAuto, FormatJSON, FormatConsole:
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	if c.BusyTimeoutMS < 0 {
		return fmt.Errorf("config: busy_timeout_ms must not be negative, got %d", c.BusyTimeoutMS)
	}
	return nil
}
