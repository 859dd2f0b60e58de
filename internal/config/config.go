// Package config handles reading and writing the irs configuration file
// (~/.irs/config.toml).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds irs configuration settings.
type Config struct {
	StoreRoot            string   `toml:"store_root,omitempty" json:"store_root,omitempty"`
	Mode                 string   `toml:"mode,omitempty" json:"mode,omitempty"` // "single-writer" | "multi-writer"
	InlineThresholdBytes int      `toml:"inline_threshold_bytes,omitempty" json:"inline_threshold_bytes,omitempty"`
	HotDays              int      `toml:"hot_days,omitempty" json:"hot_days,omitempty"`
	GracePeriodDays      int      `toml:"grace_period_days,omitempty" json:"grace_period_days,omitempty"`
	CompactionThreshold  int      `toml:"compaction_threshold,omitempty" json:"compaction_threshold,omitempty"`
	MaxAgeHours          int      `toml:"max_age_hours,omitempty" json:"max_age_hours,omitempty"`
	BlobCompression      string   `toml:"blob_compression,omitempty" json:"blob_compression,omitempty"`
	RemoteURL            string   `toml:"remote_url,omitempty" json:"remote_url,omitempty"`
	KnownRunnerSchemes   []string `toml:"known_runner_schemes,omitempty" json:"known_runner_schemes,omitempty"`
	DefaultFormat        string   `toml:"default_format,omitempty" json:"default_format,omitempty"`
}

// Defaults returns the documented default configuration values, applied
// wherever a field is left unset in a loaded config.
func Defaults() Config {
	return Config{
		Mode:                 "single-writer",
		InlineThresholdBytes: 4096,
		HotDays:              14,
		GracePeriodDays:      7,
		CompactionThreshold:  50,
		MaxAgeHours:          24,
		BlobCompression:      "none",
		KnownRunnerSchemes:   []string{"pid", "gha", "k8s", "docker"},
		DefaultFormat:        "table",
	}
}

// WithDefaults returns a copy of c with zero-valued fields filled from
// Defaults().
func (c Config) WithDefaults() Config {
	d := Defaults()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.InlineThresholdBytes == 0 {
		c.InlineThresholdBytes = d.InlineThresholdBytes
	}
	if c.HotDays == 0 {
		c.HotDays = d.HotDays
	}
	if c.GracePeriodDays == 0 {
		c.GracePeriodDays = d.GracePeriodDays
	}
	if c.CompactionThreshold == 0 {
		c.CompactionThreshold = d.CompactionThreshold
	}
	if c.MaxAgeHours == 0 {
		c.MaxAgeHours = d.MaxAgeHours
	}
	if c.BlobCompression == "" {
		c.BlobCompression = d.BlobCompression
	}
	if len(c.KnownRunnerSchemes) == 0 {
		c.KnownRunnerSchemes = d.KnownRunnerSchemes
	}
	if c.DefaultFormat == "" {
		c.DefaultFormat = d.DefaultFormat
	}
	return c
}

// validKeys lists the allowed configuration keys.
var validKeys = map[string]bool{
	"store_root":             true,
	"mode":                   true,
	"inline_threshold_bytes": true,
	"hot_days":               true,
	"grace_period_days":      true,
	"compaction_threshold":   true,
	"max_age_hours":          true,
	"blob_compression":       true,
	"remote_url":             true,
	"known_runner_schemes":   true,
	"default_format":         true,
}

// ValidKeys returns the sorted list of valid configuration keys.
func ValidKeys() []string {
	return []string{
		"blob_compression", "compaction_threshold", "default_format",
		"grace_period_days", "hot_days", "inline_threshold_bytes",
		"known_runner_schemes", "max_age_hours", "mode", "remote_url",
		"store_root",
	}
}

// Path returns the default config file path (~/.irs/config.toml).
func Path() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".irs", "config.toml")
	}
	return filepath.Join(home, ".irs", "config.toml")
}

// jsonPath returns the legacy JSON config path for backward compatibility.
func jsonPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".irs", "config.json")
	}
	return filepath.Join(home, ".irs", "config.json")
}

// Load reads the config from the default path, migrating a legacy JSON
// config to TOML automatically if found.
func Load() (*Config, error) {
	cfg, err := LoadFrom(Path())
	if err != nil {
		return nil, err
	}
	if cfg.isZero() {
		if _, statErr := os.Stat(Path()); errors.Is(statErr, os.ErrNotExist) {
			legacy := jsonPath()
			if _, legacyErr := os.Stat(legacy); legacyErr == nil {
				cfg, err = loadJSON(legacy)
				if err != nil {
					return nil, err
				}
				if saveErr := cfg.SaveTo(Path()); saveErr == nil {
					os.Remove(legacy)
				}
				return cfg, nil
			}
		}
	}
	return cfg, nil
}

func (c *Config) isZero() bool {
	return c.StoreRoot == "" && c.Mode == "" && c.InlineThresholdBytes == 0 &&
		c.HotDays == 0 && c.GracePeriodDays == 0 && c.CompactionThreshold == 0 &&
		c.MaxAgeHours == 0 && c.BlobCompression == "" && c.RemoteURL == "" &&
		len(c.KnownRunnerSchemes) == 0 && c.DefaultFormat == ""
}

// LoadFrom reads the config from a specific path. Returns an empty
// Config if the file does not exist.
func LoadFrom(path string) (*Config, error) {
	if filepath.Ext(path) == ".json" {
		return loadJSON(path)
	}
	return loadTOML(path)
}

func loadTOML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func loadJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to the default path.
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

// SaveTo writes the config to a specific path as TOML, creating parent
// directories as needed.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Get returns the string value of a configuration key.
func (c *Config) Get(key string) (string, error) {
	if !validKeys[key] {
		return "", fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
	}
	switch key {
	case "store_root":
		return c.StoreRoot, nil
	case "mode":
		return c.Mode, nil
	case "inline_threshold_bytes":
		if c.InlineThresholdBytes == 0 {
			return "", nil
		}
		return strconv.Itoa(c.InlineThresholdBytes), nil
	case "hot_days":
		if c.HotDays == 0 {
			return "", nil
		}
		return strconv.Itoa(c.HotDays), nil
	case "grace_period_days":
		if c.GracePeriodDays == 0 {
			return "", nil
		}
		return strconv.Itoa(c.GracePeriodDays), nil
	case "compaction_threshold":
		if c.CompactionThreshold == 0 {
			return "", nil
		}
		return strconv.Itoa(c.CompactionThreshold), nil
	case "max_age_hours":
		if c.MaxAgeHours == 0 {
			return "", nil
		}
		return strconv.Itoa(c.MaxAgeHours), nil
	case "blob_compression":
		return c.BlobCompression, nil
	case "remote_url":
		return c.RemoteURL, nil
	case "known_runner_schemes":
		if len(c.KnownRunnerSchemes) == 0 {
			return "", nil
		}
		return strings.Join(c.KnownRunnerSchemes, ","), nil
	case "default_format":
		return c.DefaultFormat, nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// Set assigns a value to a configuration key.
func (c *Config) Set(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
	}
	switch key {
	case "store_root":
		c.StoreRoot = value
	case "mode":
		if value != "" && value != "single-writer" && value != "multi-writer" {
			return fmt.Errorf("mode must be \"single-writer\" or \"multi-writer\", got %q", value)
		}
		c.Mode = value
	case "inline_threshold_bytes":
		n, err := parseNonNegInt(key, value)
		if err != nil {
			return err
		}
		c.InlineThresholdBytes = n
	case "hot_days":
		n, err := parseNonNegInt(key, value)
		if err != nil {
			return err
		}
		c.HotDays = n
	case "grace_period_days":
		n, err := parseNonNegInt(key, value)
		if err != nil {
			return err
		}
		c.GracePeriodDays = n
	case "compaction_threshold":
		n, err := parseNonNegInt(key, value)
		if err != nil {
			return err
		}
		c.CompactionThreshold = n
	case "max_age_hours":
		n, err := parseNonNegInt(key, value)
		if err != nil {
			return err
		}
		c.MaxAgeHours = n
	case "blob_compression":
		if value != "" && value != "none" && value != "gzip" && value != "zstd" {
			return fmt.Errorf("blob_compression must be \"none\", \"gzip\" or \"zstd\", got %q", value)
		}
		c.BlobCompression = value
	case "remote_url":
		c.RemoteURL = value
	case "known_runner_schemes":
		if value == "" {
			c.KnownRunnerSchemes = nil
		} else {
			c.KnownRunnerSchemes = strings.Split(value, ",")
		}
	case "default_format":
		if value != "" && value != "table" && value != "json" {
			return fmt.Errorf("default_format must be \"table\" or \"json\", got %q", value)
		}
		c.DefaultFormat = value
	}
	return nil
}

func parseNonNegInt(key, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, value)
	}
	return n, nil
}
