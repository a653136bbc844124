// Package config handles reading and writing the relay configuration file (~/.relay/config.toml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds relay configuration settings.
type Config struct {
	DBPath        string   `toml:"db_path,omitempty" json:"db_path,omitempty"`
	DefaultTool   string   `toml:"default_tool,omitempty" json:"default_tool,omitempty"`
	DefaultFormat string   `toml:"default_format,omitempty" json:"default_format,omitempty"`
	StoreMode     string   `toml:"store_mode,omitempty" json:"store_mode,omitempty"`
	RemoteURL     string   `toml:"remote_url,omitempty" json:"remote_url,omitempty"`
	RunTimeout    int      `toml:"run_timeout,omitempty" json:"run_timeout,omitempty"`
	SkillRoots    []string `toml:"skill_roots,omitempty" json:"skill_roots,omitempty"`
	AgentRoots    []string `toml:"agent_roots,omitempty" json:"agent_roots,omitempty"`
}

// validKeys lists the allowed configuration keys.
var validKeys = map[string]bool{
	"db_path":        true,
	"default_tool":   true,
	"default_format": true,
	"store_mode":     true,
	"remote_url":     true,
	"run_timeout":    true,
	"skill_roots":    true,
	"agent_roots":    true,
}

// ValidKeys returns the sorted list of valid configuration keys.
func ValidKeys() []string {
	return []string{"agent_roots", "db_path", "default_format", "default_tool", "remote_url", "run_timeout", "skill_roots", "store_mode"}
}

// Dir returns the relay data directory (~/.relay).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".relay")
	}
	return filepath.Join(home, ".relay")
}

// Path returns the default config file path (~/.relay/config.toml).
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// DefaultDBPath returns the default database path (~/.relay/relay.db).
func DefaultDBPath() string {
	return filepath.Join(Dir(), "relay.db")
}

// Load reads the config from the default path.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the config from a specific path. Returns an empty Config
// if the file does not exist.
func LoadFrom(path string) (*Config, error) {
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

// Save writes the config to the default path.
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

// SaveTo writes the config to a specific path, creating parent directories as needed.
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
	case "db_path":
		return c.DBPath, nil
	case "default_tool":
		return c.DefaultTool, nil
	case "default_format":
		return c.DefaultFormat, nil
	case "store_mode":
		return c.StoreMode, nil
	case "remote_url":
		return c.RemoteURL, nil
	case "run_timeout":
		if c.RunTimeout == 0 {
			return "", nil
		}
		return strconv.Itoa(c.RunTimeout), nil
	case "skill_roots":
		return strings.Join(c.SkillRoots, ","), nil
	case "agent_roots":
		return strings.Join(c.AgentRoots, ","), nil
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
	case "db_path":
		c.DBPath = value
	case "default_tool":
		c.DefaultTool = value
	case "default_format":
		if value != "" && value != "table" && value != "json" {
			return fmt.Errorf("default_format must be \"table\" or \"json\", got %q", value)
		}
		c.DefaultFormat = value
	case "store_mode":
		if value != "" && value != "local" && value != "remote" {
			return fmt.Errorf("store_mode must be \"local\" or \"remote\", got %q", value)
		}
		c.StoreMode = value
	case "remote_url":
		c.RemoteURL = value
	case "run_timeout":
		if value == "" {
			c.RunTimeout = 0
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("run_timeout must be a non-negative number of seconds, got %q", value)
		}
		c.RunTimeout = n
	case "skill_roots":
		if value == "" {
			c.SkillRoots = nil
		} else {
			c.SkillRoots = strings.Split(value, ",")
		}
	case "agent_roots":
		if value == "" {
			c.AgentRoots = nil
		} else {
			c.AgentRoots = strings.Split(value, ",")
		}
	}
	return nil
}
