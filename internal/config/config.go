package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/ksense/internal/logging"
	"github.com/dshills/ksense/internal/lsp"
)

// Environment variables read by ApplyEnv.
const (
	EnvLogLevel   = "KSENSE_LOG_LEVEL"
	EnvMaxItems   = "KSENSE_MAX_ITEMS"
	EnvWindowRows = "KSENSE_WINDOW_ROWS"
	EnvWorkspace  = "KSENSE_WORKSPACE"
)

// Config holds every ksense setting.
type Config struct {
	// Workspace is the project root handed to analysis servers.
	// Empty means the current directory.
	Workspace string `toml:"workspace" yaml:"workspace"`

	Log        LogConfig               `toml:"log" yaml:"log"`
	Completion CompletionConfig        `toml:"completion" yaml:"completion"`
	Servers    map[string]ServerConfig `toml:"servers" yaml:"servers"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is one of "debug", "info", "warn" or "error".
	Level string `toml:"level" yaml:"level"`
}

// CompletionConfig configures ranking and the suggestion menu.
type CompletionConfig struct {
	// MaxItems caps the ranked candidate list.
	MaxItems int `toml:"max_items" yaml:"max_items"`
	// WindowRows is the number of menu rows shown at once.
	WindowRows int `toml:"window_rows" yaml:"window_rows"`
	// RetriggerOnType requests fresh completions after an identifier
	// character is typed while the menu is open.
	RetriggerOnType bool `toml:"retrigger_on_type" yaml:"retrigger_on_type"`
}

// ServerConfig overrides one built-in server entry.
type ServerConfig struct {
	// Command replaces the executable. Empty keeps the default.
	Command string `toml:"command" yaml:"command"`
	// Args replaces the arguments when Command is set.
	Args []string `toml:"args" yaml:"args"`
	// Disabled stops files of this language from starting a server.
	Disabled bool `toml:"disabled" yaml:"disabled"`
}

var validLevels = []string{"debug", "info", "warn", "warning", "error"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Completion: CompletionConfig{
			MaxItems:   12,
			WindowRows: 8,
		},
		Servers: make(map[string]ServerConfig),
	}
}

// Load reads path over the defaults. A missing file, or an empty path,
// yields the defaults. Files ending in .yaml or .yml are YAML; anything
// else is TOML.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerConfig)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return &ParseError{Path: path, Message: err.Error(), Err: err}
		}
		return nil
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			perr := &ParseError{Path: path, Message: err.Error(), Err: err}
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				perr.Line, perr.Column = derr.Position()
			}
			return perr
		}
		return nil
	}
}

// ApplyEnv overlays environment variables using lookup, normally
// os.LookupEnv. Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvWorkspace); ok && v != "" {
		c.Workspace = v
	}
	if err := envInt(lookup, EnvMaxItems, "completion.max_items", &c.Completion.MaxItems); err != nil {
		return err
	}
	return envInt(lookup, EnvWindowRows, "completion.window_rows", &c.Completion.WindowRows)
}

func envInt(lookup func(string) (string, bool), key, field string, dst *int) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return &FieldError{Field: field, Value: v, Err: ErrInvalidValue}
	}
	*dst = n
	return nil
}

// Validate reports the first setting outside its range.
func (c *Config) Validate() error {
	if c.Log.Level != "" && !slices.Contains(validLevels, strings.ToLower(c.Log.Level)) {
		return &FieldError{Field: "log.level", Value: c.Log.Level, Err: ErrInvalidValue}
	}
	if c.Completion.MaxItems <= 0 {
		return &FieldError{Field: "completion.max_items", Value: c.Completion.MaxItems, Err: ErrInvalidValue}
	}
	if c.Completion.WindowRows <= 0 {
		return &FieldError{Field: "completion.window_rows", Value: c.Completion.WindowRows, Err: ErrInvalidValue}
	}
	return nil
}

// LogLevel returns the configured logging level.
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Log.Level)
}

// Resolver builds a server resolver with the servers section applied.
// Keys are processed in sorted order so the first unknown key reported
// is stable.
func (c *Config) Resolver() (*lsp.Resolver, error) {
	r := lsp.NewResolver()

	keys := make([]string, 0, len(c.Servers))
	for key := range c.Servers {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		sc := c.Servers[key]
		if !r.Override(key, sc.Command, sc.Args) {
			return nil, &FieldError{Field: "servers." + key, Value: key, Err: ErrUnknownServer}
		}
		if sc.Disabled {
			r.Disable(key)
		}
	}
	return r, nil
}
