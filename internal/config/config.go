// Package config loads syncache configuration from YAML or TOML files.
//
// Loading happens in four steps: the file is decoded into a generic document,
// the document is checked against the embedded CUE schema, the document is
// decoded strictly into Config over the defaults, and finally environment
// overrides are applied.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/syncache/internal/engine"
	"github.com/roach88/syncache/internal/realtime"
	"github.com/roach88/syncache/internal/transform"
)

// Config is the top-level configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Caches  []CacheConfig `yaml:"caches" toml:"caches"`
}

// ServerConfig locates the authoritative server. URL is used by clients;
// Addr and DB by `syncache serve`.
type ServerConfig struct {
	URL  string `yaml:"url" toml:"url"`
	Addr string `yaml:"addr" toml:"addr"`
	DB   string `yaml:"db" toml:"db"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"` // "debug", "info", "warn", "error"
}

// CacheConfig describes one named cache.
type CacheConfig struct {
	Name         string            `yaml:"name" toml:"name"`
	StaleTime    Duration          `yaml:"stale_time" toml:"stale_time"`
	Realtime     bool              `yaml:"realtime" toml:"realtime"`
	AllowEcho    bool              `yaml:"allow_echo" toml:"allow_echo"`
	MaxSnapshots int               `yaml:"max_snapshots" toml:"max_snapshots"`
	Fields       map[string]string `yaml:"fields" toml:"fields"`
	Defaults     map[string]any    `yaml:"defaults" toml:"defaults"`
	CreatedAt    string            `yaml:"created_at" toml:"created_at"`
}

// Duration is a time.Duration that can be unmarshaled from strings like "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// UnmarshalYAML decodes a scalar duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string", node.Line)
	}
	if err := d.UnmarshalText([]byte(node.Value)); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Default returns a Config with all default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:  "http://127.0.0.1:8080",
			Addr: "127.0.0.1:8080",
			DB:   "syncache.db",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Cache returns the cache named name. Caches not listed in the file get
// a zero CacheConfig with only the name set.
func (c *Config) Cache(name string) CacheConfig {
	for _, cc := range c.Caches {
		if cc.Name == name {
			return cc
		}
	}
	return CacheConfig{Name: name}
}

// SlogLevel maps Logging.Level to a slog level. Unknown levels mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// validate checks what the schema cannot express.
func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Caches))
	for _, cc := range c.Caches {
		if seen[cc.Name] {
			return fmt.Errorf("duplicate cache %q", cc.Name)
		}
		seen[cc.Name] = true
		if cc.StaleTime < 0 {
			return fmt.Errorf("cache %q: negative stale_time", cc.Name)
		}
	}
	return nil
}

// Transformer builds the cache's field transformer. It returns nil when no
// fields, defaults or created_at stamp are configured.
func (cc CacheConfig) Transformer() (*transform.FieldTransformer, error) {
	if len(cc.Fields) == 0 && len(cc.Defaults) == 0 && cc.CreatedAt == "" {
		return nil, nil
	}
	var opts []transform.FieldOption
	if len(cc.Defaults) > 0 {
		opts = append(opts, transform.WithDefaults(cc.Defaults))
	}
	if cc.CreatedAt != "" {
		opts = append(opts, transform.WithCreatedAt(cc.CreatedAt))
	}
	t, err := transform.FromSpec(cc.Fields, opts...)
	if err != nil {
		return nil, fmt.Errorf("cache %q: %w", cc.Name, err)
	}
	return t, nil
}

// EngineConfig converts cc into the manager configuration and options.
func (cc CacheConfig) EngineConfig() (engine.Config, []engine.ManagerOption, error) {
	cfg := engine.Config{
		Name:      cc.Name,
		StaleTime: cc.StaleTime.Duration(),
	}
	t, err := cc.Transformer()
	if err != nil {
		return engine.Config{}, nil, err
	}
	if t != nil {
		cfg.Transformer = t
	}
	if cc.Realtime {
		cfg.Realtime = &realtime.Config{AllowEcho: cc.AllowEcho}
	}
	var opts []engine.ManagerOption
	if cc.MaxSnapshots > 0 {
		opts = append(opts, engine.WithMaxSnapshots(cc.MaxSnapshots))
	}
	return cfg, opts, nil
}
