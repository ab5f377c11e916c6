// Package config loads shell settings from a YAML file and WATCH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "watchshell.yaml"

// EnvPrefix prefixes every environment override. A double underscore
// separates levels: WATCH_STORAGE__PATH sets storage.path.
const EnvPrefix = "WATCH_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Storage   StorageConfig   `koanf:"storage"`
	Journal   JournalConfig   `koanf:"journal"`
	Network   NetworkConfig   `koanf:"network"`
	Engine    EngineConfig    `koanf:"engine"`
	Events    EventsConfig    `koanf:"events"`
	Core      CoreConfig      `koanf:"core"`
	Callback  CallbackConfig  `koanf:"callback"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

// StorageConfig locates the key-value store. An empty path or ":memory:"
// keeps everything in memory.
type StorageConfig struct {
	Path    string        `koanf:"path"`
	Timeout time.Duration `koanf:"timeout"`
}

type JournalConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

type NetworkConfig struct {
	Timeout              time.Duration `koanf:"timeout"`
	BlockPrivateNetworks bool          `koanf:"block_private_networks"`
}

type EngineConfig struct {
	MaxSteps   int  `koanf:"max_steps"`
	Sequential bool `koanf:"sequential"`
}

type EventsConfig struct {
	Buffer int `koanf:"buffer"` // per-subscriber shell event buffer
}

// CoreConfig selects the decision core: a script file, an external command
// speaking the framed pipe protocol, or the built-in script when both are
// empty.
type CoreConfig struct {
	Script  string            `koanf:"script"`
	Command []string          `koanf:"command"`
	Vars    map[string]string `koanf:"vars"` // ${VAR} references are expanded
}

type CallbackConfig struct {
	RedirectURI string `koanf:"redirect_uri"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]any{
	"log.level":                      "info",
	"log.format":                     "text",
	"storage.path":                   "watch-history.db",
	"storage.timeout":                "5s",
	"journal.enabled":                false,
	"journal.path":                   "watch-journal.db",
	"network.timeout":                "30s",
	"network.block_private_networks": false,
	"engine.max_steps":               1000,
	"engine.sequential":              false,
	"events.buffer":                  16,
	"callback.redirect_uri":          "http://localhost:8080/callback",
	"telemetry.enabled":              false,
	"telemetry.service_name":         "watchshell",
}

// Load reads path (or DefaultFile when path is empty and the file exists),
// applies WATCH_* overrides and fills defaults. The result is validated.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for name, v := range cfg.Core.Vars {
		cfg.Core.Vars[name] = substituteEnvVars(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	if c.Engine.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("engine.max_steps: must not be negative"))
	}
	if c.Events.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("events.buffer: must be positive"))
	}
	if c.Network.Timeout < 0 || c.Storage.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeouts must not be negative"))
	}
	if c.Core.Script != "" && len(c.Core.Command) > 0 {
		errs = append(errs, fmt.Errorf("core: script and command are mutually exclusive"))
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, fmt.Errorf("journal.path: required when the journal is enabled"))
	}
	if u, err := url.Parse(c.Callback.RedirectURI); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("callback.redirect_uri: %q is not an absolute URL", c.Callback.RedirectURI))
	}
	return errors.Join(errs...)
}

// AcceptsCallback reports whether a callback URL is addressed to the
// configured redirect URI.
func (c *Config) AcceptsCallback(raw string) bool {
	return strings.HasPrefix(raw, c.Callback.RedirectURI)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
