package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PLOTLINK_STORE_REDIS_ADDR.
const EnvPrefix = "PLOTLINK"

// Config is the plotlink service configuration (plotlink.yaml).
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Probe  ProbeConfig  `yaml:"probe" mapstructure:"probe"`
	Events EventsConfig `yaml:"events" mapstructure:"events"`
	Runner RunnerConfig `yaml:"runner" mapstructure:"runner"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr" mapstructure:"addr"`
	Surface string `yaml:"surface" mapstructure:"surface"` // recorder | terminal
}

type StoreConfig struct {
	Kind  string      `yaml:"kind" mapstructure:"kind"` // memory | file | redis
	Dir   string      `yaml:"dir" mapstructure:"dir"`
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`

	// MaskPatterns are regular expressions; matching client names are masked in stored snapshots.
	MaskPatterns []string `yaml:"mask_patterns" mapstructure:"mask_patterns"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	Prefix   string        `yaml:"prefix" mapstructure:"prefix"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
}

type ProbeConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type EventsConfig struct {
	// Kinds is the allow-list of event kinds; empty accepts any well-formed kind.
	Kinds   []string `yaml:"kinds" mapstructure:"kinds"`
	MaxSize int      `yaml:"max_size" mapstructure:"max_size"`
}

type RunnerConfig struct {
	Buffer          int  `yaml:"buffer" mapstructure:"buffer"`
	CoalesceRefresh bool `yaml:"coalesce_refresh" mapstructure:"coalesce_refresh"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    ":8080",
			Surface: "recorder",
		},
		Store: StoreConfig{
			Kind: "memory",
			Dir:  ".plotlink/plots",
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Prefix:  "plotlink:plot:",
				LockTTL: 10 * time.Second,
			},
		},
		Probe: ProbeConfig{
			Timeout: 2 * time.Second,
		},
		Events: EventsConfig{
			MaxSize: 4096,
		},
		Runner: RunnerConfig{
			Buffer: 64,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// PLOTLINK_* environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg, os.Environ()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	switch c.Server.Surface {
	case "recorder", "terminal":
	default:
		return fmt.Errorf("unknown surface %q", c.Server.Surface)
	}
	if c.Events.MaxSize <= 0 {
		return fmt.Errorf("events max_size must be positive")
	}
	if c.Runner.Buffer < 0 {
		return fmt.Errorf("runner buffer must not be negative")
	}
	return nil
}

// ApplyEnv overlays environment variables named PLOTLINK_<SECTION>_<KEY> onto cfg.
// Lists are comma separated and durations use time.ParseDuration syntax.
func ApplyEnv(cfg *Config, environ []string) error {
	env := make(map[string]string)
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix+"_") {
			env[k] = v
		}
	}
	if len(env) == 0 {
		return nil
	}

	overrides := make(map[string]any)
	for _, path := range leafPaths(reflect.TypeOf(Config{}), nil) {
		name := EnvPrefix + "_" + strings.ToUpper(strings.Join(path, "_"))
		if v, ok := env[name]; ok {
			setPath(overrides, path, v)
		}
	}
	if len(overrides) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to build env decoder: %w", err)
	}
	if err := decoder.Decode(overrides); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// leafPaths lists the mapstructure tag paths of every non-struct field.
func leafPaths(t reflect.Type, prefix []string) [][]string {
	var paths [][]string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		path := append(append([]string{}, prefix...), tag)
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			paths = append(paths, leafPaths(f.Type, path)...)
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

func setPath(m map[string]any, path []string, v string) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}
