package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/labelmate/labeld/internal/group"
)

// Config represents the application configuration
type Config struct {
	Hub             HubConfig      `yaml:"hub"`
	Database        DatabaseConfig `yaml:"database"`
	Log             LogConfig      `yaml:"log"`
	API             APIConfig      `yaml:"api"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Engine          EngineConfig   `yaml:"engine"`
	Groups          []GroupConfig  `yaml:"groups"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HubConfig contains hub connection settings
type HubConfig struct {
	URL     string   `yaml:"url"`   // WebSocket API endpoint, e.g. ws://hub.local:8123/api/websocket
	Token   string   `yaml:"token"` // Long-lived access token
	Timeout Duration `yaml:"timeout"`

	// Event subscription reconnect settings
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // Minimum backoff between reconnects (default: 1s)
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // Maximum backoff between reconnects (default: 2m)
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // Backoff multiplier (default: 2.0)
	MaxReconnects   int      `yaml:"max_reconnects"`    // Max reconnect attempts, 0 = infinite (default: 0)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// APIConfig contains HTTP API server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// EngineConfig contains group engine settings
type EngineConfig struct {
	Debounce          Duration `yaml:"debounce"`           // Window for coalescing change notifications
	Suppression       Duration `yaml:"suppression"`        // Optimistic window after a command dispatch
	RateLimitRPS      float64  `yaml:"rate_limit_rps"`     // Command dispatch rate limit
	DefaultBrightness int      `yaml:"default_brightness"` // Fallback brightness for light groups
}

// GroupConfig declares one label group.
type GroupConfig struct {
	Label   string   `yaml:"label"`
	Type    string   `yaml:"type"`    // switch | light | scene
	Color   string   `yaml:"color"`   // hex display color for light groups
	Domains []string `yaml:"domains"` // allowed-domain override
}

// GroupType returns the group type with default
func (g *GroupConfig) GroupType() group.GroupType {
	if g.Type == "" {
		return group.TypeSwitch
	}
	return group.GroupType(g.Type)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./labeld.sqlite"
	}

	// Hub defaults
	if cfg.Hub.Timeout == 0 {
		cfg.Hub.Timeout = Duration(30 * time.Second)
	}
	if cfg.Hub.MinRetryBackoff == 0 {
		cfg.Hub.MinRetryBackoff = Duration(1 * time.Second)
	}
	if cfg.Hub.MaxRetryBackoff == 0 {
		cfg.Hub.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if cfg.Hub.RetryMultiplier == 0 {
		cfg.Hub.RetryMultiplier = 2.0
	}
	// MaxReconnects defaults to 0 (infinite), no need to set

	// Engine defaults
	if cfg.Engine.Debounce == 0 {
		cfg.Engine.Debounce = Duration(250 * time.Millisecond)
	}
	if cfg.Engine.Suppression == 0 {
		cfg.Engine.Suppression = Duration(1 * time.Second)
	}
	if cfg.Engine.RateLimitRPS == 0 {
		cfg.Engine.RateLimitRPS = 10.0
	}
	if cfg.Engine.DefaultBrightness == 0 {
		cfg.Engine.DefaultBrightness = group.DefaultBrightness
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 9090
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// validate rejects configurations that would otherwise surface as runtime
// faults inside the engines: empty labels and unknown group types never
// reach the core.
func (c *Config) validate() error {
	if c.Hub.URL == "" {
		return fmt.Errorf("hub.url is required")
	}
	for i, g := range c.Groups {
		if strings.TrimSpace(g.Label) == "" {
			return fmt.Errorf("groups[%d]: label is required", i)
		}
		if gt := g.GroupType(); !gt.Valid() {
			return fmt.Errorf("groups[%d] (%s): unknown group type %q", i, g.Label, g.Type)
		}
		for _, d := range g.Domains {
			if !group.Domain(d).Countable() {
				return fmt.Errorf("groups[%d] (%s): unknown domain %q", i, g.Label, d)
			}
		}
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
