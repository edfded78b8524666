// internal/config/config.go

// Package config provides configuration loading for the Golden Cobra service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"goldencobra/internal/goals"
	"goldencobra/internal/ranks"
)

// Config represents the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	NATS      NATSConfig      `yaml:"nats"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bot       BotConfig       `yaml:"bot"`
	Ranks     []RankConfig    `yaml:"ranks"`
	Goals     []GoalConfig    `yaml:"goals"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Port the web server listens on (default: 8080)
	Port string `yaml:"port"`
	// WebURL is the public base URL, used for the shop button
	WebURL string `yaml:"web_url"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// Timeout bounds every store call made by the service
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is console or json
	Format string `yaml:"format"`
}

// NATSConfig configures event publication. An empty URL logs events instead.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	// OTLPEndpoint is host:port or a base URL of an OTLP/HTTP collector; empty disables export
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

// BotConfig configures the inbound action surface.
type BotConfig struct {
	// SpendPresets are the amounts offered as buttons
	SpendPresets []int64 `yaml:"spend_presets"`
	// RatePerMinute is the number of actions a single user may send per minute
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
	// LeaderboardSize is how many users the rating screen shows
	LeaderboardSize int `yaml:"leaderboard_size"`
	// WebhookSecret, when set, must accompany every inbound action
	WebhookSecret string `yaml:"webhook_secret"`
}

// RankConfig is one rung of the rank ladder.
type RankConfig struct {
	Name      string `yaml:"name"`
	Icon      string `yaml:"icon"`
	Color     string `yaml:"color"`
	Threshold Amount `yaml:"threshold"`
}

// GoalConfig is one community milestone.
type GoalConfig struct {
	Target Amount `yaml:"target"`
	Reward string `yaml:"reward"`
}

// Amount is a decimal that decodes from YAML numbers or strings.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", value.Line)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(value.Value, "_", ""))
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q: %w", value.Line, value.Value, err)
	}
	a.Decimal = d
	return nil
}

func (a Amount) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			Timeout:         5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		NATS: NATSConfig{
			SubjectPrefix: "goldencobra",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "goldencobra",
		},
		Bot: BotConfig{
			SpendPresets:    []int64{100, 500, 1000, 5000, 10000},
			RatePerMinute:   30,
			Burst:           5,
			LeaderboardSize: 10,
		},
	}
	for _, r := range ranks.Default().All() {
		cfg.Ranks = append(cfg.Ranks, RankConfig{Name: r.Name, Icon: r.Icon, Color: r.Color, Threshold: Amount{r.Threshold}})
	}
	for _, g := range goals.Default().All() {
		cfg.Goals = append(cfg.Goals, GoalConfig{Target: Amount{g.Target}, Reward: g.Reward})
	}
	return cfg
}

// LoadFromFile decodes path on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then the optional file,
// then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = fileCfg
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the process environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("DATABASE_URL", &c.Database.URL)
	set("PORT", &c.Server.Port)
	set("WEB_URL", &c.Server.WebURL)
	set("NATS_URL", &c.NATS.URL)
	set("LOG_LEVEL", &c.Log.Level)
	set("LOG_FORMAT", &c.Log.Format)
	set("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	set("OTEL_SERVICE_NAME", &c.Telemetry.ServiceName)
	set("BOT_WEBHOOK_SECRET", &c.Bot.WebhookSecret)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of console, json", c.Log.Format))
	}
	if c.Bot.RatePerMinute <= 0 {
		errs = append(errs, errors.New("bot.rate_per_minute must be positive"))
	}
	if c.Bot.Burst <= 0 {
		errs = append(errs, errors.New("bot.burst must be positive"))
	}
	if c.Bot.LeaderboardSize <= 0 {
		errs = append(errs, errors.New("bot.leaderboard_size must be positive"))
	}
	for _, p := range c.Bot.SpendPresets {
		if p <= 0 {
			errs = append(errs, fmt.Errorf("bot.spend_presets: %d is not positive", p))
		}
	}
	if err := ranks.Validate(c.rankList()); err != nil {
		errs = append(errs, fmt.Errorf("ranks: %w", err))
	}
	for i, g := range c.Goals {
		if !g.Target.IsPositive() {
			errs = append(errs, fmt.Errorf("goals[%d]: target must be positive", i))
		}
		if i > 0 && !g.Target.GreaterThan(c.Goals[i-1].Target.Decimal) {
			errs = append(errs, fmt.Errorf("goals[%d]: targets must be strictly increasing", i))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) rankList() []ranks.Rank {
	out := make([]ranks.Rank, len(c.Ranks))
	for i, r := range c.Ranks {
		out[i] = ranks.Rank{Name: r.Name, Icon: r.Icon, Color: r.Color, Threshold: r.Threshold.Decimal}
	}
	return out
}

// RankTable builds the rank ladder.
func (c *Config) RankTable() *ranks.Table {
	return ranks.NewTable(c.rankList())
}

// GoalTracker builds the community goal list.
func (c *Config) GoalTracker() *goals.Tracker {
	out := make([]goals.Goal, len(c.Goals))
	for i, g := range c.Goals {
		out[i] = goals.Goal{Target: g.Target.Decimal, Reward: g.Reward}
	}
	return goals.NewTracker(out)
}
