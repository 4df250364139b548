// ABOUTME: Configuration loading and parsing for switchboard
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, duration parsing and env overrides

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/2389/switchboard/internal/tenant"
)

// Config represents the complete switchboard configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Agents    AgentsConfig    `yaml:"agents" toml:"agents"`
	Sessions  SessionsConfig  `yaml:"sessions" toml:"sessions"`
	Dedupe    DedupeConfig    `yaml:"dedupe" toml:"dedupe"`
	Frontends FrontendsConfig `yaml:"frontends" toml:"frontends"`
	Tenants   []tenant.Config `yaml:"tenants" toml:"tenants"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`

	// TenantsJSON is the raw TENANTS_JSON list, applied after Tenants.
	TenantsJSON string `yaml:"-" toml:"-"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"` // empty disables the gRPC health service
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"` // serve HTTP on :443 with tailnet certificates
}

// DatabaseConfig holds ledger database configuration. An empty path disables the ledger.
type DatabaseConfig struct {
	Path      string        `yaml:"path" toml:"path"`
	Retention time.Duration `yaml:"-" toml:"-"`

	RetentionRaw string `yaml:"retention" toml:"retention"`
}

// AuthConfig holds admin API authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// AgentsConfig holds defaults for the agent invokers
type AgentsConfig struct {
	DefaultInvokeURL string        `yaml:"default_invoke_url" toml:"default_invoke_url"`
	DefaultTimeout   time.Duration `yaml:"-" toml:"-"`
	MaxRetries       int           `yaml:"max_retries" toml:"max_retries"`
	HealthInterval   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	DefaultTimeoutRaw string `yaml:"default_timeout" toml:"default_timeout"`
	HealthIntervalRaw string `yaml:"health_interval" toml:"health_interval"`
}

// SessionsConfig holds session expiry configuration
type SessionsConfig struct {
	IdleTimeout   time.Duration `yaml:"-" toml:"-"`
	SweepInterval time.Duration `yaml:"-" toml:"-"`

	IdleTimeoutRaw   string `yaml:"idle_timeout" toml:"idle_timeout"`
	SweepIntervalRaw string `yaml:"sweep_interval" toml:"sweep_interval"`
}

// DedupeConfig bounds the redelivery cache
type DedupeConfig struct {
	TTL        time.Duration `yaml:"-" toml:"-"`
	MaxEntries int           `yaml:"max_entries" toml:"max_entries"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// FrontendsConfig holds configuration for all frontend integrations
type FrontendsConfig struct {
	Web     WebConfig     `yaml:"web" toml:"web"`
	Slack   SlackConfig   `yaml:"slack" toml:"slack"`
	Discord DiscordConfig `yaml:"discord" toml:"discord"`
	Matrix  MatrixConfig  `yaml:"matrix" toml:"matrix"`
}

// WebConfig holds HTTP and websocket chat configuration
type WebConfig struct {
	Enabled        bool     `yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"` // websocket origins; empty allows same-origin only
}

// SlackConfig holds Slack integration configuration
type SlackConfig struct {
	Enabled         bool     `yaml:"enabled" toml:"enabled"`
	TenantID        string   `yaml:"tenant_id" toml:"tenant_id"`
	AppToken        string   `yaml:"app_token" toml:"app_token"`
	BotToken        string   `yaml:"bot_token" toml:"bot_token"`
	SigningSecret   string   `yaml:"signing_secret" toml:"signing_secret"`
	AllowedChannels []string `yaml:"allowed_channels" toml:"allowed_channels"`
}

// DiscordConfig holds Discord integration configuration
type DiscordConfig struct {
	Enabled         bool     `yaml:"enabled" toml:"enabled"`
	TenantID        string   `yaml:"tenant_id" toml:"tenant_id"`
	Token           string   `yaml:"token" toml:"token"`
	AllowedChannels []string `yaml:"allowed_channels" toml:"allowed_channels"`
}

// MatrixConfig holds Matrix integration configuration
type MatrixConfig struct {
	Enabled       bool     `yaml:"enabled" toml:"enabled"`
	TenantID      string   `yaml:"tenant_id" toml:"tenant_id"`
	Homeserver    string   `yaml:"homeserver" toml:"homeserver"`
	UserID        string   `yaml:"user_id" toml:"user_id"`
	AccessToken   string   `yaml:"access_token" toml:"access_token"`
	AllowedUsers  []string `yaml:"allowed_users" toml:"allowed_users"`
	AllowedRooms  []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
	CommandPrefix string   `yaml:"command_prefix" toml:"command_prefix"` // empty answers every message
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "text" or "json"
}

// Defaults applied when the file leaves a field unset.
const (
	DefaultHTTPAddr       = ":8080"
	DefaultMaxRetries     = 3
	DefaultHealthInterval = 30 * time.Second
	DefaultIdleTimeout    = 24 * time.Hour
	DefaultSweepInterval  = 5 * time.Minute
	DefaultDedupeTTL      = 5 * time.Minute
	DefaultDedupeEntries  = 100_000
)

// envOverrides are the environment variables honored on top of the file.
type envOverrides struct {
	Port               string `env:"PORT"`
	AgentInvokeURL     string `env:"AGENT_INVOKE_URL"`
	AgentTimeoutMS     int64  `env:"AGENT_TIMEOUT"`
	TenantsJSON        string `env:"TENANTS_JSON"`
	SlackBotToken      string `env:"SLACK_BOT_TOKEN"`
	SlackAppToken      string `env:"SLACK_APP_TOKEN"`
	SlackSigningSecret string `env:"SLACK_SIGNING_SECRET"`
	DiscordToken       string `env:"DISCORD_TOKEN"`
	MatrixHomeserver   string `env:"MATRIX_HOMESERVER"`
	MatrixUserID       string `env:"MATRIX_USER_ID"`
	MatrixAccessToken  string `env:"MATRIX_ACCESS_TOKEN"`
	DBPath             string `env:"SWITCHBOARD_DB_PATH"`
	JWTSecret          string `env:"SWITCHBOARD_JWT_SECRET"`
	LogLevel           string `env:"SWITCHBOARD_LOG_LEVEL"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Server:    ServerConfig{HTTPAddr: DefaultHTTPAddr},
		Frontends: FrontendsConfig{Web: WebConfig{Enabled: true}},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
	cfg.Agents.MaxRetries = DefaultMaxRetries
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded before decoding,
// and the documented environment overrides are applied after.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := &Config{
		Server:    ServerConfig{HTTPAddr: DefaultHTTPAddr},
		Frontends: FrontendsConfig{Web: WebConfig{Enabled: true}},
	}
	cfg.Agents.MaxRetries = -1

	if isTOML(path) {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if cfg.Agents.MaxRetries == -1 {
		cfg.Agents.MaxRetries = DefaultMaxRetries
	}

	return finish(cfg)
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise.
// Environment overrides and validation apply either way.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
	}
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays the environment variables that are set.
func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}

	if o.Port != "" {
		cfg.Server.HTTPAddr = ":" + o.Port
	}
	if o.AgentInvokeURL != "" {
		cfg.Agents.DefaultInvokeURL = o.AgentInvokeURL
	}
	if o.AgentTimeoutMS > 0 {
		cfg.Agents.DefaultTimeout = time.Duration(o.AgentTimeoutMS) * time.Millisecond
	}
	if o.TenantsJSON != "" {
		cfg.TenantsJSON = o.TenantsJSON
	}

	if o.SlackBotToken != "" {
		cfg.Frontends.Slack.BotToken = o.SlackBotToken
	}
	if o.SlackAppToken != "" {
		cfg.Frontends.Slack.AppToken = o.SlackAppToken
	}
	if o.SlackSigningSecret != "" {
		cfg.Frontends.Slack.SigningSecret = o.SlackSigningSecret
	}
	// Socket mode needs both tokens; having them is enough to turn Slack on.
	if o.SlackBotToken != "" && cfg.Frontends.Slack.AppToken != "" {
		cfg.Frontends.Slack.Enabled = true
	}

	if o.DiscordToken != "" {
		cfg.Frontends.Discord.Token = o.DiscordToken
		cfg.Frontends.Discord.Enabled = true
	}

	if o.MatrixHomeserver != "" {
		cfg.Frontends.Matrix.Homeserver = o.MatrixHomeserver
	}
	if o.MatrixUserID != "" {
		cfg.Frontends.Matrix.UserID = o.MatrixUserID
	}
	if o.MatrixAccessToken != "" {
		cfg.Frontends.Matrix.AccessToken = o.MatrixAccessToken
		if cfg.Frontends.Matrix.Homeserver != "" {
			cfg.Frontends.Matrix.Enabled = true
		}
	}

	if o.DBPath != "" {
		cfg.Database.Path = o.DBPath
	}
	if o.JWTSecret != "" {
		cfg.Auth.JWTSecret = o.JWTSecret
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Agents.DefaultInvokeURL == "" {
		cfg.Agents.DefaultInvokeURL = tenant.DefaultInvokeURL
	}
	if cfg.Agents.DefaultTimeout <= 0 {
		cfg.Agents.DefaultTimeout = tenant.DefaultTimeout
	}
	if cfg.Agents.HealthInterval <= 0 {
		cfg.Agents.HealthInterval = DefaultHealthInterval
	}
	if cfg.Sessions.IdleTimeout <= 0 {
		cfg.Sessions.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Sessions.SweepInterval <= 0 {
		cfg.Sessions.SweepInterval = DefaultSweepInterval
	}
	if cfg.Dedupe.TTL <= 0 {
		cfg.Dedupe.TTL = DefaultDedupeTTL
	}
	if cfg.Dedupe.MaxEntries <= 0 {
		cfg.Dedupe.MaxEntries = DefaultDedupeEntries
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Agents.MaxRetries < 0 {
		return fmt.Errorf("agents.max_retries must not be negative")
	}

	if s := c.Frontends.Slack; s.Enabled && (s.BotToken == "" || s.AppToken == "") {
		return fmt.Errorf("frontends.slack requires bot_token and app_token when enabled")
	}

	if d := c.Frontends.Discord; d.Enabled && d.Token == "" {
		return fmt.Errorf("frontends.discord.token is required when discord is enabled")
	}

	if m := c.Frontends.Matrix; m.Enabled && (m.Homeserver == "" || m.UserID == "" || m.AccessToken == "") {
		return fmt.Errorf("frontends.matrix requires homeserver, user_id and access_token when enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.Tenants))
	for i, t := range c.Tenants {
		if t.TenantID == "" {
			return fmt.Errorf("tenants[%d].tenant_id is required", i)
		}
		if seen[t.TenantID] {
			return fmt.Errorf("tenants[%d]: duplicate tenant_id %q", i, t.TenantID)
		}
		seen[t.TenantID] = true
	}

	return nil
}

// TenantDefaults derives the default tenant's settings from the agent and
// frontend sections.
func (c *Config) TenantDefaults() tenant.Defaults {
	return tenant.Defaults{
		InvokeURL:          c.Agents.DefaultInvokeURL,
		TimeoutMS:          c.Agents.DefaultTimeout.Milliseconds(),
		SlackBotToken:      c.Frontends.Slack.BotToken,
		SlackAppToken:      c.Frontends.Slack.AppToken,
		SlackSigningSecret: c.Frontends.Slack.SigningSecret,
		DiscordToken:       c.Frontends.Discord.Token,
		MatrixHomeserver:   c.Frontends.Matrix.Homeserver,
		MatrixUserID:       c.Frontends.Matrix.UserID,
		MatrixAccessToken:  c.Frontends.Matrix.AccessToken,
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"database.retention", cfg.Database.RetentionRaw, &cfg.Database.Retention},
		{"agents.default_timeout", cfg.Agents.DefaultTimeoutRaw, &cfg.Agents.DefaultTimeout},
		{"agents.health_interval", cfg.Agents.HealthIntervalRaw, &cfg.Agents.HealthInterval},
		{"sessions.idle_timeout", cfg.Sessions.IdleTimeoutRaw, &cfg.Sessions.IdleTimeout},
		{"sessions.sweep_interval", cfg.Sessions.SweepIntervalRaw, &cfg.Sessions.SweepInterval},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}

	return nil
}
