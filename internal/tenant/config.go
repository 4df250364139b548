// ABOUTME: Tenant configuration records: enabled channels, credentials, agent endpoint
// ABOUTME: JSON tags match the TENANTS_JSON record shape; yaml/toml tags serve config files

package tenant

import (
	"time"

	"github.com/2389/switchboard/internal/message"
)

// DefaultID is the tenant used when a message does not name one.
const DefaultID = "default"

// DefaultTimeout applies when a tenant does not set an agent timeout.
const DefaultTimeout = 30 * time.Second

// DefaultInvokeURL is the agent endpoint used when nothing else is configured.
const DefaultInvokeURL = "http://localhost:3000/api/chat"

// Config describes one tenant.
type Config struct {
	TenantID string        `json:"tenantId" yaml:"tenant_id" toml:"tenant_id"`
	Name     string        `json:"name" yaml:"name" toml:"name"`
	Web      WebConfig     `json:"web" yaml:"web" toml:"web"`
	Slack    SlackConfig   `json:"slack" yaml:"slack" toml:"slack"`
	Discord  DiscordConfig `json:"discord" yaml:"discord" toml:"discord"`
	Matrix   MatrixConfig  `json:"matrix" yaml:"matrix" toml:"matrix"`
	Agent    AgentConfig   `json:"agentConfig" yaml:"agent" toml:"agent"`
}

// WebConfig needs no credentials.
type WebConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// SlackConfig holds the Slack app credentials.
type SlackConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	BotToken      string `json:"botToken,omitempty" yaml:"bot_token" toml:"bot_token"`
	AppToken      string `json:"appToken,omitempty" yaml:"app_token" toml:"app_token"`
	SigningSecret string `json:"signingSecret,omitempty" yaml:"signing_secret" toml:"signing_secret"`
}

// DiscordConfig holds the Discord bot token.
type DiscordConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Token   string `json:"token,omitempty" yaml:"token" toml:"token"`
}

// MatrixConfig holds the Matrix bot account.
type MatrixConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Homeserver  string `json:"homeserver,omitempty" yaml:"homeserver" toml:"homeserver"`
	UserID      string `json:"userId,omitempty" yaml:"user_id" toml:"user_id"`
	AccessToken string `json:"accessToken,omitempty" yaml:"access_token" toml:"access_token"`
}

// AgentConfig points at the tenant's agent endpoint. TimeoutMS is in milliseconds.
type AgentConfig struct {
	InvokeURL string `json:"invokeUrl" yaml:"invoke_url" toml:"invoke_url"`
	TimeoutMS int64  `json:"timeout,omitempty" yaml:"timeout_ms" toml:"timeout_ms"`
}

// Timeout returns the per-call agent timeout, defaulting to 30s.
func (a AgentConfig) Timeout() time.Duration {
	if a.TimeoutMS <= 0 {
		return DefaultTimeout
	}
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

// URL returns the invoke URL, defaulting to DefaultInvokeURL.
func (a AgentConfig) URL() string {
	if a.InvokeURL == "" {
		return DefaultInvokeURL
	}
	return a.InvokeURL
}

// Usable reports whether at least one channel is enabled with its credentials present.
func (c Config) Usable() bool {
	for _, ch := range message.Channels() {
		if c.ChannelReady(ch) {
			return true
		}
	}
	return false
}

// ChannelReady reports whether ch is enabled and fully credentialed for this tenant.
func (c Config) ChannelReady(ch message.Channel) bool {
	switch ch {
	case message.ChannelWeb:
		return c.Web.Enabled
	case message.ChannelSlack:
		return c.Slack.Enabled && c.Slack.BotToken != ""
	case message.ChannelDiscord:
		return c.Discord.Enabled && c.Discord.Token != ""
	case message.ChannelMatrix:
		return c.Matrix.Enabled && c.Matrix.AccessToken != "" && c.Matrix.Homeserver != ""
	default:
		return false
	}
}

// Channels lists the channels that are ready for this tenant.
func (c Config) Channels() []message.Channel {
	var out []message.Channel
	for _, ch := range message.Channels() {
		if c.ChannelReady(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Redacted returns a copy with every credential masked, for admin listings.
func (c Config) Redacted() Config {
	c.Slack.BotToken = mask(c.Slack.BotToken)
	c.Slack.AppToken = mask(c.Slack.AppToken)
	c.Slack.SigningSecret = mask(c.Slack.SigningSecret)
	c.Discord.Token = mask(c.Discord.Token)
	c.Matrix.AccessToken = mask(c.Matrix.AccessToken)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
