// ABOUTME: Registry bootstrap from defaults, configured tenants and TENANTS_JSON
// ABOUTME: A malformed TENANTS_JSON is logged and skipped so startup continues

package tenant

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Defaults are the environment-derived settings of the default tenant.
type Defaults struct {
	InvokeURL          string
	TimeoutMS          int64
	SlackBotToken      string
	SlackAppToken      string
	SlackSigningSecret string
	DiscordToken       string
	MatrixHomeserver   string
	MatrixUserID       string
	MatrixAccessToken  string
}

// DefaultTenant builds the always-present default tenant. Web is always
// enabled; chat channels are enabled when their token is set.
func DefaultTenant(d Defaults) Config {
	return Config{
		TenantID: DefaultID,
		Name:     "Default Tenant",
		Web:      WebConfig{Enabled: true},
		Slack: SlackConfig{
			Enabled:       d.SlackBotToken != "",
			BotToken:      d.SlackBotToken,
			AppToken:      d.SlackAppToken,
			SigningSecret: d.SlackSigningSecret,
		},
		Discord: DiscordConfig{
			Enabled: d.DiscordToken != "",
			Token:   d.DiscordToken,
		},
		Matrix: MatrixConfig{
			Enabled:     d.MatrixAccessToken != "" && d.MatrixHomeserver != "",
			Homeserver:  d.MatrixHomeserver,
			UserID:      d.MatrixUserID,
			AccessToken: d.MatrixAccessToken,
		},
		Agent: AgentConfig{
			InvokeURL: AgentConfig{InvokeURL: d.InvokeURL}.URL(),
			TimeoutMS: d.TimeoutMS,
		},
	}
}

// ParseList decodes a JSON array of tenant records.
func ParseList(raw string) ([]Config, error) {
	var list []Config
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("parsing tenant list: %w", err)
	}
	return list, nil
}

// Bootstrap builds a registry holding the default tenant, then configured
// tenants, then the TENANTS_JSON records, each layer overriding the last.
func Bootstrap(logger *slog.Logger, def Config, configured []Config, tenantsJSON string) *Registry {
	reg := NewRegistry(logger, def)
	for _, t := range configured {
		reg.Register(t)
	}

	if strings.TrimSpace(tenantsJSON) == "" {
		return reg
	}

	list, err := ParseList(tenantsJSON)
	if err != nil {
		reg.logger.Warn("failed to parse TENANTS_JSON, continuing without it", "error", err)
		return reg
	}
	for _, t := range list {
		reg.Register(t)
	}

	reg.logger.Info("tenants loaded", "count", reg.Len())
	return reg
}
