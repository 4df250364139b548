// ABOUTME: Composition root: builds ledger, tenants, sessions, gateway, adapters and server from config
// ABOUTME: Chat adapters are only constructed when their frontend is enabled

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/conversation"
	"github.com/2389/switchboard/internal/dedupe"
	"github.com/2389/switchboard/internal/frontend"
	"github.com/2389/switchboard/internal/gateway"
	"github.com/2389/switchboard/internal/server"
	"github.com/2389/switchboard/internal/session"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/tenant"
)

type app struct {
	gateway *gateway.Gateway
	server  *server.Server
	ledger  store.Ledger
	dedupe  *dedupe.Cache
}

func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	if cfg.Database.Path != "" {
		if cfg.Database.Path != store.MemoryPath {
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		ledger, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		a.ledger = ledger
	}

	tenants := tenant.Bootstrap(logger, tenant.DefaultTenant(cfg.TenantDefaults()), cfg.Tenants, cfg.TenantsJSON)
	a.dedupe = dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxEntries)
	sessions := session.New(
		session.WithIdleTimeout(cfg.Sessions.IdleTimeout),
		session.WithLogger(logger),
	)

	gw, err := gateway.New(gateway.Config{
		Tenants:    tenants,
		Sessions:   sessions,
		Ledger:     a.ledger,
		Feed:       conversation.NewEventBroadcaster(logger),
		Dedupe:     a.dedupe,
		MaxRetries: cfg.Agents.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating gateway: %w", err)
	}
	a.gateway = gw

	web, err := registerAdapters(cfg, gw, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	srv, err := server.New(server.Options{
		Config:  cfg,
		Gateway: gw,
		Web:     web,
		Ledger:  a.ledger,
		Logger:  logger,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating server: %w", err)
	}
	a.server = srv
	return a, nil
}

// registerAdapters builds every enabled frontend and registers it with the
// gateway. The web adapter is returned for route mounting.
func registerAdapters(cfg *config.Config, gw *gateway.Gateway, logger *slog.Logger) (*frontend.Web, error) {
	fc := cfg.Frontends

	var web *frontend.Web
	if fc.Web.Enabled {
		web = frontend.NewWeb(gw, frontend.WebOptions{AllowedOrigins: fc.Web.AllowedOrigins, Logger: logger})
		gw.RegisterAdapter(web.Name(), web)
	}

	if fc.Slack.Enabled {
		slack, err := frontend.NewSlack(gw, frontend.SlackOptions{
			TenantID:        fc.Slack.TenantID,
			BotToken:        fc.Slack.BotToken,
			AppToken:        fc.Slack.AppToken,
			AllowedChannels: fc.Slack.AllowedChannels,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating slack adapter: %w", err)
		}
		gw.RegisterAdapter(slack.Name(), slack)
	}

	if fc.Discord.Enabled {
		discord, err := frontend.NewDiscord(gw, frontend.DiscordOptions{
			TenantID:        fc.Discord.TenantID,
			Token:           fc.Discord.Token,
			AllowedChannels: fc.Discord.AllowedChannels,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating discord adapter: %w", err)
		}
		gw.RegisterAdapter(discord.Name(), discord)
	}

	if fc.Matrix.Enabled {
		matrix, err := frontend.NewMatrix(gw, frontend.MatrixOptions{
			TenantID:      fc.Matrix.TenantID,
			Homeserver:    fc.Matrix.Homeserver,
			UserID:        fc.Matrix.UserID,
			AccessToken:   fc.Matrix.AccessToken,
			AllowedUsers:  fc.Matrix.AllowedUsers,
			AllowedRooms:  fc.Matrix.AllowedRooms,
			CommandPrefix: fc.Matrix.CommandPrefix,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating matrix adapter: %w", err)
		}
		gw.RegisterAdapter(matrix.Name(), matrix)
	}

	return web, nil
}

// close releases what buildApp opened when construction fails part way.
func (a *app) close() {
	if a.gateway != nil {
		a.gateway.Feed().Close()
		_ = a.gateway.Close()
		_ = a.gateway.Sessions().Close()
	}
	if a.dedupe != nil {
		a.dedupe.Close()
	}
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
}
