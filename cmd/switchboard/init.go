// ABOUTME: Interactive "switchboard init" that writes a starter YAML config
// ABOUTME: Generates a random JWT secret when admin auth is enabled

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// initAnswers are the values collected by runInit.
type initAnswers struct {
	HTTPAddr       string
	GRPCAddr       string
	DBPath         string
	Retention      string
	InvokeURL      string
	JWTSecret      string
	Tailscale      bool
	TailscaleHost  string
	SlackEnabled   bool
	DiscordEnabled bool
	MatrixEnabled  bool
	LogLevel       string
	LogFormat      string
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("switchboard configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server ---")
	a.HTTPAddr = prompt(reader, "HTTP address", ":8080")
	a.GRPCAddr = prompt(reader, "gRPC health address (empty to disable)", "")

	fmt.Println("\n--- Agent ---")
	a.InvokeURL = prompt(reader, "Default agent URL", "http://localhost:3000/api/chat")

	fmt.Println("\n--- Ledger ---")
	a.DBPath = prompt(reader, "SQLite ledger path (empty to disable)", filepath.Join(getDataPath(), "switchboard.db"))
	if a.DBPath != "" {
		a.Retention = prompt(reader, "Keep events for (e.g. 720h, empty keeps forever)", "720h")
	}

	fmt.Println("\n--- Admin API ---")
	if yes(prompt(reader, "Require JWT for the admin API?", "yes")) {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		a.JWTSecret = secret
	}

	fmt.Println("\n--- Tailscale ---")
	a.Tailscale = yes(prompt(reader, "Enable Tailscale?", "no"))
	if a.Tailscale {
		a.TailscaleHost = prompt(reader, "Tailscale hostname", "switchboard")
	}

	fmt.Println("\n--- Chat frontends (tokens are read from the environment) ---")
	a.SlackEnabled = yes(prompt(reader, "Enable Slack (SLACK_BOT_TOKEN, SLACK_APP_TOKEN)?", "no"))
	a.DiscordEnabled = yes(prompt(reader, "Enable Discord (DISCORD_TOKEN)?", "no"))
	a.MatrixEnabled = yes(prompt(reader, "Enable Matrix (MATRIX_HOMESERVER, MATRIX_USER_ID, MATRIX_ACCESS_TOKEN)?", "no"))

	fmt.Println("\n--- Logging ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	mode := os.FileMode(0o644)
	if a.JWTSecret != "" {
		mode = 0o600
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), mode); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Println("  switchboard serve")
	return nil
}

// renderConfig writes answers as YAML. Chat credentials are referenced as
// ${VAR} so secrets stay out of the file.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# switchboard configuration\n")
	b.WriteString("# Generated by switchboard init\n\n")

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  http_addr: %q\n", a.HTTPAddr)
	if a.GRPCAddr != "" {
		fmt.Fprintf(&b, "  grpc_addr: %q\n", a.GRPCAddr)
	}
	b.WriteString("\n")

	b.WriteString("agents:\n")
	fmt.Fprintf(&b, "  default_invoke_url: %q\n", a.InvokeURL)
	b.WriteString("  default_timeout: \"30s\"\n")
	b.WriteString("  max_retries: 3\n")
	b.WriteString("  health_interval: \"30s\"\n\n")

	b.WriteString("sessions:\n")
	b.WriteString("  idle_timeout: \"24h\"\n")
	b.WriteString("  sweep_interval: \"5m\"\n\n")

	if a.DBPath != "" {
		b.WriteString("database:\n")
		fmt.Fprintf(&b, "  path: %q\n", a.DBPath)
		if a.Retention != "" {
			fmt.Fprintf(&b, "  retention: %q\n", a.Retention)
		}
		b.WriteString("\n")
	}

	if a.JWTSecret != "" {
		b.WriteString("auth:\n")
		fmt.Fprintf(&b, "  jwt_secret: %q\n\n", a.JWTSecret)
	}

	if a.Tailscale {
		b.WriteString("tailscale:\n")
		b.WriteString("  enabled: true\n")
		fmt.Fprintf(&b, "  hostname: %q\n", a.TailscaleHost)
		b.WriteString("  auth_key: \"${TS_AUTHKEY}\"\n\n")
	}

	b.WriteString("frontends:\n")
	b.WriteString("  web:\n")
	b.WriteString("    enabled: true\n")
	if a.SlackEnabled {
		b.WriteString("  slack:\n")
		b.WriteString("    enabled: true\n")
		b.WriteString("    bot_token: \"${SLACK_BOT_TOKEN}\"\n")
		b.WriteString("    app_token: \"${SLACK_APP_TOKEN}\"\n")
	}
	if a.DiscordEnabled {
		b.WriteString("  discord:\n")
		b.WriteString("    enabled: true\n")
		b.WriteString("    token: \"${DISCORD_TOKEN}\"\n")
	}
	if a.MatrixEnabled {
		b.WriteString("  matrix:\n")
		b.WriteString("    enabled: true\n")
		b.WriteString("    homeserver: \"${MATRIX_HOMESERVER}\"\n")
		b.WriteString("    user_id: \"${MATRIX_USER_ID}\"\n")
		b.WriteString("    access_token: \"${MATRIX_ACCESS_TOKEN}\"\n")
	}
	b.WriteString("\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n", a.LogFormat)
	return b.String()
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
