// Package config handles configuration loading for switchboard.
//
// # Configuration File
//
// The file is YAML unless its name ends in .toml. Its path comes from the
// --config flag or SWITCHBOARD_CONFIG; when the file does not exist the
// gateway starts from Default, which serves web chat on :8080 against
// http://localhost:3000/api/chat.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${SWITCHBOARD_JWT_SECRET}"
//
// # Environment Overrides
//
// These variables win over the file when set: PORT, AGENT_INVOKE_URL,
// AGENT_TIMEOUT (milliseconds), TENANTS_JSON, SLACK_BOT_TOKEN,
// SLACK_APP_TOKEN, SLACK_SIGNING_SECRET, DISCORD_TOKEN, MATRIX_HOMESERVER,
// MATRIX_USER_ID, MATRIX_ACCESS_TOKEN, SWITCHBOARD_DB_PATH,
// SWITCHBOARD_JWT_SECRET and SWITCHBOARD_LOG_LEVEL.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  idle_timeout: "24h"
//	  sweep_interval: "5m"
package config
