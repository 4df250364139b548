// Package tenant holds per-tenant configuration and the registry the gateway
// consults before processing any message.
//
// A tenant names the channels it has enabled (with their credentials) and
// the agent endpoint its messages are forwarded to. A tenant is usable when
// at least one channel is enabled and every credential that channel needs is
// present. The "default" tenant always exists.
//
// The registry is bootstrapped from configuration and the TENANTS_JSON
// environment variable, then updated at runtime through Register.
package tenant
