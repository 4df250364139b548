// Package server hosts the gateway: the HTTP API, the optional gRPC health
// service and the background maintenance loops.
//
// Listeners are plain TCP or, when tailscale is enabled, tsnet listeners on
// the tailnet. Admin routes require a JWT when auth.jwt_secret is set.
package server
