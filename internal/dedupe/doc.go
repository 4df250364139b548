// Package dedupe drops platform redeliveries. Chat platforms retry webhook
// and socket events, so the gateway remembers each (channel, platform message
// id) pair for a bounded window and skips repeats.
package dedupe
