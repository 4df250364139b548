// ABOUTME: Shared adapter plumbing: the gateway-facing Dispatcher and allowlists
// ABOUTME: Adapters depend on Dispatcher rather than the concrete gateway

package frontend

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/2389/switchboard/internal/message"
)

// Dispatcher is the part of the gateway adapters call.
type Dispatcher interface {
	ProcessMessage(ctx context.Context, raw *message.Inbound, channel message.Channel) message.AgentResponse
	HandleBridgeMessage(ctx context.Context, raw *message.Inbound, channel message.Channel) (message.AgentResponse, bool)
}

// allowlist matches ids against a configured set. An empty list allows everything.
type allowlist map[string]struct{}

func newAllowlist(ids []string) allowlist {
	if len(ids) == 0 {
		return nil
	}
	a := make(allowlist, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			a[id] = struct{}{}
		}
	}
	return a
}

func (a allowlist) allows(id string) bool {
	if len(a) == 0 {
		return true
	}
	_, ok := a[id]
	return ok
}

// splitMessage breaks text into chunks of at most limit bytes, preferring
// line breaks and never splitting a rune.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
