// ABOUTME: Canonical UnifiedMessage and the Inbound payload adapters hand to the gateway
// ABOUTME: Includes process-unique message id generation and validation

package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Inbound is the raw payload an adapter submits, before normalization.
type Inbound struct {
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	TenantID  string `json:"tenantId,omitempty"`

	// MessageID is the platform's own id (Slack ts, Discord snowflake,
	// Matrix event id). Used for redelivery dedupe, not for identity.
	MessageID string `json:"messageId,omitempty"`

	// ChannelID, ThreadID and GuildID locate the conversation on the platform.
	ChannelID string `json:"channelId,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
	GuildID   string `json:"guildId,omitempty"`

	Metadata Metadata `json:"metadata,omitempty"`
}

// UnifiedMessage is the channel-independent message forwarded to agents.
// Only SessionID may be filled in after construction.
type UnifiedMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TenantID  string    `json:"tenantId"`
	SessionID string    `json:"sessionId,omitempty"`
	Channel   Channel   `json:"channel"`
	Text      string    `json:"text"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Received  time.Time `json:"-"`
}

// Valid reports whether the fields required for forwarding are populated.
// SessionID is assigned after validation and is not checked.
func (m *UnifiedMessage) Valid() bool {
	return Validate(m)
}

// Validate reports whether msg carries an id, user, tenant, channel and text.
func Validate(msg *UnifiedMessage) bool {
	if msg == nil {
		return false
	}
	return msg.ID != "" &&
		msg.UserID != "" &&
		msg.TenantID != "" &&
		msg.Channel != "" &&
		msg.Text != ""
}

// NewID returns a message id made of a millisecond time prefix and a random suffix.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}
