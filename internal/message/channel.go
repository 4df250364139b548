// ABOUTME: Closed enumeration of front-end channels the gateway accepts
// ABOUTME: Provides parsing and validation for channel tags

package message

import (
	"errors"
	"fmt"
)

// ErrUnsupportedChannel is returned for channel tags outside the enumeration.
var ErrUnsupportedChannel = errors.New("unsupported channel")

// Channel identifies the front-end a message arrived on.
type Channel string

const (
	ChannelWeb     Channel = "web"
	ChannelSlack   Channel = "slack"
	ChannelDiscord Channel = "discord"
	ChannelMatrix  Channel = "matrix"
)

// Channels returns every supported channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelWeb, ChannelSlack, ChannelDiscord, ChannelMatrix}
}

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelSlack, ChannelDiscord, ChannelMatrix:
		return true
	default:
		return false
	}
}

func (c Channel) String() string {
	return string(c)
}

// ParseChannel converts a channel tag into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChannel, s)
	}
	return c, nil
}
