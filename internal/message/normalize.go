// ABOUTME: Per-channel normalizers converting Inbound payloads into UnifiedMessage
// ABOUTME: Handles trimming, mention stripping and channel metadata extraction

package message

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// Slack user mentions look like <@U024BE7LH>.
	slackMention = regexp.MustCompile(`<@U[A-Z0-9]+>\s*`)

	// Discord user mentions look like <@80351110224678912> or <@!80351110224678912>.
	discordMention = regexp.MustCompile(`<@!?[0-9]+>\s*`)
)

// Metadata keys populated by the normalizers.
const (
	MetaTimestamp = "timestamp"
	MetaChannelID = "channelId"
	MetaThreadID  = "threadId"
	MetaGuildID   = "guildId"
	MetaRoomID    = "roomId"
	MetaUsername  = "username"
)

// Normalize dispatches to the normalizer for channel.
func Normalize(channel Channel, in Inbound) (UnifiedMessage, error) {
	return normalizeAt(channel, in, time.Now())
}

func normalizeAt(channel Channel, in Inbound, now time.Time) (UnifiedMessage, error) {
	switch channel {
	case ChannelWeb:
		return normalizeWeb(in, now), nil
	case ChannelSlack:
		return normalizeSlack(in, now), nil
	case ChannelDiscord:
		return normalizeDiscord(in, now), nil
	case ChannelMatrix:
		return normalizeMatrix(in, now), nil
	default:
		return UnifiedMessage{}, fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel)
	}
}

// NormalizeWeb trims the text and stamps the message.
func NormalizeWeb(in Inbound) UnifiedMessage {
	return normalizeWeb(in, time.Now())
}

// NormalizeSlack strips every <@U…> mention token before trimming.
func NormalizeSlack(in Inbound) UnifiedMessage {
	return normalizeSlack(in, time.Now())
}

// NormalizeDiscord strips every <@123…> and <@!123…> mention token before trimming.
func NormalizeDiscord(in Inbound) UnifiedMessage {
	return normalizeDiscord(in, time.Now())
}

// NormalizeMatrix trims the text and records the room id.
func NormalizeMatrix(in Inbound) UnifiedMessage {
	return normalizeMatrix(in, time.Now())
}

// StripSlackMentions removes Slack user mention tokens and trims the result.
func StripSlackMentions(text string) string {
	return stripAll(slackMention, text)
}

// StripDiscordMentions removes Discord user mention tokens and trims the result.
func StripDiscordMentions(text string) string {
	return stripAll(discordMention, text)
}

// stripAll repeats the replacement until nothing matches, so tokens spliced
// together by an earlier pass are removed too.
func stripAll(re *regexp.Regexp, text string) string {
	for re.MatchString(text) {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

func normalizeWeb(in Inbound, now time.Time) UnifiedMessage {
	return build(ChannelWeb, in, strings.TrimSpace(in.Text), nil, now)
}

func normalizeSlack(in Inbound, now time.Time) UnifiedMessage {
	threadID := in.ThreadID
	if threadID == "" {
		threadID = in.MessageID
	}
	extras := FromStrings(map[string]string{
		MetaChannelID: in.ChannelID,
		MetaThreadID:  threadID,
	})
	return build(ChannelSlack, in, StripSlackMentions(in.Text), extras, now)
}

func normalizeDiscord(in Inbound, now time.Time) UnifiedMessage {
	extras := FromStrings(map[string]string{
		MetaChannelID: in.ChannelID,
		MetaGuildID:   in.GuildID,
	})
	return build(ChannelDiscord, in, StripDiscordMentions(in.Text), extras, now)
}

func normalizeMatrix(in Inbound, now time.Time) UnifiedMessage {
	extras := FromStrings(map[string]string{
		MetaRoomID:   in.ChannelID,
		MetaThreadID: in.ThreadID,
	})
	return build(ChannelMatrix, in, strings.TrimSpace(in.Text), extras, now)
}

// build assembles the message. Caller metadata wins over channel extras and the timestamp.
func build(channel Channel, in Inbound, text string, extras Metadata, now time.Time) UnifiedMessage {
	meta := Metadata{MetaTimestamp: Int(now.UnixMilli())}
	meta.Merge(extras)
	meta.Merge(in.Metadata)

	return UnifiedMessage{
		ID:        NewID(now),
		UserID:    in.UserID,
		TenantID:  in.TenantID,
		SessionID: in.SessionID,
		Channel:   channel,
		Text:      text,
		Metadata:  meta,
		Received:  now,
	}
}
