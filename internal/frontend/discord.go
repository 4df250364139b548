// ABOUTME: Discord adapter over the gateway websocket: relays user messages and replies inline
// ABOUTME: Bot authors are ignored; long replies are split to Discord's message limit

package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/2389/switchboard/internal/message"
)

const (
	discordMessageLimit = 2000
	discordSendTimeout  = 10 * time.Second
)

// DiscordOptions configures the Discord adapter.
type DiscordOptions struct {
	TenantID        string
	Token           string
	AllowedChannels []string
	Logger          *slog.Logger
}

// Discord relays Discord messages to the gateway.
type Discord struct {
	opts       DiscordOptions
	dispatcher Dispatcher
	allowed    allowlist
	logger     *slog.Logger

	session   *discordgo.Session
	botUserID string

	// reply delivers a reply to the triggering message; replaced in tests.
	reply func(m discordMessage, text string) error
	// typing signals activity in a channel; replaced in tests.
	typing func(channelID string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// discordMessage is the subset of a MessageCreate event the adapter uses.
type discordMessage struct {
	id        string
	authorID  string
	username  string
	bot       bool
	content   string
	channelID string
	guildID   string
}

// NewDiscord creates the adapter. It connects in Initialize.
func NewDiscord(d Dispatcher, opts DiscordOptions) (*Discord, error) {
	if opts.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	dc := &Discord{
		opts:       opts,
		dispatcher: d,
		allowed:    newAllowlist(opts.AllowedChannels),
		logger:     logger.With("component", "discord"),
		session:    session,
		ctx:        ctx,
		cancel:     cancel,
	}
	dc.reply = dc.sendReply
	dc.typing = dc.sendTyping
	return dc, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Channel() message.Channel { return message.ChannelDiscord }

// ProcessMessage submits raw as a Discord message without replying on Discord.
func (d *Discord) ProcessMessage(ctx context.Context, raw *message.Inbound) error {
	if raw.TenantID == "" {
		raw.TenantID = d.opts.TenantID
	}
	resp, _ := d.dispatcher.HandleBridgeMessage(ctx, raw, message.ChannelDiscord)
	if !resp.Success && resp.Response != "" {
		return fmt.Errorf("%s: %s", resp.ErrorKind(), resp.Response)
	}
	return nil
}

// Initialize opens the Discord gateway connection.
func (d *Discord) Initialize(ctx context.Context) error {
	d.session.AddHandler(d.onMessageCreate)
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	if d.session.State != nil && d.session.State.User != nil {
		d.botUserID = d.session.State.User.ID
		d.logger.Info("discord connected", "bot_user", d.session.State.User.Username)
	}
	return nil
}

// Close disconnects and waits for in-flight replies.
func (d *Discord) Close() error {
	d.cancel()
	d.wg.Wait()
	if err := d.session.Close(); err != nil {
		return fmt.Errorf("closing discord session: %w", err)
	}
	return nil
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	msg := discordMessage{
		id:        m.ID,
		authorID:  m.Author.ID,
		username:  m.Author.Username,
		bot:       m.Author.Bot,
		content:   m.Content,
		channelID: m.ChannelID,
		guildID:   m.GuildID,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handleMessage(d.ctx, msg)
	}()
}

// handleMessage forwards one Discord message and replies to it.
func (d *Discord) handleMessage(ctx context.Context, m discordMessage) {
	if m.bot || m.authorID == d.botUserID {
		return
	}
	if !d.allowed.allows(m.channelID) {
		d.logger.Debug("ignoring message from non-allowed channel", "channel", m.channelID)
		return
	}

	d.logger.Debug("received message", "channel", m.channelID, "author", m.username, "content", truncate(m.content, 50))
	d.typing(m.channelID)

	raw := &message.Inbound{
		Text:      m.content,
		UserID:    m.authorID,
		TenantID:  d.opts.TenantID,
		MessageID: m.id,
		ChannelID: m.channelID,
		GuildID:   m.guildID,
		Metadata:  message.Metadata{message.MetaUsername: message.String(m.username)},
	}

	resp, handled := d.dispatcher.HandleBridgeMessage(ctx, raw, message.ChannelDiscord)
	if !handled || resp.Response == "" || resp.ErrorKind() == message.ErrorInvalidMessage {
		return
	}

	for _, chunk := range splitMessage(resp.Response, discordMessageLimit) {
		if err := d.reply(m, chunk); err != nil {
			d.logger.Error("failed to send discord reply", "channel", m.channelID, "error", err)
			return
		}
	}
}

func (d *Discord) sendReply(m discordMessage, text string) error {
	ref := &discordgo.MessageReference{MessageID: m.id, ChannelID: m.channelID, GuildID: m.guildID}
	ctx, cancel := context.WithTimeout(d.ctx, discordSendTimeout)
	defer cancel()
	_, err := d.session.ChannelMessageSendReply(m.channelID, text, ref, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) sendTyping(channelID string) {
	if err := d.session.ChannelTyping(channelID); err != nil {
		d.logger.Debug("failed to send typing indicator", "channel", channelID, "error", err)
	}
}
