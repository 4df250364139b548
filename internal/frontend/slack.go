// ABOUTME: Slack adapter over Socket Mode: receives channel and mention events, replies in thread
// ABOUTME: A thread maps to one gateway session so follow-ups keep their context

package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/2389/switchboard/internal/message"
)

// slackMessageLimit keeps replies under Slack's recommended text size.
const slackMessageLimit = 4000

// SlackOptions configures the Slack adapter.
type SlackOptions struct {
	TenantID        string
	BotToken        string
	AppToken        string
	AllowedChannels []string
	Logger          *slog.Logger
}

// Slack relays Slack messages to the gateway.
type Slack struct {
	opts       SlackOptions
	dispatcher Dispatcher
	allowed    allowlist
	logger     *slog.Logger

	api       *slack.Client
	socket    *socketmode.Client
	botUserID string

	// post delivers a reply; replaced in tests.
	post func(ctx context.Context, channel, threadTS, text string) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// slackMessage is the subset of a Slack message event the adapter uses.
type slackMessage struct {
	user        string
	text        string
	channel     string
	ts          string
	threadTS    string
	botID       string
	subtype     string
	channelType string
}

// NewSlack creates the adapter. It connects in Initialize.
func NewSlack(d Dispatcher, opts SlackOptions) (*Slack, error) {
	if opts.BotToken == "" || opts.AppToken == "" {
		return nil, errors.New("slack: bot_token and app_token are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Slack{
		opts:       opts,
		dispatcher: d,
		allowed:    newAllowlist(opts.AllowedChannels),
		logger:     logger.With("component", "slack"),
		api:        slack.New(opts.BotToken, slack.OptionAppLevelToken(opts.AppToken)),
	}
	s.post = s.postMessage
	return s, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Channel() message.Channel { return message.ChannelSlack }

// ProcessMessage submits raw as a Slack message without replying on Slack.
func (s *Slack) ProcessMessage(ctx context.Context, raw *message.Inbound) error {
	if raw.TenantID == "" {
		raw.TenantID = s.opts.TenantID
	}
	resp, _ := s.dispatcher.HandleBridgeMessage(ctx, raw, message.ChannelSlack)
	if !resp.Success && resp.Response != "" {
		return fmt.Errorf("%s: %s", resp.ErrorKind(), resp.Response)
	}
	return nil
}

// Initialize verifies the bot token and opens the Socket Mode connection.
func (s *Slack) Initialize(ctx context.Context) error {
	auth, err := s.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	s.botUserID = auth.UserID

	s.socket = socketmode.New(s.api)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.socket.RunContext(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("socket mode stopped", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.handleEvents(runCtx)
	}()

	s.logger.Info("slack connected", "bot_user", auth.User, "team", auth.Team)
	return nil
}

// Close stops the Socket Mode connection and waits for in-flight replies.
func (s *Slack) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *Slack) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				s.logger.Debug("connecting to slack")
			case socketmode.EventTypeConnectionError:
				s.logger.Warn("slack connection error", "data", evt.Data)
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if evt.Request != nil {
					s.socket.Ack(*evt.Request)
				}
				s.dispatchEvent(ctx, apiEvent)
			}
		}
	}
}

func (s *Slack) dispatchEvent(ctx context.Context, apiEvent slackevents.EventsAPIEvent) {
	var msg slackMessage
	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		msg = slackMessage{
			user: ev.User, text: ev.Text, channel: ev.Channel, ts: ev.TimeStamp,
			threadTS: ev.ThreadTimeStamp, botID: ev.BotID, subtype: ev.SubType, channelType: ev.ChannelType,
		}
	case *slackevents.AppMentionEvent:
		msg = slackMessage{
			user: ev.User, text: ev.Text, channel: ev.Channel, ts: ev.TimeStamp,
			threadTS: ev.ThreadTimeStamp, botID: ev.BotID,
		}
	default:
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.handleMessage(ctx, msg)
	}()
}

// handleMessage forwards one Slack message and posts the reply in its thread.
// A message and its mention event share a timestamp, so only one is answered.
func (s *Slack) handleMessage(ctx context.Context, m slackMessage) {
	if m.botID != "" || m.subtype != "" || m.user == "" || m.user == s.botUserID {
		return
	}
	if !s.allowed.allows(m.channel) {
		s.logger.Debug("ignoring message from non-allowed channel", "channel", m.channel)
		return
	}

	threadRoot := m.threadTS
	if threadRoot == "" {
		threadRoot = m.ts
	}

	raw := &message.Inbound{
		Text:      m.text,
		UserID:    m.user,
		TenantID:  s.opts.TenantID,
		SessionID: fmt.Sprintf("slack-%s-%s", m.channel, threadRoot),
		MessageID: m.ts,
		ChannelID: m.channel,
		ThreadID:  m.threadTS,
	}
	if m.channelType != "" {
		raw.Metadata = message.Metadata{"channelType": message.String(m.channelType)}
	}

	resp, handled := s.dispatcher.HandleBridgeMessage(ctx, raw, message.ChannelSlack)
	if !handled || resp.Response == "" {
		return
	}
	if resp.ErrorKind() == message.ErrorInvalidMessage {
		// Mention-only messages normalize to nothing; stay quiet.
		return
	}

	for _, chunk := range splitMessage(resp.Response, slackMessageLimit) {
		if err := s.post(ctx, m.channel, threadRoot, chunk); err != nil {
			s.logger.Error("failed to post slack reply", "channel", m.channel, "error", err)
			return
		}
	}
}

func (s *Slack) postMessage(ctx context.Context, channel, threadTS, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	)
	return err
}
