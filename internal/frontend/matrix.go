// ABOUTME: Matrix adapter syncing with a homeserver and replying with rendered markdown
// ABOUTME: Rooms, senders and an optional command prefix gate which messages reach the gateway

package frontend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/switchboard/internal/message"
)

const (
	matrixTypingTimeout  = 30 * time.Second
	matrixNetworkTimeout = 10 * time.Second
	matrixSendTimeout    = 30 * time.Second
)

// MatrixOptions configures the Matrix adapter.
type MatrixOptions struct {
	TenantID      string
	Homeserver    string
	UserID        string
	AccessToken   string
	AllowedUsers  []string
	AllowedRooms  []string
	CommandPrefix string
	Logger        *slog.Logger
}

// Matrix relays Matrix room messages to the gateway.
type Matrix struct {
	opts       MatrixOptions
	dispatcher Dispatcher
	rooms      allowlist
	users      allowlist
	markdown   goldmark.Markdown
	logger     *slog.Logger

	client *mautrix.Client

	// send delivers a reply; typing toggles the typing notice. Both are replaced in tests.
	send   func(ctx context.Context, roomID, text string) error
	typing func(roomID string, on bool)

	// startedAt filters out history replayed by the first sync.
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// matrixMessage is the subset of a room message event the adapter uses.
type matrixMessage struct {
	eventID   string
	sender    string
	roomID    string
	msgType   string
	body      string
	timestamp time.Time
}

// NewMatrix creates the adapter. It starts syncing in Initialize.
func NewMatrix(d Dispatcher, opts MatrixOptions) (*Matrix, error) {
	if opts.Homeserver == "" || opts.AccessToken == "" {
		return nil, errors.New("matrix: homeserver and access_token are required")
	}
	client, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Matrix{
		opts:       opts,
		dispatcher: d,
		rooms:      newAllowlist(opts.AllowedRooms),
		users:      newAllowlist(opts.AllowedUsers),
		markdown:   goldmark.New(),
		logger:     logger.With("component", "matrix"),
		client:     client,
		ctx:        ctx,
		cancel:     cancel,
	}
	m.send = m.sendMessage
	m.typing = m.setTyping
	return m, nil
}

func (m *Matrix) Name() string { return "matrix" }

func (m *Matrix) Channel() message.Channel { return message.ChannelMatrix }

// ProcessMessage submits raw as a Matrix message without replying in a room.
func (m *Matrix) ProcessMessage(ctx context.Context, raw *message.Inbound) error {
	if raw.TenantID == "" {
		raw.TenantID = m.opts.TenantID
	}
	resp, _ := m.dispatcher.HandleBridgeMessage(ctx, raw, message.ChannelMatrix)
	if !resp.Success && resp.Response != "" {
		return fmt.Errorf("%s: %s", resp.ErrorKind(), resp.Response)
	}
	return nil
}

// Initialize registers the message handler and starts the sync loop.
func (m *Matrix) Initialize(ctx context.Context) error {
	syncer, ok := m.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", m.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, m.onMessage)

	if _, err := m.client.Whoami(ctx); err != nil {
		return fmt.Errorf("matrix whoami: %w", err)
	}
	m.startedAt = time.Now()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.client.SyncWithContext(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("matrix sync stopped", "error", err)
		}
	}()

	m.logger.Info("matrix syncing", "homeserver", m.opts.Homeserver, "user_id", m.opts.UserID)
	return nil
}

// Close stops syncing and waits for in-flight replies.
func (m *Matrix) Close() error {
	m.cancel()
	m.client.StopSync()
	m.wg.Wait()
	return nil
}

func (m *Matrix) onMessage(ctx context.Context, evt *event.Event) {
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return
	}
	msg := matrixMessage{
		eventID:   evt.ID.String(),
		sender:    evt.Sender.String(),
		roomID:    evt.RoomID.String(),
		msgType:   string(content.MsgType),
		body:      content.Body,
		timestamp: time.UnixMilli(evt.Timestamp),
	}

	// Handle off the sync goroutine so a slow agent does not stall the sync.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.handleMessage(m.ctx, msg)
	}()
}

// handleMessage forwards one room message and posts the reply to the room.
func (m *Matrix) handleMessage(ctx context.Context, msg matrixMessage) {
	if msg.sender == m.opts.UserID || msg.msgType != string(event.MsgText) {
		return
	}
	if !m.startedAt.IsZero() && msg.timestamp.Before(m.startedAt) {
		return
	}
	if !m.rooms.allows(msg.roomID) {
		m.logger.Debug("ignoring message from non-allowed room", "room", msg.roomID)
		return
	}
	if !m.users.allows(msg.sender) {
		m.logger.Debug("ignoring message from non-allowed user", "sender", msg.sender)
		return
	}

	body := msg.body
	if m.opts.CommandPrefix != "" {
		if !strings.HasPrefix(body, m.opts.CommandPrefix) {
			return
		}
		body = strings.TrimSpace(strings.TrimPrefix(body, m.opts.CommandPrefix))
	}
	if body == "" {
		return
	}

	m.logger.Info("received message", "room", msg.roomID, "sender", msg.sender, "content", truncate(body, 50))

	m.typing(msg.roomID, true)
	defer m.typing(msg.roomID, false)

	raw := &message.Inbound{
		Text:      body,
		UserID:    msg.sender,
		TenantID:  m.opts.TenantID,
		SessionID: fmt.Sprintf("matrix-%s-%s", msg.roomID, msg.sender),
		MessageID: msg.eventID,
		ChannelID: msg.roomID,
	}

	resp, handled := m.dispatcher.HandleBridgeMessage(ctx, raw, message.ChannelMatrix)
	if !handled || resp.Response == "" {
		return
	}
	if err := m.send(ctx, msg.roomID, resp.Response); err != nil {
		m.logger.Error("failed to send message", "room", msg.roomID, "error", err)
	}
}

// renderMarkdown converts text to HTML for the formatted body.
func renderMarkdown(md goldmark.Markdown, text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// replyContent builds the message event for a reply, with an HTML body when
// the markdown renders.
func (m *Matrix) replyContent(text string) *event.MessageEventContent {
	content := &event.MessageEventContent{MsgType: event.MsgText, Body: text}
	html, err := renderMarkdown(m.markdown, text)
	if err != nil {
		m.logger.Debug("markdown render failed, sending plain text", "error", err)
		return content
	}
	content.Format = event.FormatHTML
	content.FormattedBody = html
	return content
}

func (m *Matrix) sendMessage(ctx context.Context, roomID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, matrixSendTimeout)
	defer cancel()
	_, err := m.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, m.replyContent(text))
	return err
}

func (m *Matrix) setTyping(roomID string, on bool) {
	var timeout time.Duration
	if on {
		timeout = matrixTypingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), matrixNetworkTimeout)
	defer cancel()
	if _, err := m.client.UserTyping(ctx, id.RoomID(roomID), on, timeout); err != nil {
		m.logger.Debug("failed to set typing indicator", "room", roomID, "error", err)
	}
}
