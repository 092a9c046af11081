package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"securechat/channel"
	"securechat/models"
	"securechat/presence"
	"securechat/protocol"
	"securechat/typing"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrNoActiveRoom = errors.New("no active room")
)

// Conn is the slice of channel behavior the manager drives.
type Conn interface {
	Send(ev protocol.Outbound) error
	Close() error
}

// Dialer opens a connection for one room. NewDialer provides the
// websocket-backed implementation.
type Dialer func(ctx context.Context, roomID int64, token string, l channel.Listener) (Conn, error)

// NewDialer wraps channel.Open as a Dialer.
func NewDialer(opts channel.Options) Dialer {
	return func(ctx context.Context, roomID int64, token string, l channel.Listener) (Conn, error) {
		return channel.Open(ctx, opts, roomID, token, l)
	}
}

// Observer receives state-change notifications for the UI layer.
// Any field may be nil. Callbacks fire from the channel's read loop
// and must not block for long.
type Observer struct {
	OnMessage      func(msg models.Message)
	OnTyping       func(users []string)
	OnPresence     func(userID int64, online bool)
	OnNotification func(title, message string)
	OnConnected    func(roomID int64)
	OnDisconnected func(roomID int64, err error)
}

// Options configures a Manager.
type Options struct {
	Token          string
	Self           models.User
	TypingDebounce time.Duration
	TypingExpiry   time.Duration
	Logger         zerolog.Logger
	Observer       Observer
}

// Manager owns the active room selection: it rebinds the connection
// when the room changes, keeps the in-memory message log for the
// active room only, and fans inbound events out to the presence
// tracker and typing coordinator.
//
// At most one connection is open at a time. Each open tags its
// listener with a generation; frames from a superseded generation are
// discarded, so a late event from an old channel can never mutate the
// new room's state.
type Manager struct {
	dial  Dialer
	token string
	self  models.User
	log   zerolog.Logger
	obs   Observer

	presence *presence.Tracker
	typing   *typing.Coordinator

	// switchMu serializes SelectRoom and Close so a slow dial cannot
	// interleave with another switch.
	switchMu sync.Mutex

	mu       sync.Mutex
	room     *models.Room
	conn     Conn
	gen      uint64
	messages []models.Message
}

func New(dial Dialer, opts Options) *Manager {
	if opts.TypingDebounce == 0 {
		opts.TypingDebounce = 1000 * time.Millisecond
	}
	if opts.TypingExpiry == 0 {
		opts.TypingExpiry = 10 * time.Second
	}

	m := &Manager{
		dial:     dial,
		token:    opts.Token,
		self:     opts.Self,
		log:      opts.Logger,
		obs:      opts.Observer,
		presence: presence.New(),
	}
	m.typing = typing.New(m.emitTyping, opts.TypingDebounce, opts.TypingExpiry)
	return m
}

// SelectRoom makes room the active conversation. The previous
// connection, if any, is closed before the new one opens, and the
// message log is cleared. Re-selecting the active room is a no-op.
func (m *Manager) SelectRoom(ctx context.Context, room models.Room) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	if m.room != nil && m.room.ID == room.ID {
		m.mu.Unlock()
		return nil
	}
	old := m.conn
	m.conn = nil
	m.room = nil
	m.messages = nil
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	m.typing.Reset()
	if old != nil {
		if err := old.Close(); err != nil {
			m.log.Warn().Err(err).Msg("closing previous channel")
		}
	}

	conn, err := m.dial(ctx, room.ID, m.token, &listener{m: m, gen: gen, roomID: room.ID})
	if err != nil {
		return fmt.Errorf("select room %d: %w", room.ID, err)
	}

	m.mu.Lock()
	if gen != m.gen {
		// The channel died before it could be installed: its read
		// loop already reported the disconnect and deselected the
		// room. Installing the dead conn would pin the room active
		// with no way to redial it.
		m.mu.Unlock()
		conn.Close()
		return fmt.Errorf("select room %d: connection lost during dial", room.ID)
	}
	m.conn = conn
	r := room
	m.room = &r
	m.mu.Unlock()

	m.log.Info().Int64("room", room.ID).Msg("room selected")
	return nil
}

// SendMessage trims and transmits text on the active channel. Empty
// or whitespace-only input is rejected before reaching the channel.
// The message is not appended locally; the server echoes it back.
func (m *Manager) SendMessage(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	conn := m.activeConn()
	if conn == nil {
		return ErrNoActiveRoom
	}
	if err := conn.Send(protocol.ChatMessage{Content: trimmed}); err != nil {
		return err
	}

	// Sending a message ends the local typing burst.
	m.typing.Pause()
	return nil
}

// MarkRead reports a message as read to the remote side.
func (m *Manager) MarkRead(messageID int64) error {
	conn := m.activeConn()
	if conn == nil {
		return ErrNoActiveRoom
	}
	return conn.Send(protocol.ReadMessage{MessageID: messageID})
}

// NotifyTyping registers a local keystroke with the typing
// coordinator, which debounces it into at most one outbound typing
// event per burst.
func (m *Manager) NotifyTyping() {
	if m.activeConn() == nil {
		return
	}
	m.typing.Keystroke()
}

// Messages returns a snapshot of the active room's log in arrival
// order.
func (m *Manager) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Room returns the active room, or false if none is selected.
func (m *Manager) Room() (models.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.room == nil {
		return models.Room{}, false
	}
	return *m.room, true
}

// Presence exposes the session's online-user tracker.
func (m *Manager) Presence() *presence.Tracker {
	return m.presence
}

// TypingUsers returns the remote users currently typing in the active
// room.
func (m *Manager) TypingUsers() []string {
	return m.typing.Typing()
}

// Close tears the session down: the active channel is closed and the
// typing coordinator stopped. The manager is not reusable afterwards.
func (m *Manager) Close() error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.room = nil
	m.messages = nil
	m.gen++
	m.mu.Unlock()

	m.typing.Stop()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (m *Manager) activeConn() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// emitTyping is the typing coordinator's outbound hook.
func (m *Manager) emitTyping(isTyping bool) {
	conn := m.activeConn()
	if conn == nil {
		return
	}
	if err := conn.Send(protocol.Typing{IsTyping: isTyping}); err != nil {
		m.log.Warn().Err(err).Bool("is_typing", isTyping).Msg("typing event not sent")
	}
}

// handleEvent applies one inbound event, discarding it when gen no
// longer matches the active channel generation. The typing and
// presence fan-out happens outside m.mu; those components take their
// own locks.
func (m *Manager) handleEvent(gen uint64, ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.ChatMessageReceived:
		msg := models.Message{
			ID:        ev.MessageID,
			Sender:    models.User{ID: ev.SenderID, Username: ev.SenderUsername},
			Content:   ev.Content,
			Timestamp: parseTimestamp(ev.Timestamp, m.log),
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.messages = append(m.messages, msg)
		m.mu.Unlock()

		// The sender stopped typing when the message went out.
		m.typing.OnIndicator(ev.SenderUsername, false)

		if m.obs.OnMessage != nil {
			m.obs.OnMessage(msg)
		}

	case protocol.TypingIndicator:
		if m.stale(gen) || ev.UserID == m.self.ID {
			return
		}
		m.typing.OnIndicator(ev.Username, ev.IsTyping)
		if m.obs.OnTyping != nil {
			m.obs.OnTyping(m.typing.Typing())
		}

	case protocol.UserStatusUpdate:
		if m.stale(gen) {
			return
		}
		m.presence.OnStatusUpdate(ev.UserID, ev.IsOnline)
		if m.obs.OnPresence != nil {
			m.obs.OnPresence(ev.UserID, ev.IsOnline)
		}

	case protocol.Notification:
		if m.stale(gen) {
			return
		}
		if m.obs.OnNotification != nil {
			m.obs.OnNotification(ev.Title, ev.Message)
		}
	}
}

func (m *Manager) handleConnected(gen uint64, roomID int64) {
	if m.stale(gen) {
		return
	}
	if m.obs.OnConnected != nil {
		m.obs.OnConnected(roomID)
	}
}

// handleDisconnect reacts to the channel's read loop dying. There is
// no automatic reconnect; the room is deselected so a later
// SelectRoom for the same room dials fresh.
func (m *Manager) handleDisconnect(gen uint64, roomID int64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.room = nil
	m.gen++
	m.mu.Unlock()

	m.typing.Reset()
	m.log.Warn().Err(err).Int64("room", roomID).Msg("disconnected")
	if m.obs.OnDisconnected != nil {
		m.obs.OnDisconnected(roomID, err)
	}
}

func (m *Manager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen
}

// listener binds one channel generation to the manager.
type listener struct {
	m      *Manager
	gen    uint64
	roomID int64
}

func (l *listener) OnEvent(ev protocol.Event) { l.m.handleEvent(l.gen, ev) }
func (l *listener) OnConnected()              { l.m.handleConnected(l.gen, l.roomID) }
func (l *listener) OnDisconnected(err error)  { l.m.handleDisconnect(l.gen, l.roomID, err) }

func parseTimestamp(s string, log zerolog.Logger) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		log.Debug().Str("timestamp", s).Msg("unparseable timestamp")
		return time.Time{}
	}
	return t
}
