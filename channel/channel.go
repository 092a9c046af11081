package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"securechat/protocol"
)

var ErrNotOpen = errors.New("channel not open")

// Listener receives decoded inbound events and lifecycle
// notifications. Callbacks are invoked one at a time, in arrival
// order, and never after Close has returned.
type Listener interface {
	OnEvent(ev protocol.Event)
	OnConnected()
	OnDisconnected(err error)
}

// Options configures channel establishment.
type Options struct {
	WSBaseURL    string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Channel is one live websocket bound to a single room. A session
// holds at most one open Channel at a time; switching rooms closes the
// old one before opening the next.
type Channel struct {
	conn         *websocket.Conn
	listener     Listener
	log          zerolog.Logger
	writeTimeout time.Duration

	writeMu sync.Mutex

	// stateMu serializes Close against in-flight callback delivery:
	// dispatch holds the read side for the duration of a callback, so
	// Close taking the write side cannot return while one is running.
	stateMu sync.RWMutex
	closed  bool
}

// Open dials {base}/chat/{room}/?token={token} and starts the read
// loop. Cancelling ctx aborts an in-flight dial. The listener's
// OnConnected fires before Open returns.
func Open(ctx context.Context, opts Options, roomID int64, token string, l Listener) (*Channel, error) {
	endpoint := fmt.Sprintf("%s/chat/%d/?token=%s", opts.WSBaseURL, roomID, url.QueryEscape(token))

	dialer := websocket.Dialer{HandshakeTimeout: opts.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect room %d: %w (status %d)", roomID, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect room %d: %w", roomID, err)
	}

	c := &Channel{
		conn:         conn,
		listener:     l,
		log:          opts.Logger.With().Int64("room", roomID).Logger(),
		writeTimeout: opts.WriteTimeout,
	}

	l.OnConnected()
	go c.readLoop()

	return c, nil
}

// Send encodes and transmits an outbound event. Fails with ErrNotOpen
// once the channel is closed; nothing is buffered across disconnects.
func (c *Channel) Send(ev protocol.Outbound) error {
	c.stateMu.RLock()
	closed := c.closed
	c.stateMu.RUnlock()
	if closed {
		return ErrNotOpen
	}

	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", ev.EventType(), err)
	}
	return nil
}

// Close releases the connection. Idempotent. When it returns, no
// further listener callbacks will fire.
func (c *Channel) Close() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}
	c.closed = true
	c.stateMu.Unlock()

	return c.conn.Close()
}

func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.notifyDisconnected(err)
			c.shutdown()
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			// Malformed or unknown frames are dropped; the
			// connection stays open.
			c.log.Warn().Err(err).Msg("dropping frame")
			continue
		}

		c.dispatch(ev)
	}
}

// shutdown releases the socket after the read loop dies, so a remote
// disconnect does not leak the connection. No-op if Close already ran.
func (c *Channel) shutdown() {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return
	}
	c.closed = true
	c.stateMu.Unlock()

	c.conn.Close()
}

func (c *Channel) dispatch(ev protocol.Event) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.closed {
		return
	}
	c.listener.OnEvent(ev)
}

func (c *Channel) notifyDisconnected(err error) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.closed {
		// Local close tore down the read loop; not a drop.
		return
	}
	c.log.Debug().Err(err).Msg("connection lost")
	c.listener.OnDisconnected(err)
}
