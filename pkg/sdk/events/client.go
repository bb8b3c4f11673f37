// Package events is the client side of the backend's /ws endpoint. One Client
// owns one socket and fans decoded frames out to listeners registered per kind.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const DefaultReconnectDelay = time.Second

var (
	ErrNotConnected = errors.New("event client is not connected")
	ErrClosed       = errors.New("event client is closed")
)

type Listener func(Event)

// Subscription identifies one registered listener. Pass it back to
// RemoveEventListener to unregister.
type Subscription struct {
	kind    Kind
	fn      Listener
	removed atomic.Bool
}

func (s *Subscription) Kind() Kind { return s.kind }

type Client struct {
	url            string
	dialer         *websocket.Dialer
	header         http.Header
	reconnectDelay time.Duration
	log            zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	connecting bool
	closed     bool
	timer      *time.Timer

	subsMu sync.RWMutex
	subs   map[Kind][]*Subscription

	writeMu sync.Mutex
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:            url,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: DefaultReconnectDelay,
		log:            zerolog.Nop(),
		subs:           make(map[Kind][]*Subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) URL() string { return c.url }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect opens the transport. Calling it while a dial is in flight or a
// connection is already live is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.connecting || c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		return errors.Wrapf(err, "dial %s", c.url)
	}
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.log.Debug().Str("url", c.url).Msg("websocket connection open")
	c.dispatch(&OpenEvent{URL: c.url})

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}

		ev, err := DecodeFrame(data)
		if err != nil {
			if !errors.Is(err, ErrUnknownFrame) {
				c.log.Debug().Err(err).Msg("dropping malformed frame")
			}
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) handleClose(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	intentional := c.closed
	if !intentional {
		c.timer = time.AfterFunc(c.reconnectDelay, c.reconnect)
	}
	c.mu.Unlock()

	_ = conn.Close()

	if !intentional {
		c.log.Warn().Err(cause).Dur("delay", c.reconnectDelay).Msg("websocket connection closed, reconnecting")
	}
	c.dispatch(&CloseEvent{Err: cause, Intentional: intentional})
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	err := c.Connect(context.Background())
	if err == nil || errors.Is(err, ErrClosed) {
		return
	}

	c.log.Warn().Err(err).Dur("delay", c.reconnectDelay).Msg("reconnect failed")
	c.mu.Lock()
	if !c.closed {
		c.timer = time.AfterFunc(c.reconnectDelay, c.reconnect)
	}
	c.mu.Unlock()
}

// Close stops the client for good: pending reconnects are cancelled and the
// transport is closed without scheduling another attempt.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

// SendLine writes a line to the server process stdin. The caller checks the
// server is running; the transport does not.
func (c *Client) SendLine(serverID, text string) error {
	return c.send(NewProcessWriteFrame(serverID, text))
}

func (c *Client) SetTermSize(serverID string, cols, rows int) error {
	return c.send(NewTermSizeFrame(serverID, cols, rows))
}

func (c *Client) send(frame any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

func (c *Client) AddEventListener(kind Kind, fn Listener) *Subscription {
	sub := &Subscription{kind: kind, fn: fn}
	c.subsMu.Lock()
	c.subs[kind] = append(c.subs[kind], sub)
	c.subsMu.Unlock()
	return sub
}

func (c *Client) RemoveEventListener(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.removed.Store(true)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	list := c.subs[sub.kind]
	for i, s := range list {
		if s == sub {
			next := make([]*Subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			c.subs[sub.kind] = append(next, list[i+1:]...)
			return
		}
	}
}

func (c *Client) dispatch(ev Event) {
	c.subsMu.RLock()
	list := c.subs[ev.Kind()]
	c.subsMu.RUnlock()

	// list is never mutated in place, so iterating the captured slice is safe.
	for _, sub := range list {
		if sub.removed.Load() {
			continue
		}
		sub.fn(ev)
	}
}

func (c *Client) OnPerformance(fn func(*PerformanceProgress)) *Subscription {
	return c.AddEventListener(KindPerformanceProgress, func(e Event) {
		if ev, ok := e.(*PerformanceProgress); ok {
			fn(ev)
		}
	})
}

func (c *Client) OnProcessRead(fn func(*ServerProcessReadEvent)) *Subscription {
	return c.AddEventListener(KindServerProcessRead, func(e Event) {
		if ev, ok := e.(*ServerProcessReadEvent); ok {
			fn(ev)
		}
	})
}

func (c *Client) OnStateChange(fn func(*ServerChangeStateEvent)) *Subscription {
	return c.AddEventListener(KindServerChangeState, func(e Event) {
		if ev, ok := e.(*ServerChangeStateEvent); ok {
			fn(ev)
		}
	})
}

func (c *Client) OnFileTaskStart(fn func(*FileTaskEvent)) *Subscription {
	return c.AddEventListener(KindFileTaskStart, func(e Event) {
		if ev, ok := e.(*FileTaskEvent); ok {
			fn(ev)
		}
	})
}

func (c *Client) OnFileTaskEnd(fn func(*FileTaskEvent)) *Subscription {
	return c.AddEventListener(KindFileTaskEnd, func(e Event) {
		if ev, ok := e.(*FileTaskEvent); ok {
			fn(ev)
		}
	})
}
