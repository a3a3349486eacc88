package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"voicebook/internal/domain"
	"voicebook/internal/ports"
	"voicebook/internal/transport"
)

// ErrChannelClosed is returned by Subscribe after Disconnect.
var ErrChannelClosed = errors.New("realtime channel is closed")

const topicPrefix = "voice-booking/"

// Config controls the realtime connection.
type Config struct {
	URL           string
	ReconnectWait time.Duration
}

// Channel is a websocket subscription hub keyed by requestId. Events for one
// requestId arrive in server-emission order and are dispatched without
// deduplication. Subscriptions are intentionally NOT restored after a
// reconnect: the owner falls back to the HTTP response as the sole source of
// truth until it subscribes again.
type Channel struct {
	cfg    Config
	tokens ports.TokenProvider
	log    *logrus.Entry

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[string]func(domain.RealtimeEvent)
	closed bool

	writeMu sync.Mutex
}

func NewChannel(cfg Config, tokens ports.TokenProvider, log *logrus.Logger) *Channel {
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 3 * time.Second
	}
	return &Channel{
		cfg:    cfg,
		tokens: tokens,
		log:    log.WithField("component", "realtime"),
		subs:   make(map[string]func(domain.RealtimeEvent)),
	}
}

// clientFrame is what we send: subscribe/unsubscribe control messages.
type clientFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// serverFrame is one inbound event: the negotiation payload plus routing.
type serverFrame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Subscribe registers a handler for the requestId-scoped topic, dialing the
// connection first if there is none.
func (c *Channel) Subscribe(ctx context.Context, requestID string, handler func(domain.RealtimeEvent)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.conn == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.conn = conn
		go c.readLoop(conn)
	}
	conn := c.conn
	c.subs[requestID] = handler
	c.mu.Unlock()

	return c.writeFrame(conn, clientFrame{Type: "subscribe", Topic: topicPrefix + requestID})
}

// Unsubscribe drops the requestId topic. Other subscriptions are unaffected.
func (c *Channel) Unsubscribe(requestID string) {
	c.mu.Lock()
	_, known := c.subs[requestID]
	delete(c.subs, requestID)
	conn := c.conn
	c.mu.Unlock()

	if known && conn != nil {
		_ = c.writeFrame(conn, clientFrame{Type: "unsubscribe", Topic: topicPrefix + requestID})
	}
}

// Disconnect tears down the connection and releases every handler reference.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.subs = make(map[string]func(domain.RealtimeEvent))
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve access token: %w", err)
	}

	headers := http.Header{}
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("dial realtime channel: %w", err)
	}
	c.log.WithField("url", c.cfg.URL).Debug("realtime channel connected")
	return conn, nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		var frame serverFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.log.WithError(err).Debug("dropping unparsable realtime frame")
			continue
		}

		requestID := strings.TrimPrefix(frame.Topic, topicPrefix)
		if requestID == "" || frame.Event == "" {
			continue
		}

		c.mu.Lock()
		handler := c.subs[requestID]
		c.mu.Unlock()
		if handler == nil {
			continue
		}

		handler(c.decode(requestID, frame))
	}
}

// decode tolerates events that carry no negotiation body (e.g. RECEIVED): the
// event kind alone still advances the state machine.
func (c *Channel) decode(requestID string, frame serverFrame) domain.RealtimeEvent {
	kind := domain.RealtimeEventKind(strings.ToUpper(frame.Event))

	body := frame.Payload
	if len(body) == 0 {
		body = []byte("{}")
	}
	update, err := transport.Normalize(body, requestID)
	if err != nil {
		update = domain.NegotiationUpdate{RequestID: requestID, Status: kind.Status()}
	}
	if update.Status == "" {
		update.Status = kind.Status()
	}
	return domain.RealtimeEvent{Kind: kind, Update: update}
}

func (c *Channel) handleDisconnect(conn *websocket.Conn, err error) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	// Handlers are dropped on purpose; see the type comment.
	c.subs = make(map[string]func(domain.RealtimeEvent))
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}

	c.log.WithError(err).Warn("realtime channel disconnected, scheduling reconnect")
	go c.reconnect()
}

// reconnect re-establishes the connection with a fixed backoff so later
// subscriptions find a live channel again.
func (c *Channel) reconnect() {
	for {
		time.Sleep(c.cfg.ReconnectWait)

		c.mu.Lock()
		if c.closed || c.conn != nil {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.log.WithError(err).Debug("realtime reconnect attempt failed")
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		go c.readLoop(conn)
		return
	}
}

func (c *Channel) writeFrame(conn *websocket.Conn, frame clientFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
