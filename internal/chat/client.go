package chat

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sakif/roomchat/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBuffer = 256
)

// Sink receives every valid send_message event read from a client.
type Sink interface {
	OnIncomingMessage(ctx context.Context, in Incoming) error
}

// ClientOptions carries the per-connection settings chosen at upgrade time.
type ClientOptions struct {
	// Room is the room the connection is viewing. It is used when an event
	// omits its chat field, and for room-scoped delivery.
	Room string
	// Identity is the session snapshot, nil for anonymous connections.
	Identity *model.SessionUser
	// MaxMessageBytes is the read limit for one frame.
	MaxMessageBytes int64
	// RateBurst messages are allowed per RateInterval.
	RateBurst    int
	RateInterval time.Duration
}

// Client is one WebSocket connection registered with a Hub.
type Client struct {
	id       string
	addr     string
	room     string
	identity *model.SessionUser

	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	sink    Sink
	limiter *rate.Limiter
	logger  *slog.Logger

	closeOnce sync.Once
}

// NewClient wraps an upgraded connection. Call Hub.Register to start it.
func NewClient(conn *websocket.Conn, hub *Hub, sink Sink, opts ClientOptions, logger *slog.Logger) *Client {
	id := uuid.NewString()

	if opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(opts.MaxMessageBytes)
	}

	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	interval := opts.RateInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &Client{
		id:       id,
		addr:     conn.RemoteAddr().String(),
		room:     opts.Room,
		identity: opts.Identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		hub:      hub,
		sink:     sink,
		limiter:  rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst),
		logger:   logger.With(slog.String("conn", id)),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Room returns the room the connection is viewing.
func (c *Client) Room() string { return c.room }

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeConn()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.Allow() {
			c.logger.Warn("rate limit exceeded, discarding message")
			continue
		}

		in, err := DecodeSend(raw)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				c.logger.Debug("ignoring event", slog.String("error", err.Error()))
			} else {
				c.logger.Warn("invalid event", slog.String("error", err.Error()))
			}
			continue
		}

		if in.Chat == "" {
			in.Chat = c.room
		}
		in.Identity = c.identity

		if err := c.sink.OnIncomingMessage(context.Background(), in); err != nil {
			c.logger.Warn("message not accepted",
				slog.String("chat", in.Chat),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Warn("write failed", slog.String("error", err.Error()))
				}
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("closing connection", slog.String("error", err.Error()))
		}
	})
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded read limit, closing")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Debug("client disconnected")
	case isExpectedCloseError(err):
		c.logger.Debug("connection closed", slog.String("error", err.Error()))
	default:
		c.logger.Warn("read failed", slog.String("error", err.Error()))
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	var netErr net.Error
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		(errors.As(err, &netErr) && netErr.Timeout())
}
