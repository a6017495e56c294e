package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/trackerlive/internal/metrics"
	"github.com/prudhvinik1/trackerlive/internal/models"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

const (
	DefaultSendBuffer   = 64
	DefaultWriteTimeout = 5 * time.Second
	DefaultPingInterval = 30 * time.Second
	maxFrameBytes       = 64 << 10
)

type ClientOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	InboundRate  rate.Limit
	InboundBurst int
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.InboundRate <= 0 {
		o.InboundRate = 20
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = 40
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Client is one websocket connection. Outbound frames go through a bounded
// queue drained by a single writer, so Send never blocks the hub.
type Client struct {
	id      ConnID
	ws      *websocket.Conn
	hub     *Hub
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	opts    ClientOptions
}

func NewClient(ws *websocket.Conn, hub *Hub, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	return &Client{
		id:      ConnID(uuid.New().String()),
		ws:      ws,
		hub:     hub,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(opts.InboundRate, opts.InboundBurst),
		opts:    opts,
	}
}

func (c *Client) ID() ConnID {
	return c.id
}

func (c *Client) Send(event models.OutboundEvent) bool {
	frame, err := models.EncodeOutbound(event)
	if err != nil {
		c.opts.Logger.Error("encode_outbound_failed", "conn_id", string(c.id), "error", err)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Serve runs the connection until the peer goes away or ctx ends, then raises
// the disconnect with the hub. verifiedUserID is the identity proven by the
// upgrade request, if any.
func (c *Client) Serve(ctx context.Context, verifiedUserID string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.ws.SetReadLimit(maxFrameBytes)
	c.hub.Attach(c, verifiedUserID)
	defer c.hub.Unregister(c.id)

	go c.writeLoop(ctx, cancel)
	go c.pingLoop(ctx, cancel)

	c.readLoop(ctx)

	c.once.Do(func() { close(c.done) })
	c.ws.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				c.opts.Logger.Debug("connection_read_ended", "conn_id", string(c.id), "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			c.reject(models.ErrMalformedEvent)
			continue
		}
		if !c.limiter.Allow() {
			c.reject(ErrRateLimited)
			continue
		}

		event, err := models.DecodeInbound(data)
		if err != nil {
			c.reject(err)
			continue
		}
		if err := c.hub.Handle(c.id, event); err != nil {
			c.reject(err)
		}
	}
}

func (c *Client) reject(err error) {
	c.opts.Metrics.ProtocolError(ProtocolErrorReason(err))
	c.opts.Logger.Debug("protocol_error", "conn_id", string(c.id), "error", err)
	c.Send(models.ErrorEvent{Message: err.Error()})
}

func (c *Client) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.send:
			writeCtx, writeCancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
			err := c.ws.Write(writeCtx, websocket.MessageText, frame)
			writeCancel()
			if err != nil {
				c.opts.Logger.Debug("connection_write_failed", "conn_id", string(c.id), "error", err)
				cancel()
				return
			}
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
			err := c.ws.Ping(pingCtx)
			pingCancel()
			if err != nil {
				c.opts.Logger.Debug("connection_ping_failed", "conn_id", string(c.id), "error", err)
				cancel()
				return
			}
		}
	}
}
