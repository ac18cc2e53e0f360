package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mistikoda/arcana/internal/app"
	"github.com/mistikoda/arcana/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns the websocket side of a room channel: upgrades, pumps and
// the join/leave lifecycle. All event routing goes through the relay.
type Controller struct {
	Store *app.Store
	Relay *app.Relay

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(store *app.Store, relay *app.Relay, readLimit int64, pingPeriod time.Duration) *Controller {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &Controller{Store: store, Relay: relay, ReadLimit: readLimit, PingPeriod: pingPeriod}
}

// wsConn wraps one websocket with a buffered outbox. TrySend never blocks: a
// full outbox drops the frame, and the relay's policy decides what that
// costs the slow reader.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleRoom upgrades the connection and starts the pumps. The connection is
// roomless until its first join-room envelope arrives.
func (ctl *Controller) HandleRoom(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	log.Info().Str("module", "adapters.signal").
		Str("token", c.GetString("client_token")).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
	}()
}
