package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mistikoda/arcana/internal/domain"
	"github.com/mistikoda/arcana/internal/protocol"
	"github.com/mistikoda/arcana/internal/tabletop"
)

const (
	writeWait    = 5 * time.Second
	sendBacklog  = 64
	pingInterval = 54 * time.Second
)

// Conn couples a Session to a live websocket. Outbound events go through a
// buffered channel; when it is full the frame is dropped, matching the
// fire-and-forget contract of the protocol.
type Conn struct {
	sess *Session
	ws   *websocket.Conn
	send chan protocol.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to a room endpoint, joins and starts the pumps. The returned
// Session is hydrated as server sync events arrive.
func Dial(ctx context.Context, rawURL string, room domain.RoomID, role domain.Role, engine *tabletop.Engine) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	self := domain.NewParticipantID()
	c := &Conn{
		ws:   ws,
		send: make(chan protocol.Envelope, sendBacklog),
		done: make(chan struct{}),
	}
	c.sess = NewSession(room, self, role, EmitterFunc(c.emit), engine)

	go c.writeLoop()
	go c.readLoop()

	c.emit(protocol.TypeJoinRoom, protocol.JoinRoom{ParticipantID: self, Role: role})
	return c, nil
}

func (c *Conn) Session() *Session { return c.sess }

func (c *Conn) emit(t protocol.Type, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("type", string(t)).Msg("marshal")
		return
	}
	env := protocol.Envelope{Type: t, Room: c.sess.room, Sender: c.sess.self}
	if payload != nil {
		env.Payload = raw
	}
	select {
	case c.send <- env:
	case <-c.done:
	default:
		log.Warn().Str("module", "client").Str("type", string(t)).Msg("send backlog full, frame dropped")
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				log.Error().Err(err).Str("module", "client").Msg("write")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) readLoop() {
	defer c.Close()
	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			log.Info().Err(err).Str("module", "client").Msg("read loop closing")
			return
		}
		c.sess.Apply(env)
	}
}

// Close tears the socket down. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
