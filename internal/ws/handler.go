package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/DoyleJ11/loto-server/internal/hub"
	"github.com/DoyleJ11/loto-server/internal/room"
	"github.com/DoyleJ11/loto-server/internal/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	outboxSize   = 64
	sendSize     = 128
	writeTimeout = 5 * time.Second
	leaveTimeout = 2 * time.Second
	pingInterval = 25 * time.Second
)

type Options struct {
	// OriginPatterns lists accepted Origin hosts. Empty accepts any origin.
	OriginPatterns []string
	Logger         *zap.Logger
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	patterns := opts.OriginPatterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: patterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := &client{
			id:     uuid.NewString(),
			conn:   conn,
			hub:    h,
			send:   make(chan types.ServerMessage, sendSize),
			rooms:  make(map[string]*attachment),
			ctx:    ctx,
			cancel: cancel,
		}
		c.log = log.With(zap.String("conn", c.id))
		c.log.Debug("client connected")

		go c.writeLoop()
		go c.pingLoop()
		defer c.leaveAll()

		c.readLoop()
	}
}

// attachment is one room this connection receives events from.
type attachment struct {
	room     *room.Room
	playerID string // empty for the host
}

type client struct {
	id   string
	conn *websocket.Conn
	hub  *hub.Hub
	log  *zap.Logger
	send chan types.ServerMessage

	mu    sync.Mutex
	rooms map[string]*attachment

	ctx    context.Context
	cancel context.CancelFunc
}

func (c *client) readLoop() {
	for {
		var msg types.ClientMessage
		if err := wsjson.Read(c.ctx, c.conn, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Debug("client closed")
			default:
				if c.ctx.Err() == nil {
					c.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}
		c.handle(msg)
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(ctx, c.conn, msg)
			cancel()
			if err != nil {
				c.log.Debug("write failed", zap.Error(err))
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *client) push(msg types.ServerMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

// ack answers msg if it asked for an answer.
func (c *client) ack(msg types.ClientMessage, data any) {
	if msg.Ack == nil {
		return
	}
	c.push(types.ServerMessage{Event: types.EvtAck, Ack: msg.Ack, Data: data})
}

func (c *client) fail(msg types.ClientMessage, err error) {
	c.log.Debug("request rejected", zap.String("event", msg.Event), zap.Error(err))
	if msg.Ack == nil {
		return
	}
	c.ack(msg, types.Failure(err))
}

// attach starts forwarding outbox to the socket until the room closes it.
// The room stays in c.rooms so the disconnect still reaches it.
func (c *client) attach(r *room.Room, playerID string, outbox chan types.ServerMessage) {
	c.mu.Lock()
	c.rooms[r.Code()] = &attachment{room: r, playerID: playerID}
	c.mu.Unlock()

	go func() {
		for {
			select {
			case msg, ok := <-outbox:
				if !ok {
					return
				}
				c.push(msg)
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

// playerIn returns the player id this connection joined r with.
func (c *client) playerIn(r *room.Room) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.rooms[r.Code()]; ok && a.room == r {
		return a.playerID
	}
	return ""
}

// leaveAll tells every attached room this connection is gone.
func (c *client) leaveAll() {
	c.mu.Lock()
	rooms := make([]*room.Room, 0, len(c.rooms))
	for _, a := range c.rooms {
		rooms = append(rooms, a.room)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	for _, r := range rooms {
		if err := r.Send(ctx, room.Leave{ConnID: c.id}); err != nil && !errors.Is(err, room.ErrRoomClosed) {
			c.log.Warn("leave not delivered", zap.String("room", r.Code()), zap.Error(err))
		}
	}
	c.log.Debug("client disconnected", zap.Int("rooms", len(rooms)))
}
