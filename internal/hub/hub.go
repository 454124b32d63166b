// Package hub owns the process-wide map of room code to room. All access
// goes through the hub's inbox.
package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/DoyleJ11/loto-server/internal/engine"
	"github.com/DoyleJ11/loto-server/internal/room"
	"github.com/DoyleJ11/loto-server/internal/session"
	"github.com/DoyleJ11/loto-server/internal/stats"
	"github.com/DoyleJ11/loto-server/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrNoCodesAvailable = errors.New("no room codes available")
var ErrHubClosed = errors.New("server is shutting down")

const (
	minCode      = 1000
	maxCode      = 9999
	codeAttempts = 50
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	HostConnID string
	Outbox     chan types.ServerMessage
	Reply      chan CreateResult
}

type CreateResult struct {
	Room *room.Room
	Err  error
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// RemoveRoom deletes Code only while it still maps to Room, so a late
// removal never drops a newer room that reused the code.
type RemoveRoom struct {
	Code string
	Room *room.Room
}

type CountRooms struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (CountRooms) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Config struct {
	Tracker           *session.Tracker
	Stats             stats.Recorder
	Logger            *zap.Logger
	VerificationDelay time.Duration
	GracePeriod       time.Duration
	NewEngine         func() *engine.Engine
	NewCode           func() (string, error)
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	cfg    Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Tracker == nil {
		cfg.Tracker = session.NewTracker()
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.NewEngine == nil {
		cfg.NewEngine = func() *engine.Engine { return engine.New() }
	}
	if cfg.NewCode == nil {
		cfg.NewCode = GenerateCode
	}

	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		cfg:    cfg,
		log:    cfg.Logger.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Tracker is the session tracker shared by every room of this hub.
func (h *Hub) Tracker() *session.Tracker { return h.cfg.Tracker }

// GenerateCode returns a random code in 1000-9999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+minCode, 10), nil
}

// Create opens a room hosted by hostConnID. The host's events go to outbox.
func (h *Hub) Create(ctx context.Context, hostConnID string, outbox chan types.ServerMessage) (*room.Room, error) {
	reply := make(chan CreateResult, 1)
	if err := h.send(ctx, CreateRoom{HostConnID: hostConnID, Outbox: outbox, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Room, res.Err
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Get(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, GetRoom{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		if r == nil {
			return nil, ErrRoomNotFound
		}
		return r, nil
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.send(ctx, CountRooms{Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-h.ctx.Done():
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Shutdown stops every room and the hub itself.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.closeRooms()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- h.create(msg)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case RemoveRoom:
				if h.rooms[msg.Code] == msg.Room {
					delete(h.rooms, msg.Code)
					h.log.Info("room removed", zap.String("room", msg.Code), zap.Int("rooms", len(h.rooms)))
				}

			case CountRooms:
				msg.Reply <- len(h.rooms)

			case ShutdownHub:
				h.closeRooms()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) create(msg CreateRoom) CreateResult {
	code, err := h.freeCode()
	if err != nil {
		return CreateResult{Err: err}
	}

	r := room.New(h.ctx, code, uuid.NewString(), msg.HostConnID, msg.Outbox, room.Options{
		Engine:            h.cfg.NewEngine(),
		Tracker:           h.cfg.Tracker,
		Stats:             h.cfg.Stats,
		Logger:            h.cfg.Logger.Named("room"),
		VerificationDelay: h.cfg.VerificationDelay,
		GracePeriod:       h.cfg.GracePeriod,
		OnClose:           h.removeLater,
	})
	h.rooms[code] = r
	h.log.Info("room created", zap.String("room", code), zap.Int("rooms", len(h.rooms)))
	return CreateResult{Room: r}
}

// freeCode tries random codes first and falls back to a scan so a nearly
// full code space still finds the gaps.
func (h *Hub) freeCode() (string, error) {
	if len(h.rooms) > maxCode-minCode {
		return "", ErrNoCodesAvailable
	}
	for range codeAttempts {
		code, err := h.cfg.NewCode()
		if err != nil {
			return "", err
		}
		if _, taken := h.rooms[code]; !taken {
			return code, nil
		}
		h.log.Debug("room code collision", zap.String("room", code))
	}
	for n := minCode; n <= maxCode; n++ {
		code := strconv.Itoa(n)
		if _, taken := h.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrNoCodesAvailable
}

// removeLater runs on the room's goroutine, so it must not wait on the hub.
func (h *Hub) removeLater(r *room.Room) {
	go func() {
		select {
		case h.inbox <- RemoveRoom{Code: r.Code(), Room: r}:
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) closeRooms() {
	for code, r := range h.rooms {
		r.Close()
		delete(h.rooms, code)
	}
}
