// Package room runs one game room as an actor. Every command, disconnect and
// timer fire for the room goes through its inbox and is applied one at a time.
package room

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/loto-server/internal/engine"
	"github.com/DoyleJ11/loto-server/internal/session"
	"github.com/DoyleJ11/loto-server/internal/stats"
	"github.com/DoyleJ11/loto-server/internal/types"
	"go.uber.org/zap"
)

var ErrRoomClosed = errors.New("room is closed")

const (
	DefaultVerificationDelay = 3500 * time.Millisecond
	DefaultGracePeriod       = 5 * time.Minute

	inboxSize       = 64
	statsHookBudget = 5 * time.Second
)

type Msg interface{ isRoomMsg() }

// Join attaches a player connection. Outbox receives the room's events from
// then on, until the room closes it.
type Join struct {
	ConnID   string
	PlayerID string
	Name     string
	Outbox   chan types.ServerMessage
	Reply    chan JoinResult
}

func (Join) isRoomMsg() {}

type JoinResult struct {
	Data     any // engine.JoinReply or engine.ReconnectReply
	PlayerID string
	// Previous is the identity's binding before this join. Moved reports that
	// it belonged to another room.
	Previous session.Binding
	Moved    bool
	Err      error
}

// FromClient carries a command. Reply may be nil when the caller expects no
// answer.
type FromClient struct {
	Cmd   engine.Command
	Reply chan Reply
}

func (FromClient) isRoomMsg() {}

type Reply struct {
	Data any
	Err  error
}

type Leave struct{ ConnID string }

func (Leave) isRoomMsg() {}

// Evict drops a player who joined another room.
type Evict struct{ PlayerID string }

func (Evict) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type verificationDue struct{ seq uint64 }

func (verificationDue) isRoomMsg() {}

type graceExpired struct{ playerID string }

func (graceExpired) isRoomMsg() {}

type View struct {
	NumClients        int
	VerificationArmed bool
	State             engine.State
}

type Options struct {
	Engine            *engine.Engine
	Tracker           *session.Tracker
	Stats             stats.Recorder
	Logger            *zap.Logger
	VerificationDelay time.Duration
	GracePeriod       time.Duration

	// OnClose runs once on the actor goroutine after the room stops.
	OnClose func(*Room)
}

type Room struct {
	code    string
	inbox   chan Msg
	engine  *engine.Engine
	state   engine.State
	clients map[string]chan types.ServerMessage

	tracker     *session.Tracker
	stats       stats.Recorder
	log         *zap.Logger
	verifyDelay time.Duration
	grace       time.Duration
	onClose     func(*Room)

	verifyTimer *time.Timer
	roundStart  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts the room's actor with the host attached on hostConnID.
func New(parent context.Context, code, hostID, hostConnID string, hostOutbox chan types.ServerMessage, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)

	if opts.Engine == nil {
		opts.Engine = engine.New()
	}
	if opts.Tracker == nil {
		opts.Tracker = session.NewTracker()
	}
	if opts.Stats == nil {
		opts.Stats = stats.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.VerificationDelay <= 0 {
		opts.VerificationDelay = DefaultVerificationDelay
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}

	r := &Room{
		code:        code,
		inbox:       make(chan Msg, inboxSize),
		engine:      opts.Engine,
		state:       engine.NewState(code, hostID, hostConnID),
		clients:     map[string]chan types.ServerMessage{hostConnID: hostOutbox},
		tracker:     opts.Tracker,
		stats:       opts.Stats,
		log:         opts.Logger.With(zap.String("room", code)),
		verifyDelay: opts.VerificationDelay,
		grace:       opts.GracePeriod,
		onClose:     opts.OnClose,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

// Done is closed once the actor has stopped.
func (r *Room) Done() <-chan struct{} { return r.done }

// Close stops the room without notifying its members.
func (r *Room) Close() { r.cancel() }

// Send queues m for the actor. It fails with ErrRoomClosed once the room
// has stopped.
func (r *Room) Send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.ctx.Done():
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JoinPlayer attaches a player connection and waits for the outcome.
func (r *Room) JoinPlayer(ctx context.Context, j Join) (JoinResult, error) {
	j.Reply = make(chan JoinResult, 1)
	if err := r.Send(ctx, j); err != nil {
		return JoinResult{}, err
	}
	select {
	case res := <-j.Reply:
		return res, res.Err
	case <-r.done:
		return JoinResult{}, ErrRoomClosed
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	}
}

// Do applies cmd and waits for its reply.
func (r *Room) Do(ctx context.Context, cmd engine.Command) (any, error) {
	reply := make(chan Reply, 1)
	if err := r.Send(ctx, FromClient{Cmd: cmd, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Data, res.Err
	case <-r.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns a deep copy of the room's state.
func (r *Room) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrRoomClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// post is used by timers. A fire after the room stopped is dropped.
func (r *Room) post(m Msg) {
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
	}
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				res := r.join(msg)
				if msg.Reply != nil {
					msg.Reply <- res
				}

			case FromClient:
				res, err := r.apply(msg.Cmd)
				if err != nil {
					r.log.Debug("command rejected",
						zap.String("cmd", string(msg.Cmd.Type)),
						zap.String("conn", msg.Cmd.ConnID),
						zap.Error(err))
				}
				if msg.Reply != nil {
					msg.Reply <- Reply{Data: res.Reply, Err: err}
				}

			case Leave:
				r.leave(msg.ConnID)

			case Evict:
				r.evict(msg.PlayerID)

			case verificationDue:
				r.verifyTimer = nil
				if _, err := r.apply(engine.Command{Type: engine.CmdAdjudicate, Seq: msg.seq}); err != nil {
					r.log.Debug("verification fire ignored", zap.Uint64("seq", msg.seq), zap.Error(err))
				}

			case graceExpired:
				if _, err := r.apply(engine.Command{Type: engine.CmdExpirePlayer, PlayerID: msg.playerID}); err != nil {
					r.log.Debug("grace expiry ignored", zap.String("player", msg.playerID), zap.Error(err))
					break
				}
				r.tracker.Forget(msg.playerID, r.code)
				r.log.Info("player removed after grace period", zap.String("player", msg.playerID))

			case GetState:
				msg.Reply <- View{
					NumClients:        len(r.clients),
					VerificationArmed: r.verifyTimer != nil,
					State:             r.state.Clone(),
				}

			case Shutdown:
				r.shutdown()
				return
			}

			if r.state.Closed {
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) join(msg Join) JoinResult {
	res, err := r.apply(engine.Command{
		Type:     engine.CmdJoin,
		ConnID:   msg.ConnID,
		PlayerID: msg.PlayerID,
		Name:     msg.Name,
	}, msg)
	if err != nil {
		r.log.Debug("join rejected", zap.String("conn", msg.ConnID), zap.Error(err))
		return JoinResult{Err: err}
	}

	var pid string
	switch reply := res.Reply.(type) {
	case engine.JoinReply:
		pid = reply.PlayerID
	case engine.ReconnectReply:
		pid = reply.PlayerID
		r.log.Info("player reconnected", zap.String("player", pid))
	}
	prev, moved := r.tracker.Bind(pid, msg.ConnID, r.code)

	return JoinResult{Data: res.Reply, PlayerID: pid, Previous: prev, Moved: moved}
}

func (r *Room) leave(connID string) {
	if ch, ok := r.clients[connID]; ok {
		close(ch)
		delete(r.clients, connID)
	}

	p := r.state.PlayerByConn(connID)
	var pid string
	if p != nil {
		pid = p.ID
	}

	if _, err := r.apply(engine.Command{Type: engine.CmdDisconnect, ConnID: connID}); err != nil {
		if !errors.Is(err, engine.ErrUnknownConnection) {
			r.log.Warn("disconnect failed", zap.String("conn", connID), zap.Error(err))
		}
		return
	}
	if r.state.Closed {
		r.log.Info("host left, closing room")
		return
	}

	r.tracker.StartGrace(r.code, pid, r.grace, func() {
		r.post(graceExpired{playerID: pid})
	})
}

func (r *Room) evict(playerID string) {
	p, ok := r.state.Players[playerID]
	if !ok {
		return
	}
	connID := p.ConnID

	if _, err := r.apply(engine.Command{Type: engine.CmdEvictPlayer, PlayerID: playerID}); err != nil {
		r.log.Debug("evict ignored", zap.String("player", playerID), zap.Error(err))
		return
	}
	r.tracker.CancelGrace(r.code, playerID)
	if ch, ok := r.clients[connID]; ok && connID != "" {
		close(ch)
		delete(r.clients, connID)
	}
}

// apply runs cmd through the engine, delivers the resulting events and
// starts whatever follows from them. attach, when given, registers the
// joining connection before delivery so it sees its own join.
func (r *Room) apply(cmd engine.Command, attach ...Join) (engine.Result, error) {
	res, err := r.engine.Apply(&r.state, cmd)
	if err != nil {
		return res, err
	}
	for _, j := range attach {
		r.clients[j.ConnID] = j.Outbox
	}

	for _, ev := range res.Events {
		r.deliver(ev)
		r.react(ev)
	}
	return res, nil
}

func (r *Room) deliver(ev engine.Event) {
	msg := types.ServerMessage{Event: string(ev.Type), Data: ev.Data}
	if ev.To != "" {
		if ch, ok := r.clients[ev.To]; ok {
			r.sendTo(ev.To, ch, msg)
		}
		return
	}
	for id, ch := range r.clients {
		r.sendTo(id, ch, msg)
	}
}

func (r *Room) sendTo(id string, ch chan types.ServerMessage, msg types.ServerMessage) {
	select {
	case ch <- msg:
	default:
		// Slow client, drop it.
		r.log.Warn("dropping slow client", zap.String("conn", id))
		close(ch)
		delete(r.clients, id)
	}
}

func (r *Room) react(ev engine.Event) {
	switch ev.Type {
	case engine.EvtVerificationStart:
		seq := r.state.VerifySeq
		r.stopVerifyTimer()
		r.verifyTimer = time.AfterFunc(r.verifyDelay, func() {
			r.post(verificationDue{seq: seq})
		})
		r.log.Info("verification started", zap.Uint64("seq", seq))

	case engine.EvtGameStarted:
		r.roundStart = time.Now()
		r.recordRoundStart()

	case engine.EvtVerificationResult:
		result := ev.Data.(engine.VerificationResult)
		r.log.Info("verification resolved",
			zap.String("player", result.PlayerID),
			zap.Bool("valid", result.Valid))
		r.recordVerification(result)

	case engine.EvtGameOver:
		r.log.Info("numbers exhausted")
		r.recordGame(stats.GameRecord{})
	}
}

func (r *Room) stopVerifyTimer() {
	if r.verifyTimer != nil {
		r.verifyTimer.Stop()
		r.verifyTimer = nil
	}
}

// shutdown runs on the actor goroutine. Pending timers become no-ops and the
// tracker forgets the room so a reused code starts clean.
func (r *Room) shutdown() {
	r.stopVerifyTimer()
	r.tracker.ForgetRoom(r.code)
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
	if r.onClose != nil {
		r.onClose(r)
		r.onClose = nil
	}
}
