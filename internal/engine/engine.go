package engine

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/DoyleJ11/loto-server/internal/ticket"
	"github.com/google/uuid"
)

var ErrNotHost = errors.New("only the host can do that")
var ErrNotMember = errors.New("you are not in this room")
var ErrAlreadyWon = errors.New("this round already has a winner")
var ErrVerificationInFlight = errors.New("another ticket is being checked, please wait")
var ErrGameInProgress = errors.New("game is in progress, cannot join")
var ErrNotPlaying = errors.New("game is not running")
var ErrPaused = errors.New("game is paused")
var ErrRoundStarted = errors.New("round already started")
var ErrResetRequired = errors.New("reset the game before starting a new round")
var ErrStaleVerification = errors.New("verification no longer pending")
var ErrPlayerOnline = errors.New("player is online")
var ErrUnknownConnection = errors.New("connection is not bound to this room")
var ErrEmptyMessage = errors.New("empty chat message")
var ErrRoomClosed = errors.New("room is closed")
var ErrUnsupportedCommand = errors.New("unsupported command")

const (
	MinNumber = 1
	MaxNumber = ticket.MaxNumber

	hostDisplayName = "Host"
	maxChatText     = 100
	maxChatEmoji    = 16
)

type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
	PhaseEnded   Phase = "ended"
)

type Player struct {
	ID       string
	Name     string
	Ticket   ticket.Ticket
	Selected []int // client reported, only restored on reconnect
	Online   bool
	ConnID   string
	JoinedAt time.Time
}

// Verification is the snapshot taken when a claim is accepted. Adjudication
// reads only this snapshot and the room's called numbers.
type Verification struct {
	Seq        uint64
	PlayerID   string
	PlayerName string
	Ticket     ticket.Ticket
	Selected   []int // display only
	RowIndex   int
	RowNumbers []int
}

type State struct {
	Code         string
	HostID       string
	HostConnID   string
	Players      map[string]*Player
	Order        []string // join order, for the host's list
	Called       []int
	Current      int // 0 until the first call
	Playing      bool
	Paused       bool
	Winner       string
	Verification *Verification
	VerifySeq    uint64
	Closed       bool
}

type CommandType string

const (
	CmdJoin         CommandType = "Join"
	CmdSyncSelected CommandType = "SyncSelected"
	CmdStartGame    CommandType = "StartGame"
	CmdCallNumber   CommandType = "CallNumber"
	CmdPauseGame    CommandType = "PauseGame"
	CmdResumeGame   CommandType = "ResumeGame"
	CmdResetGame    CommandType = "ResetGame"
	CmdRerollTicket CommandType = "RerollTicket"
	CmdClaimWin     CommandType = "ClaimWin"
	CmdAdjudicate   CommandType = "Adjudicate"
	CmdDisconnect   CommandType = "Disconnect"
	CmdExpirePlayer CommandType = "ExpirePlayer"
	CmdEvictPlayer  CommandType = "EvictPlayer"
	CmdQuickChat    CommandType = "QuickChat"
)

/*
	CmdJoin         -> player_joined (+ join or reconnect reply)
	CmdStartGame    -> game_started
	CmdCallNumber   -> number_called | game_over
	CmdResetGame    -> game_reset (private, per online player) -> game_reset_broadcast
	CmdClaimWin     -> verification_start (+ claim reply)
	CmdAdjudicate   -> verification_result [-> game_resumed on a false alarm]
	CmdDisconnect   -> player_left | room_closed (host)
*/

type Command struct {
	Type     CommandType
	ConnID   string
	PlayerID string
	Name     string
	Numbers  []int // selection for SyncSelected, claimed row for ClaimWin
	Selected []int // client selection attached to a claim
	RowIndex int
	Continue bool
	Seq      uint64
	Emoji    string
	Text     string
}

type Engine struct {
	tickets *ticket.Generator
	rng     *rand.Rand
	now     func() time.Time
	newID   func() string
}

type Option func(*Engine)

// WithRand seeds both number calling and ticket dealing from rng.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
		e.tickets = ticket.NewGenerator(rng)
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New returns an Engine for a single room. It is not safe for concurrent use.
func New(opts ...Option) *Engine {
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	e := &Engine{
		tickets: ticket.NewGenerator(rng),
		rng:     rng,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result holds the events to deliver and the reply for the caller, if the
// command has one.
type Result struct {
	Events []Event
	Reply  any
}

// Apply validates cmd against s and mutates s on success. A rejected command
// returns an error and leaves s untouched.
func (e *Engine) Apply(s *State, cmd Command) (Result, error) {
	if s.Closed {
		return Result{}, ErrRoomClosed
	}

	switch cmd.Type {
	case CmdJoin:
		return e.join(s, cmd)
	case CmdSyncSelected:
		return syncSelected(s, cmd)
	case CmdRerollTicket:
		return e.reroll(s, cmd)
	case CmdDisconnect:
		return disconnect(s, cmd)
	case CmdExpirePlayer:
		return expire(s, cmd)
	case CmdEvictPlayer:
		return evict(s, cmd)
	case CmdQuickChat:
		return e.chat(s, cmd)
	case CmdStartGame:
		return start(s, cmd)
	case CmdCallNumber:
		return e.call(s, cmd)
	case CmdPauseGame:
		return setPaused(s, cmd, true)
	case CmdResumeGame:
		return setPaused(s, cmd, false)
	case CmdResetGame:
		return e.reset(s, cmd)
	case CmdClaimWin:
		return claim(s, cmd)
	case CmdAdjudicate:
		return adjudicate(s, cmd)
	default:
		return Result{}, ErrUnsupportedCommand
	}
}
