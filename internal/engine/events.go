package engine

import "github.com/DoyleJ11/loto-server/internal/ticket"

// EventType values are the event names sent on the wire.
type EventType string

const (
	EvtPlayerJoined       EventType = "player_joined"
	EvtPlayerLeft         EventType = "player_left"
	EvtGameStarted        EventType = "game_started"
	EvtNumberCalled       EventType = "number_called"
	EvtGamePaused         EventType = "game_paused"
	EvtGameResumed        EventType = "game_resumed"
	EvtGameReset          EventType = "game_reset"
	EvtGameResetBroadcast EventType = "game_reset_broadcast"
	EvtVerificationStart  EventType = "verification_start"
	EvtVerificationResult EventType = "verification_result"
	EvtGameOver           EventType = "game_over"
	EvtRoomClosed         EventType = "room_closed"
	EvtChatMessage        EventType = "chat_message"
)

// Event is one outbound message. To names a single connection; empty means
// every connection joined to the room. Data never aliases State.
type Event struct {
	Type EventType
	To   string
	Data any
}

type PlayerInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Online   bool   `json:"online"`
	JoinedAt int64  `json:"joinedAt"`
}

type Roster struct {
	PlayerCount int          `json:"playerCount"`
	OnlineCount int          `json:"onlineCount"`
	Players     []PlayerInfo `json:"players"`
}

type NumberCalled struct {
	Number        int   `json:"number"`
	CalledNumbers []int `json:"calledNumbers"`
	TotalCalled   int   `json:"totalCalled"`
}

type Notice struct {
	Message string `json:"message"`
}

type TicketPush struct {
	Ticket ticket.Ticket `json:"ticket"`
}

type VerificationStart struct {
	PlayerID        string        `json:"playerId"`
	PlayerName      string        `json:"playerName"`
	Ticket          ticket.Ticket `json:"ticket"`
	SelectedNumbers []int         `json:"selectedNumbers"`
	RowIndex        int           `json:"rowIndex"`
	RowNumbers      []int         `json:"rowNumbers"`
	CalledNumbers   []int         `json:"calledNumbers"`
}

type VerificationResult struct {
	Valid          bool   `json:"valid"`
	PlayerID       string `json:"playerId"`
	PlayerName     string `json:"playerName"`
	RowNumbers     []int  `json:"rowNumbers"`
	RowIndex       int    `json:"rowIndex"`
	InvalidNumbers []int  `json:"invalidNumbers,omitempty"`
}

type ChatMessage struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Emoji      string `json:"emoji,omitempty"`
	Text       string `json:"text,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Replies, returned to the caller only.

type JoinReply struct {
	Success  bool          `json:"success"`
	Ticket   ticket.Ticket `json:"ticket"`
	PlayerID string        `json:"playerId"`
}

type ReconnectReply struct {
	Success         bool          `json:"success"`
	Reconnected     bool          `json:"reconnected"`
	Ticket          ticket.Ticket `json:"ticket"`
	PlayerID        string        `json:"playerId"`
	SelectedNumbers []int         `json:"selectedNumbers"`
	CalledNumbers   []int         `json:"calledNumbers"`
	CurrentNumber   *int          `json:"currentNumber"`
	IsPlaying       bool          `json:"isPlaying"`
	IsPaused        bool          `json:"isPaused"`
	Winner          *string       `json:"winner"`
	Phase           Phase         `json:"phase"`
}

type ClaimReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
