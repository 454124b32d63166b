// Package types holds the websocket wire envelopes and the client payloads
// they carry.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Client event names.
const (
	EvtCreateRoom   = "create_room"
	EvtJoinRoom     = "join_room"
	EvtSyncSelected = "sync_selected"
	EvtStartGame    = "start_game"
	EvtPauseGame    = "pause_game"
	EvtResumeGame   = "resume_game"
	EvtResetGame    = "reset_game"
	EvtCallNumber   = "call_number"
	EvtCheckWin     = "check_win"
	EvtRerollTicket = "reroll_ticket"
	EvtQuickChat    = "quick_chat"

	// EvtAck answers a client message that carried an ack id.
	EvtAck = "ack"
	// EvtError reports a message the server could not decode.
	EvtError = "error"
)

var ErrBadPayload = errors.New("invalid payload")

// ClientMessage is one frame sent by a client. Ack, when present, is echoed
// back on the reply.
type ClientMessage struct {
	Event string          `json:"event"`
	Ack   *int            `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Event string `json:"event"`
	Ack   *int   `json:"ack,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type RoomPayload struct {
	RoomCode string `json:"roomCode" validate:"required,len=4,numeric"`
}

type JoinRoomPayload struct {
	RoomCode     string `json:"roomCode" validate:"required,len=4,numeric"`
	PersistentID string `json:"persistentId" validate:"max=64"`
	Name         string `json:"name" validate:"max=64"`
}

type StartGamePayload struct {
	RoomCode string `json:"roomCode" validate:"required,len=4,numeric"`
	Continue bool   `json:"continue"`
}

type SyncSelectedPayload struct {
	RoomCode        string `json:"roomCode" validate:"required,len=4,numeric"`
	SelectedNumbers []int  `json:"selectedNumbers" validate:"max=90,dive,min=1,max=90"`
}

// CheckWinPayload only bounds RowNumbers. A wrong count or an uncalled number
// is a false alarm, not a bad request.
type CheckWinPayload struct {
	RoomCode        string `json:"roomCode" validate:"required,len=4,numeric"`
	RowNumbers      []int  `json:"rowNumbers" validate:"max=9"`
	RowIndex        int    `json:"rowIndex" validate:"min=0,max=8"`
	SelectedNumbers []int  `json:"selectedNumbers" validate:"max=90"`
}

type QuickChatPayload struct {
	RoomCode string `json:"roomCode" validate:"required,len=4,numeric"`
	Emoji    string `json:"emoji" validate:"max=64"`
	Text     string `json:"text" validate:"max=400"`
}

type CreateRoomReply struct {
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode"`
}

type FailureReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func Failure(err error) FailureReply {
	return FailureReply{Success: false, Error: err.Error()}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

var fieldMessages = map[string]string{
	"RoomCode":        "room code must be 4 digits",
	"PersistentID":    "player id is too long",
	"Name":            "name is too long",
	"SelectedNumbers": "selected numbers are out of range",
	"RowNumbers":      "too many numbers in claimed row",
	"RowIndex":        "row index must be between 0 and 8",
	"Emoji":           "emoji is too long",
	"Text":            "message is too long",
}

// Decode unmarshals raw into v and validates it. The returned error wraps
// ErrBadPayload and carries a message safe to show the client.
func Decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed json", ErrBadPayload)
	}
	if err := validatorInstance().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			// Slice elements report as Field[i].
			field, _, _ := strings.Cut(verrs[0].StructField(), "[")
			if msg, ok := fieldMessages[field]; ok {
				return fmt.Errorf("%w: %s", ErrBadPayload, msg)
			}
		}
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
