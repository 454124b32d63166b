package engine

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

func (e *Engine) join(s *State, cmd Command) (Result, error) {
	if p, ok := s.Players[cmd.PlayerID]; ok && cmd.PlayerID != "" {
		return rejoin(s, p, cmd), nil
	}

	// New players only before the first call of a round.
	if len(s.Called) > 0 {
		return Result{}, ErrGameInProgress
	}

	id := cmd.PlayerID
	if id == "" {
		id = e.newID()
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = fmt.Sprintf("Player %d", len(s.Players)+1)
	}

	p := &Player{
		ID:       id,
		Name:     name,
		Ticket:   e.deal(),
		Online:   true,
		ConnID:   cmd.ConnID,
		JoinedAt: e.now(),
	}
	s.Players[id] = p
	s.Order = append(s.Order, id)

	return Result{
		Events: []Event{{Type: EvtPlayerJoined, Data: s.roster()}},
		Reply:  JoinReply{Success: true, Ticket: p.Ticket, PlayerID: id},
	}, nil
}

// rejoin rebinds a known identity to its new connection and hands back
// everything the client needs to resume.
func rejoin(s *State, p *Player, cmd Command) Result {
	p.ConnID = cmd.ConnID
	p.Online = true

	reply := ReconnectReply{
		Success:         true,
		Reconnected:     true,
		Ticket:          p.Ticket,
		PlayerID:        p.ID,
		SelectedNumbers: nonNil(p.Selected),
		CalledNumbers:   nonNil(s.Called),
		IsPlaying:       s.Playing,
		IsPaused:        s.Paused,
		Phase:           DerivePhase(*s),
	}
	if s.Current != 0 {
		n := s.Current
		reply.CurrentNumber = &n
	}
	if s.Winner != "" {
		w := s.Winner
		reply.Winner = &w
	}

	return Result{
		Events: []Event{{Type: EvtPlayerJoined, Data: s.roster()}},
		Reply:  reply,
	}
}

func syncSelected(s *State, cmd Command) (Result, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return Result{}, ErrNotMember
	}
	p.Selected = slices.Clone(cmd.Numbers)
	return Result{}, nil
}

func (e *Engine) reroll(s *State, cmd Command) (Result, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return Result{}, ErrNotMember
	}
	if s.Playing || len(s.Called) > 0 || s.Verification != nil {
		return Result{}, ErrRoundStarted
	}

	p.Ticket = e.deal()
	p.Selected = nil

	var events []Event
	if p.Online && p.ConnID != "" {
		events = append(events, Event{Type: EvtGameReset, To: p.ConnID, Data: TicketPush{Ticket: p.Ticket}})
	}
	return Result{Events: events}, nil
}

// disconnect closes the room when the host drops; a player drop only marks
// the player offline.
func disconnect(s *State, cmd Command) (Result, error) {
	if s.isHost(cmd.ConnID) {
		s.Closed = true
		s.Verification = nil
		s.HostConnID = ""
		return Result{
			Events: []Event{{Type: EvtRoomClosed, Data: Notice{Message: "The host has left the room"}}},
		}, nil
	}

	p := s.PlayerByConn(cmd.ConnID)
	if p == nil {
		return Result{}, ErrUnknownConnection
	}
	p.Online = false
	p.ConnID = ""

	return Result{Events: []Event{{Type: EvtPlayerLeft, Data: s.roster()}}}, nil
}

// expire removes a player whose grace period ran out. A player who came back
// in the meantime stays.
func expire(s *State, cmd Command) (Result, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return Result{}, ErrNotMember
	}
	if p.Online {
		return Result{}, ErrPlayerOnline
	}
	s.removePlayer(p.ID)
	return Result{Events: []Event{{Type: EvtPlayerLeft, Data: s.roster()}}}, nil
}

// evict removes a player unconditionally, used when the identity joined
// another room.
func evict(s *State, cmd Command) (Result, error) {
	if _, ok := s.Players[cmd.PlayerID]; !ok {
		return Result{}, ErrNotMember
	}
	s.removePlayer(cmd.PlayerID)
	return Result{Events: []Event{{Type: EvtPlayerLeft, Data: s.roster()}}}, nil
}

func (e *Engine) chat(s *State, cmd Command) (Result, error) {
	var id, name string
	if p, ok := s.Players[cmd.PlayerID]; ok {
		id, name = p.ID, p.Name
	} else if s.isHost(cmd.ConnID) {
		id, name = s.HostID, hostDisplayName
	} else {
		return Result{}, ErrNotMember
	}

	emoji := truncate(strings.TrimSpace(cmd.Emoji), maxChatEmoji)
	text := truncate(strings.TrimSpace(cmd.Text), maxChatText)
	if emoji == "" && text == "" {
		return Result{}, ErrEmptyMessage
	}

	return Result{Events: []Event{{
		Type: EvtChatMessage,
		Data: ChatMessage{
			PlayerID:   id,
			PlayerName: name,
			Emoji:      emoji,
			Text:       text,
			Timestamp:  e.now().UnixMilli(),
		},
	}}}, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
