package engine

import (
	"slices"

	"github.com/DoyleJ11/loto-server/internal/ticket"
)

func NewState(code, hostID, hostConnID string) State {
	return State{
		Code:       code,
		HostID:     hostID,
		HostConnID: hostConnID,
		Players:    map[string]*Player{},
		Called:     []int{},
	}
}

func DerivePhase(s State) Phase {
	switch {
	case s.Playing && s.Paused:
		return PhasePaused
	case s.Playing:
		return PhasePlaying
	case s.Winner != "" || len(s.Called) > 0:
		return PhaseEnded
	default:
		return PhaseLobby
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// PlayerByConn returns the player currently bound to connID, or nil.
func (s *State) PlayerByConn(connID string) *Player {
	if connID == "" {
		return nil
	}
	for _, p := range s.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (s *State) OnlineCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Online {
			n++
		}
	}
	return n
}

// Clone returns a deep copy that shares nothing with s.
func (s State) Clone() State {
	out := s
	out.Players = make(map[string]*Player, len(s.Players))
	for id, p := range s.Players {
		cp := *p
		cp.Selected = slices.Clone(p.Selected)
		out.Players[id] = &cp
	}
	out.Order = slices.Clone(s.Order)
	out.Called = slices.Clone(s.Called)
	if s.Verification != nil {
		v := *s.Verification
		v.Selected = slices.Clone(v.Selected)
		v.RowNumbers = slices.Clone(v.RowNumbers)
		out.Verification = &v
	}
	return out
}

func (s *State) roster() Roster {
	players := make([]PlayerInfo, 0, len(s.Order))
	for _, id := range s.Order {
		p := s.Players[id]
		players = append(players, PlayerInfo{
			ID:       p.ID,
			Name:     p.Name,
			Online:   p.Online,
			JoinedAt: p.JoinedAt.UnixMilli(),
		})
	}
	return Roster{
		PlayerCount: len(s.Players),
		OnlineCount: s.OnlineCount(),
		Players:     players,
	}
}

func (s *State) removePlayer(id string) {
	delete(s.Players, id)
	s.Order = slices.DeleteFunc(s.Order, func(other string) bool { return other == id })
}

func (s *State) isHost(connID string) bool {
	return connID != "" && connID == s.HostConnID
}

func (e *Engine) deal() ticket.Ticket {
	return e.tickets.Generate()
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil(xs []int) []int {
	if xs == nil {
		return []int{}
	}
	return slices.Clone(xs)
}
