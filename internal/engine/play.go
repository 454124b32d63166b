package engine

import "slices"

func start(s *State, cmd Command) (Result, error) {
	if !s.isHost(cmd.ConnID) {
		return Result{}, ErrNotHost
	}
	if s.Verification != nil {
		return Result{}, ErrVerificationInFlight
	}
	// Keeping the call history across rounds has to be asked for.
	if len(s.Called) > 0 && !cmd.Continue {
		return Result{}, ErrResetRequired
	}

	s.Playing = true
	s.Paused = false
	s.Winner = ""
	s.Verification = nil

	return Result{Events: []Event{{Type: EvtGameStarted}}}, nil
}

func (e *Engine) call(s *State, cmd Command) (Result, error) {
	if !s.isHost(cmd.ConnID) {
		return Result{}, ErrNotHost
	}
	if s.Verification != nil {
		return Result{}, ErrVerificationInFlight
	}
	if !s.Playing {
		return Result{}, ErrNotPlaying
	}
	if s.Paused {
		return Result{}, ErrPaused
	}

	remaining := make([]int, 0, MaxNumber-len(s.Called))
	for n := MinNumber; n <= MaxNumber; n++ {
		if !slices.Contains(s.Called, n) {
			remaining = append(remaining, n)
		}
	}
	if len(remaining) == 0 {
		s.Playing = false
		return Result{Events: []Event{{
			Type: EvtGameOver,
			Data: Notice{Message: "All numbers have been called"},
		}}}, nil
	}

	n := remaining[e.rng.IntN(len(remaining))]
	s.Called = append(s.Called, n)
	s.Current = n

	return Result{Events: []Event{{
		Type: EvtNumberCalled,
		Data: NumberCalled{
			Number:        n,
			CalledNumbers: slices.Clone(s.Called),
			TotalCalled:   len(s.Called),
		},
	}}}, nil
}

func setPaused(s *State, cmd Command, paused bool) (Result, error) {
	if !s.isHost(cmd.ConnID) {
		return Result{}, ErrNotHost
	}
	if s.Verification != nil {
		return Result{}, ErrVerificationInFlight
	}
	if !s.Playing {
		return Result{}, ErrNotPlaying
	}

	s.Paused = paused
	if paused {
		return Result{Events: []Event{{Type: EvtGamePaused}}}, nil
	}
	return Result{Events: []Event{{Type: EvtGameResumed}}}, nil
}

// reset returns the room to the lobby and deals every player a new ticket.
// Each player only receives their own ticket.
func (e *Engine) reset(s *State, cmd Command) (Result, error) {
	if !s.isHost(cmd.ConnID) {
		return Result{}, ErrNotHost
	}
	if s.Verification != nil {
		return Result{}, ErrVerificationInFlight
	}

	s.Called = []int{}
	s.Current = 0
	s.Playing = false
	s.Paused = false
	s.Winner = ""

	events := make([]Event, 0, len(s.Order)+1)
	for _, id := range s.Order {
		p := s.Players[id]
		p.Ticket = e.deal()
		p.Selected = nil
		if p.Online && p.ConnID != "" {
			events = append(events, Event{Type: EvtGameReset, To: p.ConnID, Data: TicketPush{Ticket: p.Ticket}})
		}
	}
	events = append(events, Event{Type: EvtGameResetBroadcast})

	return Result{Events: events}, nil
}
