package engine

import (
	"slices"

	"github.com/DoyleJ11/loto-server/internal/ticket"
)

// claim accepts a win claim for later adjudication. Calling freezes until
// the matching Adjudicate arrives.
func claim(s *State, cmd Command) (Result, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok || cmd.PlayerID == "" {
		return Result{}, ErrNotMember
	}
	if s.Winner != "" {
		return Result{}, ErrAlreadyWon
	}
	if s.Verification != nil {
		return Result{}, ErrVerificationInFlight
	}

	s.Paused = true
	s.VerifySeq++
	v := &Verification{
		Seq:        s.VerifySeq,
		PlayerID:   p.ID,
		PlayerName: p.Name,
		Ticket:     p.Ticket,
		Selected:   nonNil(cmd.Selected),
		RowIndex:   cmd.RowIndex,
		RowNumbers: nonNil(cmd.Numbers),
	}
	s.Verification = v

	return Result{
		Events: []Event{{
			Type: EvtVerificationStart,
			Data: VerificationStart{
				PlayerID:        v.PlayerID,
				PlayerName:      v.PlayerName,
				Ticket:          v.Ticket,
				SelectedNumbers: slices.Clone(v.Selected),
				RowIndex:        v.RowIndex,
				RowNumbers:      slices.Clone(v.RowNumbers),
				CalledNumbers:   slices.Clone(s.Called),
			},
		}},
		Reply: ClaimReply{Success: true, Message: "Checking ticket..."},
	}, nil
}

// adjudicate resolves the verification identified by cmd.Seq. Anything else
// in flight, or nothing at all, makes it a stale fire.
func adjudicate(s *State, cmd Command) (Result, error) {
	v := s.Verification
	if v == nil || v.Seq != cmd.Seq {
		return Result{}, ErrStaleVerification
	}
	s.Verification = nil

	result := VerificationResult{
		PlayerID:   v.PlayerID,
		PlayerName: v.PlayerName,
		RowNumbers: slices.Clone(v.RowNumbers),
		RowIndex:   v.RowIndex,
	}

	if ValidClaim(v.Ticket, v.RowIndex, v.RowNumbers, s.Called) {
		s.Winner = v.PlayerID
		s.Playing = false
		s.Paused = false
		result.Valid = true
		return Result{Events: []Event{{Type: EvtVerificationResult, Data: result}}}, nil
	}

	s.Paused = false
	result.InvalidNumbers = Uncalled(v.RowNumbers, s.Called)
	return Result{Events: []Event{
		{Type: EvtVerificationResult, Data: result},
		{Type: EvtGameResumed},
	}}, nil
}

// ValidClaim reports whether row holds exactly five distinct numbers, all of
// them called and all of them on row rowIndex of t.
func ValidClaim(t ticket.Ticket, rowIndex int, row, called []int) bool {
	if len(row) != ticket.PerRow {
		return false
	}
	onRow := t.Row(rowIndex)
	seen := make(map[int]bool, len(row))
	for _, n := range row {
		if seen[n] {
			return false
		}
		seen[n] = true
		if !slices.Contains(called, n) || !slices.Contains(onRow, n) {
			return false
		}
	}
	return true
}

// Uncalled returns the numbers of row that were never called, in claim order.
func Uncalled(row, called []int) []int {
	var out []int
	for _, n := range row {
		if !slices.Contains(called, n) {
			out = append(out, n)
		}
	}
	return out
}
