package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/DoyleJ11/loto-server/internal/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostConn = "host-conn"

func newTestEngine(seed uint64) *Engine {
	n := 0
	return New(
		WithRand(rand.New(rand.NewPCG(seed, seed+1))),
		WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }),
		WithIDs(func() string { n++; return fmt.Sprintf("gen-%d", n) }),
	)
}

func newRoomState() State {
	return NewState("1234", "host-id", hostConn)
}

func mustApply(t *testing.T, e *Engine, s *State, cmd Command) Result {
	t.Helper()
	res, err := e.Apply(s, cmd)
	require.NoError(t, err, "cmd %s", cmd.Type)
	return res
}

func joinPlayer(t *testing.T, e *Engine, s *State, id, conn string) *Player {
	t.Helper()
	mustApply(t, e, s, Command{Type: CmdJoin, ConnID: conn, PlayerID: id, Name: id})
	return s.Players[id]
}

func eventOf(t *testing.T, events []Event, typ EventType) Event {
	t.Helper()
	for _, ev := range events {
		if ev.Type == typ {
			return ev
		}
	}
	t.Fatalf("event %s not in %+v", typ, events)
	return Event{}
}

func TestHostOnlyCommandsRejectNonHost(t *testing.T) {
	for _, typ := range []CommandType{CmdStartGame, CmdCallNumber, CmdPauseGame, CmdResumeGame, CmdResetGame} {
		t.Run(string(typ), func(t *testing.T) {
			e := newTestEngine(1)
			s := newRoomState()
			joinPlayer(t, e, &s, "an", "an-conn")

			_, err := e.Apply(&s, Command{Type: typ, ConnID: "an-conn", PlayerID: "an"})
			assert.ErrorIs(t, err, ErrNotHost)
		})
	}
}

func TestJoin_NewPlayerGetsValidTicket(t *testing.T) {
	e := newTestEngine(2)
	s := newRoomState()

	res := mustApply(t, e, &s, Command{Type: CmdJoin, ConnID: "c1", Name: "  An  "})
	reply, ok := res.Reply.(JoinReply)
	require.True(t, ok)
	assert.True(t, reply.Success)
	assert.Equal(t, "gen-1", reply.PlayerID)
	require.NoError(t, reply.Ticket.Validate())

	p := s.Players[reply.PlayerID]
	require.NotNil(t, p)
	assert.Equal(t, "An", p.Name)
	assert.True(t, p.Online)
	assert.Equal(t, "c1", p.ConnID)

	roster := eventOf(t, res.Events, EvtPlayerJoined).Data.(Roster)
	assert.Equal(t, 1, roster.PlayerCount)
	assert.Equal(t, 1, roster.OnlineCount)
}

func TestJoin_DefaultNameCountsPlayers(t *testing.T) {
	e := newTestEngine(3)
	s := newRoomState()
	joinPlayer(t, e, &s, "a", "c1")

	res := mustApply(t, e, &s, Command{Type: CmdJoin, ConnID: "c2", PlayerID: "b"})
	assert.Equal(t, "b", res.Reply.(JoinReply).PlayerID)
	assert.Equal(t, "Player 2", s.Players["b"].Name)
}

func TestJoin_BlockedAfterFirstCall(t *testing.T) {
	e := newTestEngine(4)
	s := newRoomState()
	joinPlayer(t, e, &s, "an", "an-conn")
	mustApply(t, e, &s, Command{Type: CmdStartGame, ConnID: hostConn})

	// Started but nothing called yet: still open.
	joinPlayer(t, e, &s, "binh", "binh-conn")

	mustApply(t, e, &s, Command{Type: CmdCallNumber, ConnID: hostConn})
	_, err := e.Apply(&s, Command{Type: CmdJoin, ConnID: "late", PlayerID: "chi"})
	assert.ErrorIs(t, err, ErrGameInProgress)
	assert.NotContains(t, s.Players, "chi")
}

func TestReconnect_RestoresState(t *testing.T) {
	e := newTestEngine(5)
	s := newRoomState()
	p := joinPlayer(t, e, &s, "an", "an-conn")
	original := p.Ticket

	mustApply(t, e, &s, Command{Type: CmdStartGame, ConnID: hostConn})
	mustApply(t, e, &s, Command{Type: CmdCallNumber, ConnID: hostConn})
	mustApply(t, e, &s, Command{Type: CmdCallNumber, ConnID: hostConn})
	mustApply(t, e, &s, Command{Type: CmdSyncSelected, PlayerID: "an", Numbers: []int{s.Called[0]}})

	res := mustApply(t, e, &s, Command{Type: CmdDisconnect, ConnID: "an-conn"})
	roster := eventOf(t, res.Events, EvtPlayerLeft).Data.(Roster)
	assert.Equal(t, 1, roster.PlayerCount)
	assert.Equal(t, 0, roster.OnlineCount)
	assert.False(t, s.Players["an"].Online)

	// Reconnect is allowed mid-round.
	res = mustApply(t, e, &s, Command{Type: CmdJoin, ConnID: "an-conn-2", PlayerID: "an"})
	reply, ok := res.Reply.(ReconnectReply)
	require.True(t, ok)
	assert.True(t, reply.Reconnected)
	assert.Equal(t, original, reply.Ticket)
	assert.Equal(t, []int{s.Called[0]}, reply.SelectedNumbers)
	assert.Equal(t, s.Called, reply.CalledNumbers)
	require.NotNil(t, reply.CurrentNumber)
	assert.Equal(t, s.Called[1], *reply.CurrentNumber)
	assert.True(t, reply.IsPlaying)
	assert.False(t, reply.IsPaused)
	assert.Nil(t, reply.Winner)
	assert.Equal(t, PhasePlaying, reply.Phase)
	assert.Equal(t, "an-conn-2", s.Players["an"].ConnID)
	assert.True(t, ContainsEvent(res.Events, EvtPlayerJoined))
}

func TestDisconnect_HostClosesRoom(t *testing.T) {
	e := newTestEngine(6)
	s := newRoomState()
	joinPlayer(t, e, &s, "an", "an-conn")

	res := mustApply(t, e, &s, Command{Type: CmdDisconnect, ConnID: hostConn})
	assert.True(t, ContainsEvent(res.Events, EvtRoomClosed))
	assert.True(t, s.Closed)

	_, err := e.Apply(&s, Command{Type: CmdCallNumber, ConnID: hostConn})
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestDisconnect_UnknownConnection(t *testing.T) {
	e := newTestEngine(6)
	s := newRoomState()
	_, err := e.Apply(&s, Command{Type: CmdDisconnect, ConnID: "stranger"})
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestExpire_OnlyRemovesOfflinePlayers(t *testing.T) {
	e := newTestEngine(7)
	s := newRoomState()
	joinPlayer(t, e, &s, "an", "an-conn")
	joinPlayer(t, e, &s, "binh", "binh-conn")

	_, err := e.Apply(&s, Command{Type: CmdExpirePlayer, PlayerID: "an"})
	assert.ErrorIs(t, err, ErrPlayerOnline)

	mustApply(t, e, &s, Command{Type: CmdDisconnect, ConnID: "an-conn"})
	res := mustApply(t, e, &s, Command{Type: CmdExpirePlayer, PlayerID: "an"})
	assert.NotContains(t, s.Players, "an")
	assert.Equal(t, []string{"binh"}, s.Order)
	roster := eventOf(t, res.Events, EvtPlayerLeft).Data.(Roster)
	assert.Equal(t, 1, roster.PlayerCount)

	// Removed players must join fresh.
	_, err = e.Apply(&s, Command{Type: CmdExpirePlayer, PlayerID: "an"})
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestCallNumber_Guards(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(s *State)
		wantErr error
	}{
		{name: "not playing", setup: func(s *State) {}, wantErr: ErrNotPlaying},
		{name: "paused", setup: func(s *State) { s.Playing, s.Paused = true, true }, wantErr: ErrPaused},
		{
			name: "verification in flight",
			setup: func(s *State) {
				s.Playing, s.Paused = true, true
				s.Verification = &Verification{Seq: 1}
			},
			wantErr: ErrVerificationInFlight,
		},
		{name: "playing", setup: func(s *State) { s.Playing = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(8)
			s := newRoomState()
			tc.setup(&s)

			res, err := e.Apply(&s, Command{Type: CmdCallNumber, ConnID: hostConn})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, s.Called)
				return
			}
			require.NoError(t, err)
			called := eventOf(t, res.Events, EvtNumberCalled).Data.(NumberCalled)
			assert.Equal(t, []int{called.Number}, s.Called)
			assert.Equal(t, 1, called.TotalCalled)
		})
	}
}

func TestCallNumber_NeverRepeatsAndExhausts(t *testing.T) {
	e := newTestEngine(9)
	s := newRoomState()
	mustApply(t, e, &s, Command{Type: CmdStartGame, ConnID: hostConn})

	for i := 0; i < MaxNumber; i++ {
		res := mustApply(t, e, &s, Command{Type: CmdCallNumber, ConnID: hostConn})
		require.True(t, ContainsEvent(res.Events, EvtNumberCalled))
	}
	require.Len(t, s.Called, MaxNumber)
	sorted := slices.Clone(s.Called)
	slices.Sort(sorted)
	for i, n := range sorted {
		require.Equal(t, i+1, n)
	}

	res := mustApply(t, e, &s, Command{Type: CmdCallNumber, ConnID: hostConn})
	assert.True(t, ContainsEvent(res.Events, EvtGameOver))
	assert.False(t, ContainsEvent(res.Events, EvtNumberCalled))
	assert.Len(t, s.Called, MaxNumber)
	assert.Equal(t, PhaseEnded, DerivePhase(s))

	// Still resettable.
	mustApply(t, e, &s, Command{Type: CmdResetGame, ConnID: hostConn})
	assert.Equal(t, PhaseLobby, DerivePhase(s))
}

func TestCallNumber_SnapshotDoesNotAliasState(t *testing.T) {
	e := newTestEngine(10)
	s := newRoomState()
	mustApply(t, e, &s, Command{Type: CmdStartGame, ConnID: hostConn})

	first := mustApply(t, e, &s, Command{Type: CmdCallNumber, ConnID: hostConn})
	snap := eventOf(t, first.Events, EvtNumberCalled).Data.(NumberCalled)
	mustApply(t, e, &s, Command{Type: CmdCallNumber, ConnID: hostConn})

	assert.Len(t, snap.CalledNumbers, 1)
}

func TestStart_RequiresContinueWithHistory(t *testing.T) {
	e := newTestEngine(11)
	s := newRoomState()
	mustApply(t, e, &s, Command{Type: CmdStartGame, ConnID: hostConn})
	mustApply(t, e, &s, Command{Type: CmdCallNumber, ConnID: hostConn})
	mustApply(t, e, &s, Command{Type: CmdPauseGame, ConnID: hostConn})

	_, err := e.Apply(&s, Command{Type: CmdStartGame, ConnID: hostConn})
	assert.ErrorIs(t, err, ErrResetRequired)
	assert.True(t, s.Paused)

	mustApply(t, e, &s, Command{Type: CmdStartGame, ConnID: hostConn, Continue: true})
	assert.True(t, s.Playing)
	assert.False(t, s.Paused)
	assert.Len(t, s.Called, 1)
}

func TestPauseResume(t *testing.T) {
	e := newTestEngine(12)
	s := newRoomState()

	_, err := e.Apply(&s, Command{Type: CmdPauseGame, ConnID: hostConn})
	assert.ErrorIs(t, err, ErrNotPlaying)

	mustApply(t, e, &s, Command{Type: CmdStartGame, ConnID: hostConn})
	res := mustApply(t, e, &s, Command{Type: CmdPauseGame, ConnID: hostConn})
	assert.True(t, ContainsEvent(res.Events, EvtGamePaused))
	assert.Equal(t, PhasePaused, DerivePhase(s))

	_, err = e.Apply(&s, Command{Type: CmdCallNumber, ConnID: hostConn})
	assert.ErrorIs(t, err, ErrPaused)

	res = mustApply(t, e, &s, Command{Type: CmdResumeGame, ConnID: hostConn})
	assert.True(t, ContainsEvent(res.Events, EvtGameResumed))
	assert.Equal(t, PhasePlaying, DerivePhase(s))
}

func TestReset_DealsPrivateTicketsToOnlinePlayers(t *testing.T) {
	e := newTestEngine(13)
	s := newRoomState()
	an := joinPlayer(t, e, &s, "an", "an-conn")
	joinPlayer(t, e, &s, "binh", "binh-conn")
	oldAn := an.Ticket
	mustApply(t, e, &s, Command{Type: CmdSyncSelected, PlayerID: "an", Numbers: []int{1, 2}})
	mustApply(t, e, &s, Command{Type: CmdDisconnect, ConnID: "binh-conn"})
	mustApply(t, e, &s, Command{Type: CmdStartGame, ConnID: hostConn})
	mustApply(t, e, &s, Command{Type: CmdCallNumber, ConnID: hostConn})

	res := mustApply(t, e, &s, Command{Type: CmdResetGame, ConnID: hostConn})

	assert.Empty(t, s.Called)
	assert.Zero(t, s.Current)
	assert.False(t, s.Playing)
	assert.Empty(t, s.Winner)
	assert.Nil(t, s.Players["an"].Selected)
	assert.NotEqual(t, oldAn, s.Players["an"].Ticket)

	require.Len(t, res.Events, 2, "binh is offline and gets no push")
	private := res.Events[0]
	assert.Equal(t, EvtGameReset, private.Type)
	assert.Equal(t, "an-conn", private.To)
	assert.Equal(t, s.Players["an"].Ticket, private.Data.(TicketPush).Ticket)
	assert.Equal(t, Event{Type: EvtGameResetBroadcast}, res.Events[1])
}

func TestReroll(t *testing.T) {
	e := newTestEngine(14)
	s := newRoomState()
	p := joinPlayer(t, e, &s, "an", "an-conn")
	before := p.Ticket

	res := mustApply(t, e, &s, Command{Type: CmdRerollTicket, PlayerID: "an"})
	require.Len(t, res.Events, 1)
	assert.Equal(t, "an-conn", res.Events[0].To)
	assert.NotEqual(t, before, s.Players["an"].Ticket)
	require.NoError(t, s.Players["an"].Ticket.Validate())

	mustApply(t, e, &s, Command{Type: CmdStartGame, ConnID: hostConn})
	_, err := e.Apply(&s, Command{Type: CmdRerollTicket, PlayerID: "an"})
	assert.ErrorIs(t, err, ErrRoundStarted)

	_, err = e.Apply(&s, Command{Type: CmdRerollTicket, PlayerID: "ghost"})
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestQuickChat(t *testing.T) {
	e := newTestEngine(15)
	s := newRoomState()
	joinPlayer(t, e, &s, "an", "an-conn")

	res := mustApply(t, e, &s, Command{Type: CmdQuickChat, ConnID: "an-conn", PlayerID: "an", Emoji: "🎉"})
	msg := eventOf(t, res.Events, EvtChatMessage).Data.(ChatMessage)
	assert.Equal(t, "an", msg.PlayerID)
	assert.Equal(t, "🎉", msg.Emoji)
	assert.Equal(t, int64(1_700_000_000_000), msg.Timestamp)

	res = mustApply(t, e, &s, Command{Type: CmdQuickChat, ConnID: hostConn, Text: "hello"})
	msg = eventOf(t, res.Events, EvtChatMessage).Data.(ChatMessage)
	assert.Equal(t, "host-id", msg.PlayerID)
	assert.Equal(t, "Host", msg.PlayerName)

	_, err := e.Apply(&s, Command{Type: CmdQuickChat, ConnID: "an-conn", PlayerID: "an", Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = e.Apply(&s, Command{Type: CmdQuickChat, ConnID: "stranger", Text: "hi"})
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestUnsupportedCommand(t *testing.T) {
	e := newTestEngine(16)
	s := newRoomState()
	_, err := e.Apply(&s, Command{Type: "Bogus"})
	assert.True(t, errors.Is(err, ErrUnsupportedCommand))
}

func TestDerivePhase(t *testing.T) {
	cases := []struct {
		name  string
		setup State
		want  Phase
	}{
		{name: "fresh room", setup: State{}, want: PhaseLobby},
		{name: "playing", setup: State{Playing: true}, want: PhasePlaying},
		{name: "paused", setup: State{Playing: true, Paused: true}, want: PhasePaused},
		{name: "winner", setup: State{Winner: "an", Called: []int{1}}, want: PhaseEnded},
		{name: "exhausted", setup: State{Called: []int{1, 2}}, want: PhaseEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DerivePhase(tc.setup))
		})
	}
}

func TestClone_SharesNothing(t *testing.T) {
	e := newTestEngine(17)
	s := newRoomState()
	joinPlayer(t, e, &s, "an", "an-conn")
	s.Called = append(s.Called, 5)

	cp := s.Clone()
	cp.Players["an"].Name = "changed"
	cp.Called[0] = 6

	assert.Equal(t, "an", s.Players["an"].Name)
	assert.Equal(t, 5, s.Called[0])
}

// callRow keeps calling until every number on the row is out and returns
// the row.
func callRow(t *testing.T, e *Engine, s *State, tk ticket.Ticket, row int) []int {
	t.Helper()
	want := tk.Row(row)
	for !containsAll(s.Called, want) {
		mustApply(t, e, s, Command{Type: CmdCallNumber, ConnID: hostConn})
	}
	return want
}

func containsAll(haystack, needles []int) bool {
	for _, n := range needles {
		if !slices.Contains(haystack, n) {
			return false
		}
	}
	return true
}
