package room

import (
	"context"

	"github.com/DoyleJ11/loto-server/internal/engine"
	"github.com/DoyleJ11/loto-server/internal/stats"
	"go.uber.org/zap"
)

// Stats hooks never block the actor. Each runs on its own goroutine with a
// bounded context and only logs failures.

func (r *Room) recordRoundStart() {
	for _, id := range r.state.Order {
		p := r.state.Players[id]
		pid, name := p.ID, p.Name
		r.hook("player_game", func(ctx context.Context) error {
			return r.stats.RecordPlayerGame(ctx, pid, name)
		})
	}
}

func (r *Room) recordVerification(result engine.VerificationResult) {
	if !result.Valid {
		r.hook("false_alarm", func(ctx context.Context) error {
			return r.stats.RecordFalseAlarm(ctx, result.PlayerID, result.PlayerName)
		})
		return
	}

	r.hook("player_win", func(ctx context.Context) error {
		return r.stats.RecordPlayerWin(ctx, result.PlayerID, result.PlayerName)
	})
	r.recordGame(stats.GameRecord{
		WinnerName:     result.PlayerName,
		WinnerID:       result.PlayerID,
		WinningNumbers: result.RowNumbers,
	})
}

// recordGame fills in the room's side of g and stores it.
func (r *Room) recordGame(g stats.GameRecord) {
	g.RoomCode = r.code
	g.PlayerCount = len(r.state.Players)
	g.NumbersCalled = len(r.state.Called)
	g.StartedAt = r.roundStart
	r.hook("game", func(ctx context.Context) error {
		return r.stats.RecordGame(ctx, g)
	})
}

func (r *Room) hook(name string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), statsHookBudget)
		defer cancel()
		if err := fn(ctx); err != nil {
			r.log.Warn("stats hook failed", zap.String("hook", name), zap.Error(err))
		}
	}()
}
