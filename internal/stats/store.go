// Package stats persists finished rounds and per-player tallies, and serves
// the leaderboard views read by the HTTP API.
package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrUnknownDriver = errors.New("unknown database driver")

// Recorder receives the room actor's round hooks.
type Recorder interface {
	RecordGame(ctx context.Context, g GameRecord) error
	RecordPlayerGame(ctx context.Context, persistentID, name string) error
	RecordPlayerWin(ctx context.Context, persistentID, name string) error
	RecordFalseAlarm(ctx context.Context, persistentID, name string) error
}

// Reader backs the read-only HTTP endpoints.
type Reader interface {
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	Stats(ctx context.Context) (Totals, error)
	RecentGames(ctx context.Context, limit int) ([]RecentGame, error)
}

// Open connects with driver "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Game{}, &PlayerStat{})
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) RecordGame(ctx context.Context, g GameRecord) error {
	row := Game{
		RoomCode:      g.RoomCode,
		PlayerCount:   g.PlayerCount,
		NumbersCalled: g.NumbersCalled,
		StartedAt:     g.StartedAt,
		EndedAt:       s.now(),
	}
	if row.StartedAt.IsZero() {
		row.StartedAt = row.EndedAt
	}
	if g.WinnerID != "" {
		name, id := g.WinnerName, g.WinnerID
		row.WinnerName = &name
		row.WinnerPersistentID = &id

		nums, err := json.Marshal(g.WinningNumbers)
		if err != nil {
			return err
		}
		row.WinningNumbers = datatypes.JSON(nums)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) RecordPlayerGame(ctx context.Context, persistentID, name string) error {
	return s.bump(ctx, persistentID, name, "total_games")
}

func (s *Store) RecordPlayerWin(ctx context.Context, persistentID, name string) error {
	return s.bump(ctx, persistentID, name, "total_wins")
}

func (s *Store) RecordFalseAlarm(ctx context.Context, persistentID, name string) error {
	return s.bump(ctx, persistentID, name, "total_false_alarms")
}

// bump inserts the player with column at 1, or adds 1 to it and refreshes
// the name and last_played_at.
func (s *Store) bump(ctx context.Context, persistentID, name, column string) error {
	if persistentID == "" {
		return nil
	}
	now := s.now()
	row := PlayerStat{PersistentID: persistentID, Name: name, LastPlayedAt: now}
	switch column {
	case "total_games":
		row.TotalGames = 1
	case "total_wins":
		row.TotalWins = 1
	case "total_false_alarms":
		row.TotalFalseAlarms = 1
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "persistent_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name":           name,
			"last_played_at": now,
			column:           gorm.Expr("player_stats."+column+" + ?", 1),
		}),
	}).Create(&row).Error
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var rows []PlayerStat
	err := s.db.WithContext(ctx).
		Where("total_games > ?", 0).
		Order("total_wins DESC").
		Order("total_wins * 1.0 / total_games DESC").
		Order("total_games DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, LeaderboardEntry{
			PersistentID:     r.PersistentID,
			Name:             r.Name,
			TotalGames:       r.TotalGames,
			TotalWins:        r.TotalWins,
			TotalFalseAlarms: r.TotalFalseAlarms,
			WinRate:          winRate(r.TotalWins, r.TotalGames),
		})
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context) (Totals, error) {
	var t Totals
	db := s.db.WithContext(ctx)

	if err := db.Model(&Game{}).Count(&t.TotalGames).Error; err != nil {
		return Totals{}, err
	}
	if err := db.Model(&PlayerStat{}).Where("total_games > ?", 0).Count(&t.TotalPlayers).Error; err != nil {
		return Totals{}, err
	}
	if err := db.Model(&Game{}).Where("winner_persistent_id IS NOT NULL").Count(&t.GamesWithWinner).Error; err != nil {
		return Totals{}, err
	}

	var avg sql.NullFloat64
	err := db.Model(&Game{}).
		Select("AVG(numbers_called)").
		Where("winner_persistent_id IS NOT NULL").
		Row().Scan(&avg)
	if err != nil {
		return Totals{}, err
	}
	if avg.Valid {
		t.AvgNumbersToWin = int(math.Round(avg.Float64))
	}
	return t, nil
}

func (s *Store) RecentGames(ctx context.Context, limit int) ([]RecentGame, error) {
	var rows []Game
	err := s.db.WithContext(ctx).
		Order("ended_at DESC").
		Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]RecentGame, 0, len(rows))
	for _, g := range rows {
		nums := []int{}
		if len(g.WinningNumbers) > 0 {
			if err := json.Unmarshal(g.WinningNumbers, &nums); err != nil {
				return nil, fmt.Errorf("game %d winning numbers: %w", g.ID, err)
			}
		}
		out = append(out, RecentGame{
			ID:             g.ID,
			RoomCode:       g.RoomCode,
			PlayerCount:    g.PlayerCount,
			NumbersCalled:  g.NumbersCalled,
			WinnerName:     g.WinnerName,
			WinningNumbers: nums,
			EndedAt:        g.EndedAt,
		})
	}
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// winRate is a percentage rounded to one decimal.
func winRate(wins, games int) float64 {
	if games == 0 {
		return 0
	}
	return math.Round(float64(wins)*1000/float64(games)) / 10
}

// Nop discards every record. Used when no database is configured.
type Nop struct{}

func (Nop) RecordGame(context.Context, GameRecord) error { return nil }

func (Nop) RecordPlayerGame(context.Context, string, string) error { return nil }

func (Nop) RecordPlayerWin(context.Context, string, string) error { return nil }

func (Nop) RecordFalseAlarm(context.Context, string, string) error { return nil }

func (Nop) Leaderboard(context.Context, int) ([]LeaderboardEntry, error) {
	return []LeaderboardEntry{}, nil
}

func (Nop) Stats(context.Context) (Totals, error) { return Totals{}, nil }

func (Nop) RecentGames(context.Context, int) ([]RecentGame, error) {
	return []RecentGame{}, nil
}
