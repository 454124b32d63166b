package stats

import (
	"time"

	"gorm.io/datatypes"
)

type Game struct {
	ID                 uint    `gorm:"primaryKey"`
	RoomCode           string  `gorm:"size:8;not null;index"`
	PlayerCount        int     `gorm:"not null;default:0"`
	NumbersCalled      int     `gorm:"not null;default:0"`
	WinnerName         *string `gorm:"size:64"`
	WinnerPersistentID *string `gorm:"size:64"`
	WinningNumbers     datatypes.JSON
	StartedAt          time.Time `gorm:"not null"`
	EndedAt            time.Time `gorm:"not null"`
}

type PlayerStat struct {
	PersistentID     string `gorm:"primaryKey;size:64"`
	Name             string `gorm:"size:64;not null"`
	TotalGames       int    `gorm:"not null;default:0"`
	TotalWins        int    `gorm:"not null;default:0"`
	TotalFalseAlarms int    `gorm:"not null;default:0"`
	LastPlayedAt     time.Time
}

// GameRecord describes one finished round.
type GameRecord struct {
	RoomCode       string
	PlayerCount    int
	NumbersCalled  int
	WinnerName     string
	WinnerID       string
	WinningNumbers []int
	StartedAt      time.Time
}

type LeaderboardEntry struct {
	PersistentID     string  `json:"persistent_id"`
	Name             string  `json:"name"`
	TotalGames       int     `json:"total_games"`
	TotalWins        int     `json:"total_wins"`
	TotalFalseAlarms int     `json:"total_false_alarms"`
	WinRate          float64 `json:"win_rate"`
}

type Totals struct {
	TotalGames      int64 `json:"totalGames"`
	TotalPlayers    int64 `json:"totalPlayers"`
	GamesWithWinner int64 `json:"gamesWithWinner"`
	AvgNumbersToWin int   `json:"avgNumbersToWin"`
}

type RecentGame struct {
	ID             uint      `json:"id"`
	RoomCode       string    `json:"room_code"`
	PlayerCount    int       `json:"player_count"`
	NumbersCalled  int       `json:"numbers_called"`
	WinnerName     *string   `json:"winner_name"`
	WinningNumbers []int     `json:"winning_numbers"`
	EndedAt        time.Time `json:"ended_at"`
}
