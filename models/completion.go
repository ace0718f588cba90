// models/completion.go - Append-only completion records
package models

import (
	"encoding/json"
	"time"
)

// CompletionRecord is written exactly once per completed puzzle attempt.
// The (session_id, user_id) unique index backs the exactly-once guarantee
// at the storage layer as well.
type CompletionRecord struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SessionID string `json:"session_id" gorm:"not null;size:100;uniqueIndex:idx_completion_once,priority:1"`
	UserID    uint   `json:"user_id" gorm:"not null;index;uniqueIndex:idx_completion_once,priority:2"`
	User      *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`

	PuzzleID      string `json:"puzzle_id" gorm:"index;size:100"`
	IsCustom      bool   `json:"is_custom" gorm:"default:false;index"`
	DifficultyKey string `json:"difficulty_key" gorm:"size:20;index"`
	TotalPieces   int    `json:"total_pieces" gorm:"default:0"`
	TimeElapsed   int    `json:"time_elapsed" gorm:"default:0"` // in seconds
	PiecesPlaced  int    `json:"pieces_placed" gorm:"default:0"`
	Misplacements int    `json:"misplacements" gorm:"default:0"`
	IsWinner      bool   `json:"is_winner" gorm:"default:false"`

	// Achievement keys granted for this attempt (JSON array)
	AchievementsJSON string `json:"achievements_json" gorm:"type:text"`

	CompletedAt time.Time `json:"completed_at" gorm:"index;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

func (CompletionRecord) TableName() string {
	return "completion_records"
}

func (r *CompletionRecord) GetAchievements() ([]string, error) {
	var keys []string
	if r.AchievementsJSON == "" {
		return keys, nil
	}
	err := json.Unmarshal([]byte(r.AchievementsJSON), &keys)
	return keys, err
}

func (r *CompletionRecord) SetAchievements(keys []string) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	r.AchievementsJSON = string(data)
	return nil
}
