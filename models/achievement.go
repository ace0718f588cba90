// models/achievement.go
package models

import "time"

type Achievement struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Key         string `gorm:"not null;uniqueIndex" json:"key"` // stable key used by the evaluator
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"not null" json:"description"`
	Category    string `gorm:"not null;index" json:"category"` // Speed, Precision, Persistence
	Icon        string `json:"icon"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stable achievement keys granted by the completion evaluator.
const (
	AchievementSpeed       = "speed_solver"
	AchievementPrecision   = "clean_hands"
	AchievementPersistence = "expert_finisher"
)
