// models/user.go
package models

import (
	"time"
)

type User struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Username    string  `gorm:"uniqueIndex;not null" json:"username"`
	Email       *string `gorm:"uniqueIndex" json:"email,omitempty"`
	Password    string  `gorm:"not null" json:"-"`
	DisplayName string  `json:"display_name"`
	Avatar      string  `json:"avatar"`
	IsGuest     bool    `gorm:"default:false" json:"is_guest"`
	IsPremium   bool    `gorm:"default:false" json:"is_premium"`
	IsBanned    bool    `gorm:"default:false" json:"is_banned"`

	// Stats
	PuzzlesCompleted int `gorm:"default:0" json:"puzzles_completed"`
	PiecesPlaced     int `gorm:"default:0" json:"pieces_placed"`
	BestTimeSeconds  int `gorm:"default:0" json:"best_time_seconds"` // 0 = no completion yet
	CurrentStreak    int `gorm:"default:0" json:"current_streak"`
	BestStreak       int `gorm:"default:0" json:"best_streak"`

	// Timestamps
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    time.Time  `json:"last_login"`
	LastActivity *time.Time `json:"last_activity,omitempty"`

	// Relationships
	Achievements []UserAchievement  `gorm:"foreignKey:UserID" json:"achievements,omitempty"`
	Completions  []CompletionRecord `gorm:"foreignKey:UserID" json:"completions,omitempty"`
}

type UserAchievement struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	AchievementID uint      `gorm:"not null;index" json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`

	// Relationships
	User        User        `gorm:"foreignKey:UserID" json:"-"`
	Achievement Achievement `gorm:"foreignKey:AchievementID" json:"achievement,omitempty"`
}
