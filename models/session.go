// models/session.go - Puzzle Session Tracking Models
package models

import (
	"time"
)

// PuzzleSession represents a durable record of a collaborative puzzle session
type PuzzleSession struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	SessionID    string `json:"session_id" gorm:"uniqueIndex;not null;size:100"` // UUID from the live session registry
	InviteCode   string `json:"invite_code" gorm:"index;size:20"`
	HostPlayerID string `json:"host_player_id" gorm:"index;size:100"`
	PuzzleID     string `json:"puzzle_id" gorm:"index;size:100"`
	IsCustom     bool   `json:"is_custom" gorm:"default:false"`
	MaxPlayers   int    `json:"max_players" gorm:"default:8"`

	// Difficulty snapshot
	DifficultyKey string `json:"difficulty_key" gorm:"size:20;index"`
	GridWidth     int    `json:"grid_width" gorm:"default:0"`
	GridHeight    int    `json:"grid_height" gorm:"default:0"`
	TotalPieces   int    `json:"total_pieces" gorm:"default:0"`

	// Session state
	Status         string `json:"status" gorm:"default:'waiting';size:20;index"` // waiting, playing, paused, completed, abandoned
	Progress       int    `json:"progress" gorm:"default:0"`
	PiecesPlaced   int    `json:"pieces_placed" gorm:"default:0"`
	TimerSeconds   int    `json:"timer_seconds" gorm:"default:0"`
	WinnerPlayerID string `json:"winner_player_id" gorm:"size:100"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
	StartedAt   *time.Time `json:"started_at" gorm:"index"`
	CompletedAt *time.Time `json:"completed_at" gorm:"index"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships (loaded via Preload, not enforced at DB level on parent)
	Players []SessionPlayer `json:"players,omitempty" gorm:"-"`
	Events  []SessionEvent  `json:"events,omitempty" gorm:"-"`
}

// SessionPlayer represents a player's participation in a puzzle session
type SessionPlayer struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	SessionID uint           `json:"session_id" gorm:"not null;index"`
	Session   *PuzzleSession `json:"session,omitempty" gorm:"-"`

	// Player info
	PlayerID string `json:"player_id" gorm:"not null;index;size:100"` // In-session player ID
	UserID   *uint  `json:"user_id" gorm:"index"`                     // Database user ID (nil for guests)
	User     *User  `json:"user,omitempty" gorm:"-"`
	Username string `json:"username" gorm:"size:100"`
	IsGuest  bool   `json:"is_guest" gorm:"default:false;index"`
	IsHost   bool   `json:"is_host" gorm:"default:false"`

	// Participation stats
	PiecesPlaced  int `json:"pieces_placed" gorm:"default:0"`
	Misplacements int `json:"misplacements" gorm:"default:0"`

	// Timestamps
	JoinedAt       time.Time  `json:"joined_at" gorm:"index"`
	LeftAt         *time.Time `json:"left_at"`
	DisconnectedAt *time.Time `json:"disconnected_at"`
	ReconnectedAt  *time.Time `json:"reconnected_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionEvent represents an event that occurred during a puzzle session
type SessionEvent struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	SessionID uint           `json:"session_id" gorm:"not null;index"`
	Session   *PuzzleSession `json:"session,omitempty" gorm:"-"`

	// Event details
	EventType string `json:"event_type" gorm:"not null;size:50;index"` // player_joined, player_left, piece_placed, session_started, session_completed, player_disconnected, player_reconnected
	PlayerID  string `json:"player_id" gorm:"index;size:100"`          // Empty for session-level events
	PieceID   string `json:"piece_id" gorm:"size:50"`                  // Empty for non-piece events

	// Event data (JSON)
	EventData string `json:"event_data" gorm:"type:text"`

	// Metadata
	Timestamp   time.Time `json:"timestamp" gorm:"index;not null"`
	SequenceNum int64     `json:"sequence_num"` // For ordering events

	CreatedAt time.Time `json:"created_at"`
}

// TableName methods for custom table names
func (PuzzleSession) TableName() string {
	return "puzzle_sessions"
}

func (SessionPlayer) TableName() string {
	return "puzzle_session_players"
}

func (SessionEvent) TableName() string {
	return "puzzle_session_events"
}

// Helper methods

// IsActive checks if the session is currently active
func (s *PuzzleSession) IsActive() bool {
	return s.Status == "waiting" || s.Status == "playing" || s.Status == "paused"
}

// Duration returns how long the session lasted
func (s *PuzzleSession) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}

// ActivePlayerCount returns the number of players who have not left
func (s *PuzzleSession) ActivePlayerCount() int {
	count := 0
	for _, p := range s.Players {
		if p.LeftAt == nil {
			count++
		}
	}
	return count
}

// WasDisconnected checks if the player disconnected during the session
func (p *SessionPlayer) WasDisconnected() bool {
	return p.DisconnectedAt != nil
}

// PlacementAccuracy returns the share of drag commits that landed correctly
func (p *SessionPlayer) PlacementAccuracy() float64 {
	attempts := p.PiecesPlaced + p.Misplacements
	if attempts == 0 {
		return 0
	}
	return float64(p.PiecesPlaced) / float64(attempts) * 100
}
