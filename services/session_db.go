// services/session_db.go - Puzzle Session Database Service
package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/mwasobaddy/Puzzle/database"
	"github.com/mwasobaddy/Puzzle/models"

	"gorm.io/gorm"
)

// SessionDBService persists the durable trail of live puzzle sessions.
// Every method tolerates a nil database handle so the realtime engine
// keeps working when persistence is unavailable.
type SessionDBService struct {
	eventSeq int64
}

// NewSessionDBService creates a new session database service
func NewSessionDBService() *SessionDBService {
	return &SessionDBService{}
}

// PlayerResult is a snapshot of one player's contribution to a finished session.
type PlayerResult struct {
	PlayerID      string
	UserID        *uint
	Username      string
	IsWinner      bool
	PiecesPlaced  int
	Misplacements int
}

// CompletionInput carries everything needed to write one completion record.
type CompletionInput struct {
	SessionID     string
	UserID        uint
	PuzzleID      string
	IsCustom      bool
	DifficultyKey string
	TotalPieces   int
	TimeElapsed   int
	PiecesPlaced  int
	Misplacements int
	IsWinner      bool
	Achievements  []string
}

// CreateSession creates a new puzzle session record
func (s *SessionDBService) CreateSession(sessionID, inviteCode, hostPlayerID, puzzleID string, isCustom bool, maxPlayers int, diff models.Difficulty) (*models.PuzzleSession, error) {
	db := database.GetDB()
	if db == nil {
		return nil, nil
	}

	session := &models.PuzzleSession{
		SessionID:     sessionID,
		InviteCode:    inviteCode,
		HostPlayerID:  hostPlayerID,
		PuzzleID:      puzzleID,
		IsCustom:      isCustom,
		MaxPlayers:    maxPlayers,
		DifficultyKey: diff.Key,
		GridWidth:     diff.GridWidth,
		GridHeight:    diff.GridHeight,
		TotalPieces:   diff.TotalPieces(),
		Status:        "waiting",
	}

	if err := db.Create(session).Error; err != nil {
		log.Printf("⚠️  DB: Failed to create session record %s: %v", sessionID, err)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("📊 DB: Created session record: ID=%s, Invite=%s", sessionID, inviteCode)
	return session, nil
}

// AddPlayer adds a player to a session
func (s *SessionDBService) AddPlayer(sessionID, playerID, username string, userID *uint, isGuest, isHost bool) (*models.SessionPlayer, error) {
	db := database.GetDB()
	if db == nil {
		return nil, nil
	}

	var session models.PuzzleSession
	if err := db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	player := &models.SessionPlayer{
		SessionID: session.ID,
		PlayerID:  playerID,
		UserID:    userID,
		Username:  username,
		IsGuest:   isGuest,
		IsHost:    isHost,
		JoinedAt:  time.Now(),
	}

	if err := db.Create(player).Error; err != nil {
		return nil, fmt.Errorf("failed to add player: %w", err)
	}

	log.Printf("📊 DB: Player %s joined session %s", playerID, sessionID)
	return player, nil
}

// MarkStarted transitions the session record to playing
func (s *SessionDBService) MarkStarted(sessionID string) error {
	db := database.GetDB()
	if db == nil {
		return nil
	}

	now := time.Now()
	result := db.Model(&models.PuzzleSession{}).
		Where("session_id = ? AND status = ?", sessionID, "waiting").
		Updates(map[string]interface{}{
			"status":     "playing",
			"started_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark session started: %w", result.Error)
	}

	log.Printf("📊 DB: Session %s started", sessionID)
	return nil
}

// MarkCompleted finalizes the session record exactly once. A session already
// marked completed is left untouched.
func (s *SessionDBService) MarkCompleted(sessionID, winnerPlayerID string, elapsed int) error {
	db := database.GetDB()
	if db == nil {
		return nil
	}

	now := time.Now()
	result := db.Model(&models.PuzzleSession{}).
		Where("session_id = ? AND status != ?", sessionID, "completed").
		Updates(map[string]interface{}{
			"status":           "completed",
			"progress":         100,
			"winner_player_id": winnerPlayerID,
			"timer_seconds":    elapsed,
			"completed_at":     now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark session completed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		log.Printf("📊 DB: Session %s already completed, skipping", sessionID)
		return nil
	}

	log.Printf("📊 DB: Session %s completed in %ds", sessionID, elapsed)
	return nil
}

// MarkAbandoned closes out a session that ended without completing. A completed
// session keeps its status; teardown after a win must not rewrite history.
func (s *SessionDBService) MarkAbandoned(sessionID, reason string) error {
	db := database.GetDB()
	if db == nil {
		return nil
	}

	result := db.Model(&models.PuzzleSession{}).
		Where("session_id = ? AND status != ?", sessionID, "completed").
		Update("status", "abandoned")
	if result.Error != nil {
		return fmt.Errorf("failed to mark session abandoned: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		log.Printf("📊 DB: Session %s abandoned (%s)", sessionID, reason)
	}
	return nil
}

// UpdateProgress persists the latest progress snapshot for a session
func (s *SessionDBService) UpdateProgress(sessionID string, progress, piecesPlaced, timerSeconds int) error {
	db := database.GetDB()
	if db == nil {
		return nil
	}

	result := db.Model(&models.PuzzleSession{}).
		Where("session_id = ? AND status != ?", sessionID, "completed").
		Updates(map[string]interface{}{
			"progress":      progress,
			"pieces_placed": piecesPlaced,
			"timer_seconds": timerSeconds,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update progress: %w", result.Error)
	}
	return nil
}

// MarkPlayerLeft records a player's permanent departure
func (s *SessionDBService) MarkPlayerLeft(sessionID, playerID string) error {
	return s.updatePlayerTimestamp(sessionID, playerID, "left_at")
}

// MarkPlayerDisconnected records an abrupt connection loss
func (s *SessionDBService) MarkPlayerDisconnected(sessionID, playerID string) error {
	return s.updatePlayerTimestamp(sessionID, playerID, "disconnected_at")
}

// MarkPlayerReconnected records a successful rejoin
func (s *SessionDBService) MarkPlayerReconnected(sessionID, playerID string) error {
	return s.updatePlayerTimestamp(sessionID, playerID, "reconnected_at")
}

func (s *SessionDBService) updatePlayerTimestamp(sessionID, playerID, column string) error {
	db := database.GetDB()
	if db == nil {
		return nil
	}

	result := db.Model(&models.SessionPlayer{}).
		Where("session_id IN (SELECT id FROM puzzle_sessions WHERE session_id = ?) AND player_id = ?", sessionID, playerID).
		Update(column, time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to update %s: %w", column, result.Error)
	}

	log.Printf("📊 DB: Player %s %s in session %s", playerID, column, sessionID)
	return nil
}

// UpdatePlayerStats persists a player's placement counters
func (s *SessionDBService) UpdatePlayerStats(sessionID, playerID string, piecesPlaced, misplacements int) error {
	db := database.GetDB()
	if db == nil {
		return nil
	}

	result := db.Model(&models.SessionPlayer{}).
		Where("session_id IN (SELECT id FROM puzzle_sessions WHERE session_id = ?) AND player_id = ?", sessionID, playerID).
		Updates(map[string]interface{}{
			"pieces_placed": piecesPlaced,
			"misplacements": misplacements,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update player stats: %w", result.Error)
	}
	return nil
}

// RecordEvent appends an event to the session's audit trail
func (s *SessionDBService) RecordEvent(sessionID, eventType, playerID, pieceID string, payload map[string]interface{}) error {
	db := database.GetDB()
	if db == nil {
		return nil
	}

	var session models.PuzzleSession
	if err := db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return fmt.Errorf("session not found: %w", err)
	}

	eventData := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		eventData = string(data)
	}

	event := &models.SessionEvent{
		SessionID:   session.ID,
		EventType:   eventType,
		PlayerID:    playerID,
		PieceID:     pieceID,
		EventData:   eventData,
		Timestamp:   time.Now(),
		SequenceNum: atomic.AddInt64(&s.eventSeq, 1),
	}

	if err := db.Create(event).Error; err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// SaveCompletionRecord writes one completion record and folds the result into
// the user's lifetime stats inside a single transaction. The unique index on
// (session_id, user_id) makes a replayed save a no-op.
func (s *SessionDBService) SaveCompletionRecord(input CompletionInput) error {
	db := database.GetDB()
	if db == nil {
		return nil
	}

	record := models.CompletionRecord{
		SessionID:     input.SessionID,
		UserID:        input.UserID,
		PuzzleID:      input.PuzzleID,
		IsCustom:      input.IsCustom,
		DifficultyKey: input.DifficultyKey,
		TotalPieces:   input.TotalPieces,
		TimeElapsed:   input.TimeElapsed,
		PiecesPlaced:  input.PiecesPlaced,
		Misplacements: input.Misplacements,
		IsWinner:      input.IsWinner,
		CompletedAt:   time.Now(),
	}
	if err := record.SetAchievements(input.Achievements); err != nil {
		return fmt.Errorf("failed to encode achievements: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var existing models.CompletionRecord
		if err := tx.Where("session_id = ? AND user_id = ?", input.SessionID, input.UserID).First(&existing).Error; err == nil {
			log.Printf("📊 DB: Completion record for session %s user %d already exists", input.SessionID, input.UserID)
			return nil
		}

		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to create completion record: %w", err)
		}

		var user models.User
		if err := tx.First(&user, input.UserID).Error; err != nil {
			return fmt.Errorf("user not found: %w", err)
		}

		updates := map[string]interface{}{
			"puzzles_completed": user.PuzzlesCompleted + 1,
			"pieces_placed":     user.PiecesPlaced + input.PiecesPlaced,
		}
		if input.TimeElapsed > 0 && (user.BestTimeSeconds == 0 || input.TimeElapsed < user.BestTimeSeconds) {
			updates["best_time_seconds"] = input.TimeElapsed
		}
		streak := user.CurrentStreak + 1
		updates["current_streak"] = streak
		if streak > user.BestStreak {
			updates["best_streak"] = streak
		}

		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update user stats: %w", err)
		}

		if err := grantAchievements(tx, input.UserID, input.Achievements); err != nil {
			return err
		}

		log.Printf("📊 DB: Saved completion for session %s user %d (%ds, winner=%v)", input.SessionID, input.UserID, input.TimeElapsed, input.IsWinner)
		return nil
	})
}

// grantAchievements unlocks each listed achievement once per user.
func grantAchievements(tx *gorm.DB, userID uint, keys []string) error {
	for _, key := range keys {
		var achievement models.Achievement
		if err := tx.Where("key = ?", key).First(&achievement).Error; err != nil {
			log.Printf("⚠️  DB: Unknown achievement key %q, skipping", key)
			continue
		}

		var existing models.UserAchievement
		err := tx.Where("user_id = ? AND achievement_id = ?", userID, achievement.ID).First(&existing).Error
		if err == nil {
			continue
		}

		grant := models.UserAchievement{
			UserID:        userID,
			AchievementID: achievement.ID,
			UnlockedAt:    time.Now(),
		}
		if err := tx.Create(&grant).Error; err != nil {
			return fmt.Errorf("failed to grant achievement %s: %w", key, err)
		}
		log.Printf("🏅 DB: User %d unlocked achievement %s", userID, key)
	}
	return nil
}
