// handlers/completion.go - Progress aggregation and session completion
package handlers

import (
	"log"
	"math"
	"time"

	"github.com/mwasobaddy/Puzzle/models"
	"github.com/mwasobaddy/Puzzle/services"
)

// Elapsed-time ceiling for the speed achievement, in seconds.
const speedAchievementThreshold = 300

// ProgressPercent computes the completion percentage for a placed count,
// rounded half-up. Pure so out-of-order reports always agree.
func ProgressPercent(placed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(placed) / float64(total) * 100))
}

// recomputeProgress re-derives the session percentage from the placed count
// and applies the monotonic guard: the stored value only moves when the new
// percentage is strictly greater, so duplicated or reordered placement events
// can never walk progress backwards. Reaching 100 hands off to the completion
// path, which is itself idempotent via the status state machine.
func (s *Session) recomputeProgress() {
	s.mu.Lock()
	pct := ProgressPercent(s.PiecesPlaced, s.TotalPieces())
	if pct <= s.Progress {
		s.mu.Unlock()
		return
	}
	s.Progress = pct
	placed := s.PiecesPlaced
	total := s.TotalPieces()
	s.mu.Unlock()

	s.broadcast(SubtreeProgress, "progress_update", map[string]interface{}{
		"session_id":    s.ID,
		"progress":      pct,
		"pieces_placed": placed,
		"total_pieces":  total,
	})

	if pct >= 100 {
		s.completeSession()
	}
}

// EvaluateAchievements computes the achievement set for a finished attempt.
// Multiple achievements may co-occur.
func EvaluateAchievements(elapsedSeconds, misplacements int, diff models.Difficulty) []string {
	achievements := make([]string, 0, 3)
	if elapsedSeconds < speedAchievementThreshold {
		achievements = append(achievements, models.AchievementSpeed)
	}
	if misplacements == 0 {
		achievements = append(achievements, models.AchievementPrecision)
	}
	if diff.IsHardest {
		achievements = append(achievements, models.AchievementPersistence)
	}
	return achievements
}

// completeSession runs the completion side effects exactly once. The one-shot
// guard is the status state machine itself: only the caller that wins the
// playing→completed transition proceeds, every racer after it is a logged
// no-op. A failed record write is surfaced but never rolls the transition
// back - completion is a client-observable fact even when durable logging lags.
func (s *Session) completeSession() {
	s.mu.Lock()
	if !s.setStatusLocked(StatusCompleted) {
		s.mu.Unlock()
		return
	}
	s.EndedAt = time.Now()
	s.WinnerID = s.LastPlacedBy

	elapsed := s.TimerSeconds
	misplacements := s.Misplacements
	diff := s.Difficulty
	winner := s.WinnerID
	achievements := EvaluateAchievements(elapsed, misplacements, diff)

	results := make([]services.PlayerResult, 0, len(s.Players))
	for _, p := range s.Players {
		p.mu.RLock()
		results = append(results, services.PlayerResult{
			PlayerID:      p.ID,
			UserID:        p.UserID,
			Username:      p.Username,
			IsWinner:      p.ID == winner,
			PiecesPlaced:  p.PiecesPlaced,
			Misplacements: p.Misplacements,
		})
		p.mu.RUnlock()
	}
	s.mu.Unlock()

	s.stopTimer()

	log.Printf("🏁 Session %s completed in %ds (winner: %s, achievements: %v)", s.ID, elapsed, winner, achievements)

	s.broadcast(SubtreeStatus, "session_completed", map[string]interface{}{
		"session_id":   s.ID,
		"status":       StatusCompleted,
		"winner_id":    winner,
		"time_elapsed": elapsed,
		"achievements": achievements,
	})
	s.broadcast(SubtreeStatus, "share_prompt", map[string]interface{}{
		"session_id":  s.ID,
		"invite_link": GenerateInviteLink(appOrigin(), s.ID),
	})

	go s.persistCompletion(elapsed, achievements, results)
}

// persistCompletion writes the durable completion records. Non-premium users
// over the monthly custom-puzzle quota get a quota_exceeded signal instead of
// a record; every failure here is logged and surfaced without touching the
// already-applied completed status.
func (s *Session) persistCompletion(elapsed int, achievements []string, results []services.PlayerResult) {
	s.mu.RLock()
	sessionID := s.ID
	puzzleID := s.PuzzleID
	isCustom := s.IsCustomPuzzle
	diff := s.Difficulty
	winner := s.WinnerID
	s.mu.RUnlock()

	if err := sessionDB.MarkCompleted(sessionID, winner, elapsed); err != nil {
		log.Printf("⚠️  Failed to persist session completion for %s: %v", sessionID, err)
	}

	for _, r := range results {
		if r.UserID == nil {
			// Unauthenticated players have no durable account to record against.
			continue
		}

		if isCustom {
			allowed, err := quotaSvc.AllowCustomCompletion(*r.UserID, time.Now())
			if err != nil {
				log.Printf("⚠️  Quota check failed for user %d: %v", *r.UserID, err)
			} else if !allowed {
				log.Printf("🚫 User %d over monthly custom-puzzle quota, completion not recorded", *r.UserID)
				s.notifyPlayer(r.PlayerID, "quota_exceeded", map[string]interface{}{
					"session_id": sessionID,
					"limit":      services.FreeMonthlyCompletionLimit,
					"message":    "Monthly custom puzzle limit reached. Upgrade to keep your completions.",
				})
				continue
			}
		}

		err := sessionDB.SaveCompletionRecord(services.CompletionInput{
			SessionID:     sessionID,
			UserID:        *r.UserID,
			PuzzleID:      puzzleID,
			IsCustom:      isCustom,
			DifficultyKey: diff.Key,
			TotalPieces:   diff.TotalPieces(),
			TimeElapsed:   elapsed,
			PiecesPlaced:  r.PiecesPlaced,
			Misplacements: r.Misplacements,
			IsWinner:      r.IsWinner,
			Achievements:  achievements,
		})
		if err != nil {
			log.Printf("⚠️  Failed to save completion record for %s (user %d): %v", r.Username, *r.UserID, err)
			s.notifyPlayer(r.PlayerID, "error", map[string]interface{}{
				"error": "Saving your completion failed, it will be retried",
				"code":  "SyncWriteFailed",
			})
		}
	}
}

// notifyPlayer sends a message to one session member by player id.
func (s *Session) notifyPlayer(playerID, msgType string, payload map[string]interface{}) {
	s.mu.RLock()
	p, ok := s.Players[playerID]
	s.mu.RUnlock()
	if ok {
		p.sendMessage(msgType, payload)
	}
}
