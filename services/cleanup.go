package services

import (
	"log"
	"time"

	"github.com/mwasobaddy/Puzzle/database"
	"github.com/mwasobaddy/Puzzle/models"
)

// CleanupService handles background cleanup tasks
type CleanupService struct {
	stop chan struct{}
}

var cleanupService *CleanupService

// InitCleanupService initializes the singleton cleanup service.
func InitCleanupService() {
	cleanupService = &CleanupService{stop: make(chan struct{})}
}

// GetCleanupService returns the initialized cleanup service.
func GetCleanupService() *CleanupService {
	return cleanupService
}

// Start runs the periodic cleanup worker until Stop is called.
func (s *CleanupService) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.CleanupStaleGuests(); err != nil {
					log.Printf("Cleanup: stale guest pass failed: %v", err)
				}
				if err := s.CleanupStaleSessions(); err != nil {
					log.Printf("Cleanup: stale session pass failed: %v", err)
				}
			case <-s.stop:
				return
			}
		}
	}()
	log.Println("🧹 Cleanup service started")
}

// Stop stops the cleanup worker.
func (s *CleanupService) Stop() {
	close(s.stop)
}

// CleanupStaleGuests removes guest accounts inactive for more than 30 days.
// Guests have no password and nothing to recover, so the rows just accumulate.
func (s *CleanupService) CleanupStaleGuests() error {
	db := database.GetDB()
	if db == nil {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -30)
	result := db.Where("is_guest = ? AND created_at < ? AND (last_activity IS NULL OR last_activity < ?)",
		true, cutoff, cutoff).
		Delete(&models.User{})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("✅ Cleaned up %d stale guest accounts", result.RowsAffected)
	}
	return nil
}

// CleanupStaleSessions marks session rows abandoned when they never left the
// lobby and are older than a day. The live registry drops them on host
// disconnect already; this sweeps rows orphaned by a process restart.
func (s *CleanupService) CleanupStaleSessions() error {
	db := database.GetDB()
	if db == nil {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -1)
	result := db.Model(&models.PuzzleSession{}).
		Where("status IN ? AND updated_at < ?", []string{"waiting", "playing", "paused"}, cutoff).
		Update("status", "abandoned")
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("✅ Marked %d stale sessions abandoned", result.RowsAffected)
	}
	return nil
}
