// database/migrate.go - Database Migration Runner
package database

import (
	"log"

	"github.com/mwasobaddy/Puzzle/models"
)

// RunMigrations runs all database migrations
func RunMigrations() {
	db := GetDB()
	if db == nil {
		log.Println("⚠️  Skipping migrations - database not available")
		return
	}
	log.Println("🔄 Running database migrations...")

	if err := db.AutoMigrate(
		&models.User{},
		&models.Achievement{},
		&models.UserAchievement{},
		&models.PuzzleSession{},
		&models.SessionPlayer{},
		&models.SessionEvent{},
		&models.CompletionRecord{},
	); err != nil {
		log.Fatalf("❌ Failed to run migrations: %v", err)
	}

	createIndexes()
	seedAchievements()

	log.Println("✅ All migrations completed successfully")
}

// createIndexes creates indexes beyond what AutoMigrate derives from tags
func createIndexes() {
	db := GetDB()

	// User indexes
	db.Exec("CREATE INDEX IF NOT EXISTS idx_users_guest ON users(is_guest)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_users_premium ON users(is_premium)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_users_last_activity ON users(last_activity DESC)")

	// Session indexes
	db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_status_created ON puzzle_sessions(status, created_at DESC)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_session_players_session ON puzzle_session_players(session_id, player_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_session_events_seq ON puzzle_session_events(session_id, sequence_num)")

	// Completion indexes (leaderboard + monthly quota queries)
	db.Exec("CREATE INDEX IF NOT EXISTS idx_completions_leaderboard ON completion_records(difficulty_key, time_elapsed ASC)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_completions_quota ON completion_records(user_id, is_custom, completed_at)")
}

// seedAchievements inserts the achievement catalog the completion evaluator
// grants from. Idempotent: existing keys are left untouched.
func seedAchievements() {
	db := GetDB()

	seed := []models.Achievement{
		{Key: models.AchievementSpeed, Name: "Speed Solver", Description: "Finish a puzzle in under five minutes", Category: "Speed", Icon: "⚡"},
		{Key: models.AchievementPrecision, Name: "Clean Hands", Description: "Finish a puzzle without a single misplaced piece", Category: "Precision", Icon: "🎯"},
		{Key: models.AchievementPersistence, Name: "Expert Finisher", Description: "Finish a puzzle on the hardest difficulty", Category: "Persistence", Icon: "🏔️"},
	}

	for _, a := range seed {
		var count int64
		db.Model(&models.Achievement{}).Where("key = ?", a.Key).Count(&count)
		if count == 0 {
			if err := db.Create(&a).Error; err != nil {
				log.Printf("⚠️  Failed to seed achievement %s: %v", a.Key, err)
			}
		}
	}
}
