// handlers/stats.go
package handlers

import (
	"time"

	"github.com/mwasobaddy/Puzzle/database"
	"github.com/mwasobaddy/Puzzle/models"

	"github.com/gofiber/fiber/v2"
)

// GetOnlinePlayersCount returns the number of currently online players
func GetOnlinePlayersCount(c *fiber.Ctx) error {
	db := database.GetDB()
	if db == nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Database not available",
		})
	}

	// Update current user's activity if authenticated
	userID := c.Locals("userId")
	if userID != nil {
		now := time.Now()
		db.Model(&models.User{}).Where("id = ?", userID).Update("last_activity", now)
	}

	// Active in the last 5 minutes counts as online
	cutoffTime := time.Now().Add(-5 * time.Minute)

	var count int64
	err := db.Model(&models.User{}).Where("last_activity > ?", cutoffTime).Count(&count).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to get online players count",
		})
	}

	mu.RLock()
	liveSessions := len(sessions)
	mu.RUnlock()

	return c.JSON(fiber.Map{
		"success":       true,
		"count":         count,
		"live_sessions": liveSessions,
	})
}

// GetMyStats returns the authenticated user's lifetime puzzle stats
func GetMyStats(c *fiber.Ctx) error {
	userID := c.Locals("userId")
	if userID == nil {
		return c.Status(401).JSON(fiber.Map{
			"success": false,
			"error":   "User not authenticated",
		})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Database not available",
		})
	}

	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"error":   "User not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"stats": fiber.Map{
			"puzzles_completed": user.PuzzlesCompleted,
			"pieces_placed":     user.PiecesPlaced,
			"best_time_seconds": user.BestTimeSeconds,
			"current_streak":    user.CurrentStreak,
			"best_streak":       user.BestStreak,
		},
	})
}
