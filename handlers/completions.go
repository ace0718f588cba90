// handlers/completions.go - Completion history and quota endpoints
package handlers

import (
	"time"

	"github.com/mwasobaddy/Puzzle/database"
	"github.com/mwasobaddy/Puzzle/middleware"
	"github.com/mwasobaddy/Puzzle/models"

	"github.com/gofiber/fiber/v2"
)

// GetMyCompletions returns the authenticated user's completion history,
// newest first.
func GetMyCompletions(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
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

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var records []models.CompletionRecord
	if err := db.Where("user_id = ?", userID).
		Order("completed_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load completions",
		})
	}

	completions := make([]fiber.Map, 0, len(records))
	for _, r := range records {
		achievements, _ := r.GetAchievements()
		completions = append(completions, fiber.Map{
			"session_id":    r.SessionID,
			"puzzle_id":     r.PuzzleID,
			"is_custom":     r.IsCustom,
			"difficulty":    r.DifficultyKey,
			"total_pieces":  r.TotalPieces,
			"time_elapsed":  r.TimeElapsed,
			"pieces_placed": r.PiecesPlaced,
			"misplacements": r.Misplacements,
			"is_winner":     r.IsWinner,
			"achievements":  achievements,
			"completed_at":  r.CompletedAt,
		})
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"completions": completions,
	})
}

// GetQuotaStatus returns how much of the monthly custom-puzzle quota remains
func GetQuotaStatus(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{
			"success": false,
			"error":   "User not authenticated",
		})
	}

	status, err := quotaSvc.GetQuotaStatus(userID, time.Now())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load quota status",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"quota":   status,
	})
}

// GetMyAchievements returns the authenticated user's unlocked achievements
func GetMyAchievements(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
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

	var unlocked []models.UserAchievement
	if err := db.Preload("Achievement").
		Where("user_id = ?", userID).
		Order("unlocked_at DESC").
		Find(&unlocked).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load achievements",
		})
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"achievements": unlocked,
	})
}
