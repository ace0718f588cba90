// handlers/leaderboard.go - Fastest completions per difficulty
package handlers

import (
	"github.com/mwasobaddy/Puzzle/database"
	"github.com/mwasobaddy/Puzzle/models"

	"github.com/gofiber/fiber/v2"
)

type leaderboardEntry struct {
	Rank        int    `json:"rank"`
	Username    string `json:"username"`
	TimeElapsed int    `json:"time_elapsed"`
	TotalPieces int    `json:"total_pieces"`
	CompletedAt string `json:"completed_at"`
}

// GetLeaderboard returns the fastest completions for one difficulty tier.
// Guest completions never reach completion_records, so the board is
// registered users only.
func GetLeaderboard(c *fiber.Ctx) error {
	db := database.GetDB()
	if db == nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Database not available",
		})
	}

	difficulty := c.Query("difficulty", "medium")
	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > 100 {
		limit = 10
	}

	var records []models.CompletionRecord
	if err := db.Preload("User").
		Where("difficulty_key = ? AND time_elapsed > 0", difficulty).
		Order("time_elapsed ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load leaderboard",
		})
	}

	entries := make([]leaderboardEntry, 0, len(records))
	for i, r := range records {
		username := "Unknown"
		if r.User != nil {
			username = r.User.Username
		}
		entries = append(entries, leaderboardEntry{
			Rank:        i + 1,
			Username:    username,
			TimeElapsed: r.TimeElapsed,
			TotalPieces: r.TotalPieces,
			CompletedAt: r.CompletedAt.Format("2006-01-02"),
		})
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"difficulty": difficulty,
		"entries":    entries,
	})
}
