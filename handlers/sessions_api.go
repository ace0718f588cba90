// handlers/sessions_api.go - REST surface over the live session registry
package handlers

import (
	"github.com/mwasobaddy/Puzzle/models"

	"github.com/gofiber/fiber/v2"
)

// GetDifficulties returns the selectable difficulty catalog
func GetDifficulties(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":      true,
		"difficulties": models.Difficulties(),
	})
}

// GetSessionSnapshot returns the current shared state of a live session,
// looked up by session id or invite code.
func GetSessionSnapshot(c *fiber.Ctx) error {
	key := c.Params("id")
	s, ok := findSession(key)
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"error":   "Session not found",
			"code":    "SessionNotFound",
		})
	}

	s.mu.RLock()
	snap := s.snapshotLocked()
	s.mu.RUnlock()
	snap["invite_link"] = GenerateInviteLink(appOrigin(), s.ID)

	return c.JSON(fiber.Map{
		"success": true,
		"session": snap,
	})
}

// ValidateInviteLink resolves an invite link or code to a joinable session.
// Used by the join page before it opens a websocket.
func ValidateInviteLink(c *fiber.Ctx) error {
	var req struct {
		InviteLink string `json:"invite_link"`
		Code       string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	key := req.Code
	if req.InviteLink != "" {
		key = ExtractInviteID(req.InviteLink)
	}
	if key == "" {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid invite link",
		})
	}

	s, ok := findSession(key)
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"error":   "Session not found",
			"code":    "SessionNotFound",
		})
	}

	s.mu.RLock()
	joinable := s.Status == StatusWaiting && len(s.Players) < s.MaxPlayers
	info := fiber.Map{
		"session_id":  s.ID,
		"status":      s.Status,
		"difficulty":  s.Difficulty.Key,
		"players":     len(s.Players),
		"max_players": s.MaxPlayers,
	}
	s.mu.RUnlock()

	return c.JSON(fiber.Map{
		"success":  true,
		"joinable": joinable,
		"session":  info,
	})
}

// GetActiveSessionCount returns the number of live sessions
func GetActiveSessionCount(c *fiber.Ctx) error {
	mu.RLock()
	count := len(sessions)
	connected := len(clients)
	mu.RUnlock()

	return c.JSON(fiber.Map{
		"success":           true,
		"active_sessions":   count,
		"connected_players": connected,
	})
}
