// handlers/debug.go - Debug endpoints for troubleshooting live sessions
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// DebugSessionInfo represents session information for debugging
type DebugSessionInfo struct {
	SessionID    string   `json:"session_id"`
	InviteCode   string   `json:"invite_code"`
	Host         string   `json:"host"`
	Status       string   `json:"status"`
	Difficulty   string   `json:"difficulty"`
	Progress     int      `json:"progress"`
	PiecesPlaced int      `json:"pieces_placed"`
	TotalPieces  int      `json:"total_pieces"`
	TimerSeconds int      `json:"timer_seconds"`
	PlayerCount  int      `json:"player_count"`
	MaxPlayers   int      `json:"max_players"`
	PlayerIDs    []string `json:"player_ids"`
	PlayerNames  []string `json:"player_names"`
}

// GetActiveSessions returns a list of all live puzzle sessions
func GetActiveSessions(c *fiber.Ctx) error {
	mu.RLock()
	defer mu.RUnlock()

	sessionList := make([]DebugSessionInfo, 0, len(sessions))

	for _, s := range sessions {
		s.mu.RLock()

		playerIDs := make([]string, 0, len(s.Players))
		playerNames := make([]string, 0, len(s.Players))
		for _, player := range s.Players {
			playerIDs = append(playerIDs, player.ID)
			playerNames = append(playerNames, player.Username)
		}

		info := DebugSessionInfo{
			SessionID:    s.ID,
			InviteCode:   s.InviteCode,
			Host:         s.Host,
			Status:       s.Status,
			Difficulty:   s.Difficulty.Key,
			Progress:     s.Progress,
			PiecesPlaced: s.PiecesPlaced,
			TotalPieces:  s.TotalPieces(),
			TimerSeconds: s.TimerSeconds,
			PlayerCount:  len(s.Players),
			MaxPlayers:   s.MaxPlayers,
			PlayerIDs:    playerIDs,
			PlayerNames:  playerNames,
		}

		s.mu.RUnlock()
		sessionList = append(sessionList, info)
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"total_sessions": len(sessionList),
		"sessions":       sessionList,
		"timestamp":      time.Now(),
	})
}

// GetConnectedClients returns the connected websocket clients
func GetConnectedClients(c *fiber.Ctx) error {
	mu.RLock()
	defer mu.RUnlock()

	clientList := make([]fiber.Map, 0, len(clients))
	for _, p := range clients {
		p.mu.RLock()
		clientList = append(clientList, fiber.Map{
			"player_id":   p.ID,
			"username":    p.Username,
			"is_guest":    p.IsGuest,
			"session":     p.Session,
			"is_online":   p.IsOnline,
			"last_active": p.LastActive,
		})
		p.mu.RUnlock()
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"total_clients": len(clientList),
		"clients":       clientList,
		"timestamp":     time.Now(),
	})
}
