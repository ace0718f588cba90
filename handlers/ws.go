// handlers/ws.go - WebSocket transport for live puzzle sessions
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	// WebSocket timeouts
	writeWait  = 10 * time.Second // Time allowed to write a message
	pingPeriod = 15 * time.Second // Send pings at this interval

	// Send channel buffer size
	sendBufferSize = 256
)

// Player is one connected participant. The same struct doubles as the
// session-membership record; IsOnline flips on disconnect instead of the
// record being dropped, so rejoining keeps identity and stats.
type Player struct {
	ID       string // Stable in-session identity (survives reconnects)
	UserID   *uint  // Database user ID (nil for unauthenticated players)
	Username string
	IsGuest  bool
	Conn     *websocket.Conn
	Session  string
	IsHost   bool
	IsReady  bool
	IsOnline bool

	LastActive    time.Time
	PiecesPlaced  int
	Misplacements int

	send   chan Message // Buffered channel for outbound messages
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler is a pure net/http handler for WebSocket connections
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	// Authenticate using JWT from cookie or Authorization header
	var userID *uint
	var username string
	isGuest := true

	authHeader := r.Header.Get("Authorization")
	var tokenString string

	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
	}

	// Fall back to cookie
	if tokenString == "" {
		if cookie, err := r.Cookie("token"); err == nil {
			tokenString = cookie.Value
		}
	}

	// Parse JWT if present
	if tokenString != "" {
		jwtSecret := os.Getenv("JWT_SECRET")
		if jwtSecret == "" {
			jwtSecret = "puzzle-secret-change-in-production"
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("invalid signing method")
			}
			return []byte(jwtSecret), nil
		})

		if err == nil && token.Valid {
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if userIDVal, ok := claims["user_id"].(float64); ok {
					uid := uint(userIDVal)
					userID = &uid
				}
				if usernameVal, ok := claims["username"].(string); ok {
					username = usernameVal
				}
				if isGuestVal, ok := claims["is_guest"].(bool); ok {
					isGuest = isGuestVal
				}
			}
		}
	}

	handleWebSocket(w, r, userID, username, isGuest)
}

func handleWebSocket(w http.ResponseWriter, r *http.Request, userID *uint, username string, isGuest bool) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // TODO: restrict origins once the web client's deploy origin is fixed
	})
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	ctx := r.Context()

	// A reconnecting client passes its previous player_id to keep identity.
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		playerID = GeneratePlayerID()
	}

	if username == "" {
		username = r.URL.Query().Get("username")
		if username == "" {
			username = "Guest" + playerID[:6]
		}
	}

	playerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	player := &Player{
		ID:         playerID,
		UserID:     userID,
		Username:   username,
		IsGuest:    isGuest,
		Conn:       conn,
		IsOnline:   true,
		LastActive: time.Now(),
		send:       make(chan Message, sendBufferSize),
		ctx:        playerCtx,
		cancel:     cancel,
	}

	mu.Lock()
	clients[playerID] = player
	mu.Unlock()

	log.Printf("🧩 Player connected: %s (ID: %s, UserID: %v, Guest: %v)", username, playerID, userID, isGuest)

	player.sendMessage("connected", map[string]interface{}{
		"player_id": playerID,
		"username":  username,
		"is_guest":  isGuest,
		"user_id":   userID,
	})

	// Start write pump in separate goroutine
	go player.writePump()

	// Start read pump (blocking)
	player.readPump()

	// Cleanup when connection closes
	mu.Lock()
	if clients[playerID] == player {
		delete(clients, playerID)
	}
	mu.Unlock()

	if player.Session != "" {
		handleDisconnect(player)
	}

	// The send channel is never closed: the membership record stays in the
	// session for rejoin and may still be broadcast to. writePump exits via
	// the cancelled context instead.
	log.Printf("🔌 Player disconnected: %s (ID: %s, UserID: %v)", player.Username, player.ID, player.UserID)
}

// sendMessage queues a message to be sent to the player via WebSocket
func (p *Player) sendMessage(msgType string, payload interface{}) {
	msg := Message{Type: msgType, Payload: payload}

	select {
	case p.send <- msg:
		// Message queued successfully
	default:
		// Send buffer full - drop message and log warning
		log.Printf("⚠️ Send buffer full for player %s, dropping message type: %s", p.ID, msgType)
	}
}

func handleMessage(player *Player, msg Message) {
	switch msg.Type {
	case "create_session":
		handleCreateSession(player, msg.Payload)
	case "join_session":
		handleJoinSession(player, msg.Payload)
	case "player_ready":
		handlePlayerReady(player)
	case "start_game":
		handleStartGame(player)
	case "pause_game":
		handlePauseGame(player, false)
	case "resume_game":
		handlePauseGame(player, true)
	case "acquire_piece":
		handleAcquirePiece(player, msg.Payload)
	case "release_piece":
		handleReleasePiece(player, msg.Payload)
	case "move_piece":
		handleMovePiece(player, msg.Payload)
	case "place_piece":
		handlePlacePiece(player, msg.Payload)
	case "leave_session":
		handleLeaveSession(player)
	case "reconnect":
		handleReconnect(player, msg.Payload)
	case "ping":
		// Send pong response for latency measurement
		player.sendMessage("pong", map[string]interface{}{})
	}
}

func (p *Player) readPump() {
	defer func() {
		p.cancel()
		p.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var msg Message
		err := wsjson.Read(p.ctx, p.Conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		p.mu.Lock()
		p.LastActive = time.Now()
		p.mu.Unlock()

		handleMessage(p, msg)
	}
}

func (p *Player) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case msg, ok := <-p.send:
			if !ok {
				p.Conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}

			writeCtx, cancel := context.WithTimeout(p.ctx, writeWait)
			err := wsjson.Write(writeCtx, p.Conn, msg)
			cancel()

			if err != nil {
				log.Printf("❌ Error writing to WebSocket: %v", err)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(p.ctx, writeWait)
			err := p.Conn.Ping(pingCtx)
			cancel()

			if err != nil {
				log.Printf("❌ Ping failed: %v", err)
				return
			}

		case <-p.ctx.Done():
			return
		}
	}
}

// GeneratePlayerID creates a unique player ID
func GeneratePlayerID() string {
	return uuid.NewString()
}

func parsePayload(payload interface{}) map[string]interface{} {
	if payload == nil {
		return make(map[string]interface{})
	}
	if data, ok := payload.(map[string]interface{}); ok {
		return data
	}
	// Try to parse as JSON if it's a string
	if str, ok := payload.(string); ok {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(str), &data); err == nil {
			return data
		}
	}
	return make(map[string]interface{})
}

func getString(data map[string]interface{}, key string, defaultVal string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}

func getInt(data map[string]interface{}, key string, defaultVal int) int {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return defaultVal
}

func getFloat(data map[string]interface{}, key string, defaultVal float64) float64 {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	return defaultVal
}

func getBool(data map[string]interface{}, key string, defaultVal bool) bool {
	if val, ok := data[key]; ok {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return defaultVal
}
