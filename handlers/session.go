// handlers/session.go - Live collaborative puzzle session state
package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log"
	mathrand "math/rand"
	"os"
	"sync"
	"time"

	"github.com/mwasobaddy/Puzzle/models"
	"github.com/mwasobaddy/Puzzle/services"
)

// Session status values. The state machine is
// waiting → playing ⇄ paused → completed, with completed terminal.
const (
	StatusWaiting   = "waiting"
	StatusPlaying   = "playing"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Watched subtrees for listener subscriptions.
const (
	SubtreePlayers  = "players"
	SubtreePieces   = "pieces"
	SubtreeTimer    = "timer"
	SubtreeProgress = "progress"
	SubtreeStatus   = "status"
)

var statusTransitions = map[string][]string{
	StatusWaiting:   {StatusPlaying},
	StatusPlaying:   {StatusPaused, StatusCompleted},
	StatusPaused:    {StatusPlaying},
	StatusCompleted: {},
}

// Event is a change notification delivered to subscribed listeners.
type Event struct {
	Subtree string
	Type    string
	Payload map[string]interface{}
}

// ListenerFunc receives a snapshot on subscribe and deltas afterwards.
// Listeners must not call back into the session synchronously.
type ListenerFunc func(Event)

type listenerReg struct {
	subtree string
	fn      ListenerFunc
}

// Session is the single source of shared truth for one puzzle session.
type Session struct {
	ID         string
	InviteCode string
	Host       string
	Players    map[string]*Player
	Pieces     map[string]*PieceState
	MaxPlayers int

	PuzzleID       string
	IsCustomPuzzle bool
	Difficulty     models.Difficulty

	Status        string
	Progress      int // 0..100, monotonic non-decreasing
	PiecesPlaced  int
	TimerSeconds  int
	Misplacements int    // session-wide, for the precision achievement
	WinnerID      string // player who placed the final piece
	LastPlacedBy  string

	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time

	listeners    map[int]listenerReg
	nextListener int
	timerStop    chan struct{}

	mu sync.RWMutex
}

var (
	sessions = make(map[string]*Session)
	clients  = make(map[string]*Player) // playerID -> connected player
	mu       sync.RWMutex

	sessionDB = services.NewSessionDBService()
	quotaSvc  = services.NewQuotaService()
)

// newSession builds a live session with a full scattered piece set.
func newSession(host *Player, difficultyKey, puzzleID string, isCustom bool, maxPlayers int) *Session {
	diff := models.GetDifficulty(difficultyKey)
	sessionID := GeneratePlayerID()

	s := &Session{
		ID:             sessionID,
		InviteCode:     generateInviteCode(),
		Host:           host.ID,
		Players:        make(map[string]*Player),
		Pieces:         buildPieceSet(sessionID, diff),
		MaxPlayers:     maxPlayers,
		PuzzleID:       puzzleID,
		IsCustomPuzzle: isCustom,
		Difficulty:     diff,
		Status:         StatusWaiting,
		CreatedAt:      time.Now(),
		listeners:      make(map[int]listenerReg),
	}

	s.Players[host.ID] = host

	host.mu.Lock()
	host.Session = sessionID
	host.IsHost = true
	host.IsReady = true
	host.IsOnline = true
	host.mu.Unlock()

	return s
}

// buildPieceSet creates the piece arena for a grid. Target transforms are
// normalized cell centers; the image→geometry generator supplies real ones
// upstream. Scatter positions are deterministic per session id so every
// participant loads the identical board (seeded shuffle, same trick as a
// shared question order).
func buildPieceSet(sessionID string, diff models.Difficulty) map[string]*PieceState {
	sum := sha256.Sum256([]byte(sessionID))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := mathrand.New(mathrand.NewSource(seed))

	pieces := make(map[string]*PieceState, diff.TotalPieces())
	for gy := 0; gy < diff.GridHeight; gy++ {
		for gx := 0; gx < diff.GridWidth; gx++ {
			p := NewPieceState(gx, gy, diff.GridWidth, diff.GridHeight)

			// Scatter beyond the widest snap radius (targets stay under
			// x=1, the loosest tier snaps within 0.5) so no piece starts
			// close enough to commit without moving.
			p.X = 1.55 + rng.Float64()*0.35
			p.Y = rng.Float64()
			if diff.RotationEnabled {
				p.Rotation = float64(rng.Intn(4)) * 90
			}

			pieces[p.ID] = p
		}
	}
	return pieces
}

// TotalPieces returns the piece count for this session's grid.
func (s *Session) TotalPieces() int {
	return s.Difficulty.TotalPieces()
}

// setStatusLocked applies a status transition. Callers must hold s.mu.
// Transitions out of completed are a logged no-op conflict, never an error.
func (s *Session) setStatusLocked(next string) bool {
	if s.Status == StatusCompleted {
		log.Printf("⚠️  Session %s: ignoring %s transition, session already completed", s.ID, next)
		return false
	}
	for _, allowed := range statusTransitions[s.Status] {
		if allowed == next {
			s.Status = next
			return true
		}
	}
	log.Printf("⚠️  Session %s: invalid status transition %s → %s", s.ID, s.Status, next)
	return false
}

// Subscribe registers a listener on a watched subtree. The listener receives
// an immediate snapshot event followed by deltas. The returned function
// unsubscribes (call it on teardown).
func (s *Session) Subscribe(subtree string, fn ListenerFunc) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listenerReg{subtree: subtree, fn: fn}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	fn(Event{Subtree: subtree, Type: "snapshot", Payload: snap})

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// broadcast fans an event out to every connected player (non-blocking) and
// every listener subscribed to the event's subtree.
func (s *Session) broadcast(subtree, msgType string, payload map[string]interface{}) {
	s.mu.RLock()
	players := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	fns := make([]ListenerFunc, 0, len(s.listeners))
	for _, reg := range s.listeners {
		if reg.subtree == subtree {
			fns = append(fns, reg.fn)
		}
	}
	s.mu.RUnlock()

	for _, p := range players {
		p.sendMessage(msgType, payload)
	}
	for _, fn := range fns {
		fn(Event{Subtree: subtree, Type: msgType, Payload: payload})
	}
}

// snapshotLocked renders the full shared state. Callers must hold s.mu.
func (s *Session) snapshotLocked() map[string]interface{} {
	return map[string]interface{}{
		"session_id":    s.ID,
		"invite_code":   s.InviteCode,
		"host":          s.Host,
		"status":        s.Status,
		"difficulty":    s.Difficulty.Key,
		"timer":         s.TimerSeconds,
		"progress":      s.Progress,
		"pieces_placed": s.PiecesPlaced,
		"total_pieces":  s.TotalPieces(),
		"winner_id":     s.WinnerID,
		"players":       s.playerListLocked(),
		"pieces":        s.pieceListLocked(),
	}
}

func (s *Session) playerListLocked() []map[string]interface{} {
	list := make([]map[string]interface{}, 0, len(s.Players))
	for _, p := range s.Players {
		p.mu.RLock()
		list = append(list, map[string]interface{}{
			"player_id":   p.ID,
			"name":        p.Username,
			"is_host":     p.IsHost,
			"ready":       p.IsReady,
			"is_online":   p.IsOnline,
			"last_active": p.LastActive.UnixMilli(),
		})
		p.mu.RUnlock()
	}
	return list
}

func (s *Session) pieceListLocked() []map[string]interface{} {
	list := make([]map[string]interface{}, 0, len(s.Pieces))
	for _, piece := range s.Pieces {
		list = append(list, piece.payload())
	}
	return list
}

// Timer: a 1-second server-authoritative tick owned by the session. The tick
// goroutine runs from first start until completion/teardown; paused sessions
// keep the ticker but skip the increment, so resume needs no restart.
func (s *Session) startTimer() {
	s.mu.Lock()
	if s.timerStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.timerStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if s.Status != StatusPlaying {
					s.mu.Unlock()
					continue
				}
				s.TimerSeconds++
				secs := s.TimerSeconds
				s.mu.Unlock()

				s.broadcast(SubtreeTimer, "timer_tick", map[string]interface{}{
					"session_id": s.ID,
					"seconds":    secs,
				})
			case <-stop:
				return
			}
		}
	}()
}

func (s *Session) stopTimer() {
	s.mu.Lock()
	stop := s.timerStop
	s.timerStop = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}

// Registry helpers

func getSession(sessionID string) (*Session, bool) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := sessions[sessionID]
	return s, ok
}

// findSession resolves a session by id or invite code.
func findSession(key string) (*Session, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if s, ok := sessions[key]; ok {
		return s, true
	}
	for _, s := range sessions {
		if s.InviteCode == key {
			return s, true
		}
	}
	return nil, false
}

// teardownSession removes a session and clears every member. Used when the
// host leaves (single-host model) or the session is explicitly ended.
func teardownSession(s *Session, reason string) {
	s.stopTimer()

	s.mu.Lock()
	players := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	s.Players = make(map[string]*Player)
	s.mu.Unlock()

	for _, p := range players {
		p.sendMessage("session_removed", map[string]interface{}{
			"session_id": s.ID,
			"reason":     reason,
		})
		p.mu.Lock()
		p.Session = ""
		p.IsHost = false
		p.mu.Unlock()
	}

	mu.Lock()
	delete(sessions, s.ID)
	total := len(sessions)
	mu.Unlock()

	log.Printf("🧹 Session %s removed (%s), %d active sessions remain", s.ID, reason, total)

	go sessionDB.MarkAbandoned(s.ID, reason)
}

// Message handlers (WebSocket)

func handleCreateSession(player *Player, payload interface{}) {
	data := parsePayload(payload)
	difficultyKey := getString(data, "difficulty", "medium")
	puzzleID := getString(data, "puzzle_id", "")
	isCustom := getBool(data, "is_custom", false)
	maxPlayers := getInt(data, "max_players", 8)
	if maxPlayers > 8 {
		maxPlayers = 8
	}
	if maxPlayers < 1 {
		maxPlayers = 1
	}

	s := newSession(player, difficultyKey, puzzleID, isCustom, maxPlayers)

	mu.Lock()
	sessions[s.ID] = s
	total := len(sessions)
	mu.Unlock()

	log.Printf("🧩 [CREATE_SESSION] %s created session %s (difficulty=%s, pieces=%d, custom=%v), %d active",
		player.Username, s.ID, difficultyKey, s.TotalPieces(), isCustom, total)

	s.mu.RLock()
	resp := s.snapshotLocked()
	s.mu.RUnlock()
	resp["invite_link"] = GenerateInviteLink(appOrigin(), s.ID)

	player.sendMessage("session_created", resp)

	go sessionDB.CreateSession(s.ID, s.InviteCode, player.ID, s.PuzzleID, s.IsCustomPuzzle, s.MaxPlayers, s.Difficulty)
	go sessionDB.AddPlayer(s.ID, player.ID, player.Username, player.UserID, player.IsGuest, true)
}

func handleJoinSession(player *Player, payload interface{}) {
	data := parsePayload(payload)
	key := getString(data, "session_id", "")
	if key == "" {
		// A full invite link is accepted too.
		key = ExtractInviteID(getString(data, "invite_link", ""))
	}

	s, ok := findSession(key)
	if !ok {
		player.sendMessage("error", map[string]interface{}{"error": "Session not found", "code": "SessionNotFound"})
		return
	}

	s.mu.Lock()
	if existing, ok := s.Players[player.ID]; ok {
		// Same player id rejoining after a drop: swap in the new connection.
		s.Players[player.ID] = player
		player.mu.Lock()
		player.Session = s.ID
		player.IsHost = existing.IsHost
		player.IsReady = existing.IsReady
		player.IsOnline = true
		player.LastActive = time.Now()
		player.PiecesPlaced = existing.PiecesPlaced
		player.Misplacements = existing.Misplacements
		player.mu.Unlock()
		snap := s.snapshotLocked()
		s.mu.Unlock()

		player.sendMessage("session_joined", snap)
		s.broadcast(SubtreePlayers, "player_presence", map[string]interface{}{
			"player_id": player.ID,
			"is_online": true,
		})
		log.Printf("✅ Player %s rejoined session %s", player.ID, s.ID)
		go sessionDB.MarkPlayerReconnected(s.ID, player.ID)
		return
	}

	if len(s.Players) >= s.MaxPlayers {
		s.mu.Unlock()
		player.sendMessage("error", map[string]interface{}{"error": "Session is full"})
		return
	}
	s.Players[player.ID] = player
	s.mu.Unlock()

	player.mu.Lock()
	player.Session = s.ID
	player.IsHost = false
	player.IsReady = false
	player.IsOnline = true
	player.LastActive = time.Now()
	player.mu.Unlock()

	s.mu.RLock()
	snap := s.snapshotLocked()
	s.mu.RUnlock()
	player.sendMessage("session_joined", snap)

	s.broadcast(SubtreePlayers, "player_joined", map[string]interface{}{
		"player_id": player.ID,
		"name":      player.Username,
		"players":   playerList(s),
	})

	log.Printf("✅ Player %s (%s) joined session %s", player.Username, player.ID, s.ID)
	go sessionDB.AddPlayer(s.ID, player.ID, player.Username, player.UserID, player.IsGuest, false)
}

func handlePlayerReady(player *Player) {
	player.mu.Lock()
	player.IsReady = true
	sessionID := player.Session
	player.mu.Unlock()

	s, ok := getSession(sessionID)
	if !ok {
		return
	}

	s.broadcast(SubtreePlayers, "player_ready_update", map[string]interface{}{
		"player_id": player.ID,
		"players":   playerList(s),
	})
}

func handleStartGame(player *Player) {
	player.mu.RLock()
	sessionID := player.Session
	isHost := player.IsHost
	player.mu.RUnlock()

	if sessionID == "" {
		player.sendMessage("error", map[string]interface{}{"error": "Not in a session"})
		return
	}
	if !isHost {
		player.sendMessage("error", map[string]interface{}{"error": "Only the host can start the game"})
		return
	}

	s, ok := getSession(sessionID)
	if !ok {
		player.sendMessage("error", map[string]interface{}{"error": "Session not found", "code": "SessionNotFound"})
		return
	}

	s.mu.Lock()
	readyCount := 0
	for _, p := range s.Players {
		p.mu.RLock()
		if p.IsReady {
			readyCount++
		}
		p.mu.RUnlock()
	}
	if readyCount != len(s.Players) {
		total := len(s.Players)
		s.mu.Unlock()
		player.sendMessage("error", map[string]interface{}{
			"error":   "All players must be ready",
			"message": fmt.Sprintf("%d/%d players ready", readyCount, total),
		})
		return
	}
	if !s.setStatusLocked(StatusPlaying) {
		s.mu.Unlock()
		return
	}
	s.StartedAt = time.Now()
	s.mu.Unlock()

	s.startTimer()

	log.Printf("🧩 Session %s started with %d players", s.ID, readyCount)
	s.broadcast(SubtreeStatus, "session_update", map[string]interface{}{
		"session_id": s.ID,
		"status":     StatusPlaying,
	})

	go sessionDB.MarkStarted(s.ID)
}

func handlePauseGame(player *Player, resume bool) {
	player.mu.RLock()
	sessionID := player.Session
	player.mu.RUnlock()

	s, ok := getSession(sessionID)
	if !ok {
		return
	}

	next := StatusPaused
	if resume {
		next = StatusPlaying
	}

	s.mu.Lock()
	changed := s.setStatusLocked(next)
	s.mu.Unlock()

	if !changed {
		return
	}

	s.broadcast(SubtreeStatus, "session_update", map[string]interface{}{
		"session_id": s.ID,
		"status":     next,
		"by":         player.ID,
	})
}

// handleLeaveSession handles a deliberate leave. A leaving host tears the
// whole session down; a leaving guest only removes their own record.
func handleLeaveSession(player *Player) {
	player.mu.Lock()
	sessionID := player.Session
	isHost := player.IsHost
	player.Session = ""
	player.mu.Unlock()

	if sessionID == "" {
		return
	}

	s, ok := getSession(sessionID)
	if !ok {
		return
	}

	if isHost {
		teardownSession(s, "host_left")
		return
	}

	released := s.ForceReleaseLocks(player.ID)

	s.mu.Lock()
	delete(s.Players, player.ID)
	s.mu.Unlock()

	for _, pieceID := range released {
		s.broadcast(SubtreePieces, "piece_released", map[string]interface{}{
			"piece_id":  pieceID,
			"player_id": player.ID,
		})
	}
	s.broadcast(SubtreePlayers, "player_left", map[string]interface{}{
		"player_id": player.ID,
		"players":   playerList(s),
	})

	go sessionDB.MarkPlayerLeft(s.ID, player.ID)
}

// handleDisconnect handles an abrupt connection loss (no explicit leave).
// Hosts take the session with them; other players are kept offline so they
// can rejoin, with any held piece locks force-released.
func handleDisconnect(player *Player) {
	player.mu.Lock()
	sessionID := player.Session
	isHost := player.IsHost
	player.IsOnline = false
	player.LastActive = time.Now()
	player.mu.Unlock()

	if sessionID == "" {
		return
	}

	s, ok := getSession(sessionID)
	if !ok {
		return
	}

	// A rejoin may have already swapped a fresh connection into the member
	// slot; a zombie connection draining late must not mark the live player
	// offline or steal their locks.
	s.mu.RLock()
	current := s.Players[player.ID]
	s.mu.RUnlock()
	if current != player {
		return
	}

	if isHost {
		teardownSession(s, "host_disconnected")
		return
	}

	released := s.ForceReleaseLocks(player.ID)
	for _, pieceID := range released {
		s.broadcast(SubtreePieces, "piece_released", map[string]interface{}{
			"piece_id":  pieceID,
			"player_id": player.ID,
			"reason":    "disconnect",
		})
	}

	s.broadcast(SubtreePlayers, "player_presence", map[string]interface{}{
		"player_id": player.ID,
		"is_online": false,
	})

	log.Printf("🔌 Player %s went offline in session %s (%d locks released)", player.ID, s.ID, len(released))
	go sessionDB.MarkPlayerDisconnected(s.ID, player.ID)
}

func handleReconnect(player *Player, payload interface{}) {
	data := parsePayload(payload)
	sessionID := getString(data, "session_id", "")
	if sessionID == "" {
		player.sendMessage("error", map[string]interface{}{"error": "Missing session_id"})
		return
	}

	// Reconnect is a rejoin keyed by the stable player id.
	handleJoinSession(player, map[string]interface{}{"session_id": sessionID})
}

// playerList renders the player subtree for broadcast payloads.
func playerList(s *Session) []map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerListLocked()
}

func generateInviteCode() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	for i := range b {
		b[i] = chars[int(b[i])%len(chars)]
	}
	return string(b)
}

func appOrigin() string {
	if origin := os.Getenv("APP_ORIGIN"); origin != "" {
		return origin
	}
	return "http://localhost:3000"
}

