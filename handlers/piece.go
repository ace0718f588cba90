// handlers/piece.go - Piece state, ownership arbitration and placement commits
package handlers

import (
	"fmt"
	"log"
	"time"
)

// PieceState holds one piece's placement, ownership and transform. Pieces are
// the only resource needing exclusive-access discipline: OwnerID is the
// exclusive manipulation lock, and IsPlaced transitions false→true only.
type PieceState struct {
	ID    string
	GridX int
	GridY int

	// Target transform (from the geometry generator).
	TargetX        float64
	TargetY        float64
	TargetRotation float64

	// Current transform (transient until a drag-end commit).
	X        float64
	Y        float64
	Rotation float64

	IsPlaced      bool
	OwnerID       string // player currently manipulating, "" if free
	LastUpdatedBy string
	LastUpdated   int64 // unix milliseconds, total order per piece
}

// NewPieceState creates a piece for a grid cell. The id is stable and derived
// from the coordinate, so the same cell maps to the same piece on every
// client. Targets default to normalized cell centers; the geometry generator
// overrides them when a real image layout is loaded.
func NewPieceState(gx, gy, gridWidth, gridHeight int) *PieceState {
	return &PieceState{
		ID:      fmt.Sprintf("%d_%d", gx, gy),
		GridX:   gx,
		GridY:   gy,
		TargetX: (float64(gx) + 0.5) / float64(gridWidth),
		TargetY: (float64(gy) + 0.5) / float64(gridHeight),
	}
}

func (p *PieceState) payload() map[string]interface{} {
	var owner interface{}
	if p.OwnerID != "" {
		owner = p.OwnerID
	}
	return map[string]interface{}{
		"piece_id":        p.ID,
		"grid_x":          p.GridX,
		"grid_y":          p.GridY,
		"x":               p.X,
		"y":               p.Y,
		"rotation":        p.Rotation,
		"is_placed":       p.IsPlaced,
		"owner_id":        owner,
		"last_updated_by": p.LastUpdatedBy,
		"last_updated":    p.LastUpdated,
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// AcquirePiece grants the exclusive manipulation lock. Acquiring a lock the
// player already holds is an idempotent success. A lock held by an offline
// player is treated as free (the disconnect sweep may not have run yet).
func (s *Session) AcquirePiece(pieceID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	piece, ok := s.Pieces[pieceID]
	if !ok {
		return ErrPieceNotFound
	}
	if piece.IsPlaced {
		return ErrAlreadyPlaced
	}
	if piece.OwnerID != "" && piece.OwnerID != playerID {
		if owner, ok := s.Players[piece.OwnerID]; ok {
			owner.mu.RLock()
			online := owner.IsOnline
			owner.mu.RUnlock()
			if online {
				return ErrAlreadyOwned
			}
		}
	}

	piece.OwnerID = playerID
	return nil
}

// ReleasePiece clears the lock, but only for the current owner. A late
// release from a stale interaction must not steal ownership back.
func (s *Session) ReleasePiece(pieceID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	piece, ok := s.Pieces[pieceID]
	if !ok {
		return ErrPieceNotFound
	}
	if piece.OwnerID != playerID {
		return ErrNotOwner
	}

	piece.OwnerID = ""
	return nil
}

// ForceReleaseLocks clears ownership on every piece held by a player and
// returns the affected piece ids. Called when a player goes offline so a
// dropped connection can never leave a piece permanently locked.
func (s *Session) ForceReleaseLocks(playerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released []string
	for _, piece := range s.Pieces {
		if piece.OwnerID == playerID {
			piece.OwnerID = ""
			released = append(released, piece.ID)
		}
	}
	return released
}

// ApplyPieceMove reconciles a transient drag update with last-write-wins by
// timestamp. Older updates return ErrStaleUpdate and are discarded silently.
func (s *Session) ApplyPieceMove(pieceID, playerID string, x, y, rotation float64, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	piece, ok := s.Pieces[pieceID]
	if !ok {
		return ErrPieceNotFound
	}
	if piece.IsPlaced {
		return ErrAlreadyPlaced
	}
	if piece.OwnerID != playerID {
		return ErrNotOwner
	}
	if ts < piece.LastUpdated {
		return ErrStaleUpdate
	}

	piece.X = x
	piece.Y = y
	piece.Rotation = rotation
	piece.LastUpdatedBy = playerID
	piece.LastUpdated = ts
	return nil
}

// CommitPlacement handles a drag-end commit: validate the snap, release the
// lock, and on a valid snap flip the piece to placed (one-way). Returns the
// snap result so the caller can surface strength feedback.
func (s *Session) CommitPlacement(player *Player, pieceID string, x, y, rotation float64, ts int64) (SnapResult, error) {
	s.mu.Lock()

	piece, ok := s.Pieces[pieceID]
	if !ok {
		s.mu.Unlock()
		return SnapResult{}, ErrPieceNotFound
	}
	if piece.IsPlaced {
		// Duplicate or replayed commit for an already-placed piece: no effect.
		s.mu.Unlock()
		return SnapResult{}, ErrAlreadyPlaced
	}
	if piece.OwnerID != player.ID {
		s.mu.Unlock()
		return SnapResult{}, ErrNotOwner
	}
	if ts < piece.LastUpdated {
		s.mu.Unlock()
		return SnapResult{}, ErrStaleUpdate
	}

	snap := ValidateSnap(piece, x, y, rotation, s.Difficulty)

	piece.OwnerID = ""
	piece.LastUpdatedBy = player.ID
	piece.LastUpdated = ts

	if snap.IsNear {
		piece.IsPlaced = true
		piece.X = piece.TargetX
		piece.Y = piece.TargetY
		piece.Rotation = piece.TargetRotation
		s.PiecesPlaced++
		s.LastPlacedBy = player.ID

		player.mu.Lock()
		player.PiecesPlaced++
		player.mu.Unlock()
	} else {
		piece.X = x
		piece.Y = y
		piece.Rotation = rotation
		s.Misplacements++

		player.mu.Lock()
		player.Misplacements++
		player.mu.Unlock()
	}

	payload := piece.payload()
	payload["strength"] = snap.Strength
	payload["session_id"] = s.ID
	placed := snap.IsNear
	s.mu.Unlock()

	if placed {
		s.broadcast(SubtreePieces, "piece_placed", payload)
		go sessionDB.RecordEvent(s.ID, "piece_placed", player.ID, pieceID, payload)
		s.recomputeProgress()
	} else {
		s.broadcast(SubtreePieces, "piece_released", payload)
	}

	return snap, nil
}

// WebSocket message handlers

func handleAcquirePiece(player *Player, payload interface{}) {
	s, pieceID, ok := sessionAndPiece(player, payload)
	if !ok {
		return
	}

	if err := s.AcquirePiece(pieceID, player.ID); err != nil {
		player.sendMessage("error", map[string]interface{}{
			"error":    err.Error(),
			"code":     lockErrorCode(err),
			"piece_id": pieceID,
		})
		return
	}

	s.broadcast(SubtreePieces, "piece_locked", map[string]interface{}{
		"piece_id":  pieceID,
		"player_id": player.ID,
	})
}

func handleReleasePiece(player *Player, payload interface{}) {
	s, pieceID, ok := sessionAndPiece(player, payload)
	if !ok {
		return
	}

	if err := s.ReleasePiece(pieceID, player.ID); err != nil {
		// A refused stale release is not actionable for the client.
		log.Printf("⚠️  Release of piece %s by %s refused: %v", pieceID, player.ID, err)
		return
	}

	s.broadcast(SubtreePieces, "piece_released", map[string]interface{}{
		"piece_id":  pieceID,
		"player_id": player.ID,
	})
}

func handleMovePiece(player *Player, payload interface{}) {
	s, pieceID, ok := sessionAndPiece(player, payload)
	if !ok {
		return
	}

	data := parsePayload(payload)
	x := getFloat(data, "x", 0)
	y := getFloat(data, "y", 0)
	rotation := getFloat(data, "rotation", 0)
	ts := getTimestamp(data)

	if err := s.ApplyPieceMove(pieceID, player.ID, x, y, rotation, ts); err != nil {
		// Stale moves are expected under reordering; drop quietly.
		return
	}

	s.broadcast(SubtreePieces, "piece_moved", map[string]interface{}{
		"piece_id":     pieceID,
		"player_id":    player.ID,
		"x":            x,
		"y":            y,
		"rotation":     rotation,
		"last_updated": ts,
	})
}

func handlePlacePiece(player *Player, payload interface{}) {
	s, pieceID, ok := sessionAndPiece(player, payload)
	if !ok {
		return
	}

	data := parsePayload(payload)
	x := getFloat(data, "x", 0)
	y := getFloat(data, "y", 0)
	rotation := getFloat(data, "rotation", 0)
	ts := getTimestamp(data)

	snap, err := s.CommitPlacement(player, pieceID, x, y, rotation, ts)
	if err != nil {
		if err == ErrStaleUpdate || err == ErrAlreadyPlaced {
			// Replays and late arrivals reconcile to no-ops.
			return
		}
		player.sendMessage("error", map[string]interface{}{
			"error":    err.Error(),
			"code":     lockErrorCode(err),
			"piece_id": pieceID,
		})
		return
	}

	player.sendMessage("snap_result", map[string]interface{}{
		"piece_id": pieceID,
		"is_near":  snap.IsNear,
		"strength": snap.Strength,
	})
}

func sessionAndPiece(player *Player, payload interface{}) (*Session, string, bool) {
	player.mu.RLock()
	sessionID := player.Session
	player.mu.RUnlock()

	if sessionID == "" {
		player.sendMessage("error", map[string]interface{}{"error": "Not in a session"})
		return nil, "", false
	}

	s, ok := getSession(sessionID)
	if !ok {
		player.sendMessage("error", map[string]interface{}{"error": "Session not found", "code": "SessionNotFound"})
		return nil, "", false
	}

	data := parsePayload(payload)
	pieceID := getString(data, "piece_id", "")
	if pieceID == "" {
		player.sendMessage("error", map[string]interface{}{"error": "Missing piece_id"})
		return nil, "", false
	}

	return s, pieceID, true
}

func getTimestamp(data map[string]interface{}) int64 {
	if ts := getFloat(data, "last_updated", 0); ts > 0 {
		return int64(ts)
	}
	return nowMillis()
}

func lockErrorCode(err error) string {
	switch err {
	case ErrAlreadyOwned:
		return "AlreadyOwned"
	case ErrNotOwner:
		return "NotOwner"
	case ErrAlreadyPlaced:
		return "AlreadyPlaced"
	case ErrStaleUpdate:
		return "StaleUpdate"
	case ErrSessionNotFound:
		return "SessionNotFound"
	case ErrSyncWriteFailed:
		return "SyncWriteFailed"
	default:
		return "Unknown"
	}
}
