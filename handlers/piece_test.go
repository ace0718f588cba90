package handlers

import (
	"testing"
	"time"
)

func newTestPlayer(name string) *Player {
	return &Player{
		ID:         GeneratePlayerID(),
		Username:   name,
		IsGuest:    true,
		IsOnline:   true,
		LastActive: time.Now(),
		send:       make(chan Message, sendBufferSize),
	}
}

// newTestSession creates a registered live session and returns a cleanup
// function that removes it and stops its timer.
func newTestSession(t *testing.T, host *Player, difficulty string) (*Session, func()) {
	t.Helper()

	s := newSession(host, difficulty, "test-puzzle", false, 8)
	mu.Lock()
	sessions[s.ID] = s
	mu.Unlock()

	return s, func() {
		s.stopTimer()
		mu.Lock()
		delete(sessions, s.ID)
		mu.Unlock()
	}
}

func firstPieceID(s *Session) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.Pieces {
		return id
	}
	return ""
}

func TestAcquirePieceConflict(t *testing.T) {
	alice := newTestPlayer("alice")
	bob := newTestPlayer("bob")
	s, cleanup := newTestSession(t, alice, "easy")
	defer cleanup()

	s.mu.Lock()
	s.Players[bob.ID] = bob
	s.mu.Unlock()

	pieceID := firstPieceID(s)

	if err := s.AcquirePiece(pieceID, alice.ID); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := s.AcquirePiece(pieceID, bob.ID); err != ErrAlreadyOwned {
		t.Errorf("expected ErrAlreadyOwned for second acquirer, got %v", err)
	}

	// Re-acquiring a held lock is an idempotent success
	if err := s.AcquirePiece(pieceID, alice.ID); err != nil {
		t.Errorf("re-acquire by owner should succeed, got %v", err)
	}
}

func TestAcquirePieceFromOfflineOwner(t *testing.T) {
	alice := newTestPlayer("alice")
	bob := newTestPlayer("bob")
	s, cleanup := newTestSession(t, alice, "easy")
	defer cleanup()

	s.mu.Lock()
	s.Players[bob.ID] = bob
	s.mu.Unlock()

	pieceID := firstPieceID(s)
	if err := s.AcquirePiece(pieceID, alice.ID); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// Owner drops offline; their lock no longer blocks others
	alice.mu.Lock()
	alice.IsOnline = false
	alice.mu.Unlock()

	if err := s.AcquirePiece(pieceID, bob.ID); err != nil {
		t.Errorf("expected takeover of an offline owner's lock, got %v", err)
	}
}

func TestReleasePieceNotOwner(t *testing.T) {
	alice := newTestPlayer("alice")
	bob := newTestPlayer("bob")
	s, cleanup := newTestSession(t, alice, "easy")
	defer cleanup()

	pieceID := firstPieceID(s)
	if err := s.AcquirePiece(pieceID, alice.ID); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := s.ReleasePiece(pieceID, bob.ID); err != ErrNotOwner {
		t.Errorf("expected ErrNotOwner for non-owner release, got %v", err)
	}

	if err := s.ReleasePiece(pieceID, alice.ID); err != nil {
		t.Errorf("owner release should succeed, got %v", err)
	}

	// Releasing an already-free piece is a refused stale release
	if err := s.ReleasePiece(pieceID, alice.ID); err != ErrNotOwner {
		t.Errorf("expected ErrNotOwner releasing a free piece, got %v", err)
	}
}

func TestForceReleaseLocks(t *testing.T) {
	alice := newTestPlayer("alice")
	s, cleanup := newTestSession(t, alice, "easy")
	defer cleanup()

	var held []string
	s.mu.RLock()
	for id := range s.Pieces {
		held = append(held, id)
		if len(held) == 3 {
			break
		}
	}
	s.mu.RUnlock()

	for _, id := range held {
		if err := s.AcquirePiece(id, alice.ID); err != nil {
			t.Fatalf("acquire %s failed: %v", id, err)
		}
	}

	released := s.ForceReleaseLocks(alice.ID)
	if len(released) != len(held) {
		t.Errorf("expected %d released locks, got %d", len(held), len(released))
	}

	s.mu.RLock()
	for _, id := range held {
		if s.Pieces[id].OwnerID != "" {
			t.Errorf("piece %s still owned after force release", id)
		}
	}
	s.mu.RUnlock()

	if again := s.ForceReleaseLocks(alice.ID); len(again) != 0 {
		t.Errorf("second force release should release nothing, got %d", len(again))
	}
}

func TestApplyPieceMoveLastWriteWins(t *testing.T) {
	alice := newTestPlayer("alice")
	s, cleanup := newTestSession(t, alice, "easy")
	defer cleanup()

	pieceID := firstPieceID(s)
	if err := s.AcquirePiece(pieceID, alice.ID); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	base := nowMillis()
	if err := s.ApplyPieceMove(pieceID, alice.ID, 0.3, 0.3, 0, base+100); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	// An older update loses and must not touch the transform
	if err := s.ApplyPieceMove(pieceID, alice.ID, 0.9, 0.9, 0, base+50); err != ErrStaleUpdate {
		t.Errorf("expected ErrStaleUpdate for older timestamp, got %v", err)
	}

	s.mu.RLock()
	piece := s.Pieces[pieceID]
	if piece.X != 0.3 || piece.Y != 0.3 {
		t.Errorf("stale move modified the transform: x=%v y=%v", piece.X, piece.Y)
	}
	s.mu.RUnlock()

	// Ties go to the arriving write
	if err := s.ApplyPieceMove(pieceID, alice.ID, 0.4, 0.4, 0, base+100); err != nil {
		t.Errorf("equal-timestamp move should win, got %v", err)
	}
}

func TestApplyPieceMoveRequiresOwnership(t *testing.T) {
	alice := newTestPlayer("alice")
	bob := newTestPlayer("bob")
	s, cleanup := newTestSession(t, alice, "easy")
	defer cleanup()

	pieceID := firstPieceID(s)
	if err := s.AcquirePiece(pieceID, alice.ID); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := s.ApplyPieceMove(pieceID, bob.ID, 0.5, 0.5, 0, nowMillis()); err != ErrNotOwner {
		t.Errorf("expected ErrNotOwner for a non-owner move, got %v", err)
	}
}

func TestCommitPlacementSnap(t *testing.T) {
	alice := newTestPlayer("alice")
	s, cleanup := newTestSession(t, alice, "easy")
	defer cleanup()

	pieceID := firstPieceID(s)
	s.mu.RLock()
	target := s.Pieces[pieceID]
	tx, ty := target.TargetX, target.TargetY
	s.mu.RUnlock()

	if err := s.AcquirePiece(pieceID, alice.ID); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	snap, err := s.CommitPlacement(alice, pieceID, tx, ty, 0, nowMillis())
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if !snap.IsNear {
		t.Error("expected a snap when committing at the exact target")
	}

	s.mu.RLock()
	piece := s.Pieces[pieceID]
	if !piece.IsPlaced {
		t.Error("piece not marked placed after snap")
	}
	if piece.OwnerID != "" {
		t.Error("lock not released after placement")
	}
	if piece.X != tx || piece.Y != ty {
		t.Error("placed piece not pinned to target transform")
	}
	if s.PiecesPlaced != 1 {
		t.Errorf("expected 1 placed piece, got %d", s.PiecesPlaced)
	}
	s.mu.RUnlock()

	// A replayed commit for a placed piece reconciles to a no-op
	if err := s.AcquirePiece(pieceID, alice.ID); err != ErrAlreadyPlaced {
		t.Errorf("expected ErrAlreadyPlaced acquiring a placed piece, got %v", err)
	}
	if _, err := s.CommitPlacement(alice, pieceID, tx, ty, 0, nowMillis()); err != ErrAlreadyPlaced {
		t.Errorf("expected ErrAlreadyPlaced on replayed commit, got %v", err)
	}
}

func TestCommitPlacementMiss(t *testing.T) {
	alice := newTestPlayer("alice")
	s, cleanup := newTestSession(t, alice, "easy")
	defer cleanup()

	pieceID := firstPieceID(s)
	if err := s.AcquirePiece(pieceID, alice.ID); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// Commit far from the target: no snap, lock released, counters bump
	snap, err := s.CommitPlacement(alice, pieceID, 5, 5, 0, nowMillis())
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if snap.IsNear {
		t.Error("expected a miss far from the target")
	}

	s.mu.RLock()
	piece := s.Pieces[pieceID]
	if piece.IsPlaced {
		t.Error("missed commit must not mark the piece placed")
	}
	if piece.OwnerID != "" {
		t.Error("lock not released after missed commit")
	}
	if s.Misplacements != 1 {
		t.Errorf("expected 1 session misplacement, got %d", s.Misplacements)
	}
	s.mu.RUnlock()

	alice.mu.RLock()
	if alice.Misplacements != 1 {
		t.Errorf("expected 1 player misplacement, got %d", alice.Misplacements)
	}
	alice.mu.RUnlock()
}
