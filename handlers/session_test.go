package handlers

import (
	"sort"
	"sync"
	"testing"
)

func setPlaying(t *testing.T, s *Session) {
	t.Helper()
	s.mu.Lock()
	ok := s.setStatusLocked(StatusPlaying)
	s.mu.Unlock()
	if !ok {
		t.Fatal("failed to transition session to playing")
	}
}

func TestStatusTransitions(t *testing.T) {
	alice := newTestPlayer("alice")
	s, cleanup := newTestSession(t, alice, "easy")
	defer cleanup()

	s.mu.Lock()
	defer s.mu.Unlock()

	// waiting can only go to playing
	if s.setStatusLocked(StatusPaused) {
		t.Error("waiting → paused should be rejected")
	}
	if !s.setStatusLocked(StatusPlaying) {
		t.Fatal("waiting → playing should be allowed")
	}

	// playing ⇄ paused
	if !s.setStatusLocked(StatusPaused) {
		t.Error("playing → paused should be allowed")
	}
	if s.setStatusLocked(StatusCompleted) {
		t.Error("paused → completed should be rejected")
	}
	if !s.setStatusLocked(StatusPlaying) {
		t.Error("paused → playing should be allowed")
	}

	// completed is terminal
	if !s.setStatusLocked(StatusCompleted) {
		t.Fatal("playing → completed should be allowed")
	}
	for _, next := range []string{StatusWaiting, StatusPlaying, StatusPaused, StatusCompleted} {
		if s.setStatusLocked(next) {
			t.Errorf("completed → %s should be a no-op", next)
		}
		if s.Status != StatusCompleted {
			t.Fatalf("status left completed: %s", s.Status)
		}
	}
}

func TestProgressMonotonic(t *testing.T) {
	alice := newTestPlayer("alice")
	s, cleanup := newTestSession(t, alice, "easy")
	defer cleanup()
	setPlaying(t, s)

	var mu sync.Mutex
	var seen []int
	unsub := s.Subscribe(SubtreeProgress, func(e Event) {
		if e.Type != "progress_update" {
			return
		}
		mu.Lock()
		seen = append(seen, e.Payload["progress"].(int))
		mu.Unlock()
	})
	defer unsub()

	s.mu.Lock()
	s.PiecesPlaced = 3
	s.mu.Unlock()
	s.recomputeProgress()

	// A lower placed count must not walk progress backwards
	s.mu.Lock()
	s.PiecesPlaced = 2
	s.mu.Unlock()
	s.recomputeProgress()

	// Re-reporting the same count is not an update either
	s.mu.Lock()
	s.PiecesPlaced = 3
	s.mu.Unlock()
	s.recomputeProgress()

	s.mu.Lock()
	s.PiecesPlaced = 6
	s.mu.Unlock()
	s.recomputeProgress()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 progress updates, got %d: %v", len(seen), seen)
	}
	if seen[0] != 25 || seen[1] != 50 {
		t.Errorf("expected progress 25 then 50, got %v", seen)
	}
	if !sort.IntsAreSorted(seen) {
		t.Errorf("progress values not monotonic: %v", seen)
	}
}

func TestFullCompletionExactlyOnce(t *testing.T) {
	alice := newTestPlayer("alice")
	s, cleanup := newTestSession(t, alice, "easy") // 3x4 = 12 pieces
	defer cleanup()
	setPlaying(t, s)

	var mu sync.Mutex
	completed := 0
	unsub := s.Subscribe(SubtreeStatus, func(e Event) {
		if e.Type == "session_completed" {
			mu.Lock()
			completed++
			mu.Unlock()
		}
	})
	defer unsub()

	s.mu.RLock()
	ids := make([]string, 0, len(s.Pieces))
	for id := range s.Pieces {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	base := nowMillis()
	var lastID string
	var lastTX, lastTY float64
	for i, id := range ids {
		s.mu.RLock()
		piece := s.Pieces[id]
		tx, ty := piece.TargetX, piece.TargetY
		s.mu.RUnlock()

		if err := s.AcquirePiece(id, alice.ID); err != nil {
			t.Fatalf("acquire %s failed: %v", id, err)
		}
		if _, err := s.CommitPlacement(alice, id, tx, ty, 0, base+int64(i)); err != nil {
			t.Fatalf("commit %s failed: %v", id, err)
		}
		lastID, lastTX, lastTY = id, tx, ty
	}

	s.mu.RLock()
	if s.Status != StatusCompleted {
		t.Errorf("expected completed status, got %s", s.Status)
	}
	if s.Progress != 100 {
		t.Errorf("expected progress 100, got %d", s.Progress)
	}
	if s.WinnerID != alice.ID {
		t.Errorf("expected winner %s, got %s", alice.ID, s.WinnerID)
	}
	s.mu.RUnlock()

	// A replayed final commit must not complete the session a second time
	if _, err := s.CommitPlacement(alice, lastID, lastTX, lastTY, 0, base+100); err != ErrAlreadyPlaced {
		t.Errorf("expected ErrAlreadyPlaced on replayed final commit, got %v", err)
	}
	s.recomputeProgress()

	mu.Lock()
	defer mu.Unlock()
	if completed != 1 {
		t.Errorf("expected exactly one session_completed event, got %d", completed)
	}
}

func TestHostLeaveTearsDownSession(t *testing.T) {
	host := newTestPlayer("host")
	guest := newTestPlayer("guest")
	s, cleanup := newTestSession(t, host, "easy")
	defer cleanup()

	handleJoinSession(guest, map[string]interface{}{"session_id": s.ID})

	handleLeaveSession(host)

	if _, ok := getSession(s.ID); ok {
		t.Error("session still registered after host left")
	}

	guest.mu.RLock()
	if guest.Session != "" {
		t.Error("guest still attached to a removed session")
	}
	guest.mu.RUnlock()
}

func TestGuestLeaveRemovesOnlyTheirRecord(t *testing.T) {
	host := newTestPlayer("host")
	guest := newTestPlayer("guest")
	s, cleanup := newTestSession(t, host, "easy")
	defer cleanup()

	handleJoinSession(guest, map[string]interface{}{"session_id": s.ID})

	handleLeaveSession(guest)

	if _, ok := getSession(s.ID); !ok {
		t.Fatal("session should survive a guest leaving")
	}

	s.mu.RLock()
	_, stillMember := s.Players[guest.ID]
	hostThere := s.Players[host.ID] != nil
	s.mu.RUnlock()

	if stillMember {
		t.Error("guest record not removed after explicit leave")
	}
	if !hostThere {
		t.Error("host record lost when guest left")
	}
}

func TestGuestDisconnectKeepsRecordAndReleasesLocks(t *testing.T) {
	host := newTestPlayer("host")
	guest := newTestPlayer("guest")
	s, cleanup := newTestSession(t, host, "easy")
	defer cleanup()

	handleJoinSession(guest, map[string]interface{}{"session_id": s.ID})

	pieceID := firstPieceID(s)
	if err := s.AcquirePiece(pieceID, guest.ID); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	handleDisconnect(guest)

	if _, ok := getSession(s.ID); !ok {
		t.Fatal("session should survive a guest disconnect")
	}

	s.mu.RLock()
	member, stillMember := s.Players[guest.ID]
	owner := s.Pieces[pieceID].OwnerID
	s.mu.RUnlock()

	if !stillMember {
		t.Fatal("guest record dropped on abrupt disconnect")
	}
	if owner != "" {
		t.Errorf("piece lock not force-released on disconnect, owner=%s", owner)
	}

	member.mu.RLock()
	online := member.IsOnline
	member.mu.RUnlock()
	if online {
		t.Error("disconnected guest still marked online")
	}
}

func TestRejoinKeepsIdentityAndStats(t *testing.T) {
	host := newTestPlayer("host")
	guest := newTestPlayer("guest")
	s, cleanup := newTestSession(t, host, "easy")
	defer cleanup()

	handleJoinSession(guest, map[string]interface{}{"session_id": s.ID})

	guest.mu.Lock()
	guest.PiecesPlaced = 4
	guest.Misplacements = 2
	guest.mu.Unlock()

	handleDisconnect(guest)

	// A fresh connection presenting the same player id takes over the record
	rejoined := newTestPlayer("guest")
	rejoined.ID = guest.ID
	handleJoinSession(rejoined, map[string]interface{}{"session_id": s.ID})

	s.mu.RLock()
	member := s.Players[guest.ID]
	s.mu.RUnlock()

	if member != rejoined {
		t.Fatal("rejoin did not swap in the new connection")
	}

	member.mu.RLock()
	defer member.mu.RUnlock()
	if !member.IsOnline {
		t.Error("rejoined player not marked online")
	}
	if member.PiecesPlaced != 4 || member.Misplacements != 2 {
		t.Errorf("rejoin lost stats: placed=%d misplacements=%d", member.PiecesPlaced, member.Misplacements)
	}
}

func TestBroadcastAfterGuestDisconnect(t *testing.T) {
	host := newTestPlayer("host")
	guest := newTestPlayer("guest")
	s, cleanup := newTestSession(t, host, "easy")
	defer cleanup()

	handleJoinSession(guest, map[string]interface{}{"session_id": s.ID})

	// Transport cleanup after an abrupt drop: disconnect handling runs but
	// the membership record, send channel included, stays live for rejoin.
	handleDisconnect(guest)

	// Drain whatever the join and presence broadcasts queued
	for len(guest.send) > 0 {
		<-guest.send
	}

	// A session broadcast (the timer tick path) must still be deliverable
	// to the offline member's record without panicking
	s.broadcast(SubtreeTimer, "timer_tick", map[string]interface{}{
		"session_id": s.ID,
		"seconds":    1,
	})

	select {
	case msg := <-guest.send:
		if msg.Type != "timer_tick" {
			t.Errorf("expected timer_tick queued for offline member, got %s", msg.Type)
		}
	default:
		t.Error("broadcast not queued for the offline member's record")
	}
}

func TestStaleConnectionDisconnectAfterRejoin(t *testing.T) {
	host := newTestPlayer("host")
	old := newTestPlayer("guest")
	s, cleanup := newTestSession(t, host, "easy")
	defer cleanup()

	handleJoinSession(old, map[string]interface{}{"session_id": s.ID})

	// Fresh connection with the same player id takes over the slot
	rejoined := newTestPlayer("guest")
	rejoined.ID = old.ID
	handleJoinSession(rejoined, map[string]interface{}{"session_id": s.ID})

	pieceID := firstPieceID(s)
	if err := s.AcquirePiece(pieceID, rejoined.ID); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// The zombie connection's cleanup drains late; it must not touch the
	// live player's presence or locks
	handleDisconnect(old)

	s.mu.RLock()
	member := s.Players[rejoined.ID]
	owner := s.Pieces[pieceID].OwnerID
	s.mu.RUnlock()

	if member != rejoined {
		t.Fatal("stale disconnect displaced the rejoined connection")
	}
	if owner != rejoined.ID {
		t.Errorf("stale disconnect released the live player's lock, owner=%q", owner)
	}

	member.mu.RLock()
	online := member.IsOnline
	member.mu.RUnlock()
	if !online {
		t.Error("stale disconnect marked the live player offline")
	}
}

func TestScatterNeverPreSnapped(t *testing.T) {
	for _, key := range []string{"easy", "medium", "hard", "expert"} {
		host := newTestPlayer("host")
		s, cleanup := newTestSession(t, host, key)

		s.mu.RLock()
		for id, p := range s.Pieces {
			snap := ValidateSnap(p, p.X, p.Y, p.Rotation, s.Difficulty)
			if snap.IsNear {
				t.Errorf("%s: piece %s scattered within snap range of its target (x=%v y=%v)",
					key, id, p.X, p.Y)
			}
		}
		s.mu.RUnlock()

		cleanup()
	}
}

func TestJoinByInviteCode(t *testing.T) {
	host := newTestPlayer("host")
	guest := newTestPlayer("guest")
	s, cleanup := newTestSession(t, host, "easy")
	defer cleanup()

	handleJoinSession(guest, map[string]interface{}{"session_id": s.InviteCode})

	s.mu.RLock()
	_, joined := s.Players[guest.ID]
	s.mu.RUnlock()
	if !joined {
		t.Error("join by invite code failed")
	}
}

func TestSessionFull(t *testing.T) {
	host := newTestPlayer("host")
	s := newSession(host, "easy", "test-puzzle", false, 1)
	mu.Lock()
	sessions[s.ID] = s
	mu.Unlock()
	defer func() {
		mu.Lock()
		delete(sessions, s.ID)
		mu.Unlock()
	}()

	late := newTestPlayer("late")
	handleJoinSession(late, map[string]interface{}{"session_id": s.ID})

	s.mu.RLock()
	_, joined := s.Players[late.ID]
	s.mu.RUnlock()
	if joined {
		t.Error("player joined a full session")
	}

	late.mu.RLock()
	if late.Session != "" {
		t.Error("rejected player left attached to the session")
	}
	late.mu.RUnlock()
}

func TestBuildPieceSetDeterministic(t *testing.T) {
	host1 := newTestPlayer("h1")
	s, cleanup := newTestSession(t, host1, "medium")
	defer cleanup()

	rebuilt := buildPieceSet(s.ID, s.Difficulty)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(rebuilt) != len(s.Pieces) {
		t.Fatalf("piece count mismatch: %d vs %d", len(rebuilt), len(s.Pieces))
	}
	for id, p := range s.Pieces {
		r, ok := rebuilt[id]
		if !ok {
			t.Fatalf("piece %s missing from rebuild", id)
		}
		if r.X != p.X || r.Y != p.Y || r.Rotation != p.Rotation {
			t.Errorf("piece %s scatter differs between builds", id)
		}
	}
}
