// handlers/errors.go - Error taxonomy for the session engine
package handlers

import "errors"

// Ownership-lock violations are recovered locally: the caller simply does not
// take the action. StaleUpdate is not an error condition for clients; late
// writes are silently discarded per last-write-wins.
var (
	ErrAlreadyOwned    = errors.New("piece is already owned by another player")
	ErrNotOwner        = errors.New("piece is not owned by this player")
	ErrAlreadyPlaced   = errors.New("piece is already placed")
	ErrStaleUpdate     = errors.New("update is older than current state")
	ErrSessionNotFound = errors.New("session not found")
	ErrSyncWriteFailed = errors.New("state write failed")
	ErrPieceNotFound   = errors.New("piece not found")
)
