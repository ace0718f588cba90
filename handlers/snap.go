// handlers/snap.go - Snap validation for drag-end commits
package handlers

import (
	"math"

	"github.com/mwasobaddy/Puzzle/models"
)

// SnapResult is the outcome of a snap check. Strength is a confidence score
// in [0,1] used for visual feedback upstream (1 = dead on target).
type SnapResult struct {
	IsNear   bool    `json:"is_near"`
	Strength float64 `json:"strength"`
}

// RotationDelta returns the minimal angular distance in degrees between two
// rotations, handling wrap-around (359° vs 1° is 2°, not 358°).
func RotationDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// ValidateSnap decides whether a piece transform is close enough to its
// target to count as placed. Pure and deterministic: the same inputs always
// produce the same result, so replayed or out-of-order commits reconcile to
// the same decision.
//
// A piece snaps iff the Euclidean distance to its target is strictly under
// the difficulty's snap distance and, when rotation is enabled, the rotation
// delta is within tolerance. With rotation disabled the rotation delta is
// treated as zero.
func ValidateSnap(piece *PieceState, x, y, rotation float64, diff models.Difficulty) SnapResult {
	dx := x - piece.TargetX
	dy := y - piece.TargetY
	dist := math.Hypot(dx, dy)

	rotDelta := 0.0
	if diff.RotationEnabled {
		rotDelta = RotationDelta(rotation, piece.TargetRotation)
	}

	isNear := dist < diff.SnapDistance && rotDelta <= diff.RotationTolerance

	strength := 1 - math.Max(dist/diff.SnapDistance, rotDelta/diff.RotationTolerance)
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}

	return SnapResult{IsNear: isNear, Strength: strength}
}
