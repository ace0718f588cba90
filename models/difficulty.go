// models/difficulty.go - Difficulty catalog used by the snap validator and
// session setup. Not persisted; the active session stores a snapshot of the
// selected entry so mid-game catalog edits cannot change a running puzzle.
package models

// Difficulty describes one selectable difficulty tier.
type Difficulty struct {
	Key               string  `json:"key"`
	Label             string  `json:"label"`
	GridWidth         int     `json:"grid_width"`
	GridHeight        int     `json:"grid_height"`
	SnapDistance      float64 `json:"snap_distance"`      // in normalized puzzle-plane units
	RotationEnabled   bool    `json:"rotation_enabled"`
	RotationTolerance float64 `json:"rotation_tolerance"` // degrees
	IsHardest         bool    `json:"is_hardest"`
}

// TotalPieces returns the piece count for this grid.
func (d Difficulty) TotalPieces() int {
	return d.GridWidth * d.GridHeight
}

var difficulties = []Difficulty{
	{Key: "easy", Label: "Easy", GridWidth: 3, GridHeight: 4, SnapDistance: 0.5, RotationEnabled: false, RotationTolerance: 15},
	{Key: "medium", Label: "Medium", GridWidth: 4, GridHeight: 6, SnapDistance: 0.4, RotationEnabled: false, RotationTolerance: 15},
	{Key: "hard", Label: "Hard", GridWidth: 6, GridHeight: 8, SnapDistance: 0.3, RotationEnabled: true, RotationTolerance: 15},
	{Key: "expert", Label: "Expert", GridWidth: 8, GridHeight: 12, SnapDistance: 0.25, RotationEnabled: true, RotationTolerance: 10, IsHardest: true},
}

// Difficulties returns the full catalog in display order.
func Difficulties() []Difficulty {
	out := make([]Difficulty, len(difficulties))
	copy(out, difficulties)
	return out
}

// GetDifficulty looks up a difficulty by key, falling back to "medium" for
// unknown keys so a stale client can never produce a zero-piece session.
func GetDifficulty(key string) Difficulty {
	for _, d := range difficulties {
		if d.Key == key {
			return d
		}
	}
	return difficulties[1]
}
