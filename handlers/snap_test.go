package handlers

import (
	"math"
	"testing"

	"github.com/mwasobaddy/Puzzle/models"
)

func TestRotationDelta(t *testing.T) {
	cases := []struct {
		a, b, want float64
	}{
		{0, 0, 0},
		{90, 90, 0},
		{359, 1, 2},
		{1, 359, 2},
		{0, 180, 180},
		{350, 10, 20},
		{720, 0, 0},
		{-10, 10, 20},
	}

	for _, c := range cases {
		got := RotationDelta(c.a, c.b)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("RotationDelta(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestValidateSnapDistanceBoundary(t *testing.T) {
	diff := models.GetDifficulty("hard") // snap distance 0.3, rotation on
	piece := &PieceState{TargetX: 0.5, TargetY: 0.5, TargetRotation: 0}

	// Just inside the threshold
	near := ValidateSnap(piece, 0.5+0.29, 0.5, 0, diff)
	if !near.IsNear {
		t.Error("expected snap at distance 0.29 with threshold 0.3")
	}

	// Exactly at the threshold: strictly-less comparison, no snap
	at := ValidateSnap(piece, 0.5+0.3, 0.5, 0, diff)
	if at.IsNear {
		t.Error("expected no snap at exactly the snap distance")
	}

	// Outside
	far := ValidateSnap(piece, 0.5+0.31, 0.5, 0, diff)
	if far.IsNear {
		t.Error("expected no snap at distance 0.31")
	}
}

func TestValidateSnapRotation(t *testing.T) {
	diff := models.GetDifficulty("hard") // rotation enabled, tolerance 15
	piece := &PieceState{TargetX: 0.5, TargetY: 0.5, TargetRotation: 0}

	within := ValidateSnap(piece, 0.5, 0.5, 14, diff)
	if !within.IsNear {
		t.Error("expected snap with rotation delta 14 and tolerance 15")
	}

	// Tolerance is inclusive
	exact := ValidateSnap(piece, 0.5, 0.5, 15, diff)
	if !exact.IsNear {
		t.Error("expected snap with rotation delta exactly at tolerance")
	}

	over := ValidateSnap(piece, 0.5, 0.5, 16, diff)
	if over.IsNear {
		t.Error("expected no snap with rotation delta 16 over tolerance 15")
	}

	// Wrap-around: 359 is 1 degree away from target 0
	wrapped := ValidateSnap(piece, 0.5, 0.5, 359, diff)
	if !wrapped.IsNear {
		t.Error("expected snap with wrapped rotation 359 near target 0")
	}
}

func TestValidateSnapRotationDisabled(t *testing.T) {
	diff := models.GetDifficulty("easy") // rotation disabled
	piece := &PieceState{TargetX: 0.5, TargetY: 0.5, TargetRotation: 0}

	// Any rotation is ignored when the tier has rotation off
	result := ValidateSnap(piece, 0.5, 0.5, 173, diff)
	if !result.IsNear {
		t.Error("expected snap regardless of rotation when rotation is disabled")
	}
}

func TestValidateSnapStrength(t *testing.T) {
	diff := models.GetDifficulty("easy")
	piece := &PieceState{TargetX: 0.5, TargetY: 0.5}

	perfect := ValidateSnap(piece, 0.5, 0.5, 0, diff)
	if perfect.Strength != 1 {
		t.Errorf("expected strength 1 for exact placement, got %v", perfect.Strength)
	}

	// Far away the strength must clamp at zero, not go negative
	miss := ValidateSnap(piece, 5, 5, 0, diff)
	if miss.Strength != 0 {
		t.Errorf("expected strength 0 for a far miss, got %v", miss.Strength)
	}
	if miss.IsNear {
		t.Error("expected no snap for a far miss")
	}
}

func TestValidateSnapDeterministic(t *testing.T) {
	diff := models.GetDifficulty("expert")
	piece := &PieceState{TargetX: 0.25, TargetY: 0.75, TargetRotation: 90}

	first := ValidateSnap(piece, 0.26, 0.74, 95, diff)
	for i := 0; i < 10; i++ {
		again := ValidateSnap(piece, 0.26, 0.74, 95, diff)
		if again != first {
			t.Fatalf("snap validation not deterministic: %+v vs %+v", first, again)
		}
	}
}
