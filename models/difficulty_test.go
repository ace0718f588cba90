package models

import "testing"

func TestGetDifficultyFallback(t *testing.T) {
	if d := GetDifficulty("nope"); d.Key != "medium" {
		t.Errorf("unknown key should fall back to medium, got %s", d.Key)
	}
	if d := GetDifficulty(""); d.Key != "medium" {
		t.Errorf("empty key should fall back to medium, got %s", d.Key)
	}
	if d := GetDifficulty("expert"); d.Key != "expert" || !d.IsHardest {
		t.Errorf("expert lookup broken: %+v", d)
	}
}

func TestTotalPieces(t *testing.T) {
	for _, d := range Difficulties() {
		if d.TotalPieces() != d.GridWidth*d.GridHeight {
			t.Errorf("%s: TotalPieces %d != %d*%d", d.Key, d.TotalPieces(), d.GridWidth, d.GridHeight)
		}
		if d.TotalPieces() <= 0 {
			t.Errorf("%s: zero-piece grid", d.Key)
		}
	}
}
