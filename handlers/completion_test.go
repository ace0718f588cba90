package handlers

import (
	"reflect"
	"testing"

	"github.com/mwasobaddy/Puzzle/models"
)

func TestProgressPercent(t *testing.T) {
	cases := []struct {
		placed, total, want int
	}{
		{0, 12, 0},
		{1, 12, 8},
		{2, 12, 17},
		{3, 12, 25},
		{6, 12, 50},
		{11, 12, 92},
		{12, 12, 100},
		{1, 3, 33},
		{2, 3, 67},
		{0, 0, 0}, // degenerate grid must not divide by zero
	}

	for _, c := range cases {
		if got := ProgressPercent(c.placed, c.total); got != c.want {
			t.Errorf("ProgressPercent(%d, %d) = %d, want %d", c.placed, c.total, got, c.want)
		}
	}
}

func TestEvaluateAchievements(t *testing.T) {
	easy := models.GetDifficulty("easy")
	expert := models.GetDifficulty("expert")

	cases := []struct {
		name          string
		elapsed       int
		misplacements int
		diff          models.Difficulty
		want          []string
	}{
		{"fast and clean on easy", 120, 0, easy, []string{models.AchievementSpeed, models.AchievementPrecision}},
		{"slow with misses on easy", 600, 3, easy, []string{}},
		{"exactly at speed threshold", 300, 1, easy, []string{}},
		{"just under speed threshold", 299, 1, easy, []string{models.AchievementSpeed}},
		{"expert tier always grants persistence", 900, 5, expert, []string{models.AchievementPersistence}},
		{"all three at once", 200, 0, expert, []string{models.AchievementSpeed, models.AchievementPrecision, models.AchievementPersistence}},
	}

	for _, c := range cases {
		got := EvaluateAchievements(c.elapsed, c.misplacements, c.diff)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}
