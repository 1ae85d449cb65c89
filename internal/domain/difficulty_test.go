package domain

import "testing"

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		in   string
		want Difficulty
	}{
		{"easy", DifficultyEasy},
		{"Medium", DifficultyMedium},
		{"  HARD ", DifficultyHard},
		{"", FallbackDifficulty},
		{"   ", FallbackDifficulty},
		{"Expert", Difficulty("expert")},
	}

	for _, tt := range tests {
		if got := ParseDifficulty(tt.in); got != tt.want {
			t.Errorf("ParseDifficulty(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDifficulty(t *testing.T) {
	t.Run("BaseScore", func(t *testing.T) {
		tests := []struct {
			d    Difficulty
			want float64
		}{
			{DifficultyEasy, 10},
			{DifficultyMedium, 20},
			{DifficultyHard, 30},
			{Difficulty("expert"), 20},
			{Difficulty(""), 20},
		}
		for _, tt := range tests {
			if got := tt.d.BaseScore(); got != tt.want {
				t.Errorf("%q.BaseScore() = %v, want %v", tt.d, got, tt.want)
			}
		}
	})

	t.Run("Known", func(t *testing.T) {
		if !DifficultyHard.Known() {
			t.Error("hard should be known")
		}
		if Difficulty("expert").Known() {
			t.Error("expert should not be known")
		}
	})

	t.Run("Effective", func(t *testing.T) {
		if got := Difficulty("expert").Effective(); got != DifficultyMedium {
			t.Errorf("Effective() = %q, want medium", got)
		}
		if got := DifficultyEasy.Effective(); got != DifficultyEasy {
			t.Errorf("Effective() = %q, want easy", got)
		}
	})
}
