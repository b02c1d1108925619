package engine

import "testing"

func TestDecideWinner(t *testing.T) {
	tests := []struct {
		name         string
		rateA, rateB float64
		significance float64
		want         Winner
	}{
		{"a ahead", 9, 5, 0.99, WinnerA},
		{"b ahead", 5, 9, 0.99, WinnerB},
		{"tie goes to b", 7, 7, 0.95, WinnerB},
		{"below threshold", 9, 5, 0.9499, WinnerInconclusive},
		{"at threshold", 9, 5, 0.95, WinnerA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decideWinner(tt.rateA, tt.rateB, tt.significance); got != tt.want {
				t.Errorf("decideWinner(%v, %v, %v) = %s, want %s", tt.rateA, tt.rateB, tt.significance, got, tt.want)
			}
		})
	}
}
