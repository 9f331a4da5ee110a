package engine

import "testing"

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{0.4, 0},
		{0.5, 1},
		{1.4, 1},
		{1.5, 2},
		{2.5, 3},
		{109.99, 110},
		{33.0, 33},
		{-0.4, 0},
		{-0.5, -1},
		{-1.5, -2},
	}
	for _, c := range cases {
		if got := roundHalfUp(c.in); got != c.want {
			t.Fatalf("roundHalfUp(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}
