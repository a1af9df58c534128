package workflow

import (
	"testing"
	"time"
)

func TestNextBackoff(t *testing.T) {
	initial := 5 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 80 * time.Second},
		{20, 10 * time.Minute},
		{100, 10 * time.Minute},
	}
	for _, c := range cases {
		if got := NextBackoff(initial, c.attempt); got != c.want {
			t.Errorf("NextBackoff(attempt=%d) = %s, want %s", c.attempt, got, c.want)
		}
	}
}
