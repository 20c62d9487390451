package backoff_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/xraph/herald/backoff"
)

func TestDelays(t *testing.T) {
	const s = time.Second
	tests := []struct {
		name     string
		strategy backoff.Strategy
		want     map[int]time.Duration // attempt → delay
	}{
		{
			name:     "default is a one minute doubling curve",
			strategy: backoff.DefaultStrategy(),
			want:     map[int]time.Duration{1: 60 * s, 2: 120 * s, 3: 240 * s, 4: 480 * s},
		},
		{
			name:     "constant",
			strategy: backoff.NewConstant(5 * s),
			want:     map[int]time.Duration{1: 5 * s, 4: 5 * s, 50: 5 * s},
		},
		{
			name:     "linear",
			strategy: backoff.NewLinear(s, time.Minute),
			want:     map[int]time.Duration{1: s, 2: 2 * s, 5: 5 * s, 10: 10 * s},
		},
		{
			name:     "linear capped",
			strategy: backoff.NewLinear(s, 5*s),
			want:     map[int]time.Duration{4: 4 * s, 10: 5 * s, 100: 5 * s},
		},
		{
			name:     "exponential capped",
			strategy: backoff.NewExponential(s, 10*s),
			want:     map[int]time.Duration{1: s, 3: 4 * s, 4: 8 * s, 5: 10 * s, 20: 10 * s},
		},
		{
			name:     "attempts below one count as the first retry",
			strategy: backoff.NewExponential(time.Minute, 0),
			want:     map[int]time.Duration{0: time.Minute, -3: time.Minute},
		},
		{
			name:     "uncapped exponential saturates",
			strategy: backoff.NewExponential(time.Minute, 0),
			want:     map[int]time.Duration{500: math.MaxInt64},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for attempt, want := range tt.want {
				if got := tt.strategy.Delay(attempt); got != want {
					t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
				}
			}
		})
	}
}

func TestJitter(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)

	seen := make(map[time.Duration]struct{})
	for attempt := 1; attempt <= 6; attempt++ {
		upper := min(time.Second<<(attempt-1), 10*time.Second)
		for range 100 {
			d := e.Delay(attempt)
			if d < 0 || d > upper {
				t.Fatalf("Delay(%d) = %v, want within [0, %v]", attempt, d, upper)
			}
			seen[d] = struct{}{}
		}
	}
	if len(seen) < 2 {
		t.Error("jitter produced a single value")
	}

	// Saturated bound must not overflow the random draw.
	if d := backoff.NewExponentialWithJitter(time.Hour, 0).Delay(200); d < 0 {
		t.Errorf("saturated jitter = %v", d)
	}
}

func TestStrategyFunc(t *testing.T) {
	var s backoff.Strategy = backoff.StrategyFunc(func(n int) time.Duration {
		return time.Duration(n) * time.Millisecond
	})
	if got := s.Delay(7); got != 7*time.Millisecond {
		t.Errorf("Delay(7) = %v", got)
	}
}

func TestFromName(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"", 3, 4 * time.Second},
		{"exponential", 2, 2 * time.Second},
		{" Constant ", 5, time.Second},
		{"LINEAR", 4, 4 * time.Second},
	}
	for _, tt := range tests {
		s, err := backoff.FromName(tt.name, time.Second)
		if err != nil {
			t.Fatalf("FromName(%q): %v", tt.name, err)
		}
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Errorf("FromName(%q).Delay(%d) = %v, want %v", tt.name, tt.attempt, got, tt.want)
		}
	}

	_, err := backoff.FromName("fibonacci", time.Second)
	if err == nil || !strings.Contains(err.Error(), "constant, exponential, jitter, linear") {
		t.Errorf("err = %v, want the accepted names listed", err)
	}

	s, err := backoff.FromName("exponential", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Delay(1); got != backoff.DefaultBase {
		t.Errorf("zero base Delay(1) = %v, want %v", got, backoff.DefaultBase)
	}
}
