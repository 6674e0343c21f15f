package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGate(interval time.Duration) (*Gate, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	g := New(interval)
	g.now = clock.now
	return g, clock
}

func TestGate_Allow(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		advances []time.Duration // clock advance before each Allow() call
		want     []bool
	}{
		{
			name:     "first call always allowed",
			interval: time.Second,
			advances: []time.Duration{0},
			want:     []bool{true},
		},
		{
			name:     "second call immediately after is blocked",
			interval: time.Second,
			advances: []time.Duration{0, 0},
			want:     []bool{true, false},
		},
		{
			name:     "call after interval is allowed",
			interval: time.Second,
			advances: []time.Duration{0, 999 * time.Millisecond, time.Millisecond},
			want:     []bool{true, false, true},
		},
		{
			name:     "zero interval never blocks",
			interval: 0,
			advances: []time.Duration{0, 0, 0},
			want:     []bool{true, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, clock := newTestGate(tt.interval)
			for i, d := range tt.advances {
				clock.advance(d)
				if got := g.Allow(); got != tt.want[i] {
					t.Errorf("call %d: Allow() = %v, want %v", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestGate_Flush(t *testing.T) {
	g, clock := newTestGate(time.Second)

	if g.Flush() {
		t.Error("Flush() on fresh gate should be false")
	}

	g.Allow()
	if g.Flush() {
		t.Error("Flush() after a pass should be false")
	}

	g.Allow()
	if !g.Flush() {
		t.Error("Flush() after a refused call should be true")
	}
	if g.Flush() {
		t.Error("Flush() should clear pending state")
	}

	clock.advance(2 * time.Second)
	if !g.Allow() {
		t.Error("Allow() one interval after Flush() should pass")
	}
}

func TestGate_Concurrent(t *testing.T) {
	g := New(time.Hour)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 1 {
		t.Errorf("allowed = %d, want 1", allowed.Load())
	}
}
