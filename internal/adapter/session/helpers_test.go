package session

import (
	"testing"
	"time"

	"github.com/vertextoedge/download-controller/internal/adapter/filesystem"
	"github.com/vertextoedge/download-controller/internal/domain"
	"go.uber.org/zap"
)

// recorder is an EventSink that forwards events to a channel
type recorder struct {
	ch chan domain.LifecycleEvent
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan domain.LifecycleEvent, 1024)}
}

func (r *recorder) HandleEvent(ev domain.LifecycleEvent) bool {
	r.ch <- ev
	return true
}

// waitFor collects event kinds until kind arrives
func (r *recorder) waitFor(t *testing.T, kind domain.EventKind) []domain.EventKind {
	t.Helper()
	var seen []domain.EventKind
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			seen = append(seen, ev.Kind)
			if ev.Kind == kind {
				return seen
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, saw %v", kind, seen)
		}
	}
}

func newTestManager(t *testing.T, cfg *Config) (*Manager, *filesystem.Manager) {
	t.Helper()
	fs, err := filesystem.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem.NewManager() error = %v", err)
	}
	if cfg == nil {
		cfg = &Config{ClientID: "test"}
	}
	m := NewManager(cfg, fs, zap.NewNop())
	t.Cleanup(func() { m.Close() })
	return m, fs
}

// withoutProgress drops Progress kinds, which depend on read chunking
func withoutProgress(kinds []domain.EventKind) []domain.EventKind {
	var out []domain.EventKind
	for _, k := range kinds {
		if k != domain.KindProgress {
			out = append(out, k)
		}
	}
	return out
}

func equalKinds(a, b []domain.EventKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
