package heartbeat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voicebridge/voicebridge/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "shared"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	return st
}

// TestWriteReadRoundTrip: the first beat is written immediately on Start.
func TestWriteReadRoundTrip(t *testing.T) {
	st := newTestStore(t)

	w := NewWriter(st, "desktop", time.Hour)
	w.Start()
	defer w.Stop()

	hb, stale, err := Read(st, time.Minute)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if hb == nil {
		t.Fatal("heartbeat missing after Start")
	}
	if hb.Device != "desktop" {
		t.Errorf("device = %q", hb.Device)
	}
	if stale {
		t.Error("fresh heartbeat read as stale")
	}
}

// TestBeatSwapsAtomically: each beat lands via rename with no temp debris
// left for the sync client to pick up.
func TestBeatSwapsAtomically(t *testing.T) {
	st := newTestStore(t)

	w := NewWriter(st, "desktop", time.Hour)
	w.beat()
	w.beat()

	entries, err := os.ReadDir(st.Dir())
	if err != nil {
		t.Fatalf("read shared dir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != store.HeartbeatFileName {
			t.Fatalf("unexpected file in shared dir: %s", entry.Name())
		}
	}

	hb, _, err := Read(st, time.Hour)
	if err != nil || hb == nil {
		t.Fatalf("Read() = %v, %v", hb, err)
	}
}

// TestReadMissingIsStale: no file means stale, not an error.
func TestReadMissingIsStale(t *testing.T) {
	st := newTestStore(t)

	hb, stale, err := Read(st, time.Minute)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if hb != nil || !stale {
		t.Fatalf("Read() = %+v, stale=%v; want nil, true", hb, stale)
	}
}

// TestReadStaleVerdict: an old beat crosses the threshold.
func TestReadStaleVerdict(t *testing.T) {
	st := newTestStore(t)

	w := NewWriter(st, "desktop", time.Hour)
	w.beat()

	if _, stale, err := Read(st, 0); err != nil || !stale {
		t.Fatalf("Read(staleAfter=0) stale=%v, err=%v; want stale", stale, err)
	}
	if _, stale, err := Read(st, time.Hour); err != nil || stale {
		t.Fatalf("Read(staleAfter=1h) stale=%v, err=%v; want fresh", stale, err)
	}
}
