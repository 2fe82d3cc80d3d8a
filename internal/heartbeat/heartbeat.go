package heartbeat

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/types"
)

// Writer periodically drops a liveness record into the shared folder. It is
// one-way and best-effort: the capture device reads it to show online state,
// and staleness never blocks job processing.
type Writer struct {
	store    *store.Store
	device   string
	interval time.Duration
	stopChan chan struct{}
}

// NewWriter creates a heartbeat writer.
func NewWriter(st *store.Store, device string, interval time.Duration) *Writer {
	return &Writer{
		store:    st,
		device:   device,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start writes one beat immediately and then on the configured interval.
func (w *Writer) Start() {
	w.beat()

	ticker := time.NewTicker(w.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				w.beat()
			case <-w.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
	log.Printf("heartbeat started (every %s)", w.interval)
}

// Stop stops the heartbeat loop.
func (w *Writer) Stop() {
	close(w.stopChan)
}

// beat writes the liveness record with the same temp-file-then-rename swap as
// metadata saves, so a sync client never ships a partial heartbeat.
func (w *Writer) beat() {
	hb := types.Heartbeat{
		Timestamp: time.Now().UTC(),
		Device:    w.device,
	}
	data, err := json.Marshal(hb)
	if err != nil {
		log.Printf("heartbeat: %v", err)
		return
	}

	tmp, err := os.CreateTemp(w.store.Dir(), ".heartbeat-*.tmp")
	if err != nil {
		log.Printf("heartbeat: %v", err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		log.Printf("heartbeat: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		log.Printf("heartbeat: %v", err)
		return
	}
	if err := os.Rename(tmpName, w.store.HeartbeatPath()); err != nil {
		os.Remove(tmpName)
		log.Printf("heartbeat: %v", err)
	}
}

// Read loads the current heartbeat and reports whether it is stale. A
// missing file reads as stale with no record; that is informational only.
func Read(st *store.Store, staleAfter time.Duration) (*types.Heartbeat, bool, error) {
	data, err := os.ReadFile(st.HeartbeatPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, true, nil
		}
		return nil, true, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb types.Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, true, fmt.Errorf("parse heartbeat: %w", err)
	}
	return &hb, time.Since(hb.Timestamp) > staleAfter, nil
}
