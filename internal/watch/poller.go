package watch

import (
	"context"
	"log"
	"time"
)

// Poller re-runs a scan on a fixed interval. It backstops the push-based
// watchers: sync clients sometimes finish writing without a notification we
// can observe, and a periodic rescan through the same dedup path costs
// little.
type Poller struct {
	name     string
	interval time.Duration
	scan     func()
}

// NewPoller creates a poller around a scan function.
func NewPoller(name string, interval time.Duration, scan func()) *Poller {
	return &Poller{name: name, interval: interval, scan: scan}
}

// Start runs the poll loop until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.scan()
			}
		}
	}()
	log.Printf("%s poller started (every %s)", p.name, p.interval)
}
