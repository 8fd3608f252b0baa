package connect

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultPollInterval is how often an open authorization window is checked.
const DefaultPollInterval = 200 * time.Millisecond

// ErrPollStopped is returned by Wait when the poller was stopped before the window closed.
var ErrPollStopped = errors.New("window polling stopped")

// Poller is the timer resource held while an authorization window is open.
// It is acquired on entering Connecting and must be stopped on every exit path;
// Stop is idempotent.
type Poller struct {
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	fired    bool
}

// NewPoller creates a poller ticking every interval (DefaultPollInterval if <= 0).
func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Wait checks closed on every tick and returns nil the first time it reports
// true. It returns ctx.Err() if ctx ends first and ErrPollStopped after Stop.
// Closure is reported at most once per Poller; later calls return ErrPollStopped.
func (p *Poller) Wait(ctx context.Context, closed func() bool) error {
	if p.fired {
		return ErrPollStopped
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return ctx.Err()
		case <-p.stop:
			return ErrPollStopped
		case <-ticker.C:
			if closed() {
				p.fired = true
				p.Stop()
				return nil
			}
		}
	}
}

// Stop releases the poller. Any Wait in progress returns ErrPollStopped.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Stopped reports whether Stop has been called.
func (p *Poller) Stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}
