package rate

import (
	"context"
	"go.uber.org/ratelimit"
)

// Pacer emits at most perSec ticks per second on a buffered channel until ctx ends.
type Pacer struct {
	ch     chan struct{}
	l      ratelimit.Limiter
	perSec int
}

func NewPacer(ctx context.Context, perSec int) *Pacer {
	if perSec < 1 {
		perSec = 1
	}
	burst := perSec / 10
	if burst < 1 {
		burst = 1
	}
	p := &Pacer{
		perSec: perSec,
		ch:     make(chan struct{}, burst),
		l:      ratelimit.New(perSec, ratelimit.WithoutSlack),
	}
	go p.provide(ctx)
	return p
}

func (p *Pacer) provide(ctx context.Context) {
	defer close(p.ch)
	for {
		p.l.Take()
		select {
		case <-ctx.Done():
			return
		case p.ch <- struct{}{}:
		}
	}
}

// Chan is closed once the pacer stops.
func (p *Pacer) Chan() <-chan struct{} { return p.ch }

func (p *Pacer) Rate() int { return p.perSec }

// PerSecond converts an interval into a rate, at least one per second.
func PerSecond(interval int64, unit int64) int {
	if interval <= 0 || interval >= unit {
		return 1
	}
	return int(unit / interval)
}
