// Package cachedtime serves a coarse wall clock for hot paths of the data container. While no
// Run context is alive, callers get time.Now.
package cachedtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const resolution = 10 * time.Millisecond

var (
	nowNano atomic.Int64
	ticking atomic.Bool

	mu     sync.Mutex
	owners int
	stop   chan struct{}
)

// Run refreshes the cached clock until ctx ends. Overlapping calls share one ticker, which stops
// only once every caller's ctx has ended.
func Run(ctx context.Context) {
	mu.Lock()
	owners++
	if owners == 1 {
		stop = make(chan struct{})
		nowNano.Store(time.Now().UnixNano())
		ticking.Store(true)
		go tick(stop)
	}
	mu.Unlock()

	go func() {
		<-ctx.Done()
		release()
	}()
}

func release() {
	mu.Lock()
	defer mu.Unlock()
	owners--
	if owners == 0 {
		ticking.Store(false)
		close(stop)
	}
}

func tick(stop <-chan struct{}) {
	t := time.NewTicker(resolution)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case tt := <-t.C:
			nowNano.Store(tt.UnixNano())
		}
	}
}

func running() bool {
	mu.Lock()
	defer mu.Unlock()
	return owners > 0
}

func UnixNano() int64 {
	if !ticking.Load() {
		return time.Now().UnixNano()
	}
	return nowNano.Load()
}

func Now() time.Time { return time.Unix(0, UnixNano()) }

func Since(t time.Time) time.Duration { return Now().Sub(t) }
