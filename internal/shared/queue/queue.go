package queue

import "sync"

// Ring is a bounded FIFO. Pushing into a full ring fails instead of blocking.
type Ring[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int
	n          int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) TryPush(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == len(r.buf) {
		return false
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	r.n++
	return true
}

func (r *Ring[T]) TryPop() (v T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return v, false
	}
	v = r.buf[r.tail]
	var zero T
	r.buf[r.tail] = zero
	r.tail = (r.tail + 1) % len(r.buf)
	r.n--
	return v, true
}

func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *Ring[T]) Cap() int { return len(r.buf) }

// Reset drops every queued element.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.head, r.tail, r.n = 0, 0, 0
}

// Items copies the queued elements, oldest first, without dequeuing them.
func (r *Ring[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, 0, r.n)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(r.tail+i)%len(r.buf)])
	}
	return out
}
