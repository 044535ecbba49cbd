package audit

import (
	"sync"

	"github.com/aegisai/aegis-oss/pkg/domain"
)

// ring is a fixed-size circular buffer of security events with oldest-first
// eviction. Guarded by its own lock so readers never block event recording
// for longer than a copy.
type ring struct {
	mu       sync.RWMutex
	events   []domain.SecurityEvent
	head     int // index of oldest element
	tail     int // index where the next element is inserted
	size     int
	capacity int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &ring{
		events:   make([]domain.SecurityEvent, capacity),
		capacity: capacity,
	}
}

// add inserts an event, evicting the oldest when full. Reports whether an
// eviction happened.
func (r *ring) add(event domain.SecurityEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.tail] = event
	r.tail = (r.tail + 1) % r.capacity

	if r.size < r.capacity {
		r.size++
		return false
	}
	r.head = (r.head + 1) % r.capacity
	return true
}

// all returns every buffered event, oldest first.
func (r *ring) all() []domain.SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SecurityEvent, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.events[(r.head+i)%r.capacity])
	}
	return out
}

// recent returns the n newest events, oldest first. n larger than the buffer
// returns everything.
func (r *ring) recent(n int) []domain.SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n > r.size {
		n = r.size
	}
	out := make([]domain.SecurityEvent, 0, n)
	start := r.size - n
	for i := start; i < r.size; i++ {
		out = append(out, r.events[(r.head+i)%r.capacity])
	}
	return out
}

// fromSequence returns buffered events with Sequence >= seq, oldest first.
func (r *ring) fromSequence(seq uint64) []domain.SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.SecurityEvent
	for i := 0; i < r.size; i++ {
		event := r.events[(r.head+i)%r.capacity]
		if event.Sequence >= seq {
			out = append(out, event)
		}
	}
	return out
}

func (r *ring) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
