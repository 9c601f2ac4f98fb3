package sensor

import (
	"sync/atomic"
	"time"
)

// Snapshot is one set of readings taken across all configured bindings.
// Values holds only the bindings that were read successfully; Missing lists
// the rest in declared order.
type Snapshot struct {
	TakenAt time.Time
	Values  map[string]int
	Missing []string
}

// Value returns the reading for id and whether it is present.
func (s Snapshot) Value(id string) (int, bool) {
	v, ok := s.Values[id]
	return v, ok
}

// Latest is the single-writer slot through which the sampling lane publishes
// its most recent snapshot. Readers never block the writer.
type Latest struct {
	p atomic.Pointer[Snapshot]
}

// Store publishes s. Only the sampling lane calls Store.
func (l *Latest) Store(s Snapshot) {
	l.p.Store(&s)
}

// Load returns the most recent snapshot, if any has been published.
func (l *Latest) Load() (Snapshot, bool) {
	s := l.p.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}
