package observe

import (
	"sync"
	"time"
)

// Recorder keeps every event in memory. It is meant for tests and for the
// diagnostics endpoint of hosts without a metrics backend.
type Recorder struct {
	mu sync.Mutex

	Unavailable []string
	Framing     []error
	Storage     []error
	Responses   int
	Persists    []int32
	Delays      []int
}

var _ Observer = (*Recorder)(nil)

func (r *Recorder) SensorUnavailable(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Unavailable = append(r.Unavailable, id)
}

func (r *Recorder) ProtocolFraming(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Framing = append(r.Framing, err)
}

func (r *Recorder) StorageWrite(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Storage = append(r.Storage, err)
}

func (r *Recorder) Responded(keys int, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Responses++
}

func (r *Recorder) Persisted(value int32, generation uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Persists = append(r.Persists, value)
}

func (r *Recorder) DelayChosen(delayMs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Delays = append(r.Delays, delayMs)
}

// Counts returns a consistent copy of the event counters.
func (r *Recorder) Counts() (unavailable, framing, storage, responses, persists, delays int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Unavailable), len(r.Framing), len(r.Storage), r.Responses, len(r.Persists), len(r.Delays)
}

// LastDelay returns the most recent delay, or 0 if none was chosen yet.
func (r *Recorder) LastDelay() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Delays) == 0 {
		return 0
	}
	return r.Delays[len(r.Delays)-1]
}
