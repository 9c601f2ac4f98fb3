// Package observe defines the observability channel every lane reports to.
//
// Nothing reported here is fatal: the sampling and response lanes keep running
// regardless of what an Observer does with the event.
package observe

import "time"

// Observer receives reportable conditions and lifecycle events.
type Observer interface {
	// SensorUnavailable is called when a binding's read did not complete.
	SensorUnavailable(id string, err error)
	// ProtocolFraming is called when a partial line was discarded.
	ProtocolFraming(err error)
	// StorageWrite is called when a calibration write failed after its retry.
	StorageWrite(err error)

	Responded(keys int, latency time.Duration)
	Persisted(value int32, generation uint32)
	DelayChosen(delayMs int)
}

// Nop discards every event.
type Nop struct{}

var _ Observer = Nop{}

func (Nop) SensorUnavailable(string, error) {}
func (Nop) ProtocolFraming(error)           {}
func (Nop) StorageWrite(error)              {}
func (Nop) Responded(int, time.Duration)    {}
func (Nop) Persisted(int32, uint32)         {}
func (Nop) DelayChosen(int)                 {}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}
