//go:build tinygo

package main

import (
	"time"

	"github.com/itohio/gotelem/pkg/observe"
)

// statusLED lights PIN_STATUS while reads or writes fail and turns it off
// after the next successful response or calibration write.
type statusLED struct{}

var status statusLED

var _ observe.Observer = statusLED{}

func (statusLED) fault() { PIN_STATUS.High() }
func (statusLED) clear() { PIN_STATUS.Low() }

func (s statusLED) SensorUnavailable(string, error) { s.fault() }
func (statusLED) ProtocolFraming(error)             {}
func (s statusLED) StorageWrite(error)              { s.fault() }
func (s statusLED) Responded(keys int, _ time.Duration) {
	if keys == len(firmwareVersion.Bindings) {
		s.clear()
	}
}
func (s statusLED) Persisted(int32, uint32) { s.clear() }
func (statusLED) DelayChosen(int)           {}
