//go:build tinygo

package main

import (
	"machine"
	"time"

	"github.com/itohio/gotelem/pkg/sensor"
)

const (
	// Firmware build
	VERSION_ID = 3

	// Sampling configuration
	DEFAULT_DELAY_MS = 1000 // Sampling period when no rule matches
	SLOW_DELAY_MS    = 5000 // Sampling period while hot and dark
	HOT_THRESHOLD    = 700  // temp above this is hot
	DARK_THRESHOLD   = 800  // light below this is dark
	READ_TIMEOUT     = 50 * time.Millisecond

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // Converter resolution; Get() is always scaled to 16 bits
	ADC_SHIFT        = 6    // 16-bit Get() down to the 10-bit wire range

	// Calibration storage: the last erase block of the data flash
	RETRY_DELAY = 10 * time.Millisecond

	// Serial configuration
	// Replies are at most ~60 bytes and only sent on request, so 9600 baud is plenty.
	UART_BAUD_RATE = 9600
	UART_POLL      = 2 * time.Millisecond // Idle wait while no byte is buffered

	// Status LED lit while a sensor or the flash is failing
	PIN_STATUS = machine.LED
)

// Analog and digital inputs of this board by channel number.
var (
	analogPins  = map[uint8]machine.Pin{0: machine.A0, 1: machine.A1, 2: machine.A2, 3: machine.A3}
	digitalPins = map[uint8]machine.Pin{2: machine.D2}
)

// firmwareVersion is the sensor set this build ships with.
var firmwareVersion = sensor.FirmwareVersion{
	VersionID: VERSION_ID,
	Bindings: []sensor.Binding{
		{ID: "temp", Channel: sensor.A(0)},
		{ID: "light", Channel: sensor.A(1)},
		{ID: "humidity", Channel: sensor.A(2)},
	},
}
