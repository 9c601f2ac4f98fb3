// Package transport opens the serial line the command protocol runs over.
package transport

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate matches the host side of the command protocol.
const DefaultBaudRate = 9600

// Port describes an available serial port.
type Port struct {
	Name        string
	Description string
	USB         bool
}

// Open opens name at baudRate, 8N1 without flow control. A positive
// readTimeout makes Read return periodically with no data.
func Open(name string, baudRate int, readTimeout time.Duration) (serial.Port, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", name)
	}

	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, errors.Wrapf(err, "set read timeout on %s", name)
		}
	}
	return port, nil
}

// Ports returns a list of available serial ports with USB details where
// the platform provides them.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}

	result := make([]Port, 0, len(details))
	for _, d := range details {
		desc := d.Name
		if d.IsUSB {
			desc = strings.TrimSpace(d.Product + " " + d.VID + ":" + d.PID)
		}
		result = append(result, Port{Name: d.Name, Description: desc, USB: d.IsUSB})
	}
	return result, nil
}

// usbHints are description fragments of common microcontroller USB bridges.
var usbHints = []string{"Arduino", "CH340", "CP210", "FTDI", "USB"}

// Detect picks the first port that looks like a microcontroller board.
func Detect(ports []Port) (Port, bool) {
	for _, p := range ports {
		if !p.USB {
			continue
		}
		for _, hint := range usbHints {
			if strings.Contains(p.Description, hint) {
				return p, true
			}
		}
	}
	for _, p := range ports {
		if p.USB {
			return p, true
		}
	}
	return Port{}, false
}
