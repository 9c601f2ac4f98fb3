package sensor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind distinguishes analog and digital channels.
type Kind uint8

const (
	Analog Kind = iota
	Digital
)

const (
	// AnalogMax is the top of the 10-bit ADC range.
	AnalogMax = 1023
	// DigitalMax is the high level of a digital input.
	DigitalMax = 1
)

// Channel is an opaque hardware read address such as A0 or D2.
type Channel struct {
	Kind Kind
	Pin  uint8
}

// A and D build analog and digital channel addresses.
func A(pin uint8) Channel { return Channel{Kind: Analog, Pin: pin} }
func D(pin uint8) Channel { return Channel{Kind: Digital, Pin: pin} }

// ParseChannel parses "A<n>" or "D<n>" (case-insensitive prefix).
func ParseChannel(s string) (Channel, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Channel{}, errors.Errorf("invalid channel %q", s)
	}
	var kind Kind
	switch s[0] {
	case 'A', 'a':
		kind = Analog
	case 'D', 'd':
		kind = Digital
	default:
		return Channel{}, errors.Errorf("invalid channel %q: expected A<n> or D<n>", s)
	}
	pin, err := strconv.ParseUint(s[1:], 10, 8)
	if err != nil {
		return Channel{}, errors.Wrapf(err, "invalid channel %q", s)
	}
	return Channel{Kind: kind, Pin: uint8(pin)}, nil
}

func (c Channel) String() string {
	if c.Kind == Digital {
		return fmt.Sprintf("D%d", c.Pin)
	}
	return fmt.Sprintf("A%d", c.Pin)
}

// Max returns the largest raw value the channel can report.
func (c Channel) Max() int {
	if c.Kind == Digital {
		return DigitalMax
	}
	return AnalogMax
}

// MarshalText implements encoding.TextMarshaler so channels read and write as "A0".
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(b []byte) error {
	ch, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = ch
	return nil
}
