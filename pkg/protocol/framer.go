package protocol

import "github.com/pkg/errors"

// DefaultMaxLine is the longest command line accepted before it is discarded.
const DefaultMaxLine = 64

// ErrFraming reports a line that could not be delimited, such as an overrun.
var ErrFraming = errors.New("protocol framing")

// Framer splits a byte stream into lines terminated by LF or CR.
// A line longer than the limit is dropped up to the next terminator.
type Framer struct {
	max        int
	buf        []byte
	discarding bool
}

// NewFramer creates a framer accepting lines up to max bytes.
func NewFramer(max int) *Framer {
	if max <= 0 {
		max = DefaultMaxLine
	}
	return &Framer{max: max, buf: make([]byte, 0, max)}
}

// Feed consumes one byte. It returns the completed line when b terminates a
// non-empty line, and ErrFraming once when the current line overflows.
// The returned line is only valid until the next call.
func (f *Framer) Feed(b byte) ([]byte, error) {
	if b == '\n' || b == '\r' {
		line := f.buf
		f.buf = f.buf[:0]
		if f.discarding {
			f.discarding = false
			return nil, nil
		}
		if len(line) == 0 {
			return nil, nil
		}
		return line, nil
	}

	if f.discarding {
		return nil, nil
	}
	if len(f.buf) >= f.max {
		f.buf = f.buf[:0]
		f.discarding = true
		return nil, errors.Wrapf(ErrFraming, "line exceeds %d bytes", f.max)
	}
	f.buf = append(f.buf, b)
	return nil, nil
}

// Pending reports how many bytes of an unterminated line are buffered.
func (f *Framer) Pending() int {
	return len(f.buf)
}
