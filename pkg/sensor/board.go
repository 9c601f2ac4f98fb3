package sensor

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrUnavailable marks a binding whose read did not complete.
	ErrUnavailable = errors.New("sensor unavailable")
	// ErrTimeout is the cause when a read exceeded the registry's read timeout.
	ErrTimeout = errors.New("read timed out")
	// ErrOutOfRange is the cause when a read returned a value outside the channel range.
	ErrOutOfRange = errors.New("reading out of range")
	// ErrBusy is the cause while an earlier timed-out read of the channel has not returned.
	ErrBusy = errors.New("previous read still in progress")
)

// UnavailableError reports which binding failed and why.
type UnavailableError struct {
	ID  string
	Err error
}

func (e *UnavailableError) Error() string {
	return "sensor " + e.ID + " unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnavailable) match any UnavailableError.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Reader is the read capability of a single channel.
type Reader interface {
	Read() (int, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func() (int, error)

func (f ReaderFunc) Read() (int, error) { return f() }

// Board hands out read capabilities for channel addresses.
type Board interface {
	Open(ch Channel) (Reader, error)
}

// StaticBoard returns fixed values per channel. It is safe for concurrent use.
type StaticBoard struct {
	mu     sync.RWMutex
	values map[Channel]int
	errs   map[Channel]error
	delay  map[Channel]time.Duration
}

var _ Board = (*StaticBoard)(nil)

// NewStaticBoard creates a board with the given initial values.
func NewStaticBoard(values map[Channel]int) *StaticBoard {
	b := &StaticBoard{
		values: make(map[Channel]int, len(values)),
		errs:   make(map[Channel]error),
		delay:  make(map[Channel]time.Duration),
	}
	for ch, v := range values {
		b.values[ch] = v
	}
	return b
}

// Set changes the value reported for ch and clears any injected failure.
func (b *StaticBoard) Set(ch Channel, v int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[ch] = v
	delete(b.errs, ch)
}

// Fail makes reads of ch return err.
func (b *StaticBoard) Fail(ch Channel, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[ch] = err
}

// Stall makes reads of ch block for d before returning.
func (b *StaticBoard) Stall(ch Channel, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay[ch] = d
}

// Open implements Board. Every channel can be opened; unknown ones read 0.
func (b *StaticBoard) Open(ch Channel) (Reader, error) {
	return ReaderFunc(func() (int, error) {
		b.mu.RLock()
		v, err, d := b.values[ch], b.errs[ch], b.delay[ch]
		b.mu.RUnlock()
		if d > 0 {
			time.Sleep(d)
		}
		if err != nil {
			return 0, err
		}
		return v, nil
	}), nil
}
