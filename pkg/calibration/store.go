// Package calibration persists a single calibration aggregate across power
// cycles and rewrites it whenever a sample qualifies.
package calibration

import (
	"bytes"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/itohio/gotelem/pkg/observe"
	"github.com/itohio/gotelem/pkg/sensor"
	"github.com/pkg/errors"
)

// DefaultRetryDelay is the pause before the single write retry.
const DefaultRetryDelay = 10 * time.Millisecond

var (
	// ErrStorageWrite marks a write that failed or could not be verified, after its retry.
	ErrStorageWrite = errors.New("calibration storage write")
	// ErrVerify is the cause when the slot read back differs from what was written.
	ErrVerify = errors.New("read-back mismatch")
	// ErrOverflow is the cause when the aggregate does not fit the slot's int32.
	ErrOverflow = errors.New("does not fit the slot")
)

// Predicate decides whether a snapshot qualifies for persistence.
type Predicate func(sensor.Snapshot) bool

// Aggregate computes the value to persist. ok is false when the snapshot
// lacks an input, in which case nothing is written.
type Aggregate func(sensor.Snapshot) (value int, ok bool)

// SumOf adds the readings of ids.
func SumOf(ids ...string) Aggregate {
	return func(snap sensor.Snapshot) (int, bool) {
		sum := 0
		for _, id := range ids {
			v, ok := snap.Value(id)
			if !ok {
				return 0, false
			}
			sum += v
		}
		return sum, true
	}
}

// Store owns the calibration record and its slot.
type Store struct {
	slot       Slot
	obs        observe.Observer
	retryDelay time.Duration
	now        func() time.Time

	mu      sync.Mutex
	current Record
}

// NewStore creates a store over slot. retryDelay <= 0 selects DefaultRetryDelay.
func NewStore(slot Slot, obs observe.Observer, retryDelay time.Duration) *Store {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Store{
		slot:       slot,
		obs:        observe.OrNop(obs),
		retryDelay: retryDelay,
		now:        time.Now,
	}
}

// Init reads the slot once. A blank or damaged slot yields an invalid record
// with value 0 and no error; only I/O failures are returned.
func (s *Store) Init() (Record, error) {
	b, err := s.slot.Load()
	if err != nil {
		return Record{}, errors.Wrap(err, "load calibration")
	}
	rec := decodeRecord(b)

	s.mu.Lock()
	s.current = rec
	s.mu.Unlock()
	return rec, nil
}

// Current returns the record as last read or written.
func (s *Store) Current() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// MaybePersist writes aggregate(snap) into the slot when cond(snap) holds.
// Every qualifying call rewrites the slot. It returns whether a write landed.
// A failed write is retried once; if that fails too the error wraps
// ErrStorageWrite and is reported to the observer.
func (s *Store) MaybePersist(snap sensor.Snapshot, cond Predicate, aggregate Aggregate) (bool, error) {
	if !cond(snap) {
		return false, nil
	}
	value, ok := aggregate(snap)
	if !ok {
		return false, nil
	}
	if value < math.MinInt32 || value > math.MaxInt32 {
		werr := &writeError{err: errors.Wrapf(ErrOverflow, "aggregate %d", value)}
		s.obs.StorageWrite(werr)
		return false, werr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		Value:      int32(value),
		Generation: s.current.Generation + 1,
		WrittenAt:  s.now(),
		Valid:      true,
	}
	buf := encodeRecord(rec)

	write := func() error {
		if err := s.slot.Save(buf); err != nil {
			return err
		}
		got, err := s.slot.Load()
		if err != nil {
			return err
		}
		if !bytes.Equal(got[:min(len(got), RecordSize)], buf) {
			return ErrVerify
		}
		return nil
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), 1)
	if err := backoff.Retry(write, policy); err != nil {
		werr := &writeError{err: err}
		s.obs.StorageWrite(werr)
		return false, werr
	}

	// The record round-trips through the codec so WrittenAt carries slot precision.
	s.current = decodeRecord(buf)
	s.obs.Persisted(rec.Value, rec.Generation)
	return true, nil
}

type writeError struct{ err error }

func (e *writeError) Error() string        { return ErrStorageWrite.Error() + ": " + e.err.Error() }
func (e *writeError) Unwrap() error        { return e.err }
func (e *writeError) Is(target error) bool { return target == ErrStorageWrite }
