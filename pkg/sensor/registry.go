package sensor

import (
	"sync"
	"time"

	"github.com/itohio/gotelem/pkg/observe"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyConfigured = errors.New("registry already configured")
	ErrNotConfigured     = errors.New("registry not configured")
)

// Registry holds the active firmware version and reads its bindings.
type Registry struct {
	board   Board
	obs     observe.Observer
	timeout time.Duration
	now     func() time.Time

	// mu serializes hardware access; it is held only for the duration of one snapshot.
	mu         sync.Mutex
	version    FirmwareVersion
	caps       []*capability
	configured bool
}

// capability is an opened binding. pending is set while a read that timed out
// is still running; the binding is busy until it returns.
type capability struct {
	rd      Reader
	pending chan readResult
}

type readResult struct {
	v   int
	err error
}

// NewRegistry creates a registry reading through board. A nil observer discards events.
func NewRegistry(board Board, obs observe.Observer) *Registry {
	return &Registry{
		board: board,
		obs:   observe.OrNop(obs),
		now:   time.Now,
	}
}

// SetReadTimeout bounds each capability read. Zero calls readers directly.
// Must be called before the registry is shared between lanes.
func (r *Registry) SetReadTimeout(d time.Duration) {
	r.timeout = d
}

// Configure installs the firmware version. It may be called once.
func (r *Registry) Configure(v FirmwareVersion) error {
	if err := v.Validate(); err != nil {
		return errors.Wrap(err, "configure registry")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.configured {
		return ErrAlreadyConfigured
	}

	caps := make([]*capability, len(v.Bindings))
	for i, b := range v.Bindings {
		rd, err := r.board.Open(b.Channel)
		if err != nil {
			return errors.Wrapf(err, "open %s for %s", b.Channel, b.ID)
		}
		caps[i] = &capability{rd: rd}
	}

	r.version = v.clone()
	r.caps = caps
	r.configured = true
	return nil
}

// Version returns a copy of the active firmware version.
func (r *Registry) Version() FirmwareVersion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version.clone()
}

// Snapshot reads every binding once, in declared order. A failed read leaves
// the binding out of Values and reports it to the observer.
func (r *Registry) Snapshot() (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.configured {
		return Snapshot{}, ErrNotConfigured
	}

	snap := Snapshot{
		TakenAt: r.now(),
		Values:  make(map[string]int, len(r.caps)),
	}
	for i, b := range r.version.Bindings {
		v, err := r.read(r.caps[i], b.Channel)
		if err != nil {
			uerr := &UnavailableError{ID: b.ID, Err: err}
			snap.Missing = append(snap.Missing, b.ID)
			r.obs.SensorUnavailable(b.ID, uerr)
			continue
		}
		snap.Values[b.ID] = v
	}
	return snap, nil
}

func (r *Registry) read(c *capability, ch Channel) (int, error) {
	v, err := r.readWithTimeout(c)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > ch.Max() {
		return 0, errors.Wrapf(ErrOutOfRange, "%s read %d", ch, v)
	}
	return v, nil
}

// readWithTimeout never starts a second read on c while an earlier one is
// still running. The late result of a timed-out read is discarded.
func (r *Registry) readWithTimeout(c *capability) (int, error) {
	if r.timeout <= 0 {
		return c.rd.Read()
	}

	if c.pending != nil {
		select {
		case <-c.pending:
			c.pending = nil
		default:
			return 0, ErrBusy
		}
	}

	done := make(chan readResult, 1)
	go func() {
		v, err := c.rd.Read()
		done <- readResult{v, err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.v, res.err
	case <-timer.C:
		c.pending = done
		return 0, ErrTimeout
	}
}
