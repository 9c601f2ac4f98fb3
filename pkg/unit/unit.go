// Package unit assembles the telemetry engine and runs its two lanes: the
// responder answering commands and the sampler pacing itself by the rules.
package unit

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/itohio/gotelem/pkg/calibration"
	"github.com/itohio/gotelem/pkg/observe"
	"github.com/itohio/gotelem/pkg/protocol"
	"github.com/itohio/gotelem/pkg/sampler"
	"github.com/itohio/gotelem/pkg/sensor"
	"github.com/pkg/errors"
)

// Options describes one firmware build and its environment.
type Options struct {
	Version sensor.FirmwareVersion
	Board   sensor.Board
	Slot    calibration.Slot // nil disables persistence
	Policy  sampler.Policy

	Mode        protocol.Mode
	MaxLine     int
	ReadTimeout time.Duration // per sensor read, 0 = unbounded
	RetryDelay  time.Duration // before the single storage retry

	Observer observe.Observer
}

// Unit is an assembled engine.
type Unit struct {
	Registry *sensor.Registry
	Latest   *sensor.Latest
	Store    *calibration.Store

	responder *protocol.Responder
	loop      *sampler.Loop
	boot      calibration.Record
}

// New configures the registry and reads the calibration slot. A slot that
// cannot be read is treated as blank so the unit still comes up; the error is
// returned alongside a usable unit.
func New(opts Options) (*Unit, error) {
	if opts.Board == nil {
		return nil, errors.New("unit needs a board")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, errors.Wrap(err, "sampling policy")
	}
	obs := observe.OrNop(opts.Observer)

	reg := sensor.NewRegistry(opts.Board, obs)
	reg.SetReadTimeout(opts.ReadTimeout)
	if err := reg.Configure(opts.Version); err != nil {
		return nil, err
	}

	u := &Unit{
		Registry: reg,
		Latest:   &sensor.Latest{},
	}

	var bootErr error
	var persister sampler.Persister
	if opts.Slot != nil {
		u.Store = calibration.NewStore(opts.Slot, obs, opts.RetryDelay)
		u.boot, bootErr = u.Store.Init()
		persister = u.Store
	}

	handler := protocol.NewHandler(reg, u.Latest, opts.Mode)
	u.responder = protocol.NewResponder(handler, obs, opts.MaxLine)
	u.loop = sampler.NewLoop(reg, u.Latest, persister, opts.Policy, obs)

	return u, bootErr
}

// Boot returns the calibration record read at start.
func (u *Unit) Boot() calibration.Record {
	return u.boot
}

// Run serves commands on rw and samples in the background until ctx is done
// or the transport fails. The sampler's suspension never delays a response.
func (u *Unit) Run(ctx context.Context, rw io.ReadWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		u.loop.Run(ctx)
	}()

	err := u.responder.Serve(ctx, rw)
	cancel()
	wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
