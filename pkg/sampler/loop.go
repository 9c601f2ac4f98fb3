package sampler

import (
	"context"
	"time"

	"github.com/itohio/gotelem/pkg/calibration"
	"github.com/itohio/gotelem/pkg/observe"
	"github.com/itohio/gotelem/pkg/sensor"
	"github.com/pkg/errors"
)

// Source takes snapshots.
type Source interface {
	Snapshot() (sensor.Snapshot, error)
}

// Persister conditionally stores an aggregate of a snapshot.
type Persister interface {
	MaybePersist(snap sensor.Snapshot, cond calibration.Predicate, aggregate calibration.Aggregate) (bool, error)
}

// Policy is the cadence and persistence configuration of the sampling lane.
type Policy struct {
	Rules          []ThresholdRule
	DefaultDelayMs int

	PersistWhen []Condition
	Aggregate   calibration.Aggregate
}

// Validate checks every rule and the default delay.
func (p Policy) Validate() error {
	if p.DefaultDelayMs <= 0 {
		return errors.Errorf("default delay must be positive, got %d", p.DefaultDelayMs)
	}
	for i, r := range p.Rules {
		if err := r.Validate(); err != nil {
			return errors.Wrapf(err, "rule %d", i)
		}
	}
	if p.Aggregate != nil && len(p.PersistWhen) == 0 {
		return errors.New("persistence needs at least one condition")
	}
	for i, c := range p.PersistWhen {
		if err := c.validate(); err != nil {
			return errors.Wrapf(err, "persist condition %d", i)
		}
	}
	return nil
}

// Loop is the sampling lane: sample, publish, evaluate the delay, persist,
// then suspend for the delay.
type Loop struct {
	src    Source
	latest *sensor.Latest
	store  Persister
	policy Policy
	cond   calibration.Predicate
	obs    observe.Observer
}

// NewLoop creates the sampling lane. store may be nil to disable persistence;
// a policy without PersistWhen conditions never persists either.
func NewLoop(src Source, latest *sensor.Latest, store Persister, policy Policy, obs observe.Observer) *Loop {
	return &Loop{
		src:    src,
		latest: latest,
		store:  store,
		policy: policy,
		cond:   AllOf(policy.PersistWhen...),
		obs:    observe.OrNop(obs),
	}
}

// Step runs one sampling cycle and returns the delay before the next one.
func (l *Loop) Step() time.Duration {
	delay := l.policy.DefaultDelayMs

	snap, err := l.src.Snapshot()
	if err == nil {
		if l.latest != nil {
			l.latest.Store(snap)
		}
		delay = NextDelay(snap, l.policy.Rules, l.policy.DefaultDelayMs)
		if l.store != nil && l.policy.Aggregate != nil && len(l.policy.PersistWhen) > 0 {
			// Write failures are already reported by the store; the lane carries on.
			_, _ = l.store.MaybePersist(snap, l.cond, l.policy.Aggregate)
		}
	}

	l.obs.DelayChosen(delay)
	return time.Duration(delay) * time.Millisecond
}

// Run cycles until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			timer.Reset(l.Step())
		}
	}
}
