// Package sampler picks the sampling cadence from the latest readings and
// runs the sampling lane.
package sampler

import (
	"github.com/itohio/gotelem/pkg/sensor"
	"github.com/pkg/errors"
)

// Comparator is a strict comparison against a bound.
type Comparator uint8

const (
	LessThan Comparator = iota + 1
	GreaterThan
)

func (c Comparator) String() string {
	switch c {
	case LessThan:
		return "<"
	case GreaterThan:
		return ">"
	}
	return "?"
}

// ParseComparator accepts "<", ">", "lt" and "gt".
func ParseComparator(s string) (Comparator, error) {
	switch s {
	case "<", "lt":
		return LessThan, nil
	case ">", "gt":
		return GreaterThan, nil
	}
	return 0, errors.Errorf("unknown comparator %q", s)
}

func (c Comparator) MarshalText() ([]byte, error) {
	if c != LessThan && c != GreaterThan {
		return nil, errors.Errorf("unknown comparator %d", c)
	}
	return []byte(c.String()), nil
}

func (c *Comparator) UnmarshalText(b []byte) error {
	v, err := ParseComparator(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Condition compares one reading against a bound.
type Condition struct {
	Subject    string     `yaml:"subject"`
	Comparator Comparator `yaml:"comparator"`
	Bound      int        `yaml:"bound"`
}

// Holds reports whether the condition is satisfied. A subject missing from
// the snapshot never satisfies it.
func (c Condition) Holds(snap sensor.Snapshot) bool {
	v, ok := snap.Value(c.Subject)
	if !ok {
		return false
	}
	switch c.Comparator {
	case LessThan:
		return v < c.Bound
	case GreaterThan:
		return v > c.Bound
	}
	return false
}

func (c Condition) validate() error {
	if c.Subject == "" {
		return errors.New("condition without subject")
	}
	if c.Comparator != LessThan && c.Comparator != GreaterThan {
		return errors.Errorf("%s: unknown comparator", c.Subject)
	}
	return nil
}

// AllOf returns a predicate that holds when every condition holds.
// An empty list always holds.
func AllOf(conds ...Condition) func(sensor.Snapshot) bool {
	conds = append([]Condition(nil), conds...)
	return func(snap sensor.Snapshot) bool {
		for _, c := range conds {
			if !c.Holds(snap) {
				return false
			}
		}
		return true
	}
}

// ThresholdRule selects DelayMs when its condition and every conjunct in And hold.
type ThresholdRule struct {
	Condition `yaml:",inline"`
	And       []Condition `yaml:"and,omitempty"`
	DelayMs   int         `yaml:"delay_ms"`
}

// Matches reports whether the rule applies to snap.
func (r ThresholdRule) Matches(snap sensor.Snapshot) bool {
	if !r.Condition.Holds(snap) {
		return false
	}
	for _, c := range r.And {
		if !c.Holds(snap) {
			return false
		}
	}
	return true
}

// Validate checks the rule's conditions and that DelayMs is positive.
func (r ThresholdRule) Validate() error {
	if err := r.Condition.validate(); err != nil {
		return err
	}
	for _, c := range r.And {
		if err := c.validate(); err != nil {
			return err
		}
	}
	if r.DelayMs <= 0 {
		return errors.Errorf("%s: delay_ms must be positive, got %d", r.Subject, r.DelayMs)
	}
	return nil
}

// NextDelay returns the DelayMs of the first matching rule in declared order,
// or defaultDelayMs if none match.
func NextDelay(snap sensor.Snapshot, rules []ThresholdRule, defaultDelayMs int) int {
	for _, r := range rules {
		if r.Matches(snap) {
			return r.DelayMs
		}
	}
	return defaultDelayMs
}
