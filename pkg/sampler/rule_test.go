package sampler

import (
	"testing"

	"github.com/itohio/gotelem/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func snap(values map[string]int) sensor.Snapshot {
	return sensor.Snapshot{Values: values}
}

// hotAndDim is the reduced-cadence rule shipped with the default configuration.
var hotAndDim = []ThresholdRule{{
	Condition: Condition{Subject: "temp", Comparator: GreaterThan, Bound: 700},
	And:       []Condition{{Subject: "light", Comparator: LessThan, Bound: 800}},
	DelayMs:   5000,
}}

func TestNextDelay_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]int
		want   int
	}{
		{name: "both on bound", values: map[string]int{"temp": 700, "light": 800}, want: 1000},
		{name: "just past both bounds", values: map[string]int{"temp": 701, "light": 799}, want: 5000},
		{name: "temp on bound", values: map[string]int{"temp": 700, "light": 799}, want: 1000},
		{name: "light on bound", values: map[string]int{"temp": 701, "light": 800}, want: 1000},
		{name: "cool", values: map[string]int{"temp": 500, "light": 100}, want: 1000},
		{name: "light missing", values: map[string]int{"temp": 900}, want: 1000},
		{name: "empty snapshot", values: map[string]int{}, want: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDelay(snap(tt.values), hotAndDim, 1000))
		})
	}
}

func TestNextDelay_FirstMatchWins(t *testing.T) {
	loud := ThresholdRule{Condition: Condition{Subject: "sound", Comparator: GreaterThan, Bound: 600}, DelayMs: 200}
	dark := ThresholdRule{Condition: Condition{Subject: "light", Comparator: LessThan, Bound: 100}, DelayMs: 8000}
	both := snap(map[string]int{"sound": 900, "light": 10})

	assert.Equal(t, 200, NextDelay(both, []ThresholdRule{loud, dark}, 1000))
	assert.Equal(t, 8000, NextDelay(both, []ThresholdRule{dark, loud}, 1000))
	assert.Equal(t, 8000, NextDelay(snap(map[string]int{"sound": 100, "light": 10}), []ThresholdRule{loud, dark}, 1000))
	assert.Equal(t, 1000, NextDelay(snap(map[string]int{"sound": 100, "light": 500}), []ThresholdRule{loud, dark}, 1000))
	assert.Equal(t, 1000, NextDelay(both, nil, 1000))
}

func TestCondition_Holds(t *testing.T) {
	s := snap(map[string]int{"motion": 1, "temp": 10})

	assert.True(t, Condition{Subject: "motion", Comparator: GreaterThan, Bound: 0}.Holds(s))
	assert.False(t, Condition{Subject: "motion", Comparator: LessThan, Bound: 1}.Holds(s))
	assert.True(t, Condition{Subject: "temp", Comparator: LessThan, Bound: 11}.Holds(s))
	assert.False(t, Condition{Subject: "temp", Comparator: LessThan, Bound: 10}.Holds(s))
	assert.False(t, Condition{Subject: "absent", Comparator: LessThan, Bound: 100}.Holds(s))
	assert.False(t, Condition{Subject: "temp"}.Holds(s), "zero comparator never holds")
}

func TestAllOf(t *testing.T) {
	p := AllOf(
		Condition{Subject: "temp", Comparator: GreaterThan, Bound: 700},
		Condition{Subject: "light", Comparator: LessThan, Bound: 800},
	)
	assert.True(t, p(snap(map[string]int{"temp": 720, "light": 750})))
	assert.False(t, p(snap(map[string]int{"temp": 700, "light": 750})))
	assert.False(t, p(snap(map[string]int{"temp": 720})))
	assert.True(t, AllOf()(snap(nil)))
}

func TestThresholdRule_Validate(t *testing.T) {
	good := hotAndDim[0]
	assert.NoError(t, good.Validate())

	zero := good
	zero.DelayMs = 0
	assert.Error(t, zero.Validate())

	negative := good
	negative.DelayMs = -5
	assert.Error(t, negative.Validate())

	noSubject := good
	noSubject.Subject = ""
	assert.Error(t, noSubject.Validate())

	badAnd := good
	badAnd.And = []Condition{{Subject: "light"}}
	assert.Error(t, badAnd.Validate())
}

func TestThresholdRule_YAML(t *testing.T) {
	src := `
- subject: temp
  comparator: ">"
  bound: 700
  and:
    - subject: light
      comparator: lt
      bound: 800
  delay_ms: 5000
`
	var rules []ThresholdRule
	require.NoError(t, yaml.Unmarshal([]byte(src), &rules))
	assert.Equal(t, hotAndDim, rules)

	var bad []ThresholdRule
	assert.Error(t, yaml.Unmarshal([]byte("- subject: temp\n  comparator: '>='\n"), &bad))
}

func TestParseComparator(t *testing.T) {
	for in, want := range map[string]Comparator{"<": LessThan, "lt": LessThan, ">": GreaterThan, "gt": GreaterThan} {
		got, err := ParseComparator(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseComparator("==")
	assert.Error(t, err)
	assert.Equal(t, ">", GreaterThan.String())
}
