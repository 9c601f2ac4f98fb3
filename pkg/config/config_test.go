package config

import (
	"os"
	"testing"
	"time"

	"github.com/itohio/gotelem/pkg/protocol"
	"github.com/itohio/gotelem/pkg/sampler"
	"github.com/itohio/gotelem/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, 1000, cfg.Sampler.DefaultDelayMs)
	assert.Len(t, cfg.Sampler.Rules, 1)
	assert.Equal(t, 5000, cfg.Sampler.Rules[0].DelayMs)
	assert.Equal(t, []string{"temp", "light"}, cfg.Calibration.SumOf)
	require.NoError(t, cfg.Validate())

	v, err := cfg.FirmwareVersion()
	require.NoError(t, err)
	assert.Equal(t, []string{"temp", "light"}, v.IDs())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyGS0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, `
serial:
  port: "/dev/ttyACM0"
  baud_rate: 115200

firmware:
  version: 4
  sensors: [temperature, light]
  bindings:
    - id: humidity
      channel: A2
    - id: door
      channel: D7
  read_timeout: 50ms

protocol:
  respond: latest

sampler:
  default_delay_ms: 2000
  rules:
    - subject: sound
      comparator: ">"
      bound: 600
      delay_ms: 250
    - subject: light
      comparator: "<"
      bound: 100
      delay_ms: 10000

calibration:
  path: /var/lib/unit/slot
  when:
    - subject: humidity
      comparator: ">"
      bound: 80
  sum_of: [humidity]
  retry_delay: 5ms
`))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 50*time.Millisecond, cfg.Firmware.ReadTimeout)

	v, err := cfg.FirmwareVersion()
	require.NoError(t, err)
	assert.Equal(t, 4, v.VersionID)
	assert.Equal(t, []string{"temp", "light", "humidity", "door"}, v.IDs())
	assert.Equal(t, sensor.D(7), v.Bindings[3].Channel)

	mode, err := cfg.ProtocolMode()
	require.NoError(t, err)
	assert.Equal(t, protocol.Latest, mode)

	policy := cfg.Policy()
	assert.Equal(t, 2000, policy.DefaultDelayMs)
	require.Len(t, policy.Rules, 2)
	assert.Equal(t, sampler.GreaterThan, policy.Rules[0].Comparator)
	assert.Equal(t, 250, policy.Rules[0].DelayMs)

	sum, ok := policy.Aggregate(sensor.Snapshot{Values: map[string]int{"humidity": 85}})
	assert.True(t, ok)
	assert.Equal(t, 85, sum)
	assert.Equal(t, "/var/lib/unit/slot", cfg.Calibration.Path)
	assert.Equal(t, 5*time.Millisecond, cfg.Calibration.RetryDelay)
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, "invalid: yaml: content: ["))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "duplicate id", yaml: "firmware:\n  sensors: [temperature]\n  bindings:\n    - id: temp\n      channel: A4\n"},
		{name: "unknown sensor", yaml: "firmware:\n  sensors: [pressure]\n"},
		{name: "bad channel", yaml: "firmware:\n  bindings:\n    - id: x\n      channel: Q1\n"},
		{name: "zero rule delay", yaml: "sampler:\n  rules:\n    - subject: temp\n      comparator: '>'\n      bound: 1\n      delay_ms: 0\n"},
		{name: "negative default delay", yaml: "sampler:\n  default_delay_ms: -1\n"},
		{name: "unknown respond mode", yaml: "protocol:\n  respond: cached\n"},
		{name: "empty persist condition", yaml: "calibration:\n  when: []\n"},
		{name: "bad mock channel", yaml: "mock:\n  channels:\n    Z9: {base: 1}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, tt.yaml))
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoad_PartialYAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, `
serial:
  port: "/dev/ttyACM0"
`))
	require.NoError(t, err)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, 1000, cfg.Sampler.DefaultDelayMs)
	assert.Equal(t, "fresh", cfg.Protocol.Respond)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Firmware.Bindings = []sensor.Binding{{ID: "motion", Channel: sensor.D(2)}}

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	defer os.Remove(tmpfile.Name())

	require.NoError(t, cfg.Save(tmpfile.Name()))

	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, cfg.Sampler.Rules, loaded.Sampler.Rules)
	assert.Equal(t, cfg.Calibration.When, loaded.Calibration.When)
	assert.Equal(t, cfg.Mock.Channels, loaded.Mock.Channels)

	v, err := loaded.FirmwareVersion()
	require.NoError(t, err)
	assert.Equal(t, []string{"temp", "light", "motion"}, v.IDs())
}

func TestMockWaves(t *testing.T) {
	waves, err := Default().MockWaves()
	require.NoError(t, err)
	assert.Contains(t, waves, sensor.A(0))
	assert.Contains(t, waves, sensor.D(2))
}
