package config

import (
	"fmt"
	"os"
	"time"

	"github.com/itohio/gotelem/pkg/calibration"
	"github.com/itohio/gotelem/pkg/protocol"
	"github.com/itohio/gotelem/pkg/sampler"
	"github.com/itohio/gotelem/pkg/sensor"
	"gopkg.in/yaml.v3"
)

// Config represents the unit configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Firmware    FirmwareConfig    `yaml:"firmware"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Sampler     SamplerConfig     `yaml:"sampler"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"` // Bounds each port read so shutdown is noticed
}

// FirmwareConfig declares the sensor set of this build. Catalog sensors come
// first, followed by explicit bindings.
type FirmwareConfig struct {
	Version     int              `yaml:"version"`
	Sensors     []string         `yaml:"sensors"`
	Bindings    []sensor.Binding `yaml:"bindings"`
	ReadTimeout time.Duration    `yaml:"read_timeout"` // Per-read bound, 0 = unbounded
}

// ProtocolConfig contains command channel parameters.
type ProtocolConfig struct {
	MaxLine int    `yaml:"max_line"`
	Respond string `yaml:"respond"` // "fresh" or "latest"
}

// SamplerConfig contains the adaptive cadence rules.
type SamplerConfig struct {
	DefaultDelayMs int                     `yaml:"default_delay_ms"`
	Rules          []sampler.ThresholdRule `yaml:"rules"`
}

// CalibrationConfig contains the persistence rule and slot location.
type CalibrationConfig struct {
	Path       string              `yaml:"path"`
	When       []sampler.Condition `yaml:"when"`
	SumOf      []string            `yaml:"sum_of"`
	RetryDelay time.Duration       `yaml:"retry_delay"`
}

// MetricsConfig contains the diagnostics HTTP listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MockConfig contains the simulated board, keyed by channel ("A0", "D2").
type MockConfig struct {
	Channels map[string]sensor.Waveform `yaml:"channels"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyGS0", // USB gadget serial on Linux boards
			BaudRate:    9600,
			ReadTimeout: 100 * time.Millisecond,
		},
		Firmware: FirmwareConfig{
			Version: 1,
			Sensors: []string{"temperature", "light"},
		},
		Protocol: ProtocolConfig{
			MaxLine: protocol.DefaultMaxLine,
			Respond: "fresh",
		},
		Sampler: SamplerConfig{
			DefaultDelayMs: 1000,
			Rules: []sampler.ThresholdRule{{
				Condition: sampler.Condition{Subject: "temp", Comparator: sampler.GreaterThan, Bound: 700},
				And:       []sampler.Condition{{Subject: "light", Comparator: sampler.LessThan, Bound: 800}},
				DelayMs:   5000,
			}},
		},
		Calibration: CalibrationConfig{
			Path: "./data/calibration.slot",
			When: []sampler.Condition{
				{Subject: "temp", Comparator: sampler.GreaterThan, Bound: 700},
				{Subject: "light", Comparator: sampler.LessThan, Bound: 800},
			},
			SumOf:      []string{"temp", "light"},
			RetryDelay: calibration.DefaultRetryDelay,
		},
		Metrics: MetricsConfig{
			Addr: ":9110",
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			Channels: map[string]sensor.Waveform{
				"A0": {Base: 640, Amplitude: 120, Period: time.Minute, Noise: 4},
				"A1": {Base: 700, Amplitude: 250, Period: 90 * time.Second, Noise: 6},
				"A2": {Base: 90, Amplitude: 10, Period: 5 * time.Minute, Noise: 1},
				"A3": {Base: 200, Amplitude: 150, Period: 7 * time.Second, Noise: 30},
				"D2": {Base: 400, Amplitude: 300, Period: 30 * time.Second},
			},
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}

	if c.Protocol.MaxLine == 0 {
		c.Protocol.MaxLine = def.Protocol.MaxLine
	}
	if c.Protocol.Respond == "" {
		c.Protocol.Respond = def.Protocol.Respond
	}

	if c.Sampler.DefaultDelayMs == 0 {
		c.Sampler.DefaultDelayMs = def.Sampler.DefaultDelayMs
	}

	if c.Calibration.Path == "" {
		c.Calibration.Path = def.Calibration.Path
	}
	if len(c.Calibration.SumOf) == 0 {
		c.Calibration.SumOf = def.Calibration.SumOf
	}
	if c.Calibration.RetryDelay == 0 {
		c.Calibration.RetryDelay = def.Calibration.RetryDelay
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate checks the configuration for values the unit cannot run with.
func (c *Config) Validate() error {
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}
	if _, err := c.FirmwareVersion(); err != nil {
		return fmt.Errorf("firmware: %w", err)
	}
	if _, err := c.ProtocolMode(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if c.Protocol.MaxLine < 0 {
		return fmt.Errorf("protocol.max_line must not be negative")
	}
	if len(c.Calibration.When) == 0 {
		return fmt.Errorf("calibration.when must hold at least one condition")
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("sampler: %w", err)
	}
	if len(c.Calibration.SumOf) == 0 {
		return fmt.Errorf("calibration.sum_of must name at least one sensor")
	}
	if _, err := c.MockWaves(); err != nil {
		return fmt.Errorf("mock: %w", err)
	}
	return nil
}

// FirmwareVersion assembles the sensor set of this build.
func (c *Config) FirmwareVersion() (sensor.FirmwareVersion, error) {
	v, err := sensor.FromCatalog(c.Firmware.Version, c.Firmware.Sensors...)
	if err != nil {
		return sensor.FirmwareVersion{}, err
	}
	v.Bindings = append(v.Bindings, c.Firmware.Bindings...)
	if err := v.Validate(); err != nil {
		return sensor.FirmwareVersion{}, err
	}
	return v, nil
}

// ProtocolMode maps protocol.respond to a handler mode.
func (c *Config) ProtocolMode() (protocol.Mode, error) {
	switch c.Protocol.Respond {
	case "", "fresh":
		return protocol.Fresh, nil
	case "latest":
		return protocol.Latest, nil
	}
	return 0, fmt.Errorf("unknown respond mode %q", c.Protocol.Respond)
}

// Policy returns the sampling lane policy.
func (c *Config) Policy() sampler.Policy {
	return sampler.Policy{
		Rules:          c.Sampler.Rules,
		DefaultDelayMs: c.Sampler.DefaultDelayMs,
		PersistWhen:    c.Calibration.When,
		Aggregate:      calibration.SumOf(c.Calibration.SumOf...),
	}
}

// MockWaves parses the mock channel addresses.
func (c *Config) MockWaves() (map[sensor.Channel]sensor.Waveform, error) {
	waves := make(map[sensor.Channel]sensor.Waveform, len(c.Mock.Channels))
	for name, w := range c.Mock.Channels {
		ch, err := sensor.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		waves[ch] = w
	}
	return waves, nil
}
