package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a yaml-parsable time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the main application configuration.
type Config struct {
	Settings   Settings         `yaml:"settings"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Storage    StorageConfig    `yaml:"storage"`
}

// Settings represents global application settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level, defaulting to info.
func (s Settings) Level() (slog.Level, error) {
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level '%s': %w", s.LogLevel, err)
	}
	return level, nil
}

// InstrumentConfig describes how to reach the lock-in amplifier.
type InstrumentConfig struct {
	Port        string   `yaml:"port"`        // serial device, e.g. /dev/ttyUSB0
	BaudRate    int      `yaml:"baudRate"`    // 0 for the instrument default
	ReadTimeout Duration `yaml:"readTimeout"` // 0 for the default
	GPIB        bool     `yaml:"gpib"`        // instrument listens on GPIB instead of RS232
	Simulate    bool     `yaml:"simulate"`    // run against the built-in simulator
}

func (c InstrumentConfig) Validate() error {
	if !c.Simulate && c.Port == "" {
		return fmt.Errorf("instrument: port is required unless simulating")
	}
	return nil
}

// SweepConfig describes the frequency sweep to run. A start frequency equal
// to the stop frequency degenerates to a single-point measurement.
type SweepConfig struct {
	StartFrequency  float64 `yaml:"startFrequency"` // Hz, high end
	StopFrequency   float64 `yaml:"stopFrequency"`  // Hz, low end
	PointsPerDecade int     `yaml:"pointsPerDecade"`
	Ascending       bool    `yaml:"ascending"`   // sweep low to high
	Tolerance       float64 `yaml:"tolerance"`   // convergence tolerance, percent
	Harmonic        int     `yaml:"harmonic"`    // detection harmonic
	Phase           float64 `yaml:"phase"`       // reference phase offset, degrees
	SineVoltage     float64 `yaml:"sineVoltage"` // drive amplitude, VRMS
}

// StorageConfig represents storage settings.
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
}

const (
	defaultHarmonic    = 1
	defaultSineVoltage = 0.010
	defaultTolerance   = 1.0
)

// LoadConfig reads, fills in defaults for and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if config.Sweep.Harmonic == 0 {
		config.Sweep.Harmonic = defaultHarmonic
	}
	if config.Sweep.SineVoltage == 0 {
		config.Sweep.SineVoltage = defaultSineVoltage
	}
	if config.Sweep.Tolerance == 0 {
		config.Sweep.Tolerance = defaultTolerance
	}

	if err = config.Instrument.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
