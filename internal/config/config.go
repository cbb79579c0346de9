// Package config loads the host-side deployment configuration for a fleet
// of Tasks from a YAML file, grounded on the teacher's Config/LoadConfig
// (config.go): a single top-level struct with one nested struct per
// concern, unmarshaled with gopkg.in/yaml.v3 and then lightly validated.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level deployment configuration: which devices to
// drive, how to reach them, and which optional telemetry sinks to wire up.
type Config struct {
	Units      []UnitConfig     `yaml:"units"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// UnitConfig describes one device to connect to and the sweep plan to run
// on it once initialized.
type UnitConfig struct {
	Name      string  `yaml:"name"`
	IPv4      string  `yaml:"ipv4"`
	Port      int     `yaml:"port"`
	TimeoutMs uint    `yaml:"timeout_ms"`
	Plan      SweepPlan `yaml:"sweep_plan"`
}

// SweepPlan is the declarative shape of a SweepConfig, as read from YAML;
// it is converted into SweepConfig mutator calls by the caller rather than
// embedding avmu types here, keeping this package import-cycle-free and
// plain old data.
type SweepPlan struct {
	HopRate         string        `yaml:"hop_rate"`
	StartMHz        float64       `yaml:"start_mhz"`
	EndMHz          float64       `yaml:"end_mhz"`
	Points          int           `yaml:"points"`
	ExclusionBands  []BandRange   `yaml:"exclusion_bands"`
	Paths           []PathConfig  `yaml:"measured_paths"`
	IfGainDb        *int          `yaml:"if_gain_db"`
	Pad12dB         bool          `yaml:"pad_12db"`
	AttenuationDb   *float64      `yaml:"attenuation_db"`
	EncoderEnabled  bool          `yaml:"encoder_enabled"`
	SerialPortBytes uint          `yaml:"serial_port_bytes"`
	Async           bool          `yaml:"async"`
}

// BandRange is one exclusion band, start/stop in MHz.
type BandRange struct {
	StartMHz float64 `yaml:"start_mhz"`
	StopMHz  float64 `yaml:"stop_mhz"`
}

// PathConfig is one measured (tx, rx) path by switchboard port number.
type PathConfig struct {
	Tx int `yaml:"tx"`
	Rx int `yaml:"rx"`
}

// PrometheusConfig controls the /metrics HTTP exporter.
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig controls the optional sweep-summary telemetry publisher.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`

	TLS struct {
		Enabled    bool   `yaml:"enabled"`
		CACert     string `yaml:"ca_cert"`
		ClientCert string `yaml:"client_cert"`
		ClientKey  string `yaml:"client_key"`
	} `yaml:"tls"`
}

// LoggingConfig controls log verbosity/prefix behavior.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Load reads and parses a YAML deployment configuration file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", filename, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Units) == 0 {
		return fmt.Errorf("config: no units configured")
	}
	seen := make(map[string]bool, len(c.Units))
	for _, u := range c.Units {
		if u.Name == "" {
			return fmt.Errorf("config: unit with empty name")
		}
		if seen[u.Name] {
			return fmt.Errorf("config: duplicate unit name %q", u.Name)
		}
		seen[u.Name] = true
		if u.IPv4 == "" {
			return fmt.Errorf("config: unit %q has no ipv4 address", u.Name)
		}
		if u.Port == 0 {
			return fmt.Errorf("config: unit %q has no port", u.Name)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt enabled but no broker configured")
	}
	return nil
}
