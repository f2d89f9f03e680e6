// Package config holds the node configuration. Values are compiled into the
// binary: defaults live in Default and the device document is embedded at
// build time, so the node reads no files, flags or environment at runtime.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed node.yaml
var embedded []byte

// Config is the immutable configuration built once at boot.
type Config struct {
	WiFi      WiFiConfig      `yaml:"wifi"`
	Broker    BrokerConfig    `yaml:"broker"`
	Bin       BinConfig       `yaml:"bin"`
	Lid       LidConfig       `yaml:"lid"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Peer      PeerConfig      `yaml:"peer"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	LogLevel  string          `yaml:"log_level"`
}

// WiFiConfig contains the wireless association parameters.
type WiFiConfig struct {
	SSID         string        `yaml:"ssid"`
	PSK          string        `yaml:"psk"`
	Interface    string        `yaml:"interface"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// BrokerConfig contains the MQTT endpoint and reconnect policy.
type BrokerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ClientIDPrefix string        `yaml:"client_id_prefix"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	Attempts       int           `yaml:"attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// BinConfig is the bin geometry.
type BinConfig struct {
	HeightCM       float64 `yaml:"height_cm"`
	DefaultFillPct float64 `yaml:"default_fill_pct"`
}

// LidConfig tunes the lid state machine.
type LidConfig struct {
	ThresholdCM    float64       `yaml:"threshold_cm"`
	Samples        int           `yaml:"samples"`
	SampleDelay    time.Duration `yaml:"sample_delay"`
	TransitionHold time.Duration `yaml:"transition_hold"`
}

// SensorConfig is one ultrasonic module.
type SensorConfig struct {
	TriggerPin  string        `yaml:"trigger_pin"`
	EchoPin     string        `yaml:"echo_pin"`
	EchoTimeout time.Duration `yaml:"echo_timeout"`
}

// SensorsConfig holds both modules and the shared validity window.
type SensorsConfig struct {
	Fill      SensorConfig `yaml:"fill"`
	Proximity SensorConfig `yaml:"proximity"`
	MinCM     float64      `yaml:"min_cm"`
	MaxCM     float64      `yaml:"max_cm"`
}

// ScheduleConfig contains the cadence of the control loop.
type ScheduleConfig struct {
	FillInterval      time.Duration `yaml:"fill_interval"`
	ProximityInterval time.Duration `yaml:"proximity_interval"`
}

// PeerConfig is the serial link to the lid actuator.
type PeerConfig struct {
	Port      string        `yaml:"port"`
	BaudRate  int           `yaml:"baud_rate"`
	BootDelay time.Duration `yaml:"boot_delay"`
}

// IndicatorConfig is the status LED, high while the lid is open.
type IndicatorConfig struct {
	Pin string `yaml:"pin"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		WiFi: WiFiConfig{
			SSID:         "smartbin",
			PSK:          "",
			Interface:    "wlan0",
			PollInterval: 500 * time.Millisecond,
		},
		Broker: BrokerConfig{
			Host:           "broker.hivemq.com",
			Port:           1883,
			ClientIDPrefix: "smartbin_017",
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 5 * time.Second,
			PublishTimeout: 2 * time.Second,
			Attempts:       3,
			RetryDelay:     2 * time.Second,
		},
		Bin: BinConfig{
			HeightCM:       42,
			DefaultFillPct: 20,
		},
		Lid: LidConfig{
			ThresholdCM:    50,
			Samples:        3,
			SampleDelay:    10 * time.Millisecond,
			TransitionHold: 100 * time.Millisecond,
		},
		Sensors: SensorsConfig{
			Fill:      SensorConfig{TriggerPin: "19", EchoPin: "23", EchoTimeout: 30 * time.Millisecond},
			Proximity: SensorConfig{TriggerPin: "5", EchoPin: "2", EchoTimeout: 15 * time.Millisecond},
			MinCM:     0.5,
			MaxCM:     400,
		},
		Schedule: ScheduleConfig{
			FillInterval:      10 * time.Second,
			ProximityInterval: 200 * time.Millisecond,
		},
		Peer: PeerConfig{
			Port:      "/dev/ttyS0",
			BaudRate:  9600,
			BootDelay: 2 * time.Second,
		},
		Indicator: IndicatorConfig{Pin: "22"},
		LogLevel:  "info",
	}
}

// Embedded returns the configuration compiled into the binary.
func Embedded() (*Config, error) {
	return Parse(embedded)
}

// Parse overlays a YAML document on the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ensureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a YAML file for host tooling. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// ensureDefaults back-fills fields a document zeroed out.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.WiFi.Interface == "" {
		c.WiFi.Interface = def.WiFi.Interface
	}
	if c.WiFi.PollInterval == 0 {
		c.WiFi.PollInterval = def.WiFi.PollInterval
	}
	if c.Broker.Host == "" {
		c.Broker.Host = def.Broker.Host
	}
	if c.Broker.Port == 0 {
		c.Broker.Port = def.Broker.Port
	}
	if c.Broker.KeepAlive == 0 {
		c.Broker.KeepAlive = def.Broker.KeepAlive
	}
	if c.Broker.ConnectTimeout == 0 {
		c.Broker.ConnectTimeout = def.Broker.ConnectTimeout
	}
	if c.Broker.PublishTimeout == 0 {
		c.Broker.PublishTimeout = def.Broker.PublishTimeout
	}
	if c.Broker.Attempts == 0 {
		c.Broker.Attempts = def.Broker.Attempts
	}
	if c.Lid.Samples == 0 {
		c.Lid.Samples = def.Lid.Samples
	}
	if c.Sensors.MaxCM == 0 {
		c.Sensors.MaxCM = def.Sensors.MaxCM
	}
	if c.Peer.BaudRate == 0 {
		c.Peer.BaudRate = def.Peer.BaudRate
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Validate rejects configurations the control loop cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Bin.HeightCM <= 0 {
		errs = append(errs, errors.New("bin.height_cm must be positive"))
	}
	if c.Bin.DefaultFillPct < 0 || c.Bin.DefaultFillPct > 100 {
		errs = append(errs, errors.New("bin.default_fill_pct must be within [0, 100]"))
	}
	if c.Lid.ThresholdCM <= 0 {
		errs = append(errs, errors.New("lid.threshold_cm must be positive"))
	}
	if c.Lid.Samples < 1 {
		errs = append(errs, errors.New("lid.samples must be at least 1"))
	}
	if c.Schedule.FillInterval <= 0 || c.Schedule.ProximityInterval <= 0 {
		errs = append(errs, errors.New("schedule intervals must be positive"))
	}
	if c.Sensors.MinCM < 0 || c.Sensors.MinCM >= c.Sensors.MaxCM {
		errs = append(errs, fmt.Errorf("sensors: invalid range [%g, %g]", c.Sensors.MinCM, c.Sensors.MaxCM))
	}
	if c.Sensors.Fill.EchoTimeout <= 0 || c.Sensors.Proximity.EchoTimeout <= 0 {
		errs = append(errs, errors.New("sensors: echo timeouts must be positive"))
	}
	if c.Broker.RetryDelay <= 0 {
		errs = append(errs, errors.New("broker.retry_delay must be positive"))
	}
	if c.Lid.SampleDelay <= 0 || c.Lid.TransitionHold <= 0 {
		errs = append(errs, errors.New("lid: sample_delay and transition_hold must be positive"))
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		errs = append(errs, fmt.Errorf("broker.port %d out of range", c.Broker.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
