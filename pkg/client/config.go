package client

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultProbeInterval    = 15 * time.Second
	DefaultProbeTimeout     = 3 * time.Second
)

// Config errors.
var (
	// ErrMissingClientID is returned when no client ID is configured.
	ErrMissingClientID = errors.New("client_id is required")

	// ErrNoTransports is returned when neither the config nor the
	// options provide a transport.
	ErrNoTransports = errors.New("at least one transport is required")
)

// Duration wraps time.Duration so YAML configs can say "5s" or "1m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler. Accepts Go duration
// strings or plain integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// TransportConfig describes one stream transport endpoint.
type TransportConfig struct {
	// Name identifies the transport in logs and snapshots.
	Name string `yaml:"name"`

	// Address is the TCP endpoint, host:port.
	Address string `yaml:"address"`

	// Priority orders transports; lower values are preferred.
	Priority int `yaml:"priority"`
}

// Config is the client configuration. The zero value plus a client ID
// and one transport is usable; all timeouts have defaults.
type Config struct {
	// ClientID identifies this client to the service.
	ClientID string `yaml:"client_id"`

	// DataDir is where the client persists its queue and credentials.
	// Empty means in-memory only.
	DataDir string `yaml:"data_dir"`

	// Transports lists the stream transport endpoints.
	Transports []TransportConfig `yaml:"transports"`

	// PlainEndpoints lists endpoint patterns sent without encryption.
	// Everything else requires an established session.
	PlainEndpoints []string `yaml:"plain_endpoints"`

	// HandshakeTimeout bounds session establishment (default: 10s).
	HandshakeTimeout Duration `yaml:"handshake_timeout"`

	// RequestTimeout bounds a single request (default: 30s).
	RequestTimeout Duration `yaml:"request_timeout"`

	// ProbeInterval is the transport health probe interval
	// (default: 15s).
	ProbeInterval Duration `yaml:"probe_interval"`

	// ProbeTimeout bounds a single health probe (default: 3s). Kept
	// shorter than RequestTimeout so probes detect trouble before
	// user-facing requests pile up on it.
	ProbeTimeout Duration `yaml:"probe_timeout"`

	// LogFile receives structured CBOR events when set.
	LogFile string `yaml:"log_file"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return ErrMissingClientID
	}
	for _, tc := range c.Transports {
		if tc.Name == "" || tc.Address == "" {
			return fmt.Errorf("transport entries require name and address, got %+v", tc)
		}
	}
	return nil
}

// withDefaults fills unset timeouts.
func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = Duration(DefaultHandshakeTimeout)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = Duration(DefaultProbeInterval)
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = Duration(DefaultProbeTimeout)
	}
	return c
}
