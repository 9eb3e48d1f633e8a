package config

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sakateka/mdns-relay/internal/xnetip"
)

type Config config
type config struct {
	// Logging configuration.
	Logging LoggingConfig `yaml:"logging"`
	// Port is the UDP port shared by the receiving socket and every
	// forward target.
	Port uint16 `yaml:"port"`
	// Group is the IPv4 multicast group joined on every configured
	// interface.
	Group netip.Addr `yaml:"group"`
	// ReceiveTimeout bounds a single blocking receive. Expiry is not
	// an error; it is the point where the relay observes shutdown.
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
	// BufferSize is the receive buffer size. Larger datagrams are
	// silently truncated.
	BufferSize datasize.ByteSize `yaml:"buffer_size"`
	// Interfaces is the ordered list of relayed segments.
	Interfaces []InterfaceConfig `yaml:"interfaces"`
}

// LoggingConfig is the configuration for the logging subsystem.
type LoggingConfig struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level"`
}

// InterfaceConfig describes one relayed segment. The segment is given
// either by an OS link name (optionally a glob over link names) to be
// resolved at startup, or by a literal address and netmask.
type InterfaceConfig struct {
	// Name is a link name or glob, e.g. "wg0" or "en*".
	Name string `yaml:"interface"`
	// Address is a literal IPv4 address owned on the segment.
	Address netip.Addr `yaml:"address"`
	// Mask is the dotted-quad segment netmask for a literal address.
	// Defaults to 255.255.255.255 when omitted.
	Mask string `yaml:"mask"`
	// ForwardTo lists retransmission targets: unicast peers or
	// multicast groups.
	ForwardTo []netip.Addr `yaml:"forward_to"`
	// Reverse allows relaying into this segment even when the packet
	// originated from it.
	Reverse bool `yaml:"reverse"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: zapcore.InfoLevel,
		},
		Port:           5353,
		Group:          netip.MustParseAddr("224.0.0.251"),
		ReceiveTimeout: 5 * time.Second,
		BufferSize:     4 * datasize.KB,
	}
}

// LoadConfig loads the configuration from the given path.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}

	return cfg, nil
}

// UnmarshalYAML serves as a proxy for validation.
//
// To avoid infinite recursion, the validating wrapper casts itself to
// the private config struct. This allows the decoder to operate on it
// using the default behavior for handling Go structs without an
// unmarshal method.
func (m *Config) UnmarshalYAML(value *yaml.Node) error {
	if err := value.Decode((*config)(m)); err != nil {
		return err
	}
	return m.Validate()
}

// Validate validates the relay configuration.
func (m *Config) Validate() error {
	if m.Port == 0 {
		return fmt.Errorf("port must be non-zero")
	}
	if !m.Group.Is4() || !m.Group.IsMulticast() {
		return fmt.Errorf("group %s is not an IPv4 multicast address", m.Group)
	}
	if m.ReceiveTimeout <= 0 {
		return fmt.Errorf("receive_timeout must be positive")
	}
	if m.BufferSize == 0 {
		return fmt.Errorf("buffer_size must be non-zero")
	}
	if len(m.Interfaces) == 0 {
		return fmt.Errorf("no interfaces configured")
	}
	for idx := range m.Interfaces {
		if err := m.Interfaces[idx].Validate(); err != nil {
			return fmt.Errorf("interface #%d: %w", idx, err)
		}
	}
	return nil
}

func (m *InterfaceConfig) Validate() error {
	hasName := m.Name != ""
	hasAddr := m.Address.IsValid()
	if hasName == hasAddr {
		return fmt.Errorf("exactly one of %q and %q must be set", "interface", "address")
	}
	if hasAddr && !m.Address.Unmap().Is4() {
		return fmt.Errorf("address %s is not IPv4", m.Address)
	}
	if m.Mask != "" {
		if hasName {
			return fmt.Errorf("mask is only valid together with a literal address")
		}
		if _, err := xnetip.ParseMask(m.Mask); err != nil {
			return err
		}
	}
	if len(m.ForwardTo) == 0 {
		return fmt.Errorf("empty forward_to list")
	}
	for _, target := range m.ForwardTo {
		if !target.Unmap().Is4() {
			return fmt.Errorf("forward target %s is not IPv4", target)
		}
	}
	return nil
}
