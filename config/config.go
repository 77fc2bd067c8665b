// Package config defines the runtime configuration for xconnect: the
// logging and metrics settings and one Backend per managed network,
// each carrying its device access and static port map.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config holds every tuneable for one xconnect process.
type Config struct {
	// ── Sources ──────────────────────────────────────────────────────
	File    string `yaml:"-"` // YAML file, --config / XCONNECT_CONFIG
	EnvFile string `yaml:"-"` // .env file, --env-file

	// ── Output ───────────────────────────────────────────────────────
	Verbose   int    `yaml:"verbose" validate:"gte=0,lte=3"`
	LogFormat string `yaml:"log_format" validate:"oneof=console json"`

	// MetricsAddr, when set, serves Prometheus metrics on /metrics.
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	// Backends maps a network name to the device serving it.
	Backends map[string]*Backend `yaml:"backends" validate:"required,min=1,dive,required"`
}

// Backend is one device connection and the ports it owns.
type Backend struct {
	Vendor    string `yaml:"vendor" validate:"required,oneof=ciena junosex junosmx"`
	Transport string `yaml:"transport" validate:"oneof=ssh tcp"`

	// ── Access ───────────────────────────────────────────────────────
	Host           string `yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port           int    `yaml:"port" validate:"gte=0,lte=65535"`
	User           string `yaml:"user" validate:"required"`
	Password       string `yaml:"password"`
	PromptPassword bool   `yaml:"prompt_password"`
	KeyPath        string `yaml:"key_path"`
	UseAgent       bool   `yaml:"use_agent"`
	StrictHostKey  bool   `yaml:"strict_host_key"`
	KnownHosts     string `yaml:"known_hosts"`
	Fingerprint    string `yaml:"host_key_fingerprint"`

	// ── Timing ───────────────────────────────────────────────────────
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	ConnTimeout  time.Duration `yaml:"connect_timeout" validate:"gt=0"`
	DialAttempts int           `yaml:"dial_attempts" validate:"gte=1,lte=10"`
	CommandRate  float64       `yaml:"command_rate" validate:"gte=0"`

	// ── Vendor options ───────────────────────────────────────────────
	Routers     map[string]string `yaml:"routers" validate:"dive,keys,required,endkeys,ip"`
	VCIDPrefix  string            `yaml:"vc_id_prefix" validate:"omitempty,numeric"`
	EnableQoS   bool              `yaml:"enable_qos"`
	Description string            `yaml:"description"`

	Ports []PortSpec `yaml:"ports" validate:"required,min=1,dive"`
}

// PortSpec is one static topology entry as written in the file.
type PortSpec struct {
	Name      string `yaml:"name" validate:"required,excludes=:"`
	Interface string `yaml:"interface" validate:"required"`

	// Label is the label type the port carries: port (the default),
	// vlan, mpls or otn.  Range optionally restricts its values, in
	// the "1-3,7" form.
	Label string `yaml:"label" validate:"omitempty,oneof=port vlan mpls otn"`
	Range string `yaml:"range"`

	RemoteNetwork string `yaml:"remote_network"`
	RemotePort    string `yaml:"remote_port" validate:"required_with=RemoteNetwork"`
}

// Networks returns the backend names in sorted order.
func (c *Config) Networks() []string {
	names := make([]string, 0, len(c.Backends))
	for n := range c.Backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Backend returns the named backend.  With a single backend configured
// an empty name selects it.
func (c *Config) Backend(network string) (*Backend, string, error) {
	if network == "" {
		if len(c.Backends) == 1 {
			for n, b := range c.Backends {
				return b, n, nil
			}
		}
		return nil, "", fmt.Errorf("--network is required with %d backends configured (%s)",
			len(c.Backends), strings.Join(c.Networks(), ", "))
	}
	b, ok := c.Backends[network]
	if !ok {
		return nil, "", fmt.Errorf("no backend for network %q (have %s)", network, strings.Join(c.Networks(), ", "))
	}
	return b, network, nil
}

// DevicePort returns the configured port or the transport default.
func (b *Backend) DevicePort() int {
	switch {
	case b.Port != 0:
		return b.Port
	case b.Transport == "tcp":
		return DefaultTL1Port
	case b.Vendor == "junosmx":
		return DefaultNetconfPort
	default:
		return DefaultSSHPort
	}
}
