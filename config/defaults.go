package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across the config file, environment variables and CLI flags.

const (
	// DefaultSSHPort is the standard SSH port, used for CLI and TL1
	// shells.
	DefaultSSHPort = 22

	// DefaultNetconfPort is the IANA NETCONF-over-SSH port.
	DefaultNetconfPort = 830

	// DefaultTL1Port is the raw TL1 port on Ciena gateways.
	DefaultTL1Port = 10201

	// DefaultTimeout bounds the wait for each device answer.
	DefaultTimeout = 30 * time.Second

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultDialAttempts is how many times a transient dial failure
	// is tried before giving up.
	DefaultDialAttempts = 3

	// DefaultLogFormat is the zap encoder used for log output.
	DefaultLogFormat = "console"

	// DefaultFile is read when no --config is given and it exists.
	DefaultFile = "xconnect.yaml"
)

// Defaults returns a Config with every process-wide default applied.
func Defaults() *Config {
	return &Config{
		LogFormat: DefaultLogFormat,
		Backends:  map[string]*Backend{},
	}
}

// applyDefaults fills the zero fields of b.
func (b *Backend) applyDefaults() {
	if b.Transport == "" {
		b.Transport = "ssh"
	}
	if b.Timeout == 0 {
		b.Timeout = DefaultTimeout
	}
	if b.ConnTimeout == 0 {
		b.ConnTimeout = DefaultConnTimeout
	}
	if b.DialAttempts == 0 {
		b.DialAttempts = DefaultDialAttempts
	}
}
