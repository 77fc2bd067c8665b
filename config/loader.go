package config

// loader.go - configuration loading from file, .env and environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables
//   3. .env file  (only keys not already in the environment)
//   4. YAML config file
//   5. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	xerrors "xconnect/internal/errors"
)

// Load builds a Config from path (or XCONNECT_CONFIG, or ./xconnect.yaml
// when present), then overlays envFile and the environment.  The result
// is not validated; callers apply flags first and then call Validate.
func Load(path, envFile string) (*Config, error) {
	env, err := newEnv(envFile)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	cfg.EnvFile = envFile
	cfg.File = path
	if cfg.File == "" {
		cfg.File = env.get("XCONNECT_CONFIG")
	}
	if cfg.File == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			cfg.File = DefaultFile
		}
	}
	if cfg.File != "" {
		f, err := os.Open(cfg.File)
		if err != nil {
			return nil, &xerrors.ConfigError{Field: "config", Value: cfg.File, Message: err.Error(),
				Hint: "pass --config or set XCONNECT_CONFIG"}
		}
		defer f.Close()
		if err := Decode(f, cfg); err != nil {
			return nil, err
		}
	}

	env.overlay(cfg)
	for _, b := range cfg.Backends {
		if b != nil {
			b.applyDefaults()
		}
	}
	return cfg, nil
}

// Decode reads a YAML document into cfg.  Unknown keys are an error so
// that a misspelt option does not silently fall back to its default.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		ce := &xerrors.ConfigError{Field: "config", Message: err.Error()}
		if cfg.File != "" {
			ce.Value = cfg.File
		}
		return ce
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the XCONNECT_ prefix.  Per-backend
// variables insert the upper-cased network name, with anything that is
// not a letter or digit replaced by '_':
//
//	XCONNECT_<NETWORK>_HOST, _PORT, _USER, _PASSWORD, _KEY, _TIMEOUT,
//	XCONNECT_<NETWORK>_STRICT_HOSTKEY
//
// Boolean values accept "1", "true", "yes" (case-insensitive).

type env struct {
	dotenv map[string]string
}

func newEnv(envFile string) (*env, error) {
	e := &env{}
	if envFile == "" {
		return e, nil
	}
	m, err := godotenv.Read(envFile)
	if err != nil {
		return nil, &xerrors.ConfigError{Field: "env-file", Value: envFile, Message: err.Error()}
	}
	e.dotenv = m
	return e, nil
}

// get prefers the process environment over the .env file.
func (e *env) get(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return e.dotenv[key]
}

func (e *env) overlay(cfg *Config) {
	if v := e.int("XCONNECT_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if v := e.get("XCONNECT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := e.get("XCONNECT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	for name, b := range cfg.Backends {
		if b == nil {
			continue
		}
		p := "XCONNECT_" + EnvName(name) + "_"
		if v := e.get(p + "HOST"); v != "" {
			b.Host = v
		}
		if v := e.int(p + "PORT"); v > 0 {
			b.Port = v
		}
		if v := e.get(p + "USER"); v != "" {
			b.User = v
		}
		if v := e.get(p + "PASSWORD"); v != "" {
			b.Password = v
		}
		if v := e.get(p + "KEY"); v != "" {
			b.KeyPath = v
		}
		if v := e.int(p + "TIMEOUT"); v > 0 {
			b.Timeout = secondsDuration(v)
		}
		if e.bool(p + "STRICT_HOSTKEY") {
			b.StrictHostKey = true
		}
	}
}

// EnvName maps a network name onto the environment variable infix.
func EnvName(network string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, network)
}

// ── helpers ──────────────────────────────────────────────────────────

func (e *env) int(key string) int {
	v := e.get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (e *env) bool(key string) bool {
	v := strings.ToLower(e.get(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

// String renders the effective config for --dry-run style output.
// Passwords are masked.
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "log_format=%s verbose=%d", c.LogFormat, c.Verbose)
	if c.MetricsAddr != "" {
		fmt.Fprintf(&sb, " metrics=%s", c.MetricsAddr)
	}
	for _, n := range c.Networks() {
		b := c.Backends[n]
		fmt.Fprintf(&sb, "\n%s: %s %s@%s:%d via %s, %d ports, timeout %s",
			n, b.Vendor, b.User, b.Host, b.DevicePort(), b.Transport, len(b.Ports), b.Timeout)
		if b.Password != "" {
			sb.WriteString(", password set")
		}
	}
	return sb.String()
}
