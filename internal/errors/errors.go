// Package errors provides the error taxonomy for xconnect.
//
// Every failure a setup or teardown can produce falls into one of the
// structured types below.  Resolver and compiler errors (TopologyError,
// CompatibilityError, CompilationError) are raised before any device
// I/O.  Transport and session errors carry the command that was on the
// wire and, when the device answered, its rejection text.
package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrUnknownPort         = errors.New("unknown port")
	ErrInvalidLabel        = errors.New("invalid label")
	ErrUnsupportedShape    = errors.New("unsupported connection shape")
	ErrMissingTopologyData = errors.New("missing topology data")
	ErrInvalidTemplateArgs = errors.New("invalid command arguments")
	ErrTimeout             = errors.New("operation timed out")
	ErrStreamClosed        = errors.New("stream closed")
	ErrExpectationPending  = errors.New("another expectation is outstanding")
	ErrCommandRejected     = errors.New("command rejected")
	ErrPreCheckFailed      = errors.New("existing configuration found")
	ErrCircuitOpen         = errors.New("circuit breaker is open")
	ErrAuthFailed          = errors.New("authentication failed")
	ErrHostKeyMismatch     = errors.New("host key mismatch")
	ErrUnknownVendor       = errors.New("unknown vendor")
)

// ── Resolution and compilation ───────────────────────────────────────

// TopologyError reports a port or peer-network lookup that failed.
type TopologyError struct {
	Port string
	Err  error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("topology: port %q: %v", e.Port, e.Err)
}

func (e *TopologyError) Unwrap() error { return e.Err }

// UnknownPort returns a TopologyError for a port absent from the map.
func UnknownPort(port string) *TopologyError {
	return &TopologyError{Port: port, Err: ErrUnknownPort}
}

// CompatibilityError reports a label that is illegal on a port.
type CompatibilityError struct {
	Port   string
	Label  string // "<type>=<value>"
	Reason string
	Err    error
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("label %s on port %q: %s", e.Label, e.Port, e.Reason)
}

func (e *CompatibilityError) Unwrap() error { return e.Err }

// InvalidLabel returns a CompatibilityError wrapping ErrInvalidLabel.
func InvalidLabel(port, label, reason string) *CompatibilityError {
	return &CompatibilityError{Port: port, Label: label, Reason: reason, Err: ErrInvalidLabel}
}

// CompilationError reports a request the command compiler cannot turn
// into a script.
type CompilationError struct {
	Vendor string
	Detail string
	Err    error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("%s compile: %s: %v", e.Vendor, e.Detail, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// UnsupportedShape returns a CompilationError wrapping ErrUnsupportedShape.
func UnsupportedShape(vendor, detail string) *CompilationError {
	return &CompilationError{Vendor: vendor, Detail: detail, Err: ErrUnsupportedShape}
}

// MissingTopologyData returns a CompilationError wrapping
// ErrMissingTopologyData.
func MissingTopologyData(vendor, detail string) *CompilationError {
	return &CompilationError{Vendor: vendor, Detail: detail, Err: ErrMissingTopologyData}
}

// ── Transport and session ────────────────────────────────────────────

// TransportError represents a failure to reach or talk to a device.
type TransportError struct {
	Op        string // "dial", "write", "session"
	Addr      string
	Err       error
	Retryable bool
}

func (e *TransportError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolTimeoutError is returned when no matching response arrived
// within the session timeout.
type ProtocolTimeoutError struct {
	Command string
	Waited  string
}

func (e *ProtocolTimeoutError) Error() string {
	return fmt.Sprintf("no response to %q within %s", e.Command, e.Waited)
}

func (e *ProtocolTimeoutError) Unwrap() error { return ErrTimeout }

// ProtocolError is returned when the peer closed the stream while a
// request was outstanding.
type ProtocolError struct {
	Command string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stream closed while waiting for %q", e.Command)
	}
	return fmt.Sprintf("stream closed while waiting for %q: %v", e.Command, e.Err)
}

func (e *ProtocolError) Unwrap() []error { return []error{ErrStreamClosed, e.Err} }

// CommandRejectedError carries the device's negative answer.
type CommandRejectedError struct {
	Command string
	Output  []string
}

func (e *CommandRejectedError) Error() string {
	if len(e.Output) == 0 {
		return fmt.Sprintf("command %q rejected", e.Command)
	}
	return fmt.Sprintf("command %q rejected: %s", e.Command, strings.Join(e.Output, " | "))
}

func (e *CommandRejectedError) Unwrap() error { return ErrCommandRejected }

// PartialFailureError wraps a failure that happened after at least one
// command of the script was applied.  The device is left as-is; no
// rollback is attempted.
type PartialFailureError struct {
	Index   int // zero-based position of the failing command
	Total   int
	Command string
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("script aborted at command %d/%d %q (device left partially configured): %v",
		e.Index+1, e.Total, e.Command, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "session", "subsystem"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a TransportError, detecting retryability from the
// underlying error.
func Wrap(op, addr string, err error) *TransportError {
	return &TransportError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.  Only transport
// establishment is ever retried; commands are sent at most once.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return classifyRetryable(err)
}

// BeforeDeviceIO reports whether err was raised before anything was
// sent to the device.
func BeforeDeviceIO(err error) bool {
	var (
		topo *TopologyError
		comp *CompatibilityError
		cerr *CompilationError
	)
	return errors.As(err, &topo) || errors.As(err, &comp) || errors.As(err, &cerr)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Timeout() || opErr.Op == "dial"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Timeout() || dnsErr.IsTemporary
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
