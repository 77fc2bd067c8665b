// Package metrics exports Prometheus counters and histograms for
// device operations: scripts run, commands sent, dial retries and the
// per-device breaker state.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	xerrors "xconnect/internal/errors"
)

const namespace = "xconnect"

// Collector owns a private registry so tests and embedders never clash
// with the global one.
type Collector struct {
	registry *prometheus.Registry

	scriptsTotal    *prometheus.CounterVec
	scriptDuration  *prometheus.HistogramVec
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	dialRetries     *prometheus.CounterVec
	inFlight        *prometheus.GaugeVec
	breakerState    *prometheus.GaugeVec

	mu           sync.Mutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with its metrics registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Collector{
		registry:  reg,
		startTime: time.Now(),

		scriptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scripts_total",
			Help:      "Setup and teardown scripts run, by outcome",
		}, []string{"device", "kind", "outcome"}),

		scriptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "script_duration_seconds",
			Help:      "Wall time of a script from permit to close",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"device", "kind"}),

		commandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Device commands sent, by structural op and outcome",
		}, []string{"device", "op", "outcome"}),

		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from write to resolved reply",
			Buckets:   prometheus.DefBuckets,
		}, []string{"device"}),

		dialRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_retries_total",
			Help:      "Transport dials repeated after a transient failure",
		}, []string{"device"}),

		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scripts_in_flight",
			Help:      "Scripts holding or waiting for a device permit",
		}, []string{"device"}),

		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Dial circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"device"}),
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ── Recording ────────────────────────────────────────────────────────

// ScriptStarted marks a script as waiting for or holding a permit.
func (c *Collector) ScriptStarted(device string) {
	if c == nil {
		return
	}
	c.inFlight.WithLabelValues(device).Inc()
}

// ScriptDone records a finished script.
func (c *Collector) ScriptDone(device, kind string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.inFlight.WithLabelValues(device).Dec()
	c.scriptsTotal.WithLabelValues(device, kind, Outcome(err)).Inc()
	c.scriptDuration.WithLabelValues(device, kind).Observe(elapsed.Seconds())
	if err != nil {
		c.mu.Lock()
		c.lastError = time.Now()
		c.lastErrorMsg = err.Error()
		c.mu.Unlock()
	}
}

// CommandDone records one command's outcome.
func (c *Collector) CommandDone(device, op string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.commandsTotal.WithLabelValues(device, op, Outcome(err)).Inc()
	c.commandDuration.WithLabelValues(device).Observe(elapsed.Seconds())
}

// DialRetry records a repeated dial.
func (c *Collector) DialRetry(device string) {
	if c == nil {
		return
	}
	c.dialRetries.WithLabelValues(device).Inc()
}

// BreakerState records the breaker state as its numeric value.
func (c *Collector) BreakerState(device string, state int) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(device).Set(float64(state))
}

// Outcome classifies err into a small fixed label set.
func Outcome(err error) string {
	var (
		rejected *xerrors.CommandRejectedError
		timeout  *xerrors.ProtocolTimeoutError
		closed   *xerrors.ProtocolError
		trans    *xerrors.TransportError
		sshErr   *xerrors.SSHError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, xerrors.ErrPreCheckFailed):
		return "precheck"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &closed):
		return "closed"
	case errors.Is(err, xerrors.ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &trans), errors.As(err, &sshErr):
		return "transport"
	default:
		return "error"
	}
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time summary for the CLI.
type Snapshot struct {
	Uptime           string  `json:"uptime"`
	ScriptsOK        float64 `json:"scripts_ok"`
	ScriptsFailed    float64 `json:"scripts_failed"`
	CommandsSent     float64 `json:"commands_sent"`
	DialRetries      float64 `json:"dial_retries"`
	LastError        string  `json:"last_error,omitempty"`
	LastErrorMessage string  `json:"last_error_message,omitempty"`
}

// Snapshot sums the counters across devices.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	s := Snapshot{Uptime: time.Since(c.startTime).Truncate(time.Second).String()}

	families, err := c.registry.Gather()
	if err == nil {
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				v := m.GetCounter().GetValue()
				switch mf.GetName() {
				case namespace + "_scripts_total":
					if outcomeOf(m.GetLabel()) == "ok" {
						s.ScriptsOK += v
					} else {
						s.ScriptsFailed += v
					}
				case namespace + "_commands_total":
					s.CommandsSent += v
				case namespace + "_dial_retries_total":
					s.DialRetries += v
				}
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

func outcomeOf(labels []*dto.LabelPair) string {
	for _, l := range labels {
		if l.GetName() == "outcome" {
			return l.GetValue()
		}
	}
	return ""
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	data, _ := json.MarshalIndent(c.Snapshot(), "", "  ")
	return string(data)
}
