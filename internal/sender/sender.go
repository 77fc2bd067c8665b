// Package sender drives compiled scripts against one device.
//
// A Sender owns the device's single permit.  Every setup or teardown
// takes the permit, opens a fresh session, runs the pre-checks, the
// script and the dialect's commit sequence in order, and always closes
// the session and releases the permit before returning.  The first
// failure ends the operation.  Nothing written to the device is ever
// retried; only opening the transport is.
package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"xconnect/internal/command"
	xerrors "xconnect/internal/errors"
	"xconnect/internal/metrics"
	"xconnect/internal/retry"
	"xconnect/internal/session"
	"xconnect/internal/transport"
	"xconnect/util"
)

// Kind labels an operation in logs and metrics.
type Kind string

const (
	Setup    Kind = "setup"
	Teardown Kind = "teardown"
)

// Config tunes one device's sender.
type Config struct {
	// Device names the device in logs and metrics.
	Device string

	// Timeout bounds every expectation on the session.  Required.
	Timeout time.Duration

	// DialAttempts is the number of tries to open the transport.
	// Default 1.
	DialAttempts int

	// DialDelay is the wait before the first dial retry.  Default
	// 500ms, doubling per attempt.
	DialDelay time.Duration

	// CommandRate paces script commands per second.  Zero disables
	// pacing.
	CommandRate float64

	// Breaker configures the dial circuit breaker.  Nil uses
	// retry.DefaultCircuitBreakerConfig.
	Breaker *retry.CircuitBreakerConfig
}

// Sender serializes operations against one device.
type Sender struct {
	dialer  transport.Dialer
	service transport.Service
	cfg     Config

	permit  *semaphore.Weighted
	breaker *retry.CircuitBreaker
	backoff *retry.Backoff
	limiter *rate.Limiter

	metrics *metrics.Collector
	log     *util.Logger
}

// New returns a Sender for the device behind dialer.  m may be nil.
func New(dialer transport.Dialer, svc transport.Service, cfg Config, m *metrics.Collector, logger *util.Logger) (*Sender, error) {
	if cfg.Timeout <= 0 {
		return nil, &xerrors.ConfigError{
			Field:   "timeout",
			Value:   cfg.Timeout,
			Message: "must be positive",
			Hint:    "set a per-command timeout for " + cfg.Device,
		}
	}
	if cfg.Device == "" {
		cfg.Device = dialer.Addr()
	}
	if logger == nil {
		logger = util.Nop()
	}

	s := &Sender{
		dialer:  dialer,
		service: svc,
		cfg:     cfg,
		permit:  semaphore.NewWeighted(1),
		backoff: retry.DialBackoff(cfg.DialAttempts),
		metrics: m,
		log:     logger.With("device", cfg.Device),
	}

	bcfg := retry.DefaultCircuitBreakerConfig()
	if cfg.Breaker != nil {
		c := *cfg.Breaker
		bcfg = &c
	}
	next := bcfg.OnStateChange
	bcfg.OnStateChange = func(from, to retry.State) {
		s.log.Warn("dial breaker %s -> %s", from, to)
		m.BreakerState(cfg.Device, int(to))
		if next != nil {
			next(from, to)
		}
	}
	s.breaker = retry.NewCircuitBreaker(bcfg)

	if cfg.DialDelay > 0 {
		s.backoff.InitialDelay = cfg.DialDelay
	}
	s.backoff.OnRetry = func(attempt int, wait time.Duration, err error) {
		s.log.Verbose("dial attempt %d failed, retrying in %v: %v", attempt, wait.Truncate(time.Millisecond), err)
		m.DialRetry(cfg.Device)
	}

	if cfg.CommandRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.CommandRate), 1)
	}
	return s, nil
}

// Device returns the device name.
func (s *Sender) Device() string { return s.cfg.Device }

// Run executes script on the device with dialect.  ctx bounds waiting
// for the permit and opening the transport; once the session is open
// the operation runs to completion or first failure, each step bounded
// by the session timeout.
func (s *Sender) Run(ctx context.Context, kind Kind, script command.Script, dialect session.Dialect) (err error) {
	log := s.log.With("op", uuid.NewString(), "kind", string(kind))
	start := time.Now()
	s.metrics.ScriptStarted(s.cfg.Device)
	defer func() { s.metrics.ScriptDone(s.cfg.Device, string(kind), err, time.Since(start)) }()

	if err := s.permit.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for %s: %w", s.cfg.Device, err)
	}
	defer s.permit.Release(1)
	log.Debug("permit acquired after %v", time.Since(start).Truncate(time.Millisecond))

	stream, err := s.dial(ctx)
	if err != nil {
		return err
	}

	ch, err := session.New(stream, dialect.Options(s.cfg.Timeout, log))
	if err != nil {
		stream.Close()
		return err
	}
	defer func() {
		if cerr := ch.Close(dialect.Logout); cerr != nil {
			log.Warn("closing session: %v", cerr)
		}
	}()

	run := context.WithoutCancel(ctx)
	if err := ch.Open(run, dialect.Login); err != nil {
		return fmt.Errorf("login to %s: %w", s.cfg.Device, err)
	}
	if err := s.preCheck(run, ch, script, dialect, log); err != nil {
		return err
	}
	if err := s.execute(run, ch, script, dialect, log); err != nil {
		return err
	}
	log.Verbose("%s applied %d commands in %v", kind, len(script), time.Since(start).Truncate(time.Millisecond))
	return nil
}

// dial opens the transport through the breaker, retrying transient
// failures.
func (s *Sender) dial(ctx context.Context) (transport.Stream, error) {
	var stream transport.Stream
	err := s.backoff.Do(ctx, func(ctx context.Context, _ int) error {
		return s.breaker.Execute(func() error {
			var err error
			stream, err = s.dialer.Dial(ctx, s.service)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", s.cfg.Device, err)
	}
	return stream, nil
}

// preCheck asks the device for existing configuration on every
// resource the script touches.  Any hit fails the operation before a
// single change is sent.
func (s *Sender) preCheck(ctx context.Context, ch *session.Channel, script command.Script, d session.Dialect, log *util.Logger) error {
	if d.PreCheck == nil {
		return nil
	}
	for _, c := range script {
		if c.Check == "" {
			continue
		}
		reply, err := ch.Exchange(ctx, d.PreCheck(c.Check), d.Reply)
		if err != nil {
			return fmt.Errorf("pre-check %s: %w", c.Resource, err)
		}
		present, err := session.ConfigPresent(reply)
		if err != nil {
			return fmt.Errorf("pre-check %s: %w", c.Resource, err)
		}
		if present {
			return fmt.Errorf("%s on %s: %w", c.Resource, s.cfg.Device, xerrors.ErrPreCheckFailed)
		}
		log.Debug("pre-check %s clear", c.Resource)
	}
	return nil
}

// execute sends the script then the commit sequence, one command in
// flight at a time.
func (s *Sender) execute(ctx context.Context, ch *session.Channel, script command.Script, d session.Dialect, log *util.Logger) error {
	if len(script) == 0 {
		return nil
	}
	total := len(script) + len(d.Commit)

	for i, c := range script {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return s.failed(i, total, c.Text, err)
			}
		}
		started := time.Now()
		_, err := ch.Exchange(ctx, d.Render(c.Text), d.Reply)
		s.metrics.CommandDone(s.cfg.Device, c.Op.String(), err, time.Since(started))
		if err != nil {
			log.Error("%s failed: %v", c, err)
			return s.failed(i, total, c.Text, err)
		}
		log.Debug("%s ok", c)
	}

	for j, step := range d.Commit {
		i := len(script) + j
		m := step.Match
		if m == nil {
			m = d.Reply
		}
		if _, err := ch.Exchange(ctx, step.Text, m); err != nil {
			log.Error("commit step %d failed: %v", j+1, err)
			return s.failed(i, total, step.Text, err)
		}
	}
	return nil
}

// failed wraps err as a partial failure once anything has been
// applied.
func (s *Sender) failed(index, total int, text string, err error) error {
	if index == 0 {
		return err
	}
	return &xerrors.PartialFailureError{Index: index, Total: total, Command: text, Err: err}
}
