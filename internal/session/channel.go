// Package session implements the expect engine that drives a device
// over an unframed stream: write one command, then wait until the
// records that come back satisfy the command's Matcher.
//
// A Channel holds at most one outstanding expectation.  Records that
// arrive while nothing is outstanding (banners, echoes, late output)
// are discarded.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	xerrors "xconnect/internal/errors"
	"xconnect/internal/transport"
	"xconnect/util"
)

// Options configures a Channel.
type Options struct {
	// Timeout bounds every expectation.  Required.
	Timeout time.Duration

	// Framer cuts the stream into records.  Default LineFramer.
	Framer Framer

	// LineEnding is appended to every command written.  Default "\n".
	LineEnding string

	// Greeting, when set, is armed before the stream starts so an
	// unsolicited greeting (a NETCONF <hello>) is never discarded.
	// Open waits for it.
	Greeting Matcher

	Logger *util.Logger
}

// Exchange is one command and the matcher for its answer.  A nil
// Match writes the command without waiting, as for a NETCONF client
// <hello>.
type Exchange struct {
	Text  string
	Match Matcher

	// Secret keeps Text out of logs and errors, including any echo of
	// it the device sends back.
	Secret bool
}

const redacted = "<redacted>"

// Reply carries the records accumulated up to resolution.
type Reply struct {
	Records []string
}

// Pending is the future of one sent command.
type Pending struct {
	Command string

	matcher Matcher
	timer   *time.Timer
	done    chan struct{}
	once    sync.Once
	reply   Reply
	err     error
}

// Done is closed when the expectation resolves.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Resolved reports whether the expectation has resolved.
func (p *Pending) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the expectation resolves or ctx ends.  A cancelled
// ctx does not withdraw the expectation; it still resolves on its own
// by match, timeout or stream closure.
func (p *Pending) Wait(ctx context.Context) (Reply, error) {
	select {
	case <-p.done:
		return p.reply, p.err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (p *Pending) resolve(reply Reply, err error) {
	p.once.Do(func() {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.reply, p.err = reply, err
		close(p.done)
	})
}

// Channel is the expect engine over one stream.
type Channel struct {
	stream transport.Stream
	opts   Options
	log    *util.Logger

	mu       sync.Mutex
	buf      []byte
	records  []string
	waiter   *Pending
	greeting *Pending
	closed   bool
	secrets  []string
}

// New wraps stream and starts receiving.  The stream must not have
// been handed to Receive before.
func New(stream transport.Stream, opts Options) (*Channel, error) {
	if opts.Timeout <= 0 {
		return nil, &xerrors.ConfigError{
			Field:   "session.timeout",
			Value:   opts.Timeout,
			Message: "must be positive",
			Hint:    "every expectation needs an explicit bound",
		}
	}
	if opts.Framer == nil {
		opts.Framer = LineFramer{}
	}
	if opts.LineEnding == "" {
		opts.LineEnding = "\n"
	}
	if opts.Logger == nil {
		opts.Logger = util.Nop()
	}
	c := &Channel{stream: stream, opts: opts, log: opts.Logger}
	if opts.Greeting != nil {
		// arm runs under mu so expire observes the timer field.
		c.mu.Lock()
		c.greeting = c.arm("<greeting>", opts.Greeting)
		c.waiter = c.greeting
		c.mu.Unlock()
	}
	stream.Receive(c.onData, c.onClose)
	return c, nil
}

// Open waits for the greeting, if any, then runs the login exchanges
// in order.  The first failure is returned as is.
func (c *Channel) Open(ctx context.Context, login []Exchange) error {
	if c.greeting != nil {
		if _, err := c.greeting.Wait(ctx); err != nil {
			return err
		}
	}
	for _, step := range login {
		if step.Match == nil {
			if err := c.write(step.Text, step.Secret); err != nil {
				return err
			}
			continue
		}
		p, err := c.send(step.Text, step.Match, step.Secret)
		if err != nil {
			return err
		}
		if _, err := p.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Send writes text and arms m as the single outstanding expectation.
func (c *Channel) Send(text string, m Matcher) (*Pending, error) {
	return c.send(text, m, false)
}

func (c *Channel) send(text string, m Matcher, secret bool) (*Pending, error) {
	shown := text
	if secret {
		shown = redacted
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &xerrors.ProtocolError{Command: shown}
	}
	if c.waiter != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("send %q: %w", shown, xerrors.ErrExpectationPending)
	}
	p := c.arm(shown, m)
	c.waiter = p
	c.mu.Unlock()

	if err := c.write(text, secret); err != nil {
		c.mu.Lock()
		if c.waiter == p {
			c.waiter = nil
			c.records = nil
		}
		c.mu.Unlock()
		p.resolve(Reply{}, err)
	}
	return p, nil
}

func (c *Channel) write(text string, secret bool) error {
	if secret && text != "" {
		c.mu.Lock()
		c.secrets = append(c.secrets, text)
		c.mu.Unlock()
	}
	if secret {
		c.log.Debug("> %s", redacted)
	} else {
		c.log.Debug("> %s", text)
	}
	if _, err := c.stream.Write([]byte(text + c.opts.LineEnding)); err != nil {
		return xerrors.Wrap("write", "", err)
	}
	return nil
}

// Exchange sends text and waits for its answer.
func (c *Channel) Exchange(ctx context.Context, text string, m Matcher) (Reply, error) {
	p, err := c.Send(text, m)
	if err != nil {
		return Reply{}, err
	}
	return p.Wait(ctx)
}

// Close writes the logout lines without waiting for answers, then
// closes the stream.  It always closes, and fails any outstanding
// expectation.
func (c *Channel) Close(logout []string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.release()
	}
	c.closed = true
	w := c.waiter
	c.waiter = nil
	c.records = nil
	c.mu.Unlock()

	if w != nil {
		w.resolve(Reply{}, &xerrors.ProtocolError{Command: w.Command})
	}
	for _, line := range logout {
		if err := c.write(line, false); err != nil {
			break
		}
	}
	return c.release()
}

func (c *Channel) release() error {
	_ = c.stream.CloseWrite()
	if err := c.stream.Close(); err != nil && !util.IsClosed(err) {
		return err
	}
	return nil
}

// arm creates a Pending with its timeout running.  Callers hold mu.
func (c *Channel) arm(command string, m Matcher) *Pending {
	p := &Pending{Command: command, matcher: m, done: make(chan struct{})}
	p.timer = time.AfterFunc(c.opts.Timeout, func() { c.expire(p) })
	return p
}

func (c *Channel) onData(data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.buf = append(c.buf, data...)
	records, rest := c.opts.Framer.Frame(c.buf)
	c.buf = append(c.buf[:0], rest...)
	if len(records) == 0 {
		c.mu.Unlock()
		return
	}
	c.scrub(records)
	w := c.waiter
	if w == nil {
		c.mu.Unlock()
		for _, r := range records {
			c.log.Debug("discarded: %s", r)
		}
		return
	}
	c.records = append(c.records, records...)
	outcome := w.matcher.Match(c.records)
	if outcome == OutcomePending {
		c.mu.Unlock()
		return
	}
	reply := Reply{Records: c.records}
	c.records = nil
	c.waiter = nil
	c.mu.Unlock()

	for _, r := range reply.Records {
		c.log.Debug("< %s", r)
	}
	var err error
	if outcome == Failure {
		err = &xerrors.CommandRejectedError{Command: w.Command, Output: reply.Records}
	}
	w.resolve(reply, err)
}

// scrub replaces echoed secrets in place.  Callers hold mu.
func (c *Channel) scrub(records []string) {
	for _, secret := range c.secrets {
		for i, r := range records {
			records[i] = strings.ReplaceAll(r, secret, redacted)
		}
	}
}

func (c *Channel) onClose(err error) {
	c.mu.Lock()
	c.closed = true
	w := c.waiter
	c.waiter = nil
	c.records = nil
	c.mu.Unlock()
	if w != nil {
		w.resolve(Reply{}, &xerrors.ProtocolError{Command: w.Command, Err: err})
	}
}

func (c *Channel) expire(p *Pending) {
	c.mu.Lock()
	if c.waiter != p {
		c.mu.Unlock()
		return
	}
	c.waiter = nil
	c.records = nil
	c.mu.Unlock()
	p.resolve(Reply{}, &xerrors.ProtocolTimeoutError{Command: p.Command, Waited: c.opts.Timeout.String()})
}
