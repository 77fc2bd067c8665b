// Package transporttest provides in-memory streams and dialers for
// exercising the session and sender layers without a device.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"xconnect/internal/transport"
)

// Responder returns the chunks a device would send back after seeing
// one write.  Returning nil sends nothing.
type Responder func(written string) []string

type item struct {
	data []byte
	done chan struct{}
}

// Stream is an in-memory transport.Stream.  Data is delivered in order
// from one goroutine, like a real receive loop.
type Stream struct {
	Respond Responder

	// WriteErr, when set, fails every Write.
	WriteErr error

	mu        sync.Mutex
	writes    []string
	queue     chan item
	closeErr  error
	hungUp    bool
	closed    bool
	received  bool
	delivered chan struct{}
}

// NewStream returns a Stream answering writes with respond, which may
// be nil.
func NewStream(respond Responder) *Stream {
	return &Stream{
		Respond:   respond,
		queue:     make(chan item, 1024),
		delivered: make(chan struct{}),
	}
}

func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.WriteErr != nil {
		err := s.WriteErr
		s.mu.Unlock()
		return 0, err
	}
	if s.closed || s.hungUp {
		s.mu.Unlock()
		return 0, errors.New("write on closed stream")
	}
	s.writes = append(s.writes, string(p))
	respond := s.Respond
	s.mu.Unlock()

	if respond != nil {
		for _, chunk := range respond(string(p)) {
			s.enqueue([]byte(chunk), nil)
		}
	}
	return len(p), nil
}

// Receive starts the delivery goroutine.
func (s *Stream) Receive(onData func([]byte), onClose func(error)) {
	s.mu.Lock()
	if s.received {
		s.mu.Unlock()
		panic("transporttest: Receive called twice")
	}
	s.received = true
	s.mu.Unlock()

	go func() {
		defer close(s.delivered)
		for it := range s.queue {
			onData(it.data)
			if it.done != nil {
				close(it.done)
			}
		}
		s.mu.Lock()
		err := s.closeErr
		s.mu.Unlock()
		onClose(err)
	}()
}

// Push delivers chunks to the receiver and blocks until each has been
// handled.  Receive must have been called.
func (s *Stream) Push(chunks ...string) {
	for _, c := range chunks {
		done := make(chan struct{})
		if !s.enqueue([]byte(c), done) {
			return
		}
		<-done
	}
}

// Hangup simulates the device closing the stream with err and waits
// for the receiver to observe it.
func (s *Stream) Hangup(err error) {
	s.mu.Lock()
	if !s.hungUp && !s.closed {
		s.hungUp = true
		s.closeErr = err
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.delivered
}

func (s *Stream) CloseWrite() error { return nil }

// Close ends the stream.  Pending deliveries are still handed over.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.hungUp {
		close(s.queue)
	}
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Writes returns everything written so far.
func (s *Stream) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func (s *Stream) enqueue(data []byte, done chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.hungUp {
		return false
	}
	s.queue <- item{data: data, done: done}
	return true
}

// Dialer hands out streams built by New.  It records every dial.
type Dialer struct {
	New  func(svc transport.Service) (transport.Stream, error)
	Host string

	mu    sync.Mutex
	dials []transport.Service
}

func (d *Dialer) Dial(ctx context.Context, svc transport.Service) (transport.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dials = append(d.dials, svc)
	d.mu.Unlock()
	return d.New(svc)
}

func (d *Dialer) Addr() string {
	if d.Host == "" {
		return "fake:22"
	}
	return d.Host
}

// Dials returns the services dialled so far.
func (d *Dialer) Dials() []transport.Service {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transport.Service(nil), d.dials...)
}
