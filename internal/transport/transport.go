//go:generate mockgen -package=mocks -destination=../../mocks/mock_transport.go xconnect/internal/transport Dialer,Stream

// Package transport opens authenticated byte streams to devices.  A
// Stream carries raw bytes with no framing; the session layer above it
// decides where one response ends.
package transport

import (
	"context"
	"fmt"
)

// Service selects what the remote end runs on a new stream.
type Service int

const (
	Shell   Service = iota // interactive shell (CLI or TL1)
	Netconf                // NETCONF subsystem
)

func (s Service) String() string {
	switch s {
	case Shell:
		return "shell"
	case Netconf:
		return "netconf"
	default:
		return fmt.Sprintf("service(%d)", int(s))
	}
}

// Stream is an open, authenticated, unframed byte stream.
type Stream interface {
	// Write sends p to the device.
	Write(p []byte) (int, error)

	// Receive starts delivery of incoming data.  onData is called
	// from a single goroutine with a slice that is only valid for the
	// duration of the call; onClose is called once when the stream
	// ends, with nil on a clean EOF.  Receive must be called at most
	// once.
	Receive(onData func([]byte), onClose func(error))

	// CloseWrite signals end of input to the device.
	CloseWrite() error

	// Close releases the stream and its underlying connection.
	Close() error
}

// Dialer opens streams to one device.
type Dialer interface {
	// Dial opens a fresh stream running svc.
	Dial(ctx context.Context, svc Service) (Stream, error)

	// Addr identifies the device in logs and errors.
	Addr() string
}
