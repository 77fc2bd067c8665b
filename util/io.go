package util

import (
	"errors"
	"io"
	"net"
)

// DefaultBufSize is the standard buffer size for network I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// Pump reads r until it fails, handing each chunk to onData.  The chunk
// is only valid during the call.  A clean end of stream (EOF or a
// locally closed connection) returns nil.
func Pump(r io.Reader, onData func([]byte)) error {
	buf := GetBuf()
	defer PutBuf(buf)

	for {
		n, err := r.Read(*buf)
		if n > 0 {
			onData((*buf)[:n])
		}
		if err != nil {
			if IsClosed(err) {
				return nil
			}
			return err
		}
	}
}

// IsClosed returns true for errors that are expected during shutdown.
func IsClosed(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
