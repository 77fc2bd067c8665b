package transport

import (
	"errors"
	"io"
	"sync"

	"xconnect/util"
)

// pipeStream adapts a reader/writer pair to Stream.  Receive pumps the
// reader on its own goroutine.
type pipeStream struct {
	r          io.Reader
	w          io.Writer
	closeWrite func() error
	close      func() error

	mu       sync.Mutex
	received bool
	once     sync.Once
	closeErr error
}

func (s *pipeStream) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *pipeStream) Receive(onData func([]byte), onClose func(error)) {
	s.mu.Lock()
	if s.received {
		s.mu.Unlock()
		panic("transport: Receive called twice")
	}
	s.received = true
	s.mu.Unlock()

	go func() {
		onClose(util.Pump(s.r, onData))
	}()
}

func (s *pipeStream) CloseWrite() error {
	if s.closeWrite == nil {
		return nil
	}
	if err := s.closeWrite(); err != nil && !util.IsClosed(err) {
		return err
	}
	return nil
}

func (s *pipeStream) Close() error {
	s.once.Do(func() {
		if err := s.close(); err != nil && !util.IsClosed(err) && !errors.Is(err, io.EOF) {
			s.closeErr = err
		}
	})
	return s.closeErr
}
