package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	xerrors "xconnect/internal/errors"
	"xconnect/util"
)

// TCPDialer opens plain TCP streams, for TL1 gateways that listen on a
// raw port.  It only offers the shell service.
type TCPDialer struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func (d *TCPDialer) Addr() string {
	return util.FormatAddr(d.Host, d.Port)
}

// Dial connects to the device.
func (d *TCPDialer) Dial(ctx context.Context, svc Service) (Stream, error) {
	if svc != Shell {
		return nil, &xerrors.TransportError{Op: "dial", Addr: d.Addr(),
			Err: fmt.Errorf("%s is not available over raw tcp", svc)}
	}
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Addr())
	if err != nil {
		return nil, xerrors.Wrap("dial", d.Addr(), err)
	}
	s := &pipeStream{r: conn, w: conn, close: conn.Close}
	if tc, ok := conn.(*net.TCPConn); ok {
		s.closeWrite = tc.CloseWrite
	}
	return s, nil
}
