package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	xerrors "xconnect/internal/errors"
	"xconnect/util"
)

// SSHConfig holds everything needed to reach one device over SSH.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	Password      string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	Fingerprint   string // pinned SHA256 host key fingerprint
	ConnTimeout   time.Duration
}

// SSHDialer opens a new SSH connection for every stream.  Devices are
// driven one operation at a time, so there is nothing to share.
type SSHDialer struct {
	config *SSHConfig
	logger *util.Logger
}

// NewSSHDialer returns a dialer for cfg.  Authentication material is
// not loaded until the first Dial.
func NewSSHDialer(cfg *SSHConfig, logger *util.Logger) *SSHDialer {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHDialer{config: cfg, logger: logger}
}

func (d *SSHDialer) Addr() string {
	return util.FormatAddr(d.config.Host, d.config.Port)
}

// Dial connects, authenticates and starts svc on a new session.
func (d *SSHDialer) Dial(ctx context.Context, svc Service) (Stream, error) {
	cfg := d.config
	authMethods, err := BuildAuthMethods(cfg)
	if err != nil {
		return nil, xerrors.WrapSSH("auth", cfg.Host, cfg.Port, err)
	}
	hkCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, xerrors.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         cfg.ConnTimeout,
	}

	addr := d.Addr()
	d.logger.Debug("ssh: dialing %s as %s for %s", addr, cfg.User, svc)

	dialer := net.Dialer{Timeout: cfg.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrap("dial", addr, err)
	}

	// The handshake has no context of its own; bound it by the deadline
	// and abort it on cancellation.
	if dl, ok := ctx.Deadline(); ok {
		tcpConn.SetDeadline(dl) //nolint:errcheck
	}
	stop := context.AfterFunc(ctx, func() { tcpConn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	cancelled := !stop()
	if err != nil {
		tcpConn.Close()
		if cancelled {
			return nil, xerrors.Wrap("dial", addr, ctx.Err())
		}
		return nil, xerrors.WrapSSH("handshake", cfg.Host, cfg.Port, err)
	}
	tcpConn.SetDeadline(time.Time{}) //nolint:errcheck
	client := ssh.NewClient(sshConn, chans, reqs)

	stream, err := startService(client, svc)
	if err != nil {
		client.Close()
		return nil, xerrors.WrapSSH("session", cfg.Host, cfg.Port, err)
	}
	d.logger.Debug("ssh: %s ready on %s", svc, addr)
	return stream, nil
}

func startService(client *ssh.Client, svc Service) (Stream, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}

	switch svc {
	case Shell:
		err = sess.Shell()
	case Netconf:
		err = sess.RequestSubsystem("netconf")
	default:
		err = fmt.Errorf("unsupported service %s", svc)
	}
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("%s: %w", svc, err)
	}

	return &pipeStream{
		r:          stdout,
		w:          stdin,
		closeWrite: stdin.Close,
		close: func() error {
			return errors.Join(ignoreEOF(sess.Close()), client.Close())
		},
	}, nil
}

// ssh.Session.Close reports io.EOF when the channel is already gone.
func ignoreEOF(err error) error {
	if util.IsClosed(err) {
		return nil
	}
	return err
}
