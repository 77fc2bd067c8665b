package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	xerrors "xconnect/internal/errors"
	"xconnect/util"
)

// collector gathers what a stream delivers.
type collector struct {
	mu     sync.Mutex
	data   strings.Builder
	closed chan error
}

func newCollector() *collector { return &collector{closed: make(chan error, 1)} }

func (c *collector) onData(p []byte) {
	c.mu.Lock()
	c.data.Write(p)
	c.mu.Unlock()
}

func (c *collector) onClose(err error) { c.closed <- err }

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.String()
}

func (c *collector) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(c.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never received %q, got %q", want, c.String())
}

// ── TCP ──────────────────────────────────────────────────────────────

// TestTCPDialer_Exchange verifies that TCPDialer can reach a local
// TCP server and exchange data in both directions.
func TestTCPDialer_Exchange(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Server: greet, echo until the client half-closes, then close.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("TL1 gateway ready\n")) //nolint:errcheck
		io.Copy(conn, conn)                          //nolint:errcheck
	}()

	host, port := splitAddr(t, ln.Addr())
	d := &TCPDialer{Host: host, Port: port, Timeout: 2 * time.Second}

	s, err := d.Dial(context.Background(), Shell)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := newCollector()
	s.Receive(c.onData, c.onClose)
	c.waitFor(t, "ready")

	if _, err := s.Write([]byte("RTRV-HDR:::1;")); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.waitFor(t, "RTRV-HDR:::1;")

	if err := s.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	select {
	case err := <-c.closed:
		if err != nil {
			t.Errorf("clean close reported %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never closed")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// TestTCPDialer_ContextCancel verifies that a cancelled context stops the dial.
func TestTCPDialer_ContextCancel(t *testing.T) {
	d := &TCPDialer{Host: "127.0.0.1", Port: 1, Timeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dial(ctx, Shell)
	var te *xerrors.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

// TestTCPDialer_NoNetconf verifies that raw TCP refuses the NETCONF
// subsystem.
func TestTCPDialer_NoNetconf(t *testing.T) {
	d := &TCPDialer{Host: "127.0.0.1", Port: 1}
	if _, err := d.Dial(context.Background(), Netconf); err == nil {
		t.Fatal("expected error for netconf over tcp")
	}
	if got := d.Addr(); got != "127.0.0.1:1" {
		t.Errorf("Addr = %q", got)
	}
}

func TestService_String(t *testing.T) {
	if Shell.String() != "shell" || Netconf.String() != "netconf" {
		t.Errorf("got %s %s", Shell, Netconf)
	}
	if Service(9).String() != "service(9)" {
		t.Errorf("got %s", Service(9))
	}
}

// ── Auth ─────────────────────────────────────────────────────────────

// TestBuildAuthMethods_ExplicitKey verifies that a key file is loaded.
func TestBuildAuthMethods_ExplicitKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath)

	methods, err := BuildAuthMethods(&SSHConfig{KeyPath: keyPath})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected one auth method, got %d", len(methods))
	}
}

// TestBuildAuthMethods_Password verifies that a configured password is
// offered both directly and to keyboard-interactive prompts.
func TestBuildAuthMethods_Password(t *testing.T) {
	methods, err := BuildAuthMethods(&SSHConfig{Password: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 2 {
		t.Fatalf("expected two auth methods, got %d", len(methods))
	}
	answers, _ := answerAll("secret")("", "", []string{"Password:", "Again:"}, []bool{false, false})
	if len(answers) != 2 || answers[0] != "secret" || answers[1] != "secret" {
		t.Errorf("answers = %v", answers)
	}
}

// TestBuildAuthMethods_MissingKey verifies a clear error for a bad key path.
func TestBuildAuthMethods_MissingKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	_, err := BuildAuthMethods(&SSHConfig{KeyPath: "/nonexistent/key"})
	if err == nil {
		t.Fatal("expected error for missing key")
	}
}

// TestHostKeyCallback_Insecure verifies that InsecureIgnoreHostKey is used
// when StrictHostKey is false.
func TestHostKeyCallback_Insecure(t *testing.T) {
	cb, err := hostKeyCallback(&SSHConfig{StrictHostKey: false})
	if err != nil {
		t.Fatal(err)
	}
	if cb == nil {
		t.Fatal("callback should not be nil")
	}
}

func TestHostKeyCallback_Pinned(t *testing.T) {
	signer := newSigner(t)
	fp := ssh.FingerprintSHA256(signer.PublicKey())

	for _, pinned := range []string{fp, strings.TrimPrefix(fp, "SHA256:")} {
		cb, err := hostKeyCallback(&SSHConfig{Fingerprint: pinned, StrictHostKey: true})
		if err != nil {
			t.Fatal(err)
		}
		if err := cb("ne1:22", nil, signer.PublicKey()); err != nil {
			t.Errorf("pinned %q: %v", pinned, err)
		}
	}

	cb, _ := hostKeyCallback(&SSHConfig{Fingerprint: "SHA256:bogus"})
	err := cb("ne1:22", nil, signer.PublicKey())
	if !errors.Is(err, xerrors.ErrHostKeyMismatch) {
		t.Errorf("expected ErrHostKeyMismatch, got %v", err)
	}
}

// ── SSH end to end ───────────────────────────────────────────────────

func TestSSHDialer_Shell(t *testing.T) {
	srv := startSSHServer(t)
	d := srv.dialer(t)

	s, err := d.Dial(context.Background(), Shell)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	c := newCollector()
	s.Receive(c.onData, c.onClose)
	c.waitFor(t, "shell>")

	s.Write([]byte("ACT-USER::admin:1::pw;")) //nolint:errcheck
	c.waitFor(t, "ACT-USER::admin:1::pw;")

	if err := s.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	select {
	case <-c.closed:
	case <-time.After(3 * time.Second):
		t.Fatal("stream never closed")
	}
}

func TestSSHDialer_Netconf(t *testing.T) {
	srv := startSSHServer(t)
	d := srv.dialer(t)

	s, err := d.Dial(context.Background(), Netconf)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := newCollector()
	s.Receive(c.onData, c.onClose)
	c.waitFor(t, "<hello")
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSSHDialer_WrongPassword(t *testing.T) {
	srv := startSSHServer(t)
	d := srv.dialer(t)
	d.config.Password = "wrong"

	_, err := d.Dial(context.Background(), Shell)
	var se *xerrors.SSHError
	if !errors.As(err, &se) || se.Op != "handshake" {
		t.Fatalf("expected handshake SSHError, got %v", err)
	}
}

func TestSSHDialer_HostKeyMismatch(t *testing.T) {
	srv := startSSHServer(t)
	d := srv.dialer(t)
	d.config.Fingerprint = "SHA256:not-the-key"

	_, err := d.Dial(context.Background(), Shell)
	if !errors.Is(err, xerrors.ErrHostKeyMismatch) {
		t.Fatalf("expected host key mismatch, got %v", err)
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func splitAddr(t *testing.T, a net.Addr) (string, int) {
	t.Helper()
	host, p, err := net.SplitHostPort(a.String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(p)
	return host, port
}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

type sshServer struct {
	ln      net.Listener
	hostKey ssh.Signer
}

// startSSHServer runs a minimal device: the shell prints a prompt and
// echoes, the netconf subsystem sends a hello and echoes.
func startSSHServer(t *testing.T) *sshServer {
	t.Helper()
	hostKey := newSigner(t)
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "admin" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg)
		}
	}()
	return &sshServer{ln: ln, hostKey: hostKey}
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "session only") //nolint:errcheck
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			continue
		}
		go func() {
			for req := range chReqs {
				switch req.Type {
				case "shell":
					req.Reply(true, nil) //nolint:errcheck
					go echo(ch, "shell> ")
				case "subsystem":
					ok := len(req.Payload) > 4 && string(req.Payload[4:]) == "netconf"
					req.Reply(ok, nil) //nolint:errcheck
					if ok {
						go echo(ch, "<hello><capabilities/></hello>]]>]]>")
					}
				default:
					req.Reply(false, nil) //nolint:errcheck
				}
			}
		}()
	}
}

func echo(ch ssh.Channel, greeting string) {
	defer ch.Close()
	ch.Write([]byte(greeting)) //nolint:errcheck
	io.Copy(ch, ch)            //nolint:errcheck
}

func (s *sshServer) dialer(t *testing.T) *SSHDialer {
	t.Helper()
	host, port := splitAddr(t, s.ln.Addr())
	return NewSSHDialer(&SSHConfig{
		User:        "admin",
		Host:        host,
		Port:        port,
		Password:    "secret",
		Fingerprint: ssh.FingerprintSHA256(s.hostKey.PublicKey()),
		ConnTimeout: 3 * time.Second,
	}, util.NewLogger(0))
}

// writeTestKey writes a minimal, unencrypted ed25519 private key.
func writeTestKey(t *testing.T, path string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "test@xconnect")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatal(err)
	}
}
