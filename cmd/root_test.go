package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"xconnect/config"
	"xconnect/internal/transport"
	"xconnect/internal/transport/transporttest"
	"xconnect/util"
)

const cienaYAML = `
backends:
  otn.net:
    vendor: ciena
    transport: tcp
    host: 10.0.0.1
    user: admin
    password: pw
    timeout: 2s
    ports:
      - name: client-1
        interface: 1-A-1-1
      - name: client-2
        interface: 1-A-2-1
      - name: line-1
        interface: 1-A-3-1
        label: otn
        range: 1-80
        remote_network: peer.net
        remote_port: peer-line-1
`

func writeConfig(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "xconnect.yaml")
	if err := os.WriteFile(p, []byte(cienaYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

// fakeDevice answers every TL1 command with COMPLD, or DENY when the
// command matches deny.
type fakeDevice struct {
	deny string

	mu      sync.Mutex
	streams []*transporttest.Stream
}

func (f *fakeDevice) respond(written string) []string {
	switch {
	case strings.HasPrefix(written, "CANC-USER"):
		return nil
	case f.deny != "" && strings.Contains(written, f.deny):
		return []string{"\r\nM  1 DENY\r\n   SROF\r\n;\r\n"}
	default:
		return []string{"\r\nM  1 COMPLD\r\n;\r\n"}
	}
}

func (f *fakeDevice) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.streams {
		out = append(out, s.Writes()...)
	}
	return out
}

func useFakeDevice(t *testing.T, f *fakeDevice) {
	t.Helper()
	prev := newDialer
	newDialer = func(*config.Backend, *util.Logger) transport.Dialer {
		return &transporttest.Dialer{Host: "ne1:10201", New: func(transport.Service) (transport.Stream, error) {
			s := transporttest.NewStream(f.respond)
			f.mu.Lock()
			f.streams = append(f.streams, s)
			f.mu.Unlock()
			return s, nil
		}}
	}
	t.Cleanup(func() { newDialer = prev })
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "xconnect ") {
		t.Errorf("version output = %q", out.String())
	}
}

// TestExecute_Help verifies --help (and no args) returns without error.
func TestExecute_Help(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {}} {
		name := "no-args"
		if len(args) > 0 {
			name = args[0]
		}
		t.Run(name, func(t *testing.T) {
			if err := Execute(context.Background(), args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestExecute_DryRun(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"--dry-run", "-f", writeConfig(t)}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "otn.net: ciena admin@10.0.0.1:10201 via tcp") {
		t.Errorf("dry-run output = %q", out.String())
	}
	if !strings.Contains(out.String(), "password set") {
		t.Errorf("dry-run should mask the password: %q", out.String())
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("backends:\n  x:\n    vendor: cisco\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	err := run(context.Background(), []string{"--dry-run", "-f", p}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "vendor") {
		t.Fatalf("expected vendor validation error, got %v", err)
	}
}

func TestExecute_Errors(t *testing.T) {
	cfg := writeConfig(t)
	tests := []struct {
		name    string
		args    []string
		wantSub string
	}{
		{"unknown flag", []string{"--nonexistent-flag"}, "unknown flag"},
		{"unknown command", []string{"-f", cfg, "resize"}, "unknown command"},
		{"no command", []string{"-f", cfg, "-v"}, "command required"},
		{"extra args", []string{"-f", cfg, "setup", "now"}, "unexpected arguments"},
		{"missing src", []string{"-f", cfg, "resource"}, "--src is required"},
		{"bad label", []string{"-f", cfg, "resource", "--src", "line-1#otn"}, "type=value"},
		{"unknown network", []string{"-f", cfg, "-N", "eth.net", "connection-id"}, "no backend"},
		{"teardown without id", []string{"-f", cfg, "teardown", "--src", "client-1", "--dst", "client-2"}, "--id"},
		{"cannot connect", []string{"-f", cfg, "can-connect", "--src", "client-1", "--dst", "client-9"}, "cannot connect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.args, &bytes.Buffer{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestExecute_Queries(t *testing.T) {
	cfg := writeConfig(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"resource", []string{"resource", "--src", "line-1#otn=1-4"}, "line-1:1-4\n"},
		{"whole port resource", []string{"resource", "--src", "client-1"}, "client-1:\n"},
		{"can connect", []string{"can-connect", "--src", "client-1", "--dst", "line-1#otn=1-4"}, "ok\n"},
		{"target", []string{"target", "--src", "line-1#otn=3"}, "<line-1#otn=3 -> peer-line-1>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(context.Background(), append([]string{"-f", cfg}, tt.args...), &out); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q should contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestExecute_ConnectionID(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-f", writeConfig(t), "connection-id"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !regexp.MustCompile(`^Ciena-\d{6}\n$`).MatchString(out.String()) {
		t.Errorf("connection-id output = %q", out.String())
	}
}

func TestExecute_CompileTouchesNoDevice(t *testing.T) {
	dev := &fakeDevice{}
	useFakeDevice(t, dev)

	var out bytes.Buffer
	err := run(context.Background(), []string{"-f", writeConfig(t), "compile",
		"--id", "Ciena-123456", "--src", "client-1", "--dst", "client-2", "-b", "10000"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines := strings.Count(out.String(), "\n"); lines != 5 {
		t.Errorf("compiled %d commands, want 5:\n%s", lines, out.String())
	}
	if len(dev.writes()) != 0 {
		t.Errorf("compile wrote to the device: %v", dev.writes())
	}
}

func TestExecute_SetupAndTeardown(t *testing.T) {
	dev := &fakeDevice{}
	useFakeDevice(t, dev)
	cfg := writeConfig(t)

	var out bytes.Buffer
	err := run(context.Background(), []string{"-f", cfg, "setup",
		"--id", "Ciena-123456", "--src", "client-1", "--dst", "client-2", "-b", "1000", "--stats"}, &out)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Ciena-123456\n") {
		t.Errorf("setup output = %q", out.String())
	}
	if !strings.Contains(out.String(), `"scripts_ok": 1`) {
		t.Errorf("--stats should report one good script: %q", out.String())
	}
	w := dev.writes()
	if len(w) < 2 || !strings.HasPrefix(w[0], "ACT-USER") || !strings.HasPrefix(w[len(w)-1], "CANC-USER") {
		t.Errorf("setup writes = %v", w)
	}

	out.Reset()
	err = run(context.Background(), []string{"-f", cfg, "teardown",
		"--id", "Ciena-123456", "--src", "client-1", "--dst", "client-2"}, &out)
	if err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if out.String() != "Ciena-123456\n" {
		t.Errorf("teardown output = %q", out.String())
	}
}

func TestExecute_SetupDeviceRejects(t *testing.T) {
	dev := &fakeDevice{deny: "ENT-CRS"}
	useFakeDevice(t, dev)

	err := run(context.Background(), []string{"-f", writeConfig(t), "setup",
		"--src", "client-1", "--dst", "client-2"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected the device rejection to surface")
	}
	if !strings.Contains(err.Error(), "ENT-CRS") {
		t.Errorf("error %q should name the rejected command", err.Error())
	}
}

func TestParseEndpoint(t *testing.T) {
	ep, err := parseEndpoint("src", "ge-1#vlan=100", true)
	if err != nil {
		t.Fatal(err)
	}
	if ep.Port != "ge-1" || ep.Label == nil || ep.Label.Value != "100" {
		t.Errorf("parseEndpoint = %+v", ep)
	}

	ep, err = parseEndpoint("src", "ge-1", true)
	if err != nil || ep.Label != nil {
		t.Errorf("whole port = %+v, %v", ep, err)
	}

	for _, bad := range []string{"#vlan=1", "ge-1#vlan", "ge-1#qinq=5", "ge-1#vlan=5000"} {
		if _, err := parseEndpoint("src", bad, true); err == nil {
			t.Errorf("parseEndpoint(%q) should fail", bad)
		}
	}
}
