// Package cmd wires up the CLI flags and dispatches to the connection
// manager of the selected backend.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"xconnect/config"
	"xconnect/internal/manager"
	"xconnect/internal/metrics"
	"xconnect/internal/sender"
	"xconnect/internal/topology"
	"xconnect/internal/transport"
	_ "xconnect/internal/vendors/ciena"
	_ "xconnect/internal/vendors/junosex"
	_ "xconnect/internal/vendors/junosmx"
	"xconnect/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X xconnect/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// newDialer builds the transport for a backend.  Tests swap it for an
// in-memory device.
var newDialer = dialerFor //nolint:gochecknoglobals

// options are the flags that are not config file settings.
type options struct {
	configPath string
	envFile    string
	network    string

	src, dst  string
	bandwidth int64
	id        string
	kind      string

	verbose     int
	logFormat   string
	metricsAddr string
	timeoutSec  int

	stats, dryRun         bool
	showVersion, showHelp bool
}

// Execute parses args and runs one xconnect command.
func Execute(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var o options
	fs := flag.NewFlagSet("xconnect", flag.ContinueOnError)

	// ── sources ──────────────────────────────────────────────────
	fs.StringVarP(&o.configPath, "config", "f", "", "Config file (default ./"+config.DefaultFile+")")
	fs.StringVar(&o.envFile, "env-file", "", "Read XCONNECT_* variables from a .env file")
	fs.StringVarP(&o.network, "network", "N", "", "Backend network (optional with one backend)")

	// ── link ─────────────────────────────────────────────────────
	fs.StringVar(&o.src, "src", "", "Source endpoint: port[#type=value]")
	fs.StringVar(&o.dst, "dst", "", "Destination endpoint: port[#type=value]")
	fs.Int64VarP(&o.bandwidth, "bandwidth", "b", 0, "Bandwidth in Mbps")
	fs.StringVar(&o.id, "id", "", "Connection id (generated for setup if empty)")
	fs.StringVar(&o.kind, "kind", string(sender.Setup), "Script to compile: setup or teardown")
	fs.IntVarP(&o.timeoutSec, "timeout", "w", 0, "Per-command timeout in seconds")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&o.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&o.logFormat, "log-format", "", "Log encoding: console or json")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on host:port while running")
	fs.BoolVar(&o.stats, "stats", false, "Print a JSON metrics summary when done")
	fs.BoolVar(&o.dryRun, "dry-run", false, "Validate the configuration and exit")

	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&o.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if o.showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if o.showVersion {
		fmt.Fprintf(out, "xconnect %s\n", version)
		return nil
	}

	verb := ""
	if rest := fs.Args(); len(rest) > 0 {
		verb = rest[0]
		if len(rest) > 1 {
			return fmt.Errorf("unexpected arguments after %s: %s", verb, strings.Join(rest[1:], " "))
		}
	}
	if verb == "" && !o.dryRun {
		return fmt.Errorf("command required (use --help for usage)")
	}
	if verb != "" && !knownCommand(verb) {
		return fmt.Errorf("unknown command %q (use --help for usage)", verb)
	}

	// ── configuration ────────────────────────────────────────────
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return err
	}
	if fs.Changed("verbose") {
		cfg.Verbose = min(o.verbose, 3)
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	if o.timeoutSec > 0 {
		for _, b := range cfg.Backends {
			if b != nil {
				b.Timeout = time.Duration(o.timeoutSec) * time.Second
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if o.dryRun {
		fmt.Fprintln(out, cfg)
		return nil
	}

	backend, network, err := cfg.Backend(o.network)
	if err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.New(util.LoggerOptions{Verbosity: cfg.Verbose, Format: cfg.LogFormat})
	defer logger.Sync() //nolint:errcheck

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, m, logger)
		defer stop()
	}

	if verb == "setup" || verb == "teardown" {
		if err := promptPassword(network, backend); err != nil {
			return err
		}
	}
	mgr, err := buildManager(network, backend, m, logger)
	if err != nil {
		return err
	}

	if err := dispatch(ctx, verb, &o, mgr, out); err != nil {
		return err
	}
	if o.stats {
		fmt.Fprintln(out, m.JSON())
	}
	return nil
}

var commands = []string{"setup", "teardown", "compile", "target", "resource", "can-connect", "connection-id"} //nolint:gochecknoglobals

func knownCommand(verb string) bool {
	for _, c := range commands {
		if c == verb {
			return true
		}
	}
	return false
}

func dispatch(ctx context.Context, verb string, o *options, mgr *manager.Manager, out io.Writer) error {
	src, err := parseEndpoint("src", o.src, verb != "connection-id")
	if err != nil {
		return err
	}
	needDst := verb != "target" && verb != "resource"
	dst, err := parseEndpoint("dst", o.dst, needDst && verb != "connection-id")
	if err != nil {
		return err
	}

	switch verb {
	case "resource":
		fmt.Fprintln(out, mgr.GetResource(src.Port, src.Label))

	case "target":
		t, err := mgr.GetTarget(src.Port, src.Label)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, t)

	case "can-connect":
		if !mgr.CanConnect(src, dst) {
			return fmt.Errorf("%s cannot connect %s to %s", mgr.Network(), src, dst)
		}
		fmt.Fprintf(out, "%s -> %s: ok\n", src, dst)

	case "connection-id":
		fmt.Fprintln(out, mgr.CreateConnectionID(src, dst))

	case "compile":
		id := o.id
		if id == "" {
			id = mgr.CreateConnectionID(src, dst)
		}
		script, err := mgr.Compile(sender.Kind(o.kind), id, src, dst, o.bandwidth)
		if err != nil {
			return err
		}
		for _, c := range script {
			fmt.Fprintln(out, c.Text)
		}

	case "setup":
		id := o.id
		if id == "" {
			id = mgr.CreateConnectionID(src, dst)
		}
		if err := mgr.SetupLink(ctx, id, src, dst, o.bandwidth); err != nil {
			return err
		}
		fmt.Fprintln(out, id)

	case "teardown":
		if o.id == "" {
			return errors.New("teardown needs the --id the link was set up with")
		}
		if err := mgr.TeardownLink(ctx, o.id, src, dst, o.bandwidth); err != nil {
			return err
		}
		fmt.Fprintln(out, o.id)
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

// parseEndpoint reads "port" or "port#type=value".
func parseEndpoint(flagName, s string, required bool) (manager.Endpoint, error) {
	if s == "" {
		if required {
			return manager.Endpoint{}, fmt.Errorf("--%s is required", flagName)
		}
		return manager.Endpoint{}, nil
	}
	port, lbl, hasLabel := strings.Cut(s, "#")
	if port == "" {
		return manager.Endpoint{}, fmt.Errorf("--%s %q: empty port name", flagName, s)
	}
	if !hasLabel {
		return manager.Endpoint{Port: port}, nil
	}
	typ, value, ok := strings.Cut(lbl, "=")
	if !ok {
		return manager.Endpoint{}, fmt.Errorf("--%s %q: label must be type=value, e.g. vlan=100", flagName, s)
	}
	lt, err := topology.ParseLabelType(typ)
	if err != nil {
		return manager.Endpoint{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	label, err := topology.ParseLabel(lt, value)
	if err != nil {
		return manager.Endpoint{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return manager.Endpoint{Port: port, Label: label}, nil
}

func buildManager(network string, b *config.Backend, m *metrics.Collector, logger *util.Logger) (*manager.Manager, error) {
	topo, err := b.Topology()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", network, err)
	}
	profile, err := b.Profile(network)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", network, err)
	}
	s, err := sender.New(newDialer(b, logger), profile.Service(), sender.Config{
		Device:       network,
		Timeout:      b.Timeout,
		DialAttempts: b.DialAttempts,
		CommandRate:  b.CommandRate,
	}, m, logger)
	if err != nil {
		return nil, err
	}
	return manager.New(network, profile, topo, s,
		manager.Credentials{User: b.User, Password: b.Password}, logger), nil
}

func dialerFor(b *config.Backend, logger *util.Logger) transport.Dialer {
	if b.Transport == "tcp" {
		return &transport.TCPDialer{Host: b.Host, Port: b.DevicePort(), Timeout: b.ConnTimeout}
	}
	return transport.NewSSHDialer(&transport.SSHConfig{
		User:          b.User,
		Host:          b.Host,
		Port:          b.DevicePort(),
		KeyPath:       b.KeyPath,
		Password:      b.Password,
		UseAgent:      b.UseAgent,
		StrictHostKey: b.StrictHostKey,
		KnownHosts:    b.KnownHosts,
		Fingerprint:   b.Fingerprint,
		ConnTimeout:   b.ConnTimeout,
	}, logger)
}

// promptPassword reads the device password from the terminal once, so
// the same secret serves the SSH handshake and the device login.
func promptPassword(network string, b *config.Backend) error {
	if !b.PromptPassword || b.Password != "" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("%s: prompt_password needs a terminal; set XCONNECT_%s_PASSWORD instead",
			network, config.EnvName(network))
	}
	fmt.Fprintf(os.Stderr, "%s@%s password: ", b.User, b.Host)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	b.Password = string(pass)
	return nil
}

func serveMetrics(addr string, m *metrics.Collector, logger *util.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server: %v", err)
		}
	}()
	logger.Verbose("serving metrics on http://%s/metrics", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `xconnect - device cross-connect orchestration v%s

Compiles and runs link setup and teardown scripts on Ciena TL1,
Junos EX CLI and Junos MX NETCONF devices.

Usage:
  xconnect [options] setup --src P[#T=V] --dst P[#T=V] [-b MBPS] [--id ID]
  xconnect [options] teardown --id ID --src P[#T=V] --dst P[#T=V]
  xconnect [options] compile [--kind teardown] --src ... --dst ...
  xconnect [options] target --src P[#T=V]
  xconnect [options] resource --src P[#T=V]
  xconnect [options] can-connect --src ... --dst ...
  xconnect [options] connection-id

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  xconnect -N otn.net setup --src client-1 --dst line-1#otn=1-4 -b 10000
  xconnect -N eth.net teardown --id JunosEX-004211 --src ge-1#vlan=100 --dst ge-2#vlan=100
  xconnect -N mx.net compile --src access-1#vlan=120 --dst core#mpls=5000
  xconnect --dry-run -f site.yaml

Environment:
  XCONNECT_CONFIG, XCONNECT_VERBOSE, XCONNECT_LOG_FORMAT, XCONNECT_METRICS_ADDR
  XCONNECT_<NETWORK>_{HOST,PORT,USER,PASSWORD,KEY,TIMEOUT,STRICT_HOSTKEY}
`)
}
