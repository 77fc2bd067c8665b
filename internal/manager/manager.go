// Package manager is the facade a reservation layer drives: one
// Manager per backend network, wrapping that network's topology,
// vendor profile and device sender.
//
// Every SetupLink and TeardownLink yields exactly one outcome and logs
// exactly one line for it.  Resolution and compilation happen before
// the device is touched, so those failures leave nothing behind.
package manager

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"xconnect/internal/command"
	xerrors "xconnect/internal/errors"
	"xconnect/internal/sender"
	"xconnect/internal/session"
	"xconnect/internal/topology"
	"xconnect/internal/vendors"
	"xconnect/util"
)

// Endpoint is one side of a requested link.  A nil Label asks for the
// whole port.
type Endpoint struct {
	Port  string
	Label *topology.Label
}

func (e Endpoint) String() string { return e.Port + "#" + e.Label.String() }

// Runner executes a compiled script on the backend's device.
// *sender.Sender implements it.
type Runner interface {
	Run(ctx context.Context, kind sender.Kind, script command.Script, dialect session.Dialect) error
}

// Credentials log the engine in once the transport is up.
type Credentials struct {
	User     string
	Password string
}

// Manager serves one backend network.
type Manager struct {
	network  string
	profile  vendor.Profile
	resolver *topology.Resolver
	runner   Runner
	creds    Credentials
	log      *util.Logger
}

// New builds the facade for network.
func New(network string, profile vendor.Profile, topo *topology.Topology, runner Runner, creds Credentials, logger *util.Logger) *Manager {
	if logger == nil {
		logger = util.Nop()
	}
	return &Manager{
		network:  network,
		profile:  profile,
		resolver: topology.NewResolver(topo, profile.LabelTypes(), profile.Compatibility()),
		runner:   runner,
		creds:    creds,
		log:      logger.With("network", network, "vendor", profile.Name()),
	}
}

// Network returns the backend network name.
func (m *Manager) Network() string { return m.network }

// GetResource names the device resource a (port, label) pair occupies:
// the port name and the canonical label value joined by ':', with an
// empty value for the whole port.  Port names never contain ':', so
// distinct pairs never share an id, and one value set always yields
// the same id however it was spelled.
func (m *Manager) GetResource(port string, label *topology.Label) string {
	if label == nil || topology.TypeOf(label) == topology.LabelPort {
		return port + ":"
	}
	return port + ":" + label.Canonical()
}

// GetTarget resolves a (port, label) pair.
func (m *Manager) GetTarget(port string, label *topology.Label) (topology.Target, error) {
	return m.resolver.Resolve(port, label)
}

// CanConnect reports whether the two endpoints may be joined on this
// backend.  It is symmetric.
func (m *Manager) CanConnect(src, dst Endpoint) bool {
	return m.resolver.CanConnect(src.Port, src.Label, dst.Port, dst.Label)
}

// CreateConnectionID returns the profile prefix and six random digits.
// Uniqueness is likely, not guaranteed; callers that need it must
// check.
func (m *Manager) CreateConnectionID(src, dst Endpoint) string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(fmt.Sprintf("manager: reading random id: %v", err))
	}
	id := fmt.Sprintf("%s-%06d", m.profile.IDPrefix(), n.Int64())
	m.log.Debug("connection id %s for %s -> %s", id, src, dst)
	return id
}

// Compile resolves both endpoints and compiles the script for kind
// without touching the device.
func (m *Manager) Compile(kind sender.Kind, id string, src, dst Endpoint, bandwidthMbps int64) (command.Script, error) {
	req, err := m.request(id, src, dst, bandwidthMbps)
	if err != nil {
		return nil, err
	}
	switch kind {
	case sender.Setup:
		return m.profile.Activate(req)
	case sender.Teardown:
		return m.profile.Deactivate(req)
	default:
		return nil, fmt.Errorf("unknown operation %q", kind)
	}
}

// SetupLink activates the link on the device.
func (m *Manager) SetupLink(ctx context.Context, id string, src, dst Endpoint, bandwidthMbps int64) error {
	return m.link(ctx, sender.Setup, id, src, dst, bandwidthMbps)
}

// TeardownLink deactivates the link on the device.
func (m *Manager) TeardownLink(ctx context.Context, id string, src, dst Endpoint, bandwidthMbps int64) error {
	return m.link(ctx, sender.Teardown, id, src, dst, bandwidthMbps)
}

func (m *Manager) link(ctx context.Context, kind sender.Kind, id string, src, dst Endpoint, bandwidthMbps int64) error {
	log := m.log.With("connection", id)

	script, err := m.Compile(kind, id, src, dst, bandwidthMbps)
	if err != nil {
		log.Error("%s %s -> %s rejected before device I/O: %v", kind, src, dst, err)
		return err
	}
	dialect, err := m.profile.Dialect(vendor.SessionParams{
		User:         m.creds.User,
		Password:     m.creds.Password,
		ConnectionID: id,
	})
	if err != nil {
		log.Error("%s %s -> %s: login cannot be built: %v", kind, src, dst, err)
		return err
	}

	if err := m.runner.Run(ctx, kind, script, dialect); err != nil {
		log.Error("%s %s -> %s failed%s", kind, src, dst, diagnose(err))
		return err
	}
	if kind == sender.Setup {
		log.Info("link up: %s -> %s (%d Mbps, %d commands)", src, dst, bandwidthMbps, len(script))
	} else {
		log.Info("link down: %s -> %s (%d commands)", src, dst, len(script))
	}
	return nil
}

func (m *Manager) request(id string, src, dst Endpoint, bandwidthMbps int64) (vendor.Request, error) {
	if bandwidthMbps < 0 {
		return vendor.Request{}, &xerrors.CompilationError{
			Vendor: m.profile.Name(), Detail: fmt.Sprintf("bandwidth %d Mbps", bandwidthMbps), Err: xerrors.ErrInvalidTemplateArgs,
		}
	}
	s, err := m.GetTarget(src.Port, src.Label)
	if err != nil {
		return vendor.Request{}, err
	}
	d, err := m.GetTarget(dst.Port, dst.Label)
	if err != nil {
		return vendor.Request{}, err
	}
	if !m.resolver.CanConnect(src.Port, src.Label, dst.Port, dst.Label) {
		return vendor.Request{}, &xerrors.CompatibilityError{
			Port:   src.Port,
			Label:  fmt.Sprintf("%s/%s", src.Label, dst.Label),
			Reason: fmt.Sprintf("%s cannot connect %s to %s", m.profile.Name(), topology.TypeOf(src.Label), topology.TypeOf(dst.Label)),
			Err:    xerrors.ErrInvalidLabel,
		}
	}
	return vendor.Request{ConnectionID: id, Src: s, Dst: d, BandwidthMbps: bandwidthMbps}, nil
}

// diagnose names the failing command and the device's own text when
// the error carries them.
func diagnose(err error) string {
	var (
		partial  *xerrors.PartialFailureError
		rejected *xerrors.CommandRejectedError
	)
	out := ""
	if errors.As(err, &partial) {
		out += fmt.Sprintf(" at command %d/%d", partial.Index+1, partial.Total)
	}
	if errors.As(err, &rejected) {
		out += fmt.Sprintf(": %q rejected", rejected.Command)
		if len(rejected.Output) > 0 {
			out += fmt.Sprintf(" (%s)", rejected.Output[len(rejected.Output)-1])
		}
		return out
	}
	return out + ": " + err.Error()
}
