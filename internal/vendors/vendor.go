// Package vendor defines the Profile a device family plugs into the
// engine, and the registry profiles add themselves to at init.
//
// A Profile bundles the command compiler for activation and
// deactivation, the label types and cross-connect matrix it supports,
// and the session dialect used to drive the device.
package vendor

import (
	"fmt"
	"sort"
	"sync"

	"xconnect/internal/command"
	xerrors "xconnect/internal/errors"
	"xconnect/internal/session"
	"xconnect/internal/topology"
	"xconnect/internal/transport"
)

// Request is one compiled setup or teardown.
type Request struct {
	ConnectionID  string
	Src           topology.Target
	Dst           topology.Target
	BandwidthMbps int64
}

// Shape returns the connection shape of the request.
func (r Request) Shape() topology.Shape { return topology.ShapeOf(r.Src, r.Dst) }

// SessionParams carries the per-operation values a dialect needs.
type SessionParams struct {
	User         string
	Password     string
	ConnectionID string
}

// Profile is a device family.
type Profile interface {
	// Name is the registry tag, e.g. "ciena".
	Name() string

	// IDPrefix prefixes generated connection ids.
	IDPrefix() string

	LabelTypes() []topology.LabelType
	Compatibility() topology.Compatibility

	// Service is what the device must run on the stream.
	Service() transport.Service

	// Activate and Deactivate are pure: the same request always
	// yields the same script and nothing touches a device.
	Activate(req Request) (command.Script, error)
	Deactivate(req Request) (command.Script, error)

	// Dialect fails when the credentials cannot be expressed in the
	// device's login command.
	Dialect(p SessionParams) (session.Dialect, error)
}

// Options configures a profile instance for one network.
type Options struct {
	Network string

	// Routers maps a network name to its router loopback address,
	// used as the pseudowire neighbour toward that network.
	Routers map[string]string

	VCIDPrefix  string
	EnableQoS   bool
	Description string // text/template over Request
}

// Factory builds a profile.
type Factory func(opts Options) (Profile, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a factory under name.  It panics on a duplicate, which
// only happens when two packages claim the same tag.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("vendor: %q registered twice", name))
	}
	factories[name] = f
}

// New builds the named profile.
func New(name string, opts Options) (Profile, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", xerrors.ErrUnknownVendor, name, Names())
	}
	return f(opts)
}

// Names lists registered profiles in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RenderError wraps a template failure as a CompilationError.
func RenderError(vendor string, err error) error {
	return &xerrors.CompilationError{Vendor: vendor, Detail: "render", Err: err}
}
