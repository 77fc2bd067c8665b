package topology

import (
	"fmt"
	"strings"

	xerrors "xconnect/internal/errors"
)

// Port is a static topology entry.  Read-only once loaded.
type Port struct {
	Name      string
	Interface string

	// Label restricts the port to one label type and, when Values is
	// non-empty, to that value set.  Nil means whole-port only.
	Label *Label

	// RemoteNetwork is set iff the port faces a peer domain.
	RemoteNetwork string
	RemotePort    string
}

// IsRemote reports whether the port terminates on a peer network.
func (p *Port) IsRemote() bool { return p.RemoteNetwork != "" }

// Topology is the name-indexed port map.
type Topology struct {
	ports map[string]*Port
	names []string
}

// NewTopology indexes ports by name.  Names must be unique and must not
// contain ':' since resource ids use it as the separator.
func NewTopology(ports []Port) (*Topology, error) {
	t := &Topology{ports: make(map[string]*Port, len(ports))}
	for i := range ports {
		p := ports[i]
		switch {
		case p.Name == "":
			return nil, fmt.Errorf("port %d: empty name", i)
		case strings.Contains(p.Name, ":"):
			return nil, fmt.Errorf("port %q: name must not contain ':'", p.Name)
		case p.Interface == "":
			return nil, fmt.Errorf("port %q: empty interface", p.Name)
		}
		if _, dup := t.ports[p.Name]; dup {
			return nil, fmt.Errorf("port %q: duplicate name", p.Name)
		}
		if p.Label != nil && p.Label.Type == LabelPort {
			p.Label = nil
		}
		if p.Label != nil && len(p.Label.Values) > 0 {
			if reason := p.Label.rangeError(); reason != "" {
				return nil, fmt.Errorf("port %q: %w: %s", p.Name, xerrors.ErrInvalidLabel, reason)
			}
		}
		t.ports[p.Name] = &p
		t.names = append(t.names, p.Name)
	}
	return t, nil
}

// Lookup returns the named port.
func (t *Topology) Lookup(name string) (*Port, bool) {
	p, ok := t.ports[name]
	return p, ok
}

// Names returns port names in configuration order.
func (t *Topology) Names() []string {
	return append([]string(nil), t.names...)
}

// LabelTypes returns the distinct label types used by the ports.
func (t *Topology) LabelTypes() []LabelType {
	seen := make(map[LabelType]bool)
	var out []LabelType
	for _, n := range t.names {
		lt := TypeOf(t.ports[n].Label)
		if !seen[lt] {
			seen[lt] = true
			out = append(out, lt)
		}
	}
	return out
}
