package topology

import (
	"fmt"

	xerrors "xconnect/internal/errors"
)

// Compatibility is a symmetric relation over label types.  Same-type
// pairs are always compatible and are not stored.
type Compatibility map[LabelType]map[LabelType]bool

// NewCompatibility builds a Compatibility from a one-directional pair
// list, adding the reverse of every pair.
func NewCompatibility(pairs map[LabelType][]LabelType) Compatibility {
	c := make(Compatibility)
	add := func(a, b LabelType) {
		if c[a] == nil {
			c[a] = make(map[LabelType]bool)
		}
		c[a][b] = true
	}
	for a, bs := range pairs {
		for _, b := range bs {
			add(a, b)
			add(b, a)
		}
	}
	return c
}

// Allows reports whether a and b may be cross-connected.
func (c Compatibility) Allows(a, b LabelType) bool {
	return a == b || c[a][b]
}

// Resolver turns (port, label) pairs into Targets for one network.
type Resolver struct {
	topo      *Topology
	supported map[LabelType]bool
	compat    Compatibility
}

// NewResolver returns a Resolver over topo that accepts only the given
// label types and cross-connects only pairs allowed by compat.
func NewResolver(topo *Topology, supported []LabelType, compat Compatibility) *Resolver {
	r := &Resolver{topo: topo, supported: make(map[LabelType]bool), compat: compat}
	for _, lt := range supported {
		r.supported[lt] = true
	}
	return r
}

// Topology returns the port map the resolver reads.
func (r *Resolver) Topology() *Topology { return r.topo }

// Resolve validates label against the named port and returns a fresh
// Target.  A nil label (or one of type LabelPort) asks for the whole
// port.
func (r *Resolver) Resolve(portName string, label *Label) (Target, error) {
	port, ok := r.topo.Lookup(portName)
	if !ok {
		return Target{}, xerrors.UnknownPort(portName)
	}
	lt := TypeOf(label)
	if !r.supported[lt] {
		return Target{}, xerrors.InvalidLabel(portName, label.String(), fmt.Sprintf("label type %s not supported", lt))
	}
	if want := TypeOf(port.Label); want != lt {
		return Target{}, xerrors.InvalidLabel(portName, label.String(), fmt.Sprintf("port carries %s labels", want))
	}
	if lt == LabelPort {
		return Target{Port: port, OriginalPort: portName, Type: LabelPort}, nil
	}

	l, err := normalize(label)
	if err != nil {
		return Target{}, xerrors.InvalidLabel(portName, label.String(), err.Error())
	}
	if lt != LabelOTN && !l.Single() {
		return Target{}, xerrors.InvalidLabel(portName, l.String(), "must be a single value")
	}
	if port.Label != nil && len(port.Label.Values) > 0 && !port.Label.contains(l) {
		return Target{}, xerrors.InvalidLabel(portName, l.String(),
			fmt.Sprintf("outside port range %s", port.Label.Value))
	}
	return Target{
		Port:         port,
		OriginalPort: portName,
		Type:         lt,
		Value:        l.Value,
		Channels:     append([]int(nil), l.Values...),
	}, nil
}

// CanConnect reports whether the two endpoints may be joined.  Unknown
// ports never connect; otherwise only the label types matter.
func (r *Resolver) CanConnect(portA string, labelA *Label, portB string, labelB *Label) bool {
	if _, ok := r.topo.Lookup(portA); !ok {
		return false
	}
	if _, ok := r.topo.Lookup(portB); !ok {
		return false
	}
	return r.compat.Allows(TypeOf(labelA), TypeOf(labelB))
}

// normalize fills Values for labels built as literals and re-checks the
// legal range.
func normalize(l *Label) (*Label, error) {
	if len(l.Values) > 0 {
		if reason := l.rangeError(); reason != "" {
			return nil, fmt.Errorf("%s", reason)
		}
		return l, nil
	}
	parsed, err := ParseLabel(l.Type, l.Value)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}
