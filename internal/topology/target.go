package topology

import (
	"fmt"
	"strings"
)

// Target is a (port, label) pair resolved for a single setup or
// teardown call.  It is never stored.
type Target struct {
	Port         *Port
	OriginalPort string    // port name as requested
	Type         LabelType // LabelPort for a whole port
	Value        string    // requested label value, empty for a whole port
	Channels     []int     // enumerated sub-channels, nil for a whole port
}

// WholePort reports whether the target carries no sub-channel label.
func (t Target) WholePort() bool { return t.Type == LabelPort }

// First returns the lowest sub-channel, or 0 for a whole port.
func (t Target) First() int {
	if len(t.Channels) == 0 {
		return 0
	}
	return t.Channels[0]
}

func (t Target) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s#", t.OriginalPort)
	if !t.WholePort() {
		fmt.Fprintf(&b, "%s=%s", t.Type, t.Value)
	}
	if t.Port != nil && t.Port.IsRemote() {
		fmt.Fprintf(&b, " -> %s", t.Port.RemotePort)
	}
	b.WriteByte('>')
	return b.String()
}

// Shape classifies a connection by where its endpoints terminate.
type Shape int

const (
	Local   Shape = iota // neither side remote
	Transit              // both sides remote
	Edge                 // exactly one side remote
)

func (s Shape) String() string {
	switch s {
	case Local:
		return "local"
	case Transit:
		return "transit"
	case Edge:
		return "edge"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ShapeOf derives the connection shape from the two targets' ports.
func ShapeOf(src, dst Target) Shape {
	sr, dr := src.Port.IsRemote(), dst.Port.IsRemote()
	switch {
	case !sr && !dr:
		return Local
	case sr && dr:
		return Transit
	default:
		return Edge
	}
}

// SplitEdge returns the local and remote sides of an Edge connection.
func SplitEdge(src, dst Target) (local, remote Target) {
	if src.Port.IsRemote() {
		return dst, src
	}
	return src, dst
}
