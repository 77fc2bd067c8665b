// Package topology holds the static port map and resolves (port, label)
// pairs from a reservation into per-call Targets.
//
// Ports are loaded once from configuration and never mutated while
// requests are served, so a Topology and its Resolver are safe for
// concurrent use.
package topology

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	xerrors "xconnect/internal/errors"
)

// LabelType names a sub-channel addressing scheme.
type LabelType string

const (
	LabelPort LabelType = "port" // whole port, no sub-channel
	LabelVLAN LabelType = "vlan"
	LabelMPLS LabelType = "mpls"
	LabelOTN  LabelType = "otn"
)

// Legal value ranges per label type.
const (
	MaxVLAN     = 4095
	MaxMPLS     = 1048575
	MaxTimeslot = 80
)

// ParseLabelType converts a config or CLI string into a LabelType.
func ParseLabelType(s string) (LabelType, error) {
	switch t := LabelType(strings.ToLower(strings.TrimSpace(s))); t {
	case LabelPort, LabelVLAN, LabelMPLS, LabelOTN:
		return t, nil
	case "":
		return LabelPort, nil
	default:
		return "", fmt.Errorf("%w: unknown label type %q", xerrors.ErrInvalidLabel, s)
	}
}

// Label is a requested sub-channel on a port.  A nil *Label means the
// whole port.
type Label struct {
	Type   LabelType
	Value  string // as requested, e.g. "100" or "1-5"
	Values []int  // sorted, de-duplicated enumeration of Value
}

// ParseLabel parses value for the given type.  Accepted forms are a
// single value ("5"), a range ("1-5") or a comma list of both
// ("1-3,7,9-10").  Every value is checked against the type's legal
// range.
func ParseLabel(t LabelType, value string) (*Label, error) {
	if t == LabelPort {
		return nil, nil
	}
	values, err := enumerate(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%s: %v", xerrors.ErrInvalidLabel, t, value, err)
	}
	l := &Label{Type: t, Value: strings.TrimSpace(value), Values: values}
	if reason := l.rangeError(); reason != "" {
		return nil, fmt.Errorf("%w: %s=%s: %s", xerrors.ErrInvalidLabel, t, value, reason)
	}
	return l, nil
}

// MustParseLabel is ParseLabel for literals known to be valid.
func MustParseLabel(t LabelType, value string) *Label {
	l, err := ParseLabel(t, value)
	if err != nil {
		panic(err)
	}
	return l
}

// TypeOf returns the label type, LabelPort for a nil label.
func TypeOf(l *Label) LabelType {
	if l == nil || l.Type == "" {
		return LabelPort
	}
	return l.Type
}

func (l *Label) String() string {
	if l == nil {
		return string(LabelPort)
	}
	return fmt.Sprintf("%s=%s", l.Type, l.Value)
}

// Canonical renders Values as sorted, merged runs, e.g. "1-3,7", so
// every spelling of the same set renders alike.  A literal label
// without Values is parsed first; an unparseable one renders as its
// trimmed Value.
func (l *Label) Canonical() string {
	if l == nil {
		return ""
	}
	values := append([]int(nil), l.Values...)
	if len(values) == 0 {
		parsed, err := enumerate(l.Value)
		if err != nil {
			return strings.TrimSpace(l.Value)
		}
		values = parsed
	}
	sort.Ints(values)
	uniq := values[:0]
	for _, v := range values {
		if len(uniq) == 0 || v != uniq[len(uniq)-1] {
			uniq = append(uniq, v)
		}
	}
	var sb strings.Builder
	for i := 0; i < len(uniq); {
		j := i
		for j+1 < len(uniq) && uniq[j+1] == uniq[j]+1 {
			j++
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(uniq[i]))
		if j > i {
			sb.WriteByte('-')
			sb.WriteString(strconv.Itoa(uniq[j]))
		}
		i = j + 1
	}
	return sb.String()
}

// Single reports whether the label names exactly one value.
func (l *Label) Single() bool { return l != nil && len(l.Values) == 1 }

// rangeError returns a non-empty reason when a value is outside the
// type's legal range.
func (l *Label) rangeError() string {
	lo, hi := 0, 0
	switch l.Type {
	case LabelVLAN:
		lo, hi = 1, MaxVLAN
	case LabelMPLS:
		lo, hi = 0, MaxMPLS
	case LabelOTN:
		lo, hi = 1, MaxTimeslot
	default:
		return fmt.Sprintf("unknown label type %q", l.Type)
	}
	if len(l.Values) == 0 {
		return "empty value"
	}
	for _, v := range l.Values {
		if v < lo || v > hi {
			return fmt.Sprintf("value %d outside %d-%d", v, lo, hi)
		}
	}
	return ""
}

// contains reports whether every value of other is in l.
func (l *Label) contains(other *Label) bool {
	set := make(map[int]struct{}, len(l.Values))
	for _, v := range l.Values {
		set[v] = struct{}{}
	}
	for _, v := range other.Values {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

func enumerate(value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty value")
	}
	seen := make(map[int]struct{})
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("bad value %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("bad range %q", part)
			}
			if last < first {
				return nil, fmt.Errorf("descending range %q", part)
			}
			if last-first > MaxMPLS {
				return nil, fmt.Errorf("range %q too large", part)
			}
		}
		for v := first; v <= last; v++ {
			seen[v] = struct{}{}
		}
	}
	values := make([]int, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Ints(values)
	return values, nil
}
