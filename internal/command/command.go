// Package command defines the vendor-neutral command model produced by
// the compilers: ordered Commands tagged with the structural operation
// they perform, typed text templates, and the encoders shared by
// several vendors (OTN timeslot bitmask, bandwidth policer values).
package command

import (
	"fmt"
	"strings"
)

// Op is the structural effect of a command on a device resource.
// Activation and deactivation scripts are paired through it.
type Op int

const (
	Create       Op = iota // provision and bring into service
	Size                   // modify an existing resource (slot count, tagging, mtu)
	Connect                // bind two facilities
	Disconnect             // remove a binding
	OutOfService           // take a resource out of service
	Delete                 // remove a provisioned resource
)

var opNames = [...]string{"create", "size", "connect", "disconnect", "out-of-service", "delete"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Command is one device instruction.
type Command struct {
	Op       Op
	Resource string // device-side resource the command touches
	Text     string // rendered command line or configuration fragment

	// Check is a read-only filter run before anything is applied.  A
	// non-empty reply means the resource is already configured.
	Check string
}

func (c Command) String() string {
	return fmt.Sprintf("%s %s", c.Op, c.Resource)
}

// Script is an ordered command list, executed first to last.
type Script []Command

// Texts returns the command texts in order.
func (s Script) Texts() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Text
	}
	return out
}

// Checks returns the non-empty pre-check filters in order.
func (s Script) Checks() []string {
	var out []string
	for _, c := range s {
		if c.Check != "" {
			out = append(out, c.Check)
		}
	}
	return out
}

// Ops returns the structural operations in order.
func (s Script) Ops() []Op {
	out := make([]Op, len(s))
	for i, c := range s {
		out[i] = c.Op
	}
	return out
}

// Steps returns "op resource" pairs, handy in logs.
func (s Script) Steps() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.String()
	}
	return out
}

func (s Script) String() string { return strings.Join(s.Texts(), "\n") }
