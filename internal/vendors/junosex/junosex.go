// Package junosex drives Juniper EX switches through the Junos CLI.
//
// Only VLAN to VLAN connections are supported.  Each side becomes a
// vlan-ccc logical unit and the two units are joined by a local
// interface-switch, which works whether or not either port faces a peer
// network.
package junosex

import (
	"fmt"
	"strconv"

	"xconnect/internal/command"
	xerrors "xconnect/internal/errors"
	"xconnect/internal/session"
	"xconnect/internal/topology"
	"xconnect/internal/transport"
	"xconnect/internal/vendors"
)

const Name = "junosex"

// EditPrompt is printed by the CLI after every configuration command.
const EditPrompt = "[edit]"

func init() {
	vendor.Register(Name, func(vendor.Options) (vendor.Profile, error) { return Profile{}, nil })
}

type Profile struct{}

func (Profile) Name() string                      { return Name }
func (Profile) IDPrefix() string                  { return "JunosEX" }
func (Profile) Service() transport.Service        { return transport.Shell }
func (Profile) LabelTypes() []topology.LabelType { return []topology.LabelType{topology.LabelVLAN} }

// Compatibility is empty: a VLAN only ever meets another VLAN.
func (Profile) Compatibility() topology.Compatibility { return topology.NewCompatibility(nil) }

// SwitchName names the interface-switch carrying a connection.
func SwitchName(connectionID string) string { return "local-" + connectionID }

type ifaceArgs struct {
	Port string `validate:"required,excludesall= ;\"'"`
}

type unitArgs struct {
	Port string `validate:"required,excludesall= ;\"'"`
	VLAN int    `validate:"min=1,max=4095"`
}

type switchArgs struct {
	Switch string `validate:"required,excludesall= ;\"'"`
	Port   string `validate:"required,excludesall= ;\"'"`
	VLAN   int    `validate:"min=1,max=4095"`
}

var (
	setTagging = command.MustTemplate("vlan-tagging", command.Size,
		"set interfaces {{.Port}} vlan-tagging")
	setMTU = command.MustTemplate("mtu", command.Size,
		"set interfaces {{.Port}} mtu 9000")
	setEncap = command.MustTemplate("encapsulation", command.Size,
		"set interfaces {{.Port}} encapsulation vlan-ccc")

	setUnit = command.MustTemplate("unit", command.Create,
		"set interfaces {{.Port}} unit {{.VLAN}} encapsulation vlan-ccc")
	setVLANID = command.MustTemplate("vlan-id", command.Size,
		"set interfaces {{.Port}} unit {{.VLAN}} vlan-id {{.VLAN}}")
	setSwap = command.MustTemplate("swap-by-poppush", command.Size,
		"set interfaces {{.Port}} unit {{.VLAN}} swap-by-poppush")
	deleteUnit = command.MustTemplate("delete-unit", command.Delete,
		"delete interfaces {{.Port}}.{{.VLAN}}")

	setSwitch = command.MustTemplate("interface-switch", command.Connect,
		"set protocols connections interface-switch {{.Switch}} interface {{.Port}}.{{.VLAN}}")
	deleteSwitch = command.MustTemplate("delete-interface-switch", command.Disconnect,
		"delete protocols connections interface-switch {{.Switch}}")
)

func unit(t topology.Target) unitArgs {
	return unitArgs{Port: t.Port.Interface, VLAN: t.First()}
}

func unitResource(u unitArgs) string { return u.Port + "." + strconv.Itoa(u.VLAN) }

func switchResource(name string) string { return "interface-switch " + name }

func check(req vendor.Request) error {
	if req.Src.Type != topology.LabelVLAN || req.Dst.Type != topology.LabelVLAN {
		return xerrors.UnsupportedShape(Name, fmt.Sprintf("%s -> %s", req.Src.Type, req.Dst.Type))
	}
	return nil
}

// Activate configures both units, then attaches them to the switch.
func (Profile) Activate(req vendor.Request) (command.Script, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	var b command.Builder
	for _, t := range []topology.Target{req.Src, req.Dst} {
		u := unit(t)
		iface := ifaceArgs{Port: u.Port}
		b.Add(setTagging, u.Port, iface)
		b.Add(setMTU, u.Port, iface)
		b.Add(setEncap, u.Port, iface)
		res := unitResource(u)
		b.Add(setUnit, res, u)
		b.Add(setVLANID, res, u)
		b.Add(setSwap, res, u)
	}
	sw := SwitchName(req.ConnectionID)
	for _, t := range []topology.Target{req.Src, req.Dst} {
		u := unit(t)
		b.Add(setSwitch, switchResource(sw), switchArgs{Switch: sw, Port: u.Port, VLAN: u.VLAN})
	}
	s, err := b.Script()
	if err != nil {
		return nil, vendor.RenderError(Name, err)
	}
	return s, nil
}

// Deactivate removes the switch before the units it references.  The
// physical interface settings are shared with other units and stay.
func (Profile) Deactivate(req vendor.Request) (command.Script, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	var b command.Builder
	sw := SwitchName(req.ConnectionID)
	b.Add(deleteSwitch, switchResource(sw), switchArgs{Switch: sw, Port: req.Src.Port.Interface, VLAN: req.Src.First()})
	for _, t := range []topology.Target{req.Src, req.Dst} {
		u := unit(t)
		b.Add(deleteUnit, unitResource(u), u)
	}
	s, err := b.Script()
	if err != nil {
		return nil, vendor.RenderError(Name, err)
	}
	return s, nil
}

func (Profile) Dialect(vendor.SessionParams) (session.Dialect, error) {
	edit := session.Prompt{Marker: EditPrompt}
	return session.Dialect{
		Framer:     session.LineFramer{},
		LineEnding: "\r",
		Login:      []session.Exchange{{Text: "edit private", Match: edit}},
		Reply:      edit,
		Commit:     []session.Exchange{{Text: "commit", Match: session.Prompt{Marker: EditPrompt, Require: "commit complete"}}},
		Logout:     []string{"exit configuration-mode", "exit"},
	}, nil
}
