// Package junosmx drives Juniper MX routers over NETCONF.
//
// Whole ports and VLAN units are joined locally with an
// interface-switch.  A connection with an MPLS side becomes an
// l2circuit pseudowire from the local unit to the loopback of the
// router in the MPLS side's peer network.  Every unit is checked for
// existing configuration before anything is loaded.
package junosmx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"xconnect/internal/command"
	xerrors "xconnect/internal/errors"
	"xconnect/internal/topology"
	"xconnect/internal/transport"
	"xconnect/internal/vendors"
)

const Name = "junosmx"

// DefaultDescription is used when Options.Description is empty.
const DefaultDescription = "xconnect {{.ConnectionID}}"

// VCIDOffset is added to the MPLS label to form the virtual circuit id.
const VCIDOffset = 10000

func init() {
	vendor.Register(Name, func(opts vendor.Options) (vendor.Profile, error) {
		p, err := New(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Profile is a Junos MX router in one network.
type Profile struct {
	routers     map[string]string
	vcidPrefix  string
	qos         bool
	description *template.Template
}

// New builds a profile from opts.
func New(opts vendor.Options) (*Profile, error) {
	text := opts.Description
	if text == "" {
		text = DefaultDescription
	}
	desc, err := template.New("description").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &xerrors.ConfigError{Field: "description", Value: text, Message: err.Error()}
	}
	if opts.VCIDPrefix != "" {
		if _, err := strconv.ParseUint(opts.VCIDPrefix, 10, 32); err != nil {
			return nil, &xerrors.ConfigError{Field: "vc_id_prefix", Value: opts.VCIDPrefix,
				Message: "must be a decimal number"}
		}
	}
	routers := make(map[string]string, len(opts.Routers))
	for n, ip := range opts.Routers {
		routers[n] = ip
	}
	return &Profile{
		routers:     routers,
		vcidPrefix:  opts.VCIDPrefix,
		qos:         opts.EnableQoS,
		description: desc,
	}, nil
}

func (*Profile) Name() string               { return Name }
func (*Profile) IDPrefix() string           { return "JunosMX" }
func (*Profile) Service() transport.Service { return transport.Netconf }

func (*Profile) LabelTypes() []topology.LabelType {
	return []topology.LabelType{topology.LabelPort, topology.LabelVLAN, topology.LabelMPLS}
}

func (*Profile) Compatibility() topology.Compatibility {
	return topology.NewCompatibility(map[topology.LabelType][]topology.LabelType{
		topology.LabelMPLS: {topology.LabelVLAN, topology.LabelPort},
		topology.LabelVLAN: {topology.LabelPort},
	})
}

// SwitchName names the interface-switch carrying a connection.
func SwitchName(connectionID string) string { return "xc-" + connectionID }

// PolicerName names the policer limiting a connection.
func PolicerName(connectionID string) string { return "xc-" + connectionID + "-bw" }

// VCID returns the virtual circuit id for an MPLS label.
func (p *Profile) VCID(label int) string {
	return p.vcidPrefix + strconv.Itoa(label+VCIDOffset)
}

// ── Compilation ─────────────────────────────────────────────────────

// plan is the shape-independent view of a request: the attachment
// units on this router and, for a pseudowire, the MPLS side.
type plan struct {
	units   []topology.Target
	mpls    *topology.Target
	desc    string
	policer string
	bw      command.Bandwidth
}

func (p *Profile) plan(req vendor.Request) (*plan, error) {
	pl := &plan{}
	for _, t := range []topology.Target{req.Src, req.Dst} {
		t := t // per-iteration copy: pl.mpls keeps &t (go1.21 loop semantics)
		if t.Type != topology.LabelMPLS {
			pl.units = append(pl.units, t)
			continue
		}
		if pl.mpls != nil {
			return nil, xerrors.UnsupportedShape(Name, "mpls -> mpls stitching")
		}
		if !t.Port.IsRemote() {
			return nil, xerrors.UnsupportedShape(Name,
				fmt.Sprintf("mpls port %s does not face a peer network", t.OriginalPort))
		}
		pl.mpls = &t
	}

	desc, err := p.renderDescription(req)
	if err != nil {
		return nil, vendor.RenderError(Name, err)
	}
	pl.desc = desc
	if p.qos && req.BandwidthMbps > 0 {
		pl.policer = PolicerName(req.ConnectionID)
		pl.bw = command.BandwidthFor(req.BandwidthMbps)
	}
	return pl, nil
}

func (p *Profile) renderDescription(req vendor.Request) (string, error) {
	var b strings.Builder
	if err := p.description.Execute(&b, req); err != nil {
		return "", err
	}
	return escape(strings.TrimSpace(strings.NewReplacer("?", "", `"`, "", "'", "").Replace(b.String()))), nil
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s)) // writes to a bytes.Buffer cannot fail
	return b.String()
}

func (p *Profile) neighbor(t *topology.Target) (string, error) {
	ip, ok := p.routers[t.Port.RemoteNetwork]
	if !ok || ip == "" {
		return "", xerrors.MissingTopologyData(Name,
			fmt.Sprintf("no router loopback for network %q", t.Port.RemoteNetwork))
	}
	return ip, nil
}

// unitNumber is the logical unit a target attaches to: the VLAN id, or
// 0 for a whole port.
func unitNumber(t topology.Target) int {
	if t.Type == topology.LabelVLAN {
		return t.First()
	}
	return 0
}

func unitResource(t topology.Target) string {
	if t.WholePort() {
		return t.Port.Interface
	}
	return fmt.Sprintf("%s.%d", t.Port.Interface, unitNumber(t))
}

func (p *Profile) circuit(pl *plan, unit topology.Target) (circuitArgs, error) {
	ip, err := p.neighbor(pl.mpls)
	if err != nil {
		return circuitArgs{}, err
	}
	return circuitArgs{
		Neighbor:    ip,
		Port:        unit.Port.Interface,
		Unit:        unitNumber(unit),
		VCID:        p.VCID(pl.mpls.First()),
		Description: pl.desc,
	}, nil
}

func circuitResource(a circuitArgs) string {
	return fmt.Sprintf("l2circuit:%s:%s.%d", a.Neighbor, a.Port, a.Unit)
}

// Activate loads the policer, then the units, then the binding.
func (p *Profile) Activate(req vendor.Request) (command.Script, error) {
	pl, err := p.plan(req)
	if err != nil {
		return nil, err
	}
	var b command.Builder
	if pl.policer != "" {
		b.Add(policer, "policer "+pl.policer, policerArgs{Name: pl.policer, Rate: pl.bw.Rate, Burst: pl.bw.Burst})
	}
	for _, u := range pl.units {
		args := unitArgs{Port: u.Port.Interface, Unit: unitNumber(u), Description: pl.desc, Policer: pl.policer}
		filter, err := unitFilter.Render(args)
		if err != nil {
			return nil, vendor.RenderError(Name, err)
		}
		tmpl := vlanUnit
		if u.WholePort() {
			tmpl = portUnit
		}
		b.AddChecked(tmpl, unitResource(u), filter, args)
	}

	if pl.mpls != nil {
		ca, err := p.circuit(pl, pl.units[0])
		if err != nil {
			return nil, err
		}
		b.Add(l2circuit, circuitResource(ca), ca)
	} else {
		sw := SwitchName(req.ConnectionID)
		for _, u := range pl.units {
			b.Add(interfaceSwitch, "interface-switch "+sw,
				switchArgs{Switch: sw, Port: u.Port.Interface, Unit: unitNumber(u)})
		}
	}

	s, err := b.Script()
	if err != nil {
		return nil, vendor.RenderError(Name, err)
	}
	return s, nil
}

// Deactivate removes the binding, then the units, then the policer.
func (p *Profile) Deactivate(req vendor.Request) (command.Script, error) {
	pl, err := p.plan(req)
	if err != nil {
		return nil, err
	}
	var b command.Builder
	if pl.mpls != nil {
		ca, err := p.circuit(pl, pl.units[0])
		if err != nil {
			return nil, err
		}
		b.Add(deleteCircuit, circuitResource(ca), ca)
	} else {
		sw := SwitchName(req.ConnectionID)
		u := pl.units[0]
		b.Add(deleteSwitch, "interface-switch "+sw, switchArgs{Switch: sw, Port: u.Port.Interface, Unit: unitNumber(u)})
	}

	for _, u := range pl.units {
		args := unitArgs{Port: u.Port.Interface, Unit: unitNumber(u)}
		if u.WholePort() {
			b.Add(deletePort, unitResource(u), args)
		} else {
			b.Add(deleteVLAN, unitResource(u), args)
		}
	}
	if pl.policer != "" {
		b.Add(deletePolicer, "policer "+pl.policer, policerArgs{Name: pl.policer, Rate: pl.bw.Rate, Burst: pl.bw.Burst})
	}

	s, err := b.Script()
	if err != nil {
		return nil, vendor.RenderError(Name, err)
	}
	return s, nil
}
