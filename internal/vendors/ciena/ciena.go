// Package ciena drives Ciena OTN switches over TL1.
//
// Client ports are provisioned as sub-rated Ethernet facilities
// (ETH10GFLEX) sized in 1 Gbps ODUflex timeslots; line ports carry
// ODUCTP facilities addressed by their first timeslot and described by
// a TSASSIGNMENT bitmask.
package ciena

import (
	"fmt"

	"xconnect/internal/command"
	xerrors "xconnect/internal/errors"
	"xconnect/internal/session"
	"xconnect/internal/topology"
	"xconnect/internal/transport"
	"xconnect/internal/vendors"
)

// Name is the registry tag.
const Name = "ciena"

// SlotMbps is the capacity of one ODUflex timeslot.
const SlotMbps = 1000

func init() {
	vendor.Register(Name, func(vendor.Options) (vendor.Profile, error) { return Profile{}, nil })
}

// Profile is the Ciena TL1 profile.
type Profile struct{}

func (Profile) Name() string                      { return Name }
func (Profile) IDPrefix() string                  { return "Ciena" }
func (Profile) Service() transport.Service        { return transport.Shell }
func (Profile) LabelTypes() []topology.LabelType { return []topology.LabelType{topology.LabelPort, topology.LabelOTN} }

func (Profile) Compatibility() topology.Compatibility {
	return topology.NewCompatibility(map[topology.LabelType][]topology.LabelType{
		topology.LabelOTN: {topology.LabelPort},
	})
}

// Tag returns the TL1 correlation tag for a connection: the last six
// characters of its id.
func Tag(connectionID string) string {
	if len(connectionID) <= 6 {
		return connectionID
	}
	return connectionID[len(connectionID)-6:]
}

// WholePortSlots sizes a whole client port for the requested
// bandwidth: one timeslot per started Gbps, at least one.
func WholePortSlots(mbps int64) int {
	n := int((mbps + SlotMbps - 1) / SlotMbps)
	if n < 1 {
		return 1
	}
	return n
}

// ── Activation ──────────────────────────────────────────────────────

func (p Profile) Activate(req vendor.Request) (command.Script, error) {
	c := compiler{req: req, tag: Tag(req.ConnectionID)}
	switch req.Shape() {
	case topology.Local, topology.Transit:
		return c.passThrough(true)
	default:
		return c.edge(true)
	}
}

func (p Profile) Deactivate(req vendor.Request) (command.Script, error) {
	c := compiler{req: req, tag: Tag(req.ConnectionID)}
	switch req.Shape() {
	case topology.Local, topology.Transit:
		return c.passThrough(false)
	default:
		return c.edge(false)
	}
}

type compiler struct {
	req vendor.Request
	tag string
	b   command.Builder
}

// passThrough cross-connects two facilities of the same kind: two whole
// client ports, or two timeslot groups.
func (c *compiler) passThrough(activate bool) (command.Script, error) {
	src, dst := c.req.Src, c.req.Dst
	switch {
	case src.WholePort() && dst.WholePort():
		slots := WholePortSlots(c.req.BandwidthMbps)
		xc := c.crossConnect(src.Port.Interface, 1, dst.Port.Interface, 1)
		if activate {
			c.clientUp(src.Port.Interface, slots)
			c.clientUp(dst.Port.Interface, slots)
			c.connect(xc)
		} else {
			c.disconnect(xc)
			c.clientDown(src.Port.Interface)
			c.clientDown(dst.Port.Interface)
		}

	case src.Type == topology.LabelOTN && dst.Type == topology.LabelOTN:
		xc := c.crossConnect(src.Port.Interface, src.First(), dst.Port.Interface, dst.First())
		if activate {
			c.lineUp(src)
			c.lineUp(dst)
			c.connect(xc)
		} else {
			c.disconnect(xc)
			c.lineDown(src)
			c.lineDown(dst)
		}

	default:
		return nil, c.unsupported()
	}
	return c.script()
}

// edge joins a whole client port to a timeslot group on a line port
// facing the peer network.  The client facility is sized to the
// timeslot count of the line side.
func (c *compiler) edge(activate bool) (command.Script, error) {
	local, remote := topology.SplitEdge(c.req.Src, c.req.Dst)
	if !local.WholePort() || remote.Type != topology.LabelOTN {
		return nil, c.unsupported()
	}
	xc := c.crossConnect(local.Port.Interface, 1, remote.Port.Interface, remote.First())
	if activate {
		c.clientUp(local.Port.Interface, len(remote.Channels))
		c.lineUp(remote)
		c.connect(xc)
	} else {
		c.disconnect(xc)
		c.lineDown(remote)
		c.clientDown(local.Port.Interface)
	}
	return c.script()
}

func (c *compiler) unsupported() error {
	return xerrors.UnsupportedShape(Name, fmt.Sprintf("%s %s -> %s",
		c.req.Shape(), c.req.Src.Type, c.req.Dst.Type))
}

func (c *compiler) script() (command.Script, error) {
	s, err := c.b.Script()
	if err != nil {
		return nil, vendor.RenderError(Name, err)
	}
	return s, nil
}

// ── Facility steps ──────────────────────────────────────────────────

func ptp(iface string) string { return "PTP-" + iface }

func oductp(iface string, facility int) string {
	return fmt.Sprintf("ODUCTP-%s-FP%d", iface, facility)
}

// clientUp brings a client port into service and sizes its single
// ODUCTP facility.
func (c *compiler) clientUp(iface string, slots int) {
	port := portArgs{Port: iface, Tag: c.tag}
	c.b.Add(entPTP, ptp(iface), port)
	c.b.Add(edNumSlots, oductp(iface, 1), sizeArgs{portArgs: port, Slots: slots})
}

func (c *compiler) clientDown(iface string) {
	port := portArgs{Port: iface, Tag: c.tag}
	c.b.Add(rmvPTP, ptp(iface), port)
	c.b.Add(rmvODUCTP, oductp(iface, 1), facilityArgs{portArgs: port, Facility: 1})
	c.b.Add(dltPTP, ptp(iface), port)
}

func (c *compiler) lineUp(t topology.Target) {
	mask, err := command.EncodeTimeslots(t.Channels)
	if err != nil {
		mask = "" // rejected by the template's validation
	}
	c.b.Add(entODUCTP, oductp(t.Port.Interface, t.First()), timeslotArgs{
		facilityArgs: facilityArgs{portArgs: portArgs{Port: t.Port.Interface, Tag: c.tag}, Facility: t.First()},
		Mask:         mask,
	})
}

func (c *compiler) lineDown(t topology.Target) {
	args := facilityArgs{portArgs: portArgs{Port: t.Port.Interface, Tag: c.tag}, Facility: t.First()}
	res := oductp(t.Port.Interface, t.First())
	c.b.Add(rmvODUCTP, res, args)
	c.b.Add(dltODUCTP, res, args)
}

func (c *compiler) crossConnect(src string, srcFP int, dst string, dstFP int) crsArgs {
	return crsArgs{Src: src, SrcFacility: srcFP, Dst: dst, DstFacility: dstFP, Tag: c.tag, Dir: "2WAY"}
}

func (c *compiler) connect(xc crsArgs)    { c.b.Add(entCRS, xc.resource(), xc) }
func (c *compiler) disconnect(xc crsArgs) { c.b.Add(dltCRS, xc.resource(), xc) }

// ── Session ─────────────────────────────────────────────────────────

func (Profile) Dialect(p vendor.SessionParams) (session.Dialect, error) {
	tag := Tag(p.ConnectionID)
	login, err := actUser.Render(loginArgs{User: p.User, Password: p.Password, Tag: tag})
	if err != nil {
		return session.Dialect{}, vendor.RenderError(Name, err)
	}
	logout, err := cancUser.Render(loginArgs{User: p.User, Tag: tag})
	if err != nil {
		return session.Dialect{}, vendor.RenderError(Name, err)
	}
	return session.Dialect{
		Framer:     session.LineFramer{},
		LineEnding: ";",
		Login:      []session.Exchange{{Text: login, Match: session.TL1, Secret: true}},
		Reply:      session.TL1,
		Logout:     []string{logout},
	}, nil
}
