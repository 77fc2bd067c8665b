package junosmx

import (
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xconnect/internal/command"
	xerrors "xconnect/internal/errors"
	"xconnect/internal/session"
	"xconnect/internal/topology"
	"xconnect/internal/vendors"
)

func testProfile(t *testing.T, opts vendor.Options) *Profile {
	t.Helper()
	if opts.Routers == nil {
		opts.Routers = map[string]string{"core.net": "10.0.0.2"}
	}
	if opts.VCIDPrefix == "" {
		opts.VCIDPrefix = "4"
	}
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

func testResolver(t *testing.T, p *Profile) *topology.Resolver {
	t.Helper()
	mpls := func() *topology.Label { return &topology.Label{Type: topology.LabelMPLS} }
	topo, err := topology.NewTopology([]topology.Port{
		{Name: "client", Interface: "ge-0/0/0"},
		{Name: "access-1", Interface: "ge-0/0/1", Label: topology.MustParseLabel(topology.LabelVLAN, "100-199")},
		{Name: "access-2", Interface: "ge-0/0/2", Label: topology.MustParseLabel(topology.LabelVLAN, "1-4095")},
		{Name: "core", Interface: "xe-1/0/0", Label: mpls(), RemoteNetwork: "core.net", RemotePort: "core-pe"},
		{Name: "core-2", Interface: "xe-1/0/1", Label: mpls(), RemoteNetwork: "core.net", RemotePort: "core-pe-2"},
		{Name: "stray", Interface: "xe-2/0/0", Label: mpls(), RemoteNetwork: "unknown.net"},
		{Name: "loop", Interface: "lt-0/0/0", Label: mpls()},
	})
	require.NoError(t, err)
	return topology.NewResolver(topo, p.LabelTypes(), p.Compatibility())
}

func request(t *testing.T, r *topology.Resolver, src string, srcLabel *topology.Label, dst string, dstLabel *topology.Label, mbps int64) vendor.Request {
	t.Helper()
	s, err := r.Resolve(src, srcLabel)
	require.NoError(t, err)
	d, err := r.Resolve(dst, dstLabel)
	require.NoError(t, err)
	return vendor.Request{ConnectionID: "JunosMX-000001", Src: s, Dst: d, BandwidthMbps: mbps}
}

func vlan(v string) *topology.Label { return topology.MustParseLabel(topology.LabelVLAN, v) }
func mpls(v string) *topology.Label { return topology.MustParseLabel(topology.LabelMPLS, v) }

func TestRegistered(t *testing.T) {
	p, err := vendor.New(Name, vendor.Options{})
	require.NoError(t, err)
	assert.Equal(t, Name, p.Name())

	_, err = vendor.New(Name, vendor.Options{Description: "{{.Nope"})
	var cerr *xerrors.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(vendor.Options{Description: "{{"})
	assert.Error(t, err)
	_, err = New(vendor.Options{VCIDPrefix: "4x"})
	var cerr *xerrors.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "vc_id_prefix", cerr.Field)
}

func TestActivate_LocalVLAN(t *testing.T) {
	p := testProfile(t, vendor.Options{})
	req := request(t, testResolver(t, p), "access-1", vlan("150"), "access-2", vlan("300"), 0)

	act, err := p.Activate(req)
	require.NoError(t, err)
	assert.Equal(t, []command.Op{command.Create, command.Create, command.Connect, command.Connect}, act.Ops())
	assert.Equal(t, `<interfaces><interface><name>ge-0/0/1</name><unit><name>150</name>`+
		`<description>xconnect JunosMX-000001</description><encapsulation>vlan-ccc</encapsulation>`+
		`<vlan-id>150</vlan-id><input-vlan-map><pop/></input-vlan-map><output-vlan-map><push/></output-vlan-map>`+
		`</unit></interface></interfaces>`, act[0].Text)
	assert.Equal(t, `<configuration><interfaces><interface><name>ge-0/0/1</name><unit><name>150</name></unit>`+
		`</interface></interfaces></configuration>`, act[0].Check)
	assert.Equal(t, `<protocols><connections><interface-switch><name>xc-JunosMX-000001</name>`+
		`<interface><name>ge-0/0/2.300</name></interface></interface-switch></connections></protocols>`, act[3].Text)
	assert.Equal(t, []string{act[0].Check, act[1].Check}, act.Checks())

	deact, err := p.Deactivate(req)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`<protocols><connections><interface-switch operation="delete"><name>xc-JunosMX-000001</name></interface-switch></connections></protocols>`,
		`<interfaces><interface><name>ge-0/0/1</name><unit operation="delete"><name>150</name></unit></interface></interfaces>`,
		`<interfaces><interface><name>ge-0/0/2</name><unit operation="delete"><name>300</name></unit></interface></interfaces>`,
	}, deact.Texts())
	require.NoError(t, command.VerifyInverse(act, deact))
}

func TestActivate_WholePort(t *testing.T) {
	p := testProfile(t, vendor.Options{})
	req := request(t, testResolver(t, p), "client", nil, "access-1", vlan("100"), 0)

	act, err := p.Activate(req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(act[0].Text,
		`<interfaces><interface><name>ge-0/0/0</name><encapsulation>ethernet-ccc</encapsulation><mtu>9000</mtu>`))
	assert.Contains(t, act[0].Check, "<unit><name>0</name></unit>")
	assert.Contains(t, act[2].Text, "<name>ge-0/0/0.0</name>")

	deact, err := p.Deactivate(req)
	require.NoError(t, err)
	assert.Equal(t, `<interfaces><interface operation="delete"><name>ge-0/0/0</name></interface></interfaces>`, deact[1].Text)
	require.NoError(t, command.VerifyInverse(act, deact))
}

func TestActivate_Pseudowire(t *testing.T) {
	p := testProfile(t, vendor.Options{})
	r := testResolver(t, p)

	// The MPLS side may be either endpoint.
	for _, req := range []vendor.Request{
		request(t, r, "access-1", vlan("120"), "core", mpls("300"), 0),
		request(t, r, "core", mpls("300"), "access-1", vlan("120"), 0),
	} {
		act, err := p.Activate(req)
		require.NoError(t, err)
		assert.Equal(t, []command.Op{command.Create, command.Connect}, act.Ops())
		assert.Equal(t, `<protocols><l2circuit><neighbor><name>10.0.0.2</name><interface><name>ge-0/0/1.120</name>`+
			`<virtual-circuit-id>410300</virtual-circuit-id><description>xconnect JunosMX-000001</description>`+
			`<no-control-word/><ignore-mtu-mismatch/></interface></neighbor></l2circuit></protocols>`, act[1].Text)
		assert.Equal(t, "l2circuit:10.0.0.2:ge-0/0/1.120", act[1].Resource)

		deact, err := p.Deactivate(req)
		require.NoError(t, err)
		assert.Equal(t, []command.Op{command.Disconnect, command.Delete}, deact.Ops())
		assert.Contains(t, deact[0].Text, `<interface operation="delete"><name>ge-0/0/1.120</name>`)
		require.NoError(t, command.VerifyInverse(act, deact))
	}
}

func TestActivate_Errors(t *testing.T) {
	p := testProfile(t, vendor.Options{})
	r := testResolver(t, p)

	tests := []struct {
		name string
		req  vendor.Request
		want error
	}{
		{"mpls both sides", request(t, r, "core", mpls("1"), "core-2", mpls("2"), 0), xerrors.ErrUnsupportedShape},
		{"mpls not facing a peer", request(t, r, "loop", mpls("1"), "access-1", vlan("100"), 0), xerrors.ErrUnsupportedShape},
		{"no loopback", request(t, r, "stray", mpls("1"), "access-1", vlan("100"), 0), xerrors.ErrMissingTopologyData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Activate(tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, xerrors.BeforeDeviceIO(err))
			_, err = p.Deactivate(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	bad := testProfile(t, vendor.Options{Routers: map[string]string{"core.net": "not-an-address"}})
	_, err := bad.Activate(request(t, r, "core", mpls("1"), "access-1", vlan("100"), 0))
	assert.ErrorIs(t, err, xerrors.ErrInvalidTemplateArgs)
}

func TestActivate_QoS(t *testing.T) {
	p := testProfile(t, vendor.Options{EnableQoS: true})
	req := request(t, testResolver(t, p), "access-1", vlan("150"), "core", mpls("7"), 100)

	act, err := p.Activate(req)
	require.NoError(t, err)
	require.Equal(t, command.Create, act[0].Op)
	assert.Equal(t, `<firewall><policer><name>xc-JunosMX-000001-bw</name><if-exceeding>`+
		`<bandwidth-limit>100000000</bandwidth-limit><burst-size-limit>62500</burst-size-limit>`+
		`</if-exceeding><then><discard/></then></policer></firewall>`, act[0].Text)
	assert.Contains(t, act[1].Text,
		`<family><ccc><policer><input>xc-JunosMX-000001-bw</input><output>xc-JunosMX-000001-bw</output></policer></ccc></family>`)

	deact, err := p.Deactivate(req)
	require.NoError(t, err)
	last := deact[len(deact)-1]
	assert.Equal(t, command.Delete, last.Op)
	assert.Equal(t, "policer xc-JunosMX-000001-bw", last.Resource)
	require.NoError(t, command.VerifyInverse(act, deact))

	// No bandwidth, no policer.
	req.BandwidthMbps = 0
	act, err = p.Activate(req)
	require.NoError(t, err)
	assert.NotContains(t, act.Texts()[0], "policer")
}

func TestDescription(t *testing.T) {
	p := testProfile(t, vendor.Options{Description: `{{.ConnectionID}} "what?" it's <{{.BandwidthMbps}}> & more`})
	req := request(t, testResolver(t, p), "access-1", vlan("150"), "access-2", vlan("151"), 10)
	act, err := p.Activate(req)
	require.NoError(t, err)
	assert.Contains(t, act[0].Text, "<description>JunosMX-000001 what its &lt;10&gt; &amp; more</description>")
}

func TestCanConnect_Symmetric(t *testing.T) {
	p := testProfile(t, vendor.Options{})
	r := testResolver(t, p)
	labels := []*topology.Label{
		nil, vlan("150"), mpls("5"), topology.MustParseLabel(topology.LabelOTN, "1"),
	}
	ports := []string{"client", "access-1", "core", "missing"}
	for _, a := range ports {
		for _, b := range ports {
			for _, x := range labels {
				for _, y := range labels {
					assert.Equal(t, r.CanConnect(a, x, b, y), r.CanConnect(b, y, a, x),
						"%s/%v <-> %s/%v", a, x, b, y)
				}
			}
		}
	}
	assert.True(t, r.CanConnect("client", nil, "core", mpls("5")))
	assert.True(t, r.CanConnect("access-1", vlan("150"), "core", mpls("5")))
	assert.False(t, r.CanConnect("client", nil, "access-1", topology.MustParseLabel(topology.LabelOTN, "1")))
}

func TestDeactivate_InverseProperty(t *testing.T) {
	r := testResolver(t, testProfile(t, vendor.Options{}))
	properties := gopter.NewProperties(nil)

	properties.Property("deactivation inverts activation", prop.ForAll(
		func(v, label int, qos, pseudowire bool, mbps int64) bool {
			p := testProfile(t, vendor.Options{EnableQoS: qos})
			src, err := r.Resolve("access-1", &topology.Label{Type: topology.LabelVLAN, Values: []int{v}})
			if err != nil {
				return false
			}
			dstPort, dstLabel := "client", (*topology.Label)(nil)
			if pseudowire {
				dstPort, dstLabel = "core", &topology.Label{Type: topology.LabelMPLS, Values: []int{label}}
			}
			dst, err := r.Resolve(dstPort, dstLabel)
			if err != nil {
				return false
			}
			req := vendor.Request{ConnectionID: "JunosMX-1", Src: src, Dst: dst, BandwidthMbps: mbps}
			act, err1 := p.Activate(req)
			deact, err2 := p.Deactivate(req)
			return err1 == nil && err2 == nil && command.VerifyInverse(act, deact) == nil
		},
		gen.IntRange(100, 199),
		gen.IntRange(0, topology.MaxMPLS),
		gen.Bool(),
		gen.Bool(),
		gen.Int64Range(0, 10000),
	))
	properties.TestingRun(t)
}

func TestDialect(t *testing.T) {
	p := testProfile(t, vendor.Options{})
	d, err := p.Dialect(vendor.SessionParams{ConnectionID: "JunosMX-000001"})
	require.NoError(t, err)

	assert.Equal(t, session.NetconfDelimiter, d.LineEnding)
	require.Len(t, d.Login, 2)
	assert.Nil(t, d.Login[0].Match, "client hello expects no answer")
	assert.Contains(t, d.Login[0].Text, "<hello")
	assert.Equal(t, `<rpc message-id="1"><open-configuration><private/></open-configuration></rpc>`, d.Login[1].Text)
	assert.Contains(t, d.Commit[0].Text, "<check/>")
	assert.Contains(t, d.Commit[1].Text, "<log>xconnect JunosMX-000001</log>")

	texts := []string{d.Login[1].Text, d.Commit[0].Text, d.Commit[1].Text, d.Logout[0], d.Logout[1],
		d.Render("<interfaces/>"), d.PreCheck("<configuration/>"), d.Render("<protocols/>")}
	messageID := regexp.MustCompile(`^<rpc message-id="(\d+)">`)
	seen := map[string]bool{}
	for _, s := range texts {
		m := messageID.FindStringSubmatch(s)
		require.Len(t, m, 2, s)
		assert.False(t, seen[m[1]], "duplicate message-id %s", m[1])
		seen[m[1]] = true
	}

	assert.Equal(t, `<rpc message-id="6"><load-configuration action="merge" format="xml">`+
		`<configuration><interfaces/></configuration></load-configuration></rpc>`, texts[5])
	assert.Equal(t, `<rpc message-id="7"><get-config><source><running/></source>`+
		`<filter type="subtree"><configuration/></filter></get-config></rpc>`, texts[6])
}
