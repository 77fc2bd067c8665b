package junosmx

import "xconnect/internal/command"

// Values are spliced into XML; the tags keep markup characters out.
// Descriptions are escaped before rendering instead.
type unitArgs struct {
	Port        string `validate:"required,excludesall=<>&\"' "`
	Unit        int    `validate:"min=0,max=4095"`
	Description string
	Policer     string `validate:"omitempty,excludesall=<>&\"' "`
}

type switchArgs struct {
	Switch string `validate:"required,excludesall=<>&\"' "`
	Port   string `validate:"required,excludesall=<>&\"' "`
	Unit   int    `validate:"min=0,max=4095"`
}

type circuitArgs struct {
	Neighbor    string `validate:"required,ip"`
	Port        string `validate:"required,excludesall=<>&\"' "`
	Unit        int    `validate:"min=0,max=4095"`
	VCID        string `validate:"required,numeric,max=10"`
	Description string
}

type policerArgs struct {
	Name  string `validate:"required,excludesall=<>&\"' "`
	Rate  int64  `validate:"min=1"`
	Burst int64  `validate:"min=1"`
}

// Each fragment is the content of a <configuration> element.
var (
	portUnit = command.MustTemplate("interface-port", command.Create,
		`<interfaces><interface><name>{{.Port}}</name><encapsulation>ethernet-ccc</encapsulation><mtu>9000</mtu>`+
			`<unit><name>0</name><description>{{.Description}}</description><family><ccc>`+
			`{{if .Policer}}<policer><input>{{.Policer}}</input><output>{{.Policer}}</output></policer>{{end}}`+
			`</ccc></family></unit></interface></interfaces>`)

	vlanUnit = command.MustTemplate("interface-vlan", command.Create,
		`<interfaces><interface><name>{{.Port}}</name><unit><name>{{.Unit}}</name>`+
			`<description>{{.Description}}</description><encapsulation>vlan-ccc</encapsulation>`+
			`<vlan-id>{{.Unit}}</vlan-id><input-vlan-map><pop/></input-vlan-map><output-vlan-map><push/></output-vlan-map>`+
			`{{if .Policer}}<family><ccc><policer><input>{{.Policer}}</input><output>{{.Policer}}</output></policer></ccc></family>{{end}}`+
			`</unit></interface></interfaces>`)

	interfaceSwitch = command.MustTemplate("interface-switch", command.Connect,
		`<protocols><connections><interface-switch><name>{{.Switch}}</name>`+
			`<interface><name>{{.Port}}.{{.Unit}}</name></interface></interface-switch></connections></protocols>`)

	l2circuit = command.MustTemplate("l2circuit", command.Connect,
		`<protocols><l2circuit><neighbor><name>{{.Neighbor}}</name><interface><name>{{.Port}}.{{.Unit}}</name>`+
			`<virtual-circuit-id>{{.VCID}}</virtual-circuit-id><description>{{.Description}}</description>`+
			`<no-control-word/><ignore-mtu-mismatch/></interface></neighbor></l2circuit></protocols>`)

	policer = command.MustTemplate("policer", command.Create,
		`<firewall><policer><name>{{.Name}}</name><if-exceeding>`+
			`<bandwidth-limit>{{.Rate}}</bandwidth-limit><burst-size-limit>{{.Burst}}</burst-size-limit>`+
			`</if-exceeding><then><discard/></then></policer></firewall>`)

	deletePort = command.MustTemplate("delete-interface-port", command.Delete,
		`<interfaces><interface operation="delete"><name>{{.Port}}</name></interface></interfaces>`)

	deleteVLAN = command.MustTemplate("delete-interface-vlan", command.Delete,
		`<interfaces><interface><name>{{.Port}}</name><unit operation="delete"><name>{{.Unit}}</name></unit></interface></interfaces>`)

	deleteSwitch = command.MustTemplate("delete-interface-switch", command.Disconnect,
		`<protocols><connections><interface-switch operation="delete"><name>{{.Switch}}</name></interface-switch></connections></protocols>`)

	deleteCircuit = command.MustTemplate("delete-l2circuit", command.Disconnect,
		`<protocols><l2circuit><neighbor><name>{{.Neighbor}}</name>`+
			`<interface operation="delete"><name>{{.Port}}.{{.Unit}}</name></interface></neighbor></l2circuit></protocols>`)

	deletePolicer = command.MustTemplate("delete-policer", command.Delete,
		`<firewall><policer operation="delete"><name>{{.Name}}</name></policer></firewall>`)

	unitFilter = command.MustTemplate("unit-filter", command.Create,
		`<configuration><interfaces><interface><name>{{.Port}}</name><unit><name>{{.Unit}}</name></unit></interface></interfaces></configuration>`)
)
