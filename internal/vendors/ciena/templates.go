package ciena

import (
	"fmt"

	"xconnect/internal/command"
)

// TL1 fields are separated by ':' and messages end with ';', so neither
// may appear inside a value.
type portArgs struct {
	Port string `validate:"required,excludesall=:;"`
	Tag  string `validate:"required,max=6,excludesall=:;"`
}

type sizeArgs struct {
	portArgs
	Slots int `validate:"min=1,max=80"`
}

type facilityArgs struct {
	portArgs
	Facility int `validate:"min=1,max=80"`
}

type timeslotArgs struct {
	facilityArgs
	Mask string `validate:"required,len=24"`
}

type crsArgs struct {
	Src         string `validate:"required,excludesall=:;"`
	SrcFacility int    `validate:"min=1,max=80"`
	Dst         string `validate:"required,excludesall=:;"`
	DstFacility int    `validate:"min=1,max=80"`
	Tag         string `validate:"required,max=6,excludesall=:;"`
	Dir         string `validate:"oneof=1WAY 2WAY"`
}

func (a crsArgs) resource() string {
	return fmt.Sprintf("CRS-%s-FP%d,%s-FP%d", a.Src, a.SrcFacility, a.Dst, a.DstFacility)
}

type loginArgs struct {
	User     string `validate:"required,excludesall=:;"`
	Password string `validate:"excludesall=;"`
	Tag      string `validate:"required,max=6,excludesall=:;"`
}

var (
	entPTP = command.MustTemplate("ent-ptp", command.Create,
		"ENT-PTP::PTP-{{.Port}}:{{.Tag}}:::CONDTYPE=NONE,SERVICETYPE=ETH10GFLEX:IS,AINS")
	edNumSlots = command.MustTemplate("ed-oductp-numts", command.Size,
		"ED-ODUCTP::ODUCTP-{{.Port}}-FP1:{{.Tag}}:::NUMTS={{.Slots}}")
	entODUCTP = command.MustTemplate("ent-oductp", command.Create,
		"ENT-ODUCTP::ODUCTP-{{.Port}}-FP{{.Facility}}:{{.Tag}}:::GEP=NO,CTPMODE=TRANSPARENT,TSASSIGNMENT={{.Mask}},RATE=ODUFLEX:IS")

	rmvPTP = command.MustTemplate("rmv-ptp", command.OutOfService,
		"RMV-PTP::PTP-{{.Port}}:{{.Tag}}")
	rmvODUCTP = command.MustTemplate("rmv-oductp", command.OutOfService,
		"RMV-ODUCTP::ODUCTP-{{.Port}}-FP{{.Facility}}:{{.Tag}}")
	dltPTP = command.MustTemplate("dlt-ptp", command.Delete,
		"DLT-PTP::PTP-{{.Port}}:{{.Tag}}")
	dltODUCTP = command.MustTemplate("dlt-oductp", command.Delete,
		"DLT-ODUCTP::ODUCTP-{{.Port}}-FP{{.Facility}}:{{.Tag}}")

	entCRS = command.MustTemplate("ent-crs-oductp", command.Connect,
		"ENT-CRS-ODUCTP::ODUCTP-{{.Src}}-FP{{.SrcFacility}},ODUCTP-{{.Dst}}-FP{{.DstFacility}}:{{.Tag}}::{{.Dir}}:")
	dltCRS = command.MustTemplate("dlt-crs-oductp", command.Disconnect,
		"DLT-CRS-ODUCTP::ODUCTP-{{.Src}}-FP{{.SrcFacility}},ODUCTP-{{.Dst}}-FP{{.DstFacility}}:{{.Tag}}::{{.Dir}}:")

	actUser = command.MustTemplate("act-user", command.Create,
		"ACT-USER::{{.User}}:{{.Tag}}::{{.Password}}")
	cancUser = command.MustTemplate("canc-user", command.Delete,
		"CANC-USER::{{.User}}:{{.Tag}}")
)
