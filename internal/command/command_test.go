package command

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "xconnect/internal/errors"
)

func TestEncodeTimeslots(t *testing.T) {
	tests := []struct {
		name  string
		slots []int
		want  string
	}{
		{"first five", []int{1, 2, 3, 4, 5}, "F800-0000-0000-0000-0000"},
		{"empty", nil, "0000-0000-0000-0000-0000"},
		{"last", []int{80}, "0000-0000-0000-0000-0001"},
		{"slot 9", []int{9}, "0080-0000-0000-0000-0000"},
		{"all", allSlots(), "FFFF-FFFF-FFFF-FFFF-FFFF"},
		{"unordered with duplicates", []int{5, 1, 5}, "8800-0000-0000-0000-0000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeTimeslots(tt.slots)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeTimeslots_OutOfRange(t *testing.T) {
	for _, s := range []int{0, 81, -1} {
		_, err := EncodeTimeslots([]int{s})
		assert.Error(t, err, "slot %d", s)
	}
}

func TestDecodeTimeslots(t *testing.T) {
	got, err := DecodeTimeslots("f800-0000-0000-0000-0000")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)

	got, err = DecodeTimeslots("00000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, []int{80}, got)

	for _, bad := range []string{"", "F800", "G800-0000-0000-0000-0000", "F800-0000-0000-0000-0000-0000"} {
		_, err := DecodeTimeslots(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeslotRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(s)) == s", prop.ForAll(
		func(slots []int) bool {
			mask, err := EncodeTimeslots(slots)
			if err != nil {
				return false
			}
			got, err := DecodeTimeslots(mask)
			if err != nil {
				return false
			}
			want := uniqueSorted(slots)
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1, MaxTimeslot)),
	))

	properties.Property("mask has 20 digits in 4-digit groups", prop.ForAll(
		func(slots []int) bool {
			mask, err := EncodeTimeslots(slots)
			return err == nil && len(mask) == 24 &&
				mask[4] == '-' && mask[9] == '-' && mask[14] == '-' && mask[19] == '-'
		},
		gen.SliceOf(gen.IntRange(1, MaxTimeslot)),
	))

	properties.TestingRun(t)
}

func TestBandwidthFor(t *testing.T) {
	tests := []struct {
		mbps  int64
		rate  int64
		burst int64
	}{
		{1000, 1000000000, 625000},
		{1, 1000000, 625},
		{10000, 10000000000, 6250000},
		{0, 0, 0},
	}
	for _, tt := range tests {
		bw := BandwidthFor(tt.mbps)
		assert.Equal(t, tt.rate, bw.Rate, "rate for %d", tt.mbps)
		assert.Equal(t, tt.burst, bw.Burst, "burst for %d", tt.mbps)
	}
}

type portArgs struct {
	Port string `validate:"required"`
	Tag  string `validate:"required,len=6"`
	N    int    `validate:"min=1,max=80"`
}

var testTemplate = MustTemplate("size", Size, "ED-ODUCTP::ODUCTP-{{.Port}}-FP1:{{.Tag}}:::NUMTS={{.N}}")

func TestTemplate_Render(t *testing.T) {
	got, err := testTemplate.Render(portArgs{Port: "1-A-1-1", Tag: "123456", N: 10})
	require.NoError(t, err)
	assert.Equal(t, "ED-ODUCTP::ODUCTP-1-A-1-1-FP1:123456:::NUMTS=10", got)

	for name, args := range map[string]portArgs{
		"missing port": {Tag: "123456", N: 1},
		"short tag":    {Port: "p", Tag: "12", N: 1},
		"zero slots":   {Port: "p", Tag: "123456"},
	} {
		_, err := testTemplate.Render(args)
		assert.ErrorIs(t, err, xerrors.ErrInvalidTemplateArgs, name)
	}
}

func TestBuilder_FirstErrorWins(t *testing.T) {
	var b Builder
	b.Add(testTemplate, "ODUCTP-a-FP1", portArgs{Port: "a", Tag: "123456", N: 1})
	b.Add(testTemplate, "ODUCTP--FP1", portArgs{Tag: "123456", N: 1})
	b.AddChecked(testTemplate, "ODUCTP-c-FP1", "<filter/>", portArgs{Port: "c", Tag: "123456", N: 1})
	_, err := b.Script()
	assert.ErrorIs(t, err, xerrors.ErrInvalidTemplateArgs)

	var ok Builder
	ok.AddChecked(testTemplate, "ODUCTP-c-FP1", "<filter/>", portArgs{Port: "c", Tag: "123456", N: 1})
	s, err := ok.Script()
	require.NoError(t, err)
	assert.Equal(t, []string{"<filter/>"}, s.Checks())
	assert.Equal(t, []string{"size ODUCTP-c-FP1"}, s.Steps())
	assert.Equal(t, []Op{Size}, s.Ops())
}

func TestVerifyInverse(t *testing.T) {
	activate := Script{
		{Op: Create, Resource: "PTP-1"},
		{Op: Size, Resource: "ODUCTP-1-FP1"},
		{Op: Create, Resource: "PTP-2"},
		{Op: Size, Resource: "ODUCTP-2-FP1"},
		{Op: Connect, Resource: "xc"},
	}
	good := Script{
		{Op: Disconnect, Resource: "xc"},
		{Op: OutOfService, Resource: "PTP-1"},
		{Op: OutOfService, Resource: "ODUCTP-1-FP1"},
		{Op: Delete, Resource: "PTP-1"},
		{Op: OutOfService, Resource: "PTP-2"},
		{Op: OutOfService, Resource: "ODUCTP-2-FP1"},
		{Op: Delete, Resource: "PTP-2"},
	}
	require.NoError(t, VerifyInverse(activate, good))

	tests := []struct {
		name       string
		deactivate Script
	}{
		{"missing disconnect", good[1:]},
		{"late disconnect", append(Script{good[1]}, good[0])},
		{"missing delete", good[:4]},
		{"double delete", append(append(Script{}, good...), good[3])},
		{"down after delete", Script{good[0], good[3], good[1], good[4], good[6]}},
		{"delete unknown", append(append(Script{}, good...), Command{Op: Delete, Resource: "PTP-9"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, VerifyInverse(activate, tt.deactivate))
		})
	}

	assert.Error(t, VerifyInverse(Script{{Op: Connect, Resource: "xc"}, {Op: Create, Resource: "PTP-1"}}, nil))
}

func allSlots() []int {
	s := make([]int, MaxTimeslot)
	for i := range s {
		s[i] = i + 1
	}
	return s
}

func uniqueSorted(in []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
