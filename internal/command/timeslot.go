package command

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxTimeslot is the highest OTN timeslot index.
const MaxTimeslot = 80

const (
	maskBytes  = MaxTimeslot / 8
	maskDigits = maskBytes * 2
	groupWidth = 4
)

// EncodeTimeslots renders a timeslot set as the TSASSIGNMENT bitmask:
// slot s sets bit (80 - s) of an 80-bit integer, printed as 20
// upper-case hex digits in dash-separated groups of four.
//
//	{1,2,3,4,5} -> F800-0000-0000-0000-0000
func EncodeTimeslots(slots []int) (string, error) {
	var mask [maskBytes]byte
	for _, s := range slots {
		if s < 1 || s > MaxTimeslot {
			return "", fmt.Errorf("timeslot %d outside 1-%d", s, MaxTimeslot)
		}
		// Bit 80-s counted from the least significant end is bit
		// s-1 counted from the most significant end.
		mask[(s-1)/8] |= 0x80 >> uint((s-1)%8)
	}
	digits := strings.ToUpper(hex.EncodeToString(mask[:]))
	groups := make([]string, 0, maskDigits/groupWidth)
	for i := 0; i < maskDigits; i += groupWidth {
		groups = append(groups, digits[i:i+groupWidth])
	}
	return strings.Join(groups, "-"), nil
}

// DecodeTimeslots is the inverse of EncodeTimeslots.  Dashes are
// optional and hex digits may be in either case.  The result is sorted.
func DecodeTimeslots(s string) ([]int, error) {
	digits := strings.ReplaceAll(s, "-", "")
	if len(digits) != maskDigits {
		return nil, fmt.Errorf("timeslot mask %q: want %d hex digits, got %d", s, maskDigits, len(digits))
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("timeslot mask %q: %w", s, err)
	}
	var slots []int
	for i, b := range raw {
		for bit := 0; bit < 8; bit++ {
			if b&(0x80>>uint(bit)) != 0 {
				slots = append(slots, i*8+bit+1)
			}
		}
	}
	return slots, nil
}
