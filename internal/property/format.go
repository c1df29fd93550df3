package property

import (
	"fmt"
	"strings"
)

// IntFormat selects how an integer property is displayed.
type IntFormat int

const (
	FormatDec IntFormat = iota
	FormatHex
	FormatSize
	FormatInt32
)

func (f IntFormat) String() string {
	switch f {
	case FormatDec:
		return "dec"
	case FormatHex:
		return "hex"
	case FormatSize:
		return "size"
	case FormatInt32:
		return "int32"
	default:
		return fmt.Sprintf("IntFormat(%d)", int(f))
	}
}

// FormatInt renders a raw property word.
func FormatInt(v uint32, f IntFormat) string {
	switch f {
	case FormatHex:
		return fmt.Sprintf("0x%08X", v)
	case FormatSize:
		return HumanSize(uint64(v))
	case FormatInt32:
		return fmt.Sprintf("%d", int32(v))
	default:
		return fmt.Sprintf("%d", v)
	}
}

var sizeUnits = []string{"B", "kiB", "MiB", "GiB", "TiB", "PiB"}

// HumanSize renders a byte count with binary prefixes, e.g. "512 B" or "64.0 kiB".
func HumanSize(n uint64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%3.1f %s", v, sizeUnits[i])
}

// groupHex renders v in hex with an underscore every four digits.
func groupHex(v uint32) string {
	s := fmt.Sprintf("%x", v)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%4 == 0 {
			b.WriteByte('_')
		}
		b.WriteRune(c)
	}
	return "0x" + b.String()
}
