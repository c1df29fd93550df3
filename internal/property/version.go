package property

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a bootloader version: optional one-letter mark plus major.minor.fixation.
type Version struct {
	Mark     byte // 0 when absent
	Major    uint8
	Minor    uint8
	Fixation uint8
}

// VersionFromWord unpacks a version from a raw property word.
func VersionFromWord(v uint32) Version {
	mark := byte(v >> 24)
	if mark < 'A' || mark > 'Z' {
		mark = 0
	}
	return Version{
		Mark:     mark,
		Major:    uint8(v >> 16),
		Minor:    uint8(v >> 8),
		Fixation: uint8(v),
	}
}

// ParseVersion parses "K1.2.3" or "1.2.3".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: want [mark]major.minor.fixation", s)
	}

	var ver Version
	head := parts[0]
	if len(head) > 1 && (head[0] < '0' || head[0] > '9') {
		ver.Mark = head[0]
		head = head[1:]
	}

	nums := []string{head, parts[1], parts[2]}
	fields := []*uint8{&ver.Major, &ver.Minor, &ver.Fixation}
	for i, n := range nums {
		v, err := strconv.ParseUint(n, 10, 8)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		*fields[i] = uint8(v)
	}
	return ver, nil
}

// ToInt packs the version back into a property word.
func (v Version) ToInt(noMark bool) uint32 {
	value := uint32(v.Major)<<16 | uint32(v.Minor)<<8 | uint32(v.Fixation)
	if !noMark {
		value |= uint32(v.Mark) << 24
	}
	return value
}

// Compare orders versions ignoring the mark.
func (v Version) Compare(other Version) int {
	a, b := v.ToInt(true), other.ToInt(true)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Fixation)
	if v.Mark != 0 {
		return string(v.Mark) + s
	}
	return s
}
