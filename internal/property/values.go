package property

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

// Value is a decoded property.
type Value interface {
	Tag() Tag
	Name() string
	Description() string
	// ValueString renders the value without the property description.
	ValueString() string
	String() string
}

type info struct {
	tag  Tag
	name string
	desc string
}

func (i info) Tag() Tag            { return i.tag }
func (i info) Name() string        { return i.name }
func (i info) Description() string { return i.desc }

func (i info) render(value string) string {
	return i.desc + " = " + value
}

// IntValue is a single-word property.
type IntValue struct {
	info
	Value  uint32
	Format IntFormat
}

func (v *IntValue) ValueString() string { return FormatInt(v.Value, v.Format) }
func (v *IntValue) String() string      { return v.render(v.ValueString()) }

// IntListValue is a multi-word property displayed as a list.
type IntListValue struct {
	info
	Values []uint32
	Format IntFormat
}

func (v *IntListValue) ValueString() string {
	items := make([]string, len(v.Values))
	for i, w := range v.Values {
		items[i] = FormatInt(w, v.Format)
	}
	return "[" + strings.Join(items, ", ") + "]"
}

func (v *IntListValue) String() string { return v.render(v.ValueString()) }

// BoolValue is a property whose word maps to one of two states.
type BoolValue struct {
	info
	Value       uint32
	trueValues  []uint32
	trueString  string
	falseString string
}

// Bool reports whether the word is one of the true values.
func (v *BoolValue) Bool() bool {
	for _, t := range v.trueValues {
		if v.Value == t {
			return true
		}
	}
	return false
}

func (v *BoolValue) ValueString() string {
	if v.Bool() {
		return v.trueString
	}
	return v.falseString
}

func (v *BoolValue) String() string { return v.render(v.ValueString()) }

// EnumValue is a property whose word is looked up in an enumeration.
type EnumValue struct {
	info
	Value        uint32
	enum         Enum
	notAvailable string
}

func (v *EnumValue) ValueString() string {
	if v.enum != nil {
		if label, ok := v.enum(v.Value); ok {
			return label
		}
	}
	return fmt.Sprintf("%s: %d", v.notAvailable, v.Value)
}

func (v *EnumValue) String() string { return v.render(v.ValueString()) }

// VersionValue holds a version decoded from the first word.
type VersionValue struct {
	info
	Version Version
}

func (v *VersionValue) ValueString() string { return v.Version.String() }
func (v *VersionValue) String() string      { return v.render(v.ValueString()) }

// DeviceUIDValue is the unique device identifier.
type DeviceUIDValue struct {
	info
	UID []byte
}

// Int returns the identifier as a big-endian number.
func (v *DeviceUIDValue) Int() *big.Int {
	return new(big.Int).SetBytes(v.UID)
}

func (v *DeviceUIDValue) ValueString() string { return hex.EncodeToString(v.UID) }
func (v *DeviceUIDValue) String() string      { return v.render(v.ValueString()) }

// MemoryRegion is an inclusive address range.
type MemoryRegion struct {
	Start uint32
	End   uint32
}

// Size returns the number of bytes in the region.
func (r MemoryRegion) Size() uint64 {
	return uint64(r.End) - uint64(r.Start) + 1
}

func (r MemoryRegion) String() string {
	return fmt.Sprintf("0x%08X - 0x%08X; Total Size: %s", r.Start, r.End, HumanSize(r.Size()))
}

// ReservedRegionsValue lists memory the bootloader keeps for itself.
type ReservedRegionsValue struct {
	info
	Regions []MemoryRegion
}

func (v *ReservedRegionsValue) ValueString() string {
	lines := make([]string, len(v.Regions))
	for i, r := range v.Regions {
		lines[i] = fmt.Sprintf("    Region %d: %s", i, r)
	}
	return strings.Join(lines, "\n")
}

func (v *ReservedRegionsValue) String() string {
	return v.desc + " =\n" + v.ValueString()
}

// AvailablePeripheralsValue is a bitmask of bootloader interfaces.
type AvailablePeripheralsValue struct {
	info
	Value uint32
}

// Peripherals returns the peripherals whose bits are set.
func (v *AvailablePeripheralsValue) Peripherals() []Peripheral {
	var out []Peripheral
	for _, p := range peripherals {
		if uint32(p.bit)&v.Value != 0 {
			out = append(out, p.bit)
		}
	}
	return out
}

func (v *AvailablePeripheralsValue) ValueString() string {
	var labels []string
	for _, p := range v.Peripherals() {
		labels = append(labels, p.String())
	}
	return strings.Join(labels, ", ")
}

func (v *AvailablePeripheralsValue) String() string { return v.render(v.ValueString()) }

// AvailableCommandsValue is a bitmask of supported commands; bit n-1 stands for command n.
type AvailableCommandsValue struct {
	info
	Value uint32
}

// Contains reports whether the command is marked available.
func (v *AvailableCommandsValue) Contains(cmd protocol.CommandTag) bool {
	return cmd > 0 && cmd <= 32 && v.Value&(1<<(uint(cmd)-1)) != 0
}

// Commands returns the available commands in tag order.
func (v *AvailableCommandsValue) Commands() []protocol.CommandTag {
	var out []protocol.CommandTag
	for _, cmd := range protocol.Commands() {
		if v.Contains(cmd) {
			out = append(out, cmd)
		}
	}
	return out
}

func (v *AvailableCommandsValue) ValueString() string {
	var labels []string
	for _, cmd := range v.Commands() {
		labels = append(labels, cmd.String())
	}
	return strings.Join(labels, ", ")
}

func (v *AvailableCommandsValue) String() string { return v.render(v.ValueString()) }

// IrqNotifierPinValue describes the pin used to signal the host.
type IrqNotifierPinValue struct {
	info
	Value uint32
}

func (v *IrqNotifierPinValue) Pin() uint8     { return uint8(v.Value) }
func (v *IrqNotifierPinValue) Port() uint8    { return uint8(v.Value >> 8) }
func (v *IrqNotifierPinValue) Enabled() bool  { return v.Value&(1<<31) != 0 }
func (v *IrqNotifierPinValue) String() string { return v.render(v.ValueString()) }

func (v *IrqNotifierPinValue) ValueString() string {
	state := "disabled"
	if v.Enabled() {
		state = "enabled"
	}
	return fmt.Sprintf("IRQ Port[%d], Pin[%d] is %s", v.Port(), v.Pin(), state)
}

// ExternalMemoryAttributesValue is the geometry of an external memory.
// Fields are nil when the device did not report them.
type ExternalMemoryAttributesValue struct {
	info
	Value        uint32
	MemoryID     protocol.MemoryID
	StartAddress *uint32
	TotalSize    *uint64
	PageSize     *uint32
	SectorSize   *uint32
	BlockSize    *uint32
}

func (v *ExternalMemoryAttributesValue) ValueString() string {
	var parts []string
	if v.StartAddress != nil {
		parts = append(parts, fmt.Sprintf("Start Address: 0x%08X", *v.StartAddress))
	}
	if v.TotalSize != nil {
		parts = append(parts, "Total Size:    "+HumanSize(*v.TotalSize))
	}
	if v.PageSize != nil {
		parts = append(parts, "Page Size:     "+HumanSize(uint64(*v.PageSize)))
	}
	if v.SectorSize != nil {
		parts = append(parts, "Sector Size:   "+HumanSize(uint64(*v.SectorSize)))
	}
	if v.BlockSize != nil {
		parts = append(parts, "Block Size:    "+HumanSize(uint64(*v.BlockSize)))
	}
	return strings.Join(parts, ", ")
}

func (v *ExternalMemoryAttributesValue) String() string { return v.render(v.ValueString()) }

// FuseLock is the lock state of one fuse.
type FuseLock struct {
	Index  int
	Locked bool
}

func (f FuseLock) String() string {
	status := "UNLOCKED"
	if f.Locked {
		status = "LOCKED"
	}
	return fmt.Sprintf("  FUSE%03d: %s", f.Index, status)
}

// FuseLockRegister is one word of the fuse lock status.
type FuseLockRegister struct {
	Value uint32
	Fuses []FuseLock
}

// FuseLockedStatusValue is the OTP controller program-locked status.
// The first word carries 16 usable bits, the following words 32 each.
type FuseLockedStatusValue struct {
	info
	Registers []FuseLockRegister
}

// Fuses returns the lock state of every fuse across all registers.
func (v *FuseLockedStatusValue) Fuses() []FuseLock {
	var out []FuseLock
	for _, r := range v.Registers {
		out = append(out, r.Fuses...)
	}
	return out
}

func (v *FuseLockedStatusValue) ValueString() string {
	var b strings.Builder
	for i, r := range v.Registers {
		fmt.Fprintf(&b, "\nOTP Controller Program Locked Status %d Register:", i)
		for _, f := range r.Fuses {
			b.WriteString("\n" + f.String())
		}
	}
	return b.String()
}

func (v *FuseLockedStatusValue) String() string { return v.render(v.ValueString()) }

var (
	sheMaxKeys = map[uint32]string{
		0: "0 Keys, CSEc disabled",
		1: "max 5 Key",
		2: "max 10 Keys",
		3: "max 20 Keys",
	}
	sheFlashSize = map[uint32]string{
		0: "64kB",
		1: "48kB",
		2: "32kB",
		3: "0kB",
	}
	sheBootModes = map[uint32]string{
		0: "Strict Boot",
		1: "Serial Boot",
		2: "Parallel Boot",
		3: "Undefined",
	}
)

// SHEFlashPartitionValue is the secure hardware extension flash partitioning.
type SHEFlashPartitionValue struct {
	info
	MaxKeys   uint32
	FlashSize uint32
}

func (v *SHEFlashPartitionValue) ValueString() string {
	return fmt.Sprintf("%s EEPROM with %s", sheFlashSize[v.FlashSize], sheMaxKeys[v.MaxKeys])
}

func (v *SHEFlashPartitionValue) String() string { return v.render(v.ValueString()) }

// SHEBootModeValue is the secure hardware extension boot mode and boot size in bits.
type SHEBootModeValue struct {
	info
	Size uint32
	Mode uint32
}

func (v *SHEBootModeValue) ValueString() string {
	mode, ok := sheBootModes[v.Mode]
	if !ok {
		mode = "Unknown"
	}
	return fmt.Sprintf("SHE Boot Mode: %s (%d)\nSHE Boot Size: %s (%s)",
		mode, v.Mode, HumanSize(uint64(v.Size/8)), groupHex(v.Size))
}

func (v *SHEBootModeValue) String() string { return v.ValueString() }
