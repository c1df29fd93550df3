package property

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tag identifies a bootloader property.
type Tag uint8

// Base property tags
const (
	TagListProperties           Tag = 0x00
	TagCurrentVersion           Tag = 0x01
	TagAvailablePeripherals     Tag = 0x02
	TagFlashStartAddress        Tag = 0x03
	TagFlashSize                Tag = 0x04
	TagFlashSectorSize          Tag = 0x05
	TagFlashBlockCount          Tag = 0x06
	TagAvailableCommands        Tag = 0x07
	TagCRCCheckStatus           Tag = 0x08
	TagLastError                Tag = 0x09
	TagVerifyWrites             Tag = 0x0A
	TagMaxPacketSize            Tag = 0x0B
	TagReservedRegions          Tag = 0x0C
	TagValidateRegions          Tag = 0x0D
	TagRAMStartAddress          Tag = 0x0E
	TagRAMSize                  Tag = 0x0F
	TagSystemDeviceIdent        Tag = 0x10
	TagFlashSecurityState       Tag = 0x11
	TagUniqueDeviceIdent        Tag = 0x12
	TagFlashFacSupport          Tag = 0x13
	TagFlashAccessSegmentSize   Tag = 0x14
	TagFlashAccessSegmentCount  Tag = 0x15
	TagFlashReadMargin          Tag = 0x16
	TagQSPIInitStatus           Tag = 0x17
	TagTargetVersion            Tag = 0x18
	TagExternalMemoryAttributes Tag = 0x19
	TagReliableUpdateStatus     Tag = 0x1A
	TagFlashPageSize            Tag = 0x1B
	TagIRQNotifierPin           Tag = 0x1C
	TagPFRKeystoreUpdateOpt     Tag = 0x1D
	TagByteWriteTimeoutMs       Tag = 0x1E
	TagFuseLockedStatus         Tag = 0x1F
	TagBootStatusRegister       Tag = 0x20
	TagFirmwareVersion          Tag = 0x21
	TagFuseProgramVoltage       Tag = 0x22
	TagSHEFlashPartition        Tag = 0x24
	TagSHEBootMode              Tag = 0x25
	TagUnknown                  Tag = 0xFF
)

// TagInfo is the display name and description of a property tag.
type TagInfo struct {
	Label       string
	Description string
}

var baseTags = map[Tag]TagInfo{
	TagListProperties:           {"ListProperties", "List Properties"},
	TagCurrentVersion:           {"CurrentVersion", "Current Version"},
	TagAvailablePeripherals:     {"AvailablePeripherals", "Available Peripherals"},
	TagFlashStartAddress:        {"FlashStartAddress", "Flash Start Address"},
	TagFlashSize:                {"FlashSize", "Flash Size"},
	TagFlashSectorSize:          {"FlashSectorSize", "Flash Sector Size"},
	TagFlashBlockCount:          {"FlashBlockCount", "Flash Block Count"},
	TagAvailableCommands:        {"AvailableCommands", "Available Commands"},
	TagCRCCheckStatus:           {"CrcCheckStatus", "CRC Check Status"},
	TagLastError:                {"LastError", "Last Error Value"},
	TagVerifyWrites:             {"VerifyWrites", "Verify Writes"},
	TagMaxPacketSize:            {"MaxPacketSize", "Max Packet Size"},
	TagReservedRegions:          {"ReservedRegions", "Reserved Regions"},
	TagValidateRegions:          {"ValidateRegions", "Validate Regions"},
	TagRAMStartAddress:          {"RamStartAddress", "RAM Start Address"},
	TagRAMSize:                  {"RamSize", "RAM Size"},
	TagSystemDeviceIdent:        {"SystemDeviceIdent", "System Device Identification"},
	TagFlashSecurityState:       {"FlashSecurityState", "Security State"},
	TagUniqueDeviceIdent:        {"UniqueDeviceIdent", "Unique Device Identification"},
	TagFlashFacSupport:          {"FlashFacSupport", "Flash Fac. Support"},
	TagFlashAccessSegmentSize:   {"FlashAccessSegmentSize", "Flash Access Segment Size"},
	TagFlashAccessSegmentCount:  {"FlashAccessSegmentCount", "Flash Access Segment Count"},
	TagFlashReadMargin:          {"FlashReadMargin", "Flash Read Margin"},
	TagQSPIInitStatus:           {"QspiInitStatus", "QuadSPI Initialization Status"},
	TagTargetVersion:            {"TargetVersion", "Target Version"},
	TagExternalMemoryAttributes: {"ExternalMemoryAttributes", "External Memory Attributes"},
	TagReliableUpdateStatus:     {"ReliableUpdateStatus", "Reliable Update Status"},
	TagFlashPageSize:            {"FlashPageSize", "Flash Page Size"},
	TagIRQNotifierPin:           {"IrqNotifierPin", "Irq Notifier Pin"},
	TagPFRKeystoreUpdateOpt:     {"PfrKeystoreUpdateOpt", "PFR Keystore Update Opt"},
	TagByteWriteTimeoutMs:       {"ByteWriteTimeoutMs", "Byte Write Timeout in ms"},
	TagFuseLockedStatus:         {"FuseLockedStatus", "Fuse Locked Status"},
	TagBootStatusRegister:       {"BootStatusRegister", "Boot Status Register"},
	TagFirmwareVersion:          {"FirmwareVersion", "Firmware Version"},
	TagFuseProgramVoltage:       {"FuseProgramVoltage", "Fuse Program Voltage"},
	TagSHEFlashPartition:        {"SheFlashPartition", "Secure Hardware Extension: Flash Partition"},
	TagSHEBootMode:              {"SheBootMode", "Secure Hardware Extension: Boot Mode"},
	TagUnknown:                  {"Unknown", "Unknown property"},
}

// Tags returns every base property tag in ascending order.
func Tags() []Tag {
	tags := make([]Tag, 0, len(baseTags))
	for tag := range baseTags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Known reports whether the tag belongs to the base property set.
func (t Tag) Known() bool {
	_, ok := baseTags[t]
	return ok
}

// Info returns the base name and description of the tag.
func (t Tag) Info() (TagInfo, bool) {
	info, ok := baseTags[t]
	return info, ok
}

// Label returns the base label, or "Unknown" for tags outside the base set.
func (t Tag) Label() string {
	if info, ok := baseTags[t]; ok {
		return info.Label
	}
	return baseTags[TagUnknown].Label
}

// Description returns the base description, or the unknown-property text.
func (t Tag) Description() string {
	if info, ok := baseTags[t]; ok {
		return info.Description
	}
	return baseTags[TagUnknown].Description
}

func (t Tag) String() string {
	if info, ok := baseTags[t]; ok {
		return info.Label
	}
	return fmt.Sprintf("0x%02X", uint8(t))
}

// ParseTag accepts a tag number (decimal or 0x-prefixed) or a property label.
func ParseTag(s string) (Tag, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseUint(s, 0, 8); err == nil {
		return Tag(v), nil
	}
	for tag, info := range baseTags {
		if strings.EqualFold(info.Label, s) {
			return tag, nil
		}
	}
	return 0, fmt.Errorf("unknown property: %q", s)
}

// Peripheral is a bit in the AvailablePeripherals property.
type Peripheral uint32

const (
	PeripheralUART     Peripheral = 0x01
	PeripheralI2CSlave Peripheral = 0x02
	PeripheralSPISlave Peripheral = 0x04
	PeripheralCAN      Peripheral = 0x08
	PeripheralUSBHID   Peripheral = 0x10
	PeripheralUSBCDC   Peripheral = 0x20
	PeripheralUSBDFU   Peripheral = 0x40
	PeripheralLIN      Peripheral = 0x80
)

var peripherals = []struct {
	bit   Peripheral
	label string
}{
	{PeripheralUART, "UART"},
	{PeripheralI2CSlave, "I2C-Slave"},
	{PeripheralSPISlave, "SPI-Slave"},
	{PeripheralCAN, "CAN"},
	{PeripheralUSBHID, "USB-HID"},
	{PeripheralUSBCDC, "USB-CDC"},
	{PeripheralUSBDFU, "USB-DFU"},
	{PeripheralLIN, "LIN"},
}

func (p Peripheral) String() string {
	for _, item := range peripherals {
		if item.bit == p {
			return item.label
		}
	}
	return fmt.Sprintf("0x%02X", uint32(p))
}

// Enum resolves a raw value to a label.
type Enum func(v uint32) (string, bool)

// FlashReadMargin labels the flash read margin scopes.
func FlashReadMargin(v uint32) (string, bool) {
	switch v {
	case 0:
		return "NORMAL", true
	case 1:
		return "USER", true
	case 2:
		return "FACTORY", true
	default:
		return "", false
	}
}

// PFRKeystoreUpdateOpt labels the PFR keystore update options.
func PFRKeystoreUpdateOpt(v uint32) (string, bool) {
	switch v {
	case 0:
		return "KEY_PROVISIONING", true
	case 1:
		return "WRITE_MEMORY", true
	default:
		return "", false
	}
}
