package property

import (
	"encoding/binary"
	"fmt"

	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

// Kind selects the value type a property decodes into.
type Kind int

const (
	KindInt Kind = iota + 1
	KindIntList
	KindBool
	KindEnum
	KindVersion
	KindDeviceUID
	KindReservedRegions
	KindAvailablePeripherals
	KindAvailableCommands
	KindIrqNotifierPin
	KindExternalMemoryAttributes
	KindFuseLockedStatus
	KindSHEFlashPartition
	KindSHEBootMode
)

var kindNames = map[Kind]string{
	KindInt:                      "int",
	KindIntList:                  "int-list",
	KindBool:                     "bool",
	KindEnum:                     "enum",
	KindVersion:                  "version",
	KindDeviceUID:                "device-uid",
	KindReservedRegions:          "reserved-regions",
	KindAvailablePeripherals:     "available-peripherals",
	KindAvailableCommands:        "available-commands",
	KindIrqNotifierPin:           "irq-notifier-pin",
	KindExternalMemoryAttributes: "external-memory-attributes",
	KindFuseLockedStatus:         "fuse-locked-status",
	KindSHEFlashPartition:        "she-flash-partition",
	KindSHEBootMode:              "she-boot-mode",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Strategy describes how raw words of a property are decoded.
type Strategy struct {
	Kind   Kind
	Format IntFormat

	// bool properties; zero values mean {1} -> "YES", {0} -> "NO"
	TrueValues  []uint32
	TrueString  string
	FalseValues []uint32
	FalseString string

	// enum properties
	Enum         Enum
	NotAvailable string
}

func onOff() Strategy {
	return Strategy{Kind: KindBool, TrueString: "ON", FalseString: "OFF"}
}

func statusEnum(na string) Strategy {
	return Strategy{Kind: KindEnum, Enum: protocol.LabelStatus, NotAvailable: na}
}

var baseStrategies = map[Tag]Strategy{
	TagCurrentVersion:           {Kind: KindVersion},
	TagAvailablePeripherals:     {Kind: KindAvailablePeripherals},
	TagFlashStartAddress:        {Kind: KindInt, Format: FormatHex},
	TagFlashSize:                {Kind: KindInt, Format: FormatSize},
	TagFlashSectorSize:          {Kind: KindInt, Format: FormatSize},
	TagFlashBlockCount:          {Kind: KindInt, Format: FormatDec},
	TagAvailableCommands:        {Kind: KindAvailableCommands},
	TagCRCCheckStatus:           statusEnum("Unknown CRC Status code"),
	TagVerifyWrites:             onOff(),
	TagLastError:                statusEnum("Unknown Error"),
	TagMaxPacketSize:            {Kind: KindInt, Format: FormatSize},
	TagReservedRegions:          {Kind: KindReservedRegions},
	TagValidateRegions:          onOff(),
	TagRAMStartAddress:          {Kind: KindInt, Format: FormatHex},
	TagRAMSize:                  {Kind: KindInt, Format: FormatSize},
	TagSystemDeviceIdent:        {Kind: KindInt, Format: FormatHex},
	TagFlashSecurityState:       securityState("UNSECURE", "SECURE"),
	TagUniqueDeviceIdent:        {Kind: KindDeviceUID},
	TagFlashFacSupport:          onOff(),
	TagFlashAccessSegmentSize:   {Kind: KindInt, Format: FormatSize},
	TagFlashAccessSegmentCount:  {Kind: KindInt, Format: FormatInt32},
	TagFlashReadMargin:          {Kind: KindEnum, Enum: FlashReadMargin, NotAvailable: "Unknown Margin"},
	TagQSPIInitStatus:           statusEnum("Unknown Error"),
	TagTargetVersion:            {Kind: KindVersion},
	TagExternalMemoryAttributes: {Kind: KindExternalMemoryAttributes},
	TagReliableUpdateStatus:     statusEnum("Unknown Error"),
	TagFlashPageSize:            {Kind: KindInt, Format: FormatSize},
	TagIRQNotifierPin:           {Kind: KindIrqNotifierPin},
	TagPFRKeystoreUpdateOpt:     {Kind: KindEnum, Enum: PFRKeystoreUpdateOpt, NotAvailable: "Unknown"},
	TagByteWriteTimeoutMs:       {Kind: KindInt, Format: FormatDec},
	TagFuseLockedStatus:         {Kind: KindFuseLockedStatus},
	TagBootStatusRegister:       {Kind: KindInt, Format: FormatInt32},
	TagFirmwareVersion:          {Kind: KindInt, Format: FormatInt32},
	TagFuseProgramVoltage:       fuseVoltage(),
	TagSHEFlashPartition:        {Kind: KindSHEFlashPartition},
	TagSHEBootMode:              {Kind: KindSHEBootMode},
	TagUnknown:                  {Kind: KindIntList, Format: FormatHex},
}

func securityState(trueString, falseString string) Strategy {
	return Strategy{
		Kind:        KindBool,
		TrueValues:  []uint32{0x00000000, 0x5AA55AA5},
		TrueString:  trueString,
		FalseValues: []uint32{0x00000001, 0xC33CC33C},
		FalseString: falseString,
	}
}

func fuseVoltage() Strategy {
	return Strategy{
		Kind:        KindBool,
		TrueString:  "Over Drive Voltage (2.5 V)",
		FalseString: "Normal Voltage (1.8 V)",
	}
}

// BaseStrategy returns the decoding strategy of a base tag.
func BaseStrategy(tag Tag) (Strategy, bool) {
	s, ok := baseStrategies[tag]
	return s, ok
}

// DecodeError reports raw words that do not fit the property's decoder.
type DecodeError struct {
	Tag    Tag
	Kind   Kind
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode property %s as %s: %s", e.Tag, e.Kind, e.Reason)
}

type decodeConfig struct {
	family   string
	memoryID protocol.MemoryID
	lookup   FamilyLookup
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeConfig)

// WithFamily decodes with the property overrides of the given device family.
func WithFamily(family string) DecodeOption {
	return func(c *decodeConfig) { c.family = family }
}

// WithMemoryID records the external memory the property was read for.
func WithMemoryID(id protocol.MemoryID) DecodeOption {
	return func(c *decodeConfig) { c.memoryID = id }
}

// WithLookup replaces the built-in family database.
func WithLookup(lookup FamilyLookup) DecodeOption {
	return func(c *decodeConfig) { c.lookup = lookup }
}

// Decode turns the raw words of a property into a typed value.
// Tags outside the base and family sets decode as TagUnknown, a hex word list.
func Decode(tag Tag, raw []uint32, opts ...DecodeOption) (Value, error) {
	cfg := decodeConfig{lookup: DefaultFamilies().Lookup}
	for _, opt := range opts {
		opt(&cfg)
	}

	var override *Override
	if cfg.family != "" && cfg.lookup != nil {
		if o, ok := cfg.lookup(cfg.family); ok {
			override = o
		}
	}

	ti, ok := override.tagInfo(tag)
	if !ok {
		ti, ok = tag.Info()
	}
	if !ok {
		tag = TagUnknown
		ti, _ = TagUnknown.Info()
	}

	strategy, ok := override.strategy(tag)
	if !ok {
		strategy, ok = baseStrategies[tag]
	}
	if !ok {
		strategy = baseStrategies[TagUnknown]
	}

	return build(info{tag: tag, name: ti.Label, desc: ti.Description}, strategy, raw, cfg.memoryID)
}

func build(in info, s Strategy, raw []uint32, memID protocol.MemoryID) (Value, error) {
	need := func(n int) error {
		if len(raw) < n {
			return &DecodeError{Tag: in.tag, Kind: s.Kind, Reason: fmt.Sprintf("need %d words, got %d", n, len(raw))}
		}
		return nil
	}

	switch s.Kind {
	case KindInt:
		if err := need(1); err != nil {
			return nil, err
		}
		return &IntValue{info: in, Value: raw[0], Format: s.Format}, nil

	case KindIntList:
		values := make([]uint32, len(raw))
		copy(values, raw)
		return &IntListValue{info: in, Values: values, Format: s.Format}, nil

	case KindBool:
		if err := need(1); err != nil {
			return nil, err
		}
		v := &BoolValue{info: in, Value: raw[0], trueValues: s.TrueValues, trueString: s.TrueString, falseString: s.FalseString}
		if v.trueValues == nil {
			v.trueValues = []uint32{1}
		}
		if v.trueString == "" {
			v.trueString = "YES"
		}
		if v.falseString == "" {
			v.falseString = "NO"
		}
		return v, nil

	case KindEnum:
		if err := need(1); err != nil {
			return nil, err
		}
		na := s.NotAvailable
		if na == "" {
			na = "Unknown Item"
		}
		return &EnumValue{info: in, Value: raw[0], enum: s.Enum, notAvailable: na}, nil

	case KindVersion:
		if err := need(1); err != nil {
			return nil, err
		}
		return &VersionValue{info: in, Version: VersionFromWord(raw[0])}, nil

	case KindDeviceUID:
		uid := make([]byte, 4*len(raw))
		for i, w := range raw {
			binary.LittleEndian.PutUint32(uid[4*i:], w)
		}
		return &DeviceUIDValue{info: in, UID: uid}, nil

	case KindReservedRegions:
		if len(raw)%2 != 0 {
			return nil, &DecodeError{Tag: in.tag, Kind: s.Kind, Reason: fmt.Sprintf("odd word count %d", len(raw))}
		}
		v := &ReservedRegionsValue{info: in}
		for i := 0; i < len(raw); i += 2 {
			if raw[i+1] == 0 {
				continue
			}
			v.Regions = append(v.Regions, MemoryRegion{Start: raw[i], End: raw[i+1]})
		}
		return v, nil

	case KindAvailablePeripherals:
		if err := need(1); err != nil {
			return nil, err
		}
		return &AvailablePeripheralsValue{info: in, Value: raw[0]}, nil

	case KindAvailableCommands:
		if err := need(1); err != nil {
			return nil, err
		}
		return &AvailableCommandsValue{info: in, Value: raw[0]}, nil

	case KindIrqNotifierPin:
		if err := need(1); err != nil {
			return nil, err
		}
		return &IrqNotifierPinValue{info: in, Value: raw[0]}, nil

	case KindExternalMemoryAttributes:
		return decodeExternalMemory(in, s, raw, memID)

	case KindFuseLockedStatus:
		if err := need(1); err != nil {
			return nil, err
		}
		v := &FuseLockedStatusValue{info: in}
		index := 0
		for n, word := range raw {
			bits := 32
			if n == 0 {
				bits = 16
			}
			reg := FuseLockRegister{Value: word}
			for b := 0; b < bits; b++ {
				reg.Fuses = append(reg.Fuses, FuseLock{Index: index + b, Locked: word>>uint(b)&1 == 1})
			}
			v.Registers = append(v.Registers, reg)
			index += bits
		}
		return v, nil

	case KindSHEFlashPartition:
		if err := need(1); err != nil {
			return nil, err
		}
		return &SHEFlashPartitionValue{info: in, MaxKeys: raw[0] & 0x03, FlashSize: (raw[0] >> 8) & 0x03}, nil

	case KindSHEBootMode:
		if err := need(1); err != nil {
			return nil, err
		}
		return &SHEBootModeValue{info: in, Size: raw[0] & 0x3FFFFFFF, Mode: (raw[0] >> 30) & 0x03}, nil

	default:
		return nil, &DecodeError{Tag: in.tag, Kind: s.Kind, Reason: "no decoder for kind"}
	}
}

func decodeExternalMemory(in info, s Strategy, raw []uint32, memID protocol.MemoryID) (Value, error) {
	if len(raw) < 1 {
		return nil, &DecodeError{Tag: in.tag, Kind: s.Kind, Reason: "missing attribute mask"}
	}
	mask := raw[0]
	v := &ExternalMemoryAttributesValue{info: in, Value: mask, MemoryID: memID}

	word := func(bit protocol.ExtMemPropTag, idx int) (*uint32, error) {
		if mask&uint32(bit) == 0 {
			return nil, nil
		}
		if idx >= len(raw) {
			return nil, &DecodeError{Tag: in.tag, Kind: s.Kind, Reason: fmt.Sprintf("attribute 0x%02X set but word %d missing", uint32(bit), idx)}
		}
		w := raw[idx]
		return &w, nil
	}

	var err error
	if v.StartAddress, err = word(protocol.ExtMemStartAddress, 1); err != nil {
		return nil, err
	}
	kb, err := word(protocol.ExtMemSizeInKBytes, 2)
	if err != nil {
		return nil, err
	}
	if kb != nil {
		total := uint64(*kb) * 1024
		v.TotalSize = &total
	}
	if v.PageSize, err = word(protocol.ExtMemPageSize, 3); err != nil {
		return nil, err
	}
	if v.SectorSize, err = word(protocol.ExtMemSectorSize, 4); err != nil {
		return nil, err
	}
	if v.BlockSize, err = word(protocol.ExtMemBlockSize, 5); err != nil {
		return nil, err
	}
	return v, nil
}
