package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// MemoryID selects the memory a command operates on.
type MemoryID uint32

// Memory identifiers. Ids 1..255 name memory-mapped external memories,
// ids above 255 name memories accessed through the bootloader only.
const (
	MemInternal         MemoryID = 0x000
	MemQuadSPI0         MemoryID = 0x001
	MemIFR0             MemoryID = 0x004
	MemSEMCNOR          MemoryID = 0x008
	MemFlexSPINOR       MemoryID = 0x009
	MemSPIFINOR         MemoryID = 0x00A
	MemFlashExecuteOnly MemoryID = 0x010
	MemSEMCNAND         MemoryID = 0x100
	MemSPINAND          MemoryID = 0x101
	MemSPINOREEPROM     MemoryID = 0x110
	MemI2CNOREEPROM     MemoryID = 0x111
	MemSDCard           MemoryID = 0x120
	MemMMCCard          MemoryID = 0x121
)

var memoryLabels = map[MemoryID]string{
	MemInternal:         "INTERNAL",
	MemQuadSPI0:         "QSPI",
	MemIFR0:             "IFR0",
	MemSEMCNOR:          "SEMC-NOR",
	MemFlexSPINOR:       "FLEX-SPI-NOR",
	MemSPIFINOR:         "SPIFI-NOR",
	MemFlashExecuteOnly: "FLASH-EXEC-ONLY",
	MemSEMCNAND:         "SEMC-NAND",
	MemSPINAND:          "SPI-NAND",
	MemSPINOREEPROM:     "SPI-MEM",
	MemI2CNOREEPROM:     "I2C-MEM",
	MemSDCard:           "SD",
	MemMMCCard:          "MMC",
}

// legacy names accepted on the command line
var memoryAliases = map[string]MemoryID{
	"internal":   MemInternal,
	"qspi":       MemQuadSPI0,
	"fuse":       MemIFR0,
	"ifr":        MemIFR0,
	"semcnor":    MemSEMCNOR,
	"flexspinor": MemFlexSPINOR,
	"spifinor":   MemSPIFINOR,
	"semcnand":   MemSEMCNAND,
	"spinand":    MemSPINAND,
	"spieeprom":  MemSPINOREEPROM,
	"i2ceeprom":  MemI2CNOREEPROM,
	"sdcard":     MemSDCard,
	"mmccard":    MemMMCCard,
}

func (m MemoryID) String() string {
	if label, ok := memoryLabels[m]; ok {
		return label
	}
	return fmt.Sprintf("0x%X", uint32(m))
}

// Mapped reports whether the memory is mapped into the address space.
func (m MemoryID) Mapped() bool {
	return m > 0 && m <= 0xFF
}

// ParseMemoryID accepts a number (decimal or 0x-prefixed) or a memory name.
func ParseMemoryID(s string) (MemoryID, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return MemoryID(v), nil
	}
	key := strings.ToLower(s)
	if id, ok := memoryAliases[key]; ok {
		return id, nil
	}
	for id, label := range memoryLabels {
		if strings.EqualFold(label, s) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown memory id: %q", s)
}

// ExtMemPropTag flags which attributes an external memory reports.
type ExtMemPropTag uint32

const (
	ExtMemInitStatus   ExtMemPropTag = 0x00
	ExtMemStartAddress ExtMemPropTag = 0x01
	ExtMemSizeInKBytes ExtMemPropTag = 0x02
	ExtMemPageSize     ExtMemPropTag = 0x04
	ExtMemSectorSize   ExtMemPropTag = 0x08
	ExtMemBlockSize    ExtMemPropTag = 0x10
)
