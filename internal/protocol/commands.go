package protocol

import "fmt"

// CommandTag identifies an MCUboot command.
type CommandTag uint8

// MCUboot commands
const (
	CmdNoCommand             CommandTag = 0x00
	CmdFlashEraseAll         CommandTag = 0x01
	CmdFlashEraseRegion      CommandTag = 0x02
	CmdReadMemory            CommandTag = 0x03
	CmdWriteMemory           CommandTag = 0x04
	CmdFillMemory            CommandTag = 0x05
	CmdFlashSecurityDisable  CommandTag = 0x06
	CmdGetProperty           CommandTag = 0x07
	CmdReceiveSBFile         CommandTag = 0x08
	CmdExecute               CommandTag = 0x09
	CmdCall                  CommandTag = 0x0A
	CmdReset                 CommandTag = 0x0B
	CmdSetProperty           CommandTag = 0x0C
	CmdFlashEraseAllUnsecure CommandTag = 0x0D
	CmdFlashProgramOnce      CommandTag = 0x0E
	CmdFlashReadOnce         CommandTag = 0x0F
	CmdFlashReadResource     CommandTag = 0x10
	CmdConfigureMemory       CommandTag = 0x11
	CmdReliableUpdate        CommandTag = 0x12
	CmdGenerateKeyBlob       CommandTag = 0x13
	CmdFuseProgram           CommandTag = 0x14
	CmdKeyProvisioning       CommandTag = 0x15
	CmdTrustProvisioning     CommandTag = 0x16
	CmdFuseRead              CommandTag = 0x17
	CmdUpdateLifeCycle       CommandTag = 0x18
	CmdEleMessage            CommandTag = 0x19
)

var commandLabels = map[CommandTag]string{
	CmdNoCommand:             "NoCommand",
	CmdFlashEraseAll:         "FlashEraseAll",
	CmdFlashEraseRegion:      "FlashEraseRegion",
	CmdReadMemory:            "ReadMemory",
	CmdWriteMemory:           "WriteMemory",
	CmdFillMemory:            "FillMemory",
	CmdFlashSecurityDisable:  "FlashSecurityDisable",
	CmdGetProperty:           "GetProperty",
	CmdReceiveSBFile:         "ReceiveSBFile",
	CmdExecute:               "Execute",
	CmdCall:                  "Call",
	CmdReset:                 "Reset",
	CmdSetProperty:           "SetProperty",
	CmdFlashEraseAllUnsecure: "FlashEraseAllUnsecure",
	CmdFlashProgramOnce:      "FlashProgramOnce",
	CmdFlashReadOnce:         "FlashReadOnce",
	CmdFlashReadResource:     "FlashReadResource",
	CmdConfigureMemory:       "ConfigureMemory",
	CmdReliableUpdate:        "ReliableUpdate",
	CmdGenerateKeyBlob:       "GenerateKeyBlob",
	CmdFuseProgram:           "ProgramFuse",
	CmdKeyProvisioning:       "KeyProvisioning",
	CmdTrustProvisioning:     "TrustProvisioning",
	CmdFuseRead:              "ReadFuse",
	CmdUpdateLifeCycle:       "UpdateLifeCycle",
	CmdEleMessage:            "EleMessage",
}

// Commands returns all known command tags in wire order.
func Commands() []CommandTag {
	tags := make([]CommandTag, 0, len(commandLabels))
	for tag := CmdNoCommand; tag <= CmdEleMessage; tag++ {
		tags = append(tags, tag)
	}
	return tags
}

// Known reports whether the tag is part of the command set.
func (c CommandTag) Known() bool {
	_, ok := commandLabels[c]
	return ok
}

// String returns the command label, or its hex value when unknown.
func (c CommandTag) String() string {
	if label, ok := commandLabels[c]; ok {
		return label
	}
	return fmt.Sprintf("0x%02X", uint8(c))
}

// CommandFlag describes the data phase of a command.
type CommandFlag uint8

// Command flags
const (
	FlagNone         CommandFlag = 0x00
	FlagHasDataPhase CommandFlag = 0x01
)

// String returns a human-readable flag name.
func (f CommandFlag) String() string {
	switch f {
	case FlagNone:
		return "NONE"
	case FlagHasDataPhase:
		return "DATA_PHASE"
	default:
		return fmt.Sprintf("0x%02X", uint8(f))
	}
}

// ResponseTag identifies an MCUboot response packet.
type ResponseTag uint8

// MCUboot responses
const (
	RespGeneric           ResponseTag = 0xA0
	RespReadMemory        ResponseTag = 0xA3
	RespGetProperty       ResponseTag = 0xA7
	RespFlashReadOnce     ResponseTag = 0xAF
	RespFlashReadResource ResponseTag = 0xB0
	RespKeyBlob           ResponseTag = 0xB3
	RespKeyProvisioning   ResponseTag = 0xB5
	RespTrustProvisioning ResponseTag = 0xB6
)

var responseLabels = map[ResponseTag]string{
	RespGeneric:           "GenericResponse",
	RespReadMemory:        "ReadMemoryResponse",
	RespGetProperty:       "GetPropertyResponse",
	RespFlashReadOnce:     "FlashReadOnceResponse",
	RespFlashReadResource: "FlashReadResourceResponse",
	RespKeyBlob:           "KeyBlobResponse",
	RespKeyProvisioning:   "KeyProvisioningResponse",
	RespTrustProvisioning: "TrustProvisioningResponse",
}

// String returns the response label, or its hex value when unknown.
func (r ResponseTag) String() string {
	if label, ok := responseLabels[r]; ok {
		return label
	}
	return fmt.Sprintf("0x%02X", uint8(r))
}
