package protocol

import "fmt"

// StatusCode is a status reported by the bootloader or synthesized by the host.
type StatusCode uint32

// Generic status codes
const (
	StatusSuccess               StatusCode = 0
	StatusFail                  StatusCode = 1
	StatusReadOnly              StatusCode = 2
	StatusOutOfRange            StatusCode = 3
	StatusInvalidArgument       StatusCode = 4
	StatusTimeout               StatusCode = 5
	StatusNoTransferInProgress  StatusCode = 6
	StatusSendingOperationError StatusCode = 1812
)

// Bootloader status codes
const (
	StatusUnknownCommand       StatusCode = 10000
	StatusSecurityViolation    StatusCode = 10001
	StatusAbortDataPhase       StatusCode = 10002
	StatusPingError            StatusCode = 10003
	StatusNoResponse           StatusCode = 10004
	StatusNoResponseExpected   StatusCode = 10005
	StatusUnsupportedCommand   StatusCode = 10006
	StatusUnknownProperty      StatusCode = 10300
	StatusReadOnlyProperty     StatusCode = 10301
	StatusInvalidPropertyValue StatusCode = 10302
)

type statusInfo struct {
	label string
	desc  string
}

var statusTable = map[StatusCode]statusInfo{
	StatusSuccess:              {"Success", "Success"},
	StatusFail:                 {"Fail", "Fail"},
	StatusReadOnly:             {"ReadOnly", "Read Only Error"},
	StatusOutOfRange:           {"OutOfRange", "Out Of Range Error"},
	StatusInvalidArgument:      {"InvalidArgument", "Invalid Argument Error"},
	StatusTimeout:              {"TimeoutError", "Timeout Error"},
	StatusNoTransferInProgress: {"NoTransferInProgress", "No Transfer In Progress Error"},

	// flash driver
	100: {"FlashSizeError", "FLASH Driver: Size Error"},
	101: {"FlashAlignmentError", "FLASH Driver: Alignment Error"},
	102: {"FlashAddressError", "FLASH Driver: Address Error"},
	103: {"FlashAccessError", "FLASH Driver: Access Error"},
	104: {"FlashProtectionViolation", "FLASH Driver: Protection Violation"},
	105: {"FlashCommandFailure", "FLASH Driver: Command Failure"},
	106: {"FlashUnknownProperty", "FLASH Driver: Unknown Property"},
	107: {"FlashEraseKeyError", "FLASH Driver: Provided Key Does Not Match Programmed Flash Memory Key"},
	108: {"FlashRegionExecuteOnly", "FLASH Driver: Region Execute Only"},
	109: {"FlashExecuteInRamFunctionNotReady", "FLASH Driver: Execute In RAM Function Not Ready"},
	111: {"FlashCommandNotSupported", "FLASH Driver: Command Not Supported"},
	112: {"FlashReadOnlyProperty", "FLASH Driver: Flash Memory Property Is Read-Only"},
	113: {"FlashInvalidPropertyValue", "FLASH Driver: Flash Memory Property Value Out Of Range"},
	114: {"FlashInvalidSpeculationOption", "FLASH Driver: Flash Memory Prefetch Speculation Option Is Invalid"},
	116: {"FlashEccError", "FLASH Driver: ECC Error"},
	117: {"FlashCompareError", "FLASH Driver: Destination And Source Memory Contents Do Not Match"},
	118: {"FlashRegulationLoss", "FLASH Driver: Loss Of Regulation During Read"},
	119: {"FlashInvalidWaitStateCycles", "FLASH Driver: Wait State Cycle Set To Read/Write Mode Is Invalid"},
	132: {"FlashOutOfDateCfpaPage", "FLASH Driver: Out Of Date CFPA Page"},
	133: {"FlashBlankIfrPageData", "FLASH Driver: Blank IFR Page Data"},
	134: {"FlashEncryptedRegionsEraseNotDoneAtOnce", "FLASH Driver: Encrypted Regions Erase Not Done At Once"},
	135: {"FlashProgramVerificationNotAllowed", "FLASH Driver: Program Verification Not Allowed"},
	136: {"FlashHashCheckError", "FLASH Driver: Hash Check Error"},
	137: {"FlashSealedPfrRegion", "FLASH Driver: Sealed PFR Region"},
	138: {"FlashPfrRegionWriteBroken", "FLASH Driver: PFR Region Write Broken"},
	139: {"FlashNmpaUpdateNotAllowed", "FLASH Driver: NMPA Update Not Allowed"},
	140: {"FlashCmpaCfgDirectEraseNotAllowed", "FLASH Driver: CMPA Cfg Direct Erase Not Allowed"},
	141: {"FlashPfrBankIsLocked", "FLASH Driver: PFR Bank Is Locked"},
	148: {"FlashCfpaScratchPageInvalid", "FLASH Driver: CFPA Scratch Page Invalid"},
	149: {"FlashCfpaVersionRollbackDisallowed", "FLASH Driver: CFPA Version Rollback Disallowed"},
	150: {"FlashReadHidingAreaDisallowed", "FLASH Driver: Flash Memory Hiding Read Not Allowed"},
	151: {"FlashModifyProtectedAreaDisallowed", "FLASH Driver: Flash Firewall Page Locked Erase And Program Are Not Allowed"},
	152: {"FlashCommandOperationInProgress", "FLASH Driver: Flash Memory State Busy Flash Memory Command Is In Progress"},

	// peripheral drivers
	200: {"I2cSlaveTxUnderrun", "I2C Driver: Slave Tx Underrun"},
	201: {"I2cSlaveRxOverrun", "I2C Driver: Slave Rx Overrun"},
	202: {"I2cArbitrationLost", "I2C Driver: Arbitration Lost"},
	300: {"SpiSlaveTxUnderrun", "SPI Driver: Slave Tx Underrun"},
	301: {"SpiSlaveRxOverrun", "SPI Driver: Slave Rx Overrun"},
	400: {"QspiFlashSizeError", "QSPI Driver: Flash Size Error"},
	401: {"QspiFlashAlignmentError", "QSPI Driver: Flash Alignment Error"},
	402: {"QspiFlashAddressError", "QSPI Driver: Flash Address Error"},
	403: {"QspiFlashCommandFailure", "QSPI Driver: Flash Command Failure"},
	404: {"QspiFlashUnknownProperty", "QSPI Driver: Flash Unknown Property"},
	405: {"QspiNotConfigured", "QSPI Driver: Not Configured"},
	406: {"QspiCommandNotSupported", "QSPI Driver: Command Not Supported"},
	407: {"QspiCommandTimeout", "QSPI Driver: Command Timeout"},
	408: {"QspiWriteFailure", "QSPI Driver: Write Failure"},
	500: {"OtfadSecurityViolation", "OTFAD Driver: Security Violation"},
	501: {"OtfadLogicallyDisabled", "OTFAD Driver: Logically Disabled"},
	502: {"OtfadInvalidKey", "OTFAD Driver: Invalid Key"},
	503: {"OtfadInvalidKeyBlob", "OTFAD Driver: Invalid Key Blob"},

	StatusSendingOperationError: {"SendOperationConditionError", "Send Operation Condition failed"},

	6000: {"FlexspiSequenceExecutionTimeout", "FlexSPI Driver: Sequence Execution Timeout"},
	6001: {"FlexspiInvalidSequence", "FlexSPI Driver: Invalid Sequence"},
	6002: {"FlexspiDeviceTimeout", "FlexSPI Driver: Device Timeout"},

	StatusUnknownCommand:     {"UnknownCommand", "Unknown Command"},
	StatusSecurityViolation:  {"SecurityViolation", "Security Violation"},
	StatusAbortDataPhase:     {"AbortDataPhase", "Abort Data Phase"},
	StatusPingError:          {"PingError", "Ping Error"},
	StatusNoResponse:         {"NoResponse", "No response packet from target device"},
	StatusNoResponseExpected: {"NoResponseExpected", "No Response Expected"},
	StatusUnsupportedCommand: {"UnsupportedCommand", "Unsupported Command"},

	// SB loader
	10100: {"RomLdrSectionOverrun", "ROM Loader: Section Overrun"},
	10101: {"RomLdrSignature", "ROM Loader: Signature Error"},
	10102: {"RomLdrSectionLength", "ROM Loader: Section Length Error"},
	10103: {"RomLdrUnencryptedOnly", "ROM Loader: Unencrypted Only"},
	10104: {"RomLdrEOFReached", "ROM Loader: EOF Reached"},
	10105: {"RomLdrChecksum", "ROM Loader: Checksum Error"},
	10106: {"RomLdrCrc32Error", "ROM Loader: CRC32 Error"},
	10107: {"RomLdrUnknownCommand", "ROM Loader: Unknown Command"},
	10108: {"RomLdrIdNotFound", "ROM Loader: ID Not Found"},
	10109: {"RomLdrDataUnderrun", "ROM Loader: Data Underrun"},
	10110: {"RomLdrJumpReturned", "ROM Loader: Jump Returned"},
	10111: {"RomLdrCallFailed", "ROM Loader: Call Failed"},
	10112: {"RomLdrKeyNotFound", "ROM Loader: Key Not Found"},
	10113: {"RomLdrSecureOnly", "ROM Loader: Secure Only"},
	10114: {"RomLdrResetReturned", "ROM Loader: Reset Returned"},
	10115: {"RomLdrRollbackBlocked", "ROM Loader: Rollback Blocked"},
	10116: {"RomLdrInvalidSectionMacCount", "ROM Loader: Invalid Section Mac Count"},
	10117: {"RomLdrUnexpectedCommand", "ROM Loader: Unexpected Command"},
	10118: {"RomLdrBadSBKEK", "ROM Loader: Bad SBKEK Detected"},
	10119: {"RomLdrPendingJumpCommand", "ROM Loader: Pending Jump Command"},

	// memory interface
	10200: {"MemoryRangeInvalid", "Memory Range Invalid"},
	10201: {"MemoryReadFailed", "Memory Read Failed"},
	10202: {"MemoryWriteFailed", "Memory Write Failed"},
	10203: {"MemoryCumulativeWrite", "Memory Cumulative Write"},
	10204: {"MemoryAppOverlapWithExecuteOnlyRegion", "Memory App Overlap with exec region"},
	10205: {"MemoryNotConfigured", "Memory Not Configured"},
	10206: {"MemoryAlignmentError", "Memory Alignment Error"},
	10207: {"MemoryVerifyFailed", "Memory Verify Failed"},
	10208: {"MemoryWriteProtected", "Memory Write Protected"},
	10209: {"MemoryAddressError", "Memory Address Error"},
	10210: {"MemoryBlankCheckFailed", "Memory Black Check Failed"},
	10211: {"MemoryBlankPageReadDisallowed", "Memory Blank Page Read Disallowed"},
	10212: {"MemoryProtectedPageReadDisallowed", "Memory Protected Page Read Disallowed"},
	10213: {"MemoryPfrSpecRegionWriteBroken", "Memory PFR Spec Region Write Broken"},
	10214: {"MemoryUnsupportedCommand", "Memory Unsupported Command"},

	StatusUnknownProperty:      {"UnknownProperty", "Unknown Property"},
	StatusReadOnlyProperty:     {"ReadOnlyProperty", "Read Only Property"},
	StatusInvalidPropertyValue: {"InvalidPropertyValue", "Invalid Property Value"},

	// application CRC check
	10400: {"AppCrcCheckPassed", "Application CRC Check: Passed"},
	10401: {"AppCrcCheckFailed", "Application: CRC Check: Failed"},
	10402: {"AppCrcCheckInactive", "Application CRC Check: Inactive"},
	10403: {"AppCrcCheckInvalid", "Application CRC Check: Invalid"},
	10404: {"AppCrcCheckOutOfRange", "Application CRC Check: Out Of Range"},

	// packetizer
	10500: {"NoPingResponse", "Packetizer Error: No response received for ping command"},
	10501: {"InvalidPacketType", "Packetizer Error: Invalid packet type"},
	10502: {"InvalidCRC", "Packetizer Error: Invalid CRC value"},
	10503: {"NoCommandResponse", "Packetizer Error: No response received for command"},

	// reliable update
	10600: {"ReliableUpdateSuccess", "Reliable Update: Success"},
	10601: {"ReliableUpdateFail", "Reliable Update: Fail"},
	10602: {"ReliableUpdateInactive", "Reliable Update: Inactive"},
	10603: {"ReliableUpdateBackupApplicationInvalid", "Reliable Update: Backup Application Invalid"},
	10604: {"ReliableUpdateStillInMainApplication", "Reliable Update: Still In Main Application"},
	10605: {"ReliableUpdateSwapSystemNotReady", "Reliable Update: Swap System Not Ready"},
	10606: {"ReliableUpdateBackupBootloaderNotReady", "Reliable Update: Backup Bootloader Not Ready"},
	10607: {"ReliableUpdateSwapIndicatorAddressInvalid", "Reliable Update: Swap Indicator Address Invalid"},
	10608: {"ReliableUpdateSwapSystemNotAvailable", "Reliable Update: Swap System Not Available"},
	10609: {"ReliableUpdateSwapTest", "Reliable Update: Swap Test"},

	// serial NOR/EEPROM
	10700: {"SerialNorEepromAddressInvalid", "SerialNorEeprom: Address Invalid"},
	10701: {"SerialNorEepromTransferError", "SerialNorEeprom: Transfer Error"},
	10702: {"SerialNorEepromTypeInvalid", "SerialNorEeprom: Type Invalid"},
	10703: {"SerialNorEepromSizeInvalid", "SerialNorEeprom: Size Invalid"},
	10704: {"SerialNorEepromCommandInvalid", "SerialNorEeprom: Command Invalid"},

	// ROM API
	10800: {"RomApiNeedMoreData", "RomApi: Need More Data"},
	10801: {"RomApiBufferSizeNotEnough", "RomApi: Buffer Size Not Enough"},
	10802: {"RomApiInvalidBuffer", "RomApi: Invalid Buffer"},
}

// Known reports whether the code has a label.
func (s StatusCode) Known() bool {
	_, ok := statusTable[s]
	return ok
}

// Label returns the short status name, or the raw hex value when unknown.
func (s StatusCode) Label() string {
	if info, ok := statusTable[s]; ok {
		return info.label
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}

// Description returns a human-readable status text, or the raw hex value when unknown.
func (s StatusCode) Description() string {
	if info, ok := statusTable[s]; ok {
		return info.desc
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}

func (s StatusCode) String() string {
	return s.Label()
}

// LabelStatus resolves a raw value to a status label.
// It reports false for values outside the status vocabulary.
func LabelStatus(v uint32) (string, bool) {
	info, ok := statusTable[StatusCode(v)]
	return info.label, ok
}
