package protocol

import "time"

// DefaultBaudRate is the UART speed MCUboot ROMs auto-baud to most reliably.
const DefaultBaudRate = 57600

// DefaultTimeout bounds a single command exchange.
const DefaultTimeout = 5 * time.Second

// DefaultMaxPacketSize is used when the device does not report MaxPacketSize.
const DefaultMaxPacketSize = 32
