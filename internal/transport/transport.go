// Package transport carries MCUboot command and data frames to a device.
package transport

import (
	"errors"

	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

var (
	// ErrTimeout is returned when the device does not answer in time.
	ErrTimeout = errors.New("transport: timeout")

	// ErrDataAbort is returned when the device aborts a data phase.
	ErrDataAbort = errors.New("transport: data phase aborted by device")

	// ErrNAK is returned when the device rejects a frame.
	ErrNAK = errors.New("transport: frame not acknowledged")

	// ErrClosed is returned by I/O on a transport that is not open.
	ErrClosed = errors.New("transport: not open")
)

// Transport is the device link a session drives.
type Transport interface {
	Open() error
	Close() error
	IsOpen() bool

	// WriteCommand sends a command packet.
	WriteCommand(pkt *protocol.CommandPacket) error
	// WriteData sends one data-phase chunk.
	WriteData(chunk []byte) error
	// Read returns the next command or data frame. length is a hint for
	// the expected data size; transports may ignore it.
	Read(length int) (protocol.Frame, error)

	// NeedDataSplit reports whether data must be chunked to the max packet size.
	NeedDataSplit() bool
	// SetAllowAbort enables data-phase abort detection.
	SetAllowAbort(allow bool)
	// IsUSB reports whether the link is a USB device.
	IsUSB() bool
}
