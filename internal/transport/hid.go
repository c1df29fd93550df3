package transport

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

// HID report ids used by MCUboot.
const (
	ReportCommandOut byte = 0x01
	ReportDataOut    byte = 0x02
	ReportCommandIn  byte = 0x03
	ReportDataIn     byte = 0x04
)

// hidHeaderSize is [report id][pad][length LE16].
const hidHeaderSize = 4

// hidReportSize is the largest input report read in one go.
const hidReportSize = 1024

// HIDDevice is an open USB HID handle. ReadTimeout returns (0, nil) when
// no report arrives in time.
type HIDDevice interface {
	Write(report []byte) (int, error)
	ReadTimeout(buf []byte, timeout time.Duration) (int, error)
	Close() error
}

// HIDOpener opens the HID device.
type HIDOpener func() (HIDDevice, error)

// USBHID carries MCUboot packets in HID reports.
type USBHID struct {
	open       HIDOpener
	dev        HIDDevice
	timeout    time.Duration
	log        zerolog.Logger
	allowAbort bool
}

// NewUSBHID creates a USB HID transport. The device is opened by Open.
func NewUSBHID(open HIDOpener, timeout time.Duration, log zerolog.Logger) *USBHID {
	if timeout <= 0 {
		timeout = protocol.DefaultTimeout
	}
	return &USBHID{open: open, timeout: timeout, log: log}
}

func (h *USBHID) Open() error {
	if h.dev != nil {
		return nil
	}
	dev, err := h.open()
	if err != nil {
		return err
	}
	h.dev = dev
	return nil
}

func (h *USBHID) Close() error {
	if h.dev == nil {
		return nil
	}
	err := h.dev.Close()
	h.dev = nil
	return err
}

func (h *USBHID) IsOpen() bool              { return h.dev != nil }
func (h *USBHID) NeedDataSplit() bool      { return true }
func (h *USBHID) SetAllowAbort(allow bool) { h.allowAbort = allow }
func (h *USBHID) IsUSB() bool              { return true }

// WriteCommand sends the padded command packet in a command-out report.
func (h *USBHID) WriteCommand(pkt *protocol.CommandPacket) error {
	return h.write(ReportCommandOut, pkt.Encode())
}

// WriteData sends a chunk in a data-out report.
func (h *USBHID) WriteData(chunk []byte) error {
	return h.write(ReportDataOut, chunk)
}

func (h *USBHID) write(id byte, payload []byte) error {
	if h.dev == nil {
		return ErrClosed
	}
	report := make([]byte, hidHeaderSize+len(payload))
	report[0] = id
	binary.LittleEndian.PutUint16(report[2:], uint16(len(payload)))
	copy(report[hidHeaderSize:], payload)

	h.log.Trace().Hex("report", report).Msg("HID TX")
	if _, err := h.dev.Write(report); err != nil {
		return fmt.Errorf("hid write failed: %w", err)
	}
	return nil
}

// Read returns the next input report as a command or data frame.
func (h *USBHID) Read(length int) (protocol.Frame, error) {
	if h.dev == nil {
		return protocol.Frame{}, ErrClosed
	}

	size := hidReportSize
	if length > 0 && length+hidHeaderSize < size {
		size = length + hidHeaderSize
	}
	if size < hidHeaderSize+protocol.PacketSize {
		size = hidHeaderSize + protocol.PacketSize
	}

	buf := make([]byte, size)
	n, err := h.dev.ReadTimeout(buf, h.timeout)
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("hid read failed: %w", err)
	}
	if n == 0 {
		return protocol.Frame{}, ErrTimeout
	}
	if n < hidHeaderSize {
		return protocol.Frame{}, fmt.Errorf("%w: hid report of %d bytes", protocol.ErrMalformedResponse, n)
	}
	h.log.Trace().Hex("report", buf[:n]).Msg("HID RX")

	plen := int(binary.LittleEndian.Uint16(buf[2:]))
	if hidHeaderSize+plen > n {
		return protocol.Frame{}, fmt.Errorf("%w: hid report length %d exceeds %d received bytes",
			protocol.ErrMalformedResponse, plen, n-hidHeaderSize)
	}
	payload := make([]byte, plen)
	copy(payload, buf[hidHeaderSize:hidHeaderSize+plen])

	switch buf[0] {
	case ReportCommandIn:
		return protocol.Frame{Kind: protocol.FrameCommand, Payload: payload}, nil
	case ReportDataIn:
		if plen == 0 && h.allowAbort {
			return protocol.Frame{}, ErrDataAbort
		}
		return protocol.Frame{Kind: protocol.FrameData, Payload: payload}, nil
	default:
		return protocol.Frame{}, fmt.Errorf("%w: unexpected hid report id 0x%02X", protocol.ErrMalformedResponse, buf[0])
	}
}
