package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bigbag/mcuboot-flasher/internal/framing"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

// Port is a byte stream to a UART device. Read returns (0, nil) when
// nothing arrives within the port's read timeout.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error
	Close() error
}

// Opener opens the underlying port.
type Opener func() (Port, error)

// UART speaks the MCUboot serial framing protocol.
type UART struct {
	open       Opener
	port       Port
	timeout    time.Duration
	log        zerolog.Logger
	allowAbort bool
	buf        []byte
	version    framing.PingResponse
}

// NewUART creates a UART transport. The port is opened by Open.
func NewUART(open Opener, timeout time.Duration, log zerolog.Logger) *UART {
	if timeout <= 0 {
		timeout = protocol.DefaultTimeout
	}
	return &UART{open: open, timeout: timeout, log: log}
}

// Open opens the port and pings the bootloader.
func (u *UART) Open() error {
	if u.port != nil {
		return nil
	}

	port, err := u.open()
	if err != nil {
		return err
	}
	u.port = port
	u.buf = nil

	if err := port.Flush(); err != nil {
		u.log.Debug().Err(err).Msg("Flush failed")
	}

	if err := u.ping(); err != nil {
		port.Close()
		u.port = nil
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (u *UART) ping() error {
	if _, err := u.port.Write(framing.Control(framing.TypePing)); err != nil {
		return err
	}

	frame, err := u.readFrame(time.Now().Add(u.timeout))
	if err != nil {
		return err
	}
	if frame.Type != framing.TypePingResponse {
		return fmt.Errorf("unexpected %s frame", frame.Type)
	}

	resp, err := framing.ParsePingResponse(frame.Payload)
	if err != nil {
		return err
	}
	u.version = resp
	u.log.Debug().Str("protocol", resp.String()).Uint16("options", resp.Options).Msg("Ping response")
	return nil
}

// Close closes the port.
func (u *UART) Close() error {
	if u.port == nil {
		return nil
	}
	err := u.port.Close()
	u.port = nil
	u.buf = nil
	return err
}

// IsOpen reports whether the port is open.
func (u *UART) IsOpen() bool { return u.port != nil }

// Version returns the framing protocol version reported by the last ping.
func (u *UART) Version() framing.PingResponse { return u.version }

func (u *UART) NeedDataSplit() bool      { return true }
func (u *UART) SetAllowAbort(allow bool) { u.allowAbort = allow }
func (u *UART) IsUSB() bool              { return false }

// WriteCommand sends an unpadded command frame and waits for ACK.
func (u *UART) WriteCommand(pkt *protocol.CommandPacket) error {
	return u.send(framing.TypeCommand, pkt.EncodeCompact())
}

// WriteData sends a data frame and waits for ACK.
func (u *UART) WriteData(chunk []byte) error {
	return u.send(framing.TypeData, chunk)
}

func (u *UART) send(t framing.PacketType, payload []byte) error {
	if u.port == nil {
		return ErrClosed
	}

	if len(payload) > framing.MaxPayload {
		return fmt.Errorf("%w: %d bytes, limit %d", framing.ErrPayloadTooLarge, len(payload), framing.MaxPayload)
	}

	frame := framing.Encode(t, payload)
	u.log.Trace().Hex("frame", frame).Msg("UART TX")
	if _, err := u.port.Write(frame); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	deadline := time.Now().Add(u.timeout)
	for {
		reply, err := u.readFrame(deadline)
		if err != nil {
			return err
		}
		switch reply.Type {
		case framing.TypeAck:
			return nil
		case framing.TypeNak:
			return ErrNAK
		case framing.TypeAbort:
			if u.allowAbort {
				return ErrDataAbort
			}
			return fmt.Errorf("unexpected %s frame", reply.Type)
		default:
			u.log.Debug().Str("type", reply.Type.String()).Msg("Ignoring frame while waiting for ACK")
		}
	}
}

// Read returns the next command or data frame, acknowledging it.
func (u *UART) Read(length int) (protocol.Frame, error) {
	if u.port == nil {
		return protocol.Frame{}, ErrClosed
	}

	deadline := time.Now().Add(u.timeout)
	for {
		frame, err := u.readFrame(deadline)
		if errors.Is(err, framing.ErrCRC) {
			if _, werr := u.port.Write(framing.Control(framing.TypeNak)); werr != nil {
				u.log.Debug().Err(werr).Msg("NAK write failed")
			}
			return protocol.Frame{}, err
		}
		if err != nil {
			return protocol.Frame{}, err
		}

		switch frame.Type {
		case framing.TypeCommand, framing.TypeData:
			if _, err := u.port.Write(framing.Control(framing.TypeAck)); err != nil {
				return protocol.Frame{}, fmt.Errorf("write ack failed: %w", err)
			}
			kind := protocol.FrameCommand
			if frame.Type == framing.TypeData {
				kind = protocol.FrameData
			}
			return protocol.Frame{Kind: kind, Payload: frame.Payload}, nil
		case framing.TypeAbort:
			if u.allowAbort {
				return protocol.Frame{}, ErrDataAbort
			}
			u.log.Debug().Msg("Ignoring ABORT frame")
		default:
			u.log.Debug().Str("type", frame.Type.String()).Msg("Ignoring frame")
		}
	}
}

// readFrame returns the next complete frame, reading the port until deadline.
func (u *UART) readFrame(deadline time.Time) (*framing.Frame, error) {
	chunk := make([]byte, 256)
	for {
		for len(u.buf) > 0 {
			frame, n, err := framing.Parse(u.buf)
			u.buf = u.buf[n:]
			if err != nil && !errors.Is(err, framing.ErrUnknownType) {
				return nil, err
			}
			if frame != nil {
				u.log.Trace().Str("type", frame.Type.String()).Int("len", len(frame.Payload)).Msg("UART RX")
				return frame, nil
			}
			if n == 0 {
				break
			}
		}

		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}

		n, err := u.port.Read(chunk)
		if n > 0 {
			u.buf = append(u.buf, chunk[:n]...)
		}
		if err != nil && n == 0 {
			return nil, fmt.Errorf("read failed: %w", err)
		}
	}
}
