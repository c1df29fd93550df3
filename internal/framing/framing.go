package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Start marks the beginning of every frame on the wire.
const Start = 0x5A

// PacketType identifies a UART frame.
type PacketType byte

const (
	TypeAck          PacketType = 0xA1
	TypeNak          PacketType = 0xA2
	TypeAbort        PacketType = 0xA3
	TypeCommand      PacketType = 0xA4
	TypeData         PacketType = 0xA5
	TypePing         PacketType = 0xA6
	TypePingResponse PacketType = 0xA7
)

var typeNames = map[PacketType]string{
	TypeAck:          "ACK",
	TypeNak:          "NAK",
	TypeAbort:        "ABORT",
	TypeCommand:      "CMD",
	TypeData:         "DATA",
	TypePing:         "PING",
	TypePingResponse: "PINGR",
}

func (t PacketType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(t))
}

const (
	// HeaderSize is the size of a framing header for command and data frames.
	HeaderSize = 6

	// PingResponseSize is the size of a complete ping response frame.
	PingResponseSize = 10

	// MaxPayload is the largest payload a frame length field can describe.
	MaxPayload = 0xFFFF
)

var (
	// ErrCRC is returned for a frame whose checksum does not match.
	ErrCRC = errors.New("framing: crc mismatch")

	// ErrPayloadTooLarge is returned for a payload the length field cannot describe.
	ErrPayloadTooLarge = errors.New("framing: payload too large")

	// ErrUnknownType is returned when the byte after Start is not a packet type.
	ErrUnknownType = errors.New("framing: unknown packet type")
)

// Frame is one decoded UART frame.
type Frame struct {
	Type    PacketType
	Payload []byte
}

// CRC16 computes CRC-16/XMODEM (poly 0x1021, init 0).
func CRC16(data []byte) uint16 {
	return CRC16Update(0, data)
}

// CRC16Update continues a CRC-16/XMODEM computation.
func CRC16Update(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Control builds a two-byte frame (ACK, NAK, ABORT, PING).
func Control(t PacketType) []byte {
	return []byte{Start, byte(t)}
}

// Encode wraps a command or data payload in a UART frame:
// [5A][type][len LE16][crc LE16][payload].
// The CRC covers the first four header bytes and the payload.
// Payloads longer than MaxPayload panic; callers check the size first.
func Encode(t PacketType, payload []byte) []byte {
	if len(payload) > MaxPayload {
		panic(fmt.Sprintf("framing: payload of %d bytes exceeds %d", len(payload), MaxPayload))
	}

	frame := make([]byte, HeaderSize+len(payload))
	frame[0] = Start
	frame[1] = byte(t)
	binary.LittleEndian.PutUint16(frame[2:], uint16(len(payload)))
	copy(frame[HeaderSize:], payload)

	crc := CRC16Update(CRC16(frame[:4]), payload)
	binary.LittleEndian.PutUint16(frame[4:], crc)
	return frame
}

// PingResponse is the device answer to a ping.
type PingResponse struct {
	Name    byte // protocol name, 'P'
	Major   uint8
	Minor   uint8
	Bugfix  uint8
	Options uint16
}

func (p PingResponse) String() string {
	return fmt.Sprintf("%c%d.%d.%d", p.Name, p.Major, p.Minor, p.Bugfix)
}

// EncodePingResponse builds a complete ping response frame.
func EncodePingResponse(p PingResponse) []byte {
	frame := make([]byte, PingResponseSize)
	frame[0] = Start
	frame[1] = byte(TypePingResponse)
	frame[2] = p.Bugfix
	frame[3] = p.Minor
	frame[4] = p.Major
	frame[5] = p.Name
	binary.LittleEndian.PutUint16(frame[6:], p.Options)
	binary.LittleEndian.PutUint16(frame[8:], CRC16(frame[:8]))
	return frame
}

// ParsePingResponse decodes the payload of a TypePingResponse frame.
func ParsePingResponse(payload []byte) (PingResponse, error) {
	if len(payload) < PingResponseSize-4 {
		return PingResponse{}, fmt.Errorf("framing: ping response too short: %d bytes", len(payload))
	}
	return PingResponse{
		Bugfix:  payload[0],
		Minor:   payload[1],
		Major:   payload[2],
		Name:    payload[3],
		Options: binary.LittleEndian.Uint16(payload[4:]),
	}, nil
}

// Parse extracts the first frame from a byte stream.
// It returns the frame and the number of bytes consumed. A nil frame with
// n > 0 means leading noise was skipped; a nil frame with n == 0 means
// more bytes are needed. On a CRC error the bad frame is consumed.
func Parse(buf []byte) (frame *Frame, n int, err error) {
	start := -1
	for i, b := range buf {
		if b == Start {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, len(buf), nil
	}
	if start > 0 {
		return nil, start, nil
	}
	if len(buf) < 2 {
		return nil, 0, nil
	}

	t := PacketType(buf[1])
	switch t {
	case TypeAck, TypeNak, TypeAbort, TypePing:
		return &Frame{Type: t}, 2, nil

	case TypePingResponse:
		if len(buf) < PingResponseSize {
			return nil, 0, nil
		}
		want := binary.LittleEndian.Uint16(buf[8:])
		if got := CRC16(buf[:8]); got != want {
			return nil, PingResponseSize, fmt.Errorf("%w: ping response crc 0x%04X, want 0x%04X", ErrCRC, got, want)
		}
		payload := make([]byte, PingResponseSize-4)
		copy(payload, buf[2:8])
		return &Frame{Type: t, Payload: payload}, PingResponseSize, nil

	case TypeCommand, TypeData:
		if len(buf) < HeaderSize {
			return nil, 0, nil
		}
		length := int(binary.LittleEndian.Uint16(buf[2:]))
		total := HeaderSize + length
		if len(buf) < total {
			return nil, 0, nil
		}
		want := binary.LittleEndian.Uint16(buf[4:])
		if got := CRC16Update(CRC16(buf[:4]), buf[HeaderSize:total]); got != want {
			return nil, total, fmt.Errorf("%w: %s frame crc 0x%04X, want 0x%04X", ErrCRC, t, got, want)
		}
		payload := make([]byte, length)
		copy(payload, buf[HeaderSize:total])
		return &Frame{Type: t, Payload: payload}, total, nil

	default:
		// Drop the start byte so the caller can resynchronise.
		return nil, 1, fmt.Errorf("%w: 0x%02X", ErrUnknownType, buf[1])
	}
}
