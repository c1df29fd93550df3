package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	// HeaderSize is the size of a command or response header.
	HeaderSize = 4

	// PacketSize is the fixed size of an encoded command packet.
	PacketSize = 32

	// MaxParameters is the number of parameter words a command packet can hold.
	MaxParameters = (PacketSize - HeaderSize) / 4
)

// CommandPacket represents an MCUboot command packet.
type CommandPacket struct {
	Tag    CommandTag
	Flags  CommandFlag
	Params []uint32
}

// NewCommandPacket creates a command packet.
// It panics if more parameters are given than a packet can hold.
func NewCommandPacket(tag CommandTag, flags CommandFlag, params ...uint32) *CommandPacket {
	if len(params) > MaxParameters {
		panic(fmt.Sprintf("protocol: %s takes at most %d parameters, got %d", tag, MaxParameters, len(params)))
	}
	p := make([]uint32, len(params))
	copy(p, params)
	return &CommandPacket{Tag: tag, Flags: flags, Params: p}
}

// Encode serializes the packet to its fixed-size wire form.
func (p *CommandPacket) Encode() []byte {
	// Packet format:
	// 0: command tag
	// 1: flags
	// 2: reserved (0)
	// 3: parameter count
	// 4+: parameters (little-endian), zero padded to PacketSize
	packet := make([]byte, PacketSize)
	p.put(packet)
	return packet
}

// EncodeCompact serializes the packet without trailing padding.
// Framed serial links carry the exact payload length.
func (p *CommandPacket) EncodeCompact() []byte {
	packet := make([]byte, HeaderSize+4*len(p.Params))
	p.put(packet)
	return packet
}

func (p *CommandPacket) put(packet []byte) {
	packet[0] = byte(p.Tag)
	packet[1] = byte(p.Flags)
	packet[2] = 0
	packet[3] = byte(len(p.Params))
	for i, v := range p.Params {
		binary.LittleEndian.PutUint32(packet[HeaderSize+4*i:], v)
	}
}

// String returns a loggable form of the packet.
func (p *CommandPacket) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tag=%s, Flags=%s", p.Tag, p.Flags)
	for i, v := range p.Params {
		fmt.Fprintf(&b, ", P[%d]=0x%08X", i, v)
	}
	return b.String()
}
