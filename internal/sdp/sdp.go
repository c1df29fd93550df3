// Package sdp pushes boot images to a ROM in serial download mode using
// the SDPS firmware download command.
package sdp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/rs/zerolog"
)

// PacketSize is the encoded length of a command packet.
const PacketSize = 31

// DefaultSignature is the "BLTC" command block signature.
const DefaultSignature uint32 = 0x43544C42

// DefaultChunkSize is the largest data write sent in one go.
const DefaultChunkSize = 1024

// HID report ids.
const (
	reportCommand byte = 0x01
	reportData    byte = 0x02
)

// ErrShortPacket is returned when decoding fewer than PacketSize bytes.
var ErrShortPacket = errors.New("sdp: short command packet")

// Flag is the data direction of a command.
type Flag uint8

const (
	FlagDataOut Flag = 0x80
	FlagDataIn  Flag = 0x00
)

func (f Flag) String() string {
	switch f {
	case FlagDataOut:
		return "DataOut"
	case FlagDataIn:
		return "DataIn"
	default:
		return fmt.Sprintf("0x%02X", uint8(f))
	}
}

// Command is a command block command.
type Command int8

const CmdFwDownload Command = 2

func (c Command) String() string {
	if c == CmdFwDownload {
		return "FwDownload"
	}
	return fmt.Sprintf("0x%02X", uint8(c))
}

// Packet is an SDPS command packet.
type Packet struct {
	Signature uint32
	Tag       uint32
	Length    uint32
	Flags     Flag
	Command   Command
}

// NewFwDownload returns the packet announcing a download of length bytes.
func NewFwDownload(signature, length uint32) *Packet {
	return &Packet{
		Signature: signature,
		Tag:       1,
		Length:    length,
		Flags:     FlagDataOut,
		Command:   CmdFwDownload,
	}
}

// Encode serializes the packet:
//
//	0:  signature (LE32)
//	4:  tag (LE32)
//	8:  length (LE32)
//	12: flags
//	13: reserved (2)
//	15: command
//	16: length, byte-swapped (LE32)
//	20: reserved (11)
func (p *Packet) Encode() []byte {
	buf := make([]byte, PacketSize)
	binary.LittleEndian.PutUint32(buf[0:], p.Signature)
	binary.LittleEndian.PutUint32(buf[4:], p.Tag)
	binary.LittleEndian.PutUint32(buf[8:], p.Length)
	buf[12] = byte(p.Flags)
	buf[15] = byte(p.Command)
	binary.LittleEndian.PutUint32(buf[16:], bits.ReverseBytes32(p.Length))
	return buf
}

// DecodePacket parses an encoded packet.
func DecodePacket(buf []byte) (*Packet, error) {
	if len(buf) < PacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(buf))
	}
	p := &Packet{
		Signature: binary.LittleEndian.Uint32(buf[0:]),
		Tag:       binary.LittleEndian.Uint32(buf[4:]),
		Length:    binary.LittleEndian.Uint32(buf[8:]),
		Flags:     Flag(buf[12]),
		Command:   Command(int8(buf[15])),
	}
	if swapped := bits.ReverseBytes32(binary.LittleEndian.Uint32(buf[16:])); swapped != p.Length {
		return nil, fmt.Errorf("sdp: length 0x%08X does not match swapped copy 0x%08X", p.Length, swapped)
	}
	return p, nil
}

func (p *Packet) String() string {
	return fmt.Sprintf("Signature=0x%08X, Tag=%d, Length=%d, Flags=%s, Command=%s",
		p.Signature, p.Tag, p.Length, p.Flags, p.Command)
}

// Downloader writes images to a device in serial download mode.
type Downloader struct {
	w         io.Writer
	hid       bool
	chunkSize int
	signature uint32
	log       zerolog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHID prefixes every write with its HID report id.
func WithHID() Option {
	return func(d *Downloader) { d.hid = true }
}

// WithChunkSize sets the data write size.
func WithChunkSize(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// WithSignature replaces the command block signature.
func WithSignature(sig uint32) Option {
	return func(d *Downloader) { d.signature = sig }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Downloader) { d.log = log }
}

// NewDownloader creates a Downloader writing to w.
func NewDownloader(w io.Writer, opts ...Option) *Downloader {
	d := &Downloader{
		w:         w,
		chunkSize: DefaultChunkSize,
		signature: DefaultSignature,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WriteFile sends the download command followed by the image.
func (d *Downloader) WriteFile(data []byte, progress func(current, total int)) error {
	pkt := NewFwDownload(d.signature, uint32(len(data)))
	d.log.Debug().Str("packet", pkt.String()).Msg("SDPS TX")
	if err := d.write(reportCommand, pkt.Encode()); err != nil {
		return fmt.Errorf("failed to send download command: %w", err)
	}

	for sent := 0; sent < len(data); {
		end := min(sent+d.chunkSize, len(data))
		if err := d.write(reportData, data[sent:end]); err != nil {
			return fmt.Errorf("failed to send data at offset %d: %w", sent, err)
		}
		sent = end
		if progress != nil {
			progress(sent, len(data))
		}
	}
	d.log.Info().Int("bytes", len(data)).Msg("Image downloaded")
	return nil
}

func (d *Downloader) write(report byte, payload []byte) error {
	buf := payload
	if d.hid {
		buf = make([]byte, 1+len(payload))
		buf[0] = report
		copy(buf[1:], payload)
	}
	_, err := d.w.Write(buf)
	return err
}
