package mboot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

func (m *McuBoot) command(tag protocol.CommandTag, flags protocol.CommandFlag, params ...uint32) (protocol.Response, error) {
	if err := m.checkOpen(tag.String()); err != nil {
		return nil, err
	}
	return m.process(protocol.NewCommandPacket(tag, flags, params...))
}

func (m *McuBoot) simple(tag protocol.CommandTag, params ...uint32) error {
	_, err := m.command(tag, protocol.FlagNone, params...)
	return err
}

// ReadMemory reads length bytes starting at address.
//
// Over USB, unless fast mode is requested, the read is split into
// max-packet-size commands; a device that stops answering yields the bytes
// read so far together with a NoResponse CommandError.
func (m *McuBoot) ReadMemory(address uint32, length int, opts ...OpOption) ([]byte, error) {
	const op = "ReadMemory"
	if err := m.checkOpen(op); err != nil {
		return nil, err
	}
	cfg := newOpConfig(opts)
	memID := m.clampMemoryID(cfg.memID)
	m.log.Info().Uint32("address", address).Int("length", length).Str("memory", memID.String()).Msg("Reading memory")

	if m.t.IsUSB() && !cfg.fast {
		return m.readMemoryChunked(address, length, memID, cfg)
	}

	length32 := uint32(length)
	resp, err := m.process(protocol.NewCommandPacket(protocol.CmdReadMemory, protocol.FlagNone, address, length32, uint32(memID)))
	if err != nil {
		return nil, err
	}
	rm, ok := resp.(*protocol.ReadMemoryResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidResponse, resp, op)
	}
	return m.readData(protocol.CmdReadMemory, min(int(rm.Length), length), cfg.progress)
}

func (m *McuBoot) readMemoryChunked(address uint32, length int, memID protocol.MemoryID, cfg opConfig) ([]byte, error) {
	size := m.MaxPacketSize()
	data := make([]byte, 0, length)

	for len(data) < length {
		n := min(size, length-len(data))
		pkt := protocol.NewCommandPacket(protocol.CmdReadMemory, protocol.FlagNone,
			address+uint32(len(data)), uint32(n), uint32(memID))

		resp, err := m.process(pkt)
		if err != nil {
			if IsStatus(err, protocol.StatusNoResponse) && len(data) > 0 {
				m.log.Warn().Int("read", len(data)).Msg("Device not responding, returning partial data")
				return data, err
			}
			return nil, err
		}
		rm, ok := resp.(*protocol.ReadMemoryResponse)
		if !ok {
			return nil, fmt.Errorf("%w: %s to ReadMemory", ErrInvalidResponse, resp)
		}

		chunk, err := m.readData(protocol.CmdReadMemory, min(int(rm.Length), n), nil)
		if rejected(err) {
			return data, err
		}
		data = append(data, chunk...)
		cfg.report(len(data), length)
		if err != nil {
			if m.status == protocol.StatusNoResponse {
				m.log.Warn().Int("read", len(data)).Msg("Device not responding, returning partial data")
			}
			return data, err
		}
		if len(chunk) == 0 {
			return data, fmt.Errorf("%w: empty data phase at 0x%08X", ErrInvalidResponse, pkt.Params[0])
		}
	}
	return data, nil
}

// rejected reports whether err carries an explicit failure status from the device.
func rejected(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.Status != protocol.StatusNoResponse
}

// WriteMemory writes data starting at address.
func (m *McuBoot) WriteMemory(address uint32, data []byte, opts ...OpOption) error {
	const op = "WriteMemory"
	if err := m.checkOpen(op); err != nil {
		return err
	}
	cfg := newOpConfig(opts)
	chunks := m.splitData(data)
	memID := m.clampMemoryID(cfg.memID)
	m.log.Info().Uint32("address", address).Int("length", len(data)).Str("memory", memID.String()).Msg("Writing memory")

	pkt := protocol.NewCommandPacket(protocol.CmdWriteMemory, protocol.FlagHasDataPhase, address, uint32(len(data)), uint32(memID))
	if _, err := m.process(pkt); err != nil {
		return err
	}
	return m.sendData(protocol.CmdWriteMemory, chunks, cfg.progress)
}

// ReceiveSBFile streams a secure binary image to the bootloader.
func (m *McuBoot) ReceiveSBFile(data []byte, opts ...OpOption) error {
	const op = "ReceiveSBFile"
	if err := m.checkOpen(op); err != nil {
		return err
	}
	cfg := newOpConfig(opts)
	chunks := m.splitData(data)
	m.log.Info().Int("length", len(data)).Msg("Receiving SB file")

	pkt := protocol.NewCommandPacket(protocol.CmdReceiveSBFile, protocol.FlagHasDataPhase, uint32(len(data)))
	if _, err := m.process(pkt); err != nil {
		return err
	}
	return m.sendData(protocol.CmdReceiveSBFile, chunks, cfg.progress)
}

// FillMemory fills length bytes at address with a 32-bit pattern.
func (m *McuBoot) FillMemory(address uint32, length uint32, pattern uint32) error {
	m.log.Info().Uint32("address", address).Uint32("length", length).Uint32("pattern", pattern).Msg("Filling memory")
	return m.simple(protocol.CmdFillMemory, address, length, pattern)
}

// FlashEraseAll erases the whole memory.
func (m *McuBoot) FlashEraseAll(memID protocol.MemoryID) error {
	m.log.Info().Str("memory", memID.String()).Msg("Erasing entire flash")
	return m.simple(protocol.CmdFlashEraseAll, uint32(memID))
}

// FlashEraseRegion erases length bytes at address.
func (m *McuBoot) FlashEraseRegion(address, length uint32, memID protocol.MemoryID) error {
	m.log.Info().Uint32("address", address).Uint32("length", length).Str("memory", memID.String()).Msg("Erasing flash region")
	return m.simple(protocol.CmdFlashEraseRegion, address, length, uint32(memID))
}

// FlashEraseAllUnsecure erases all flash including the protected areas.
func (m *McuBoot) FlashEraseAllUnsecure() error {
	m.log.Info().Msg("Erasing entire flash including protected sectors")
	return m.simple(protocol.CmdFlashEraseAllUnsecure)
}

// ConfigureMemory configures an external memory from a config block at address.
func (m *McuBoot) ConfigureMemory(address uint32, memID protocol.MemoryID) error {
	m.log.Info().Uint32("address", address).Str("memory", memID.String()).Msg("Configuring memory")
	return m.simple(protocol.CmdConfigureMemory, uint32(memID), address)
}

// FlashSecurityDisable unlocks a secured device with the 8-byte backdoor key.
func (m *McuBoot) FlashSecurityDisable(key []byte) error {
	if len(key) != 8 {
		return fmt.Errorf("backdoor key must be 8 bytes, got %d", len(key))
	}
	m.log.Info().Msg("Disabling flash security")
	return m.simple(protocol.CmdFlashSecurityDisable, binary.BigEndian.Uint32(key[:4]), binary.BigEndian.Uint32(key[4:]))
}

// Execute jumps to address with an argument and stack pointer.
func (m *McuBoot) Execute(address, argument, stackPointer uint32) error {
	m.log.Info().Uint32("address", address).Uint32("argument", argument).Uint32("sp", stackPointer).Msg("Executing")
	return m.simple(protocol.CmdExecute, address, argument, stackPointer)
}

// Call calls the function at address with an argument.
func (m *McuBoot) Call(address, argument uint32) error {
	m.log.Info().Uint32("address", address).Uint32("argument", argument).Msg("Calling")
	return m.simple(protocol.CmdCall, address, argument)
}

// Reset resets the device and closes the session; with reopen it waits
// for the bootloader to come back and opens the session again.
func (m *McuBoot) Reset(reopen bool) error {
	m.log.Info().Bool("reopen", reopen).Msg("Resetting device")
	if err := m.simple(protocol.CmdReset); err != nil {
		return err
	}
	if err := m.Close(); err != nil {
		return err
	}
	if !reopen {
		return nil
	}
	m.sleep(m.resetDelay)
	return m.Open()
}

// FlashReadOnce reads count bytes of the one-time-programmable word at index.
func (m *McuBoot) FlashReadOnce(index, count uint32) ([]byte, error) {
	resp, err := m.command(protocol.CmdFlashReadOnce, protocol.FlagNone, index, count)
	if err != nil {
		return nil, err
	}
	ro, ok := resp.(*protocol.FlashReadOnceResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %s to FlashReadOnce", ErrInvalidResponse, resp)
	}
	return ro.Data(), nil
}

// FlashProgramOnce programs count bytes of value into the one-time-programmable
// word at index, optionally reading it back.
func (m *McuBoot) FlashProgramOnce(index, count, value uint32, verify bool) error {
	m.log.Info().Uint32("index", index).Uint32("count", count).Msg("Programming once")
	if err := m.simple(protocol.CmdFlashProgramOnce, index, count, value); err != nil {
		return err
	}
	if !verify {
		return nil
	}

	got, err := m.FlashReadOnce(index, count)
	if err != nil {
		return err
	}
	want := binary.LittleEndian.AppendUint32(nil, value)
	if int(count) < len(want) {
		want = want[:count]
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: index %d reads % X, want % X", ErrVerify, index, got, want)
	}
	return nil
}
