// Package mboot drives an MCUboot ROM bootloader over a transport.
package mboot

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bigbag/mcuboot-flasher/internal/framing"
	"github.com/bigbag/mcuboot-flasher/internal/property"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
	"github.com/bigbag/mcuboot-flasher/internal/transport"
)

const (
	defaultPauseDelay = 100 * time.Millisecond
	defaultResetDelay = time.Second
)

// McuBoot is a session with one bootloader. It is not safe for concurrent use.
type McuBoot struct {
	t   transport.Transport
	log zerolog.Logger

	status            protocol.StatusCode
	maxPacketSize     int
	availableCommands []protocol.CommandTag

	timeout          time.Duration
	family           string
	lookup           property.FamilyLookup
	pausePoint       int
	pauseDelay       time.Duration
	resetDelay       time.Duration
	enableDataAbort  bool
	defaultMaxPacket int

	sleep func(time.Duration)
	now   func() time.Time
}

// New creates a session bound to t. The transport is not opened.
func New(t transport.Transport, opts ...Option) *McuBoot {
	m := &McuBoot{
		t:                t,
		log:              zerolog.Nop(),
		status:           protocol.StatusSuccess,
		timeout:          protocol.DefaultTimeout,
		lookup:           property.DefaultFamilies().Lookup,
		pauseDelay:       defaultPauseDelay,
		resetDelay:       defaultResetDelay,
		defaultMaxPacket: protocol.DefaultMaxPacketSize,
		sleep:            time.Sleep,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run opens a session on t, calls fn and closes the session on every path.
func Run(t transport.Transport, opts []Option, fn func(*McuBoot) error) (err error) {
	m := New(t, opts...)
	if err := m.Open(); err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(m)
}

// Open opens the transport. Opening an open session is a no-op.
func (m *McuBoot) Open() error {
	if m.t.IsOpen() {
		return nil
	}
	m.log.Debug().Msg("Opening device")
	if err := m.t.Open(); err != nil {
		return &ConnectionError{Op: "open", Err: err}
	}
	return nil
}

// Close closes the transport. The session can be opened again.
func (m *McuBoot) Close() error {
	if !m.t.IsOpen() {
		return nil
	}
	m.log.Debug().Msg("Closing device")
	if err := m.t.Close(); err != nil {
		return &ConnectionError{Op: "close", Err: err}
	}
	return nil
}

// IsOpen reports whether the transport is open.
func (m *McuBoot) IsOpen() bool { return m.t.IsOpen() }

// Status returns the status of the last operation.
func (m *McuBoot) Status() protocol.StatusCode { return m.status }

// StatusString describes the status of the last operation.
func (m *McuBoot) StatusString() string { return m.status.Description() }

// Family returns the device family used for property decoding.
func (m *McuBoot) Family() string { return m.family }

// SetPausePoint sets the byte offset after which writes stall once; 0 disables it.
func (m *McuBoot) SetPausePoint(offset int) { m.pausePoint = offset }

func (m *McuBoot) checkOpen(op string) error {
	if !m.t.IsOpen() {
		return &ConnectionError{Op: op, Err: ErrNotOpen}
	}
	return nil
}

// ProcessCommand sends a command packet and reads its response.
// A device that does not answer yields a NoResponse result and a CommandError.
func (m *McuBoot) ProcessCommand(pkt *protocol.CommandPacket) (protocol.Response, error) {
	if err := m.checkOpen(pkt.Tag.String()); err != nil {
		return nil, err
	}
	return m.process(pkt)
}

func (m *McuBoot) process(pkt *protocol.CommandPacket) (protocol.Response, error) {
	start := m.now()
	m.log.Debug().Str("packet", pkt.String()).Msg("TX")

	resp, err := m.exchange(pkt, start)
	if errors.Is(err, transport.ErrTimeout) {
		m.log.Debug().Str("command", pkt.Tag.String()).Msg("RX: no response, timeout")
		resp = protocol.NewNoResponse(pkt.Tag)
	} else if err != nil {
		return nil, &ConnectionError{Op: pkt.Tag.String(), Err: err}
	}
	m.log.Debug().Str("response", resp.String()).Msg("RX")

	m.status = resp.Status()
	if m.status != protocol.StatusSuccess {
		return resp, &CommandError{Command: pkt.Tag.String(), Status: m.status}
	}
	return resp, nil
}

func (m *McuBoot) exchange(pkt *protocol.CommandPacket, start time.Time) (protocol.Response, error) {
	if err := m.t.WriteCommand(pkt); err != nil {
		return nil, err
	}
	frame, err := m.read(0, start)
	if err != nil {
		return nil, err
	}
	resp, data, err := protocol.ParseFrame(frame)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %d data bytes instead of a response", ErrInvalidResponse, len(data))
	}
	return resp, nil
}

// read fetches the next frame. A data-phase abort is retried once while the
// operation deadline has not passed; otherwise it is reported as a timeout.
func (m *McuBoot) read(length int, start time.Time) (protocol.Frame, error) {
	frame, err := m.t.Read(length)
	if !errors.Is(err, transport.ErrDataAbort) {
		return frame, err
	}

	m.log.Warn().Msg("Data phase aborted by device, retrying read")
	if m.now().Sub(start) >= m.timeout {
		return protocol.Frame{}, fmt.Errorf("%w: deadline passed after data abort", transport.ErrTimeout)
	}
	frame, err = m.t.Read(length)
	if errors.Is(err, transport.ErrDataAbort) {
		return protocol.Frame{}, fmt.Errorf("%w: repeated data abort", transport.ErrTimeout)
	}
	return frame, err
}

// readData collects a data phase of length bytes for cmd. It stops on a
// response echoing cmd or on timeout. Partial data is returned with an error.
func (m *McuBoot) readData(cmd protocol.CommandTag, length int, progress ProgressCallback) ([]byte, error) {
	start := m.now()
	data := make([]byte, 0, length)

	for {
		frame, err := m.read(length-len(data), start)
		if errors.Is(err, transport.ErrTimeout) {
			m.status = protocol.StatusNoResponse
			m.log.Error().Msg("Timeout: device not responding")
			break
		}
		if err != nil {
			return data, &ConnectionError{Op: cmd.String(), Err: err}
		}

		resp, chunk, err := protocol.ParseFrame(frame)
		if err != nil {
			return data, &ConnectionError{Op: cmd.String(), Err: err}
		}
		if resp == nil {
			data = append(data, chunk...)
			if progress != nil {
				progress(min(len(data), length), length)
			}
			continue
		}

		m.log.Debug().Str("response", resp.String()).Msg("RX")
		m.status = resp.Status()
		if resp.Command() == cmd {
			break
		}
	}

	if len(data) > length {
		data = data[:length]
	}
	if m.status != protocol.StatusSuccess {
		return data, &CommandError{Command: cmd.String(), Status: m.status}
	}
	if len(data) < length {
		return data, fmt.Errorf("%w: %s returned %d of %d bytes", ErrInvalidResponse, cmd, len(data), length)
	}
	return data, nil
}

// sendData streams chunks of a data phase for cmd and reads the final response.
// CmdNoCommand sends without expecting a response.
func (m *McuBoot) sendData(cmd protocol.CommandTag, chunks [][]byte, progress ProgressCallback) error {
	expectResponse := cmd != protocol.CmdNoCommand
	start := m.now()

	m.t.SetAllowAbort(m.enableDataAbort)
	defer m.t.SetAllowAbort(false)

	total := 0
	for _, c := range chunks {
		total += len(c)
	}

	pausePoint := m.pausePoint
	sent := 0
	var sendErr error
	for _, chunk := range chunks {
		if sendErr = m.t.WriteData(chunk); sendErr != nil {
			break
		}
		sent += len(chunk)
		if progress != nil {
			progress(sent, total)
		}
		if pausePoint > 0 && sent > pausePoint {
			m.sleep(m.pauseDelay)
			pausePoint = 0
		}
	}

	if errors.Is(sendErr, transport.ErrTimeout) {
		m.status = protocol.StatusNoResponse
		return &ConnectionError{Op: cmd.String(), Err: fmt.Errorf("no response from device: %w", sendErr)}
	}
	if sendErr != nil {
		m.log.Error().Err(sendErr).Int("sent", sent).Int("total", total).Msg("Sending data failed")
	}
	if !expectResponse {
		if sendErr != nil {
			m.status = protocol.StatusSendingOperationError
			return &CommandError{Command: cmd.String(), Status: m.status}
		}
		return nil
	}

	frame, err := m.read(0, start)
	if errors.Is(err, transport.ErrTimeout) && sendErr == nil {
		m.status = protocol.StatusNoResponse
		return &ConnectionError{Op: cmd.String(), Err: fmt.Errorf("no response from device: %w", err)}
	}
	if err != nil {
		if sendErr != nil {
			m.status = protocol.StatusSendingOperationError
			return &CommandError{Command: cmd.String(), Status: m.status}
		}
		return &ConnectionError{Op: cmd.String(), Err: err}
	}

	resp, _, err := protocol.ParseFrame(frame)
	if err != nil {
		return &ConnectionError{Op: cmd.String(), Err: err}
	}
	if resp == nil {
		return fmt.Errorf("%w: data frame instead of %s final response", ErrInvalidResponse, cmd)
	}
	m.log.Debug().Str("response", resp.String()).Msg("RX")

	m.status = resp.Status()
	if m.status != protocol.StatusSuccess {
		return &CommandError{Command: cmd.String(), Status: m.status}
	}
	return nil
}

// splitData chunks data to the max packet size when the transport needs it.
func (m *McuBoot) splitData(data []byte) [][]byte {
	if !m.t.NeedDataSplit() {
		return [][]byte{data}
	}
	size := m.MaxPacketSize()
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for i := 0; i < len(data); i += size {
		chunks = append(chunks, data[i:min(i+size, len(data))])
	}
	return chunks
}

// MaxPacketSize returns the device packet size, querying it once per session.
// When the device does not report it, the default is used and cached.
// The size never exceeds the largest frame payload.
func (m *McuBoot) MaxPacketSize() int {
	if m.maxPacketSize == 0 {
		size := m.defaultMaxPacket
		values, err := m.GetProperty(property.TagMaxPacketSize, 0)
		if err != nil || len(values) == 0 || values[0] == 0 {
			m.log.Warn().Err(err).Int("default", m.defaultMaxPacket).
				Msg("Unable to get MaxPacketSize, using default")
		} else {
			size = int(values[0])
		}
		if size > framing.MaxPayload {
			m.log.Warn().Int("size", size).Int("limit", framing.MaxPayload).Msg("MaxPacketSize too large, clamping")
			size = framing.MaxPayload
		}
		m.maxPacketSize = size
	}
	return m.maxPacketSize
}

// clampMemoryID maps ids of memory-mapped external memories to 0.
func (m *McuBoot) clampMemoryID(id protocol.MemoryID) protocol.MemoryID {
	if id.Mapped() {
		m.log.Warn().Str("memory", id.String()).
			Msg("memory id not required when accessing mapped external memory")
		return protocol.MemInternal
	}
	return id
}
