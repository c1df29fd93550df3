package mboot

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbag/mcuboot-flasher/internal/property"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
	"github.com/bigbag/mcuboot-flasher/internal/transport"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 1)
	}
	return b
}

type progressLog struct{ calls [][2]int }

func (p *progressLog) cb(current, total int) { p.calls = append(p.calls, [2]int{current, total}) }

func (p *progressLog) last() [2]int {
	if len(p.calls) == 0 {
		return [2]int{}
	}
	return p.calls[len(p.calls)-1]
}

// usbDevice serves memory reads from image and answers writes.
func usbDevice(image []byte, packet uint32) func(pkt *protocol.CommandPacket) []step {
	return func(pkt *protocol.CommandPacket) []step {
		switch {
		case isGetProperty(pkt, property.TagMaxPacketSize):
			return []step{maxPacket(packet)}
		case pkt.Tag == protocol.CmdReadMemory:
			off, n := int(pkt.Params[0]), int(pkt.Params[1])
			return []step{
				readMemResp(protocol.StatusSuccess, n),
				dataFrame(image[off : off+n]),
				generic(protocol.StatusSuccess, protocol.CmdReadMemory),
			}
		case pkt.Tag == protocol.CmdWriteMemory:
			return []step{
				generic(protocol.StatusSuccess, protocol.CmdWriteMemory),
				generic(protocol.StatusSuccess, protocol.CmdWriteMemory),
			}
		default:
			return []step{generic(protocol.StatusSuccess, pkt.Tag)}
		}
	}
}

func TestFillMemory_Parameters(t *testing.T) {
	ft := newFake(false)
	ft.queue(generic(protocol.StatusSuccess, protocol.CmdFillMemory))
	m, _ := newSession(ft)

	require.NoError(t, m.FillMemory(0x20202000, 4, 0xC0000007))
	require.Len(t, ft.commands, 1)
	pkt := ft.commands[0]
	assert.Equal(t, protocol.CmdFillMemory, pkt.Tag)
	assert.Equal(t, protocol.FlagNone, pkt.Flags)
	assert.Equal(t, []uint32{0x20202000, 4, 0xC0000007}, pkt.Params)
	assert.Equal(t, protocol.StatusSuccess, m.Status())
}

func TestReadMemory_USBChunked(t *testing.T) {
	image := pattern(10)
	ft := newFake(true)
	ft.onCommand = usbDevice(image, 4)
	m, _ := newSession(ft)

	var progress progressLog
	data, err := m.ReadMemory(0, len(image), WithProgress(progress.cb))
	require.NoError(t, err)
	assert.Equal(t, image, data)
	assert.Equal(t, [][2]int{{4, 10}, {8, 10}, {10, 10}}, progress.calls)

	// MaxPacketSize query plus three reads of 4, 4 and 2 bytes.
	require.Len(t, ft.commands, 4)
	assert.Equal(t, []uint32{0, 4, 0}, ft.commands[1].Params)
	assert.Equal(t, []uint32{4, 4, 0}, ft.commands[2].Params)
	assert.Equal(t, []uint32{8, 2, 0}, ft.commands[3].Params)
}

func TestReadMemory_USBFastModeSingleCommand(t *testing.T) {
	image := pattern(10)
	ft := newFake(true)
	ft.onCommand = usbDevice(image, 4)
	m, _ := newSession(ft)

	data, err := m.ReadMemory(0, len(image), WithFastMode(true))
	require.NoError(t, err)
	assert.Equal(t, image, data)
	require.Len(t, ft.commands, 1)
	assert.Equal(t, protocol.CmdReadMemory, ft.commands[0].Tag)
}

func TestReadMemory_UARTReassemblesPieces(t *testing.T) {
	image := pattern(10)
	ft := newFake(false)
	ft.queue(
		readMemResp(protocol.StatusSuccess, 10),
		dataFrame(image[:4]),
		dataFrame(image[4:8]),
		dataFrame(image[8:]),
		generic(protocol.StatusSuccess, protocol.CmdReadMemory),
	)
	m, _ := newSession(ft)

	var progress progressLog
	data, err := m.ReadMemory(0x1000, 10, WithProgress(progress.cb))
	require.NoError(t, err)
	assert.Equal(t, image, data)
	assert.Equal(t, [2]int{10, 10}, progress.last())
	assert.Len(t, progress.calls, 3)
	require.Len(t, ft.commands, 1)
	assert.Equal(t, []uint32{0x1000, 10, 0}, ft.commands[0].Params)
}

func TestReadMemory_TruncatesExtraBytes(t *testing.T) {
	ft := newFake(false)
	ft.queue(
		readMemResp(protocol.StatusSuccess, 4),
		dataFrame([]byte{1, 2, 3, 4, 5, 6}),
		generic(protocol.StatusSuccess, protocol.CmdReadMemory),
	)
	m, _ := newSession(ft)

	data, err := m.ReadMemory(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestReadMemory_DeviceLengthCappedToRequest(t *testing.T) {
	ft := newFake(false)
	ft.queue(
		readMemResp(protocol.StatusSuccess, 8),
		dataFrame([]byte{1, 2, 3, 4, 5, 6, 7, 8}),
		generic(protocol.StatusSuccess, protocol.CmdReadMemory),
	)
	m, _ := newSession(ft)

	var progress progressLog
	data, err := m.ReadMemory(0x1000, 4, WithProgress(progress.cb))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
	assert.Equal(t, [2]int{4, 4}, progress.last())
}

func TestReadMemory_PartialOnTimeout(t *testing.T) {
	image := pattern(10)
	ft := newFake(false)
	ft.queue(readMemResp(protocol.StatusSuccess, 10), dataFrame(image[:4]))
	m, _ := newSession(ft)

	data, err := m.ReadMemory(0, 10)
	assert.Equal(t, image[:4], data)
	assert.Equal(t, protocol.StatusNoResponse, m.Status())
	assert.True(t, IsStatus(err, protocol.StatusNoResponse), "error = %v", err)
}

func TestReadMemory_USBPartialOnTimeout(t *testing.T) {
	image := pattern(8)
	ft := newFake(true)
	ft.onCommand = func(pkt *protocol.CommandPacket) []step {
		if isGetProperty(pkt, property.TagMaxPacketSize) {
			return []step{maxPacket(4)}
		}
		if pkt.Params[0] == 0 {
			return []step{
				readMemResp(protocol.StatusSuccess, 4),
				dataFrame(image[:4]),
				generic(protocol.StatusSuccess, protocol.CmdReadMemory),
			}
		}
		return []step{readMemResp(protocol.StatusSuccess, 4), dataFrame(image[4:6])}
	}
	m, _ := newSession(ft)

	var progress progressLog
	data, err := m.ReadMemory(0, 8, WithProgress(progress.cb))
	assert.Equal(t, image[:6], data)
	assert.True(t, IsStatus(err, protocol.StatusNoResponse), "error = %v", err)
	assert.Equal(t, [2]int{6, 8}, progress.last())
}

func TestReadMemory_USBFailureStatusYieldsNoData(t *testing.T) {
	ft := newFake(true)
	ft.onCommand = func(pkt *protocol.CommandPacket) []step {
		if isGetProperty(pkt, property.TagMaxPacketSize) {
			return []step{maxPacket(4)}
		}
		return []step{readMemResp(protocol.StatusOutOfRange, 0)}
	}
	m, _ := newSession(ft)

	data, err := m.ReadMemory(0xFFFFFFF0, 8)
	assert.Nil(t, data)
	assert.True(t, IsStatus(err, protocol.StatusOutOfRange), "error = %v", err)
}

func TestReadMemory_USBFailedChunkDropsItsData(t *testing.T) {
	image := pattern(8)
	ft := newFake(true)
	ft.onCommand = func(pkt *protocol.CommandPacket) []step {
		if isGetProperty(pkt, property.TagMaxPacketSize) {
			return []step{maxPacket(4)}
		}
		if pkt.Params[0] == 0 {
			return []step{
				readMemResp(protocol.StatusSuccess, 4),
				dataFrame(image[:4]),
				generic(protocol.StatusSuccess, protocol.CmdReadMemory),
			}
		}
		return []step{
			readMemResp(protocol.StatusSuccess, 4),
			dataFrame([]byte{9, 9}),
			generic(protocol.StatusFail, protocol.CmdReadMemory),
		}
	}
	m, _ := newSession(ft)

	var progress progressLog
	data, err := m.ReadMemory(0, 8, WithProgress(progress.cb))
	assert.Equal(t, image[:4], data)
	assert.True(t, IsStatus(err, protocol.StatusFail), "error = %v", err)
	assert.Equal(t, [2]int{4, 8}, progress.last())
}

func TestReadMemory_USBChunkLengthCappedToRequest(t *testing.T) {
	ft := newFake(true)
	ft.onCommand = func(pkt *protocol.CommandPacket) []step {
		if isGetProperty(pkt, property.TagMaxPacketSize) {
			return []step{maxPacket(4)}
		}
		return []step{
			readMemResp(protocol.StatusSuccess, 6),
			dataFrame(pattern(6)),
			generic(protocol.StatusSuccess, protocol.CmdReadMemory),
		}
	}
	m, _ := newSession(ft)

	data, err := m.ReadMemory(0, 8)
	require.NoError(t, err)
	assert.Equal(t, append(pattern(4), pattern(4)...), data)
}

func TestReadMemory_ClampsMappedMemoryID(t *testing.T) {
	tests := []struct {
		id   protocol.MemoryID
		want uint32
	}{
		{protocol.MemInternal, 0},
		{protocol.MemFlexSPINOR, 0},
		{protocol.MemSDCard, 0x120},
	}

	for _, tt := range tests {
		ft := newFake(false)
		ft.queue(
			readMemResp(protocol.StatusSuccess, 1),
			dataFrame([]byte{0xAA}),
			generic(protocol.StatusSuccess, protocol.CmdReadMemory),
		)
		m, _ := newSession(ft)

		_, err := m.ReadMemory(0x60000000, 1, WithMemoryID(tt.id))
		require.NoError(t, err)
		assert.Equal(t, tt.want, ft.commands[0].Params[2], "memory id %s", tt.id)
	}
}

func TestEraseAndConfigureKeepMemoryID(t *testing.T) {
	ft := newFake(false)
	ft.onCommand = func(pkt *protocol.CommandPacket) []step {
		return []step{generic(protocol.StatusSuccess, pkt.Tag)}
	}
	m, _ := newSession(ft)

	require.NoError(t, m.ConfigureMemory(0x20202000, protocol.MemFlexSPINOR))
	require.NoError(t, m.FlashEraseAll(protocol.MemFlexSPINOR))
	require.NoError(t, m.FlashEraseRegion(0x60000000, 0x1000, protocol.MemFlexSPINOR))

	assert.Equal(t, []uint32{9, 0x20202000}, ft.commands[0].Params)
	assert.Equal(t, []uint32{9}, ft.commands[1].Params)
	assert.Equal(t, []uint32{0x60000000, 0x1000, 9}, ft.commands[2].Params)
}

func TestWriteMemory_ChunksDeliveredOnce(t *testing.T) {
	payload := pattern(10)
	ft := newFake(true)
	ft.onCommand = usbDevice(nil, 4)
	m, sleeps := newSession(ft)

	var progress progressLog
	require.NoError(t, m.WriteMemory(0x60000000, payload, WithProgress(progress.cb)))

	assert.Equal(t, payload, ft.written())
	assert.Len(t, ft.data, 3)
	assert.Equal(t, [][2]int{{4, 10}, {8, 10}, {10, 10}}, progress.calls)
	assert.Empty(t, *sleeps)
	assert.Equal(t, []bool{false, false}, ft.abortLog)

	write := ft.commands[1]
	assert.Equal(t, protocol.CmdWriteMemory, write.Tag)
	assert.Equal(t, protocol.FlagHasDataPhase, write.Flags)
	assert.Equal(t, []uint32{0x60000000, 10, 0}, write.Params)
}

func TestWriteMemory_NoSplit(t *testing.T) {
	payload := pattern(100)
	ft := newFake(false)
	ft.split = false
	ft.onCommand = usbDevice(nil, 4)
	m, _ := newSession(ft)

	require.NoError(t, m.WriteMemory(0, payload))
	require.Len(t, ft.data, 1)
	assert.Equal(t, payload, ft.written())
	assert.Len(t, ft.commands, 1, "no MaxPacketSize query without splitting")
}

func TestWriteMemory_PausePointOncePerCall(t *testing.T) {
	ft := newFake(true)
	ft.onCommand = usbDevice(nil, 4)
	m, sleeps := newSession(ft, WithPauseDelay(250*time.Millisecond))
	m.SetPausePoint(5)

	require.NoError(t, m.WriteMemory(0, pattern(16)))
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, *sleeps)

	require.NoError(t, m.WriteMemory(0, pattern(16)))
	assert.Len(t, *sleeps, 2)
}

func TestWriteMemory_CommandRejected(t *testing.T) {
	ft := newFake(false)
	ft.split = false
	ft.queue(generic(protocol.StatusSecurityViolation, protocol.CmdWriteMemory))
	m, _ := newSession(ft)

	err := m.WriteMemory(0, []byte{1, 2})
	assert.True(t, IsStatus(err, protocol.StatusSecurityViolation), "error = %v", err)
	assert.Empty(t, ft.data)
}

func TestWriteMemory_TimeoutIsConnectionError(t *testing.T) {
	ft := newFake(true)
	ft.onCommand = usbDevice(nil, 4)
	ft.dataErr = map[int]error{1: transport.ErrTimeout}
	m, _ := newSession(ft)

	err := m.WriteMemory(0, pattern(10))
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce), "error = %v", err)
	assert.ErrorIs(t, err, transport.ErrTimeout)
	assert.Equal(t, protocol.StatusNoResponse, m.Status())
}

func TestWriteMemory_AbortReadsFinalStatus(t *testing.T) {
	ft := newFake(true)
	ft.queue(maxPacket(4))
	ft.queue(generic(protocol.StatusSuccess, protocol.CmdWriteMemory))
	ft.queue(generic(protocol.StatusAbortDataPhase, protocol.CmdWriteMemory))
	ft.dataErr = map[int]error{1: transport.ErrDataAbort}
	m, _ := newSession(ft, WithDataAbort(true))

	err := m.WriteMemory(0, pattern(10))
	assert.True(t, IsStatus(err, protocol.StatusAbortDataPhase), "error = %v", err)
	assert.Equal(t, []bool{true, false}, ft.abortLog)
	assert.Len(t, ft.data, 2)
}

func TestWriteMemory_AbortWithoutFinalResponse(t *testing.T) {
	ft := newFake(true)
	ft.queue(maxPacket(4), generic(protocol.StatusSuccess, protocol.CmdWriteMemory))
	ft.dataErr = map[int]error{0: transport.ErrDataAbort}
	m, _ := newSession(ft, WithDataAbort(true))

	err := m.WriteMemory(0, pattern(10))
	assert.True(t, IsStatus(err, protocol.StatusSendingOperationError), "error = %v", err)
	assert.Equal(t, protocol.StatusSendingOperationError, m.Status())
}

func TestReceiveSBFile(t *testing.T) {
	payload := pattern(9)
	ft := newFake(true)
	ft.queue(maxPacket(8),
		generic(protocol.StatusSuccess, protocol.CmdReceiveSBFile),
		generic(protocol.StatusSuccess, protocol.CmdReceiveSBFile))
	m, _ := newSession(ft)

	require.NoError(t, m.ReceiveSBFile(payload))
	assert.Equal(t, payload, ft.written())
	assert.Equal(t, []uint32{9}, ft.commands[1].Params)
	assert.Equal(t, protocol.FlagHasDataPhase, ft.commands[1].Flags)
}

func TestSendData_WithoutResponse(t *testing.T) {
	ft := newFake(false)
	m, _ := newSession(ft)

	require.NoError(t, m.sendData(protocol.CmdNoCommand, [][]byte{{1}, {2}}, nil))
	assert.Empty(t, ft.readHints)

	ft.dataErr = map[int]error{2: errors.New("stall")}
	err := m.sendData(protocol.CmdNoCommand, [][]byte{{3}}, nil)
	assert.True(t, IsStatus(err, protocol.StatusSendingOperationError), "error = %v", err)
}

func TestFlashSecurityDisable(t *testing.T) {
	ft := newFake(false)
	ft.queue(generic(protocol.StatusSuccess, protocol.CmdFlashSecurityDisable))
	m, _ := newSession(ft)

	require.NoError(t, m.FlashSecurityDisable([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	assert.Equal(t, []uint32{0x01020304, 0x05060708}, ft.commands[0].Params)

	assert.Error(t, m.FlashSecurityDisable([]byte{1, 2}))
	assert.Len(t, ft.commands, 1)
}

func TestFlashReadProgramOnce(t *testing.T) {
	ft := newFake(false)
	ft.onCommand = func(pkt *protocol.CommandPacket) []step {
		if pkt.Tag == protocol.CmdFlashReadOnce {
			return []step{cmdFrame(protocol.RespFlashReadOnce, 0, 4, 0x12345678)}
		}
		return []step{generic(protocol.StatusSuccess, pkt.Tag)}
	}
	m, _ := newSession(ft)

	data, err := m.FlashReadOnce(3, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, data)

	require.NoError(t, m.FlashProgramOnce(3, 4, 0x12345678, true))
	assert.Equal(t, []uint32{3, 4, 0x12345678}, ft.commands[1].Params)

	err = m.FlashProgramOnce(3, 4, 0x1, true)
	assert.ErrorIs(t, err, ErrVerify)
}

func TestReset(t *testing.T) {
	ft := newFake(false)
	ft.queue(generic(protocol.StatusSuccess, protocol.CmdReset))
	m, sleeps := newSession(ft, WithResetDelay(3*time.Second))

	require.NoError(t, m.Reset(true))
	assert.Equal(t, 1, ft.closeCalls)
	assert.Equal(t, 1, ft.openCalls)
	assert.True(t, m.IsOpen())
	assert.Equal(t, []time.Duration{3 * time.Second}, *sleeps)

	ft.queue(generic(protocol.StatusSuccess, protocol.CmdReset))
	require.NoError(t, m.Reset(false))
	assert.False(t, m.IsOpen())
}

func TestFlashWorkflow(t *testing.T) {
	image := bytes.Repeat([]byte{0xA5}, 70)
	ft := newFake(true)
	ft.onCommand = usbDevice(nil, 32)
	m, _ := newSession(ft)

	require.NoError(t, m.FillMemory(0x20202000, 4, 0xC0000007))
	require.NoError(t, m.FillMemory(0x20202004, 4, 0))
	require.NoError(t, m.ConfigureMemory(0x20202000, protocol.MemFlexSPINOR))
	require.NoError(t, m.FlashEraseAll(protocol.MemFlexSPINOR))
	require.NoError(t, m.WriteMemory(0x60000000, image))

	var tags []protocol.CommandTag
	for _, c := range ft.commands {
		tags = append(tags, c.Tag)
	}
	assert.Equal(t, []protocol.CommandTag{
		protocol.CmdFillMemory,
		protocol.CmdFillMemory,
		protocol.CmdConfigureMemory,
		protocol.CmdFlashEraseAll,
		protocol.CmdGetProperty,
		protocol.CmdWriteMemory,
	}, tags)
	assert.Equal(t, image, ft.written())
	assert.Len(t, ft.data, 3)
}
