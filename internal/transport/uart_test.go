package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbag/mcuboot-flasher/internal/framing"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

// fakePort replays scripted device bytes and records what the host sends.
type fakePort struct {
	rx      bytes.Buffer
	tx      bytes.Buffer
	closed  bool
	flushes int
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.rx.Len() == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	return p.rx.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) { return p.tx.Write(b) }
func (p *fakePort) Flush() error                { p.flushes++; return nil }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func (p *fakePort) queue(chunks ...[]byte) {
	for _, c := range chunks {
		p.rx.Write(c)
	}
}

func pingResponse() []byte {
	return framing.EncodePingResponse(framing.PingResponse{Name: 'P', Major: 1, Minor: 2})
}

func newTestUART(t *testing.T, port *fakePort) *UART {
	t.Helper()
	u := NewUART(func() (Port, error) { return port, nil }, 50*time.Millisecond, zerolog.Nop())
	return u
}

func openedUART(t *testing.T) (*UART, *fakePort) {
	t.Helper()
	port := &fakePort{}
	port.queue(pingResponse())
	u := newTestUART(t, port)
	require.NoError(t, u.Open())
	port.tx.Reset()
	return u, port
}

func TestUART_OpenPings(t *testing.T) {
	port := &fakePort{}
	port.queue([]byte{0x00, 0x11}, pingResponse())
	u := newTestUART(t, port)

	require.NoError(t, u.Open())
	assert.True(t, u.IsOpen())
	assert.Equal(t, framing.Control(framing.TypePing), port.tx.Bytes())
	assert.Equal(t, 1, port.flushes)
	assert.Equal(t, "P1.2.0", u.Version().String())
}

func TestUART_OpenIsIdempotent(t *testing.T) {
	u, port := openedUART(t)
	require.NoError(t, u.Open())
	assert.Empty(t, port.tx.Bytes())
}

func TestUART_OpenNoPingResponse(t *testing.T) {
	port := &fakePort{}
	u := newTestUART(t, port)

	err := u.Open()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "Open() error = %v, want ErrTimeout", err)
	assert.False(t, u.IsOpen())
	assert.True(t, port.closed)
}

func TestUART_OpenFails(t *testing.T) {
	boom := errors.New("no such port")
	u := NewUART(func() (Port, error) { return nil, boom }, time.Millisecond, zerolog.Nop())
	assert.ErrorIs(t, u.Open(), boom)
	assert.False(t, u.IsOpen())
}

func TestUART_WriteCommandWaitsForAck(t *testing.T) {
	u, port := openedUART(t)
	port.queue(framing.Control(framing.TypeAck))

	pkt := protocol.NewCommandPacket(protocol.CmdGetProperty, protocol.FlagNone, 1, 0)
	require.NoError(t, u.WriteCommand(pkt))
	assert.Equal(t, framing.Encode(framing.TypeCommand, pkt.EncodeCompact()), port.tx.Bytes())
}

func TestUART_WriteCommandNak(t *testing.T) {
	u, port := openedUART(t)
	port.queue(framing.Control(framing.TypeNak))

	err := u.WriteCommand(protocol.NewCommandPacket(protocol.CmdReset, protocol.FlagNone))
	assert.ErrorIs(t, err, ErrNAK)
}

func TestUART_WriteDataAbort(t *testing.T) {
	u, port := openedUART(t)
	port.queue(framing.Control(framing.TypeAbort))
	u.SetAllowAbort(true)

	assert.ErrorIs(t, u.WriteData([]byte{1, 2, 3}), ErrDataAbort)
}

func TestUART_WriteDataTimeout(t *testing.T) {
	u, _ := openedUART(t)
	assert.ErrorIs(t, u.WriteData([]byte{1}), ErrTimeout)
}

func TestUART_WriteDataTooLarge(t *testing.T) {
	u, port := openedUART(t)

	err := u.WriteData(make([]byte, framing.MaxPayload+1))
	assert.ErrorIs(t, err, framing.ErrPayloadTooLarge)
	assert.Empty(t, port.tx.Bytes())
}

func TestUART_ReadCommandFrameAcks(t *testing.T) {
	u, port := openedUART(t)
	payload := protocol.EncodeResponse(protocol.RespGeneric, protocol.FlagNone, 0, uint32(protocol.CmdReset))
	port.queue(framing.Encode(framing.TypeCommand, payload))

	frame, err := u.Read(0)
	require.NoError(t, err)
	assert.Equal(t, protocol.FrameCommand, frame.Kind)
	assert.Equal(t, payload, frame.Payload)
	assert.Equal(t, framing.Control(framing.TypeAck), port.tx.Bytes())
}

func TestUART_ReadDataFrame(t *testing.T) {
	u, port := openedUART(t)
	port.queue(framing.Encode(framing.TypeData, []byte{0xDE, 0xAD}))

	frame, err := u.Read(2)
	require.NoError(t, err)
	assert.Equal(t, protocol.FrameData, frame.Kind)
	assert.Equal(t, []byte{0xDE, 0xAD}, frame.Payload)
}

func TestUART_ReadSplitAcrossReads(t *testing.T) {
	u, port := openedUART(t)
	full := framing.Encode(framing.TypeData, bytes.Repeat([]byte{0xAB}, 300))
	port.queue(full)

	frame, err := u.Read(300)
	require.NoError(t, err)
	assert.Len(t, frame.Payload, 300)
}

func TestUART_ReadAbort(t *testing.T) {
	u, port := openedUART(t)
	u.SetAllowAbort(true)
	port.queue(framing.Control(framing.TypeAbort))

	_, err := u.Read(0)
	assert.ErrorIs(t, err, ErrDataAbort)
}

func TestUART_ReadIgnoresAbortWhenDisabled(t *testing.T) {
	u, port := openedUART(t)
	port.queue(framing.Control(framing.TypeAbort), framing.Encode(framing.TypeData, []byte{1}))

	frame, err := u.Read(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, frame.Payload)
}

func TestUART_ReadCRCErrorSendsNak(t *testing.T) {
	u, port := openedUART(t)
	bad := framing.Encode(framing.TypeCommand, []byte{1, 2, 3, 4})
	bad[len(bad)-1] ^= 0xFF
	port.queue(bad)

	_, err := u.Read(0)
	assert.ErrorIs(t, err, framing.ErrCRC)
	assert.Equal(t, framing.Control(framing.TypeNak), port.tx.Bytes())
}

// nakFailPort rejects writes once failWrites is set.
type nakFailPort struct {
	*fakePort
	failWrites bool
}

func (p *nakFailPort) Write(b []byte) (int, error) {
	if p.failWrites {
		return 0, errors.New("port gone")
	}
	return p.fakePort.Write(b)
}

func TestUART_ReadCRCErrorNakWriteFails(t *testing.T) {
	port := &nakFailPort{fakePort: &fakePort{}}
	port.queue(pingResponse())
	u := NewUART(func() (Port, error) { return port, nil }, 50*time.Millisecond, zerolog.Nop())
	require.NoError(t, u.Open())

	bad := framing.Encode(framing.TypeCommand, []byte{1, 2, 3, 4})
	bad[len(bad)-1] ^= 0xFF
	port.queue(bad)
	port.failWrites = true

	_, err := u.Read(0)
	assert.ErrorIs(t, err, framing.ErrCRC)
}

func TestUART_ReadTimeout(t *testing.T) {
	u, _ := openedUART(t)
	_, err := u.Read(0)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestUART_ClosedIO(t *testing.T) {
	u := newTestUART(t, &fakePort{})
	assert.ErrorIs(t, u.WriteData([]byte{1}), ErrClosed)
	_, err := u.Read(0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, u.Close())
}

func TestUART_Close(t *testing.T) {
	u, port := openedUART(t)
	require.NoError(t, u.Close())
	assert.True(t, port.closed)
	assert.False(t, u.IsOpen())
}
