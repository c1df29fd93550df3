package mboot

import (
	"time"

	"github.com/bigbag/mcuboot-flasher/internal/property"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
	"github.com/bigbag/mcuboot-flasher/internal/transport"
)

type step struct {
	frame protocol.Frame
	err   error
	delay time.Duration // advances the fake clock before the step is served
}

// fakeTransport is a scripted device. Reads are served from a queue that
// tests fill up front or that onCommand fills per command.
type fakeTransport struct {
	open  bool
	usb   bool
	split bool

	reads     []step
	onCommand func(pkt *protocol.CommandPacket) []step

	commands  []*protocol.CommandPacket
	data      [][]byte
	dataErr   map[int]error
	abortLog  []bool
	readHints []int

	openCalls  int
	closeCalls int
	openErr    error

	clock *fakeClock
}

func newFake(usb bool) *fakeTransport {
	return &fakeTransport{open: true, usb: usb, split: true}
}

func (f *fakeTransport) Open() error {
	f.openCalls++
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeCalls++
	f.open = false
	return nil
}

func (f *fakeTransport) IsOpen() bool { return f.open }

func (f *fakeTransport) WriteCommand(pkt *protocol.CommandPacket) error {
	f.commands = append(f.commands, pkt)
	if f.onCommand != nil {
		f.reads = append(f.reads, f.onCommand(pkt)...)
	}
	return nil
}

func (f *fakeTransport) WriteData(chunk []byte) error {
	if err, ok := f.dataErr[len(f.data)]; ok {
		f.data = append(f.data, nil)
		return err
	}
	f.data = append(f.data, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeTransport) Read(length int) (protocol.Frame, error) {
	f.readHints = append(f.readHints, length)
	if len(f.reads) == 0 {
		return protocol.Frame{}, transport.ErrTimeout
	}
	s := f.reads[0]
	f.reads = f.reads[1:]
	if f.clock != nil {
		f.clock.advance(s.delay)
	}
	return s.frame, s.err
}

func (f *fakeTransport) NeedDataSplit() bool      { return f.split }
func (f *fakeTransport) SetAllowAbort(allow bool) { f.abortLog = append(f.abortLog, allow) }
func (f *fakeTransport) IsUSB() bool              { return f.usb }

func (f *fakeTransport) queue(steps ...step) { f.reads = append(f.reads, steps...) }

func (f *fakeTransport) written() []byte {
	var out []byte
	for _, d := range f.data {
		out = append(out, d...)
	}
	return out
}

func cmdFrame(tag protocol.ResponseTag, values ...uint32) step {
	return step{frame: protocol.Frame{Kind: protocol.FrameCommand, Payload: protocol.EncodeResponse(tag, protocol.FlagNone, values...)}}
}

func generic(status protocol.StatusCode, cmd protocol.CommandTag) step {
	return cmdFrame(protocol.RespGeneric, uint32(status), uint32(cmd))
}

func propertyResp(status protocol.StatusCode, values ...uint32) step {
	return cmdFrame(protocol.RespGetProperty, append([]uint32{uint32(status)}, values...)...)
}

func readMemResp(status protocol.StatusCode, length int) step {
	return cmdFrame(protocol.RespReadMemory, uint32(status), uint32(length))
}

func dataFrame(b []byte) step {
	return step{frame: protocol.Frame{Kind: protocol.FrameData, Payload: b}}
}

func errStep(err error) step { return step{err: err} }

// maxPacket answers the MaxPacketSize query with size.
func maxPacket(size uint32) step { return propertyResp(protocol.StatusSuccess, size) }

func isGetProperty(pkt *protocol.CommandPacket, tag property.Tag) bool {
	return pkt.Tag == protocol.CmdGetProperty && len(pkt.Params) > 0 && pkt.Params[0] == uint32(tag)
}

// fakeClock advances only when told to.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// newSession returns a session on t that records sleeps instead of sleeping.
func newSession(t *fakeTransport, opts ...Option) (*McuBoot, *[]time.Duration) {
	var sleeps []time.Duration
	m := New(t, opts...)
	m.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return m, &sleeps
}
