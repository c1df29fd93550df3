package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a command frame cannot be parsed.
var ErrMalformedResponse = errors.New("malformed response")

// FrameKind tells a command frame from a data-phase frame.
type FrameKind uint8

const (
	FrameCommand FrameKind = iota + 1
	FrameData
)

// Frame is one unit read from a transport.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// Response is a decoded command response.
type Response interface {
	Tag() ResponseTag
	Status() StatusCode
	// Command returns the command this response answers.
	Command() CommandTag
	String() string
}

type header struct {
	tag    ResponseTag
	flags  CommandFlag
	status StatusCode
}

func (h header) Tag() ResponseTag   { return h.tag }
func (h header) Status() StatusCode { return h.status }

// Flags returns the flags byte of the response header.
func (h header) Flags() CommandFlag { return h.flags }

// GenericResponse carries the status of the echoed command.
type GenericResponse struct {
	header
	Echo CommandTag
}

func (r *GenericResponse) Command() CommandTag { return r.Echo }

func (r *GenericResponse) String() string {
	return fmt.Sprintf("Tag=%s, Status=%s, Cmd=%s", r.tag, r.status, r.Echo)
}

// ReadMemoryResponse announces the length of the following data phase.
type ReadMemoryResponse struct {
	header
	Length uint32
}

func (r *ReadMemoryResponse) Command() CommandTag { return CmdReadMemory }

func (r *ReadMemoryResponse) String() string {
	return fmt.Sprintf("Tag=%s, Status=%s, Length=%d", r.tag, r.status, r.Length)
}

// GetPropertyResponse carries the raw words of a property.
type GetPropertyResponse struct {
	header
	Values []uint32
}

func (r *GetPropertyResponse) Command() CommandTag { return CmdGetProperty }

func (r *GetPropertyResponse) String() string {
	return fmt.Sprintf("Tag=%s, Status=%s, Values=%s", r.tag, r.status, hexWords(r.Values))
}

// FlashReadOnceResponse carries words read from the one-time-programmable area.
type FlashReadOnceResponse struct {
	header
	Length uint32
	Values []uint32
}

func (r *FlashReadOnceResponse) Command() CommandTag { return CmdFlashReadOnce }

// Data returns the read words as little-endian bytes, truncated to Length.
func (r *FlashReadOnceResponse) Data() []byte {
	data := make([]byte, 4*len(r.Values))
	for i, v := range r.Values {
		binary.LittleEndian.PutUint32(data[4*i:], v)
	}
	if int(r.Length) < len(data) {
		data = data[:r.Length]
	}
	return data
}

func (r *FlashReadOnceResponse) String() string {
	return fmt.Sprintf("Tag=%s, Status=%s, Length=%d, Values=%s", r.tag, r.status, r.Length, hexWords(r.Values))
}

// LengthResponse announces a data phase for commands other than read memory.
type LengthResponse struct {
	header
	Length uint32
}

// Command maps the response tag back to the command that produced it.
func (r *LengthResponse) Command() CommandTag {
	switch r.tag {
	case RespFlashReadResource:
		return CmdFlashReadResource
	case RespKeyBlob:
		return CmdGenerateKeyBlob
	case RespKeyProvisioning:
		return CmdKeyProvisioning
	default:
		return CmdNoCommand
	}
}

func (r *LengthResponse) String() string {
	return fmt.Sprintf("Tag=%s, Status=%s, Length=%d", r.tag, r.status, r.Length)
}

// ValuesResponse carries result words of a command without a dedicated type.
// Unknown response tags decode to this type as well.
type ValuesResponse struct {
	header
	Values []uint32
}

func (r *ValuesResponse) Command() CommandTag {
	if r.tag == RespTrustProvisioning {
		return CmdTrustProvisioning
	}
	return CmdNoCommand
}

func (r *ValuesResponse) String() string {
	return fmt.Sprintf("Tag=%s, Status=%s, Values=%s", r.tag, r.status, hexWords(r.Values))
}

// NoResponse stands in for a response the device never sent.
type NoResponse struct {
	cmd CommandTag
}

// NewNoResponse creates the placeholder for a timed-out command.
func NewNoResponse(cmd CommandTag) *NoResponse {
	return &NoResponse{cmd: cmd}
}

func (r *NoResponse) Tag() ResponseTag    { return 0 }
func (r *NoResponse) Status() StatusCode  { return StatusNoResponse }
func (r *NoResponse) Command() CommandTag { return r.cmd }

func (r *NoResponse) String() string {
	return fmt.Sprintf("NoResponse, Cmd=%s", r.cmd)
}

// DecodeResponse parses a command frame payload.
func DecodeResponse(data []byte) (Response, error) {
	// Response format:
	// 0: response tag
	// 1: flags
	// 2: reserved
	// 3: parameter count
	// 4+: parameters (little-endian), first one is the status code
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: too short: %d bytes", ErrMalformedResponse, len(data))
	}

	count := int(data[3])
	if len(data) < HeaderSize+4*count {
		return nil, fmt.Errorf("%w: %d parameters need %d bytes, have %d",
			ErrMalformedResponse, count, HeaderSize+4*count, len(data))
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: missing status word", ErrMalformedResponse)
	}

	values := make([]uint32, count)
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(data[HeaderSize+4*i:])
	}

	h := header{
		tag:    ResponseTag(data[0]),
		flags:  CommandFlag(data[1]),
		status: StatusCode(values[0]),
	}

	need := func(n int) error {
		if count < n {
			return fmt.Errorf("%w: %s needs %d parameters, got %d", ErrMalformedResponse, h.tag, n, count)
		}
		return nil
	}

	switch h.tag {
	case RespGeneric:
		if err := need(2); err != nil {
			return nil, err
		}
		return &GenericResponse{header: h, Echo: CommandTag(values[1])}, nil
	case RespReadMemory:
		if err := need(2); err != nil {
			return nil, err
		}
		return &ReadMemoryResponse{header: h, Length: values[1]}, nil
	case RespGetProperty:
		return &GetPropertyResponse{header: h, Values: values[1:]}, nil
	case RespFlashReadOnce:
		if err := need(2); err != nil {
			return nil, err
		}
		return &FlashReadOnceResponse{header: h, Length: values[1], Values: values[2:]}, nil
	case RespFlashReadResource, RespKeyBlob, RespKeyProvisioning:
		if err := need(2); err != nil {
			return nil, err
		}
		return &LengthResponse{header: h, Length: values[1]}, nil
	default:
		return &ValuesResponse{header: h, Values: values[1:]}, nil
	}
}

// EncodeResponse builds a response frame payload. The first value is the status.
func EncodeResponse(tag ResponseTag, flags CommandFlag, values ...uint32) []byte {
	data := make([]byte, HeaderSize+4*len(values))
	data[0] = byte(tag)
	data[1] = byte(flags)
	data[3] = byte(len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[HeaderSize+4*i:], v)
	}
	return data
}

// ParseFrame classifies a transport frame as a response or a data chunk.
// Exactly one of the returned response and data is set on success.
func ParseFrame(f Frame) (Response, []byte, error) {
	switch f.Kind {
	case FrameData:
		return nil, f.Payload, nil
	case FrameCommand:
		resp, err := DecodeResponse(f.Payload)
		if err != nil {
			return nil, nil, err
		}
		return resp, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown frame kind %d", ErrMalformedResponse, f.Kind)
	}
}

func hexWords(values []uint32) string {
	s := "["
	for i, v := range values {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("0x%08X", v)
	}
	return s + "]"
}
