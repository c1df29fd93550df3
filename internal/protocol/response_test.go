package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeResponse_GenericRoundTrip(t *testing.T) {
	tests := []struct {
		cmd    CommandTag
		status StatusCode
	}{
		{CmdFillMemory, StatusSuccess},
		{CmdFlashEraseAll, StatusFail},
		{CmdWriteMemory, StatusCode(10200)},
		{CmdConfigureMemory, StatusCode(0xDEADBEEF)},
	}

	for _, tc := range tests {
		data := EncodeResponse(RespGeneric, FlagNone, uint32(tc.status), uint32(tc.cmd))
		resp, err := DecodeResponse(data)
		if err != nil {
			t.Fatalf("DecodeResponse(%s/%s) error: %v", tc.cmd, tc.status, err)
		}
		generic, ok := resp.(*GenericResponse)
		if !ok {
			t.Fatalf("DecodeResponse() = %T, want *GenericResponse", resp)
		}
		if generic.Status() != tc.status {
			t.Errorf("Status() = %v, want %v", generic.Status(), tc.status)
		}
		if generic.Command() != tc.cmd {
			t.Errorf("Command() = %v, want %v", generic.Command(), tc.cmd)
		}
		if generic.Tag() != RespGeneric {
			t.Errorf("Tag() = %v, want %v", generic.Tag(), RespGeneric)
		}
	}
}

func TestDecodeResponse_ReadMemory(t *testing.T) {
	resp, err := DecodeResponse(EncodeResponse(RespReadMemory, FlagHasDataPhase, 0, 1024))
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	rm, ok := resp.(*ReadMemoryResponse)
	if !ok {
		t.Fatalf("DecodeResponse() = %T, want *ReadMemoryResponse", resp)
	}
	if rm.Length != 1024 {
		t.Errorf("Length = %d, want 1024", rm.Length)
	}
	if rm.Command() != CmdReadMemory {
		t.Errorf("Command() = %v, want %v", rm.Command(), CmdReadMemory)
	}
	if rm.Flags() != FlagHasDataPhase {
		t.Errorf("Flags() = %v, want %v", rm.Flags(), FlagHasDataPhase)
	}
}

func TestDecodeResponse_GetProperty(t *testing.T) {
	resp, err := DecodeResponse(EncodeResponse(RespGetProperty, FlagNone, 0, 0x4B020800, 7))
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	gp, ok := resp.(*GetPropertyResponse)
	if !ok {
		t.Fatalf("DecodeResponse() = %T, want *GetPropertyResponse", resp)
	}
	if len(gp.Values) != 2 || gp.Values[0] != 0x4B020800 || gp.Values[1] != 7 {
		t.Errorf("Values = %v, want [0x4B020800 7]", gp.Values)
	}
}

func TestDecodeResponse_FlashReadOnce(t *testing.T) {
	resp, err := DecodeResponse(EncodeResponse(RespFlashReadOnce, FlagNone, 0, 4, 0x04030201))
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	fro := resp.(*FlashReadOnceResponse)
	if !bytes.Equal(fro.Data(), []byte{1, 2, 3, 4}) {
		t.Errorf("Data() = %v, want [1 2 3 4]", fro.Data())
	}
}

func TestDecodeResponse_LengthResponses(t *testing.T) {
	tests := []struct {
		tag ResponseTag
		cmd CommandTag
	}{
		{RespFlashReadResource, CmdFlashReadResource},
		{RespKeyBlob, CmdGenerateKeyBlob},
		{RespKeyProvisioning, CmdKeyProvisioning},
	}
	for _, tc := range tests {
		resp, err := DecodeResponse(EncodeResponse(tc.tag, FlagNone, 0, 16))
		if err != nil {
			t.Fatalf("DecodeResponse(%s) error: %v", tc.tag, err)
		}
		if resp.Command() != tc.cmd {
			t.Errorf("DecodeResponse(%s).Command() = %v, want %v", tc.tag, resp.Command(), tc.cmd)
		}
	}
}

func TestDecodeResponse_UnknownTag(t *testing.T) {
	resp, err := DecodeResponse(EncodeResponse(ResponseTag(0xCC), FlagNone, 3, 9))
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	if resp.Status() != StatusOutOfRange {
		t.Errorf("Status() = %v, want %v", resp.Status(), StatusOutOfRange)
	}
	if resp.Command() != CmdNoCommand {
		t.Errorf("Command() = %v, want %v", resp.Command(), CmdNoCommand)
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{0xA0, 0x00}},
		{"no status", []byte{0xA0, 0x00, 0x00, 0x00}},
		{"count past payload", []byte{0xA0, 0x00, 0x00, 0x02, 0, 0, 0, 0}},
		{"generic without echo", EncodeResponse(RespGeneric, FlagNone, 0)},
		{"read memory without length", EncodeResponse(RespReadMemory, FlagNone, 0)},
	}
	for _, tc := range tests {
		_, err := DecodeResponse(tc.data)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("DecodeResponse(%s) error = %v, want ErrMalformedResponse", tc.name, err)
		}
	}
}

func TestParseFrame(t *testing.T) {
	resp, data, err := ParseFrame(Frame{Kind: FrameData, Payload: []byte{1, 2, 3}})
	if err != nil || resp != nil || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("ParseFrame(data) = %v, %v, %v", resp, data, err)
	}

	resp, data, err = ParseFrame(Frame{Kind: FrameCommand, Payload: EncodeResponse(RespGeneric, FlagNone, 0, 3)})
	if err != nil || data != nil || resp == nil {
		t.Fatalf("ParseFrame(command) = %v, %v, %v", resp, data, err)
	}
	if resp.Command() != CmdReadMemory {
		t.Errorf("ParseFrame(command).Command() = %v, want %v", resp.Command(), CmdReadMemory)
	}

	if _, _, err := ParseFrame(Frame{}); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("ParseFrame(zero) error = %v, want ErrMalformedResponse", err)
	}
}

func TestNoResponse(t *testing.T) {
	r := NewNoResponse(CmdReadMemory)
	if r.Status() != StatusNoResponse {
		t.Errorf("Status() = %v, want %v", r.Status(), StatusNoResponse)
	}
	if r.Command() != CmdReadMemory {
		t.Errorf("Command() = %v, want %v", r.Command(), CmdReadMemory)
	}
}
