package slmp

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeRequestLayout(t *testing.T) {
	frame := EncodeRequest(Request{
		Route:      DefaultRoute(),
		Timer:      12,
		Command:    CmdReadFile,
		Subcommand: SubFileIQR,
		Data:       []byte{0xAA, 0xBB},
	})
	want := []byte{
		0x50, 0x00, // subheader
		0x00, 0xFF, 0xFF, 0x03, 0x00, // route
		0x08, 0x00, // length
		0x0C, 0x00, // timer
		0x28, 0x18, // command
		0x40, 0x00, // subcommand
		0xAA, 0xBB,
	}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = % X\nwant    % X", frame, want)
	}
}

func TestEncodeDecodeRequest(t *testing.T) {
	req := Request{
		Route:      Route{Network: 1, PC: 2, ModuleIO: 0x03E0, Station: 5},
		Timer:      4,
		Command:    CmdBatchRead,
		Subcommand: SubWordQ,
		Data:       []byte{0x64, 0x00, 0x00, 0xA8, 0x02, 0x00},
	}
	decoded, err := DecodeRequest(EncodeRequest(req))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if decoded.Route != req.Route {
		t.Errorf("Route = %+v, want %+v", decoded.Route, req.Route)
	}
	if decoded.Command != req.Command || decoded.Subcommand != req.Subcommand || decoded.Timer != req.Timer {
		t.Errorf("header = %+v, want %+v", decoded, req)
	}
	if !bytes.Equal(decoded.Data, req.Data) {
		t.Errorf("Data = % X, want % X", decoded.Data, req.Data)
	}
}

func TestEncodeDecodeResponse(t *testing.T) {
	resp := Response{Route: DefaultRoute(), EndCode: 0xC051}
	decoded, err := DecodeResponse(EncodeResponse(resp))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if decoded.EndCode != 0xC051 {
		t.Errorf("EndCode = 0x%04X, want 0xC051", decoded.EndCode)
	}
	if decoded.Data != nil {
		t.Errorf("Data = % X, want nil", decoded.Data)
	}
}

func TestDecodeResponseErrors(t *testing.T) {
	good := EncodeResponse(Response{Route: DefaultRoute(), Data: []byte{1, 2, 3}})

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too short", good[:5], ErrShortFrame},
		{"truncated body", good[:len(good)-1], ErrShortFrame},
		{"request subheader", append([]byte{0x50, 0x00}, good[2:]...), ErrSubheader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFrameLength(t *testing.T) {
	frame := EncodeResponse(Response{Route: DefaultRoute(), Data: make([]byte, 10)})
	n, err := FrameLength(frame[:HeaderSize])
	if err != nil {
		t.Fatalf("FrameLength: %v", err)
	}
	if n != len(frame) {
		t.Errorf("FrameLength = %d, want %d", n, len(frame))
	}

	largest := []byte{0xD0, 0x00, 0, 0xFF, 0xFF, 0x03, 0, 0xFF, 0xFF}
	n, err = FrameLength(largest)
	if err != nil {
		t.Fatalf("FrameLength(0xFFFF): %v", err)
	}
	if n != MaxFrameSize {
		t.Errorf("FrameLength(0xFFFF) = %d, want %d", n, MaxFrameSize)
	}

	empty := []byte{0xD0, 0x00, 0, 0xFF, 0xFF, 0x03, 0, 0x01, 0x00}
	if _, err := FrameLength(empty); err == nil {
		t.Error("expected error for a frame shorter than an end code")
	}
}

func TestReadFrame(t *testing.T) {
	a := EncodeResponse(Response{Route: DefaultRoute(), Data: []byte{1}})
	b := EncodeRequest(Request{Route: DefaultRoute(), Command: CmdCloseFile})
	r := bytes.NewReader(append(append([]byte{}, a...), b...))

	got, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, a) || !IsResponseFrame(got) {
		t.Errorf("first frame = % X, want % X", got, a)
	}
	got, err = ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, b) || !IsRequestFrame(got) {
		t.Errorf("second frame = % X, want % X", got, b)
	}
	if _, err := ReadFrame(r); err == nil {
		t.Error("expected EOF error")
	}
}
