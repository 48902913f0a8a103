package slmp

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptTransport answers every request through handle.
type scriptTransport struct {
	connected bool
	pending   []byte
	requests  []Request
	handle    func(Request) Response
}

func (s *scriptTransport) Connect(ctx context.Context, addr string) error {
	s.connected = true
	return nil
}

func (s *scriptTransport) Disconnect() error {
	s.connected = false
	return nil
}

func (s *scriptTransport) Send(ctx context.Context, data []byte) error {
	req, err := DecodeRequest(data)
	if err != nil {
		return err
	}
	s.requests = append(s.requests, req)
	s.pending = EncodeResponse(s.handle(req))
	return nil
}

func (s *scriptTransport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	out := s.pending
	s.pending = nil
	return out, nil
}

func (s *scriptTransport) IsConnected() bool {
	return s.connected
}

func newScriptClient(t *testing.T, series Series, handle func(Request) Response) (*Client, *scriptTransport) {
	t.Helper()
	tr := &scriptTransport{handle: handle}
	c := NewClient(WithSeries(series), WithTransport(tr), WithTimeout(2*time.Second))
	if err := c.Connect(context.Background(), "127.0.0.1", 5511); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c, tr
}

func TestClientTimer(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    uint16
	}{
		{3 * time.Second, 12},
		{100 * time.Millisecond, 1},
		{time.Second, 4},
	}
	for _, tt := range tests {
		c := NewClient(WithTimeout(tt.timeout))
		if got := c.Timer(); got != tt.want {
			t.Errorf("Timer(%v) = %d, want %d", tt.timeout, got, tt.want)
		}
	}
}

func TestClientBatchReadWords(t *testing.T) {
	c, tr := newScriptClient(t, SeriesQ, func(req Request) Response {
		return Response{Route: req.Route, Data: EncodeWordData([]uint16{1, 2})}
	})
	defer c.Close()

	words, err := c.BatchReadWords(context.Background(), "D", 100, 2)
	if err != nil {
		t.Fatalf("BatchReadWords: %v", err)
	}
	if len(words) != 2 || words[0] != 1 || words[1] != 2 {
		t.Errorf("words = %v", words)
	}
	req := tr.requests[0]
	if req.Command != CmdBatchRead || req.Subcommand != SubWordQ || req.Timer != 8 {
		t.Errorf("request = %+v", req)
	}
}

func TestClientBatchReadBits(t *testing.T) {
	c, tr := newScriptClient(t, SeriesIQR, func(req Request) Response {
		return Response{Route: req.Route, Data: EncodeBitData([]bool{true, false, true})}
	})
	defer c.Close()

	bits, err := c.BatchReadBits(context.Background(), "Y", 0x20, 3)
	if err != nil {
		t.Fatalf("BatchReadBits: %v", err)
	}
	if !bits[0] || bits[1] || !bits[2] {
		t.Errorf("bits = %v", bits)
	}
	if tr.requests[0].Subcommand != SubBitIQR {
		t.Errorf("subcommand = 0x%04X, want 0x%04X", tr.requests[0].Subcommand, SubBitIQR)
	}
}

func TestClientEndCode(t *testing.T) {
	c, _ := newScriptClient(t, SeriesIQR, func(req Request) Response {
		return Response{Route: req.Route, EndCode: 0xC051}
	})
	defer c.Close()

	_, err := c.OpenFile(context.Background(), 4, "MISSING.PRG", OpenModeRead)
	var ec *EndCodeError
	if !errors.As(err, &ec) {
		t.Fatalf("error = %v, want *EndCodeError", err)
	}
	if ec.Code != 0xC051 || ec.Command != CmdOpenFile || ec.Subcommand != SubFileIQR {
		t.Errorf("EndCodeError = %+v", ec)
	}
}

func TestClientFileCommands(t *testing.T) {
	c, tr := newScriptClient(t, SeriesQ, func(req Request) Response {
		switch req.Command {
		case CmdOpenFile:
			return Response{Route: req.Route, Data: []byte{0x05, 0x00}}
		case CmdReadFile:
			return Response{Route: req.Route, Data: EncodeReadFile([]byte("data"))}
		case CmdReadDirectory:
			return Response{Route: req.Route, Data: EncodeListDirectory(1, []byte{1, 2, 3, 4})}
		default:
			return Response{Route: req.Route}
		}
	})
	defer c.Close()
	ctx := context.Background()

	h, err := c.OpenFile(ctx, 4, "A.PRG", OpenModeRead)
	if err != nil || h != 5 {
		t.Fatalf("OpenFile = %d, %v", h, err)
	}
	data, err := c.ReadFile(ctx, h, 0, 1920)
	if err != nil || string(data) != "data" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
	if _, err := c.ReadFile(ctx, h, 0, 1921); err == nil {
		t.Error("expected error for oversized read")
	}
	if err := c.CloseFile(ctx, h); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	n, raw, err := c.ListDirectory(ctx, 4, 0, 256, `\`)
	if err != nil || n != 1 || len(raw) != 4 {
		t.Fatalf("ListDirectory = %d % X %v", n, raw, err)
	}
	for _, req := range tr.requests {
		if req.Subcommand != SubFileQ {
			t.Errorf("%s subcommand = 0x%04X, want 0", req.Command, req.Subcommand)
		}
	}
	if len(tr.requests) != 4 {
		t.Errorf("requests = %d, want 4 (oversized read must not be sent)", len(tr.requests))
	}
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient(WithTransport(&scriptTransport{}))
	_, err := c.Exchange(context.Background(), CmdCloseFile, 0, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("error = %v, want ErrNotConnected", err)
	}
}
