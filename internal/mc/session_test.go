package mc

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// chunkedReader serves chunks of the given sizes in order.
func chunkedReader(sizes []int) func(uint16, uint32, uint16) ([]byte, error) {
	i := 0
	return func(_ uint16, offset uint32, length uint16) ([]byte, error) {
		if i >= len(sizes) {
			return nil, nil
		}
		n := sizes[i]
		i++
		return bytes.Repeat([]byte{byte(i)}, n), nil
	}
}

func TestReadFileChunks(t *testing.T) {
	conn := &fakeConn{read: chunkedReader([]int{1920, 1920, 1160})}
	dialer := &fakeDialer{conn: conn}

	var progress []int64
	fc, err := ReadFile(context.Background(), dialer, 4, "MAIN.PRG", 1920,
		WithProgress(func(done int64) { progress = append(progress, done) }))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if fc.Size != 5000 || len(fc.Data) != 5000 || fc.Filename != "MAIN.PRG" || fc.Drive != 4 {
		t.Errorf("FileContent = %d bytes, size %d, name %q", len(fc.Data), fc.Size, fc.Filename)
	}
	if conn.reads != 3 {
		t.Errorf("reads = %d, want 3", conn.reads)
	}
	wantCalls := []string{"open", "read 0 1920", "read 1920 1920", "read 3840 1920", "closefile"}
	if len(conn.calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", conn.calls, wantCalls)
	}
	for i := range wantCalls {
		if conn.calls[i] != wantCalls[i] {
			t.Errorf("call %d = %q, want %q", i, conn.calls[i], wantCalls[i])
		}
	}
	if conn.closeFiles != 1 || conn.closed != 1 {
		t.Errorf("closeFiles = %d, closed = %d, want 1/1", conn.closeFiles, conn.closed)
	}
	if len(progress) != 3 || progress[2] != 5000 {
		t.Errorf("progress = %v", progress)
	}
}

func TestReadFileExactMultiple(t *testing.T) {
	conn := &fakeConn{read: chunkedReader([]int{100, 100, 0})}
	fc, err := ReadFile(context.Background(), &fakeDialer{conn: conn}, 4, "A.B", 100)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if fc.Size != 200 || conn.reads != 3 {
		t.Errorf("size = %d, reads = %d; want 200, 3", fc.Size, conn.reads)
	}
}

func TestReadFileClosesAfterReadFailure(t *testing.T) {
	conn := &fakeConn{
		read: func(uint16, uint32, uint16) ([]byte, error) { return nil, endCodeErr(0xC053) },
		// a failing close must not hide the read error
		close: func(uint16) error { return endCodeErr(0xC0FF) },
	}
	_, err := ReadFile(context.Background(), &fakeDialer{conn: conn}, 4, "A.B", 1920)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("error = %v, want ErrAccessDenied", err)
	}
	if conn.closeFiles != 1 || conn.closed != 1 {
		t.Errorf("closeFiles = %d, closed = %d, want 1/1", conn.closeFiles, conn.closed)
	}
}

func TestReadFileOpenFailure(t *testing.T) {
	conn := &fakeConn{
		open: func(uint16, string) (uint16, error) { return 0, endCodeErr(0xC051) },
	}
	_, err := ReadFile(context.Background(), &fakeDialer{conn: conn}, 4, "A.B", 1920)
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("error = %v, want ErrFileNotFound", err)
	}
	if conn.closeFiles != 0 {
		t.Errorf("closeFiles = %d, nothing was opened", conn.closeFiles)
	}
	if conn.closed != 1 {
		t.Errorf("closed = %d, want 1", conn.closed)
	}
}

func TestReadFileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sizes := chunkedReader([]int{1920, 1920, 1920})
	conn := &fakeConn{}
	conn.read = func(h uint16, off uint32, n uint16) ([]byte, error) {
		cancel()
		return sizes(h, off, n)
	}
	_, err := ReadFile(ctx, &fakeDialer{conn: conn}, 4, "A.B", 1920)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want cancellation", err)
	}
	if conn.reads != 1 || conn.closeFiles != 1 {
		t.Errorf("reads = %d, closeFiles = %d, want 1/1", conn.reads, conn.closeFiles)
	}
}

func TestReadFileValidatesBeforeDial(t *testing.T) {
	for _, size := range []int{0, -1, 1921} {
		dialer := &fakeDialer{conn: &fakeConn{}}
		_, err := ReadFile(context.Background(), dialer, 4, "A.B", size)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("chunk %d: error = %v, want ErrInvalidArgument", size, err)
		}
		if dialer.dials != 0 {
			t.Errorf("chunk %d: dialed before validating", size)
		}
	}
}

func TestSessionStates(t *testing.T) {
	conn := &fakeConn{read: chunkedReader([]int{10})}
	s := NewSession(conn)
	ctx := context.Background()

	if s.State() != StateIdle {
		t.Fatalf("initial state = %v", s.State())
	}
	if err := s.Close(ctx); err != nil || s.State() != StateIdle {
		t.Errorf("closing an idle session should do nothing")
	}
	h, err := s.Open(ctx, 4, "A.B", ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.State() != StateOpen {
		t.Errorf("state = %v, want open", s.State())
	}
	if _, err := s.Open(ctx, 4, "C.D", ModeRead); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("second open error = %v", err)
	}
	if _, err := s.ReadChunk(ctx, h, 0, 1921); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("oversized chunk error = %v", err)
	}
	if conn.reads != 0 {
		t.Error("oversized chunk reached the device")
	}
	other := h
	other.ID++
	if _, err := s.ReadChunk(ctx, other, 0, 10); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("foreign handle error = %v", err)
	}
	if _, err := s.ReadChunk(ctx, h, 0, 10); err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if s.State() != StateReading {
		t.Errorf("state = %v, want reading", s.State())
	}
	s.Close(ctx)
	s.Close(ctx)
	if s.State() != StateClosed || conn.closeFiles != 1 {
		t.Errorf("state = %v, closeFiles = %d", s.State(), conn.closeFiles)
	}
	if _, err := s.ReadChunk(ctx, h, 0, 10); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("read after close error = %v", err)
	}
}

func TestSessionFailedThenClosed(t *testing.T) {
	conn := &fakeConn{
		read: func(uint16, uint32, uint16) ([]byte, error) { return nil, errors.New("reset") },
	}
	s := NewSession(conn)
	ctx := context.Background()
	h, _ := s.Open(ctx, 4, "A.B", ModeRead)
	if _, err := s.ReadAll(ctx, h, 1920); !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %v, want failed", s.State())
	}
	s.Close(ctx)
	if s.State() != StateClosed || conn.closeFiles != 1 {
		t.Errorf("state = %v, closeFiles = %d", s.State(), conn.closeFiles)
	}
}
