package mc

import (
	"context"
	"fmt"

	"github.com/tturner/mcgw/internal/logging"
)

// MaxChunkSize is the largest read a device accepts in one request.
const MaxChunkSize = 1920

// SessionState tracks a file transfer.
type SessionState int

const (
	StateIdle SessionState = iota
	StateOpen
	StateReading
	StateClosed
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateReading:
		return "reading"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FileHandle is a device file pointer. It is only valid inside the session
// that opened it.
type FileHandle struct {
	ID       uint16
	Drive    uint16
	Filename string
	Mode     OpenMode
}

// Session drives open, read and close of one file over one connection.
type Session struct {
	conn     Conn
	logger   *logging.Logger
	progress func(done int64)

	state  SessionState
	handle FileHandle
	closed bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithProgress reports the running byte count after every chunk.
func WithProgress(fn func(done int64)) SessionOption {
	return func(s *Session) { s.progress = fn }
}

// WithSessionLogger attaches a logger.
func WithSessionLogger(l *logging.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession starts an idle session on conn. The caller owns conn.
func NewSession(conn Conn, opts ...SessionOption) *Session {
	s := &Session{conn: conn}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() SessionState {
	return s.state
}

// Open acquires a file pointer.
func (s *Session) Open(ctx context.Context, drive uint16, filename string, mode OpenMode) (FileHandle, error) {
	if s.state != StateIdle {
		return FileHandle{}, invalidArgument("open", "session is %s", s.state)
	}
	if mode != ModeRead {
		return FileHandle{}, invalidArgument("open", "unsupported open mode %d", mode)
	}
	if filename == "" {
		return FileHandle{}, invalidArgument("open", "filename is required")
	}
	id, err := s.conn.OpenFile(ctx, drive, filename, mode)
	if err != nil {
		return FileHandle{}, ClassifyErr("open", err)
	}
	s.handle = FileHandle{ID: id, Drive: drive, Filename: filename, Mode: mode}
	s.state = StateOpen
	s.logger.Verbose("opened %s on drive %d (pointer %d)", filename, drive, id)
	return s.handle, nil
}

// ReadChunk reads up to length bytes at offset.
func (s *Session) ReadChunk(ctx context.Context, h FileHandle, offset uint32, length int) ([]byte, error) {
	if length < 1 || length > MaxChunkSize {
		return nil, invalidArgument("read", "chunk size %d out of range (1-%d)", length, MaxChunkSize)
	}
	if err := s.checkHandle(h); err != nil {
		return nil, err
	}
	s.state = StateReading
	data, err := s.conn.ReadFile(ctx, h.ID, offset, uint16(length))
	if err != nil {
		s.state = StateFailed
		return nil, ClassifyErr("read", err)
	}
	if len(data) > length {
		s.state = StateFailed
		return nil, &Error{Kind: KindGeneric, Op: "read",
			Err: fmt.Errorf("device returned %d bytes for a %d byte read", len(data), length)}
	}
	return data, nil
}

// ReadAll reads from offset 0 until a chunk comes back short or empty.
func (s *Session) ReadAll(ctx context.Context, h FileHandle, chunkSize int) ([]byte, error) {
	if chunkSize < 1 || chunkSize > MaxChunkSize {
		return nil, invalidArgument("read", "chunk size %d out of range (1-%d)", chunkSize, MaxChunkSize)
	}
	var buf []byte
	var offset uint32
	for {
		if err := ctx.Err(); err != nil {
			s.state = StateFailed
			return nil, ClassifyErr("read", err)
		}
		chunk, err := s.ReadChunk(ctx, h, offset, chunkSize)
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
		offset += uint32(len(chunk))
		if s.progress != nil {
			s.progress(int64(len(buf)))
		}
		if len(chunk) < chunkSize {
			break
		}
	}
	s.logger.Verbose("read %s: %d bytes", h.Filename, len(buf))
	return buf, nil
}

// Close releases the file pointer once. Later calls and calls on an idle
// session do nothing. A failure is logged and returned but leaves the
// session closed.
func (s *Session) Close(ctx context.Context) error {
	if s.state == StateIdle || s.closed {
		return nil
	}
	s.closed = true
	s.state = StateClosed
	if err := s.conn.CloseFile(ctx, s.handle.ID); err != nil {
		s.logger.Info("close %s (pointer %d): %v", s.handle.Filename, s.handle.ID, err)
		return ClassifyErr("close", err)
	}
	return nil
}

func (s *Session) checkHandle(h FileHandle) error {
	switch s.state {
	case StateOpen, StateReading:
	default:
		return invalidArgument("read", "session is %s", s.state)
	}
	if h != s.handle {
		return invalidArgument("read", "file pointer %d does not belong to this session", h.ID)
	}
	return nil
}

// FileContent is a file read in full.
type FileContent struct {
	Drive    uint16
	Filename string
	Data     []byte
	Size     int
}

// ReadFile opens filename on its own connection, reads it whole and closes
// the file pointer and the connection on every path.
func ReadFile(ctx context.Context, d Dialer, drive uint16, filename string, chunkSize int, opts ...SessionOption) (*FileContent, error) {
	if chunkSize < 1 || chunkSize > MaxChunkSize {
		return nil, invalidArgument("read", "chunk size %d out of range (1-%d)", chunkSize, MaxChunkSize)
	}
	if filename == "" {
		return nil, invalidArgument("read", "filename is required")
	}

	conn, err := dial(ctx, d, "read")
	if err != nil {
		return nil, err
	}
	s := NewSession(conn, opts...)
	defer closeConn(conn, s.logger)

	h, err := s.Open(ctx, drive, filename, ModeRead)
	if err != nil {
		return nil, err
	}
	defer s.Close(context.WithoutCancel(ctx))

	data, err := s.ReadAll(ctx, h, chunkSize)
	if err != nil {
		return nil, err
	}
	return &FileContent{Drive: drive, Filename: filename, Data: data, Size: len(data)}, nil
}
