package mc

import "context"

// OpenMode selects how a file is opened. Only reading is supported.
type OpenMode int

const (
	ModeRead OpenMode = iota
)

func (m OpenMode) String() string {
	if m == ModeRead {
		return "read"
	}
	return "unknown"
}

// Dialer opens one connection to a device.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is a connected device. Remote failures carry an end code through an
// EndCode() uint16 method on the returned error.
type Conn interface {
	BatchReadWords(ctx context.Context, code string, addr uint32, count uint16) ([]uint16, error)
	BatchReadBits(ctx context.Context, code string, addr uint32, count uint16) ([]bool, error)
	ListDirectory(ctx context.Context, drive uint16, start uint32, count uint16, path string) (int, []byte, error)
	SearchFile(ctx context.Context, drive uint16, filename, path string) ([]byte, error)
	OpenFile(ctx context.Context, drive uint16, filename string, mode OpenMode) (uint16, error)
	ReadFile(ctx context.Context, handle uint16, offset uint32, length uint16) ([]byte, error)
	CloseFile(ctx context.Context, handle uint16) error
	Close() error
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// dial opens a connection and classifies a failure.
func dial(ctx context.Context, d Dialer, op string) (Conn, error) {
	conn, err := d.Dial(ctx)
	if err != nil {
		return nil, ClassifyErr(op, err)
	}
	return conn, nil
}
