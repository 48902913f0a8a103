package mc

import (
	"context"
	"fmt"
	"sync"
)

// endCodeErr mimics a transport error carrying a device end code.
type endCodeErr uint16

func (e endCodeErr) Error() string   { return fmt.Sprintf("end code 0x%04X", uint16(e)) }
func (e endCodeErr) EndCode() uint16 { return uint16(e) }

// fakeConn records calls and answers through optional hooks.
type fakeConn struct {
	mu sync.Mutex

	words  func(code string, addr uint32, count uint16) ([]uint16, error)
	bits   func(code string, addr uint32, count uint16) ([]bool, error)
	list   func(drive uint16, start uint32, count uint16, path string) (int, []byte, error)
	search func(drive uint16, filename, path string) ([]byte, error)
	open   func(drive uint16, filename string) (uint16, error)
	read   func(handle uint16, offset uint32, length uint16) ([]byte, error)
	close  func(handle uint16) error

	calls      []string
	listStarts []uint32
	listPaths  []string
	searchPath string
	reads      int
	closeFiles int
	closed     int
}

func (f *fakeConn) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeConn) BatchReadWords(ctx context.Context, code string, addr uint32, count uint16) ([]uint16, error) {
	f.record(fmt.Sprintf("words %s %d %d", code, addr, count))
	if f.words == nil {
		return make([]uint16, count), nil
	}
	return f.words(code, addr, count)
}

func (f *fakeConn) BatchReadBits(ctx context.Context, code string, addr uint32, count uint16) ([]bool, error) {
	f.record(fmt.Sprintf("bits %s %d %d", code, addr, count))
	if f.bits == nil {
		return make([]bool, count), nil
	}
	return f.bits(code, addr, count)
}

func (f *fakeConn) ListDirectory(ctx context.Context, drive uint16, start uint32, count uint16, path string) (int, []byte, error) {
	f.record("list")
	f.listStarts = append(f.listStarts, start)
	f.listPaths = append(f.listPaths, path)
	if f.list == nil {
		return 0, nil, nil
	}
	return f.list(drive, start, count, path)
}

func (f *fakeConn) SearchFile(ctx context.Context, drive uint16, filename, path string) ([]byte, error) {
	f.record("search")
	f.searchPath = path
	if f.search == nil {
		return nil, endCodeErr(EndCodeFileNotFound)
	}
	return f.search(drive, filename, path)
}

func (f *fakeConn) OpenFile(ctx context.Context, drive uint16, filename string, mode OpenMode) (uint16, error) {
	f.record("open")
	if f.open == nil {
		return 1, nil
	}
	return f.open(drive, filename)
}

func (f *fakeConn) ReadFile(ctx context.Context, handle uint16, offset uint32, length uint16) ([]byte, error) {
	f.record(fmt.Sprintf("read %d %d", offset, length))
	f.reads++
	if f.read == nil {
		return nil, nil
	}
	return f.read(handle, offset, length)
}

func (f *fakeConn) CloseFile(ctx context.Context, handle uint16) error {
	f.record("closefile")
	f.closeFiles++
	if f.close == nil {
		return nil
	}
	return f.close(handle)
}

func (f *fakeConn) Close() error {
	f.closed++
	return nil
}

// fakeDialer hands out one connection and counts dials.
type fakeDialer struct {
	conn  *fakeConn
	err   error
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}
