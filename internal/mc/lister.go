package mc

import (
	"context"

	"github.com/tturner/mcgw/internal/logging"
)

// DefaultPageSize is the number of entries requested per directory page.
const DefaultPageSize = 256

// FirstFileNumber is the start index of the first directory page.
const FirstFileNumber = 1

// maxPages bounds a walk against a device that never returns a short page.
const maxPages = 0x10000 / DefaultPageSize

// Lister reads directory listings.
type Lister struct {
	Dialer   Dialer
	Layout   Layout
	PageSize int
	Logger   *logging.Logger
}

// List reads one page of up to count entries starting at file number start.
// It returns the count reported by the device with the decoded entries.
func (l *Lister) List(ctx context.Context, drive uint16, start uint32, count uint16, path string) (int, []FileEntry, error) {
	if count == 0 {
		return 0, nil, invalidArgument("list", "entry count must be at least 1")
	}
	conn, err := dial(ctx, l.Dialer, "list")
	if err != nil {
		return 0, nil, err
	}
	defer closeConn(conn, l.Logger)

	n, raw, err := conn.ListDirectory(ctx, drive, start, count, path)
	if err != nil {
		return 0, nil, ClassifyErr("list", err)
	}
	entries, err := Decode(l.Layout, raw)
	if err != nil {
		return 0, nil, &Error{Kind: KindGeneric, Op: "list", Err: err}
	}
	return n, entries, nil
}

// ListAll walks every page of path.
func (l *Lister) ListAll(ctx context.Context, drive uint16, path string) ([]FileEntry, error) {
	conn, err := dial(ctx, l.Dialer, "list")
	if err != nil {
		return nil, err
	}
	defer closeConn(conn, l.Logger)

	return listAll(ctx, conn, l.Layout, l.pageSize(), drive, path, l.Logger)
}

func (l *Lister) pageSize() int {
	if l.PageSize <= 0 || l.PageSize > 0xFFFF {
		return DefaultPageSize
	}
	return l.PageSize
}

// listAll requests pages until one comes back short.
func listAll(ctx context.Context, conn Conn, layout Layout, pageSize int, drive uint16, path string, logger *logging.Logger) ([]FileEntry, error) {
	var all []FileEntry
	start := uint32(FirstFileNumber)
	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, ClassifyErr("list", err)
		}
		n, raw, err := conn.ListDirectory(ctx, drive, start, uint16(pageSize), path)
		if err != nil {
			return nil, ClassifyErr("list", err)
		}
		entries, err := Decode(layout, raw)
		if err != nil {
			return nil, &Error{Kind: KindGeneric, Op: "list", Err: err}
		}
		logger.Debug("list %s page %d: start=%d returned=%d decoded=%d", path, page, start, n, len(entries))
		all = append(all, entries...)
		if n < pageSize {
			break
		}
		start += uint32(pageSize)
	}
	return all, nil
}
