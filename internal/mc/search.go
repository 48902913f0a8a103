package mc

import (
	"context"
	"errors"
	"strings"

	"github.com/tturner/mcgw/internal/logging"
)

// Default paths for an empty directory argument.
const (
	DefaultSearchPath = "$MELPRJ$"
	DefaultRootMarker = `\`
)

// Searcher resolves a filename on a drive. When the device reports the file
// as missing it falls back to listing the directory, since the search
// command also answers "not found" for some valid paths.
type Searcher struct {
	Dialer      Dialer
	Layout      Layout
	DefaultPath string
	RootMarker  string
	PageSize    int
	Logger      *logging.Logger
}

// Search returns the entries matching filename in dir.
func (s *Searcher) Search(ctx context.Context, drive uint16, filename, dir string) ([]FileEntry, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, invalidArgument("search", "filename is required")
	}
	searchPath, listPath := dir, dir
	if dir == "" {
		searchPath = orDefault(s.DefaultPath, DefaultSearchPath)
		listPath = orDefault(s.RootMarker, DefaultRootMarker)
	}

	conn, err := dial(ctx, s.Dialer, "search")
	if err != nil {
		return nil, err
	}
	defer closeConn(conn, s.Logger)

	raw, err := conn.SearchFile(ctx, drive, filename, searchPath)
	if err == nil {
		entries, derr := Decode(s.Layout, raw)
		if derr != nil {
			return nil, &Error{Kind: KindGeneric, Op: "search", Err: derr}
		}
		return entries, nil
	}
	err = ClassifyErr("search", err)
	if !errors.Is(err, ErrFileNotFound) {
		return nil, err
	}

	s.Logger.Verbose("search %s in %s: not found, listing %s", filename, searchPath, listPath)
	pageSize := s.PageSize
	if pageSize <= 0 || pageSize > 0xFFFF {
		pageSize = DefaultPageSize
	}
	all, lerr := listAll(ctx, conn, s.Layout, pageSize, drive, listPath, s.Logger)
	if lerr != nil {
		return nil, lerr
	}
	matches := FilterName(all, filename)
	if len(matches) == 0 {
		return nil, &Error{Kind: KindFileNotFound, Code: EndCodeFileNotFound, Op: "search"}
	}
	return matches, nil
}

// FilterName keeps the entries whose name.ext equals filename, ignoring case.
func FilterName(entries []FileEntry, filename string) []FileEntry {
	var out []FileEntry
	for _, e := range entries {
		if strings.EqualFold(e.FullName(), filename) {
			out = append(out, e)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
