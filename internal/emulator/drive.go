package emulator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tturner/mcgw/internal/mc"
)

// File is one emulated file.
type File struct {
	Name     string
	Data     []byte
	Modified time.Time
}

// Drive is an emulated drive with a root directory and one level of
// subdirectories. Names are matched case-insensitively.
type Drive struct {
	Number uint16

	mu   sync.RWMutex
	dirs map[string]map[string]*File
}

// NewDrive creates an empty drive.
func NewDrive(number uint16) *Drive {
	return &Drive{
		Number: number,
		dirs:   map[string]map[string]*File{"": {}},
	}
}

// normalizeDir maps "", "\" and "/" to the root and strips separators.
func normalizeDir(path string) string {
	return strings.ToUpper(strings.Trim(path, `\/`))
}

// AddDir creates an empty directory.
func (d *Drive) AddDir(dir string) {
	key := normalizeDir(dir)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.dirs[key]; !ok {
		d.dirs[key] = map[string]*File{}
	}
}

// AddFile stores a file, creating its directory.
func (d *Drive) AddFile(dir, name string, data []byte, modified time.Time) {
	key := normalizeDir(dir)
	d.mu.Lock()
	defer d.mu.Unlock()
	files, ok := d.dirs[key]
	if !ok {
		files = map[string]*File{}
		d.dirs[key] = files
	}
	files[strings.ToUpper(name)] = &File{Name: name, Data: data, Modified: modified}
}

// Entries lists a directory in name order. Subdirectories of the root are
// listed first with the directory attribute.
func (d *Drive) Entries(dir string) ([]mc.FileEntry, bool) {
	key := normalizeDir(dir)
	d.mu.RLock()
	defer d.mu.RUnlock()

	files, ok := d.dirs[key]
	if !ok {
		return nil, false
	}

	var entries []mc.FileEntry
	if key == "" {
		var subdirs []string
		for name := range d.dirs {
			if name != "" {
				subdirs = append(subdirs, name)
			}
		}
		sort.Strings(subdirs)
		for _, name := range subdirs {
			entries = append(entries, mc.FileEntry{Name: name, Attributes: mc.AttrDirectory})
		}
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entries = append(entries, fileEntry(files[name]))
	}
	return entries, true
}

// Lookup finds a file. A filename carrying a directory ("DIR\NAME.EXT")
// is looked up there; a bare name is looked up in dir.
func (d *Drive) Lookup(dir, filename string) (*File, bool) {
	if i := strings.LastIndexAny(filename, `\/`); i >= 0 {
		dir, filename = filename[:i], filename[i+1:]
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	files, ok := d.dirs[normalizeDir(dir)]
	if !ok {
		return nil, false
	}
	f, ok := files[strings.ToUpper(filename)]
	return f, ok
}

// Find searches the root and then every subdirectory for filename.
func (d *Drive) Find(filename string) (*File, bool) {
	if f, ok := d.Lookup("", filename); ok {
		return f, true
	}
	d.mu.RLock()
	dirs := make([]string, 0, len(d.dirs))
	for name := range d.dirs {
		dirs = append(dirs, name)
	}
	d.mu.RUnlock()
	sort.Strings(dirs)
	for _, dir := range dirs {
		if f, ok := d.Lookup(dir, filename); ok {
			return f, true
		}
	}
	return nil, false
}

func fileEntry(f *File) mc.FileEntry {
	name, ext, _ := strings.Cut(f.Name, ".")
	return mc.FileEntry{
		Name:      name,
		Extension: ext,
		Size:      uint32(len(f.Data)),
		Modified:  f.Modified.UTC().Truncate(2 * time.Second),
	}
}

// LoadDrive builds a drive from a host directory. Regular files in root
// become root files; each subdirectory becomes a drive directory holding its
// regular files. Deeper levels are ignored.
func LoadDrive(number uint16, root string) (*Drive, error) {
	d := NewDrive(number)
	top, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read drive %d directory: %w", number, err)
	}
	for _, de := range top {
		if de.IsDir() {
			d.AddDir(de.Name())
			if err := loadFiles(d, de.Name(), filepath.Join(root, de.Name())); err != nil {
				return nil, err
			}
			continue
		}
		if err := addHostFile(d, "", filepath.Join(root, de.Name())); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func loadFiles(d *Drive, dir, path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if err := addHostFile(d, dir, filepath.Join(path, de.Name())); err != nil {
			return err
		}
	}
	return nil
}

func addHostFile(d *Drive, dir, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	d.AddFile(dir, filepath.Base(path), data, info.ModTime())
	return nil
}
