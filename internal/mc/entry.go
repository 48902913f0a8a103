package mc

import (
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// AttrDirectory marks a directory entry.
const AttrDirectory uint8 = 0x10

// FileEntry is one decoded directory record.
type FileEntry struct {
	Name       string    `json:"name" yaml:"name"`
	Extension  string    `json:"ext" yaml:"ext"`
	Size       uint32    `json:"size" yaml:"size"`
	Attributes uint8     `json:"attribute" yaml:"attribute"`
	Modified   time.Time `json:"modified,omitzero" yaml:"modified,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (e FileEntry) IsDir() bool {
	return e.Attributes&AttrDirectory != 0
}

// FullName joins name and extension.
func (e FileEntry) FullName() string {
	if e.Extension == "" {
		return e.Name
	}
	return e.Name + "." + e.Extension
}

// newEntry splits a filename on its first dot.
func newEntry(filename string, size uint32, attr uint8, modified time.Time) FileEntry {
	name, ext, _ := strings.Cut(filename, ".")
	return FileEntry{
		Name:       name,
		Extension:  ext,
		Size:       size,
		Attributes: attr,
		Modified:   modified,
	}
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeUTF16 decodes UTF-16LE text, dropping units that do not form valid
// characters.
func DecodeUTF16(b []byte) string {
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(string(out), "\uFFFD", "")
}

// EncodeUTF16 encodes s as UTF-16LE.
func EncodeUTF16(s string) ([]byte, error) {
	return utf16le.NewEncoder().Bytes([]byte(s))
}

// DOS packed date/time as used by the tail layout. Zero date means unset.

func fromDOS(date, clock uint16) time.Time {
	if date == 0 {
		return time.Time{}
	}
	return time.Date(
		int(date>>9)+1980, time.Month(date>>5&0x0F), int(date&0x1F),
		int(clock>>11), int(clock>>5&0x3F), int(clock&0x1F)*2,
		0, time.UTC)
}

func toDOS(t time.Time) (date, clock uint16) {
	if t.IsZero() || t.Year() < 1980 {
		return 0, 0
	}
	t = t.UTC()
	date = uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	clock = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, clock
}
