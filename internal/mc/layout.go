package mc

// Directory listing layouts.
//
// A listing starts with a 4-byte header (last file number + reserved)
// followed by records. Two record layouts are known:
//
//   tail:    number(2 LE) tailLen(2 LE) fixed(18) tail(tailLen)
//            fixed = attr(2) reserved(4) time(2) date(2) reserved(4) size(4)
//            tail  = linkLen(2 BE) link name(UTF-16LE) nameLen(2 BE)
//   leading: nameLen(2 LE) name(UTF-16LE) fixed(21)
//            fixed = attr(1) reserved(9) time(3) date(4) size(4)
//
// 0xFFFF in the first word ends the listing. Older firmware ends it with a
// zero tail length (tail) or a zero name length (leading).

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

// ListingHeaderSize is the header preceding the first record.
const ListingHeaderSize = 4

const listingEnd = 0xFFFF

// ErrLayoutMismatch reports a record whose field boundaries do not
// reconcile with the selected layout.
var ErrLayoutMismatch = errors.New("mc: directory layout mismatch")

// Layout decodes and encodes one directory record format.
type Layout interface {
	Name() string
	// Next decodes the record at off. ok is false at the end of the listing,
	// including a record truncated by the end of raw.
	Next(raw []byte, off int) (entry FileEntry, next int, ok bool, err error)
	// AppendRecord encodes one record with the given file number.
	AppendRecord(dst []byte, number uint16, e FileEntry) ([]byte, error)
}

// Record is one step of a listing walk.
type Record struct {
	Index  int
	Offset int
	Entry  FileEntry
	Err    error
}

// Records walks raw lazily. The sequence may be ranged over any number of
// times. A malformed record is yielded once with Err set and ends the walk.
func Records(layout Layout, raw []byte) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		off := ListingHeaderSize
		for i := 0; ; i++ {
			entry, next, ok, err := layout.Next(raw, off)
			if err != nil {
				yield(Record{Index: i, Offset: off, Err: err})
				return
			}
			if !ok || next <= off {
				return
			}
			if !yield(Record{Index: i, Offset: off, Entry: entry}) {
				return
			}
			off = next
		}
	}
}

// Decode returns every entry in raw.
func Decode(layout Layout, raw []byte) ([]FileEntry, error) {
	var entries []FileEntry
	for rec := range Records(layout, raw) {
		if rec.Err != nil {
			return nil, fmt.Errorf("%s layout, record %d at offset %d: %w",
				layout.Name(), rec.Index, rec.Offset, rec.Err)
		}
		entries = append(entries, rec.Entry)
	}
	return entries, nil
}

// EncodeListing builds a complete listing: header, records, terminator.
func EncodeListing(layout Layout, entries []FileEntry, first uint16) ([]byte, error) {
	buf := make([]byte, 0, ListingHeaderSize+len(entries)*48+2)
	last := uint16(0)
	if len(entries) > 0 {
		last = first + uint16(len(entries)) - 1
	}
	buf = binary.LittleEndian.AppendUint16(buf, last)
	buf = append(buf, 0, 0)
	var err error
	for i, e := range entries {
		buf, err = layout.AppendRecord(buf, first+uint16(i), e)
		if err != nil {
			return nil, err
		}
	}
	return binary.LittleEndian.AppendUint16(buf, listingEnd), nil
}

// Layout names.
const (
	LayoutTail    = "tail"
	LayoutLeading = "leading"
	LayoutAuto    = "auto"
)

// LayoutByName returns a built-in layout.
func LayoutByName(name string) (Layout, error) {
	switch strings.ToLower(name) {
	case LayoutTail:
		return TailLayout, nil
	case LayoutLeading:
		return LeadingLayout, nil
	default:
		return nil, invalidArgument("layout", "unknown directory layout %q", name)
	}
}

// LayoutForSeries picks the layout a CPU series answers with.
func LayoutForSeries(series string) Layout {
	switch strings.ToUpper(strings.ReplaceAll(series, "-", "")) {
	case "IQR":
		return LeadingLayout
	default:
		return TailLayout
	}
}

// ResolveLayout handles the "auto" name.
func ResolveLayout(name, series string) (Layout, error) {
	if name == "" || strings.EqualFold(name, LayoutAuto) {
		return LayoutForSeries(series), nil
	}
	return LayoutByName(name)
}

// Field is one little-endian slot of a fixed block.
type Field struct {
	Name  string
	Width int
}

// block locates named fields inside a fixed-size block.
type block struct {
	size    int
	offsets map[string]int
	widths  map[string]int
}

// newBlock checks that the declared widths fill exactly size bytes and
// that required fields have the expected widths.
func newBlock(size int, fields []Field, required map[string]int) (block, error) {
	b := block{size: size, offsets: map[string]int{}, widths: map[string]int{}}
	off := 0
	for _, f := range fields {
		if f.Width < 1 {
			return block{}, fmt.Errorf("%w: field %q has width %d", ErrLayoutMismatch, f.Name, f.Width)
		}
		if _, dup := b.offsets[f.Name]; !dup {
			b.offsets[f.Name] = off
			b.widths[f.Name] = f.Width
		}
		off += f.Width
	}
	if off != size {
		return block{}, fmt.Errorf("%w: fields span %d bytes, block is %d", ErrLayoutMismatch, off, size)
	}
	for name, width := range required {
		if b.widths[name] != width {
			return block{}, fmt.Errorf("%w: field %q is %d bytes, want %d", ErrLayoutMismatch, name, b.widths[name], width)
		}
	}
	return b, nil
}

// get reads a field as little-endian.
func (b block) get(raw []byte, base int, name string) uint32 {
	off, ok := b.offsets[name]
	if !ok {
		return 0
	}
	var v uint32
	w := b.widths[name]
	if w > 4 {
		w = 4
	}
	for i := w - 1; i >= 0; i-- {
		v = v<<8 | uint32(raw[base+off+i])
	}
	return v
}

// put writes a field as little-endian into a zeroed block.
func (b block) put(dst []byte, name string, v uint32) {
	off, ok := b.offsets[name]
	if !ok {
		return
	}
	for i := 0; i < b.widths[name] && i < 4; i++ {
		dst[off+i] = byte(v >> (8 * i))
	}
}

func mustBlock(size int, fields []Field, required map[string]int) block {
	b, err := newBlock(size, fields, required)
	if err != nil {
		panic(err)
	}
	return b
}

// Tail layout.

const tailFixedSize = 18

var tailFields = []Field{
	{"attr", 2},
	{"reserved1", 4},
	{"time", 2},
	{"date", 2},
	{"reserved2", 4},
	{"size", 4},
}

var tailRequired = map[string]int{"attr": 2, "time": 2, "date": 2, "size": 4}

type tailLayout struct {
	fixed block
}

// TailLayout is the variable-tail layout walked from the end of each record.
var TailLayout Layout = &tailLayout{fixed: mustBlock(tailFixedSize, tailFields, tailRequired)}

// NewTailLayout builds a tail layout with a custom fixed block.
func NewTailLayout(fields []Field) (Layout, error) {
	b, err := newBlock(tailFixedSize, fields, tailRequired)
	if err != nil {
		return nil, err
	}
	return &tailLayout{fixed: b}, nil
}

func (l *tailLayout) Name() string { return LayoutTail }

func (l *tailLayout) Next(raw []byte, off int) (FileEntry, int, bool, error) {
	if off+4 > len(raw) {
		return FileEntry{}, 0, false, nil
	}
	if binary.LittleEndian.Uint16(raw[off:]) == listingEnd {
		return FileEntry{}, 0, false, nil
	}
	tailLen := int(binary.LittleEndian.Uint16(raw[off+2:]))
	if tailLen == 0 {
		return FileEntry{}, 0, false, nil
	}
	fixedAt := off + 4
	tailAt := fixedAt + l.fixed.size
	end := tailAt + tailLen
	if end > len(raw) {
		return FileEntry{}, 0, false, nil
	}
	if tailLen < 4 {
		return FileEntry{}, 0, false, fmt.Errorf("%w: tail length %d", ErrLayoutMismatch, tailLen)
	}

	// walk the tail from its end
	chars := int(binary.BigEndian.Uint16(raw[end-2:]))
	nameAt := end - 2 - chars*2
	if nameAt < tailAt+2 {
		return FileEntry{}, 0, false, fmt.Errorf("%w: name of %d characters overruns tail of %d bytes",
			ErrLayoutMismatch, chars, tailLen)
	}
	linkLen := int(binary.BigEndian.Uint16(raw[tailAt:]))
	if 2+linkLen+chars*2+2 != tailLen {
		return FileEntry{}, 0, false, fmt.Errorf("%w: link %d + name %d does not fill tail of %d bytes",
			ErrLayoutMismatch, linkLen, chars, tailLen)
	}

	entry := newEntry(
		DecodeUTF16(raw[nameAt:end-2]),
		l.fixed.get(raw, fixedAt, "size"),
		uint8(l.fixed.get(raw, fixedAt, "attr")),
		fromDOS(uint16(l.fixed.get(raw, fixedAt, "date")), uint16(l.fixed.get(raw, fixedAt, "time"))),
	)
	return entry, end, true, nil
}

func (l *tailLayout) AppendRecord(dst []byte, number uint16, e FileEntry) ([]byte, error) {
	name, err := EncodeUTF16(e.FullName())
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", e.FullName(), err)
	}
	tailLen := 2 + len(name) + 2
	if tailLen > 0xFFFF {
		return nil, fmt.Errorf("name %q too long", e.FullName())
	}
	dst = binary.LittleEndian.AppendUint16(dst, number)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(tailLen))

	fixed := make([]byte, l.fixed.size)
	date, clock := toDOS(e.Modified)
	l.fixed.put(fixed, "attr", uint32(e.Attributes))
	l.fixed.put(fixed, "time", uint32(clock))
	l.fixed.put(fixed, "date", uint32(date))
	l.fixed.put(fixed, "size", e.Size)
	dst = append(dst, fixed...)

	dst = binary.BigEndian.AppendUint16(dst, 0) // no link info
	dst = append(dst, name...)
	return binary.BigEndian.AppendUint16(dst, uint16(len(name)/2)), nil
}

// Leading layout.

const leadingFixedSize = 21

var leadingFields = []Field{
	{"attr", 1},
	{"reserved", 9},
	{"time", 3},
	{"date", 4},
	{"size", 4},
}

type leadingLayout struct {
	fixed block
}

// LeadingLayout is the iQ-R layout with the name count first.
var LeadingLayout Layout = &leadingLayout{
	fixed: mustBlock(leadingFixedSize, leadingFields, map[string]int{"attr": 1, "size": 4}),
}

func (l *leadingLayout) Name() string { return LayoutLeading }

func (l *leadingLayout) Next(raw []byte, off int) (FileEntry, int, bool, error) {
	if off+2 > len(raw) {
		return FileEntry{}, 0, false, nil
	}
	chars := int(binary.LittleEndian.Uint16(raw[off:]))
	if chars == 0 || chars == listingEnd {
		return FileEntry{}, 0, false, nil
	}
	nameAt := off + 2
	fixedAt := nameAt + chars*2
	end := fixedAt + l.fixed.size
	if end > len(raw) {
		return FileEntry{}, 0, false, nil
	}
	name := strings.TrimSpace(strings.TrimRight(DecodeUTF16(raw[nameAt:fixedAt]), "\x00"))
	entry := newEntry(
		name,
		l.fixed.get(raw, fixedAt, "size"),
		uint8(l.fixed.get(raw, fixedAt, "attr")),
		time.Time{},
	)
	return entry, end, true, nil
}

func (l *leadingLayout) AppendRecord(dst []byte, _ uint16, e FileEntry) ([]byte, error) {
	name, err := EncodeUTF16(e.FullName())
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", e.FullName(), err)
	}
	chars := len(name) / 2
	if chars == 0 || chars >= listingEnd {
		return nil, fmt.Errorf("name %q cannot be encoded in the leading layout", e.FullName())
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(chars))
	dst = append(dst, name...)
	fixed := make([]byte, l.fixed.size)
	l.fixed.put(fixed, "attr", uint32(e.Attributes))
	l.fixed.put(fixed, "size", e.Size)
	return append(dst, fixed...), nil
}
