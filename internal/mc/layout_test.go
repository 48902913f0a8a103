package mc

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
	"time"
)

func sampleEntries() []FileEntry {
	return []FileEntry{
		{Name: "MAIN", Extension: "PRG", Size: 5000, Attributes: 0x20,
			Modified: time.Date(2024, 3, 15, 10, 30, 42, 0, time.UTC)},
		{Name: "$MELPRJ$", Attributes: AttrDirectory},
		{Name: "ラダー", Extension: "DAT", Size: 1},
		{Name: "ARCHIVE", Extension: "TAR.GZ", Size: 0xFFFFFFFF},
	}
}

func TestTailLayoutRoundTrip(t *testing.T) {
	want := sampleEntries()
	raw, err := EncodeListing(TailLayout, want, 1)
	if err != nil {
		t.Fatalf("EncodeListing: %v", err)
	}
	got, err := Decode(TailLayout, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode =\n%+v\nwant\n%+v", got, want)
	}
	if !got[1].IsDir() || got[0].IsDir() {
		t.Error("directory attribute not decoded")
	}
	if got[3].FullName() != "ARCHIVE.TAR.GZ" {
		t.Errorf("FullName = %q", got[3].FullName())
	}
}

func TestLeadingLayoutRoundTrip(t *testing.T) {
	in := sampleEntries()
	raw, err := EncodeListing(LeadingLayout, in, 1)
	if err != nil {
		t.Fatalf("EncodeListing: %v", err)
	}
	got, err := Decode(LeadingLayout, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("got %d entries, want %d", len(got), len(in))
	}
	for i := range in {
		want := in[i]
		want.Modified = time.Time{} // not carried by this layout
		if got[i] != want {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want)
		}
	}
}

// Hand-built iQ-R record: "A.B", attribute 0x10, size 0x01020304.
func TestLeadingLayoutBytes(t *testing.T) {
	raw := []byte{0, 0, 0, 0, 3, 0, 'A', 0, '.', 0, 'B', 0, 0x10}
	raw = append(raw, make([]byte, 9+3+4)...)
	raw = append(raw, 0x04, 0x03, 0x02, 0x01, 0xFF, 0xFF)

	got, err := Decode(LeadingLayout, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []FileEntry{{Name: "A", Extension: "B", Size: 0x01020304, Attributes: 0x10}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode = %+v, want %+v", got, want)
	}
}

func TestRecordsIsRestartable(t *testing.T) {
	raw, err := EncodeListing(TailLayout, sampleEntries(), 1)
	if err != nil {
		t.Fatalf("EncodeListing: %v", err)
	}
	seq := Records(TailLayout, raw)

	var first, second []Record
	for r := range seq {
		first = append(first, r)
	}
	for r := range seq {
		second = append(second, r)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("re-walking the same bytes produced a different sequence")
	}

	// stopping early must not disturb the next walk
	for range seq {
		break
	}
	n := 0
	for range seq {
		n++
	}
	if n != len(sampleEntries()) {
		t.Errorf("walk after early break = %d records", n)
	}
}

func TestDecodeTruncated(t *testing.T) {
	entries := sampleEntries()
	for _, layout := range []Layout{TailLayout, LeadingLayout} {
		t.Run(layout.Name(), func(t *testing.T) {
			raw, err := EncodeListing(layout, entries, 1)
			if err != nil {
				t.Fatalf("EncodeListing: %v", err)
			}
			// record boundaries from a full walk
			var ends []int
			for r := range Records(layout, raw) {
				_, next, _, _ := layout.Next(raw, r.Offset)
				ends = append(ends, next)
			}
			for cut := 0; cut < len(raw); cut++ {
				got, err := Decode(layout, raw[:cut])
				if err != nil {
					t.Fatalf("cut %d: unexpected error %v", cut, err)
				}
				want := 0
				for _, end := range ends {
					if end <= cut {
						want++
					}
				}
				if len(got) != want {
					t.Fatalf("cut %d: %d entries, want %d", cut, len(got), want)
				}
			}
		})
	}
}

func TestTailEmptyName(t *testing.T) {
	raw, err := EncodeListing(TailLayout, []FileEntry{{Size: 7}}, 1)
	if err != nil {
		t.Fatalf("EncodeListing: %v", err)
	}
	got, err := Decode(TailLayout, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "" || got[0].Size != 7 {
		t.Errorf("Decode = %+v, want one unnamed entry", got)
	}
}

func TestTailZeroLengthTerminator(t *testing.T) {
	raw, err := EncodeListing(TailLayout, sampleEntries()[:1], 1)
	if err != nil {
		t.Fatalf("EncodeListing: %v", err)
	}
	// replace the 0xFFFF terminator with number 2 and a zero tail length
	raw = append(raw[:len(raw)-2], 0x02, 0x00, 0x00, 0x00)
	got, err := Decode(TailLayout, raw)
	if err != nil || len(got) != 1 {
		t.Errorf("Decode = %d entries, %v; want 1, nil", len(got), err)
	}
}

func TestTailMismatch(t *testing.T) {
	raw, err := EncodeListing(TailLayout, sampleEntries()[:2], 1)
	if err != nil {
		t.Fatalf("EncodeListing: %v", err)
	}
	tailAt := ListingHeaderSize + 4 + tailFixedSize
	binary.BigEndian.PutUint16(raw[tailAt:], 2) // claim 2 bytes of link info

	_, err = Decode(TailLayout, raw)
	if !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("error = %v, want ErrLayoutMismatch", err)
	}

	// a name count larger than the tail
	raw, _ = EncodeListing(TailLayout, sampleEntries()[:1], 1)
	tailLen := int(binary.LittleEndian.Uint16(raw[ListingHeaderSize+2:]))
	binary.BigEndian.PutUint16(raw[tailAt+tailLen-2:], 200)
	if _, err := Decode(TailLayout, raw); !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("error = %v, want ErrLayoutMismatch", err)
	}
}

func TestNewTailLayoutRejectsDrift(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{"short", []Field{{"attr", 2}, {"time", 2}, {"date", 2}, {"size", 4}}},
		{"long", append(append([]Field{}, tailFields...), Field{"extra", 1})},
		{"wide size", []Field{{"attr", 2}, {"reserved1", 4}, {"time", 2}, {"date", 2}, {"reserved2", 2}, {"size", 6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTailLayout(tt.fields); !errors.Is(err, ErrLayoutMismatch) {
				t.Errorf("error = %v, want ErrLayoutMismatch", err)
			}
		})
	}
	if _, err := NewTailLayout(tailFields); err != nil {
		t.Errorf("default fields rejected: %v", err)
	}
}

func TestDropsUndecodableUnits(t *testing.T) {
	raw := []byte{0, 0, 0, 0, 3, 0, 'A', 0, 0x00, 0xDC, 'B', 0}
	raw = append(raw, make([]byte, leadingFixedSize)...)
	got, err := Decode(LeadingLayout, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "AB" {
		t.Errorf("Decode = %+v, want name AB", got)
	}
}

func TestUTF16(t *testing.T) {
	enc, err := EncodeUTF16("Aラ")
	if err != nil {
		t.Fatalf("EncodeUTF16: %v", err)
	}
	if !reflect.DeepEqual(enc, []byte{'A', 0, 0xE9, 0x30}) {
		t.Errorf("EncodeUTF16 = % X", enc)
	}
	if got := DecodeUTF16(enc); got != "Aラ" {
		t.Errorf("DecodeUTF16 = %q", got)
	}
	if got := DecodeUTF16([]byte{'A', 0, 0x00, 0xDC, 'B', 0}); got != "AB" {
		t.Errorf("DecodeUTF16 = %q, want AB", got)
	}
}

func TestLayoutSelection(t *testing.T) {
	if l, err := LayoutByName("TAIL"); err != nil || l != TailLayout {
		t.Errorf("LayoutByName(TAIL) = %v, %v", l, err)
	}
	if _, err := LayoutByName("middle"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("LayoutByName(middle) error = %v", err)
	}
	if LayoutForSeries("iQ-R") != LeadingLayout {
		t.Error("iQ-R should use the leading layout")
	}
	if LayoutForSeries("Q") != TailLayout || LayoutForSeries("L") != TailLayout {
		t.Error("Q/L should use the tail layout")
	}
	if l, _ := ResolveLayout("auto", "iQ-R"); l != LeadingLayout {
		t.Error("auto should follow the series")
	}
	if l, _ := ResolveLayout("tail", "iQ-R"); l != TailLayout {
		t.Error("explicit name should win over the series")
	}
}

func TestDOSTime(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 59, 58, 0, time.UTC)
	date, clock := toDOS(ts)
	if got := fromDOS(date, clock); !got.Equal(ts) {
		t.Errorf("fromDOS(toDOS) = %v, want %v", got, ts)
	}
	if !fromDOS(0, 0x1234).IsZero() {
		t.Error("zero date should decode to the zero time")
	}
	if d, c := toDOS(time.Time{}); d != 0 || c != 0 {
		t.Error("zero time should encode as zero")
	}
}
