package slmp

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildBatchReadSubcommands(t *testing.T) {
	tests := []struct {
		name   string
		series Series
		bits   bool
		want   uint16
	}{
		{"Q word", SeriesQ, false, SubWordQ},
		{"Q bit", SeriesQ, true, SubBitQ},
		{"L word", SeriesL, false, SubWordQ},
		{"iQ-R word", SeriesIQR, false, SubWordIQR},
		{"iQ-R bit", SeriesIQR, true, SubBitIQR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, data, err := BuildBatchRead(tt.series, "D", 100, 3, tt.bits)
			if err != nil {
				t.Fatalf("BuildBatchRead: %v", err)
			}
			if sub != tt.want {
				t.Errorf("subcommand = 0x%04X, want 0x%04X", sub, tt.want)
			}
			req, err := DecodeBatchReadRequest(sub, data)
			if err != nil {
				t.Fatalf("DecodeBatchReadRequest: %v", err)
			}
			if req.Device.Code != "D" || req.Number != 100 || req.Points != 3 || req.Bits != tt.bits {
				t.Errorf("decoded = %+v", req)
			}
		})
	}
}

func TestBuildBatchReadLimits(t *testing.T) {
	if _, _, err := BuildBatchRead(SeriesQ, "D", 0, 0, false); err == nil {
		t.Error("expected error for zero points")
	}
	if _, _, err := BuildBatchRead(SeriesQ, "D", 0, MaxWordPoints+1, false); err == nil {
		t.Error("expected error above word limit")
	}
	if _, _, err := BuildBatchRead(SeriesQ, "M", 0, MaxWordPoints+1, true); err != nil {
		t.Errorf("bit read above word limit should be accepted: %v", err)
	}
}

func TestDecodeBatchReadRequestErrors(t *testing.T) {
	_, data, err := BuildBatchRead(SeriesQ, "D", 100, 1, false)
	if err != nil {
		t.Fatalf("BuildBatchRead: %v", err)
	}
	if _, err := DecodeBatchReadRequest(0x0005, data); !errors.Is(err, ErrSubcommand) {
		t.Errorf("unknown subcommand error = %v, want ErrSubcommand", err)
	}
	_, err = DecodeBatchReadRequest(SubWordQ, data[:2])
	if err == nil || errors.Is(err, ErrSubcommand) {
		t.Errorf("truncated body error = %v, want a non-subcommand error", err)
	}
}

func TestBitData(t *testing.T) {
	bits := []bool{true, false, false, true, true}
	data := EncodeBitData(bits)
	if want := []byte{0x10, 0x01, 0x10}; !bytes.Equal(data, want) {
		t.Fatalf("EncodeBitData = % X, want % X", data, want)
	}
	got, err := ParseBitData(data, uint16(len(bits)))
	if err != nil {
		t.Fatalf("ParseBitData: %v", err)
	}
	for i := range bits {
		if got[i] != bits[i] {
			t.Errorf("bit %d = %v, want %v", i, got[i], bits[i])
		}
	}
	if _, err := ParseBitData(data, 7); err == nil {
		t.Error("expected short data error")
	}
}

func TestWordData(t *testing.T) {
	words := []uint16{0x1234, 0xFFFF, 0}
	got, err := ParseWordData(EncodeWordData(words), 3)
	if err != nil {
		t.Fatalf("ParseWordData: %v", err)
	}
	for i := range words {
		if got[i] != words[i] {
			t.Errorf("word %d = 0x%04X, want 0x%04X", i, got[i], words[i])
		}
	}
	if _, err := ParseWordData([]byte{1}, 1); err == nil {
		t.Error("expected short data error")
	}
}

func TestListDirectoryRoundTrip(t *testing.T) {
	data, err := BuildListDirectory(4, 256, 256, `$MELPRJ$`)
	if err != nil {
		t.Fatalf("BuildListDirectory: %v", err)
	}
	req, err := DecodeListDirectoryRequest(data)
	if err != nil {
		t.Fatalf("DecodeListDirectoryRequest: %v", err)
	}
	if req.Drive != 4 || req.Start != 256 || req.Count != 256 || req.Path != `$MELPRJ$` {
		t.Errorf("decoded = %+v", req)
	}

	count, raw, err := ParseListDirectory(EncodeListDirectory(3, []byte{9, 9}))
	if err != nil {
		t.Fatalf("ParseListDirectory: %v", err)
	}
	if count != 3 || !bytes.Equal(raw, []byte{9, 9}) {
		t.Errorf("ParseListDirectory = %d % X", count, raw)
	}
}

func TestSearchRoundTrip(t *testing.T) {
	data, err := BuildSearchFile(2, "MAIN.PRG", `\PROG`)
	if err != nil {
		t.Fatalf("BuildSearchFile: %v", err)
	}
	req, err := DecodeSearchRequest(data)
	if err != nil {
		t.Fatalf("DecodeSearchRequest: %v", err)
	}
	if req.Drive != 2 || req.Filename != "MAIN.PRG" || req.Path != `\PROG` {
		t.Errorf("decoded = %+v", req)
	}
}

func TestOpenReadCloseRoundTrip(t *testing.T) {
	data, err := BuildOpenFile(4, "ラダー.PRG", OpenModeRead)
	if err != nil {
		t.Fatalf("BuildOpenFile: %v", err)
	}
	open, err := DecodeOpenRequest(data)
	if err != nil {
		t.Fatalf("DecodeOpenRequest: %v", err)
	}
	if open.Drive != 4 || open.Mode != OpenModeRead || open.Filename != "ラダー.PRG" {
		t.Errorf("open = %+v", open)
	}

	read, err := DecodeReadRequest(BuildReadFile(7, 3840, 1920))
	if err != nil {
		t.Fatalf("DecodeReadRequest: %v", err)
	}
	if read.Handle != 7 || read.Offset != 3840 || read.Size != 1920 {
		t.Errorf("read = %+v", read)
	}

	payload, err := ParseReadFile(EncodeReadFile([]byte("abc")))
	if err != nil || string(payload) != "abc" {
		t.Errorf("ParseReadFile = %q, %v", payload, err)
	}
	if _, err := ParseReadFile([]byte{5, 0, 1}); err == nil {
		t.Error("expected error for truncated read response")
	}

	handle, err := DecodeCloseRequest(BuildCloseFile(7))
	if err != nil || handle != 7 {
		t.Errorf("DecodeCloseRequest = %d, %v", handle, err)
	}
}

func TestStringField(t *testing.T) {
	buf, err := appendString(nil, "AB")
	if err != nil {
		t.Fatalf("appendString: %v", err)
	}
	if !bytes.Equal(buf, []byte{2, 0, 'A', 0, 'B', 0}) {
		t.Errorf("appendString = % X", buf)
	}
	// lone low surrogate is dropped
	got, n, err := readString([]byte{3, 0, 'A', 0, 0x00, 0xDC, 'B', 0, 0xFF})
	if err != nil || got != "AB" || n != 8 {
		t.Errorf("readString = %q, %d, %v", got, n, err)
	}
	if _, _, err := readString([]byte{4, 0, 'A', 0}); err == nil {
		t.Error("expected error for truncated string")
	}
}
