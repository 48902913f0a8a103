package slmp

// Request builders and response parsers for the supported commands.
// The Decode*Request helpers are the server-side inverse used by the emulator.

import (
	"encoding/binary"
	"fmt"

	"github.com/tturner/mcgw/internal/mc"
)

// BatchReadRequest is the decoded body of a 0x0401 request.
type BatchReadRequest struct {
	Device DeviceInfo
	Number uint32
	Points uint16
	Bits   bool
}

// BuildBatchRead returns the subcommand and body for a batch read.
func BuildBatchRead(series Series, code string, number uint32, points uint16, bits bool) (uint16, []byte, error) {
	limit := MaxWordPoints
	if bits {
		limit = MaxBitPoints
	}
	if points == 0 || int(points) > limit {
		return 0, nil, fmt.Errorf("point count %d out of range (1-%d)", points, limit)
	}
	sub := SubWordQ
	switch {
	case bits && series.IsIQR():
		sub = SubBitIQR
	case bits:
		sub = SubBitQ
	case series.IsIQR():
		sub = SubWordIQR
	}
	data, err := appendDevice(nil, series, code, number)
	if err != nil {
		return 0, nil, err
	}
	return sub, binary.LittleEndian.AppendUint16(data, points), nil
}

// DecodeBatchReadRequest parses a 0x0401 body.
func DecodeBatchReadRequest(sub uint16, data []byte) (BatchReadRequest, error) {
	var series Series = SeriesQ
	bits := false
	switch sub {
	case SubWordQ:
	case SubBitQ:
		bits = true
	case SubWordIQR:
		series = SeriesIQR
	case SubBitIQR:
		series, bits = SeriesIQR, true
	default:
		return BatchReadRequest{}, fmt.Errorf("%w: batch read 0x%04X", ErrSubcommand, sub)
	}
	info, number, n, err := decodeDevice(data, series)
	if err != nil {
		return BatchReadRequest{}, err
	}
	if len(data) < n+2 {
		return BatchReadRequest{}, errTooShort("batch read request", len(data), n+2)
	}
	return BatchReadRequest{
		Device: info,
		Number: number,
		Points: binary.LittleEndian.Uint16(data[n : n+2]),
		Bits:   bits,
	}, nil
}

// ParseWordData decodes little-endian words from a batch read response.
func ParseWordData(data []byte, points uint16) ([]uint16, error) {
	need := int(points) * 2
	if len(data) < need {
		return nil, errTooShort("word data", len(data), need)
	}
	words := make([]uint16, points)
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return words, nil
}

// EncodeWordData is the inverse of ParseWordData.
func EncodeWordData(words []uint16) []byte {
	buf := make([]byte, 0, len(words)*2)
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint16(buf, w)
	}
	return buf
}

// ParseBitData decodes nibble-packed bits: the high nibble of each byte holds
// the even point and the low nibble the odd point.
func ParseBitData(data []byte, points uint16) ([]bool, error) {
	need := (int(points) + 1) / 2
	if len(data) < need {
		return nil, errTooShort("bit data", len(data), need)
	}
	bits := make([]bool, points)
	for i := range bits {
		b := data[i/2]
		if i%2 == 0 {
			bits[i] = b&0x10 != 0
		} else {
			bits[i] = b&0x01 != 0
		}
	}
	return bits, nil
}

// EncodeBitData is the inverse of ParseBitData.
func EncodeBitData(bits []bool) []byte {
	buf := make([]byte, (len(bits)+1)/2)
	for i, on := range bits {
		if !on {
			continue
		}
		if i%2 == 0 {
			buf[i/2] |= 0x10
		} else {
			buf[i/2] |= 0x01
		}
	}
	return buf
}

// ListDirectoryRequest is the decoded body of a 0x1810 request.
type ListDirectoryRequest struct {
	Drive uint16
	Start uint32
	Count uint16
	Path  string
}

// BuildListDirectory encodes a 0x1810 body.
func BuildListDirectory(drive uint16, start uint32, count uint16, path string) ([]byte, error) {
	buf := make([]byte, 4, 16+len(path)*2)
	buf = binary.LittleEndian.AppendUint16(buf, drive)
	buf = binary.LittleEndian.AppendUint32(buf, start)
	buf = binary.LittleEndian.AppendUint16(buf, count)
	return appendString(buf, path)
}

// DecodeListDirectoryRequest parses a 0x1810 body.
func DecodeListDirectoryRequest(data []byte) (ListDirectoryRequest, error) {
	if len(data) < 14 {
		return ListDirectoryRequest{}, errTooShort("directory request", len(data), 14)
	}
	path, _, err := readString(data[12:])
	if err != nil {
		return ListDirectoryRequest{}, err
	}
	return ListDirectoryRequest{
		Drive: binary.LittleEndian.Uint16(data[4:6]),
		Start: binary.LittleEndian.Uint32(data[6:10]),
		Count: binary.LittleEndian.Uint16(data[10:12]),
		Path:  path,
	}, nil
}

// ParseListDirectory splits a 0x1810 response into the returned entry count
// and the raw listing.
func ParseListDirectory(data []byte) (int, []byte, error) {
	if len(data) < 2 {
		return 0, nil, errTooShort("directory response", len(data), 2)
	}
	return int(binary.LittleEndian.Uint16(data[0:2])), data[2:], nil
}

// EncodeListDirectory is the inverse of ParseListDirectory.
func EncodeListDirectory(count int, raw []byte) []byte {
	buf := binary.LittleEndian.AppendUint16(make([]byte, 0, 2+len(raw)), uint16(count))
	return append(buf, raw...)
}

// SearchRequest is the decoded body of a 0x1811 request.
type SearchRequest struct {
	Drive    uint16
	Filename string
	Path     string
}

// BuildSearchFile encodes a 0x1811 body.
func BuildSearchFile(drive uint16, filename, path string) ([]byte, error) {
	buf := make([]byte, 4, 10+len(filename)*2+len(path)*2)
	buf = binary.LittleEndian.AppendUint16(buf, drive)
	buf, err := appendString(buf, filename)
	if err != nil {
		return nil, err
	}
	return appendString(buf, path)
}

// DecodeSearchRequest parses a 0x1811 body.
func DecodeSearchRequest(data []byte) (SearchRequest, error) {
	if len(data) < 8 {
		return SearchRequest{}, errTooShort("search request", len(data), 8)
	}
	name, n, err := readString(data[6:])
	if err != nil {
		return SearchRequest{}, err
	}
	path, _, err := readString(data[6+n:])
	if err != nil {
		return SearchRequest{}, err
	}
	return SearchRequest{
		Drive:    binary.LittleEndian.Uint16(data[4:6]),
		Filename: name,
		Path:     path,
	}, nil
}

// OpenRequest is the decoded body of a 0x1827 request.
type OpenRequest struct {
	Mode     uint16
	Drive    uint16
	Filename string
}

// BuildOpenFile encodes a 0x1827 body with an empty password.
func BuildOpenFile(drive uint16, filename string, mode uint16) ([]byte, error) {
	buf := make([]byte, 2, 10+len(filename)*2)
	buf = binary.LittleEndian.AppendUint16(buf, mode)
	buf = binary.LittleEndian.AppendUint16(buf, drive)
	return appendString(buf, filename)
}

// DecodeOpenRequest parses a 0x1827 body.
func DecodeOpenRequest(data []byte) (OpenRequest, error) {
	if len(data) < 2 {
		return OpenRequest{}, errTooShort("open request", len(data), 2)
	}
	pw := int(binary.LittleEndian.Uint16(data[0:2])) * 2
	rest := data[2:]
	if len(rest) < pw+4 {
		return OpenRequest{}, errTooShort("open request", len(data), 2+pw+4)
	}
	rest = rest[pw:]
	name, _, err := readString(rest[4:])
	if err != nil {
		return OpenRequest{}, err
	}
	return OpenRequest{
		Mode:     binary.LittleEndian.Uint16(rest[0:2]),
		Drive:    binary.LittleEndian.Uint16(rest[2:4]),
		Filename: name,
	}, nil
}

// ParseOpenFile returns the file pointer from a 0x1827 response.
func ParseOpenFile(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, errTooShort("open response", len(data), 2)
	}
	return binary.LittleEndian.Uint16(data[0:2]), nil
}

// ReadRequest is the decoded body of a 0x1828 request.
type ReadRequest struct {
	Handle uint16
	Offset uint32
	Size   uint16
}

// BuildReadFile encodes a 0x1828 body.
func BuildReadFile(handle uint16, offset uint32, size uint16) []byte {
	buf := binary.LittleEndian.AppendUint16(make([]byte, 0, 8), handle)
	buf = binary.LittleEndian.AppendUint32(buf, offset)
	return binary.LittleEndian.AppendUint16(buf, size)
}

// DecodeReadRequest parses a 0x1828 body.
func DecodeReadRequest(data []byte) (ReadRequest, error) {
	if len(data) < 8 {
		return ReadRequest{}, errTooShort("read request", len(data), 8)
	}
	return ReadRequest{
		Handle: binary.LittleEndian.Uint16(data[0:2]),
		Offset: binary.LittleEndian.Uint32(data[2:6]),
		Size:   binary.LittleEndian.Uint16(data[6:8]),
	}, nil
}

// ParseReadFile returns the payload of a 0x1828 response.
func ParseReadFile(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, errTooShort("read response", len(data), 2)
	}
	n := int(binary.LittleEndian.Uint16(data[0:2]))
	if len(data) < 2+n {
		return nil, errTooShort("read response", len(data), 2+n)
	}
	return cloneBytes(data[2 : 2+n]), nil
}

// EncodeReadFile is the inverse of ParseReadFile.
func EncodeReadFile(payload []byte) []byte {
	buf := binary.LittleEndian.AppendUint16(make([]byte, 0, 2+len(payload)), uint16(len(payload)))
	return append(buf, payload...)
}

// BuildCloseFile encodes a 0x182A body closing one file pointer.
func BuildCloseFile(handle uint16) []byte {
	buf := binary.LittleEndian.AppendUint16(make([]byte, 0, 4), handle)
	return binary.LittleEndian.AppendUint16(buf, 0)
}

// DecodeCloseRequest returns the file pointer of a 0x182A body.
func DecodeCloseRequest(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, errTooShort("close request", len(data), 2)
	}
	return binary.LittleEndian.Uint16(data[0:2]), nil
}

// appendString writes a character count followed by UTF-16LE text.
func appendString(buf []byte, s string) ([]byte, error) {
	enc, err := mc.EncodeUTF16(s)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", s, err)
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(enc)/2))
	return append(buf, enc...), nil
}

// readString is the inverse of appendString and returns the bytes consumed.
func readString(data []byte) (string, int, error) {
	if len(data) < 2 {
		return "", 0, errTooShort("string length", len(data), 2)
	}
	n := int(binary.LittleEndian.Uint16(data[0:2])) * 2
	if len(data) < 2+n {
		return "", 0, errTooShort("string", len(data), 2+n)
	}
	return mc.DecodeUTF16(data[2 : 2+n]), 2 + n, nil
}
