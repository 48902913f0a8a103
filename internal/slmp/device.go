package slmp

// Device code table and device string parsing.
//
// Supported formats:
//   D100    - data register 100 (decimal)
//   ZR2000  - file register 2000 (decimal)
//   X1F     - input 0x1F (hexadecimal)
//   W100    - link register 0x100 (hexadecimal)

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DeviceInfo describes one device type.
type DeviceInfo struct {
	Code   string
	Binary byte // Q/L one-byte code; iQ-R widens it to two bytes
	Hex    bool // numbered in hexadecimal
	Bit    bool // bit device
}

var deviceTable = map[string]DeviceInfo{
	"X":  {Code: "X", Binary: 0x9C, Hex: true, Bit: true},
	"Y":  {Code: "Y", Binary: 0x9D, Hex: true, Bit: true},
	"M":  {Code: "M", Binary: 0x90, Bit: true},
	"L":  {Code: "L", Binary: 0x92, Bit: true},
	"F":  {Code: "F", Binary: 0x93, Bit: true},
	"B":  {Code: "B", Binary: 0xA0, Hex: true, Bit: true},
	"SM": {Code: "SM", Binary: 0x91, Bit: true},
	"D":  {Code: "D", Binary: 0xA8},
	"W":  {Code: "W", Binary: 0xB4, Hex: true},
	"R":  {Code: "R", Binary: 0xAF},
	"ZR": {Code: "ZR", Binary: 0xB0},
	"SD": {Code: "SD", Binary: 0xA9},
}

// Device codes ordered longest first so "ZR" wins over "R" style prefixes.
var deviceCodes = func() []string {
	codes := make([]string, 0, len(deviceTable))
	for code := range deviceTable {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if len(codes[i]) != len(codes[j]) {
			return len(codes[i]) > len(codes[j])
		}
		return codes[i] < codes[j]
	})
	return codes
}()

// LookupDevice returns the table entry for a device code.
func LookupDevice(code string) (DeviceInfo, bool) {
	info, ok := deviceTable[strings.ToUpper(code)]
	return info, ok
}

// ParseDevice splits a device string into its code and number.
func ParseDevice(s string) (string, uint32, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", 0, fmt.Errorf("empty device")
	}
	for _, code := range deviceCodes {
		if !strings.HasPrefix(s, code) {
			continue
		}
		digits := s[len(code):]
		if digits == "" {
			return "", 0, fmt.Errorf("missing device number in %q", s)
		}
		base := 10
		if deviceTable[code].Hex {
			base = 16
		}
		n, err := strconv.ParseUint(digits, base, 32)
		if err != nil {
			return "", 0, fmt.Errorf("invalid device number in %q: %w", s, err)
		}
		return code, uint32(n), nil
	}
	return "", 0, fmt.Errorf("unknown device code in %q", s)
}

// FormatDevice renders a device in its native notation.
func FormatDevice(code string, number uint32) string {
	info, ok := LookupDevice(code)
	if ok && info.Hex {
		return fmt.Sprintf("%s%X", info.Code, number)
	}
	return fmt.Sprintf("%s%d", strings.ToUpper(code), number)
}

// appendDevice encodes a head device in the series-specific layout.
func appendDevice(buf []byte, series Series, code string, number uint32) ([]byte, error) {
	info, ok := LookupDevice(code)
	if !ok {
		return nil, fmt.Errorf("unknown device code %q", code)
	}
	if series.IsIQR() {
		buf = binary.LittleEndian.AppendUint32(buf, number)
		return binary.LittleEndian.AppendUint16(buf, uint16(info.Binary)), nil
	}
	if number > 0xFFFFFF {
		return nil, fmt.Errorf("device number %d exceeds 24 bits", number)
	}
	buf = append(buf, byte(number), byte(number>>8), byte(number>>16))
	return append(buf, info.Binary), nil
}

// decodeDevice is the inverse of appendDevice and returns the bytes consumed.
func decodeDevice(data []byte, series Series) (DeviceInfo, uint32, int, error) {
	size := 4
	if series.IsIQR() {
		size = 6
	}
	if len(data) < size {
		return DeviceInfo{}, 0, 0, errTooShort("device spec", len(data), size)
	}
	var number uint32
	var binCode byte
	if series.IsIQR() {
		number = binary.LittleEndian.Uint32(data[0:4])
		binCode = byte(binary.LittleEndian.Uint16(data[4:6]))
	} else {
		number = uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
		binCode = data[3]
	}
	for _, info := range deviceTable {
		if info.Binary == binCode {
			return info, number, size, nil
		}
	}
	return DeviceInfo{}, 0, 0, fmt.Errorf("unknown binary device code 0x%02X", binCode)
}
