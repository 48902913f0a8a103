package mc

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tturner/mcgw/internal/logging"
)

// DeviceKind says whether a device is read in words or bits.
type DeviceKind int

const (
	DeviceWord DeviceKind = iota
	DeviceBit
)

func (k DeviceKind) String() string {
	if k == DeviceBit {
		return "bit"
	}
	return "word"
}

// Point limits for one batch read.
const (
	MaxWordPoints = 960
	MaxBitPoints  = 7168
)

// deviceKinds lists the device codes this reader accepts.
var deviceKinds = map[string]DeviceKind{
	"D":  DeviceWord,
	"W":  DeviceWord,
	"R":  DeviceWord,
	"ZR": DeviceWord,
	"X":  DeviceBit,
	"Y":  DeviceBit,
	"M":  DeviceBit,
}

// hexDevices are numbered in hexadecimal.
var hexDevices = map[string]bool{"X": true, "Y": true, "W": true}

// DeviceAddress is a validated head device and point count.
type DeviceAddress struct {
	Kind    DeviceKind
	Code    string
	Address uint32
	Length  uint32
}

// String renders the head device in its native notation.
func (d DeviceAddress) String() string {
	if hexDevices[d.Code] {
		return d.Code + strings.ToUpper(strconv.FormatUint(uint64(d.Address), 16))
	}
	return d.Code + strconv.FormatUint(uint64(d.Address), 10)
}

// deviceOrder tries two-letter codes first so "ZR" is not read as "R".
var deviceOrder = []string{"ZR", "D", "W", "R", "X", "Y", "M"}

// ParseDevice parses a device such as "D100" or "Y20" with a point count.
func ParseDevice(device string, length uint32) (DeviceAddress, error) {
	s := strings.ToUpper(strings.TrimSpace(device))
	for _, code := range deviceOrder {
		if strings.HasPrefix(s, code) {
			return NewDeviceAddress(code, s[len(code):], length)
		}
	}
	code := strings.TrimRightFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	return DeviceAddress{}, &Error{Kind: KindUnsupportedDevice, Op: "read", Err: unsupportedDeviceError(code)}
}

// NewDeviceAddress builds an address from a device code and the number as
// written on the device (hex for X, Y and W).
func NewDeviceAddress(code, number string, length uint32) (DeviceAddress, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	kind, ok := deviceKinds[code]
	if !ok {
		return DeviceAddress{}, &Error{Kind: KindUnsupportedDevice, Op: "read",
			Err: unsupportedDeviceError(code)}
	}
	base := 10
	if hexDevices[code] {
		base = 16
	}
	addr, err := strconv.ParseUint(strings.TrimSpace(number), base, 32)
	if err != nil {
		return DeviceAddress{}, invalidArgument("read", "invalid %s device number %q", code, number)
	}
	d := DeviceAddress{Kind: kind, Code: code, Address: uint32(addr), Length: length}
	if err := d.validate(); err != nil {
		return DeviceAddress{}, err
	}
	return d, nil
}

func (d DeviceAddress) validate() error {
	limit := uint32(MaxWordPoints)
	if d.Kind == DeviceBit {
		limit = MaxBitPoints
	}
	if d.Length < 1 || d.Length > limit {
		return invalidArgument("read", "%s length %d out of range (1-%d)", d.Kind, d.Length, limit)
	}
	return nil
}

type unsupportedDeviceError string

func (e unsupportedDeviceError) Error() string {
	return "device " + strconv.Quote(string(e)) + " is not one of D, W, R, ZR, X, Y, M"
}

// DeviceReader reads device values, one connection per call.
type DeviceReader struct {
	Dialer Dialer
	Logger *logging.Logger
}

// Read returns exactly d.Length values. Bits read as 0 or 1.
func (r *DeviceReader) Read(ctx context.Context, d DeviceAddress) (values []int, err error) {
	if _, ok := deviceKinds[d.Code]; !ok {
		return nil, &Error{Kind: KindUnsupportedDevice, Op: "read", Err: unsupportedDeviceError(d.Code)}
	}
	if err := d.validate(); err != nil {
		return nil, err
	}

	conn, err := dial(ctx, r.Dialer, "read")
	if err != nil {
		return nil, err
	}
	defer closeConn(conn, r.Logger)

	switch d.Kind {
	case DeviceBit:
		bits, err := conn.BatchReadBits(ctx, d.Code, d.Address, uint16(d.Length))
		if err != nil {
			return nil, ClassifyErr("read", err)
		}
		values = make([]int, 0, len(bits))
		for _, b := range bits {
			if b {
				values = append(values, 1)
			} else {
				values = append(values, 0)
			}
		}
	default:
		words, err := conn.BatchReadWords(ctx, d.Code, d.Address, uint16(d.Length))
		if err != nil {
			return nil, ClassifyErr("read", err)
		}
		values = make([]int, 0, len(words))
		for _, w := range words {
			values = append(values, int(w))
		}
	}

	if len(values) != int(d.Length) {
		return nil, &Error{Kind: KindGeneric, Op: "read",
			Err: fmt.Errorf("device returned %d values, want %d", len(values), d.Length)}
	}
	r.Logger.Verbose("read %s x%d: %d values", d, d.Length, len(values))
	return values, nil
}

func closeConn(conn Conn, logger *logging.Logger) {
	if err := conn.Close(); err != nil {
		logger.Verbose("close connection: %v", err)
	}
}
