package mc

// Structured errors for MC protocol operations.

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed operation.
type Kind int

const (
	KindGeneric Kind = iota
	KindFileNotFound
	KindDriveNotFound
	KindAccessDenied
	KindUnsupportedCommand
	KindUnsupportedDevice
	KindInvalidArgument
	KindTransport
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFileNotFound:
		return "file not found"
	case KindDriveNotFound:
		return "drive not found"
	case KindAccessDenied:
		return "access denied"
	case KindUnsupportedCommand:
		return "unsupported command"
	case KindUnsupportedDevice:
		return "unsupported device"
	case KindInvalidArgument:
		return "invalid argument"
	case KindTransport:
		return "transport error"
	default:
		return "device error"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrGeneric            = errors.New("mc: device error")
	ErrFileNotFound       = errors.New("mc: file not found")
	ErrDriveNotFound      = errors.New("mc: drive not found")
	ErrAccessDenied       = errors.New("mc: access denied")
	ErrUnsupportedCommand = errors.New("mc: unsupported command")
	ErrUnsupportedDevice  = errors.New("mc: unsupported device")
	ErrInvalidArgument    = errors.New("mc: invalid argument")
	ErrTransport          = errors.New("mc: transport error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindFileNotFound:
		return ErrFileNotFound
	case KindDriveNotFound:
		return ErrDriveNotFound
	case KindAccessDenied:
		return ErrAccessDenied
	case KindUnsupportedCommand:
		return ErrUnsupportedCommand
	case KindUnsupportedDevice:
		return ErrUnsupportedDevice
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindTransport:
		return ErrTransport
	default:
		return ErrGeneric
	}
}

// End codes with a dedicated kind.
const (
	EndCodeFileNotFound       uint16 = 0xC051
	EndCodeDriveNotFound      uint16 = 0xC052
	EndCodeAccessDenied       uint16 = 0xC053
	EndCodeUnsupportedCommand uint16 = 0xC059
)

// Error is the error type returned by every operation in this package.
type Error struct {
	Kind Kind
	Code uint16 // device end code, zero for local and transport failures
	Op   string
	Err  error

	timeout bool
}

func (e *Error) Error() string {
	msg := "mc: "
	if e.Op != "" {
		msg += e.Op + ": "
	}
	msg += e.Kind.String()
	if e.Code != 0 {
		msg += fmt.Sprintf(" (end code 0x%04X)", e.Code)
	}
	if e.Err != nil && e.Code == 0 {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Timeout reports whether a transport failure was a deadline.
func (e *Error) Timeout() bool {
	return e.timeout
}

// Classify maps a device end code to an error. Zero means success and
// returns nil.
func Classify(code uint16) *Error {
	if code == 0 {
		return nil
	}
	kind := KindGeneric
	switch code {
	case EndCodeFileNotFound:
		kind = KindFileNotFound
	case EndCodeDriveNotFound:
		kind = KindDriveNotFound
	case EndCodeAccessDenied:
		kind = KindAccessDenied
	case EndCodeUnsupportedCommand:
		kind = KindUnsupportedCommand
	}
	return &Error{Kind: kind, Code: code}
}

// endCoder is implemented by transport errors that carry a device end code.
type endCoder interface {
	EndCode() uint16
}

// ClassifyErr turns an error from a Conn or Dialer into an *Error.
func ClassifyErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var mcErr *Error
	if errors.As(err, &mcErr) {
		if mcErr.Op == "" {
			cp := *mcErr
			cp.Op = op
			return &cp
		}
		return mcErr
	}
	var ec endCoder
	if errors.As(err, &ec) && ec.EndCode() != 0 {
		e := Classify(ec.EndCode())
		e.Op = op
		e.Err = err
		return e
	}
	return &Error{Kind: KindTransport, Op: op, Err: err, timeout: isTimeout(err)}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func invalidArgument(op, format string, v ...interface{}) *Error {
	return &Error{Kind: KindInvalidArgument, Op: op, Err: fmt.Errorf(format, v...)}
}

// KindOf returns the kind of err, or KindGeneric when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneric
}
