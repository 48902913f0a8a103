package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tturner/mcgw/internal/mc"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// Wrap picks the wrapper that fits err. Device errors and local validation
// failures get operation hints; everything else is treated as a network
// problem with host:port.
func Wrap(err error, operation, host string, port int) error {
	if err == nil {
		return nil
	}
	var ufe UserFriendlyError
	if errors.As(err, &ufe) {
		return err
	}
	var e *mc.Error
	if errors.As(err, &e) && e.Kind != mc.KindTransport {
		return WrapEndCodeError(err, operation)
	}
	return WrapNetworkError(err, host, port)
}

// WrapNetworkError wraps network errors with user-friendly context
func WrapNetworkError(err error, host string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with PLC at %s:%d", host, port),
		Reason:  extractNetworkReason(err),
		Hint:    "The CPU or Ethernet module may not have an SLMP/MC protocol (3E binary) port open",
		Try:     fmt.Sprintf("mcgw read D0:1 --host %s --port %d", host, port),
		Err:     err,
	}
}

// WrapEndCodeError wraps device end codes and local validation failures
func WrapEndCodeError(err error, operation string) error {
	if err == nil {
		return nil
	}

	ufe := UserFriendlyError{
		Message: fmt.Sprintf("PLC operation failed: %s", operation),
		Err:     err,
	}
	var e *mc.Error
	if errors.As(err, &e) && e.Code != 0 {
		ufe.Reason = fmt.Sprintf("Device returned end code 0x%04X (%s)", e.Code, e.Kind)
	} else {
		ufe.Reason = mc.KindOf(err).String()
	}

	switch mc.KindOf(err) {
	case mc.KindFileNotFound:
		ufe.Hint = "File names are matched as NAME.EXT; the default search path is $MELPRJ$"
		ufe.Try = "mcgw ls --path '\\' to list the drive root"
	case mc.KindDriveNotFound:
		ufe.Hint = "Drive numbers depend on the CPU (iQ-R: 0 program memory, 2 SD card, 4 data memory)"
		ufe.Try = "mcgw ls --drive 4"
	case mc.KindAccessDenied:
		ufe.Hint = "The file may be locked by the engineering tool or protected by a password"
	case mc.KindUnsupportedCommand:
		ufe.Hint = "The CPU series may not support this command or subcommand"
		ufe.Try = "Set plc.series (Q, L or iQ-R) to match the connected CPU"
	case mc.KindUnsupportedDevice:
		ufe.Hint = "Supported devices are D, W, R, ZR (words) and X, Y, M (bits); X, Y and W are hexadecimal"
	case mc.KindInvalidArgument:
		ufe.Hint = "Check the point count (1-960 words, 1-7168 bits) or chunk size (1-1920 bytes)"
	default:
		ufe.Hint = "See the CPU manual for the meaning of this end code"
	}
	return ufe
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Every key can also be set from the environment, e.g. MCGW_PLC_HOST",
		Try:     fmt.Sprintf("Write a fresh default config: mcgw config init --config %s", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	var e *mc.Error
	if errors.As(err, &e) && e.Timeout() {
		return "Connection timeout - PLC may be offline or the monitoring timer too short"
	}

	errStr := err.Error()

	// Common network error patterns
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timeout - PLC may be offline or unreachable"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - PLC may not be listening on this port"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or PLC unreachable"
	}
	if strings.Contains(errStr, "connection reset") {
		return "Connection reset - PLC closed the connection unexpectedly"
	}
	if strings.Contains(errStr, "subheader") || strings.Contains(errStr, "short frame") {
		return "Received a frame that is not a 3E binary response"
	}

	return "Network communication failed"
}
