package slmp

import (
	"errors"
	"fmt"
)

var (
	// ErrShortFrame reports a buffer smaller than the frame it claims to hold.
	ErrShortFrame = errors.New("slmp: short frame")
	// ErrSubheader reports an unexpected 3E subheader.
	ErrSubheader = errors.New("slmp: unexpected subheader")
	// ErrSubcommand reports a subcommand the command does not accept.
	ErrSubcommand = errors.New("slmp: unsupported subcommand")
	// ErrNotConnected is returned by exchanges on a closed client.
	ErrNotConnected = errors.New("slmp: not connected")
)

// EndCodeError is returned when the device answers with a non-zero end code.
type EndCodeError struct {
	Command    Command
	Subcommand uint16
	Code       uint16
}

func (e *EndCodeError) Error() string {
	return fmt.Sprintf("slmp: %s (0x%04X/0x%04X) end code 0x%04X",
		e.Command, uint16(e.Command), e.Subcommand, e.Code)
}

// EndCode returns the device end code.
func (e *EndCodeError) EndCode() uint16 {
	return e.Code
}

func errTooShort(what string, got, need int) error {
	return fmt.Errorf("%w: %s %d bytes (minimum %d)", ErrShortFrame, what, got, need)
}
