package slmp

// SLMP / MC protocol types.
//
// Only the 3E binary frame is supported:
//   request:  0x50 0x00 | network | pc | module I/O (LE) | station | length (LE)
//             | monitoring timer (LE) | command (LE) | subcommand (LE) | data
//   response: 0xD0 0x00 | network | pc | module I/O (LE) | station | length (LE)
//             | end code (LE) | data
//
// The length field counts every byte after itself.

import "time"

// HeaderSize is the fixed 3E header size up to and including the length field.
const HeaderSize = 9

// MinRequestSize is a 3E request with no command data.
const MinRequestSize = HeaderSize + 6

// MinResponseSize is a 3E response carrying only an end code.
const MinResponseSize = HeaderSize + 2

// MaxFrameSize is the largest frame a 16-bit length field can announce.
const MaxFrameSize = HeaderSize + 0xFFFF

// minDataLength is the shortest data part of any frame: a response end code.
const minDataLength = 2

// TimerUnit is the resolution of the 3E monitoring timer.
const TimerUnit = 250 * time.Millisecond

var (
	requestSubheader  = [2]byte{0x50, 0x00}
	responseSubheader = [2]byte{0xD0, 0x00}
)

// Route addresses the station a request is sent to.
type Route struct {
	Network  uint8
	PC       uint8
	ModuleIO uint16
	Station  uint8
}

// DefaultRoute addresses the directly connected CPU.
func DefaultRoute() Route {
	return Route{
		Network:  0x00,
		PC:       0xFF,
		ModuleIO: 0x03FF,
		Station:  0x00,
	}
}

// Command is an SLMP command code.
type Command uint16

const (
	CmdBatchRead       Command = 0x0401
	CmdReadDirectory   Command = 0x1810
	CmdSearchDirectory Command = 0x1811
	CmdOpenFile        Command = 0x1827
	CmdReadFile        Command = 0x1828
	CmdCloseFile       Command = 0x182A
)

// String returns a human-readable name for the command.
func (c Command) String() string {
	switch c {
	case CmdBatchRead:
		return "Batch_Read"
	case CmdReadDirectory:
		return "Read_Directory"
	case CmdSearchDirectory:
		return "Search_Directory"
	case CmdOpenFile:
		return "Open_File"
	case CmdReadFile:
		return "Read_File"
	case CmdCloseFile:
		return "Close_File"
	default:
		return "Unknown"
	}
}

// Subcommands for batch read.
const (
	SubWordQ   uint16 = 0x0000
	SubBitQ    uint16 = 0x0001
	SubWordIQR uint16 = 0x0002
	SubBitIQR  uint16 = 0x0003
)

// Subcommands for the file commands.
const (
	SubFileQ   uint16 = 0x0000
	SubFileIQR uint16 = 0x0040
)

// Point limits for one batch read.
const (
	MaxWordPoints = 960
	MaxBitPoints  = 7168
)

// MaxReadFileSize is the largest payload one Read_File request may ask for.
const MaxReadFileSize = 1920

// Open modes for Open_File.
const (
	OpenModeRead  uint16 = 0x0000
	OpenModeWrite uint16 = 0x0100
)

// Request is a decoded 3E request.
type Request struct {
	Route      Route
	Timer      uint16
	Command    Command
	Subcommand uint16
	Data       []byte
}

// Response is a decoded 3E response.
type Response struct {
	Route   Route
	EndCode uint16
	Data    []byte
}

// Series identifies the CPU family, which selects device and file subcommands.
type Series string

const (
	SeriesQ   Series = "Q"
	SeriesL   Series = "L"
	SeriesIQR Series = "iQ-R"
)

// IsIQR reports whether the series uses the iQ-R extended subcommands.
func (s Series) IsIQR() bool {
	return s == SeriesIQR
}

// FileSubcommand returns the subcommand used for file control commands.
func (s Series) FileSubcommand() uint16 {
	if s.IsIQR() {
		return SubFileIQR
	}
	return SubFileQ
}
