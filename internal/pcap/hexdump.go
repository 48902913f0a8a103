package pcap

// Hex dump utilities for captured frames

import (
	"fmt"
	"strings"

	"github.com/tturner/mcgw/internal/slmp"
)

// HexDump creates a hex dump of packet data
func HexDump(data []byte, width int) string {
	if width <= 0 {
		width = 16
	}

	var sb strings.Builder
	for i := 0; i < len(data); i += width {
		// Offset
		sb.WriteString(fmt.Sprintf("%04x: ", i))

		// Hex bytes
		for j := 0; j < width; j++ {
			if i+j < len(data) {
				sb.WriteString(fmt.Sprintf("%02x ", data[i+j]))
			} else {
				sb.WriteString("   ")
			}
		}

		// ASCII representation
		sb.WriteString(" |")
		for j := 0; j < width && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 32 && b < 127 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}

	return sb.String()
}

// FormatFrameHex formats a 3E frame as hex, optionally split into the
// header, the timer/end code and the command data.
func FormatFrameHex(data []byte, annotate bool) string {
	if !annotate {
		var sb strings.Builder
		for i, b := range data {
			if i > 0 && i%16 == 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("%02x ", b))
		}
		return sb.String()
	}

	if len(data) < slmp.HeaderSize+2 {
		return HexDump(data, 16)
	}

	var sb strings.Builder
	sb.WriteString("3E Header (9 bytes):\n")
	sb.WriteString(HexDump(data[:slmp.HeaderSize], 16))
	body := data[slmp.HeaderSize:]
	if slmp.IsRequestFrame(data) && len(body) >= 6 {
		sb.WriteString("\nTimer, Command, Subcommand:\n")
		sb.WriteString(HexDump(body[:6], 16))
		body = body[6:]
	} else {
		sb.WriteString("\nEnd Code:\n")
		sb.WriteString(HexDump(body[:2], 16))
		body = body[2:]
	}
	if len(body) > 0 {
		sb.WriteString("\nData:\n")
		sb.WriteString(HexDump(body, 16))
	}
	return sb.String()
}
