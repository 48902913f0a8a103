package pcap

// Capture file access. Both classic pcap and pcapng are read with the pure-Go
// readers from gopacket/pcapgo, so no libpcap is needed.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// packetReader is implemented by pcapgo.Reader and pcapgo.NgReader.
type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// openCapture opens a pcap or pcapng file based on its magic number.
func openCapture(path string) (packetReader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open capture: %w", err)
	}
	r, err := newCaptureReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("read capture %s: %w", path, err)
	}
	return r, f, nil
}

func newCaptureReader(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}
