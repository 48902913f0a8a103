package pcap

// MC protocol extraction: 3E binary frames from TCP traffic.

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/tturner/mcgw/internal/slmp"
)

// DefaultMCPort is the port the gateway and emulator use by default.
const DefaultMCPort = 5511

// MCFrame is one 3E frame recovered from a capture.
type MCFrame struct {
	Timestamp time.Time
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	IsRequest bool
	Request   slmp.Request  // set when IsRequest
	Response  slmp.Response // set otherwise
	Raw       []byte
}

// Stream identifies the connection a frame belongs to, oriented from the
// client to the device for both directions.
func (f MCFrame) Stream() string {
	if f.IsRequest {
		return fmt.Sprintf("%s:%d->%s:%d", f.SrcIP, f.SrcPort, f.DstIP, f.DstPort)
	}
	return fmt.Sprintf("%s:%d->%s:%d", f.DstIP, f.DstPort, f.SrcIP, f.SrcPort)
}

// Description is a one-line summary of the frame.
func (f MCFrame) Description() string {
	if f.IsRequest {
		return fmt.Sprintf("MC %s Request (sub 0x%04X, %d bytes)",
			f.Request.Command, f.Request.Subcommand, len(f.Request.Data))
	}
	if f.Response.EndCode != 0 {
		return fmt.Sprintf("MC Response end code 0x%04X", f.Response.EndCode)
	}
	return fmt.Sprintf("MC Response (%d bytes)", len(f.Response.Data))
}

// ExtractMCFromPCAP extracts 3E frames from a capture. Port 0 accepts TCP
// traffic on any port and relies on the subheader to find frames.
func ExtractMCFromPCAP(path string, port uint16) ([]MCFrame, error) {
	r, closer, err := openCapture(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return extractMC(r, port)
}

func extractMC(r packetReader, port uint16) ([]MCFrame, error) {
	var frames []MCFrame
	packetSource := gopacket.NewPacketSource(r, r.LinkType())
	streams := make(map[string][]byte)

	for packet := range packetSource.Packets() {
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			continue
		}
		tcp, _ := tcpLayer.(*layers.TCP)
		if port != 0 && uint16(tcp.SrcPort) != port && uint16(tcp.DstPort) != port {
			continue
		}
		if len(tcp.Payload) == 0 {
			continue
		}

		meta := extractPacketMeta(packet)
		meta.SrcPort = uint16(tcp.SrcPort)
		meta.DstPort = uint16(tcp.DstPort)

		key := streamKey(packet.NetworkLayer(), tcp)
		streams[key] = append(streams[key], tcp.Payload...)

		parsed, remaining := extractMCFrames(streams[key], meta)
		frames = append(frames, parsed...)
		streams[key] = remaining
	}
	return frames, nil
}

// extractMCFrames splits complete 3E frames off the front of payload and
// returns the incomplete remainder. Bytes that do not start a frame are
// skipped one at a time, which resynchronises a capture started mid-stream.
func extractMCFrames(payload []byte, meta *packetMeta) ([]MCFrame, []byte) {
	var frames []MCFrame
	for len(payload) >= slmp.HeaderSize {
		isRequest := slmp.IsRequestFrame(payload)
		if !isRequest && !slmp.IsResponseFrame(payload) {
			payload = payload[1:]
			continue
		}
		total, err := slmp.FrameLength(payload)
		if err != nil {
			payload = payload[1:]
			continue
		}
		if total > len(payload) {
			break
		}
		raw := make([]byte, total)
		copy(raw, payload[:total])

		f := MCFrame{
			Timestamp: meta.Timestamp,
			SrcIP:     meta.SrcIP,
			DstIP:     meta.DstIP,
			SrcPort:   meta.SrcPort,
			DstPort:   meta.DstPort,
			IsRequest: isRequest,
			Raw:       raw,
		}
		if isRequest {
			f.Request, err = slmp.DecodeRequest(raw)
		} else {
			f.Response, err = slmp.DecodeResponse(raw)
		}
		if err != nil {
			payload = payload[1:]
			continue
		}
		frames = append(frames, f)
		payload = payload[total:]
	}

	if len(payload) == 0 {
		return frames, nil
	}
	remaining := make([]byte, len(payload))
	copy(remaining, payload)
	return frames, remaining
}

type packetMeta struct {
	Timestamp time.Time
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
}

func streamKey(netLayer gopacket.NetworkLayer, tcp *layers.TCP) string {
	if netLayer != nil {
		src, dst := netLayer.NetworkFlow().Endpoints()
		return fmt.Sprintf("%s:%d->%s:%d", src, tcp.SrcPort, dst, tcp.DstPort)
	}
	return fmt.Sprintf("unknown:%d->unknown:%d", tcp.SrcPort, tcp.DstPort)
}

func extractPacketMeta(packet gopacket.Packet) *packetMeta {
	meta := &packetMeta{}
	if packet.Metadata() != nil {
		meta.Timestamp = packet.Metadata().Timestamp
	}
	netLayer := packet.NetworkLayer()
	if netLayer == nil {
		return meta
	}
	src, dst := netLayer.NetworkFlow().Endpoints()
	meta.SrcIP = src.String()
	meta.DstIP = dst.String()
	return meta
}
