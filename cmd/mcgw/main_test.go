package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"

	"github.com/tturner/mcgw/internal/config"
	"github.com/tturner/mcgw/internal/emulator"
	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/slmp"
)

func TestRequiredArgsErrors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     func() *cobra.Command
		args    []string
		wantErr string
	}{
		{"read without devices", newReadCmd, nil, "required argument DEVICE[:POINTS] not given"},
		{"find without name", newFindCmd, nil, "required argument NAME not given"},
		{"get without name", newGetCmd, nil, "required argument NAME not given"},
		{"pcap decode without input", newPcapDecodeCmd, nil, "required flag --input not set"},
		{"pcap dump without input", newPcapDumpCmd, nil, "required flag --input not set"},
		{"report without input", newReportCmd, nil, "required flag --input not set"},
		{"read bad device", newReadCmd, []string{"Q100:2"}, "is not one of"},
		{"read bad count", newReadCmd, []string{"D100:x"}, "invalid point count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseDeviceSpec(t *testing.T) {
	tests := []struct {
		spec    string
		want    string
		points  uint32
		wantErr bool
	}{
		{"D100", "D100", 1, false},
		{"d100:4", "D100", 4, false},
		{"Y20:16", "Y20", 16, false},
		{"ZR10:2", "ZR10", 2, false},
		{"D100:0", "", 0, true},
		{"D100:-1", "", 0, true},
		{"T5", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			d, err := parseDeviceSpec(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", d)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDeviceSpec: %v", err)
			}
			if d.String() != tt.want || d.Length != tt.points {
				t.Fatalf("got %s x%d, want %s x%d", d, d.Length, tt.want, tt.points)
			}
		})
	}
}

func TestParseDriveMapping(t *testing.T) {
	dc, err := parseDriveMapping("4=./plc")
	if err != nil || dc.Number != 4 || dc.Dir != "./plc" {
		t.Fatalf("got %+v, %v", dc, err)
	}
	for _, bad := range []string{"4", "x=dir", "4="} {
		if _, err := parseDriveMapping(bad); err == nil {
			t.Errorf("%q should be rejected", bad)
		}
	}
}

// startEmulator runs a device with drive 4 and returns a config file and
// the flags that point commands at it.
func startEmulator(t *testing.T) (string, []string, []byte) {
	t.Helper()
	srv := emulator.NewServer(emulator.Options{Listen: "127.0.0.1:0"}, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	data := bytes.Repeat([]byte("0123456789"), 450)
	drive := emulator.NewDrive(4)
	drive.AddFile("", "MAIN.PRG", data, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC))
	drive.AddDir("$MELPRJ$")
	srv.AddDrive(drive)
	if err := srv.Memory().SetWords("D", 100, 11, 22, 33); err != nil {
		t.Fatal(err)
	}

	cfgPath := filepath.Join(t.TempDir(), "mcgw.yaml")
	if err := config.WriteDefaultConfig(cfgPath); err != nil {
		t.Fatal(err)
	}
	port := srv.Addr().(*net.TCPAddr).Port
	return cfgPath, []string{
		"--config", cfgPath,
		"--host", "127.0.0.1",
		"--port", fmt.Sprint(port),
		"--timeout", "2s",
		"--log-level", "silent",
	}, data
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDeviceCommands(t *testing.T) {
	_, common, data := startEmulator(t)
	dir := t.TempDir()

	out, err := execute(t, append([]string{"read", "D100:3", "D101"}, common...)...)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"D100", "D102", "11", "33", "word"} {
		if !strings.Contains(out, want) {
			t.Errorf("read output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, append([]string{"ls", "--path", `\`, "--all"}, common...)...)
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !strings.Contains(out, "MAIN.PRG") || !strings.Contains(out, "$MELPRJ$") || !strings.Contains(out, "2 entries") {
		t.Errorf("ls output:\n%s", out)
	}

	out, err = execute(t, append([]string{"find", "main.prg"}, common...)...)
	if err != nil || !strings.Contains(out, "4500") {
		t.Errorf("find: %v\n%s", err, out)
	}

	local := filepath.Join(dir, "main.prg")
	csvPath := filepath.Join(dir, "run.csv")
	if _, err := execute(t, append([]string{"get", "MAIN.PRG", "--out", local, "--quiet", "--chunk", "1000", "--metrics-csv", csvPath}, common...)...); err != nil {
		t.Fatalf("get: %v", err)
	}
	got, err := os.ReadFile(local)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("fetched %d bytes, %v", len(got), err)
	}

	out, err = execute(t, "report", csvPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	for _, want := range []string{"Total Operations: 8", "READ_FILE", "OPEN_FILE", "CLOSE_FILE"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q:\n%s", want, out)
		}
	}
}

func TestDeviceCommandErrors(t *testing.T) {
	_, common, _ := startEmulator(t)

	_, err := execute(t, append([]string{"get", "NOPE.PRG", "--quiet", "--out", filepath.Join(t.TempDir(), "x")}, common...)...)
	if err == nil || !strings.Contains(err.Error(), "0xC051") {
		t.Fatalf("get missing file: %v", err)
	}
	if !errors.Is(err, mc.ErrFileNotFound) {
		t.Errorf("error should wrap ErrFileNotFound: %v", err)
	}

	_, err = execute(t, append([]string{"ls", "--drive", "7"}, common...)...)
	if !errors.Is(err, mc.ErrDriveNotFound) {
		t.Errorf("ls on a missing drive: %v", err)
	}

	_, err = execute(t, append([]string{"get", "MAIN.PRG", "--persist", "--quiet"}, common...)...)
	if err == nil || !strings.Contains(err.Error(), "needs a store") {
		t.Errorf("persist without store: %v", err)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "mcgw.yaml")
	if _, err := execute(t, "config", "init", "--config", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := execute(t, "config", "init", "--config", path); err == nil {
		t.Fatal("second init without --force should fail")
	}
	out, err := execute(t, "config", "show", "--config", path, "--port", "6000")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "port: 6000") || !strings.Contains(out, "default_path: $MELPRJ$") {
		t.Errorf("config show:\n%s", out)
	}
}

func tcpPacket(t *testing.T, toPLC bool, payload []byte) []byte {
	t.Helper()
	src, dst := net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 50)
	sport, dport := layers.TCPPort(50000), layers.TCPPort(5511)
	if !toPLC {
		src, dst, sport, dport = dst, src, dport, sport
	}
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, SrcIP: src.To4(), DstIP: dst.To4(), Protocol: layers.IPProtocolTCP}
	tcp := &layers.TCP{SrcPort: sport, DstPort: dport, Seq: 1, ACK: true, PSH: true, Window: 8192}
	tcp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

// writeListingCapture writes one directory exchange encoded with layout.
func writeListingCapture(t *testing.T, layout mc.Layout) string {
	t.Helper()
	entries := []mc.FileEntry{
		{Name: "MAIN", Extension: "PRG", Size: 5000},
		{Name: "PARAM", Extension: "PRM", Size: 1024},
		{Name: "LOG", Extension: "CSV", Size: 77},
	}
	body, err := slmp.BuildListDirectory(4, 1, 36, "$MELPRJ$")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := mc.EncodeListing(layout, entries, 1)
	if err != nil {
		t.Fatal(err)
	}
	req := slmp.EncodeRequest(slmp.Request{
		Route:      slmp.DefaultRoute(),
		Timer:      12,
		Command:    slmp.CmdReadDirectory,
		Subcommand: slmp.SubFileIQR,
		Data:       body,
	})
	resp := slmp.EncodeResponse(slmp.Response{Route: slmp.DefaultRoute(), Data: slmp.EncodeListDirectory(len(entries), raw)})

	path := filepath.Join(t.TempDir(), "listing.pcap")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	w := pcapgo.NewWriter(file)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}
	for i, pkt := range [][]byte{tcpPacket(t, true, req), tcpPacket(t, false, resp)} {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)*int64(time.Millisecond)),
			CaptureLength: len(pkt),
			Length:        len(pkt),
		}
		if err := w.WritePacket(ci, pkt); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestPcapCommands(t *testing.T) {
	path := writeListingCapture(t, mc.TailLayout)

	out, err := execute(t, "pcap", "decode", "--input", path, "--entries")
	if err != nil {
		t.Fatalf("decode auto: %v\n%s", err, out)
	}
	for _, want := range []string{"Layout: tail", "OK: 1", "PARAM.PRM"} {
		if !strings.Contains(out, want) {
			t.Errorf("decode output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "pcap", "decode", "--input", path, "--layout", "leading")
	if !errors.Is(err, mc.ErrLayoutMismatch) {
		t.Fatalf("decode leading: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Mismatch: 1") {
		t.Errorf("decode leading output:\n%s", out)
	}

	out, err = execute(t, "pcap", "dump", path, "--annotate")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out, "3E Header") || !strings.Contains(out, "2 frame(s)") {
		t.Errorf("dump output:\n%s", out)
	}
}
