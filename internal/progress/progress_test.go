package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestBar(total int64, desc string) (*ProgressBar, *bytes.Buffer) {
	pb := NewProgressBar(total, desc)
	var buf bytes.Buffer
	pb.SetOutput(&buf)
	pb.lastUpdate = time.Time{} // force render
	return pb, &buf
}

func TestNewProgressBar(t *testing.T) {
	pb := NewProgressBar(100, "test")
	if pb.total != 100 || pb.current != 0 {
		t.Errorf("total/current = %d/%d", pb.total, pb.current)
	}
	if !pb.enabled {
		t.Error("should be enabled by default")
	}
	if pb.description != "test" {
		t.Errorf("description = %q, want %q", pb.description, "test")
	}
}

func TestProgressBar_EnableDisable(t *testing.T) {
	pb, buf := newTestBar(100, "test")

	pb.Disable()
	pb.Set(50)
	if buf.Len() > 0 {
		t.Error("disabled bar should not produce output")
	}

	pb.Enable()
	if !pb.enabled {
		t.Error("should be enabled")
	}
}

func TestProgressBar_Update(t *testing.T) {
	pb, _ := newTestBar(4096, "")

	pb.Update(1920)
	pb.lastUpdate = time.Time{}
	pb.Update(1920)
	if pb.current != 3840 {
		t.Errorf("current = %d, want 3840", pb.current)
	}
}

func TestProgressBar_Render(t *testing.T) {
	pb, buf := newTestBar(2048, "MAIN.PRG")

	pb.Set(1024)
	output := buf.String()

	for _, want := range []string{"MAIN.PRG", "1.0 KiB/2.0 KiB", "50.0%", "Elapsed:"} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q, got: %q", want, output)
		}
	}
}

func TestProgressBar_RenderUnknownTotal(t *testing.T) {
	pb, buf := newTestBar(0, "")

	pb.Set(5000)
	output := buf.String()
	if strings.Contains(output, "[") || strings.Contains(output, "%") {
		t.Errorf("unknown total should not draw a bar, got: %q", output)
	}
	if !strings.Contains(output, "4.9 KiB") || !strings.Contains(output, "/s") {
		t.Errorf("unknown total should show bytes and rate, got: %q", output)
	}
}

func TestProgressBar_RenderShowsETA(t *testing.T) {
	pb, buf := newTestBar(100, "")
	pb.startTime = time.Now().Add(-5 * time.Second)

	pb.Set(50)
	if !strings.Contains(buf.String(), "ETA:") {
		t.Errorf("should show ETA when partially complete, got: %q", buf.String())
	}

	buf.Reset()
	pb.lastUpdate = time.Time{}
	pb.Set(100)
	if strings.Contains(buf.String(), "ETA:") {
		t.Errorf("should not show ETA when complete, got: %q", buf.String())
	}
}

func TestProgressBar_Throttle(t *testing.T) {
	pb, buf := newTestBar(100, "")

	pb.Set(10)
	if buf.Len() == 0 {
		t.Error("first render should produce output")
	}

	buf.Reset()
	pb.Set(20)
	if buf.Len() > 0 {
		t.Error("throttled render should produce no output")
	}
}

func TestProgressBar_Finish(t *testing.T) {
	pb, buf := newTestBar(100, "Done")

	pb.Finish()
	if pb.current != pb.total {
		t.Errorf("Finish should set current = total, got %d", pb.current)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("Finish should end with newline")
	}

	pb, buf = newTestBar(100, "")
	pb.Disable()
	pb.Finish()
	if buf.Len() > 0 {
		t.Error("disabled Finish should produce no output")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{5000, "4.9 KiB"},
		{3 * 1024 * 1024, "3.0 MiB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatBytes(tt.n); got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{0, "0ms"},
		{1500 * time.Millisecond, "1.5s"},
		{30 * time.Second, "30.0s"},
		{90 * time.Second, "1m30s"},
		{5*time.Minute + 15*time.Second, "5m15s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := formatDuration(tt.d)
			if got != tt.want {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}
