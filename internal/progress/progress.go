package progress

import (
	"fmt"
	"io"
	"os"
	"time"
)

// ProgressBar renders file transfer progress. With an unknown total it
// shows the byte count and rate only.
type ProgressBar struct {
	total       int64
	current     int64
	startTime   time.Time
	lastUpdate  time.Time
	output      io.Writer
	enabled     bool
	description string
}

// NewProgressBar creates a new progress bar. total may be 0 when unknown.
func NewProgressBar(total int64, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		output:      os.Stderr, // keep stdout clean for file content
		enabled:     true,
		description: description,
	}
}

// SetOutput redirects rendering.
func (p *ProgressBar) SetOutput(w io.Writer) {
	p.output = w
}

// Disable disables the progress bar
func (p *ProgressBar) Disable() {
	p.enabled = false
}

// Enable enables the progress bar
func (p *ProgressBar) Enable() {
	p.enabled = true
}

// Update adds n bytes.
func (p *ProgressBar) Update(n int64) {
	p.current += n
	p.render()
}

// Set sets the byte count. Its signature matches mc.WithProgress.
func (p *ProgressBar) Set(n int64) {
	p.current = n
	p.render()
}

func (p *ProgressBar) render() {
	if !p.enabled {
		return
	}

	now := time.Now()
	if now.Sub(p.lastUpdate) < 100*time.Millisecond && (p.total == 0 || p.current < p.total) {
		return
	}
	p.lastUpdate = now

	elapsed := time.Since(p.startTime)
	var rate float64
	if elapsed > 0 {
		rate = float64(p.current) / elapsed.Seconds()
	}

	prefix := "\r"
	if p.description != "" {
		prefix += p.description + " "
	}

	if p.total <= 0 {
		fmt.Fprintf(p.output, "%s%s | %s/s | Elapsed: %s",
			prefix, FormatBytes(p.current), FormatBytes(int64(rate)), formatDuration(elapsed))
		return
	}

	percent := float64(p.current) / float64(p.total) * 100
	barWidth := 40
	filled := int(float64(barWidth) * percent / 100)
	if filled > barWidth {
		filled = barWidth
	}

	bar := make([]byte, barWidth)
	for i := 0; i < filled; i++ {
		bar[i] = '='
	}
	if filled < barWidth {
		bar[filled] = '>'
		for i := filled + 1; i < barWidth; i++ {
			bar[i] = '-'
		}
	}

	output := fmt.Sprintf("%s[%s] %s/%s (%.1f%%) | Elapsed: %s",
		prefix, string(bar), FormatBytes(p.current), FormatBytes(p.total), percent, formatDuration(elapsed))

	if rate > 0 && p.current < p.total {
		eta := time.Duration(float64(p.total-p.current) / rate * float64(time.Second))
		output += fmt.Sprintf(" | ETA: %s", formatDuration(eta))
	}

	fmt.Fprint(p.output, output)
}

// Finish finishes the progress bar
func (p *ProgressBar) Finish() {
	if !p.enabled {
		return
	}
	if p.total > 0 {
		p.current = p.total
	}
	p.lastUpdate = time.Time{}
	p.render()
	fmt.Fprint(p.output, "\n")
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
