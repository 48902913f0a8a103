package metrics

// Metrics output (CSV/JSON) and summary formatting

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var csvHeader = []string{
	"timestamp",
	"operation",
	"target",
	"success",
	"rtt_ms",
	"bytes",
	"end_code",
	"outcome",
	"error",
}

// Writer handles writing metrics to files
type Writer struct {
	mu        sync.Mutex
	csvFile   *os.File
	csvWriter *csv.Writer
	jsonFile  *os.File
	written   int
	lastErr   error
}

// NewWriter creates a new metrics writer
func NewWriter(csvPath, jsonPath string) (*Writer, error) {
	w := &Writer{}

	if csvPath != "" {
		file, err := os.Create(csvPath)
		if err != nil {
			return nil, fmt.Errorf("create CSV file: %w", err)
		}
		w.csvFile = file
		w.csvWriter = csv.NewWriter(file)

		if err := w.csvWriter.Write(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
		w.csvWriter.Flush()
	}

	if jsonPath != "" {
		file, err := os.Create(jsonPath)
		if err != nil {
			if w.csvFile != nil {
				w.csvFile.Close()
			}
			return nil, fmt.Errorf("create JSON file: %w", err)
		}
		w.jsonFile = file

		if _, err := file.WriteString("[\n"); err != nil {
			file.Close()
			if w.csvFile != nil {
				w.csvFile.Close()
			}
			return nil, fmt.Errorf("write JSON start: %w", err)
		}
	}

	return w, nil
}

// Record implements Recorder. Write failures are kept and returned by Close.
func (w *Writer) Record(m Metric) {
	if err := w.WriteMetric(m); err != nil {
		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()
	}
}

// WriteMetric writes a single metric
func (w *Writer) WriteMetric(m Metric) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.csvWriter != nil {
		record := []string{
			m.Timestamp.Format(time.RFC3339Nano),
			string(m.Operation),
			m.Target,
			strconv.FormatBool(m.Success),
			formatRTT(m.RTTMs),
			strconv.Itoa(m.Bytes),
			formatEndCode(m.EndCode),
			m.Outcome,
			m.Error,
		}
		if err := w.csvWriter.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
		w.csvWriter.Flush()
	}

	if w.jsonFile != nil {
		jsonData, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		if w.written > 0 {
			if _, err := w.jsonFile.WriteString(",\n"); err != nil {
				return fmt.Errorf("write JSON comma: %w", err)
			}
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, jsonData, "", "  "); err != nil {
			return fmt.Errorf("indent JSON: %w", err)
		}
		if _, err := w.jsonFile.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
	}
	w.written++

	return nil
}

// Close closes the writer and flushes all data
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if w.lastErr != nil {
		errs = append(errs, w.lastErr)
	}

	if w.csvWriter != nil {
		w.csvWriter.Flush()
	}
	if w.csvFile != nil {
		if err := w.csvFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if w.jsonFile != nil {
		if _, err := w.jsonFile.WriteString("\n]\n"); err != nil {
			errs = append(errs, err)
		}
		if err := w.jsonFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close writer: %v", errs)
	}

	return nil
}

// formatRTT formats RTT value for CSV (empty string if 0)
func formatRTT(rtt float64) string {
	if rtt == 0 {
		return ""
	}
	return fmt.Sprintf("%.3f", rtt)
}

func formatEndCode(code uint16) string {
	if code == 0 {
		return ""
	}
	return fmt.Sprintf("0x%04X", code)
}

// FormatSummary formats a summary for human-readable output
func FormatSummary(summary *Summary) string {
	var buf strings.Builder

	if summary.TotalOperations == 0 {
		return "Total Operations: 0\n"
	}

	fmt.Fprintf(&buf, "Total Operations: %d\n", summary.TotalOperations)
	fmt.Fprintf(&buf, "Successful: %d (%.1f%%)\n",
		summary.SuccessfulOps,
		float64(summary.SuccessfulOps)/float64(summary.TotalOperations)*100)
	fmt.Fprintf(&buf, "Failed: %d (%.1f%%)\n",
		summary.FailedOps,
		float64(summary.FailedOps)/float64(summary.TotalOperations)*100)

	if summary.TimeoutCount > 0 {
		fmt.Fprintf(&buf, "Timeouts: %d\n", summary.TimeoutCount)
	}
	if summary.DeviceErrors > 0 {
		fmt.Fprintf(&buf, "Device Errors: %d\n", summary.DeviceErrors)
	}
	if summary.BytesRead > 0 {
		fmt.Fprintf(&buf, "Bytes Read: %d\n", summary.BytesRead)
	}

	if summary.AvgRTT > 0 {
		buf.WriteString("\nRTT Statistics (successful operations):\n")
		fmt.Fprintf(&buf, "  Min: %.3f ms\n", summary.MinRTT)
		fmt.Fprintf(&buf, "  Max: %.3f ms\n", summary.MaxRTT)
		fmt.Fprintf(&buf, "  Avg: %.3f ms\n", summary.AvgRTT)
		fmt.Fprintf(&buf, "  P50: %.3f ms\n", summary.P50RTT)
		fmt.Fprintf(&buf, "  P90: %.3f ms\n", summary.P90RTT)
		fmt.Fprintf(&buf, "  P95: %.3f ms\n", summary.P95RTT)
		fmt.Fprintf(&buf, "  P99: %.3f ms\n", summary.P99RTT)
		if len(summary.RTTBuckets) > 0 {
			fmt.Fprintf(&buf, "  Buckets: <1ms=%d 1-5ms=%d 5-10ms=%d 10-50ms=%d 50-100ms=%d 100-500ms=%d >500ms=%d\n",
				summary.RTTBuckets["lt_1ms"],
				summary.RTTBuckets["1_5ms"],
				summary.RTTBuckets["5_10ms"],
				summary.RTTBuckets["10_50ms"],
				summary.RTTBuckets["50_100ms"],
				summary.RTTBuckets["100_500ms"],
				summary.RTTBuckets["gt_500ms"],
			)
		}
	}

	if len(summary.RTTByOperation) > 0 {
		ops := make([]string, 0, len(summary.RTTByOperation))
		for op := range summary.RTTByOperation {
			ops = append(ops, string(op))
		}
		sort.Strings(ops)

		buf.WriteString("\nPer-Operation Statistics:\n")
		for _, op := range ops {
			stats := summary.RTTByOperation[OperationType(op)]
			fmt.Fprintf(&buf, "  %s: %d ops (%d success, %d failed)",
				op, stats.Count, stats.Success, stats.Failed)
			if stats.Success > 0 && stats.AvgRTT > 0 {
				fmt.Fprintf(&buf, " - RTT: min=%.3fms, max=%.3fms, avg=%.3fms",
					stats.MinRTT, stats.MaxRTT, stats.AvgRTT)
			}
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
