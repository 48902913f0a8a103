package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ReadMetricsCSV reads a metrics CSV file and returns the parsed metrics along
// with the first and last timestamps found in the data.
func ReadMetricsCSV(path string) ([]Metric, time.Time, time.Time, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("open metrics CSV: %w", err)
	}
	defer file.Close()

	return ParseMetricsCSV(file)
}

// ParseMetricsCSV parses metrics written by Writer.
func ParseMetricsCSV(r io.Reader) ([]Metric, time.Time, time.Time, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("read CSV header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[col] = i
	}

	requiredCols := []string{"timestamp", "operation", "success", "rtt_ms"}
	for _, col := range requiredCols {
		if _, ok := colIndex[col]; !ok {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("CSV missing required column: %s", col)
		}
	}

	field := func(record []string, name string) (string, bool) {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return "", false
		}
		return record[idx], true
	}

	var metrics []Metric
	var firstTime, lastTime time.Time
	rowCount := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("read CSV row %d: %w", rowCount+2, err)
		}

		m := Metric{}
		if v, ok := field(record, "timestamp"); ok {
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				m.Timestamp = t
				if rowCount == 0 {
					firstTime = t
				}
				lastTime = t
			}
		}
		if v, ok := field(record, "operation"); ok {
			m.Operation = OperationType(v)
		}
		if v, ok := field(record, "target"); ok {
			m.Target = v
		}
		if v, ok := field(record, "success"); ok {
			m.Success = v == "true"
		}
		if v, ok := field(record, "rtt_ms"); ok && v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				m.RTTMs = f
			}
		}
		if v, ok := field(record, "bytes"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				m.Bytes = n
			}
		}
		if v, ok := field(record, "end_code"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 0, 16); err == nil {
				m.EndCode = uint16(n)
			}
		}
		if v, ok := field(record, "outcome"); ok {
			m.Outcome = v
		}
		if v, ok := field(record, "error"); ok {
			m.Error = v
		}

		metrics = append(metrics, m)
		rowCount++
	}

	if rowCount == 0 {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("no data rows in CSV file")
	}

	return metrics, firstTime, lastTime, nil
}
