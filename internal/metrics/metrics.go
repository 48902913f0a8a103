package metrics

// Metrics collection for PLC exchanges

import (
	"math"
	"sort"
	"sync"
	"time"
)

// OperationType represents the type of operation
type OperationType string

const (
	OperationReadWords  OperationType = "READ_WORDS"
	OperationReadBits   OperationType = "READ_BITS"
	OperationListDir    OperationType = "LIST_DIRECTORY"
	OperationSearchFile OperationType = "SEARCH_FILE"
	OperationOpenFile   OperationType = "OPEN_FILE"
	OperationReadFile   OperationType = "READ_FILE"
	OperationCloseFile  OperationType = "CLOSE_FILE"
	OperationConnect    OperationType = "CONNECT"
)

// Metric represents a single operation metric
type Metric struct {
	Timestamp time.Time
	Operation OperationType
	Target    string
	Success   bool
	RTTMs     float64
	Bytes     int
	EndCode   uint16
	Outcome   string
	Error     string
}

// Outcomes
const (
	OutcomeSuccess = "success"
	OutcomeDevice  = "device_error"
	OutcomeTimeout = "timeout"
	OutcomeNetwork = "network_error"
)

// Recorder receives one metric per device exchange.
type Recorder interface {
	Record(m Metric)
}

// Nop discards metrics.
type Nop struct{}

func (Nop) Record(Metric) {}

// Multi fans a metric out to several recorders.
type Multi []Recorder

func (m Multi) Record(metric Metric) {
	for _, r := range m {
		if r != nil {
			r.Record(metric)
		}
	}
}

// Sink collects and aggregates metrics
type Sink struct {
	mu      sync.RWMutex
	metrics []Metric
}

// Summary contains aggregated statistics
type Summary struct {
	TotalOperations int
	SuccessfulOps   int
	FailedOps       int
	TimeoutCount    int
	DeviceErrors    int
	BytesRead       int
	MinRTT          float64
	MaxRTT          float64
	AvgRTT          float64
	P50RTT          float64
	P90RTT          float64
	P95RTT          float64
	P99RTT          float64
	RTTBuckets      map[string]int
	RTTByOperation  map[OperationType]*OperationStats
}

// OperationStats contains statistics for a specific operation type
type OperationStats struct {
	Count   int
	Success int
	Failed  int
	MinRTT  float64
	MaxRTT  float64
	AvgRTT  float64
	SumRTT  float64
}

// NewSink creates a new metrics sink
func NewSink() *Sink {
	return &Sink{metrics: make([]Metric, 0)}
}

// Record records a new metric
func (s *Sink) Record(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

// GetMetrics returns a copy of all recorded metrics
func (s *Sink) GetMetrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make([]Metric, len(s.metrics))
	copy(metrics, s.metrics)
	return metrics
}

// GetSummary returns the aggregated summary
func (s *Sink) GetSummary() *Summary {
	return Summarize(s.GetMetrics())
}

// Summarize aggregates a list of metrics.
func Summarize(metrics []Metric) *Summary {
	summary := &Summary{
		RTTBuckets:     make(map[string]int),
		RTTByOperation: make(map[OperationType]*OperationStats),
	}

	rtts := make([]float64, 0, len(metrics))
	var sumRTT float64
	for _, m := range metrics {
		summary.TotalOperations++

		opStats, exists := summary.RTTByOperation[m.Operation]
		if !exists {
			opStats = &OperationStats{}
			summary.RTTByOperation[m.Operation] = opStats
		}
		opStats.Count++

		if !m.Success {
			summary.FailedOps++
			opStats.Failed++
			switch m.Outcome {
			case OutcomeTimeout:
				summary.TimeoutCount++
			case OutcomeDevice:
				summary.DeviceErrors++
			}
			continue
		}

		summary.SuccessfulOps++
		opStats.Success++
		if m.Operation == OperationReadFile {
			summary.BytesRead += m.Bytes
		}
		if m.RTTMs <= 0 {
			continue
		}
		rtts = append(rtts, m.RTTMs)
		sumRTT += m.RTTMs
		incrementBucket(summary.RTTBuckets, m.RTTMs)
		if summary.MinRTT == 0 || m.RTTMs < summary.MinRTT {
			summary.MinRTT = m.RTTMs
		}
		if m.RTTMs > summary.MaxRTT {
			summary.MaxRTT = m.RTTMs
		}
		if opStats.MinRTT == 0 || m.RTTMs < opStats.MinRTT {
			opStats.MinRTT = m.RTTMs
		}
		if m.RTTMs > opStats.MaxRTT {
			opStats.MaxRTT = m.RTTMs
		}
		opStats.SumRTT += m.RTTMs
		opStats.AvgRTT = opStats.SumRTT / float64(opStats.Success)
	}

	if len(rtts) > 0 {
		summary.AvgRTT = sumRTT / float64(len(rtts))
		p := computePercentiles(rtts)
		summary.P50RTT, summary.P90RTT, summary.P95RTT, summary.P99RTT = p[0], p[1], p[2], p[3]
	}
	return summary
}

func incrementBucket(buckets map[string]int, value float64) {
	switch {
	case value < 1:
		buckets["lt_1ms"]++
	case value < 5:
		buckets["1_5ms"]++
	case value < 10:
		buckets["5_10ms"]++
	case value < 50:
		buckets["10_50ms"]++
	case value < 100:
		buckets["50_100ms"]++
	case value < 500:
		buckets["100_500ms"]++
	default:
		buckets["gt_500ms"]++
	}
}

func computePercentiles(values []float64) [4]float64 {
	var result [4]float64
	if len(values) == 0 {
		return result
	}
	sort.Float64s(values)
	result[0] = percentile(values, 0.50)
	result[1] = percentile(values, 0.90)
	result[2] = percentile(values, 0.95)
	result[3] = percentile(values, 0.99)
	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
