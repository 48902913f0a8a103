package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus records exchanges into a private registry.
type Prometheus struct {
	registry         *prometheus.Registry
	operationsTotal  *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	bytesTransferred *prometheus.CounterVec
	endCodes         *prometheus.CounterVec
}

// NewPrometheus creates a Prometheus recorder with its own registry. When
// withRuntime is set the Go and process collectors are registered too.
func NewPrometheus(withRuntime bool) *Prometheus {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return &Prometheus{
		registry: reg,
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcgw_plc_operations_total",
				Help: "Total number of PLC exchanges by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "mcgw_plc_operation_duration_milliseconds",
				Help: "Duration of PLC exchanges in milliseconds",
				Buckets: []float64{
					1,    // 1ms
					5,    // 5ms
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms
					500,  // 500ms
					1000, // 1s
					5000, // 5s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcgw_plc_bytes_read_total",
				Help: "Total payload bytes returned by the PLC",
			},
			[]string{"operation"},
		),
		endCodes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcgw_plc_end_codes_total",
				Help: "Non-zero end codes returned by the PLC",
			},
			[]string{"operation", "end_code"},
		),
	}
}

// Record implements Recorder.
func (p *Prometheus) Record(m Metric) {
	op := string(m.Operation)
	outcome := m.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
		if !m.Success {
			outcome = OutcomeNetwork
		}
	}

	p.operationsTotal.WithLabelValues(op, outcome).Inc()
	if m.RTTMs > 0 {
		p.duration.WithLabelValues(op).Observe(m.RTTMs)
	}
	if m.Bytes > 0 {
		p.bytesTransferred.WithLabelValues(op).Add(float64(m.Bytes))
	}
	if m.EndCode != 0 {
		p.endCodes.WithLabelValues(op, formatEndCode(m.EndCode)).Inc()
	}
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
