// Package metrics records history repository activity with Prometheus
// collectors. A CLI process has no scrape endpoint, so WriteTextfile dumps
// the registry in node-exporter textfile format instead.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/saadjs/carbon-cli/internal/app"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	records    prometheus.Gauge
	persist    prometheus.Histogram
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carbon_history_operations_total",
			Help: "History repository operations by name and result.",
		}, []string{"operation", "result"}),
		records: factory.NewGauge(prometheus.GaugeOpts{
			Name: "carbon_history_records",
			Help: "Records held for the active owner after the last operation.",
		}),
		persist: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carbon_history_persist_seconds",
			Help:    "Time spent writing an owner's bucket to storage.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (r *Recorder) ObserveOperation(op string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	r.operations.WithLabelValues(op, result).Inc()
}

func (r *Recorder) ObservePersist(d time.Duration) {
	r.persist.Observe(d.Seconds())
}

func (r *Recorder) SetRecordCount(n int) {
	r.records.Set(float64(n))
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes the registry atomically to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := app.EnsureDir(path); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
