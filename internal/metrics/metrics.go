// Package metrics keeps process counters and renders them in the Prometheus text format.
package metrics

import (
	"io"
	"slices"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"hourswatch/internal/storage"
)

// ContentType is the exposition format served on /metrics.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// Probe outcomes used as the result label.
const (
	ResultOpen   = "open"
	ResultClosed = "closed"
	ResultError  = "error"
)

// Registry holds monitor counters. The zero value is not usable; call New.
type Registry struct {
	mu            sync.Mutex
	probes        map[string]float64
	events        map[string]float64
	tickFailures  float64
	ticks         float64
	probeDuration float64
	lastTickUnix  float64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		probes: make(map[string]float64),
		events: make(map[string]float64),
	}
}

// ObserveProbe records the outcome and latency of one probe.
func (r *Registry) ObserveProbe(sample storage.Sample) {
	result := ResultClosed
	switch {
	case sample.ErrorMessage != nil:
		result = ResultError
	case sample.IsOpen:
		result = ResultOpen
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[result]++
	if sample.ResponseTimeMS != nil {
		r.probeDuration = float64(*sample.ResponseTimeMS)
	}
}

// TickCompleted records a finished tick and its wall-clock time in unix seconds.
func (r *Registry) TickCompleted(unix int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
	r.lastTickUnix = float64(unix)
}

// TickFailed counts a tick that returned an error.
func (r *Registry) TickFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickFailures++
}

// EventWritten counts a persisted daily event.
func (r *Registry) EventWritten(t storage.EventType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[string(t)]++
}

// Families snapshots the registry as metric families, sorted by name.
func (r *Registry) Families() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	return []*dto.MetricFamily{
		gauge("hourswatch_last_tick_timestamp_seconds", "Unix time of the last completed tick.", r.lastTickUnix),
		gauge("hourswatch_probe_duration_ms", "Latency of the most recent probe in milliseconds.", r.probeDuration),
		labelledCounter("hourswatch_events_written_total", "Daily events persisted by type.", "event_type", r.events),
		labelledCounter("hourswatch_probes_total", "Probes executed by result.", "result", r.probes),
		counter("hourswatch_tick_failures_total", "Ticks that returned an error.", r.tickFailures),
		counter("hourswatch_ticks_total", "Ticks completed.", r.ticks),
	}
}

// WriteText renders all families in the text exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	for _, mf := range r.Families() {
		// expfmt rejects families without samples
		if len(mf.GetMetric()) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func counter(name, help string, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: ptr(value)}}},
	}
}

func gauge(name, help string, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: ptr(value)}}},
	}
}

func labelledCounter(name, help, label string, values map[string]float64) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: ptr(name),
		Help: ptr(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: ptr(label), Value: ptr(k)}},
			Counter: &dto.Counter{Value: ptr(values[k])},
		})
	}
	return mf
}

func ptr[T any](v T) *T { return &v }
