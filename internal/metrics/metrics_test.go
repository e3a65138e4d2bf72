package metrics

import (
	"bytes"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"hourswatch/internal/storage"
)

func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		}
	}
	return total
}

func TestRegistryTextRoundTrip(t *testing.T) {
	reg := New()
	latency := int64(420)
	errMsg := "timeout"

	reg.ObserveProbe(storage.Sample{IsOpen: true, ResponseTimeMS: &latency})
	reg.ObserveProbe(storage.Sample{IsOpen: true})
	reg.ObserveProbe(storage.Sample{ErrorMessage: &errMsg})
	reg.EventWritten(storage.EventOpenedLate)
	reg.TickFailed()
	reg.TickCompleted(1714550400)

	var buf bytes.Buffer
	if err := reg.WriteText(&buf); err != nil {
		t.Fatalf("输出指标失败: %v", err)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("指标文本无法解析: %v", err)
	}

	if got := sumFamily(families["hourswatch_probes_total"]); got != 3 {
		t.Fatalf("probes_total 应为 3, 实际 %v", got)
	}
	for _, m := range families["hourswatch_probes_total"].GetMetric() {
		if m.GetLabel()[0].GetValue() == ResultOpen && m.GetCounter().GetValue() != 2 {
			t.Fatalf("open 计数应为 2, 实际 %v", m.GetCounter().GetValue())
		}
	}
	if got := sumFamily(families["hourswatch_probe_duration_ms"]); got != 420 {
		t.Fatalf("probe_duration_ms 应为 420, 实际 %v", got)
	}
	if got := sumFamily(families["hourswatch_tick_failures_total"]); got != 1 {
		t.Fatalf("tick_failures_total 应为 1, 实际 %v", got)
	}
	if got := sumFamily(families["hourswatch_events_written_total"]); got != 1 {
		t.Fatalf("events_written_total 应为 1, 实际 %v", got)
	}
	if got := sumFamily(families["hourswatch_last_tick_timestamp_seconds"]); got != 1714550400 {
		t.Fatalf("last_tick 不正确: %v", got)
	}
}

func TestEmptyRegistryRenders(t *testing.T) {
	var buf bytes.Buffer
	if err := New().WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	var parser expfmt.TextParser
	if _, err := parser.TextToMetricFamilies(&buf); err != nil {
		t.Fatalf("空注册表输出应可解析: %v", err)
	}
}
