package stats

import (
	"encoding/json"
	"testing"
	"time"
)

func renderData(t *testing.T, stat StatsReceiver) map[string]interface{} {
	var data map[string]interface{}
	rendered := stat.Render(false)
	if err := json.Unmarshal(rendered, &data); err != nil {
		t.Fatalf("Unexpected render unmarshal error %v (rendered %q)", err, rendered)
	}
	return data
}

func TestRenderCountersAndGauges(t *testing.T) {
	stat, _ := NewCustomStatsReceiver(nil, 0)
	scoped := stat.Scope("taskheap")
	scoped.Counter(HeapInsertedTasksCounter).Inc(3)
	scoped.Gauge(HeapSizeGauge).Update(42)

	data := renderData(t, stat)
	if v, ok := data["taskheap/insertedTasksCounter"]; !ok || v.(float64) != 3 {
		t.Fatalf("Unexpected counter value %v (expected 3)", v)
	}
	if v, ok := data["taskheap/heapSizeGauge"]; !ok || v.(float64) != 42 {
		t.Fatalf("Unexpected gauge value %v (expected 42)", v)
	}
}

func TestScopeScrubsSlashes(t *testing.T) {
	stat, _ := NewCustomStatsReceiver(nil, 0)
	stat.Scope("group/7").Counter("claims").Inc(1)

	data := renderData(t, stat)
	if _, ok := data["group_7/claims"]; !ok {
		t.Fatalf("Unexpected render keys %v (expected group_7/claims)", data)
	}
}

func TestLatencyRendersPercentiles(t *testing.T) {
	stat, _ := NewCustomStatsReceiver(nil, 0)
	l := stat.Precision(time.Millisecond).Latency(HeapTakeLatency_ms)
	l.Time()
	l.Stop()

	data := renderData(t, stat)
	if v, ok := data[HeapTakeLatency_ms+".count"]; !ok || v.(float64) != 1 {
		t.Fatalf("Unexpected latency count %v (expected 1)", v)
	}
	for _, suffix := range defaultPercentileLabels {
		if _, ok := data[HeapTakeLatency_ms+"."+suffix]; !ok {
			t.Fatalf("Missing latency percentile %v in %v", suffix, data)
		}
	}
}

func TestUnlatchedRenderResetsHistograms(t *testing.T) {
	stat, _ := NewCustomStatsReceiver(nil, 0)
	stat.Histogram("sizes").Update(10)

	data := renderData(t, stat)
	if v := data["sizes.count"]; v.(float64) != 1 {
		t.Fatalf("Unexpected histogram count %v (expected 1)", v)
	}
	data = renderData(t, stat)
	if v := data["sizes.count"]; v.(float64) != 0 {
		t.Fatalf("Unexpected histogram count after reset %v (expected 0)", v)
	}
}

func TestCountersSurviveRender(t *testing.T) {
	stat, _ := NewCustomStatsReceiver(nil, 0)
	stat.Counter("c").Inc(2)

	renderData(t, stat)
	data := renderData(t, stat)
	if v := data["c"]; v.(float64) != 2 {
		t.Fatalf("Unexpected counter value after render %v (expected 2)", v)
	}
}

func TestRemove(t *testing.T) {
	stat, _ := NewCustomStatsReceiver(nil, 0)
	stat.Counter("gone").Inc(1)
	stat.Remove("gone")

	data := renderData(t, stat)
	if _, ok := data["gone"]; ok {
		t.Fatalf("Unexpected render keys %v (expected no gone entry)", data)
	}
}

func TestNilStatsReceiverIgnoresUpdates(t *testing.T) {
	stat := NilStatsReceiver()
	stat.Counter("c").Inc(5)
	if count := stat.Counter("c").Count(); count != 0 {
		t.Fatalf("Unexpected nil counter count %v (expected 0)", count)
	}
	if rendered := stat.Render(false); len(rendered) != 0 {
		t.Fatalf("Unexpected nil render %q (expected empty)", rendered)
	}
}

func TestLatchedRenderServesCapturedWindow(t *testing.T) {
	stat, cancel := NewLatchedStatsReceiver(20 * time.Millisecond)
	defer cancel()
	stat.Counter("c").Inc(1)

	// Give the latch loop a few ticks to capture the update.
	time.Sleep(200 * time.Millisecond)
	data := renderData(t, stat)
	if v, ok := data["c"]; !ok || v.(float64) != 1 {
		t.Fatalf("Unexpected latched counter %v (expected 1)", v)
	}
}
