package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if match {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// TestRecordRoleplayStart_ResultLabel は結果ラベル別にカウンタが増加することを検証する。
func TestRecordRoleplayStart_ResultLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRoleplayStart("success")
	c.RecordRoleplayStart("success")
	c.RecordRoleplayStart("provider_error")

	got := counterValue(t, reg, "voicedojo_roleplay_start_total", map[string]string{"result": "success"})
	if got != 2 {
		t.Errorf("roleplay_start_total{result=success} = %v, want 2", got)
	}
	got = counterValue(t, reg, "voicedojo_roleplay_start_total", map[string]string{"result": "provider_error"})
	if got != 1 {
		t.Errorf("roleplay_start_total{result=provider_error} = %v, want 1", got)
	}
}

// TestRecordSweepAbandoned_AddsCount はスイープ件数が加算されることを検証する。
func TestRecordSweepAbandoned_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSweepAbandoned(3)
	c.RecordSweepAbandoned(2)

	got := counterValue(t, reg, "voicedojo_sweep_abandoned_total", nil)
	if got != 5 {
		t.Errorf("sweep_abandoned_total = %v, want 5", got)
	}
}

// TestRecordRealtimeEvent_ChannelLabel はチャネル別にカウンタが増加することを検証する。
func TestRecordRealtimeEvent_ChannelLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRealtimeEvent("profile_changed")
	c.RecordRealtimeEvent("roleplay_changed")
	c.RecordRealtimeEvent("roleplay_changed")

	got := counterValue(t, reg, "voicedojo_realtime_events_total", map[string]string{"channel": "roleplay_changed"})
	if got != 2 {
		t.Errorf("realtime_events_total{channel=roleplay_changed} = %v, want 2", got)
	}
}

// TestRecordProviderLatency_Observes はヒストグラムが記録されることを検証する。
func TestRecordProviderLatency_Observes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProviderLatency("start_conversation", 150*time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range metrics {
		if mf.GetName() == "voicedojo_provider_latency_seconds" {
			found = true
			if count := mf.GetMetric()[0].GetHistogram().GetSampleCount(); count != 1 {
				t.Errorf("sample count = %d, want 1", count)
			}
		}
	}
	if !found {
		t.Error("voicedojo_provider_latency_seconds metric not found")
	}
}
