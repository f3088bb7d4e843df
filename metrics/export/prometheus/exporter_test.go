package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot authshield.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authshield.MetricsSnapshot { return f.snapshot }
func (f fakeSource) EventsDropped() uint64                       { return f.dropped }

func gather(t *testing.T, exp *Exporter) map[string]*dto.MetricFamily {
	t.Helper()
	registry := prometheus.NewRegistry()
	registry.MustRegister(exp)
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: authshield.MetricsSnapshot{
			Counters:   map[authshield.MetricID]uint64{},
			Histograms: map[authshield.MetricID][]uint64{},
		},
	})

	if got := gather(t, exp); len(got) != 0 {
		t.Fatalf("expected no metrics for disabled source, got %d", len(got))
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: authshield.MetricsSnapshot{
			Counters: map[authshield.MetricID]uint64{
				authshield.MetricLoginSuccess:     7,
				authshield.MetricLockoutTriggered: 2,
			},
			Histograms: map[authshield.MetricID][]uint64{
				authshield.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	})

	families := gather(t, exp)
	want := len(internaldefs.CounterDefs) + len(internaldefs.HistogramDefs) + 1
	if len(families) != want {
		t.Fatalf("expected %d families, got %d", want, len(families))
	}

	if got := families["authshield_lockout_triggered_total"].GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected lockout counter 2, got %v", got)
	}
	if got := families[internaldefs.EventsDroppedName].GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected dropped counter 3, got %v", got)
	}

	latency, ok := families["authshield_login_latency_seconds"]
	if !ok {
		t.Fatal("latency histogram not gathered")
	}
	h := latency.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 36 {
		t.Fatalf("expected 36 samples, got %d", h.GetSampleCount())
	}
	if got := h.GetBucket()[0].GetCumulativeCount(); got != 1 {
		t.Fatalf("expected first bucket 1, got %d", got)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: authshield.MetricsSnapshot{
			Counters:   map[authshield.MetricID]uint64{authshield.MetricLoginSuccess: 1},
			Histograms: map[authshield.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authshield_login_success_total 1") {
		t.Fatalf("expected login counter, got:\n%s", rec.Body.String())
	}
}

func BenchmarkCollect(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: authshield.MetricsSnapshot{
			Counters: map[authshield.MetricID]uint64{
				authshield.MetricLoginSuccess:     1000,
				authshield.MetricLoginFailure:     40,
				authshield.MetricSessionCreated:   800,
				authshield.MetricLockoutTriggered: 3,
			},
			Histograms: map[authshield.MetricID][]uint64{
				authshield.MetricLoginLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch := make(chan prometheus.Metric, 64)
		exp.Collect(ch)
		close(ch)
	}
}
