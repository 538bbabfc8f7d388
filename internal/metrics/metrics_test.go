package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gather は指定名のメトリクスファミリーを返す。見つからない場合はテストを失敗させる。
func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordSyncSuccess_CountsEpisodes は同期成功と追加エピソード数が記録されることを検証する。
func TestRecordSyncSuccess_CountsEpisodes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncSuccess("talk-python-to-me", 3)
	c.RecordSyncSuccess("talk-python-to-me", 0)

	if v := gather(t, reg, "podscribe_feed_sync_success_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("feed_sync_success_total = %v, want 2", v)
	}
	if v := gather(t, reg, "podscribe_episodes_added_total").GetMetric()[0].GetCounter().GetValue(); v != 3 {
		t.Errorf("episodes_added_total = %v, want 3", v)
	}
}

// TestRecordSyncFailure_LabelsReason は同期失敗が理由ラベル付きで記録されることを検証する。
func TestRecordSyncFailure_LabelsReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncFailure("p-1", "timeout")
	c.RecordSyncFailure("p-2", "timeout")
	c.RecordSyncFailure("p-3", "parse")

	mf := gather(t, reg, "podscribe_feed_sync_fail_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		want := map[string]float64{"timeout": 2, "parse": 1}[labelValue(m, "reason")]
		if got := m.GetCounter().GetValue(); got != want {
			t.Errorf("feed_sync_fail_total{reason=%s} = %v, want %v", labelValue(m, "reason"), got, want)
		}
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(304)

	mf := gather(t, reg, "podscribe_http_status_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		label := labelValue(m, "status_code")
		val := m.GetCounter().GetValue()
		switch label {
		case "200":
			if val != 2 {
				t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
			}
		case "304":
			if val != 1 {
				t.Errorf("http_status_total{status_code=304} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected label value: %s", label)
		}
	}
}

// TestRecordSyncLatency_ObservesHistogram は同期レイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordSyncLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncLatency(100 * time.Millisecond)
	c.RecordSyncLatency(2 * time.Second)

	h := gather(t, reg, "podscribe_feed_sync_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

// TestRecordJob_TracksRunningAndFinished は実行中ゲージと終了カウンタを検証する。
func TestRecordJob_TracksRunningAndFinished(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordJobStarted("transcribe")
	c.RecordJobStarted("transcribe")
	c.RecordJobFinished("transcribe", "success", 90*time.Second)

	running := gather(t, reg, "podscribe_jobs_running").GetMetric()[0].GetGauge().GetValue()
	if running != 1 {
		t.Errorf("jobs_running = %v, want 1", running)
	}

	finished := gather(t, reg, "podscribe_jobs_finished_total").GetMetric()[0]
	if labelValue(finished, "action") != "transcribe" || labelValue(finished, "status") != "success" {
		t.Errorf("labels = %v", finished.GetLabel())
	}
	if finished.GetCounter().GetValue() != 1 {
		t.Errorf("jobs_finished_total = %v, want 1", finished.GetCounter().GetValue())
	}

	h := gather(t, reg, "podscribe_job_duration_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 || h.GetSampleSum() != 90 {
		t.Errorf("job_duration = count %d sum %v", h.GetSampleCount(), h.GetSampleSum())
	}
}

// TestRecordIndexBuild はインデックス構築の回数と対象エピソード数を検証する。
func TestRecordIndexBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIndexBuild(300*time.Millisecond, 12)
	c.RecordIndexBuild(100*time.Millisecond, 0)

	if v := gather(t, reg, "podscribe_index_builds_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("index_builds_total = %v, want 2", v)
	}
	if v := gather(t, reg, "podscribe_indexed_episodes_total").GetMetric()[0].GetCounter().GetValue(); v != 12 {
		t.Errorf("indexed_episodes_total = %v, want 12", v)
	}
	if n := gather(t, reg, "podscribe_index_build_duration_seconds").GetMetric()[0].GetHistogram().GetSampleCount(); n != 2 {
		t.Errorf("index_build_duration sample_count = %d, want 2", n)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncSuccess("p", 1)
	c.RecordSyncFailure("p", "error")
	c.RecordHTTPStatus(200)
	c.RecordSyncLatency(500 * time.Millisecond)
	c.RecordJobStarted("chat")
	c.RecordJobFinished("chat", "failed", time.Second)
	c.RecordIndexBuild(time.Second, 1)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"podscribe_feed_sync_success_total",
		"podscribe_feed_sync_fail_total",
		"podscribe_http_status_total",
		"podscribe_feed_sync_latency_seconds",
		"podscribe_episodes_added_total",
		"podscribe_jobs_running",
		"podscribe_jobs_finished_total",
		"podscribe_job_duration_seconds",
		"podscribe_index_builds_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordSyncSuccess("a", 0)
	c2.RecordSyncSuccess("b", 0)
	c2.RecordSyncSuccess("b", 0)

	if v := gather(t, reg1, "podscribe_feed_sync_success_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("reg1 feed_sync_success = %v, want 1", v)
	}
	if v := gather(t, reg2, "podscribe_feed_sync_success_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("reg2 feed_sync_success = %v, want 2", v)
	}
}
