package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(time.Second)
	m.ObserveAPI("POST", "/api/v1/studies/upload", 202, 30*time.Millisecond)
	m.ObserveAPI("GET", "/api/v1/studies/:id", 500, time.Millisecond)
	m.JobFinished("study_process", "succeeded", 2*time.Second)
	m.JobFinished("study_process", "failed", time.Second)
	m.UploadOutcome("accepted")

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`medicore_api_requests_total{method="POST",route="/api/v1/studies/upload",status="202"} 1`,
		`medicore_api_server_errors_total 1`,
		`medicore_jobs_finished_total{job_type="study_process",status="failed"} 1`,
		`medicore_job_duration_seconds_count{job_type="study_process"} 2`,
		`medicore_job_duration_seconds_bucket{job_type="study_process",le="+Inf"} 2`,
		`medicore_uploads_total{outcome="accepted"} 1`,
		`# TYPE medicore_api_request_duration_seconds histogram`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestHistogramBucketsAreCumulative(t *testing.T) {
	h := NewHistogramVec("h", "test", []string{"k"}, []float64{1, 5})
	h.Observe(0.5, "a")
	h.Observe(3, "a")
	h.Observe(10, "a")

	var buf bytes.Buffer
	if err := h.WritePrometheus(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`h_bucket{k="a",le="1"} 1`,
		`h_bucket{k="a",le="5"} 2`,
		`h_bucket{k="a",le="+Inf"} 3`,
		`h_sum{k="a"} 13.5`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if got := h.Count("a"); got != 3 {
		t.Fatalf("count = %d", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", 200, time.Millisecond)
	m.JobFinished("x", "succeeded", time.Second)
	m.APIInflightInc()
	m.APIInflightDec()

	rec := httptest.NewRecorder()
	m.WriteHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestInflightGauge(t *testing.T) {
	m := NewMetrics(0)
	m.APIInflightInc()
	m.APIInflightInc()
	m.APIInflightDec()
	if got := m.apiInflight.Value(); got != 1 {
		t.Fatalf("inflight = %v", got)
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"a", "b"}, []string{`x"y`, ""})
	if got != `{a="x\"y",b="unknown"}` {
		t.Fatalf("labelString = %s", got)
	}
}

func TestParseHeadersAndRatio(t *testing.T) {
	h := parseHeaders([]string{"api-key=abc", "broken", "=x"})
	if len(h) != 1 || h["api-key"] != "abc" {
		t.Fatalf("headers = %v", h)
	}
	if parseHeaders(nil) != nil {
		t.Fatalf("expected nil headers")
	}
	cases := map[string]float64{"0.5": 0.5, "2": 1, "-1": 0, "nope": 0.1}
	for in, want := range cases {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%q) = %v, want %v", in, got, want)
		}
	}
}
