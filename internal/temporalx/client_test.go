package temporalx

import (
	"testing"
	"time"
)

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{6, 5 * time.Second},
		{20, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := ClampBackoff(250*time.Millisecond, 5*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %s want %s", tc.attempt, got, tc.want)
		}
	}
	if got := ClampBackoff(0, 0, 1); got != 250*time.Millisecond {
		t.Fatalf("zero base should default, got %s", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("TEMPORAL_NAMESPACE", "")
	t.Setenv("TEMPORAL_TASK_QUEUE", "ingest")
	cfg := LoadConfig()
	if cfg.Enabled() {
		t.Fatalf("empty address should disable temporal")
	}
	if cfg.Namespace != "medicore" || cfg.TaskQueue != "ingest" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.DialTimeout != 5*time.Second || cfg.tlsEnabled() {
		t.Fatalf("unexpected dial settings: %+v", cfg)
	}
}
