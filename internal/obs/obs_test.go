package obs

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRecordWorkerJob(t *testing.T) {
	before := testutil.ToFloat64(workerJobsTotal.WithLabelValues("analysis_test", "error"))
	RecordWorkerJob("analysis_test", time.Now(), errors.New("boom"))
	after := testutil.ToFloat64(workerJobsTotal.WithLabelValues("analysis_test", "error"))
	if after != before+1 {
		t.Errorf("expected error counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestRecordHTTP(t *testing.T) {
	RecordHTTP("GET", "/api/analysis/:id/progress", "200", time.Now())
	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/analysis/:id/progress", "200"))
	if got < 1 {
		t.Errorf("expected request to be counted, got %v", got)
	}
}
