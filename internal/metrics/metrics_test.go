package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordRequestIncrementsCounter(t *testing.T) {
	m := New()
	m.RecordRequest("stackTrace")
	m.RecordRequest("stackTrace")
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("stackTrace")); got != 2 {
		t.Fatalf("expected 2 requests recorded, got %v", got)
	}
}

func TestRecordBreakpointHitSeparatesKinds(t *testing.T) {
	m := New()
	m.RecordBreakpointHit("source")
	m.RecordBreakpointHit("function")
	m.RecordBreakpointHit("function")
	if got := testutil.ToFloat64(m.BreakpointHits.WithLabelValues("function")); got != 2 {
		t.Fatalf("expected 2 function hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.BreakpointHits.WithLabelValues("source")); got != 1 {
		t.Fatalf("expected 1 source hit, got %v", got)
	}
}

func TestRecordPauseObservesHistogram(t *testing.T) {
	m := New()
	m.RecordPause(250 * time.Millisecond)
	var pb dto.Metric
	if err := m.PauseDuration.Write(&pb); err != nil {
		t.Fatalf("read histogram: %v", err)
	}
	if got := pb.GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("expected one observation, got %d", got)
	}
}
