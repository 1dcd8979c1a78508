package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFetch(t *testing.T) {
	t.Parallel()

	before := testutil.ToFloat64(SourceItemsFetched.WithLabelValues("test_provider_ok"))
	RecordFetch("test_provider_ok", 4, time.Second, nil)
	if got := testutil.ToFloat64(SourceItemsFetched.WithLabelValues("test_provider_ok")); got != before+4 {
		t.Errorf("Expected items counter +4, got %v -> %v", before, got)
	}

	failures := testutil.ToFloat64(SourceFetchFailures.WithLabelValues("test_provider_err"))
	RecordFetch("test_provider_err", 0, time.Second, errors.New("boom"))
	if got := testutil.ToFloat64(SourceFetchFailures.WithLabelValues("test_provider_err")); got != failures+1 {
		t.Errorf("Expected failure counter +1, got %v -> %v", failures, got)
	}
}

func TestRecordRejection(t *testing.T) {
	t.Parallel()

	before := testutil.ToFloat64(CandidatesRejected.WithLabelValues(RejectNoSource))
	RecordRejection(RejectNoSource)
	if got := testutil.ToFloat64(CandidatesRejected.WithLabelValues(RejectNoSource)); got < before+1 {
		t.Errorf("Expected rejection counter to increase, got %v -> %v", before, got)
	}
}
