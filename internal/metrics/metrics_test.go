package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTokenRequest(t *testing.T) {
	before := testutil.ToFloat64(TokenRequestsTotal.WithLabelValues(PathCached))
	RecordTokenRequest(PathCached)
	RecordTokenRequest(PathCached)
	after := testutil.ToFloat64(TokenRequestsTotal.WithLabelValues(PathCached))
	if after-before != 2 {
		t.Errorf("cached requests delta = %v, want 2", after-before)
	}
}

func TestRecordRefresh(t *testing.T) {
	tests := []struct {
		name    string
		success bool
		label   string
	}{
		{name: "success increments success label", success: true, label: ResultSuccess},
		{name: "failure increments failure label", success: false, label: ResultFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := RefreshTotal.WithLabelValues(tt.label)
			before := testutil.ToFloat64(counter)
			RecordRefresh(tt.success, 0.05)
			if got := testutil.ToFloat64(counter) - before; got != 1 {
				t.Errorf("RecordRefresh() delta = %v, want 1", got)
			}
		})
	}
}

func TestRecordValidation(t *testing.T) {
	before := testutil.ToFloat64(ValidationTotal.WithLabelValues("index_mismatch"))
	RecordValidation("index_mismatch")
	if got := testutil.ToFloat64(ValidationTotal.WithLabelValues("index_mismatch")) - before; got != 1 {
		t.Errorf("RecordValidation() delta = %v, want 1", got)
	}
}

func TestCollectorsRegistered(t *testing.T) {
	if n := testutil.CollectAndCount(RefreshDuration); n != 1 {
		t.Errorf("RefreshDuration collected %d metrics, want 1", n)
	}
}
