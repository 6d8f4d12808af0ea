package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"parkwatch/internal/domain"
)

func TestRecordPoll(t *testing.T) {
	before := testutil.ToFloat64(PollFailures)

	RecordPoll(10*time.Millisecond, 7, nil)
	if got := testutil.ToFloat64(Snapshots); got != 7 {
		t.Errorf("Snapshots = %v, want 7", got)
	}

	RecordPoll(10*time.Millisecond, 0, errors.New("connection refused"))
	if got := testutil.ToFloat64(PollFailures); got != before+1 {
		t.Errorf("PollFailures = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(Snapshots); got != 7 {
		t.Errorf("failed poll changed Snapshots to %v", got)
	}
}

func TestRecordOccupancy(t *testing.T) {
	RecordOccupancy([]domain.Occupancy{
		{Zone: "metrics-test-a", Count: 3, Status: domain.StatusFull},
		{Zone: "metrics-test-b", Count: 1, Status: domain.StatusAvailable},
	})

	if got := testutil.ToFloat64(ZoneCount.WithLabelValues("metrics-test-a")); got != 3 {
		t.Errorf("zone a count = %v, want 3", got)
	}
	if got := testutil.ToFloat64(ZoneFull.WithLabelValues("metrics-test-a")); got != 1 {
		t.Errorf("zone a full = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ZoneFull.WithLabelValues("metrics-test-b")); got != 0 {
		t.Errorf("zone b full = %v, want 0", got)
	}
}

func TestRecordIngest(t *testing.T) {
	RecordIngest("metrics-test", 4, 1)

	if got := testutil.ToFloat64(PositionsIngested.WithLabelValues("metrics-test", "accepted")); got != 4 {
		t.Errorf("accepted = %v, want 4", got)
	}
	if got := testutil.ToFloat64(PositionsIngested.WithLabelValues("metrics-test", "skipped")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	RecordAPIRequest("GET", "/metrics-test", 200, 5*time.Millisecond)

	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/metrics-test", "200")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}
