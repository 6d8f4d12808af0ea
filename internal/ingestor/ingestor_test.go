package ingestor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"parkwatch/internal/config"
	"parkwatch/internal/domain"
)

type fakeSource struct {
	mu        sync.Mutex
	positions []domain.Position
	err       error
}

func (f *fakeSource) Fetch(ctx context.Context) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, f.err
}

func (f *fakeSource) set(positions []domain.Position, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions, f.err = positions, err
}

type recordingBroadcaster struct {
	results []*Result
}

func (b *recordingBroadcaster) Broadcast(r *Result) { b.results = append(b.results, r) }

type countingPruner struct{ calls int }

func (p *countingPruner) PruneStale(time.Time) int { p.calls++; return 1 }

func testConfig() *config.Config {
	return &config.Config{
		PollInterval: time.Hour,
		BatchWindow:  4 * time.Second,
		Zones:        domain.DefaultCatalog(),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var now = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func inPark2(id string, ago time.Duration) domain.Position {
	return domain.Position{DeviceID: id, Lat: 26.9352, Lon: 75.9245, Timestamp: now.Add(-ago)}
}

func TestIngestor_PollComputesResult(t *testing.T) {
	src := &fakeSource{positions: []domain.Position{inPark2("A", time.Minute), inPark2("B", 2*time.Second), inPark2("C", time.Second)}}
	bc := &recordingBroadcaster{}
	ing := New(src, nil, bc, testConfig(), quietLogger())
	ing.now = func() time.Time { return now }

	if ing.IsReady() {
		t.Fatal("ready before the first poll")
	}
	if err := ing.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !ing.IsReady() {
		t.Error("not ready after a successful poll")
	}

	r := ing.Result()
	if len(r.Snapshots) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(r.Snapshots))
	}
	if r.Occupancy[1].Zone != "PARK2" || r.Occupancy[1].Count != 2 || r.Occupancy[1].Status != domain.StatusFull {
		t.Errorf("PARK2 = %+v", r.Occupancy[1])
	}
	if len(bc.results) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(bc.results))
	}
}

func TestIngestor_FetchFailureKeepsPrevious(t *testing.T) {
	src := &fakeSource{positions: []domain.Position{inPark2("A", 0)}}
	bc := &recordingBroadcaster{}
	ing := New(src, nil, bc, testConfig(), quietLogger())

	if err := ing.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := ing.Result()

	src.set(nil, errors.New("upstream down"))
	if err := ing.Poll(context.Background()); err == nil {
		t.Fatal("Poll() should report the fetch failure")
	}

	if ing.Result() != before {
		t.Error("failed poll replaced the previous result")
	}
	if len(bc.results) != 1 {
		t.Errorf("failed poll broadcast; broadcasts = %d", len(bc.results))
	}
	if !ing.IsReady() {
		t.Error("failed poll cleared readiness")
	}
}

func TestIngestor_ResultBeforeFirstPoll(t *testing.T) {
	ing := New(&fakeSource{}, nil, nil, testConfig(), quietLogger())

	r := ing.Result()
	if len(r.Snapshots) != 0 || len(r.Occupancy) != 3 {
		t.Errorf("empty result = %+v", r)
	}
}

func TestIngestor_Prune(t *testing.T) {
	p := &countingPruner{}
	ing := New(&fakeSource{}, p, nil, testConfig(), quietLogger())
	ing.prune()
	if p.calls != 1 {
		t.Errorf("pruner calls = %d, want 1", p.calls)
	}

	New(&fakeSource{}, nil, nil, testConfig(), quietLogger()).prune()
}

func TestIngestor_RunStopsOnCancel(t *testing.T) {
	src := &fakeSource{positions: []domain.Position{inPark2("A", 0)}}
	ing := New(src, nil, nil, testConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ing.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !ing.IsReady() {
		select {
		case <-deadline:
			t.Fatal("Run() never completed its first poll")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestCompute_Idempotent(t *testing.T) {
	t.Parallel()

	in := []domain.Position{inPark2("A", 10*time.Second), inPark2("B", 0), inPark2("A", time.Second)}
	catalog := domain.DefaultCatalog()

	a := Compute(in, 4*time.Second, catalog, now)
	b := Compute(in, 4*time.Second, catalog, now)

	if len(a.Snapshots) != len(b.Snapshots) {
		t.Fatal("snapshot counts differ")
	}
	for i := range a.Occupancy {
		if a.Occupancy[i] != b.Occupancy[i] {
			t.Errorf("occupancy %d differs: %+v vs %+v", i, a.Occupancy[i], b.Occupancy[i])
		}
	}
}

func TestIngestor_ReadyClosesOnFirstSuccess(t *testing.T) {
	src := &fakeSource{err: errors.New("upstream down")}
	ing := New(src, nil, nil, testConfig(), quietLogger())

	_ = ing.Poll(context.Background())
	select {
	case <-ing.Ready():
		t.Fatal("Ready() closed after a failed poll")
	default:
	}

	src.set([]domain.Position{inPark2("A", 0)}, nil)
	for range 2 {
		if err := ing.Poll(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-ing.Ready():
	default:
		t.Fatal("Ready() still open after a successful poll")
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	remote := &fakeSource{positions: []domain.Position{inPark2("A", 0), inPark2("B", 0)}}
	local := &fakeSource{positions: []domain.Position{inPark2("C", 0)}}

	got, err := Merge(remote, local).Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2].DeviceID != "C" {
		t.Errorf("merged = %+v, want remote then local", got)
	}

	local.set(nil, errors.New("disk gone"))
	if _, err := Merge(remote, local).Fetch(context.Background()); err == nil {
		t.Error("Merge() should fail when any source fails")
	}
}

func TestIngestor_MergedSourceSeesLocalWrites(t *testing.T) {
	remote := &fakeSource{positions: []domain.Position{inPark2("A", 0)}}
	local := &fakeSource{}
	ing := New(Merge(remote, local), nil, nil, testConfig(), quietLogger())

	if err := ing.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	local.set([]domain.Position{inPark2("posted", 0)}, nil)
	if err := ing.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, p := range ing.Positions() {
		found = found || p.DeviceID == "posted"
	}
	if !found || len(ing.Positions()) != 2 {
		t.Errorf("positions = %+v, want remote plus locally ingested", ing.Positions())
	}
}
