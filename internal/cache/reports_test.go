package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"parkwatch/internal/domain"
	"parkwatch/internal/period"
)

type memBackend struct {
	mu      sync.Mutex
	data    map[string][]byte
	sets    int
	deletes int
	fail    bool
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (m *memBackend) SetJSONCompressed(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("backend down")
	}
	data, err := encodeForTest(value)
	if err != nil {
		return err
	}
	m.data[key] = data
	m.sets++
	return nil
}

func (m *memBackend) GetJSONCompressed(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errors.New("backend down")
	}
	data, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return decodeCompressed(data, dest)
}

// DeletePattern supports trailing-star patterns only.
func (m *memBackend) DeletePattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("backend down")
	}
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
			m.deletes++
		}
	}
	return nil
}

func (m *memBackend) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for key := range m.data {
		out = append(out, key)
	}
	return out
}

// growingPositions is a record set that fills up while reports are served.
type growingPositions struct {
	mu        sync.Mutex
	positions []domain.Position
}

func (g *growingPositions) Positions() []domain.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Position(nil), g.positions...)
}

func (g *growingPositions) add(p ...domain.Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions = append(g.positions, p...)
}

type staticPositions []domain.Position

func (s staticPositions) Positions() []domain.Position { return s }

func newTestReports(b Backend, positions []domain.Position, now time.Time) *Reports {
	r := NewReports(b, staticPositions(positions), domain.DefaultCatalog(), time.UTC, time.Hour,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = func() time.Time { return now }
	return r
}

func TestKeyHourlyReport(t *testing.T) {
	t.Parallel()

	got := KeyHourlyReport(period.LastWeek, time.Date(2026, 10, 4, 0, 0, 0, 0, time.UTC), 12, 0xbeef)
	if got != "report:hourly:lastWeek:2026-10-04:12:000000000000beef" {
		t.Errorf("KeyHourlyReport() = %q", got)
	}
	if !strings.HasPrefix(got, strings.TrimSuffix(hourlyReportPattern, "*")) {
		t.Errorf("key %q escapes pattern %q", got, hourlyReportPattern)
	}
}

func TestGzipRoundTrip(t *testing.T) {
	t.Parallel()

	in := []byte(strings.Repeat("parkwatch ", 100))
	compressed, err := gzipCompress(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(compressed) >= len(in) {
		t.Errorf("compressed %d bytes to %d", len(in), len(compressed))
	}
	out, err := gzipDecompress(compressed)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(in) {
		t.Error("round trip changed the payload")
	}
}

func TestReports_CachesClosedPeriods(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	positions := []domain.Position{
		{DeviceID: "A", Lat: 26.9368, Lon: 75.9243, Timestamp: now.Add(-24 * time.Hour)},
	}
	b := newMemBackend()
	r := newTestReports(b, positions, now)

	first := r.Hourly(context.Background(), period.LastDay)
	if b.sets != 1 {
		t.Fatalf("sets after miss = %d, want 1", b.sets)
	}
	second := r.Hourly(context.Background(), period.LastDay)
	if b.sets != 1 {
		t.Errorf("sets after hit = %d, want 1", b.sets)
	}
	if second.Records != first.Records || second.Slots[12].Devices["PARK1"] != 1 {
		t.Errorf("cached report = %+v", second)
	}

	r.Hourly(context.Background(), period.ThisMonth)
	if b.sets != 1 {
		t.Errorf("thisMonth was cached")
	}
}

func TestReports_BackendFailureStillAnswers(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	b := newMemBackend()
	b.fail = true
	r := newTestReports(b, nil, now)

	got := r.Hourly(context.Background(), period.LastWeek)
	if len(got.Slots) != 24 || got.Period != period.LastWeek {
		t.Errorf("report = %+v", got)
	}
}

func TestReports_WarmAll(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	b := newMemBackend()
	r := newTestReports(b, nil, now)

	b.data["report:hourly:lastDay:2026-10-13:0:0000000000000000"] = nil

	if err := r.WarmAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{
		"report:hourly:lastDay:2026-10-14:0:0000000000000000",
		"report:hourly:lastWeek:2026-10-04:0:0000000000000000",
		"report:hourly:lastMonth:2026-09-01:0:0000000000000000",
	} {
		if _, ok := b.data[key]; !ok {
			t.Errorf("missing warmed key %q", key)
		}
	}
	if len(b.data) != 3 {
		t.Errorf("cache holds %d keys after warm, want 3: %v", len(b.data), b.keys())
	}
	if b.deletes != 1 {
		t.Errorf("deletes = %d, want the stale entry dropped", b.deletes)
	}
}

func TestReports_LateRecordsReachCachedReport(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	yesterday := func(id string, hour int) domain.Position {
		return domain.Position{DeviceID: id, Lat: 26.9368, Lon: 75.9243,
			Timestamp: time.Date(2026, 10, 14, hour, 0, 0, 0, time.UTC)}
	}

	src := &growingPositions{}
	b := newMemBackend()
	r := NewReports(b, src, domain.DefaultCatalog(), time.UTC, time.Hour,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = func() time.Time { return now }

	if err := r.WarmAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.Hourly(context.Background(), period.LastDay); got.Records != 0 {
		t.Fatalf("Records before ingest = %d, want 0", got.Records)
	}

	src.add(yesterday("A", 9))
	got := r.Hourly(context.Background(), period.LastDay)
	if got.Records != 1 || got.Slots[9].Devices["PARK1"] != 1 {
		t.Errorf("after first late record: Records = %d, slot 9 = %v", got.Records, got.Slots[9].Devices)
	}

	src.add(yesterday("B", 9), yesterday("C", 17))
	got = r.Hourly(context.Background(), period.LastDay)
	if got.Records != 3 || got.Slots[9].Devices["PARK1"] != 2 || got.Slots[17].Devices["PARK1"] != 1 {
		t.Errorf("after more late records: Records = %d, slots = %v / %v",
			got.Records, got.Slots[9].Devices, got.Slots[17].Devices)
	}

	if err := r.WarmAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(b.keys()); n != 3 {
		t.Errorf("cache holds %d keys after rewarm, want 3", n)
	}
	if got := r.Hourly(context.Background(), period.LastDay); got.Records != 3 {
		t.Errorf("Records after rewarm = %d, want 3", got.Records)
	}
}

func TestReports_NoBackend(t *testing.T) {
	t.Parallel()

	r := newTestReports(nil, nil, time.Now())
	if err := r.WarmAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.Hourly(context.Background(), period.LastMonth); len(got.Slots) != 24 {
		t.Errorf("len(Slots) = %d", len(got.Slots))
	}
}

func encodeForTest(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return gzipCompress(data)
}
