package gpsapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func TestDecode_Array(t *testing.T) {
	t.Parallel()

	body := `[
		{"vehicleId":"bus-1","latitude":26.9352,"longitude":75.9245,"speed":12,"course":370,"timestamp":"2026-10-14T09:00:00.000Z"},
		{"deviceId":"bus-2","latitude":26.9353,"longitude":75.9246,"heading":-90,"timestamp":1792000000000},
		{"deviceId":"bus-3","latitude":"north","longitude":75.9,"timestamp":"2026-10-14T09:00:00Z"},
		{"deviceId":"bus-4","longitude":75.9,"timestamp":"2026-10-14T09:00:00Z"},
		{"deviceId":"bus-5","latitude":26.9,"longitude":75.9},
		{"deviceId":"bus-6","latitude":26.9,"longitude":75.9,"timestamp":"yesterday"},
		{"deviceId":"bus-7","latitude":26.9,"longitude":75.9,"speed":-3,"timestamp":"2026-10-14 14:30:00"}
	]`

	got, skipped, err := Decode([]byte(body), ist)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 3 || skipped != 4 {
		t.Fatalf("Decode() = %d positions, %d skipped; want 3 and 4", len(got), skipped)
	}

	first := got[0]
	if first.DeviceID != "bus-1" {
		t.Errorf("vehicleId alias not applied: %q", first.DeviceID)
	}
	if first.Heading == nil || *first.Heading != 10 {
		t.Errorf("course alias heading = %v, want 10", first.Heading)
	}
	if !first.Timestamp.Equal(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", first.Timestamp)
	}

	if got[1].Heading == nil || *got[1].Heading != 270 {
		t.Errorf("negative heading normalised to %v, want 270", got[1].Heading)
	}
	if !got[1].Timestamp.Equal(time.UnixMilli(1792000000000)) {
		t.Errorf("epoch timestamp = %v", got[1].Timestamp)
	}

	local := got[2]
	if local.Speed != nil {
		t.Errorf("negative speed kept as %v", *local.Speed)
	}
	if !local.Timestamp.Equal(time.Date(2026, 10, 14, 14, 30, 0, 0, ist)) {
		t.Errorf("zone-less timestamp = %v, want it read in IST", local.Timestamp)
	}
}

func TestDecode_SingleObject(t *testing.T) {
	t.Parallel()

	got, skipped, err := Decode([]byte(`{"deviceId":"A","latitude":1,"longitude":2,"timestamp":"2026-10-14T09:00:00Z"}`), nil)
	if err != nil || len(got) != 1 || skipped != 0 {
		t.Fatalf("Decode() = %v, %d, %v", got, skipped, err)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	if _, _, err := Decode([]byte("  "), nil); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("empty body error = %v", err)
	}
	if _, _, err := Decode([]byte("[{"), nil); err == nil {
		t.Error("truncated array should fail")
	}
	got, skipped, err := Decode([]byte("[]"), nil)
	if err != nil || len(got) != 0 || skipped != 0 {
		t.Errorf("Decode([]) = %v, %d, %v", got, skipped, err)
	}
}

func TestClient_Fetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"vehicleId":"A","latitude":26.9,"longitude":75.9,"timestamp":"2026-10-14T09:00:00Z"},{"vehicleId":"B"}]`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, 5*time.Second, time.UTC).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 || got[0].DeviceID != "A" {
		t.Errorf("Fetch() = %+v", got)
	}
}

func TestClient_FetchStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, 5*time.Second, time.UTC).Fetch(context.Background()); err == nil {
		t.Error("Fetch() should fail on a 500")
	}
}

func TestDecode_RequiresDeviceID(t *testing.T) {
	t.Parallel()

	body := `[
		{"latitude":26.9352,"longitude":75.9245,"timestamp":"2026-10-14T09:00:00Z"},
		{"deviceId":"","vehicleId":"","latitude":26.9352,"longitude":75.9245,"timestamp":"2026-10-14T09:00:01Z"},
		{"vehicleId":"bus-9","latitude":26.9352,"longitude":75.9245,"timestamp":"2026-10-14T09:00:02Z"}
	]`

	got, skipped, err := Decode([]byte(body), nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 1 || skipped != 2 {
		t.Fatalf("Decode() = %d positions, %d skipped; want 1 and 2", len(got), skipped)
	}
	if got[0].DeviceID != "bus-9" {
		t.Errorf("DeviceID = %q", got[0].DeviceID)
	}
}
