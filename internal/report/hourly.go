// Package report builds hour-of-day presence reports over a calendar period.
package report

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"parkwatch/internal/domain"
	"parkwatch/internal/occupancy"
	"parkwatch/internal/period"
)

type Hourly struct {
	Period      period.Keyword    `json:"period"`
	Range       period.Range      `json:"range"`
	Slots       []domain.HourSlot `json:"slots"`
	Records     int               `json:"records"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// BuildHourly filters positions to period k relative to now and counts
// distinct devices per zone and local hour of day.
func BuildHourly(positions []domain.Position, catalog domain.Catalog, k period.Keyword, now time.Time) Hourly {
	k = period.Normalize(k)
	r := period.Resolve(k, now)
	return Summarize(period.FilterByRange(positions, r), catalog, k, r, now)
}

// Summarize builds the report for positions already filtered to r.
func Summarize(filtered []domain.Position, catalog domain.Catalog, k period.Keyword, r period.Range, now time.Time) Hourly {
	return Hourly{
		Period:      k,
		Range:       r,
		Slots:       occupancy.HourlyPresence(filtered, catalog, now.Location()),
		Records:     len(filtered),
		GeneratedAt: now,
	}
}

// Fingerprint identifies a record set independent of its order. Any added,
// removed or changed record yields a different value.
func Fingerprint(positions []domain.Position) uint64 {
	var (
		sum uint64
		buf [24]byte
	)
	d := xxhash.New()
	for _, p := range positions {
		binary.LittleEndian.PutUint64(buf[0:], uint64(p.Timestamp.UnixNano()))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(p.Lat))
		binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(p.Lon))
		d.Reset()
		_, _ = d.WriteString(p.DeviceID)
		_, _ = d.Write(buf[:])
		sum += d.Sum64()
	}
	return sum
}
