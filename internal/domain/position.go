package domain

import (
	"math"
	"time"
)

// Position is a single GPS reading reported by a device
type Position struct {
	DeviceID  string    `json:"deviceId"`
	Lat       float64   `json:"latitude"`
	Lon       float64   `json:"longitude"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Usable reports whether the position carries a timestamp and a finite,
// in-range coordinate pair.
func (p Position) Usable() bool {
	if p.Timestamp.IsZero() {
		return false
	}
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Sector is a coarse compass direction used to pick marker icons
type Sector string

const (
	SectorNorth Sector = "N"
	SectorEast  Sector = "E"
	SectorSouth Sector = "S"
	SectorWest  Sector = "W"
)

// HeadingSector maps a heading to a quarter of the compass.
// Quarters are closed on their upper bound: 0-90 is north, (90,180] east,
// (180,270] south, anything else (including a missing heading) west.
func HeadingSector(heading *float64) Sector {
	if heading == nil {
		return SectorWest
	}
	h := *heading
	switch {
	case h >= 0 && h <= 90:
		return SectorNorth
	case h > 90 && h <= 180:
		return SectorEast
	case h > 180 && h <= 270:
		return SectorSouth
	default:
		return SectorWest
	}
}

// Snapshot is a deduplicated set of positions, one per device, all within the
// batch window of Anchor.
type Snapshot struct {
	Anchor    time.Time  `json:"anchor"`
	Positions []Position `json:"positions"`
}

// Latest returns the timestamp of the last member, or the zero time.
func (s Snapshot) Latest() time.Time {
	if len(s.Positions) == 0 {
		return time.Time{}
	}
	return s.Positions[len(s.Positions)-1].Timestamp
}
