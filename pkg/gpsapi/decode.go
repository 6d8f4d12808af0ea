// Package gpsapi speaks the JSON shape GPS readings travel in, both from
// devices posting them and from the query endpoint listing them.
package gpsapi

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"parkwatch/internal/domain"
)

var ErrEmptyBody = errors.New("empty body")

// Record is one reading on the wire. Older senders use vehicleId and course.
type Record struct {
	DeviceID  string          `json:"deviceId,omitempty"`
	VehicleID string          `json:"vehicleId,omitempty"`
	Latitude  *float64        `json:"latitude"`
	Longitude *float64        `json:"longitude"`
	Speed     *float64        `json:"speed,omitempty"`
	Heading   *float64        `json:"heading,omitempty"`
	Course    *float64        `json:"course,omitempty"`
	Timestamp json.RawMessage `json:"timestamp"`
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Position converts the record, reporting false when a required field is
// missing or malformed. A record needs a device id, latitude, longitude and
// timestamp.
func (r Record) Position(loc *time.Location) (domain.Position, bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return domain.Position{}, false
	}
	ts, ok := parseTimestamp(r.Timestamp, loc)
	if !ok {
		return domain.Position{}, false
	}

	id := r.DeviceID
	if id == "" {
		id = r.VehicleID
	}
	if id == "" {
		return domain.Position{}, false
	}
	heading := r.Heading
	if heading == nil {
		heading = r.Course
	}
	if heading != nil {
		h := math.Mod(*heading, 360)
		if h < 0 {
			h += 360
		}
		heading = &h
	}
	speed := r.Speed
	if speed != nil && *speed < 0 {
		speed = nil
	}

	p := domain.Position{
		DeviceID:  id,
		Lat:       *r.Latitude,
		Lon:       *r.Longitude,
		Speed:     speed,
		Heading:   heading,
		Timestamp: ts,
	}
	if !p.Usable() {
		return domain.Position{}, false
	}
	return p, true
}

// parseTimestamp accepts a string in one of the known layouts or a number of
// milliseconds since the epoch. Zone-less strings are read in loc.
func parseTimestamp(raw json.RawMessage, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}

	if raw[0] != '"' {
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Decode parses a single record or an array of records. Records that cannot be
// used are skipped and counted instead of failing the whole body.
func Decode(data []byte, loc *time.Location) ([]domain.Position, int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, 0, ErrEmptyBody
	}

	var items []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, 0, err
		}
	} else {
		items = []json.RawMessage{data}
	}

	positions := make([]domain.Position, 0, len(items))
	skipped := 0
	for _, item := range items {
		var r Record
		if err := json.Unmarshal(item, &r); err != nil {
			skipped++
			continue
		}
		p, ok := r.Position(loc)
		if !ok {
			skipped++
			continue
		}
		positions = append(positions, p)
	}
	return positions, skipped, nil
}
