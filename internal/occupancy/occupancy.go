// Package occupancy derives parking availability from device positions.
//
// Two metrics live here and they are not interchangeable: Classify counts the
// devices of one snapshot (an instant), HourlyPresence counts every distinct
// device seen during an hour of the day across a whole period.
package occupancy

import (
	"fmt"
	"time"

	"parkwatch/internal/domain"
)

// Classify counts the snapshot members inside each zone of the catalog.
// A zone is full once the count reaches its threshold.
func Classify(s domain.Snapshot, catalog domain.Catalog) map[string]domain.Occupancy {
	result := make(map[string]domain.Occupancy, len(catalog.Zones))
	for _, z := range catalog.Zones {
		count := 0
		for _, p := range s.Positions {
			if p.Usable() && z.Bounds.Contains(p.Lat, p.Lon) {
				count++
			}
		}
		result[z.Name] = Evaluate(z, count)
	}
	return result
}

// Evaluate turns a device count into the zone's occupancy.
func Evaluate(z domain.Zone, count int) domain.Occupancy {
	status := domain.StatusAvailable
	if count >= z.Threshold {
		status = domain.StatusFull
	}
	return domain.Occupancy{
		Zone:           z.Name,
		Count:          count,
		Threshold:      z.Threshold,
		Status:         status,
		AvailableSlots: max(z.Threshold-count, 0),
	}
}

// Ordered lists occupancies in catalog order.
func Ordered(occ map[string]domain.Occupancy, catalog domain.Catalog) []domain.Occupancy {
	out := make([]domain.Occupancy, 0, len(catalog.Zones))
	for _, z := range catalog.Zones {
		if o, ok := occ[z.Name]; ok {
			out = append(out, o)
		}
	}
	return out
}

// SlotLabel names the hour slot starting at hour, e.g. "23-0".
func SlotLabel(hour int) string {
	return fmt.Sprintf("%d-%d", hour, (hour+1)%24)
}

// HourlyPresence buckets positions by local hour of day and counts distinct
// devices per zone in each bucket. A position inside overlapping zones counts
// toward all of them.
func HourlyPresence(positions []domain.Position, catalog domain.Catalog, loc *time.Location) []domain.HourSlot {
	if loc == nil {
		loc = time.Local
	}

	seen := make([]map[string]map[string]struct{}, 24)
	for h := range seen {
		seen[h] = make(map[string]map[string]struct{}, len(catalog.Zones))
		for _, z := range catalog.Zones {
			seen[h][z.Name] = make(map[string]struct{})
		}
	}

	for _, p := range positions {
		if !p.Usable() {
			continue
		}
		hour := p.Timestamp.In(loc).Hour()
		for _, z := range catalog.Zones {
			if z.Bounds.Contains(p.Lat, p.Lon) {
				seen[hour][z.Name][p.DeviceID] = struct{}{}
			}
		}
	}

	slots := make([]domain.HourSlot, 24)
	for h := range slots {
		devices := make(map[string]int, len(catalog.Zones))
		for name, set := range seen[h] {
			devices[name] = len(set)
		}
		slots[h] = domain.HourSlot{Label: SlotLabel(h), Hour: h, Devices: devices}
	}
	return slots
}
