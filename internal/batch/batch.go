// Package batch groups raw GPS pings into snapshots of devices seen within a
// short window of each other.
package batch

import (
	"slices"
	"time"

	"parkwatch/internal/domain"
)

// DefaultWindow is the proximity window used when none is configured
const DefaultWindow = 4 * time.Second

// Batch sorts positions by timestamp and partitions them into snapshots.
//
// A snapshot is anchored at its earliest record and takes every following
// record no more than window after the anchor. Within a snapshot a device keeps
// only its last record, and members are ordered by where that surviving record
// sits in the sorted run. Unusable records are skipped.
func Batch(positions []domain.Position, window time.Duration) []domain.Snapshot {
	if window < 0 {
		window = 0
	}

	sorted := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.Usable() {
			sorted = append(sorted, p)
		}
	}
	if len(sorted) == 0 {
		return []domain.Snapshot{}
	}

	slices.SortStableFunc(sorted, func(a, b domain.Position) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	var snapshots []domain.Snapshot
	lastIndex := make(map[string]int)

	for start := 0; start < len(sorted); {
		anchor := sorted[start].Timestamp

		end := start
		for end < len(sorted) && sorted[end].Timestamp.Sub(anchor) <= window {
			lastIndex[sorted[end].DeviceID] = end
			end++
		}

		members := make([]domain.Position, 0, len(lastIndex))
		for i := start; i < end; i++ {
			if lastIndex[sorted[i].DeviceID] == i {
				members = append(members, sorted[i])
			}
		}
		clear(lastIndex)

		if len(members) > 0 {
			snapshots = append(snapshots, domain.Snapshot{Anchor: anchor, Positions: members})
		}
		start = end
	}

	return snapshots
}

// Latest returns the newest snapshot, or an empty one when there is none.
func Latest(snapshots []domain.Snapshot) domain.Snapshot {
	if len(snapshots) == 0 {
		return domain.Snapshot{Positions: []domain.Position{}}
	}
	return snapshots[len(snapshots)-1]
}

// Fresh keeps the members of s reported no more than maxAge before now.
func Fresh(s domain.Snapshot, now time.Time, maxAge time.Duration) domain.Snapshot {
	out := domain.Snapshot{Anchor: s.Anchor, Positions: make([]domain.Position, 0, len(s.Positions))}
	for _, p := range s.Positions {
		if now.Sub(p.Timestamp) <= maxAge {
			out.Positions = append(out.Positions, p)
		}
	}
	return out
}
