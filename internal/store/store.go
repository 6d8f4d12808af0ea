package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"parkwatch/internal/domain"
)

type ListOptions struct {
	DeviceID string
	BBox     *domain.BoundingBox
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Store keeps every accepted position in memory
type Store struct {
	mu        sync.RWMutex
	positions []domain.Position

	retention time.Duration
}

func New(retention time.Duration) *Store {
	return &Store{retention: retention}
}

// Add appends usable positions and returns how many were accepted.
func (s *Store) Add(positions []domain.Position) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := 0
	for _, p := range positions {
		if !p.Usable() {
			continue
		}
		s.positions = append(s.positions, p)
		accepted++
	}
	return accepted
}

// All returns a copy of every stored position in arrival order.
func (s *Store) All() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.positions)
}

// Fetch returns the full record set; it lets the store act as a poll source.
func (s *Store) Fetch(ctx context.Context) ([]domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.All(), nil
}

// Filter applies opts to positions without modifying them and returns the
// matches newest first.
func Filter(positions []domain.Position, opts ListOptions) []domain.Position {
	result := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if opts.DeviceID != "" && p.DeviceID != opts.DeviceID {
			continue
		}
		if opts.BBox != nil && !opts.BBox.Contains(p.Lat, p.Lon) {
			continue
		}
		if !opts.Since.IsZero() && p.Timestamp.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && p.Timestamp.After(opts.Until) {
			continue
		}
		result = append(result, p)
	}

	slices.SortStableFunc(result, func(a, b domain.Position) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// DeviceCount returns the number of distinct devices with stored positions.
func (s *Store) DeviceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range s.positions {
		seen[p.DeviceID] = struct{}{}
	}
	return len(seen)
}

// PruneStale drops positions older than the retention period and returns how
// many were removed. A zero retention keeps everything.
func (s *Store) PruneStale(now time.Time) int {
	if s.retention <= 0 {
		return 0
	}
	return s.PruneBefore(now.Add(-s.retention))
}

func (s *Store) PruneBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.positions[:0]
	for _, p := range s.positions {
		if !p.Timestamp.Before(cutoff) {
			kept = append(kept, p)
		}
	}
	removed := len(s.positions) - len(kept)
	clear(s.positions[len(kept):])
	s.positions = kept
	return removed
}
