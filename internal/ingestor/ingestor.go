package ingestor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"parkwatch/internal/batch"
	"parkwatch/internal/config"
	"parkwatch/internal/domain"
	"parkwatch/internal/metrics"
	"parkwatch/internal/occupancy"
)

// Source supplies the full position set for one cycle
type Source interface {
	Fetch(ctx context.Context) ([]domain.Position, error)
}

type merged []Source

// Merge returns a Source yielding the concatenated record sets of sources.
// Any failing source fails the whole fetch.
func Merge(sources ...Source) Source {
	return merged(sources)
}

func (m merged) Fetch(ctx context.Context) ([]domain.Position, error) {
	var all []domain.Position
	for _, src := range m {
		positions, err := src.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, positions...)
	}
	return all, nil
}

type Pruner interface {
	PruneStale(now time.Time) int
}

type Broadcaster interface {
	Broadcast(result *Result)
}

// Result is what one successful cycle produced
type Result struct {
	Positions  []domain.Position
	Snapshots  []domain.Snapshot
	Occupancy  []domain.Occupancy
	ComputedAt time.Time
}

// Compute batches positions and classifies the newest snapshot.
func Compute(positions []domain.Position, window time.Duration, catalog domain.Catalog, now time.Time) *Result {
	snapshots := batch.Batch(positions, window)
	latest := batch.Latest(snapshots)
	return &Result{
		Positions:  positions,
		Snapshots:  snapshots,
		Occupancy:  occupancy.Ordered(occupancy.Classify(latest, catalog), catalog),
		ComputedAt: now,
	}
}

type Ingestor struct {
	source      Source
	pruner      Pruner
	broadcaster Broadcaster
	config      *config.Config
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.RWMutex
	result  *Result
	ready   bool
	readyCh chan struct{}
}

func New(source Source, pruner Pruner, broadcaster Broadcaster, cfg *config.Config, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		source:      source,
		pruner:      pruner,
		broadcaster: broadcaster,
		config:      cfg,
		logger:      logger.With("component", "ingestor"),
		now:         time.Now,
		readyCh:     make(chan struct{}),
	}
}

func (i *Ingestor) Run(ctx context.Context) {
	ticker := time.NewTicker(i.config.PollInterval)
	defer ticker.Stop()

	pruneTicker := time.NewTicker(time.Hour)
	defer pruneTicker.Stop()

	i.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.Poll(ctx)
		case <-pruneTicker.C:
			i.prune()
		}
	}
}

// Poll runs one cycle. A failed fetch keeps the previous result.
func (i *Ingestor) Poll(ctx context.Context) error {
	start := time.Now()

	positions, err := i.source.Fetch(ctx)
	if err != nil {
		metrics.RecordPoll(time.Since(start), 0, err)
		i.logger.Error("failed to fetch positions, keeping previous result", "error", err)
		return err
	}

	result := Compute(positions, i.config.BatchWindow, i.config.Zones, i.now())

	i.mu.Lock()
	i.result = result
	wasReady := i.ready
	i.ready = true
	i.mu.Unlock()

	metrics.RecordPoll(time.Since(start), len(result.Snapshots), nil)
	metrics.RecordOccupancy(result.Occupancy)

	if i.broadcaster != nil {
		i.broadcaster.Broadcast(result)
	}

	if !wasReady {
		close(i.readyCh)
		i.logger.Info("ingestor ready", "positions", len(positions), "snapshots", len(result.Snapshots))
	}

	i.logger.Debug("poll completed",
		"positions", len(positions),
		"snapshots", len(result.Snapshots),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (i *Ingestor) prune() {
	if i.pruner == nil {
		return
	}
	if n := i.pruner.PruneStale(i.now()); n > 0 {
		i.logger.Info("pruned expired positions", "count", n)
	}
}

// Result returns the last successful cycle's output, or an empty result
// before the first one.
func (i *Ingestor) Result() *Result {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.result == nil {
		return Compute(nil, i.config.BatchWindow, i.config.Zones, time.Time{})
	}
	return i.result
}

// Ready is closed once the first poll has succeeded.
func (i *Ingestor) Ready() <-chan struct{} {
	return i.readyCh
}

func (i *Ingestor) IsReady() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ready
}

// Positions returns the record set the last cycle was computed from.
func (i *Ingestor) Positions() []domain.Position {
	return i.Result().Positions
}
