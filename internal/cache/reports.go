package cache

import (
	"context"
	"log/slog"
	"time"

	"parkwatch/internal/domain"
	"parkwatch/internal/metrics"
	"parkwatch/internal/period"
	"parkwatch/internal/report"
)

// Backend is the subset of RedisCache the report service needs
type Backend interface {
	SetJSONCompressed(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSONCompressed(ctx context.Context, key string, dest any) (bool, error)
	DeletePattern(ctx context.Context, pattern string) error
}

type PositionSource interface {
	Positions() []domain.Position
}

// Reports serves hourly presence reports. Closed periods are cached when a
// backend is configured; thisMonth is always computed. Cache entries are keyed
// by the record set they summarize, so late records bypass older entries.
type Reports struct {
	backend   Backend
	positions PositionSource
	catalog   domain.Catalog
	loc       *time.Location
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewReports(backend Backend, positions PositionSource, catalog domain.Catalog, loc *time.Location, ttl time.Duration, logger *slog.Logger) *Reports {
	if loc == nil {
		loc = time.Local
	}
	return &Reports{
		backend:   backend,
		positions: positions,
		catalog:   catalog,
		loc:       loc,
		ttl:       ttl,
		logger:    logger.With("component", "report_cache"),
		now:       time.Now,
	}
}

func (r *Reports) Hourly(ctx context.Context, k period.Keyword) report.Hourly {
	now := r.now().In(r.loc)
	k = period.Normalize(k)

	if r.backend == nil || !k.Closed() {
		return report.BuildHourly(r.positions.Positions(), r.catalog, k, now)
	}

	rng := period.Resolve(k, now)
	filtered := period.FilterByRange(r.positions.Positions(), rng)
	key := KeyHourlyReport(k, rng.Start, len(filtered), report.Fingerprint(filtered))

	var cached report.Hourly
	found, err := r.backend.GetJSONCompressed(ctx, key, &cached)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		r.logger.Warn("report cache read failed", "key", key, "error", err)
	case found:
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return cached
	default:
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	}

	rep := report.Summarize(filtered, r.catalog, k, rng, now)
	if err := r.backend.SetJSONCompressed(ctx, key, rep, r.ttl); err != nil {
		r.logger.Warn("report cache write failed", "key", key, "error", err)
	}
	return rep
}

// WarmAll drops every cached report and stores the closed-period reports for
// the current record set.
func (r *Reports) WarmAll(ctx context.Context) error {
	if r.backend == nil {
		return nil
	}
	start := time.Now()
	now := r.now().In(r.loc)
	positions := r.positions.Positions()

	if err := r.backend.DeletePattern(ctx, hourlyReportPattern); err != nil {
		r.logger.Warn("failed to drop stale reports", "pattern", hourlyReportPattern, "error", err)
	}

	warmed := 0
	for _, k := range period.Keywords() {
		if !k.Closed() {
			continue
		}
		rng := period.Resolve(k, now)
		filtered := period.FilterByRange(positions, rng)
		key := KeyHourlyReport(k, rng.Start, len(filtered), report.Fingerprint(filtered))
		rep := report.Summarize(filtered, r.catalog, k, rng, now)
		if err := r.backend.SetJSONCompressed(ctx, key, rep, r.ttl); err != nil {
			r.logger.Error("failed to warm report", "key", key, "error", err)
			continue
		}
		warmed++
	}

	r.logger.Info("report cache warmed", "reports", warmed, "records", len(positions), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// ScheduleMidnightRefresh rewarms shortly after each local midnight, when
// every closed period rolls over.
func (r *Reports) ScheduleMidnightRefresh(ctx context.Context) {
	for {
		now := r.now().In(r.loc)
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 5, 0, 0, r.loc)
		wait := next.Sub(now)

		r.logger.Info("scheduled next report refresh", "at", next, "in", wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			if err := r.WarmAll(ctx); err != nil {
				r.logger.Error("midnight report refresh failed", "error", err)
			}
		}
	}
}
