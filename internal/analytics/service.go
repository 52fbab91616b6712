package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/promptlab/internal/cache"
	"github.com/nikhilbhutani/promptlab/internal/models"
)

// maxCompareConcurrency bounds the per-version queries of CompareVersions.
const maxCompareConcurrency = 8

// RunSource lists runs oldest first without pagination.
type RunSource interface {
	AllRuns(ctx context.Context, f models.RunFilter) ([]models.PromptRun, error)
}

type Options struct {
	Location *time.Location
	Policy   ZeroPolicy
	Cache    cache.Cache
	CacheTTL time.Duration
}

// Service computes read-only summaries of recorded runs. Results may lag behind runs
// recorded concurrently, and by up to CacheTTL when a cache is configured.
type Service struct {
	runs     RunSource
	loc      *time.Location
	policy   ZeroPolicy
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewService(runs RunSource, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		runs:     runs,
		loc:      loc,
		policy:   opts.Policy,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
	}
}

// GetPerformanceMetrics buckets the full run history of a prompt by period.
func (s *Service) GetPerformanceMetrics(ctx context.Context, promptID uuid.UUID, period models.Period) ([]models.MetricsBucket, error) {
	if period == "" {
		period = models.PeriodDay
	}
	if _, err := models.ParsePeriod(string(period)); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("metrics:%s:%s:%s:%d", promptID, period, s.loc, s.policy)
	if s.cache != nil && s.cacheTTL > 0 {
		var cached []models.MetricsBucket
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.WarnContext(ctx, "metrics cache read failed", "key", key, "error", err)
		}
	}

	runs, err := s.runs.AllRuns(ctx, models.RunFilter{PromptID: &promptID})
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	buckets := Aggregate(runs, period, s.loc, s.policy)

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, key, buckets, s.cacheTTL); err != nil {
			slog.WarnContext(ctx, "metrics cache write failed", "key", key, "error", err)
		}
	}
	return buckets, nil
}

// CompareVersions summarizes each version's runs side by side, in the order given. Missing
// metrics are excluded from means but zeros are kept.
func (s *Service) CompareVersions(ctx context.Context, promptID uuid.UUID, versionIDs []uuid.UUID) ([]models.VersionStats, error) {
	if len(versionIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one version id is required", models.ErrValidation)
	}

	stats := make([]models.VersionStats, len(versionIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxCompareConcurrency)
	for i, versionID := range versionIDs {
		g.Go(func() error {
			runs, err := s.runs.AllRuns(gctx, models.RunFilter{PromptID: &promptID, VersionID: &versionID})
			if err != nil {
				return fmt.Errorf("load runs for version %s: %w", versionID, err)
			}
			total, rate, avg := Summarize(runs, ZeroAsValue)
			stats[i] = models.VersionStats{
				VersionID:   versionID,
				TotalRuns:   total,
				SuccessRate: rate,
				Metrics:     avg,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
