package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptlab/internal/cache"
	"github.com/nikhilbhutani/promptlab/internal/models"
)

type fakeRuns struct {
	mu    sync.Mutex
	calls int
	runs  []models.PromptRun
	err   error
}

func (f *fakeRuns) AllRuns(_ context.Context, filter models.RunFilter) ([]models.PromptRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PromptRun
	for _, r := range f.runs {
		if filter.PromptID != nil && r.PromptID != *filter.PromptID {
			continue
		}
		if filter.VersionID != nil && (r.VersionID == nil || *r.VersionID != *filter.VersionID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func TestService_GetPerformanceMetrics(t *testing.T) {
	ctx := context.Background()
	promptID := uuid.New()
	source := &fakeRuns{runs: []models.PromptRun{
		{PromptID: promptID, CreatedAt: day(2024, time.May, 4, 1), Success: true, Metrics: latency(100)},
		{PromptID: promptID, CreatedAt: day(2024, time.May, 5, 1), Success: false},
		{PromptID: uuid.New(), CreatedAt: day(2024, time.May, 5, 1), Success: true},
	}}

	svc := NewService(source, Options{
		Cache:    cache.NewLRUCache(16, time.Minute),
		CacheTTL: time.Minute,
	})

	buckets, err := svc.GetPerformanceMetrics(ctx, promptID, models.PeriodDay)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "2024-5-4", buckets[0].Date)
	assert.Equal(t, null.FloatFrom(100), buckets[0].Metrics.ResponseTime)
	assert.Equal(t, 0.0, buckets[1].SuccessRate)

	again, err := svc.GetPerformanceMetrics(ctx, promptID, models.PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, buckets, again)
	assert.Equal(t, 1, source.calls, "second call served from cache")

	monthly, err := svc.GetPerformanceMetrics(ctx, promptID, models.PeriodMonth)
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.Equal(t, 2, monthly[0].TotalRuns)
	assert.Equal(t, 2, source.calls)
}

func TestService_GetPerformanceMetrics_InvalidPeriod(t *testing.T) {
	svc := NewService(&fakeRuns{}, Options{})
	_, err := svc.GetPerformanceMetrics(context.Background(), uuid.New(), "year")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestService_CompareVersions(t *testing.T) {
	ctx := context.Background()
	promptID := uuid.New()
	v1, v2, v3 := uuid.New(), uuid.New(), uuid.New()
	source := &fakeRuns{runs: []models.PromptRun{
		{PromptID: promptID, VersionID: &v1, Success: true, Metrics: latency(0)},
		{PromptID: promptID, VersionID: &v1, Success: false, Metrics: latency(100)},
		{PromptID: promptID, VersionID: &v2, Success: true, Metrics: &models.RunMetrics{TokenCount: null.IntFrom(12)}},
	}}

	stats, err := NewService(source, Options{}).CompareVersions(ctx, promptID, []uuid.UUID{v2, v1, v3})
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Equal(t, v2, stats[0].VersionID)
	assert.Equal(t, null.FloatFrom(12), stats[0].Metrics.TokenCount)
	assert.False(t, stats[0].Metrics.ResponseTime.Valid)

	assert.Equal(t, v1, stats[1].VersionID)
	assert.Equal(t, 2, stats[1].TotalRuns)
	assert.Equal(t, 0.5, stats[1].SuccessRate)
	assert.Equal(t, null.FloatFrom(50), stats[1].Metrics.ResponseTime, "zero is a reported value here")

	assert.Equal(t, 0, stats[2].TotalRuns)
	assert.Equal(t, 0.0, stats[2].SuccessRate)
}

func TestService_CompareVersions_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewService(&fakeRuns{}, Options{}).CompareVersions(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = NewService(&fakeRuns{err: assert.AnError}, Options{}).CompareVersions(ctx, uuid.New(), []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, assert.AnError)
}
