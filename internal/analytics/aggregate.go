package analytics

import (
	"math"
	"time"

	"github.com/guregu/null/v5"
	"github.com/nikhilbhutani/promptlab/internal/models"
)

// ZeroPolicy decides whether a metric reported as exactly 0 counts towards its mean.
type ZeroPolicy int

const (
	// ZeroAsAbsent drops zero values like missing ones. Existing dashboards rely on it.
	ZeroAsAbsent ZeroPolicy = iota
	// ZeroAsValue averages every reported value, zeros included.
	ZeroAsValue
)

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64, valid bool, policy ZeroPolicy) {
	if !valid || math.IsNaN(v) {
		return
	}
	if v == 0 && policy == ZeroAsAbsent {
		return
	}
	m.sum += v
	m.n++
}

func (m mean) value() null.Float {
	if m.n == 0 {
		return null.Float{}
	}
	return null.FloatFrom(m.sum / float64(m.n))
}

type group struct {
	policy       ZeroPolicy
	total        int
	successful   int
	responseTime mean
	tokenCount   mean
	tokenUsage   mean
	completion   mean
	satisfaction mean
}

func (g *group) add(run *models.PromptRun) {
	g.total++
	if run.Success {
		g.successful++
	}
	m := run.Metrics
	if m == nil {
		return
	}
	g.responseTime.add(m.ResponseTime.Float64, m.ResponseTime.Valid, g.policy)
	g.tokenCount.add(float64(m.TokenCount.Int64), m.TokenCount.Valid, g.policy)
	g.tokenUsage.add(m.TokenUsage.Float64, m.TokenUsage.Valid, g.policy)
	g.completion.add(m.CompletionRate.Float64, m.CompletionRate.Valid, g.policy)
	g.satisfaction.add(m.UserSatisfactionScore.Float64, m.UserSatisfactionScore.Valid, g.policy)
}

func (g *group) successRate() float64 {
	if g.total == 0 {
		return 0
	}
	return float64(g.successful) / float64(g.total)
}

func (g *group) averages() models.MetricAverages {
	return models.MetricAverages{
		ResponseTime:          g.responseTime.value(),
		TokenCount:            g.tokenCount.value(),
		TokenUsage:            g.tokenUsage.value(),
		CompletionRate:        g.completion.value(),
		UserSatisfactionScore: g.satisfaction.value(),
	}
}

// Aggregate buckets runs by period. runs must be ordered oldest first; buckets come back
// in the order their keys were first seen.
func Aggregate(runs []models.PromptRun, period models.Period, loc *time.Location, policy ZeroPolicy) []models.MetricsBucket {
	var order []string
	groups := make(map[string]*group)
	for i := range runs {
		key := BucketKey(runs[i].CreatedAt, period, loc)
		g, ok := groups[key]
		if !ok {
			g = &group{policy: policy}
			groups[key] = g
			order = append(order, key)
		}
		g.add(&runs[i])
	}

	buckets := make([]models.MetricsBucket, 0, len(order))
	for _, key := range order {
		g := groups[key]
		buckets = append(buckets, models.MetricsBucket{
			Date:        key,
			TotalRuns:   g.total,
			SuccessRate: g.successRate(),
			Metrics:     g.averages(),
		})
	}
	return buckets
}

// Summarize aggregates runs as a single group.
func Summarize(runs []models.PromptRun, policy ZeroPolicy) (total int, successRate float64, avg models.MetricAverages) {
	g := &group{policy: policy}
	for i := range runs {
		g.add(&runs[i])
	}
	return g.total, g.successRate(), g.averages()
}
