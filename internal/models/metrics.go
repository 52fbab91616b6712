package models

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
)

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod accepts day, week or month. An empty string means day.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return PeriodDay, nil
	case PeriodDay, PeriodWeek, PeriodMonth:
		return Period(s), nil
	}
	return "", fmt.Errorf("%w: invalid period %q, must be day, week, or month", ErrValidation, s)
}

// MetricAverages holds the per-metric means of a group of runs. A metric no run reported
// stays invalid and is omitted from JSON.
type MetricAverages struct {
	ResponseTime          null.Float `json:"responseTime,omitzero"`
	TokenCount            null.Float `json:"tokenCount,omitzero"`
	TokenUsage            null.Float `json:"tokenUsage,omitzero"`
	CompletionRate        null.Float `json:"completionRate,omitzero"`
	UserSatisfactionScore null.Float `json:"userSatisfactionScore,omitzero"`
}

// MetricsBucket is one aggregation result for a prompt over a period.
type MetricsBucket struct {
	Date        string         `json:"date"`
	TotalRuns   int            `json:"totalRuns"`
	SuccessRate float64        `json:"successRate"`
	Metrics     MetricAverages `json:"metrics"`
}

// VersionStats aggregates every run recorded against one version.
type VersionStats struct {
	VersionID   uuid.UUID      `json:"versionId"`
	TotalRuns   int            `json:"totalRuns"`
	SuccessRate float64        `json:"successRate"`
	Metrics     MetricAverages `json:"metrics"`
}
