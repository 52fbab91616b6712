package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
)

// MetadataMetricsKey is the metadata key the metrics payload is stored under.
const MetadataMetricsKey = "metrics"

// RunMetrics is the optional performance payload of a run. Every field carries its own
// presence so a failed run can report a response time without a token count.
type RunMetrics struct {
	ResponseTime          null.Float `json:"responseTime,omitzero"`
	TokenCount            null.Int   `json:"tokenCount,omitzero"`
	TokenUsage            null.Float `json:"tokenUsage,omitzero"`
	SuccessRate           null.Float `json:"successRate,omitzero"`
	CompletionRate        null.Float `json:"completionRate,omitzero"`
	UserSatisfactionScore null.Float `json:"userSatisfactionScore,omitzero"`
}

func (m RunMetrics) Validate() error {
	if m.ResponseTime.Valid && m.ResponseTime.Float64 < 0 {
		return fmt.Errorf("%w: responseTime must be >= 0", ErrValidation)
	}
	if m.TokenCount.Valid && m.TokenCount.Int64 < 0 {
		return fmt.Errorf("%w: tokenCount must be >= 0", ErrValidation)
	}
	for _, r := range []struct {
		name string
		v    null.Float
		max  float64
	}{
		{"tokenUsage", m.TokenUsage, 1},
		{"successRate", m.SuccessRate, 1},
		{"completionRate", m.CompletionRate, 1},
		{"userSatisfactionScore", m.UserSatisfactionScore, 5},
	} {
		if r.v.Valid && (r.v.Float64 < 0 || r.v.Float64 > r.max) {
			return fmt.Errorf("%w: %s must be within [0, %g]", ErrValidation, r.name, r.max)
		}
	}
	return nil
}

// PromptRun is one recorded execution of a prompt against a model.
type PromptRun struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	PromptID       uuid.UUID         `json:"prompt_id" db:"prompt_id"`
	VersionID      *uuid.UUID        `json:"version_id,omitempty" db:"version_id"`
	UserID         *uuid.UUID        `json:"user_id,omitempty" db:"user_id"`
	Model          string            `json:"model" db:"model"`
	InputVariables map[string]string `json:"input_variables" db:"input_variables"`
	RenderedPrompt string            `json:"rendered_prompt" db:"rendered_prompt"`
	Output         *string           `json:"output,omitempty" db:"output"`
	Success        bool              `json:"success" db:"success"`
	ErrorMessage   *string           `json:"error_message,omitempty" db:"error_message"`
	Metrics        *RunMetrics       `json:"metrics,omitempty" db:"-"`
	Metadata       map[string]any    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}

// RunFilter selects runs. All fields are optional and combined with AND.
type RunFilter struct {
	PromptID  *uuid.UUID
	VersionID *uuid.UUID
	UserID    *uuid.UUID
	Model     string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}
