package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nikhilbhutani/promptlab/internal/database"
	"github.com/nikhilbhutani/promptlab/internal/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

var runColumns = []string{
	"id", "prompt_id", "version_id", "user_id", "model", "input_variables",
	"rendered_prompt", "output", "success", "error_message", "metadata", "created_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RecordInput carries everything about one finished execution attempt.
type RecordInput struct {
	PromptID       uuid.UUID          `json:"prompt_id"`
	VersionID      *uuid.UUID         `json:"version_id,omitempty"`
	UserID         *uuid.UUID         `json:"user_id,omitempty"`
	Model          string             `json:"model"`
	InputVariables map[string]string  `json:"input_variables"`
	RenderedPrompt string             `json:"rendered_prompt"`
	Output         *string            `json:"output,omitempty"`
	Success        bool               `json:"success"`
	ErrorMessage   *string            `json:"error_message,omitempty"`
	Metrics        *models.RunMetrics `json:"metrics,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
}

// Recorder persists prompt runs. Runs are append-only.
type Recorder struct {
	db database.Querier
}

func NewRecorder(db database.Querier) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) RecordRun(ctx context.Context, in RecordInput) (*models.PromptRun, error) {
	if in.PromptID == uuid.Nil {
		return nil, fmt.Errorf("%w: prompt_id is required", models.ErrValidation)
	}
	if in.Model == "" {
		return nil, fmt.Errorf("%w: model is required", models.ErrValidation)
	}
	for k := range in.InputVariables {
		if k == "" {
			return nil, fmt.Errorf("%w: input variable names must not be empty", models.ErrValidation)
		}
	}

	metrics := in.Metrics
	if metrics == nil {
		embedded, err := metricsFromMetadata(in.Metadata)
		if err != nil {
			return nil, err
		}
		metrics = embedded
	}
	if metrics != nil {
		if err := metrics.Validate(); err != nil {
			return nil, err
		}
	}

	if in.VersionID != nil {
		if err := r.checkVersion(ctx, in.PromptID, *in.VersionID); err != nil {
			return nil, err
		}
	}

	vars := in.InputVariables
	if vars == nil {
		vars = map[string]string{}
	}
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("marshal input variables: %w", err)
	}
	metaJSON, err := encodeMetadata(in.Metadata, metrics)
	if err != nil {
		return nil, err
	}

	query, args, err := psql.Insert("prompt_runs").
		Columns("prompt_id", "version_id", "user_id", "model", "input_variables",
			"rendered_prompt", "output", "success", "error_message", "metadata").
		Values(in.PromptID, in.VersionID, in.UserID, in.Model, varsJSON,
			in.RenderedPrompt, in.Output, in.Success, in.ErrorMessage, metaJSON).
		Suffix("RETURNING " + strings.Join(runColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	run, err := scanRun(r.db.QueryRow(ctx, query, args...))
	if database.IsForeignKeyViolation(err) {
		return nil, fmt.Errorf("%w: prompt %s", models.ErrNotFound, in.PromptID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// checkVersion rejects a version that is missing or belongs to another prompt.
func (r *Recorder) checkVersion(ctx context.Context, promptID, versionID uuid.UUID) error {
	var owner uuid.UUID
	err := r.db.QueryRow(ctx, "SELECT prompt_id FROM prompt_versions WHERE id = $1", versionID).Scan(&owner)
	if database.IsNoRows(err) {
		return fmt.Errorf("%w: version %s", models.ErrNotFound, versionID)
	}
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	if owner != promptID {
		return fmt.Errorf("%w: version %s of prompt %s", models.ErrNotFound, versionID, promptID)
	}
	return nil
}

func (r *Recorder) GetRun(ctx context.Context, id uuid.UUID) (*models.PromptRun, error) {
	query, args, err := psql.Select(runColumns...).From("prompt_runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	run, err := scanRun(r.db.QueryRow(ctx, query, args...))
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: run %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// QueryRuns returns matching runs newest first, one page at a time.
func (r *Recorder) QueryRuns(ctx context.Context, f models.RunFilter) ([]models.PromptRun, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", models.ErrValidation)
	}
	limit := f.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	qb := applyFilter(psql.Select(runColumns...).From("prompt_runs"), f).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(f.Offset))
	return r.list(ctx, qb)
}

// AllRuns returns every matching run oldest first, ignoring pagination.
func (r *Recorder) AllRuns(ctx context.Context, f models.RunFilter) ([]models.PromptRun, error) {
	qb := applyFilter(psql.Select(runColumns...).From("prompt_runs"), f).
		OrderBy("created_at ASC", "id ASC")
	return r.list(ctx, qb)
}

func (r *Recorder) CountRuns(ctx context.Context, f models.RunFilter) (int, error) {
	query, args, err := applyFilter(psql.Select("COUNT(*)").From("prompt_runs"), f).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func (r *Recorder) list(ctx context.Context, qb sq.SelectBuilder) ([]models.PromptRun, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.PromptRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func applyFilter(qb sq.SelectBuilder, f models.RunFilter) sq.SelectBuilder {
	if f.PromptID != nil {
		qb = qb.Where(sq.Eq{"prompt_id": *f.PromptID})
	}
	if f.VersionID != nil {
		qb = qb.Where(sq.Eq{"version_id": *f.VersionID})
	}
	if f.UserID != nil {
		qb = qb.Where(sq.Eq{"user_id": *f.UserID})
	}
	if f.Model != "" {
		qb = qb.Where(sq.Eq{"model": f.Model})
	}
	if f.StartDate != nil {
		qb = qb.Where(sq.GtOrEq{"created_at": *f.StartDate})
	}
	if f.EndDate != nil {
		qb = qb.Where(sq.LtOrEq{"created_at": *f.EndDate})
	}
	return qb
}

// encodeMetadata stores metrics under the reserved metadata key.
func encodeMetadata(meta map[string]any, metrics *models.RunMetrics) ([]byte, error) {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	delete(out, models.MetadataMetricsKey)
	if metrics != nil {
		out[models.MetadataMetricsKey] = metrics
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

// metricsFromMetadata lifts a caller-supplied metrics entry into the typed payload.
func metricsFromMetadata(meta map[string]any) (*models.RunMetrics, error) {
	raw, ok := meta[models.MetadataMetricsKey]
	if !ok || raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata.metrics: %v", models.ErrValidation, err)
	}
	var m models.RunMetrics
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: metadata.metrics: %v", models.ErrValidation, err)
	}
	return &m, nil
}

// decodeMetadata splits stored metadata into the typed metrics payload and the rest. A
// malformed metrics entry is logged and treated as absent.
func decodeMetadata(raw []byte) (map[string]any, *models.RunMetrics) {
	if len(raw) == 0 {
		return nil, nil
	}

	var envelope struct {
		Metrics json.RawMessage `json:"metrics"`
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		slog.Warn("undecodable run metadata", "error", err)
		return nil, nil
	}
	_ = json.Unmarshal(raw, &envelope)
	delete(meta, models.MetadataMetricsKey)
	if len(meta) == 0 {
		meta = nil
	}

	if len(envelope.Metrics) == 0 || string(envelope.Metrics) == "null" {
		return meta, nil
	}
	var m models.RunMetrics
	if err := json.Unmarshal(envelope.Metrics, &m); err != nil {
		slog.Warn("ignoring malformed run metrics", "error", err)
		return meta, nil
	}
	return meta, &m
}

func scanRun(row pgx.Row) (*models.PromptRun, error) {
	var (
		run      models.PromptRun
		varsJSON []byte
		metaJSON []byte
	)
	err := row.Scan(&run.ID, &run.PromptID, &run.VersionID, &run.UserID, &run.Model, &varsJSON,
		&run.RenderedPrompt, &run.Output, &run.Success, &run.ErrorMessage, &metaJSON, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &run.InputVariables); err != nil {
			return nil, fmt.Errorf("decode input variables: %w", err)
		}
	}
	run.Metadata, run.Metrics = decodeMetadata(metaJSON)
	return &run, nil
}
