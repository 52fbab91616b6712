package run

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptlab/internal/models"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

type runFixture struct {
	id       uuid.UUID
	promptID uuid.UUID
	success  bool
	output   *string
	errMsg   *string
	metadata string
}

func runRows(fixtures ...runFixture) *pgxmock.Rows {
	rows := pgxmock.NewRows(runColumns)
	for _, f := range fixtures {
		rows.AddRow(f.id, f.promptID, (*uuid.UUID)(nil), (*uuid.UUID)(nil), "gpt-4o",
			[]byte(`{"name":"Ada"}`), "Hello Ada", f.output, f.success, f.errMsg,
			[]byte(f.metadata), time.Now())
	}
	return rows
}

// metadataArg matches the encoded metadata column.
type metadataArg struct {
	check func(map[string]any) bool
}

func (a metadataArg) Match(v any) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return false
	}
	return a.check(m)
}

func TestRecorder_RecordRun(t *testing.T) {
	ctx := context.Background()

	t.Run("metrics are stored under the reserved metadata key", func(t *testing.T) {
		mock := newMock(t)
		promptID := uuid.New()
		out := "Hi Ada"

		mock.ExpectQuery("INSERT INTO prompt_runs").
			WithArgs(promptID, pgxmock.AnyArg(), pgxmock.AnyArg(), "gpt-4o", pgxmock.AnyArg(),
				"Hello Ada", &out, true, pgxmock.AnyArg(),
				metadataArg{check: func(m map[string]any) bool {
					metrics, ok := m["metrics"].(map[string]any)
					_, hasTokens := metrics["tokenCount"]
					return ok && metrics["responseTime"] == 120.0 && !hasTokens && m["source"] == "test"
				}}).
			WillReturnRows(runRows(runFixture{
				id: uuid.New(), promptID: promptID, success: true, output: &out,
				metadata: `{"source":"test","metrics":{"responseTime":120}}`,
			}))

		run, err := NewRecorder(mock).RecordRun(ctx, RecordInput{
			PromptID:       promptID,
			Model:          "gpt-4o",
			InputVariables: map[string]string{"name": "Ada"},
			RenderedPrompt: "Hello Ada",
			Output:         &out,
			Success:        true,
			Metrics:        &models.RunMetrics{ResponseTime: null.FloatFrom(120)},
			Metadata:       map[string]any{"source": "test"},
		})
		require.NoError(t, err)
		require.NotNil(t, run.Metrics)
		assert.Equal(t, null.FloatFrom(120), run.Metrics.ResponseTime)
		assert.False(t, run.Metrics.TokenCount.Valid)
		assert.Equal(t, map[string]any{"source": "test"}, run.Metadata)
		assert.Equal(t, map[string]string{"name": "Ada"}, run.InputVariables)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed run without metrics", func(t *testing.T) {
		mock := newMock(t)
		promptID := uuid.New()
		msg := "upstream execution failed: boom"

		mock.ExpectQuery("INSERT INTO prompt_runs").
			WithArgs(promptID, pgxmock.AnyArg(), pgxmock.AnyArg(), "gpt-4o", []byte(`{}`),
				"", pgxmock.AnyArg(), false, &msg, []byte(`{}`)).
			WillReturnRows(runRows(runFixture{
				id: uuid.New(), promptID: promptID, success: false, errMsg: &msg, metadata: `{}`,
			}))

		run, err := NewRecorder(mock).RecordRun(ctx, RecordInput{
			PromptID:     promptID,
			Model:        "gpt-4o",
			Success:      false,
			ErrorMessage: &msg,
		})
		require.NoError(t, err)
		assert.False(t, run.Success)
		assert.Nil(t, run.Output)
		assert.Nil(t, run.Metrics)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("metrics given inside metadata are lifted", func(t *testing.T) {
		mock := newMock(t)
		promptID := uuid.New()

		mock.ExpectQuery("INSERT INTO prompt_runs").
			WithArgs(promptID, pgxmock.AnyArg(), pgxmock.AnyArg(), "gpt-4o", pgxmock.AnyArg(),
				"", pgxmock.AnyArg(), true, pgxmock.AnyArg(),
				metadataArg{check: func(m map[string]any) bool {
					metrics, ok := m["metrics"].(map[string]any)
					return ok && metrics["tokenCount"] == 42.0
				}}).
			WillReturnRows(runRows(runFixture{
				id: uuid.New(), promptID: promptID, success: true, metadata: `{"metrics":{"tokenCount":42}}`,
			}))

		run, err := NewRecorder(mock).RecordRun(ctx, RecordInput{
			PromptID: promptID,
			Model:    "gpt-4o",
			Success:  true,
			Metadata: map[string]any{"metrics": map[string]any{"tokenCount": 42}},
		})
		require.NoError(t, err)
		require.NotNil(t, run.Metrics)
		assert.Equal(t, null.IntFrom(42), run.Metrics.TokenCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown prompt", func(t *testing.T) {
		mock := newMock(t)
		promptID := uuid.New()

		mock.ExpectQuery("INSERT INTO prompt_runs").
			WithArgs(promptID, pgxmock.AnyArg(), pgxmock.AnyArg(), "gpt-4o", pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), true, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})

		_, err := NewRecorder(mock).RecordRun(ctx, RecordInput{PromptID: promptID, Model: "gpt-4o", Success: true})
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version of another prompt", func(t *testing.T) {
		mock := newMock(t)
		promptID, versionID := uuid.New(), uuid.New()

		mock.ExpectQuery("SELECT prompt_id FROM prompt_versions WHERE id = \\$1").
			WithArgs(versionID).
			WillReturnRows(pgxmock.NewRows([]string{"prompt_id"}).AddRow(uuid.New()))

		_, err := NewRecorder(mock).RecordRun(ctx, RecordInput{PromptID: promptID, VersionID: &versionID, Model: "gpt-4o"})
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown version", func(t *testing.T) {
		mock := newMock(t)
		versionID := uuid.New()

		mock.ExpectQuery("SELECT prompt_id FROM prompt_versions").
			WithArgs(versionID).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewRecorder(mock).RecordRun(ctx, RecordInput{PromptID: uuid.New(), VersionID: &versionID, Model: "gpt-4o"})
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version of the same prompt is recorded", func(t *testing.T) {
		mock := newMock(t)
		promptID, versionID := uuid.New(), uuid.New()

		mock.ExpectQuery("SELECT prompt_id FROM prompt_versions").
			WithArgs(versionID).
			WillReturnRows(pgxmock.NewRows([]string{"prompt_id"}).AddRow(promptID))
		mock.ExpectQuery("INSERT INTO prompt_runs").
			WithArgs(promptID, &versionID, pgxmock.AnyArg(), "gpt-4o", pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), true, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(runRows(runFixture{id: uuid.New(), promptID: promptID, success: true, metadata: `{}`}))

		_, err := NewRecorder(mock).RecordRun(ctx, RecordInput{PromptID: promptID, VersionID: &versionID, Model: "gpt-4o", Success: true})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validation", func(t *testing.T) {
		promptID := uuid.New()
		cases := map[string]RecordInput{
			"missing prompt": {Model: "gpt-4o"},
			"missing model":  {PromptID: promptID},
			"empty variable": {PromptID: promptID, Model: "m", InputVariables: map[string]string{"": "x"}},
			"usage above one": {PromptID: promptID, Model: "m",
				Metrics: &models.RunMetrics{TokenUsage: null.FloatFrom(1.5)}},
			"negative latency": {PromptID: promptID, Model: "m",
				Metrics: &models.RunMetrics{ResponseTime: null.FloatFrom(-1)}},
			"satisfaction above five": {PromptID: promptID, Model: "m",
				Metrics: &models.RunMetrics{UserSatisfactionScore: null.FloatFrom(6)}},
			"malformed embedded metrics": {PromptID: promptID, Model: "m",
				Metadata: map[string]any{"metrics": map[string]any{"tokenCount": "many"}}},
		}
		for name, in := range cases {
			t.Run(name, func(t *testing.T) {
				mock := newMock(t)
				_, err := NewRecorder(mock).RecordRun(ctx, in)
				assert.ErrorIs(t, err, models.ErrValidation)
				assert.NoError(t, mock.ExpectationsWereMet())
			})
		}
	})
}

func TestRecorder_GetRun(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		id := uuid.New()

		mock.ExpectQuery("FROM prompt_runs WHERE id = \\$1").
			WithArgs(id.String()).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewRecorder(mock).GetRun(context.Background(), id)
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed stored metrics are treated as absent", func(t *testing.T) {
		mock := newMock(t)
		id := uuid.New()

		mock.ExpectQuery("FROM prompt_runs WHERE id = \\$1").
			WithArgs(id.String()).
			WillReturnRows(runRows(runFixture{
				id: id, promptID: uuid.New(), success: true, metadata: `{"metrics":"fast","k":"v"}`,
			}))

		run, err := NewRecorder(mock).GetRun(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, run.Metrics)
		assert.Equal(t, map[string]any{"k": "v"}, run.Metadata)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRecorder_QueryRuns(t *testing.T) {
	ctx := context.Background()

	t.Run("conjunctive filter, newest first, default page", func(t *testing.T) {
		mock := newMock(t)
		promptID := uuid.New()
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

		mock.ExpectQuery("SELECT .+ FROM prompt_runs WHERE prompt_id = \\$1 AND model = \\$2 AND created_at >= \\$3 AND created_at <= \\$4 ORDER BY created_at DESC, id DESC LIMIT 50 OFFSET 0").
			WithArgs(promptID.String(), "gpt-4o", start, end).
			WillReturnRows(runRows(
				runFixture{id: uuid.New(), promptID: promptID, success: true, metadata: `{}`},
				runFixture{id: uuid.New(), promptID: promptID, success: false, metadata: `{}`},
			))

		runs, err := NewRecorder(mock).QueryRuns(ctx, models.RunFilter{
			PromptID:  &promptID,
			Model:     "gpt-4o",
			StartDate: &start,
			EndDate:   &end,
		})
		require.NoError(t, err)
		assert.Len(t, runs, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("explicit page", func(t *testing.T) {
		mock := newMock(t)
		userID := uuid.New()

		mock.ExpectQuery("FROM prompt_runs WHERE user_id = \\$1 ORDER BY created_at DESC, id DESC LIMIT 10 OFFSET 20").
			WithArgs(userID.String()).
			WillReturnRows(runRows())

		runs, err := NewRecorder(mock).QueryRuns(ctx, models.RunFilter{UserID: &userID, Limit: 10, Offset: 20})
		require.NoError(t, err)
		assert.Empty(t, runs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative offset", func(t *testing.T) {
		_, err := NewRecorder(newMock(t)).QueryRuns(ctx, models.RunFilter{Offset: -1})
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestRecorder_AllRunsAndCount(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	promptID := uuid.New()

	mock.ExpectQuery("FROM prompt_runs WHERE prompt_id = \\$1 ORDER BY created_at ASC, id ASC$").
		WithArgs(promptID.String()).
		WillReturnRows(runRows(runFixture{id: uuid.New(), promptID: promptID, success: true, metadata: `{}`}))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM prompt_runs WHERE prompt_id = \\$1").
		WithArgs(promptID.String()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	rec := NewRecorder(mock)
	runs, err := rec.AllRuns(ctx, models.RunFilter{PromptID: &promptID})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	n, err := rec.CountRuns(ctx, models.RunFilter{PromptID: &promptID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
