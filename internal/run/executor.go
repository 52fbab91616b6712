package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/nikhilbhutani/promptlab/internal/identity"
	"github.com/nikhilbhutani/promptlab/internal/llm"
	"github.com/nikhilbhutani/promptlab/internal/models"
	"github.com/nikhilbhutani/promptlab/internal/prompt"
	"github.com/nikhilbhutani/promptlab/pkg/tokenizer"
)

type VersionResolver interface {
	GetVersion(ctx context.Context, promptID uuid.UUID, number int) (*models.PromptVersion, error)
	CurrentVersion(ctx context.Context, promptID uuid.UUID) (*models.PromptVersion, error)
}

type Store interface {
	RecordRun(ctx context.Context, in RecordInput) (*models.PromptRun, error)
}

// Completer is the model execution capability.
type Completer interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

type Executor struct {
	versions     VersionResolver
	store        Store
	llm          Completer
	defaultModel string
	timeout      time.Duration
}

func NewExecutor(versions VersionResolver, store Store, completer Completer, defaultModel string, timeout time.Duration) *Executor {
	return &Executor{
		versions:     versions,
		store:        store,
		llm:          completer,
		defaultModel: defaultModel,
		timeout:      timeout,
	}
}

type ExecuteRequest struct {
	PromptID    uuid.UUID         `json:"-"`
	Version     int               `json:"version,omitempty"` // 0 = current
	Model       string            `json:"model,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	Variables   map[string]string `json:"variables"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	TopP        float64           `json:"top_p,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// Execute renders a version, runs it against a model and records the attempt. Model
// failures and timeouts are recorded as unsuccessful runs and returned without an error;
// only resolution, rendering and persistence failures are errors.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*models.PromptRun, error) {
	model := req.Model
	if model == "" {
		model = e.defaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("%w: model is required", models.ErrValidation)
	}

	var (
		v   *models.PromptVersion
		err error
	)
	if req.Version == 0 {
		v, err = e.versions.CurrentVersion(ctx, req.PromptID)
	} else {
		v, err = e.versions.GetVersion(ctx, req.PromptID, req.Version)
	}
	if err != nil {
		return nil, err
	}

	rendered, err := prompt.Render(v.Content, req.Variables)
	if err != nil {
		return nil, err
	}

	in := RecordInput{
		PromptID:       req.PromptID,
		VersionID:      &v.ID,
		UserID:         identity.UserIDFromContext(ctx),
		Model:          model,
		InputVariables: req.Variables,
		RenderedPrompt: rendered,
		Metadata:       make(map[string]any, len(req.Metadata)+4),
	}
	for k, val := range req.Metadata {
		in.Metadata[k] = val
	}

	callCtx, cancel := e.withTimeout(ctx)
	start := time.Now()
	resp, callErr := e.llm.Chat(callCtx, llm.ChatRequest{
		Provider:    req.Provider,
		Model:       model,
		Messages:    []llm.Message{{Role: "user", Content: rendered}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
	elapsed := time.Since(start)
	// A caller deadline is not our timeout.
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	metrics := &models.RunMetrics{
		ResponseTime: null.FloatFrom(float64(elapsed.Microseconds()) / 1000),
	}
	in.Metrics = metrics

	if callErr != nil {
		msg := fmt.Errorf("%w: %v", models.ErrUpstreamExecution, callErr).Error()
		if ctx.Err() != nil {
			msg = fmt.Sprintf("%s: caller gave up: %v", models.ErrUpstreamExecution, ctx.Err())
		} else if timedOut {
			msg = fmt.Sprintf("%s: timed out after %s", models.ErrUpstreamExecution, e.timeout)
		}
		in.Success = false
		in.ErrorMessage = &msg
		slog.WarnContext(ctx, "prompt execution failed",
			"prompt_id", req.PromptID,
			"version", v.VersionNumber,
			"model", model,
			"timed_out", timedOut,
			"error", callErr,
		)
	} else {
		tokens := resp.TotalTokens
		if tokens == 0 {
			tokens = tokenizer.CountTokens(rendered) + tokenizer.CountTokens(resp.Content)
		}
		metrics.TokenCount = null.IntFrom(int64(tokens))
		metrics.TokenUsage = null.FloatFrom(tokenizer.UsageRatio(tokens, llm.ContextWindow(model)))
		metrics.SuccessRate = null.FloatFrom(1)
		if resp.Completed() {
			metrics.CompletionRate = null.FloatFrom(1)
		} else {
			metrics.CompletionRate = null.FloatFrom(0)
		}

		in.Success = true
		in.Output = &resp.Content
		in.Metadata["provider"] = resp.Provider
		in.Metadata["finish_reason"] = resp.FinishReason
		in.Metadata["cost_usd"] = resp.CostUSD
		in.Metadata["input_tokens"] = resp.InputTokens
		in.Metadata["output_tokens"] = resp.OutputTokens
	}

	// The attempt is recorded even if the caller has gone away.
	run, err := e.store.RecordRun(context.WithoutCancel(ctx), in)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}
