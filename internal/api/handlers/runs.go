package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptlab/internal/identity"
	"github.com/nikhilbhutani/promptlab/internal/models"
	"github.com/nikhilbhutani/promptlab/internal/run"
)

type RunStore interface {
	RecordRun(ctx context.Context, in run.RecordInput) (*models.PromptRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.PromptRun, error)
	QueryRuns(ctx context.Context, f models.RunFilter) ([]models.PromptRun, error)
	CountRuns(ctx context.Context, f models.RunFilter) (int, error)
}

type RunExecutor interface {
	Execute(ctx context.Context, req run.ExecuteRequest) (*models.PromptRun, error)
}

type RunHandler struct {
	store    RunStore
	executor RunExecutor
}

func NewRunHandler(store RunStore, executor RunExecutor) *RunHandler {
	return &RunHandler{store: store, executor: executor}
}

func (h *RunHandler) Record(w http.ResponseWriter, r *http.Request) {
	var in run.RecordInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.UserID == nil {
		in.UserID = identity.UserIDFromContext(r.Context())
	}

	pr, err := h.store.RecordRun(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, pr)
}

// Execute runs a prompt version against a model. A failed model call still answers 201
// with the recorded unsuccessful run.
func (h *RunHandler) Execute(w http.ResponseWriter, r *http.Request) {
	promptID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req run.ExecuteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.PromptID = promptID

	pr, err := h.executor.Execute(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, pr)
}

func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "runID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	pr, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pr)
}

func (h *RunHandler) Query(w http.ResponseWriter, r *http.Request) {
	f, err := runFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	runs, err := h.store.QueryRuns(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	total, err := h.store.CountRuns(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := f.Limit
	if limit == 0 {
		limit = run.DefaultLimit
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"total":  total,
		"limit":  min(limit, run.MaxLimit),
		"offset": f.Offset,
	})
}

func runFilter(r *http.Request) (models.RunFilter, error) {
	var (
		f   models.RunFilter
		err error
	)
	if f.PromptID, err = queryUUID(r, "prompt_id"); err != nil {
		return f, err
	}
	if f.VersionID, err = queryUUID(r, "version_id"); err != nil {
		return f, err
	}
	if f.UserID, err = queryUUID(r, "user_id"); err != nil {
		return f, err
	}
	if f.StartDate, err = queryTime(r, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = queryTime(r, "end_date"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		return f, err
	}
	f.Model = r.URL.Query().Get("model")
	return f, nil
}
