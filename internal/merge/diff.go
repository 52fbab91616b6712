package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/nikhilbhutani/promptlab/internal/models"
	"github.com/nikhilbhutani/promptlab/internal/prompt"
)

type DiffResult struct {
	MergeRequestID uuid.UUID `json:"merge_request_id"`
	CurrentVersion int       `json:"current_version"`
	Diff           string    `json:"diff"`
}

// Diff compares the proposal with the prompt's current version. Nothing is stored.
func (s *Service) Diff(ctx context.Context, id uuid.UUID) (*DiffResult, error) {
	mr, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		current string
		number  int
	)
	v, err := prompt.CurrentVersionTx(ctx, s.db, mr.PromptID)
	switch {
	case err == nil:
		current, number = v.Content, v.VersionNumber
	case errors.Is(err, models.ErrNotFound):
	default:
		return nil, err
	}

	text, err := UnifiedDiff(current, mr.Content, fmt.Sprintf("v%d", number), "merge_request/"+mr.ID.String())
	if err != nil {
		return nil, err
	}
	return &DiffResult{MergeRequestID: mr.ID, CurrentVersion: number, Diff: text}, nil
}

// UnifiedDiff renders a line-based unified diff with three lines of context. Identical
// inputs produce an empty string.
func UnifiedDiff(from, to, fromName, toName string) (string, error) {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("compute diff: %w", err)
	}
	return text, nil
}
