package merge

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nikhilbhutani/promptlab/internal/audit"
	"github.com/nikhilbhutani/promptlab/internal/database"
	"github.com/nikhilbhutani/promptlab/internal/models"
	"github.com/nikhilbhutani/promptlab/internal/prompt"
)

const mrColumns = "id, prompt_id, content, description, status, base_version, created_by, reviewed_by, merged_version_id, merged_at, created_at, updated_at"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Notifier publishes merge request events to subscribers. Delivery is best effort.
type Notifier interface {
	Dispatch(ctx context.Context, promptID uuid.UUID, event string, payload any) error
}

type Service struct {
	db         database.DB
	maxRetries uint
	notifier   Notifier
	audit      prompt.Auditor
}

func NewService(db database.DB, maxRetries int, notifier Notifier, auditor prompt.Auditor) *Service {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{db: db, maxRetries: uint(maxRetries), notifier: notifier, audit: auditor}
}

// Propose opens a merge request against the prompt's current version.
func (s *Service) Propose(ctx context.Context, promptID uuid.UUID, content, description string, creatorID uuid.UUID) (*models.MergeRequest, error) {
	if creatorID == uuid.Nil {
		return nil, fmt.Errorf("%w: creator is required", models.ErrValidation)
	}

	mr, err := scanMergeRequest(s.db.QueryRow(ctx,
		`INSERT INTO merge_requests (prompt_id, content, description, base_version, created_by)
		 SELECT p.id, $2, $3, p.current_version, $4 FROM prompts p WHERE p.id = $1
		 RETURNING `+mrColumns,
		promptID, content, description, creatorID,
	))
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: prompt %s", models.ErrNotFound, promptID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert merge request: %w", err)
	}

	s.notify(ctx, mr, models.EventMergeRequestOpened, nil)
	return mr, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.MergeRequest, error) {
	return getMergeRequest(ctx, s.db, id, false)
}

// List returns a prompt's merge requests, newest first. A nil status lists all of them.
func (s *Service) List(ctx context.Context, promptID uuid.UUID, status *models.MergeRequestStatus) ([]models.MergeRequest, error) {
	qb := psql.Select(mrColumns).
		From("merge_requests").
		Where(sq.Eq{"prompt_id": promptID}).
		OrderBy("created_at DESC")
	if status != nil {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: invalid status %q", models.ErrValidation, *status)
		}
		qb = qb.Where(sq.Eq{"status": string(*status)})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build merge request query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list merge requests: %w", err)
	}
	defer rows.Close()

	mrs := []models.MergeRequest{}
	for rows.Next() {
		mr, err := scanMergeRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merge request: %w", err)
		}
		mrs = append(mrs, *mr)
	}
	return mrs, rows.Err()
}

// Accept merges an OPEN request: the new version and the MERGED status commit together or
// not at all. commitMessage overrides the default, which is the request's description.
func (s *Service) Accept(ctx context.Context, id, reviewerID uuid.UUID, commitMessage *string) (*models.PromptVersion, error) {
	var (
		mr *models.MergeRequest
		v  *models.PromptVersion
	)
	err := database.RetryOnConflict(ctx, s.maxRetries, func() error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		open, err := getMergeRequest(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if open.Status != models.MergeRequestOpen {
			return fmt.Errorf("%w: merge request %s is %s", models.ErrInvalidState, id, open.Status)
		}

		msg := commitMessage
		if msg == nil && open.Description != "" {
			msg = &open.Description
		}
		author := open.CreatedBy
		v, err = prompt.AppendVersion(ctx, tx, prompt.NewVersion{
			PromptID:       open.PromptID,
			Content:        open.Content,
			CommitMessage:  msg,
			AuthorID:       &author,
			MergeRequestID: &open.ID,
		})
		if err != nil {
			return err
		}

		mr, err = scanMergeRequest(tx.QueryRow(ctx,
			`UPDATE merge_requests
			 SET status = $2, reviewed_by = $3, merged_version_id = $4, merged_at = now(), updated_at = now()
			 WHERE id = $1 AND status = $5
			 RETURNING `+mrColumns,
			id, string(models.MergeRequestMerged), reviewerID, v.ID, string(models.MergeRequestOpen),
		))
		if err != nil {
			return fmt.Errorf("mark merge request merged: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "merge request merged", "merge_request_id", id, "version", v.VersionNumber)
	s.notify(ctx, mr, models.EventMergeRequestMerged, v)
	s.logAudit(ctx, models.AuditMergeRequestMerged, mr)
	return v, nil
}

// Reject closes an OPEN request without creating a version.
func (s *Service) Reject(ctx context.Context, id, reviewerID uuid.UUID) (*models.MergeRequest, error) {
	mr, err := scanMergeRequest(s.db.QueryRow(ctx,
		`UPDATE merge_requests
		 SET status = $2, reviewed_by = $3, updated_at = now()
		 WHERE id = $1 AND status = $4
		 RETURNING `+mrColumns,
		id, string(models.MergeRequestRejected), reviewerID, string(models.MergeRequestOpen),
	))
	if database.IsNoRows(err) {
		existing, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: merge request %s is %s", models.ErrInvalidState, id, existing.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("reject merge request: %w", err)
	}

	slog.InfoContext(ctx, "merge request rejected", "merge_request_id", id)
	s.notify(ctx, mr, models.EventMergeRequestRejected, nil)
	s.logAudit(ctx, models.AuditMergeRequestRejected, mr)
	return mr, nil
}

func getMergeRequest(ctx context.Context, q database.Querier, id uuid.UUID, forUpdate bool) (*models.MergeRequest, error) {
	query := `SELECT ` + mrColumns + ` FROM merge_requests WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	mr, err := scanMergeRequest(q.QueryRow(ctx, query, id))
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: merge request %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get merge request: %w", err)
	}
	return mr, nil
}

func (s *Service) notify(ctx context.Context, mr *models.MergeRequest, event string, v *models.PromptVersion) {
	if s.notifier == nil {
		return
	}
	payload := map[string]any{"merge_request": mr}
	if v != nil {
		payload["version"] = v
	}
	if err := s.notifier.Dispatch(ctx, mr.PromptID, event, payload); err != nil {
		slog.WarnContext(ctx, "webhook dispatch failed", "event", event, "merge_request_id", mr.ID, "error", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, mr *models.MergeRequest) {
	if s.audit == nil {
		return
	}
	details := map[string]any{"prompt_id": mr.PromptID, "status": mr.Status}
	if mr.MergedVersionID != nil {
		details["merged_version_id"] = *mr.MergedVersionID
	}
	err := s.audit.Log(ctx, audit.LogEntry{
		Action:       action,
		ResourceType: "merge_request",
		ResourceID:   &mr.ID,
		Details:      details,
	})
	if err != nil {
		slog.WarnContext(ctx, "audit log failed", "action", action, "error", err)
	}
}

func scanMergeRequest(row pgx.Row) (*models.MergeRequest, error) {
	var (
		mr     models.MergeRequest
		status string
	)
	err := row.Scan(&mr.ID, &mr.PromptID, &mr.Content, &mr.Description, &status, &mr.BaseVersion,
		&mr.CreatedBy, &mr.ReviewedBy, &mr.MergedVersionID, &mr.MergedAt, &mr.CreatedAt, &mr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	mr.Status = models.MergeRequestStatus(status)
	return &mr, nil
}
