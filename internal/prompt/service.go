package prompt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nikhilbhutani/promptlab/internal/audit"
	"github.com/nikhilbhutani/promptlab/internal/database"
	"github.com/nikhilbhutani/promptlab/internal/identity"
	"github.com/nikhilbhutani/promptlab/internal/models"
)

const (
	promptColumns  = "id, name, description, owner_id, current_version, created_at, updated_at"
	versionColumns = "id, prompt_id, version_number, content, commit_message, author_id, merge_request_id, restored_from, created_at"
)

// Auditor records version history events. A nil Auditor disables auditing.
type Auditor interface {
	Log(ctx context.Context, entry audit.LogEntry) error
}

type Service struct {
	db         database.DB
	maxRetries uint
	audit      Auditor
}

func NewService(db database.DB, maxRetries int, auditor Auditor) *Service {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{db: db, maxRetries: uint(maxRetries), audit: auditor}
}

type CreateRequest struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Content       string  `json:"content"`
	CommitMessage *string `json:"commit_message,omitempty"`
}

// NewVersion describes a snapshot to append. A nil CommitMessage gets the default
// "Updated version N".
type NewVersion struct {
	PromptID       uuid.UUID
	Content        string
	CommitMessage  *string
	AuthorID       *uuid.UUID
	MergeRequestID *uuid.UUID
	RestoredFrom   *int
}

// Create inserts a prompt together with its first version.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Prompt, *models.PromptVersion, error) {
	if req.Name == "" {
		return nil, nil, fmt.Errorf("%w: name is required", models.ErrValidation)
	}
	ownerID := identity.UserIDFromContext(ctx)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanPrompt(tx.QueryRow(ctx,
		`INSERT INTO prompts (name, description, owner_id, current_version)
		 VALUES ($1, $2, $3, 1)
		 RETURNING `+promptColumns,
		req.Name, req.Description, ownerID,
	))
	if err != nil {
		return nil, nil, fmt.Errorf("insert prompt: %w", err)
	}

	msg := req.CommitMessage
	if msg == nil {
		msg = defaultMessage(1)
	}
	v, err := scanVersion(tx.QueryRow(ctx,
		`INSERT INTO prompt_versions (prompt_id, version_number, content, commit_message, author_id)
		 VALUES ($1, 1, $2, $3, $4)
		 RETURNING `+versionColumns,
		p.ID, req.Content, msg, ownerID,
	))
	if err != nil {
		return nil, nil, fmt.Errorf("insert prompt version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}

	s.logAudit(ctx, models.AuditVersionCreated, v)
	return p, v, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	p, err := scanPrompt(s.db.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE id = $1`, id,
	))
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: prompt %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt: %w", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]models.Prompt, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+promptColumns+` FROM prompts
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	prompts := []models.Prompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

// CreateVersion appends the next version of a prompt. Concurrent writers that lose the
// race on (prompt_id, version_number) retry against the new maximum.
func (s *Service) CreateVersion(ctx context.Context, nv NewVersion) (*models.PromptVersion, error) {
	if nv.AuthorID == nil {
		nv.AuthorID = identity.UserIDFromContext(ctx)
	}

	var v *models.PromptVersion
	err := database.RetryOnConflict(ctx, s.maxRetries, func() error {
		var err error
		v, err = s.appendInTx(ctx, nv)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, models.AuditVersionCreated, v)
	return v, nil
}

// RestoreVersion appends a new version whose content equals version number. History is
// never rewritten.
func (s *Service) RestoreVersion(ctx context.Context, promptID uuid.UUID, number int, commitMessage *string) (*models.PromptVersion, error) {
	authorID := identity.UserIDFromContext(ctx)

	var v *models.PromptVersion
	err := database.RetryOnConflict(ctx, s.maxRetries, func() error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		src, err := getVersion(ctx, tx, promptID, number)
		if err != nil {
			return err
		}

		msg := commitMessage
		if msg == nil {
			m := fmt.Sprintf("Restored from version %d", number)
			msg = &m
		}
		v, err = AppendVersion(ctx, tx, NewVersion{
			PromptID:      promptID,
			Content:       src.Content,
			CommitMessage: msg,
			AuthorID:      authorID,
			RestoredFrom:  &number,
		})
		if err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, models.AuditVersionRestored, v)
	return v, nil
}

func (s *Service) appendInTx(ctx context.Context, nv NewVersion) (*models.PromptVersion, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	v, err := AppendVersion(ctx, tx, nv)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

// AppendVersion allocates max(version_number)+1 and inserts the snapshot using q, which is
// expected to be an open transaction owned by the caller. A concurrent insert of the same
// number surfaces as a unique violation for the caller to retry.
func AppendVersion(ctx context.Context, q database.Querier, nv NewVersion) (*models.PromptVersion, error) {
	var latest int
	err := q.QueryRow(ctx,
		`SELECT COALESCE((SELECT MAX(version_number) FROM prompt_versions WHERE prompt_id = p.id), 0)
		 FROM prompts p WHERE p.id = $1`,
		nv.PromptID,
	).Scan(&latest)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: prompt %s", models.ErrNotFound, nv.PromptID)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest version: %w", err)
	}

	next := latest + 1
	msg := nv.CommitMessage
	if msg == nil {
		msg = defaultMessage(next)
	}

	v, err := scanVersion(q.QueryRow(ctx,
		`INSERT INTO prompt_versions (prompt_id, version_number, content, commit_message, author_id, merge_request_id, restored_from)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+versionColumns,
		nv.PromptID, next, nv.Content, msg, nv.AuthorID, nv.MergeRequestID, nv.RestoredFrom,
	))
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	_, err = q.Exec(ctx,
		"UPDATE prompts SET current_version = $1, updated_at = now() WHERE id = $2",
		next, nv.PromptID,
	)
	if err != nil {
		return nil, fmt.Errorf("update current version: %w", err)
	}

	return v, nil
}

func (s *Service) GetVersion(ctx context.Context, promptID uuid.UUID, number int) (*models.PromptVersion, error) {
	return getVersion(ctx, s.db, promptID, number)
}

func (s *Service) GetVersionByID(ctx context.Context, id uuid.UUID) (*models.PromptVersion, error) {
	v, err := scanVersion(s.db.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM prompt_versions WHERE id = $1`, id,
	))
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: version %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// CurrentVersion returns the version with the highest number.
func (s *Service) CurrentVersion(ctx context.Context, promptID uuid.UUID) (*models.PromptVersion, error) {
	return currentVersion(ctx, s.db, promptID)
}

// ListVersions returns the full history of a prompt, newest first.
func (s *Service) ListVersions(ctx context.Context, promptID uuid.UUID) ([]models.PromptVersion, error) {
	var exists bool
	if err := s.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM prompts WHERE id = $1)", promptID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check prompt: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: prompt %s", models.ErrNotFound, promptID)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+versionColumns+` FROM prompt_versions
		 WHERE prompt_id = $1 ORDER BY version_number DESC`,
		promptID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := []models.PromptVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

type RenderRequest struct {
	Version   int               `json:"version,omitempty"` // 0 = current
	Variables map[string]string `json:"variables"`
}

type RenderResponse struct {
	Version  *models.PromptVersion `json:"version"`
	Rendered string                `json:"rendered"`
}

// RenderPrompt resolves a version (the current one when req.Version is 0) and fills its
// placeholders from req.Variables.
func (s *Service) RenderPrompt(ctx context.Context, promptID uuid.UUID, req RenderRequest) (*RenderResponse, error) {
	var (
		v   *models.PromptVersion
		err error
	)
	if req.Version == 0 {
		v, err = s.CurrentVersion(ctx, promptID)
	} else {
		v, err = s.GetVersion(ctx, promptID, req.Version)
	}
	if err != nil {
		return nil, err
	}

	rendered, err := Render(v.Content, req.Variables)
	if err != nil {
		return nil, fmt.Errorf("render version %d: %w", v.VersionNumber, err)
	}

	return &RenderResponse{Version: v, Rendered: rendered}, nil
}

func getVersion(ctx context.Context, q database.Querier, promptID uuid.UUID, number int) (*models.PromptVersion, error) {
	v, err := scanVersion(q.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM prompt_versions
		 WHERE prompt_id = $1 AND version_number = $2`,
		promptID, number,
	))
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: version %d of prompt %s", models.ErrNotFound, number, promptID)
	}
	if err != nil {
		return nil, fmt.Errorf("get version %d: %w", number, err)
	}
	return v, nil
}

func currentVersion(ctx context.Context, q database.Querier, promptID uuid.UUID) (*models.PromptVersion, error) {
	v, err := scanVersion(q.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM prompt_versions
		 WHERE prompt_id = $1 ORDER BY version_number DESC LIMIT 1`,
		promptID,
	))
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: prompt %s has no versions", models.ErrNotFound, promptID)
	}
	if err != nil {
		return nil, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

// CurrentVersionTx is CurrentVersion against a caller-owned transaction.
func CurrentVersionTx(ctx context.Context, q database.Querier, promptID uuid.UUID) (*models.PromptVersion, error) {
	return currentVersion(ctx, q, promptID)
}

func (s *Service) logAudit(ctx context.Context, action string, v *models.PromptVersion) {
	if s.audit == nil {
		return
	}
	err := s.audit.Log(ctx, audit.LogEntry{
		Action:       action,
		ResourceType: "prompt_version",
		ResourceID:   &v.ID,
		Details: map[string]any{
			"prompt_id":      v.PromptID,
			"version_number": v.VersionNumber,
		},
	})
	if err != nil {
		slog.WarnContext(ctx, "audit log failed", "action", action, "error", err)
	}
}

func defaultMessage(n int) *string {
	m := fmt.Sprintf("Updated version %d", n)
	return &m
}

func scanPrompt(row pgx.Row) (*models.Prompt, error) {
	var p models.Prompt
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CurrentVersion, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanVersion(row pgx.Row) (*models.PromptVersion, error) {
	var v models.PromptVersion
	err := row.Scan(&v.ID, &v.PromptID, &v.VersionNumber, &v.Content, &v.CommitMessage,
		&v.AuthorID, &v.MergeRequestID, &v.RestoredFrom, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
