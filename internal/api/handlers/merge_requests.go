package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptlab/internal/identity"
	"github.com/nikhilbhutani/promptlab/internal/merge"
	"github.com/nikhilbhutani/promptlab/internal/models"
)

type MergeService interface {
	Propose(ctx context.Context, promptID uuid.UUID, content, description string, creatorID uuid.UUID) (*models.MergeRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.MergeRequest, error)
	List(ctx context.Context, promptID uuid.UUID, status *models.MergeRequestStatus) ([]models.MergeRequest, error)
	Accept(ctx context.Context, id, reviewerID uuid.UUID, commitMessage *string) (*models.PromptVersion, error)
	Reject(ctx context.Context, id, reviewerID uuid.UUID) (*models.MergeRequest, error)
	Diff(ctx context.Context, id uuid.UUID) (*merge.DiffResult, error)
}

type MergeRequestHandler struct {
	svc MergeService
}

func NewMergeRequestHandler(svc MergeService) *MergeRequestHandler {
	return &MergeRequestHandler{svc: svc}
}

type proposeRequest struct {
	Content     string `json:"content"`
	Description string `json:"description"`
}

func (h *MergeRequestHandler) Propose(w http.ResponseWriter, r *http.Request) {
	promptID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req proposeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	mr, err := h.svc.Propose(r.Context(), promptID, req.Content, req.Description, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, mr)
}

func (h *MergeRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	promptID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var status *models.MergeRequestStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := models.MergeRequestStatus(s)
		status = &st
	}

	mrs, err := h.svc.List(r.Context(), promptID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"merge_requests": mrs, "count": len(mrs)})
}

func (h *MergeRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "mrID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	mr, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mr)
}

type acceptRequest struct {
	CommitMessage *string `json:"commit_message,omitempty"`
}

func (h *MergeRequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "mrID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	reviewerID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req acceptRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	v, err := h.svc.Accept(r.Context(), id, reviewerID, req.CommitMessage)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": models.MergeRequestMerged, "version": v})
}

func (h *MergeRequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "mrID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	reviewerID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	mr, err := h.svc.Reject(r.Context(), id, reviewerID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mr)
}

func (h *MergeRequestHandler) Diff(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "mrID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.svc.Diff(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func requireUser(r *http.Request) (uuid.UUID, error) {
	id := identity.UserIDFromContext(r.Context())
	if id == nil {
		return uuid.Nil, fmt.Errorf("%w: an authenticated user is required", models.ErrValidation)
	}
	return *id, nil
}
