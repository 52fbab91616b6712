package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	AuditVersionCreated       = "version.created"
	AuditVersionRestored      = "version.restored"
	AuditMergeRequestMerged   = "merge_request.merged"
	AuditMergeRequestRejected = "merge_request.rejected"
)

type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action       string          `json:"action" db:"action"`
	ResourceType string          `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty" db:"resource_id"`
	Details      json.RawMessage `json:"details" db:"details"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

const (
	EventMergeRequestOpened   = "merge_request.opened"
	EventMergeRequestMerged   = "merge_request.merged"
	EventMergeRequestRejected = "merge_request.rejected"
)

// Webhook subscribes a URL to events of one prompt, or of every prompt when PromptID is nil.
type Webhook struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	PromptID  *uuid.UUID `json:"prompt_id,omitempty" db:"prompt_id"`
	URL       string     `json:"url" db:"url"`
	Events    []string   `json:"events" db:"events"`
	Secret    string     `json:"secret,omitempty" db:"secret"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
