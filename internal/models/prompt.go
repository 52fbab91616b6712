package models

import (
	"time"

	"github.com/google/uuid"
)

type Prompt struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Description    string     `json:"description,omitempty" db:"description"`
	OwnerID        *uuid.UUID `json:"owner_id,omitempty" db:"owner_id"`
	CurrentVersion int        `json:"current_version" db:"current_version"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// PromptVersion is an immutable snapshot of a prompt's content.
type PromptVersion struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	PromptID       uuid.UUID  `json:"prompt_id" db:"prompt_id"`
	VersionNumber  int        `json:"version_number" db:"version_number"`
	Content        string     `json:"content" db:"content"`
	CommitMessage  *string    `json:"commit_message,omitempty" db:"commit_message"`
	AuthorID       *uuid.UUID `json:"author_id,omitempty" db:"author_id"`
	MergeRequestID *uuid.UUID `json:"merge_request_id,omitempty" db:"merge_request_id"`
	RestoredFrom   *int       `json:"restored_from,omitempty" db:"restored_from"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
