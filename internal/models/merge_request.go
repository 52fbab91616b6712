package models

import (
	"time"

	"github.com/google/uuid"
)

type MergeRequestStatus string

const (
	MergeRequestOpen     MergeRequestStatus = "OPEN"
	MergeRequestMerged   MergeRequestStatus = "MERGED"
	MergeRequestRejected MergeRequestStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s MergeRequestStatus) Terminal() bool {
	return s == MergeRequestMerged || s == MergeRequestRejected
}

func (s MergeRequestStatus) Valid() bool {
	switch s {
	case MergeRequestOpen, MergeRequestMerged, MergeRequestRejected:
		return true
	}
	return false
}

type MergeRequest struct {
	ID              uuid.UUID          `json:"id" db:"id"`
	PromptID        uuid.UUID          `json:"prompt_id" db:"prompt_id"`
	Content         string             `json:"content" db:"content"`
	Description     string             `json:"description" db:"description"`
	Status          MergeRequestStatus `json:"status" db:"status"`
	BaseVersion     int                `json:"base_version" db:"base_version"`
	CreatedBy       uuid.UUID          `json:"created_by" db:"created_by"`
	ReviewedBy      *uuid.UUID         `json:"reviewed_by,omitempty" db:"reviewed_by"`
	MergedVersionID *uuid.UUID         `json:"merged_version_id,omitempty" db:"merged_version_id"`
	MergedAt        *time.Time         `json:"merged_at,omitempty" db:"merged_at"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" db:"updated_at"`
}
