package models

import (
	"github.com/google/uuid"
)

// User is the authenticated identity resolved by the auth middleware.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
}
