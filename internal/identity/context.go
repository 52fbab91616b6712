package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptlab/internal/models"
)

type contextKey string

const userKey contextKey = "user"

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// UserIDFromContext returns nil for anonymous callers.
func UserIDFromContext(ctx context.Context) *uuid.UUID {
	if u := UserFromContext(ctx); u != nil && u.ID != uuid.Nil {
		id := u.ID
		return &id
	}
	return nil
}
