package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhutani/promptlab/internal/models"
)

func init() {
	RetryDelay = time.Millisecond
}

var uniqueViolation = &pgconn.PgError{Code: pgerrcode.UniqueViolation}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(uniqueViolation))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", uniqueViolation)))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})))
	assert.False(t, IsForeignKeyViolation(uniqueViolation))
	assert.False(t, IsForeignKeyViolation(nil))
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(nil))
}

func TestRetryOnConflict_SucceedsAfterRace(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return uniqueViolation
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryOnConflict_Exhausted(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 2, func() error {
		calls++
		return uniqueViolation
	})
	assert.ErrorIs(t, err, models.ErrConcurrencyConflict)
	assert.Equal(t, 2, calls)
}

func TestRetryOnConflict_OtherErrorsAreNotRetried(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 5, func() error {
		calls++
		return fmt.Errorf("%w: prompt", models.ErrNotFound)
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 1, calls)
}
