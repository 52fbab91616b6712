package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nikhilbhutani/promptlab/internal/models"
)

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// RetryDelay is the base backoff between conflicting attempts.
var RetryDelay = 10 * time.Millisecond

// RetryOnConflict runs fn until it stops failing with a unique violation, at most attempts
// times. fn must open its own transaction so every attempt sees the latest committed state.
// Exhausting the attempts yields models.ErrConcurrencyConflict.
func RetryOnConflict(ctx context.Context, attempts uint, fn func() error) error {
	if attempts == 0 {
		attempts = 1
	}

	err := retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(RetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(RetryDelay),
		retry.MaxDelay(50*RetryDelay),
		retry.RetryIf(IsUniqueViolation),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.WarnContext(ctx, "unique violation, retrying", "attempt", n+1, "error", err)
		}),
	)
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: gave up after %d attempts: %v", models.ErrConcurrencyConflict, attempts, err)
	}
	return err
}
