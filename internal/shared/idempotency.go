package shared

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrIdempotencyConflict is returned by Claim for a key seen before.
var ErrIdempotencyConflict = fmt.Errorf("%w: request key already processed", ErrDuplicate)

// IdempotencyStore remembers request keys sent by scanning devices so a
// retried request after a dropped response is not applied twice.
type IdempotencyStore struct {
	exec Execer
	now  func() time.Time
}

// NewIdempotencyStore constructs the store on a pool or transaction.
func NewIdempotencyStore(exec Execer) *IdempotencyStore {
	return &IdempotencyStore{exec: exec, now: func() time.Time { return time.Now().UTC() }}
}

// Claim reserves key within scope.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) error {
	if s == nil || s.exec == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" || scope == "" {
		return Validationf("idempotency scope and key required")
	}
	tag, err := s.exec.Exec(ctx, `
		INSERT INTO idempotency_keys (scope, key, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope, key) DO NOTHING`, scope, key, s.now())
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release forgets a claimed key so the request can be retried after a failure.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if s == nil || s.exec == nil || key == "" {
		return nil
	}
	_, err := s.exec.Exec(ctx, `DELETE FROM idempotency_keys WHERE scope = $1 AND key = $2`, scope, key)
	return err
}

// Cleanup drops keys older than olderThan and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.exec == nil {
		return 0, nil
	}
	tag, err := s.exec.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
