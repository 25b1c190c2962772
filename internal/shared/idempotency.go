package shared

import (
	"context"
	"errors"
	"time"

	"github.com/portagency/pdadesk/internal/platform/db"
)

// IdempotencyStore records client-supplied request keys per company.
type IdempotencyStore struct {
	db db.DBTX
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(conn db.DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: conn}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// Claim registers key under module, failing with ErrIdempotencyConflict when
// the company already used it.
func (s *IdempotencyStore) Claim(ctx context.Context, companyID int64, module, key string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO idempotency_keys (key, module, company_id, created_at) VALUES ($1, $2, $3, NOW())`,
		key, module, companyID)
	if db.IsUniqueViolation(err) {
		return ErrIdempotencyConflict
	}
	return err
}

// Release removes a key, typically after the guarded work failed.
func (s *IdempotencyStore) Release(ctx context.Context, companyID int64, module, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.db.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE key = $1 AND module = $2 AND company_id = $3`,
		key, module, companyID)
	return err
}

// Sweep removes keys created before the cutoff.
func (s *IdempotencyStore) Sweep(ctx context.Context, before time.Time) (int64, error) {
	if s == nil {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
