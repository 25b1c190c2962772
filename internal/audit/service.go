package audit

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultLimit = 200
	maxLimit     = 1000
)

// Service reads and writes the activity log.
type Service struct {
	repo Repository
}

// NewService creates an activity log service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record persists entry synchronously. The worker calls it for queued entries.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	return s.repo.Insert(ctx, entry)
}

// Recent lists the newest entries of a company, 200 by default.
func (s *Service) Recent(ctx context.Context, companyID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	entries, err := s.repo.List(ctx, companyID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Prune removes entries older than retention and reports how many went.
func (s *Service) Prune(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("audit: retention must be positive")
	}
	return s.repo.Prune(ctx, now.Add(-retention))
}
