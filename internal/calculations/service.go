package calculations

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/portagency/pdadesk/internal/audit"
	"github.com/portagency/pdadesk/internal/pricing"
)

const auditEntity = "calculation"

// Service manages calculation rules.
type Service struct {
	repo   Repository
	cache  *RuleCache
	events audit.Publisher
	logger *slog.Logger
}

// NewService constructs a Service. cache and events may be nil.
func NewService(repo Repository, cache *RuleCache, events audit.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, events: events, logger: logger}
}

// List returns a port's rules ordered by service name.
func (s *Service) List(ctx context.Context, companyID, portID int64) ([]Calculation, error) {
	calcs, err := s.repo.ListByPort(ctx, companyID, portID)
	if err != nil {
		return nil, err
	}
	if calcs == nil {
		calcs = []Calculation{}
	}
	return calcs, nil
}

// Upsert creates a rule or replaces the one on the same natural key.
func (s *Service) Upsert(ctx context.Context, companyID int64, in Input) (Calculation, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Calculation{}, err
	}
	calc, err := s.repo.Upsert(ctx, companyID, in)
	if err != nil {
		return Calculation{}, err
	}
	s.changed(ctx, companyID, audit.ActionUpsert, calc.ID, in)
	return calc, nil
}

// Update rewrites a rule by id.
func (s *Service) Update(ctx context.Context, companyID, id int64, in Input) (Calculation, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Calculation{}, err
	}
	calc, err := s.repo.Update(ctx, companyID, id, in)
	if err != nil {
		return Calculation{}, err
	}
	s.changed(ctx, companyID, audit.ActionUpdate, calc.ID, in)
	return calc, nil
}

// Delete removes a rule by id.
func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	if err := s.repo.Delete(ctx, companyID, id); err != nil {
		return err
	}
	s.changed(ctx, companyID, audit.ActionDelete, id, Input{})
	return nil
}

// ForPort loads the parsed rules the engine prices for a port.
func (s *Service) ForPort(ctx context.Context, companyID, portID int64) ([]pricing.Calculation, error) {
	rows, err := s.cache.Port(ctx, companyID, portID, func(ctx context.Context) ([]Calculation, error) {
		return s.repo.ListByPort(ctx, companyID, portID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]pricing.Calculation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Priced())
	}
	return out, nil
}

func (s *Service) changed(ctx context.Context, companyID int64, action string, id int64, in Input) {
	if err := s.cache.Invalidate(ctx, companyID); err != nil {
		s.logger.Warn("invalidate rule cache", slog.Int64("company_id", companyID), slog.Any("error", err))
	}
	if s.events == nil {
		return
	}
	details := ""
	if in.Method != "" {
		details = in.Method + " " + in.Currency + " port=" + strconv.FormatInt(in.PortID, 10) + " service=" + strconv.FormatInt(in.ServiceID, 10)
	}
	entry := audit.NewEntry(ctx, action, auditEntity, strconv.FormatInt(id, 10), details)
	if err := s.events.Publish(ctx, entry); err != nil {
		s.logger.Warn("publish activity", slog.String("entity", auditEntity), slog.Any("error", err))
	}
}
