package pilotage

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/portagency/pdadesk/internal/audit"
)

const auditEntity = "pilotage_tariff"

// Service implements the pilotage tariff use cases.
type Service struct {
	repo   Repository
	events audit.Publisher
	logger *slog.Logger
}

// NewService constructs a Service. events may be nil.
func NewService(repo Repository, events audit.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, events: events, logger: logger}
}

// ListTariffs returns every tariff of the company.
func (s *Service) ListTariffs(ctx context.Context, companyID int64) ([]Tariff, error) {
	tariffs, err := s.repo.ListTariffs(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if tariffs == nil {
		tariffs = []Tariff{}
	}
	return tariffs, nil
}

// TariffsForPort returns the tariffs of one port.
func (s *Service) TariffsForPort(ctx context.Context, companyID, portID int64) ([]Tariff, error) {
	tariffs, err := s.repo.TariffsForPort(ctx, companyID, portID)
	if err != nil {
		return nil, err
	}
	if tariffs == nil {
		tariffs = []Tariff{}
	}
	return tariffs, nil
}

// SaveTariff inserts a tariff, or updates it when in.ID is set.
func (s *Service) SaveTariff(ctx context.Context, companyID int64, in TariffInput) (Tariff, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Tariff{}, err
	}
	var (
		t      Tariff
		err    error
		action = audit.ActionCreate
	)
	if in.ID > 0 {
		action = audit.ActionUpdate
		t, err = s.repo.UpdateTariff(ctx, companyID, in)
	} else {
		t, err = s.repo.CreateTariff(ctx, companyID, in)
	}
	if err != nil {
		return Tariff{}, err
	}
	s.publish(ctx, action, t.ID, t.TagName)
	return t, nil
}

// DeleteTariff removes a tariff. Deleting a missing tariff is not an error.
func (s *Service) DeleteTariff(ctx context.Context, companyID, id int64) error {
	if err := s.repo.DeleteTariff(ctx, companyID, id); err != nil {
		return err
	}
	s.publish(ctx, audit.ActionDelete, id, "")
	return nil
}

// Ranges lists the bands of a tariff owned by the company.
func (s *Service) Ranges(ctx context.Context, companyID, tariffID int64) ([]Range, error) {
	if _, err := s.repo.GetTariff(ctx, companyID, tariffID); err != nil {
		return nil, err
	}
	ranges, err := s.repo.ListRanges(ctx, tariffID)
	if err != nil {
		return nil, err
	}
	if ranges == nil {
		ranges = []Range{}
	}
	return ranges, nil
}

// ReplaceRanges swaps the full band set of a tariff owned by the company.
func (s *Service) ReplaceRanges(ctx context.Context, companyID, tariffID int64, in ReplaceRangesInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	t, err := s.repo.GetTariff(ctx, companyID, tariffID)
	if err != nil {
		return err
	}
	if err := s.repo.ReplaceRanges(ctx, tariffID, in.Ranges); err != nil {
		return err
	}
	s.publish(ctx, audit.ActionUpdate, tariffID, t.TagName+" ranges="+strconv.Itoa(len(in.Ranges)))
	return nil
}

// Quote finds the band containing value for a tariff owned by the company.
func (s *Service) Quote(ctx context.Context, companyID, tariffID int64, value float64) (Range, error) {
	ranges, err := s.Ranges(ctx, companyID, tariffID)
	if err != nil {
		return Range{}, err
	}
	return Lookup(ranges, value)
}

func (s *Service) publish(ctx context.Context, action string, id int64, details string) {
	if s.events == nil {
		return
	}
	entry := audit.NewEntry(ctx, action, auditEntity, strconv.FormatInt(id, 10), details)
	if err := s.events.Publish(ctx, entry); err != nil {
		s.logger.Warn("publish activity", slog.String("entity", auditEntity), slog.Any("error", err))
	}
}
