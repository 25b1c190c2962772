package masterdata

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/portagency/pdadesk/internal/audit"
	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/pricing"
)

// RuleInvalidator drops cached pricing rules of a company. Cached rules carry
// service names, so renames and deletes must reach it.
type RuleInvalidator interface {
	Invalidate(ctx context.Context, companyID int64) error
}

// Option configures the master data service.
type Option func(*service)

// WithRuleInvalidator invalidates cached rules whenever a service changes.
func WithRuleInvalidator(inv RuleInvalidator) Option {
	return func(s *service) { s.rules = inv }
}

// service implements Service interface
type service struct {
	repo   Repository
	events audit.Publisher
	rules  RuleInvalidator
	logger *slog.Logger
}

// NewService creates a new master data service. events may be nil.
func NewService(repo Repository, events audit.Publisher, logger *slog.Logger, opts ...Option) Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &service{repo: repo, events: events, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Billable services
func (s *service) ListServices(ctx context.Context, companyID int64) ([]BillableService, error) {
	return s.repo.ListServices(ctx, companyID)
}

func (s *service) CreateService(ctx context.Context, companyID int64, in ServiceInput) (BillableService, error) {
	in.Name = normalizeName(in.Name)
	if err := httpx.Validate(in); err != nil {
		return BillableService{}, err
	}
	created, err := s.repo.CreateService(ctx, companyID, in)
	if err != nil {
		return BillableService{}, err
	}
	s.publish(ctx, audit.ActionCreate, "service", created.ID, created.Name)
	return created, nil
}

func (s *service) UpdateService(ctx context.Context, companyID, id int64, in ServiceInput) (BillableService, error) {
	in.Name = normalizeName(in.Name)
	if err := httpx.Validate(in); err != nil {
		return BillableService{}, err
	}
	updated, err := s.repo.UpdateService(ctx, companyID, id, in)
	if err != nil {
		return BillableService{}, err
	}
	s.invalidateRules(ctx, companyID)
	s.publish(ctx, audit.ActionUpdate, "service", updated.ID, updated.Name)
	return updated, nil
}

func (s *service) DeleteService(ctx context.Context, companyID, id int64) (BillableService, error) {
	deleted, err := s.repo.DeleteService(ctx, companyID, id)
	if err != nil {
		return BillableService{}, err
	}
	s.invalidateRules(ctx, companyID)
	s.publish(ctx, audit.ActionDelete, "service", deleted.ID, deleted.Name)
	return deleted, nil
}

// TaxableNames returns the taxable service names keyed by pricing.LabelKey.
func (s *service) TaxableNames(ctx context.Context, companyID int64) (map[string]bool, error) {
	services, err := s.repo.ListServices(ctx, companyID)
	if err != nil {
		return nil, err
	}
	taxable := make(map[string]bool, len(services))
	for _, svc := range services {
		if svc.IsTaxable {
			taxable[pricing.LabelKey(svc.Name)] = true
		}
	}
	return taxable, nil
}

// Port service links
func (s *service) LinkedServiceIDs(ctx context.Context, companyID, portID int64) ([]int64, error) {
	return s.repo.LinkedServiceIDs(ctx, companyID, portID)
}

func (s *service) ReplaceLinks(ctx context.Context, companyID, portID int64, in ReplaceLinksInput) error {
	if err := httpx.Validate(in); err != nil {
		return err
	}
	ids := dedupe(in.ServiceIDs)
	if err := s.repo.ReplaceLinks(ctx, companyID, portID, ids); err != nil {
		return err
	}
	s.publish(ctx, audit.ActionUpdate, "port_services", portID, fmt.Sprintf("services=%d", len(ids)))
	return nil
}

// Port remarks
func (s *service) Remarks(ctx context.Context, companyID, portID int64) ([]Remark, error) {
	return s.repo.Remarks(ctx, companyID, portID)
}

func (s *service) ReplaceRemarks(ctx context.Context, companyID, portID int64, in ReplaceRemarksInput) error {
	for i := range in.Remarks {
		in.Remarks[i].RemarkText = normalizeName(in.Remarks[i].RemarkText)
	}
	if err := httpx.Validate(in); err != nil {
		return err
	}
	if err := s.repo.ReplaceRemarks(ctx, companyID, portID, in.Remarks); err != nil {
		return err
	}
	s.publish(ctx, audit.ActionUpdate, "port_remarks", portID, fmt.Sprintf("remarks=%d", len(in.Remarks)))
	return nil
}

func (s *service) invalidateRules(ctx context.Context, companyID int64) {
	if s.rules == nil {
		return
	}
	if err := s.rules.Invalidate(ctx, companyID); err != nil {
		s.logger.Warn("invalidate rule cache", slog.Int64("company_id", companyID), slog.Any("error", err))
	}
}

func (s *service) publish(ctx context.Context, action, entity string, id int64, details string) {
	if s.events == nil {
		return
	}
	entry := audit.NewEntry(ctx, action, entity, strconv.FormatInt(id, 10), details)
	if err := s.events.Publish(ctx, entry); err != nil {
		s.logger.Warn("publish activity", slog.String("entity", entity), slog.Any("error", err))
	}
}

// dedupe drops repeated ids, keeping first occurrence order.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
