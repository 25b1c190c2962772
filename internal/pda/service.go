package pda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/portagency/pdadesk/internal/audit"
	"github.com/portagency/pdadesk/internal/masterdata"
	"github.com/portagency/pdadesk/internal/pilotage"
	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/pricing"
	"github.com/portagency/pdadesk/internal/shared"
)

// RuleSource yields the parsed pricing rules of a port.
type RuleSource interface {
	ForPort(ctx context.Context, companyID, portID int64) ([]pricing.Calculation, error)
}

// PortData yields the per-port master data the engine consumes.
type PortData interface {
	LinkedServiceIDs(ctx context.Context, companyID, portID int64) ([]int64, error)
	Remarks(ctx context.Context, companyID, portID int64) ([]masterdata.Remark, error)
	TaxableNames(ctx context.Context, companyID int64) (map[string]bool, error)
}

// TariffSource yields the pilotage tariffs of a port.
type TariffSource interface {
	TariffsForPort(ctx context.Context, companyID, portID int64) ([]pilotage.Tariff, error)
}

// KeyClaimer guards saves against replayed Idempotency-Key headers.
type KeyClaimer interface {
	Claim(ctx context.Context, companyID int64, module, key string) error
	Release(ctx context.Context, companyID int64, module, key string) error
}

const saveModule = "pda.save"

// Service prices, saves and retrieves PDAs.
type Service struct {
	repo     Repository
	rules    RuleSource
	portData PortData
	tariffs  TariffSource
	engine   *pricing.Engine
	events   audit.Publisher
	keys     KeyClaimer
	logger   *slog.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo     Repository
	Rules    RuleSource
	PortData PortData
	Tariffs  TariffSource
	Engine   *pricing.Engine
	Events   audit.Publisher
	Keys     KeyClaimer
	Logger   *slog.Logger
}

// NewService constructs a Service. Events and Keys may be nil.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Engine == nil {
		d.Engine = pricing.NewEngine(d.Logger, nil)
	}
	return &Service{
		repo:     d.Repo,
		rules:    d.Rules,
		portData: d.PortData,
		tariffs:  d.Tariffs,
		engine:   d.Engine,
		events:   d.Events,
		keys:     d.Keys,
		logger:   d.Logger,
	}
}

// Calculate prices a vessel call without persisting anything.
func (s *Service) Calculate(ctx context.Context, companyID int64, in CalculateRequest) (Preview, error) {
	if err := in.Validate(); err != nil {
		return Preview{}, err
	}
	shipID, portID, clientID := int64(in.ShipID), int64(in.PortID), int64(in.ClientID)

	var (
		out                         Preview
		linked                      []int64
		calcs                       []pricing.Calculation
		shipErr, portErr, clientErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Ship, shipErr = s.repo.Ship(gctx, companyID, shipID)
		return infraErr(shipErr)
	})
	g.Go(func() error {
		out.Port, portErr = s.repo.Port(gctx, companyID, portID)
		return infraErr(portErr)
	})
	g.Go(func() error {
		out.Client, clientErr = s.repo.Client(gctx, companyID, clientID)
		return infraErr(clientErr)
	})
	g.Go(func() error {
		var err error
		linked, err = s.portData.LinkedServiceIDs(gctx, companyID, portID)
		return err
	})
	g.Go(func() error {
		var err error
		calcs, err = s.rules.ForPort(gctx, companyID, portID)
		return err
	})
	g.Go(func() error {
		var err error
		out.Remarks, err = s.portData.Remarks(gctx, companyID, portID)
		return err
	})
	g.Go(func() error {
		var err error
		out.PilotageTariffs, err = s.tariffs.TariffsForPort(gctx, companyID, portID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Preview{}, err
	}
	for _, err := range []error{shipErr, portErr, clientErr} {
		if err != nil {
			return Preview{}, err
		}
	}

	linkedSet := make(map[int64]struct{}, len(linked))
	for _, id := range linked {
		linkedSet[id] = struct{}{}
	}
	roe := in.ROE.Float64()
	out.Items = s.engine.Price(ctx, pricing.Input{
		Scope:        pricing.NewScope(out.Ship.Vessel(), pricing.Voyage{TotalCargo: in.TotalCargo.Float64(), ROE: roe}),
		Linked:       linkedSet,
		Calculations: calcs,
	})
	if out.Remarks == nil {
		out.Remarks = []masterdata.Remark{}
	}
	if out.PilotageTariffs == nil {
		out.PilotageTariffs = []pilotage.Tariff{}
	}
	out.ROE = roe
	out.PDANumber = in.PDANumber
	out.Cargo = in.Cargo
	out.TotalCargo = in.TotalCargo.Float64()
	out.ETA, out.ETB, out.ETD = in.ETA, in.ETB, in.ETD
	return out, nil
}

// infraErr passes through everything except not-found, which the caller
// reports in ship, port, client order once all loads finish.
func infraErr(err error) error {
	if errors.Is(err, httpx.ErrNotFound) {
		return nil
	}
	return err
}

// Save persists a draft atomically and returns the new PDA id.
func (s *Service) Save(ctx context.Context, companyID int64, in SaveRequest) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	d := in.PDAData
	header := Header{
		PDANumber:  d.PDANumber,
		ShipID:     int64(d.Ship.ID),
		ClientID:   int64(d.Client.ID),
		PortID:     int64(d.Port.ID),
		ROE:        d.ROE.Float64(),
		CompanyID:  companyID,
		Cargo:      d.Cargo,
		TotalCargo: d.TotalCargo.Float64(),
		ETA:        d.ETA.Ptr(),
		ETB:        d.ETB.Ptr(),
		ETD:        d.ETD.Ptr(),
	}
	lines := make([]Line, 0, len(d.Items))
	for _, it := range d.Items {
		lines = append(lines, Line{
			ServiceName: it.ServiceName,
			Value:       it.Value.Float64(),
			Currency:    it.Currency,
		})
	}
	if err := s.claim(ctx, companyID, in.IdempotencyKey); err != nil {
		return 0, err
	}
	id, err := s.repo.Save(ctx, header, lines)
	if err != nil {
		s.release(ctx, companyID, in.IdempotencyKey)
		return 0, err
	}
	if s.events != nil {
		entry := audit.NewEntry(ctx, audit.ActionCreate, "pda", strconv.FormatInt(id, 10), d.PDANumber)
		if err := s.events.Publish(ctx, entry); err != nil {
			s.logger.Warn("publish activity", slog.Int64("pda_id", id), slog.Any("error", err))
		}
	}
	return id, nil
}

func (s *Service) claim(ctx context.Context, companyID int64, key string) error {
	if s.keys == nil || key == "" {
		return nil
	}
	err := s.keys.Claim(ctx, companyID, saveModule, key)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return fmt.Errorf("%w: this PDA was already saved", httpx.ErrDuplicate)
	}
	return err
}

func (s *Service) release(ctx context.Context, companyID int64, key string) {
	if s.keys == nil || key == "" {
		return
	}
	if err := s.keys.Release(ctx, companyID, saveModule, key); err != nil {
		s.logger.Warn("release idempotency key", slog.Any("error", err))
	}
}

// List returns the company's saved PDAs.
func (s *Service) List(ctx context.Context, companyID int64) ([]Summary, error) {
	list, err := s.repo.List(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Summary{}
	}
	return list, nil
}

// Detail returns a saved PDA with the current remarks of its port.
func (s *Service) Detail(ctx context.Context, companyID, id int64) (Detail, error) {
	d, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return Detail{}, err
	}
	d.Remarks, err = s.portData.Remarks(ctx, companyID, d.Port.ID)
	if err != nil {
		return Detail{}, err
	}
	if d.Remarks == nil {
		d.Remarks = []masterdata.Remark{}
	}
	return d, nil
}

// Taxes derives the tax lines of a draft and prices it in both currencies.
func (s *Service) Taxes(ctx context.Context, companyID int64, in TaxRequest) (TaxResult, error) {
	taxable, err := s.portData.TaxableNames(ctx, companyID)
	if err != nil {
		return TaxResult{}, err
	}
	roe := in.ROE.Float64()
	items := pricing.DeriveTaxes(pricing.Draft{
		ROE:        roe,
		Items:      in.Items,
		Taxable:    taxable,
		Suppressed: in.Suppressed,
	})
	suppressed := in.Suppressed
	if suppressed == nil {
		suppressed = []string{}
	}
	return TaxResult{Summary: pricing.Summarize(items, roe), Suppressed: suppressed}, nil
}
