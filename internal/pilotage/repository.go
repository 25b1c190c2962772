package pilotage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/portagency/pdadesk/internal/platform/db"
	"github.com/portagency/pdadesk/internal/platform/httpx"
)

// Repository persists tariffs and their ranges.
type Repository interface {
	ListTariffs(ctx context.Context, companyID int64) ([]Tariff, error)
	TariffsForPort(ctx context.Context, companyID, portID int64) ([]Tariff, error)
	GetTariff(ctx context.Context, companyID, id int64) (Tariff, error)
	CreateTariff(ctx context.Context, companyID int64, in TariffInput) (Tariff, error)
	UpdateTariff(ctx context.Context, companyID int64, in TariffInput) (Tariff, error)
	DeleteTariff(ctx context.Context, companyID, id int64) error
	ListRanges(ctx context.Context, tariffID int64) ([]Range, error)
	ReplaceRanges(ctx context.Context, tariffID int64, ranges []RangeInput) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool db.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool db.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const tariffColumns = `pt.id, pt.name, pt.tag_name, pt.basis, pt.pu_formula, pt.port_id, pt.company_id, pt.created_at`

func scanTariff(row pgx.Row, withPort bool) (Tariff, error) {
	var t Tariff
	dest := []any{&t.ID, &t.Name, &t.TagName, &t.Basis, &t.PUFormula, &t.PortID, &t.CompanyID, &t.CreatedAt}
	if withPort {
		dest = append(dest, &t.PortName, &t.PortTerminal, &t.PortBerth)
	}
	err := row.Scan(dest...)
	return t, err
}

// ListTariffs returns every tariff of a company with its port, ordered by port name.
func (r *PGRepository) ListTariffs(ctx context.Context, companyID int64) ([]Tariff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tariffColumns+`, p.name, p.terminal, p.berth
		FROM pilotage_tariffs pt
		JOIN ports p ON p.id = pt.port_id
		WHERE pt.company_id = $1
		ORDER BY p.name, pt.id`, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Tariff, error) {
		return scanTariff(row, true)
	})
}

// TariffsForPort returns the tariffs attached to one port.
func (r *PGRepository) TariffsForPort(ctx context.Context, companyID, portID int64) ([]Tariff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tariffColumns+`
		FROM pilotage_tariffs pt
		WHERE pt.port_id = $1 AND pt.company_id = $2
		ORDER BY pt.id`, portID, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Tariff, error) {
		return scanTariff(row, false)
	})
}

// GetTariff loads a tariff owned by the company.
func (r *PGRepository) GetTariff(ctx context.Context, companyID, id int64) (Tariff, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+tariffColumns+` FROM pilotage_tariffs pt
		WHERE pt.id = $1 AND pt.company_id = $2`, id, companyID)
	t, err := scanTariff(row, false)
	if err != nil {
		return Tariff{}, translate(err)
	}
	return t, nil
}

// CreateTariff inserts a tariff.
func (r *PGRepository) CreateTariff(ctx context.Context, companyID int64, in TariffInput) (Tariff, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO pilotage_tariffs AS pt (name, tag_name, basis, pu_formula, port_id, company_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+tariffColumns,
		in.Name, in.TagName, in.Basis, in.PUFormula, in.PortID, companyID)
	t, err := scanTariff(row, false)
	if err != nil {
		return Tariff{}, translate(err)
	}
	return t, nil
}

// UpdateTariff rewrites a tariff owned by the company.
func (r *PGRepository) UpdateTariff(ctx context.Context, companyID int64, in TariffInput) (Tariff, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE pilotage_tariffs AS pt
		SET name = $1, tag_name = $2, basis = $3, pu_formula = $4, port_id = $5
		WHERE pt.id = $6 AND pt.company_id = $7
		RETURNING `+tariffColumns,
		in.Name, in.TagName, in.Basis, in.PUFormula, in.PortID, in.ID, companyID)
	t, err := scanTariff(row, false)
	if err != nil {
		return Tariff{}, translate(err)
	}
	return t, nil
}

// DeleteTariff removes a tariff; its ranges cascade.
func (r *PGRepository) DeleteTariff(ctx context.Context, companyID, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pilotage_tariffs WHERE id = $1 AND company_id = $2`, id, companyID)
	return err
}

// ListRanges returns a tariff's bands ordered by range_start.
func (r *PGRepository) ListRanges(ctx context.Context, tariffID int64) ([]Range, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tariff_id, range_start, range_end, value
		FROM pilotage_tariff_ranges
		WHERE tariff_id = $1
		ORDER BY range_start ASC, id ASC`, tariffID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Range])
}

// ReplaceRanges deletes every band of the tariff and inserts the given set in
// one transaction. An empty set clears the tariff.
func (r *PGRepository) ReplaceRanges(ctx context.Context, tariffID int64, ranges []RangeInput) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM pilotage_tariff_ranges WHERE tariff_id = $1`, tariffID); err != nil {
			return fmt.Errorf("pilotage: clear ranges: %w", err)
		}
		for i, rg := range ranges {
			if _, err := tx.Exec(ctx, `
				INSERT INTO pilotage_tariff_ranges (tariff_id, range_start, range_end, value)
				VALUES ($1, $2, $3, $4)`,
				tariffID, rg.RangeStart.Float64(), rg.RangeEnd.Float64(), rg.Value.Float64()); err != nil {
				return fmt.Errorf("pilotage: insert range %d: %w", i, err)
			}
		}
		return nil
	})
}

func translate(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: pilotage tariff not found", httpx.ErrNotFound)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: this port already has a pilotage tariff or the tag is already in use", httpx.ErrDuplicate)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: unknown port", httpx.ErrValidation)
	default:
		return err
	}
}

var _ Repository = (*PGRepository)(nil)
