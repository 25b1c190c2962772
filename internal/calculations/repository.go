package calculations

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/portagency/pdadesk/internal/platform/db"
	"github.com/portagency/pdadesk/internal/platform/httpx"
)

// Repository persists calculation rules.
type Repository interface {
	ListByPort(ctx context.Context, companyID, portID int64) ([]Calculation, error)
	Upsert(ctx context.Context, companyID int64, in Input) (Calculation, error)
	Update(ctx context.Context, companyID, id int64, in Input) (Calculation, error)
	Delete(ctx context.Context, companyID, id int64) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

const selectColumns = `c.id, c.port_id, c.service_id, s.name, c.currency, c.formula, c.calculation_method, c.company_id, c.created_at`

func scanCalculation(row pgx.Row) (Calculation, error) {
	var c Calculation
	err := row.Scan(&c.ID, &c.PortID, &c.ServiceID, &c.ServiceName, &c.Currency, &c.Formula, &c.Method, &c.CompanyID, &c.CreatedAt)
	return c, err
}

// ListByPort returns the rules of a port ordered by service name.
func (r *PGRepository) ListByPort(ctx context.Context, companyID, portID int64) ([]Calculation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM calculations c
		JOIN services s ON s.id = c.service_id
		WHERE c.port_id = $1 AND c.company_id = $2
		ORDER BY s.name, c.currency, c.id`, portID, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Calculation, error) {
		return scanCalculation(row)
	})
}

// Upsert inserts a rule or replaces formula and method on the natural key.
func (r *PGRepository) Upsert(ctx context.Context, companyID int64, in Input) (Calculation, error) {
	row := r.db.QueryRow(ctx, `
		WITH c AS (
			INSERT INTO calculations (port_id, service_id, currency, formula, company_id, calculation_method)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (port_id, service_id, currency, company_id)
			DO UPDATE SET formula = EXCLUDED.formula, calculation_method = EXCLUDED.calculation_method
			RETURNING *
		)
		SELECT `+selectColumns+` FROM c JOIN services s ON s.id = c.service_id`,
		in.PortID, in.ServiceID, in.Currency, in.Formula, companyID, in.Method)
	calc, err := scanCalculation(row)
	if err != nil {
		return Calculation{}, translate(err)
	}
	return calc, nil
}

// Update rewrites every field of an existing rule owned by the company.
func (r *PGRepository) Update(ctx context.Context, companyID, id int64, in Input) (Calculation, error) {
	row := r.db.QueryRow(ctx, `
		WITH c AS (
			UPDATE calculations
			SET port_id = $1, service_id = $2, currency = $3, formula = $4, calculation_method = $5
			WHERE id = $6 AND company_id = $7
			RETURNING *
		)
		SELECT `+selectColumns+` FROM c JOIN services s ON s.id = c.service_id`,
		in.PortID, in.ServiceID, in.Currency, in.Formula, in.Method, id, companyID)
	calc, err := scanCalculation(row)
	if err != nil {
		return Calculation{}, translate(err)
	}
	return calc, nil
}

// Delete removes a rule owned by the company.
func (r *PGRepository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM calculations WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: calculation not found", httpx.ErrNotFound)
	}
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: calculation not found", httpx.ErrNotFound)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: a rule already exists for this port, service and currency", httpx.ErrDuplicate)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: unknown port or service", httpx.ErrValidation)
	default:
		return err
	}
}

var _ Repository = (*PGRepository)(nil)
