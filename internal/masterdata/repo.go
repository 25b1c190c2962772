package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/portagency/pdadesk/internal/platform/db"
	"github.com/portagency/pdadesk/internal/platform/httpx"
)

// repo implements Repository interface
type repo struct {
	db db.Pool
}

// NewRepository creates a new master data repository
func NewRepository(pool db.Pool) Repository {
	return &repo{db: pool}
}

// Service operations
func (r *repo) ListServices(ctx context.Context, companyID int64) ([]BillableService, error) {
	query := `SELECT id, name, is_taxable, company_id, created_at FROM services WHERE company_id = $1 ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := []BillableService{}
	for rows.Next() {
		var s BillableService
		if err := rows.Scan(&s.ID, &s.Name, &s.IsTaxable, &s.CompanyID, &s.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (r *repo) CreateService(ctx context.Context, companyID int64, in ServiceInput) (BillableService, error) {
	query := `INSERT INTO services (name, company_id, is_taxable) VALUES ($1, $2, $3)
		RETURNING id, name, is_taxable, company_id, created_at`
	var s BillableService
	err := r.db.QueryRow(ctx, query, in.Name, companyID, in.IsTaxable).Scan(&s.ID, &s.Name, &s.IsTaxable, &s.CompanyID, &s.CreatedAt)
	if err != nil {
		return BillableService{}, translate(err)
	}
	return s, nil
}

func (r *repo) UpdateService(ctx context.Context, companyID, id int64, in ServiceInput) (BillableService, error) {
	query := `UPDATE services SET name = $1, is_taxable = $2 WHERE id = $3 AND company_id = $4
		RETURNING id, name, is_taxable, company_id, created_at`
	var s BillableService
	err := r.db.QueryRow(ctx, query, in.Name, in.IsTaxable, id, companyID).Scan(&s.ID, &s.Name, &s.IsTaxable, &s.CompanyID, &s.CreatedAt)
	if err != nil {
		return BillableService{}, translate(err)
	}
	return s, nil
}

func (r *repo) DeleteService(ctx context.Context, companyID, id int64) (BillableService, error) {
	query := `DELETE FROM services WHERE id = $1 AND company_id = $2
		RETURNING id, name, is_taxable, company_id, created_at`
	var s BillableService
	err := r.db.QueryRow(ctx, query, id, companyID).Scan(&s.ID, &s.Name, &s.IsTaxable, &s.CompanyID, &s.CreatedAt)
	if err != nil {
		return BillableService{}, translate(err)
	}
	return s, nil
}

// Port service link operations
func (r *repo) LinkedServiceIDs(ctx context.Context, companyID, portID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT service_id FROM port_services WHERE port_id = $1 AND company_id = $2`, portID, companyID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

func (r *repo) ReplaceLinks(ctx context.Context, companyID, portID int64, serviceIDs []int64) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM port_services WHERE port_id = $1 AND company_id = $2`, portID, companyID); err != nil {
			return err
		}
		for _, serviceID := range serviceIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO port_services (port_id, service_id, company_id) VALUES ($1, $2, $3)`,
				portID, serviceID, companyID); err != nil {
				return translate(err)
			}
		}
		return nil
	})
}

// Port remark operations
func (r *repo) Remarks(ctx context.Context, companyID, portID int64) ([]Remark, error) {
	query := `SELECT id, port_id, company_id, remark_text, display_order
		FROM port_remarks WHERE port_id = $1 AND company_id = $2 ORDER BY display_order ASC, id ASC`
	rows, err := r.db.Query(ctx, query, portID, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	remarks := []Remark{}
	for rows.Next() {
		var rm Remark
		if err := rows.Scan(&rm.ID, &rm.PortID, &rm.CompanyID, &rm.RemarkText, &rm.DisplayOrder); err != nil {
			return nil, err
		}
		remarks = append(remarks, rm)
	}
	return remarks, rows.Err()
}

func (r *repo) ReplaceRemarks(ctx context.Context, companyID, portID int64, remarks []RemarkInput) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM port_remarks WHERE port_id = $1 AND company_id = $2`, portID, companyID); err != nil {
			return err
		}
		for _, rm := range remarks {
			if _, err := tx.Exec(ctx,
				`INSERT INTO port_remarks (port_id, company_id, remark_text, display_order) VALUES ($1, $2, $3, $4)`,
				portID, companyID, rm.RemarkText, rm.DisplayOrder); err != nil {
				return translate(err)
			}
		}
		return nil
	})
}

func translate(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: service not found", httpx.ErrNotFound)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: this service name is already registered", httpx.ErrDuplicate)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: unknown port or service", httpx.ErrValidation)
	default:
		return err
	}
}
