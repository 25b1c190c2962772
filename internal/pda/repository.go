package pda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/portagency/pdadesk/internal/platform/db"
	"github.com/portagency/pdadesk/internal/platform/httpx"
)

// Repository reads PDA parties and persists PDAs.
type Repository interface {
	Ship(ctx context.Context, companyID, id int64) (Ship, error)
	Port(ctx context.Context, companyID, id int64) (Port, error)
	Client(ctx context.Context, companyID, id int64) (Client, error)
	Save(ctx context.Context, header Header, lines []Line) (int64, error)
	List(ctx context.Context, companyID int64) ([]Summary, error)
	Get(ctx context.Context, companyID, id int64) (Detail, error)
}

// PGRepository is the Postgres-backed Repository.
type PGRepository struct {
	pool db.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool db.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Ship loads a vessel owned by the company.
func (r *PGRepository) Ship(ctx context.Context, companyID, id int64) (Ship, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, dwt, grt, net, loa, beam, draft, depth, flag, year
		FROM ships WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return Ship{}, err
	}
	ship, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[Ship])
	return ship, notFound(err, "ship")
}

// Port loads a port owned by the company.
func (r *PGRepository) Port(ctx context.Context, companyID, id int64) (Port, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, terminal, berth
		FROM ports WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return Port{}, err
	}
	port, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[Port])
	return port, notFound(err, "port")
}

// Client loads a client owned by the company.
func (r *PGRepository) Client(ctx context.Context, companyID, id int64) (Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, po_number, vat_number, address
		FROM clients WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return Client{}, err
	}
	client, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[Client])
	return client, notFound(err, "client")
}

// Save writes the header and every line in one transaction. A failing line
// leaves neither the header nor earlier lines behind.
func (r *PGRepository) Save(ctx context.Context, h Header, lines []Line) (int64, error) {
	var pdaID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO pdas
			(pda_number, ship_id, client_id, port_id, roe, company_id, cargo_description, total_cargo, eta, etb, etd)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
			h.PDANumber, h.ShipID, h.ClientID, h.PortID, h.ROE, h.CompanyID,
			h.Cargo, h.TotalCargo, h.ETA, h.ETB, h.ETD,
		).Scan(&pdaID)
		if err != nil {
			return fmt.Errorf("insert pda: %w", err)
		}
		for i, line := range lines {
			if _, err := tx.Exec(ctx,
				`INSERT INTO pda_items (pda_id, service_name, value, currency) VALUES ($1, $2, $3, $4)`,
				pdaID, line.ServiceName, line.Value, line.Currency); err != nil {
				return fmt.Errorf("insert pda item %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pdaID, nil
}

// List returns the company's PDAs, newest first.
func (r *PGRepository) List(ctx context.Context, companyID int64) ([]Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pda.id, COALESCE(pda.pda_number, ''), pda.created_at,
		       c.name, s.name, p.name, p.terminal
		FROM pdas pda
		JOIN clients c ON pda.client_id = c.id
		JOIN ships s ON pda.ship_id = s.id
		JOIN ports p ON pda.port_id = p.id
		WHERE pda.company_id = $1
		ORDER BY pda.created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Summary])
}

// Get loads a PDA with its parties and lines. Remarks are left to the caller.
func (r *PGRepository) Get(ctx context.Context, companyID, id int64) (Detail, error) {
	var (
		d             Detail
		eta, etb, etd *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT pda.id, COALESCE(pda.pda_number, ''), pda.roe, COALESCE(pda.cargo_description, ''),
		       COALESCE(pda.total_cargo, 0), pda.eta, pda.etb, pda.etd, pda.created_at,
		       s.id, s.name, s.dwt, s.grt, s.net, s.loa, s.beam, s.draft, s.depth, s.flag, s.year,
		       c.id, c.name, c.po_number, c.vat_number, c.address,
		       pt.id, pt.name, pt.terminal, pt.berth
		FROM pdas pda
		JOIN ships s ON pda.ship_id = s.id
		JOIN clients c ON pda.client_id = c.id
		JOIN ports pt ON pda.port_id = pt.id
		WHERE pda.id = $1 AND pda.company_id = $2`, id, companyID,
	).Scan(
		&d.ID, &d.PDANumber, &d.ROE, &d.Cargo, &d.TotalCargo, &eta, &etb, &etd, &d.CreatedAt,
		&d.Ship.ID, &d.Ship.Name, &d.Ship.DWT, &d.Ship.GRT, &d.Ship.NET, &d.Ship.LOA, &d.Ship.Beam,
		&d.Ship.Draft, &d.Ship.Depth, &d.Ship.Flag, &d.Ship.Year,
		&d.Client.ID, &d.Client.Name, &d.Client.PONumber, &d.Client.VATNumber, &d.Client.Address,
		&d.Port.ID, &d.Port.Name, &d.Port.Terminal, &d.Port.Berth,
	)
	if err != nil {
		return Detail{}, notFound(err, "PDA")
	}
	d.ETA, d.ETB, d.ETD = timestampOf(eta), timestampOf(etb), timestampOf(etd)

	rows, err := r.pool.Query(ctx,
		`SELECT id, pda_id, service_name, value, currency FROM pda_items WHERE pda_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return Detail{}, err
	}
	d.Items, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Item])
	if err != nil {
		return Detail{}, err
	}
	if d.Items == nil {
		d.Items = []Item{}
	}
	return d, nil
}

func notFound(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s not found", httpx.ErrNotFound, entity)
	}
	return err
}
