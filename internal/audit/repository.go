package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/portagency/pdadesk/internal/platform/db"
)

// Repository persists and reads activity entries.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	List(ctx context.Context, companyID int64, limit int) ([]Entry, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository on the logs table.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// Insert writes entry, stamping created_at with the database clock.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) error {
	if entry.Action == "" || entry.Entity == "" {
		return errors.New("audit: entry requires action and entity")
	}
	var details *string
	if entry.Details != "" {
		details = &entry.Details
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO logs (company_id, user_id, username, action, entity, entity_id, details, created_at)
		VALUES (NULLIF($1, 0), NULLIF($2, 0), $3, $4, $5, $6, $7, NOW())`,
		entry.CompanyID, entry.UserID, entry.Username, entry.Action, entry.Entity, entry.EntityID, details)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// List returns the newest entries of a company.
func (r *PGRepository) List(ctx context.Context, companyID int64, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, COALESCE(company_id, 0), COALESCE(user_id, 0), COALESCE(username, ''),
		       action, entity, COALESCE(entity_id, ''), COALESCE(details, ''), created_at
		FROM logs
		WHERE company_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, companyID, limit)
	if err != nil {
		return nil, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.CompanyID, &e.UserID, &e.Username, &e.Action, &e.Entity, &e.EntityID, &e.Details, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Prune deletes entries created before the cutoff.
func (r *PGRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
