// Package audit records user activity on PDAs and pricing rules and exposes
// the activity log.
package audit

import (
	"context"
	"time"

	"github.com/portagency/pdadesk/internal/shared"
)

// Actions recorded in the activity log.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionUpsert = "UPSERT"
)

// Entry is one row of the logs table.
type Entry struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher hands entries off for asynchronous persistence.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

// NewEntry builds an entry attributed to the principal found in ctx.
func NewEntry(ctx context.Context, action, entity, entityID, details string) Entry {
	p, _ := shared.PrincipalFromContext(ctx)
	return Entry{
		CompanyID: p.CompanyID,
		UserID:    p.UserID,
		Username:  p.Name,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Details:   details,
	}
}
