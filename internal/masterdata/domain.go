// Package masterdata manages the reference data the pricing engine reads:
// billable services, which services apply at each port, and port remarks.
package masterdata

import (
	"context"
	"strings"
	"time"
)

// BillableService is a named billable activity. IsTaxable marks services that
// form the municipal tax base.
type BillableService struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsTaxable bool      `json:"is_taxable"`
	CompanyID int64     `json:"company_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ServiceInput is the body of service create and update requests.
type ServiceInput struct {
	Name      string `json:"name" validate:"required"`
	IsTaxable bool   `json:"is_taxable"`
}

// Remark is a note printed on every PDA of a port.
type Remark struct {
	ID           int64  `json:"id"`
	PortID       int64  `json:"port_id"`
	CompanyID    int64  `json:"company_id"`
	RemarkText   string `json:"remark_text"`
	DisplayOrder int    `json:"display_order"`
}

// RemarkInput is one submitted remark.
type RemarkInput struct {
	RemarkText   string `json:"remark_text" validate:"required"`
	DisplayOrder int    `json:"display_order"`
}

// ReplaceRemarksInput is the body of a wholesale remark save.
type ReplaceRemarksInput struct {
	Remarks []RemarkInput `json:"remarks" validate:"required,dive"`
}

// ReplaceLinksInput is the body of a port's service link save.
type ReplaceLinksInput struct {
	ServiceIDs []int64 `json:"serviceIds" validate:"required,dive,gt=0"`
}

// Repository defines persistence for master data.
type Repository interface {
	ListServices(ctx context.Context, companyID int64) ([]BillableService, error)
	CreateService(ctx context.Context, companyID int64, in ServiceInput) (BillableService, error)
	UpdateService(ctx context.Context, companyID, id int64, in ServiceInput) (BillableService, error)
	DeleteService(ctx context.Context, companyID, id int64) (BillableService, error)

	LinkedServiceIDs(ctx context.Context, companyID, portID int64) ([]int64, error)
	ReplaceLinks(ctx context.Context, companyID, portID int64, serviceIDs []int64) error

	Remarks(ctx context.Context, companyID, portID int64) ([]Remark, error)
	ReplaceRemarks(ctx context.Context, companyID, portID int64, remarks []RemarkInput) error
}

// Service defines master data use cases.
type Service interface {
	ListServices(ctx context.Context, companyID int64) ([]BillableService, error)
	CreateService(ctx context.Context, companyID int64, in ServiceInput) (BillableService, error)
	UpdateService(ctx context.Context, companyID, id int64, in ServiceInput) (BillableService, error)
	DeleteService(ctx context.Context, companyID, id int64) (BillableService, error)
	TaxableNames(ctx context.Context, companyID int64) (map[string]bool, error)

	LinkedServiceIDs(ctx context.Context, companyID, portID int64) ([]int64, error)
	ReplaceLinks(ctx context.Context, companyID, portID int64, in ReplaceLinksInput) error

	Remarks(ctx context.Context, companyID, portID int64) ([]Remark, error)
	ReplaceRemarks(ctx context.Context, companyID, portID int64, in ReplaceRemarksInput) error
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}
