package masterdata

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// Supplier is a garment vendor or raw material supplier. Bank fields are
// sensitive and only returned unmasked after step-up verification.
type Supplier struct {
	ID              int64     `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	Address         string    `json:"address"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	BankName        string    `json:"bank_name,omitempty"`
	BankAccountNo   string    `json:"bank_account_no,omitempty"`
	BankAccountName string    `json:"bank_account_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MaskBank blanks the account number except its last four digits.
func (s *Supplier) MaskBank() {
	if n := len(s.BankAccountNo); n > 4 {
		s.BankAccountNo = "****" + s.BankAccountNo[n-4:]
	}
}

// BOMLine is one material requirement of a finished good, expressed per
// unit of output with a waste percentage on top.
type BOMLine struct {
	ID             int64           `json:"id"`
	FinishedGoodID int64           `json:"finished_good_id"`
	MaterialID     int64           `json:"material_id"`
	QtyPerUnit     decimal.Decimal `json:"qty_per_unit"`
	WastePct       decimal.Decimal `json:"waste_pct"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ListFilters carries paging and search parameters for list endpoints.
type ListFilters struct {
	Page   int
	Limit  int
	Search string
}

// Offset returns the SQL offset for the filter's page.
func (f ListFilters) Offset() int {
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = 20
	}
	return (page - 1) * limit
}

// PageLimit returns the effective page size.
func (f ListFilters) PageLimit() int {
	if f.Limit < 1 {
		return 20
	}
	return f.Limit
}

var (
	ErrSupplierNotFound = fmt.Errorf("masterdata: supplier %w", shared.ErrNotFound)
	ErrBOMLineNotFound  = fmt.Errorf("masterdata: bom line %w", shared.ErrNotFound)
	ErrDuplicateSKU     = fmt.Errorf("%w: sku already exists", shared.ErrStateConflict)
	ErrDuplicateCode    = fmt.Errorf("%w: supplier code already exists", shared.ErrStateConflict)
	ErrSupplierInUse    = fmt.Errorf("%w: supplier has documents", shared.ErrStateConflict)
)
