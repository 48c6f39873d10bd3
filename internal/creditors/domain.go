package creditors

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CreditorStatus enumerates obligation statuses.
type CreditorStatus string

const (
	// StatusPayment marks an outstanding payable.
	StatusPayment CreditorStatus = "payment"
	// StatusCredit marks a credit balance owed back by the supplier.
	StatusCredit CreditorStatus = "credit"
)

var (
	ErrNotFound = errors.New("creditors: not found")
	ErrInvalid  = errors.New("creditors: invalid record")
)

// Creditor is one outstanding obligation or credit towards a supplier.
// Amounts are signed: positive means payable, negative means credit.
type Creditor struct {
	ID           int64           `json:"id"`
	SupplierID   int64           `json:"supplier_id"`
	SupplierName string          `json:"supplier_name,omitempty"`
	InvoiceDate  time.Time       `json:"invoice_date"`
	DueDate      time.Time       `json:"due_date"`
	Amount       decimal.Decimal `json:"amount"`
	AgingDays    int             `json:"aging_days"`
	Status       CreditorStatus  `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AgingAsOf returns whole days past due at the given date, floored at zero.
func (c Creditor) AgingAsOf(asOf time.Time) int {
	days := int(asOf.Sub(c.DueDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Validate checks the record against the ingestion contract.
func (c Creditor) Validate() error {
	if c.SupplierID <= 0 {
		return fmt.Errorf("%w: supplier_id required", ErrInvalid)
	}
	if c.InvoiceDate.IsZero() || c.DueDate.IsZero() {
		return fmt.Errorf("%w: invoice_date and due_date required", ErrInvalid)
	}
	if c.DueDate.Before(c.InvoiceDate) {
		return fmt.Errorf("%w: due_date precedes invoice_date", ErrInvalid)
	}
	if c.Status != StatusPayment && c.Status != StatusCredit {
		return fmt.Errorf("%w: status must be payment or credit", ErrInvalid)
	}
	if c.Status == StatusPayment && c.Amount.Sign() < 0 {
		return fmt.Errorf("%w: payment amount must not be negative", ErrInvalid)
	}
	return nil
}
