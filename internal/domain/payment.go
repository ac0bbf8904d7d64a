package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a proof of payment submitted by a student.
type Payment struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Amount          decimal.Decimal `db:"amount"`
	Date            time.Time       `db:"date"`
	Location        string          `db:"location"`
	Method          string          `db:"method"`
	PayerName       *string         `db:"payer_name"`
	URL             *string         `db:"url"`
	Status          ReviewStatus    `db:"status"`
	RejectionReason *string         `db:"rejection_reason"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// FileAvailable reports whether the proof file can still be fetched.
func (p *Payment) FileAvailable() bool {
	return p.URL != nil && *p.URL != ""
}

// MethodRequiresProof reports whether a payment made with method must carry a proof file.
func MethodRequiresProof(method string) bool {
	m := strings.ToLower(method)
	return strings.Contains(m, "transferencia") || strings.Contains(m, "paypal")
}

// MethodRequiresPayerName reports whether a payment made with method must name the payer.
func MethodRequiresPayerName(method string) bool {
	return strings.Contains(strings.ToLower(method), "efectivo")
}
