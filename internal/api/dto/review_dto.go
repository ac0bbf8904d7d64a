package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/enrollment-portal/internal/domain"
)

// ReviewRequest carries a reviewer decision. The reason requirement for
// rejections is enforced by the review workflow, not here.
type ReviewRequest struct {
	Status domain.ReviewStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Reason string              `json:"reason"`
}

// PaymentCorrectionRequest edits the amount or date of a payment.
type PaymentCorrectionRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Date   *string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// DocumentResponse is a document without its storage URL.
type DocumentResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Type            domain.DocumentType `json:"type"`
	Status          domain.ReviewStatus `json:"status"`
	RejectionReason *string             `json:"rejection_reason"`
	FileAvailable   bool                `json:"file_available"`
	Owner           *OwnerResponse      `json:"owner,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// PaymentResponse is a payment without its storage URL.
type PaymentResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Amount          decimal.Decimal     `json:"amount"`
	Date            time.Time           `json:"date"`
	Location        string              `json:"location"`
	Method          string              `json:"method"`
	PayerName       *string             `json:"payer_name"`
	Status          domain.ReviewStatus `json:"status"`
	RejectionReason *string             `json:"rejection_reason"`
	FileAvailable   bool                `json:"file_available"`
	Owner           *OwnerResponse      `json:"owner,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// OwnerResponse identifies the student a record belongs to.
type OwnerResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ApproveAllResponse reports how many documents a bulk approval changed.
type ApproveAllResponse struct {
	Approved int64 `json:"approved"`
}
