package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/enrollment-portal/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventDocumentReviewed   EventType = "document_reviewed"
	EventPaymentReviewed    EventType = "payment_reviewed"
	EventDocumentsCompleted EventType = "documents_completed"
)

// AllEventTypes lists every type a forwarder should subscribe to.
var AllEventTypes = []EventType{
	EventDocumentReviewed,
	EventPaymentReviewed,
	EventDocumentsCompleted,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SubjectID string    `json:"subject_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType EventType, subjectID, actorID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// DocumentReviewedPayload payload.
type DocumentReviewedPayload struct {
	DocumentID   string              `json:"document_id"`
	OwnerID      string              `json:"owner_id"`
	DocumentType domain.DocumentType `json:"document_type"`
	Status       domain.ReviewStatus `json:"status"`
	Reason       string              `json:"reason,omitempty"`
}

// PaymentReviewedPayload payload. Owner contact data travels with the event so
// subscribers can mail the student without another lookup.
type PaymentReviewedPayload struct {
	PaymentID  string              `json:"payment_id"`
	OwnerID    string              `json:"owner_id"`
	OwnerEmail string              `json:"owner_email"`
	OwnerName  string              `json:"owner_name"`
	Amount     decimal.Decimal     `json:"amount"`
	Date       time.Time           `json:"date"`
	Status     domain.ReviewStatus `json:"status"`
	Reason     string              `json:"reason,omitempty"`
}

// DocumentsCompletedPayload payload.
type DocumentsCompletedPayload struct {
	UserID      string `json:"user_id"`
	StudentName string `json:"student_name"`
}
