package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/events"
	"github.com/spec-kit/enrollment-portal/internal/mail"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

const latestNotificationsLimit = 20

// NotificationService turns domain events into in-app notifications and e-mails,
// and serves the notification inbox.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	mailer        mail.Mailer
	logger        *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(
	notifications repository.NotificationRepository,
	users repository.UserRepository,
	mailer mail.Mailer,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		users:         users,
		mailer:        mailer,
		logger:        logger,
	}
}

// Register subscribes the notification handlers to d.
func (n *NotificationService) Register(d events.Dispatcher) {
	d.Subscribe(events.EventDocumentReviewed, n.handleDocumentReviewed)
	d.Subscribe(events.EventPaymentReviewed, n.handlePaymentReviewed)
	d.Subscribe(events.EventDocumentsCompleted, n.handleDocumentsCompleted)
}

func (n *NotificationService) handleDocumentReviewed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DocumentReviewedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}

	note := &domain.Notification{UserID: payload.OwnerID}
	if payload.Status == domain.ReviewApproved {
		note.Title = "Documento Aprobado"
		note.Message = fmt.Sprintf("Tu documento %q ha sido aprobado.", payload.DocumentType)
		note.Type = domain.NotificationSuccess
	} else {
		note.Title = "Documento Rechazado"
		note.Message = fmt.Sprintf("Tu documento %q ha sido rechazado. Razón: %s", payload.DocumentType, payload.Reason)
		note.Type = domain.NotificationError
	}
	return n.notifications.Create(ctx, note)
}

func (n *NotificationService) handlePaymentReviewed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PaymentReviewedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}

	amount := payload.Amount.StringFixed(2)
	note := &domain.Notification{UserID: payload.OwnerID}
	if payload.Status == domain.ReviewApproved {
		note.Title = "Pago Aprobado"
		note.Message = fmt.Sprintf("Tu pago de $%s ha sido aprobado.", amount)
		note.Type = domain.NotificationSuccess
	} else {
		note.Title = "Pago Rechazado"
		note.Message = fmt.Sprintf("Tu pago de $%s ha sido rechazado. Razón: %s", amount, payload.Reason)
		note.Type = domain.NotificationError
	}
	noteErr := n.notifications.Create(ctx, note)

	var mailErr error
	if payload.Status == domain.ReviewApproved {
		mailErr = n.sendPaymentApproved(ctx, payload)
	}
	return errors.Join(noteErr, mailErr)
}

func (n *NotificationService) sendPaymentApproved(ctx context.Context, payload events.PaymentReviewedPayload) error {
	if strings.TrimSpace(payload.OwnerEmail) == "" {
		return nil
	}
	body, err := mail.Render("payment_approved.html", map[string]string{
		"Name":   payload.OwnerName,
		"Amount": payload.Amount.StringFixed(2),
		"Date":   payload.Date.Format("02/01/2006"),
	})
	if err != nil {
		return err
	}
	if err := n.mailer.Send(ctx, mail.Message{To: payload.OwnerEmail, Subject: "Pago Aprobado - UFLP", HTML: body}); err != nil {
		return fmt.Errorf("send payment approval email: %w", err)
	}
	return nil
}

// handleDocumentsCompleted fans one notice out to every reviewer account.
func (n *NotificationService) handleDocumentsCompleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DocumentsCompletedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}

	watchers, err := n.users.ListByRoles(ctx, domain.CompletionWatchers...)
	if err != nil {
		return fmt.Errorf("list reviewers: %w", err)
	}
	if len(watchers) == 0 {
		return nil
	}
	notes := make([]domain.Notification, 0, len(watchers))
	for _, w := range watchers {
		notes = append(notes, domain.Notification{
			UserID:  w.ID,
			Title:   "Legajo Completado",
			Message: fmt.Sprintf("El alumno %s ha subido todos sus documentos.", payload.StudentName),
			Type:    domain.NotificationInfo,
		})
	}
	return n.notifications.CreateMany(ctx, notes)
}

// ListLatest returns the caller's most recent notifications.
func (n *NotificationService) ListLatest(ctx context.Context, actor domain.Actor) ([]domain.Notification, error) {
	return n.notifications.ListLatest(ctx, actor.UserID, latestNotificationsLimit)
}

// MarkRead marks one of the caller's notifications as read.
func (n *NotificationService) MarkRead(ctx context.Context, actor domain.Actor, id string) error {
	if err := n.notifications.MarkRead(ctx, id, actor.UserID); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFound("notification", map[string]any{"id": id})
		}
		return err
	}
	return nil
}

// NotificationInput is an ad-hoc notification written by an administrator.
type NotificationInput struct {
	UserID  string
	Title   string
	Message string
	Type    domain.NotificationType
}

// Create writes a notification for any user.
func (n *NotificationService) Create(ctx context.Context, actor domain.Actor, input NotificationInput) (*domain.Notification, error) {
	if !actor.HasRole(domain.ReviewRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	if input.Type == "" {
		input.Type = domain.NotificationInfo
	}
	if !input.Type.Valid() {
		return nil, apperrors.NewValidationError("invalid notification type", map[string]any{"type": input.Type})
	}
	if _, err := n.users.GetByID(ctx, input.UserID); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": input.UserID})
		}
		return nil, err
	}
	note := &domain.Notification{
		UserID:  input.UserID,
		Title:   strings.TrimSpace(input.Title),
		Message: strings.TrimSpace(input.Message),
		Type:    input.Type,
	}
	if err := n.notifications.Create(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}
