package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/enrollment-portal/internal/api/dto"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/service"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

// MeDependencies are the services behind the student's own pages.
type MeDependencies struct {
	Progress       *service.ProgressService
	Profiles       *service.ProfileService
	Documents      *service.DocumentService
	Payments       *service.PaymentService
	Finance        *service.FinanceService
	Notifications  *service.NotificationService
	Settings       *service.SettingsService
	UploadMaxBytes int64
}

// MeHandler serves the authenticated caller's own resources.
type MeHandler struct {
	deps MeDependencies
}

// NewMeHandler constructs handler.
func NewMeHandler(deps MeDependencies) *MeHandler {
	return &MeHandler{deps: deps}
}

// Progress GET /me/progress.
func (h *MeHandler) Progress(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	progress, err := h.deps.Progress.GetUserProgress(c.UserContext(), who.UserID)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, progress)
}

// GetProfile GET /me/profile.
func (h *MeHandler) GetProfile(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	user, err := h.deps.Profiles.Get(c.UserContext(), who)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, userResponse(user))
}

// UpdateProfile PUT /me/profile.
func (h *MeHandler) UpdateProfile(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.ProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.deps.Profiles.Update(c.UserContext(), who, req.ToProfile())
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, userResponse(user))
}

// ListDocuments GET /me/documents.
func (h *MeHandler) ListDocuments(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	docs, err := h.deps.Documents.ListOwn(c.UserContext(), who)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, documentResponses(docs))
}

// UploadDocument POST /me/documents (multipart: type, file).
func (h *MeHandler) UploadDocument(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	file, err := readUpload(c, h.deps.UploadMaxBytes)
	if err != nil {
		return err
	}
	if file == nil {
		return apperrors.NewValidationError("file is required", map[string]any{"field": uploadField})
	}
	docType := domain.DocumentType(strings.TrimSpace(c.FormValue("type")))
	doc, err := h.deps.Documents.Upload(c.UserContext(), who, docType, *file)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusCreated, documentResponse(doc))
}

// DeleteDocument DELETE /me/documents/:id.
func (h *MeHandler) DeleteDocument(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.deps.Documents.DeleteOwn(c.UserContext(), who, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListPayments GET /me/payments.
func (h *MeHandler) ListPayments(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	payments, err := h.deps.Payments.ListOwn(c.UserContext(), who)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, paymentResponses(payments))
}

// SubmitPayment POST /me/payments (multipart: amount, date, location, method,
// payer_name, optional file).
func (h *MeHandler) SubmitPayment(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(c.FormValue("amount")))
	if err != nil {
		return apperrors.NewValidationError("invalid amount", map[string]any{"amount": c.FormValue("amount")})
	}
	date, err := time.Parse(dto.DateLayout, strings.TrimSpace(c.FormValue("date")))
	if err != nil {
		return apperrors.NewValidationError("invalid date", map[string]any{"date": c.FormValue("date")})
	}
	file, err := readUpload(c, h.deps.UploadMaxBytes)
	if err != nil {
		return err
	}
	payment, err := h.deps.Payments.Submit(c.UserContext(), who, service.PaymentSubmission{
		Amount:    amount,
		Date:      date,
		Location:  c.FormValue("location"),
		Method:    c.FormValue("method"),
		PayerName: c.FormValue("payer_name"),
		File:      file,
	})
	if err != nil {
		return err
	}
	return data(c, fiber.StatusCreated, paymentResponse(payment))
}

// PaymentSummary GET /me/payments/summary.
func (h *MeHandler) PaymentSummary(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	summary, err := h.deps.Finance.StudentSummary(c.UserContext(), who)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, fiber.Map{
		"total_cost":   summary.TotalCost,
		"total_paid":   summary.TotalPaid,
		"remaining":    summary.Remaining,
		"fully_paid":   summary.FullyPaid,
		"installments": summary.Installments,
		"payments":     paymentResponses(summary.Payments),
	})
}

// Notifications GET /me/notifications.
func (h *MeHandler) Notifications(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	items, err := h.deps.Notifications.ListLatest(c.UserContext(), who)
	if err != nil {
		return err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return data(c, fiber.StatusOK, items)
}

// MarkNotificationRead PUT /me/notifications/:id/read.
func (h *MeHandler) MarkNotificationRead(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.deps.Notifications.MarkRead(c.UserContext(), who, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PublicSettings GET /settings.
func (h *MeHandler) PublicSettings(c *fiber.Ctx) error {
	settings, err := h.deps.Settings.Public(c.UserContext())
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, settings)
}

// DocumentTypes GET /document-types.
func (h *MeHandler) DocumentTypes(c *fiber.Ctx) error {
	return data(c, fiber.StatusOK, domain.RequiredDocumentTypes)
}
