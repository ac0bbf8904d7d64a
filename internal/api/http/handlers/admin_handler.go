package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/enrollment-portal/internal/api/dto"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	"github.com/spec-kit/enrollment-portal/internal/service"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

// AdminDependencies are the services behind the admin area.
type AdminDependencies struct {
	Users         *service.UserAdminService
	Documents     *service.DocumentService
	Payments      *service.PaymentService
	Reviews       *service.ReviewService
	Finance       *service.FinanceService
	Analytics     *service.AnalyticsService
	Cohorts       *service.CohortService
	Settings      *service.SettingsService
	Notifications *service.NotificationService
}

// AdminHandler serves reviewer and administrator endpoints. Role gates are applied
// by the router; services re-check the finer-grained rules.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler constructs handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// Analytics GET /admin/analytics.
func (h *AdminHandler) Analytics(c *fiber.Ctx) error {
	out, err := h.deps.Analytics.Analytics(c.UserContext())
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, out)
}

// Dashboard GET /admin/dashboard.
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	rows, err := h.deps.Analytics.Dashboard(c.UserContext())
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, rows)
}

// Search GET /admin/search?q=&type=.
func (h *AdminHandler) Search(c *fiber.Ctx) error {
	res, err := h.deps.Analytics.Search(c.UserContext(), c.Query("q"), c.Query("type"))
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, fiber.Map{
		"users":     res.Users,
		"documents": ownedDocumentResponses(res.Documents),
		"payments":  ownedPaymentResponses(res.Payments),
	})
}

// ListUsers GET /admin/users.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	var page dto.PageQuery
	if err := c.QueryParser(&page); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	q := service.UserQuery{
		Search: c.Query("search"),
		Page:   page.Page,
		Limit:  page.Limit,
	}
	if role := c.Query("role"); role != "" {
		r := domain.Role(role)
		q.Role = &r
	}
	if raw := c.Query("profileCompleted"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.NewValidationError("invalid profileCompleted", map[string]any{"profileCompleted": raw})
		}
		q.ProfileCompleted = &completed
	}
	result, err := h.deps.Users.List(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":       userResponses(result.Users),
		"pagination": result.Pagination,
	})
}

// UserDetail GET /admin/users/:id.
func (h *AdminHandler) UserDetail(c *fiber.Ctx) error {
	detail, err := h.deps.Users.Detail(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	notifications := detail.Notifications
	if notifications == nil {
		notifications = []domain.Notification{}
	}
	return data(c, fiber.StatusOK, fiber.Map{
		"user":          userResponse(detail.User),
		"progress":      detail.Progress,
		"documents":     documentResponses(detail.Documents),
		"payments":      paymentResponses(detail.Payments),
		"notifications": notifications,
		"financial":     detail.Financial,
	})
}

// UpdateUser PUT /admin/users/:id.
func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.AdminUserUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Profile != nil {
		if err := dto.Validate(req.Profile); err != nil {
			return err
		}
	}
	update := service.UserUpdate{
		Email:    req.Email,
		Role:     req.Role,
		CohortID: req.CohortID,
		Password: req.Password,
	}
	if req.Profile != nil {
		profile := req.Profile.ToProfile()
		update.Profile = &profile
	}
	user, err := h.deps.Users.Update(c.UserContext(), who, c.Params("id"), update)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, userResponse(user))
}

// DeleteUser DELETE /admin/users/:id.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.deps.Users.Delete(c.UserContext(), who, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateFinancials PUT /admin/users/:id/financials.
func (h *AdminHandler) UpdateFinancials(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.FinancialsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	dist, err := h.deps.Finance.UpdateUserFinancials(c.UserContext(), who, c.Params("id"), service.DistributionUpdate{
		UFLP:           req.UFLP,
		UFLPDate:       dto.ParseDate(req.UFLPDate),
		ECOA:           req.ECOA,
		ECOADate:       dto.ParseDate(req.ECOADate),
		Commission:     req.Commission,
		CommissionDate: dto.ParseDate(req.CommissionDate),
	})
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, dist)
}

// Financials GET /admin/financials?search=&from=&to=.
func (h *AdminHandler) Financials(c *fiber.Ctx) error {
	from, to := c.Query("from"), c.Query("to")
	records, err := h.deps.Finance.FinancialRecords(c.UserContext(), repository.FinancialFilter{
		Search:   c.Query("search"),
		DateFrom: dto.ParseDate(&from),
		DateTo:   dto.ParseDate(&to),
	})
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, records)
}

// ListDocuments GET /admin/documents?status=&type=&userId=&search=.
func (h *AdminHandler) ListDocuments(c *fiber.Ctx) error {
	filter := repository.DocumentFilter{
		UserID: c.Query("userId"),
		Search: c.Query("search"),
		Limit:  parseInt(c.Query("limit"), 0),
		Offset: parseInt(c.Query("offset"), 0),
	}
	if status := c.Query("status"); status != "" {
		s := domain.ReviewStatus(status)
		filter.Status = &s
	}
	if docType := c.Query("type"); docType != "" {
		t := domain.DocumentType(docType)
		filter.Type = &t
	}
	docs, err := h.deps.Documents.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, ownedDocumentResponses(docs))
}

// ReviewDocument PUT /admin/documents/:id/review.
func (h *AdminHandler) ReviewDocument(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.ReviewRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	doc, err := h.deps.Reviews.ReviewDocument(c.UserContext(), who, c.Params("id"), req.Status, req.Reason)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, documentResponse(doc))
}

// DeleteDocument DELETE /admin/documents/:id.
func (h *AdminHandler) DeleteDocument(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.deps.Reviews.DeleteDocument(c.UserContext(), who, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ApproveAllDocuments PUT /admin/users/:id/documents/approve-all.
func (h *AdminHandler) ApproveAllDocuments(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	n, err := h.deps.Reviews.ApproveAllPendingDocuments(c.UserContext(), who, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, dto.ApproveAllResponse{Approved: n})
}

// ListPayments GET /admin/payments?status=&userId=&search=.
func (h *AdminHandler) ListPayments(c *fiber.Ctx) error {
	filter := repository.PaymentFilter{
		UserID: c.Query("userId"),
		Search: c.Query("search"),
		Limit:  parseInt(c.Query("limit"), 0),
		Offset: parseInt(c.Query("offset"), 0),
	}
	if status := c.Query("status"); status != "" {
		s := domain.ReviewStatus(status)
		filter.Status = &s
	}
	payments, err := h.deps.Payments.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, ownedPaymentResponses(payments))
}

// ReviewPayment PUT /admin/payments/:id/review.
func (h *AdminHandler) ReviewPayment(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.ReviewRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	payment, err := h.deps.Reviews.ReviewPayment(c.UserContext(), who, c.Params("id"), req.Status, req.Reason)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, paymentResponse(payment))
}

// ApprovePayment PUT /admin/payments/:id/approve.
func (h *AdminHandler) ApprovePayment(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	payment, err := h.deps.Reviews.ApprovePayment(c.UserContext(), who, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, paymentResponse(payment))
}

// CorrectPayment PUT /admin/payments/:id.
func (h *AdminHandler) CorrectPayment(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.PaymentCorrectionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	payment, err := h.deps.Reviews.CorrectPayment(c.UserContext(), who, c.Params("id"), repository.PaymentCorrection{
		Amount: req.Amount,
		Date:   dto.ParseDate(req.Date),
	})
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, paymentResponse(payment))
}

// DeletePayment DELETE /admin/payments/:id.
func (h *AdminHandler) DeletePayment(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.deps.Reviews.DeletePayment(c.UserContext(), who, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListCohorts GET /admin/cohorts.
func (h *AdminHandler) ListCohorts(c *fiber.Ctx) error {
	cohorts, err := h.deps.Cohorts.List(c.UserContext())
	if err != nil {
		return err
	}
	if cohorts == nil {
		cohorts = []domain.Cohort{}
	}
	return data(c, fiber.StatusOK, cohorts)
}

// CreateCohort POST /admin/cohorts.
func (h *AdminHandler) CreateCohort(c *fiber.Ctx) error {
	who, in, err := h.cohortInput(c)
	if err != nil {
		return err
	}
	cohort, err := h.deps.Cohorts.Create(c.UserContext(), who, in)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusCreated, cohort)
}

// UpdateCohort PUT /admin/cohorts/:id.
func (h *AdminHandler) UpdateCohort(c *fiber.Ctx) error {
	who, in, err := h.cohortInput(c)
	if err != nil {
		return err
	}
	cohort, err := h.deps.Cohorts.Update(c.UserContext(), who, c.Params("id"), in)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, cohort)
}

// DeleteCohort DELETE /admin/cohorts/:id.
func (h *AdminHandler) DeleteCohort(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.deps.Cohorts.Delete(c.UserContext(), who, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminHandler) cohortInput(c *fiber.Ctx) (domain.Actor, service.CohortInput, error) {
	who, err := actor(c)
	if err != nil {
		return domain.Actor{}, service.CohortInput{}, err
	}
	var req dto.CohortRequest
	if err := bind(c, &req); err != nil {
		return domain.Actor{}, service.CohortInput{}, err
	}
	start, _ := time.Parse(dto.DateLayout, req.StartDate)
	end, _ := time.Parse(dto.DateLayout, req.EndDate)
	return who, service.CohortInput{Code: req.Code, StartDate: start, EndDate: end}, nil
}

// ListSettings GET /admin/settings.
func (h *AdminHandler) ListSettings(c *fiber.Ctx) error {
	settings, err := h.deps.Settings.List(c.UserContext())
	if err != nil {
		return err
	}
	if settings == nil {
		settings = []domain.SystemSetting{}
	}
	return data(c, fiber.StatusOK, settings)
}

// UpsertSetting PUT /admin/settings.
func (h *AdminHandler) UpsertSetting(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.SettingRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	setting, err := h.deps.Settings.Upsert(c.UserContext(), who, req.Key, req.Value, req.Description)
	if err != nil {
		return err
	}
	return data(c, fiber.StatusOK, setting)
}

// CreateNotification POST /admin/notifications.
func (h *AdminHandler) CreateNotification(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.NotificationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	note, err := h.deps.Notifications.Create(c.UserContext(), who, service.NotificationInput{
		UserID:  req.UserID,
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
	})
	if err != nil {
		return err
	}
	return data(c, fiber.StatusCreated, note)
}
