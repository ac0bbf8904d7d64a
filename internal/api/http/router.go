package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/enrollment-portal/internal/api/http/handlers"
	"github.com/spec-kit/enrollment-portal/internal/auth"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Me             *handlers.MeHandler
	Admin          *handlers.AdminHandler
	Reports        *handlers.ReportHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
	// AuthRateLimit throttles the public auth endpoints; nil disables it.
	AuthRateLimit fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	limited := func(h fiber.Handler) []fiber.Handler {
		if cfg.AuthRateLimit == nil {
			return []fiber.Handler{h}
		}
		return []fiber.Handler{cfg.AuthRateLimit, h}
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", limited(cfg.Auth.Register)...)
	authGroup.Post("/login", limited(cfg.Auth.Login)...)
	authGroup.Post("/password/forgot", limited(cfg.Auth.ForgotPassword)...)
	authGroup.Post("/password/reset", limited(cfg.Auth.ResetPassword)...)
	authGroup.Post("/logout", cfg.Auth.Logout)

	session := cfg.AuthMiddleware.Handle
	authGroup.Post("/password/change", session, cfg.Auth.ChangePassword)
	app.Get("/settings", session, cfg.Me.PublicSettings)
	app.Get("/document-types", session, cfg.Me.DocumentTypes)

	me := app.Group("/me", session)
	me.Get("/progress", cfg.Me.Progress)
	me.Get("/profile", cfg.Me.GetProfile)
	me.Put("/profile", cfg.Me.UpdateProfile)
	me.Get("/documents", cfg.Me.ListDocuments)
	me.Post("/documents", cfg.Me.UploadDocument)
	me.Delete("/documents/:id", cfg.Me.DeleteDocument)
	me.Get("/documents/:id/file", cfg.Reports.DocumentFile)
	me.Get("/payments", cfg.Me.ListPayments)
	me.Post("/payments", cfg.Me.SubmitPayment)
	me.Get("/payments/summary", cfg.Me.PaymentSummary)
	me.Get("/payments/:id/file", cfg.Reports.PaymentFile)
	me.Get("/notifications", cfg.Me.Notifications)
	me.Put("/notifications/:id/read", cfg.Me.MarkNotificationRead)

	admin := app.Group("/admin", session, auth.RequireRole(domain.AdminViewRoles...))
	superAdmin := auth.RequireRole(domain.ReviewRoles...)

	admin.Get("/analytics", cfg.Admin.Analytics)
	admin.Get("/dashboard", cfg.Admin.Dashboard)
	admin.Get("/search", cfg.Admin.Search)
	admin.Get("/financials", cfg.Admin.Financials)

	admin.Get("/users", cfg.Admin.ListUsers)
	admin.Get("/users/:id", cfg.Admin.UserDetail)
	admin.Put("/users/:id", superAdmin, cfg.Admin.UpdateUser)
	admin.Delete("/users/:id", superAdmin, cfg.Admin.DeleteUser)
	admin.Put("/users/:id/financials", superAdmin, cfg.Admin.UpdateFinancials)
	admin.Put("/users/:id/documents/approve-all", auth.RequireRole(domain.BulkApproveRoles...), cfg.Admin.ApproveAllDocuments)
	admin.Get("/users/:id/documents/zip", auth.RequireRole(domain.ExportRoles...), cfg.Reports.DocumentsArchive)

	admin.Get("/documents", cfg.Admin.ListDocuments)
	admin.Get("/documents/:id/file", cfg.Reports.DocumentFile)
	admin.Put("/documents/:id/review", superAdmin, cfg.Admin.ReviewDocument)
	admin.Delete("/documents/:id", auth.RequireRole(domain.FileDeleteRoles...), cfg.Admin.DeleteDocument)

	admin.Get("/payments", cfg.Admin.ListPayments)
	admin.Get("/payments/:id/file", cfg.Reports.PaymentFile)
	admin.Put("/payments/:id/review", superAdmin, cfg.Admin.ReviewPayment)
	admin.Put("/payments/:id/approve", superAdmin, cfg.Admin.ApprovePayment)
	admin.Put("/payments/:id", superAdmin, cfg.Admin.CorrectPayment)
	admin.Delete("/payments/:id", superAdmin, cfg.Admin.DeletePayment)

	admin.Get("/cohorts", cfg.Admin.ListCohorts)
	admin.Post("/cohorts", superAdmin, cfg.Admin.CreateCohort)
	admin.Put("/cohorts/:id", superAdmin, cfg.Admin.UpdateCohort)
	admin.Delete("/cohorts/:id", superAdmin, cfg.Admin.DeleteCohort)

	admin.Get("/settings", cfg.Admin.ListSettings)
	admin.Put("/settings", superAdmin, cfg.Admin.UpsertSetting)
	admin.Post("/notifications", superAdmin, cfg.Admin.CreateNotification)

	admin.Get("/reports/students", cfg.Reports.Roster)
	admin.Get("/reports/students.xlsx", cfg.Reports.RosterWorkbook)
}
