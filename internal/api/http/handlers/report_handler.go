package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/enrollment-portal/internal/service"
)

// ReportHandler serves exports and the stored-file proxy.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Roster GET /admin/reports/students.
func (h *ReportHandler) Roster(c *fiber.Ctx) error {
	rows, err := h.reports.Roster(c.UserContext())
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []service.RosterRow{}
	}
	return data(c, fiber.StatusOK, rows)
}

// RosterWorkbook GET /admin/reports/students.xlsx.
func (h *ReportHandler) RosterWorkbook(c *fiber.Ctx) error {
	file, err := h.reports.RosterWorkbook(c.UserContext())
	if err != nil {
		return err
	}
	return sendDownload(c, file)
}

// DocumentsArchive GET /admin/users/:id/documents/zip.
func (h *ReportHandler) DocumentsArchive(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	file, err := h.reports.DocumentsArchive(c.UserContext(), who, c.Params("id"))
	if err != nil {
		return err
	}
	return sendDownload(c, file)
}

// DocumentFile GET /admin/documents/:id/file.
func (h *ReportHandler) DocumentFile(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	file, err := h.reports.DocumentFile(c.UserContext(), who, c.Params("id"))
	if err != nil {
		return err
	}
	return sendDownload(c, file)
}

// PaymentFile GET /admin/payments/:id/file.
func (h *ReportHandler) PaymentFile(c *fiber.Ctx) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	file, err := h.reports.PaymentFile(c.UserContext(), who, c.Params("id"))
	if err != nil {
		return err
	}
	return sendDownload(c, file)
}
