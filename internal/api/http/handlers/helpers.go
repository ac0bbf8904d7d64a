package handlers

import (
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/enrollment-portal/internal/api/dto"
	"github.com/spec-kit/enrollment-portal/internal/auth"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/service"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

const uploadField = "file"

// bind parses and validates a JSON body.
func bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(out)
}

func actor(c *fiber.Ctx) (domain.Actor, error) {
	return auth.ActorFromContext(c)
}

func data(c *fiber.Ctx, status int, payload any) error {
	return c.Status(status).JSON(fiber.Map{"data": payload})
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// readUpload loads the multipart file field into memory. A missing field yields
// nil without error; required-ness is decided by the service.
func readUpload(c *fiber.Ctx, maxBytes int64) (*service.FileUpload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperrors.NewValidationError("invalid multipart form", nil)
	}
	files := form.File[uploadField]
	if len(files) == 0 {
		return nil, nil
	}
	header := files[0]
	if maxBytes > 0 && header.Size > maxBytes {
		return nil, apperrors.NewValidationError("file too large", map[string]any{"max_bytes": maxBytes})
	}
	f, err := header.Open()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer f.Close()
	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &service.FileUpload{FileName: header.Filename, Data: buf}, nil
}

// sendDownload writes a file attachment.
func sendDownload(c *fiber.Ctx, d *service.Download) error {
	c.Set(fiber.HeaderContentType, d.ContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+d.FileName+`"`)
	return c.Status(fiber.StatusOK).Send(d.Data)
}
