package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/enrollment-portal/internal/domain"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

// RequireRole ensures the principal holds one of the allowed roles. A missing
// principal is 401, a wrong role is 403.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("missing session")
		}
		if _, exists := allowedSet[principal.User.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
