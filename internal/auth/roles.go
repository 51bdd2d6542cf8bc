package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdeskhq/support-desk/internal/domain"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

// RequireRoles ensures the caller holds one of the allowed roles.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		user, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[user.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireStaff admits technicians and administrators.
func RequireStaff() fiber.Handler {
	return RequireRoles(domain.RoleTechnician, domain.RoleAdmin)
}

// RequireAdmin admits administrators only.
func RequireAdmin() fiber.Handler {
	return RequireRoles(domain.RoleAdmin)
}
