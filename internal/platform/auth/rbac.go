package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of
// the given roles. Role names match case-insensitively and an optional
// "ROLE_" prefix on the granted role is ignored.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserIDFromContext(c.Request().Context()) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if HasAnyRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasAnyRole reports whether granted contains one of required.
func HasAnyRole(granted []string, required ...string) bool {
	for _, want := range required {
		for _, has := range granted {
			if strings.EqualFold(normalizeRole(has), normalizeRole(want)) {
				return true
			}
		}
	}
	return false
}

func normalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if len(role) > 5 && strings.EqualFold(role[:5], "ROLE_") {
		return role[5:]
	}
	return role
}
