package middleware

import (
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"VersatileShare/internal/auth"
)

// NewEnforcer loads the RBAC model and policy. The enforcer is provided
// through dependency injection rather than a package-level singleton.
func NewEnforcer() (*casbin.Enforcer, error) {
	return casbin.NewEnforcer("rbac_model.conf", "rbac_policy.csv")
}

// Casbin enforces RBAC for a request using the role carried in the verified
// claims, the route path, and the HTTP method.
func Casbin(enforcer *casbin.Enforcer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := c.Get("user").(*auth.JWTClaims)
			if !ok || claims == nil {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Unauthorized: missing user claims"})
			}
			allowed, err := enforcer.Enforce(claims.Role, c.Path(), c.Request().Method)
			if err != nil {
				logger.Error("casbin enforce error", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "RBAC system error"})
			}
			if !allowed {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden: insufficient permissions"})
			}
			return next(c)
		}
	}
}
