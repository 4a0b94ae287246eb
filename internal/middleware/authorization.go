package middleware

import (
	"net/http"
	"slices"

	"go.uber.org/zap"
)

// RequireRole middleware ensures the operator has one of the specified roles
func RequireRole(allowedRoles []string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetOperatorRole(r.Context())
			if !ok {
				logger.Warn("Role not found in context")
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			if !slices.Contains(allowedRoles, role) {
				operatorID, _ := GetOperatorID(r.Context())
				logger.Warn("Operator role not authorized",
					zap.String("operator_id", operatorID),
					zap.String("role", role),
					zap.Strings("allowed_roles", allowedRoles),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireOperator authenticates the bearer token and checks the operator
// role. With an empty secret it is a no-op.
func RequireOperator(jwtSecret, role string, logger *zap.Logger) func(http.Handler) http.Handler {
	if jwtSecret == "" {
		return func(next http.Handler) http.Handler { return next }
	}

	authenticate := AuthMiddleware(jwtSecret, logger)
	authorize := RequireRole([]string{role}, logger)

	return func(next http.Handler) http.Handler {
		return authenticate(authorize(next))
	}
}
