package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RoleKey   contextKey = "role"
	RoleIDKey contextKey = "role_id"
)

// Claims is the token payload issued by the identity service. RoleID carries
// the role-specific entity id: the doctor id for doctors, the patient id for
// patients. Handlers resolve ownership against it rather than trusting ids
// from the request body.
type Claims struct {
	jwt.RegisteredClaims
	Role   string `json:"role"`
	RoleID string `json:"role_id"`
}

type JWTConfig struct {
	SigningKey []byte
	// Revocations is optional; when set, tokens whose JTI has been revoked
	// are rejected.
	Revocations RevocationStore
}

// JWTMiddleware validates HS256 bearer tokens and places the caller's
// identity into the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if cfg.Revocations != nil && claims.ID != "" {
				revoked, err := cfg.Revocations.IsRevoked(c.Request().Context(), claims.ID)
				if err == nil && revoked {
					return echo.NewHTTPError(http.StatusUnauthorized, "token revoked")
				}
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)
			ctx = context.WithValue(ctx, RoleIDKey, claims.RoleID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development. Unauthenticated
// requests get admin identity; the X-Dev-Role and X-Dev-Role-ID headers let a
// developer impersonate a doctor or patient without minting tokens.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := c.Request().Header.Get("X-Dev-Role")
			if role == "" {
				role = "admin"
			}
			roleID := c.Request().Header.Get("X-Dev-Role-ID")

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, "dev-user")
			ctx = context.WithValue(ctx, RoleKey, role)
			ctx = context.WithValue(ctx, RoleIDKey, roleID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(RoleKey).(string)
	return role
}

func RoleIDFromContext(ctx context.Context) string {
	rid, _ := ctx.Value(RoleIDKey).(string)
	return rid
}
