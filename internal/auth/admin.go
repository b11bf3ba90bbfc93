package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminGuard protects the admin routes with a shared secret, sent as
// X-Admin-Secret or as a Bearer token. A bcrypt hash takes precedence over
// a plain secret.
type AdminGuard struct {
	plain string
	hash  []byte
}

func NewAdminGuard(secret, secretHash string, logger *zap.Logger) (*AdminGuard, error) {
	if h := strings.TrimSpace(secretHash); h != "" {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("invalid admin secret hash: %w", err)
		}
		return &AdminGuard{hash: []byte(h)}, nil
	}

	plain, err := resolveSecret(secret, "ADMIN_SECRET", logger)
	if err != nil {
		return nil, err
	}
	return &AdminGuard{plain: plain}, nil
}

func (g *AdminGuard) Check(candidate string) bool {
	if candidate == "" {
		return false
	}
	if len(g.hash) > 0 {
		return bcrypt.CompareHashAndPassword(g.hash, []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(g.plain)) == 1
}

func (g *AdminGuard) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if g.Check(c.Request().Header.Get("X-Admin-Secret")) {
			return next(c)
		}
		if token, ok := bearerToken(c.Request().Header.Get("Authorization")); ok && g.Check(token) {
			return next(c)
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

// HashSecret returns a bcrypt hash suitable for ADMIN_SECRET_HASH.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}
