package middlewares

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"shadowtips-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
	// SessionCookie carries the same token for browser clients.
	SessionCookie = "jwt"
)

// Claims is our custom JWT payload (subject=userID, plus the session fields the
// dashboard needs without a database round trip).
type Claims struct {
	Username            string `json:"username"`
	IsVerified          bool   `json:"is_verified"`
	IsAcceptingMessages bool   `json:"is_accepting_messages"`
	jwt.RegisteredClaims
}

var (
	secretMu  sync.RWMutex
	jwtSecret []byte
	tokenTTL  = 24 * time.Hour
)

// ConfigureJWT sets the signing secret and token lifetime.
func ConfigureJWT(secret string, ttl time.Duration) {
	secretMu.Lock()
	defer secretMu.Unlock()
	jwtSecret = []byte(secret)
	if ttl > 0 {
		tokenTTL = ttl
	}
}

func loadJWTSecret() ([]byte, error) {
	secretMu.RLock()
	sec := jwtSecret
	secretMu.RUnlock()
	if len(sec) > 0 {
		return sec, nil
	}

	// Prefer JWT_SECRET_KEY, fallback to JWT_SECRET
	env := os.Getenv("JWT_SECRET_KEY")
	if strings.TrimSpace(env) == "" {
		env = os.Getenv("JWT_SECRET")
	}
	if strings.TrimSpace(env) == "" {
		return nil, errors.New("JWT secret not configured (set JWT_SECRET_KEY or JWT_SECRET)")
	}
	return []byte(env), nil
}

func bearerToken(c *fiber.Ctx) string {
	h := c.Get(authHeader)
	if h != "" && strings.HasPrefix(strings.ToLower(h), strings.ToLower(bearerPrefix)) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	return strings.TrimSpace(c.Cookies(SessionCookie))
}

// ParseToken validates raw as an HS256 token signed with the configured secret.
func ParseToken(raw string) (*Claims, error) {
	secret, err := loadJWTSecret()
	if err != nil {
		return nil, err
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims Claims
	token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token missing subject")
	}
	return &claims, nil
}

// IsAuthenticatedHeader validates a Bearer token (or the session cookie) and
// populates c.Locals("userID", "username", "claims").
func IsAuthenticatedHeader() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := loadJWTSecret(); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "server auth not configured",
			})
		}

		raw := bearerToken(c)
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "You must be logged in to perform this action",
			})
		}

		claims, err := ParseToken(raw)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "invalid or expired token",
			})
		}

		c.Locals("userID", claims.Subject)
		c.Locals("username", claims.Username)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// CurrentClaims returns the claims stored by IsAuthenticatedHeader.
func CurrentClaims(c *fiber.Ctx) (*Claims, bool) {
	claims, ok := c.Locals("claims").(*Claims)
	return claims, ok && claims != nil
}

// GenerateJWT signs a new HS256 token for user.
func GenerateJWT(user *models.User) (string, time.Time, error) {
	secret, err := loadJWTSecret()
	if err != nil {
		return "", time.Time{}, err
	}
	secretMu.RLock()
	ttl := tokenTTL
	secretMu.RUnlock()

	now := time.Now()
	expires := now.Add(ttl)
	claims := &Claims{
		Username:            user.Username,
		IsVerified:          user.IsVerified,
		IsAcceptingMessages: user.IsAcceptingMessages,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}
