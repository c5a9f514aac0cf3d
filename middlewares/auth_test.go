package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shadowtips-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecret(t *testing.T, secret string, ttl time.Duration) {
	t.Helper()
	secretMu.RLock()
	prevSecret, prevTTL := jwtSecret, tokenTTL
	secretMu.RUnlock()
	ConfigureJWT(secret, ttl)
	t.Cleanup(func() {
		secretMu.Lock()
		jwtSecret, tokenTTL = prevSecret, prevTTL
		secretMu.Unlock()
	})
}

func TestGenerateAndParseToken(t *testing.T) {
	setSecret(t, "unit-secret", time.Hour)
	user := &models.User{Id: "u-1", Username: "alice", IsVerified: true, IsAcceptingMessages: true}

	raw, expires, err := GenerateJWT(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsVerified)
	assert.True(t, claims.IsAcceptingMessages)
}

func TestParseToken_Rejects(t *testing.T) {
	setSecret(t, "unit-secret", time.Hour)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	wrongKey, err := other.SignedString([]byte("another-secret"))
	require.NoError(t, err)
	_, err = ParseToken(wrongKey)
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	raw, err := expired.SignedString([]byte("unit-secret"))
	require.NoError(t, err)
	_, err = ParseToken(raw)
	assert.Error(t, err)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Username: "x"})
	raw, err = noSubject.SignedString([]byte("unit-secret"))
	require.NoError(t, err)
	_, err = ParseToken(raw)
	assert.Error(t, err)
}

func TestIsAuthenticatedHeader(t *testing.T) {
	setSecret(t, "unit-secret", time.Hour)
	raw, _, err := GenerateJWT(&models.User{Id: "u-2", Username: "bob"})
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/me", IsAuthenticatedHeader(), func(c *fiber.Ctx) error {
		claims, ok := CurrentClaims(c)
		require.True(t, ok)
		return c.SendString(c.Locals("userID").(string) + ":" + claims.Username)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: raw})
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
