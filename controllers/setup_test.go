package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"testing"
	"time"

	"shadowtips-backend/config"
	"shadowtips-backend/database"
	"shadowtips-backend/mailer"
	"shadowtips-backend/middlewares"
	"shadowtips-backend/models"
	"shadowtips-backend/ratelimit"
	"shadowtips-backend/routes"
	"shadowtips-backend/suggest"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testReply = "What inspires you lately?||Which app could you not live without?||What would your avatar look like?"

func TestMain(m *testing.M) {
	middlewares.ConfigureJWT("test-secret", time.Hour)
	zap.ReplaceGlobals(zap.NewNop())
	os.Exit(m.Run())
}

var nonWord = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// setupDB installs a fresh in-memory sqlite database as database.DB.
func setupDB(t *testing.T) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", nonWord.ReplaceAllString(t.Name(), "_"))
	db, err := database.Open(config.Database{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		_ = sqlDB.Close()
	})
}

type testEnv struct {
	app    *fiber.App
	mailer *mailer.LogMailer
	quota  *ratelimit.MemoryStore
}

func newTestEnv(t *testing.T, provider suggest.Provider) *testEnv {
	t.Helper()
	setupDB(t)

	if provider == nil {
		provider = suggest.ProviderFunc(func(ctx context.Context, prompt string) (string, error) {
			return testReply, nil
		})
	}
	quota := ratelimit.NewMemoryStore(10, time.Hour)
	gw := suggest.NewGateway(quota, provider, suggest.WithLogger(zap.NewNop()), suggest.WithRetries(0))
	mail := mailer.NewLogMailer(zap.NewNop())

	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	routes.Register(app, routes.Deps{Gateway: gw, Mailer: mail})
	return &testEnv{app: app, mailer: mail, quota: quota}
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
}

func (e *testEnv) do(t *testing.T, r request) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := r.body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(r.method, r.path, reader)
	if reader != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

// createUser stores a verified account with password "secret123".
func createUser(t *testing.T, username, email string) models.User {
	t.Helper()
	user := models.User{
		Username:            username,
		Email:               email,
		VerifyCode:          "123456",
		VerifyCodeExpiry:    time.Now().Add(time.Hour),
		IsVerified:          true,
		IsAcceptingMessages: true,
	}
	require.NoError(t, user.SetPassword("secret123"))
	require.NoError(t, database.DB.Create(&user).Error)
	return user
}

func tokenFor(t *testing.T, user models.User) string {
	t.Helper()
	token, _, err := middlewares.GenerateJWT(&user)
	require.NoError(t, err)
	return token
}
