package middlewares

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"shadowtips-backend/config"
	"shadowtips-backend/database"
	"shadowtips-backend/models"
	"shadowtips-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nonWord = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func setupIdempotencyDB(t *testing.T) {
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

const idemBody = `{"content":"hello there"}`

func idemRequest(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/items", bytes.NewBufferString(idemBody))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(idempotencyHeader, key)
	return req
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

func TestIdempotency_DuplicateWhilePending(t *testing.T) {
	setupIdempotencyDB(t)

	var calls atomic.Int32
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/items", Idempotency(), func(c *fiber.Ctx) error {
		n := calls.Add(1)
		entered <- struct{}{}
		<-release
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "call": n})
	})

	type result struct {
		resp *http.Response
		err  error
	}
	first := make(chan result, 1)
	go func() {
		resp, err := app.Test(idemRequest("dup-1"), -1)
		first <- result{resp, err}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first request never reached the handler")
	}

	resp, err := app.Test(idemRequest("dup-1"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["message"], "still in progress")

	close(release)
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusCreated, r.resp.StatusCode)
	assert.Equal(t, float64(1), decode(t, r.resp)["call"])

	resp, err = app.Test(idemRequest("dup-1"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, float64(1), decode(t, resp)["call"])
	assert.Equal(t, int32(1), calls.Load())
}

func TestIdempotency_StalePendingIsTakenOver(t *testing.T) {
	setupIdempotencyDB(t)

	var calls atomic.Int32
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/items", Idempotency(), func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true})
	})

	// Left behind by a request that never finished.
	require.NoError(t, database.DB.Create(&models.IdempotencyKey{
		Key:         "stale-1",
		RequestHash: requestHash(fiber.MethodPost, "/items", []byte(idemBody), utils.UnknownClient),
		Method:      fiber.MethodPost,
		Path:        "/items",
		ClientID:    utils.UnknownClient,
		CreatedAt:   time.Now().Add(-2 * idempotencyPendingTTL),
	}).Error)

	resp, err := app.Test(idemRequest("stale-1"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), calls.Load())

	var stored models.IdempotencyKey
	require.NoError(t, database.DB.Where(&models.IdempotencyKey{Key: "stale-1"}).First(&stored).Error)
	assert.Equal(t, http.StatusCreated, stored.ResponseStatus)
	assert.NotNil(t, stored.CompletedAt)
}

func TestIdempotency_HandlerErrorFreesKey(t *testing.T) {
	setupIdempotencyDB(t)

	var calls atomic.Int32
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/items", Idempotency(), func(c *fiber.Ctx) error {
		if calls.Add(1) == 1 {
			return fiber.NewError(fiber.StatusServiceUnavailable, "try again")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true})
	})

	resp, err := app.Test(idemRequest("err-1"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var count int64
	require.NoError(t, database.DB.Model(&models.IdempotencyKey{}).Where(&models.IdempotencyKey{Key: "err-1"}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	resp, err = app.Test(idemRequest("err-1"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, int32(2), calls.Load())
}
