package middlewares

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"shadowtips-backend/database"
	"shadowtips-backend/models"
	"shadowtips-backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const idempotencyHeader = "Idempotency-Key"

// idempotencyPendingTTL is how long an unfinished request holds its key.
// Duplicates inside it get 409; after it the key is taken over.
const idempotencyPendingTTL = 30 * time.Second

// Idempotency replays the stored response when a mutating request repeats an
// Idempotency-Key. Anonymous endpoints are keyed by the client identifier, so
// the same key from another client is a conflict, not a replay.
func Idempotency() fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyHeader))
		if key == "" {
			return c.Next()
		}
		if len(key) > 128 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Idempotency-Key too long"})
		}
		if database.DB == nil {
			return fiber.NewError(fiber.StatusInternalServerError, "database not initialized")
		}

		client := utils.ClientID(c.Get(utils.ForwardedForHeader))
		if userID, ok := c.Locals("userID").(string); ok && userID != "" {
			client = "user:" + userID
		}
		path := c.OriginalURL() // includes query string
		body := c.Body()

		reqHash := requestHash(method, path, body, client)

		// ---- Phase 1: read/create "pending" under a short TX
		var existing models.IdempotencyKey
		replayed := false
		created := false
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where(&models.IdempotencyKey{Key: key}).First(&existing).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return fiber.NewError(fiber.StatusInternalServerError, "idempotency lookup failed")
				}
				rec := models.IdempotencyKey{
					Key:         key,
					RequestHash: reqHash,
					Method:      method,
					Path:        path,
					ClientID:    client,
				}
				if e2 := tx.Create(&rec).Error; e2 != nil {
					// Could be unique race: read again
					if e3 := tx.Where(&models.IdempotencyKey{Key: key}).First(&existing).Error; e3 != nil {
						return fiber.NewError(fiber.StatusInternalServerError, "idempotency create failed")
					}
				} else {
					existing = rec
					created = true
				}
			}

			if existing.RequestHash != reqHash {
				return fiber.NewError(fiber.StatusConflict, "Idempotency-Key reuse with different request")
			}
			if existing.ResponseStatus != 0 {
				replayed = true
				c.Set("Idempotent-Replayed", "true")
				c.Status(existing.ResponseStatus)
				if len(existing.ResponseBody) == 0 {
					return nil
				}
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Send(existing.ResponseBody)
			}
			if created {
				return nil
			}
			// Same request still running elsewhere.
			if time.Since(existing.CreatedAt) < idempotencyPendingTTL {
				return fiber.NewError(fiber.StatusConflict, "A request with this Idempotency-Key is still in progress")
			}
			return tx.Model(&models.IdempotencyKey{}).
				Where(&models.IdempotencyKey{Key: key}).
				Update("created_at", time.Now().UTC()).Error
		})
		if err != nil || replayed {
			return err
		}

		if err := c.Next(); err != nil {
			// The response is built by the error handler and never stored, so free the key.
			_ = database.DB.Where(&models.IdempotencyKey{Key: key}).Delete(&models.IdempotencyKey{}).Error
			return err
		}

		// ---- Phase 2: store the response for replays
		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			// Let the client retry server failures with the same key.
			_ = database.DB.Where(&models.IdempotencyKey{Key: key}).Delete(&models.IdempotencyKey{}).Error
			return nil
		}
		resp := c.Response().Body()
		blob := make([]byte, len(resp))
		copy(blob, resp)
		now := time.Now().UTC()

		if err := database.DB.Model(&models.IdempotencyKey{}).
			Where(&models.IdempotencyKey{Key: key}).
			Updates(map[string]any{
				"response_status": status,
				"response_body":   datatypes.JSON(blob),
				"completed_at":    &now,
			}).Error; err != nil {
			// best-effort: don't break the successful response
			zap.L().Warn("failed to store idempotent response", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
}

// requestHash fingerprints method|path|body|client.
func requestHash(method, path string, body []byte, client string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	h.Write([]byte{'\n'})
	h.Write([]byte(client))
	return hex.EncodeToString(h.Sum(nil))
}
