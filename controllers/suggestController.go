package controllers

import (
	"errors"
	"math"
	"strconv"

	"shadowtips-backend/metrics"
	"shadowtips-backend/suggest"
	"shadowtips-backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type SuggestInput struct {
	Tone      string `json:"tone"`
	Topic     string `json:"topic"`
	Niche     string `json:"niche"`
	Recipient string `json:"recipient"`
}

// SuggestMessages returns three conversation starters for a profile,
// throttled per client by the gateway's quota.
func SuggestMessages(gw *suggest.Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in SuggestInput
		if len(c.Body()) > 0 {
			// A body that does not parse is treated like an empty one.
			if err := c.BodyParser(&in); err != nil {
				in = SuggestInput{}
			}
		}
		params := suggest.NewParams(in.Tone, in.Topic, in.Niche, in.Recipient)
		clientID := utils.ClientID(c.Get(utils.ForwardedForHeader))

		res, err := gw.RequestSuggestions(c.UserContext(), clientID, params)
		if err != nil {
			metrics.SuggestionsTotal.WithLabelValues("error").Inc()
			fields := []zap.Field{zap.String("client", clientID), zap.Error(err)}
			if errors.Is(err, suggest.ErrProviderFailure) {
				zap.L().Error("suggestion generation failed", fields...)
			} else {
				zap.L().Error("suggestion quota check failed", fields...)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate message"})
		}

		if res.Throttled {
			metrics.SuggestionsTotal.WithLabelValues("throttled").Inc()
			if res.RetryAfter > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"message":  "Too many requests. Try again after 1 hour.",
				"disabled": true,
				"count":    res.Count,
			})
		}

		metrics.SuggestionsTotal.WithLabelValues("ok").Inc()
		return c.JSON(fiber.Map{"message": res.Text, "disabled": false})
	}
}
