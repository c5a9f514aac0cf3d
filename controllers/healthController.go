package controllers

import (
	"shadowtips-backend/database"

	"github.com/gofiber/fiber/v2"
)

func Healthz(c *fiber.Ctx) error {
	if err := database.Ping(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "database": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
