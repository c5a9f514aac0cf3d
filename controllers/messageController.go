package controllers

import (
	"errors"

	"shadowtips-backend/database"
	"shadowtips-backend/metrics"
	"shadowtips-backend/middlewares"
	"shadowtips-backend/models"
	"shadowtips-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultMessagesLimit = 50
	maxMessagesLimit     = 100
)

type AcceptMessagesInput struct {
	AcceptMessages *bool `json:"acceptMessages" column:"is_accepting_messages" validate:"required"`
}

type SendMessageInput struct {
	Username string `json:"username" validate:"required,max=20"`
	Content  string `json:"content" validate:"required,min=10,max=300"`
}

func currentUserID(c *fiber.Ctx) (string, error) {
	id, ok := c.Locals("userID").(string)
	if !ok || id == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "You must be logged in to perform this action")
	}
	return id, nil
}

func AcceptMessagesStatus(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	db, err := database.FromCtx(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := db.Select("id", "is_accepting_messages").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
		}
		return err
	}
	return c.JSON(fiber.Map{"success": true, "isAcceptingMessages": user.IsAcceptingMessages})
}

func UpdateAcceptMessages(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var in AcceptMessagesInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	db, err := database.FromCtx(c)
	if err != nil {
		return err
	}

	res := db.Model(&models.User{}).Where("id = ?", userID).Updates(utils.UpdatesFromPtrDTO(&in))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
	}
	return c.JSON(fiber.Map{
		"success":             true,
		"message":             "Message acceptance status updated successfully",
		"isAcceptingMessages": *in.AcceptMessages,
	})
}

// GetMessages lists the caller's messages, newest first.
// Supports ?limit= (default 50, max 100) and ?offset=.
func GetMessages(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	db, err := database.FromCtx(c)
	if err != nil {
		return err
	}

	limit := utils.ClampInt(utils.ParseIntDefault(c.Query("limit"), defaultMessagesLimit), 1, maxMessagesLimit)
	offset := utils.ParseIntDefault(c.Query("offset"), 0)

	messages := make([]models.Message, 0)
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "messages": messages})
}

// SendMessage stores an anonymous message for a profile. No session needed.
func SendMessage(c *fiber.Ctx) error {
	var in SendMessageInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	db, err := database.FromCtx(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := db.Where("username = ?", in.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
		}
		return err
	}
	if !user.IsAcceptingMessages {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "message": "User is not accepting messages"})
	}

	msg := models.Message{UserId: user.Id, Content: in.Content}
	if err := db.Create(&msg).Error; err != nil {
		return err
	}
	metrics.MessagesSentTotal.Inc()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "message": "Message sent successfully"})
}

func DeleteMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	messageID := c.Params("messageid")
	if messageID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing message id")
	}
	db, err := database.FromCtx(c)
	if err != nil {
		return err
	}

	res := db.Where("id = ? AND user_id = ?", messageID, userID).Delete(&models.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Message not found or already deleted"})
	}
	return c.JSON(fiber.Map{"success": true, "message": "Message deleted successfully"})
}
