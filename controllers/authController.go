package controllers

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"shadowtips-backend/database"
	"shadowtips-backend/mailer"
	"shadowtips-backend/metrics"
	"shadowtips-backend/middlewares"
	"shadowtips-backend/models"
	"shadowtips-backend/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VerifyCodeTTL is how long a sign-up verification code stays valid.
const VerifyCodeTTL = time.Hour

type SignUpInput struct {
	Username string `json:"username" validate:"required,min=2,max=20,username"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72" normalize:"-"`
}

type VerifyCodeInput struct {
	Username string `json:"username" validate:"required,max=20"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

type SignInInput struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required" normalize:"-"`
}

type usernameQuery struct {
	Username string `json:"username" validate:"required,min=2,max=20,username"`
}

// SignUp registers a new account (or refreshes an unverified one) and mails
// the verification code.
func SignUp(m mailer.Mailer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in SignUpInput
		if err := middlewares.BindAndValidate(c, &in); err != nil {
			return err
		}
		in.Email = strings.ToLower(in.Email)

		db, err := database.FromCtx(c)
		if err != nil {
			return err
		}

		code, err := utils.VerifyCode()
		if err != nil {
			return err
		}
		now := time.Now()

		var user models.User
		err = db.Transaction(func(tx *gorm.DB) error {
			var holder models.User
			err := tx.Where("username = ?", in.Username).First(&holder).Error
			switch {
			case err == nil:
				if holder.IsVerified {
					return fiber.NewError(fiber.StatusBadRequest, "Username already exists.")
				}
				if holder.Email != in.Email {
					// An unverified sign-up only keeps the username while its code is valid.
					if !holder.CodeExpired(now) {
						return fiber.NewError(fiber.StatusBadRequest, "Username already exists.")
					}
					if err := tx.Where("user_id = ?", holder.Id).Delete(&models.Message{}).Error; err != nil {
						return err
					}
					if err := tx.Delete(&holder).Error; err != nil {
						return err
					}
				}
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}

			err = tx.Where("email = ?", in.Email).First(&user).Error
			switch {
			case err == nil:
				if user.IsVerified {
					return fiber.NewError(fiber.StatusBadRequest, "Email already exists")
				}
				if err := user.SetPassword(in.Password); err != nil {
					return err
				}
				user.Username = in.Username
				user.VerifyCode = code
				user.VerifyCodeExpiry = now.Add(VerifyCodeTTL)
				return tx.Save(&user).Error
			case errors.Is(err, gorm.ErrRecordNotFound):
				user = models.User{
					Username:            in.Username,
					Email:               in.Email,
					VerifyCode:          code,
					VerifyCodeExpiry:    now.Add(VerifyCodeTTL),
					IsVerified:          false,
					IsAcceptingMessages: true,
				}
				if err := user.SetPassword(in.Password); err != nil {
					return err
				}
				return tx.Create(&user).Error
			default:
				return err
			}
		})
		if err != nil {
			return err
		}

		if err := mailer.SendVerification(c.UserContext(), m, user.Email, user.Username, code); err != nil {
			metrics.VerificationEmailsTotal.WithLabelValues("error").Inc()
			zap.L().Error("Error sending verification email", zap.String("email", user.Email), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to send verification email",
			})
		}
		metrics.VerificationEmailsTotal.WithLabelValues("ok").Inc()

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success": true,
			"message": "User registered successfully. Please verify your email.",
		})
	}
}

func VerifyCode(c *fiber.Ctx) error {
	var in VerifyCodeInput
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

	codeValid := subtle.ConstantTimeCompare([]byte(user.VerifyCode), []byte(in.Code)) == 1
	notExpired := !user.CodeExpired(time.Now())

	switch {
	case codeValid && notExpired:
		if err := db.Model(&user).Update("is_verified", true).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "Account verified successfully"})
	case !notExpired:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Verification code has expired. Please sign up again to get a new code.",
		})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Incorrect verification code",
		})
	}
}

func CheckUsernameUnique(c *fiber.Ctx) error {
	q := usernameQuery{Username: strings.TrimSpace(c.Query("username"))}
	if err := middlewares.ValidateStruct(&q); err != nil {
		resp := fiber.Map{"success": false, "message": "Invalid query parameters"}
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			resp["errors"] = middlewares.ValidationMessages(ve)
		}
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	db, err := database.FromCtx(c)
	if err != nil {
		return err
	}

	var taken int64
	if err := db.Model(&models.User{}).
		Where("username = ? AND is_verified = ?", q.Username, true).
		Count(&taken).Error; err != nil {
		return err
	}
	if taken > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Username is already taken"})
	}
	return c.JSON(fiber.Map{"success": true, "message": "Username is unique"})
}

func SignIn(c *fiber.Ctx) error {
	var in SignInInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}

	db, err := database.FromCtx(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := db.Where("email = ? OR username = ?", strings.ToLower(in.Identifier), in.Identifier).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "User not found with this email"})
		}
		return err
	}

	if !user.IsVerified {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Please verify your account before login"})
	}

	if err := user.ComparePassword(in.Password); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Incorrect password"})
	}

	token, expires, err := middlewares.GenerateJWT(&user)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     middlewares.SessionCookie,
		Value:    token,
		Expires:  expires,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.JSON(fiber.Map{
		"success": true,
		"token":   token,
		"expires": expires.UTC(),
		"user":    sessionUser(user.Id, user.Username, user.IsVerified, user.IsAcceptingMessages),
	})
}

func SignOut(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middlewares.SessionCookie,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})
	return c.JSON(fiber.Map{"success": true, "message": "success"})
}

// Session hydrates the session user from the token claims.
func Session(c *fiber.Ctx) error {
	claims, ok := middlewares.CurrentClaims(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "You must be logged in to perform this action")
	}
	resp := fiber.Map{
		"success": true,
		"user":    sessionUser(claims.Subject, claims.Username, claims.IsVerified, claims.IsAcceptingMessages),
	}
	if claims.ExpiresAt != nil {
		resp["expires"] = claims.ExpiresAt.Time.UTC()
	}
	return c.JSON(resp)
}

func sessionUser(id, username string, verified, accepting bool) fiber.Map {
	return fiber.Map{
		"_id":                 id,
		"username":            username,
		"isVerified":          verified,
		"isAcceptingMessages": accepting,
	}
}
