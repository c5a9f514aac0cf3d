package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 10

// User is the owner of a public profile and the aggregate root for its messages.
type User struct {
	Id                  string    `json:"id" gorm:"primaryKey;size:36"`
	Username            string    `json:"username" gorm:"size:20;uniqueIndex;not null"`
	Email               string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Password            []byte    `json:"-" gorm:"not null"`
	VerifyCode          string    `json:"-" gorm:"size:6;not null"`
	VerifyCodeExpiry    time.Time `json:"-" gorm:"not null"`
	IsVerified          bool      `json:"isVerified" gorm:"not null;default:false"`
	IsAcceptingMessages bool      `json:"isAcceptingMessages" gorm:"not null;default:true"`
	Messages            []Message `json:"messages,omitempty" gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"-"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	// UUID version 4
	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	return
}

func (user *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}
	user.Password = hashedPassword
	return nil
}

func (user *User) ComparePassword(password string) error {
	return bcrypt.CompareHashAndPassword(user.Password, []byte(password))
}

// CodeExpired reports whether the verification code is past its expiry at now.
func (user *User) CodeExpired(now time.Time) bool {
	return !now.Before(user.VerifyCodeExpiry)
}
