package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is an anonymous note left on a user's profile. It has no life
// outside its owner: it is created through the owner and deleted by the owner.
type Message struct {
	Id        string    `json:"_id" gorm:"primaryKey;size:36"`
	UserId    string    `json:"-" gorm:"size:36;not null;index:idx_messages_user_created,priority:1"`
	Content   string    `json:"content" gorm:"size:300;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;index:idx_messages_user_created,priority:2"`
}

func (message *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if message.Id == "" {
		message.Id = uuid.NewString()
	}
	return
}
