package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatMessage is persisted before it is broadcast and never mutated afterwards.
// RoomID follows the "user_<uuid>" convention of the owning account.
type ChatMessage struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID  string    `gorm:"size:100;index" json:"room_id"`
	UserID  uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Message string    `gorm:"type:text;not null" json:"message"`
	IsAdmin bool      `gorm:"default:false" json:"is_admin"`

	IsRead bool       `gorm:"default:false" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (m *ChatMessage) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
