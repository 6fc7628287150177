package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AuditActionLogin         = "LOGIN"
	AuditActionLogout        = "LOGOUT"
	AuditActionLogoutAll     = "LOGOUT_ALL"
	AuditActionPasswordReset = "PASSWORD_RESET"
)

type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Action     string     `gorm:"size:100;not null" json:"action"`
	EntityType string     `gorm:"size:50" json:"entity_type,omitempty"`
	EntityID   string     `gorm:"size:100" json:"entity_id,omitempty"`
	IPAddress  string     `gorm:"size:45" json:"ip_address,omitempty"`
	UserAgent  string     `gorm:"size:500" json:"user_agent,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
