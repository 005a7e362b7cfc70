package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/projectdash/dashboard-backend/pkg/enums"
)

// Account is the durable record reconciled from provider webhooks.
type Account struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID        string              `gorm:"column:user_id;type:text;not null;uniqueIndex:accounts_user_id_key"`
	CustomerID    *string             `gorm:"column:customer_id;type:text;uniqueIndex:accounts_customer_id_key"`
	Email         string              `gorm:"column:email;type:text;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:trial"`
	StatusEventAt *time.Time          `gorm:"column:status_event_at"`
	Version       int64               `gorm:"column:version;not null;default:1"`
	JoinedAt      time.Time           `gorm:"column:joined_at;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string { return "accounts" }

// BeforeCreate assigns the primary key so inserts work without a database default.
func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
