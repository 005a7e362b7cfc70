package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditGrant is one unit of account credit issued for a paid invoice.
type CreditGrant struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AccountID   uuid.UUID `gorm:"column:account_id;type:uuid;not null;index"`
	EventID     string    `gorm:"column:event_id;type:text;not null;uniqueIndex:credit_grants_event_id_key"`
	InvoiceID   string    `gorm:"column:invoice_id;type:text;not null"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	Currency    string    `gorm:"column:currency;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (CreditGrant) TableName() string { return "credit_grants" }

func (g *CreditGrant) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
