package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/projectdash/dashboard-backend/pkg/enums"
)

// ProcessedEvent is a ledger entry for an applied non-idempotent webhook effect.
// (provider, event_id) is unique; the row is written in the same transaction
// as the effect it guards.
type ProcessedEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Provider    enums.WebhookProvider `gorm:"column:provider;type:text;not null;uniqueIndex:processed_events_provider_event_id_key,priority:1"`
	EventID     string                `gorm:"column:event_id;type:text;not null;uniqueIndex:processed_events_provider_event_id_key,priority:2"`
	Kind        string                `gorm:"column:kind;type:text;not null"`
	AccountID   *uuid.UUID            `gorm:"column:account_id;type:uuid"`
	ProcessedAt time.Time             `gorm:"column:processed_at;not null;index"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }

func (e *ProcessedEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
