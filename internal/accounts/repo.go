package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/projectdash/dashboard-backend/pkg/db/models"
	"github.com/projectdash/dashboard-backend/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrAccountNotFound is returned when no account matches a lookup key.
	ErrAccountNotFound = errors.New("account not found")
	// ErrVersionConflict is returned when a compare-and-set update loses a race.
	ErrVersionConflict = errors.New("account version changed")
)

// Repository handles account and ledger persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCustomerID(ctx context.Context, customerID string, lock bool) (*models.Account, error)
	FindByUserID(ctx context.Context, userID string, lock bool) (*models.Account, error)
	EventProcessed(ctx context.Context, provider enums.WebhookProvider, eventID string) (bool, error)
	RecordEvent(ctx context.Context, entry *models.ProcessedEvent) (bool, error)
	CreateAccount(ctx context.Context, account *models.Account) (bool, error)
	SetStatus(ctx context.Context, account *models.Account, status enums.PaymentStatus, at time.Time) error
	SetEmail(ctx context.Context, account *models.Account, email string) error
	CreateGrant(ctx context.Context, grant *models.CreditGrant) (bool, error)
	DeleteLedgerBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an account repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByCustomerID(ctx context.Context, customerID string, lock bool) (*models.Account, error) {
	return r.findOne(ctx, "customer_id = ?", customerID, lock)
}

func (r *repository) FindByUserID(ctx context.Context, userID string, lock bool) (*models.Account, error) {
	return r.findOne(ctx, "user_id = ?", userID, lock)
}

func (r *repository) findOne(ctx context.Context, query string, arg any, lock bool) (*models.Account, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var account models.Account
	if err := q.Where(query, arg).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) EventProcessed(ctx context.Context, provider enums.WebhookProvider, eventID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ProcessedEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordEvent inserts a ledger entry. It reports false when the event was
// already recorded.
func (r *repository) RecordEvent(ctx context.Context, entry *models.ProcessedEvent) (bool, error) {
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}
	return insertIgnoringConflict(r.db.WithContext(ctx), entry)
}

// CreateAccount inserts the account unless one exists for the same user id.
func (r *repository) CreateAccount(ctx context.Context, account *models.Account) (bool, error) {
	return insertIgnoringConflict(r.db.WithContext(ctx), account)
}

func (r *repository) CreateGrant(ctx context.Context, grant *models.CreditGrant) (bool, error) {
	return insertIgnoringConflict(r.db.WithContext(ctx), grant)
}

func insertIgnoringConflict(db *gorm.DB, value any) (bool, error) {
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(value)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetStatus updates the payment status when the stored version still matches
// account.Version. On success account reflects the new row.
func (r *repository) SetStatus(ctx context.Context, account *models.Account, status enums.PaymentStatus, at time.Time) error {
	at = at.UTC()
	if err := r.compareAndSet(ctx, account, map[string]any{
		"payment_status":  status,
		"status_event_at": at,
	}); err != nil {
		return err
	}
	account.PaymentStatus = status
	account.StatusEventAt = &at
	return nil
}

func (r *repository) SetEmail(ctx context.Context, account *models.Account, email string) error {
	if err := r.compareAndSet(ctx, account, map[string]any{"email": email}); err != nil {
		return err
	}
	account.Email = email
	return nil
}

func (r *repository) compareAndSet(ctx context.Context, account *models.Account, updates map[string]any) error {
	now := time.Now().UTC()
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = now

	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	account.Version++
	account.UpdatedAt = now
	return nil
}

// DeleteLedgerBefore prunes ledger entries processed before cutoff.
func (r *repository) DeleteLedgerBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("processed_at < ?", cutoff.UTC()).
		Delete(&models.ProcessedEvent{})
	return res.RowsAffected, res.Error
}
