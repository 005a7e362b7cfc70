package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/projectdash/dashboard-backend/internal/notifications"
	"github.com/projectdash/dashboard-backend/internal/webhooks"
	"github.com/projectdash/dashboard-backend/internal/webhooks/identity"
	"github.com/projectdash/dashboard-backend/internal/webhooks/payments"
	"github.com/projectdash/dashboard-backend/pkg/db"
	"github.com/projectdash/dashboard-backend/pkg/db/models"
	"github.com/projectdash/dashboard-backend/pkg/enums"
	"github.com/projectdash/dashboard-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	NoticePaymentSucceeded = "payment_succeeded"
	NoticePaymentAttempted = "payment_attempted"
	NoticeUserSignedUp     = "user_signed_up"
)

// errDuplicate rolls back a transaction whose ledger entry already exists.
var errDuplicate = errors.New("event already processed")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CustomerCreator provisions the payment-provider customer for a new account.
// The idempotency key makes retries return the same customer.
type CustomerCreator interface {
	CreateCustomer(ctx context.Context, email, userID, idempotencyKey string) (string, error)
}

type ReconcilerParams struct {
	DB        txRunner
	Repo      Repository
	Customers CustomerCreator
	Logger    *logger.Logger
	// RowLocks enables SELECT ... FOR UPDATE on account lookups.
	RowLocks bool
}

// Reconciler applies webhook effects to accounts exactly once per event.
type Reconciler struct {
	db        txRunner
	repo      Repository
	customers CustomerCreator
	logg      *logger.Logger
	rowLocks  bool
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.DB == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Repo == nil {
		return nil, errors.New("repository required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Reconciler{
		db:        params.DB,
		repo:      params.Repo,
		customers: params.Customers,
		logg:      params.Logger,
		rowLocks:  params.RowLocks,
	}, nil
}

// Routes registers one handler per reconciled event kind.
func (r *Reconciler) Routes() []webhooks.Route {
	pay := enums.WebhookProviderPayments
	idp := enums.WebhookProviderIdentity
	return []webhooks.Route{
		{Provider: pay, Kind: payments.KindPaymentSucceeded, Handler: webhooks.HandlerFunc(r.PaymentSucceeded)},
		{Provider: pay, Kind: payments.KindPaymentFailed, Handler: webhooks.HandlerFunc(r.PaymentFailed)},
		{Provider: pay, Kind: payments.KindInvoicePaid, Handler: webhooks.HandlerFunc(r.InvoicePaid)},
		{Provider: pay, Kind: payments.KindInvoicePaymentFailed, Handler: webhooks.HandlerFunc(r.InvoicePaymentFailed)},
		{Provider: pay, Kind: payments.KindSubscriptionDeleted, Handler: webhooks.HandlerFunc(r.SubscriptionDeleted)},
		{Provider: idp, Kind: identity.KindUserCreated, Handler: webhooks.HandlerFunc(r.UserCreated)},
		{Provider: idp, Kind: identity.KindUserUpdated, Handler: webhooks.HandlerFunc(r.UserUpdated)},
		{Provider: idp, Kind: identity.KindUserDeleted, Handler: webhooks.HandlerFunc(r.UserDeleted)},
	}
}

func (r *Reconciler) PaymentSucceeded(ctx context.Context, ev webhooks.Event) (webhooks.Result, error) {
	p, err := paymentPayload(ev)
	if err != nil {
		return webhooks.Result{}, err
	}
	res, err := r.setStatusByCustomer(ctx, ev, p.CustomerID, enums.PaymentStatusPaid)
	if err != nil {
		return res, err
	}
	if res.Outcome == webhooks.OutcomeApplied || res.Outcome == webhooks.OutcomeUnchanged {
		res.Notices = append(res.Notices, paymentNotice(ev, p, NoticePaymentSucceeded, "Payment Success", "You just got paid!"))
	}
	return res, nil
}

// PaymentFailed changes nothing. The account lookup only annotates the result.
func (r *Reconciler) PaymentFailed(ctx context.Context, ev webhooks.Event) (webhooks.Result, error) {
	p, err := paymentPayload(ev)
	if err != nil {
		return webhooks.Result{}, err
	}
	res := webhooks.Result{Outcome: webhooks.OutcomeUnchanged}
	account, err := r.repo.FindByCustomerID(ctx, p.CustomerID, false)
	switch {
	case err == nil:
		res.AccountID = account.ID.String()
	case errors.Is(err, ErrAccountNotFound):
		r.logg.Warn(r.logg.WithField(ctx, "customer_id", p.CustomerID), "account.payment_failed_unknown_customer")
	default:
		return webhooks.Result{}, classify(err)
	}
	res.Notices = append(res.Notices, paymentNotice(ev, p, NoticePaymentAttempted, "Payment Attempted", "A user's payment has failed!"))
	return res, nil
}

func (r *Reconciler) InvoicePaymentFailed(ctx context.Context, ev webhooks.Event) (webhooks.Result, error) {
	p, err := paymentPayload(ev)
	if err != nil {
		return webhooks.Result{}, err
	}
	return r.setStatusByCustomer(ctx, ev, p.CustomerID, enums.PaymentStatusPastDue)
}

func (r *Reconciler) SubscriptionDeleted(ctx context.Context, ev webhooks.Event) (webhooks.Result, error) {
	p, err := paymentPayload(ev)
	if err != nil {
		return webhooks.Result{}, err
	}
	return r.setStatusByCustomer(ctx, ev, p.CustomerID, enums.PaymentStatusCanceled)
}

// InvoicePaid grants one credit per invoice event and marks the account paid.
// Ledger entry, grant and status change commit together.
func (r *Reconciler) InvoicePaid(ctx context.Context, ev webhooks.Event) (webhooks.Result, error) {
	p, err := paymentPayload(ev)
	if err != nil {
		return webhooks.Result{}, err
	}

	res := webhooks.Result{Outcome: webhooks.OutcomeApplied}
	err = r.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		account, err := repo.FindByCustomerID(ctx, p.CustomerID, r.rowLocks)
		if err != nil {
			return err
		}
		res.AccountID = account.ID.String()

		recorded, err := repo.RecordEvent(ctx, ledgerEntry(ev, &account.ID))
		if err != nil {
			return err
		}
		if !recorded {
			return errDuplicate
		}

		granted, err := repo.CreateGrant(ctx, &models.CreditGrant{
			AccountID:   account.ID,
			EventID:     ev.ID,
			InvoiceID:   p.ObjectID,
			AmountCents: p.AmountCents,
			Currency:    p.Currency,
		})
		if err != nil {
			return err
		}
		if !granted {
			// ledger pruned, grant still present
			return errDuplicate
		}

		switch {
		case isStale(account, ev.OccurredAt):
			return nil
		case account.PaymentStatus == enums.PaymentStatusPaid:
			return holdStatus(ctx, repo, account, ev.OccurredAt)
		}
		return repo.SetStatus(ctx, account, enums.PaymentStatusPaid, ev.OccurredAt)
	})
	if errors.Is(err, errDuplicate) {
		return webhooks.Result{Outcome: webhooks.OutcomeDuplicate, AccountID: res.AccountID}, nil
	}
	if err != nil {
		return webhooks.Result{}, classify(err)
	}

	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"account_id":   res.AccountID,
		"invoice_id":   p.ObjectID,
		"amount_cents": p.AmountCents,
	}), "account.credit_granted")
	res.Notices = append(res.Notices, paymentNotice(ev, p, NoticePaymentSucceeded, "Payment Success", "An invoice was paid and credit granted."))
	return res, nil
}

// UserCreated provisions the account. A user who already has one keeps it and
// no payment customer is created. Otherwise the customer is created outside
// the transaction with the event id as idempotency key; the ledger entry and
// the unique user id keep the insert single.
func (r *Reconciler) UserCreated(ctx context.Context, ev webhooks.Event) (webhooks.Result, error) {
	p, err := identityPayload(ev)
	if err != nil {
		return webhooks.Result{}, err
	}

	seen, err := r.repo.EventProcessed(ctx, ev.Provider, ev.ID)
	if err != nil {
		return webhooks.Result{}, classify(err)
	}
	if seen {
		return webhooks.Result{Outcome: webhooks.OutcomeDuplicate}, nil
	}

	existing, err := r.repo.FindByUserID(ctx, p.UserID, false)
	switch {
	case err == nil:
	case errors.Is(err, ErrAccountNotFound):
		existing = nil
	default:
		return webhooks.Result{}, classify(err)
	}

	var customerID *string
	if existing == nil && r.customers != nil {
		id, err := r.customers.CreateCustomer(ctx, p.Email, p.UserID, ev.ID)
		if err != nil {
			return webhooks.Result{}, webhooks.StorageFailure(webhooks.ReasonDependency, fmt.Errorf("create payment customer: %w", err))
		}
		customerID = &id
	}

	res := webhooks.Result{Outcome: webhooks.OutcomeApplied}
	err = r.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		account := existing
		if account == nil {
			account = &models.Account{
				UserID:        p.UserID,
				CustomerID:    customerID,
				Email:         p.Email,
				PaymentStatus: enums.PaymentStatusTrial,
				Version:       1,
				JoinedAt:      ev.OccurredAt.UTC(),
			}
			created, err := repo.CreateAccount(ctx, account)
			if err != nil {
				return err
			}
			if !created {
				if account, err = repo.FindByUserID(ctx, p.UserID, false); err != nil {
					return err
				}
				res.Outcome = webhooks.OutcomeUnchanged
			}
		} else {
			res.Outcome = webhooks.OutcomeUnchanged
		}
		res.AccountID = account.ID.String()

		recorded, err := repo.RecordEvent(ctx, ledgerEntry(ev, &account.ID))
		if err != nil {
			return err
		}
		if !recorded {
			return errDuplicate
		}
		return nil
	})
	if errors.Is(err, errDuplicate) {
		return webhooks.Result{Outcome: webhooks.OutcomeDuplicate}, nil
	}
	if err != nil {
		return webhooks.Result{}, classify(err)
	}
	if res.Outcome != webhooks.OutcomeApplied {
		return res, nil
	}

	r.logg.Info(r.logg.WithField(ctx, "account_id", res.AccountID), "account.created")
	res.Notices = append(res.Notices, notifications.Notice{
		Key:      notifications.NoticeKey(string(ev.Provider), ev.ID, NoticeUserSignedUp),
		Kind:     NoticeUserSignedUp,
		Subject:  "New User Signed Up",
		Body:     fmt.Sprintf("A new user has signed up!\n\nEmail: %s\nUser: %s", p.Email, p.UserID),
		Provider: string(ev.Provider),
		EventID:  ev.ID,
	})
	return res, nil
}

// UserUpdated syncs the primary email. Email changes carry no status, so no
// stale guard applies.
func (r *Reconciler) UserUpdated(ctx context.Context, ev webhooks.Event) (webhooks.Result, error) {
	p, err := identityPayload(ev)
	if err != nil {
		return webhooks.Result{}, err
	}
	res := webhooks.Result{Outcome: webhooks.OutcomeApplied}
	err = r.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		account, err := repo.FindByUserID(ctx, p.UserID, r.rowLocks)
		if err != nil {
			return err
		}
		res.AccountID = account.ID.String()
		if account.Email == p.Email {
			res.Outcome = webhooks.OutcomeUnchanged
			return nil
		}
		return repo.SetEmail(ctx, account, p.Email)
	})
	if err != nil {
		return webhooks.Result{}, classify(err)
	}
	return res, nil
}

func (r *Reconciler) UserDeleted(ctx context.Context, ev webhooks.Event) (webhooks.Result, error) {
	p, err := identityPayload(ev)
	if err != nil {
		return webhooks.Result{}, err
	}
	return r.setStatus(ctx, ev, func(repo Repository) (*models.Account, error) {
		return repo.FindByUserID(ctx, p.UserID, r.rowLocks)
	}, enums.PaymentStatusCanceled)
}

func (r *Reconciler) setStatusByCustomer(ctx context.Context, ev webhooks.Event, customerID string, status enums.PaymentStatus) (webhooks.Result, error) {
	return r.setStatus(ctx, ev, func(repo Repository) (*models.Account, error) {
		return repo.FindByCustomerID(ctx, customerID, r.rowLocks)
	}, status)
}

// setStatus is the state-set path: naturally idempotent, guarded against
// out-of-order delivery by status_event_at.
func (r *Reconciler) setStatus(ctx context.Context, ev webhooks.Event, find func(Repository) (*models.Account, error), status enums.PaymentStatus) (webhooks.Result, error) {
	res := webhooks.Result{Outcome: webhooks.OutcomeApplied}
	var previous enums.PaymentStatus
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		account, err := find(repo)
		if err != nil {
			return err
		}
		res.AccountID = account.ID.String()
		previous = account.PaymentStatus
		switch {
		case isStale(account, ev.OccurredAt):
			res.Outcome = webhooks.OutcomeStale
			return nil
		case account.PaymentStatus == status:
			res.Outcome = webhooks.OutcomeUnchanged
			return holdStatus(ctx, repo, account, ev.OccurredAt)
		}
		return repo.SetStatus(ctx, account, status, ev.OccurredAt)
	})
	if err != nil {
		return webhooks.Result{}, classify(err)
	}
	if res.Outcome == webhooks.OutcomeApplied {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"account_id": res.AccountID,
			"from":       string(previous),
			"to":         string(status),
		}), "account.status_updated")
	}
	return res, nil
}

func isStale(account *models.Account, occurredAt time.Time) bool {
	return account.StatusEventAt != nil && occurredAt.Before(*account.StatusEventAt)
}

// holdStatus moves status_event_at forward when a newer event confirms the
// current status, so an older event delivered afterwards is still stale.
func holdStatus(ctx context.Context, repo Repository, account *models.Account, occurredAt time.Time) error {
	if account.StatusEventAt != nil && !occurredAt.After(*account.StatusEventAt) {
		return nil
	}
	return repo.SetStatus(ctx, account, account.PaymentStatus, occurredAt)
}

func ledgerEntry(ev webhooks.Event, accountID *uuid.UUID) *models.ProcessedEvent {
	return &models.ProcessedEvent{
		Provider:  ev.Provider,
		EventID:   ev.ID,
		Kind:      ev.Kind,
		AccountID: accountID,
	}
}

func paymentNotice(ev webhooks.Event, p webhooks.PaymentPayload, kind, subject, headline string) notifications.Notice {
	return notifications.Notice{
		Key:     notifications.NoticeKey(string(ev.Provider), ev.ID, kind),
		Kind:    kind,
		Subject: subject,
		Body: fmt.Sprintf("%s\n\nAmount: %s\nCustomer: %s\nReference: %s",
			headline, notifications.FormatAmount(p.AmountCents, p.Currency), p.CustomerID, p.ObjectID),
		Provider: string(ev.Provider),
		EventID:  ev.ID,
	}
}

func paymentPayload(ev webhooks.Event) (webhooks.PaymentPayload, error) {
	p, ok := ev.PaymentPayload()
	if !ok {
		return p, webhooks.DecodeError(webhooks.ReasonMissingField, fmt.Errorf("%s event %s has no payment payload", ev.Kind, ev.ID))
	}
	return p, nil
}

func identityPayload(ev webhooks.Event) (webhooks.IdentityPayload, error) {
	p, ok := ev.IdentityPayload()
	if !ok {
		return p, webhooks.DecodeError(webhooks.ReasonMissingField, fmt.Errorf("%s event %s has no identity payload", ev.Kind, ev.ID))
	}
	return p, nil
}

// classify maps store errors onto the reconciliation taxonomy.
func classify(err error) error {
	if _, ok := webhooks.AsError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return webhooks.LookupMiss(err)
	case errors.Is(err, ErrVersionConflict), db.IsUniqueViolation(err, ""):
		return webhooks.StorageFailure(webhooks.ReasonConflict, err)
	default:
		return webhooks.StorageFailure(webhooks.ReasonStorage, err)
	}
}
