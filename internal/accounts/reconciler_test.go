package accounts

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/projectdash/dashboard-backend/internal/webhooks"
	"github.com/projectdash/dashboard-backend/internal/webhooks/identity"
	"github.com/projectdash/dashboard-backend/internal/webhooks/payments"
	"github.com/projectdash/dashboard-backend/pkg/db"
	"github.com/projectdash/dashboard-backend/pkg/db/models"
	"github.com/projectdash/dashboard-backend/pkg/enums"
	"github.com/projectdash/dashboard-backend/pkg/logger"
	"github.com/projectdash/dashboard-backend/pkg/migrate"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCustomers struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeCustomers) CreateCustomer(_ context.Context, _, userID, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if f.err != nil {
		return "", f.err
	}
	return "cus_" + userID, nil
}

func (f *fakeCustomers) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	client     *db.Client
	repo       Repository
	reconciler *Reconciler
	customers  *fakeCustomers
}

// newFixture opens a file-backed sqlite database so concurrent transactions
// contend for the same write lock.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "accounts.db") + "?_busy_timeout=5000&_txlock=immediate"
	conn, err := db.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	client := db.NewFromConn(conn)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, migrate.AutoMigrateModels(client))

	repo := NewRepository(conn)
	customers := &fakeCustomers{}
	reconciler, err := NewReconciler(ReconcilerParams{
		DB:        client,
		Repo:      repo,
		Customers: customers,
		Logger:    logger.New(logger.Options{ServiceName: "accounts-test", Level: zerolog.DebugLevel, Output: &bytes.Buffer{}}),
		RowLocks:  db.SupportsRowLocks(conn),
	})
	require.NoError(t, err)
	return &fixture{client: client, repo: repo, reconciler: reconciler, customers: customers}
}

func (f *fixture) seedAccount(t *testing.T, userID, customerID string, status enums.PaymentStatus, statusAt *time.Time) *models.Account {
	t.Helper()
	account := &models.Account{
		UserID:        userID,
		CustomerID:    &customerID,
		Email:         userID + "@example.com",
		PaymentStatus: status,
		StatusEventAt: statusAt,
		Version:       1,
		JoinedAt:      baseTime.Add(-24 * time.Hour),
	}
	created, err := f.repo.CreateAccount(context.Background(), account)
	require.NoError(t, err)
	require.True(t, created)
	return account
}

func (f *fixture) account(t *testing.T, customerID string) *models.Account {
	t.Helper()
	account, err := f.repo.FindByCustomerID(context.Background(), customerID, false)
	require.NoError(t, err)
	return account
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(model).Count(&n).Error)
	return n
}

func paymentEvent(id, kind, customerID string, at time.Time) webhooks.Event {
	return webhooks.Event{
		Provider:   enums.WebhookProviderPayments,
		ID:         id,
		Kind:       kind,
		OccurredAt: at,
		Payload: webhooks.PaymentPayload{
			ObjectID:    "in_" + id,
			CustomerID:  customerID,
			AmountCents: 1999,
			Currency:    "usd",
		},
	}
}

func identityEvent(id, kind, userID, email string, at time.Time) webhooks.Event {
	return webhooks.Event{
		Provider:   enums.WebhookProviderIdentity,
		ID:         id,
		Kind:       kind,
		OccurredAt: at,
		Payload:    webhooks.IdentityPayload{UserID: userID, Email: email},
	}
}

func TestRoutesCoverEveryKind(t *testing.T) {
	f := newFixture(t)
	router, err := webhooks.NewRouter(f.reconciler.Routes()...)
	require.NoError(t, err)
	assert.Len(t, router.Kinds(enums.WebhookProviderPayments), 5)
	assert.Equal(t, []string{identity.KindUserCreated, identity.KindUserDeleted, identity.KindUserUpdated}, router.Kinds(enums.WebhookProviderIdentity))
}

func TestPaymentSucceededDeliveredThreeTimes(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusTrial, nil)
	ev := paymentEvent("evt_1", payments.KindPaymentSucceeded, "cus_123", baseTime)

	var outcomes []webhooks.Outcome
	var keys []string
	for i := 0; i < 3; i++ {
		res, err := f.reconciler.PaymentSucceeded(context.Background(), ev)
		require.NoError(t, err)
		outcomes = append(outcomes, res.Outcome)
		require.Len(t, res.Notices, 1)
		keys = append(keys, res.Notices[0].Key)
	}

	assert.Equal(t, []webhooks.Outcome{webhooks.OutcomeApplied, webhooks.OutcomeUnchanged, webhooks.OutcomeUnchanged}, outcomes)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, keys[1], keys[2])

	account := f.account(t, "cus_123")
	assert.Equal(t, enums.PaymentStatusPaid, account.PaymentStatus)
	assert.Equal(t, int64(2), account.Version, "exactly one state change")
	assert.Equal(t, int64(1), f.count(t, &models.Account{}))
}

func TestPaymentSucceededConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusTrial, nil)
	ev := paymentEvent("evt_1", payments.KindPaymentSucceeded, "cus_123", baseTime)

	results := runConcurrently(t, 3, func() (webhooks.Result, error) {
		return f.reconciler.PaymentSucceeded(context.Background(), ev)
	})

	assert.Equal(t, 1, countOutcome(results, webhooks.OutcomeApplied))
	assert.Equal(t, 2, countOutcome(results, webhooks.OutcomeUnchanged))
	account := f.account(t, "cus_123")
	assert.Equal(t, enums.PaymentStatusPaid, account.PaymentStatus)
	assert.Equal(t, int64(2), account.Version)
}

func TestInvoicePaidSequentialRedelivery(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusPastDue, nil)
	ev := paymentEvent("evt_inv", payments.KindInvoicePaid, "cus_123", baseTime)

	first, err := f.reconciler.InvoicePaid(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeApplied, first.Outcome)
	assert.Len(t, first.Notices, 1)

	second, err := f.reconciler.InvoicePaid(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeDuplicate, second.Outcome)
	assert.Empty(t, second.Notices)
	assert.Equal(t, first.AccountID, second.AccountID)

	assert.Equal(t, int64(1), f.count(t, &models.CreditGrant{}))
	assert.Equal(t, int64(1), f.count(t, &models.ProcessedEvent{}))
	account := f.account(t, "cus_123")
	assert.Equal(t, enums.PaymentStatusPaid, account.PaymentStatus)
	assert.Equal(t, int64(2), account.Version)
}

func TestInvoicePaidConcurrentRedeliveryGrantsOnce(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusTrial, nil)
	ev := paymentEvent("evt_inv", payments.KindInvoicePaid, "cus_123", baseTime)

	results := runConcurrently(t, 8, func() (webhooks.Result, error) {
		return f.reconciler.InvoicePaid(context.Background(), ev)
	})

	assert.Equal(t, 1, countOutcome(results, webhooks.OutcomeApplied))
	assert.Equal(t, 7, countOutcome(results, webhooks.OutcomeDuplicate))

	var grants []models.CreditGrant
	require.NoError(t, f.client.DB().Find(&grants).Error)
	require.Len(t, grants, 1)
	assert.Equal(t, "evt_inv", grants[0].EventID)
	assert.Equal(t, int64(1999), grants[0].AmountCents)
	assert.Equal(t, int64(1), f.count(t, &models.ProcessedEvent{}))
}

func TestInvoicePaidAfterLedgerPruneStillGrantsOnce(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusTrial, nil)
	ev := paymentEvent("evt_inv", payments.KindInvoicePaid, "cus_123", baseTime)

	_, err := f.reconciler.InvoicePaid(context.Background(), ev)
	require.NoError(t, err)
	_, err = f.repo.DeleteLedgerBefore(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	res, err := f.reconciler.InvoicePaid(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, int64(1), f.count(t, &models.CreditGrant{}))
	assert.Equal(t, int64(0), f.count(t, &models.ProcessedEvent{}), "rolled back with the duplicate grant")
}

func TestLookupMissIsNotRetryable(t *testing.T) {
	f := newFixture(t)
	ev := paymentEvent("evt_1", payments.KindPaymentSucceeded, "cus_missing", baseTime)

	_, err := f.reconciler.PaymentSucceeded(context.Background(), ev)
	require.Error(t, err)
	typed, ok := webhooks.AsError(err)
	require.True(t, ok)
	assert.Equal(t, webhooks.KindReconciliation, typed.Kind)
	assert.Equal(t, webhooks.ReasonLookupMiss, typed.Reason)
	assert.False(t, typed.Retryable)
	assert.True(t, errors.Is(err, ErrAccountNotFound))

	_, err = f.reconciler.InvoicePaid(context.Background(), paymentEvent("evt_2", payments.KindInvoicePaid, "cus_missing", baseTime))
	assert.True(t, webhooks.IsKind(err, webhooks.KindReconciliation))
	assert.Equal(t, int64(0), f.count(t, &models.ProcessedEvent{}))
}

func TestOutOfOrderStatusEventIsStale(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusTrial, nil)

	later := paymentEvent("evt_late", payments.KindInvoicePaymentFailed, "cus_123", baseTime.Add(time.Hour))
	res, err := f.reconciler.InvoicePaymentFailed(context.Background(), later)
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeApplied, res.Outcome)

	earlier := paymentEvent("evt_early", payments.KindPaymentSucceeded, "cus_123", baseTime)
	res, err = f.reconciler.PaymentSucceeded(context.Background(), earlier)
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeStale, res.Outcome)
	assert.Empty(t, res.Notices)

	account := f.account(t, "cus_123")
	assert.Equal(t, enums.PaymentStatusPastDue, account.PaymentStatus)
	require.NotNil(t, account.StatusEventAt)
	assert.True(t, account.StatusEventAt.Equal(baseTime.Add(time.Hour)))
}

func TestNewerConfirmingEventHoldsStatus(t *testing.T) {
	cases := []struct {
		name    string
		confirm func(*Reconciler, context.Context, webhooks.Event) (webhooks.Result, error)
		kind    string
	}{
		{"invoice paid", (*Reconciler).InvoicePaid, payments.KindInvoicePaid},
		{"payment succeeded", (*Reconciler).PaymentSucceeded, payments.KindPaymentSucceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusTrial, nil)
			ctx := context.Background()

			res, err := tc.confirm(f.reconciler, ctx, paymentEvent("evt_1", tc.kind, "cus_123", baseTime))
			require.NoError(t, err)
			assert.Equal(t, webhooks.OutcomeApplied, res.Outcome)

			_, err = tc.confirm(f.reconciler, ctx, paymentEvent("evt_3", tc.kind, "cus_123", baseTime.Add(2*time.Hour)))
			require.NoError(t, err)
			require.NotNil(t, f.account(t, "cus_123").StatusEventAt)
			assert.True(t, f.account(t, "cus_123").StatusEventAt.Equal(baseTime.Add(2*time.Hour)))

			res, err = f.reconciler.InvoicePaymentFailed(ctx, paymentEvent("evt_2", payments.KindInvoicePaymentFailed, "cus_123", baseTime.Add(time.Hour)))
			require.NoError(t, err)
			assert.Equal(t, webhooks.OutcomeStale, res.Outcome)
			assert.Equal(t, enums.PaymentStatusPaid, f.account(t, "cus_123").PaymentStatus)
		})
	}
}

func TestSubscriptionDeletedCancels(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusPaid, nil)

	res, err := f.reconciler.SubscriptionDeleted(context.Background(), paymentEvent("evt_sub", payments.KindSubscriptionDeleted, "cus_123", baseTime))
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeApplied, res.Outcome)
	assert.Empty(t, res.Notices)
	assert.Equal(t, enums.PaymentStatusCanceled, f.account(t, "cus_123").PaymentStatus)
}

func TestPaymentFailedNotifiesWithoutMutation(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusPaid, nil)

	res, err := f.reconciler.PaymentFailed(context.Background(), paymentEvent("evt_fail", payments.KindPaymentFailed, "cus_123", baseTime))
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeUnchanged, res.Outcome)
	assert.Equal(t, seeded.ID.String(), res.AccountID)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, "Payment Attempted", res.Notices[0].Subject)
	assert.Contains(t, res.Notices[0].Body, "19.99 USD")

	account := f.account(t, "cus_123")
	assert.Equal(t, int64(1), account.Version)

}

// A failed payment for a customer with no account is still acknowledged so
// the operator sees the attempt; nothing is written.
func TestPaymentFailedUnknownCustomerIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	res, err := f.reconciler.PaymentFailed(context.Background(), paymentEvent("evt_fail2", payments.KindPaymentFailed, "cus_unknown", baseTime))
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeUnchanged, res.Outcome)
	assert.Empty(t, res.AccountID)
	require.Len(t, res.Notices, 1)
	assert.Contains(t, res.Notices[0].Body, "cus_unknown")
	assert.Equal(t, int64(0), f.count(t, &models.Account{}))
	assert.Equal(t, int64(0), f.count(t, &models.ProcessedEvent{}))

	// the same miss on a status-changing kind is a non-retryable lookup miss
	_, err = f.reconciler.InvoicePaymentFailed(context.Background(), paymentEvent("evt_fail3", payments.KindInvoicePaymentFailed, "cus_unknown", baseTime))
	typed, ok := webhooks.AsError(err)
	require.True(t, ok)
	assert.Equal(t, webhooks.ReasonLookupMiss, typed.Reason)
	assert.False(t, typed.Retryable)
}

func TestPaymentHandlerWithoutPayloadIsDecodeError(t *testing.T) {
	f := newFixture(t)
	ev := webhooks.Event{Provider: enums.WebhookProviderPayments, ID: "evt_1", Kind: payments.KindPaymentSucceeded}

	_, err := f.reconciler.PaymentSucceeded(context.Background(), ev)
	assert.True(t, webhooks.IsKind(err, webhooks.KindDecode))
}

func TestUserCreatedProvisionsOnce(t *testing.T) {
	f := newFixture(t)
	ev := identityEvent("msg_1", identity.KindUserCreated, "user_1", "ada@example.com", baseTime)

	res, err := f.reconciler.UserCreated(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeApplied, res.Outcome)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, "New User Signed Up", res.Notices[0].Subject)

	account, err := f.repo.FindByUserID(context.Background(), "user_1", false)
	require.NoError(t, err)
	assert.Equal(t, res.AccountID, account.ID.String())
	require.NotNil(t, account.CustomerID)
	assert.Equal(t, "cus_user_1", *account.CustomerID)
	assert.Equal(t, enums.PaymentStatusTrial, account.PaymentStatus)
	assert.True(t, account.JoinedAt.Equal(baseTime))

	again, err := f.reconciler.UserCreated(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeDuplicate, again.Outcome)
	assert.Empty(t, again.Notices)

	assert.Equal(t, []string{"msg_1"}, f.customers.calls)
	assert.Equal(t, int64(1), f.count(t, &models.Account{}))
	assert.Equal(t, int64(1), f.count(t, &models.ProcessedEvent{}))
}

func TestUserCreatedConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	ev := identityEvent("msg_1", identity.KindUserCreated, "user_1", "ada@example.com", baseTime)

	results := runConcurrently(t, 4, func() (webhooks.Result, error) {
		return f.reconciler.UserCreated(context.Background(), ev)
	})

	assert.Equal(t, 1, countOutcome(results, webhooks.OutcomeApplied))
	assert.Equal(t, 3, countOutcome(results, webhooks.OutcomeDuplicate))
	assert.Equal(t, int64(1), f.count(t, &models.Account{}))
	assert.Equal(t, int64(1), f.count(t, &models.ProcessedEvent{}))
	for _, key := range f.customers.calls {
		assert.Equal(t, "msg_1", key)
	}
}

func TestUserCreatedForExistingUserIsUnchanged(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusPaid, nil)

	res, err := f.reconciler.UserCreated(context.Background(), identityEvent("msg_2", identity.KindUserCreated, "user_1", "ada@example.com", baseTime))
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeUnchanged, res.Outcome)
	assert.Equal(t, seeded.ID.String(), res.AccountID)
	assert.Empty(t, res.Notices)
	assert.Equal(t, int64(1), f.count(t, &models.Account{}))
	assert.Equal(t, int64(1), f.count(t, &models.ProcessedEvent{}))
	assert.Equal(t, 0, f.customers.callCount(), "existing account reuses its customer")

	account, err := f.repo.FindByUserID(context.Background(), "user_1", false)
	require.NoError(t, err)
	require.NotNil(t, account.CustomerID)
	assert.Equal(t, "cus_123", *account.CustomerID)
}

func TestUserCreatedCustomerFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.customers.err = errors.New("payments api unavailable")

	_, err := f.reconciler.UserCreated(context.Background(), identityEvent("msg_1", identity.KindUserCreated, "user_1", "ada@example.com", baseTime))
	typed, ok := webhooks.AsError(err)
	require.True(t, ok)
	assert.True(t, typed.Retryable)
	assert.Equal(t, webhooks.ReasonDependency, typed.Reason)
	assert.Equal(t, int64(0), f.count(t, &models.Account{}))
	assert.Equal(t, int64(0), f.count(t, &models.ProcessedEvent{}))

	f.customers.err = nil
	res, err := f.reconciler.UserCreated(context.Background(), identityEvent("msg_1", identity.KindUserCreated, "user_1", "ada@example.com", baseTime))
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeApplied, res.Outcome)
	assert.Equal(t, 2, f.customers.callCount())
}

func TestUserUpdatedSyncsEmail(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusTrial, nil)

	res, err := f.reconciler.UserUpdated(context.Background(), identityEvent("msg_2", identity.KindUserUpdated, "user_1", "new@example.com", baseTime))
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeApplied, res.Outcome)

	res, err = f.reconciler.UserUpdated(context.Background(), identityEvent("msg_2", identity.KindUserUpdated, "user_1", "new@example.com", baseTime))
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeUnchanged, res.Outcome)

	account := f.account(t, "cus_123")
	assert.Equal(t, "new@example.com", account.Email)
	assert.Equal(t, int64(2), account.Version)

	_, err = f.reconciler.UserUpdated(context.Background(), identityEvent("msg_3", identity.KindUserUpdated, "user_missing", "x@example.com", baseTime))
	typed, ok := webhooks.AsError(err)
	require.True(t, ok)
	assert.Equal(t, webhooks.ReasonLookupMiss, typed.Reason)
}

func TestUserDeletedCancelsWithStaleGuard(t *testing.T) {
	f := newFixture(t)
	at := baseTime.Add(time.Hour)
	f.seedAccount(t, "user_1", "cus_123", enums.PaymentStatusPaid, &at)

	res, err := f.reconciler.UserDeleted(context.Background(), identityEvent("msg_old", identity.KindUserDeleted, "user_1", "", baseTime))
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeStale, res.Outcome)

	res, err = f.reconciler.UserDeleted(context.Background(), identityEvent("msg_new", identity.KindUserDeleted, "user_1", "", baseTime.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, webhooks.OutcomeApplied, res.Outcome)
	assert.Equal(t, enums.PaymentStatusCanceled, f.account(t, "cus_123").PaymentStatus)
}

func runConcurrently(t *testing.T, n int, fn func() (webhooks.Result, error)) []webhooks.Result {
	t.Helper()
	results := make([]webhooks.Result, n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = fn()
		}(i)
	}
	close(start)
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	return results
}

func countOutcome(results []webhooks.Result, outcome webhooks.Outcome) int {
	n := 0
	for _, res := range results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

func TestClassifyStorageErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		kind      webhooks.ErrorKind
		reason    string
		retryable bool
	}{
		{"not found", ErrAccountNotFound, webhooks.KindReconciliation, webhooks.ReasonLookupMiss, false},
		{"version conflict", ErrVersionConflict, webhooks.KindReconciliation, webhooks.ReasonConflict, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, webhooks.KindReconciliation, webhooks.ReasonConflict, true},
		{"storage", errors.New("connection reset"), webhooks.KindReconciliation, webhooks.ReasonStorage, true},
		{"typed passthrough", webhooks.DecodeError(webhooks.ReasonMissingField, nil), webhooks.KindDecode, webhooks.ReasonMissingField, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			typed, ok := webhooks.AsError(classify(tc.err))
			require.True(t, ok)
			assert.Equal(t, tc.kind, typed.Kind)
			assert.Equal(t, tc.reason, typed.Reason)
			assert.Equal(t, tc.retryable, typed.Retryable)
		})
	}
}
