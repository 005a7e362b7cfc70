package cron

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/driver/sqlite"

	"github.com/projectdash/dashboard-backend/internal/accounts"
	"github.com/projectdash/dashboard-backend/pkg/db"
	"github.com/projectdash/dashboard-backend/pkg/db/models"
	"github.com/projectdash/dashboard-backend/pkg/enums"
	"github.com/projectdash/dashboard-backend/pkg/metrics"
	"github.com/projectdash/dashboard-backend/pkg/migrate"
)

type fakeLedgerPruner struct {
	lastCutoff time.Time
	called     int
	err        error
}

func (f *fakeLedgerPruner) DeleteLedgerBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

func newLedgerRetentionJob(t *testing.T, repo ledgerPruner, m *metrics.CronJobMetrics, retention int) *ledgerRetentionJob {
	t.Helper()
	jobIface, err := NewLedgerRetentionJob(LedgerRetentionJobParams{
		Logger:     testLogger(),
		Repository: repo,
		Metrics:    m,
		Retention:  retention,
	})
	if err != nil {
		t.Fatalf("NewLedgerRetentionJob: %v", err)
	}
	job, ok := jobIface.(*ledgerRetentionJob)
	if !ok {
		t.Fatalf("expected ledgerRetentionJob, got %T", jobIface)
	}
	return job
}

func TestLedgerRetentionJobUsesDefaultWindow(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeLedgerPruner{}
	job := newLedgerRetentionJob(t, repo, nil, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expected := now.Add(-defaultLedgerRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, repo.lastCutoff)
	}
	if repo.called != 1 {
		t.Fatalf("expected repo called once, got %d", repo.called)
	}
}

func TestLedgerRetentionJobPropagatesError(t *testing.T) {
	job := newLedgerRetentionJob(t, &fakeLedgerPruner{err: errors.New("boom")}, nil, 30)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestLedgerRetentionJobPrunesOnlyExpiredRows(t *testing.T) {
	conn, err := db.Open(sqlite.Open("file:" + filepath.Join(t.TempDir(), "ledger.db")))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	client := db.NewFromConn(conn)
	t.Cleanup(func() { _ = client.Close() })
	if err := migrate.AutoMigrateModels(client); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []models.ProcessedEvent{
		{Provider: enums.WebhookProviderPayments, EventID: "evt_old", Kind: "invoice.paid", ProcessedAt: now.AddDate(0, 0, -120)},
		{Provider: enums.WebhookProviderPayments, EventID: "evt_recent", Kind: "invoice.paid", ProcessedAt: now.AddDate(0, 0, -10)},
	}
	if err := conn.Create(&entries).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	reg := prometheus.NewRegistry()
	job := newLedgerRetentionJob(t, accounts.NewRepository(conn), metrics.NewCronJobMetrics(reg), 90)
	job.now = func() time.Time { return now }
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var remaining []models.ProcessedEvent
	if err := conn.Find(&remaining).Error; err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].EventID != "evt_recent" {
		t.Fatalf("expected only evt_recent to remain, got %+v", remaining)
	}
	if series, _ := testutil.GatherAndCount(reg, "cron_rows_deleted_total"); series != 1 {
		t.Fatalf("expected rows metric recorded, got %d series", series)
	}
}
