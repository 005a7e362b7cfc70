package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/projectdash/dashboard-backend/pkg/logger"
	"github.com/projectdash/dashboard-backend/pkg/metrics"
)

const (
	defaultWorkers      = 4
	defaultQueueSize    = 256
	defaultOverflowSize = 16
	defaultSendTimeout  = 10 * time.Second

	stageSend      = "send"
	stageQueueFull = "queue_full"
	stageEscalate  = "escalate"
	stagePanic     = "panic"
	stageOverflow  = "escalation_overflow"
)

type DispatcherParams struct {
	Logger        *logger.Logger
	Metrics       *metrics.WebhookMetrics
	Sender        Sender
	Escalator     Escalator
	Guard         *Guard
	Workers       int
	QueueSize     int
	OverflowSize  int
	SendTimeout   time.Duration
	OperatorEmail string
}

type job struct {
	ctx    context.Context
	notice *Notice
	alert  *Alert
}

// Dispatcher runs notices and alerts on a bounded worker pool. Dispatch and
// Escalate never block the caller.
type Dispatcher struct {
	logg        *logger.Logger
	metrics     *metrics.WebhookMetrics
	sender      Sender
	escalator   Escalator
	guard       *Guard
	sendTimeout time.Duration
	operator    string

	mu     sync.RWMutex
	closed bool
	queue  chan job
	// overflow feeds one escalation worker for notices the full queue dropped.
	overflow chan job
	wg       sync.WaitGroup
}

// NewDispatcher starts the workers.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Sender == nil {
		return nil, errors.New("sender required")
	}
	escalator := params.Escalator
	if escalator == nil {
		escalator = NewLogEscalator(params.Logger)
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	size := params.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	overflow := params.OverflowSize
	if overflow <= 0 {
		overflow = defaultOverflowSize
	}
	timeout := params.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	d := &Dispatcher{
		logg:        params.Logger,
		metrics:     params.Metrics,
		sender:      params.Sender,
		escalator:   escalator,
		guard:       params.Guard,
		sendTimeout: timeout,
		operator:    params.OperatorEmail,
		queue:       make(chan job, size),
		overflow:    make(chan job, overflow),
	}
	d.wg.Add(workers + 1)
	for i := 0; i < workers; i++ {
		go d.worker(d.queue)
	}
	go d.worker(d.overflow)
	return d, nil
}

// Dispatch enqueues a notice. A full or closed queue is logged and counted.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notice) {
	if d == nil {
		return
	}
	if n.To == "" {
		n.To = d.operator
	}
	d.enqueue(ctx, job{ctx: context.WithoutCancel(ctx), notice: &n}, n.Kind)
}

// Escalate enqueues an alert for the escalator.
func (d *Dispatcher) Escalate(ctx context.Context, a Alert) {
	if d == nil {
		return
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	d.enqueue(ctx, job{ctx: context.WithoutCancel(ctx), alert: &a}, a.Kind)
}

func (d *Dispatcher) enqueue(ctx context.Context, j job, kind string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logg.Warn(d.logg.WithField(ctx, "kind", kind), "dispatcher closed; dropping side effect")
		return
	}
	select {
	case d.queue <- j:
	default:
		d.metrics.IncSideEffectFailure(stageQueueFull)
		d.logg.Error(d.logg.WithField(ctx, "kind", kind), "side_effect.queue_full", errors.New("notification queue full"))
		if j.notice == nil {
			return
		}
		// Dropped notices are escalated on the overflow worker. Dropped alerts
		// and a full overflow are only logged.
		alert := Alert{
			Source:   "dispatcher",
			Kind:     "side_effect",
			Reason:   stageQueueFull,
			Provider: j.notice.Provider,
			EventID:  j.notice.EventID,
			Message:  "notification queue full; notice dropped",
			At:       time.Now().UTC(),
		}
		select {
		case d.overflow <- job{ctx: j.ctx, alert: &alert}:
		default:
			d.metrics.IncSideEffectFailure(stageOverflow)
			d.logg.Error(d.logg.WithField(ctx, "kind", kind), "side_effect.escalation_overflow", errors.New("escalation overflow full; alert dropped"))
		}
	}
}

// Close stops accepting work and waits for queued jobs or ctx expiry.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
		close(d.overflow)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining notification queue: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker(jobs <-chan job) {
	defer d.wg.Done()
	for j := range jobs {
		switch {
		case j.notice != nil:
			d.deliver(j.ctx, *j.notice)
		case j.alert != nil:
			d.escalate(j.ctx, *j.alert)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notice) {
	ctx = d.logg.WithFields(ctx, map[string]any{"notice_kind": n.Kind, "notice_key": n.Key})

	if d.guard != nil && n.Key != "" {
		claimed, err := d.guard.Claim(ctx, n.Key)
		switch {
		case err != nil:
			d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "notice dedupe unavailable; sending anyway")
		case !claimed:
			d.logg.Debug(ctx, "notice already sent")
			return
		}
	}

	if err := d.send(ctx, n); err != nil {
		if d.guard != nil && n.Key != "" {
			if relErr := d.guard.Release(ctx, n.Key); relErr != nil {
				d.logg.Warn(d.logg.WithField(ctx, "error", relErr.Error()), "notice dedupe release failed")
			}
		}
		d.metrics.IncSideEffectFailure(stageSend)
		d.logg.Error(ctx, "side_effect.send_failed", err)
		d.escalate(ctx, Alert{
			Source:   "dispatcher",
			Kind:     "side_effect",
			Reason:   stageSend,
			Provider: n.Provider,
			EventID:  n.EventID,
			Message:  err.Error(),
			At:       time.Now().UTC(),
		})
		return
	}
	d.metrics.IncNoticeSent(n.Kind)
	d.logg.Info(ctx, "notice.sent")
}

func (d *Dispatcher) send(ctx context.Context, n Notice) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncSideEffectFailure(stagePanic)
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sender.Send(sendCtx, n)
}

// escalate never routes through the sender, so a failing notifier cannot loop.
func (d *Dispatcher) escalate(ctx context.Context, a Alert) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("escalator panic: %v", r)
			}
		}()
		escCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
		return d.escalator.Escalate(escCtx, a)
	}()
	if err != nil {
		d.metrics.IncSideEffectFailure(stageEscalate)
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"alert_kind": a.Kind,
			"reason":     a.Reason,
			"alert":      a.Message,
		})
		d.logg.Error(logCtx, "side_effect.escalation_failed", err)
	}
}
