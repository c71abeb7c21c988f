package delivery

import (
	"context"
	"errors"
	"log"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/alarms/store"
	"shopfloor-cloud/internal/observability/metrics"
)

const defaultBatchSize = 100

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Worker drains the recipient outbox for one delivery method. Workers
// of different methods run independently; workers of the same method
// may also run concurrently, because rows are claimed with a
// conditional update and a row is never delivered-and-marked twice.
type Worker struct {
	st      store.Store
	channel Channel
	clock   Clock
	logger  *log.Logger
	backoff []time.Duration
	failCap int
	timeout time.Duration
	batch   int
}

// WorkerOption customizes the worker.
type WorkerOption func(*Worker)

// WithWorkerClock assigns a clock.
func WithWorkerClock(clock Clock) WorkerOption {
	return func(w *Worker) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// WithBackoff overrides the retry schedule and fail cap.
func WithBackoff(schedule []time.Duration, failCap int) WorkerOption {
	return func(w *Worker) {
		if len(schedule) > 0 {
			w.backoff = schedule
		}
		if failCap > 0 {
			w.failCap = failCap
		}
	}
}

// WithTimeout bounds a single channel call.
func WithTimeout(timeout time.Duration) WorkerOption {
	return func(w *Worker) {
		if timeout > 0 {
			w.timeout = timeout
		}
	}
}

// WithBatchSize caps the rows claimed per pass.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

// NewWorker constructs a delivery worker for one channel.
func NewWorker(st store.Store, channel Channel, logger *log.Logger, opts ...WorkerOption) (*Worker, error) {
	if st == nil {
		return nil, errors.New("delivery worker: nil store")
	}
	if channel == nil || channel.Method() == "" {
		return nil, errors.New("delivery worker: invalid channel")
	}
	w := &Worker{
		st:      st,
		channel: channel,
		clock:   systemClock{},
		logger:  logger,
		backoff: alarms.DefaultBackoff,
		failCap: alarms.DefaultFailCap,
		timeout: 30 * time.Second,
		batch:   defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Name identifies the worker to the scheduler.
func (w *Worker) Name() string { return "delivery-" + w.channel.Method() }

// RunOnce performs one outbox pass and returns the first store error.
// Channel failures are absorbed into the retry state, not returned.
func (w *Worker) RunOnce(ctx context.Context) error {
	if w == nil || w.st == nil {
		return errors.New("delivery worker: nil store")
	}
	now := w.clock.Now().UTC()
	due, err := w.st.ListRecipients(ctx, store.RecipientFilter{
		Status:      alarms.RecipientOutbox,
		Method:      w.channel.Method(),
		NoBackoffAt: now,
		Limit:       w.batch,
	})
	if err != nil {
		return err
	}
	for _, recipient := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.deliverOne(ctx, recipient); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) deliverOne(ctx context.Context, recipient alarms.Recipient) error {
	event, err := w.st.GetEvent(ctx, recipient.EventID)
	if err != nil {
		return err
	}
	if event == nil {
		return w.markFailed(ctx, recipient)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	start := w.clock.Now()
	deliverErr := w.channel.Deliver(callCtx, recipient, *event)
	cancel()
	latency := w.clock.Now().Sub(start)

	if deliverErr == nil {
		metrics.ObserveDelivery(recipient.Method, "ok", latency)
		changed, err := w.st.UpdateRecipientIf(ctx, recipient.ID,
			store.RecipientConditions{Status: []string{alarms.RecipientOutbox}},
			store.RecipientChange{Status: alarms.RecipientSent})
		if err != nil {
			// At-most-once: the message went out, so the mutation is
			// not retried. The worst case is a duplicate on a later run.
			w.logf("delivery: recipient %s delivered but not marked sent: %v", recipient.ID, err)
			return nil
		}
		if !changed {
			w.logf("delivery: recipient %s already claimed", recipient.ID)
		}
		return nil
	}

	metrics.ObserveDelivery(recipient.Method, "error", latency)
	if IsPermanent(deliverErr) || recipient.FailCount >= w.failCap {
		w.logf("delivery: recipient %s failed permanently: %v", recipient.ID, deliverErr)
		return w.markFailed(ctx, recipient)
	}
	w.logf("delivery: recipient %s attempt %d failed: %v", recipient.ID, recipient.FailCount+1, deliverErr)
	next := recipient.FailCount + 1
	until := w.clock.Now().UTC().Add(w.backoffFor(next))
	_, err = w.st.UpdateRecipientIf(ctx, recipient.ID,
		store.RecipientConditions{Status: []string{alarms.RecipientOutbox}, FailCount: &recipient.FailCount},
		store.RecipientChange{Status: alarms.RecipientOutbox, FailCount: &next, BackoffUntil: &until})
	return err
}

func (w *Worker) markFailed(ctx context.Context, recipient alarms.Recipient) error {
	_, err := w.st.UpdateRecipientIf(ctx, recipient.ID,
		store.RecipientConditions{Status: []string{alarms.RecipientOutbox}},
		store.RecipientChange{Status: alarms.RecipientFailed})
	return err
}

func (w *Worker) backoffFor(failCount int) time.Duration {
	idx := failCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(w.backoff) {
		idx = len(w.backoff) - 1
	}
	return w.backoff[idx]
}

func (w *Worker) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
