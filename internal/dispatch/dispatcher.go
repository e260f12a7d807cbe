// Package dispatch fans a message out to every enabled channel of every
// target, concurrently, with bounded in-flight sends, per-attempt timeouts,
// and exponential-backoff retries for transient failures. Dispatch never
// fails its caller: the worst outcome is a report full of failures.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"response-service/internal/channels"
	"response-service/internal/config"
	"response-service/internal/models"
)

// DeliveryStore records per-attempt delivery state for audit.
type DeliveryStore interface {
	CreateDeliveryAttempt(ctx context.Context, a models.DeliveryAttempt) error
	UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, status string, attempts int, lastError string) error
}

type Dispatcher struct {
	resolver *Resolver
	store    DeliveryStore
	logger   *logrus.Logger

	sem            chan struct{}
	attemptTimeout time.Duration
	backoffBase    time.Duration
	reportWindow   time.Duration
	maxAttempts    int

	// base outlives individual Dispatch calls so attempts still retrying
	// when the caller takes its report keep running.
	base     context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func New(resolver *Resolver, store DeliveryStore, logger *logrus.Logger, cfg config.Config) *Dispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		resolver:       resolver,
		store:          store,
		logger:         logger,
		sem:            make(chan struct{}, cfg.Dispatch.MaxInFlight),
		attemptTimeout: cfg.Dispatch.AttemptTimeout,
		backoffBase:    cfg.Dispatch.BackoffBase,
		reportWindow:   cfg.Dispatch.ReportWindow,
		maxAttempts:    cfg.Dispatch.MaxAttempts,
		base:           base,
		cancel:         cancel,
	}
}

// Dispatch resolves channels per target, sends everything concurrently, and
// returns an aggregated report. It blocks at most for the report-collection
// window; attempts still retrying then continue in the background and keep
// updating their DeliveryAttempt rows.
func (d *Dispatcher) Dispatch(ctx context.Context, msg models.Message, targets []models.Target) models.DeliveryReport {
	report := models.NewDeliveryReport(msg.RequestID)

	var mu sync.Mutex
	var wg sync.WaitGroup
	total := 0

	for _, t := range targets {
		chs := d.resolver.Resolve(ctx, t.RecipientID, t.Category)
		if len(chs) == 0 {
			d.logger.WithFields(logrus.Fields{
				"request_id":   msg.RequestID,
				"recipient_id": t.RecipientID,
				"category":     t.Category,
			}).Info("All channels disabled for target, nothing to send")
			continue
		}
		for _, ch := range chs {
			attempt := models.DeliveryAttempt{
				ID:          uuid.New(),
				RequestID:   msg.RequestID,
				RecipientID: t.RecipientID,
				Channel:     ch.Name(),
				Status:      models.DeliveryPending,
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}
			if err := d.store.CreateDeliveryAttempt(d.base, attempt); err != nil {
				// Audit row failures must not cost the user the message.
				d.logger.WithField("request_id", msg.RequestID).Errorf("CreateDeliveryAttempt failed: %v", err)
			}

			total++
			wg.Add(1)
			d.inflight.Add(1)
			go func(ch channels.Channel, attempt models.DeliveryAttempt) {
				defer wg.Done()
				defer d.inflight.Done()
				status := d.deliver(ch, attempt, msg)
				mu.Lock()
				switch status {
				case models.DeliverySent:
					report.Sent[ch.Name()]++
				case models.DeliveryFailed:
					report.Failed[ch.Name()]++
				}
				mu.Unlock()
			}(ch, attempt)
		}
	}

	// Report collection is bounded; stragglers update their rows async.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.reportWindow):
	}

	mu.Lock()
	snapshot := models.NewDeliveryReport(msg.RequestID)
	counted := 0
	for k, v := range report.Sent {
		snapshot.Sent[k] = v
		counted += v
	}
	for k, v := range report.Failed {
		snapshot.Failed[k] = v
		counted += v
	}
	snapshot.Pending = total - counted
	mu.Unlock()
	return snapshot
}

// deliver runs the retry loop for one attempt and returns its terminal
// status.
func (d *Dispatcher) deliver(ch channels.Channel, attempt models.DeliveryAttempt, msg models.Message) string {
	fields := logrus.Fields{
		"request_id":   msg.RequestID,
		"recipient_id": attempt.RecipientID,
		"channel":      ch.Name(),
		"category":     msg.Category,
	}

	var lastErr error
	tries := 0
	for try := 1; try <= d.maxAttempts; try++ {
		tries = try
		err := d.trySend(ch, attempt.RecipientID, msg)
		if err == nil {
			if uerr := d.store.UpdateDeliveryAttempt(d.base, attempt.ID, models.DeliverySent, try, ""); uerr != nil {
				d.logger.WithFields(fields).Errorf("UpdateDeliveryAttempt failed: %v", uerr)
			}
			d.logger.WithFields(fields).Infof("Delivered on attempt %d", try)
			return models.DeliverySent
		}
		lastErr = err

		if !channels.IsTransient(err) {
			d.logger.WithFields(fields).Errorf("Permanent delivery error, not retrying: %v", err)
			break
		}
		d.logger.WithFields(fields).Warnf("Attempt %d/%d failed: %v", try, d.maxAttempts, err)
		if uerr := d.store.UpdateDeliveryAttempt(d.base, attempt.ID, models.DeliveryPending, try, err.Error()); uerr != nil {
			d.logger.WithFields(fields).Errorf("UpdateDeliveryAttempt failed: %v", uerr)
		}
		if try < d.maxAttempts {
			select {
			case <-time.After(d.backoffBase << (try - 1)):
			case <-d.base.Done():
			}
		}
	}

	if uerr := d.store.UpdateDeliveryAttempt(d.base, attempt.ID, models.DeliveryFailed, tries, fmt.Sprintf("%v", lastErr)); uerr != nil {
		d.logger.WithFields(fields).Errorf("UpdateDeliveryAttempt failed: %v", uerr)
	}
	return models.DeliveryFailed
}

// trySend performs one bounded send. The semaphore slot is held only for
// the duration of the attempt, not across backoff sleeps, and a stuck
// channel is abandoned at the timeout so it cannot block other deliveries.
func (d *Dispatcher) trySend(ch channels.Channel, recipientID int, msg models.Message) error {
	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	ctx, cancel := context.WithTimeout(d.base, d.attemptTimeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- ch.Send(ctx, recipientID, msg)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return channels.Transient(fmt.Errorf("send via %s timed out after %s", ch.Name(), d.attemptTimeout))
	}
}

// Shutdown stops background retries and waits for in-flight deliveries up
// to the context deadline.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	d.cancel()
	return ctx.Err()
}
