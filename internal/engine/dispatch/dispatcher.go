package dispatch

import (
	"context"
	goerrors "errors"
	"sync"
	"time"

	"notify-engine/internal/channels"
	"notify-engine/internal/common/errors"
	"notify-engine/internal/common/logger"
	"notify-engine/internal/common/metrics"
	"notify-engine/internal/models"
	"notify-engine/internal/store"
)

// Options are the dispatcher tunables.
type Options struct {
	PageSize        int
	WorkerPoolSize  int
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RescheduleDelay time.Duration
	SendTimeout     time.Duration
}

// Stats summarizes one dispatcher cycle.
type Stats struct {
	Loaded   int
	Sent     int
	Failed   int
	Retried  int
	Deferred int
	Skipped  int
}

// Dispatcher drains the pending notification queue one page per cycle,
// fanning sends out over a bounded worker pool.
type Dispatcher struct {
	notifications store.NotificationStore
	directory     store.RecipientDirectory
	registry      *channels.Registry
	status        *BatchStatus
	history       *store.HistoryIndexer
	opts          Options
	logger        logger.Logger

	now func() time.Time
}

func New(
	notifications store.NotificationStore,
	directory store.RecipientDirectory,
	registry *channels.Registry,
	status *BatchStatus,
	history *store.HistoryIndexer,
	opts Options,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		directory:     directory,
		registry:      registry,
		status:        status,
		history:       history,
		opts:          opts,
		logger:        log.WithFields(map[string]interface{}{"component": "dispatcher"}),
		now:           time.Now,
	}
}

// RunCycle loads one page of due notifications and attempts delivery.
// Rate-capped recipients have their records pushed back instead of
// dropped; delivery outcomes drive the record lifecycle.
func (d *Dispatcher) RunCycle(ctx context.Context) (*Stats, error) {
	start := d.now()
	defer func() {
		metrics.DispatchCycleDuration.Observe(d.now().Sub(start).Seconds())
	}()

	page, err := d.notifications.PendingPage(ctx, start, d.opts.PageSize)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Loaded: len(page)}
	if len(page) == 0 {
		return stats, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.opts.WorkerPoolSize)
	)

	for _, rec := range page {
		select {
		case <-ctx.Done():
			wg.Wait()
			return stats, ctx.Err()
		default:
		}

		// A saturated pool must never stall the fetch loop: the record
		// stays PENDING untouched and comes back next cycle.
		select {
		case sem <- struct{}{}:
		default:
			stats.Skipped++
			continue
		}

		// Per-recipient rolling cap, consumed only once a worker slot is
		// held so skipped records never spend the minute budget. Deferred
		// records keep their retry budget: a deferral is not a failure.
		if !d.status.TryAcquire(rec.RecipientID) {
			<-sem
			metrics.RateLimitDeferred.Inc()
			if err := d.notifications.Reschedule(ctx, rec.ID, rec.RetryCount, start.Add(d.opts.RescheduleDelay), rec.LastError); err != nil {
				d.logger.Error("failed to defer rate-capped notification", map[string]interface{}{
					"notificationId": rec.ID,
					"error":          err.Error(),
				})
			}
			stats.Deferred++
			continue
		}

		wg.Add(1)
		metrics.DispatchInFlight.Inc()
		go func(rec *models.NotificationRecord) {
			defer func() {
				<-sem
				metrics.DispatchInFlight.Dec()
				wg.Done()
			}()

			outcome := d.deliver(ctx, rec)
			mu.Lock()
			switch outcome {
			case outcomeSent:
				stats.Sent++
			case outcomeFailed:
				stats.Failed++
			case outcomeRetried:
				stats.Retried++
			}
			mu.Unlock()
		}(rec)
	}

	wg.Wait()

	d.logger.Info("dispatch cycle finished", map[string]interface{}{
		"loaded":   stats.Loaded,
		"sent":     stats.Sent,
		"failed":   stats.Failed,
		"retried":  stats.Retried,
		"deferred": stats.Deferred,
		"skipped":  stats.Skipped,
		"duration": d.now().Sub(start).String(),
	})
	return stats, nil
}

type deliveryOutcome int

const (
	outcomeSent deliveryOutcome = iota
	outcomeFailed
	outcomeRetried
)

func (d *Dispatcher) deliver(ctx context.Context, rec *models.NotificationRecord) deliveryOutcome {
	recipient, err := d.directory.Lookup(ctx, rec.RecipientID)
	if err != nil {
		if goerrors.Is(err, store.ErrNotFound) {
			return d.fail(ctx, rec, "recipient no longer exists")
		}
		return d.retryOrFail(ctx, rec, err)
	}

	sender, err := d.registry.Get(rec.Channel)
	if err != nil {
		return d.retryOrFail(ctx, rec, err)
	}

	msg := &channels.Message{
		NotificationID: rec.ID,
		Subject:        rec.Payload.Subject,
		Body:           rec.Payload.Body,
		Category:       rec.Category,
		Severity:       rec.Severity,
		Metadata:       rec.Payload.Metadata,
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	err = sender.Send(sendCtx, recipient, msg)
	cancel()

	if err == nil {
		if markErr := d.notifications.MarkSent(ctx, rec.ID); markErr != nil {
			d.logger.Error("delivered but failed to mark sent", map[string]interface{}{
				"notificationId": rec.ID,
				"error":          markErr.Error(),
			})
		}
		metrics.DeliveriesTotal.WithLabelValues(string(rec.Channel), "sent").Inc()
		rec.Status = models.StatusSent
		d.history.Index(ctx, rec, "sent")
		return outcomeSent
	}

	// A permanent rejection will not improve with retries.
	if errors.IsPermanentDelivery(err) {
		return d.fail(ctx, rec, err.Error())
	}

	return d.retryOrFail(ctx, rec, err)
}

func (d *Dispatcher) retryOrFail(ctx context.Context, rec *models.NotificationRecord, cause error) deliveryOutcome {
	// The incremented count is the number of consecutive failed
	// attempts; at MaxRetries the record goes terminal.
	retryCount := rec.RetryCount + 1
	if retryCount >= d.opts.MaxRetries {
		return d.fail(ctx, rec, cause.Error())
	}

	// Linear backoff: each retry waits one base delay longer.
	delay := d.opts.RetryBaseDelay * time.Duration(retryCount)
	nextAttempt := d.now().Add(delay)

	if err := d.notifications.Reschedule(ctx, rec.ID, retryCount, nextAttempt, cause.Error()); err != nil {
		d.logger.Error("failed to reschedule notification", map[string]interface{}{
			"notificationId": rec.ID,
			"error":          err.Error(),
		})
		return outcomeFailed
	}

	d.logger.Warn("delivery failed, retry scheduled", map[string]interface{}{
		"notificationId": rec.ID,
		"channel":        rec.Channel,
		"retryCount":     retryCount,
		"nextAttemptAt":  nextAttempt,
		"error":          cause.Error(),
	})
	metrics.DeliveriesTotal.WithLabelValues(string(rec.Channel), "retried").Inc()
	return outcomeRetried
}

func (d *Dispatcher) fail(ctx context.Context, rec *models.NotificationRecord, reason string) deliveryOutcome {
	if err := d.notifications.MarkFailed(ctx, rec.ID, reason); err != nil {
		d.logger.Error("failed to mark notification failed", map[string]interface{}{
			"notificationId": rec.ID,
			"error":          err.Error(),
		})
	}
	metrics.DeliveriesTotal.WithLabelValues(string(rec.Channel), "failed").Inc()
	d.logger.Error("delivery permanently failed", map[string]interface{}{
		"notificationId": rec.ID,
		"channel":        rec.Channel,
		"recipientId":    rec.RecipientID,
		"reason":         reason,
	})
	rec.Status = models.StatusFailed
	d.history.Index(ctx, rec, "failed")
	return outcomeFailed
}
