package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/confirmation"
	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/internal/payments"
	"github.com/infest-events/registration/internal/registrations"
	"github.com/infest-events/registration/pkg/queue"
)

// Jobs is the queue the processor drains.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, cause error) error
}

// Lookup loads a registration by id.
type Lookup interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
}

// Stats counts processed jobs.
type Stats struct {
	Sent    atomic.Int64
	Skipped atomic.Int64
	Failed  atomic.Int64
}

// ConfirmationProcessor retries confirmation emails whose first send failed.
type ConfirmationProcessor struct {
	store      Lookup
	dispatcher payments.Dispatcher
	jobs       Jobs
	backoff    time.Duration
	stats      Stats
	logger     *zap.Logger
}

// NewConfirmationProcessor creates a confirmation retry processor.
func NewConfirmationProcessor(store Lookup, dispatcher payments.Dispatcher, jobs Jobs, logger *zap.Logger) *ConfirmationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationProcessor{store: store, dispatcher: dispatcher, jobs: jobs, backoff: queue.RetryBackoff, logger: logger}
}

// Stats returns the live counters.
func (p *ConfirmationProcessor) Stats() *Stats {
	return &p.stats
}

// Process executes one confirmation job. A nil return means the job is done,
// including when there is nothing left to send.
func (p *ConfirmationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeConfirmation {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ConfirmationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	reg, err := p.store.FindByID(ctx, payload.RegistrationID)
	if errors.Is(err, registrations.ErrNotFound) {
		p.logger.Warn("confirmation job for unknown registration", zap.String("registration_id", payload.RegistrationID))
		p.stats.Skipped.Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("load registration: %w", err)
	}
	if !reg.PaymentStatus.IsPaid() || reg.ConfirmationSent {
		p.stats.Skipped.Inc()
		return nil
	}

	sent, err := p.dispatcher.Dispatch(ctx, reg)
	switch {
	case errors.Is(err, confirmation.ErrAlreadySent):
		p.stats.Skipped.Inc()
		return nil
	case errors.Is(err, confirmation.ErrMailDisabled):
		p.logger.Warn("mail disabled, dropping confirmation job", zap.String("registration_id", reg.ID))
		p.stats.Skipped.Inc()
		return nil
	case err != nil:
		return err
	}
	if sent {
		p.stats.Sent.Inc()
		p.logger.Info("confirmation retry delivered", zap.String("registration_id", reg.ID), zap.Int("attempt", job.Attempt+1))
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ConfirmationProcessor) Run(ctx context.Context) {
	p.logger.Info("confirmation worker started")
	for {
		if ctx.Err() != nil {
			p.logger.Info("confirmation worker stopping")
			return
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.stats.Failed.Inc()
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.jobs.Retry(context.WithoutCancel(ctx), job, err); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ConfirmationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
