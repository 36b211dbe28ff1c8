package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/factory"
)

const defaultBatchSize = int32(100)

type deferredStore interface {
	eventStore
	ListDeferred(ctx context.Context, limit int32) ([]uuid.UUID, error)
}

// DeferredReplayJob re-attempts payments whose latest recorded event deferred
// them. The in-process failure buffer already replays deferrals from a live
// breaker cycle; this job picks up deferrals left behind by a process that
// went down with a non-empty buffer.
type DeferredReplayJob struct {
	store     deferredStore
	processor *Processor
	adapters  adapterResolver
	batchSize int32
	logger    logrus.FieldLogger
}

func NewDeferredReplayJob(store deferredStore, processor *Processor, adapters adapterResolver, batchSize int32) *DeferredReplayJob {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &DeferredReplayJob{
		store:     store,
		processor: processor,
		adapters:  adapters,
		batchSize: batchSize,
		logger:    factory.NewModuleLogger("deferred-replay"),
	}
}

// RunBatch replays one batch of deferred payments, oldest deferral first.
// Per-payment failures are collected, not fatal for the batch.
func (j *DeferredReplayJob) RunBatch(ctx context.Context) error {
	ids, err := j.store.ListDeferred(ctx, j.batchSize)
	if err != nil {
		return err
	}

	var firstErr error
	for _, id := range ids {
		entry := j.logger.WithField("gateway_payment_id", id)

		payment, err := j.store.Load(ctx, id)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			entry.WithError(err).Error("Loading deferred payment failed")
			continue
		}

		adapter, err := j.adapters.FindAdapter(payment.MerchantID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			entry.WithError(err).Error("No bank adapter for deferred payment")
			continue
		}

		result, err := j.processor.AttemptPaying(ctx, adapter, payment)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			entry.WithError(err).Error("Replaying deferred payment failed")
			continue
		}
		entry.WithField("result", string(result.Status)).Info("Replayed deferred payment")
	}

	return firstErr
}

func keepFirstErr(current, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
