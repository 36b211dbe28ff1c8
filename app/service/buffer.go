package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/bank"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/factory"
)

type bufferedAttempt struct {
	adapter bank.Adapter
	attempt entity.PayingAttempt
	payment *entity.Payment
}

type attemptReplayer interface {
	AttemptPaying(ctx context.Context, adapter bank.Adapter, payment *entity.Payment) (PaymentResult, error)
}

// FailureBuffer holds paying attempts that could not be dispatched while the
// bank circuit is open. One buffer is constructed per process and shared by
// every request-handling task; Buffer never blocks beyond its mutex.
type FailureBuffer struct {
	mu     sync.Mutex
	queue  []bufferedAttempt
	logger logrus.FieldLogger
}

func NewFailureBuffer() *FailureBuffer {
	return &FailureBuffer{logger: factory.NewModuleLogger("failure-buffer")}
}

// Buffer appends the attempt to the FIFO queue.
func (b *FailureBuffer) Buffer(adapter bank.Adapter, attempt entity.PayingAttempt, payment *entity.Payment) {
	b.mu.Lock()
	b.queue = append(b.queue, bufferedAttempt{adapter: adapter, attempt: attempt, payment: payment})
	b.mu.Unlock()
}

// Len reports how many attempts are currently queued.
func (b *FailureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// ReplayAll drains the attempts queued so far, oldest first, and re-submits
// each through the replayer. Attempts buffered while a replay is running are
// left for the next breaker cycle. Replay failures are logged, never
// propagated: replay runs detached from any request path.
func (b *FailureBuffer) ReplayAll(ctx context.Context, replayer attemptReplayer) {
	batch := b.drain()
	for _, item := range batch {
		entry := b.logger.WithFields(logrus.Fields{
			"gateway_payment_id": item.attempt.GatewayPaymentID,
			"request_id":         item.attempt.RequestID,
			"bank":               item.adapter.Name(),
		})

		result, err := replayer.AttemptPaying(ctx, item.adapter, item.payment)
		if err != nil {
			entry.WithError(err).Error("Replay of buffered payment attempt failed")
			continue
		}
		entry.WithField("result", string(result.Status)).Info("Replayed buffered payment attempt")
	}
}

func (b *FailureBuffer) drain() []bufferedAttempt {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.queue
	b.queue = nil
	return batch
}
