package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/bank"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/factory"
)

type eventStore interface {
	Save(ctx context.Context, payment *entity.Payment, expectedVersion int) error
	Load(ctx context.Context, id uuid.UUID) (*entity.Payment, error)
	BankPaymentIDInUse(ctx context.Context, bankPaymentID, ownPaymentID uuid.UUID) (bool, error)
}

type timeoutProvider interface {
	Timeout() time.Duration
}

// ProcessorSettings tune the resilience wrapping around the bank call.
type ProcessorSettings struct {
	// BreakerFailureThreshold is how many consecutive qualifying failures
	// open the circuit.
	BreakerFailureThreshold uint32
	// BreakerCooldown is how long the circuit stays open before buffered
	// attempts are replayed and new traffic is admitted again.
	BreakerCooldown time.Duration
	// RetryMaxAttempts bounds how often one attempt calls the bank.
	RetryMaxAttempts int
	// RetryBaseDelay scales the exponential backoff between retries.
	RetryBaseDelay time.Duration
}

func (s ProcessorSettings) withDefaults() ProcessorSettings {
	if s.BreakerFailureThreshold == 0 {
		s.BreakerFailureThreshold = 2
	}
	if s.BreakerCooldown <= 0 {
		s.BreakerCooldown = 20 * time.Millisecond
	}
	if s.RetryMaxAttempts <= 0 {
		s.RetryMaxAttempts = 3
	}
	if s.RetryBaseDelay <= 0 {
		s.RetryBaseDelay = time.Millisecond
	}
	return s
}

// Processor orchestrates one paying attempt: it projects the payment into a
// bank-facing message, bounds the bank call with a timeout, retries
// cancellation-class failures with exponential backoff, trips a process-wide
// circuit breaker on repeated failures, and hands the bank's answer to the
// matching response strategy. Every terminal branch persists exactly one new
// event through the event store.
type Processor struct {
	store    eventStore
	timeouts timeoutProvider
	buffer   *FailureBuffer
	settings ProcessorSettings
	breaker  *gobreaker.CircuitBreaker
	logger   logrus.FieldLogger

	// faultHook, when set, is forwarded to response strategies.
	faultHook FaultHook
}

func NewProcessor(store eventStore, timeouts timeoutProvider, buffer *FailureBuffer, settings ProcessorSettings) *Processor {
	p := &Processor{
		store:    store,
		timeouts: timeouts,
		buffer:   buffer,
		settings: settings.withDefaults(),
		logger:   factory.NewModuleLogger("payment-processor"),
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "acquiring-bank",
		MaxRequests: 1,
		Timeout:     p.settings.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.settings.BreakerFailureThreshold
		},
		// Only availability faults count against the circuit. A duplicated
		// bank payment id is a data-integrity fault, not a sick dependency.
		IsSuccessful: func(err error) bool {
			return err == nil || !isAvailabilityFault(err)
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				p.logger.WithField("cooldown", p.settings.BreakerCooldown.String()).
					Warn("Bank circuit opened, buffering new attempts")
				time.AfterFunc(p.settings.BreakerCooldown, p.replayBuffered)
			}
		},
	})

	return p
}

// WithFaultHook installs a strategy-level fault injection hook.
func (p *Processor) WithFaultHook(hook FaultHook) *Processor {
	p.faultHook = hook
	return p
}

// AttemptPaying runs a single attempt against the given bank adapter. The
// returned error covers contract violations and persistence conflicts; bank
// faults are folded into the PaymentResult.
func (p *Processor) AttemptPaying(ctx context.Context, adapter bank.Adapter, payment *entity.Payment) (PaymentResult, error) {
	attempt := payment.ToBankAttempt()

	raw, err := p.breaker.Execute(func() (interface{}, error) {
		return p.callBankWithRetry(ctx, adapter, attempt)
	})
	if err == nil {
		response := raw.(bank.Response)
		strategy, buildErr := buildStrategy(response, p.store, factory.NewModuleLogger("bank-response"))
		if buildErr != nil {
			return PaymentResult{}, buildErr
		}
		if handleErr := strategy.Handle(ctx, payment, p.faultHook); handleErr != nil {
			return PaymentResult{}, handleErr
		}
		return finishedResult(attempt), nil
	}

	if p.circuitRejected(err) {
		return p.deferForLater(ctx, adapter, attempt, payment)
	}

	switch {
	case errors.Is(err, ErrBankCallTimedOut), errors.Is(err, bank.ErrUnreachable):
		p.logger.WithFields(logrus.Fields{
			"gateway_payment_id": attempt.GatewayPaymentID,
			"request_id":         attempt.RequestID,
		}).WithError(err).Error("Payment attempt exhausted bank retries")

		expected := payment.CommittedVersion()
		if applyErr := payment.Timeout(); applyErr != nil {
			return PaymentResult{}, applyErr
		}
		if saveErr := p.store.Save(ctx, payment, expected); saveErr != nil {
			return PaymentResult{}, saveErr
		}
		return failedResult(attempt, err, ReasonTimeout), nil

	case errors.Is(err, bank.ErrDuplicatePaymentID):
		p.logger.WithFields(logrus.Fields{
			"gateway_payment_id": attempt.GatewayPaymentID,
			"request_id":         attempt.RequestID,
		}).Error("Bank returned a duplicated payment id")

		expected := payment.CommittedVersion()
		if applyErr := payment.HandleBankPaymentIDDuplicate(uuid.Nil); applyErr != nil {
			return PaymentResult{}, applyErr
		}
		if saveErr := p.store.Save(ctx, payment, expected); saveErr != nil {
			return PaymentResult{}, saveErr
		}
		return failedResult(attempt, err, ReasonTimeout), nil

	default:
		return PaymentResult{}, err
	}
}

// circuitRejected reports whether the attempt was (or should be) parked
// because of the breaker: either the circuit refused the call outright, or
// this very failure is the one that tripped it open.
func (p *Processor) circuitRejected(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	return isAvailabilityFault(err) && p.breaker.State() == gobreaker.StateOpen
}

// deferForLater records the deferral so it stays visible in storage, then
// parks the attempt in the failure buffer until the circuit resets.
func (p *Processor) deferForLater(ctx context.Context, adapter bank.Adapter, attempt entity.PayingAttempt, payment *entity.Payment) (PaymentResult, error) {
	expected := payment.CommittedVersion()
	if err := payment.DeferForLater(); err != nil {
		return PaymentResult{}, err
	}
	if err := p.store.Save(ctx, payment, expected); err != nil {
		return PaymentResult{}, err
	}

	p.buffer.Buffer(adapter, attempt, payment)
	p.logger.WithFields(logrus.Fields{
		"gateway_payment_id": attempt.GatewayPaymentID,
		"request_id":         attempt.RequestID,
		"bank":               adapter.Name(),
	}).Info("Payment attempt buffered until bank circuit resets")

	return willHandleLaterResult(attempt), nil
}

// callBankWithRetry performs the timeout-bounded bank call, retrying
// cancellation-class failures with exponential backoff. Unreachable-bank and
// duplicate-id faults are permanent at this layer.
func (p *Processor) callBankWithRetry(ctx context.Context, adapter bank.Adapter, attempt entity.PayingAttempt) (bank.Response, error) {
	var response bank.Response

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * p.settings.RetryBaseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Timeout())
		defer cancel()

		resp, err := adapter.RespondToPaymentAttempt(callCtx, attempt)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return ErrBankCallTimedOut
			}
			return backoff.Permanent(err)
		}
		response = resp
		return nil
	}

	maxRetries := uint64(p.settings.RetryMaxAttempts - 1)
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
	if err != nil {
		return bank.Response{}, err
	}
	return response, nil
}

// replayBuffered drains the failure buffer once the cool-down has elapsed.
// It runs detached from the request that tripped the breaker; its failures
// are logged inside ReplayAll and never crash a request path.
func (p *Processor) replayBuffered() {
	p.buffer.ReplayAll(context.Background(), p)
}

func isAvailabilityFault(err error) bool {
	return errors.Is(err, ErrBankCallTimedOut) || errors.Is(err, bank.ErrUnreachable)
}
