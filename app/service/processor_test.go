package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/bank"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/repository"
)

type fakeAdapter struct {
	mu      sync.Mutex
	name    string
	respond func(ctx context.Context, attempt entity.PayingAttempt) (bank.Response, error)
	seen    []uuid.UUID
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) RespondToPaymentAttempt(ctx context.Context, attempt entity.PayingAttempt) (bank.Response, error) {
	a.mu.Lock()
	a.seen = append(a.seen, attempt.GatewayPaymentID)
	respond := a.respond
	a.mu.Unlock()
	return respond(ctx, attempt)
}

func (a *fakeAdapter) setRespond(respond func(ctx context.Context, attempt entity.PayingAttempt) (bank.Response, error)) {
	a.mu.Lock()
	a.respond = respond
	a.mu.Unlock()
}

func (a *fakeAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

func (a *fakeAdapter) calledWith() []uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uuid.UUID(nil), a.seen...)
}

type processorHarness struct {
	store     *repository.InMemoryEventStore
	buffer    *FailureBuffer
	processor *Processor
}

func newProcessorHarness(t *testing.T, settings ProcessorSettings) *processorHarness {
	t.Helper()
	store := repository.NewInMemoryEventStore()
	buffer := NewFailureBuffer()
	return &processorHarness{
		store:     store,
		buffer:    buffer,
		processor: NewProcessor(store, FixedTimeoutProvider(50*time.Millisecond), buffer, settings),
	}
}

func (h *processorHarness) newStoredPayment(t *testing.T) *entity.Payment {
	t.Helper()
	payment := entity.NewPayment(
		uuid.New(),
		uuid.New(),
		uuid.New(),
		entity.NewMoney("EUR", decimal.NewFromInt(100)),
		entity.NewCard("4524 4587 6598 1200", "12/29", "123"),
	)
	if err := h.store.Save(context.Background(), payment, 0); err != nil {
		t.Fatalf("save creation failed: %v", err)
	}
	return payment
}

func (h *processorHarness) waitForStatus(t *testing.T, id uuid.UUID, want entity.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		loaded, err := h.store.Load(context.Background(), id)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if loaded.Status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	loaded, _ := h.store.Load(context.Background(), id)
	t.Fatalf("payment never reached %s, still %s", want, loaded.Status)
}

func TestAttemptPayingAcceptedSettlesSuccess(t *testing.T) {
	h := newProcessorHarness(t, ProcessorSettings{})
	payment := h.newStoredPayment(t)
	adapter := bank.NewSimulator("societe_generale", bank.SimulateAccept)

	result, err := h.processor.AttemptPaying(context.Background(), adapter, payment)
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if result.Status != ResultFinished {
		t.Fatalf("expected finished result, got %s", result.Status)
	}
	if result.GatewayPaymentID != payment.ID || result.RequestID != payment.RequestID {
		t.Fatalf("result must echo payment identity, got %+v", result)
	}

	loaded, err := h.store.Load(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Status != entity.StatusSuccess {
		t.Fatalf("expected success, got %s", loaded.Status)
	}
	if loaded.Version != 2 {
		t.Fatalf("expected exactly one outcome event on top of creation, got version %d", loaded.Version)
	}
	if loaded.BankPaymentID == nil {
		t.Fatal("expected bank payment id to be recorded")
	}
}

func TestAttemptPayingRejectedSettlesRejectedByBank(t *testing.T) {
	h := newProcessorHarness(t, ProcessorSettings{})
	payment := h.newStoredPayment(t)
	adapter := bank.NewSimulator("societe_generale", bank.SimulateReject)

	result, err := h.processor.AttemptPaying(context.Background(), adapter, payment)
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if result.Status != ResultFinished {
		t.Fatalf("expected finished result, got %s", result.Status)
	}

	loaded, err := h.store.Load(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Status != entity.StatusRejectedByBank {
		t.Fatalf("expected rejected_by_bank, got %s", loaded.Status)
	}
	if loaded.BankPaymentID == nil {
		t.Fatal("rejection still binds the bank payment id")
	}
}

func TestAttemptPayingRetriesTimeoutsThenFails(t *testing.T) {
	h := newProcessorHarness(t, ProcessorSettings{
		BreakerFailureThreshold: 100,
		RetryMaxAttempts:        3,
		RetryBaseDelay:          time.Millisecond,
	})
	payment := h.newStoredPayment(t)
	adapter := &fakeAdapter{name: "societe_generale"}
	adapter.setRespond(func(context.Context, entity.PayingAttempt) (bank.Response, error) {
		return bank.Response{}, context.DeadlineExceeded
	})

	result, err := h.processor.AttemptPaying(context.Background(), adapter, payment)
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if result.Status != ResultFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if result.Reason != ReasonTimeout {
		t.Fatalf("expected reason %q, got %q", ReasonTimeout, result.Reason)
	}
	if !errors.Is(result.Cause, ErrBankCallTimedOut) {
		t.Fatalf("expected timed-out cause, got %v", result.Cause)
	}
	if got := adapter.calls(); got != 3 {
		t.Fatalf("expected 3 bank calls for 3 attempts, got %d", got)
	}

	loaded, err := h.store.Load(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Status != entity.StatusTimedOut {
		t.Fatalf("expected timed_out, got %s", loaded.Status)
	}
	if loaded.Version != 2 {
		t.Fatalf("retries must not multiply events, got version %d", loaded.Version)
	}
}

func TestAttemptPayingUnreachableBankIsNotRetried(t *testing.T) {
	h := newProcessorHarness(t, ProcessorSettings{BreakerFailureThreshold: 100})
	payment := h.newStoredPayment(t)
	adapter := &fakeAdapter{name: "societe_generale"}
	adapter.setRespond(func(context.Context, entity.PayingAttempt) (bank.Response, error) {
		return bank.Response{}, bank.ErrUnreachable
	})

	result, err := h.processor.AttemptPaying(context.Background(), adapter, payment)
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if result.Status != ResultFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if result.Reason != ReasonTimeout {
		t.Fatalf("expected reason %q, got %q", ReasonTimeout, result.Reason)
	}
	if got := adapter.calls(); got != 1 {
		t.Fatalf("unreachable bank must not be retried, got %d calls", got)
	}
}

func TestAttemptPayingDuplicateBankIDFromAdapterFails(t *testing.T) {
	h := newProcessorHarness(t, ProcessorSettings{})
	payment := h.newStoredPayment(t)
	adapter := &fakeAdapter{name: "societe_generale"}
	adapter.setRespond(func(context.Context, entity.PayingAttempt) (bank.Response, error) {
		return bank.Response{}, bank.ErrDuplicatePaymentID
	})

	result, err := h.processor.AttemptPaying(context.Background(), adapter, payment)
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if result.Status != ResultFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if result.Reason != ReasonTimeout {
		t.Fatalf("duplicate id reports the same external reason as a timeout, got %q", result.Reason)
	}
	if !errors.Is(result.Cause, bank.ErrDuplicatePaymentID) {
		t.Fatalf("cause must stay distinguishable, got %v", result.Cause)
	}
	if got := adapter.calls(); got != 1 {
		t.Fatalf("duplicate id must not be retried, got %d calls", got)
	}

	loaded, err := h.store.Load(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Status != entity.StatusFailure {
		t.Fatalf("expected failure, got %s", loaded.Status)
	}
	if loaded.BankPaymentID != nil {
		t.Fatalf("adapter fault carries no bank payment id, got %v", loaded.BankPaymentID)
	}
}

func TestAttemptPayingDetectsBankIDBoundToAnotherPayment(t *testing.T) {
	h := newProcessorHarness(t, ProcessorSettings{})
	bankID := uuid.New()

	owner := h.newStoredPayment(t)
	if err := owner.MarkSuccessful(bankID); err != nil {
		t.Fatalf("mark successful failed: %v", err)
	}
	if err := h.store.Save(context.Background(), owner, 1); err != nil {
		t.Fatalf("save outcome failed: %v", err)
	}

	payment := h.newStoredPayment(t)
	adapter := bank.NewSimulator("societe_generale", bank.SimulateAccept).WithFixedBankPaymentID(bankID)

	result, err := h.processor.AttemptPaying(context.Background(), adapter, payment)
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if result.Status != ResultFinished {
		t.Fatalf("expected finished result, got %s", result.Status)
	}

	loaded, err := h.store.Load(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Status != entity.StatusFailure {
		t.Fatalf("reused bank payment id must fail the payment, got %s", loaded.Status)
	}
}

func TestBreakerOpensBuffersAndReplaysInOrder(t *testing.T) {
	h := newProcessorHarness(t, ProcessorSettings{
		BreakerFailureThreshold: 2,
		BreakerCooldown:         100 * time.Millisecond,
		RetryMaxAttempts:        1,
	})
	adapter := &fakeAdapter{name: "societe_generale"}
	adapter.setRespond(func(context.Context, entity.PayingAttempt) (bank.Response, error) {
		return bank.Response{}, bank.ErrUnreachable
	})

	first := h.newStoredPayment(t)
	second := h.newStoredPayment(t)
	third := h.newStoredPayment(t)

	result, err := h.processor.AttemptPaying(context.Background(), adapter, first)
	if err != nil {
		t.Fatalf("first attempt failed: %v", err)
	}
	if result.Status != ResultFailed {
		t.Fatalf("expected failed result before circuit opens, got %s", result.Status)
	}

	result, err = h.processor.AttemptPaying(context.Background(), adapter, second)
	if err != nil {
		t.Fatalf("second attempt failed: %v", err)
	}
	if result.Status != ResultWillHandleLater {
		t.Fatalf("failure that opens the circuit must be deferred, got %s", result.Status)
	}

	callsBefore := adapter.calls()
	result, err = h.processor.AttemptPaying(context.Background(), adapter, third)
	if err != nil {
		t.Fatalf("third attempt failed: %v", err)
	}
	if result.Status != ResultWillHandleLater {
		t.Fatalf("attempt against open circuit must be deferred, got %s", result.Status)
	}
	if adapter.calls() != callsBefore {
		t.Fatal("open circuit must not let the attempt reach the bank")
	}
	if h.buffer.Len() != 2 {
		t.Fatalf("expected both deferred attempts buffered, got %d", h.buffer.Len())
	}

	loaded, err := h.store.Load(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Status != entity.StatusWillHandleLater {
		t.Fatalf("deferred payment must be persisted as will_handle_later, got %s", loaded.Status)
	}

	adapter.setRespond(func(_ context.Context, attempt entity.PayingAttempt) (bank.Response, error) {
		return bank.Responded(attempt.GatewayPaymentID, uuid.New(), true), nil
	})

	h.waitForStatus(t, second.ID, entity.StatusSuccess)
	h.waitForStatus(t, third.ID, entity.StatusSuccess)

	if h.buffer.Len() != 0 {
		t.Fatalf("expected buffer drained after replay, got %d", h.buffer.Len())
	}

	replayed := adapter.calledWith()[callsBefore:]
	if len(replayed) != 2 {
		t.Fatalf("expected each buffered attempt replayed exactly once, got %d calls", len(replayed))
	}
	if replayed[0] != second.ID || replayed[1] != third.ID {
		t.Fatalf("expected replay in buffering order, got %v", replayed)
	}
}

func TestFaultHookAbortsBeforeAnythingIsPersisted(t *testing.T) {
	h := newProcessorHarness(t, ProcessorSettings{})
	payment := h.newStoredPayment(t)
	adapter := bank.NewSimulator("societe_generale", bank.SimulateAccept)

	injected := errors.New("storage exploded")
	h.processor.WithFaultHook(func() error { return injected })

	_, err := h.processor.AttemptPaying(context.Background(), adapter, payment)
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected fault to surface, got %v", err)
	}

	loaded, loadErr := h.store.Load(context.Background(), payment.ID)
	if loadErr != nil {
		t.Fatalf("load failed: %v", loadErr)
	}
	if loaded.Status != entity.StatusPending {
		t.Fatalf("aborted strategy must not settle the payment, got %s", loaded.Status)
	}
	if loaded.Version != 1 {
		t.Fatalf("aborted strategy must not persist events, got version %d", loaded.Version)
	}
}

func TestBankSilenceIsBoundedByTimeout(t *testing.T) {
	store := repository.NewInMemoryEventStore()
	buffer := NewFailureBuffer()
	processor := NewProcessor(store, FixedTimeoutProvider(10*time.Millisecond), buffer, ProcessorSettings{
		BreakerFailureThreshold: 100,
		RetryMaxAttempts:        2,
		RetryBaseDelay:          time.Millisecond,
	})

	payment := entity.NewPayment(
		uuid.New(),
		uuid.New(),
		uuid.New(),
		entity.NewMoney("EUR", decimal.NewFromInt(100)),
		entity.NewCard("4524 4587 6598 1200", "12/29", "123"),
	)
	if err := store.Save(context.Background(), payment, 0); err != nil {
		t.Fatalf("save creation failed: %v", err)
	}

	adapter := bank.NewSimulator("societe_generale", bank.SimulateSilence)

	start := time.Now()
	result, err := processor.AttemptPaying(context.Background(), adapter, payment)
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("silent bank must be cut off by the call timeout, took %s", elapsed)
	}
	if result.Status != ResultFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if !errors.Is(result.Cause, ErrBankCallTimedOut) {
		t.Fatalf("expected timed-out cause, got %v", result.Cause)
	}

	loaded, err := store.Load(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Status != entity.StatusTimedOut {
		t.Fatalf("expected timed_out, got %s", loaded.Status)
	}
}
