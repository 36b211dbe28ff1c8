package entity

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newPendingPayment(t *testing.T) *Payment {
	t.Helper()
	amount := NewMoney("EUR", decimal.NewFromFloat(157.87))
	card := NewCard("4524 4587 6598 1200", "12/29", "123")
	return NewPayment(uuid.New(), uuid.New(), uuid.New(), amount, card)
}

func TestNewPaymentStartsPendingAtVersionOne(t *testing.T) {
	payment := newPendingPayment(t)

	if payment.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", payment.Status)
	}
	if payment.Version != 1 {
		t.Fatalf("expected version 1 after creation, got %d", payment.Version)
	}
	if payment.CommittedVersion() != 0 {
		t.Fatalf("expected committed version 0 before save, got %d", payment.CommittedVersion())
	}
	events := payment.UncommittedEvents()
	if len(events) != 1 {
		t.Fatalf("expected one uncommitted event, got %d", len(events))
	}
	if events[0].EventType() != EventPaymentCreated {
		t.Fatalf("expected %s as first event, got %s", EventPaymentCreated, events[0].EventType())
	}
}

func TestMarkSuccessfulBindsBankPaymentID(t *testing.T) {
	payment := newPendingPayment(t)
	bankID := uuid.New()

	if err := payment.MarkSuccessful(bankID); err != nil {
		t.Fatalf("mark successful failed: %v", err)
	}
	if payment.Status != StatusSuccess {
		t.Fatalf("expected success status, got %s", payment.Status)
	}
	if payment.Version != 2 {
		t.Fatalf("expected version 2 after outcome, got %d", payment.Version)
	}
	if payment.BankPaymentID == nil || *payment.BankPaymentID != bankID {
		t.Fatalf("expected bank payment id %s to be bound, got %v", bankID, payment.BankPaymentID)
	}
}

func TestMarkRejectedStillRecordsBankPaymentID(t *testing.T) {
	payment := newPendingPayment(t)
	bankID := uuid.New()

	if err := payment.MarkRejected(bankID); err != nil {
		t.Fatalf("mark rejected failed: %v", err)
	}
	if payment.Status != StatusRejectedByBank {
		t.Fatalf("expected rejected_by_bank status, got %s", payment.Status)
	}
	if payment.BankPaymentID == nil || *payment.BankPaymentID != bankID {
		t.Fatalf("expected bank payment id to be recorded, got %v", payment.BankPaymentID)
	}
}

func TestTimeoutLeavesBankPaymentIDUnset(t *testing.T) {
	payment := newPendingPayment(t)

	if err := payment.Timeout(); err != nil {
		t.Fatalf("timeout failed: %v", err)
	}
	if payment.Status != StatusTimedOut {
		t.Fatalf("expected timed_out status, got %s", payment.Status)
	}
	if payment.BankPaymentID != nil {
		t.Fatalf("expected no bank payment id on timeout, got %v", payment.BankPaymentID)
	}
}

func TestTerminalStatusesRejectFurtherOutcomes(t *testing.T) {
	mutations := map[string]func(*Payment) error{
		"mark_successful": func(p *Payment) error { return p.MarkSuccessful(uuid.New()) },
		"mark_rejected":   func(p *Payment) error { return p.MarkRejected(uuid.New()) },
		"timeout":         func(p *Payment) error { return p.Timeout() },
		"duplicate":       func(p *Payment) error { return p.HandleBankPaymentIDDuplicate(uuid.New()) },
		"defer":           func(p *Payment) error { return p.DeferForLater() },
	}
	terminal := []func(*Payment) error{
		func(p *Payment) error { return p.MarkSuccessful(uuid.New()) },
		func(p *Payment) error { return p.MarkRejected(uuid.New()) },
		func(p *Payment) error { return p.Timeout() },
		func(p *Payment) error { return p.HandleBankPaymentIDDuplicate(uuid.New()) },
	}

	for _, settle := range terminal {
		for name, mutate := range mutations {
			payment := newPendingPayment(t)
			if err := settle(payment); err != nil {
				t.Fatalf("settling mutation failed: %v", err)
			}
			versionBefore := payment.Version
			err := mutate(payment)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected invalid transition for %s on %s payment, got %v", name, payment.Status, err)
			}
			if payment.Version != versionBefore {
				t.Fatalf("rejected mutation must not advance version, got %d want %d", payment.Version, versionBefore)
			}
		}
	}
}

func TestHandleBankPaymentIDDuplicateBindsOnlyKnownIDs(t *testing.T) {
	payment := newPendingPayment(t)
	bankID := uuid.New()
	if err := payment.HandleBankPaymentIDDuplicate(bankID); err != nil {
		t.Fatalf("duplicate handling failed: %v", err)
	}
	if payment.Status != StatusFailure {
		t.Fatalf("expected failure status, got %s", payment.Status)
	}
	if payment.BankPaymentID == nil || *payment.BankPaymentID != bankID {
		t.Fatalf("expected duplicated bank payment id bound, got %v", payment.BankPaymentID)
	}

	unknown := newPendingPayment(t)
	if err := unknown.HandleBankPaymentIDDuplicate(uuid.Nil); err != nil {
		t.Fatalf("duplicate handling failed: %v", err)
	}
	if unknown.Status != StatusFailure {
		t.Fatalf("expected failure status, got %s", unknown.Status)
	}
	if unknown.BankPaymentID != nil {
		t.Fatalf("unknown bank payment id must stay unbound, got %v", unknown.BankPaymentID)
	}
}

func TestEventBankPaymentIDSkipsUnknownIDs(t *testing.T) {
	bankID := uuid.New()
	if id, ok := EventBankPaymentID(PaymentMarkedSuccessful{BankPaymentID: bankID}); !ok || id != bankID {
		t.Fatalf("expected carried id %s, got %s ok=%v", bankID, id, ok)
	}
	if _, ok := EventBankPaymentID(BankPaymentIDDuplicated{}); ok {
		t.Fatal("expected no carried id for a nil bank payment id")
	}
	if _, ok := EventBankPaymentID(PaymentTimedOut{}); ok {
		t.Fatal("expected no carried id for a timeout event")
	}
}

func TestDeferredPaymentStaysRetryEligible(t *testing.T) {
	payment := newPendingPayment(t)
	if err := payment.DeferForLater(); err != nil {
		t.Fatalf("defer failed: %v", err)
	}
	if payment.Status != StatusWillHandleLater {
		t.Fatalf("expected will_handle_later status, got %s", payment.Status)
	}

	if err := payment.MarkSuccessful(uuid.New()); err != nil {
		t.Fatalf("deferred payment must admit a later outcome: %v", err)
	}
	if payment.Status != StatusSuccess {
		t.Fatalf("expected success after replayed attempt, got %s", payment.Status)
	}
}

func TestPaymentFromHistoryRestoresState(t *testing.T) {
	original := newPendingPayment(t)
	bankID := uuid.New()
	if err := original.MarkSuccessful(bankID); err != nil {
		t.Fatalf("mark successful failed: %v", err)
	}

	restored, err := PaymentFromHistory(original.UncommittedEvents())
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if restored.ID != original.ID {
		t.Fatalf("expected id %s, got %s", original.ID, restored.ID)
	}
	if restored.Status != StatusSuccess {
		t.Fatalf("expected success after replay, got %s", restored.Status)
	}
	if restored.Version != 2 {
		t.Fatalf("expected version 2 after replay, got %d", restored.Version)
	}
	if restored.BankPaymentID == nil || *restored.BankPaymentID != bankID {
		t.Fatalf("expected bank payment id restored, got %v", restored.BankPaymentID)
	}
	if !restored.Amount.Equal(original.Amount) {
		t.Fatalf("expected amount %s restored, got %s", original.Amount, restored.Amount)
	}
	if len(restored.UncommittedEvents()) != 0 {
		t.Fatalf("replayed history must not leave uncommitted events, got %d", len(restored.UncommittedEvents()))
	}
}

func TestPaymentFromHistoryRejectsEmptyAndUnrootedStreams(t *testing.T) {
	if _, err := PaymentFromHistory(nil); err == nil {
		t.Fatal("expected error for empty history")
	}
	if _, err := PaymentFromHistory([]Event{PaymentTimedOut{}}); err == nil {
		t.Fatal("expected error for history not starting with creation")
	}
}

func TestMarkCommittedClearsUncommittedEvents(t *testing.T) {
	payment := newPendingPayment(t)
	payment.MarkCommitted()

	if payment.CommittedVersion() != 1 {
		t.Fatalf("expected committed version 1, got %d", payment.CommittedVersion())
	}
	if err := payment.MarkRejected(uuid.New()); err != nil {
		t.Fatalf("mark rejected failed: %v", err)
	}
	if got := len(payment.UncommittedEvents()); got != 1 {
		t.Fatalf("expected only the new event to be uncommitted, got %d", got)
	}
	if payment.CommittedVersion() != 1 {
		t.Fatalf("committed version must not move before save, got %d", payment.CommittedVersion())
	}
}

func TestEncodeDecodeEventRoundTrip(t *testing.T) {
	payment := newPendingPayment(t)
	created := payment.UncommittedEvents()[0]

	payload, err := EncodeEvent(created)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeEvent(created.EventType(), payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	restored, err := PaymentFromHistory([]Event{decoded})
	if err != nil {
		t.Fatalf("replay of decoded event failed: %v", err)
	}
	if restored.ID != payment.ID {
		t.Fatalf("expected id %s after round trip, got %s", payment.ID, restored.ID)
	}
}

func TestDecodeEventUnknownType(t *testing.T) {
	if _, err := DecodeEvent("payment_vanished", []byte("{}")); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
