package entity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusSuccess         Status = "success"
	StatusRejectedByBank  Status = "rejected_by_bank"
	StatusFailure         Status = "failure"
	StatusTimedOut        Status = "timed_out"
	StatusWillHandleLater Status = "will_handle_later"
)

// ErrInvalidTransition signals an event applied against a state that does not
// admit it. This is a programming-contract violation, never swallowed.
var ErrInvalidTransition = errors.New("invalid payment state transition")

// Payment is the event-sourced aggregate for one card payment. State is only
// mutated by applying events; Version counts applied events.
type Payment struct {
	ID         uuid.UUID
	RequestID  uuid.UUID
	MerchantID uuid.UUID
	Amount     Money
	Card       Card

	Status        Status
	Version       int
	BankPaymentID *uuid.UUID

	uncommitted []Event
}

// NewPayment starts a payment's history with its creation event.
func NewPayment(gatewayPaymentID, requestID, merchantID uuid.UUID, amount Money, card Card) *Payment {
	p := &Payment{}
	p.record(PaymentCreated{
		GatewayPaymentID: gatewayPaymentID,
		RequestID:        requestID,
		MerchantID:       merchantID,
		AmountCurrency:   amount.Currency,
		AmountValue:      amount.Value.String(),
		CardNumber:       card.Number,
		CardExpiry:       card.Expiry,
		CardCVV:          card.CVV,
	})
	return p
}

// PaymentFromHistory folds an ordered event sequence back into the aggregate.
func PaymentFromHistory(events []Event) (*Payment, error) {
	if len(events) == 0 {
		return nil, errors.New("payment history is empty")
	}
	p := &Payment{}
	for i, event := range events {
		if i == 0 {
			if _, ok := event.(PaymentCreated); !ok {
				return nil, fmt.Errorf("payment history must start with %s, got %s", EventPaymentCreated, event.EventType())
			}
		}
		event.apply(p)
		p.Version++
	}
	return p, nil
}

// MarkSuccessful binds the bank's payment id and settles the attempt.
func (p *Payment) MarkSuccessful(bankPaymentID uuid.UUID) error {
	if !p.attemptOpen() {
		return fmt.Errorf("%w: cannot mark %s payment successful", ErrInvalidTransition, p.Status)
	}
	p.record(PaymentMarkedSuccessful{BankPaymentID: bankPaymentID})
	return nil
}

// MarkRejected records the bank's refusal together with its payment id.
func (p *Payment) MarkRejected(bankPaymentID uuid.UUID) error {
	if !p.attemptOpen() {
		return fmt.Errorf("%w: cannot mark %s payment rejected", ErrInvalidTransition, p.Status)
	}
	p.record(PaymentMarkedRejected{BankPaymentID: bankPaymentID})
	return nil
}

// Timeout records that the bank never produced a usable answer.
func (p *Payment) Timeout() error {
	if !p.attemptOpen() {
		return fmt.Errorf("%w: cannot time out %s payment", ErrInvalidTransition, p.Status)
	}
	p.record(PaymentTimedOut{})
	return nil
}

// HandleBankPaymentIDDuplicate records that the bank returned a payment id
// already bound to another payment. The attempt fails and must not be
// retried; a blind retry could double-charge.
func (p *Payment) HandleBankPaymentIDDuplicate(bankPaymentID uuid.UUID) error {
	if !p.attemptOpen() {
		return fmt.Errorf("%w: cannot fail %s payment on duplicated bank id", ErrInvalidTransition, p.Status)
	}
	p.record(BankPaymentIDDuplicated{BankPaymentID: bankPaymentID})
	return nil
}

// DeferForLater parks the attempt while the bank circuit is open.
func (p *Payment) DeferForLater() error {
	if !p.attemptOpen() {
		return fmt.Errorf("%w: cannot defer %s payment", ErrInvalidTransition, p.Status)
	}
	p.record(PaymentDeferred{})
	return nil
}

// attemptOpen reports whether the payment still admits an attempt outcome.
// WillHandleLater stays retry-eligible; every other non-pending status is
// terminal.
func (p *Payment) attemptOpen() bool {
	return p.Status == StatusPending || p.Status == StatusWillHandleLater
}

// UncommittedEvents returns the events applied since the last persistence.
func (p *Payment) UncommittedEvents() []Event {
	return p.uncommitted
}

// CommittedVersion is the version the store is expected to hold before the
// uncommitted events are appended.
func (p *Payment) CommittedVersion() int {
	return p.Version - len(p.uncommitted)
}

// MarkCommitted is called by the repository once a save has been accepted.
func (p *Payment) MarkCommitted() {
	p.uncommitted = nil
}

func (p *Payment) record(event Event) {
	event.apply(p)
	p.Version++
	p.uncommitted = append(p.uncommitted, event)
}

func (e PaymentCreated) apply(p *Payment) {
	value, err := decimal.NewFromString(e.AmountValue)
	if err != nil {
		value = decimal.Zero
	}
	p.ID = e.GatewayPaymentID
	p.RequestID = e.RequestID
	p.MerchantID = e.MerchantID
	p.Amount = Money{Currency: e.AmountCurrency, Value: value}
	p.Card = Card{Number: e.CardNumber, Expiry: e.CardExpiry, CVV: e.CardCVV}
	p.Status = StatusPending
}

func (e PaymentMarkedSuccessful) apply(p *Payment) {
	id := e.BankPaymentID
	p.BankPaymentID = &id
	p.Status = StatusSuccess
}

func (e PaymentMarkedRejected) apply(p *Payment) {
	id := e.BankPaymentID
	p.BankPaymentID = &id
	p.Status = StatusRejectedByBank
}

func (e PaymentTimedOut) apply(p *Payment) {
	p.Status = StatusTimedOut
}

func (e BankPaymentIDDuplicated) apply(p *Payment) {
	// The adapter-level fault carries no id; only a known one is bound.
	if e.BankPaymentID != uuid.Nil {
		id := e.BankPaymentID
		p.BankPaymentID = &id
	}
	p.Status = StatusFailure
}

func (e PaymentDeferred) apply(p *Payment) {
	p.Status = StatusWillHandleLater
}
