package entity

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	EventPaymentCreated          = "payment_created"
	EventPaymentMarkedSuccessful = "payment_marked_successful"
	EventPaymentMarkedRejected   = "payment_marked_rejected"
	EventPaymentTimedOut         = "payment_timed_out"
	EventBankPaymentIDDuplicated = "bank_payment_id_duplicated"
	EventPaymentDeferred         = "payment_deferred"
)

// Event is one applied change in a payment's history. The current aggregate
// state is always a fold over the ordered event sequence.
type Event interface {
	EventType() string
	apply(p *Payment)
}

type PaymentCreated struct {
	GatewayPaymentID uuid.UUID `json:"gateway_payment_id"`
	RequestID        uuid.UUID `json:"request_id"`
	MerchantID       uuid.UUID `json:"merchant_id"`
	AmountCurrency   string    `json:"amount_currency"`
	AmountValue      string    `json:"amount_value"`
	CardNumber       string    `json:"card_number"`
	CardExpiry       string    `json:"card_expiry"`
	CardCVV          string    `json:"card_cvv"`
}

func (e PaymentCreated) EventType() string { return EventPaymentCreated }

type PaymentMarkedSuccessful struct {
	BankPaymentID uuid.UUID `json:"bank_payment_id"`
}

func (e PaymentMarkedSuccessful) EventType() string { return EventPaymentMarkedSuccessful }

type PaymentMarkedRejected struct {
	BankPaymentID uuid.UUID `json:"bank_payment_id"`
}

func (e PaymentMarkedRejected) EventType() string { return EventPaymentMarkedRejected }

type PaymentTimedOut struct{}

func (e PaymentTimedOut) EventType() string { return EventPaymentTimedOut }

type BankPaymentIDDuplicated struct {
	BankPaymentID uuid.UUID `json:"bank_payment_id"`
}

func (e BankPaymentIDDuplicated) EventType() string { return EventBankPaymentIDDuplicated }

type PaymentDeferred struct{}

func (e PaymentDeferred) EventType() string { return EventPaymentDeferred }

// DecodeEvent rebuilds a domain event from its persisted type tag and payload.
func DecodeEvent(eventType string, payload []byte) (Event, error) {
	switch eventType {
	case EventPaymentCreated:
		var e PaymentCreated
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventPaymentMarkedSuccessful:
		var e PaymentMarkedSuccessful
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventPaymentMarkedRejected:
		var e PaymentMarkedRejected
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventPaymentTimedOut:
		return PaymentTimedOut{}, nil
	case EventBankPaymentIDDuplicated:
		var e BankPaymentIDDuplicated
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventPaymentDeferred:
		return PaymentDeferred{}, nil
	default:
		return nil, fmt.Errorf("unknown payment event type %q", eventType)
	}
}

// EncodeEvent serializes an event payload for storage.
func EncodeEvent(event Event) ([]byte, error) {
	return json.Marshal(event)
}

// EventBankPaymentID extracts the acquiring-bank payment id carried by an
// event, when it carries a known one.
func EventBankPaymentID(event Event) (uuid.UUID, bool) {
	var id uuid.UUID
	switch e := event.(type) {
	case PaymentMarkedSuccessful:
		id = e.BankPaymentID
	case PaymentMarkedRejected:
		id = e.BankPaymentID
	case BankPaymentIDDuplicated:
		id = e.BankPaymentID
	default:
		return uuid.Nil, false
	}
	if id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
