package entity

import "github.com/google/uuid"

// PayingAttempt is the immutable projection of a payment handed to a bank
// adapter. It is built right before dispatch and never persisted on its own.
type PayingAttempt struct {
	GatewayPaymentID uuid.UUID
	RequestID        uuid.UUID
	MerchantID       uuid.UUID
	Amount           Money
	Card             Card
}

// ToBankAttempt projects the aggregate into the bank-facing message.
func (p *Payment) ToBankAttempt() PayingAttempt {
	return PayingAttempt{
		GatewayPaymentID: p.ID,
		RequestID:        p.RequestID,
		MerchantID:       p.MerchantID,
		Amount:           p.Amount,
		Card:             p.Card,
	}
}
