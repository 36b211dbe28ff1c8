package mapper

import (
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/types"
)

// PaymentToResponse projects the aggregate into its read-side shape. The raw
// card number is replaced with its masked form here; no other layer exposes
// card data.
func PaymentToResponse(item *entity.Payment) *types.Payment {
	if item == nil {
		return nil
	}

	response := &types.Payment{
		ID:         item.ID.String(),
		RequestID:  item.RequestID.String(),
		MerchantID: item.MerchantID.String(),
		Amount: types.AmountPayload{
			Currency: item.Amount.Currency,
			Value:    item.Amount.Value.String(),
		},
		CardNumber: item.Card.MaskedNumber(),
		CardExpiry: item.Card.Expiry,
		Status:     string(item.Status),
		Version:    item.Version,
	}
	if item.BankPaymentID != nil {
		response.BankPaymentID = item.BankPaymentID.String()
	}
	return response
}
