package types

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// Canonical rejection messages for malformed card fields. The exact wording
// is part of the public contract.
const (
	MsgInvalidCardNumber = "Invalid card number"
	MsgInvalidCardCVV    = "Invalid card CVV"
	MsgInvalidCardExpiry = "Invalid card expiry"
)

var (
	cardNumberPattern = regexp.MustCompile(`^\d{4}( \d{4}){3}$`)
	cardExpiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cardCVVPattern    = regexp.MustCompile(`^\d{3,4}$`)
)

type AmountPayload struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type CardPayload struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

type CreatePaymentRequest struct {
	RequestID  string        `json:"request_id"`
	MerchantID string        `json:"merchant_id"`
	Amount     AmountPayload `json:"amount"`
	Card       CardPayload   `json:"card"`
}

func NewCreatePaymentRequestFromContext(ctx echo.Context) (*CreatePaymentRequest, error) {
	var body CreatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.RequestID = strings.TrimSpace(body.RequestID)
	body.MerchantID = strings.TrimSpace(body.MerchantID)
	body.Amount.Currency = strings.ToUpper(strings.TrimSpace(body.Amount.Currency))
	body.Amount.Value = strings.TrimSpace(body.Amount.Value)
	body.Card.Number = strings.TrimSpace(body.Card.Number)
	body.Card.Expiry = strings.TrimSpace(body.Card.Expiry)
	body.Card.CVV = strings.TrimSpace(body.Card.CVV)

	return &body, nil
}

func (r *CreatePaymentRequest) Validate() error {
	if _, err := uuid.Parse(r.RequestID); err != nil {
		return errors.New("request_id must be a valid uuid")
	}
	if _, err := uuid.Parse(r.MerchantID); err != nil {
		return errors.New("merchant_id must be a valid uuid")
	}
	if len(r.Amount.Currency) != 3 {
		return errors.New("amount.currency must be 3 letters")
	}
	value, err := decimal.NewFromString(r.Amount.Value)
	if err != nil || !value.IsPositive() {
		return errors.New("amount.value must be a positive decimal")
	}
	if !cardNumberPattern.MatchString(r.Card.Number) {
		return errors.New(MsgInvalidCardNumber)
	}
	if !cardCVVPattern.MatchString(r.Card.CVV) {
		return errors.New(MsgInvalidCardCVV)
	}
	if !cardExpiryPattern.MatchString(r.Card.Expiry) {
		return errors.New(MsgInvalidCardExpiry)
	}
	return nil
}

type GetPaymentRequest struct {
	ID uuid.UUID
}

func NewGetPaymentRequestFromContext(ctx echo.Context) (*GetPaymentRequest, error) {
	id, err := uuid.Parse(strings.TrimSpace(ctx.Param("id")))
	if err != nil {
		return nil, err
	}
	return &GetPaymentRequest{ID: id}, nil
}

// Payment is the read-side projection of a payment aggregate. The card
// number is always masked before it reaches this shape.
type Payment struct {
	ID            string        `json:"id"`
	RequestID     string        `json:"request_id"`
	MerchantID    string        `json:"merchant_id"`
	Amount        AmountPayload `json:"amount"`
	CardNumber    string        `json:"card_number"`
	CardExpiry    string        `json:"card_expiry"`
	Status        string        `json:"status"`
	Version       int           `json:"version"`
	BankPaymentID string        `json:"bank_payment_id,omitempty"`
}

type PaymentEnvelopeResponse struct {
	Payment *Payment `json:"payment"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
