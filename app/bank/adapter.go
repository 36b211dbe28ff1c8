package bank

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

var (
	// ErrUnreachable is raised when the acquiring bank cannot be reached at all.
	ErrUnreachable = errors.New("acquiring bank unreachable")
	// ErrDuplicatePaymentID is raised when the bank returns a payment id it
	// already issued for another payment.
	ErrDuplicatePaymentID = errors.New("bank payment id duplicated")
)

// ResponseKind tags the variants of a bank's answer.
type ResponseKind int

const (
	// KindNotResponded means the bank gave no usable answer within the call.
	KindNotResponded ResponseKind = iota
	// KindResponded means the bank returned a concrete accept/reject.
	KindResponded
)

// Response is the bank's answer to a paying attempt. Responded answers carry
// the bank-assigned payment id and the accept/reject flag; NotResponded
// carries nothing beyond the gateway id it relates to.
type Response struct {
	Kind             ResponseKind
	GatewayPaymentID uuid.UUID
	BankPaymentID    uuid.UUID
	Accepted         bool
}

func Responded(gatewayPaymentID, bankPaymentID uuid.UUID, accepted bool) Response {
	return Response{
		Kind:             KindResponded,
		GatewayPaymentID: gatewayPaymentID,
		BankPaymentID:    bankPaymentID,
		Accepted:         accepted,
	}
}

func NotResponded(gatewayPaymentID uuid.UUID) Response {
	return Response{Kind: KindNotResponded, GatewayPaymentID: gatewayPaymentID}
}

// Adapter is the contract every acquiring-bank integration satisfies. The
// call must observe ctx cancellation promptly; the processor bounds it with
// the configured bank response timeout.
type Adapter interface {
	Name() string
	RespondToPaymentAttempt(ctx context.Context, attempt entity.PayingAttempt) (Response, error)
}
