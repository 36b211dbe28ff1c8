package service

import (
	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

// ResultStatus classifies the outcome of one paying attempt.
type ResultStatus string

const (
	ResultFinished        ResultStatus = "finished"
	ResultFailed          ResultStatus = "failed"
	ResultWillHandleLater ResultStatus = "will_handle_later"
)

// PaymentResult is what AttemptPaying reports back to its caller. Reason is
// the externally-visible failure string; Cause stays precise so callers can
// still tell a timeout from a duplicated bank payment id.
type PaymentResult struct {
	Status           ResultStatus
	GatewayPaymentID uuid.UUID
	RequestID        uuid.UUID
	Reason           string
	Cause            error
}

func finishedResult(attempt entity.PayingAttempt) PaymentResult {
	return PaymentResult{
		Status:           ResultFinished,
		GatewayPaymentID: attempt.GatewayPaymentID,
		RequestID:        attempt.RequestID,
	}
}

func failedResult(attempt entity.PayingAttempt, cause error, reason string) PaymentResult {
	return PaymentResult{
		Status:           ResultFailed,
		GatewayPaymentID: attempt.GatewayPaymentID,
		RequestID:        attempt.RequestID,
		Reason:           reason,
		Cause:            cause,
	}
}

func willHandleLaterResult(attempt entity.PayingAttempt) PaymentResult {
	return PaymentResult{
		Status:           ResultWillHandleLater,
		GatewayPaymentID: attempt.GatewayPaymentID,
		RequestID:        attempt.RequestID,
	}
}
