package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/bank"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

// FaultHook lets tests and chaos scenarios force a failure right before a
// strategy applies its event. A non-nil returned error aborts the strategy;
// nothing is applied or persisted in that case.
type FaultHook func() error

// responseStrategy turns one bank answer into aggregate events and persists
// them. Strategies are selected from the response's variant tag.
type responseStrategy interface {
	Handle(ctx context.Context, payment *entity.Payment, hook FaultHook) error
}

// respondedStrategy handles a concrete accept/reject answer. Before trusting
// the bank's payment id it checks the id has not been bound to another
// payment; a duplicated id is a correctness violation, recorded as a failure
// instead of the naive outcome.
type respondedStrategy struct {
	response bank.Response
	store    eventStore
	logger   logrus.FieldLogger
}

func (s *respondedStrategy) Handle(ctx context.Context, payment *entity.Payment, hook FaultHook) error {
	if hook != nil {
		if err := hook(); err != nil {
			return err
		}
	}

	inUse, err := s.store.BankPaymentIDInUse(ctx, s.response.BankPaymentID, payment.ID)
	if err != nil {
		return err
	}

	expected := payment.CommittedVersion()
	switch {
	case inUse:
		s.logger.WithFields(logrus.Fields{
			"gateway_payment_id": payment.ID,
			"bank_payment_id":    s.response.BankPaymentID,
		}).Error("Bank payment id already bound to another payment")
		err = payment.HandleBankPaymentIDDuplicate(s.response.BankPaymentID)
	case s.response.Accepted:
		err = payment.MarkSuccessful(s.response.BankPaymentID)
	default:
		err = payment.MarkRejected(s.response.BankPaymentID)
	}
	if err != nil {
		return err
	}

	return s.store.Save(ctx, payment, expected)
}

// notRespondedStrategy handles bank silence: the payment timed out.
type notRespondedStrategy struct {
	store eventStore
}

func (s *notRespondedStrategy) Handle(ctx context.Context, payment *entity.Payment, hook FaultHook) error {
	if hook != nil {
		if err := hook(); err != nil {
			return err
		}
	}

	expected := payment.CommittedVersion()
	if err := payment.Timeout(); err != nil {
		return err
	}
	return s.store.Save(ctx, payment, expected)
}

func buildStrategy(response bank.Response, store eventStore, logger logrus.FieldLogger) (responseStrategy, error) {
	switch response.Kind {
	case bank.KindResponded:
		return &respondedStrategy{response: response, store: store, logger: logger}, nil
	case bank.KindNotResponded:
		return &notRespondedStrategy{store: store}, nil
	default:
		return nil, fmt.Errorf("unknown bank response kind %d", response.Kind)
	}
}
