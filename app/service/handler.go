package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/bank"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/factory"
)

type idempotencyLedger interface {
	Accept(ctx context.Context, requestID uuid.UUID) (bool, error)
}

type idGenerator interface {
	Generate() uuid.UUID
}

type adapterResolver interface {
	FindAdapter(merchantID uuid.UUID) (bank.Adapter, error)
}

// UUIDGenerator assigns gateway payment ids.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() uuid.UUID { return uuid.New() }

// RequestPaymentCommand is a merchant's validated request to charge a card.
// The gateway payment id is assigned here, never by the caller.
type RequestPaymentCommand struct {
	RequestID  uuid.UUID
	MerchantID uuid.UUID
	Amount     entity.Money
	Card       entity.Card
}

// CommandHandler accepts a payment request exactly once: it consults the
// idempotency ledger, creates the aggregate, persists the creation, then
// delegates the first paying attempt to the processor. Creation and the
// attempt outcome are two separate ordered writes against the same stream.
type CommandHandler struct {
	store     eventStore
	requests  idempotencyLedger
	processor *Processor
	adapters  adapterResolver
	ids       idGenerator
	logger    logrus.FieldLogger

	// processAsync runs the first attempt on a detached task so the caller
	// sees the payment in its pending state immediately.
	processAsync bool
}

func NewCommandHandler(
	store eventStore,
	requests idempotencyLedger,
	processor *Processor,
	adapters adapterResolver,
	ids idGenerator,
	processAsync bool,
) *CommandHandler {
	return &CommandHandler{
		store:        store,
		requests:     requests,
		processor:    processor,
		adapters:     adapters,
		ids:          ids,
		logger:       factory.NewModuleLogger("payment-command-handler"),
		processAsync: processAsync,
	}
}

// Handle returns the created aggregate, or ErrDuplicateRequest when the
// request id was already accepted, or bank.ErrMerchantNotOnboarded for an
// unknown merchant.
func (h *CommandHandler) Handle(ctx context.Context, cmd RequestPaymentCommand) (*entity.Payment, error) {
	accepted, err := h.requests.Accept(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, ErrDuplicateRequest
	}

	adapter, err := h.adapters.FindAdapter(cmd.MerchantID)
	if err != nil {
		return nil, err
	}

	payment := entity.NewPayment(h.ids.Generate(), cmd.RequestID, cmd.MerchantID, cmd.Amount, cmd.Card)
	if err := h.store.Save(ctx, payment, 0); err != nil {
		return nil, err
	}

	if h.processAsync {
		go h.attemptDetached(adapter, payment.ID)
		return payment, nil
	}

	h.attempt(ctx, adapter, payment)
	return payment, nil
}

// attemptDetached runs the first attempt on its own copy of the aggregate.
// The one returned to the caller is never touched again: any reader after the
// attempt loads the stream's current state from the store.
func (h *CommandHandler) attemptDetached(adapter bank.Adapter, id uuid.UUID) {
	ctx := context.Background()
	payment, err := h.store.Load(ctx, id)
	if err != nil {
		h.logger.WithField("gateway_payment_id", id).WithError(err).
			Error("Loading payment for detached attempt failed")
		return
	}
	h.attempt(ctx, adapter, payment)
}

func (h *CommandHandler) attempt(ctx context.Context, adapter bank.Adapter, payment *entity.Payment) {
	result, err := h.processor.AttemptPaying(ctx, adapter, payment)
	entry := h.logger.WithFields(logrus.Fields{
		"gateway_payment_id": payment.ID,
		"request_id":         payment.RequestID,
		"bank":               adapter.Name(),
	})
	if err != nil {
		entry.WithError(err).Error("Payment attempt failed fatally")
		return
	}
	entry.WithField("result", string(result.Status)).Info("Payment attempt completed")
}
