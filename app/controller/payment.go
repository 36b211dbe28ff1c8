package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/bank"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/factory"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/mapper"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/repository"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/service"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/types"
)

type paymentReader interface {
	Load(ctx context.Context, id uuid.UUID) (*entity.Payment, error)
}

type PaymentController struct {
	handler *service.CommandHandler
	reader  paymentReader
	logger  logrus.FieldLogger
}

func NewPaymentController(handler *service.CommandHandler, reader paymentReader) *PaymentController {
	return &PaymentController{
		handler: handler,
		reader:  reader,
		logger:  factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) RequestPayment(ctx echo.Context) error {
	req, err := types.NewCreatePaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	cmd, err := commandFromRequest(req)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	payment, err := c.handler.Handle(ctx.Request().Context(), cmd)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, bank.ErrMerchantNotOnboarded):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Payment request failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	ctx.Response().Header().Set(echo.HeaderLocation, "/payments/"+payment.ID.String())
	return ctx.JSON(http.StatusCreated, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(payment)})
}

func (c *PaymentController) GetPayment(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid payment id")
	}

	payment, err := c.reader.Load(ctx.Request().Context(), req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "payment not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get payment failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(payment)})
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}

func commandFromRequest(req *types.CreatePaymentRequest) (service.RequestPaymentCommand, error) {
	requestID, err := uuid.Parse(req.RequestID)
	if err != nil {
		return service.RequestPaymentCommand{}, errors.New("request_id must be a valid uuid")
	}
	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		return service.RequestPaymentCommand{}, errors.New("merchant_id must be a valid uuid")
	}
	value, err := decimal.NewFromString(req.Amount.Value)
	if err != nil {
		return service.RequestPaymentCommand{}, errors.New("amount.value must be a positive decimal")
	}

	return service.RequestPaymentCommand{
		RequestID:  requestID,
		MerchantID: merchantID,
		Amount:     entity.NewMoney(req.Amount.Currency, value),
		Card:       entity.NewCard(req.Card.Number, req.Card.Expiry, req.Card.CVV),
	}, nil
}
