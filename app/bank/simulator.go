package bank

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

// SimulatorBehavior drives what a simulated bank does with an attempt.
type SimulatorBehavior int

const (
	// SimulateAccept answers every attempt with an accepted response.
	SimulateAccept SimulatorBehavior = iota
	// SimulateReject answers every attempt with a rejected response.
	SimulateReject
	// SimulateUnreachable fails every attempt with ErrUnreachable.
	SimulateUnreachable
	// SimulateSilence never answers; the call only returns on cancellation.
	SimulateSilence
)

// Simulator stands in for a real acquiring-bank integration. It is used by
// the serve wiring when no real bank is configured, and by tests.
type Simulator struct {
	name     string
	behavior SimulatorBehavior
	latency  time.Duration

	// fixedBankPaymentID, when set, is returned on every response. It lets
	// tests provoke the duplicate bank payment id path.
	fixedBankPaymentID *uuid.UUID
}

func NewSimulator(name string, behavior SimulatorBehavior) *Simulator {
	return &Simulator{name: name, behavior: behavior}
}

// WithLatency delays every answer, cancellable through the call context.
func (s *Simulator) WithLatency(latency time.Duration) *Simulator {
	s.latency = latency
	return s
}

// WithFixedBankPaymentID pins the bank payment id returned on every response.
func (s *Simulator) WithFixedBankPaymentID(id uuid.UUID) *Simulator {
	s.fixedBankPaymentID = &id
	return s
}

func (s *Simulator) Name() string { return s.name }

func (s *Simulator) RespondToPaymentAttempt(ctx context.Context, attempt entity.PayingAttempt) (Response, error) {
	if s.behavior == SimulateSilence {
		<-ctx.Done()
		return NotResponded(attempt.GatewayPaymentID), ctx.Err()
	}

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return NotResponded(attempt.GatewayPaymentID), ctx.Err()
		case <-timer.C:
		}
	}

	switch s.behavior {
	case SimulateUnreachable:
		return NotResponded(attempt.GatewayPaymentID), ErrUnreachable
	case SimulateReject:
		return Responded(attempt.GatewayPaymentID, s.bankPaymentID(), false), nil
	default:
		return Responded(attempt.GatewayPaymentID, s.bankPaymentID(), true), nil
	}
}

func (s *Simulator) bankPaymentID() uuid.UUID {
	if s.fixedBankPaymentID != nil {
		return *s.fixedBankPaymentID
	}
	return uuid.New()
}
