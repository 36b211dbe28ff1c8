package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

type storedEvent struct {
	seq           uint64
	eventType     string
	payload       []byte
	bankPaymentID *uuid.UUID
}

// InMemoryEventStore holds event streams in process memory with the same
// contract as the MySQL store, including version-conflict detection. It backs
// unit tests and local runs without a database.
type InMemoryEventStore struct {
	mu      sync.Mutex
	streams map[uuid.UUID][]storedEvent
	nextSeq uint64
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{streams: map[uuid.UUID][]storedEvent{}, nextSeq: 1}
}

func (s *InMemoryEventStore) Save(_ context.Context, payment *entity.Payment, expectedVersion int) error {
	events := payment.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}
	if expectedVersion != payment.CommittedVersion() {
		return ErrVersionConflict
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[payment.ID]
	if len(stream) != expectedVersion {
		return ErrVersionConflict
	}

	for _, event := range events {
		payload, err := entity.EncodeEvent(event)
		if err != nil {
			return err
		}
		stored := storedEvent{seq: s.nextSeq, eventType: event.EventType(), payload: payload}
		if id, ok := entity.EventBankPaymentID(event); ok {
			bound := id
			stored.bankPaymentID = &bound
		}
		s.nextSeq++
		stream = append(stream, stored)
	}
	s.streams[payment.ID] = stream

	payment.MarkCommitted()
	return nil
}

func (s *InMemoryEventStore) Load(_ context.Context, id uuid.UUID) (*entity.Payment, error) {
	s.mu.Lock()
	stream, ok := s.streams[id]
	if ok {
		stream = append([]storedEvent(nil), stream...)
	}
	s.mu.Unlock()

	if !ok || len(stream) == 0 {
		return nil, ErrPaymentNotFound
	}

	events := make([]entity.Event, 0, len(stream))
	for _, stored := range stream {
		event, err := entity.DecodeEvent(stored.eventType, stored.payload)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return entity.PaymentFromHistory(events)
}

func (s *InMemoryEventStore) BankPaymentIDInUse(_ context.Context, bankPaymentID, ownPaymentID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for paymentID, stream := range s.streams {
		if paymentID == ownPaymentID {
			continue
		}
		for _, stored := range stream {
			if stored.bankPaymentID != nil && *stored.bankPaymentID == bankPaymentID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *InMemoryEventStore) ListDeferred(_ context.Context, limit int32) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type deferred struct {
		id  uuid.UUID
		seq uint64
	}
	found := make([]deferred, 0)
	for paymentID, stream := range s.streams {
		if len(stream) == 0 {
			continue
		}
		last := stream[len(stream)-1]
		if last.eventType == entity.EventPaymentDeferred {
			found = append(found, deferred{id: paymentID, seq: last.seq})
		}
	}

	// Oldest deferral first, matching the MySQL store's insertion order.
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j-1].seq > found[j].seq; j-- {
			found[j-1], found[j] = found[j], found[j-1]
		}
	}

	ids := make([]uuid.UUID, 0, len(found))
	for _, item := range found {
		if int32(len(ids)) >= limit {
			break
		}
		ids = append(ids, item.id)
	}
	return ids, nil
}
