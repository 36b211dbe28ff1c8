package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrVersionConflict means the stored version no longer matches the
	// version the save expected. Nothing is appended on conflict.
	ErrVersionConflict = errors.New("payment version conflict")
)

// EventStore persists payment aggregates as append-only event streams in
// MySQL. Optimistic concurrency rides on the UNIQUE(payment_id, version) key:
// two writers racing on the same expected version collide on the first
// inserted row and exactly one of them observes ErrVersionConflict.
type EventStore struct {
	db TxDB
}

func NewEventStore(db TxDB) *EventStore {
	return &EventStore{db: db}
}

// InitSchema creates the event table when it does not exist yet.
func (s *EventStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_events (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			payment_id CHAR(36) NOT NULL,
			version INT NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			payload_json TEXT NOT NULL,
			bank_payment_id CHAR(36) NULL,
			created_at DATETIME(6) NOT NULL,
			UNIQUE KEY uq_payment_events_stream (payment_id, version),
			KEY idx_payment_events_bank_payment_id (bank_payment_id),
			KEY idx_payment_events_event_type (event_type)
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// Save appends the aggregate's uncommitted events in one transaction. Either
// every event is stored at versions expectedVersion+1.. and the aggregate is
// marked committed, or nothing is stored.
func (s *EventStore) Save(ctx context.Context, payment *entity.Payment, expectedVersion int) error {
	events := payment.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}
	if expectedVersion != payment.CommittedVersion() {
		return fmt.Errorf("%w: aggregate committed at %d, save expected %d",
			ErrVersionConflict, payment.CommittedVersion(), expectedVersion)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO payment_events (payment_id, version, event_type, payload_json, bank_payment_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	for i, event := range events {
		payload, err := entity.EncodeEvent(event)
		if err != nil {
			return err
		}

		var bankPaymentID *string
		if id, ok := entity.EventBankPaymentID(event); ok {
			value := id.String()
			bankPaymentID = &value
		}

		_, err = tx.ExecContext(ctx, query,
			payment.ID.String(),
			expectedVersion+i+1,
			event.EventType(),
			string(payload),
			nullableUUIDValue(bankPaymentID),
			now,
		)
		if err != nil {
			if isDuplicateEntryError(err) {
				return ErrVersionConflict
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	payment.MarkCommitted()
	return nil
}

// Load rebuilds the aggregate by folding its full history in append order.
func (s *EventStore) Load(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	query := `
		SELECT event_type, payload_json
		FROM payment_events
		WHERE payment_id = ?
		ORDER BY version ASC
	`

	rows, err := s.db.QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]entity.Event, 0, 4)
	for rows.Next() {
		var eventType, payload string
		if err := rows.Scan(&eventType, &payload); err != nil {
			return nil, err
		}
		event, err := entity.DecodeEvent(eventType, []byte(payload))
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrPaymentNotFound
	}

	return entity.PaymentFromHistory(events)
}

// BankPaymentIDInUse reports whether a bank payment id is already bound to a
// payment other than ownPaymentID.
func (s *EventStore) BankPaymentIDInUse(ctx context.Context, bankPaymentID, ownPaymentID uuid.UUID) (bool, error) {
	query := `
		SELECT 1
		FROM payment_events
		WHERE bank_payment_id = ? AND payment_id <> ?
		LIMIT 1
	`

	var one int
	err := s.db.QueryRowContext(ctx, query, bankPaymentID.String(), ownPaymentID.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListDeferred returns the ids of payments whose latest event deferred them,
// oldest deferral first.
func (s *EventStore) ListDeferred(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	query := `
		SELECT pe.payment_id
		FROM payment_events pe
		JOIN (
			SELECT payment_id, MAX(version) AS max_version
			FROM payment_events
			GROUP BY payment_id
		) latest ON latest.payment_id = pe.payment_id AND latest.max_version = pe.version
		WHERE pe.event_type = ?
		ORDER BY pe.id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, entity.EventPaymentDeferred, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
