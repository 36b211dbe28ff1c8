// Package ledger tracks which logical payment request ids have already been
// accepted, so an identical request is never handled more than once.
package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryLedger is a process-wide idempotency ledger. Accept is safe under
// concurrent calls: a race between two identical request ids yields exactly
// one true. Entries never expire.
type InMemoryLedger struct {
	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{seen: map[uuid.UUID]struct{}{}}
}

// Accept records requestID the first time it is seen and returns true;
// every later call with the same id returns false.
func (l *InMemoryLedger) Accept(_ context.Context, requestID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[requestID]; ok {
		return false, nil
	}
	l.seen[requestID] = struct{}{}
	return true, nil
}
