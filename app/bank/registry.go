package bank

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMerchantNotOnboarded is returned for merchants without a routed bank.
// Onboarding is where the gateway learns which bank acquires for a merchant.
var ErrMerchantNotOnboarded = errors.New("merchant has not been onboarded")

// Registry resolves a merchant id to the adapter of its acquiring bank.
// It is built once at startup and read-only afterwards.
type Registry struct {
	adapters map[uuid.UUID]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[uuid.UUID]Adapter{}}
}

// Onboard routes all payments of a merchant to the given bank adapter.
func (r *Registry) Onboard(merchantID uuid.UUID, adapter Adapter) {
	r.adapters[merchantID] = adapter
}

// FindAdapter returns the adapter acquiring for merchantID.
func (r *Registry) FindAdapter(merchantID uuid.UUID) (Adapter, error) {
	adapter, ok := r.adapters[merchantID]
	if !ok {
		return nil, fmt.Errorf("%w: merchant %s", ErrMerchantNotOnboarded, merchantID)
	}
	return adapter, nil
}
