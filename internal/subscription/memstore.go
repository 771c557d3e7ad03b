package subscription

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemStore is a thread-safe Store kept entirely in memory. It backs tests
// and local development; production uses the postgres implementation.
type InMemStore struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]Record
	payments []Payment
}

// NewInMemStore returns an empty in-memory store.
func NewInMemStore() *InMemStore {
	return &InMemStore{
		records: make(map[uuid.UUID]Record),
	}
}

func (s *InMemStore) Get(_ context.Context, accountID uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[accountID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	copied := rec
	return &copied, nil
}

func (s *InMemStore) GetByProviderSubID(_ context.Context, providerSubID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ProviderSubscriptionRef != nil && *rec.ProviderSubscriptionRef == providerSubID {
			copied := rec
			return &copied, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *InMemStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.AccountID] = *record
	return nil
}

func (s *InMemStore) AppendPayment(_ context.Context, payment Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payments {
		if p.ProviderPaymentRef == payment.ProviderPaymentRef {
			return nil // already recorded
		}
	}
	s.payments = append(s.payments, payment)
	return nil
}

func (s *InMemStore) ListPayments(_ context.Context, accountID uuid.UUID) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Payment
	for _, p := range s.payments {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}
