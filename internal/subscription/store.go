package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store defines subscription record persistence. AccountID is the upsert key;
// Save writes the full record atomically (last-writer-wins on concurrent
// upserts). Transition logic always writes a complete coherent record rather
// than a partial delta so that interleaved writers cannot produce an
// inconsistent row.
type Store interface {
	// Get retrieves a record by account id.
	// Returns ErrRecordNotFound if no record exists.
	Get(ctx context.Context, accountID uuid.UUID) (*Record, error)

	// GetByProviderSubID retrieves a record by the billing provider's
	// subscription reference. Used for provider events whose metadata has
	// been stripped (e.g. deletion events).
	// Returns ErrRecordNotFound if no record matches.
	GetByProviderSubID(ctx context.Context, providerSubID string) (*Record, error)

	// Save creates or updates a record, keyed by AccountID.
	Save(ctx context.Context, record *Record) error

	// AppendPayment appends one immutable entry to the payment history
	// log. Appending the same ProviderPaymentRef twice is a no-op.
	AppendPayment(ctx context.Context, payment Payment) error

	// ListPayments returns the payment history for an account, most
	// recent first.
	ListPayments(ctx context.Context, accountID uuid.UUID) ([]Payment, error)
}
