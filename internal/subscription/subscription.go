package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Record is the locally persisted subscription state for one account.
// Each account has exactly one record, lazily created as free/active on the
// first entitlement check. Records are never deleted; cancellation is a
// status transition.
type Record struct {
	AccountID               uuid.UUID // primary key - one record per account
	Tier                    Tier
	Status                  Status
	PlanID                  string
	ExpiresAt               *time.Time     // nil means never expires (free tier, admin grants)
	BillingPeriod           *BillingPeriod // nil for free-tier records
	ProviderCustomerRef     *string        // billing provider's customer id, nil when not provider-backed
	ProviderSubscriptionRef *string        // billing provider's subscription id, nil when not provider-backed
	CancelledAt             *time.Time     // set when a cancellation is recorded
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// NewFreeRecord returns the default record created on first contact with an
// account: free tier, active, never expiring.
func NewFreeRecord(accountID uuid.UUID, now time.Time) *Record {
	return &Record{
		AccountID: accountID,
		Tier:      TierFree,
		Status:    StatusActive,
		PlanID:    PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActiveAt reports whether the record grants access at the given time:
// status must be active and the expiry, when set, must not have passed.
func (r *Record) IsActiveAt(now time.Time) bool {
	if r.Status != StatusActive {
		return false
	}
	if r.ExpiresAt == nil {
		return true
	}
	return !now.After(*r.ExpiresAt)
}

// IsProviderBacked reports whether the record is tied to a live billing
// provider subscription that local state must eventually converge to.
func (r *Record) IsProviderBacked() bool {
	return r.ProviderSubscriptionRef != nil && *r.ProviderSubscriptionRef != ""
}

// IsAdminGranted reports whether premium access was granted by an
// administrator rather than purchased.
func (r *Record) IsAdminGranted() bool {
	return r.PlanID == PlanComplimentary
}

// Entitlement is the computed answer to "may this account use premium
// features right now", merged from local and provider state.
type Entitlement struct {
	IsPremium     bool           `json:"is_premium"`
	Tier          Tier           `json:"tier"`
	Status        Status         `json:"status"`
	PlanID        string         `json:"plan_id"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	BillingPeriod *BillingPeriod `json:"billing_period,omitempty"`
}

// FreeEntitlement is the safe default returned when resolution cannot
// complete: free tier, active, no premium access.
func FreeEntitlement() Entitlement {
	return Entitlement{
		IsPremium: false,
		Tier:      TierFree,
		Status:    StatusActive,
		PlanID:    PlanFree,
	}
}

// Payment is one immutable entry in the payment history log. Entries are
// append-only and never mutate the subscription record.
type Payment struct {
	AccountID          uuid.UUID
	Amount             int64  // smallest currency unit
	Currency           string // ISO 4217
	ProviderPaymentRef string // provider's payment/invoice id, unique per payment
	OccurredAt         time.Time
}
