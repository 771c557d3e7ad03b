package subscription

// Tier identifies the commercial tier of an account's subscription.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Status represents the current state of a subscription record.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// BillingPeriod represents the billing cadence of a subscription.
// Permanent is reserved for admin-granted subscriptions that never renew
// and never expire.
type BillingPeriod string

const (
	BillingPeriodMonthly   BillingPeriod = "monthly"
	BillingPeriodYearly    BillingPeriod = "yearly"
	BillingPeriodPermanent BillingPeriod = "permanent"
)

const (
	// PlanFree is the default plan assigned to lazily created records.
	PlanFree = "free"

	// PlanComplimentary is the sentinel plan for admin-granted premium
	// access. It distinguishes grants from purchased subscriptions, which
	// always carry a commercial plan id.
	PlanComplimentary = "complimentary"
)

// CheckoutStatus is the observed state of a provider-hosted checkout session.
// The provider owns the session state machine; this backend only reads it.
type CheckoutStatus string

const (
	CheckoutCompleted CheckoutStatus = "completed"
	CheckoutPending   CheckoutStatus = "pending"
)
