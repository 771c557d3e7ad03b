package subscription

import "errors"

var (
	// ErrRecordNotFound is returned by stores when no subscription record
	// exists for the requested key.
	ErrRecordNotFound = errors.New("subscription record not found")

	// ErrProviderUnavailable classifies transient billing provider
	// failures. Fatal to payment operations, never fatal to entitlement
	// resolution.
	ErrProviderUnavailable = errors.New("billing provider unavailable")

	// ErrSessionAccountMismatch is returned when a checkout session's
	// originating account does not match the account confirming it.
	// Always rejected, never silently corrected.
	ErrSessionAccountMismatch = errors.New("checkout session does not belong to this account")

	// ErrInvalidWebhookSignature is returned when a webhook payload fails
	// signature verification. No state is mutated.
	ErrInvalidWebhookSignature = errors.New("webhook signature verification failed")

	ErrNoActiveSubscription  = errors.New("no active premium subscription")
	ErrNoPendingCancellation = errors.New("no pending cancellation to reactivate")
	ErrSubscriptionExpired   = errors.New("subscription period has already ended")

	// Provider configuration errors, fatal at startup.
	ErrMissingAPIKey        = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret = errors.New("billing provider webhook secret is required")
)
