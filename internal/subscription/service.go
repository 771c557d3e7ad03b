package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fluentloop/backend/pkg/logger"
)

// Service drives the checkout and payment flow and the user-initiated
// subscription lifecycle operations. The checkout state machine itself
// (created -> pending -> completed/abandoned) lives at the billing provider;
// this service only creates sessions and observes their outcome.
//
// Unlike entitlement resolution, payment-path errors are surfaced to the
// caller: there is no safe default for "did payment succeed".
type Service struct {
	store    Store
	provider BillingProvider
	log      *slog.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service. Panics if store or provider is nil to fail
// fast during initialization.
func NewService(store Store, provider BillingProvider, log *slog.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("subscription: Store is required")
	}
	if provider == nil {
		panic("subscription: BillingProvider is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		store:    store,
		provider: provider,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCheckoutSession opens a provider-hosted checkout session for the
// account. The account and plan are stamped into provider-side metadata so
// that completion can later be attributed without trusting the client.
func (s *Service) CreateCheckoutSession(ctx context.Context, accountID uuid.UUID, planID, priceRef, successURL, cancelURL string) (*CheckoutSession, error) {
	if planID == "" || priceRef == "" {
		return nil, errors.New("plan id and price ref are required")
	}

	// Make sure the account has a record before money changes hands, so
	// the eventual upgrade is an update of an existing row.
	if _, err := s.store.Get(ctx, accountID); errors.Is(err, ErrRecordNotFound) {
		if err := s.store.Save(ctx, NewFreeRecord(accountID, s.now())); err != nil {
			return nil, fmt.Errorf("failed to create subscription record: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load subscription record: %w", err)
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		AccountID:  accountID,
		PlanID:     planID,
		PriceRef:   priceRef,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	s.log.InfoContext(ctx, "checkout session created",
		logger.AccountID(accountID), slog.String("plan_id", planID), slog.String("session_id", sess.ID))
	return sess, nil
}

// VerifyResult is the outcome of a payment verification.
type VerifyResult struct {
	Status CheckoutStatus `json:"status"`
}

// VerifyPayment confirms a completed checkout. The session is re-fetched
// from the provider - a client claim of success is never trusted - and the
// session's recorded originating account must match accountID; a mismatch is
// rejected so that nobody can confirm a payment for a session they did not
// initiate.
//
// A session the provider does not report as paid returns a pending result
// with no record mutation. A paid subscription-mode session upgrades the
// record to premium/active with the provider's current period end.
func (s *Service) VerifyPayment(ctx context.Context, sessionID string, accountID uuid.UUID) (*VerifyResult, error) {
	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	if sess.AccountID != accountID.String() {
		s.log.WarnContext(ctx, "checkout session account mismatch rejected",
			logger.AccountID(accountID), slog.String("session_id", sessionID))
		return nil, ErrSessionAccountMismatch
	}

	if !sess.Paid {
		return &VerifyResult{Status: CheckoutPending}, nil
	}

	if sess.SubscriptionMode {
		if err := s.applyPaidSession(ctx, accountID, sess); err != nil {
			return nil, err
		}
	}

	return &VerifyResult{Status: CheckoutCompleted}, nil
}

// applyPaidSession writes the full upgraded record. The whole record is
// written in one upsert so concurrent writers cannot interleave partial
// updates.
func (s *Service) applyPaidSession(ctx context.Context, accountID uuid.UUID, sess *CheckoutSession) error {
	now := s.now()

	rec, err := s.store.Get(ctx, accountID)
	if errors.Is(err, ErrRecordNotFound) {
		rec = NewFreeRecord(accountID, now)
	} else if err != nil {
		return fmt.Errorf("failed to load subscription record: %w", err)
	}

	rec.Tier = TierPremium
	rec.Status = StatusActive
	rec.PlanID = sess.PlanID
	rec.ExpiresAt = sess.PeriodEnd
	rec.BillingPeriod = intervalToBillingPeriod(sess.Interval)
	rec.CancelledAt = nil
	rec.UpdatedAt = now
	if sess.CustomerRef != "" {
		rec.ProviderCustomerRef = &sess.CustomerRef
	}
	if sess.SubscriptionRef != "" {
		rec.ProviderSubscriptionRef = &sess.SubscriptionRef
	}

	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save upgraded subscription: %w", err)
	}

	s.log.InfoContext(ctx, "subscription upgraded from completed checkout",
		logger.AccountID(accountID), slog.String("plan_id", rec.PlanID))
	return nil
}

// Cancel records a user-initiated cancellation. Provider-backed
// subscriptions are cancelled at period end, so access survives until the
// current period expires and the provider's deletion event later flips the
// stored status. Admin-granted premium has no period to run out and is
// cancelled immediately.
func (s *Service) Cancel(ctx context.Context, accountID uuid.UUID) error {
	rec, err := s.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if rec.Tier != TierPremium || rec.Status != StatusActive {
		return ErrNoActiveSubscription
	}

	now := s.now()

	if rec.IsProviderBacked() {
		if err := s.provider.CancelAtPeriodEnd(ctx, *rec.ProviderSubscriptionRef); err != nil {
			return errors.Join(ErrProviderUnavailable, err)
		}
		// Status stays active: access runs until the period end.
		rec.CancelledAt = &now
	} else {
		rec.Status = StatusCancelled
		rec.CancelledAt = &now
	}
	rec.UpdatedAt = now

	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save cancellation: %w", err)
	}

	s.log.InfoContext(ctx, "subscription cancellation recorded", logger.AccountID(accountID))
	return nil
}

// Reactivate undoes a pending cancel-at-period-end before it takes effect.
// Once the period has ended the subscription cannot be revived here; a new
// checkout is required.
func (s *Service) Reactivate(ctx context.Context, accountID uuid.UUID) error {
	rec, err := s.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if rec.CancelledAt == nil {
		return ErrNoPendingCancellation
	}

	now := s.now()
	if rec.ExpiresAt != nil && now.After(*rec.ExpiresAt) {
		return ErrSubscriptionExpired
	}

	if rec.IsProviderBacked() {
		if err := s.provider.Reactivate(ctx, *rec.ProviderSubscriptionRef); err != nil {
			return errors.Join(ErrProviderUnavailable, err)
		}
	}

	rec.Status = StatusActive
	rec.CancelledAt = nil
	rec.UpdatedAt = now

	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save reactivation: %w", err)
	}

	s.log.InfoContext(ctx, "subscription reactivated", logger.AccountID(accountID))
	return nil
}
