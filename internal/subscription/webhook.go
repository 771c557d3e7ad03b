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

// Reconciler consumes provider-pushed events out-of-band from any user
// request and applies them to local records. Processing the same delivery
// twice yields the same final record state as processing it once: all
// transitions are idempotent upserts keyed by stable identifiers (account id
// or provider subscription reference), with no mutual exclusion.
type Reconciler struct {
	store    Store
	provider BillingProvider
	deduper  EventDeduper
	log      *slog.Logger
	now      func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithEventDeduper installs a best-effort processed-event guard. Correctness
// does not depend on it; it only short-circuits redeliveries.
func WithEventDeduper(d EventDeduper) ReconcilerOption {
	return func(r *Reconciler) { r.deduper = d }
}

// WithReconcilerClock overrides the time source for tests.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates a Reconciler. Panics if store or provider is nil to
// fail fast during initialization.
func NewReconciler(store Store, provider BillingProvider, log *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("subscription: Store is required")
	}
	if provider == nil {
		panic("subscription: BillingProvider is required")
	}
	if log == nil {
		log = slog.Default()
	}

	r := &Reconciler{
		store:    store,
		provider: provider,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleWebhookEvent verifies and applies one provider delivery. Signature
// verification happens before anything else; a failed verification rejects
// the whole delivery with no state mutation. Unrecognized event types are
// acknowledged and ignored so the provider can add new ones without breaking
// this system.
func (r *Reconciler) HandleWebhookEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := r.provider.ParseWebhookEvent(payload, signature)
	if err != nil {
		return err
	}

	if r.deduper != nil && event.ID != "" {
		seen, err := r.deduper.SeenBefore(ctx, event.ID)
		if err != nil {
			// The guard is best effort; idempotent upserts carry the day.
			r.log.WarnContext(ctx, "event dedup guard unavailable", logger.Error(err))
		} else if seen {
			r.log.DebugContext(ctx, "skipping already processed event", logger.Event(event.ID))
			return nil
		}
	}

	switch event.Type {
	case EventSubscriptionUpdated:
		err = r.applySubscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		err = r.applySubscriptionDeleted(ctx, event)
	case EventPaymentSucceeded:
		err = r.applyPaymentSucceeded(ctx, event)
	default:
		r.log.DebugContext(ctx, "ignoring unhandled billing event",
			slog.String("provider_event", event.ProviderEvent))
	}
	return err
}

// applySubscriptionUpdated upserts the record for the account named in the
// event metadata. An event that cannot be attributed to an account is logged
// and dropped: a recoverable data-quality issue, not a fatal one.
func (r *Reconciler) applySubscriptionUpdated(ctx context.Context, event *WebhookEvent) error {
	accountID, err := uuid.Parse(event.AccountID)
	if err != nil {
		r.log.WarnContext(ctx, "dropping unattributable subscription event",
			slog.String("provider_event", event.ProviderEvent), logger.Event(event.ID))
		return nil
	}

	now := r.now()

	rec, err := r.store.Get(ctx, accountID)
	if errors.Is(err, ErrRecordNotFound) {
		rec = NewFreeRecord(accountID, now)
	} else if err != nil {
		return fmt.Errorf("failed to load subscription record: %w", err)
	}

	rec.Tier = TierPremium
	if event.Status == "active" || event.Status == "trialing" {
		rec.Status = StatusActive
	} else {
		rec.Status = StatusCancelled
	}
	if event.PlanID != "" {
		rec.PlanID = event.PlanID
	}
	rec.ExpiresAt = event.PeriodEnd
	if bp := intervalToBillingPeriod(event.Interval); bp != nil {
		rec.BillingPeriod = bp
	}
	if event.SubscriptionRef != "" {
		rec.ProviderSubscriptionRef = &event.SubscriptionRef
	}
	if event.CustomerRef != "" {
		rec.ProviderCustomerRef = &event.CustomerRef
	}
	rec.UpdatedAt = now

	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to upsert subscription from event: %w", err)
	}

	r.mark(ctx, event.ID)
	r.log.InfoContext(ctx, "subscription record reconciled",
		logger.AccountID(accountID), slog.String("status", string(rec.Status)))
	return nil
}

// applySubscriptionDeleted marks the record cancelled, matched by the
// provider subscription reference since deletion events may arrive with
// metadata stripped. The cancellation timestamp is preserved on redelivery
// so the final record is identical either way.
func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, event *WebhookEvent) error {
	rec, err := r.store.GetByProviderSubID(ctx, event.SubscriptionRef)
	if errors.Is(err, ErrRecordNotFound) {
		r.log.WarnContext(ctx, "dropping deletion event for unknown subscription",
			slog.String("provider_sub", event.SubscriptionRef), logger.Event(event.ID))
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to look up subscription by provider ref: %w", err)
	}

	rec.Status = StatusCancelled
	if rec.CancelledAt == nil {
		now := r.now()
		rec.CancelledAt = &now
	}
	rec.UpdatedAt = r.now()

	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save cancelled subscription: %w", err)
	}

	r.mark(ctx, event.ID)
	r.log.InfoContext(ctx, "subscription cancelled from deletion event",
		logger.AccountID(rec.AccountID))
	return nil
}

// applyPaymentSucceeded appends one immutable payment history entry. It is
// additive only and never touches the subscription record.
func (r *Reconciler) applyPaymentSucceeded(ctx context.Context, event *WebhookEvent) error {
	accountID, err := uuid.Parse(event.AccountID)
	if err != nil {
		r.log.WarnContext(ctx, "dropping unattributable payment event",
			slog.String("provider_event", event.ProviderEvent), logger.Event(event.ID))
		return nil
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = r.now()
	}

	payment := Payment{
		AccountID:          accountID,
		Amount:             event.Amount,
		Currency:           event.Currency,
		ProviderPaymentRef: event.PaymentRef,
		OccurredAt:         occurredAt,
	}
	if err := r.store.AppendPayment(ctx, payment); err != nil {
		return fmt.Errorf("failed to append payment history: %w", err)
	}

	r.mark(ctx, event.ID)
	r.log.InfoContext(ctx, "payment recorded",
		logger.AccountID(accountID), slog.Int64("amount", event.Amount), slog.String("currency", event.Currency))
	return nil
}

func (r *Reconciler) mark(ctx context.Context, eventID string) {
	if r.deduper == nil || eventID == "" {
		return
	}
	if err := r.deduper.MarkProcessed(ctx, eventID); err != nil {
		r.log.WarnContext(ctx, "failed to mark event processed", logger.Error(err))
	}
}
