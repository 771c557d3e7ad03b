package subscription

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fluentloop/backend/pkg/logger"
)

// AllowList is the fixed, out-of-band set of identities entitled to
// complimentary premium access. Matching is by lowercased email.
type AllowList map[string]struct{}

// NewAllowList builds an AllowList from a list of emails.
func NewAllowList(emails []string) AllowList {
	list := make(AllowList, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			list[e] = struct{}{}
		}
	}
	return list
}

// Contains reports whether the email is allow-listed.
func (a AllowList) Contains(email string) bool {
	_, ok := a[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Provisioner grants permanent premium access to allow-listed identities on
// sign-in. Provisioning is best effort and decoupled from authentication: a
// failed grant never fails the surrounding sign-in flow.
type Provisioner struct {
	store Store
	allow AllowList
	log   *slog.Logger
	now   func() time.Time
}

// NewProvisioner creates a Provisioner. Panics if store is nil to fail fast
// during initialization.
func NewProvisioner(store Store, allow AllowList, log *slog.Logger) *Provisioner {
	if store == nil {
		panic("subscription: Store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{
		store: store,
		allow: allow,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// EnsureProvisioned is the sign-in hook: when the identity is allow-listed
// it idempotently grants complimentary premium. Errors are logged, never
// returned.
func (p *Provisioner) EnsureProvisioned(ctx context.Context, accountID uuid.UUID, email string) {
	if !p.allow.Contains(email) {
		return
	}
	if err := p.GrantComplimentary(ctx, accountID); err != nil {
		p.log.ErrorContext(ctx, "failed to provision complimentary access",
			logger.AccountID(accountID), logger.Error(err))
	}
}

// GrantComplimentary upserts permanent premium access: tier premium, status
// active, permanent billing period, no expiry, sentinel plan id. Applying it
// to an already granted record leaves the record unchanged.
func (p *Provisioner) GrantComplimentary(ctx context.Context, accountID uuid.UUID) error {
	now := p.now()

	rec, err := p.store.Get(ctx, accountID)
	switch {
	case err == nil:
		if rec.IsAdminGranted() && rec.Tier == TierPremium && rec.Status == StatusActive {
			return nil // already granted, nothing to write
		}
	case errors.Is(err, ErrRecordNotFound):
		rec = NewFreeRecord(accountID, now)
	default:
		return err
	}

	permanent := BillingPeriodPermanent
	rec.Tier = TierPremium
	rec.Status = StatusActive
	rec.PlanID = PlanComplimentary
	rec.ExpiresAt = nil
	rec.BillingPeriod = &permanent
	rec.CancelledAt = nil
	rec.UpdatedAt = now

	if err := p.store.Save(ctx, rec); err != nil {
		return err
	}

	p.log.InfoContext(ctx, "complimentary premium granted", logger.AccountID(accountID))
	return nil
}
