package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fluentloop/backend/internal/feature"
	"github.com/fluentloop/backend/internal/identity"
	"github.com/fluentloop/backend/internal/subscription"
	"github.com/fluentloop/backend/pkg/logger"
)

// Narrow views of the engine components, so tests can substitute doubles.
type (
	Resolver interface {
		Resolve(ctx context.Context, accountID uuid.UUID) subscription.Entitlement
	}
	Gate interface {
		CheckAccess(ctx context.Context, accountID uuid.UUID, f feature.Feature) feature.Decision
	}
	CheckoutService interface {
		CreateCheckoutSession(ctx context.Context, accountID uuid.UUID, planID, priceRef, successURL, cancelURL string) (*subscription.CheckoutSession, error)
		VerifyPayment(ctx context.Context, sessionID string, accountID uuid.UUID) (*subscription.VerifyResult, error)
		Cancel(ctx context.Context, accountID uuid.UUID) error
		Reactivate(ctx context.Context, accountID uuid.UUID) error
	}
	WebhookReconciler interface {
		HandleWebhookEvent(ctx context.Context, payload []byte, signature string) error
	}
	Provisioner interface {
		EnsureProvisioned(ctx context.Context, accountID uuid.UUID, email string)
	}
	PaymentHistory interface {
		ListPayments(ctx context.Context, accountID uuid.UUID) ([]subscription.Payment, error)
	}
)

type handlers struct {
	deps Deps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Healthcheck != nil {
		if err := h.deps.Healthcheck(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "unhealthy", "dependency check failed")
			return
		}
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// signIn is invoked after the identity provider has verified the user. It
// lazily materializes the subscription record and, for allow-listed
// identities, provisions complimentary premium - best effort, never failing
// the sign-in.
func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	ident, err := identity.FromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "no verified identity")
		return
	}

	h.deps.Provisioner.EnsureProvisioned(r.Context(), ident.AccountID, ident.Email)
	ent := h.deps.Resolver.Resolve(r.Context(), ident.AccountID)
	respond(w, http.StatusOK, ent)
}

func (h *handlers) subscriptionStatus(w http.ResponseWriter, r *http.Request) {
	ident, err := identity.FromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "no verified identity")
		return
	}
	respond(w, http.StatusOK, h.deps.Resolver.Resolve(r.Context(), ident.AccountID))
}

func (h *handlers) featureAccess(w http.ResponseWriter, r *http.Request) {
	ident, err := identity.FromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "no verified identity")
		return
	}

	f := feature.Feature(chi.URLParam(r, "feature"))
	decision := h.deps.Gate.CheckAccess(r.Context(), ident.AccountID, f)
	if !decision.HasAccess {
		respondPaymentRequired(w, decision.Reason)
		return
	}
	respond(w, http.StatusOK, decision)
}

type createCheckoutRequest struct {
	PlanID     string `json:"plan_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (h *handlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	ident, err := identity.FromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "no verified identity")
		return
	}

	var req createCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	plan, ok := h.deps.Catalog.PlanByID(req.PlanID)
	if !ok {
		respondError(w, http.StatusNotFound, "plan_not_found", "unknown plan id")
		return
	}

	sess, err := h.deps.Checkout.CreateCheckoutSession(r.Context(),
		ident.AccountID, plan.ID, plan.PriceRef, req.SuccessURL, req.CancelURL)
	if err != nil {
		h.deps.Log.ErrorContext(r.Context(), "checkout session creation failed",
			logger.AccountID(ident.AccountID), logger.Error(err))
		respondError(w, http.StatusBadGateway, "provider_error", "could not start checkout, please try again")
		return
	}

	respond(w, http.StatusCreated, map[string]string{
		"session_id": sess.ID,
		"url":        sess.URL,
	})
}

type verifyCheckoutRequest struct {
	SessionID string `json:"session_id"`
}

func (h *handlers) verifyCheckout(w http.ResponseWriter, r *http.Request) {
	ident, err := identity.FromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "no verified identity")
		return
	}

	var req verifyCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "session_id is required")
		return
	}

	result, err := h.deps.Checkout.VerifyPayment(r.Context(), req.SessionID, ident.AccountID)
	switch {
	case errors.Is(err, subscription.ErrSessionAccountMismatch):
		respondError(w, http.StatusForbidden, "session_mismatch", "this checkout session belongs to a different account")
	case err != nil:
		h.deps.Log.ErrorContext(r.Context(), "payment verification failed",
			logger.AccountID(ident.AccountID), logger.Error(err))
		respondError(w, http.StatusBadGateway, "provider_error", "could not verify payment, please try again")
	default:
		respond(w, http.StatusOK, result)
	}
}

func (h *handlers) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	ident, err := identity.FromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "no verified identity")
		return
	}

	err = h.deps.Checkout.Cancel(r.Context(), ident.AccountID)
	switch {
	case errors.Is(err, subscription.ErrRecordNotFound), errors.Is(err, subscription.ErrNoActiveSubscription):
		respondError(w, http.StatusNotFound, "no_subscription", "no active premium subscription to cancel")
	case err != nil:
		h.deps.Log.ErrorContext(r.Context(), "cancellation failed",
			logger.AccountID(ident.AccountID), logger.Error(err))
		respondError(w, http.StatusBadGateway, "provider_error", "could not cancel subscription, please try again")
	default:
		respond(w, http.StatusOK, map[string]string{"status": "cancellation_scheduled"})
	}
}

func (h *handlers) reactivateSubscription(w http.ResponseWriter, r *http.Request) {
	ident, err := identity.FromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "no verified identity")
		return
	}

	err = h.deps.Checkout.Reactivate(r.Context(), ident.AccountID)
	switch {
	case errors.Is(err, subscription.ErrRecordNotFound), errors.Is(err, subscription.ErrNoPendingCancellation):
		respondError(w, http.StatusNotFound, "no_pending_cancellation", "nothing to reactivate")
	case errors.Is(err, subscription.ErrSubscriptionExpired):
		respondError(w, http.StatusConflict, "subscription_expired", "the billing period has ended; start a new checkout to resubscribe")
	case err != nil:
		h.deps.Log.ErrorContext(r.Context(), "reactivation failed",
			logger.AccountID(ident.AccountID), logger.Error(err))
		respondError(w, http.StatusBadGateway, "provider_error", "could not reactivate subscription, please try again")
	default:
		respond(w, http.StatusOK, map[string]string{"status": "active"})
	}
}

func (h *handlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ident, err := identity.FromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "no verified identity")
		return
	}

	payments, err := h.deps.Payments.ListPayments(r.Context(), ident.AccountID)
	if err != nil {
		h.deps.Log.ErrorContext(r.Context(), "failed to list payments",
			logger.AccountID(ident.AccountID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "could not load payment history")
		return
	}
	respond(w, http.StatusOK, payments)
}

const maxWebhookBody = 1 << 20

func (h *handlers) billingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "could not read payload")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	err = h.deps.Reconciler.HandleWebhookEvent(r.Context(), payload, signature)
	switch {
	case errors.Is(err, subscription.ErrInvalidWebhookSignature):
		respondError(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
	case err != nil:
		// Non-2xx makes the provider redeliver; reconciliation is
		// idempotent so that is safe.
		h.deps.Log.ErrorContext(r.Context(), "webhook processing failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "event processing failed")
	default:
		respond(w, http.StatusOK, map[string]string{"received": "true"})
	}
}
