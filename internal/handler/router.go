// Package handler is the thin HTTP boundary over the entitlement engine.
// Routing and transport concerns live here; all decisions are made by the
// injected components.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fluentloop/backend/internal/catalog"
	"github.com/fluentloop/backend/internal/identity"
)

// Deps are the components the router serves. All are required except
// Healthcheck.
type Deps struct {
	Resolver    Resolver
	Gate        Gate
	Checkout    CheckoutService
	Reconciler  WebhookReconciler
	Provisioner Provisioner
	Payments    PaymentHistory
	Catalog     *catalog.Catalog
	Identity    identity.Config
	Log         *slog.Logger
	Healthcheck func(context.Context) error
}

// New assembles the chi router: authenticated API routes behind the identity
// middleware, the webhook endpoint authenticated by signature instead, and
// the health probe open.
func New(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	h := &handlers{deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	// Provider-pushed events arrive out-of-band from any user session and
	// authenticate by payload signature, not bearer token.
	r.Post("/v1/webhooks/billing", h.billingWebhook)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(d.Identity))

		r.Post("/v1/auth/signin", h.signIn)
		r.Get("/v1/subscription/status", h.subscriptionStatus)
		r.Post("/v1/subscription/cancel", h.cancelSubscription)
		r.Post("/v1/subscription/reactivate", h.reactivateSubscription)
		r.Get("/v1/features/{feature}/access", h.featureAccess)
		r.Post("/v1/checkout/session", h.createCheckout)
		r.Post("/v1/checkout/verify", h.verifyCheckout)
		r.Get("/v1/payments", h.listPayments)
	})

	return r
}
