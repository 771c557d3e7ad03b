package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	stripesub "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	APIKey        string `env:"STRIPE_API_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeProvider implements BillingProvider using the Stripe API. Checkout
// is Stripe-hosted; the account/plan cross-reference travels in session and
// subscription metadata so webhook deliveries can be attributed.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider creates a Stripe billing provider. Missing credentials
// are a configuration error and must halt startup.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	stripe.Key = cfg.APIKey
	return &StripeProvider{webhookSecret: cfg.WebhookSecret}, nil
}

// CreateCheckoutSession creates a Stripe-hosted checkout session in
// subscription mode. Metadata is set both on the session and on the
// subscription it will create, so that later events carry the attribution
// even when only one of the two objects is delivered.
func (p *StripeProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceRef == "" {
		return nil, errors.New("stripe: price ref is required")
	}

	metadata := map[string]string{
		"account_id": req.AccountID.String(),
		"plan_id":    req.PlanID,
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceRef),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return &CheckoutSession{
		ID:               sess.ID,
		URL:              sess.URL,
		AccountID:        req.AccountID.String(),
		PlanID:           req.PlanID,
		SubscriptionMode: true,
	}, nil
}

// GetCheckoutSession re-fetches a session with its subscription and line
// items expanded, never relying on anything the client claims about it.
func (p *StripeProvider) GetCheckoutSession(_ context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("subscription")
	params.AddExpand("line_items")

	sess, err := session.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve checkout session: %w", err)
	}

	out := &CheckoutSession{
		ID:               sess.ID,
		URL:              sess.URL,
		AccountID:        sess.Metadata["account_id"],
		PlanID:           sess.Metadata["plan_id"],
		Paid:             sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		SubscriptionMode: sess.Mode == stripe.CheckoutSessionModeSubscription,
	}
	if sess.Customer != nil {
		out.CustomerRef = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionRef = sess.Subscription.ID
		if end, interval := subscriptionPeriod(sess.Subscription); end != nil {
			out.PeriodEnd = end
			out.Interval = interval
		}
	}
	if out.Interval == "" && sess.LineItems != nil && len(sess.LineItems.Data) > 0 {
		if price := sess.LineItems.Data[0].Price; price != nil && price.Recurring != nil {
			out.Interval = string(price.Recurring.Interval)
		}
	}
	return out, nil
}

// GetSubscription retrieves the live subscription state from Stripe.
func (p *StripeProvider) GetSubscription(_ context.Context, providerSubID string) (*ProviderSubscription, error) {
	sub, err := stripesub.Get(providerSubID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve subscription: %w", err)
	}

	out := &ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if end, interval := subscriptionPeriod(sub); end != nil {
		out.CurrentPeriodEnd = *end
		out.Interval = interval
	}
	return out, nil
}

// CancelAtPeriodEnd schedules a cancellation at the current period end.
func (p *StripeProvider) CancelAtPeriodEnd(_ context.Context, providerSubID string) error {
	_, err := stripesub.Update(providerSubID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("stripe: cancel subscription at period end: %w", err)
	}
	return nil
}

// Reactivate clears a pending cancel-at-period-end.
func (p *StripeProvider) Reactivate(_ context.Context, providerSubID string) error {
	_, err := stripesub.Update(providerSubID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	})
	if err != nil {
		return fmt.Errorf("stripe: reactivate subscription: %w", err)
	}
	return nil
}

// subscriptionPeriod extracts the current period end and recurring interval
// from a subscription's first item.
func subscriptionPeriod(sub *stripe.Subscription) (*time.Time, string) {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, ""
	}
	item := sub.Items.Data[0]
	if item.CurrentPeriodEnd == 0 {
		return nil, ""
	}
	end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
	var interval string
	if item.Price != nil && item.Price.Recurring != nil {
		interval = string(item.Price.Recurring.Interval)
	}
	return &end, interval
}

// ParseWebhookEvent verifies the Stripe-Signature header against the shared
// secret and normalizes the event. Raw payload extraction deliberately uses
// loose local structs instead of deep SDK types so that provider API version
// drift does not break attribution.
func (p *StripeProvider) ParseWebhookEvent(payload []byte, signature string) (*WebhookEvent, error) {
	// Signature verification only; the API version pinned by the SDK is
	// not enforced, since the payload parsing below tolerates drift.
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrInvalidWebhookSignature, err)
	}

	out := &WebhookEvent{
		ID:            event.ID,
		ProviderEvent: string(event.Type),
		OccurredAt:    time.Unix(event.Created, 0).UTC(),
	}

	switch string(event.Type) {
	case "customer.subscription.created", "customer.subscription.updated":
		out.Type = EventSubscriptionUpdated
		if err := parseSubscriptionPayload(event.Data.Raw, out); err != nil {
			return nil, fmt.Errorf("stripe: parse subscription event: %w", err)
		}
	case "customer.subscription.deleted":
		out.Type = EventSubscriptionDeleted
		if err := parseSubscriptionPayload(event.Data.Raw, out); err != nil {
			return nil, fmt.Errorf("stripe: parse subscription event: %w", err)
		}
	case "invoice.payment_succeeded", "invoice.paid":
		out.Type = EventPaymentSucceeded
		if err := parseInvoicePayload(event.Data.Raw, out); err != nil {
			return nil, fmt.Errorf("stripe: parse invoice event: %w", err)
		}
	default:
		// Unmapped types pass through with no Type and are acknowledged
		// upstream without action.
	}
	return out, nil
}

func parseSubscriptionPayload(raw json.RawMessage, out *WebhookEvent) error {
	var sub struct {
		ID               string            `json:"id"`
		Status           string            `json:"status"`
		Customer         string            `json:"customer"`
		CurrentPeriodEnd int64             `json:"current_period_end"`
		Metadata         map[string]string `json:"metadata"`
		Items            struct {
			Data []struct {
				CurrentPeriodEnd int64 `json:"current_period_end"`
				Price            struct {
					ID        string `json:"id"`
					Recurring struct {
						Interval string `json:"interval"`
					} `json:"recurring"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return err
	}

	out.SubscriptionRef = sub.ID
	out.CustomerRef = sub.Customer
	out.Status = sub.Status
	out.AccountID = sub.Metadata["account_id"]
	out.PlanID = sub.Metadata["plan_id"]

	periodEnd := sub.CurrentPeriodEnd
	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.CurrentPeriodEnd > 0 {
			periodEnd = item.CurrentPeriodEnd
		}
		out.Interval = item.Price.Recurring.Interval
		if out.PlanID == "" {
			out.PlanID = item.Price.ID
		}
	}
	if periodEnd > 0 {
		end := time.Unix(periodEnd, 0).UTC()
		out.PeriodEnd = &end
	}
	return nil
}

func parseInvoicePayload(raw json.RawMessage, out *WebhookEvent) error {
	var inv struct {
		ID                  string `json:"id"`
		AmountPaid          int64  `json:"amount_paid"`
		Currency            string `json:"currency"`
		Customer            string `json:"customer"`
		Subscription        string `json:"subscription"`
		SubscriptionDetails struct {
			Metadata map[string]string `json:"metadata"`
		} `json:"subscription_details"`
		Parent struct {
			SubscriptionDetails struct {
				Subscription string            `json:"subscription"`
				Metadata     map[string]string `json:"metadata"`
			} `json:"subscription_details"`
		} `json:"parent"`
	}
	if err := json.Unmarshal(raw, &inv); err != nil {
		return err
	}

	out.PaymentRef = inv.ID
	out.Amount = inv.AmountPaid
	out.Currency = inv.Currency
	out.CustomerRef = inv.Customer

	// Subscription metadata location differs across Stripe API versions.
	meta := inv.SubscriptionDetails.Metadata
	if len(meta) == 0 {
		meta = inv.Parent.SubscriptionDetails.Metadata
	}
	out.AccountID = meta["account_id"]
	out.PlanID = meta["plan_id"]

	out.SubscriptionRef = inv.Subscription
	if out.SubscriptionRef == "" {
		out.SubscriptionRef = inv.Parent.SubscriptionDetails.Subscription
	}
	return nil
}
