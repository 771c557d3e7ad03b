// Package postgres implements subscription.Store on PostgreSQL via pgx.
// Records are written with a full-row upsert keyed by account id, so
// concurrent writers resolve last-writer-wins without ever leaving a
// partially updated row behind.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluentloop/backend/internal/subscription"
	"github.com/fluentloop/backend/pkg/pg"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// Store is the PostgreSQL-backed subscription store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store on the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const recordColumns = `account_id, tier, status, plan_id, expires_at, billing_period,
	provider_customer_ref, provider_subscription_ref, cancelled_at, created_at, updated_at`

func (s *Store) Get(ctx context.Context, accountID uuid.UUID) (*subscription.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM subscriptions WHERE account_id = $1`, accountID)
	return scanRecord(row)
}

func (s *Store) GetByProviderSubID(ctx context.Context, providerSubID string) (*subscription.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM subscriptions WHERE provider_subscription_ref = $1`, providerSubID)
	return scanRecord(row)
}

// Save upserts the full record. ON CONFLICT overwrites every mutable column
// so the row always reflects exactly one writer's view.
func (s *Store) Save(ctx context.Context, rec *subscription.Record) error {
	var billingPeriod *string
	if rec.BillingPeriod != nil {
		bp := string(*rec.BillingPeriod)
		billingPeriod = &bp
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (account_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			plan_id = EXCLUDED.plan_id,
			expires_at = EXCLUDED.expires_at,
			billing_period = EXCLUDED.billing_period,
			provider_customer_ref = EXCLUDED.provider_customer_ref,
			provider_subscription_ref = EXCLUDED.provider_subscription_ref,
			cancelled_at = EXCLUDED.cancelled_at,
			updated_at = EXCLUDED.updated_at`,
		rec.AccountID, string(rec.Tier), string(rec.Status), rec.PlanID,
		rec.ExpiresAt, billingPeriod,
		rec.ProviderCustomerRef, rec.ProviderSubscriptionRef, rec.CancelledAt,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save subscription: %w", err)
	}
	return nil
}

// AppendPayment inserts one payment history entry. The unique constraint on
// the provider payment ref makes redelivered events a no-op.
func (s *Store) AppendPayment(ctx context.Context, p subscription.Payment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_history (account_id, amount, currency, provider_payment_ref, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_payment_ref) DO NOTHING`,
		p.AccountID, p.Amount, p.Currency, p.ProviderPaymentRef, p.OccurredAt)
	if err != nil {
		return fmt.Errorf("postgres: append payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, accountID uuid.UUID) ([]subscription.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, amount, currency, provider_payment_ref, occurred_at
		FROM payment_history WHERE account_id = $1 ORDER BY occurred_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payments: %w", err)
	}
	defer rows.Close()

	var out []subscription.Payment
	for rows.Next() {
		var p subscription.Payment
		if err := rows.Scan(&p.AccountID, &p.Amount, &p.Currency, &p.ProviderPaymentRef, &p.OccurredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*subscription.Record, error) {
	var (
		rec           subscription.Record
		tier, status  string
		billingPeriod *string
	)
	err := row.Scan(&rec.AccountID, &tier, &status, &rec.PlanID,
		&rec.ExpiresAt, &billingPeriod,
		&rec.ProviderCustomerRef, &rec.ProviderSubscriptionRef, &rec.CancelledAt,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, subscription.ErrRecordNotFound
		}
		return nil, fmt.Errorf("postgres: scan subscription: %w", err)
	}

	rec.Tier = subscription.Tier(tier)
	rec.Status = subscription.Status(status)
	if billingPeriod != nil {
		bp := subscription.BillingPeriod(*billingPeriod)
		rec.BillingPeriod = &bp
	}
	return &rec, nil
}
