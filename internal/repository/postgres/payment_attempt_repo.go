// internal/repository/postgres/payment_attempt_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"athlos-billing/internal/domain/billing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentAttemptRepository struct {
	db *pgxpool.Pool
}

func NewPaymentAttemptRepository(db *pgxpool.Pool) *PaymentAttemptRepository {
	return &PaymentAttemptRepository{db: db}
}

// CreateWithTx appends an attempt record within a transaction. Attempts are
// append-only; there is no update path.
func (r *PaymentAttemptRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, attempt *billing.PaymentAttempt) error {
	query := `
		INSERT INTO payment_attempts (
			attempt_reference, subscription_id, provider, idempotency_key,
			amount, currency, status, failure_reason, provider_response, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var responseJSON []byte
	var err error
	if attempt.ProviderResponse != nil {
		responseJSON, err = json.Marshal(attempt.ProviderResponse)
		if err != nil {
			return fmt.Errorf("failed to marshal provider response: %w", err)
		}
	}

	err = tx.QueryRow(
		ctx, query,
		attempt.AttemptReference, attempt.SubscriptionID, attempt.Provider, attempt.IdempotencyKey,
		attempt.Amount, attempt.Currency, attempt.Status, attempt.FailureReason, responseJSON, attempt.CreatedAt,
	).Scan(&attempt.ID)

	if err != nil {
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}
	return nil
}

// ListBySubscription retrieves a subscription's attempt history, newest first.
func (r *PaymentAttemptRepository) ListBySubscription(ctx context.Context, subscriptionID int64, limit, offset int) ([]billing.PaymentAttempt, int, error) {
	query := `
		SELECT id, attempt_reference, subscription_id, provider, idempotency_key,
		       amount, currency, status, failure_reason, provider_response, created_at
		FROM payment_attempts
		WHERE subscription_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, subscriptionID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []billing.PaymentAttempt
	for rows.Next() {
		var a billing.PaymentAttempt
		var responseJSON []byte

		err := rows.Scan(
			&a.ID, &a.AttemptReference, &a.SubscriptionID, &a.Provider, &a.IdempotencyKey,
			&a.Amount, &a.Currency, &a.Status, &a.FailureReason, &responseJSON, &a.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payment attempt: %w", err)
		}
		if len(responseJSON) > 0 {
			json.Unmarshal(responseJSON, &a.ProviderResponse)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read payment attempts: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM payment_attempts WHERE subscription_id = $1`
	if err := r.db.QueryRow(ctx, countQuery, subscriptionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payment attempts: %w", err)
	}

	return attempts, total, nil
}
