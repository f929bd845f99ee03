// internal/repository/postgres/audit_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"athlos-billing/internal/domain/audit"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit event. Audit rows are append-only.
func (r *AuditRepository) Create(ctx context.Context, e *audit.Event) error {
	query := `
		INSERT INTO audit_events (actor, action, details)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	var detailsJSON []byte
	var err error
	if e.Details != nil {
		detailsJSON, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	err = r.db.QueryRow(ctx, query, e.Actor, e.Action, detailsJSON).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}
	return nil
}
