package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "verigate/pkg/domain"
	audit "verigate/pkg/platform/audit"
)

// Store implements audit.Store on the ledger_audit_events table.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL audit store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append inserts an audit event. The category is always derived from the
// action so the category map stays the source of truth.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := audit.AuditEvent(event.Action).Category()
	var remaining *int32
	if event.Remaining != nil {
		r := int32(*event.Remaining)
		remaining = &r
	}
	var userID *uuid.UUID
	if !event.UserID.IsNil() {
		u := uuid.UUID(event.UserID)
		userID = &u
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_audit_events (
			id, category, occurred_at, user_id, action, order_id,
			verification_type, remaining, reason, request_id, client_ip, device
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.New(),
		string(category),
		event.Timestamp,
		userID,
		event.Action,
		event.OrderID,
		event.VerificationType,
		remaining,
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns a user's events oldest first.
func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, occurred_at, action, order_id, verification_type,
		       remaining, reason, request_id, client_ip, device
		FROM ledger_audit_events
		WHERE user_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Event, error) {
		var (
			e         audit.Event
			category  string
			remaining *int32
		)
		if err := row.Scan(&category, &e.Timestamp, &e.Action, &e.OrderID,
			&e.VerificationType, &remaining, &e.Reason, &e.RequestID, &e.ClientIP, &e.Device); err != nil {
			return audit.Event{}, err
		}
		e.Category = audit.EventCategory(category)
		e.UserID = userID
		if remaining != nil {
			r := int(*remaining)
			e.Remaining = &r
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit events: %w", err)
	}
	return events, nil
}
