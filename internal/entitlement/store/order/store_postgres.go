package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"verigate/internal/entitlement/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

// PostgresStore persists Orders in PostgreSQL. Eligible types live in
// order_eligible_types; TryDebit is one conditional UPDATE.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const orderColumns = `
	o.order_id, o.user_id, o.status, o.total_granted, o.used, o.remaining,
	o.expires_at, o.created_at,
	ARRAY(
		SELECT e.verification_type FROM order_eligible_types e
		WHERE e.order_id = o.order_id ORDER BY e.ordinal
	) AS eligible_types`

func (s *PostgresStore) FindUsableOrders(ctx context.Context, userID id.UserID, types []id.VerificationType, now time.Time) ([]*models.Order, error) {
	if len(types) == 0 {
		return nil, nil
	}
	tags := make([]string, len(types))
	for i, t := range types {
		tags[i] = t.String()
	}
	query := `SELECT` + orderColumns + `
		FROM orders o
		WHERE o.user_id = $1
		  AND o.status = 'active'
		  AND o.remaining > 0
		  AND o.expires_at > $2
		  AND EXISTS (
			SELECT 1 FROM order_eligible_types e
			WHERE e.order_id = o.order_id AND e.verification_type = ANY($3)
		  )
		ORDER BY o.expires_at ASC, o.created_at ASC, o.order_id ASC
	`
	rows, err := s.pool.Query(ctx, query, uuid.UUID(userID), now, tags)
	if err != nil {
		return nil, fmt.Errorf("find usable orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scan usable orders: %w", err)
	}
	return orders, nil
}

func (s *PostgresStore) TryDebit(ctx context.Context, orderID id.OrderID, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET remaining = remaining - 1,
		    used = used + 1
		WHERE order_id = $1
		  AND status = 'active'
		  AND remaining >= 1
		  AND expires_at > $2
	`, uuid.UUID(orderID), now)
	if err != nil {
		return false, fmt.Errorf("debit order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Grant(ctx context.Context, order *models.Order) error {
	if order == nil {
		return sentinel.ErrInvalidState
	}
	if err := order.Validate(); err != nil {
		return err
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders (order_id, user_id, status, total_granted, used, remaining, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			uuid.UUID(order.ID),
			uuid.UUID(order.UserID),
			string(order.Status),
			order.Quota.TotalGranted,
			order.Quota.Used,
			order.Quota.Remaining,
			order.Quota.ExpiresAt,
			order.CreatedAt,
		); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, t := range order.Quota.EligibleTypes {
			batch.Queue(`
				INSERT INTO order_eligible_types (order_id, verification_type, ordinal)
				VALUES ($1, $2, $3)
			`, uuid.UUID(order.ID), t.String(), i)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("grant order: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+orderColumns+`
		FROM orders o
		WHERE o.order_id = $1
	`, uuid.UUID(orderID))
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	order, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return order, nil
}

func (s *PostgresStore) ListActive(ctx context.Context, userID id.UserID, now time.Time) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+orderColumns+`
		FROM orders o
		WHERE o.user_id = $1
		  AND o.status = 'active'
		  AND o.remaining > 0
		  AND o.expires_at > $2
		ORDER BY o.expires_at ASC, o.created_at ASC, o.order_id ASC
	`, uuid.UUID(userID), now)
	if err != nil {
		return nil, fmt.Errorf("list active orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scan active orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (*models.Order, error) {
	var (
		orderID, userID uuid.UUID
		status          string
		types           []string
		o               models.Order
	)
	if err := row.Scan(
		&orderID,
		&userID,
		&status,
		&o.Quota.TotalGranted,
		&o.Quota.Used,
		&o.Quota.Remaining,
		&o.Quota.ExpiresAt,
		&o.CreatedAt,
		&types,
	); err != nil {
		return nil, err
	}
	o.ID = id.OrderID(orderID)
	o.UserID = id.UserID(userID)
	o.Status = models.OrderStatus(status)
	o.Quota.EligibleTypes = make([]id.VerificationType, len(types))
	for i, t := range types {
		o.Quota.EligibleTypes[i] = id.VerificationType(t)
	}
	return &o, nil
}
