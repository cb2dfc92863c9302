package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/joao-fontenele/bookstore-orders/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order in a single statement. The bool reports whether
// a new row was written; it is false when the idempotency key was already
// used by the same user, in which case the stored order is returned.
func (r *OrderRepository) Create(ctx context.Context, n domain.NewOrder) (domain.Order, bool, error) {
	if err := n.Validate(); err != nil {
		return domain.Order{}, false, err
	}

	var key sql.NullString
	if n.IdempotencyKey != "" {
		key = sql.NullString{String: n.IdempotencyKey, Valid: true}
	}

	var order domain.Order
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO orders (id, user_id, book_id, quantity, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING
		RETURNING id, user_id, book_id, quantity, created_at
	`, uuid.New().String(), n.UserID, n.BookID, n.Quantity, key).
		Scan(&order.ID, &order.UserID, &order.BookID, &order.Quantity, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) && key.Valid {
		existing, err := r.getByIdempotencyKey(ctx, n.UserID, n.IdempotencyKey)
		if err != nil {
			return domain.Order{}, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("%w: insert order: %w", domain.ErrStore, err)
	}

	order.CreatedAt = order.CreatedAt.UTC()
	return order, true, nil
}

func (r *OrderRepository) getByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error) {
	var order domain.Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, book_id, quantity, created_at
		FROM orders
		WHERE user_id = $1 AND idempotency_key = $2
	`, userID, key).Scan(&order.ID, &order.UserID, &order.BookID, &order.Quantity, &order.CreatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: load replayed order: %w", domain.ErrStore, err)
	}
	order.CreatedAt = order.CreatedAt.UTC()
	return order, nil
}

// ListByUser never returns a nil slice, so an empty result encodes as [].
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, book_id, quantity, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", domain.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.BookID, &order.Quantity, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan order: %w", domain.ErrStore, err)
		}
		order.CreatedAt = order.CreatedAt.UTC()
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", domain.ErrStore, err)
	}

	return orders, nil
}

// CountByUser is used by operators and tests to check that rejected
// requests left no rows behind.
func (r *OrderRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count orders: %w", domain.ErrStore, err)
	}
	return n, nil
}
