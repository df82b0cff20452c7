// internal/repository/postgres/order_repo.go
package postgres

import (
	"context"
	"fmt"

	"backoffice-service/internal/domain/customer"

	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// FindByCustomerID returns a customer's orders, newest first.
func (r *OrderRepository) FindByCustomerID(ctx context.Context, customerID string) ([]customer.Order, error) {
	query := `
		SELECT id, customer_id, total, status, created_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []customer.Order
	for rows.Next() {
		var o customer.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Total, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	return orders, nil
}
