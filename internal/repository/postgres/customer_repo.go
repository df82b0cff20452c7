// internal/repository/postgres/customer_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice-service/internal/domain/customer"
	xerrors "backoffice-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CustomerRepository struct {
	db *pgxpool.Pool
}

func NewCustomerRepository(db *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `id, name, email, phone, created_at, updated_at`

// FindByID retrieves a customer by its exact id.
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	var c customer.Customer
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}

	return &c, nil
}

// FindByNameCaseInsensitive retrieves a customer by exact name, ignoring
// case.
func (r *CustomerRepository) FindByNameCaseInsensitive(ctx context.Context, name string) (*customer.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE LOWER(name) = LOWER($1)`

	var c customer.Customer
	err := r.db.QueryRow(ctx, query, name).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer by name: %w", err)
	}

	return &c, nil
}

// Create inserts a customer. The id is pre-allocated by the caller.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO customers (id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, c.ID, c.Name, c.Email, c.Phone).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

// Update applies the non-nil fields and returns the updated record.
func (r *CustomerRepository) Update(ctx context.Context, id string, fields customer.UpdateFields) (*customer.Customer, error) {
	sets := []string{}
	args := []interface{}{}
	argPos := 1

	if fields.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *fields.Name)
		argPos++
	}
	if fields.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", argPos))
		args = append(args, *fields.Email)
		argPos++
	}
	if fields.Phone != nil {
		sets = append(sets, fmt.Sprintf("phone = $%d", argPos))
		args = append(args, *fields.Phone)
		argPos++
	}

	if len(sets) == 0 {
		return nil, xerrors.ErrInvalidInput
	}

	sets = append(sets, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now())
	argPos++

	query := fmt.Sprintf(
		`UPDATE customers SET %s WHERE id = $%d RETURNING `+customerColumns,
		strings.Join(sets, ", "), argPos,
	)
	args = append(args, id)

	var c customer.Customer
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}

	return &c, nil
}

// Delete removes a customer and cascades to their orders in one transaction.
func (r *CustomerRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE customer_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete customer orders: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	return nil
}

// ListAllWithOrderCounts returns every customer together with how many
// orders they have, sorted by id.
func (r *CustomerRepository) ListAllWithOrderCounts(ctx context.Context) ([]customer.CustomerWithOrderCount, error) {
	query := `
		SELECT c.id, c.name, c.email, c.phone, c.created_at, c.updated_at,
		       COUNT(o.id) AS order_count
		FROM customers c
		LEFT JOIN orders o ON o.customer_id = c.id
		GROUP BY c.id, c.name, c.email, c.phone, c.created_at, c.updated_at
		ORDER BY c.id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []customer.CustomerWithOrderCount
	for rows.Next() {
		var c customer.CustomerWithOrderCount
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt,
			&c.OrderCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}

	return customers, nil
}
