package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

type customerRepository struct {
	q querier
}

func (r customerRepository) Get(ctx context.Context, id string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var c domain.Customer
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, total_orders, loyalty_score FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.TotalOrders, &c.LoyaltyScore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return c, nil
}

func (r customerRepository) Create(ctx context.Context, c domain.Customer) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO customers (id, name, total_orders, loyalty_score) VALUES ($1,$2,$3,$4)
	`, c.ID, c.Name, c.TotalOrders, c.LoyaltyScore)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("customer %s already exists: %w", c.ID, err)
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (r customerRepository) RecordOrderPlaced(ctx context.Context, id string) error {
	return r.bump(ctx, id, 1, 1)
}

func (r customerRepository) RecordOrderServed(ctx context.Context, id string) error {
	return r.bump(ctx, id, 0, 1)
}

// bump меняет счётчики атомарным UPDATE, поэтому параллельные заказы одного клиента не теряют приращений.
func (r customerRepository) bump(ctx context.Context, id string, orders, loyalty int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE customers
		SET total_orders = total_orders + $2,
		    loyalty_score = loyalty_score + $3
		WHERE id = $1
	`, id, orders, loyalty)
	if err != nil {
		return fmt.Errorf("update customer counters: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

var _ domain.CustomerRepository = customerRepository{}
