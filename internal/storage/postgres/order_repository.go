package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

const orderColumns = `
	id, number, customer_id, shop_id, queue_id, status, notes, total_minor,
	estimated_wait_minutes, version, created_at, updated_at, completed_at, cancelled_at`

type orderRepository struct {
	q querier
}

func (r orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		order.ID, order.Number, order.CustomerID, order.ShopID, nullString(order.QueueID),
		string(order.Status), order.Notes, order.TotalMinor, order.EstimatedWaitMinutes,
		order.Version, order.CreatedAt, order.UpdatedAt, order.CompletedAt, order.CancelledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, menu_item_id, menu_item_name, qty,
				unit_price_minor, subtotal_minor, notes, line_no
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			item.ID, order.ID, item.MenuItemID, item.MenuItemName, item.Qty,
			item.UnitPriceMinor, item.SubtotalMinor, item.Notes, i,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	return r.list(ctx, `WHERE customer_id = $1`, limit, customerID)
}

func (r orderRepository) ListByCustomerAndShop(ctx context.Context, customerID, shopID string, limit int) ([]domain.Order, error) {
	return r.list(ctx, `WHERE customer_id = $1 AND shop_id = $2`, limit, customerID, shopID)
}

// list выбирает заказы по условию where (новые первыми); limit > 0 добавляет LIMIT следующим параметром.
func (r orderRepository) list(ctx context.Context, where string, limit int, args ...any) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		` + where + `
		ORDER BY created_at DESC, id DESC
	`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	// Внутри транзакции нельзя открыть второй запрос, пока не закрыт первый.
	rows.Close()

	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET queue_id = $1,
		    status = $2,
		    notes = $3,
		    total_minor = $4,
		    estimated_wait_minutes = $5,
		    version = version + 1,
		    updated_at = $6,
		    completed_at = $7,
		    cancelled_at = $8
		WHERE id = $9
		  AND version = $10
	`,
		nullString(order.QueueID),
		string(order.Status),
		order.Notes,
		order.TotalMinor,
		order.EstimatedWaitMinutes,
		order.UpdatedAt,
		order.CompletedAt,
		order.CancelledAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, menu_item_id, menu_item_name, qty, unit_price_minor, subtotal_minor, notes
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.MenuItemID, &item.MenuItemName, &item.Qty,
			&item.UnitPriceMinor, &item.SubtotalMinor, &item.Notes,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r orderRepository) exists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order     domain.Order
		status    string
		queueID   sql.NullString
		completed sql.NullTime
		cancelled sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.Number, &order.CustomerID, &order.ShopID, &queueID,
		&status, &order.Notes, &order.TotalMinor, &order.EstimatedWaitMinutes,
		&order.Version, &order.CreatedAt, &order.UpdatedAt, &completed, &cancelled,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.QueueID = queueID.String
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	order.CompletedAt = timePtr(completed)
	order.CancelledAt = timePtr(cancelled)
	return order, nil
}

var _ domain.OrderRepository = orderRepository{}
