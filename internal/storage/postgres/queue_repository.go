package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

const queueColumns = `id, shop_id, number, name, max_size, occupancy, active, created_at, updated_at`

type queueRepository struct {
	q querier
}

func (r queueRepository) Get(ctx context.Context, id string) (domain.Queue, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	q, err := scanQueue(r.q.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queues WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Queue{}, domain.ErrQueueNotFound
		}
		return domain.Queue{}, fmt.Errorf("select queue: %w", err)
	}
	return q, nil
}

func (r queueRepository) ListActiveByShop(ctx context.Context, shopID string) ([]domain.Queue, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE shop_id = $1 AND active
		ORDER BY number ASC, id ASC
	`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list active queues: %w", err)
	}
	defer rows.Close()

	queues := make([]domain.Queue, 0)
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		queues = append(queues, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue rows: %w", err)
	}
	return queues, nil
}

func (r queueRepository) Create(ctx context.Context, q domain.Queue) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO queues (`+queueColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, q.ID, q.ShopID, q.Number, q.Name, q.MaxSize, q.Occupancy, q.Active, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("queue %s already exists: %w", q.ID, err)
		}
		return fmt.Errorf("insert queue: %w", err)
	}
	return nil
}

func (r queueRepository) UpdateOccupancy(ctx context.Context, id string, occupancy int, updatedAt time.Time) error {
	if occupancy < 0 {
		return domain.ErrNegativeOccupancy
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE queues SET occupancy = $2, updated_at = $3 WHERE id = $1
	`, id, occupancy, updatedAt)
	if err != nil {
		return fmt.Errorf("update queue occupancy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrQueueNotFound
	}
	return nil
}

func scanQueue(row rowScanner) (domain.Queue, error) {
	var q domain.Queue
	if err := row.Scan(
		&q.ID, &q.ShopID, &q.Number, &q.Name, &q.MaxSize, &q.Occupancy, &q.Active, &q.CreatedAt, &q.UpdatedAt,
	); err != nil {
		return domain.Queue{}, err
	}
	q.CreatedAt = q.CreatedAt.UTC()
	q.UpdatedAt = q.UpdatedAt.UTC()
	return q, nil
}

var _ domain.QueueRepository = queueRepository{}
