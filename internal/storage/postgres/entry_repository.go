package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

const entryColumns = `id, queue_id, order_id, customer_id, position, estimated_wait_minutes, active, joined_at, left_at`

type entryRepository struct {
	q querier
}

func (r entryRepository) Create(ctx context.Context, entry domain.QueueEntry) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO queue_entries (`+entryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		entry.ID, entry.QueueID, entry.OrderID, entry.CustomerID, entry.Position,
		entry.EstimatedWaitMinutes, entry.Active, entry.JoinedAt, entry.LeftAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrPositionGap, err)
		}
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (r entryRepository) GetActiveByOrder(ctx context.Context, orderID string) (domain.QueueEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	entry, err := scanEntry(r.q.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE order_id = $1 AND active
	`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.QueueEntry{}, domain.ErrQueueEntryNotFound
		}
		return domain.QueueEntry{}, fmt.Errorf("select queue entry: %w", err)
	}
	return entry, nil
}

func (r entryRepository) ListActive(ctx context.Context, queueID string) ([]domain.QueueEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE queue_id = $1 AND active
		ORDER BY position ASC, joined_at ASC
	`, queueID)
	if err != nil {
		return nil, fmt.Errorf("list active entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.QueueEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", err)
	}
	return entries, nil
}

func (r entryRepository) Update(ctx context.Context, entry domain.QueueEntry) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE queue_entries
		SET position = $2,
		    estimated_wait_minutes = $3,
		    active = $4,
		    left_at = $5
		WHERE id = $1
	`, entry.ID, entry.Position, entry.EstimatedWaitMinutes, entry.Active, entry.LeftAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrPositionGap, err)
		}
		return fmt.Errorf("update queue entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrQueueEntryNotFound
	}
	return nil
}

func scanEntry(row rowScanner) (domain.QueueEntry, error) {
	var (
		entry  domain.QueueEntry
		leftAt sql.NullTime
	)
	if err := row.Scan(
		&entry.ID, &entry.QueueID, &entry.OrderID, &entry.CustomerID, &entry.Position,
		&entry.EstimatedWaitMinutes, &entry.Active, &entry.JoinedAt, &leftAt,
	); err != nil {
		return domain.QueueEntry{}, err
	}
	entry.JoinedAt = entry.JoinedAt.UTC()
	entry.LeftAt = timePtr(leftAt)
	return entry, nil
}

var _ domain.QueueEntryRepository = entryRepository{}
