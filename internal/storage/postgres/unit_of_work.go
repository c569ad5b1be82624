package postgres

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// unitOfWork — репозитории поверх одной SQL-транзакции.
type unitOfWork struct {
	tx      *sql.Tx
	queueID string
}

func (u unitOfWork) Orders() domain.OrderRepository { return orderRepository{q: u.tx} }
func (u unitOfWork) Queues() domain.QueueRepository { return queueRepository{q: u.tx} }
func (u unitOfWork) Entries() domain.QueueEntryRepository { return entryRepository{q: u.tx} }
func (u unitOfWork) Customers() domain.CustomerRepository { return customerRepository{q: u.tx} }
func (u unitOfWork) Outbox() domain.OutboxRepository { return outboxRepository{q: u.tx} }
func (u unitOfWork) Timeline() domain.TimelineRepository { return timelineRepository{q: u.tx} }
func (u unitOfWork) LockedQueueID() string { return u.queueID }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

var _ domain.Tx = unitOfWork{}
