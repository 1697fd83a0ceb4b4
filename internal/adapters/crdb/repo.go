package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	timer := prometheus.NewTimer(observability.DBTxDuration)
	defer timer.ObserveDuration()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case SerializationFailureCode:
				return domain.ErrSerializationFailure
			case UniqueViolationCode:
				return domain.ErrConflict
			}
		}
		return err
	}

	return tx.Commit(ctx)
}

const ticketColumns = `id, event_id, organization_id, price, currency, class, seat, status, hold_expires_at`

func scanTicket(row pgx.Row) (*domain.IssuedTicket, error) {
	var t domain.IssuedTicket
	err := row.Scan(&t.ID, &t.EventID, &t.OrganizationID, &t.Price, &t.Currency, &t.Class, &t.Seat, &t.Status, &t.HoldExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) InsertTicket(ctx context.Context, t domain.IssuedTicket) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO issued_tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.EventID, t.OrganizationID, t.Price, t.Currency, t.Class, t.Seat, t.Status, t.HoldExpiresAt)
	return err
}

func (r *Repository) GetTicket(ctx context.Context, id uuid.UUID) (*domain.IssuedTicket, error) {
	return scanTicket(r.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM issued_tickets WHERE id = $1
	`, id))
}

// GetTicketHoldExpiry reads only the durable hold marker; the hold manager
// consults it before touching Redis.
func (r *Repository) GetTicketHoldExpiry(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	var expiry *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT hold_expires_at FROM issued_tickets WHERE id = $1
	`, id).Scan(&expiry)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return expiry, nil
}

func (r *Repository) SetTicketHoldExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE issued_tickets SET hold_expires_at = $2 WHERE id = $1
	`, id, expiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClearTicketHoldExpiry nulls the durable marker unconditionally. Holder
// identity is not checked here; see the hold manager's release contract.
func (r *Repository) ClearTicketHoldExpiry(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE issued_tickets SET hold_expires_at = NULL WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) updateTicketsStatusTx(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, status domain.TicketStatus, expiry *time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE issued_tickets SET status = $2, hold_expires_at = $3 WHERE id = ANY($1)
	`, ids, status, expiry)
	if err != nil {
		return err
	}
	if result.RowsAffected() != int64(len(ids)) {
		return domain.ErrNotFound
	}
	return nil
}

// MarkTicketsAvailable reverts tickets to AVAILABLE and drops the durable
// hold marker, outside any order transaction. Used by the payment-link
// failure compensation.
func (r *Repository) MarkTicketsAvailable(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE issued_tickets SET status = $2, hold_expires_at = NULL WHERE id = ANY($1)
	`, ids, domain.TicketAvailable)
	return err
}
