package hold

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

// DurableStore is the slice of the ticket repository the hold manager needs:
// the hold_expires_at column, nothing else.
type DurableStore interface {
	GetTicketHoldExpiry(ctx context.Context, id uuid.UUID) (*time.Time, error)
	SetTicketHoldExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	ClearTicketHoldExpiry(ctx context.Context, ids []uuid.UUID) error
}

// LockStore is the fast mutual-exclusion store: atomic set-if-absent with a
// TTL, keyed by ticket ID.
type LockStore interface {
	Acquire(ctx context.Context, ticketID, holderID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, ticketID string) error
	IsLocked(ctx context.Context, ticketID string) (bool, error)
}

// Manager places and releases short-lived exclusive holds on ticket IDs.
// It is the only component allowed to move a ticket's hold markers; the
// order workflow owns every other transition.
type Manager struct {
	durable DurableStore
	locks   LockStore
	ttl     time.Duration
	logger  observability.Logger
}

func NewManager(durable DurableStore, locks LockStore, ttl time.Duration, logger observability.Logger) *Manager {
	return &Manager{durable: durable, locks: locks, ttl: ttl, logger: logger}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Hold acquires all ticket IDs or none. Tickets are processed sequentially in
// the input order; on the first conflict every hold acquired earlier in the
// call is released before the error propagates.
//
// Two checks per ticket: the durable hold_expires_at first (covers a Redis
// key that expired or was evicted before the durable record was swept), then
// the atomic SetNX on the lock store. On success the durable marker is
// persisted with the same TTL the lock carries.
func (m *Manager) Hold(ctx context.Context, ticketIDs []uuid.UUID, holderID string) error {
	now := time.Now()
	acquired := make([]uuid.UUID, 0, len(ticketIDs))

	for _, id := range ticketIDs {
		expiry, err := m.durable.GetTicketHoldExpiry(ctx, id)
		if err != nil {
			m.rollback(ctx, acquired)
			return err
		}
		if expiry != nil && expiry.After(now) {
			m.rollback(ctx, acquired)
			observability.HoldConflicts.Inc()
			return errors.Wrapf(domain.ErrConflict, "ticket %s already held", id)
		}

		ok, err := m.locks.Acquire(ctx, id.String(), holderID, m.ttl)
		if err != nil {
			m.rollback(ctx, acquired)
			return err
		}
		if !ok {
			m.rollback(ctx, acquired)
			observability.HoldConflicts.Inc()
			return errors.Wrapf(domain.ErrConflict, "ticket %s already held", id)
		}
		acquired = append(acquired, id)

		if err := m.durable.SetTicketHoldExpiry(ctx, id, now.Add(m.ttl)); err != nil {
			m.rollback(ctx, acquired)
			return err
		}
	}
	return nil
}

// Release drops the lock keys and nulls the durable markers unconditionally.
// It does not verify the caller is the original holder, and it is a no-op on
// an empty list. Safe to call on tickets that were never held.
func (m *Manager) Release(ctx context.Context, ticketIDs []uuid.UUID) error {
	if len(ticketIDs) == 0 {
		return nil
	}
	for _, id := range ticketIDs {
		if err := m.locks.Release(ctx, id.String()); err != nil {
			m.logger.WithError(err).WithField("ticket_id", id).Error("failed to release hold lock")
		}
	}
	return m.durable.ClearTicketHoldExpiry(ctx, ticketIDs)
}

func (m *Manager) IsHeld(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	return m.locks.IsLocked(ctx, ticketID.String())
}

func (m *Manager) rollback(ctx context.Context, acquired []uuid.UUID) {
	if err := m.Release(ctx, acquired); err != nil {
		m.logger.WithError(err).Error("failed to roll back partial hold")
	}
}
