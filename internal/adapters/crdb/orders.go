package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

// CreatePendingOrder runs the order-creation transaction: the PENDING order
// row, its ticket references, the HELD transition on every ticket, and an
// order.created outbox record, committed as one unit.
func (r *Repository) CreatePendingOrder(ctx context.Context, order domain.Order, holdExpiresAt time.Time) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, code, status, total_price, method, attendee_id, guest_name, guest_email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, order.ID, order.Code, order.Status, order.TotalPrice, order.Method,
			order.AttendeeID, order.GuestName, order.GuestEmail, order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return err
		}

		// One batch on the tx connection: pgx.Tx is not safe for
		// concurrent Execs.
		batch := &pgx.Batch{}
		for _, tid := range order.TicketIDs {
			batch.Queue(`
				INSERT INTO order_tickets (order_id, ticket_id)
				VALUES ($1, $2)
			`, order.ID, tid)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		expiry := holdExpiresAt
		if err := r.updateTicketsStatusTx(ctx, tx, order.TicketIDs, domain.TicketHeld, &expiry); err != nil {
			return err
		}

		return r.insertOutboxTx(ctx, tx, "order", order.ID, "order.created", orderEventPayload(order))
	})
}

// CompleteOrder runs the payment-confirmation transaction: claims for every
// ticket (the claimed_tickets primary key rejects duplicates), the CLAIMED
// transition, the PAID transition, and an order.paid outbox record. A unique
// violation aborts the whole transaction as ErrConflict.
func (r *Repository) CompleteOrder(ctx context.Context, order domain.Order) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		for _, claim := range domain.NewClaims(order) {
			_, err := tx.Exec(ctx, `
				INSERT INTO claimed_tickets (id, order_id, attendee_id, status, created_at)
				VALUES ($1, $2, $3, $4, $5)
			`, claim.ID, claim.OrderID, claim.AttendeeID, claim.Status, claim.CreatedAt)
			if err != nil {
				return err
			}
		}

		if err := r.updateTicketsStatusTx(ctx, tx, order.TicketIDs, domain.TicketClaimed, nil); err != nil {
			return err
		}

		if err := r.updateOrderStatusTx(ctx, tx, order.ID, domain.OrderPaid); err != nil {
			return err
		}

		return r.insertOutboxTx(ctx, tx, "order", order.ID, "order.paid", orderEventPayload(order))
	})
}

// CancelOrder transitions the order to CANCELLED and its tickets back to
// AVAILABLE in one transaction, with an order.cancelled outbox record.
func (r *Repository) CancelOrder(ctx context.Context, order domain.Order) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := r.updateOrderStatusTx(ctx, tx, order.ID, domain.OrderCancelled); err != nil {
			return err
		}
		if err := r.updateTicketsStatusTx(ctx, tx, order.TicketIDs, domain.TicketAvailable, nil); err != nil {
			return err
		}
		return r.insertOutboxTx(ctx, tx, "order", order.ID, "order.cancelled", orderEventPayload(order))
	})
}

func (r *Repository) updateOrderStatusTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status domain.OrderStatus) error {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
	`, orderID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
	`, orderID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderColumns = `id, code, status, total_price, method, attendee_id, guest_name, guest_email, created_at, updated_at`

func (r *Repository) scanOrder(ctx context.Context, row pgx.Row) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(&order.ID, &order.Code, &order.Status, &order.TotalPrice, &order.Method,
		&order.AttendeeID, &order.GuestName, &order.GuestEmail, &order.CreatedAt, &order.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if order.TicketIDs, err = r.loadTicketIDs(ctx, order.ID); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) loadTicketIDs(ctx context.Context, orderID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ticket_id FROM order_tickets WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var tid uuid.UUID
		if err := rows.Scan(&tid); err != nil {
			return nil, err
		}
		ids = append(ids, tid)
	}
	return ids, rows.Err()
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return r.scanOrder(ctx, r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1
	`, orderID))
}

func (r *Repository) GetOrderByCode(ctx context.Context, code int64) (*domain.Order, error) {
	return r.scanOrder(ctx, r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE code = $1
	`, code))
}

func (r *Repository) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var order domain.Order
		err := rows.Scan(&order.ID, &order.Code, &order.Status, &order.TotalPrice, &order.Method,
			&order.AttendeeID, &order.GuestName, &order.GuestEmail, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if orders[i].TicketIDs, err = r.loadTicketIDs(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ExpiredPendingOrders returns PENDING orders where at least one referenced
// ticket's durable hold has lapsed. The sweeper cancels each one.
func (r *Repository) ExpiredPendingOrders(ctx context.Context, now time.Time) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT o.id
		FROM orders o
		JOIN order_tickets ot ON ot.order_id = o.id
		JOIN issued_tickets t ON t.id = ot.ticket_id
		WHERE o.status = $1 AND t.hold_expires_at IS NOT NULL AND t.hold_expires_at <= $2
	`, domain.OrderPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var orders []domain.Order
	for _, id := range ids {
		order, err := r.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

func orderEventPayload(order domain.Order) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"order_id":    order.ID,
		"order_code":  order.Code,
		"attendee_id": order.AttendeeID,
		"total_price": order.TotalPrice,
		"ticket_ids":  order.TicketIDs,
	})
	return payload
}
