package order

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/payment"
	"github.com/shopspring/decimal"
)

// Store is the durable side of the workflow. Multi-row writes
// (CreatePendingOrder, CompleteOrder, CancelOrder) each run as one
// SERIALIZABLE transaction inside the repository.
type Store interface {
	GetTicket(ctx context.Context, id uuid.UUID) (*domain.IssuedTicket, error)
	CreatePendingOrder(ctx context.Context, order domain.Order, holdExpiresAt time.Time) error
	CompleteOrder(ctx context.Context, order domain.Order) error
	CancelOrder(ctx context.Context, order domain.Order) error
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error
	MarkTicketsAvailable(ctx context.Context, ids []uuid.UUID) error
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	GetOrderByCode(ctx context.Context, code int64) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
}

// Holder is the hold manager's contract: all-or-nothing acquisition,
// unconditional release.
type Holder interface {
	Hold(ctx context.Context, ticketIDs []uuid.UUID, holderID string) error
	Release(ctx context.Context, ticketIDs []uuid.UUID) error
	TTL() time.Duration
}

// Gateway is the payment adapter's contract as the workflow sees it.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, orderCode int64, amount decimal.Decimal, description string, items []payment.LineItem) (string, error)
	CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error
}

// Auditor records lifecycle transitions out-of-band; failures are logged,
// never propagated.
type Auditor interface {
	OrderTransition(ctx context.Context, order domain.Order, action string) error
}

type Service struct {
	store   Store
	holds   Holder
	gateway Gateway
	audit   Auditor
	logger  observability.Logger
}

func NewService(store Store, holds Holder, gateway Gateway, audit Auditor, logger observability.Logger) *Service {
	return &Service{store: store, holds: holds, gateway: gateway, audit: audit, logger: logger}
}

type CreateInput struct {
	TicketIDs  []uuid.UUID
	AttendeeID uuid.UUID
	GuestName  string
	GuestEmail string
	Method     string
}

type CreateResult struct {
	Order       domain.Order
	PaymentLink string
}

// Create validates the request, re-reads every ticket's authoritative price
// (client-declared totals are ignored), acquires holds, writes the PENDING
// order transactionally, and opens a checkout session. Every failure path
// releases whatever was acquired before propagating.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if len(in.TicketIDs) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "Ticket list is empty")
	}
	seen := make(map[uuid.UUID]struct{}, len(in.TicketIDs))
	for _, id := range in.TicketIDs {
		if _, dup := seen[id]; dup {
			return nil, errors.Wrap(domain.ErrInvalidInput, "Duplicate ticket IDs")
		}
		seen[id] = struct{}{}
	}
	if in.AttendeeID == uuid.Nil && in.GuestEmail == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "Attendee or guest contact required")
	}

	tickets := make([]domain.IssuedTicket, 0, len(in.TicketIDs))
	for _, id := range in.TicketIDs {
		ticket, err := s.store.GetTicket(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ticket.Sellable() {
			return nil, errors.Wrapf(domain.ErrConflict, "Ticket %s is not available for sale", id)
		}
		tickets = append(tickets, *ticket)
	}

	order := domain.NewOrder(tickets, in.AttendeeID, in.GuestName, in.GuestEmail, in.Method)
	if !order.TotalPrice.IsPositive() {
		return nil, errors.Wrap(domain.ErrInvalidInput, "Order total must be greater than zero")
	}

	holderID := in.AttendeeID.String()
	if in.AttendeeID == uuid.Nil {
		holderID = order.ID.String()
	}
	if err := s.holds.Hold(ctx, order.TicketIDs, holderID); err != nil {
		return nil, err
	}

	if err := s.store.CreatePendingOrder(ctx, order, time.Now().Add(s.holds.TTL())); err != nil {
		if relErr := s.holds.Release(ctx, order.TicketIDs); relErr != nil {
			s.logger.WithError(relErr).Error("failed to release holds after order create failure")
		}
		return nil, errors.Wrap(err, "Failed to create order")
	}

	link, err := s.gateway.CreatePaymentLink(ctx, order.Code, order.TotalPrice,
		fmt.Sprintf("Order %d", order.Code), lineItems(tickets))
	if err != nil {
		s.compensateFailedPayment(ctx, order)
		return nil, errors.Wrap(err, "Failed to initiate payment")
	}

	s.recordTransition(ctx, order, "order.created")
	observability.OrdersCreated.WithLabelValues(string(domain.OrderPending)).Inc()
	return &CreateResult{Order: order, PaymentLink: link}, nil
}

// compensateFailedPayment unwinds a created order whose checkout session
// could not be opened: mark FAILED, revert tickets to AVAILABLE, drop the
// holds. Each step is best-effort; the sweeper is the final backstop.
func (s *Service) compensateFailedPayment(ctx context.Context, order domain.Order) {
	if err := s.store.UpdateOrderStatus(ctx, order.ID, domain.OrderFailed); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to mark order FAILED")
	}
	if err := s.store.MarkTicketsAvailable(ctx, order.TicketIDs); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to revert tickets after payment init failure")
	}
	if err := s.holds.Release(ctx, order.TicketIDs); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to release holds after payment init failure")
	}
	order.Status = domain.OrderFailed
	s.recordTransition(ctx, order, "order.failed")
	observability.OrdersCreated.WithLabelValues(string(domain.OrderFailed)).Inc()
}

// ConfirmPayment reconciles a settled payment into ticket claims. The
// PENDING gate makes duplicate webhook deliveries harmless: the second call
// fails here instead of re-claiming tickets.
func (s *Service) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending {
		return nil, errors.Wrap(domain.ErrInvalidInput, "Order is not pending")
	}

	if err := s.store.CompleteOrder(ctx, *order); err != nil {
		return nil, err
	}

	// Tickets are CLAIMED now, past HELD, but stale lock keys must still go.
	if err := s.holds.Release(ctx, order.TicketIDs); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to release holds after payment confirmation")
	}

	order.Status = domain.OrderPaid
	s.recordTransition(ctx, *order, "order.paid")
	observability.OrdersCreated.WithLabelValues(string(domain.OrderPaid)).Inc()
	return order, nil
}

// Cancel moves a PENDING order to CANCELLED, reverts its tickets to
// AVAILABLE and releases the holds in the same operation, so inventory is
// sellable again the moment the call returns. Used by the control endpoint
// and the sweeper alike.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending {
		return nil, errors.Wrap(domain.ErrInvalidInput, "Order is not pending")
	}

	if err := s.store.CancelOrder(ctx, *order); err != nil {
		return nil, err
	}
	if err := s.holds.Release(ctx, order.TicketIDs); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to release holds on cancel")
	}
	if err := s.gateway.CancelPaymentLink(ctx, order.Code, "order cancelled"); err != nil {
		s.logger.WithError(err).WithField("order_code", order.Code).Warn("failed to cancel payment link")
	}

	order.Status = domain.OrderCancelled
	s.recordTransition(ctx, *order, "order.cancelled")
	observability.OrdersCreated.WithLabelValues(string(domain.OrderCancelled)).Inc()
	return order, nil
}

func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *Service) GetByCode(ctx context.Context, code int64) (*domain.Order, error) {
	return s.store.GetOrderByCode(ctx, code)
}

func (s *Service) List(ctx context.Context) ([]domain.Order, error) {
	return s.store.ListOrders(ctx)
}

func (s *Service) recordTransition(ctx context.Context, order domain.Order, action string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.OrderTransition(ctx, order, action); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("audit write failed")
	}
}

func lineItems(tickets []domain.IssuedTicket) []payment.LineItem {
	items := make([]payment.LineItem, len(tickets))
	for i, t := range tickets {
		name := t.Class
		if t.Seat != "" {
			name = t.Class + " " + t.Seat
		}
		items[i] = payment.LineItem{Name: name, Quantity: 1, Price: t.Price}
	}
	return items
}
