package order

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	tickets   map[uuid.UUID]domain.IssuedTicket
	orders    map[uuid.UUID]*domain.Order
	createErr error
	claimed   map[uuid.UUID]bool
	reverted  [][]uuid.UUID
}

func newFakeStore(tickets ...domain.IssuedTicket) *fakeStore {
	s := &fakeStore{
		tickets: map[uuid.UUID]domain.IssuedTicket{},
		orders:  map[uuid.UUID]*domain.Order{},
		claimed: map[uuid.UUID]bool{},
	}
	for _, t := range tickets {
		s.tickets[t.ID] = t
	}
	return s
}

func (s *fakeStore) GetTicket(ctx context.Context, id uuid.UUID) (*domain.IssuedTicket, error) {
	t, ok := s.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (s *fakeStore) CreatePendingOrder(ctx context.Context, order domain.Order, holdExpiresAt time.Time) error {
	if s.createErr != nil {
		return s.createErr
	}
	o := order
	s.orders[order.ID] = &o
	for _, tid := range order.TicketIDs {
		t := s.tickets[tid]
		t.Status = domain.TicketHeld
		t.HoldExpiresAt = &holdExpiresAt
		s.tickets[tid] = t
	}
	return nil
}

func (s *fakeStore) CompleteOrder(ctx context.Context, order domain.Order) error {
	for _, tid := range order.TicketIDs {
		if s.claimed[tid] {
			return domain.ErrConflict
		}
	}
	for _, tid := range order.TicketIDs {
		s.claimed[tid] = true
		t := s.tickets[tid]
		t.Status = domain.TicketClaimed
		t.HoldExpiresAt = nil
		s.tickets[tid] = t
	}
	s.orders[order.ID].Status = domain.OrderPaid
	return nil
}

func (s *fakeStore) CancelOrder(ctx context.Context, order domain.Order) error {
	s.orders[order.ID].Status = domain.OrderCancelled
	for _, tid := range order.TicketIDs {
		t := s.tickets[tid]
		t.Status = domain.TicketAvailable
		t.HoldExpiresAt = nil
		s.tickets[tid] = t
	}
	return nil
}

func (s *fakeStore) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	o, ok := s.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	return nil
}

func (s *fakeStore) MarkTicketsAvailable(ctx context.Context, ids []uuid.UUID) error {
	s.reverted = append(s.reverted, ids)
	for _, tid := range ids {
		t := s.tickets[tid]
		t.Status = domain.TicketAvailable
		t.HoldExpiresAt = nil
		s.tickets[tid] = t
	}
	return nil
}

func (s *fakeStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *o
	return &copy, nil
}

func (s *fakeStore) GetOrderByCode(ctx context.Context, code int64) (*domain.Order, error) {
	for _, o := range s.orders {
		if o.Code == code {
			copy := *o
			return &copy, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out, nil
}

type fakeHolder struct {
	holdErr  error
	held     [][]uuid.UUID
	holders  []string
	released [][]uuid.UUID
}

func (h *fakeHolder) Hold(ctx context.Context, ids []uuid.UUID, holderID string) error {
	if h.holdErr != nil {
		return h.holdErr
	}
	h.held = append(h.held, ids)
	h.holders = append(h.holders, holderID)
	return nil
}

func (h *fakeHolder) Release(ctx context.Context, ids []uuid.UUID) error {
	h.released = append(h.released, ids)
	return nil
}

func (h *fakeHolder) TTL() time.Duration { return 10 * time.Minute }

type fakeGateway struct {
	link      string
	createErr error
	cancelled []int64
}

func (g *fakeGateway) CreatePaymentLink(ctx context.Context, orderCode int64, amount decimal.Decimal, description string, items []payment.LineItem) (string, error) {
	if g.createErr != nil {
		return "", g.createErr
	}
	return g.link, nil
}

func (g *fakeGateway) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error {
	g.cancelled = append(g.cancelled, orderCode)
	return nil
}

func ticket(price int64) domain.IssuedTicket {
	return domain.IssuedTicket{
		ID:       uuid.New(),
		EventID:  uuid.New(),
		Price:    decimal.NewFromInt(price),
		Currency: "USD",
		Class:    "GA",
		Status:   domain.TicketAvailable,
	}
}

func newService(store *fakeStore, holds *fakeHolder, gw *fakeGateway) *Service {
	return NewService(store, holds, gw, nil, observability.NewLogger())
}

func TestCreate_ComputesTotalFromPersistedPrices(t *testing.T) {
	t1, t2 := ticket(100), ticket(200)
	store := newFakeStore(t1, t2)
	holds := &fakeHolder{}
	gw := &fakeGateway{link: "https://pay.example/abc"}
	svc := newService(store, holds, gw)

	attendee := uuid.New()
	result, err := svc.Create(context.Background(), CreateInput{
		TicketIDs:  []uuid.UUID{t1.ID, t2.ID},
		AttendeeID: attendee,
		Method:     "card",
	})
	require.NoError(t, err)

	assert.True(t, result.Order.TotalPrice.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, domain.OrderPending, result.Order.Status)
	assert.Equal(t, "https://pay.example/abc", result.PaymentLink)
	assert.Equal(t, domain.TicketHeld, store.tickets[t1.ID].Status)
	assert.Equal(t, domain.TicketHeld, store.tickets[t2.ID].Status)
	require.Len(t, holds.held, 1)
	assert.Equal(t, attendee.String(), holds.holders[0])
}

func TestCreate_RejectsEmptyTicketList(t *testing.T) {
	svc := newService(newFakeStore(), &fakeHolder{}, &fakeGateway{})

	_, err := svc.Create(context.Background(), CreateInput{AttendeeID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreate_RejectsDuplicateTicketIDs(t *testing.T) {
	t1 := ticket(100)
	store := newFakeStore(t1)
	holds := &fakeHolder{}
	svc := newService(store, holds, &fakeGateway{})

	_, err := svc.Create(context.Background(), CreateInput{
		TicketIDs:  []uuid.UUID{t1.ID, t1.ID},
		AttendeeID: uuid.New(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Duplicate ticket IDs")
	assert.Empty(t, holds.held, "no hold may be attempted")
	assert.Equal(t, domain.TicketAvailable, store.tickets[t1.ID].Status)
}

func TestCreate_RejectsUnavailableTicket(t *testing.T) {
	t1 := ticket(100)
	t1.Status = domain.TicketHeld
	store := newFakeStore(t1)
	holds := &fakeHolder{}
	svc := newService(store, holds, &fakeGateway{})

	_, err := svc.Create(context.Background(), CreateInput{
		TicketIDs:  []uuid.UUID{t1.ID},
		AttendeeID: uuid.New(),
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "is not available for sale")
	assert.Empty(t, holds.held)
}

func TestCreate_RejectsNonPositiveTotal(t *testing.T) {
	t1 := ticket(0)
	svc := newService(newFakeStore(t1), &fakeHolder{}, &fakeGateway{})

	_, err := svc.Create(context.Background(), CreateInput{
		TicketIDs:  []uuid.UUID{t1.ID},
		AttendeeID: uuid.New(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Order total must be greater than zero")
}

func TestCreate_HoldConflictPropagatesWithoutWrites(t *testing.T) {
	t1 := ticket(100)
	store := newFakeStore(t1)
	holds := &fakeHolder{holdErr: errors.Wrap(domain.ErrConflict, "ticket already held")}
	svc := newService(store, holds, &fakeGateway{})

	_, err := svc.Create(context.Background(), CreateInput{
		TicketIDs:  []uuid.UUID{t1.ID},
		AttendeeID: uuid.New(),
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, store.orders)
}

func TestCreate_StoreFailureReleasesHolds(t *testing.T) {
	t1 := ticket(100)
	store := newFakeStore(t1)
	store.createErr = errors.New("tx failed")
	holds := &fakeHolder{}
	svc := newService(store, holds, &fakeGateway{})

	_, err := svc.Create(context.Background(), CreateInput{
		TicketIDs:  []uuid.UUID{t1.ID},
		AttendeeID: uuid.New(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to create order")
	require.Len(t, holds.released, 1)
}

func TestCreate_PaymentLinkFailureRollsBackEverything(t *testing.T) {
	t1, t2 := ticket(100), ticket(200)
	store := newFakeStore(t1, t2)
	holds := &fakeHolder{}
	gw := &fakeGateway{createErr: payment.ErrGateway}
	svc := newService(store, holds, gw)

	_, err := svc.Create(context.Background(), CreateInput{
		TicketIDs:  []uuid.UUID{t1.ID, t2.ID},
		AttendeeID: uuid.New(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to initiate payment")

	require.Len(t, store.orders, 1)
	for _, o := range store.orders {
		assert.Equal(t, domain.OrderFailed, o.Status)
	}
	assert.Equal(t, domain.TicketAvailable, store.tickets[t1.ID].Status)
	assert.Equal(t, domain.TicketAvailable, store.tickets[t2.ID].Status)
	require.Len(t, holds.released, 1)
}

func createPendingOrder(t *testing.T, svc *Service, store *fakeStore, tickets ...domain.IssuedTicket) domain.Order {
	t.Helper()
	ids := make([]uuid.UUID, len(tickets))
	for i, tk := range tickets {
		ids[i] = tk.ID
	}
	result, err := svc.Create(context.Background(), CreateInput{
		TicketIDs:  ids,
		AttendeeID: uuid.New(),
		Method:     "card",
	})
	require.NoError(t, err)
	return result.Order
}

func TestConfirmPayment_ClaimsTicketsAndReleasesHolds(t *testing.T) {
	t1, t2 := ticket(100), ticket(200)
	store := newFakeStore(t1, t2)
	holds := &fakeHolder{}
	svc := newService(store, holds, &fakeGateway{link: "x"})

	created := createPendingOrder(t, svc, store, t1, t2)

	confirmed, err := svc.ConfirmPayment(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, confirmed.Status)
	assert.Equal(t, domain.TicketClaimed, store.tickets[t1.ID].Status)
	assert.Equal(t, domain.TicketClaimed, store.tickets[t2.ID].Status)
	assert.True(t, store.claimed[t1.ID])
	assert.True(t, store.claimed[t2.ID])
	// one release for the confirmation, on top of none from create
	require.Len(t, holds.released, 1)
}

func TestConfirmPayment_SecondCallFailsPendingGate(t *testing.T) {
	t1 := ticket(100)
	store := newFakeStore(t1)
	svc := newService(store, &fakeHolder{}, &fakeGateway{link: "x"})

	created := createPendingOrder(t, svc, store, t1)

	_, err := svc.ConfirmPayment(context.Background(), created.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), created.ID)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Order is not pending")
}

func TestConfirmPayment_UnknownOrder(t *testing.T) {
	svc := newService(newFakeStore(), &fakeHolder{}, &fakeGateway{})

	_, err := svc.ConfirmPayment(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancel_RevertsTicketsAndReleasesHolds(t *testing.T) {
	t1 := ticket(100)
	store := newFakeStore(t1)
	holds := &fakeHolder{}
	gw := &fakeGateway{link: "x"}
	svc := newService(store, holds, gw)

	created := createPendingOrder(t, svc, store, t1)

	cancelled, err := svc.Cancel(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	assert.Equal(t, domain.TicketAvailable, store.tickets[t1.ID].Status)
	require.Len(t, holds.released, 1)
	assert.Equal(t, []int64{created.Code}, gw.cancelled)
}

func TestCancel_NonPendingOrderRejected(t *testing.T) {
	t1 := ticket(100)
	store := newFakeStore(t1)
	svc := newService(store, &fakeHolder{}, &fakeGateway{link: "x"})

	created := createPendingOrder(t, svc, store, t1)
	_, err := svc.ConfirmPayment(context.Background(), created.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), created.ID)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
