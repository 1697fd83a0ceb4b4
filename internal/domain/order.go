package domain

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderFailed    OrderStatus = "FAILED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order is one purchase attempt. TotalPrice is always computed server-side
// from the referenced tickets' persisted prices, never taken from the client.
type Order struct {
	ID         uuid.UUID
	Code       int64
	Status     OrderStatus
	TotalPrice decimal.Decimal
	Method     string
	AttendeeID uuid.UUID
	GuestName  string
	GuestEmail string
	TicketIDs  []uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewOrder builds a PENDING order over the given tickets, summing their
// persisted prices into TotalPrice.
func NewOrder(tickets []IssuedTicket, attendeeID uuid.UUID, guestName, guestEmail, method string) Order {
	total := decimal.Zero
	ids := make([]uuid.UUID, len(tickets))
	for i, t := range tickets {
		total = total.Add(t.Price)
		ids[i] = t.ID
	}
	now := time.Now()
	return Order{
		ID:         uuid.New(),
		Code:       NewOrderCode(),
		Status:     OrderPending,
		TotalPrice: total,
		Method:     method,
		AttendeeID: attendeeID,
		GuestName:  guestName,
		GuestEmail: guestEmail,
		TicketIDs:  ids,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewOrderCode returns the numeric code the payment gateway correlates on.
// Millisecond timestamp plus a random suffix keeps codes unique in practice;
// the orders table carries a unique index on code as the real guarantee.
func NewOrderCode() int64 {
	return time.Now().UnixMilli()*1000 + rand.Int63n(1000)
}
