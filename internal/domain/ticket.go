package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketAvailable   TicketStatus = "AVAILABLE"
	TicketUnavailable TicketStatus = "UNAVAILABLE"
	TicketHeld        TicketStatus = "HELD"
	TicketClaimed     TicketStatus = "CLAIMED"
)

// IssuedTicket is one sellable unit: a seat or an unseated slot.
// HoldExpiresAt is non-nil iff Status is TicketHeld; Redis carries the
// authoritative short-term hold signal, this field is the durable fallback.
type IssuedTicket struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	OrganizationID uuid.UUID
	Price          decimal.Decimal
	Currency       string
	Class          string
	Seat           string
	Status         TicketStatus
	HoldExpiresAt  *time.Time
}

func (t IssuedTicket) Sellable() bool {
	return t.Status == TicketAvailable
}
