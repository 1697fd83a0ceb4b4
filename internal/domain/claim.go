package domain

import (
	"time"

	"github.com/google/uuid"
)

type ClaimStatus string

const (
	ClaimReady     ClaimStatus = "READY"
	ClaimUsed      ClaimStatus = "USED"
	ClaimCancelled ClaimStatus = "CANCELLED"
	ClaimExpired   ClaimStatus = "EXPIRED"
)

// ClaimedTicket records that an attendee owns an issued ticket from a paid
// order. ID equals the issued ticket's ID (a 1:1 join), so the primary key
// enforces at-most-one claim per ticket.
type ClaimedTicket struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	AttendeeID uuid.UUID
	Status     ClaimStatus
	CreatedAt  time.Time
}

// NewClaims builds READY claims for every ticket in the order.
func NewClaims(order Order) []ClaimedTicket {
	now := time.Now()
	claims := make([]ClaimedTicket, len(order.TicketIDs))
	for i, tid := range order.TicketIDs {
		claims[i] = ClaimedTicket{
			ID:         tid,
			OrderID:    order.ID,
			AttendeeID: order.AttendeeID,
			Status:     ClaimReady,
			CreatedAt:  now,
		}
	}
	return claims
}
