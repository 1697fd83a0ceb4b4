package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditTrail keeps an append-only record of order lifecycle transitions,
// separate from the system of record. Writes are best-effort.
type AuditTrail struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditTrail(db *mongo.Database, logger observability.Logger) *AuditTrail {
	return &AuditTrail{
		coll:   db.Collection("order_audit"),
		logger: logger,
	}
}

type auditEntry struct {
	ID         uuid.UUID `bson:"_id"`
	Action     string    `bson:"action"`
	OrderID    uuid.UUID `bson:"order_id"`
	OrderCode  int64     `bson:"order_code"`
	Status     string    `bson:"status"`
	AttendeeID uuid.UUID `bson:"attendee_id"`
	TotalPrice string    `bson:"total_price"`
	TicketIDs  bson.A    `bson:"ticket_ids"`
	Timestamp  time.Time `bson:"timestamp"`
}

func (a *AuditTrail) OrderTransition(ctx context.Context, order domain.Order, action string) error {
	tickets := make(bson.A, len(order.TicketIDs))
	for i, tid := range order.TicketIDs {
		tickets[i] = tid
	}
	entry := auditEntry{
		ID:         uuid.New(),
		Action:     action,
		OrderID:    order.ID,
		OrderCode:  order.Code,
		Status:     string(order.Status),
		AttendeeID: order.AttendeeID,
		TotalPrice: order.TotalPrice.String(),
		TicketIDs:  tickets,
		Timestamp:  time.Now(),
	}
	_, err := a.coll.InsertOne(ctx, entry)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit entry")
		return err
	}
	return nil
}
