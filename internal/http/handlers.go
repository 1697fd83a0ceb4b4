package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/idempotency"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/order"
	"github.com/robertarktes/event-ticketing/internal/payment"
	"github.com/shopspring/decimal"
)

// OrderWorkflow is what the transport needs from the order service.
type OrderWorkflow interface {
	Create(ctx context.Context, in order.CreateInput) (*order.CreateResult, error)
	ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	GetByCode(ctx context.Context, code int64) (*domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
}

// PaymentGateway is the adapter surface used at the transport boundary.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, orderCode int64, amount decimal.Decimal, description string, items []payment.LineItem) (string, error)
	GetPaymentInfo(ctx context.Context, orderCode int64) (*payment.PaymentInfo, error)
	VerifyWebhook(rawBody []byte) (*payment.WebhookData, error)
}

type Handlers struct {
	orders  OrderWorkflow
	gateway PaymentGateway
	idemp   *idempotency.Idempotency
	logger  observability.Logger
}

func NewHandlers(orders OrderWorkflow, gateway PaymentGateway, idemp *idempotency.Idempotency, logger observability.Logger) *Handlers {
	return &Handlers{orders: orders, gateway: gateway, idemp: idemp, logger: logger}
}

type orderResponse struct {
	ID         uuid.UUID   `json:"id"`
	Code       int64       `json:"code"`
	Status     string      `json:"status"`
	TotalPrice string      `json:"total_price"`
	Method     string      `json:"method"`
	AttendeeID uuid.UUID   `json:"attendee_id"`
	GuestName  string      `json:"guest_name,omitempty"`
	GuestEmail string      `json:"guest_email,omitempty"`
	TicketIDs  []uuid.UUID `json:"ticket_ids"`
	CreatedAt  time.Time   `json:"created_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:         o.ID,
		Code:       o.Code,
		Status:     string(o.Status),
		TotalPrice: o.TotalPrice.String(),
		Method:     o.Method,
		AttendeeID: o.AttendeeID,
		GuestName:  o.GuestName,
		GuestEmail: o.GuestEmail,
		TicketIDs:  o.TicketIDs,
		CreatedAt:  o.CreatedAt,
	}
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSerializationFailure):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		TicketIDs  []uuid.UUID `json:"ticket_ids"`
		AttendeeID uuid.UUID   `json:"attendee_id"`
		GuestName  string      `json:"guest_name"`
		GuestEmail string      `json:"guest_email"`
		Method     string      `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.orders.Create(r.Context(), order.CreateInput{
		TicketIDs:  req.TicketIDs,
		AttendeeID: req.AttendeeID,
		GuestName:  req.GuestName,
		GuestEmail: req.GuestEmail,
		Method:     req.Method,
	})
	if err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}

	resp := map[string]interface{}{
		"order":        toOrderResponse(result.Order),
		"payment_link": result.PaymentLink,
	}
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*o))
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	o, err := h.orders.Cancel(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*o))
}

func (h *Handlers) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	o, err := h.orders.ConfirmPayment(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*o))
}

func (h *Handlers) CreatePaymentLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderCode   int64              `json:"orderCode"`
		Amount      decimal.Decimal    `json:"amount"`
		Description string             `json:"description"`
		Items       []payment.LineItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	url, err := h.gateway.CreatePaymentLink(r.Context(), req.OrderCode, req.Amount, req.Description, req.Items)
	if err != nil {
		http.Error(w, "Failed to create payment link", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"checkoutUrl": url})
}

// PaymentWebhook always acknowledges the delivery. Verification or
// reconciliation failures are logged and swallowed: returning an error here
// would only make the gateway retry-storm, and a genuinely missed
// confirmation is caught later by polling or by the sweeper.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ack := func() { writeJSON(w, http.StatusOK, map[string]bool{"received": true}) }

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WithError(err).Warn("failed to read webhook body")
		ack()
		return
	}

	data, err := h.gateway.VerifyWebhook(rawBody)
	if err != nil {
		h.logger.WithError(err).Warn("webhook verification failed")
		ack()
		return
	}
	if data.Code != payment.CodeSuccess {
		// Payment failed upstream; the order stays PENDING until the
		// sweeper cancels it.
		ack()
		return
	}

	o, err := h.orders.GetByCode(r.Context(), data.OrderCode)
	if err != nil {
		h.logger.WithError(err).WithField("order_code", data.OrderCode).Warn("webhook for unknown order")
		ack()
		return
	}
	// Cheap duplicate-delivery check before the workflow's own PENDING gate.
	if o.Status == domain.OrderPaid {
		ack()
		return
	}

	if _, err := h.orders.ConfirmPayment(r.Context(), o.ID); err != nil {
		h.logger.WithError(err).WithField("order_id", o.ID).Error("failed to confirm payment from webhook")
	}
	ack()
}

func (h *Handlers) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.ParseInt(chi.URLParam(r, "orderCode"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order code", http.StatusBadRequest)
		return
	}
	info, err := h.gateway.GetPaymentInfo(r.Context(), code)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment not found"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
