package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dripmart/storefront/internal/domain/order"
)

type orderItemJSON struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
}

type orderJSON struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	OrderNumber     string          `json:"orderNumber"`
	Items           []orderItemJSON `json:"items"`
	Subtotal        float64         `json:"subtotal"`
	ShippingCost    float64         `json:"shippingCost"`
	Discount        float64         `json:"discount"`
	TotalAmount     float64         `json:"totalAmount"`
	CouponCode      string          `json:"couponCode,omitempty"`
	ShippingAddress addressJSON     `json:"shippingAddress"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"paymentStatus"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	ShippedAt       *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func orderToJSON(o *order.Order) orderJSON {
	items := make([]orderItemJSON, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemJSON{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice.InexactFloat64(),
			Size:      it.Size,
			Color:     it.Color,
		}
	}
	return orderJSON{
		ID:              o.ID,
		UserID:          o.UserID,
		OrderNumber:     o.Number,
		Items:           items,
		Subtotal:        o.Subtotal.InexactFloat64(),
		ShippingCost:    o.ShippingCost.InexactFloat64(),
		Discount:        o.Discount.InexactFloat64(),
		TotalAmount:     o.Total.InexactFloat64(),
		CouponCode:      o.CouponCode,
		ShippingAddress: addressJSON(o.ShippingAddress),
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		PaymentMethod:   o.PaymentMethod,
		PaidAt:          o.PaidAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
	}
}

// GetOrder returns a single order by ID.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToJSON(o))
}

// ListOrders returns a user's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]orderJSON, len(orders))
	for i := range orders {
		out[i] = orderToJSON(&orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus advances an order along the fulfilment flow. Transitions
// are forward-only; invalid ones are rejected with a conflict.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if err := o.TransitionTo(order.Status(req.Status), time.Now()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.orders.Update(r.Context(), o); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToJSON(o))
}

// CancelOrder cancels an order. Only pending orders can be cancelled.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if err := o.TransitionTo(order.StatusCancelled, time.Now()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.orders.Update(r.Context(), o); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToJSON(o))
}

// OrderStats returns the order count per fulfilment status for the admin
// dashboard.
func (h *Handler) OrderStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.orders.CountByStatus(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	writeJSON(w, http.StatusOK, out)
}
