package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dripmart/storefront/internal/domain/checkout"
	"github.com/dripmart/storefront/internal/domain/order"
)

// cartItemJSON mirrors the field names the frontend sends for cart products.
type cartItemJSON struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Size     string  `json:"size"`
	Color    string  `json:"color"`
}

type addressJSON struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone"`
}

func (a addressJSON) toDomain() order.Address {
	return order.Address(a)
}

type createIntentRequest struct {
	UserID     string         `json:"userId"`
	Amount     float64        `json:"amount"`
	Products   []cartItemJSON `json:"products"`
	CouponCode string         `json:"couponCode"`
	Shipping   addressJSON    `json:"shippingInfo"`
}

type createIntentResponse struct {
	ClientSecret    string  `json:"clientSecret"`
	PaymentIntentID string  `json:"paymentIntentId"`
	Discount        float64 `json:"discount"`
	FinalAmount     float64 `json:"finalAmount"`
}

// CreatePaymentIntent starts a checkout: applies the optional coupon and
// creates a gateway payment intent carrying the cart snapshot.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]checkout.CartItem, len(req.Products))
	for i, p := range req.Products {
		items[i] = checkout.CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  p.Quantity,
			UnitPrice: decimal.NewFromFloat(p.Price),
			Size:      p.Size,
			Color:     p.Color,
		}
	}

	result, err := h.checkout.CreateIntent(r.Context(), checkout.CreateIntentRequest{
		UserID:     req.UserID,
		Amount:     decimal.NewFromFloat(req.Amount),
		Items:      items,
		CouponCode: req.CouponCode,
		Shipping:   req.Shipping.toDomain(),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, createIntentResponse{
		ClientSecret:    result.ClientSecret,
		PaymentIntentID: result.IntentID,
		Discount:        result.Discount.InexactFloat64(),
		FinalAmount:     result.FinalAmount.InexactFloat64(),
	})
}

type confirmPaymentRequest struct {
	PaymentIntentID string      `json:"paymentIntentId"`
	UserID          string      `json:"userId"`
	Subtotal        float64     `json:"subtotal"`
	Discount        float64     `json:"discount"`
	ShippingCost    float64     `json:"shippingCost"`
	Total           float64     `json:"total"`
	CouponCode      string      `json:"couponCode"`
	Shipping        addressJSON `json:"shippingAddress"`
}

type confirmPaymentResponse struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	GiftCoupon  string `json:"giftCoupon,omitempty"`
}

// ConfirmPayment finalizes a checkout after the client completed the payment
// with the gateway. The request totals are cosmetic; line items come from
// the intent metadata.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PaymentIntentID == "" {
		writeError(w, http.StatusBadRequest, "paymentIntentId is required")
		return
	}

	result, err := h.checkout.ConfirmPayment(r.Context(), checkout.ConfirmRequest{
		IntentID:     req.PaymentIntentID,
		UserID:       req.UserID,
		Subtotal:     decimal.NewFromFloat(req.Subtotal),
		Discount:     decimal.NewFromFloat(req.Discount),
		ShippingCost: decimal.NewFromFloat(req.ShippingCost),
		Shipping:     req.Shipping.toDomain(),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, confirmPaymentResponse{
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
		GiftCoupon:  result.GiftCouponCode,
	})
}
