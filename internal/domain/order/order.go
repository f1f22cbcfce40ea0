package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned for a status change that is not part
	// of the forward-only fulfilment flow.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// Item is a line item snapshot. Values are copied at order creation; later
// edits to the product must not alter historical orders.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

// Address is a shipping address snapshot embedded in the order.
type Address struct {
	Name    string `json:"name,omitempty"`
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// RedactedUser replaces the user reference on orders whose owning account
// has been deleted. Orders themselves are never deleted.
const RedactedUser = "deleted-user"

// Order is an immutable record of a confirmed purchase. Line items and the
// shipping address are owned snapshots, not live references.
type Order struct {
	ID              string
	UserID          string
	Number          string
	Items           []Item
	Subtotal        decimal.Decimal
	ShippingCost    decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	CouponCode      string
	ShippingAddress Address
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	PaymentIntentID string
	PaidAt          *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CreatedAt       time.Time
}

// GenerateNumber builds a human-readable order number of the form
// DM{YY}{MM}-{6 base36 uppercase chars}. Collisions are not checked here;
// the database unique index is the backstop (36^6 space makes collisions
// negligible in practice).
func GenerateNumber(now time.Time, rng *rand.Rand) string {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = alphabet[rng.IntN(len(alphabet))]
	}
	return fmt.Sprintf("DM%02d%02d-%s", now.Year()%100, int(now.Month()), suffix)
}

// validNext maps each status to the set of statuses reachable from it.
// Fulfilment is forward-only; cancellation is only possible before
// processing starts.
var validNext = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
}

// TransitionTo moves the order to the next fulfilment status, stamping
// ShippedAt and DeliveredAt as appropriate.
func (o *Order) TransitionTo(next Status, now time.Time) error {
	for _, allowed := range validNext[o.Status] {
		if next != allowed {
			continue
		}
		o.Status = next
		switch next {
		case StatusShipped:
			o.ShippedAt = &now
		case StatusDelivered:
			o.DeliveredAt = &now
		}
		return nil
	}
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", o.Status, next)
}

// Redact detaches the order from its deleted owner while preserving the
// order record itself.
func (o *Order) Redact() {
	o.UserID = RedactedUser
	o.ShippingAddress = Address{}
}

// Repository provides persistence for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	Update(ctx context.Context, o *Order) error
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
