package checkout

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/dripmart/storefront/internal/domain/order"
)

// Metadata keys attached to the payment intent. The serialized cart is the
// sole source of truth for what was purchased at confirmation time; a
// separate pending-order table is deliberately avoided.
const (
	metaUserID     = "userId"
	metaCouponCode = "couponCode"
	metaItems      = "items"
	metaShipping   = "shipping"
)

// ItemMeta is a cart line item as embedded in intent metadata.
type ItemMeta struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

// Metadata is the typed cart snapshot round-tripped through the gateway.
type Metadata struct {
	UserID     string
	CouponCode string
	Items      []ItemMeta
	Shipping   order.Address
}

// Encode serializes the metadata into the string map the gateway stores.
func (m *Metadata) Encode() (map[string]string, error) {
	items, err := json.Marshal(m.Items)
	if err != nil {
		return nil, errors.Wrap(err, "marshal items")
	}
	shipping, err := json.Marshal(m.Shipping)
	if err != nil {
		return nil, errors.Wrap(err, "marshal shipping")
	}

	out := map[string]string{
		metaUserID: m.UserID,
		metaItems:  string(items),
	}
	if m.CouponCode != "" {
		out[metaCouponCode] = m.CouponCode
	}
	out[metaShipping] = string(shipping)
	return out, nil
}

// DecodeMetadata parses and validates the metadata map returned by the
// gateway. It fails when the cart is absent or structurally invalid rather
// than creating an order from a corrupt snapshot.
func DecodeMetadata(raw map[string]string) (*Metadata, error) {
	m := &Metadata{
		UserID:     raw[metaUserID],
		CouponCode: raw[metaCouponCode],
	}
	if m.UserID == "" {
		return nil, errors.New("metadata missing user")
	}

	itemsJSON, ok := raw[metaItems]
	if !ok || itemsJSON == "" {
		return nil, errors.New("metadata missing items")
	}
	if err := json.Unmarshal([]byte(itemsJSON), &m.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal items")
	}
	if len(m.Items) == 0 {
		return nil, errors.New("metadata items empty")
	}
	for _, it := range m.Items {
		if it.ProductID == "" {
			return nil, errors.New("metadata item missing product id")
		}
		if it.Quantity < 1 {
			return nil, errors.Errorf("metadata item %s: quantity %d below 1", it.ProductID, it.Quantity)
		}
		if it.UnitPrice.IsNegative() {
			return nil, errors.Errorf("metadata item %s: negative price", it.ProductID)
		}
	}

	if shippingJSON := raw[metaShipping]; shippingJSON != "" {
		if err := json.Unmarshal([]byte(shippingJSON), &m.Shipping); err != nil {
			return nil, errors.Wrap(err, "unmarshal shipping")
		}
	}
	return m, nil
}
