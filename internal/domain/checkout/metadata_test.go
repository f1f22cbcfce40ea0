package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripmart/storefront/internal/domain/order"
)

func TestMetadataRoundTrip(t *testing.T) {
	m := &Metadata{
		UserID:     "u1",
		CouponCode: "SAVE10",
		Items: []ItemMeta{
			{ProductID: "prod-1", Name: "Classic Logo Tee", Quantity: 2, UnitPrice: decimal.NewFromFloat(29.99), Size: "M"},
			{ProductID: "prod-4", Quantity: 1, UnitPrice: decimal.NewFromFloat(18.75)},
		},
		Shipping: order.Address{Name: "Jane Doe", City: "Springfield"},
	}

	encoded, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, "u1", encoded["userId"])
	assert.Equal(t, "SAVE10", encoded["couponCode"])

	got, err := DecodeMetadata(encoded)
	require.NoError(t, err)
	assert.Equal(t, m.UserID, got.UserID)
	assert.Equal(t, m.CouponCode, got.CouponCode)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "prod-1", got.Items[0].ProductID)
	assert.True(t, m.Items[0].UnitPrice.Equal(got.Items[0].UnitPrice))
	assert.Equal(t, "M", got.Items[0].Size)
	assert.Equal(t, "Jane Doe", got.Shipping.Name)
}

func TestEncodeOmitsEmptyCouponCode(t *testing.T) {
	m := &Metadata{
		UserID: "u1",
		Items:  []ItemMeta{{ProductID: "prod-1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
	}

	encoded, err := m.Encode()
	require.NoError(t, err)

	_, ok := encoded["couponCode"]
	assert.False(t, ok)
}

func TestDecodeMetadataRejectsCorruptSnapshots(t *testing.T) {
	validItems := `[{"id":"prod-1","quantity":1,"price":"10"}]`

	tests := []struct {
		name string
		raw  map[string]string
	}{
		{"missing user", map[string]string{"items": validItems}},
		{"missing items", map[string]string{"userId": "u1"}},
		{"empty items", map[string]string{"userId": "u1", "items": "[]"}},
		{"malformed items", map[string]string{"userId": "u1", "items": "not json"}},
		{"item without product id", map[string]string{"userId": "u1", "items": `[{"quantity":1,"price":"10"}]`}},
		{"zero quantity", map[string]string{"userId": "u1", "items": `[{"id":"prod-1","quantity":0,"price":"10"}]`}},
		{"negative price", map[string]string{"userId": "u1", "items": `[{"id":"prod-1","quantity":1,"price":"-10"}]`}},
		{"malformed shipping", map[string]string{"userId": "u1", "items": validItems, "shipping": "{"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMetadata(tt.raw)
			require.Error(t, err)
		})
	}
}
