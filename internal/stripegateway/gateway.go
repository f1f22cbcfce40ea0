// Package stripegateway implements checkout.Gateway on top of the Stripe
// PaymentIntents API.
package stripegateway

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/dripmart/storefront/internal/domain/checkout"
)

var _ checkout.Gateway = (*Gateway)(nil)

// Gateway is a Stripe-backed payment gateway. Construct it explicitly and
// inject it into the checkout service; it is not a package-level singleton.
type Gateway struct {
	sc *client.API
}

// New creates a Gateway authenticated with the given secret key.
func New(secretKey string) *Gateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Gateway{sc: sc}
}

// CreateIntent creates a payment intent with automatic payment methods
// enabled and the cart snapshot attached as metadata.
func (g *Gateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*checkout.IntentRef, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "stripe: create payment intent")
	}

	return &checkout.IntentRef{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// GetIntent retrieves a payment intent, including the metadata stored at
// creation time.
func (g *Gateway) GetIntent(ctx context.Context, id string) (*checkout.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	}
	pi, err := g.sc.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, errors.Wrapf(err, "stripe: get payment intent %s", id)
	}

	return &checkout.Intent{
		ID:          pi.ID,
		Status:      string(pi.Status),
		AmountMinor: pi.Amount,
		Metadata:    pi.Metadata,
	}, nil
}
