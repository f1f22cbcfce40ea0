package checkout

import "context"

// IntentStatusSucceeded is the gateway status required to confirm a payment.
const IntentStatusSucceeded = "succeeded"

// IntentRef is the client-facing handle for a freshly created payment intent.
type IntentRef struct {
	ID           string
	ClientSecret string
}

// Intent is a payment intent as reported by the gateway at confirmation time.
// Metadata round-trips the values attached at creation verbatim.
type Intent struct {
	ID          string
	Status      string
	AmountMinor int64
	Metadata    map[string]string
}

// Gateway abstracts the payment provider. Implementations must be injected;
// the orchestrator never constructs a provider client itself.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*IntentRef, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
}
