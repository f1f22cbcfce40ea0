package order

import (
	"math/rand/v2"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNumber(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 2))

	number := GenerateNumber(now, rng)

	assert.Regexp(t, regexp.MustCompile(`^DM2603-[0-9A-Z]{6}$`), number)

	// Same seed, same suffix.
	rng2 := rand.New(rand.NewPCG(1, 2))
	assert.Equal(t, number, GenerateNumber(now, rng2))

	// Month is zero-padded.
	jan := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Regexp(t, regexp.MustCompile(`^DM2601-`), GenerateNumber(jan, rng))
}

func TestTransitionTo(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, false},
		{"pending to cancelled", StatusPending, StatusCancelled, false},
		{"processing to shipped", StatusProcessing, StatusShipped, false},
		{"shipped to delivered", StatusShipped, StatusDelivered, false},
		{"pending to shipped skips processing", StatusPending, StatusShipped, true},
		{"processing to cancelled too late", StatusProcessing, StatusCancelled, true},
		{"shipped to processing goes backwards", StatusShipped, StatusProcessing, true},
		{"delivered is terminal", StatusDelivered, StatusPending, true},
		{"cancelled is terminal", StatusCancelled, StatusProcessing, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Status: tt.from}

			err := o.TransitionTo(tt.to, now)

			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, o.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, o.Status)
		})
	}
}

func TestTransitionToStampsTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	later := now.Add(48 * time.Hour)

	o := &Order{Status: StatusProcessing}

	require.NoError(t, o.TransitionTo(StatusShipped, now))
	require.NotNil(t, o.ShippedAt)
	assert.Equal(t, now, *o.ShippedAt)
	assert.Nil(t, o.DeliveredAt)

	require.NoError(t, o.TransitionTo(StatusDelivered, later))
	require.NotNil(t, o.DeliveredAt)
	assert.Equal(t, later, *o.DeliveredAt)
}

func TestRedact(t *testing.T) {
	o := &Order{
		UserID: "u1",
		Number: "DM2603-ABC123",
		ShippingAddress: Address{
			Name:   "Jane Doe",
			Street: "1 Main St",
			City:   "Springfield",
		},
	}

	o.Redact()

	assert.Equal(t, RedactedUser, o.UserID)
	assert.Equal(t, Address{}, o.ShippingAddress)
	assert.Equal(t, "DM2603-ABC123", o.Number)
}
