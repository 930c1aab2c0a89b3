package payment

import (
	"context"
	"testing"
)

func TestCreateCheckoutRejectsNonPositiveAmounts(t *testing.T) {
	provider := NewStripeProvider("sk_test_dummy", "http://localhost:3000")

	for _, amount := range []int64{0, -100} {
		_, err := provider.CreateCheckout(context.Background(), CheckoutRequest{
			AggregateID: 1,
			UserID:      1,
			Description: "Utilities April 2024",
			AmountCents: amount,
		})
		if err == nil {
			t.Errorf("expected error for amount %d", amount)
		}
	}
}
