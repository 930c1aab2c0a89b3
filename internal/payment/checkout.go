// Package payment creates hosted checkout sessions for monthly aggregates.
package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

type CheckoutRequest struct {
	AggregateID int64
	UserID      int64
	Description string
	AmountCents int64
}

type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutProvider abstracts the payment gateway so handlers and tests don't
// touch the Stripe SDK directly.
type CheckoutProvider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}

type StripeProvider struct {
	api        *client.API
	successURL string
	cancelURL  string
}

func NewStripeProvider(secretKey, frontendURL string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{
		api:        api,
		successURL: frontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		cancelURL:  frontendURL + "/payment/cancel",
	}
}

// CreateCheckout opens a one-off payment session for the aggregate's total
// cost. The aggregate id rides along in the session metadata so the webhook
// can find the row to mark paid.
func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if req.AmountCents <= 0 {
		return CheckoutSession{}, fmt.Errorf("checkout amount must be positive, got %d", req.AmountCents)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(stripe.CurrencyGBP)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.AmountCents),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(p.successURL),
		CancelURL:  stripe.String(p.cancelURL),
	}
	params.Context = ctx
	params.AddMetadata("aggregate_id", fmt.Sprintf("%d", req.AggregateID))
	params.AddMetadata("user_id", fmt.Sprintf("%d", req.UserID))

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}

	return CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
