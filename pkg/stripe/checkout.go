package stripe

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"
)

// CheckoutSessionInput describes a one-off hosted payment page for an order.
type CheckoutSessionInput struct {
	OrderID        string
	Description    string
	AmountCents    int64
	Currency       string
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

// RefundInput targets the payment intent behind a captured checkout session.
type RefundInput struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          string
	Metadata        map[string]string
	IdempotencyKey  string
}

// CreateCheckoutSession opens a payment-mode checkout session for a single amount.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*stripe.CheckoutSession, error) {
	if c == nil {
		return nil, errNotConfigured
	}
	successURL, cancelURL := c.RedirectURLs(in.OrderID)

	metadata := map[string]string{"order_id": in.OrderID}
	for k, v := range in.Metadata {
		if k == "order_id" {
			continue
		}
		metadata[k] = v
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(in.OrderID),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(in.Currency)),
					UnitAmount: stripe.Int64(in.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if email := strings.TrimSpace(in.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	params.Context = ctx
	return session.New(params)
}

// GetCheckoutSession fetches a checkout session with its payment intent expanded.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	if c == nil {
		return nil, errNotConfigured
	}
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("payment_intent")
	params.Context = ctx
	return session.Get(id, params)
}

// CreateRefund refunds part or all of a payment intent.
func (c *Client) CreateRefund(ctx context.Context, in RefundInput) (*stripe.Refund, error) {
	if c == nil {
		return nil, errNotConfigured
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(in.PaymentIntentID),
		Amount:        stripe.Int64(in.AmountCents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.Reason != "" {
		params.AddMetadata("reason", in.Reason)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	params.Context = ctx
	return refund.New(params)
}
