package payments

import (
	"context"

	"github.com/angelmondragon/storefront/pkg/enums"
)

// CheckoutState is the provider's view of a hosted checkout.
type CheckoutState string

const (
	CheckoutOpen   CheckoutState = "open"
	CheckoutPaid   CheckoutState = "paid"
	CheckoutFailed CheckoutState = "failed"
)

type CheckoutInput struct {
	OrderID        string
	Description    string
	AmountCents    int64
	Currency       string
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

type Checkout struct {
	SessionID string
	URL       string
}

// CheckoutOutcome reports how a checkout ended. PaymentRef identifies the
// captured payment for later refunds.
type CheckoutOutcome struct {
	State      CheckoutState
	PaymentRef string
	Reason     string
}

type RefundRequest struct {
	PaymentRef     string
	AmountCents    int64
	Currency       string
	Reason         string
	Metadata       map[string]string
	IdempotencyKey string
}

// Provider moves money through one payment processor.
type Provider interface {
	Name() enums.PaymentProvider
	CreateCheckout(ctx context.Context, in CheckoutInput) (*Checkout, error)
	LookupCheckout(ctx context.Context, sessionID string) (*CheckoutOutcome, error)
	Refund(ctx context.Context, in RefundRequest) (string, error)
}
