package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	stripeclient "github.com/angelmondragon/storefront/pkg/stripe"
)

type stripeAPI interface {
	CreateCheckoutSession(ctx context.Context, in stripeclient.CheckoutSessionInput) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	CreateRefund(ctx context.Context, in stripeclient.RefundInput) (*stripe.Refund, error)
}

// StripeProvider settles card orders through Stripe Checkout.
type StripeProvider struct {
	api stripeAPI
}

func NewStripeProvider(api stripeAPI) (*StripeProvider, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeProvider{api: api}, nil
}

func (p *StripeProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, in CheckoutInput) (*Checkout, error) {
	session, err := p.api.CreateCheckoutSession(ctx, stripeclient.CheckoutSessionInput{
		OrderID:        in.OrderID,
		Description:    in.Description,
		AmountCents:    in.AmountCents,
		Currency:       in.Currency,
		CustomerEmail:  in.CustomerEmail,
		Metadata:       in.Metadata,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe checkout session")
	}
	if session.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe checkout session has no url")
	}
	return &Checkout{SessionID: session.ID, URL: session.URL}, nil
}

func (p *StripeProvider) LookupCheckout(ctx context.Context, sessionID string) (*CheckoutOutcome, error) {
	session, err := p.api.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe checkout session")
	}
	outcome := OutcomeFromSession(session)
	return &outcome, nil
}

// OutcomeFromSession maps a checkout session onto a CheckoutOutcome. A
// completed but unpaid session is still waiting on an async payment method.
func OutcomeFromSession(session *stripe.CheckoutSession) CheckoutOutcome {
	if session == nil {
		return CheckoutOutcome{State: CheckoutOpen}
	}
	ref := ""
	if session.PaymentIntent != nil {
		ref = session.PaymentIntent.ID
	}
	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return CheckoutOutcome{State: CheckoutPaid, PaymentRef: ref}
	case session.Status == stripe.CheckoutSessionStatusExpired:
		return CheckoutOutcome{State: CheckoutFailed, PaymentRef: ref, Reason: "checkout session expired"}
	case session.PaymentIntent != nil && session.PaymentIntent.Status == stripe.PaymentIntentStatusCanceled:
		return CheckoutOutcome{State: CheckoutFailed, PaymentRef: ref, Reason: "payment intent canceled"}
	default:
		return CheckoutOutcome{State: CheckoutOpen, PaymentRef: ref}
	}
}

func (p *StripeProvider) Refund(ctx context.Context, in RefundRequest) (string, error) {
	if strings.TrimSpace(in.PaymentRef) == "" {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "charge has no stripe payment reference")
	}
	refund, err := p.api.CreateRefund(ctx, stripeclient.RefundInput{
		PaymentIntentID: in.PaymentRef,
		AmountCents:     in.AmountCents,
		Reason:          in.Reason,
		Metadata:        in.Metadata,
		IdempotencyKey:  in.IdempotencyKey,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe refund")
	}
	if refund.Status == stripe.RefundStatusFailed || refund.Status == stripe.RefundStatusCanceled {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "stripe refund "+string(refund.Status))
	}
	return refund.ID, nil
}
