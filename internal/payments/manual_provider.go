package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// ManualProvider backs cash on delivery. Money moves outside the system, so
// refunds only mint a reference for the ledger.
type ManualProvider struct{}

func NewManualProvider() ManualProvider {
	return ManualProvider{}
}

func (ManualProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderManual
}

func (ManualProvider) CreateCheckout(context.Context, CheckoutInput) (*Checkout, error) {
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cash on delivery orders have no hosted checkout")
}

func (ManualProvider) LookupCheckout(context.Context, string) (*CheckoutOutcome, error) {
	return &CheckoutOutcome{State: CheckoutOpen}, nil
}

func (ManualProvider) Refund(context.Context, RefundRequest) (string, error) {
	return "manual_" + uuid.NewString(), nil
}
