package orders

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/money"
)

// Pricing is the checkout policy applied to an order subtotal.
type Pricing struct {
	Currency                 string
	TaxRate                  decimal.Decimal
	ShippingFeeCents         int64
	FreeShippingMinimumCents int64
}

// Totals always satisfies TotalCents == SubtotalCents + TaxCents + ShippingFeeCents.
type Totals struct {
	SubtotalCents    int64
	TaxCents         int64
	ShippingFeeCents int64
	TotalCents       int64
}

func PricingFromConfig(cfg config.CheckoutConfig) Pricing {
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	return Pricing{
		Currency:                 currency,
		TaxRate:                  cfg.TaxRateDecimal(),
		ShippingFeeCents:         cfg.ShippingFeeCents,
		FreeShippingMinimumCents: cfg.FreeShippingMinimumCents,
	}
}

// Quote computes tax on the subtotal and the shipping fee. Shipping is waived
// once the subtotal reaches a positive free-shipping minimum.
func (p Pricing) Quote(subtotalCents int64) Totals {
	tax := money.ApplyRate(subtotalCents, p.TaxRate)
	shipping := p.ShippingFeeCents
	if p.FreeShippingMinimumCents > 0 && subtotalCents >= p.FreeShippingMinimumCents {
		shipping = 0
	}
	if subtotalCents == 0 {
		shipping = 0
	}
	return Totals{
		SubtotalCents:    subtotalCents,
		TaxCents:         tax,
		ShippingFeeCents: shipping,
		TotalCents:       subtotalCents + tax + shipping,
	}
}
