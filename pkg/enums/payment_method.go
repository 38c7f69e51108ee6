package enums

import "fmt"

// PaymentMethod is the checkout payment selection.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodCOD  PaymentMethod = "cod"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodCOD,
}

func (m PaymentMethod) String() string {
	return string(m)
}

func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// Provider returns the payment provider that settles this method.
func (m PaymentMethod) Provider() PaymentProvider {
	if m == PaymentMethodCOD {
		return PaymentProviderManual
	}
	return PaymentProviderStripe
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// PaymentProvider names the system holding the money for a transaction.
type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderManual PaymentProvider = "manual"
)

func (p PaymentProvider) String() string {
	return string(p)
}
