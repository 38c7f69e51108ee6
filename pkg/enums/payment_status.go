package enums

import "fmt"

// PaymentStatus tracks the money side of an order.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusAuthorized        PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured          PaymentStatus = "CAPTURED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusFullyRefunded     PaymentStatus = "FULLY_REFUNDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusAuthorized,
	PaymentStatusCaptured,
	PaymentStatusPartiallyRefunded,
	PaymentStatusFullyRefunded,
	PaymentStatusFailed,
}

var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:           {PaymentStatusAuthorized, PaymentStatusCaptured, PaymentStatusFailed},
	PaymentStatusAuthorized:        {PaymentStatusCaptured, PaymentStatusFailed},
	PaymentStatusCaptured:          {PaymentStatusPartiallyRefunded, PaymentStatusFullyRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusPartiallyRefunded, PaymentStatusFullyRefunded},
	PaymentStatusFailed:            {PaymentStatusPending},
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the payment status may move from p to next.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, candidate := range paymentStatusTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsCaptured reports whether money has been collected (refunds included).
func (p PaymentStatus) IsCaptured() bool {
	switch p {
	case PaymentStatusCaptured, PaymentStatusPartiallyRefunded, PaymentStatusFullyRefunded:
		return true
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
