package contracts

import "github.com/google/uuid"

// PaymentIntentRequest is the body of POST /api/payment/create-intent.
type PaymentIntentRequest struct {
	OrderID     uuid.UUID         `json:"orderId" validate:"required"`
	AmountCents int64             `json:"amountCents" validate:"gt=0"`
	Metadata    map[string]string `json:"metadata,omitempty" validate:"max=20"`
}

type PaymentIntentResponse struct {
	URL string `json:"url" validate:"required,url"`
}

// RefundRequest is the body of POST /api/payment/refund.
type RefundRequest struct {
	TransactionID uuid.UUID `json:"transactionId" validate:"required"`
	AmountCents   int64     `json:"amountCents" validate:"gt=0"`
	Reason        string    `json:"reason" validate:"required,max=500"`
}

type RefundResponse struct {
	Refund Refund `json:"refund"`
	Order  Order  `json:"order"`
}
