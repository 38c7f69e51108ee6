package payloads

import (
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted once an order and its items are committed.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	UserID        uuid.UUID           `json:"userId"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	Currency      string              `json:"currency"`
	TotalCents    int64               `json:"totalAmountCents"`
	ItemCount     int                 `json:"itemCount"`
}

// OrderCancelledEvent is emitted when an order is cancelled. Reason is empty
// for customer cancellations.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	UserID        uuid.UUID           `json:"userId"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	Reason        string              `json:"reason,omitempty"`
	CancelledAt   time.Time           `json:"cancelledAt"`
}

// OrderStatusChangedEvent is emitted on admin status or payment status updates.
type OrderStatusChangedEvent struct {
	OrderID           uuid.UUID           `json:"orderId"`
	FromStatus        enums.OrderStatus   `json:"fromStatus"`
	ToStatus          enums.OrderStatus   `json:"toStatus"`
	FromPaymentStatus enums.PaymentStatus `json:"fromPaymentStatus"`
	ToPaymentStatus   enums.PaymentStatus `json:"toPaymentStatus"`
}

// PaymentCapturedEvent is emitted when a CHARGE transaction succeeds.
type PaymentCapturedEvent struct {
	OrderID       uuid.UUID             `json:"orderId"`
	TransactionID uuid.UUID             `json:"transactionId"`
	Provider      enums.PaymentProvider `json:"provider"`
	AmountCents   int64                 `json:"amountCents"`
	Currency      string                `json:"currency"`
}

// PaymentFailedEvent is emitted when the provider reports a failed or expired payment.
type PaymentFailedEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	TransactionID uuid.UUID `json:"transactionId"`
	Reason        string    `json:"reason,omitempty"`
}

// RefundIssuedEvent is emitted after a refund is recorded.
type RefundIssuedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	RefundID      uuid.UUID           `json:"refundId"`
	TransactionID uuid.UUID           `json:"transactionId"`
	AmountCents   int64               `json:"amountCents"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	Reason        string              `json:"reason"`
}

// ReturnRequestedEvent is emitted when a customer opens a return.
type ReturnRequestedEvent struct {
	ReturnID uuid.UUID `json:"returnId"`
	OrderID  uuid.UUID `json:"orderId"`
	ItemID   uuid.UUID `json:"itemId"`
	UserID   uuid.UUID `json:"userId"`
	Reason   string    `json:"reason"`
}

// ReturnResolvedEvent is emitted when an admin approves or rejects a return.
type ReturnResolvedEvent struct {
	ReturnID uuid.UUID          `json:"returnId"`
	OrderID  uuid.UUID          `json:"orderId"`
	Status   enums.ReturnStatus `json:"status"`
	RefundID *uuid.UUID         `json:"refundId,omitempty"`
}
