package contracts

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/enums"
)

type Address struct {
	FullName   string `json:"fullName" validate:"required,max=120"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state,omitempty" validate:"max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
}

type Contact struct {
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty" validate:"max=32"`
}

type OrderLineInput struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	VariantID uuid.UUID `json:"variantId"`
	Quantity  int       `json:"quantity" validate:"min=1,max=999"`
}

// CreateOrderRequest is the body of POST /api/user/orders.
type CreateOrderRequest struct {
	ShippingAddress Address             `json:"shippingAddress"`
	Contact         Contact             `json:"contact"`
	PaymentMethod   enums.PaymentMethod `json:"paymentMethod" validate:"required,payment_method"`
	Items           []OrderLineInput    `json:"items" validate:"required,min=1,max=100,dive"`
	Notes           string              `json:"notes,omitempty" validate:"max=500"`
}

type OrderItem struct {
	ID             uuid.UUID `json:"id" validate:"required"`
	ProductID      uuid.UUID `json:"productId" validate:"required"`
	VariantID      uuid.UUID `json:"variantId"`
	SKU            string    `json:"sku,omitempty"`
	Name           string    `json:"name"`
	Size           string    `json:"size,omitempty"`
	Color          string    `json:"color,omitempty"`
	Image          string    `json:"image,omitempty"`
	UnitPriceCents int64     `json:"unitPriceCents" validate:"min=0"`
	Quantity       int       `json:"quantity" validate:"min=1"`
	LineTotalCents int64     `json:"lineTotalCents" validate:"min=0"`
}

type Transaction struct {
	ID                   uuid.UUID               `json:"id" validate:"required"`
	OrderID              uuid.UUID               `json:"orderId" validate:"required"`
	Type                 enums.TransactionType   `json:"type" validate:"transaction_type"`
	Status               enums.TransactionStatus `json:"status" validate:"transaction_status"`
	AmountCents          int64                   `json:"amountCents" validate:"min=0"`
	Currency             string                  `json:"currency"`
	Provider             enums.PaymentProvider   `json:"provider"`
	ProviderRef          string                  `json:"providerRef,omitempty"`
	PaymentMethodSummary string                  `json:"paymentMethodSummary,omitempty"`
	CreatedAt            time.Time               `json:"createdAt"`
}

type Refund struct {
	ID                  uuid.UUID               `json:"id" validate:"required"`
	OrderID             uuid.UUID               `json:"orderId" validate:"required"`
	TransactionID       uuid.UUID               `json:"transactionId" validate:"required"`
	RefundTransactionID uuid.UUID               `json:"refundTransactionId"`
	AmountCents         int64                   `json:"amountCents" validate:"gt=0"`
	Status              enums.TransactionStatus `json:"status" validate:"transaction_status"`
	Reason              string                  `json:"reason"`
	ProviderRef         string                  `json:"providerRef,omitempty"`
	CreatedAt           time.Time               `json:"createdAt"`
}

// Order is the user-facing order shape returned by every order endpoint.
// TotalCents always equals SubtotalCents + TaxCents + ShippingFeeCents.
type Order struct {
	ID               uuid.UUID           `json:"id" validate:"required"`
	UserID           uuid.UUID           `json:"userId" validate:"required"`
	Status           enums.OrderStatus   `json:"status" validate:"order_status"`
	PaymentStatus    enums.PaymentStatus `json:"paymentStatus" validate:"payment_status"`
	PaymentMethod    enums.PaymentMethod `json:"paymentMethod" validate:"payment_method"`
	Currency         string              `json:"currency" validate:"required"`
	SubtotalCents    int64               `json:"subtotalCents" validate:"min=0"`
	TaxCents         int64               `json:"taxAmountCents" validate:"min=0"`
	ShippingFeeCents int64               `json:"shippingFeeCents" validate:"min=0"`
	TotalCents       int64               `json:"totalAmountCents" validate:"min=0"`
	ShippingAddress  Address             `json:"shippingAddress"`
	Contact          Contact             `json:"contact"`
	Notes            string              `json:"notes,omitempty"`
	Items            []OrderItem         `json:"items" validate:"dive"`
	Transactions     []Transaction       `json:"transactions" validate:"dive"`
	Refunds          []Refund            `json:"refunds" validate:"dive"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
	CancelledAt      *time.Time          `json:"cancelledAt,omitempty"`
	DeliveredAt      *time.Time          `json:"deliveredAt,omitempty"`
}

// ChargeTransaction returns the successful CHARGE transaction, if any.
func (o Order) ChargeTransaction() (Transaction, bool) {
	for _, tx := range o.Transactions {
		if tx.Type == enums.TransactionTypeCharge && tx.Status == enums.TransactionStatusSuccess {
			return tx, true
		}
	}
	return Transaction{}, false
}

// RefundedCents sums successful refunds issued against a transaction.
func (o Order) RefundedCents(transactionID uuid.UUID) int64 {
	var total int64
	for _, r := range o.Refunds {
		if r.TransactionID == transactionID && r.Status == enums.TransactionStatusSuccess {
			total += r.AmountCents
		}
	}
	return total
}

type OrderList struct {
	Orders []Order `json:"orders" validate:"dive"`
}

// ReturnRequestInput is the body of POST /api/user/orders/{id}/return.
type ReturnRequestInput struct {
	ItemID uuid.UUID `json:"itemId" validate:"required"`
	Reason string    `json:"reason" validate:"required,min=3,max=500"`
}

type ReturnRequest struct {
	ID             uuid.UUID          `json:"id" validate:"required"`
	OrderID        uuid.UUID          `json:"orderId" validate:"required"`
	OrderItemID    uuid.UUID          `json:"orderItemId" validate:"required"`
	Reason         string             `json:"reason"`
	Status         enums.ReturnStatus `json:"status" validate:"return_status"`
	ResolutionNote string             `json:"resolutionNote,omitempty"`
	RefundID       *uuid.UUID         `json:"refundId,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

type ReturnList struct {
	Returns []ReturnRequest `json:"returns" validate:"dive"`
}

type Customer struct {
	UserID uuid.UUID `json:"userId"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
}

// AdminOrder is returned by GET /api/admin/orders/{id}.
type AdminOrder struct {
	Order
	Customer Customer        `json:"customer"`
	Returns  []ReturnRequest `json:"returns" validate:"dive"`
}

// AdminOrderUpdateRequest is the body of PATCH /api/admin/orders/{id}. Values
// are kept as raw strings so unknown enum values surface as 400s from the
// service instead of decode failures.
type AdminOrderUpdateRequest struct {
	Status        *string `json:"status,omitempty"`
	PaymentStatus *string `json:"paymentStatus,omitempty"`
}

// ResolveReturnRequest is the body of POST /api/admin/returns/{id}/resolve.
type ResolveReturnRequest struct {
	Decision enums.ReturnDecision `json:"decision" validate:"required,oneof=approve reject"`
	Note     string               `json:"note,omitempty" validate:"max=500"`
}

type ResolveReturnResponse struct {
	Return ReturnRequest `json:"return"`
	Order  Order         `json:"order"`
}
