package contracts

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

func validOrder() Order {
	return Order{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		Status:           enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		PaymentMethod:    enums.PaymentMethodCard,
		Currency:         "usd",
		SubtotalCents:    699800,
		TaxCents:         50000,
		ShippingFeeCents: 0,
		TotalCents:       749800,
		ShippingAddress:  Address{FullName: "Ada", Line1: "1 Main", City: "Austin", PostalCode: "78701", Country: "US"},
		Contact:          Contact{Email: "ada@example.com"},
		Items:            []OrderItem{},
		Transactions:     []Transaction{},
		Refunds:          []Refund{},
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

func TestValidateOrderTotals(t *testing.T) {
	t.Parallel()

	order := validOrder()
	if err := Validate(order); err != nil {
		t.Fatalf("expected valid order, got %v", err)
	}

	order.TotalCents = 749801
	err := Validate(order)
	if err == nil {
		t.Fatalf("expected total drift to be rejected")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["totalAmountCents"] == "" {
		t.Fatalf("expected totalAmountCents detail, got %#v", typed.Details())
	}
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	t.Parallel()

	order := validOrder()
	order.PaymentStatus = "SETTLED"
	if err := Validate(order); err == nil {
		t.Fatalf("expected unknown payment status to be rejected")
	}

	order = validOrder()
	order.Transactions = []Transaction{{ID: uuid.New(), OrderID: order.ID, Type: "VOID", Status: enums.TransactionStatusSuccess}}
	if err := Validate(order); err == nil {
		t.Fatalf("expected unknown transaction type to be rejected")
	}
}

func TestValidateCartContracts(t *testing.T) {
	t.Parallel()

	if err := Validate(CartUpsertRequest{ProductID: uuid.New(), Quantity: -1, Mode: enums.CartModeIncrement}); err != nil {
		t.Fatalf("negative increments are part of the contract: %v", err)
	}
	if err := Validate(CartUpsertRequest{ProductID: uuid.New(), Quantity: 1, Mode: "replace"}); err == nil {
		t.Fatalf("expected unknown mode to fail")
	}
	if err := Validate(CartUpsertRequest{Quantity: 1}); err == nil {
		t.Fatalf("expected missing product to fail")
	}

	resp := CartResponse{Items: []CartLine{{ID: "line-1", ProductID: uuid.New(), Quantity: 0}}}
	if err := Validate(resp); err == nil {
		t.Fatalf("expected zero-quantity line to fail")
	}
}

func TestValidateCreateOrderRequest(t *testing.T) {
	t.Parallel()

	req := CreateOrderRequest{
		ShippingAddress: Address{FullName: "Ada", Line1: "1 Main", City: "Austin", PostalCode: "78701", Country: "US"},
		Contact:         Contact{Email: "ada@example.com"},
		PaymentMethod:   enums.PaymentMethodCOD,
		Items:           []OrderLineInput{{ProductID: uuid.New(), Quantity: 2}},
	}
	if err := Validate(req); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	req.Items = nil
	req.Contact.Email = "not-an-email"
	err := Validate(req)
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected validation error")
	}
	details := typed.Details().(map[string]string)
	if details["items"] == "" || details["contact.email"] == "" {
		t.Fatalf("expected items and contact.email details, got %#v", details)
	}
}

func TestOrderRefundHelpers(t *testing.T) {
	t.Parallel()

	order := validOrder()
	charge := Transaction{ID: uuid.New(), Type: enums.TransactionTypeCharge, Status: enums.TransactionStatusSuccess, AmountCents: 2499}
	order.Transactions = []Transaction{
		{ID: uuid.New(), Type: enums.TransactionTypeAuthorize, Status: enums.TransactionStatusPending},
		charge,
	}
	order.Refunds = []Refund{
		{TransactionID: charge.ID, AmountCents: 500, Status: enums.TransactionStatusSuccess},
		{TransactionID: charge.ID, AmountCents: 900, Status: enums.TransactionStatusFailed},
	}

	got, ok := order.ChargeTransaction()
	if !ok || got.ID != charge.ID {
		t.Fatalf("expected charge transaction")
	}
	if refunded := order.RefundedCents(charge.ID); refunded != 500 {
		t.Fatalf("expected 500 refunded, got %d", refunded)
	}
}
