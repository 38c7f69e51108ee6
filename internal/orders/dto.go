package orders

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/outbox"
)

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// CancelReasonPaymentTimeout marks orders cancelled by the unpaid order sweep.
const CancelReasonPaymentTimeout = "payment_timeout"

// RefundReasonCancelled is attached to refunds of money captured for an order
// that is already cancelled.
const RefundReasonCancelled = "Order cancelled by user"

// SystemActor performs scheduled maintenance. It carries the admin role so it
// can reach any order.
var SystemActor = Actor{UserID: uuid.MustParse("00000000-0000-0000-0000-00000000c0de"), Role: enums.RoleAdmin}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

func (a Actor) ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// SuccessfulCharge returns the order's CHARGE SUCCESS transaction.
func SuccessfulCharge(order *models.Order) (models.Transaction, bool) {
	for _, txn := range order.Transactions {
		if txn.Type == enums.TransactionTypeCharge && txn.Status == enums.TransactionStatusSuccess {
			return txn, true
		}
	}
	return models.Transaction{}, false
}

// RefundedCents sums successful refunds against chargeID.
func RefundedCents(order *models.Order, chargeID uuid.UUID) int64 {
	var total int64
	for _, refund := range order.Refunds {
		if refund.TransactionID == chargeID && refund.Status == enums.TransactionStatusSuccess {
			total += refund.AmountCents
		}
	}
	return total
}

// RefundableCents is what is left to refund on charge.
func RefundableCents(order *models.Order, charge models.Transaction) int64 {
	remaining := charge.AmountCents - RefundedCents(order, charge.ID)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ToContract maps a loaded order, items and ledger included, onto its wire shape.
func ToContract(order *models.Order) contracts.Order {
	out := contracts.Order{
		ID:               order.ID,
		UserID:           order.UserID,
		Status:           order.Status,
		PaymentStatus:    order.PaymentStatus,
		PaymentMethod:    order.PaymentMethod,
		Currency:         order.Currency,
		SubtotalCents:    order.SubtotalCents,
		TaxCents:         order.TaxCents,
		ShippingFeeCents: order.ShippingFeeCents,
		TotalCents:       order.TotalCents,
		ShippingAddress:  contracts.Address(order.ShippingAddress),
		Contact:          contracts.Contact(order.Contact),
		Notes:            order.Notes,
		Items:            make([]contracts.OrderItem, 0, len(order.Items)),
		Transactions:     make([]contracts.Transaction, 0, len(order.Transactions)),
		Refunds:          make([]contracts.Refund, 0, len(order.Refunds)),
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
		CancelledAt:      order.CancelledAt,
		DeliveredAt:      order.DeliveredAt,
	}
	for _, item := range order.Items {
		out.Items = append(out.Items, contracts.OrderItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			SKU:            item.SKU,
			Name:           item.Name,
			Size:           item.Size,
			Color:          item.Color,
			Image:          item.Image,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.LineTotalCents,
		})
	}
	for _, txn := range order.Transactions {
		out.Transactions = append(out.Transactions, contracts.Transaction{
			ID:          txn.ID,
			OrderID:     txn.OrderID,
			Type:        txn.Type,
			Status:      txn.Status,
			AmountCents: txn.AmountCents,
			Currency:    txn.Currency,
			Provider:    txn.Provider,
			ProviderRef: deref(txn.ProviderRef),
			CreatedAt:   txn.CreatedAt,
		})
	}
	for _, refund := range order.Refunds {
		out.Refunds = append(out.Refunds, RefundToContract(refund))
	}
	return out
}

func RefundToContract(refund models.Refund) contracts.Refund {
	return contracts.Refund{
		ID:                  refund.ID,
		OrderID:             refund.OrderID,
		TransactionID:       refund.TransactionID,
		RefundTransactionID: refund.RefundTransactionID,
		AmountCents:         refund.AmountCents,
		Status:              refund.Status,
		Reason:              refund.Reason,
		ProviderRef:         deref(refund.ProviderRef),
		CreatedAt:           refund.CreatedAt,
	}
}

func ReturnToContract(ret models.ReturnRequest) contracts.ReturnRequest {
	return contracts.ReturnRequest{
		ID:             ret.ID,
		OrderID:        ret.OrderID,
		OrderItemID:    ret.OrderItemID,
		Reason:         ret.Reason,
		Status:         ret.Status,
		ResolutionNote: deref(ret.ResolutionNote),
		RefundID:       ret.RefundID,
		CreatedAt:      ret.CreatedAt,
		UpdatedAt:      ret.UpdatedAt,
	}
}

func returnsToContract(rows []models.ReturnRequest) []contracts.ReturnRequest {
	out := make([]contracts.ReturnRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, ReturnToContract(row))
	}
	return out
}

// toAdminContract adds the customer view and a payment method summary per
// transaction.
func toAdminContract(order *models.Order, returns []models.ReturnRequest) contracts.AdminOrder {
	base := ToContract(order)
	summary := paymentMethodSummary(order.PaymentMethod)
	for i := range base.Transactions {
		base.Transactions[i].PaymentMethodSummary = summary
	}
	return contracts.AdminOrder{
		Order: base,
		Customer: contracts.Customer{
			UserID: order.UserID,
			Email:  order.Contact.Email,
			Name:   strings.TrimSpace(order.ShippingAddress.FullName),
		},
		Returns: returnsToContract(returns),
	}
}

func paymentMethodSummary(method enums.PaymentMethod) string {
	switch method {
	case enums.PaymentMethodCard:
		return "card via stripe checkout"
	case enums.PaymentMethodCOD:
		return "cash on delivery"
	default:
		return string(method)
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
