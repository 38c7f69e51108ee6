package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RefundInput describes a refund issued on behalf of an order operation.
type RefundInput struct {
	Order       *models.Order
	Charge      models.Transaction
	AmountCents int64
	Reason      string
	Actor       Actor
}

// Refunder issues a refund inside the caller's transaction. The order row is
// already locked by the caller.
type Refunder interface {
	IssueRefundTx(ctx context.Context, tx *gorm.DB, in RefundInput) (*models.Refund, error)
}

// Service is the authoritative order store.
type Service interface {
	Create(ctx context.Context, actor Actor, req contracts.CreateOrderRequest) (*contracts.Order, error)
	List(ctx context.Context, userID uuid.UUID) (*contracts.OrderList, error)
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*contracts.Order, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*contracts.Order, error)
	ExpireUnpaid(ctx context.Context, orderID uuid.UUID) (*contracts.Order, error)
	RequestReturn(ctx context.Context, actor Actor, orderID uuid.UUID, req contracts.ReturnRequestInput) (*contracts.ReturnRequest, error)
	ListReturns(ctx context.Context, userID uuid.UUID) (*contracts.ReturnList, error)
	AdminGet(ctx context.Context, orderID uuid.UUID) (*contracts.AdminOrder, error)
	AdminUpdate(ctx context.Context, actor Actor, orderID uuid.UUID, req contracts.AdminOrderUpdateRequest) (*contracts.AdminOrder, error)
	ResolveReturn(ctx context.Context, actor Actor, returnID uuid.UUID, req contracts.ResolveReturnRequest) (*contracts.ResolveReturnResponse, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo     *Repository
	Catalog  *catalog.Repository
	Cart     cart.Service
	Tx       txRunner
	Outbox   outboxPublisher
	Refunder Refunder
	Pricing  Pricing
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     *Repository
	catalog  *catalog.Repository
	cart     cart.Service
	tx       txRunner
	outbox   outboxPublisher
	refunder Refunder
	pricing  Pricing
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order service. Refunder may be nil, in which case
// return approvals fail with a dependency error.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Pricing.Currency == "" {
		return nil, fmt.Errorf("pricing currency required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{
		repo:     params.Repo,
		catalog:  params.Catalog,
		cart:     params.Cart,
		tx:       params.Tx,
		outbox:   params.Outbox,
		refunder: params.Refunder,
		pricing:  params.Pricing,
		metrics:  params.Metrics,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

type orderLine struct {
	key contracts.LineKey
	qty int
}

// mergeLines folds repeated keys into one line, keeping first-seen order.
func mergeLines(items []contracts.OrderLineInput) []orderLine {
	index := make(map[contracts.LineKey]int, len(items))
	lines := make([]orderLine, 0, len(items))
	for _, item := range items {
		key := contracts.LineKey{ProductID: item.ProductID, VariantID: item.VariantID}
		if i, ok := index[key]; ok {
			lines[i].qty += item.Quantity
			continue
		}
		index[key] = len(lines)
		lines = append(lines, orderLine{key: key, qty: item.Quantity})
	}
	return lines
}

func (s *service) Create(ctx context.Context, actor Actor, req contracts.CreateOrderRequest) (*contracts.Order, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := contracts.Validate(req); err != nil {
		return nil, err
	}
	lines := mergeLines(req.Items)

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		catalogRepo := s.catalog.WithTx(tx)
		items := make([]models.OrderItem, 0, len(lines))
		consumed := make([]cart.OrderedLine, 0, len(lines))
		var subtotal int64
		for _, line := range lines {
			entry, err := catalogRepo.Resolve(ctx, line.key)
			if err != nil {
				return err
			}
			if err := catalogRepo.Reserve(ctx, entry.StockVariantID, line.qty); err != nil {
				if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
					return typed.WithDetails(map[string]any{
						"productId": line.key.ProductID,
						"variantId": line.key.VariantID,
						"requested": line.qty,
					})
				}
				return err
			}
			lineTotal := entry.UnitPriceCents * int64(line.qty)
			subtotal += lineTotal
			items = append(items, models.OrderItem{
				ProductID:      entry.ProductID,
				VariantID:      entry.StockVariantID,
				SKU:            entry.SKU,
				Name:           entry.Name,
				Size:           entry.Size,
				Color:          entry.Color,
				Image:          entry.Image,
				UnitPriceCents: entry.UnitPriceCents,
				Quantity:       line.qty,
				LineTotalCents: lineTotal,
			})
			consumed = append(consumed, cart.OrderedLine{Key: line.key, Quantity: line.qty})
		}

		totals := s.pricing.Quote(subtotal)
		order = &models.Order{
			UserID:           actor.UserID,
			Status:           enums.OrderStatusPending,
			PaymentStatus:    enums.PaymentStatusPending,
			PaymentMethod:    req.PaymentMethod,
			Currency:         s.pricing.Currency,
			SubtotalCents:    totals.SubtotalCents,
			TaxCents:         totals.TaxCents,
			ShippingFeeCents: totals.ShippingFeeCents,
			TotalCents:       totals.TotalCents,
			ShippingAddress:  models.Address(req.ShippingAddress),
			Contact:          models.Contact(req.Contact),
			Notes:            strings.TrimSpace(req.Notes),
			Items:            items,
			Transactions:     []models.Transaction{initialTransaction(req.PaymentMethod, totals.TotalCents, s.pricing.Currency)},
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.cart.ConsumeLines(ctx, tx, actor.UserID, consumed); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.ref(),
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				PaymentMethod: order.PaymentMethod,
				Currency:      order.Currency,
				TotalCents:    order.TotalCents,
				ItemCount:     len(items),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCreated(string(order.PaymentMethod))
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created")
	out := ToContract(order)
	return &out, nil
}

// initialTransaction opens the ledger: card orders wait on a provider
// authorization, cash on delivery is charged when the parcel is paid for.
func initialTransaction(method enums.PaymentMethod, amount int64, currency string) models.Transaction {
	txnType := enums.TransactionTypeAuthorize
	if method == enums.PaymentMethodCOD {
		txnType = enums.TransactionTypeCharge
	}
	return models.Transaction{
		Type:        txnType,
		Status:      enums.TransactionStatusPending,
		AmountCents: amount,
		Currency:    currency,
		Provider:    method.Provider(),
	}
}

func (s *service) List(ctx context.Context, userID uuid.UUID) (*contracts.OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := &contracts.OrderList{Orders: make([]contracts.Order, 0, len(rows))}
	for i := range rows {
		out.Orders = append(out.Orders, ToContract(&rows[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*contracts.Order, error) {
	order, err := s.repo.FindForActor(ctx, actor, orderID, false)
	if err != nil {
		return nil, err
	}
	out := ToContract(order)
	return &out, nil
}

// Cancel moves an order to CANCELLED and returns its reserved stock. Money is
// not touched here; a captured payment is refunded by a separate call.
func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*contracts.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.WithTx(tx).FindForActor(ctx, actor, orderID, true)
		if err != nil {
			return err
		}
		if !order.Status.IsCancellable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}
		return s.cancelLocked(ctx, tx, actor, order, "")
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCancelled()
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order cancelled")
	return s.reload(ctx, order.ID)
}

// ExpireUnpaid cancels a card order whose payment never arrived. Orders that
// moved on since they were listed are left alone and reported as a state
// conflict.
func (s *service) ExpireUnpaid(ctx context.Context, orderID uuid.UUID) (*contracts.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.WithTx(tx).FindForActor(ctx, SystemActor, orderID, true)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment").
				WithDetails(map[string]any{"status": order.Status, "paymentStatus": order.PaymentStatus})
		}
		return s.cancelLocked(ctx, tx, SystemActor, order, CancelReasonPaymentTimeout)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCancelled()
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "unpaid order expired")
	return s.reload(ctx, order.ID)
}

// cancelLocked runs with the order row locked by tx.
func (s *service) cancelLocked(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, reason string) error {
	now := s.now()
	if err := s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
		"status":       enums.OrderStatusCancelled,
		"cancelled_at": now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if err := s.releaseInventory(ctx, tx, order); err != nil {
		return err
	}
	order.Status = enums.OrderStatusCancelled
	order.CancelledAt = &now
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.ref(),
		Data: payloads.OrderCancelledEvent{
			OrderID:       order.ID,
			UserID:        order.UserID,
			PaymentStatus: order.PaymentStatus,
			Reason:        reason,
			CancelledAt:   now,
		},
	})
}

func (s *service) releaseInventory(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	catalogRepo := s.catalog.WithTx(tx)
	for _, item := range order.Items {
		if err := catalogRepo.Release(ctx, item.VariantID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release inventory")
		}
	}
	return nil
}

func (s *service) reload(ctx context.Context, orderID uuid.UUID) (*contracts.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	out := ToContract(order)
	return &out, nil
}

func (s *service) RequestReturn(ctx context.Context, actor Actor, orderID uuid.UUID, req contracts.ReturnRequestInput) (*contracts.ReturnRequest, error) {
	if err := contracts.Validate(req); err != nil {
		return nil, err
	}
	var ret *models.ReturnRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForActor(ctx, actor, orderID, true)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "returns are only accepted for delivered orders").
				WithDetails(map[string]any{"status": order.Status})
		}
		if !hasItem(order, req.ItemID) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		taken, err := repo.HasReturnIn(ctx, req.ItemID,
			enums.ReturnStatusRequested, enums.ReturnStatusApproved, enums.ReturnStatusRefunded)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing returns")
		}
		if taken {
			return pkgerrors.New(pkgerrors.CodeConflict, "a return already exists for this item")
		}

		ret = &models.ReturnRequest{
			OrderID:     order.ID,
			OrderItemID: req.ItemID,
			UserID:      order.UserID,
			Reason:      strings.TrimSpace(req.Reason),
			Status:      enums.ReturnStatusRequested,
		}
		if err := repo.CreateReturn(ctx, ret); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "a return already exists for this item")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnRequested,
			AggregateType: enums.AggregateReturn,
			AggregateID:   ret.ID,
			Actor:         actor.ref(),
			Data: payloads.ReturnRequestedEvent{
				ReturnID: ret.ID,
				OrderID:  order.ID,
				ItemID:   req.ItemID,
				UserID:   order.UserID,
				Reason:   ret.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	out := ReturnToContract(*ret)
	return &out, nil
}

func hasItem(order *models.Order, itemID uuid.UUID) bool {
	for _, item := range order.Items {
		if item.ID == itemID {
			return true
		}
	}
	return false
}

func (s *service) ListReturns(ctx context.Context, userID uuid.UUID) (*contracts.ReturnList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListReturnsForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list returns")
	}
	return &contracts.ReturnList{Returns: returnsToContract(rows)}, nil
}

func (s *service) AdminGet(ctx context.Context, orderID uuid.UUID) (*contracts.AdminOrder, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	returns, err := s.repo.ListReturnsForOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load returns")
	}
	out := toAdminContract(order, returns)
	return &out, nil
}

func parseAdminUpdate(req contracts.AdminOrderUpdateRequest) (*enums.OrderStatus, *enums.PaymentStatus, error) {
	if req.Status == nil && req.PaymentStatus == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "status or paymentStatus required")
	}
	var status *enums.OrderStatus
	var payment *enums.PaymentStatus
	details := map[string]string{}
	if req.Status != nil {
		parsed, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		if err != nil {
			details["status"] = err.Error()
		} else {
			status = &parsed
		}
	}
	if req.PaymentStatus != nil {
		parsed, err := enums.ParsePaymentStatus(strings.ToUpper(strings.TrimSpace(*req.PaymentStatus)))
		if err != nil {
			details["paymentStatus"] = err.Error()
		} else {
			payment = &parsed
		}
	}
	if len(details) > 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status value").WithDetails(details)
	}
	return status, payment, nil
}

// AdminUpdate applies status and payment status changes through the
// transition tables. Marking a payment CAPTURED records the missing charge.
func (s *service) AdminUpdate(ctx context.Context, actor Actor, orderID uuid.UUID, req contracts.AdminOrderUpdateRequest) (*contracts.AdminOrder, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	nextStatus, nextPayment, err := parseAdminUpdate(req)
	if err != nil {
		return nil, err
	}

	var captured *models.Transaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForActor(ctx, actor, orderID, true)
		if err != nil {
			return err
		}
		fromStatus, fromPayment := order.Status, order.PaymentStatus
		updates := map[string]any{}
		now := s.now()

		if nextStatus != nil && *nextStatus != order.Status {
			if !order.Status.CanTransitionTo(*nextStatus) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
					WithDetails(map[string]any{"from": order.Status, "to": *nextStatus})
			}
			updates["status"] = *nextStatus
			switch *nextStatus {
			case enums.OrderStatusCancelled:
				updates["cancelled_at"] = now
				if err := s.releaseInventory(ctx, tx, order); err != nil {
					return err
				}
			case enums.OrderStatusDelivered:
				updates["delivered_at"] = now
			}
		}
		if nextPayment != nil && *nextPayment != order.PaymentStatus {
			if !order.PaymentStatus.CanTransitionTo(*nextPayment) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment status transition not allowed").
					WithDetails(map[string]any{"from": order.PaymentStatus, "to": *nextPayment})
			}
			updates["payment_status"] = *nextPayment
			if *nextPayment == enums.PaymentStatusCaptured {
				if _, ok := SuccessfulCharge(order); !ok {
					captured = &models.Transaction{
						OrderID:     order.ID,
						Type:        enums.TransactionTypeCharge,
						Status:      enums.TransactionStatusSuccess,
						AmountCents: order.TotalCents,
						Currency:    order.Currency,
						Provider:    order.PaymentMethod.Provider(),
					}
					if err := repo.CreateTransaction(ctx, captured); err != nil {
						return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record charge")
					}
					if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
						EventType:     enums.EventPaymentCaptured,
						AggregateType: enums.AggregateOrder,
						AggregateID:   order.ID,
						Actor:         actor.ref(),
						Data: payloads.PaymentCapturedEvent{
							OrderID:       order.ID,
							TransactionID: captured.ID,
							Provider:      captured.Provider,
							AmountCents:   captured.AmountCents,
							Currency:      captured.Currency,
						},
					}); err != nil {
						return err
					}
				}
			}
		}
		if len(updates) == 0 {
			return nil
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}

		toStatus, toPayment := fromStatus, fromPayment
		if v, ok := updates["status"].(enums.OrderStatus); ok {
			toStatus = v
		}
		if v, ok := updates["payment_status"].(enums.PaymentStatus); ok {
			toPayment = v
		}
		return s.emitStatusChanged(ctx, tx, actor, order.ID, fromStatus, toStatus, fromPayment, toPayment)
	})
	if err != nil {
		return nil, err
	}
	if captured != nil {
		s.metrics.IncCaptured(string(captured.Provider))
	}
	return s.AdminGet(ctx, orderID)
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, actor Actor, orderID uuid.UUID, fromStatus, toStatus enums.OrderStatus, fromPayment, toPayment enums.PaymentStatus) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor.ref(),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:           orderID,
			FromStatus:        fromStatus,
			ToStatus:          toStatus,
			FromPaymentStatus: fromPayment,
			ToPaymentStatus:   toPayment,
		},
	})
}

// ResolveReturn rejects a return or approves it by refunding the item's line
// total, capped at what is still refundable on the charge. Once every item of
// a delivered order is refunded the order becomes RETURNED.
func (s *service) ResolveReturn(ctx context.Context, actor Actor, returnID uuid.UUID, req contracts.ResolveReturnRequest) (*contracts.ResolveReturnResponse, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if err := contracts.Validate(req); err != nil {
		return nil, err
	}
	if req.Decision == enums.ReturnDecisionApprove && s.refunder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "refunds are not configured")
	}

	var orderID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ret, err := repo.LockReturn(ctx, returnID)
		if err != nil {
			if IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
		}
		if !ret.Status.IsOpen() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return request already resolved").
				WithDetails(map[string]any{"status": ret.Status})
		}
		order, err := repo.FindForActor(ctx, actor, ret.OrderID, true)
		if err != nil {
			return err
		}
		orderID = order.ID

		updates := map[string]any{}
		if note := strings.TrimSpace(req.Note); note != "" {
			updates["resolution_note"] = note
		}
		var refundID *uuid.UUID
		if req.Decision == enums.ReturnDecisionReject {
			updates["status"] = enums.ReturnStatusRejected
		} else {
			refund, err := s.refundReturn(ctx, tx, actor, order, ret)
			if err != nil {
				return err
			}
			refundID = &refund.ID
			updates["status"] = enums.ReturnStatusRefunded
			updates["refund_id"] = refund.ID
		}
		if err := repo.UpdateReturn(ctx, ret.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return request")
		}

		status := updates["status"].(enums.ReturnStatus)
		if status == enums.ReturnStatusRefunded && order.Status == enums.OrderStatusDelivered {
			if err := s.completeReturn(ctx, tx, actor, order); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnResolved,
			AggregateType: enums.AggregateReturn,
			AggregateID:   ret.ID,
			Actor:         actor.ref(),
			Data: payloads.ReturnResolvedEvent{
				ReturnID: ret.ID,
				OrderID:  order.ID,
				Status:   status,
				RefundID: refundID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	ret, err := s.repo.FindReturn(ctx, returnID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload return request")
	}
	order, err := s.reload(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &contracts.ResolveReturnResponse{Return: ReturnToContract(*ret), Order: *order}, nil
}

func (s *service) refundReturn(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, ret *models.ReturnRequest) (*models.Refund, error) {
	var lineTotal int64
	for _, item := range order.Items {
		if item.ID == ret.OrderItemID {
			lineTotal = item.LineTotalCents
		}
	}
	charge, ok := SuccessfulCharge(order)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no captured payment to refund")
	}
	amount := min(lineTotal, RefundableCents(order, charge))
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "nothing left to refund on this order")
	}
	return s.refunder.IssueRefundTx(ctx, tx, RefundInput{
		Order:       order,
		Charge:      charge,
		AmountCents: amount,
		Reason:      "return: " + ret.Reason,
		Actor:       actor,
	})
}

// completeReturn marks the order RETURNED when every item has a refunded return.
func (s *service) completeReturn(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order) error {
	repo := s.repo.WithTx(tx)
	returns, err := repo.ListReturnsForOrder(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load returns")
	}
	refunded := make(map[uuid.UUID]bool, len(returns))
	for _, ret := range returns {
		if ret.Status == enums.ReturnStatusRefunded {
			refunded[ret.OrderItemID] = true
		}
	}
	for _, item := range order.Items {
		if !refunded[item.ID] {
			return nil
		}
	}
	current, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if err := repo.Update(ctx, order.ID, map[string]any{"status": enums.OrderStatusReturned}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order returned")
	}
	return s.emitStatusChanged(ctx, tx, actor, order.ID,
		order.Status, enums.OrderStatusReturned, current.PaymentStatus, current.PaymentStatus)
}
