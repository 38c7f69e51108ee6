package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/contracts"
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

// Service owns the money side of an order: checkout, capture and refunds.
type Service interface {
	CreateIntent(ctx context.Context, actor orders.Actor, req contracts.PaymentIntentRequest) (*contracts.PaymentIntentResponse, error)
	VerifyPayment(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*contracts.Order, error)
	// ApplyCheckoutOutcome records a provider-pushed outcome for the checkout
	// session, as delivered by webhooks.
	ApplyCheckoutOutcome(ctx context.Context, sessionID string, outcome CheckoutOutcome) error
	Refund(ctx context.Context, actor orders.Actor, req contracts.RefundRequest) (*contracts.RefundResponse, error)
	IssueRefundTx(ctx context.Context, tx *gorm.DB, in orders.RefundInput) (*models.Refund, error)
}

type ServiceParams struct {
	Repo      *orders.Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Providers []Provider
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      *orders.Repository
	tx        txRunner
	outbox    outboxPublisher
	providers map[enums.PaymentProvider]Provider
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if len(params.Providers) == 0 {
		return nil, fmt.Errorf("at least one payment provider required")
	}
	providers := make(map[enums.PaymentProvider]Provider, len(params.Providers))
	for _, p := range params.Providers {
		if p == nil {
			return nil, fmt.Errorf("nil payment provider")
		}
		providers[p.Name()] = p
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		providers: providers,
		metrics:   params.Metrics,
		logg:      logg,
	}, nil
}

func (s *service) provider(name enums.PaymentProvider) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured").
			WithDetails(map[string]any{"provider": name})
	}
	return p, nil
}

func actorRef(actor *orders.Actor) *outbox.ActorRef {
	if actor == nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

// CreateIntent opens a hosted checkout for a pending card order and records
// the session on an AUTHORIZE transaction.
func (s *service) CreateIntent(ctx context.Context, actor orders.Actor, req contracts.PaymentIntentRequest) (*contracts.PaymentIntentResponse, error) {
	if err := contracts.Validate(req); err != nil {
		return nil, err
	}
	var url string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForActor(ctx, actor, req.OrderID, true)
		if err != nil {
			return err
		}
		switch {
		case order.PaymentMethod != enums.PaymentMethodCard:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only card orders take online payment")
		case order.PaymentStatus != enums.PaymentStatusPending:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order payment is not pending").
				WithDetails(map[string]any{"paymentStatus": order.PaymentStatus})
		case order.Status == enums.OrderStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
		case req.AmountCents != order.TotalCents:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "amount does not match order total").
				WithDetails(map[string]any{"amountCents": req.AmountCents, "totalAmountCents": order.TotalCents})
		}

		provider, err := s.provider(order.PaymentMethod.Provider())
		if err != nil {
			return err
		}
		checkout, err := provider.CreateCheckout(ctx, CheckoutInput{
			OrderID:        order.ID.String(),
			Description:    "Order " + order.ID.String()[:8],
			AmountCents:    order.TotalCents,
			Currency:       order.Currency,
			CustomerEmail:  order.Contact.Email,
			Metadata:       req.Metadata,
			IdempotencyKey: fmt.Sprintf("checkout-%s-%d", order.ID, len(order.Transactions)),
		})
		if err != nil {
			return err
		}
		ref := checkout.SessionID
		txn := &models.Transaction{
			OrderID:     order.ID,
			Type:        enums.TransactionTypeAuthorize,
			Status:      enums.TransactionStatusPending,
			AmountCents: order.TotalCents,
			Currency:    order.Currency,
			Provider:    provider.Name(),
			ProviderRef: &ref,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record authorization")
		}
		url = checkout.URL
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &contracts.PaymentIntentResponse{URL: url}, nil
}

// pendingCheckout returns the newest pending transaction that carries a
// checkout session reference.
func pendingCheckout(order *models.Order) (models.Transaction, bool) {
	for i := len(order.Transactions) - 1; i >= 0; i-- {
		txn := order.Transactions[i]
		if txn.Status != enums.TransactionStatusPending || txn.ProviderRef == nil {
			continue
		}
		if txn.Type == enums.TransactionTypeAuthorize || txn.Type == enums.TransactionTypeCharge {
			return txn, true
		}
	}
	return models.Transaction{}, false
}

func (s *service) VerifyPayment(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*contracts.Order, error) {
	var capturedBy enums.PaymentProvider
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindForActor(ctx, actor, orderID, true)
		if err != nil {
			return err
		}
		if order.PaymentStatus.IsCaptured() {
			return nil
		}
		pending, ok := pendingCheckout(order)
		if !ok {
			return nil
		}
		provider, err := s.provider(pending.Provider)
		if err != nil {
			return err
		}
		outcome, err := provider.LookupCheckout(ctx, *pending.ProviderRef)
		if err != nil {
			return err
		}
		capturedBy, err = s.applyOutcome(ctx, tx, order, pending, *outcome, &actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	if capturedBy != "" {
		s.metrics.IncCaptured(string(capturedBy))
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	out := orders.ToContract(order)
	return &out, nil
}

func (s *service) ApplyCheckoutOutcome(ctx context.Context, sessionID string, outcome CheckoutOutcome) error {
	if sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id required")
	}
	var capturedBy enums.PaymentProvider
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		pending, err := repo.FindTransactionByProviderRef(ctx, sessionID)
		if err != nil {
			if orders.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no order for checkout session")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find checkout transaction")
		}
		order, err := repo.LockByID(ctx, pending.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		capturedBy, err = s.applyOutcome(ctx, tx, order, *pending, outcome, nil)
		return err
	})
	if err != nil {
		return err
	}
	if capturedBy != "" {
		s.metrics.IncCaptured(string(capturedBy))
	}
	return nil
}

// applyOutcome appends the CHARGE row for a finished checkout and moves the
// payment status. Outcomes the payment table does not allow are ignored. The
// provider is returned when the payment was captured.
func (s *service) applyOutcome(ctx context.Context, tx *gorm.DB, order *models.Order, pending models.Transaction, outcome CheckoutOutcome, actor *orders.Actor) (enums.PaymentProvider, error) {
	var next enums.PaymentStatus
	switch outcome.State {
	case CheckoutPaid:
		next = enums.PaymentStatusCaptured
	case CheckoutFailed:
		next = enums.PaymentStatusFailed
	default:
		return "", nil
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	if !order.PaymentStatus.CanTransitionTo(next) {
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"payment_status": order.PaymentStatus,
			"outcome":        outcome.State,
		}), "ignoring checkout outcome")
		return "", nil
	}

	ref := outcome.PaymentRef
	if ref == "" {
		ref = deref(pending.ProviderRef)
	}
	charge := &models.Transaction{
		OrderID:     order.ID,
		Type:        enums.TransactionTypeCharge,
		Status:      enums.TransactionStatusSuccess,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Provider:    pending.Provider,
	}
	if ref != "" {
		charge.ProviderRef = &ref
	}
	if next == enums.PaymentStatusFailed {
		charge.Status = enums.TransactionStatusFailed
	}
	repo := s.repo.WithTx(tx)
	if err := repo.CreateTransaction(ctx, charge); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record charge")
	}
	if err := repo.Update(ctx, order.ID, map[string]any{"payment_status": next}); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}

	event := outbox.DomainEvent{
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
	}
	if next == enums.PaymentStatusCaptured {
		event.EventType = enums.EventPaymentCaptured
		event.Data = payloads.PaymentCapturedEvent{
			OrderID:       order.ID,
			TransactionID: charge.ID,
			Provider:      charge.Provider,
			AmountCents:   charge.AmountCents,
			Currency:      charge.Currency,
		}
	} else {
		event.EventType = enums.EventPaymentFailed
		event.Data = payloads.PaymentFailedEvent{
			OrderID:       order.ID,
			TransactionID: charge.ID,
			Reason:        outcome.Reason,
		}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return "", err
	}
	s.logg.Info(logCtx, "checkout outcome recorded: "+string(outcome.State))
	if next != enums.PaymentStatusCaptured {
		return "", nil
	}

	// A session left open across a cancellation can still be paid. The money
	// goes straight back in the same transaction.
	if order.Status == enums.OrderStatusCancelled {
		order.PaymentStatus = next
		order.Transactions = append(order.Transactions, *charge)
		if _, err := s.IssueRefundTx(ctx, tx, orders.RefundInput{
			Order:       order,
			Charge:      *charge,
			AmountCents: charge.AmountCents,
			Reason:      orders.RefundReasonCancelled,
			Actor:       orders.SystemActor,
		}); err != nil {
			return "", err
		}
		s.logg.Warn(logCtx, "payment captured after cancellation refunded")
	}
	return charge.Provider, nil
}

// Refund returns money from a successful charge. The order row stays locked
// from the ceiling check until the refund is recorded.
func (s *service) Refund(ctx context.Context, actor orders.Actor, req contracts.RefundRequest) (*contracts.RefundResponse, error) {
	if err := contracts.Validate(req); err != nil {
		return nil, err
	}
	var refund *models.Refund
	var orderID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		target, err := repo.FindTransaction(ctx, req.TransactionID)
		if err != nil {
			if orders.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
		}
		order, err := repo.FindForActor(ctx, actor, target.OrderID, true)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return err
		}
		orderID = order.ID
		refund, err = s.IssueRefundTx(ctx, tx, orders.RefundInput{
			Order:       order,
			Charge:      *target,
			AmountCents: req.AmountCents,
			Reason:      req.Reason,
			Actor:       actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return &contracts.RefundResponse{
		Refund: orders.RefundToContract(*refund),
		Order:  orders.ToContract(order),
	}, nil
}

// IssueRefundTx enforces the refund ceiling against in.Order, which the caller
// must hold locked, then calls the provider and records the ledger rows. A
// provider failure leaves nothing behind.
func (s *service) IssueRefundTx(ctx context.Context, tx *gorm.DB, in orders.RefundInput) (*models.Refund, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to issue refund")
	}
	order, charge := in.Order, in.Charge
	if order == nil || charge.OrderID != order.ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction does not belong to order")
	}
	if charge.Type != enums.TransactionTypeCharge || charge.Status != enums.TransactionStatusSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only successful charges can be refunded").
			WithDetails(map[string]any{"type": charge.Type, "status": charge.Status})
	}
	if order.PaymentStatus == enums.PaymentStatusFullyRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is already fully refunded")
	}
	if !order.PaymentStatus.IsCaptured() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not captured").
			WithDetails(map[string]any{"paymentStatus": order.PaymentStatus})
	}
	remaining := orders.RefundableCents(order, charge)
	if in.AmountCents <= 0 || in.AmountCents > remaining {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "refund amount exceeds refundable balance").
			WithDetails(map[string]any{"amountCents": in.AmountCents, "refundableCents": remaining})
	}

	provider, err := s.provider(charge.Provider)
	if err != nil {
		return nil, err
	}
	refunded := orders.RefundedCents(order, charge.ID)
	providerRef, err := provider.Refund(ctx, RefundRequest{
		PaymentRef:     deref(charge.ProviderRef),
		AmountCents:    in.AmountCents,
		Currency:       charge.Currency,
		Reason:         in.Reason,
		Metadata:       map[string]string{"order_id": order.ID.String(), "transaction_id": charge.ID.String()},
		IdempotencyKey: fmt.Sprintf("refund-%s-%d-%d", charge.ID, refunded, in.AmountCents),
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider refund failed")
	}

	repo := s.repo.WithTx(tx)
	refundTxn := &models.Transaction{
		OrderID:     order.ID,
		Type:        enums.TransactionTypeRefund,
		Status:      enums.TransactionStatusSuccess,
		AmountCents: in.AmountCents,
		Currency:    charge.Currency,
		Provider:    charge.Provider,
		ProviderRef: &providerRef,
	}
	if err := repo.CreateTransaction(ctx, refundTxn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund transaction")
	}
	refund := &models.Refund{
		OrderID:             order.ID,
		TransactionID:       charge.ID,
		RefundTransactionID: refundTxn.ID,
		AmountCents:         in.AmountCents,
		Status:              enums.TransactionStatusSuccess,
		Reason:              in.Reason,
		ProviderRef:         &providerRef,
	}
	if err := repo.CreateRefund(ctx, refund); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	order.Transactions = append(order.Transactions, *refundTxn)
	order.Refunds = append(order.Refunds, *refund)

	next := enums.PaymentStatusPartiallyRefunded
	if totalRefunded(order) >= totalCaptured(order) {
		next = enums.PaymentStatusFullyRefunded
	}
	if err := repo.Update(ctx, order.ID, map[string]any{"payment_status": next}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	order.PaymentStatus = next

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundIssued,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(&in.Actor),
		Data: payloads.RefundIssuedEvent{
			OrderID:       order.ID,
			RefundID:      refund.ID,
			TransactionID: charge.ID,
			AmountCents:   refund.AmountCents,
			PaymentStatus: next,
			Reason:        refund.Reason,
		},
	}); err != nil {
		return nil, err
	}

	s.metrics.ObserveRefund(string(charge.Provider), charge.Currency, refund.AmountCents)
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "refund issued")
	return refund, nil
}

func totalCaptured(order *models.Order) int64 {
	var total int64
	for _, txn := range order.Transactions {
		if txn.Type == enums.TransactionTypeCharge && txn.Status == enums.TransactionStatusSuccess {
			total += txn.AmountCents
		}
	}
	return total
}

func totalRefunded(order *models.Order) int64 {
	var total int64
	for _, refund := range order.Refunds {
		if refund.Status == enums.TransactionStatusSuccess {
			total += refund.AmountCents
		}
	}
	return total
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
