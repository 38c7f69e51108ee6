package orderflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/internal/cartcache"
	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// CancelRefundReason is attached to the refund issued when a captured order
// is cancelled.
const CancelRefundReason = "Order cancelled by user"

// OrderAPI is the server order and payment surface the orchestrator drives.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req contracts.CreateOrderRequest, idempotencyKey string) (*contracts.Order, error)
	ListOrders(ctx context.Context) (*contracts.OrderList, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*contracts.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, idempotencyKey string) (*contracts.Order, error)
	RequestReturn(ctx context.Context, orderID uuid.UUID, req contracts.ReturnRequestInput, idempotencyKey string) (*contracts.ReturnRequest, error)
	ListReturns(ctx context.Context) (*contracts.ReturnList, error)
	CreatePaymentIntent(ctx context.Context, req contracts.PaymentIntentRequest, idempotencyKey string) (*contracts.PaymentIntentResponse, error)
	VerifyPayment(ctx context.Context, orderID uuid.UUID) (*contracts.Order, error)
	Refund(ctx context.Context, req contracts.RefundRequest, idempotencyKey string) (*contracts.RefundResponse, error)
}

// Cart is the slice of the cart cache checkout needs.
type Cart interface {
	Snapshot() cartcache.State
	Sync(ctx context.Context) error
}

type Options struct {
	API    OrderAPI
	Cart   Cart
	Logger *logger.Logger
}

// CheckoutForm is what the shopper fills in at checkout.
type CheckoutForm struct {
	ShippingAddress contracts.Address
	Contact         contracts.Contact
	PaymentMethod   enums.PaymentMethod
	Notes           string
}

// RefundAfterCancelError reports a cancellation that committed while the
// follow-up refund failed. The cancellation stands.
type RefundAfterCancelError struct {
	Order *contracts.Order
	Err   error
}

func (e *RefundAfterCancelError) Error() string {
	return fmt.Sprintf("order %s cancelled but refund failed: %v", e.Order.ID, e.Err)
}

func (e *RefundAfterCancelError) Unwrap() error {
	return e.Err
}

// State is a point-in-time copy of what the orchestrator last fetched.
type State struct {
	Orders  []contracts.Order
	Returns []contracts.ReturnRequest
	Loading bool
	Err     error
}

// Orchestrator drives orders through creation, payment, cancellation and
// returns. It is safe for concurrent use.
type Orchestrator struct {
	api  OrderAPI
	cart Cart
	logg *logger.Logger

	mu       sync.Mutex
	orders   []contracts.Order
	returns  []contracts.ReturnRequest
	inflight int
	err      error
}

func New(opts Options) (*Orchestrator, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("order api required")
	}
	if opts.Cart == nil {
		return nil, fmt.Errorf("cart required")
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	return &Orchestrator{api: opts.API, cart: opts.Cart, logg: logg}, nil
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Orders:  append([]contracts.Order(nil), o.orders...),
		Returns: append([]contracts.ReturnRequest(nil), o.returns...),
		Loading: o.inflight > 0,
		Err:     o.err,
	}
}

func (o *Orchestrator) Orders() []contracts.Order {
	return o.State().Orders
}

func (o *Orchestrator) Returns() []contracts.ReturnRequest {
	return o.State().Returns
}

// Reset forgets everything fetched for the previous session.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders = nil
	o.returns = nil
	o.err = nil
}

// Refresh re-fetches the order and return lists.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.begin()
	defer o.end()
	return o.refresh(ctx)
}

func (o *Orchestrator) begin() {
	o.mu.Lock()
	o.inflight++
	o.mu.Unlock()
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.inflight--
	o.mu.Unlock()
}

func (o *Orchestrator) refresh(ctx context.Context) error {
	orders, ordersErr := o.api.ListOrders(ctx)
	returns, returnsErr := o.api.ListReturns(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if ordersErr == nil {
		o.orders = orders.Orders
	}
	if returnsErr == nil {
		o.returns = returns.Returns
	}
	err := multierr.Combine(ordersErr, returnsErr)
	o.err = err
	return err
}

// settle re-fetches after a mutation. The operation error wins over a refresh
// failure, which is only logged and recorded.
func (o *Orchestrator) settle(ctx context.Context, opErr error) {
	if err := o.refresh(ctx); err != nil {
		o.logg.Warn(o.logg.WithField(ctx, "error", err.Error()), "order refresh failed")
	}
	if opErr != nil {
		o.mu.Lock()
		o.err = opErr
		o.mu.Unlock()
	}
}

func (o *Orchestrator) known(orderID uuid.UUID) (contracts.Order, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, order := range o.orders {
		if order.ID == orderID {
			return order, true
		}
	}
	return contracts.Order{}, false
}

// CreateOrder posts the current cart as an order, then resyncs the cart the
// server trimmed.
func (o *Orchestrator) CreateOrder(ctx context.Context, form CheckoutForm) (*contracts.Order, error) {
	state := o.cart.Snapshot()
	if len(state.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	req := contracts.CreateOrderRequest{
		ShippingAddress: form.ShippingAddress,
		Contact:         form.Contact,
		PaymentMethod:   form.PaymentMethod,
		Notes:           form.Notes,
		Items:           make([]contracts.OrderLineInput, 0, len(state.Items)),
	}
	for _, line := range state.Items {
		req.Items = append(req.Items, contracts.OrderLineInput{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}
	if err := contracts.Validate(req); err != nil {
		return nil, err
	}

	o.begin()
	defer o.end()
	order, err := o.api.CreateOrder(ctx, req, "order-"+uuid.NewString())
	if err != nil {
		o.settle(ctx, err)
		return nil, err
	}
	logCtx := o.logg.WithOrderID(ctx, order.ID.String())
	if err := o.cart.Sync(ctx); err != nil {
		o.logg.Warn(o.logg.WithField(logCtx, "error", err.Error()), "cart resync after order failed")
	}
	o.settle(ctx, nil)
	o.logg.Info(logCtx, "order created")
	return order, nil
}

// CreatePaymentIntent returns the provider redirect URL for a pending order.
func (o *Orchestrator) CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, amountCents int64, metadata map[string]string) (string, error) {
	if order, ok := o.known(orderID); ok && order.PaymentStatus != enums.PaymentStatusPending {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "payment already "+string(order.PaymentStatus)).
			WithDetails(map[string]any{"paymentStatus": order.PaymentStatus})
	}
	o.begin()
	defer o.end()
	resp, err := o.api.CreatePaymentIntent(ctx, contracts.PaymentIntentRequest{
		OrderID:     orderID,
		AmountCents: amountCents,
		Metadata:    metadata,
	}, "intent-"+uuid.NewString())
	o.settle(ctx, err)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// VerifyOrderPayment asks the server to confirm the payment and returns the
// refreshed order.
func (o *Orchestrator) VerifyOrderPayment(ctx context.Context, orderID uuid.UUID) (*contracts.Order, error) {
	o.begin()
	defer o.end()
	order, err := o.api.VerifyPayment(ctx, orderID)
	o.settle(ctx, err)
	return order, err
}

// CancelOrder cancels first and refunds second. A captured order gets exactly
// one refund for what remains on its charge; a refund failure comes back as
// *RefundAfterCancelError.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID uuid.UUID) (*contracts.Order, error) {
	o.begin()
	defer o.end()
	logCtx := o.logg.WithOrderID(ctx, orderID.String())

	order, err := o.api.CancelOrder(ctx, orderID, "cancel-"+orderID.String())
	if err != nil {
		o.settle(ctx, err)
		return nil, err
	}

	var opErr error
	if order.PaymentStatus == enums.PaymentStatusCaptured {
		if err := o.refundCancelled(ctx, order); err != nil {
			opErr = &RefundAfterCancelError{Order: order, Err: err}
			o.logg.Error(logCtx, "refund after cancel failed", err)
		}
	}
	o.settle(ctx, opErr)

	if fresh, ok := o.known(orderID); ok {
		order = &fresh
	}
	return order, opErr
}

func (o *Orchestrator) refundCancelled(ctx context.Context, order *contracts.Order) error {
	charge, ok := order.ChargeTransaction()
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "captured order has no successful charge")
	}
	remaining := charge.AmountCents - order.RefundedCents(charge.ID)
	if remaining <= 0 {
		return nil
	}
	_, err := o.api.Refund(ctx, contracts.RefundRequest{
		TransactionID: charge.ID,
		AmountCents:   remaining,
		Reason:        CancelRefundReason,
	}, "cancel-refund-"+order.ID.String())
	return err
}

// RequestReturn opens a return for one delivered item.
func (o *Orchestrator) RequestReturn(ctx context.Context, orderID, itemID uuid.UUID, reason string) (*contracts.ReturnRequest, error) {
	if order, ok := o.known(orderID); ok && order.Status != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only delivered orders can be returned").
			WithDetails(map[string]any{"status": order.Status})
	}
	o.begin()
	defer o.end()
	// Fresh key per attempt so an earlier refusal is never replayed.
	ret, err := o.api.RequestReturn(ctx, orderID, contracts.ReturnRequestInput{ItemID: itemID, Reason: reason},
		"return-"+uuid.NewString())
	o.settle(ctx, err)
	return ret, err
}

// ProcessRefund refunds part or all of a charge transaction.
func (o *Orchestrator) ProcessRefund(ctx context.Context, transactionID uuid.UUID, amountCents int64, reason string) (*contracts.RefundResponse, error) {
	o.begin()
	defer o.end()
	resp, err := o.api.Refund(ctx, contracts.RefundRequest{
		TransactionID: transactionID,
		AmountCents:   amountCents,
		Reason:        reason,
	}, "refund-"+uuid.NewString())
	o.settle(ctx, err)
	return resp, err
}
