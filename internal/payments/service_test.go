package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/catalog/catalogtest"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/db/dbtest"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/outbox"
)

type fakeProvider struct {
	name      enums.PaymentProvider
	outcome   CheckoutOutcome
	refundErr error
	checkouts []CheckoutInput
	refunds   []RefundRequest
}

func (p *fakeProvider) Name() enums.PaymentProvider { return p.name }

func (p *fakeProvider) CreateCheckout(_ context.Context, in CheckoutInput) (*Checkout, error) {
	p.checkouts = append(p.checkouts, in)
	return &Checkout{SessionID: "cs_test_" + in.OrderID[:8], URL: "https://checkout.stripe.com/c/pay/cs_test"}, nil
}

func (p *fakeProvider) LookupCheckout(context.Context, string) (*CheckoutOutcome, error) {
	outcome := p.outcome
	return &outcome, nil
}

func (p *fakeProvider) Refund(_ context.Context, in RefundRequest) (string, error) {
	if p.refundErr != nil {
		return "", p.refundErr
	}
	p.refunds = append(p.refunds, in)
	return "re_" + uuid.NewString()[:8], nil
}

type fixture struct {
	db       *gorm.DB
	orders   orders.Service
	payments Service
	stripe   *fakeProvider
	outbox   *outbox.Repository
	tote     catalogtest.Seeded
	customer orders.Actor
	admin    orders.Actor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	catalogRepo := catalog.NewRepository(conn)
	carts, err := cart.NewService(cart.NewRepository(conn), catalogRepo, client, nil)
	require.NoError(t, err)

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, nil)
	orderMetrics := metrics.NewOrderMetrics(prometheus.NewRegistry())
	stripeFake := &fakeProvider{name: enums.PaymentProviderStripe}

	payments, err := NewService(ServiceParams{
		Repo:      orders.NewRepository(conn),
		Tx:        client,
		Outbox:    emitter,
		Providers: []Provider{stripeFake, NewManualProvider()},
		Metrics:   orderMetrics,
	})
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(conn),
		Catalog:  catalogRepo,
		Cart:     carts,
		Tx:       client,
		Outbox:   emitter,
		Refunder: payments,
		Pricing:  orders.Pricing{Currency: "usd"},
		Metrics:  orderMetrics,
	})
	require.NoError(t, err)

	return fixture{
		db:       conn,
		orders:   orderSvc,
		payments: payments,
		stripe:   stripeFake,
		outbox:   outboxRepo,
		tote:     catalogtest.Seed(t, conn, catalogtest.Product{Name: "Canvas Tote", PriceCents: 249900, Available: 10}),
		customer: orders.Actor{UserID: uuid.New(), Role: enums.RoleCustomer},
		admin:    orders.Actor{UserID: uuid.New(), Role: enums.RoleAdmin},
	}
}

func (f fixture) placeOrder(t *testing.T, method enums.PaymentMethod, qty int) *contracts.Order {
	t.Helper()
	order, err := f.orders.Create(context.Background(), f.customer, contracts.CreateOrderRequest{
		ShippingAddress: contracts.Address{FullName: "Ada Lovelace", Line1: "1 Main St", City: "Austin", PostalCode: "78701", Country: "US"},
		Contact:         contracts.Contact{Email: "ada@example.com"},
		PaymentMethod:   method,
		Items:           []contracts.OrderLineInput{{ProductID: f.tote.ProductID, VariantID: f.tote.VariantID, Quantity: qty}},
	})
	require.NoError(t, err)
	return order
}

// capturedCOD places a cash order and marks it paid the way an admin would.
func (f fixture) capturedCOD(t *testing.T) contracts.Transaction {
	t.Helper()
	order := f.placeOrder(t, enums.PaymentMethodCOD, 1)
	captured := string(enums.PaymentStatusCaptured)
	updated, err := f.orders.AdminUpdate(context.Background(), f.admin, order.ID, contracts.AdminOrderUpdateRequest{PaymentStatus: &captured})
	require.NoError(t, err)
	charge, ok := updated.ChargeTransaction()
	require.True(t, ok)
	return charge
}

// capturedCard places a card order and captures it through checkout verification.
func (f fixture) capturedCard(t *testing.T) (*contracts.Order, contracts.Transaction) {
	t.Helper()
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodCard, 1)
	_, err := f.payments.CreateIntent(ctx, f.customer, contracts.PaymentIntentRequest{OrderID: order.ID, AmountCents: order.TotalCents})
	require.NoError(t, err)
	f.stripe.outcome = CheckoutOutcome{State: CheckoutPaid, PaymentRef: "pi_123"}
	verified, err := f.payments.VerifyPayment(ctx, f.customer, order.ID)
	require.NoError(t, err)
	charge, ok := verified.ChargeTransaction()
	require.True(t, ok)
	return verified, charge
}

func TestRefundAfterCancelIsFullAndTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	charge := f.capturedCOD(t)
	_, err := f.orders.Cancel(ctx, f.customer, charge.OrderID)
	require.NoError(t, err)

	resp, err := f.payments.Refund(ctx, f.customer, contracts.RefundRequest{TransactionID: charge.ID, AmountCents: 249900, Reason: "order cancelled"})
	require.NoError(t, err)
	require.NoError(t, contracts.Validate(*resp))

	assert.Equal(t, int64(249900), resp.Refund.AmountCents)
	assert.Equal(t, charge.ID, resp.Refund.TransactionID)
	assert.Equal(t, enums.PaymentStatusFullyRefunded, resp.Order.PaymentStatus)
	assert.Equal(t, enums.OrderStatusCancelled, resp.Order.Status)

	var refundTxns int
	for _, txn := range resp.Order.Transactions {
		if txn.Type == enums.TransactionTypeRefund {
			refundTxns++
			assert.Equal(t, int64(249900), txn.AmountCents)
			assert.Equal(t, enums.TransactionStatusSuccess, txn.Status)
			assert.Equal(t, resp.Refund.RefundTransactionID, txn.ID)
		}
	}
	assert.Equal(t, 1, refundTxns)

	_, err = f.payments.Refund(ctx, f.customer, contracts.RefundRequest{TransactionID: charge.ID, AmountCents: 1, Reason: "again"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "fully refunded: %v", err)

	events, err := f.outbox.ListForAggregate(enums.AggregateOrder, charge.OrderID)
	require.NoError(t, err)
	var issued int
	for _, event := range events {
		if event.EventType == enums.EventRefundIssued {
			issued++
		}
	}
	assert.Equal(t, 1, issued)
}

func TestRefundCeiling(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	charge := f.capturedCOD(t)

	first, err := f.payments.Refund(ctx, f.admin, contracts.RefundRequest{TransactionID: charge.ID, AmountCents: 1000, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, first.Order.PaymentStatus)

	_, err = f.payments.Refund(ctx, f.admin, contracts.RefundRequest{TransactionID: charge.ID, AmountCents: 249000, Reason: "too much"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Equal(t, int64(248900), typed.Details().(map[string]any)["refundableCents"])

	last, err := f.payments.Refund(ctx, f.admin, contracts.RefundRequest{TransactionID: charge.ID, AmountCents: 248900, Reason: "rest"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFullyRefunded, last.Order.PaymentStatus)

	var charged, refunded int64
	for _, txn := range last.Order.Transactions {
		if txn.Status != enums.TransactionStatusSuccess {
			continue
		}
		switch txn.Type {
		case enums.TransactionTypeCharge:
			charged += txn.AmountCents
		case enums.TransactionTypeRefund:
			refunded += txn.AmountCents
		}
	}
	assert.Equal(t, charged, refunded)
	assert.Equal(t, int64(249900), last.Order.RefundedCents(charge.ID))
}

func TestRefundRejectsWrongTargets(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	charge := f.capturedCOD(t)

	stranger := orders.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
	_, err := f.payments.Refund(ctx, stranger, contracts.RefundRequest{TransactionID: charge.ID, AmountCents: 100, Reason: "mine"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "stranger: %v", err)

	_, err = f.payments.Refund(ctx, f.customer, contracts.RefundRequest{TransactionID: uuid.New(), AmountCents: 100, Reason: "ghost"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "unknown transaction: %v", err)

	pending := f.placeOrder(t, enums.PaymentMethodCOD, 1)
	_, err = f.payments.Refund(ctx, f.customer, contracts.RefundRequest{TransactionID: pending.Transactions[0].ID, AmountCents: 100, Reason: "pending"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "pending charge: %v", err)

	_, err = f.payments.Refund(ctx, f.customer, contracts.RefundRequest{TransactionID: charge.ID, AmountCents: 0, Reason: "zero"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "zero amount: %v", err)
}

func TestRefundProviderFailureRecordsNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	order, charge := f.capturedCard(t)
	assert.Equal(t, "pi_123", charge.ProviderRef)

	f.stripe.refundErr = errors.New("stripe unavailable")
	_, err := f.payments.Refund(ctx, f.customer, contracts.RefundRequest{TransactionID: charge.ID, AmountCents: 249900, Reason: "cancelled"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "provider failure: %v", err)

	after, err := f.orders.Get(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCaptured, after.PaymentStatus)
	assert.Empty(t, after.Refunds)
	assert.Len(t, after.Transactions, len(order.Transactions))

	f.stripe.refundErr = nil
	resp, err := f.payments.Refund(ctx, f.customer, contracts.RefundRequest{TransactionID: charge.ID, AmountCents: 249900, Reason: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFullyRefunded, resp.Order.PaymentStatus)
	require.Len(t, f.stripe.refunds, 1)
	assert.Equal(t, "pi_123", f.stripe.refunds[0].PaymentRef)
}

func TestCreateIntentRules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	cod := f.placeOrder(t, enums.PaymentMethodCOD, 1)
	_, err := f.payments.CreateIntent(ctx, f.customer, contracts.PaymentIntentRequest{OrderID: cod.ID, AmountCents: cod.TotalCents})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "cod intent: %v", err)

	card := f.placeOrder(t, enums.PaymentMethodCard, 2)
	_, err = f.payments.CreateIntent(ctx, f.customer, contracts.PaymentIntentRequest{OrderID: card.ID, AmountCents: card.TotalCents - 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "amount mismatch: %v", err)

	resp, err := f.payments.CreateIntent(ctx, f.customer, contracts.PaymentIntentRequest{
		OrderID:     card.ID,
		AmountCents: card.TotalCents,
		Metadata:    map[string]string{"source": "test"},
	})
	require.NoError(t, err)
	require.NoError(t, contracts.Validate(*resp))
	require.Len(t, f.stripe.checkouts, 1)
	assert.Equal(t, int64(499800), f.stripe.checkouts[0].AmountCents)
	assert.Equal(t, "test", f.stripe.checkouts[0].Metadata["source"])

	reloaded, err := f.orders.Get(ctx, f.customer, card.ID)
	require.NoError(t, err)
	var session *contracts.Transaction
	for i := range reloaded.Transactions {
		if reloaded.Transactions[i].ProviderRef != "" {
			session = &reloaded.Transactions[i]
		}
	}
	require.NotNil(t, session)
	assert.Equal(t, enums.TransactionTypeAuthorize, session.Type)
	assert.Equal(t, enums.TransactionStatusPending, session.Status)
	assert.Equal(t, "cs_test_"+card.ID.String()[:8], session.ProviderRef)
}

func TestVerifyPaymentOutcomes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	order := f.placeOrder(t, enums.PaymentMethodCard, 1)
	_, err := f.payments.CreateIntent(ctx, f.customer, contracts.PaymentIntentRequest{OrderID: order.ID, AmountCents: order.TotalCents})
	require.NoError(t, err)

	f.stripe.outcome = CheckoutOutcome{State: CheckoutOpen}
	open, err := f.payments.VerifyPayment(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, open.PaymentStatus)

	f.stripe.outcome = CheckoutOutcome{State: CheckoutPaid, PaymentRef: "pi_456"}
	paid, err := f.payments.VerifyPayment(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCaptured, paid.PaymentStatus)
	charge, ok := paid.ChargeTransaction()
	require.True(t, ok)
	assert.Equal(t, order.TotalCents, charge.AmountCents)

	again, err := f.payments.VerifyPayment(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Len(t, again.Transactions, len(paid.Transactions))
}

func TestApplyCheckoutOutcomeFromWebhook(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	order := f.placeOrder(t, enums.PaymentMethodCard, 1)
	_, err := f.payments.CreateIntent(ctx, f.customer, contracts.PaymentIntentRequest{OrderID: order.ID, AmountCents: order.TotalCents})
	require.NoError(t, err)
	session := "cs_test_" + order.ID.String()[:8]

	require.NoError(t, f.payments.ApplyCheckoutOutcome(ctx, session, CheckoutOutcome{State: CheckoutFailed, Reason: "checkout session expired"}))
	failed, err := f.orders.Get(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, failed.PaymentStatus)
	_, ok := failed.ChargeTransaction()
	assert.False(t, ok)

	// a late duplicate is ignored by the payment transition table
	require.NoError(t, f.payments.ApplyCheckoutOutcome(ctx, session, CheckoutOutcome{State: CheckoutFailed}))

	err = f.payments.ApplyCheckoutOutcome(ctx, "cs_unknown", CheckoutOutcome{State: CheckoutPaid})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "unknown session: %v", err)
}

func TestReturnApprovalRefundsThroughProvider(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	order, _ := f.capturedCard(t)
	for _, status := range []enums.OrderStatus{enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusDelivered} {
		value := string(status)
		_, err := f.orders.AdminUpdate(ctx, f.admin, order.ID, contracts.AdminOrderUpdateRequest{Status: &value})
		require.NoError(t, err)
	}
	ret, err := f.orders.RequestReturn(ctx, f.customer, order.ID, contracts.ReturnRequestInput{ItemID: order.Items[0].ID, Reason: "too small"})
	require.NoError(t, err)

	resolved, err := f.orders.ResolveReturn(ctx, f.admin, ret.ID, contracts.ResolveReturnRequest{Decision: enums.ReturnDecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusRefunded, resolved.Return.Status)
	assert.Equal(t, enums.OrderStatusReturned, resolved.Order.Status)
	assert.Equal(t, enums.PaymentStatusFullyRefunded, resolved.Order.PaymentStatus)
	require.Len(t, f.stripe.refunds, 1)
	assert.Equal(t, int64(249900), f.stripe.refunds[0].AmountCents)
}

func TestCaptureAfterCancellationIsRefunded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	order := f.placeOrder(t, enums.PaymentMethodCard, 1)
	_, err := f.payments.CreateIntent(ctx, f.customer, contracts.PaymentIntentRequest{OrderID: order.ID, AmountCents: order.TotalCents})
	require.NoError(t, err)
	cancelled, err := f.orders.Cancel(ctx, f.customer, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPending, cancelled.PaymentStatus)

	// the checkout session was still open and the shopper paid anyway
	f.stripe.outcome = CheckoutOutcome{State: CheckoutPaid, PaymentRef: "pi_late"}
	verified, err := f.payments.VerifyPayment(ctx, f.customer, order.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusCancelled, verified.Status)
	assert.Equal(t, enums.PaymentStatusFullyRefunded, verified.PaymentStatus)
	charge, ok := verified.ChargeTransaction()
	require.True(t, ok)
	assert.Equal(t, int64(249900), charge.AmountCents)
	require.Len(t, verified.Refunds, 1)
	assert.Equal(t, charge.AmountCents, verified.Refunds[0].AmountCents)
	assert.Equal(t, orders.RefundReasonCancelled, verified.Refunds[0].Reason)
	require.Len(t, f.stripe.refunds, 1)
	assert.Equal(t, "pi_late", f.stripe.refunds[0].PaymentRef)

	// the webhook for the same session arrives afterwards and changes nothing
	session := "cs_test_" + order.ID.String()[:8]
	require.NoError(t, f.payments.ApplyCheckoutOutcome(ctx, session, CheckoutOutcome{State: CheckoutPaid, PaymentRef: "pi_late"}))
	assert.Len(t, f.stripe.refunds, 1)
}

func TestWebhookCaptureAfterCancellationRollsBackWhenRefundFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	order := f.placeOrder(t, enums.PaymentMethodCard, 1)
	_, err := f.payments.CreateIntent(ctx, f.customer, contracts.PaymentIntentRequest{OrderID: order.ID, AmountCents: order.TotalCents})
	require.NoError(t, err)
	_, err = f.orders.Cancel(ctx, f.customer, order.ID)
	require.NoError(t, err)
	session := "cs_test_" + order.ID.String()[:8]

	f.stripe.refundErr = errors.New("stripe unavailable")
	err = f.payments.ApplyCheckoutOutcome(ctx, session, CheckoutOutcome{State: CheckoutPaid, PaymentRef: "pi_late"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "refund failure: %v", err)

	unchanged, err := f.orders.Get(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, unchanged.PaymentStatus)
	_, ok := unchanged.ChargeTransaction()
	assert.False(t, ok)

	// the provider retries the webhook once refunds work again
	f.stripe.refundErr = nil
	require.NoError(t, f.payments.ApplyCheckoutOutcome(ctx, session, CheckoutOutcome{State: CheckoutPaid, PaymentRef: "pi_late"}))
	refunded, err := f.orders.Get(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFullyRefunded, refunded.PaymentStatus)
	assert.Len(t, f.stripe.refunds, 1)
}
