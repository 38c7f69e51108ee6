package apiclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/contracts"
)

const (
	cartPath    = "/api/user/cart"
	ordersPath  = "/api/user/orders"
	paymentPath = "/api/payment"
	adminPath   = "/api/admin"
)

func (c *Client) GetCart(ctx context.Context) (*contracts.CartResponse, error) {
	var out contracts.CartResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: cartPath}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpsertCartItem(ctx context.Context, req contracts.CartUpsertRequest) (*contracts.CartMutationResponse, error) {
	return c.cartWrite(ctx, http.MethodPost, cartPath, req)
}

func (c *Client) RemoveCartItem(ctx context.Context, req contracts.CartRemoveRequest) (*contracts.CartMutationResponse, error) {
	return c.cartWrite(ctx, http.MethodDelete, cartPath, req)
}

func (c *Client) ClearCart(ctx context.Context) (*contracts.CartMutationResponse, error) {
	return c.cartWrite(ctx, http.MethodPost, cartPath+"/clear", nil)
}

func (c *Client) cartWrite(ctx context.Context, method, path string, body any) (*contracts.CartMutationResponse, error) {
	var out contracts.CartMutationResponse
	if err := c.do(ctx, request{method: method, path: path, body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateOrder(ctx context.Context, req contracts.CreateOrderRequest, idempotencyKey string) (*contracts.Order, error) {
	var out contracts.Order
	if err := c.do(ctx, request{method: http.MethodPost, path: ordersPath, body: req, idempotencyKey: idempotencyKey}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListOrders(ctx context.Context) (*contracts.OrderList, error) {
	var out contracts.OrderList
	if err := c.do(ctx, request{method: http.MethodGet, path: ordersPath}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder has no dedicated user endpoint; it picks the order out of the list.
func (c *Client) GetOrder(ctx context.Context, orderID uuid.UUID) (*contracts.Order, error) {
	list, err := c.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list.Orders {
		if list.Orders[i].ID == orderID {
			return &list.Orders[i], nil
		}
	}
	return nil, orderNotFound(orderID)
}

func (c *Client) CancelOrder(ctx context.Context, orderID uuid.UUID, idempotencyKey string) (*contracts.Order, error) {
	var out contracts.Order
	path := ordersPath + "/" + orderID.String() + "/cancel"
	if err := c.do(ctx, request{method: http.MethodPatch, path: path, idempotencyKey: idempotencyKey}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RequestReturn(ctx context.Context, orderID uuid.UUID, req contracts.ReturnRequestInput, idempotencyKey string) (*contracts.ReturnRequest, error) {
	var out contracts.ReturnRequest
	path := ordersPath + "/" + orderID.String() + "/return"
	if err := c.do(ctx, request{method: http.MethodPost, path: path, body: req, idempotencyKey: idempotencyKey}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListReturns(ctx context.Context) (*contracts.ReturnList, error) {
	var out contracts.ReturnList
	if err := c.do(ctx, request{method: http.MethodGet, path: ordersPath + "/returns"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyPayment(ctx context.Context, orderID uuid.UUID) (*contracts.Order, error) {
	var out contracts.Order
	path := ordersPath + "/" + orderID.String() + "/verify-payment"
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req contracts.PaymentIntentRequest, idempotencyKey string) (*contracts.PaymentIntentResponse, error) {
	var out contracts.PaymentIntentResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: paymentPath + "/create-intent", body: req, idempotencyKey: idempotencyKey}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refund(ctx context.Context, req contracts.RefundRequest, idempotencyKey string) (*contracts.RefundResponse, error) {
	var out contracts.RefundResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: paymentPath + "/refund", body: req, idempotencyKey: idempotencyKey}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Admin endpoints. The token must carry the admin role.

func (c *Client) AdminGetOrder(ctx context.Context, orderID uuid.UUID) (*contracts.AdminOrder, error) {
	var out contracts.AdminOrder
	if err := c.do(ctx, request{method: http.MethodGet, path: adminPath + "/orders/" + orderID.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdminUpdateOrder(ctx context.Context, orderID uuid.UUID, req contracts.AdminOrderUpdateRequest) (*contracts.AdminOrder, error) {
	var out contracts.AdminOrder
	if err := c.do(ctx, request{method: http.MethodPatch, path: adminPath + "/orders/" + orderID.String(), body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdminResolveReturn(ctx context.Context, returnID uuid.UUID, req contracts.ResolveReturnRequest) (*contracts.ResolveReturnResponse, error) {
	var out contracts.ResolveReturnResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: adminPath + "/returns/" + returnID.String() + "/resolve", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
