package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/api/middleware"
	cartsvc "github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

type stubCartService struct {
	cart       *contracts.CartResponse
	err        error
	userID     uuid.UUID
	lastUpsert contracts.CartUpsertRequest
	lastRemove contracts.CartRemoveRequest
	cleared    bool
}

func (s *stubCartService) Get(_ context.Context, userID uuid.UUID) (*contracts.CartResponse, error) {
	s.userID = userID
	return s.cart, s.err
}

func (s *stubCartService) Upsert(_ context.Context, userID uuid.UUID, req contracts.CartUpsertRequest) (*contracts.CartMutationResponse, error) {
	s.userID = userID
	s.lastUpsert = req
	if s.err != nil {
		return nil, s.err
	}
	return &contracts.CartMutationResponse{Message: "Cart updated", Version: 4}, nil
}

func (s *stubCartService) Remove(_ context.Context, userID uuid.UUID, req contracts.CartRemoveRequest) (*contracts.CartMutationResponse, error) {
	s.userID = userID
	s.lastRemove = req
	return &contracts.CartMutationResponse{Message: "Item removed", Version: 5}, s.err
}

func (s *stubCartService) Clear(_ context.Context, userID uuid.UUID) (*contracts.CartMutationResponse, error) {
	s.userID = userID
	s.cleared = true
	return &contracts.CartMutationResponse{Message: "Cart cleared", Version: 6}, s.err
}

func (s *stubCartService) ConsumeLines(context.Context, *gorm.DB, uuid.UUID, []cartsvc.OrderedLine) error {
	return nil
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), userID.String(), enums.RoleCustomer))
}

func TestCartFetchSetsVersionETag(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	svc := &stubCartService{cart: &contracts.CartResponse{
		Items: []contracts.CartLine{{
			ID: "l1", ProductID: uuid.New(), Quantity: 2, UnitPriceCents: 1299, Name: "Mug", AvailableQty: 9,
		}},
		Version: 12,
	}}
	handler := CartFetch(svc, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authed(httptest.NewRequest(http.MethodGet, "/api/user/cart", nil), userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("ETag"); got != `"12"` {
		t.Fatalf("unexpected etag %q", got)
	}
	var body contracts.CartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Version != 12 || len(body.Items) != 1 || body.Items[0].Name != "Mug" {
		t.Fatalf("unexpected body %+v", body)
	}
	if svc.userID != userID {
		t.Fatalf("service called for %s", svc.userID)
	}
}

func TestCartHandlersRequireIdentity(t *testing.T) {
	t.Parallel()
	svc := &stubCartService{}
	for name, handler := range map[string]http.HandlerFunc{
		"fetch":  CartFetch(svc, nil),
		"upsert": CartUpsert(svc, nil),
		"remove": CartRemove(svc, nil),
		"clear":  CartClear(svc, nil),
	} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/user/cart", strings.NewReader(`{}`)))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", name, resp.Code)
		}
	}
}

func TestCartUpsertPassesDelta(t *testing.T) {
	t.Parallel()
	svc := &stubCartService{}
	productID := uuid.New()
	body := `{"productId":"` + productID.String() + `","quantity":-1,"mode":"increment"}`

	resp := httptest.NewRecorder()
	CartUpsert(svc, nil).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPost, "/api/user/cart", strings.NewReader(body)), uuid.New()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastUpsert.ProductID != productID || svc.lastUpsert.Quantity != -1 || svc.lastUpsert.Mode != enums.CartModeIncrement {
		t.Fatalf("unexpected upsert input %+v", svc.lastUpsert)
	}
	var res contracts.CartMutationResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil || res.Version != 4 {
		t.Fatalf("unexpected response %+v (%v)", res, err)
	}
}

func TestCartUpsertValidation(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"missing product": `{"quantity":1}`,
		"unknown field":   `{"productId":"` + uuid.NewString() + `","quantity":1,"price":1}`,
		"bad mode":        `{"productId":"` + uuid.NewString() + `","quantity":1,"mode":"replace"}`,
		"malformed":       `{"productId":`,
	}
	for name, body := range cases {
		svc := &stubCartService{}
		resp := httptest.NewRecorder()
		CartUpsert(svc, nil).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPost, "/api/user/cart", strings.NewReader(body)), uuid.New()))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, resp.Code)
		}
		if svc.lastUpsert.ProductID != uuid.Nil {
			t.Fatalf("%s: service should not be called", name)
		}
	}
}

func TestCartUpsertSurfacesStockConflict(t *testing.T) {
	t.Parallel()
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "only 2 left in stock").
		WithDetails(map[string]any{"availableQty": 2})}
	body := `{"productId":"` + uuid.NewString() + `","quantity":5,"mode":"set"}`

	resp := httptest.NewRecorder()
	CartUpsert(svc, nil).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPost, "/api/user/cart", strings.NewReader(body)), uuid.New()))

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	var envelope contracts.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Message != "only 2 left in stock" || envelope.Error.Details == nil {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestCartRemoveAndClear(t *testing.T) {
	t.Parallel()
	svc := &stubCartService{}
	userID := uuid.New()
	productID, variantID := uuid.New(), uuid.New()
	body := `{"productId":"` + productID.String() + `","variantId":"` + variantID.String() + `"}`

	resp := httptest.NewRecorder()
	CartRemove(svc, nil).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodDelete, "/api/user/cart", strings.NewReader(body)), userID))
	if resp.Code != http.StatusOK {
		t.Fatalf("remove: expected 200 got %d", resp.Code)
	}
	if svc.lastRemove.ProductID != productID || svc.lastRemove.VariantID != variantID {
		t.Fatalf("unexpected remove input %+v", svc.lastRemove)
	}

	resp = httptest.NewRecorder()
	CartClear(svc, nil).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPost, "/api/user/cart/clear", nil), userID))
	if resp.Code != http.StatusOK || !svc.cleared {
		t.Fatalf("clear: expected 200 and clear call, got %d", resp.Code)
	}
}
