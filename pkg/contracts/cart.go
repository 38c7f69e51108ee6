package contracts

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/enums"
)

// DefaultVariantID marks a cart line whose variant was never recorded.
var DefaultVariantID = uuid.Nil

// LineKey identifies a cart line within one user's cart.
type LineKey struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
}

// CartLine is one row of GET /api/user/cart.
type CartLine struct {
	ID             string    `json:"id" validate:"required"`
	ProductID      uuid.UUID `json:"productId" validate:"required"`
	VariantID      uuid.UUID `json:"variantId"`
	Quantity       int       `json:"quantity" validate:"min=1"`
	UnitPriceCents int64     `json:"unitPriceCents" validate:"min=0"`
	Name           string    `json:"name"`
	Size           string    `json:"size,omitempty"`
	Color          string    `json:"color,omitempty"`
	Image          string    `json:"image,omitempty"`
	AvailableQty   int       `json:"availableQty" validate:"min=0"`
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, VariantID: l.VariantID}
}

// CartResponse is the body of GET /api/user/cart. The same version is sent
// as the ETag header.
type CartResponse struct {
	Items   []CartLine `json:"items" validate:"dive"`
	Version int64      `json:"version" validate:"min=0"`
}

// CartUpsertRequest is the body of POST /api/user/cart. With mode increment the
// quantity is a signed delta applied to the stored line.
type CartUpsertRequest struct {
	ProductID uuid.UUID              `json:"productId" validate:"required"`
	VariantID uuid.UUID              `json:"variantId"`
	Quantity  int                    `json:"quantity" validate:"gte=-999,lte=999"`
	Mode      enums.CartMutationMode `json:"mode,omitempty" validate:"omitempty,oneof=increment set"`
}

// CartRemoveRequest is the body of DELETE /api/user/cart.
type CartRemoveRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	VariantID uuid.UUID `json:"variantId"`
}

// CartMutationResponse is returned by every cart write.
type CartMutationResponse struct {
	Message string `json:"message" validate:"required"`
	Version int64  `json:"version" validate:"min=0"`
}
