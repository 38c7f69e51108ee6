package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// Item is a catalog entry resolved for one cart or order line.
type Item struct {
	ProductID uuid.UUID
	// VariantID is the variant named by the line; DefaultVariantID when none was given.
	VariantID uuid.UUID
	// StockVariantID is the variant whose inventory row backs the line.
	StockVariantID uuid.UUID
	SKU            string
	Name           string
	Size           string
	Color          string
	Image          string
	UnitPriceCents int64
	Currency       string
	AvailableQty   int
	Active         bool
}

func (i Item) Key() contracts.LineKey {
	return contracts.LineKey{ProductID: i.ProductID, VariantID: i.VariantID}
}

// Repository reads products, variants, images and inventory. The catalog is
// read-only apart from stock reservation.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Resolve loads an active, purchasable line. Unknown or inactive products and
// variants that do not belong to the product are NOT_FOUND.
func (r *Repository) Resolve(ctx context.Context, key contracts.LineKey) (*Item, error) {
	item, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return item, nil
}

// Describe loads a line for display, including inactive products.
func (r *Repository) Describe(ctx context.Context, key contracts.LineKey) (*Item, error) {
	return r.load(ctx, key)
}

func (r *Repository) load(ctx context.Context, key contracts.LineKey) (*Item, error) {
	db := r.db.WithContext(ctx)

	var product models.Product
	if err := db.First(&product, "id = ?", key.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	variant, err := r.variantFor(ctx, product.ID, key.VariantID)
	if err != nil {
		return nil, err
	}

	item := &Item{
		ProductID:      product.ID,
		VariantID:      key.VariantID,
		StockVariantID: variant.ID,
		SKU:            variant.SKU,
		Name:           product.Name,
		Size:           variant.Size,
		Color:          variant.Color,
		UnitPriceCents: product.PriceCents,
		Currency:       product.Currency,
		Active:         product.IsActive,
	}
	if variant.PriceCents != nil {
		item.UnitPriceCents = *variant.PriceCents
	}

	var image models.ProductImage
	err = db.Where("product_id = ?", product.ID).
		Order("is_primary DESC").
		Order("position ASC").
		First(&image).Error
	switch {
	case err == nil:
		item.Image = image.URL
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product image")
	}

	var inventory models.InventoryItem
	err = db.First(&inventory, "variant_id = ?", variant.ID).Error
	switch {
	case err == nil:
		item.AvailableQty = inventory.AvailableQty
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}

	return item, nil
}

// variantFor picks the variant backing a line. A line without a variant is
// only valid for a product that has exactly one.
func (r *Repository) variantFor(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	db := r.db.WithContext(ctx)
	if variantID != contracts.DefaultVariantID {
		var variant models.ProductVariant
		err := db.First(&variant, "id = ? AND product_id = ?", variantID, productID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		return &variant, nil
	}

	var variants []models.ProductVariant
	if err := db.Where("product_id = ?", productID).Limit(2).Find(&variants).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}
	if len(variants) != 1 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
			WithDetails(map[string]any{"productId": productID, "reason": "variant required"})
	}
	return &variants[0], nil
}

// Reserve moves qty units from available to reserved. A shortage is a CONFLICT.
func (r *Repository) Reserve(ctx context.Context, stockVariantID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty - ?,
			reserved_qty = reserved_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE variant_id = ? AND available_qty >= ?
	`, qty, qty, stockVariantID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "insufficient inventory").
			WithDetails(map[string]any{"variantId": stockVariantID, "requested": qty})
	}
	return nil
}

// Release returns reserved units to available stock. Releasing more than is
// reserved is a no-op.
func (r *Repository) Release(ctx context.Context, stockVariantID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty + ?,
			reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE variant_id = ? AND reserved_qty >= ?
	`, qty, qty, stockVariantID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	return nil
}
