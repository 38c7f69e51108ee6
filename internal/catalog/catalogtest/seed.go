// Package catalogtest seeds catalog rows for repository and handler tests.
package catalogtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

// Product describes one seeded product with a single variant.
type Product struct {
	Name         string
	PriceCents   int64
	VariantPrice *int64
	Size         string
	Color        string
	Available    int
	Inactive     bool
}

// Seeded holds the ids created for a Product.
type Seeded struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
	Image     string
}

// Seed inserts the product, its variant, a primary image and an inventory row.
func Seed(t testing.TB, db *gorm.DB, p Product) Seeded {
	t.Helper()

	productID := uuid.New()
	product := models.Product{
		ID:         productID,
		Name:       p.Name,
		Slug:       "p-" + productID.String(),
		PriceCents: p.PriceCents,
		Currency:   "usd",
		IsActive:   true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if p.Inactive {
		if err := db.Model(&product).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate product: %v", err)
		}
	}

	variant := models.ProductVariant{
		ProductID:  productID,
		SKU:        "SKU-" + productID.String()[:8],
		Size:       p.Size,
		Color:      p.Color,
		PriceCents: p.VariantPrice,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	image := models.ProductImage{
		ProductID: productID,
		URL:       "https://cdn.example.com/" + productID.String() + ".jpg",
		IsPrimary: true,
	}
	if err := db.Create(&image).Error; err != nil {
		t.Fatalf("seed image: %v", err)
	}

	if err := db.Create(&models.InventoryItem{VariantID: variant.ID, AvailableQty: p.Available}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	return Seeded{ProductID: productID, VariantID: variant.ID, Image: image.URL}
}

// Inventory reads the stock row for a variant.
func Inventory(t testing.TB, db *gorm.DB, variantID uuid.UUID) models.InventoryItem {
	t.Helper()
	var inv models.InventoryItem
	if err := db.First(&inv, "variant_id = ?", variantID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	return inv
}
