package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/catalog/catalogtest"
	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

func TestResolveUsesVariantPriceOverride(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	override := int64(7500)
	seeded := catalogtest.Seed(t, db, catalogtest.Product{
		Name: "Linen Overshirt", PriceCents: 6998, VariantPrice: &override, Size: "M", Color: "Sand", Available: 4,
	})
	repo := NewRepository(db)

	item, err := repo.Resolve(context.Background(), contracts.LineKey{ProductID: seeded.ProductID, VariantID: seeded.VariantID})
	require.NoError(t, err)
	assert.Equal(t, int64(7500), item.UnitPriceCents)
	assert.Equal(t, "Linen Overshirt", item.Name)
	assert.Equal(t, "M", item.Size)
	assert.Equal(t, seeded.Image, item.Image)
	assert.Equal(t, 4, item.AvailableQty)
	assert.Equal(t, seeded.VariantID, item.StockVariantID)
}

func TestResolveDefaultVariantNeedsSingleVariant(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	seeded := catalogtest.Seed(t, db, catalogtest.Product{Name: "Canvas Tote", PriceCents: 2499, Available: 2})
	repo := NewRepository(db)

	item, err := repo.Resolve(context.Background(), contracts.LineKey{ProductID: seeded.ProductID, VariantID: contracts.DefaultVariantID})
	require.NoError(t, err)
	assert.Equal(t, contracts.DefaultVariantID, item.VariantID)
	assert.Equal(t, seeded.VariantID, item.StockVariantID)
	assert.Equal(t, int64(2499), item.UnitPriceCents)
}

func TestResolveRejectsUnknownAndInactive(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	active := catalogtest.Seed(t, db, catalogtest.Product{Name: "Active", PriceCents: 100, Available: 1})
	inactive := catalogtest.Seed(t, db, catalogtest.Product{Name: "Retired", PriceCents: 100, Available: 1, Inactive: true})
	repo := NewRepository(db)
	ctx := context.Background()

	cases := map[string]contracts.LineKey{
		"unknown product":  {ProductID: uuid.New(), VariantID: active.VariantID},
		"foreign variant":  {ProductID: active.ProductID, VariantID: inactive.VariantID},
		"inactive product": {ProductID: inactive.ProductID, VariantID: inactive.VariantID},
	}
	for name, key := range cases {
		_, err := repo.Resolve(ctx, key)
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			t.Fatalf("%s: expected NOT_FOUND, got %v", name, err)
		}
	}

	described, err := repo.Describe(ctx, contracts.LineKey{ProductID: inactive.ProductID, VariantID: inactive.VariantID})
	require.NoError(t, err)
	assert.False(t, described.Active)
}

func TestReserveAndRelease(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	seeded := catalogtest.Seed(t, db, catalogtest.Product{Name: "Tote", PriceCents: 2499, Available: 5})
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(db).WithTx(tx)
		if err := repo.Reserve(ctx, seeded.VariantID, 3); err != nil {
			return err
		}
		err := repo.Reserve(ctx, seeded.VariantID, 3)
		if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			t.Fatalf("expected shortage conflict, got %v", err)
		}
		return nil
	})
	require.NoError(t, err)

	inv := catalogtest.Inventory(t, db, seeded.VariantID)
	assert.Equal(t, 2, inv.AvailableQty)
	assert.Equal(t, 3, inv.ReservedQty)

	repo := NewRepository(db)
	require.NoError(t, repo.Release(ctx, seeded.VariantID, 3))
	require.NoError(t, repo.Release(ctx, seeded.VariantID, 10))

	inv = catalogtest.Inventory(t, db, seeded.VariantID)
	assert.Equal(t, 5, inv.AvailableQty)
	assert.Equal(t, 0, inv.ReservedQty)

	err = repo.Reserve(ctx, seeded.VariantID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
