package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/db/models"
)

// Repository exposes persistence operations for the per-user cart.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
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

// FindByUser loads the cart and its lines, oldest line first. Returns
// gorm.ErrRecordNotFound when the user never had a cart.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// LockForUser creates the cart row if needed and locks it for the rest of the
// transaction. Concurrent writers for one user serialize here.
func (r *Repository) LockForUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	db := r.db.WithContext(ctx)
	fresh := models.Cart{UserID: userID}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, err
	}

	var cart models.Cart
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindItem returns the line for key or gorm.ErrRecordNotFound.
func (r *Repository) FindItem(ctx context.Context, cartID uuid.UUID, key contracts.LineKey) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND variant_id = ?", cartID, key.ProductID, key.VariantID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

// DeleteItems removes the lines matching any of keys and reports how many went.
func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID, keys ...contracts.LineKey) (int64, error) {
	var removed int64
	for _, key := range keys {
		res := r.db.WithContext(ctx).
			Where("cart_id = ? AND product_id = ? AND variant_id = ?", cartID, key.ProductID, key.VariantID).
			Delete(&models.CartItem{})
		if res.Error != nil {
			return removed, res.Error
		}
		removed += res.RowsAffected
	}
	return removed, nil
}

func (r *Repository) DeleteAllItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

// BumpVersion increments the cart version and returns the new value.
func (r *Repository) BumpVersion(ctx context.Context, cartID uuid.UUID) (int64, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{"version": gorm.Expr("version + 1")})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	var version int64
	if err := db.Model(&models.Cart{}).Select("version").Where("id = ?", cartID).Scan(&version).Error; err != nil {
		return 0, err
	}
	return version, nil
}

// IsNotFound reports whether err is a missing-row error from this repository.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
