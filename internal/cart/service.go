package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the authoritative cart. Every successful write bumps the cart
// version that clients reconcile against.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*contracts.CartResponse, error)
	Upsert(ctx context.Context, userID uuid.UUID, req contracts.CartUpsertRequest) (*contracts.CartMutationResponse, error)
	Remove(ctx context.Context, userID uuid.UUID, req contracts.CartRemoveRequest) (*contracts.CartMutationResponse, error)
	Clear(ctx context.Context, userID uuid.UUID) (*contracts.CartMutationResponse, error)
	// ConsumeLines takes ordered quantities off the cart inside the caller's
	// transaction. A line that grew after checkout keeps the surplus.
	ConsumeLines(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lines []OrderedLine) error
}

// OrderedLine is a cart key and the quantity an order took from it.
type OrderedLine struct {
	Key      contracts.LineKey
	Quantity int
}

type service struct {
	repo    *Repository
	catalog *catalog.Repository
	tx      txRunner
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, catalogRepo *catalog.Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{repo: repo, catalog: catalogRepo, tx: tx, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*contracts.CartResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	record, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return &contracts.CartResponse{Items: []contracts.CartLine{}, Version: 0}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	lines := make([]contracts.CartLine, 0, len(record.Items))
	for _, item := range record.Items {
		key := contracts.LineKey{ProductID: item.ProductID, VariantID: item.VariantID}
		entry, err := s.catalog.Describe(ctx, key)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				s.logg.Warn(s.logg.WithField(ctx, "cart_item_id", item.ID.String()), "cart line references missing catalog entry")
				continue
			}
			return nil, err
		}
		lines = append(lines, contracts.CartLine{
			ID:             item.ID.String(),
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			UnitPriceCents: entry.UnitPriceCents,
			Name:           entry.Name,
			Size:           entry.Size,
			Color:          entry.Color,
			Image:          entry.Image,
			AvailableQty:   entry.AvailableQty,
		})
	}
	return &contracts.CartResponse{Items: lines, Version: record.Version}, nil
}

// Upsert applies a line change. In increment mode the quantity is a signed
// delta and a result at or below zero deletes the line; in set mode it is the
// new absolute quantity.
func (s *service) Upsert(ctx context.Context, userID uuid.UUID, req contracts.CartUpsertRequest) (*contracts.CartMutationResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = enums.CartModeIncrement
	}
	switch {
	case !mode.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mode must be increment or set")
	case mode == enums.CartModeIncrement && req.Quantity == 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be zero")
	case mode == enums.CartModeSet && req.Quantity < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	key := contracts.LineKey{ProductID: req.ProductID, VariantID: req.VariantID}

	var version int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.LockForUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}

		existing, err := repo.FindItem(ctx, record.ID, key)
		if err != nil && !IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}
		current := 0
		if existing != nil {
			current = existing.Quantity
		}

		next := req.Quantity
		if mode == enums.CartModeIncrement {
			if existing == nil && req.Quantity < 0 {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			next = current + req.Quantity
		}

		switch {
		case next <= 0:
			if existing != nil {
				if _, err := repo.DeleteItems(ctx, record.ID, key); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
				}
			}
		default:
			if next > current {
				entry, err := s.catalog.WithTx(tx).Resolve(ctx, key)
				if err != nil {
					return err
				}
				if next > entry.AvailableQty {
					return pkgerrors.New(pkgerrors.CodeConflict, "requested quantity exceeds available inventory").
						WithDetails(map[string]any{"availableQty": entry.AvailableQty, "requested": next})
				}
			}
			if existing == nil {
				item := &models.CartItem{CartID: record.ID, ProductID: key.ProductID, VariantID: key.VariantID, Quantity: next}
				if err := repo.CreateItem(ctx, item); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
				}
			} else if err := repo.UpdateItemQuantity(ctx, existing.ID, next); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
		}

		version, err = repo.BumpVersion(ctx, record.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump cart version")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &contracts.CartMutationResponse{Message: "cart updated", Version: version}, nil
}

// Remove deletes the line for the key. Removing a missing line still succeeds.
func (s *service) Remove(ctx context.Context, userID uuid.UUID, req contracts.CartRemoveRequest) (*contracts.CartMutationResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	key := contracts.LineKey{ProductID: req.ProductID, VariantID: req.VariantID}
	version, err := s.mutate(ctx, userID, func(repo *Repository, cartID uuid.UUID) error {
		_, err := repo.DeleteItems(ctx, cartID, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &contracts.CartMutationResponse{Message: "item removed", Version: version}, nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*contracts.CartMutationResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	version, err := s.mutate(ctx, userID, func(repo *Repository, cartID uuid.UUID) error {
		_, err := repo.DeleteAllItems(ctx, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &contracts.CartMutationResponse{Message: "cart cleared", Version: version}, nil
}

func (s *service) mutate(ctx context.Context, userID uuid.UUID, fn func(repo *Repository, cartID uuid.UUID) error) (int64, error) {
	var version int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.LockForUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}
		if err := fn(repo, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart items")
		}
		version, err = repo.BumpVersion(ctx, record.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump cart version")
		}
		return nil
	})
	return version, err
}

func (s *service) ConsumeLines(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lines []OrderedLine) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required to consume cart lines")
	}
	if len(lines) == 0 {
		return nil
	}
	repo := s.repo.WithTx(tx)
	record, err := repo.LockForUser(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
	}
	changed := false
	for _, line := range lines {
		item, err := repo.FindItem(ctx, record.ID, line.Key)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ordered cart line")
		}
		if left := item.Quantity - line.Quantity; left > 0 {
			err = repo.UpdateItemQuantity(ctx, item.ID, left)
		} else {
			_, err = repo.DeleteItems(ctx, record.ID, line.Key)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume ordered cart line")
		}
		changed = true
	}
	if !changed {
		return nil
	}
	if _, err := repo.BumpVersion(ctx, record.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump cart version")
	}
	return nil
}
