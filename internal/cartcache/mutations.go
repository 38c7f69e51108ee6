package cartcache

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// mutation is one optimistic change. apply and undo run under the cache lock;
// call runs without it.
type mutation struct {
	op    string
	apply func() []contracts.LineKey
	undo  func()
	call  func(ctx context.Context) error
}

// run applies m locally, sends it to the server and resyncs. Outcomes:
//
//	server ok,     resync ok:     server truth, nil
//	server ok,     resync failed: optimistic state kept, Err set, nil
//	server failed, resync ok:     server truth, Err set, server error
//	server failed, resync failed: m is undone, both errors
func (c *Cache) run(ctx context.Context, m mutation) error {
	c.mu.Lock()
	gen := c.generation
	keys := m.apply()
	for _, key := range keys {
		c.pending[key]++
		c.markLocked(key, LinePendingWrite)
	}
	c.inflight++
	c.mu.Unlock()
	c.changed(ctx)

	serverErr := m.call(ctx)

	c.mu.Lock()
	current := gen == c.generation
	if current {
		for _, key := range keys {
			c.pending[key]--
			if c.pending[key] <= 0 {
				delete(c.pending, key)
			}
			if serverErr != nil {
				c.markLocked(key, LineReverting)
			}
		}
	}
	c.mu.Unlock()
	if serverErr != nil && current {
		c.publish()
	}

	var syncErr error
	if current {
		syncErr = c.resync(ctx)
	}

	logCtx := c.logg.WithField(ctx, "cart_op", m.op)
	var result error
	c.mu.Lock()
	switch {
	case gen != c.generation:
		result = serverErr
	case serverErr == nil && syncErr == nil:
		c.settleLocked(keys)
		c.err = nil
	case serverErr == nil:
		c.settleLocked(keys)
		c.err = syncErr
	case syncErr == nil:
		c.err = serverErr
		result = serverErr
	default:
		m.undo()
		c.settleLocked(keys)
		result = multierr.Combine(serverErr, syncErr)
		c.err = result
	}
	c.inflight--
	c.mu.Unlock()

	if serverErr != nil && syncErr != nil {
		c.metrics.IncReconcile(metrics.ReconcileRollback)
		c.logg.Warn(c.logg.WithField(logCtx, "error", result.Error()), "cart mutation rolled back")
	} else if syncErr != nil {
		c.logg.Info(c.logg.WithField(logCtx, "error", syncErr.Error()), "cart resync failed, keeping local state")
	}
	c.metrics.IncMutation(m.op, result == nil)
	c.changed(ctx)
	return result
}

// AddItem merges in into the cart and upserts it on the server with
// mode=increment.
func (c *Cache) AddItem(ctx context.Context, in NewLine) error {
	if in.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": in.Quantity})
	}
	if in.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	key := in.key()
	return c.run(ctx, mutation{
		op: "add",
		apply: func() []contracts.LineKey {
			if idx := indexOf(c.lines, key); idx >= 0 {
				c.lines[idx].Quantity += in.Quantity
			} else {
				c.lines = append(c.lines, in.line())
			}
			return []contracts.LineKey{key}
		},
		undo: func() {
			idx := indexOf(c.lines, key)
			if idx < 0 {
				return
			}
			c.lines[idx].Quantity -= in.Quantity
			if c.lines[idx].Quantity <= 0 {
				c.lines = removeAt(c.lines, idx)
			}
		},
		call: func(ctx context.Context) error {
			_, err := c.api.UpsertCartItem(ctx, contracts.CartUpsertRequest{
				ProductID: in.ProductID,
				VariantID: in.VariantID,
				Quantity:  in.Quantity,
				Mode:      enums.CartModeIncrement,
			})
			return err
		},
	})
}

// RemoveItem deletes the line for productID and variantID.
func (c *Cache) RemoveItem(ctx context.Context, productID, variantID uuid.UUID) error {
	key := contracts.LineKey{ProductID: productID, VariantID: variantID}
	var removed *Line
	removedAt := 0
	return c.run(ctx, mutation{
		op: "remove",
		apply: func() []contracts.LineKey {
			if idx := indexOf(c.lines, key); idx >= 0 {
				line := c.lines[idx]
				removed, removedAt = &line, idx
				c.lines = removeAt(c.lines, idx)
			}
			return []contracts.LineKey{key}
		},
		undo: func() {
			if removed == nil || indexOf(c.lines, key) >= 0 {
				return
			}
			c.lines = insertAt(c.lines, removedAt, *removed)
		},
		call: func(ctx context.Context) error {
			_, err := c.api.RemoveCartItem(ctx, contracts.CartRemoveRequest{ProductID: productID, VariantID: variantID})
			return err
		},
	})
}

// UpdateQuantity applies delta to an existing line. A result of zero or less
// removes the line. The server receives the raw delta with mode=increment.
func (c *Cache) UpdateQuantity(ctx context.Context, productID, variantID uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}
	key := contracts.LineKey{ProductID: productID, VariantID: variantID}
	c.mu.Lock()
	known := indexOf(c.lines, key) >= 0
	c.mu.Unlock()
	if !known {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found").
			WithDetails(map[string]any{"productId": productID, "variantId": variantID})
	}

	var removed *Line
	removedAt := 0
	return c.run(ctx, mutation{
		op: "update",
		apply: func() []contracts.LineKey {
			idx := indexOf(c.lines, key)
			if idx < 0 {
				return []contracts.LineKey{key}
			}
			next := c.lines[idx].Quantity + delta
			if next <= 0 {
				line := c.lines[idx]
				removed, removedAt = &line, idx
				c.lines = removeAt(c.lines, idx)
			} else {
				c.lines[idx].Quantity = next
			}
			return []contracts.LineKey{key}
		},
		undo: func() {
			idx := indexOf(c.lines, key)
			if removed != nil {
				if idx < 0 {
					c.lines = insertAt(c.lines, removedAt, *removed)
				}
				return
			}
			if idx < 0 {
				return
			}
			c.lines[idx].Quantity -= delta
			if c.lines[idx].Quantity <= 0 {
				c.lines = removeAt(c.lines, idx)
			}
		},
		call: func(ctx context.Context) error {
			_, err := c.api.UpsertCartItem(ctx, contracts.CartUpsertRequest{
				ProductID: productID,
				VariantID: variantID,
				Quantity:  delta,
				Mode:      enums.CartModeIncrement,
			})
			return err
		},
	})
}

// ClearCart empties the cart.
func (c *Cache) ClearCart(ctx context.Context) error {
	var prior []Line
	return c.run(ctx, mutation{
		op: "clear",
		apply: func() []contracts.LineKey {
			prior = cloneLines(c.lines)
			keys := make([]contracts.LineKey, 0, len(prior))
			for _, line := range prior {
				keys = append(keys, line.Key())
			}
			c.lines = []Line{}
			return keys
		},
		undo: func() {
			restored := make([]Line, 0, len(prior)+len(c.lines))
			for _, line := range prior {
				if indexOf(c.lines, line.Key()) < 0 {
					restored = append(restored, line)
				}
			}
			c.lines = append(restored, c.lines...)
		},
		call: func(ctx context.Context) error {
			_, err := c.api.ClearCart(ctx)
			return err
		},
	})
}

func insertAt(lines []Line, idx int, line Line) []Line {
	if idx > len(lines) {
		idx = len(lines)
	}
	out := make([]Line, 0, len(lines)+1)
	out = append(out, lines[:idx]...)
	out = append(out, line)
	return append(out, lines[idx:]...)
}
