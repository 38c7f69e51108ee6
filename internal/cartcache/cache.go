package cartcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/storefront/pkg/contracts"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// CartAPI is the server cart the cache converges with.
type CartAPI interface {
	GetCart(ctx context.Context) (*contracts.CartResponse, error)
	UpsertCartItem(ctx context.Context, req contracts.CartUpsertRequest) (*contracts.CartMutationResponse, error)
	RemoveCartItem(ctx context.Context, req contracts.CartRemoveRequest) (*contracts.CartMutationResponse, error)
	ClearCart(ctx context.Context) (*contracts.CartMutationResponse, error)
}

type Options struct {
	API     CartAPI
	Store   SnapshotStore
	Key     string
	Logger  *logger.Logger
	Metrics *metrics.CartCacheMetrics
}

type subscriber struct {
	id uint64
	fn func(State)
}

// Cache is an optimistic, persisted mirror of the server cart. It is safe for
// concurrent use; the mutex is never held across a network call.
type Cache struct {
	api     CartAPI
	store   SnapshotStore
	key     string
	logg    *logger.Logger
	metrics *metrics.CartCacheMetrics

	persistMu sync.Mutex

	mu          sync.Mutex
	lines       []Line
	version     int64
	generation  uint64
	pending     map[contracts.LineKey]int
	inflight    int
	err         error
	subscribers []subscriber
	nextSubID   uint64
}

func New(opts Options) (*Cache, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("cart api required")
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	key := opts.Key
	if key == "" {
		key = "default"
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	return &Cache{
		api:     opts.API,
		store:   store,
		key:     key,
		logg:    logg,
		metrics: opts.Metrics,
		lines:   []Line{},
		pending: map[contracts.LineKey]int{},
	}, nil
}

func (c *Cache) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Cache) stateLocked() State {
	return State{
		Items:   cloneLines(c.lines),
		Version: c.version,
		Loading: c.inflight > 0,
		Err:     c.err,
	}
}

// Subscribe registers fn to receive the state after every change. The
// returned func removes the subscription.
func (c *Cache) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subscribers = append(c.subscribers, subscriber{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subscribers {
			if sub.id == id {
				c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (c *Cache) publish() {
	c.mu.Lock()
	state := c.stateLocked()
	subs := make([]subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.fn(state)
	}
}

func (c *Cache) persist(ctx context.Context) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.mu.Lock()
	lines := cloneLines(c.lines)
	c.mu.Unlock()

	data, err := EncodeSnapshot(lines)
	if err != nil {
		c.logg.Error(ctx, "encode cart snapshot", err)
		return
	}
	if err := c.store.Save(ctx, c.key, data); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "persist cart snapshot failed")
	}
}

func (c *Cache) changed(ctx context.Context) {
	c.persist(ctx)
	c.publish()
}

// Load hydrates the cache from the snapshot store. A corrupt snapshot leaves
// the cart empty.
func (c *Cache) Load(ctx context.Context) error {
	data, err := c.store.Load(ctx, c.key)
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart snapshot")
	}
	lines, err := DecodeSnapshot(data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "discarding unreadable cart snapshot")
		lines = []Line{}
	}
	c.mu.Lock()
	c.lines = lines
	c.mu.Unlock()
	c.publish()
	return nil
}

// Reset drops every line, pending mutation and the persisted snapshot.
// Mutations still in flight from before the reset are not applied.
func (c *Cache) Reset(ctx context.Context) error {
	c.persistMu.Lock()
	c.mu.Lock()
	c.generation++
	c.lines = []Line{}
	c.version = 0
	c.pending = map[contracts.LineKey]int{}
	c.err = nil
	c.mu.Unlock()
	err := c.store.Delete(ctx, c.key)
	c.persistMu.Unlock()

	c.publish()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart snapshot")
	}
	return nil
}

// Sync pulls the server cart and applies it through reconciliation.
func (c *Cache) Sync(ctx context.Context) error {
	c.mu.Lock()
	c.inflight++
	c.mu.Unlock()
	c.publish()

	err := c.resync(ctx)

	c.mu.Lock()
	c.err = err
	c.inflight--
	c.mu.Unlock()
	c.changed(ctx)
	return err
}

// resync fetches the server cart. Responses older than the applied version
// are discarded. Keys with a write still in flight when the response lands
// keep their local value, whether that write began before or after the fetch.
func (c *Cache) resync(ctx context.Context) error {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	resp, err := c.api.GetCart(ctx)
	if err == nil && resp == nil {
		err = pkgerrors.New(pkgerrors.CodeDependency, "empty cart response")
	}
	if err != nil {
		c.metrics.IncReconcile(metrics.ReconcileFailed)
		return err
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	if resp.Version < c.version {
		applied := c.version
		c.mu.Unlock()
		c.metrics.IncReconcile(metrics.ReconcileStale)
		c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
			"response_version": resp.Version,
			"applied_version":  applied,
		}), "discarding stale cart response")
		return nil
	}
	c.lines = c.reconcileLocked(resp.Items)
	c.version = resp.Version
	c.mu.Unlock()
	c.metrics.IncReconcile(metrics.ReconcileApplied)
	return nil
}

func (c *Cache) reconcileLocked(items []contracts.CartLine) []Line {
	protected := make(map[contracts.LineKey]bool, len(c.pending))
	for key := range c.pending {
		protected[key] = true
	}
	next := make([]Line, 0, len(items))
	for _, item := range items {
		if protected[item.Key()] {
			continue
		}
		next = append(next, lineFromServer(item))
	}
	for _, local := range c.lines {
		if protected[local.Key()] {
			next = append(next, local)
		}
	}
	return next
}

func (c *Cache) markLocked(key contracts.LineKey, state LineState) {
	if idx := indexOf(c.lines, key); idx >= 0 {
		c.lines[idx].State = state
	}
}

// settleLocked marks keys synced unless another mutation still owns them.
func (c *Cache) settleLocked(keys []contracts.LineKey) {
	for _, key := range keys {
		if _, busy := c.pending[key]; busy {
			c.markLocked(key, LinePendingWrite)
			continue
		}
		c.markLocked(key, LineSynced)
	}
}
