package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/internal/cartcache"
	"github.com/angelmondragon/storefront/internal/orderflow"
	"github.com/angelmondragon/storefront/pkg/apiclient"
	"github.com/angelmondragon/storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/redis"
)

// app holds what a single command invocation shares: flags, the API client
// and the two client-side state holders built on top of it.
type app struct {
	out       io.Writer
	tokenFlag string
	asJSON    bool

	cfg     *config.ClientConfig
	logg    *logger.Logger
	client  *apiclient.Client
	cart    *cartcache.Cache
	orders  *orderflow.Orchestrator
	closers []func() error
}

// runE opens the app around fn and releases whatever open acquired.
func (a *app) runE(fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		if err := a.open(ctx); err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, a.close())
		}()
		return fn(ctx, args)
	}
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logg = logger.New(logger.Options{
		ServiceName: "shopper",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
		Output:      os.Stderr,
	})

	token := cfg.AccessToken
	if strings.TrimSpace(a.tokenFlag) != "" {
		token = a.tokenFlag
	}
	client, err := apiclient.NewClient(cfg.APIBaseURL, apiclient.WithToken(token), apiclient.WithTimeout(cfg.Timeout))
	if err != nil {
		return err
	}
	a.client = client

	store, err := a.snapshotStore(ctx)
	if err != nil {
		return err
	}
	cache, err := cartcache.New(cartcache.Options{
		API:    client,
		Store:  store,
		Key:    cfg.SnapshotKey,
		Logger: a.logg,
	})
	if err != nil {
		return err
	}
	if err := cache.Load(ctx); err != nil {
		return err
	}
	a.cart = cache

	flow, err := orderflow.New(orderflow.Options{API: client, Cart: cache, Logger: a.logg})
	if err != nil {
		return err
	}
	a.orders = flow
	return nil
}

func (a *app) snapshotStore(ctx context.Context) (cartcache.SnapshotStore, error) {
	switch a.cfg.SnapshotStore {
	case config.SnapshotStoreMemory:
		return cartcache.NewMemoryStore(), nil
	case config.SnapshotStoreRedis:
		client, err := redis.New(ctx, a.cfg.Redis, a.logg)
		if err != nil {
			return nil, fmt.Errorf("connect snapshot redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return cartcache.NewRedisStore(client, a.cfg.SnapshotTTL)
	default:
		return cartcache.NewFileStore(a.cfg.SnapshotDir)
	}
}

func (a *app) close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError renders API errors with their code and details so a failed
// command says exactly what the server rejected.
func describeError(err error) string {
	var refundErr *orderflow.RefundAfterCancelError
	if errors.As(err, &refundErr) {
		return fmt.Sprintf("order %s was cancelled, but the refund failed: %s",
			refundErr.Order.ID, describeError(refundErr.Err))
	}
	pkgErr := pkgerrors.As(err)
	if pkgErr == nil {
		return err.Error()
	}
	msg := fmt.Sprintf("%s: %s", pkgErr.Code(), pkgErr.Message())
	if details := pkgErr.Details(); details != nil {
		if raw, jerr := json.Marshal(details); jerr == nil {
			msg += " " + string(raw)
		}
	}
	return msg
}
