package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/cartcache"
	"github.com/angelmondragon/storefront/pkg/money"
)

func cartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change the cart",
	}

	cmd.AddCommand(cartShowCmd(a))
	cmd.AddCommand(cartSyncCmd(a))
	cmd.AddCommand(cartAddCmd(a))
	cmd.AddCommand(cartUpdateCmd(a))
	cmd.AddCommand(cartRemoveCmd(a))
	cmd.AddCommand(cartClearCmd(a))

	return cmd
}

func cartShowCmd(a *app) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the cart, synced with the server unless --offline",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			if !offline {
				if err := a.cart.Sync(ctx); err != nil {
					a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "showing cached cart, sync failed")
				}
			}
			return a.printCart()
		}),
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Show the cached snapshot without contacting the server")

	return cmd
}

func cartSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replace the cached cart with the server cart",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			if err := a.cart.Sync(ctx); err != nil {
				return err
			}
			return a.printCart()
		}),
	}
}

func cartAddCmd(a *app) *cobra.Command {
	var (
		product, variant, price string
		in                      cartcache.NewLine
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product to the cart",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			productID, variantID, err := parseLineKey(product, variant)
			if err != nil {
				return err
			}
			in.ProductID = productID
			in.VariantID = variantID
			if price != "" {
				cents, err := money.ParseCents(price)
				if err != nil {
					return fmt.Errorf("invalid --price: %w", err)
				}
				in.UnitPriceCents = cents
			}
			if err := a.cart.AddItem(ctx, in); err != nil {
				return err
			}
			return a.printCart()
		}),
	}

	cmd.Flags().StringVarP(&product, "product", "p", "", "Product id")
	cmd.Flags().StringVar(&variant, "variant", "", "Variant id (omit for single-variant products)")
	cmd.Flags().IntVarP(&in.Quantity, "qty", "q", 1, "Quantity to add")
	cmd.Flags().StringVar(&price, "price", "", "Displayed unit price, e.g. 24.99")
	cmd.Flags().StringVar(&in.Name, "name", "", "Displayed product name")
	cmd.Flags().StringVar(&in.Size, "size", "", "Displayed size")
	cmd.Flags().StringVar(&in.Color, "color", "", "Displayed color")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}

func cartUpdateCmd(a *app) *cobra.Command {
	var (
		product, variant string
		delta            int
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change a line's quantity by --delta; reaching zero removes it",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			productID, variantID, err := parseLineKey(product, variant)
			if err != nil {
				return err
			}
			if err := a.cart.UpdateQuantity(ctx, productID, variantID, delta); err != nil {
				return err
			}
			return a.printCart()
		}),
	}

	cmd.Flags().StringVarP(&product, "product", "p", "", "Product id")
	cmd.Flags().StringVar(&variant, "variant", "", "Variant id")
	cmd.Flags().IntVarP(&delta, "delta", "d", 0, "Quantity change, negative to decrease")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("delta")

	return cmd
}

func cartRemoveCmd(a *app) *cobra.Command {
	var product, variant string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a line from the cart",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			productID, variantID, err := parseLineKey(product, variant)
			if err != nil {
				return err
			}
			if err := a.cart.RemoveItem(ctx, productID, variantID); err != nil {
				return err
			}
			return a.printCart()
		}),
	}

	cmd.Flags().StringVarP(&product, "product", "p", "", "Product id")
	cmd.Flags().StringVar(&variant, "variant", "", "Variant id")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}

func cartClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			if err := a.cart.ClearCart(ctx); err != nil {
				return err
			}
			return a.printCart()
		}),
	}
}

// parseLineKey reads a product id and an optional variant id; an empty
// variant means the product's single default variant.
func parseLineKey(product, variant string) (uuid.UUID, uuid.UUID, error) {
	productID, err := uuid.Parse(product)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --product %q", product)
	}
	if variant == "" {
		return productID, uuid.Nil, nil
	}
	variantID, err := uuid.Parse(variant)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --variant %q", variant)
	}
	return productID, variantID, nil
}

type cartView struct {
	Items         []cartLineView `json:"items"`
	Version       int64          `json:"version"`
	TotalItems    int            `json:"totalItems"`
	SubtotalCents int64          `json:"subtotalCents"`
}

type cartLineView struct {
	ID             string    `json:"id"`
	ProductID      uuid.UUID `json:"productId"`
	VariantID      uuid.UUID `json:"variantId"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	LineTotalCents int64     `json:"lineTotalCents"`
	State          string    `json:"state"`
}

func (a *app) printCart() error {
	state := a.cart.Snapshot()
	view := cartView{
		Items:         make([]cartLineView, 0, len(state.Items)),
		Version:       state.Version,
		TotalItems:    state.TotalItems(),
		SubtotalCents: state.SubtotalCents(),
	}
	for _, line := range state.Items {
		view.Items = append(view.Items, cartLineView{
			ID:             line.ID,
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			LineTotalCents: line.LineTotalCents(),
			State:          line.State.String(),
		})
	}
	if a.asJSON {
		return a.printJSON(view)
	}

	if len(view.Items) == 0 {
		_, err := fmt.Fprintln(a.out, "cart is empty")
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tVARIANT\tNAME\tQTY\tUNIT\tTOTAL\tSTATE")
	for _, line := range view.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			line.ProductID, line.VariantID, line.Name, line.Quantity,
			money.Format(line.UnitPriceCents), money.Format(line.LineTotalCents), line.State)
	}
	fmt.Fprintf(tw, "\t\tSUBTOTAL\t%d\t\t%s\t\n", view.TotalItems, money.Format(view.SubtotalCents))
	return tw.Flush()
}
