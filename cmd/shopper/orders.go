package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/orderflow"
	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/money"
)

func ordersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Check out, pay for, cancel and return orders",
	}

	cmd.AddCommand(ordersListCmd(a))
	cmd.AddCommand(ordersCreateCmd(a))
	cmd.AddCommand(ordersPayCmd(a))
	cmd.AddCommand(ordersVerifyCmd(a))
	cmd.AddCommand(ordersCancelCmd(a))
	cmd.AddCommand(ordersReturnCmd(a))
	cmd.AddCommand(ordersRefundCmd(a))

	return cmd
}

func ordersListCmd(a *app) *cobra.Command {
	var withReturns bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your orders",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			if err := a.orders.Refresh(ctx); err != nil {
				return err
			}
			state := a.orders.State()
			if a.asJSON {
				if withReturns {
					return a.printJSON(map[string]any{"orders": state.Orders, "returns": state.Returns})
				}
				return a.printJSON(contracts.OrderList{Orders: state.Orders})
			}
			if err := a.printOrders(state.Orders); err != nil {
				return err
			}
			if withReturns {
				return a.printReturns(state.Returns)
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&withReturns, "returns", false, "Also list return requests")

	return cmd
}

func ordersCreateCmd(a *app) *cobra.Command {
	var (
		form   orderflow.CheckoutForm
		method string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Place an order for the current cart",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			pm, err := enums.ParsePaymentMethod(method)
			if err != nil {
				return err
			}
			form.PaymentMethod = pm
			form.ShippingAddress.Country = strings.ToUpper(form.ShippingAddress.Country)
			if err := a.cart.Sync(ctx); err != nil {
				return err
			}
			order, err := a.orders.CreateOrder(ctx, form)
			if err != nil {
				return err
			}
			return a.printOrder(order)
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&form.ShippingAddress.FullName, "name", "", "Recipient full name")
	flags.StringVar(&form.ShippingAddress.Line1, "line1", "", "Street address")
	flags.StringVar(&form.ShippingAddress.Line2, "line2", "", "Apartment, suite, etc.")
	flags.StringVar(&form.ShippingAddress.City, "city", "", "City")
	flags.StringVar(&form.ShippingAddress.State, "state", "", "State or region")
	flags.StringVar(&form.ShippingAddress.PostalCode, "postal-code", "", "Postal code")
	flags.StringVar(&form.ShippingAddress.Country, "country", "US", "Two-letter country code")
	flags.StringVar(&form.Contact.Email, "email", "", "Contact email")
	flags.StringVar(&form.Contact.Phone, "phone", "", "Contact phone")
	flags.StringVar(&method, "method", string(enums.PaymentMethodCard), "Payment method (card, cod)")
	flags.StringVar(&form.Notes, "notes", "", "Delivery notes")
	for _, name := range []string{"name", "line1", "city", "postal-code", "email"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func ordersPayCmd(a *app) *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   "pay [order-id]",
		Short: "Start card payment and print the checkout URL",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(ctx context.Context, args []string) error {
			orderID, err := parseID("order", args[0])
			if err != nil {
				return err
			}
			if err := a.orders.Refresh(ctx); err != nil {
				return err
			}
			cents, err := a.payAmount(orderID, amount)
			if err != nil {
				return err
			}
			url, err := a.orders.CreatePaymentIntent(ctx, orderID, cents, map[string]string{"source": "shopper"})
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(contracts.PaymentIntentResponse{URL: url})
			}
			_, err = fmt.Fprintln(a.out, url)
			return err
		}),
	}

	cmd.Flags().StringVar(&amount, "amount", "", "Amount to charge, e.g. 54.97 (defaults to the order total)")

	return cmd
}

// payAmount uses the explicit amount when given, otherwise the total of the
// order as last fetched.
func (a *app) payAmount(orderID uuid.UUID, amount string) (int64, error) {
	if amount != "" {
		cents, err := money.ParseCents(amount)
		if err != nil {
			return 0, fmt.Errorf("invalid --amount: %w", err)
		}
		return cents, nil
	}
	for _, order := range a.orders.Orders() {
		if order.ID == orderID {
			return order.TotalCents, nil
		}
	}
	return 0, fmt.Errorf("order %s not found; pass --amount", orderID)
}

func ordersVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [order-id]",
		Short: "Confirm the payment status of an order with the provider",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(ctx context.Context, args []string) error {
			orderID, err := parseID("order", args[0])
			if err != nil {
				return err
			}
			order, err := a.orders.VerifyOrderPayment(ctx, orderID)
			if err != nil {
				return err
			}
			return a.printOrder(order)
		}),
	}
}

func ordersCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [order-id]",
		Short: "Cancel an order, refunding any captured payment",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(ctx context.Context, args []string) error {
			orderID, err := parseID("order", args[0])
			if err != nil {
				return err
			}
			order, err := a.orders.CancelOrder(ctx, orderID)
			if order != nil {
				if perr := a.printOrder(order); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		}),
	}
}

func ordersReturnCmd(a *app) *cobra.Command {
	var item, reason string
	cmd := &cobra.Command{
		Use:   "return [order-id]",
		Short: "Request a return for one item of a delivered order",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(ctx context.Context, args []string) error {
			orderID, err := parseID("order", args[0])
			if err != nil {
				return err
			}
			itemID, err := parseID("item", item)
			if err != nil {
				return err
			}
			ret, err := a.orders.RequestReturn(ctx, orderID, itemID, reason)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(ret)
			}
			return a.printReturns([]contracts.ReturnRequest{*ret})
		}),
	}

	cmd.Flags().StringVar(&item, "item", "", "Order item id")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the item is being returned")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func ordersRefundCmd(a *app) *cobra.Command {
	var transaction, amount, reason string
	cmd := &cobra.Command{
		Use:   "refund",
		Short: "Refund part or all of a charge",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context, _ []string) error {
			txnID, err := parseID("transaction", transaction)
			if err != nil {
				return err
			}
			cents, err := money.ParseCents(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}
			resp, err := a.orders.ProcessRefund(ctx, txnID, cents, reason)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(resp)
			}
			_, err = fmt.Fprintf(a.out, "refund %s %s: %s\n", resp.Refund.ID, resp.Refund.Status,
				money.FormatWithCurrency(resp.Refund.AmountCents, resp.Order.Currency))
			if err != nil {
				return err
			}
			return a.printOrder(&resp.Order)
		}),
	}

	cmd.Flags().StringVar(&transaction, "transaction", "", "Charge transaction id")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount to refund, e.g. 10.00")
	cmd.Flags().StringVar(&reason, "reason", "", "Refund reason")
	_ = cmd.MarkFlagRequired("transaction")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func parseID(kind, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", kind, value)
	}
	return id, nil
}

func (a *app) printOrders(orders []contracts.Order) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(a.out, "no orders")
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tSTATUS\tPAYMENT\tMETHOD\tITEMS\tTOTAL\tCREATED")
	for _, order := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			order.ID, order.Status, order.PaymentStatus, order.PaymentMethod, len(order.Items),
			money.FormatWithCurrency(order.TotalCents, order.Currency), order.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func (a *app) printOrder(order *contracts.Order) error {
	if a.asJSON {
		return a.printJSON(order)
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "order\t%s\n", order.ID)
	fmt.Fprintf(tw, "status\t%s\n", order.Status)
	fmt.Fprintf(tw, "payment\t%s (%s)\n", order.PaymentStatus, order.PaymentMethod)
	fmt.Fprintf(tw, "subtotal\t%s\n", money.Format(order.SubtotalCents))
	fmt.Fprintf(tw, "tax\t%s\n", money.Format(order.TaxCents))
	fmt.Fprintf(tw, "shipping\t%s\n", money.Format(order.ShippingFeeCents))
	fmt.Fprintf(tw, "total\t%s\n", money.FormatWithCurrency(order.TotalCents, order.Currency))
	for _, item := range order.Items {
		fmt.Fprintf(tw, "item\t%s  %d x %s  %s\n", item.ID, item.Quantity, item.Name, money.Format(item.LineTotalCents))
	}
	for _, txn := range order.Transactions {
		fmt.Fprintf(tw, "transaction\t%s  %s %s  %s\n", txn.ID, txn.Type, txn.Status, money.Format(txn.AmountCents))
	}
	for _, refund := range order.Refunds {
		fmt.Fprintf(tw, "refund\t%s  %s  %s\n", refund.ID, refund.Status, money.Format(refund.AmountCents))
	}
	return tw.Flush()
}

func (a *app) printReturns(returns []contracts.ReturnRequest) error {
	if len(returns) == 0 {
		_, err := fmt.Fprintln(a.out, "no returns")
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RETURN\tORDER\tITEM\tSTATUS\tREASON")
	for _, ret := range returns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ret.ID, ret.OrderID, ret.OrderItemID, ret.Status, ret.Reason)
	}
	return tw.Flush()
}
