// Command shopper drives the storefront API from a terminal: it keeps an
// optimistic cart cache on disk or in redis and walks orders through
// checkout, payment, cancellation and returns.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	rootCmd := &cobra.Command{
		Use:           "shopper",
		Short:         "Storefront shopper client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.tokenFlag, "token", "", "Access token (overrides STOREFRONT_CLIENT_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&a.asJSON, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(cartCmd(a))
	rootCmd.AddCommand(ordersCmd(a))
	rootCmd.AddCommand(loginTokenCmd(a))

	return rootCmd
}
