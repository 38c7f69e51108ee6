// Package stripe is the storefront's payment provider adapter: hosted
// checkout sessions for card orders, refunds, and the webhook signing secret.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const orderIDPlaceholder = "{ORDER_ID}"

// keyPrefixes lists the secret and restricted key prefixes each mode accepts.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
	errNotConfigured  = errors.New("stripe client not initialized")
)

// Client carries the validated Stripe settings for one mode.
type Client struct {
	mode          string
	signingSecret string
	successURL    string
	cancelURL     string
}

// NewClient validates cfg and installs the API key for the stripe-go
// resource packages.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.WebhookSecret)
	switch {
	case apiKey == "":
		return nil, errAPIKeyRequired
	case secret == "":
		return nil, errSecretRequired
	}

	mode := cfg.Environment()
	if err := checkKeyMode(mode, apiKey); err != nil {
		return nil, err
	}
	stripe.Key = apiKey

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", mode), "stripe client ready")
	}
	return &Client{
		mode:          mode,
		signingSecret: secret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}, nil
}

func checkKeyMode(mode, key string) error {
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return fmt.Errorf("stripe environment must be test or live, got %q", mode)
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

// SigningSecret verifies webhook signatures.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// RedirectURLs fills {ORDER_ID} in the configured success and cancel pages.
func (c *Client) RedirectURLs(orderID string) (success, cancel string) {
	if c == nil {
		return "", ""
	}
	return strings.ReplaceAll(c.successURL, orderIDPlaceholder, orderID),
		strings.ReplaceAll(c.cancelURL, orderIDPlaceholder, orderID)
}
