package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type paymentRecorder interface {
	ApplyCheckoutOutcome(ctx context.Context, sessionID string, outcome payments.CheckoutOutcome) error
}

type ServiceParams struct {
	Payments paymentRecorder
	Logger   *logger.Logger
}

// Service turns Stripe checkout events into payment outcomes.
type Service struct {
	payments paymentRecorder
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	return &Service{payments: params.Payments, logg: logg}, nil
}

// HandleEvent applies checkout.session events. Other event types are
// acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionExpired,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
	default:
		return nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	if session.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}

	outcome := payments.OutcomeFromSession(&session)
	if event.Type == stripe.EventTypeCheckoutSessionAsyncPaymentFailed {
		outcome.State = payments.CheckoutFailed
		outcome.Reason = "async payment failed"
	}
	if outcome.State == payments.CheckoutOpen {
		return nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
		"checkout_session":  session.ID,
	})
	if err := s.payments.ApplyCheckoutOutcome(ctx, session.ID, outcome); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(logCtx, "checkout session does not belong to any order")
			return nil
		}
		return err
	}
	s.logg.Info(logCtx, "checkout session applied")
	return nil
}
