// Package app wires configuration, infrastructure and domain services into
// the HTTP server and the confirmation worker.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/infest-events/registration/config"
	"github.com/infest-events/registration/internal/auth"
	"github.com/infest-events/registration/internal/confirmation"
	"github.com/infest-events/registration/internal/emaillogs"
	"github.com/infest-events/registration/internal/ids"
	"github.com/infest-events/registration/internal/metrics"
	"github.com/infest-events/registration/internal/payments"
	"github.com/infest-events/registration/internal/realtime"
	"github.com/infest-events/registration/internal/registrations"
)

// Deps are the swappable backends. Nil optional fields disable the feature.
type Deps struct {
	Store      registrations.Store
	Events     payments.EventLog
	Deliveries emaillogs.Log
	Staff      auth.Directory
	Mailer     confirmation.Mailer
	Registry   prometheus.Registerer

	QRStore    confirmation.ArtifactStore
	Retry      payments.RetryQueue
	Publisher  realtime.Publisher
	Subscriber realtime.Subscriber
	Links      payments.LinkCreator
	Fetcher    payments.PaymentFetcher
	Health     func(ctx context.Context) error
}

// Services are the constructed domain components.
type Services struct {
	Store         registrations.Store
	IDs           *ids.Generator
	Metrics       *metrics.Metrics
	Dispatcher    *confirmation.Dispatcher
	Artifacts     *confirmation.Artifacts
	Registrations *registrations.Service
	Reconciler    *payments.Reconciler
	Webhooks      *payments.WebhookProcessor
	Verifier      *payments.ClientVerifier
	Hub           *realtime.Hub
	Deliveries    emaillogs.Log
	JWT           *auth.JWTService
	Staff         auth.Directory
	Health        func(ctx context.Context) error
}

// NewServices builds the domain graph over deps.
func NewServices(cfg *config.Config, deps Deps, logger *zap.Logger) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("app: store required")
	}
	if deps.Mailer == nil {
		deps.Mailer = confirmation.DisabledMailer{}
	}
	if deps.Deliveries == nil {
		deps.Deliveries = emaillogs.NewInMemory()
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	gen, err := ids.NewGenerator(cfg.Event.SnowflakeNode, cfg.Event.TicketPrefix)
	if err != nil {
		return nil, fmt.Errorf("id generator: %w", err)
	}
	m := metrics.New(deps.Registry)

	renderer := confirmation.QRRenderer{Size: confirmation.DefaultQRSize}
	artifacts := confirmation.NewArtifacts(renderer, deps.QRStore)
	dispatcher := confirmation.NewDispatcher(deps.Store, renderer, deps.Mailer, confirmation.Config{
		EventName:   cfg.Event.Name,
		SendTimeout: cfg.Email.SendTimeout,
	}, m, logger.Named("confirmation"), confirmation.WithDeliveryLog(deps.Deliveries))

	hub := realtime.NewHub(logger.Named("realtime"), deps.Publisher, deps.Subscriber)

	opts := []payments.ReconcilerOption{payments.WithNotifier(hub), payments.WithMetrics(m)}
	if deps.Retry != nil {
		opts = append(opts, payments.WithRetryQueue(deps.Retry))
	}
	reconciler := payments.NewReconciler(deps.Store, gen, dispatcher, logger.Named("payments"), opts...)

	var links payments.LinkCreator
	if cfg.Razorpay.PaymentLinks {
		links = deps.Links
	}
	checkout := payments.NewCheckout(links, cfg.Razorpay.PaymentPageURL)

	svc := registrations.NewService(deps.Store, gen, checkout, artifacts, logger.Named("registrations"),
		registrations.WithMaxEvents(cfg.Event.MaxEvents),
		registrations.WithMetrics(m),
	)

	webhooks := payments.NewWebhookProcessor(cfg.Razorpay.WebhookSecret, reconciler, deps.Events, m, logger.Named("webhook"))

	staff := deps.Staff
	if staff == nil {
		staff = auth.Chain{}
	}

	health := deps.Health
	if health == nil {
		health = func(context.Context) error { return nil }
	}

	return &Services{
		Store:         deps.Store,
		IDs:           gen,
		Metrics:       m,
		Dispatcher:    dispatcher,
		Artifacts:     artifacts,
		Registrations: svc,
		Reconciler:    reconciler,
		Webhooks:      webhooks,
		Verifier:      payments.NewClientVerifier(cfg.Razorpay.KeySecret, cfg.Razorpay.VerifyClientPayment, deps.Fetcher),
		Hub:           hub,
		Deliveries:    deps.Deliveries,
		JWT:           auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours),
		Staff:         staff,
		Health:        health,
	}, nil
}
