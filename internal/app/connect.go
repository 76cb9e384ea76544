package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/infest-events/registration/config"
	"github.com/infest-events/registration/internal/auth"
	"github.com/infest-events/registration/internal/confirmation"
	"github.com/infest-events/registration/internal/emaillogs"
	"github.com/infest-events/registration/internal/payments"
	"github.com/infest-events/registration/internal/realtime"
	"github.com/infest-events/registration/internal/registrations"
	"github.com/infest-events/registration/pkg/database"
	"github.com/infest-events/registration/pkg/queue"
	redisclient "github.com/infest-events/registration/pkg/redis"
	"github.com/infest-events/registration/pkg/storage"
)

// Infra holds the live connections behind Deps.
type Infra struct {
	Pool     *pgxpool.Pool
	Redis    *redisclient.Client // nil when Redis is disabled or unreachable
	Queue    *queue.Queue        // nil without Redis
	Registry *prometheus.Registry
}

// Close releases every connection.
func (i *Infra) Close() {
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}

// Connect opens Postgres (required, migrated on start), Redis (optional) and
// S3 (optional) and returns the production Deps over them.
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Infra, Deps, error) {
	pool, err := database.NewPostgresPool(ctx, database.PoolConfig{
		DSN:      cfg.Database.DSN(),
		MaxConns: int32(cfg.Database.MaxConns),
	}, logger)
	if err != nil {
		return nil, Deps{}, fmt.Errorf("postgres: %w", err)
	}
	if err := database.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, Deps{}, fmt.Errorf("migrate: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	infra := &Infra{Pool: pool, Registry: registry}
	deps := Deps{
		Store:      registrations.NewRepository(pool),
		Events:     payments.NewPostgresEventLog(pool),
		Deliveries: emaillogs.NewRepository(pool),
		Registry:   registry,
		Health:     pool.Ping,
	}

	staff := auth.Chain{auth.NewRepository(pool)}
	if static := auth.NewStaticDirectory(cfg.Staff.Username, cfg.Staff.PasswordHash); static != nil {
		staff = append(staff, static)
	}
	deps.Staff = staff

	if cfg.RedisEnabled() {
		rc, err := redisclient.NewClient(ctx, redisclient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			logger.Warn("Redis unavailable; realtime fan-out is local and confirmation retries are disabled", zap.Error(err))
		} else {
			infra.Redis = rc
			infra.Queue = queue.NewQueue(rc.Client, logger.Named("queue"))
			pubsub := realtime.NewRedisPubSub(rc.Client, logger.Named("pubsub"))
			deps.Retry = infra.Queue
			deps.Publisher = pubsub
			deps.Subscriber = pubsub
		}
	}

	if cfg.AWS.QRBucket != "" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.QRBucket,
			Endpoint:             cfg.AWS.S3Endpoint,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger.Named("s3"))
		if err != nil {
			logger.Warn("S3 unavailable; QR codes are served inline", zap.Error(err))
		} else {
			deps.QRStore = s3
		}
	}

	if cfg.MailEnabled() {
		mailer, err := confirmation.NewSMTPMailer(confirmation.SMTPConfig{
			Host:        cfg.Email.SMTPHost,
			Port:        cfg.Email.SMTPPort,
			User:        cfg.Email.SMTPUser,
			Password:    cfg.Email.SMTPPass,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			Timeout:     cfg.Email.SendTimeout,
		})
		if err != nil {
			infra.Close()
			return nil, Deps{}, fmt.Errorf("smtp: %w", err)
		}
		deps.Mailer = mailer
	} else {
		logger.Warn("SMTP_HOST not set; confirmation emails are disabled")
	}

	if cfg.Razorpay.KeyID != "" && cfg.Razorpay.KeySecret != "" {
		gw := payments.NewGateway(payments.GatewayConfig{
			KeyID:       cfg.Razorpay.KeyID,
			KeySecret:   cfg.Razorpay.KeySecret,
			AmountPaise: cfg.Event.AmountPaise,
			Currency:    cfg.Event.Currency,
			CallbackURL: cfg.Razorpay.CallbackURL,
			EventName:   cfg.Event.Name,
		})
		deps.Links = gw
		deps.Fetcher = gw
	}

	return infra, deps, nil
}
