package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/infest-events/registration/config"
	"github.com/infest-events/registration/internal/analytics"
	"github.com/infest-events/registration/internal/auth"
	"github.com/infest-events/registration/internal/checkin"
	"github.com/infest-events/registration/internal/emaillogs"
	"github.com/infest-events/registration/internal/middleware"
	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/internal/payments"
	"github.com/infest-events/registration/internal/realtime"
	"github.com/infest-events/registration/internal/registrations"
	"github.com/infest-events/registration/pkg/response"
)

const healthTimeout = 2 * time.Second

// NewRouter mounts every route on a gin engine. gatherer may be nil to omit /metrics.
func NewRouter(cfg *config.Config, s *Services, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	registrationHandler := registrations.NewHandler(s.Registrations, s.Store, logger.Named("registrations"))
	paymentHandler := payments.NewHandler(s.Reconciler, s.Verifier, s.Webhooks, s.Artifacts, logger.Named("payments"))
	checkinHandler := checkin.NewHandler(s.Reconciler, s.Store, s.Dispatcher, logger.Named("checkin"))
	authHandler := auth.NewHandler(s.Staff, s.JWT, logger.Named("auth"))
	emailLogsHandler := emaillogs.NewHandler(s.Deliveries, s.Store, logger.Named("emaillogs"))
	analyticsHandler := analytics.NewHandler(s.Store, cfg.Event.AmountPaise, cfg.Event.Currency, logger.Named("analytics"))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger, "/health", "/metrics"))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := s.Health(ctx); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Public registration and payment flow
	router.POST("/register", registrationHandler.Register)
	router.POST("/confirm-payment", paymentHandler.ConfirmPayment)
	router.POST("/webhook/razorpay", paymentHandler.Webhook)
	router.POST("/razorpay-webhook", paymentHandler.Webhook)
	router.GET("/payment-status/:ticket_id", registrationHandler.PaymentStatus)
	router.GET("/registration/:registration_id", registrationHandler.GetRegistration)
	router.GET("/participant/:ticket_id", registrationHandler.Participant)

	// Live payment status for the checkout return page
	upgrader := realtime.NewUpgrader(cfg.Server.CORSAllowedOrigins)
	router.GET("/ws/registration/:registration_id", realtime.ServeWs(s.Hub, s.Store.FindByID, upgrader, logger.Named("ws")))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/me", middleware.JWT(s.JWT), authHandler.Me)
	}

	// Desk operations (JWT + staff role)
	staff := router.Group("")
	staff.Use(middleware.JWT(s.JWT), middleware.RequireRole(models.RoleStaff, models.RoleAdmin))
	{
		staff.POST("/update-status", checkinHandler.UpdateStatus)
		staff.POST("/registration/:registration_id/resend-confirmation", checkinHandler.ResendConfirmation)
		staff.GET("/registration/:registration_id/emails", emailLogsHandler.ListByRegistration)
		staff.GET("/stats", analyticsHandler.Summary)
	}

	router.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})
	return router
}
