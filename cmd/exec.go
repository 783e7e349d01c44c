package cmd

import (
	"log"
	"log/slog"
	"net/http"

	"checkin-system/config"
	"checkin-system/internal/handlers"
	"checkin-system/internal/ledger"
	"checkin-system/internal/notify"
	"checkin-system/internal/scancode"
	"checkin-system/internal/stats"
	"checkin-system/internal/validation"
	"checkin-system/monitoring"
	"checkin-system/security"
	"checkin-system/utils"

	_ "checkin-system/migrations"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	cfg := config.LoadConfig()

	codec, err := scancode.NewCodec(codeSecret(cfg))
	if err != nil {
		return err
	}

	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	led := ledger.New(app)
	aggregator := stats.NewAggregator(redisClient)

	coordinator := validation.NewCoordinator(led, codec, cfg.LedgerTimeout).
		WithRecorder(aggregator)

	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		coordinator.WithPublisher(notify.NewPublisher(pubnub.NewPubNub(pnConfig)))
	} else {
		slog.Info("PubNub keys not set, result fan-out disabled")
	}

	sessions := validation.NewSessionRegistry(cfg.SuppressWindow)
	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow)

	checkinHandler := handlers.NewCheckinHandler(coordinator, sessions)
	ticketHandler := handlers.NewTicketHandler(led, codec)
	statsHandler := handlers.NewStatsHandler(led, aggregator, cfg.AttemptPageSize)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	stop := make(chan struct{})
	monitoring.StartRuntimeCollector(stop)

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		close(stop)
		return e.Next()
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Check-in endpoints
		e.Router.POST("/api/checkin/validate", checkinHandler.Validate).
			Bind(apis.RequireAuth()).
			BindFunc(limiter.Middleware())
		e.Router.GET("/api/checkin/session", checkinHandler.GetSession).
			Bind(apis.RequireAuth())
		e.Router.POST("/api/checkin/session/reset", checkinHandler.ResetSession).
			Bind(apis.RequireAuth())

		// Audit and attendance read side
		e.Router.GET("/api/checkin/events/{eventId}/attempts", statsHandler.ListAttempts).
			Bind(apis.RequireAuth())
		e.Router.GET("/api/checkin/events/{eventId}/stats", statsHandler.GetStats).
			Bind(apis.RequireAuth())

		// Ticket code issuance
		e.Router.GET("/api/tickets/{ticketId}/code", ticketHandler.IssueCode).
			Bind(apis.RequireAuth())

		// Administrative corrections, outside the scan path
		e.Router.POST("/api/admin/tickets/{ticketId}/refund", ticketHandler.Refund).
			Bind(apis.RequireSuperuserAuth())
		e.Router.POST("/api/admin/tickets/{ticketId}/reopen", ticketHandler.Reopen).
			Bind(apis.RequireSuperuserAuth())

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	return app.Start()
}

// codeSecret resolves the MAC secret for scan codes. Production must
// configure one; development falls back to a random secret whose codes
// stop verifying after a restart.
func codeSecret(cfg *config.Config) string {
	if cfg.CodeSecret != "" {
		return cfg.CodeSecret
	}
	if cfg.Environment == "production" {
		log.Fatal("CHECKIN_CODE_SECRET must be set in production")
	}

	secret, err := utils.GenerateSecret()
	if err != nil {
		log.Fatalf("Failed to generate dev code secret: %v", err)
	}
	slog.Warn("CHECKIN_CODE_SECRET not set, using a random development secret; issued codes will not survive a restart")
	return secret
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("Metrics listening on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}
