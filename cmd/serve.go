package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/bank"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/controller"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/ledger"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/repository"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/service"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/types"
	"github.com/vibast-solutions/ms-go-payment-gateway/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server accepting payment requests and serving payment projections.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	components, cleanup := mustCreateGateway(true)
	defer cleanup()

	paymentController := controller.NewPaymentController(components.handler, components.store)
	e := setupHTTPServer(paymentController)

	go func() {
		httpAddr := net.JoinHostPort(components.cfg.HTTP.Host, components.cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(paymentController *controller.PaymentController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(requireRequestID())

	e.GET("/health", paymentController.Health)

	payments := e.Group("/payments")
	payments.POST("", paymentController.RequestPayment)
	payments.GET("/:id", paymentController.GetPayment)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

type gatewayComponents struct {
	cfg       *config.Config
	store     *repository.EventStore
	processor *service.Processor
	registry  *bank.Registry
	handler   *service.CommandHandler
}

func mustCreateGateway(processAsync bool) (*gatewayComponents, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	store := repository.NewEventStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to initialize event store schema")
	}

	registry, err := buildBankRegistry(cfg)
	if err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to build bank registry")
	}

	buffer := service.NewFailureBuffer()
	processor := service.NewProcessor(
		store,
		service.FixedTimeoutProvider(cfg.Bank.ResponseTimeout),
		buffer,
		service.ProcessorSettings{
			BreakerFailureThreshold: cfg.Breaker.FailureThreshold,
			BreakerCooldown:         cfg.Breaker.Cooldown,
			RetryMaxAttempts:        cfg.Retry.MaxAttempts,
			RetryBaseDelay:          cfg.Retry.BaseDelay,
		},
	)

	var redisClient *redis.Client
	handler := service.NewCommandHandler(
		store,
		buildIdempotencyLedger(cfg, &redisClient),
		processor,
		registry,
		service.UUIDGenerator{},
		processAsync,
	)

	cleanup := func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis client")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return &gatewayComponents{
		cfg:       cfg,
		store:     store,
		processor: processor,
		registry:  registry,
		handler:   handler,
	}, cleanup
}

type acceptLedger interface {
	Accept(ctx context.Context, requestID uuid.UUID) (bool, error)
}

func buildIdempotencyLedger(cfg *config.Config, redisClient **redis.Client) acceptLedger {
	if cfg.Redis.Addr == "" {
		return ledger.NewInMemoryLedger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	*redisClient = client
	return ledger.NewRedisLedger(client)
}

func buildBankRegistry(cfg *config.Config) (*bank.Registry, error) {
	adapters := map[string]bank.Adapter{}
	for name, behavior := range cfg.Bank.SimulatorBehaviors {
		adapters[name] = bank.NewSimulator(name, parseSimulatorBehavior(behavior)).
			WithLatency(cfg.Bank.SimulatorLatency)
	}

	registry := bank.NewRegistry()
	for merchant, bankName := range cfg.Merchants.Routes {
		merchantID, err := uuid.Parse(merchant)
		if err != nil {
			return nil, err
		}
		adapter, ok := adapters[bankName]
		if !ok {
			adapter = bank.NewSimulator(bankName, bank.SimulateAccept).
				WithLatency(cfg.Bank.SimulatorLatency)
			adapters[bankName] = adapter
		}
		registry.Onboard(merchantID, adapter)
	}
	return registry, nil
}

func parseSimulatorBehavior(raw string) bank.SimulatorBehavior {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "reject":
		return bank.SimulateReject
	case "unreachable":
		return bank.SimulateUnreachable
	case "silent":
		return bank.SimulateSilence
	default:
		return bank.SimulateAccept
	}
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return nil
}
