package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "roof-crm/internal/common/api"
	"roof-crm/internal/config"
	"roof-crm/internal/database"
	"roof-crm/internal/features/audit"
	"roof-crm/internal/features/crm"
	"roof-crm/internal/features/qbconnection"
	"roof-crm/internal/features/qbsync"
	"roof-crm/internal/logger"
	"roof-crm/internal/middleware"
	"roof-crm/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates the Fiber app with the global middleware and the
// unauthenticated operational endpoints.
func NewFiberServer(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.CORSMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "environment": cfg.Environment})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}

// AsRoute tags the constructor so Fx adds it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes calls Setup() on every member of the "routes" group.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, logger *zap.Logger) {
	logger.Info("Registering routes", zap.Int("count", len(routes)))
	for _, route := range routes {
		logger.Debug("Setting up route", zap.String("api", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// StartServer starts Fiber in a goroutine and shuts it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures the record lookup index exists.
func InitializeIndexes(lc fx.Lifecycle, records *crm.RecordRepositoryImpl, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := records.EnsureIndexes(ctx); err != nil {
					logger.Warn("Failed to ensure record indexes", zap.Error(err))
				}
			}()
			return nil
		},
	})
}

func ConfigureAuth(cfg *config.Config) {
	utils.SetSecret(cfg.JWTSecret)
}

func StartScheduler(lc fx.Lifecycle, scheduler qbsync.SyncScheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.InitializeScheduler(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.StopScheduler()
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewFiberServer,

			database.NewDatabase,
			database.NewPostgres,
			database.NewRedis,

			// Repositories
			audit.NewAuditRepository,
			crm.NewRecordRepository,
			crm.NewContactRepository,
			crm.NewProjectRepository,
			qbconnection.NewConnectionRepository,
			qbsync.NewMappingRepository,
			qbsync.NewSyncLogRepository,

			// QuickBooks plumbing. The limiter and breaker are process wide.
			qbconnection.NewVault,
			qbconnection.NewOAuthClient,
			qbconnection.NewLocker,
			qbconnection.NewStateStore,
			qbconnection.NewRateLimiter,
			qbconnection.NewBreaker,
			qbconnection.NewClientFactory,

			// Services
			audit.NewAuditService,
			qbconnection.NewTokenStore,
			qbsync.NewSyncService,
			qbsync.NewSyncScheduler,

			// Controllers
			audit.NewAuditController,
			qbconnection.NewConnectionController,
			qbsync.NewSyncController,

			AsRoute(audit.NewAuditApi),
			AsRoute(qbconnection.NewConnectionApi),
			AsRoute(qbsync.NewSyncApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			ConfigureAuth,
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartScheduler,
			InitializeIndexes,
		),
	)

	app.Run()
}
