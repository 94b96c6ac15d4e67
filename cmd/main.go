package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"

	"flairnode-agent/config"
	_ "flairnode-agent/docs"
	"flairnode-agent/internal/clock"
	"flairnode-agent/internal/controller"
	"flairnode-agent/internal/devicecfg"
	"flairnode-agent/internal/eventbus"
	"flairnode-agent/internal/health"
	"flairnode-agent/internal/identity"
	"flairnode-agent/internal/logdedup"
	"flairnode-agent/internal/logging"
	"flairnode-agent/internal/metrics"
	"flairnode-agent/internal/overflow"
	"flairnode-agent/internal/scheduler"
	"flairnode-agent/internal/service"
	"flairnode-agent/internal/sysstat"
	"flairnode-agent/internal/uplink"
)

// @title           Flair Node Agent API
// @version         1.0
// @description     Local read-only view of device health, uplink queue state and live configuration.

// @BasePath  /
// @schemes   http

// @tag.name         status
// @tag.description  Device health and uplink state

// BootID identifies this process run to the server.
type BootID string

func main() {
	app := fx.New(
		// Core Dependencies
		fx.Provide(
			NewConfig,
			NewBootID,
			clock.Real,
			eventbus.New,
			NewPublisher,
			NewCounters,
		),
		// Infrastructure Dependencies
		fx.Provide(
			NewGinEngine,
			NewDedupManager,
			NewIdentity,
			NewDeviceConfig,
			NewOverflowStore,
			NewUplinkClient,
			NewAggregator,
			NewSystemTracker,
			NewDeliveryService,
			NewStatusController,
		),
		fx.Invoke(
			RegisterBusSubscriptions,
			RegisterAPIRoutes,
			RegisterScheduler,
		),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second) // Timeout for startup
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}
	<-app.Done()

	// Initiate shutdown
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second) // Timeout for graceful shutdown
	defer cancelStop()
	log.Info().Msg("Shutting down application...")
	if err := app.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown due to error or timeout")
	}
}

func NewConfig() (*config.Config, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, nil
}

func NewBootID() BootID {
	id := uuid.NewString()
	log.Info().Str("boot_id", id).Msg("Generated boot id")
	return BootID(id)
}

func NewPublisher(bus eventbus.Bus) eventbus.Publisher {
	return bus
}

func NewCounters() *metrics.Counters {
	return metrics.New(prometheus.DefaultRegisterer)
}

func NewGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// Configure CORS
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	// Add swagger route
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// --- Factory Functions ---

func NewDedupManager(cfg *config.Config, clk clock.Clock, bus eventbus.Publisher) *logdedup.Manager {
	return logdedup.NewManager(logdedup.Policy{
		Visibility:          cfg.Dedup.Visibility,
		HighCountVisibility: cfg.Dedup.HighCountVisibility,
		HighCountThreshold:  cfg.Dedup.HighCountThreshold,
		CleanupInterval:     cfg.Dedup.CleanupInterval,
	}, clk, bus)
}

func NewIdentity(cfg *config.Config) *identity.Manager {
	m := identity.NewManager(cfg.Identity.FilePath, cfg.DevMode)
	// Load logs its own failure and leaves the fallback identity in place.
	_ = m.Load()
	return m
}

func NewDeviceConfig(cfg *config.Config, bus eventbus.Publisher, dedup *logdedup.Manager) *devicecfg.Manager {
	return devicecfg.NewManager(cfg.DeviceConfig.FilePath, bus, dedup.For(devicecfg.ModuleName))
}

func NewOverflowStore(cfg *config.Config) overflow.Store {
	return overflow.NewStore(cfg.Overflow.FilePath)
}

func NewUplinkClient(cfg *config.Config, bootID BootID) uplink.Client {
	return uplink.NewClient(cfg.Uplink.Endpoint, string(bootID), cfg.Uplink.RequestTimeout)
}

func NewAggregator(cfg *config.Config, clk clock.Clock, bus eventbus.Publisher) *health.Aggregator {
	return health.NewAggregator(health.Config{
		Name:              cfg.Health.ModuleName,
		UnresponsiveAfter: cfg.Health.UnresponsiveAfter,
		EmitInterval:      cfg.Health.EmitInterval,
		DebounceWindow:    cfg.Health.DebounceWindow,
		Rules: health.DefaultRules(health.RuleTargets{
			OutputModules:   cfg.Health.OutputModules,
			FallbackModules: cfg.Health.FallbackModules,
			ConfigModule:    cfg.Health.ConfigModule,
			StatusModule:    cfg.Health.StatusModule,
			NetworkModule:   cfg.Uplink.ModuleName,
		}),
	}, clk, bus, health.LogIndicator{}, health.LogFallback{})
}

func NewSystemTracker(cfg *config.Config, clk clock.Clock, bus eventbus.Publisher) *sysstat.Tracker {
	return sysstat.NewTracker(cfg, clk, bus, sysstat.NewCollector("/"))
}

func NewDeliveryService(
	cfg *config.Config,
	clk clock.Clock,
	bus eventbus.Publisher,
	client uplink.Client,
	store overflow.Store,
	id *identity.Manager,
	device *devicecfg.Manager,
	dedup *logdedup.Manager,
	counters *metrics.Counters,
) service.DeliveryService {
	return service.NewDeliveryService(cfg, clk, bus, client, store, id, device, dedup.For(cfg.Uplink.ModuleName), counters)
}

func NewStatusController(agg *health.Aggregator, delivery service.DeliveryService, id *identity.Manager, device *devicecfg.Manager) *controller.StatusController {
	return controller.NewStatusController(agg, delivery, id, device)
}

// --- Invoker Functions ---

// RegisterBusSubscriptions wires the bus. The delivery service subscribes
// first so its boot banner precedes every other queued log.
func RegisterBusSubscriptions(
	lc fx.Lifecycle,
	bus eventbus.Bus,
	delivery service.DeliveryService,
	agg *health.Aggregator,
	device *devicecfg.Manager,
) {
	delivery.Register(bus)
	agg.Register(bus)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// A missing or broken config file is reported on the bus; the
			// agent keeps running with defaults.
			_ = device.Load()
			delivery.Start()
			return nil
		},
	})
}

func RegisterAPIRoutes(
	lifecycle fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	statusController *controller.StatusController,
) {
	controller.RegisterStatusRoutes(router, statusController)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Starting HTTP server on port %s", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("HTTP server ListenAndServe error")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Shutting down HTTP server...")
			return server.Shutdown(ctx)
		},
	})
}

func RegisterScheduler(
	lc fx.Lifecycle,
	cfg *config.Config,
	delivery service.DeliveryService,
	agg *health.Aggregator,
	dedup *logdedup.Manager,
	tracker *sysstat.Tracker,
) error {
	_, err := scheduler.NewScheduler(lc, cfg, delivery, agg, dedup, tracker)
	return err
}
