package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"blocktix/config"
	"blocktix/internal/handlers"
	"blocktix/internal/services"
	"blocktix/internal/services/wallet"
	"blocktix/internal/store"
	"blocktix/internal/store/localstore"
	"blocktix/internal/store/pbstore"
	"blocktix/internal/store/redisstore"
	"blocktix/monitoring"
	"blocktix/security"
	"blocktix/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func Start() error {
	cfg := config.LoadConfig()

	// Serve on the configured port when started without a command.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve", "--http=0.0.0.0:"+cfg.Port)
	}

	app := pocketbase.New()

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is required by the redis backend and optional otherwise: without
	// it the purchase guard is per process and the anti-bot counter is off.
	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		if cfg.StoreBackend == config.BackendRedis {
			return err
		}
		slog.Warn("Redis unavailable, continuing without it", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	gateway, err := wallet.New(wallet.Provider(cfg.WalletProvider), wallet.Config{
		RPCURL:           cfg.WalletRPCURL,
		Timeout:          cfg.PaymentTimeout,
		SimulatedBalance: decimal.NewFromInt(100),
	})
	if err != nil {
		return err
	}

	var notifier services.Notifier = services.LogNotifier{}
	if pn := services.NewPubNub(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.PubNubUserID); pn != nil {
		pubnubNotifier := services.NewPubNubNotifier(pn)
		defer pubnubNotifier.Wait()
		notifier = pubnubNotifier
	}

	var reconciler services.Reconciler = services.LogReconciler{}
	if cfg.RabbitMQURL != "" {
		rabbit, err := services.NewRabbitReconciler(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			slog.Warn("RabbitMQ unavailable, unfulfilled payments go to the log", "error", err)
		} else {
			defer rabbit.Close()
			reconciler = rabbit
		}
	}

	var guard services.InflightGuard = security.NewLocalGuard()
	if redisClient != nil {
		guard = security.NewRedisGuard(redisClient, cfg.RedisKeyPrefix, cfg.InflightTTL)
	}

	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		st, err := openStore(se.App, cfg, redisClient)
		if err != nil {
			return err
		}

		inventory := services.NewInventoryService(st)
		tickets := services.NewTicketService(st)
		marketplace := services.NewMarketplaceService(inventory, tickets, gateway, guard, notifier, reconciler, cfg.PaymentTimeout)

		catalog := services.NewCatalogService(st)
		if err := catalog.Refresh(ctx); err != nil {
			slog.Warn("Initial catalog load failed", "error", err)
		}
		catalog.Start(ctx)

		eventHandler := handlers.NewEventHandler(marketplace, catalog)
		ticketHandler := handlers.NewTicketHandler(marketplace, catalog)
		walletHandler := handlers.NewWalletHandler(gateway)
		limiter := security.NewRateLimiter(redisClient, cfg.RedisKeyPrefix)

		v1 := se.Router.Group("/api/v1")
		v1.BindFunc(limiter.AntiBot)

		// Events
		v1.GET("/events", eventHandler.ListEvents)
		v1.POST("/events", eventHandler.CreateEvent)
		v1.GET("/events/{eventId}", eventHandler.GetEvent)
		v1.PUT("/events/{eventId}", eventHandler.UpdateEvent)
		v1.DELETE("/events/{eventId}", eventHandler.DeleteEvent)
		v1.POST("/events/{eventId}/purchase", eventHandler.Purchase)

		// Tickets and resale market
		v1.GET("/tickets/mine", ticketHandler.MyTickets)
		v1.GET("/market", ticketHandler.Market)
		v1.POST("/tickets/{ticketId}/list", ticketHandler.List)
		v1.POST("/tickets/{ticketId}/cancel", ticketHandler.Cancel)
		v1.POST("/tickets/{ticketId}/buy", ticketHandler.Buy)

		// Wallet
		v1.GET("/wallet/{address}/balance", walletHandler.Balance)

		if cfg.EnableMetrics {
			monitoring.NewMonitor(catalog, cfg.MetricsInterval).Start(ctx)
			se.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		se.Router.GET("/health", func(e *core.RequestEvent) error {
			if redisClient != nil {
				if err := utils.RedisHealthCheck(redisClient); err != nil {
					return e.JSON(http.StatusServiceUnavailable, map[string]string{
						"status": "unhealthy",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(http.StatusOK, map[string]string{
				"status": "healthy",
				"store":  string(cfg.StoreBackend),
			})
		})

		se.App.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
			cancel()
			if err := st.Close(); err != nil {
				slog.Error("Failed to close store", "error", err)
			}
			return e.Next()
		})

		slog.Info("Server routes registered", "store", cfg.StoreBackend, "wallet", cfg.WalletProvider)
		return se.Next()
	})

	return app.Start()
}

func openStore(app core.App, cfg *config.Config, redisClient *redis.Client) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPocketBase:
		if err := pbstore.EnsureCollections(app); err != nil {
			return nil, err
		}
		return pbstore.New(app, cfg.ReserveMaxAttempts), nil
	case config.BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("store backend %s requires redis", cfg.StoreBackend)
		}
		return redisstore.New(redisClient, cfg.RedisKeyPrefix, cfg.ReserveMaxAttempts), nil
	case config.BackendLocal:
		return localstore.Open(cfg.LocalStorePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}

// handleShutdown stops background work on SIGINT/SIGTERM.
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
	cancel()
}
