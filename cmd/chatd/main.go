package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propchat/internal/app/delivery"
	"propchat/internal/app/messaging"
	authsvc "propchat/internal/app/services/auth"
	"propchat/internal/app/transcripts"
	"propchat/internal/bootstrap"
	"propchat/internal/infra/broker/kafka"
	"propchat/internal/infra/config"
	mongostore "propchat/internal/infra/db/mongo"
	ginserver "propchat/internal/infra/http/gin"
	"propchat/internal/infra/messagingrpc"
	"propchat/internal/infra/obs"
	"propchat/internal/infra/realtime"
	"propchat/internal/infra/security"
	"propchat/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger("dev").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("chatd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("chatd stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	metrics := obs.NewMetrics()

	// A remote core owns the chat store; the gateway keeps only accounts.
	storageCfg := cfg
	if cfg.MessagingMode == config.MessagingGRPC {
		storageCfg.StorageDriver = config.StorageMemory
	}
	store, err := bootstrap.OpenStorage(ctx, storageCfg, logger)
	if err != nil {
		return err
	}
	defer closeWithTimeout(logger, "storage", store.Close)

	passwords := security.BcryptHasher{}
	accounts := &authsvc.Service{
		Users:      store.Users,
		Sessions:   store.Sessions,
		Passwords:  passwords,
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}

	hub := realtime.NewHub(logger, metrics)
	defer hub.Close()
	var inbox kafka.Deduper
	if store.Mongo != nil {
		inbox = mongostore.NewInbox(store.Mongo.DB, cfg.KafkaGroup)
	}
	bridge, err := bootstrap.OpenBridge(ctx, cfg, hub, inbox, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			logger.Warn("bridge close failed", "error", err)
		}
	}()
	if bridge.Run != nil {
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("delivery bridge stopped", "bridge", cfg.DeliveryBridge, "error", err)
			}
		}()
	}

	readiness := []func(context.Context) error{store.Ready}
	var core messaging.Core
	switch cfg.MessagingMode {
	case config.MessagingGRPC:
		client, err := messagingrpc.NewClient(messagingrpc.Config{
			Addr:        cfg.MessagingGRPCAddr,
			CallTimeout: cfg.MessagingGRPCTime,
		}, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		waitCtx, cancel := context.WithTimeout(ctx, cfg.MessagingGRPCDial)
		if err := client.WaitReady(waitCtx); err != nil {
			logger.Warn("messaging-service not reachable yet", "addr", cfg.MessagingGRPCAddr, "error", err)
		}
		cancel()
		readiness = append(readiness, client.WaitReady)
		if cfg.DeliveryBridge == config.BridgeNone {
			logger.Warn("remote messaging without a delivery bridge: live push is disabled")
		}
		core = client
	default:
		props, fixtureProps, err := bootstrap.OpenProperties(cfg, store)
		if err != nil {
			return err
		}
		if cfg.FixturesPath != "" {
			var sink bootstrap.PropertySink
			if fixtureProps != nil {
				sink = fixtureProps
			}
			if err := bootstrap.LoadFixtures(ctx, cfg.FixturesPath, sink, store.Users, passwords, logger); err != nil {
				logger.Warn("fixtures load failed", "error", err, "path", cfg.FixturesPath)
			}
		}
		dispatcher := delivery.NewDispatcher(bridge.Outbound, cfg.DeliveryQueueSize, logger, metrics)
		go func() { _ = dispatcher.Run(ctx) }()
		core = messaging.NewService(messaging.Deps{
			Conversations: store.Conversations,
			Messages:      store.Messages,
			Properties:    props,
			Profiles:      store.Users,
			Notifier:      dispatcher,
			Metrics:       metrics,
			Logger:        logger,
			DefaultPage:   cfg.PageSizeDefault,
			MaxPage:       cfg.PageSizeMax,
		})
	}

	exporter := &transcripts.Exporter{Core: core, Logger: logger}
	if cfg.S3Enabled() {
		uploader, err := s3.NewClient(s3.Options{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			UseSSL:         cfg.S3UseSSL,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
		}, logger)
		if err != nil {
			return err
		}
		exporter.Uploader = uploader
	}

	var gate authsvc.Gate = accounts
	handlers := ginserver.Handlers{
		Chat:   ginserver.ChatHandler{Messaging: core, Logger: logger},
		Admin:  ginserver.AdminHandler{Messaging: core, Exporter: exporter, Logger: logger},
		Socket: ginserver.NewSocketHandler(hub, logger),
	}
	if cfg.AuthMode == config.AuthJWT {
		jwtGate, err := security.NewJWTGate(cfg.JWTSecret, cfg.JWTIssuer, logger)
		if err != nil {
			return err
		}
		gate = jwtGate
	} else {
		handlers.Auth = ginserver.AuthHandler{Service: accounts, Logger: logger}
	}
	handlers.AuthMiddleware = ginserver.AuthMiddleware{Gate: gate, Logger: logger}.Handle

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger, Metrics: metrics}, obs.HealthHandlers{
		Ready: func(ctx context.Context) error {
			for _, check := range readiness {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	}, handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", storageCfg.StorageDriver,
		"messaging", cfg.MessagingMode, "auth", cfg.AuthMode, "bridge", cfg.DeliveryBridge)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func closeWithTimeout(logger *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("close failed", "component", name, "error", err)
	}
}
