package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"propchat/internal/app/delivery"
	"propchat/internal/app/messaging"
	"propchat/internal/bootstrap"
	"propchat/internal/infra/config"
	"propchat/internal/infra/messagingrpc"
	"propchat/internal/infra/obs"
	"propchat/internal/infra/security"
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
		logger.Error("messaging-service failed", "error", err)
		os.Exit(1)
	}
	logger.Info("messaging-service stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	metrics := obs.NewMetrics()
	store, err := bootstrap.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("storage close failed", "error", err)
		}
	}()

	props, fixtureProps, err := bootstrap.OpenProperties(cfg, store)
	if err != nil {
		return err
	}
	if cfg.FixturesPath != "" {
		var sink bootstrap.PropertySink
		if fixtureProps != nil {
			sink = fixtureProps
		}
		if err := bootstrap.LoadFixtures(ctx, cfg.FixturesPath, sink, store.Users, security.BcryptHasher{}, logger); err != nil {
			logger.Warn("fixtures load failed", "error", err, "path", cfg.FixturesPath)
		}
	}

	// No local sessions here: events only go out through the bridge.
	bridge, err := bootstrap.OpenBridge(ctx, cfg, nil, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = bridge.Close() }()
	dispatcher := delivery.NewDispatcher(bridge.Outbound, cfg.DeliveryQueueSize, logger, metrics)
	go func() { _ = dispatcher.Run(ctx) }()

	svc := messaging.NewService(messaging.Deps{
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

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(messagingrpc.LoggingInterceptor(logger)))
	messagingrpc.RegisterMessagingServer(grpcServer, &messagingrpc.Server{Core: svc, Logger: logger})
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down grpc server")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}()

	logger.Info("messaging-service starting", "addr", cfg.GRPCAddr, "env", cfg.Env, "storage", cfg.StorageDriver, "bridge", cfg.DeliveryBridge)
	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
