package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"quorum"
	"quorum/cluster"
	"quorum/config"
	"quorum/matchmaking"
	"quorum/room"
	"quorum/router"
	"quorum/runtime"
)

var addr string
var configPath string

func init() {
	flag.StringVar(&addr, "b", "", "The coordination gRPC binding address (overrides config)")
	flag.StringVar(&configPath, "c", "quorumd.yaml", "Path to the configuration file")
}

func main() {
	flag.Parse()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, os.Interrupt)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		zapLogger.Fatal("failed to load config", zap.Error(err))
	}
	if addr == "" {
		addr = cfg.Listen
	}

	var store quorum.StateStore
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = cluster.NewStore(client, zapLogger)
		zapLogger.Info("snapshot store enabled", zap.String("redis", cfg.Redis.Addr))
	}

	sys := runtime.NewSystem(runtime.Options{
		Logger:        zapLogger,
		IdleTimeout:   cfg.Runtime.IdleTimeout.Std(),
		SweepInterval: cfg.Runtime.SweepInterval.Std(),
		MailboxSize:   cfg.Runtime.MailboxSize,
	})

	room.Register(sys, store)
	matchmaking.Register(sys, room.NewService(sys), store, matchmaking.Settings{
		MinPlayersPerMatch:         cfg.Matchmaking.MinPlayersPerMatch,
		MaxPlayersPerMatch:         cfg.Matchmaking.MaxPlayersPerMatch,
		MaxLevelDifference:         cfg.Matchmaking.MaxLevelDifference,
		ExpandLevelDifferenceAfter: cfg.Matchmaking.ExpandLevelDifferenceAfter.Std(),
		RegionPriority:             cfg.Matchmaking.RegionPriority,
		RequestTimeout:             cfg.Matchmaking.RequestTimeout.Std(),
		MaxQueueSize:               cfg.Matchmaking.MaxQueueSize,
		MatchCheckInterval:         cfg.Matchmaking.MatchCheckInterval.Std(),
		CleanupInterval:            cfg.Matchmaking.CleanupInterval.Std(),
	})
	outbox := router.NewOutbox(0)
	router.Register(sys, outbox, router.Config{
		MaxQueueSize:     cfg.Router.MaxQueueSize,
		MaxRetryAttempts: cfg.Router.MaxRetryAttempts,
		HistorySize:      cfg.Router.HistorySize,
		MessageTTL:       cfg.Router.MessageTTL.Std(),
		DeliveryInterval: cfg.Router.DeliveryInterval.Std(),
		CleanupInterval:  cfg.Router.CleanupInterval.Std(),
		FailedThreshold:  cfg.Router.FailedThreshold,
	})

	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_recovery.UnaryServerInterceptor(),
			grpc_ctxtags.UnaryServerInterceptor(),
			grpc_zap.UnaryServerInterceptor(zapLogger),
		)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_recovery.StreamServerInterceptor(),
			grpc_ctxtags.StreamServerInterceptor(),
			grpc_zap.StreamServerInterceptor(zapLogger),
		)),
	}

	grpcServer := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("coordination server listen at %s", addr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal(err)
		}
	}()

	watchQuit := make(chan struct{})
	go watchHealth(sys, healthServer, watchQuit, zapLogger)

	<-sig

	close(watchQuit)
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sys.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("actor system did not drain cleanly", zap.Error(err))
	}
	log.Println("coordination server shutdown")
}

// watchHealth mirrors the engines' health reports into the standard gRPC
// health service.
func watchHealth(sys *runtime.System, hs *health.Server, quit <-chan struct{}, logger *zap.Logger) {
	mm := matchmaking.NewHandle(sys, "default")
	rt := router.NewHandle(sys, "default")
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			setStatus := func(service string, healthy bool, err error) {
				status := healthpb.HealthCheckResponse_SERVING
				if err != nil || !healthy {
					status = healthpb.HealthCheckResponse_NOT_SERVING
				}
				hs.SetServingStatus(service, status)
			}
			mmHealth, err := mm.GetHealthStatus(ctx)
			setStatus("quorum.Matchmaking", mmHealth.Healthy, err)
			if err == nil && !mmHealth.Healthy {
				logger.Warn("matchmaking unhealthy", zap.Strings("issues", mmHealth.Issues))
			}
			rtHealth, err := rt.GetHealthStatus(ctx)
			setStatus("quorum.MessageRouter", rtHealth.Healthy, err)
			if err == nil && !rtHealth.Healthy {
				logger.Warn("message router unhealthy", zap.Strings("issues", rtHealth.Issues))
			}
			cancel()
		}
	}
}
