package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/import-export/internal/adapter/events"
	"github.com/rl1809/import-export/internal/adapter/handler"
	"github.com/rl1809/import-export/internal/adapter/storage"
	"github.com/rl1809/import-export/internal/config"
	"github.com/rl1809/import-export/internal/core/service"
	"github.com/rl1809/import-export/internal/logger"
	"github.com/rl1809/import-export/internal/port"
	"github.com/rl1809/import-export/internal/secrets"
)

func main() {
	cfg := config.Load()
	log := logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize catalog store
	repo, closeRepo, err := openCatalog(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open catalog store", zap.Error(err))
	}
	defer closeRepo()

	// Initialize Redis (optional)
	var idempotency port.IdempotencyRepository
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
			PoolSize: 100,
		})
		defer rdb.Close()

		redisAdapter := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		if err := redisAdapter.Ping(ctx); err != nil {
			log.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		idempotency = redisAdapter
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	// Initialize NATS (optional)
	var publisher port.EventPublisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name(cfg.ServiceName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Fatal("failed to connect nats", zap.String("url", cfg.NATSURL), zap.Error(err))
		}
		defer nc.Drain()

		publisher = events.NewNATSPublisher(nc, cfg.EventSubjectPrefix, cfg.ServiceName, log)
		log.Info("connected to nats", zap.String("url", cfg.NATSURL))
	}

	// Initialize services
	catalog := service.NewCatalogService(repo, publisher, log)
	transfers := service.NewTransferService(repo, idempotency, publisher, log, cfg.ReplenishOnTransferDelete)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(handler.UnaryLogger(log)))
	handler.RegisterTransferServer(grpcServer, handler.NewGRPCHandler(transfers))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.TransferServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		log.Fatal("failed to listen", zap.Int("port", cfg.GRPCPort), zap.Error(err))
	}

	go func() {
		log.Info("gRPC server listening", zap.Int("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(catalog, transfers, cfg.LatestLimit, log)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.NewRouter(httpHandler, log, cfg.RequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")
}

// openCatalog returns the configured repository and its cleanup.
func openCatalog(ctx context.Context, cfg *config.Config, log *zap.Logger) (port.CatalogRepository, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn("using in-memory catalog store; data is lost on restart")
		return storage.NewMemoryAdapter(), func() {}, nil
	}

	dsn := cfg.MySQLDSN
	if cfg.MySQLDSNSecret != "" {
		provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, nil, err
		}
		if dsn, err = secrets.ResolveMySQLDSN(ctx, provider, cfg.MySQLDSNSecret); err != nil {
			return nil, nil, err
		}
		log.Info("resolved mysql dsn from secrets manager", zap.String("secret", cfg.MySQLDSNSecret))
	}

	db, err := storage.OpenMySQL(ctx, dsn, storage.PoolConfig{
		MaxOpenConns:    cfg.MySQLMaxOpenConns,
		MaxIdleConns:    cfg.MySQLMaxIdleConns,
		ConnMaxLifetime: cfg.MySQLConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("connected to mysql")

	return storage.NewMySQLAdapter(db), func() { closeDB(db, log) }, nil
}

func closeDB(db *sql.DB, log *zap.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("mysql close failed", zap.Error(err))
	}
}
