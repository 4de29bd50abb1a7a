package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-settlement/internal/adapter/handler"
	"github.com/rl1809/stock-settlement/internal/adapter/queue"
	"github.com/rl1809/stock-settlement/internal/adapter/storage"
	"github.com/rl1809/stock-settlement/internal/config"
	"github.com/rl1809/stock-settlement/internal/core/service"
)

func main() {
	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.PrettyLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	log.Info().Msg("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("connected to redis")

	// Kafka
	workWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.WorkTopic,
		Balancer: &kafka.Hash{},
	}
	eventWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.NotificationTopic,
		Balancer: &kafka.Hash{},
	}

	// Adapters
	ledger := storage.NewMySQLLedger(db)
	orders := storage.NewMySQLOrderStore(db)
	guard := storage.NewRedisGuard(rdb, cfg.GuardTTL)
	enqueuer := queue.NewEnqueuer(workWriter)
	events := queue.NewEventEmitter(eventWriter)

	// Services
	comp := service.NewCompensationService(orders, ledger, cfg.RestoreWarehouseID)
	settlement := service.NewSettlementService(ledger, orders, comp, guard, events)
	intake := service.NewIntakeService(orders, enqueuer)
	sweeper := service.NewSweeper(orders, comp, cfg.SweepInterval, cfg.SweepWindow)

	// Settlement consumers: one reader per worker, all in the same group,
	// so Kafka spreads partitions (and therefore orders) across them.
	consumers := make([]*queue.Consumer, cfg.WorkerCount)
	for i := range consumers {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.ConsumerGroup,
			Topic:    cfg.WorkTopic,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
		consumers[i] = queue.NewConsumer(reader, settlement)
		consumers[i].Start(ctx)
	}
	log.Info().Int("workers", cfg.WorkerCount).Msg("settlement consumers started")

	sweeper.Start(ctx)

	// HTTP server
	httpHandler := handler.NewHTTPHandler(intake)
	mux := http.NewServeMux()
	httpHandler.RegisterRoutes(mux)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	// gRPC health endpoint for probe infrastructure.
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, health.NewServer())
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen for grpc")
	}
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc health server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("http server stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("grpc server stopped")

	cancel()
	for _, c := range consumers {
		c.Stop()
	}
	sweeper.Stop()
	log.Info().Msg("workers stopped")

	workWriter.Close()
	eventWriter.Close()
	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}
