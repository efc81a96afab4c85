package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	schedulingv1 "github.com/Leganyst/detailer-scheduling/internal/api/scheduling/v1"
	"github.com/Leganyst/detailer-scheduling/internal/booking"
	"github.com/Leganyst/detailer-scheduling/internal/config"
	"github.com/Leganyst/detailer-scheduling/internal/db"
	"github.com/Leganyst/detailer-scheduling/internal/events"
	"github.com/Leganyst/detailer-scheduling/internal/httpapi"
	"github.com/Leganyst/detailer-scheduling/internal/locality"
	"github.com/Leganyst/detailer-scheduling/internal/logger"
	"github.com/Leganyst/detailer-scheduling/internal/matching"
	"github.com/Leganyst/detailer-scheduling/internal/model"
	"github.com/Leganyst/detailer-scheduling/internal/repository"
	"github.com/Leganyst/detailer-scheduling/internal/service"
)

func main() {
	// 1. Конфиг из env.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.IsProduction(), cfg.Log.Level)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("scheduling service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. БД и миграции.
	gormDB, err := db.NewGormDB(&cfg.DB)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := model.AutoMigrate(gormDB); err != nil {
		return err
	}

	// 3. Репозитории.
	detailerRepo := repository.NewGormDetailerRepository(gormDB)
	availabilityRepo := repository.NewGormAvailabilityRepository(gormDB)
	jobRepo := repository.NewGormJobRepository(gormDB)
	serviceTypeRepo := repository.NewGormServiceTypeRepository(gormDB)

	// 4. Алиасы городов и резолвер.
	aliases, err := locality.Load(cfg.Scheduling.AliasFile)
	if err != nil {
		return err
	}
	resolver := matching.NewResolver(detailerRepo, aliases, cfg.Scheduling.RadiusKm, zl.Named("matching"))

	// 5. Redis: поток событий и распределённый лок, если настроен.
	var (
		publisher events.Publisher = events.NopPublisher{}
		locker    booking.Locker   = booking.NewKeyedLocker()
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Warn("redis ping failed, events may be lost", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		publisher = events.NewRedisStreamPublisher(rdb, cfg.Redis.Stream, cfg.Redis.MaxLen, zl.Named("events"))
		if cfg.Scheduling.LockBackend == "redis" {
			locker = booking.NewRedisLocker(rdb, cfg.Scheduling.LockTTL)
		}
	}

	// 6. Сервис.
	svc, err := service.NewSchedulingService(
		resolver,
		availabilityRepo,
		jobRepo,
		serviceTypeRepo,
		locker,
		publisher,
		service.Options{
			TravelBuffer:  cfg.Scheduling.TravelBuffer(),
			BusinessStart: cfg.Scheduling.BusinessStart,
			BusinessEnd:   cfg.Scheduling.BusinessEnd,
		},
		zl.Named("scheduling"),
	)
	if err != nil {
		return err
	}

	// 7. gRPC и HTTP.
	grpcServer := grpc.NewServer()
	schedulingv1.RegisterSchedulingServiceServer(grpcServer, service.NewSchedulingServer(svc, zl.Named("grpc")))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: httpapi.NewRouter(svc, httpapi.Options{
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
		}, zl.Named("http")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		zl.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 8. Грейсфул-шатдаун по сигналу или падению одного из серверов.
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
