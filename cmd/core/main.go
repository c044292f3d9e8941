package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/out/filejournal"
	kafka_adapter "github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/out/kafka"
	memory_adapter "github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-fund/internal/config"
	"github.com/JoeShih716/go-mem-fund/internal/network"
	"github.com/JoeShih716/go-mem-fund/pkg/logger"
	"github.com/JoeShih716/go-mem-fund/pkg/mysql"
	"github.com/JoeShih716/go-mem-fund/pkg/wal"
)

func main() {
	// 1. 載入設定
	cfg, err := config.Load("")
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err))
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 擁有者與外部依賴 (價格來源、收款、撥款)
	owner, err := cfg.ResolveOwner()
	if err != nil {
		log.Fatal("Failed to resolve ledger owner", zap.Error(err))
	}
	deps, err := network.Select(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to select network", zap.Error(err))
	}
	defer deps.Close()

	minimum, err := cfg.MinimumReference()
	if err != nil {
		log.Fatal("Invalid minimum contribution", zap.Error(err))
	}
	opts := memory_adapter.Options{
		Owner:            owner,
		PriceFeed:        deps.PriceFeed,
		Collector:        deps.Collector,
		Payout:           deps.Payout,
		MinimumReference: minimum,
	}

	// 3. 帳本引擎
	var usedLedger usecase.Ledger
	switch cfg.Ledger.Engine {
	case config.EngineMutex:
		mutexLedger, err := memory_adapter.NewMutexLedger(opts)
		if err != nil {
			log.Fatal("Failed to init MutexLedger", zap.Error(err))
		}
		usedLedger = mutexLedger
	case config.EngineLMAX:
		lmaxLedger, err := memory_adapter.NewLMAXLedger(opts)
		if err != nil {
			log.Fatal("Failed to init LMAXLedger", zap.Error(err))
		}
		// ctx 取消後 run loop 處理完剩餘請求才停止
		lmaxLedger.Start(ctx)
		usedLedger = lmaxLedger
	default:
		log.Fatal("Invalid ledger engine", zap.String("engine", cfg.Ledger.Engine))
	}
	log.Info("Ledger ready",
		zap.String("engine", cfg.Ledger.Engine),
		zap.String("owner", owner.Hex()),
		zap.String("price_feed", deps.PriceFeed.Address().Hex()),
		zap.String("minimum_usd", cfg.Ledger.MinimumUSD))

	// 4. 稽核日誌與事件發布
	var closers []io.Closer
	coreOpts := []usecase.Option{usecase.WithLogger(log)}

	journal, closer, err := openJournal(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open journal", zap.String("driver", cfg.Journal.Driver), zap.Error(err))
	}
	if journal != nil {
		coreOpts = append(coreOpts, usecase.WithJournal(journal))
		closers = append(closers, closer)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka_adapter.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		coreOpts = append(coreOpts, usecase.WithPublisher(publisher))
		closers = append(closers, publisher)
		log.Info("Kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// 5. 初始化 UseCase
	coreUseCase := usecase.NewCoreUseCase(usedLedger, coreOpts...)

	// 6. 指標
	metrics := grpc_adapter.NewMetrics()
	metrics.Registry().MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fundledger_sink_failures",
		Help: "Journal and publisher failures since start",
	}, func() float64 {
		return float64(coreUseCase.SinkFailures())
	}))
	metricsServer := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Starting metrics server", zap.String("addr", cfg.Server.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// 7. 啟動 gRPC Server (Driving Adapter)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", cfg.Server.GRPCAddr), zap.Error(err))
	}
	s := grpc.NewServer(grpc.UnaryInterceptor(metrics.UnaryInterceptor()))
	auth := grpc_adapter.NewAuthenticator(cfg.Server.AuthMaxSkew)
	grpc_adapter.RegisterFundLedgerServer(s, grpc_adapter.NewGrpcServer(coreUseCase, auth, log))

	go func() {
		log.Info("Starting gRPC server", zap.String("addr", cfg.Server.GRPCAddr))
		if err := s.Serve(lis); err != nil {
			log.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	s.GracefulStop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown", zap.Error(err))
	}
	cancel()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn("close sink", zap.Error(err))
		}
	}
	log.Info("Server exited")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openJournal 依 journal.driver 建立稽核日誌，driver 為 none 時回傳 nil
func openJournal(ctx context.Context, cfg *config.Config, log *zap.Logger) (usecase.Journal, io.Closer, error) {
	switch cfg.Journal.Driver {
	case config.JournalWAL:
		walFile, err := wal.NewWAL(cfg.Journal.WALPath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Journal: WAL", zap.String("path", walFile.Path()))
		return filejournal.NewJournal(walFile), walFile, nil
	case config.JournalMySQL:
		dbClient, err := mysql.NewClient(cfg.MySQL, log)
		if err != nil {
			return nil, nil, err
		}
		journal, err := mysql_adapter.NewJournal(dbClient)
		if err != nil {
			dbClient.Close()
			return nil, nil, err
		}
		log.Info("Journal: MySQL", zap.String("host", cfg.MySQL.Host), zap.String("db", cfg.MySQL.DBName))
		return journal, dbClient, nil
	case config.JournalPostgres:
		journal, err := postgres_adapter.NewJournal(ctx, cfg.Journal.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Journal: Postgres")
		return journal, closerFunc(func() error {
			journal.Close()
			return nil
		}), nil
	default:
		return nil, nil, nil
	}
}
