package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	grpc_adapter "github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/out/payout"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/config"
	grpcpool "github.com/JoeShih716/go-mem-fund/pkg/grpc"
	"github.com/JoeShih716/go-mem-fund/pkg/logger"
)

// 以部署者身分 (CHAIN_PRIVATE_KEY 簽章) 提領資金池
func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		zap.NewExample().Error("Failed to load config", zap.Error(err))
		return err
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		zap.NewExample().Error("Failed to build logger", zap.Error(err))
		return err
	}
	defer log.Sync()

	key, err := payout.ParsePrivateKey(cfg.Chain.PrivateKey)
	if err != nil {
		log.Error("Failed to load CHAIN_PRIVATE_KEY", zap.Error(err))
		return err
	}
	signer := grpc_adapter.NewSigner(key)

	pool := grpcpool.NewPool(grpcpool.WithInterceptor(grpcpool.LoggingInterceptor(log)))
	defer pool.Close()
	conn, err := pool.GetConnection(cfg.Server.Target)
	if err != nil {
		log.Error("Failed to connect", zap.String("target", cfg.Server.Target), zap.Error(err))
		return err
	}
	client := grpc_adapter.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Chain.ReceiptTimeout+30*time.Second)
	defer cancel()

	log.Info("Withdraw...", zap.String("deployer", signer.Address().Hex()), zap.String("target", cfg.Server.Target))
	receipt, err := client.Withdraw(ctx, signer)
	if err != nil {
		log.Error("Withdraw failed", zap.Error(err))
		return err
	}
	log.Info("Withdraw done.",
		zap.String("amount_eth", domain.FormatEther(receipt.Withdrawn)),
		zap.Int("funders", receipt.Funders),
		zap.String("event_id", receipt.EventID))
	return nil
}
