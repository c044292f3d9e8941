package network

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/out/oracle"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/out/payout"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-fund/internal/config"
)

// Backend 價格合約讀取、出資確認與託管轉帳共用的 RPC 連線
type Backend interface {
	bind.ContractCaller
	payout.Backend
	payout.DepositBackend
	Close()
}

// Dialer 建立 RPC 連線
type Dialer func(ctx context.Context, rawURL string) (Backend, error)

// Selection 依目前鏈選出的外部依賴
type Selection struct {
	PriceFeed   usecase.PriceFeed
	Collector   usecase.Collector
	Payout      usecase.Payout
	Development bool

	// 本地鏈才有
	Mock    *oracle.MockAggregator
	Wallets *memory.Wallets

	backend Backend
}

// Close 關閉 RPC 連線 (若有)
func (s *Selection) Close() {
	if s.backend != nil {
		s.backend.Close()
	}
}

type options struct {
	dial Dialer
}

type Option func(*options)

// WithDialer 替換 RPC 連線方式
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dial = d
	}
}

func dialEthereum(ctx context.Context, rawURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Select 本地開發鏈部署模擬價格來源與預存餘額的記憶體錢包，其他鏈連線 RPC 綁定設定的價格合約
//
// 參數:
//
//	ctx: context.Context - 連線用
//	cfg: *config.Config - 設定
//	logger: *zap.Logger - logger
//
// 回傳值:
//
//	*Selection: 價格來源與轉帳實作
//	error: 未知的 chain id、缺少 RPC 設定或連線失敗
func Select(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Selection, error) {
	o := options{dial: dialEthereum}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.IsDevelopment() {
		answer, err := cfg.MockInitialAnswer()
		if err != nil {
			return nil, err
		}
		prefund, err := cfg.MockPrefund()
		if err != nil {
			return nil, err
		}
		logger.Info("Local network detected. Deploying mocks",
			zap.String("network", cfg.Chain.Network),
			zap.Uint8("decimals", cfg.MockDecimals()),
			zap.String("initial_answer", answer.String()))
		mock := oracle.NewMockAggregator(cfg.MockDecimals(), answer)
		wallets := memory.NewWallets()
		for _, account := range cfg.Mock.PrefundedAccounts {
			wallets.Credit(common.HexToAddress(account), prefund)
		}
		logger.Info("Mocks deployed",
			zap.String("price_feed", mock.Address().Hex()),
			zap.Int("prefunded_accounts", len(cfg.Mock.PrefundedAccounts)),
			zap.String("prefund_eth", domain.FormatEther(prefund)))
		return &Selection{
			PriceFeed:   mock,
			Collector:   wallets,
			Payout:      wallets,
			Development: true,
			Mock:        mock,
			Wallets:     wallets,
		}, nil
	}

	network, ok := cfg.Networks[cfg.Chain.ChainID]
	if !ok {
		return nil, fmt.Errorf("unknown chain id %d (network %q)", cfg.Chain.ChainID, cfg.Chain.Network)
	}
	if cfg.Chain.RPCURL == "" {
		return nil, errors.New("chain.rpc_url is required for non-development networks")
	}

	backend, err := o.dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", network.Name, err)
	}

	feedAddress := common.HexToAddress(network.EthUsdPriceFeed)
	feed, err := oracle.NewAggregator(feedAddress, backend, oracle.WithMaxStaleness(cfg.Oracle.MaxStaleness))
	if err != nil {
		backend.Close()
		return nil, err
	}
	transfer, err := payout.NewEthPayout(backend, payout.Config{
		PrivateKeyHex:  cfg.Chain.PrivateKey,
		ChainID:        big.NewInt(cfg.Chain.ChainID),
		ReceiptTimeout: cfg.Chain.ReceiptTimeout,
	}, logger)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("build payout: %w", err)
	}
	collector, err := payout.NewEthCollector(backend, transfer.From(), big.NewInt(cfg.Chain.ChainID), logger)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("build deposit collector: %w", err)
	}

	logger.Info("Connected to network",
		zap.String("network", network.Name),
		zap.Int64("chain_id", cfg.Chain.ChainID),
		zap.String("price_feed", feedAddress.Hex()),
		zap.String("custody", transfer.From().Hex()))
	return &Selection{
		PriceFeed: feed,
		Collector: collector,
		Payout:    transfer,
		backend:   backend,
	}, nil
}
