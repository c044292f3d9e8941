package usecase

import (
	"context"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
)

// CoreUseCase 是核心業務邏輯層
//
// 帳本變動成功後寫入稽核日誌並發布事件；這兩者失敗只記錄，不影響已提交的帳本狀態
type CoreUseCase struct {
	ledger    Ledger
	journal   Journal
	publisher EventPublisher
	logger    *zap.Logger

	sinkFailures atomic.Int64
}

// Option 設定 CoreUseCase 的選項
type Option func(*CoreUseCase)

// WithJournal 設定稽核日誌
func WithJournal(j Journal) Option {
	return func(c *CoreUseCase) {
		c.journal = j
	}
}

// WithPublisher 設定事件發布者
func WithPublisher(p EventPublisher) Option {
	return func(c *CoreUseCase) {
		c.publisher = p
	}
}

// WithLogger 設定 logger
func WithLogger(l *zap.Logger) Option {
	return func(c *CoreUseCase) {
		c.logger = l
	}
}

func NewCoreUseCase(ledger Ledger, opts ...Option) *CoreUseCase {
	c := &CoreUseCase{
		ledger: ledger,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fund 處理出資
func (c *CoreUseCase) Fund(ctx context.Context, deposit domain.Deposit) (*domain.Event, error) {
	event, err := c.ledger.Fund(ctx, deposit)
	if err != nil {
		c.logger.Info("fund rejected",
			zap.String("funder", deposit.From.Hex()),
			zap.String("amount_eth", domain.FormatEther(deposit.Amount)),
			zap.Error(err))
		return nil, err
	}
	c.logger.Info("fund accepted",
		zap.String("funder", deposit.From.Hex()),
		zap.String("amount_eth", domain.FormatEther(event.Amount)),
		zap.String("usd", domain.FormatEther(event.ReferenceValue)),
		zap.Uint64("sequence", event.Sequence))
	c.record(ctx, event)
	return event, nil
}

// Withdraw 處理擁有者提領
func (c *CoreUseCase) Withdraw(ctx context.Context, caller common.Address) (*domain.Event, error) {
	event, err := c.ledger.Withdraw(ctx, caller)
	if err != nil {
		c.logger.Warn("withdraw failed", zap.String("caller", caller.Hex()), zap.Error(err))
		return nil, err
	}
	c.logger.Info("withdraw completed",
		zap.String("owner", event.Account.Hex()),
		zap.String("amount_eth", domain.FormatEther(event.Amount)),
		zap.Int("funders", event.Funders),
		zap.Uint64("sequence", event.Sequence))
	c.record(ctx, event)
	return event, nil
}

// AmountFunded 取得累計出資
func (c *CoreUseCase) AmountFunded(ctx context.Context, funder common.Address) (*big.Int, error) {
	return c.ledger.AmountFunded(ctx, funder)
}

// FunderAt 依索引取得出資者
func (c *CoreUseCase) FunderAt(ctx context.Context, index int) (common.Address, error) {
	return c.ledger.FunderAt(ctx, index)
}

// PoolBalance 資金池總額
func (c *CoreUseCase) PoolBalance(ctx context.Context) (*big.Int, error) {
	return c.ledger.PoolBalance(ctx)
}

func (c *CoreUseCase) Owner() common.Address {
	return c.ledger.Owner()
}

func (c *CoreUseCase) PriceFeedAddress() common.Address {
	return c.ledger.PriceFeedAddress()
}

// SinkFailures 稽核日誌或事件發布失敗的累計次數
func (c *CoreUseCase) SinkFailures() int64 {
	return c.sinkFailures.Load()
}

func (c *CoreUseCase) record(ctx context.Context, event *domain.Event) {
	if c.journal != nil {
		if err := c.journal.Append(ctx, event); err != nil {
			c.sinkFailures.Add(1)
			c.logger.Error("journal append failed",
				zap.String("event_id", event.ID.String()),
				zap.Stringer("type", event.Type),
				zap.Error(err))
		}
	}
	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, event); err != nil {
			c.sinkFailures.Add(1)
			c.logger.Error("event publish failed",
				zap.String("event_id", event.ID.String()),
				zap.Stringer("type", event.Type),
				zap.Error(err))
		}
	}
}
