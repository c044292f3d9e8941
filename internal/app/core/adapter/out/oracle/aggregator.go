package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
)

// Aggregator 透過 RPC 讀取鏈上 Chainlink 價格合約
type Aggregator struct {
	address      common.Address
	contract     *bind.BoundContract
	maxStaleness time.Duration
	now          func() time.Time

	// decimals 在合約上不會變，第一次成功讀取後快取
	mu       sync.Mutex
	decimals *uint8
}

// AggregatorOption 設定 Aggregator 的選項
type AggregatorOption func(*Aggregator)

// WithMaxStaleness 超過此時間未更新的報價視為不可用，0 表示不檢查
func WithMaxStaleness(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		a.maxStaleness = d
	}
}

// WithClock 測試用時鐘
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator 綁定指定地址的價格合約
//
// 參數:
//
//	address: 價格合約地址
//	caller: 唯讀呼叫介面 (*ethclient.Client 即可)
//	opts: 選項
func NewAggregator(address common.Address, caller bind.ContractCaller, opts ...AggregatorOption) (*Aggregator, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%w: price feed address not set", domain.ErrOracleUnavailable)
	}
	parsed, err := abi.JSON(strings.NewReader(AggregatorV3ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	a := &Aggregator{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, caller, nil, nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Aggregator) Address() common.Address {
	return a.address
}

// CurrentRate 讀取最新一輪報價
func (a *Aggregator) CurrentRate(ctx context.Context) (domain.PriceReading, error) {
	decimals, err := a.loadDecimals(ctx)
	if err != nil {
		return domain.PriceReading{}, err
	}

	var out []interface{}
	if err := a.contract.Call(&bind.CallOpts{Context: ctx}, &out, "latestRoundData"); err != nil {
		return domain.PriceReading{}, fmt.Errorf("%w: latestRoundData: %v", domain.ErrOracleUnavailable, err)
	}
	if len(out) != 5 {
		return domain.PriceReading{}, fmt.Errorf("%w: latestRoundData returned %d values", domain.ErrOracleUnavailable, len(out))
	}
	answer := abi.ConvertType(out[1], new(big.Int)).(*big.Int)
	updatedAt := abi.ConvertType(out[3], new(big.Int)).(*big.Int)

	if updatedAt.Sign() == 0 {
		return domain.PriceReading{}, fmt.Errorf("%w: round not complete", domain.ErrOracleUnavailable)
	}
	if a.maxStaleness > 0 {
		age := a.now().Sub(time.Unix(updatedAt.Int64(), 0))
		if age > a.maxStaleness {
			return domain.PriceReading{}, fmt.Errorf("%w: answer is %s old", domain.ErrOracleUnavailable, age.Truncate(time.Second))
		}
	}

	reading := domain.NewPriceReading(answer, decimals)
	if err := reading.Validate(); err != nil {
		return domain.PriceReading{}, err
	}
	return reading, nil
}

func (a *Aggregator) loadDecimals(ctx context.Context) (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decimals != nil {
		return *a.decimals, nil
	}

	var out []interface{}
	if err := a.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("%w: decimals: %v", domain.ErrOracleUnavailable, err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%w: decimals returned %d values", domain.ErrOracleUnavailable, len(out))
	}
	decimals := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	a.decimals = &decimals
	return decimals, nil
}

var _ usecase.PriceFeed = (*Aggregator)(nil)
