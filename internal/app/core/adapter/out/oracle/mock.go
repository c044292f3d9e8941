package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
)

const (
	// MockDecimals 開發網路假報價的精度
	MockDecimals uint8 = 8
	// MockInitialAnswer 2000 * 10^8
	MockInitialAnswer int64 = 200000000000
)

// MockAddress 假報價合約的固定地址
var MockAddress = common.BytesToAddress(crypto.Keccak256([]byte("MockV3Aggregator"))[12:])

// MockAggregator 可由測試任意設定匯率與精度的價格來源
type MockAggregator struct {
	mu       sync.RWMutex
	decimals uint8
	answer   *big.Int
	err      error
	reads    int
}

func NewMockAggregator(decimals uint8, initialAnswer *big.Int) *MockAggregator {
	return &MockAggregator{
		decimals: decimals,
		answer:   new(big.Int).Set(initialAnswer),
	}
}

// NewDefaultMockAggregator 1 ether = 2000 USD，8 位精度
func NewDefaultMockAggregator() *MockAggregator {
	return NewMockAggregator(MockDecimals, big.NewInt(MockInitialAnswer))
}

// UpdateAnswer 更新報價
func (m *MockAggregator) UpdateAnswer(answer *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answer = new(big.Int).Set(answer)
}

// SetDecimals 更新精度
func (m *MockAggregator) SetDecimals(decimals uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decimals = decimals
}

// Fail 之後的讀取都回傳錯誤，傳 nil 恢復
func (m *MockAggregator) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Reads 已被讀取的次數
func (m *MockAggregator) Reads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads
}

func (m *MockAggregator) Address() common.Address {
	return MockAddress
}

func (m *MockAggregator) CurrentRate(ctx context.Context) (domain.PriceReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err := ctx.Err(); err != nil {
		return domain.PriceReading{}, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	if m.err != nil {
		return domain.PriceReading{}, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, m.err)
	}
	return domain.NewPriceReading(m.answer, m.decimals), nil
}

var _ usecase.PriceFeed = (*MockAggregator)(nil)
