package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
)

// MutexLedger 是一個使用 Mutex 實現的資金池帳本
//
// 結構:
//
//	state: 帳本狀態 (資金池、出資紀錄、出資者清單)
//	mu: 寫入操作持有寫鎖，涵蓋匯率讀取到入帳、授權檢查到清空的整段流程
type MutexLedger struct {
	state *fundState
	mu    sync.RWMutex
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	opts: 擁有者、價格來源、收款與撥款方式、最低門檻
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 參數錯誤
func NewMutexLedger(opts Options) (*MutexLedger, error) {
	state, err := newFundState(opts)
	if err != nil {
		return nil, err
	}
	return &MutexLedger{state: state}, nil
}

// Fund 出資 (Level 1: Mutex Lock)
//
// 參數:
//
//	ctx: 上下文，傳給價格來源與 Collector
//	deposit: 出資者、金額 (wei) 與鏈上交易
//
// 回傳:
//
//	*domain.Event: 出資事件，TotalFunded 為入帳後的累計金額
//	error: domain.ErrInsufficientContribution / domain.ErrDepositNotReceived 等
func (m *MutexLedger) Fund(ctx context.Context, deposit domain.Deposit) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.fund(ctx, deposit)
}

// Withdraw 擁有者提領全部資金
//
// 參數:
//
//	ctx: 上下文，傳給撥款
//	caller: 呼叫者，必須是擁有者
//
// 回傳:
//
//	*domain.Event: 提領事件
//	error: domain.ErrNotOwner / domain.ErrTransferFailed
func (m *MutexLedger) Withdraw(ctx context.Context, caller common.Address) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.withdraw(ctx, caller)
}

// AmountFunded 取得累計出資
func (m *MutexLedger) AmountFunded(ctx context.Context, funder common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.amountFunded(funder), nil
}

// FunderAt 依首次出資順序取得出資者
func (m *MutexLedger) FunderAt(ctx context.Context, index int) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.funderAt(index)
}

// Funders 出資者清單複本
func (m *MutexLedger) Funders(ctx context.Context) ([]common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.funderList(), nil
}

// PoolBalance 資金池總額
func (m *MutexLedger) PoolBalance(ctx context.Context) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.poolBalance(), nil
}

// Owner 建立後不變，不需要鎖
func (m *MutexLedger) Owner() common.Address {
	return m.state.owner
}

func (m *MutexLedger) PriceFeedAddress() common.Address {
	return m.state.priceFeed.Address()
}

var _ usecase.Ledger = (*MutexLedger)(nil)
