package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
)

// Wallets 開發網路與測試用的模擬錢包
//
// 出資時從出資者扣款轉入託管，撥款時從託管轉出，總額守恆
type Wallets struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	custody  *big.Int
}

func NewWallets() *Wallets {
	return &Wallets{
		balances: make(map[common.Address]*big.Int),
		custody:  new(big.Int),
	}
}

// Credit 直接增加餘額 (建立初始狀態用)
func (w *Wallets) Credit(addr common.Address, amount *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.add(addr, amount)
}

// BalanceOf 取得餘額複本
func (w *Wallets) BalanceOf(addr common.Address) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	balance, ok := w.balances[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(balance)
}

// Custody 託管帳戶目前餘額
func (w *Wallets) Custody() *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.custody)
}

// Collect 從出資者扣款轉入託管，餘額不足時不做任何變動
func (w *Wallets) Collect(ctx context.Context, deposit domain.Deposit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deposit.Amount == nil || deposit.Amount.Sign() < 0 {
		return errors.New("deposit amount must be non-negative")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	balance, ok := w.balances[deposit.From]
	if !ok || balance.Cmp(deposit.Amount) < 0 {
		return fmt.Errorf("%w: %s has insufficient balance", domain.ErrDepositNotReceived, deposit.From.Hex())
	}
	balance.Sub(balance, deposit.Amount)
	w.custody.Add(w.custody, deposit.Amount)
	return nil
}

// Transfer 從託管撥款，立即確認
func (w *Wallets) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return errors.New("transfer amount must be non-negative")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.custody.Cmp(amount) < 0 {
		return fmt.Errorf("custody balance %s below transfer %s", w.custody, amount)
	}
	w.custody.Sub(w.custody, amount)
	w.add(to, amount)
	return nil
}

func (w *Wallets) add(addr common.Address, amount *big.Int) {
	balance, ok := w.balances[addr]
	if !ok {
		balance = new(big.Int)
		w.balances[addr] = balance
	}
	balance.Add(balance, amount)
}

var (
	_ usecase.Payout    = (*Wallets)(nil)
	_ usecase.Collector = (*Wallets)(nil)
)
