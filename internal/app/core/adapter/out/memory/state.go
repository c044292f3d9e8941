package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
)

// DefaultMinimumReference 預設最低出資門檻：50 單位參考幣 (18 位精度)
var DefaultMinimumReference = new(big.Int).Mul(big.NewInt(50), big.NewInt(1e18))

// Options 帳本建立參數，建立後不可變更
type Options struct {
	Owner     common.Address
	PriceFeed usecase.PriceFeed
	// Collector 入帳前確認款項已轉入託管
	Collector usecase.Collector
	Payout    usecase.Payout
	// MinimumReference 最低參考幣值，與 PriceReading.ToReference 同精度；nil 使用預設值
	MinimumReference *big.Int
}

// fundState 兩種帳本引擎共用的狀態與規則，本身不做同步，由呼叫端保證一次只有一個操作
type fundState struct {
	owner     common.Address
	priceFeed usecase.PriceFeed
	collector usecase.Collector
	payout    usecase.Payout
	minimum   *big.Int

	// withdrawPending 撥款已送出但未確認，資金池凍結到確認或失敗為止
	withdrawPending bool

	pool          *big.Int
	contributions map[common.Address]*big.Int
	funders       []common.Address
	sequence      uint64
}

func newFundState(opts Options) (*fundState, error) {
	if opts.Owner == (common.Address{}) {
		return nil, errors.New("ledger owner is required")
	}
	if opts.PriceFeed == nil {
		return nil, errors.New("price feed is required")
	}
	if opts.Collector == nil {
		return nil, errors.New("deposit collector is required")
	}
	if opts.Payout == nil {
		return nil, errors.New("payout is required")
	}
	minimum := DefaultMinimumReference
	if opts.MinimumReference != nil {
		if opts.MinimumReference.Sign() < 0 {
			return nil, errors.New("minimum contribution must be non-negative")
		}
		minimum = opts.MinimumReference
	}
	return &fundState{
		owner:         opts.Owner,
		priceFeed:     opts.PriceFeed,
		collector:     opts.Collector,
		payout:        opts.Payout,
		minimum:       new(big.Int).Set(minimum),
		pool:          new(big.Int),
		contributions: make(map[common.Address]*big.Int),
		funders:       make([]common.Address, 0),
	}, nil
}

// fund 讀取匯率、檢查門檻、確認款項轉入託管，全部通過後才入帳；任何失敗都不改變狀態
func (s *fundState) fund(ctx context.Context, deposit domain.Deposit) (*domain.Event, error) {
	caller, amount := deposit.From, deposit.Amount
	if caller == (common.Address{}) {
		return nil, domain.ErrInvalidCaller
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if s.withdrawPending {
		return nil, domain.ErrWithdrawalPending
	}

	reading, err := s.priceFeed.CurrentRate(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrOracleUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	if err := reading.Validate(); err != nil {
		return nil, err
	}

	reference := reading.ToReference(amount)
	// 零金額一律拒絕，出資者清單裡只會有正數出資
	if amount.Sign() == 0 || reference.Cmp(s.minimum) < 0 {
		return nil, domain.ErrInsufficientContribution
	}

	if err := s.collector.Collect(ctx, deposit); err != nil {
		if errors.Is(err, domain.ErrDepositNotReceived) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDepositNotReceived, err)
	}

	current, ok := s.contributions[caller]
	if !ok {
		current = new(big.Int)
		s.contributions[caller] = current
		s.funders = append(s.funders, caller)
	}
	current.Add(current, amount)
	s.pool.Add(s.pool, amount)

	s.sequence++
	return domain.NewFundEvent(s.sequence, deposit, reference, current), nil
}

// withdraw 先驗證擁有者，轉帳確認後才清空帳冊
//
// 撥款回傳 domain.ErrTransferPending 時帳冊保留並凍結出資，下次提領由撥款端確認同一筆交易
func (s *fundState) withdraw(ctx context.Context, caller common.Address) (*domain.Event, error) {
	if caller != s.owner {
		return nil, domain.ErrNotOwner
	}

	total := new(big.Int).Set(s.pool)
	if total.Sign() > 0 {
		if err := s.payout.Transfer(ctx, s.owner, total); err != nil {
			s.withdrawPending = errors.Is(err, domain.ErrTransferPending)
			return nil, fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
		}
	}
	s.withdrawPending = false

	funders := len(s.funders)
	s.pool = new(big.Int)
	s.contributions = make(map[common.Address]*big.Int)
	s.funders = make([]common.Address, 0)

	s.sequence++
	return domain.NewWithdrawEvent(s.sequence, s.owner, total, funders), nil
}

func (s *fundState) amountFunded(funder common.Address) *big.Int {
	amount, ok := s.contributions[funder]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(amount)
}

func (s *fundState) funderAt(index int) (common.Address, error) {
	if index < 0 || index >= len(s.funders) {
		return common.Address{}, domain.ErrIndexOutOfRange
	}
	return s.funders[index], nil
}

func (s *fundState) funderList() []common.Address {
	out := make([]common.Address, len(s.funders))
	copy(out, s.funders)
	return out
}

func (s *fundState) poolBalance() *big.Int {
	return new(big.Int).Set(s.pool)
}
