package memory

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
)

// ledgerRequest 請求包裝，讓呼叫端可以等待 run loop 執行完畢
type ledgerRequest struct {
	apply func(state *fundState)
	done  chan struct{}
}

// LMAXLedger 單一寫入者帳本：所有操作 (含查詢) 都排進輸送帶，由 run loop 逐一執行
type LMAXLedger struct {
	state *fundState
	// 輸送帶 負責接收請求
	requestChan chan *ledgerRequest
	// Start 呼叫後為 true
	started atomic.Bool
	// run loop 結束後關閉
	stopped chan struct{}
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	owner       common.Address
	feedAddress common.Address
}

// NewLMAXLedger 建立一個新的 LMAXLedger 實例，需呼叫 Start 後才會處理請求
//
// 參數:
//
//	opts: 擁有者、價格來源、收款與撥款方式、最低門檻
//
// 回傳:
//
//	*LMAXLedger: LMAXLedger 實例
//	error: 參數錯誤
func NewLMAXLedger(opts Options) (*LMAXLedger, error) {
	state, err := newFundState(opts)
	if err != nil {
		return nil, err
	}
	return &LMAXLedger{
		state:       state,
		requestChan: make(chan *ledgerRequest, 1000), // Buffer 1000
		stopped:     make(chan struct{}),
		requestPool: sync.Pool{
			New: func() interface{} {
				return &ledgerRequest{
					done: make(chan struct{}, 1),
				}
			},
		},
		owner:       state.owner,
		feedAddress: opts.PriceFeed.Address(),
	}, nil
}

// Start 啟動核心引擎 (非同步)，ctx 取消後處理完剩餘請求即停止；重複呼叫無作用
func (l *LMAXLedger) Start(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go l.run(ctx)
}

func (l *LMAXLedger) run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的請求處理完
			l.drain()
			return
		case req := <-l.requestChan:
			l.process(req)
		}
	}
}

func (l *LMAXLedger) drain() {
	for {
		select {
		case req := <-l.requestChan:
			l.process(req)
		default:
			return
		}
	}
}

func (l *LMAXLedger) process(req *ledgerRequest) {
	req.apply(l.state)
	req.done <- struct{}{}
}

// submit 放入輸送帶並等待執行完成
//
// PUT(等待) -> Channel -> Run Loop (核心) -> apply -> done -> 回傳
//
// 尚未 Start 的帳本沒有 run loop，直接回傳 domain.ErrLedgerStopped
func (l *LMAXLedger) submit(ctx context.Context, apply func(state *fundState)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.started.Load() {
		return domain.ErrLedgerStopped
	}
	req := l.requestPool.Get().(*ledgerRequest)
	req.apply = apply
	select {
	case <-req.done:
	default:
	}

	select {
	case l.requestChan <- req:
	case <-l.stopped:
		l.requestPool.Put(req)
		return domain.ErrLedgerStopped
	case <-ctx.Done():
		l.requestPool.Put(req)
		return ctx.Err()
	}

	// 已進入輸送帶的請求必定整筆執行，不因 ctx 取消而中途放棄等待
	select {
	case <-req.done:
		req.apply = nil
		l.requestPool.Put(req)
		return nil
	case <-l.stopped:
		// loop 已結束但請求可能剛好在 drain 之後送入，不放回 Pool
		select {
		case <-req.done:
			return nil
		default:
			return domain.ErrLedgerStopped
		}
	}
}

func (l *LMAXLedger) Fund(ctx context.Context, deposit domain.Deposit) (*domain.Event, error) {
	var (
		event *domain.Event
		err   error
	)
	if subErr := l.submit(ctx, func(s *fundState) {
		event, err = s.fund(ctx, deposit)
	}); subErr != nil {
		return nil, subErr
	}
	return event, err
}

func (l *LMAXLedger) Withdraw(ctx context.Context, caller common.Address) (*domain.Event, error) {
	var (
		event *domain.Event
		err   error
	)
	if subErr := l.submit(ctx, func(s *fundState) {
		event, err = s.withdraw(ctx, caller)
	}); subErr != nil {
		return nil, subErr
	}
	return event, err
}

func (l *LMAXLedger) AmountFunded(ctx context.Context, funder common.Address) (*big.Int, error) {
	var amount *big.Int
	if err := l.submit(ctx, func(s *fundState) {
		amount = s.amountFunded(funder)
	}); err != nil {
		return nil, err
	}
	return amount, nil
}

func (l *LMAXLedger) FunderAt(ctx context.Context, index int) (common.Address, error) {
	var (
		funder common.Address
		err    error
	)
	if subErr := l.submit(ctx, func(s *fundState) {
		funder, err = s.funderAt(index)
	}); subErr != nil {
		return common.Address{}, subErr
	}
	return funder, err
}

func (l *LMAXLedger) Funders(ctx context.Context) ([]common.Address, error) {
	var funders []common.Address
	if err := l.submit(ctx, func(s *fundState) {
		funders = s.funderList()
	}); err != nil {
		return nil, err
	}
	return funders, nil
}

func (l *LMAXLedger) PoolBalance(ctx context.Context) (*big.Int, error) {
	var pool *big.Int
	if err := l.submit(ctx, func(s *fundState) {
		pool = s.poolBalance()
	}); err != nil {
		return nil, err
	}
	return pool, nil
}

func (l *LMAXLedger) Owner() common.Address {
	return l.owner
}

func (l *LMAXLedger) PriceFeedAddress() common.Address {
	return l.feedAddress
}

var _ usecase.Ledger = (*LMAXLedger)(nil)
