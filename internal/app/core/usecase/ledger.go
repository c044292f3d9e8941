package usecase

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
)

// Ledger 是資金池帳本的介面
type Ledger interface {
	// Fund 出資，換算後低於門檻回傳 domain.ErrInsufficientContribution；
	// 款項未轉入託管回傳 domain.ErrDepositNotReceived
	Fund(ctx context.Context, deposit domain.Deposit) (*domain.Event, error)
	// Withdraw 擁有者一次提領全部資金並清空帳冊
	Withdraw(ctx context.Context, caller common.Address) (*domain.Event, error)
	// AmountFunded 取得累計出資，未出資者為 0
	AmountFunded(ctx context.Context, funder common.Address) (*big.Int, error)
	// FunderAt 依首次出資順序取得出資者
	FunderAt(ctx context.Context, index int) (common.Address, error)
	// Funders 回傳出資者清單的複本
	Funders(ctx context.Context) ([]common.Address, error)
	// PoolBalance 資金池總額
	PoolBalance(ctx context.Context) (*big.Int, error)
	// Owner 建立時固定的擁有者
	Owner() common.Address
	// PriceFeedAddress 價格來源地址
	PriceFeedAddress() common.Address
}

// PriceFeed 唯讀的價格來源
type PriceFeed interface {
	// CurrentRate 讀取目前匯率，失敗時回傳包裝 domain.ErrOracleUnavailable 的錯誤
	CurrentRate(ctx context.Context) (domain.PriceReading, error)
	Address() common.Address
}

// Collector 確認出資款項已轉入託管，在帳本臨界區內於入帳前呼叫
//
// 回傳錯誤時帳本不入帳，Collector 本身也不得保留任何變動
type Collector interface {
	Collect(ctx context.Context, deposit domain.Deposit) error
}

// Payout 將資金轉給指定地址，回傳 nil 代表已確認到帳
type Payout interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// Journal 稽核日誌，只寫不重放
type Journal interface {
	Append(ctx context.Context, event *domain.Event) error
}

// EventPublisher 對外發布帳本事件
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}
