package payout

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
)

// DepositBackend EthCollector 需要的 RPC 方法 (*ethclient.Client 即可)
type DepositBackend interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EthCollector 以鏈上交易確認出資款項已轉入託管帳戶
//
// 每筆交易只能入帳一次；檢查失敗的交易不會被標記，可以修正後重送
type EthCollector struct {
	backend DepositBackend
	custody common.Address
	signer  types.Signer
	logger  *zap.Logger

	mu   sync.Mutex
	seen map[common.Hash]struct{}
}

// NewEthCollector 建立鏈上收款確認
//
// 參數:
//
//	backend: RPC 連線
//	custody: 託管帳戶，通常是 EthPayout.From()
//	chainID: 用來還原交易簽署者
//	logger: nil 時不輸出
//
// 回傳:
//
//	*EthCollector: 實例
//	error: 參數錯誤
func NewEthCollector(backend DepositBackend, custody common.Address, chainID *big.Int, logger *zap.Logger) (*EthCollector, error) {
	if backend == nil {
		return nil, errors.New("rpc backend is required")
	}
	if custody == (common.Address{}) {
		return nil, errors.New("custody address is required")
	}
	if chainID == nil {
		return nil, errors.New("chain id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EthCollector{
		backend: backend,
		custody: custody,
		signer:  types.LatestSignerForChainID(chainID),
		logger:  logger,
		seen:    make(map[common.Hash]struct{}),
	}, nil
}

// Collect 確認交易已成功上鏈，且由出資者轉入託管帳戶的金額與出資金額相同
func (c *EthCollector) Collect(ctx context.Context, deposit domain.Deposit) error {
	hash := deposit.TxHash
	if hash == (common.Hash{}) {
		return fmt.Errorf("%w: deposit transaction hash is required", domain.ErrDepositNotReceived)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[hash]; ok {
		return fmt.Errorf("%w: transaction %s already credited", domain.ErrDepositNotReceived, hash.Hex())
	}

	tx, isPending, err := c.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("%w: lookup %s: %v", domain.ErrDepositNotReceived, hash.Hex(), err)
	}
	if isPending {
		return fmt.Errorf("%w: transaction %s not mined yet", domain.ErrDepositNotReceived, hash.Hex())
	}
	if tx.To() == nil || *tx.To() != c.custody {
		return fmt.Errorf("%w: transaction %s is not sent to custody %s", domain.ErrDepositNotReceived, hash.Hex(), c.custody.Hex())
	}
	if tx.Value().Cmp(deposit.Amount) != 0 {
		return fmt.Errorf("%w: transaction %s carries %s wei, expected %s", domain.ErrDepositNotReceived, hash.Hex(), tx.Value(), deposit.Amount)
	}
	sender, err := types.Sender(c.signer, tx)
	if err != nil {
		return fmt.Errorf("%w: recover sender of %s: %v", domain.ErrDepositNotReceived, hash.Hex(), err)
	}
	if sender != deposit.From {
		return fmt.Errorf("%w: transaction %s sent by %s", domain.ErrDepositNotReceived, hash.Hex(), sender.Hex())
	}

	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return fmt.Errorf("%w: receipt %s: %v", domain.ErrDepositNotReceived, hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: transaction %s reverted", domain.ErrDepositNotReceived, hash.Hex())
	}

	c.seen[hash] = struct{}{}
	c.logger.Info("deposit confirmed",
		zap.String("tx_hash", hash.Hex()),
		zap.String("from", sender.Hex()),
		zap.String("amount_wei", deposit.Amount.String()))
	return nil
}

var _ usecase.Collector = (*EthCollector)(nil)
