package payout

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
)

// nativeTransferGas 純轉帳固定 gas
const nativeTransferGas uint64 = 21000

// Backend EthPayout 需要的 RPC 方法 (*ethclient.Client 即可)
type Backend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EthPayout 從託管帳戶轉出原生幣，等到交易上鏈且成功才回傳
//
// 已送出但等不到收據的交易記為 pending，下次 Transfer 只確認這筆交易，不會簽新的 nonce
type EthPayout struct {
	backend        Backend
	key            *ecdsa.PrivateKey
	from           common.Address
	signer         types.Signer
	receiptTimeout time.Duration
	logger         *zap.Logger

	mu      sync.Mutex
	pending *types.Transaction
}

type Config struct {
	PrivateKeyHex  string
	ChainID        *big.Int
	ReceiptTimeout time.Duration
}

func NewEthPayout(backend Backend, cfg Config, logger *zap.Logger) (*EthPayout, error) {
	if backend == nil {
		return nil, errors.New("rpc backend is required")
	}
	if cfg.ChainID == nil {
		return nil, errors.New("chain id is required")
	}
	key, err := ParsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}
	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EthPayout{
		backend:        backend,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		signer:         types.LatestSignerForChainID(cfg.ChainID),
		receiptTimeout: timeout,
		logger:         logger,
	}, nil
}

// ParsePrivateKey 解析 hex 私鑰，可帶 0x 前綴
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("private key is required")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// From 託管帳戶地址
func (p *EthPayout) From() common.Address {
	return p.from
}

// Transfer 簽署並送出轉帳，等待收據
//
// 收據逾時回傳包裝 domain.ErrTransferPending 的錯誤；之後的呼叫必須帶相同的收款人與金額
func (p *EthPayout) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("transfer amount must be non-negative")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if tx := p.pending; tx != nil {
		if *tx.To() != to || tx.Value().Cmp(amount) != 0 {
			return fmt.Errorf("%w: %s to %s for %s wei", domain.ErrTransferPending,
				tx.Hash().Hex(), tx.To().Hex(), tx.Value())
		}
		p.logger.Info("payout recheck", zap.String("tx_hash", tx.Hash().Hex()))
		return p.await(ctx, tx)
	}

	nonce, err := p.backend.PendingNonceAt(ctx, p.from)
	if err != nil {
		return fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("suggest gas price: %w", err)
	}

	tx, err := types.SignNewTx(p.key, p.signer, &types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      nativeTransferGas,
		GasPrice: gasPrice,
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	if err := p.backend.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("send transaction: %w", err)
	}
	p.logger.Info("payout sent",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount_wei", amount.String()))
	return p.await(ctx, tx)
}

// Pending 尚未確認的撥款交易，沒有時回傳 false
func (p *EthPayout) Pending() (common.Hash, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return common.Hash{}, false
	}
	return p.pending.Hash(), true
}

// await 等待收據，呼叫端持有 mu
func (p *EthPayout) await(ctx context.Context, tx *types.Transaction) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, p.backend, tx)
	if err != nil {
		p.pending = tx
		p.logger.Warn("payout unconfirmed",
			zap.String("tx_hash", tx.Hash().Hex()),
			zap.Error(err))
		return fmt.Errorf("%w: wait for receipt %s: %v", domain.ErrTransferPending, tx.Hash().Hex(), err)
	}
	p.pending = nil
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	p.logger.Info("payout confirmed",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()))
	return nil
}

var _ usecase.Payout = (*EthPayout)(nil)
