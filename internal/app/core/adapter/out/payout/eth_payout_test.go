package payout

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
)

// hardhat 預設第一個帳號
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeBackend struct {
	nonce   uint64
	sent    []*types.Transaction
	status  uint64
	sendErr error
	// receiptMisses 前幾次查詢收據回傳 NotFound
	receiptMisses int
	nonceCalls    int
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.nonceCalls++
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.receiptMisses > 0 {
		f.receiptMisses--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.status, TxHash: hash, BlockNumber: big.NewInt(42)}, nil
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func TestEthPayoutTransfer(t *testing.T) {
	backend := &fakeBackend{nonce: 3, status: types.ReceiptStatusSuccessful}
	chainID := big.NewInt(31337)
	p, err := NewEthPayout(backend, Config{PrivateKeyHex: testKey, ChainID: chainID}, nil)
	if err != nil {
		t.Fatalf("new payout: %v", err)
	}
	wantFrom := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if p.From() != wantFrom {
		t.Fatalf("expected from %s got %s", wantFrom.Hex(), p.From().Hex())
	}

	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	amount := big.NewInt(5_000_000_000_000_000)
	if err := p.Transfer(context.Background(), to, amount); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if len(backend.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.Nonce() != 3 || *tx.To() != to || tx.Value().Cmp(amount) != 0 || tx.Gas() != nativeTransferGas {
		t.Fatalf("unexpected transaction nonce=%d to=%s value=%s gas=%d", tx.Nonce(), tx.To().Hex(), tx.Value(), tx.Gas())
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != wantFrom {
		t.Fatalf("expected sender %s got %s", wantFrom.Hex(), sender.Hex())
	}
}

func TestEthPayoutFailures(t *testing.T) {
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	reverted := &fakeBackend{status: types.ReceiptStatusFailed}
	p, err := NewEthPayout(reverted, Config{PrivateKeyHex: testKey, ChainID: big.NewInt(1)}, nil)
	if err != nil {
		t.Fatalf("new payout: %v", err)
	}
	if err := p.Transfer(context.Background(), to, big.NewInt(1)); err == nil {
		t.Fatalf("expected reverted receipt to fail")
	}

	rejected := &fakeBackend{sendErr: errors.New("insufficient funds for gas")}
	p, err = NewEthPayout(rejected, Config{PrivateKeyHex: testKey, ChainID: big.NewInt(1)}, nil)
	if err != nil {
		t.Fatalf("new payout: %v", err)
	}
	if err := p.Transfer(context.Background(), to, big.NewInt(1)); err == nil {
		t.Fatalf("expected send failure to propagate")
	}
}

func TestParsePrivateKey(t *testing.T) {
	key, err := ParsePrivateKey(testKey)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey) == (common.Address{}) {
		t.Fatalf("expected derived address")
	}
	if _, err := ParsePrivateKey(""); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := ParsePrivateKey("0xzz"); err == nil {
		t.Fatalf("expected error for invalid key")
	}
}

func TestEthPayoutRetryConfirmsPendingTransaction(t *testing.T) {
	backend := &fakeBackend{nonce: 7, status: types.ReceiptStatusSuccessful, receiptMisses: 1}
	p, err := NewEthPayout(backend, Config{PrivateKeyHex: testKey, ChainID: big.NewInt(31337), ReceiptTimeout: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("new payout: %v", err)
	}
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	amount := big.NewInt(1_000)

	err = p.Transfer(context.Background(), to, amount)
	if !errors.Is(err, domain.ErrTransferPending) {
		t.Fatalf("expected ErrTransferPending got %v", err)
	}
	hash, ok := p.Pending()
	if !ok || hash != backend.sent[0].Hash() {
		t.Fatalf("expected pending %s, got %s (%v)", backend.sent[0].Hash().Hex(), hash.Hex(), ok)
	}

	// 不同收款人或金額不能取代尚未確認的交易
	if err := p.Transfer(context.Background(), to, big.NewInt(2_000)); !errors.Is(err, domain.ErrTransferPending) {
		t.Fatalf("expected mismatched retry to stay pending, got %v", err)
	}

	if err := p.Transfer(context.Background(), to, amount); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(backend.sent) != 1 || backend.nonceCalls != 1 {
		t.Fatalf("retry must not sign a new transaction: sent=%d nonce calls=%d", len(backend.sent), backend.nonceCalls)
	}
	if _, ok := p.Pending(); ok {
		t.Fatalf("expected pending to clear after confirmation")
	}

	if err := p.Transfer(context.Background(), to, amount); err != nil {
		t.Fatalf("next transfer: %v", err)
	}
	if len(backend.sent) != 2 {
		t.Fatalf("expected a fresh transaction once the previous one settled, got %d", len(backend.sent))
	}
}

func TestEthPayoutPendingThenReverted(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusFailed, receiptMisses: 1}
	p, err := NewEthPayout(backend, Config{PrivateKeyHex: testKey, ChainID: big.NewInt(31337), ReceiptTimeout: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("new payout: %v", err)
	}
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	if err := p.Transfer(context.Background(), to, big.NewInt(1)); !errors.Is(err, domain.ErrTransferPending) {
		t.Fatalf("expected ErrTransferPending got %v", err)
	}
	err = p.Transfer(context.Background(), to, big.NewInt(1))
	if err == nil || errors.Is(err, domain.ErrTransferPending) {
		t.Fatalf("expected definite revert, got %v", err)
	}
	if _, ok := p.Pending(); ok {
		t.Fatalf("reverted transaction must not stay pending")
	}
}
