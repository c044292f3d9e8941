package payout

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
)

// hardhat 預設第二個帳號
const funderKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

var (
	custodyAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	funderAddr  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	testChainID = big.NewInt(31337)
)

type chainTx struct {
	tx      *types.Transaction
	pending bool
	status  uint64
}

type fakeChain struct {
	txs map[common.Hash]chainTx
}

func (f *fakeChain) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	c, ok := f.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return c.tx, c.pending, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c, ok := f.txs[hash]
	if !ok || c.pending {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: c.status, TxHash: hash, BlockNumber: big.NewInt(7)}, nil
}

func (f *fakeChain) add(t *testing.T, keyHex string, nonce uint64, to common.Address, value *big.Int, status uint64, pending bool) common.Hash {
	t.Helper()
	key, err := ParsePrivateKey(keyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(testChainID), &types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      nativeTransferGas,
		GasPrice: big.NewInt(1),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	f.txs[tx.Hash()] = chainTx{tx: tx, pending: pending, status: status}
	return tx.Hash()
}

func TestEthCollectorAcceptsMatchingDeposit(t *testing.T) {
	chain := &fakeChain{txs: make(map[common.Hash]chainTx)}
	collector, err := NewEthCollector(chain, custodyAddr, testChainID, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	amount := big.NewInt(1_000_000)
	hash := chain.add(t, funderKey, 0, custodyAddr, amount, types.ReceiptStatusSuccessful, false)

	deposit := domain.Deposit{From: funderAddr, Amount: amount, TxHash: hash}
	if err := collector.Collect(context.Background(), deposit); err != nil {
		t.Fatalf("collect: %v", err)
	}
	// 同一筆交易不能入帳兩次
	if err := collector.Collect(context.Background(), deposit); !errors.Is(err, domain.ErrDepositNotReceived) {
		t.Fatalf("expected replay to be rejected, got %v", err)
	}
}

func TestEthCollectorRejections(t *testing.T) {
	chain := &fakeChain{txs: make(map[common.Hash]chainTx)}
	collector, err := NewEthCollector(chain, custodyAddr, testChainID, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	amount := big.NewInt(1_000_000)
	other := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	cases := []struct {
		name    string
		deposit domain.Deposit
	}{
		{name: "missing hash", deposit: domain.NewDeposit(funderAddr, amount)},
		{name: "unknown hash", deposit: domain.Deposit{From: funderAddr, Amount: amount, TxHash: common.HexToHash("0x01")}},
		{name: "wrong recipient", deposit: domain.Deposit{From: funderAddr, Amount: amount,
			TxHash: chain.add(t, funderKey, 1, other, amount, types.ReceiptStatusSuccessful, false)}},
		{name: "wrong value", deposit: domain.Deposit{From: funderAddr, Amount: new(big.Int).Add(amount, big.NewInt(1)),
			TxHash: chain.add(t, funderKey, 2, custodyAddr, amount, types.ReceiptStatusSuccessful, false)}},
		{name: "wrong sender", deposit: domain.Deposit{From: other, Amount: amount,
			TxHash: chain.add(t, funderKey, 3, custodyAddr, amount, types.ReceiptStatusSuccessful, false)}},
		{name: "reverted", deposit: domain.Deposit{From: funderAddr, Amount: amount,
			TxHash: chain.add(t, funderKey, 4, custodyAddr, amount, types.ReceiptStatusFailed, false)}},
		{name: "pending", deposit: domain.Deposit{From: funderAddr, Amount: amount,
			TxHash: chain.add(t, funderKey, 5, custodyAddr, amount, types.ReceiptStatusSuccessful, true)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := collector.Collect(context.Background(), tc.deposit); !errors.Is(err, domain.ErrDepositNotReceived) {
				t.Fatalf("expected ErrDepositNotReceived got %v", err)
			}
		})
	}

	// 被拒絕的交易不會被標記，上鏈後可以重送
	pendingHash := cases[len(cases)-1].deposit.TxHash
	entry := chain.txs[pendingHash]
	entry.pending = false
	chain.txs[pendingHash] = entry
	if err := collector.Collect(context.Background(), cases[len(cases)-1].deposit); err != nil {
		t.Fatalf("expected mined deposit to be accepted: %v", err)
	}
}

func TestNewEthCollectorValidation(t *testing.T) {
	chain := &fakeChain{txs: make(map[common.Hash]chainTx)}
	if _, err := NewEthCollector(nil, custodyAddr, testChainID, nil); err == nil {
		t.Fatalf("expected missing backend to fail")
	}
	if _, err := NewEthCollector(chain, common.Address{}, testChainID, nil); err == nil {
		t.Fatalf("expected missing custody to fail")
	}
	if _, err := NewEthCollector(chain, custodyAddr, nil, nil); err == nil {
		t.Fatalf("expected missing chain id to fail")
	}
}
