package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Deposit 一次出資請求
type Deposit struct {
	// From: 出資者
	From common.Address
	// Amount: 金額 (wei)
	Amount *big.Int
	// TxHash: 鏈上轉入託管帳戶的交易；本地開發鏈由記憶體錢包扣款，可留空
	TxHash common.Hash
}

// NewDeposit 建立不帶交易的出資請求
func NewDeposit(from common.Address, amount *big.Int) Deposit {
	return Deposit{From: from, Amount: amount}
}
