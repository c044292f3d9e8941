package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType 帳本事件類型
type EventType uint8

const (
	// 出資
	EventTypeFund EventType = 1
	// 擁有者提領
	EventTypeWithdraw EventType = 2
)

func (t EventType) String() string {
	switch t {
	case EventTypeFund:
		return "fund"
	case EventTypeWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// Event 一次成功的帳本變動，供稽核日誌與事件發布使用
type Event struct {
	// ID: 全域唯一識別 (UUID)
	ID uuid.UUID `json:"id"`
	// Sequence: 帳本在臨界區內分配的順序號 (1, 2, 3...)
	Sequence uint64 `json:"sequence"`
	// Type: 出資或提領
	Type EventType `json:"type"`
	// Account: 出資者，或提領時的擁有者
	Account common.Address `json:"account"`
	// Amount: 出資金額或提領總額 (wei)
	Amount *big.Int `json:"amount"`
	// ReferenceValue: 出資時換算的參考幣值，提領時為 nil
	ReferenceValue *big.Int `json:"reference_value,omitempty"`
	// TotalFunded: 出資後該出資者的累計金額，提領時為 nil
	TotalFunded *big.Int `json:"total_funded,omitempty"`
	// TxHash: 鏈上出資交易，記憶體錢包出資時為空
	TxHash *common.Hash `json:"tx_hash,omitempty"`
	// Funders: 提領時被清除的出資者數量
	Funders int `json:"funders,omitempty"`
	// CreatedAt: Unix 毫秒
	CreatedAt int64 `json:"created_at"`
}

// NewFundEvent 建立出資事件
func NewFundEvent(seq uint64, deposit Deposit, reference, total *big.Int) *Event {
	event := &Event{
		ID:             uuid.New(),
		Sequence:       seq,
		Type:           EventTypeFund,
		Account:        deposit.From,
		Amount:         new(big.Int).Set(deposit.Amount),
		ReferenceValue: new(big.Int).Set(reference),
		TotalFunded:    new(big.Int).Set(total),
		CreatedAt:      time.Now().UnixMilli(),
	}
	if deposit.TxHash != (common.Hash{}) {
		hash := deposit.TxHash
		event.TxHash = &hash
	}
	return event
}

// NewWithdrawEvent 建立提領事件
func NewWithdrawEvent(seq uint64, owner common.Address, total *big.Int, funders int) *Event {
	return &Event{
		ID:        uuid.New(),
		Sequence:  seq,
		Type:      EventTypeWithdraw,
		Account:   owner,
		Amount:    new(big.Int).Set(total),
		Funders:   funders,
		CreatedAt: time.Now().UnixMilli(),
	}
}
