package domain

import "errors"

var (
	// ErrInsufficientContribution 換算後的參考幣值低於最低門檻
	ErrInsufficientContribution = errors.New("insufficient contribution: you need to spend more")

	// ErrNotOwner 非擁有者嘗試提領
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrOracleUnavailable 價格來源無法讀取 (過期、未設定或連線失敗)
	ErrOracleUnavailable = errors.New("price oracle unavailable")

	// ErrIndexOutOfRange 查詢的出資者索引超出範圍
	ErrIndexOutOfRange = errors.New("funder index out of range")

	// ErrInvalidAmount 金額必須為非負數
	ErrInvalidAmount = errors.New("amount must be non-negative")

	// ErrInvalidCaller 呼叫者身分無效 (零地址)
	ErrInvalidCaller = errors.New("invalid caller identity")

	// ErrTransferFailed 轉帳給擁有者失敗，帳本未變動
	ErrTransferFailed = errors.New("transfer to owner failed")

	// ErrDepositNotReceived 出資款項未轉入託管 (餘額不足、交易不符或重複使用)
	ErrDepositNotReceived = errors.New("deposit not received")

	// ErrTransferPending 轉帳已送出但尚未確認，重試時會先確認同一筆交易
	ErrTransferPending = errors.New("transfer pending confirmation")

	// ErrWithdrawalPending 上一次提領尚未確認，期間不接受出資
	ErrWithdrawalPending = errors.New("withdrawal pending confirmation")

	// ErrLedgerStopped 帳本引擎已停止
	ErrLedgerStopped = errors.New("ledger stopped")
)
