package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals 原生單位 (ether) 與最小單位 (wei) 之間的位數
const NativeDecimals = 18

// ParseUnits 將十進位字串轉為最小單位整數，例如 ParseUnits("1.5", 18)
func ParseUnits(value string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse units %q: %w", value, err)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("parse units %q: more than %d decimals", value, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatUnits 將最小單位整數轉為十進位字串
func FormatUnits(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

// ParseEther 解析以 ether 表示的金額
func ParseEther(value string) (*big.Int, error) {
	return ParseUnits(value, NativeDecimals)
}

// FormatEther 以 ether 表示 wei 金額
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, NativeDecimals)
}
