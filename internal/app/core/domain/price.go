package domain

import (
	"fmt"
	"math/big"
)

// PriceReading 價格來源的單次讀數，每次查詢重新產生
//
// Rate 為 1 個原生單位可兌換的參考幣值，精度為小數點後 Decimals 位
type PriceReading struct {
	Rate     *big.Int
	Decimals uint8
}

// NewPriceReading 建立讀數，Rate 會被複製
func NewPriceReading(rate *big.Int, decimals uint8) PriceReading {
	return PriceReading{
		Rate:     new(big.Int).Set(rate),
		Decimals: decimals,
	}
}

// Validate 確認讀數可用於換算
func (p PriceReading) Validate() error {
	if p.Rate == nil {
		return fmt.Errorf("%w: rate not set", ErrOracleUnavailable)
	}
	if p.Rate.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive rate %s", ErrOracleUnavailable, p.Rate)
	}
	return nil
}

// ToReference 將原生最小單位金額換算成參考幣值 (與 amount 同精度)
//
// amount * Rate / 10^Decimals，全程整數運算，除法直接截斷
func (p PriceReading) ToReference(amount *big.Int) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(p.Decimals)), nil)
	value := new(big.Int).Mul(amount, p.Rate)
	return value.Quo(value, scale)
}
