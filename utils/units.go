package utils

import "github.com/shopspring/decimal"

// Converter maps between PKR amounts (2 decimal places) and integer token
// units at a fixed scale of 10^decimals.
//
// Both directions truncate toward zero: a deposit never mints more units than
// the fiat amount covers, and a burn never promises more PKR than the burned
// units cover. Everything runs on exact decimals; float math would misround
// at the unit boundary.
type Converter struct {
	decimals int32
}

func NewConverter(decimals int) Converter {
	return Converter{decimals: int32(decimals)}
}

func (c Converter) Decimals() int {
	return int(c.decimals)
}

// ToUnits converts a PKR amount into integer token units, dropping any
// fraction below one unit.
func (c Converter) ToUnits(amount decimal.Decimal) int64 {
	return amount.Shift(c.decimals).IntPart()
}

// ToFiat converts integer token units back into a PKR amount with two
// decimal places, dropping any fraction below one paisa.
func (c Converter) ToFiat(units int64) decimal.Decimal {
	return decimal.New(units, 0).Shift(-c.decimals).Truncate(2)
}
