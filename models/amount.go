package models

import (
	"bytes"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount is money in minor units (1/100). Balances, stakes, pools and payouts
// are all kept as Amount; decimals only appear at the JSON edge and while
// applying fractional rates.
type Amount int64

const amountPlaces = 2

var (
	ErrAmountOutOfRange = errors.New("amount out of range")

	maxAmount = decimal.NewFromInt(math.MaxInt64).Shift(-amountPlaces)
	minAmount = decimal.NewFromInt(math.MinInt64).Shift(-amountPlaces)
)

func NewAmount(d decimal.Decimal) Amount {
	return Amount(d.Round(amountPlaces).Shift(amountPlaces).IntPart())
}

func AmountFromFloat(f float64) Amount {
	return NewAmount(decimal.NewFromFloat(f))
}

func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if r := d.Round(amountPlaces); r.GreaterThan(maxAmount) || r.LessThan(minAmount) {
		return 0, fmt.Errorf("invalid amount %q: %w", s, ErrAmountOutOfRange)
	}
	return NewAmount(d), nil
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -amountPlaces)
}

func (a Amount) Float64() float64 {
	return a.Decimal().InexactFloat64()
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(amountPlaces)
}

// MulRate returns a*rate rounded half away from zero to the cent.
func (a Amount) MulRate(rate decimal.Decimal) Amount {
	return NewAmount(a.Decimal().Mul(rate))
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*a = 0
		return nil
	}
	v, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	return int64(a), nil
}

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = 0
	case int64:
		*a = Amount(v)
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("scan amount: %w", err)
		}
		*a = Amount(n)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("scan amount: %w", err)
		}
		*a = Amount(n)
	default:
		return fmt.Errorf("scan amount: unsupported type %T", src)
	}
	return nil
}
