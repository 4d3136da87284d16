package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money хранит денежную сумму в минимальных единицах валюты (пайсах).
// В JSON сумма передаётся в основных единицах (рупиях), как её ожидают клиенты.
type Money int64

// MaxMoney ограничивает модуль суммы: ₹10 000 000 000 000 в пайсах.
// Сумма сотни таких значений всё ещё помещается в int64.
const MaxMoney Money = 1_000_000_000_000_000

// ErrMoneyOutOfRange возвращается для суммы, модуль которой больше MaxMoney.
var ErrMoneyOutOfRange = errors.New("amount is out of range")

var maxMoneyDecimal = decimal.NewFromInt(int64(MaxMoney))

// MoneyFromDecimal округляет сумму в рупиях до пайсы.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	paise := d.Shift(2).Round(0)
	if paise.Abs().GreaterThan(maxMoneyDecimal) {
		return 0, ErrMoneyOutOfRange
	}
	return Money(paise.IntPart()), nil
}

// ParseMoney разбирает сумму в рупиях, записанную строкой.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromRupees переводит сумму в рупиях в Money. Предназначена для констант:
// сумма вне диапазона приводит к панике.
func MoneyFromRupees(v float64) Money {
	m, err := MoneyFromDecimal(decimal.NewFromFloat(v))
	if err != nil {
		panic(fmt.Sprintf("money %v: %v", v, err))
	}
	return m
}

// Decimal возвращает сумму в рупиях.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// Rupees возвращает сумму в рупиях как float64.
func (m Money) Rupees() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON кодирует сумму числом в рупиях.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON принимает число в рупиях.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	*m = v
	return nil
}
