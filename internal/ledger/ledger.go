// Package ledger описывает влияние операций журнала на баланс кошелька.
package ledger

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

var (
	// ErrInsufficientBalance возвращается, если списание превышает баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNonPositiveAmount возвращается для операций с нулевой или отрицательной суммой.
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// Effect описывает изменение счётчиков кошелька, вызванное одной операцией.
type Effect struct {
	Balance     model.Money
	TotalLoaded model.Money
	TotalUsed   model.Money
}

// EffectOf возвращает влияние операции на кошелёк.
// Операции в статусах PENDING и FAILED баланс не меняют.
func EffectOf(txType model.TransactionType, status model.TransactionStatus, amount model.Money) (Effect, error) {
	if status != model.TxCompleted {
		return Effect{}, nil
	}
	if amount <= 0 {
		return Effect{}, ErrNonPositiveAmount
	}

	switch txType {
	case model.TxWalletLoad:
		return Effect{Balance: amount, TotalLoaded: amount}, nil
	case model.TxServicePayment:
		return Effect{Balance: -amount, TotalUsed: amount}, nil
	case model.TxRefund:
		return Effect{Balance: amount}, nil
	}
	return Effect{}, fmt.Errorf("unknown transaction type %q", txType)
}

// Apply применяет завершённую операцию к снимку кошелька и возвращает новый снимок.
// Исходный кошелёк не изменяется.
func Apply(w model.Wallet, tx model.WalletTransaction) (model.Wallet, error) {
	eff, err := EffectOf(tx.Type, tx.Status, tx.Amount)
	if err != nil {
		return w, err
	}

	if w.Balance+eff.Balance < 0 {
		return w, ErrInsufficientBalance
	}

	w.Balance += eff.Balance
	w.TotalLoaded += eff.TotalLoaded
	w.TotalUsed += eff.TotalUsed
	return w, nil
}

// Replay строит кошелёк по журналу операций в порядке их записи.
func Replay(w model.Wallet, txs []model.WalletTransaction) (model.Wallet, error) {
	for _, tx := range txs {
		next, err := Apply(w, tx)
		if err != nil {
			return w, fmt.Errorf("apply %s: %w", tx.ID, err)
		}
		w = next
	}
	return w, nil
}

// Refunds возвращает сумму зачисленных возвратов, выводимую из инварианта
// Balance = TotalLoaded - TotalUsed + refunds.
func Refunds(w model.Wallet) model.Money {
	return w.Balance - w.TotalLoaded + w.TotalUsed
}
