package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/apse-storefront/internal/ledger"
	"github.com/mmeshcher/apse-storefront/internal/model"
)

// Settlement описывает результат проведения платежа: операцию, кошелёк после неё и,
// для оплаты услуги, обновлённую услугу пользователя.
type Settlement struct {
	Transaction model.WalletTransaction
	Wallet      model.Wallet
	UserService *model.UserService
	// Replayed означает, что операция была завершена раньше и повторно не проводилась.
	Replayed bool
	// Overpaid означает, что услуга к моменту подтверждения уже была оплачена
	// и деньги шлюза зачислены на кошелёк.
	Overpaid bool
}

const walletColumns = `id, user_id, balance, status, total_loaded, total_used, created_at, updated_at`

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var (
		w                     model.Wallet
		status                string
		balance, loaded, used int64
	)
	if err := row.Scan(&w.ID, &w.UserID, &balance, &status, &loaded, &used, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Status = model.WalletStatus(status)
	w.Balance = model.Money(balance)
	w.TotalLoaded = model.Money(loaded)
	w.TotalUsed = model.Money(used)
	return &w, nil
}

const txColumns = `id, wallet_id, type, amount, status, payment_method, description,
	gateway_order_id, gateway_payment_id, user_service_id, created_at, updated_at`

func scanTransaction(row pgx.Row) (*model.WalletTransaction, error) {
	var (
		t           model.WalletTransaction
		typ, status string
		amount      int64
		method      *string
	)
	err := row.Scan(&t.ID, &t.WalletID, &typ, &amount, &status, &method, &t.Description,
		&t.GatewayOrderID, &t.GatewayPaymentID, &t.UserServiceID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = model.TransactionType(typ)
	t.Status = model.TransactionStatus(status)
	t.Amount = model.Money(amount)
	if method != nil {
		m := model.PaymentMethod(*method)
		t.PaymentMethod = &m
	}
	return &t, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func ensureWallet(ctx context.Context, q querier, userID string) (*model.Wallet, error) {
	w, err := scanWallet(q.QueryRow(ctx,
		`INSERT INTO wallets (id, user_id) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING `+walletColumns,
		uuid.NewString(), userID,
	))
	if err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	return w, nil
}

// lockWallet создаёт кошелёк при необходимости и блокирует его строку до конца транзакции.
func lockWallet(ctx context.Context, tx pgx.Tx, userID string) (*model.Wallet, error) {
	if _, err := ensureWallet(ctx, tx, userID); err != nil {
		return nil, err
	}
	w, err := scanWallet(tx.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return w, nil
}

func saveWallet(ctx context.Context, tx pgx.Tx, w *model.Wallet) error {
	err := tx.QueryRow(ctx,
		`UPDATE wallets SET balance = $2, total_loaded = $3, total_used = $4, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		w.ID, int64(w.Balance), int64(w.TotalLoaded), int64(w.TotalUsed),
	).Scan(&w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t model.WalletTransaction) (*model.WalletTransaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var method *string
	if t.PaymentMethod != nil {
		m := string(*t.PaymentMethod)
		method = &m
	}

	created, err := scanTransaction(tx.QueryRow(ctx,
		`INSERT INTO wallet_transactions (id, wallet_id, type, amount, status, payment_method, description,
			gateway_order_id, gateway_payment_id, user_service_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+txColumns,
		t.ID, t.WalletID, string(t.Type), int64(t.Amount), string(t.Status), method, t.Description,
		t.GatewayOrderID, t.GatewayPaymentID, t.UserServiceID,
	))
	if err != nil {
		if isUniqueViolation(err, "wallet_transactions_gateway_order_key") {
			return nil, ErrDuplicateOrder
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return created, nil
}

// applyToWallet проводит завершённую операцию через ledger и сохраняет кошелёк.
func applyToWallet(ctx context.Context, tx pgx.Tx, w *model.Wallet, t model.WalletTransaction) error {
	next, err := ledger.Apply(*w, t)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return ErrInsufficientBalance
		}
		return err
	}
	*w = next
	return saveWallet(ctx, tx, w)
}

// GetOrCreateWallet возвращает кошелёк пользователя, создавая его при первом обращении.
func (r *PostgresRepository) GetOrCreateWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return ensureWallet(ctx, r.pool, userID)
}

// ListTransactions возвращает журнал операций кошелька пользователя, новые первыми.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID string) ([]model.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+txColumns+`
		 FROM wallet_transactions
		 WHERE wallet_id = (SELECT id FROM wallets WHERE user_id = $1)
		 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.WalletTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ensureNoPendingPayment проверяет, что по услуге нет заказа шлюза, ожидающего подтверждения.
// Строка услуги должна быть заблокирована вызывающим.
func ensureNoPendingPayment(ctx context.Context, tx pgx.Tx, userServiceID string) error {
	var pending bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM wallet_transactions
			WHERE user_service_id = $1 AND type = $2 AND status = $3
		)`,
		userServiceID, string(model.TxServicePayment), string(model.TxPending),
	).Scan(&pending)
	if err != nil {
		return fmt.Errorf("check pending payment: %w", err)
	}
	if pending {
		return ErrPaymentPending
	}
	return nil
}

// CreatePendingTransaction регистрирует ожидающую оплаты через шлюз операцию.
// Для оплаты услуги проверяется, что услуга принадлежит пользователю, ещё не оплачена
// и не ждёт подтверждения другого заказа шлюза.
func (r *PostgresRepository) CreatePendingTransaction(ctx context.Context, userID string, t model.WalletTransaction) (*model.WalletTransaction, error) {
	var created *model.WalletTransaction

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		w, err := lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if w.Status == model.WalletSuspended {
			return ErrWalletSuspended
		}

		if t.UserServiceID != nil {
			us, err := lockUserService(ctx, tx, userID, *t.UserServiceID)
			if err != nil {
				return err
			}
			if us.AmountPaid > 0 {
				return ErrAlreadyPaid
			}
			if err := ensureNoPendingPayment(ctx, tx, us.ID); err != nil {
				return err
			}
		}

		t.WalletID = w.ID
		t.Status = model.TxPending
		created, err = insertTransaction(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// lockGatewayTransaction находит и блокирует основную операцию заказа шлюза.
// Для оплаты услуги это SERVICE_PAYMENT; сопутствующее пополнение возвращается,
// только если оно единственная операция заказа (переплата за оплаченную услугу).
func lockGatewayTransaction(ctx context.Context, tx pgx.Tx, walletID, orderID string) (*model.WalletTransaction, error) {
	t, err := scanTransaction(tx.QueryRow(ctx,
		`SELECT `+txColumns+`
		 FROM wallet_transactions
		 WHERE wallet_id = $1 AND gateway_order_id = $2
		 ORDER BY (type = $3) DESC
		 LIMIT 1
		 FOR UPDATE`,
		walletID, orderID, string(model.TxServicePayment),
	))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func completeTransaction(ctx context.Context, tx pgx.Tx, id, paymentID string) (*model.WalletTransaction, error) {
	t, err := scanTransaction(tx.QueryRow(ctx,
		`UPDATE wallet_transactions
		 SET status = $2, gateway_payment_id = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+txColumns,
		id, string(model.TxCompleted), paymentID,
	))
	if err != nil {
		return nil, fmt.Errorf("complete transaction: %w", err)
	}
	return t, nil
}

// CompleteGatewayPayment проводит подтверждённый шлюзом платёж.
// Пополнение зачисляется на баланс. Оплата услуги через шлюз записывается парой
// операций: пополнение на ту же сумму и списание, поэтому баланс не меняется,
// а totalLoaded и totalUsed растут. Если услуга уже оплачена, деньги шлюза
// зачисляются на кошелёк пополнением без списания. Повторное подтверждение ничего не проводит.
func (r *PostgresRepository) CompleteGatewayPayment(ctx context.Context, userID, orderID, paymentID string) (*Settlement, error) {
	var res *Settlement

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		w, err := lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}

		pending, err := lockGatewayTransaction(ctx, tx, w.ID, orderID)
		if err != nil {
			return err
		}

		switch pending.Status {
		case model.TxCompleted:
			res = &Settlement{
				Transaction: *pending,
				Wallet:      *w,
				Replayed:    true,
				Overpaid:    pending.Type == model.TxWalletLoad && pending.UserServiceID != nil,
			}
			if pending.UserServiceID != nil {
				if res.UserService, err = lockUserService(ctx, tx, userID, *pending.UserServiceID); err != nil {
					return err
				}
			}
			return nil
		case model.TxFailed:
			return ErrTransactionFinalized
		}

		if pending.Type == model.TxServicePayment {
			res, err = settleServicePayment(ctx, tx, w, userID, pending, paymentID)
			return err
		}

		done, err := completeTransaction(ctx, tx, pending.ID, paymentID)
		if err != nil {
			return err
		}
		if err := applyToWallet(ctx, tx, w, *done); err != nil {
			return err
		}

		res = &Settlement{Transaction: *done, Wallet: *w}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func settleServicePayment(ctx context.Context, tx pgx.Tx, w *model.Wallet, userID string, pending *model.WalletTransaction, paymentID string) (*Settlement, error) {
	if pending.UserServiceID == nil {
		return nil, fmt.Errorf("service payment %s without user service", pending.ID)
	}
	us, err := lockUserService(ctx, tx, userID, *pending.UserServiceID)
	if err != nil {
		return nil, err
	}

	if us.AmountPaid > 0 {
		credit, err := scanTransaction(tx.QueryRow(ctx,
			`UPDATE wallet_transactions
			 SET type = $2, status = $3, gateway_payment_id = $4, description = $5, updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+txColumns,
			pending.ID, string(model.TxWalletLoad), string(model.TxCompleted), paymentID,
			"Credited: already paid "+pending.Description,
		))
		if err != nil {
			return nil, fmt.Errorf("credit overpayment: %w", err)
		}
		if err := applyToWallet(ctx, tx, w, *credit); err != nil {
			return nil, err
		}
		return &Settlement{Transaction: *credit, Wallet: *w, UserService: us, Overpaid: true}, nil
	}

	done, err := completeTransaction(ctx, tx, pending.ID, paymentID)
	if err != nil {
		return nil, err
	}

	method := model.PaymentRazorpay
	mirror, err := insertTransaction(ctx, tx, model.WalletTransaction{
		WalletID:         w.ID,
		Type:             model.TxWalletLoad,
		Amount:           done.Amount,
		Status:           model.TxCompleted,
		PaymentMethod:    &method,
		Description:      "Gateway funding for " + done.Description,
		GatewayOrderID:   done.GatewayOrderID,
		GatewayPaymentID: &paymentID,
		UserServiceID:    done.UserServiceID,
	})
	if err != nil {
		return nil, err
	}
	if err := applyToWallet(ctx, tx, w, *mirror); err != nil {
		return nil, err
	}
	if err := applyToWallet(ctx, tx, w, *done); err != nil {
		return nil, err
	}

	paid, err := markUserServicePaid(ctx, tx, us.ID, done.Amount)
	if err != nil {
		return nil, err
	}
	return &Settlement{Transaction: *done, Wallet: *w, UserService: paid}, nil
}

// FailGatewayPayment переводит ожидающую операцию заказа шлюза в FAILED.
// Уже проваленная операция возвращается без изменений.
func (r *PostgresRepository) FailGatewayPayment(ctx context.Context, userID, orderID, reason string) (*model.WalletTransaction, error) {
	var res *model.WalletTransaction

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		w, err := lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}

		t, err := lockGatewayTransaction(ctx, tx, w.ID, orderID)
		if err != nil {
			return err
		}

		switch t.Status {
		case model.TxFailed:
			res = t
			return nil
		case model.TxCompleted:
			return ErrTransactionFinalized
		}

		res, err = scanTransaction(tx.QueryRow(ctx,
			`UPDATE wallet_transactions SET status = $2, description = $3, updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+txColumns,
			t.ID, string(model.TxFailed), reason,
		))
		if err != nil {
			return fmt.Errorf("fail transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PayServiceFromWallet списывает стоимость услуги с кошелька и отмечает услугу оплаченной
// в одной транзакции.
func (r *PostgresRepository) PayServiceFromWallet(ctx context.Context, userID, userServiceID string, amount model.Money, description string) (*Settlement, error) {
	var res *Settlement

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		w, err := lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if w.Status == model.WalletSuspended {
			return ErrWalletSuspended
		}

		us, err := lockUserService(ctx, tx, userID, userServiceID)
		if err != nil {
			return err
		}
		if us.AmountPaid > 0 {
			return ErrAlreadyPaid
		}
		if err := ensureNoPendingPayment(ctx, tx, us.ID); err != nil {
			return err
		}

		method := model.PaymentWallet
		payment := model.WalletTransaction{
			WalletID:      w.ID,
			Type:          model.TxServicePayment,
			Amount:        amount,
			Status:        model.TxCompleted,
			PaymentMethod: &method,
			Description:   description,
			UserServiceID: &us.ID,
		}
		if err := applyToWallet(ctx, tx, w, payment); err != nil {
			return err
		}

		created, err := insertTransaction(ctx, tx, payment)
		if err != nil {
			return err
		}

		paid, err := markUserServicePaid(ctx, tx, us.ID, amount)
		if err != nil {
			return err
		}

		res = &Settlement{Transaction: *created, Wallet: *w, UserService: paid}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Refund зачисляет возврат на кошелёк пользователя.
func (r *PostgresRepository) Refund(ctx context.Context, userID string, amount model.Money, description string) (*Settlement, error) {
	var res *Settlement

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		w, err := lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}

		method := model.PaymentAdmin
		refund := model.WalletTransaction{
			WalletID:      w.ID,
			Type:          model.TxRefund,
			Amount:        amount,
			Status:        model.TxCompleted,
			PaymentMethod: &method,
			Description:   description,
		}
		if err := applyToWallet(ctx, tx, w, refund); err != nil {
			return err
		}

		created, err := insertTransaction(ctx, tx, refund)
		if err != nil {
			return err
		}

		res = &Settlement{Transaction: *created, Wallet: *w}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SetWalletStatus изменяет статус кошелька пользователя.
func (r *PostgresRepository) SetWalletStatus(ctx context.Context, userID string, status model.WalletStatus) (*model.Wallet, error) {
	if _, err := ensureWallet(ctx, r.pool, userID); err != nil {
		return nil, err
	}
	w, err := scanWallet(r.pool.QueryRow(ctx,
		`UPDATE wallets SET status = $2, updated_at = NOW() WHERE user_id = $1 RETURNING `+walletColumns,
		userID, string(status),
	))
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

// ExpirePendingTransactions переводит в FAILED операции, ожидающие дольше before.
func (r *PostgresRepository) ExpirePendingTransactions(ctx context.Context, before time.Time, reason string) (int64, error) {
	var n int64
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE wallet_transactions SET status = $1, description = $2, updated_at = NOW()
			 WHERE status = $3 AND created_at < $4`,
			string(model.TxFailed), reason, string(model.TxPending), before,
		)
		if err != nil {
			return fmt.Errorf("expire pending transactions: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}
