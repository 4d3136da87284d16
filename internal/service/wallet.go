package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/gateway"
	"github.com/mmeshcher/apse-storefront/internal/metrics"
	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/repository"
	"github.com/mmeshcher/apse-storefront/internal/validation"
)

// CancelledByUser задаёт причину отказа при закрытии окна оплаты пользователем.
const CancelledByUser = "Payment cancelled by user"

// GatewayOrder описывает заказ шлюза, который клиент передаёт в виджет оплаты.
// Amount указан в пайсах. Paid означает, что оплата уже проведена с кошелька.
type GatewayOrder struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId,omitempty"`
	Paid     bool   `json:"paid,omitempty"`
}

// PaymentProof описывает ответ виджета оплаты, передаваемый без изменений.
type PaymentProof struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

// TransactionHistory содержит журнал операций вместе с текущим балансом.
type TransactionHistory struct {
	Balance      model.Money               `json:"balance"`
	Currency     string                    `json:"currency"`
	Transactions []model.WalletTransaction `json:"transactions"`
}

// GetWallet возвращает кошелёк пользователя, создавая его при первом обращении.
func (s *Service) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return s.repo.GetOrCreateWallet(ctx, userID)
}

// GetTransactions возвращает журнал операций кошелька.
func (s *Service) GetTransactions(ctx context.Context, userID string) (*TransactionHistory, error) {
	w, err := s.repo.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	txs, err := s.repo.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []model.WalletTransaction{}
	}

	return &TransactionHistory{Balance: w.Balance, Currency: s.currency, Transactions: txs}, nil
}

// CreateWalletOrder создаёт заказ шлюза на пополнение и ожидающую операцию пополнения.
func (s *Service) CreateWalletOrder(ctx context.Context, userID string, amount model.Money) (*GatewayOrder, error) {
	if err := validation.LoadAmount(amount); err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, gateway.ErrNotConfigured
	}

	w, err := s.repo.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w.Status == model.WalletSuspended {
		return nil, repository.ErrWalletSuspended
	}

	order, err := s.gateway.CreateOrder(ctx, amount, s.currency, receipt("wallet"), map[string]string{
		"user_id": userID,
		"purpose": metrics.PurposeWalletLoad,
	})
	if err != nil {
		return nil, err
	}

	method := model.PaymentRazorpay
	_, err = s.repo.CreatePendingTransaction(ctx, userID, model.WalletTransaction{
		Type:           model.TxWalletLoad,
		Amount:         amount,
		PaymentMethod:  &method,
		Description:    "Wallet load",
		GatewayOrderID: &order.ID,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.GatewayOrderCreated(metrics.PurposeWalletLoad)
	s.logger.Info("gateway order created",
		zap.String("userID", userID), zap.String("orderID", order.ID),
		zap.String("purpose", metrics.PurposeWalletLoad), zap.Stringer("amount", amount))

	return &GatewayOrder{
		OrderID:  order.ID,
		Amount:   int64(order.Amount),
		Currency: order.Currency,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// VerifyWalletPayment проверяет подпись платежа и зачисляет пополнение.
// Повторная проверка уже зачисленного платежа возвращает тот же результат без повторного зачисления.
// При несовпадении подписи операция переводится в FAILED.
func (s *Service) VerifyWalletPayment(ctx context.Context, userID string, proof PaymentProof) (*repository.Settlement, error) {
	return s.verifyGatewayPayment(ctx, userID, proof, metrics.PurposeWalletLoad)
}

func (s *Service) verifyGatewayPayment(ctx context.Context, userID string, proof PaymentProof, purpose string) (*repository.Settlement, error) {
	if s.gateway == nil {
		return nil, gateway.ErrNotConfigured
	}

	if err := s.gateway.VerifyPaymentSignature(proof.OrderID, proof.PaymentID, proof.Signature); err != nil {
		if !errors.Is(err, gateway.ErrSignatureMismatch) {
			return nil, err
		}
		s.metrics.PaymentVerified(purpose, "mismatch")
		if _, ferr := s.repo.FailGatewayPayment(ctx, userID, proof.OrderID, "Payment verification failed"); ferr != nil &&
			!errors.Is(ferr, repository.ErrNotFound) && !errors.Is(ferr, repository.ErrTransactionFinalized) {
			s.logger.Error("fail transaction error", zap.Error(ferr), zap.String("orderID", proof.OrderID))
		}
		s.logger.Warn("payment signature mismatch", zap.String("userID", userID), zap.String("orderID", proof.OrderID))
		return nil, err
	}

	res, err := s.repo.CompleteGatewayPayment(ctx, userID, proof.OrderID, proof.PaymentID)
	if err != nil {
		s.metrics.PaymentVerified(purpose, "error")
		return nil, err
	}

	if res.Replayed {
		s.metrics.PaymentVerified(purpose, "replay")
		return res, nil
	}

	s.metrics.PaymentVerified(purpose, "ok")
	s.logger.Info("payment verified",
		zap.String("userID", userID), zap.String("orderID", proof.OrderID),
		zap.String("purpose", purpose), zap.Stringer("balance", res.Wallet.Balance))
	return res, nil
}

// CancelPayment отмечает ожидающий платёж проваленным после закрытия окна оплаты.
func (s *Service) CancelPayment(ctx context.Context, userID, orderID string) (*model.WalletTransaction, error) {
	t, err := s.repo.FailGatewayPayment(ctx, userID, orderID, CancelledByUser)
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment cancelled", zap.String("userID", userID), zap.String("orderID", orderID))
	return t, nil
}

func receipt(prefix string) string {
	// квитанция Razorpay ограничена 40 символами
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:18])
}
