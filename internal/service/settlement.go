package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/gateway"
	"github.com/mmeshcher/apse-storefront/internal/ledger"
	"github.com/mmeshcher/apse-storefront/internal/metrics"
	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/pricing"
	"github.com/mmeshcher/apse-storefront/internal/repository"
)

// PurchaseRequest описывает начало работы над услугой.
type PurchaseRequest struct {
	// CalculatedPrice содержит цену, показанную клиенту. Если она расходится
	// с расчётом сервера, покупка отклоняется.
	CalculatedPrice *model.Money
	// Filters, если заданы, используются для расчёта цены на сервере.
	Filters *pricing.Filters
	// IdempotencyKey связывает повторные запросы с первой созданной записью.
	IdempotencyKey string
}

// ServicePayment описывает результат подтверждения оплаты услуги.
type ServicePayment struct {
	UserService *model.UserService       `json:"userService"`
	Transaction *model.WalletTransaction `json:"transaction"`
}

// PurchaseService создаёт услугу пользователя в статусе IN_PROGRESS без оплаты.
// Без ключа идемпотентности каждый вызов создаёт новую запись; наличие
// неоплаченной записи для той же услуги только логируется.
func (s *Service) PurchaseService(ctx context.Context, userID, serviceID string, req PurchaseRequest) (*model.UserService, error) {
	svc, err := s.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive {
		return nil, ErrServiceInactive
	}

	price, err := s.purchasePrice(*svc, req)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey == "" {
		unpaid, err := s.repo.CountUnpaidUserServices(ctx, userID, serviceID)
		if err != nil {
			return nil, err
		}
		if unpaid > 0 {
			s.logger.Warn("duplicate purchase: unpaid user service already exists",
				zap.String("userID", userID), zap.String("serviceID", serviceID), zap.Int("unpaid", unpaid))
		}
	}

	us, created, err := s.repo.CreateUserService(ctx, model.UserService{
		UserID:    userID,
		ServiceID: svc.ID,
		Stage:     svc.Stage,
		Status:    model.UserServiceInProgress,
		Price:     price,
	}, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Info("service purchase initiated",
			zap.String("userID", userID), zap.String("userServiceID", us.ID), zap.Stringer("price", price))
	}
	return us, nil
}

// purchasePrice рассчитывает цену на сервере. Цена, показанная клиенту,
// только сверяется с расчётом.
func (s *Service) purchasePrice(svc model.Service, req PurchaseRequest) (model.Money, error) {
	f := pricing.Filters{}
	if req.Filters != nil {
		f = *req.Filters
	}
	q, err := pricing.Resolve(svc, f, s.currency)
	if err != nil {
		return 0, err
	}
	if req.CalculatedPrice != nil && *req.CalculatedPrice != q.CalculatedPrice {
		return 0, ErrAmountMismatch
	}
	return q.CalculatedPrice, nil
}

// CreateServiceOrder проводит оплату услуги выбранным способом.
// WALLET списывает сумму с кошелька сразу. RAZORPAY создаёт заказ шлюза на полную сумму
// и ожидающую операцию, которая будет проведена после проверки платежа.
func (s *Service) CreateServiceOrder(ctx context.Context, userID, userServiceID string, amount model.Money, method model.PaymentMethod) (*GatewayOrder, error) {
	if amount <= 0 {
		return nil, ledger.ErrNonPositiveAmount
	}

	us, err := s.repo.GetUserService(ctx, userID, userServiceID)
	if err != nil {
		return nil, err
	}
	if us.AmountPaid > 0 {
		return nil, repository.ErrAlreadyPaid
	}
	if us.Price != amount {
		return nil, ErrAmountMismatch
	}

	description := "Payment for " + string(us.Stage)

	switch method {
	case model.PaymentWallet:
		if _, err := s.repo.PayServiceFromWallet(ctx, userID, us.ID, amount, description); err != nil {
			return nil, err
		}
		s.metrics.Settled(metrics.BranchWallet)
		s.logger.Info("service paid from wallet",
			zap.String("userID", userID), zap.String("userServiceID", us.ID), zap.Stringer("amount", amount))
		return &GatewayOrder{Amount: int64(amount), Currency: s.currency, Paid: true}, nil

	case model.PaymentRazorpay:
		if s.gateway == nil {
			return nil, gateway.ErrNotConfigured
		}
		order, err := s.gateway.CreateOrder(ctx, amount, s.currency, receipt("svc"), map[string]string{
			"user_id":         userID,
			"user_service_id": us.ID,
			"purpose":         metrics.PurposeServicePayment,
		})
		if err != nil {
			return nil, err
		}

		pm := model.PaymentRazorpay
		_, err = s.repo.CreatePendingTransaction(ctx, userID, model.WalletTransaction{
			Type:           model.TxServicePayment,
			Amount:         amount,
			PaymentMethod:  &pm,
			Description:    description,
			GatewayOrderID: &order.ID,
			UserServiceID:  &us.ID,
		})
		if err != nil {
			return nil, err
		}

		s.metrics.GatewayOrderCreated(metrics.PurposeServicePayment)
		s.logger.Info("gateway order created",
			zap.String("userID", userID), zap.String("orderID", order.ID),
			zap.String("purpose", metrics.PurposeServicePayment), zap.Stringer("amount", amount))
		return &GatewayOrder{
			OrderID:  order.ID,
			Amount:   int64(order.Amount),
			Currency: order.Currency,
			KeyID:    s.gateway.KeyID(),
		}, nil
	}

	return nil, ErrInvalidPaymentMethod
}

// VerifyServicePayment проверяет платёж шлюза за услугу и отмечает услугу оплаченной.
func (s *Service) VerifyServicePayment(ctx context.Context, userID, userServiceID string, proof PaymentProof) (*ServicePayment, error) {
	res, err := s.verifyGatewayPayment(ctx, userID, proof, metrics.PurposeServicePayment)
	if err != nil {
		return nil, err
	}

	if res.Transaction.UserServiceID == nil || *res.Transaction.UserServiceID != userServiceID {
		s.logger.Warn("verified order belongs to another user service",
			zap.String("orderID", proof.OrderID), zap.String("userServiceID", userServiceID))
	}
	if res.Overpaid {
		s.logger.Warn("gateway payment for already paid service credited to wallet",
			zap.String("userID", userID), zap.String("orderID", proof.OrderID),
			zap.String("userServiceID", userServiceID), zap.Stringer("amount", res.Transaction.Amount))
	}
	if !res.Replayed && !res.Overpaid {
		s.metrics.Settled(metrics.BranchGateway)
	}

	return &ServicePayment{UserService: res.UserService, Transaction: &res.Transaction}, nil
}

// ListUserServices возвращает услуги пользователя.
func (s *Service) ListUserServices(ctx context.Context, userID string) ([]model.UserService, error) {
	return s.repo.ListUserServices(ctx, userID)
}
