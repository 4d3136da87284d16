package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const expiryInterval = time.Minute

// PaymentExpired задаёт причину отказа для платежа, не подтверждённого вовремя.
const PaymentExpired = "Payment expired"

// StartPendingExpiry запускает фоновый процесс, переводящий зависшие ожидающие платежи в FAILED.
func (s *Service) StartPendingExpiry(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(expiryInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expirePending(ctx)
			}
		}
	}()
}

func (s *Service) expirePending(ctx context.Context) {
	n, err := s.repo.ExpirePendingTransactions(ctx, s.now().Add(-s.pendingTTL), PaymentExpired)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("expire pending payments error", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.logger.Info("pending payments expired", zap.Int64("count", n))
	}
}
