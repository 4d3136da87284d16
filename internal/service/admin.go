package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/repository"
)

// ErrInvalidRole возвращается для неизвестной роли пользователя.
var ErrInvalidRole = errors.New("invalid role")

// ErrInvalidStatus возвращается для неизвестного статуса.
var ErrInvalidStatus = errors.New("invalid status")

const topPartnersLimit = 10

// ListPricingRules возвращает все правила цены.
func (s *Service) ListPricingRules(ctx context.Context) ([]model.PricingRule, error) {
	return s.repo.ListPricingRules(ctx, "")
}

// CreatePricingRule сохраняет правило и сбрасывает кеш каталога.
func (s *Service) CreatePricingRule(ctx context.Context, pr model.PricingRule) (*model.PricingRule, error) {
	if _, err := s.repo.GetService(ctx, pr.ServiceID); err != nil {
		return nil, err
	}

	created, err := s.repo.CreatePricingRule(ctx, pr)
	if err != nil {
		return nil, err
	}
	s.invalidateCatalog()
	return created, nil
}

// PricingRulePatch содержит изменяемые поля правила. Пустые поля не меняются.
type PricingRulePatch struct {
	Name        *string            `json:"name"`
	PricingType *model.PricingType `json:"pricingType" validate:"omitnil,oneof=FIXED PERCENTAGE"`
	Value       *float64           `json:"value" validate:"omitnil,gte=0"`
	Category    *string            `json:"category"`
	Geography   *string            `json:"geography"`
	Seasonality *string            `json:"seasonality"`
	BuyerType   *string            `json:"buyerType"`
	MinVolume   *float64           `json:"minVolume"`
	MaxVolume   *float64           `json:"maxVolume"`
	Priority    *int               `json:"priority"`
	IsActive    *bool              `json:"isActive"`
}

// UpdatePricingRule применяет изменения к правилу и сбрасывает кеш каталога.
func (s *Service) UpdatePricingRule(ctx context.Context, id string, patch PricingRulePatch) (*model.PricingRule, error) {
	pr, err := s.repo.GetPricingRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		pr.Name = patch.Name
	}
	if patch.PricingType != nil {
		pr.PricingType = *patch.PricingType
	}
	if patch.Value != nil {
		pr.Value = *patch.Value
	}
	if patch.Category != nil {
		pr.Category = emptyToNil(patch.Category)
	}
	if patch.Geography != nil {
		pr.Geography = emptyToNil(patch.Geography)
	}
	if patch.Seasonality != nil {
		pr.Seasonality = emptyToNil(patch.Seasonality)
	}
	if patch.BuyerType != nil {
		pr.BuyerType = emptyToNil(patch.BuyerType)
	}
	if patch.MinVolume != nil {
		pr.MinVolume = patch.MinVolume
	}
	if patch.MaxVolume != nil {
		pr.MaxVolume = patch.MaxVolume
	}
	if patch.Priority != nil {
		pr.Priority = *patch.Priority
	}
	if patch.IsActive != nil {
		pr.IsActive = *patch.IsActive
	}

	updated, err := s.repo.UpdatePricingRule(ctx, *pr)
	if err != nil {
		return nil, err
	}
	s.invalidateCatalog()
	return updated, nil
}

// DeletePricingRule удаляет правило и сбрасывает кеш каталога.
func (s *Service) DeletePricingRule(ctx context.Context, id string) error {
	if err := s.repo.DeletePricingRule(ctx, id); err != nil {
		return err
	}
	s.invalidateCatalog()
	return nil
}

// ListUsers возвращает пользователей, опционально с указанной ролью.
func (s *Service) ListUsers(ctx context.Context, role *model.Role) ([]model.User, error) {
	if role != nil && !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.repo.ListUsers(ctx, role)
}

// SetUserVerified изменяет признак подтверждения пользователя.
func (s *Service) SetUserVerified(ctx context.Context, id string, verified bool) (*model.User, error) {
	return s.repo.SetUserVerified(ctx, id, verified)
}

// SetUserRole изменяет роль пользователя.
func (s *Service) SetUserRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.repo.SetUserRole(ctx, id, role)
}

// RefundWallet зачисляет возврат на кошелёк пользователя.
func (s *Service) RefundWallet(ctx context.Context, userID string, amount model.Money, description string) (*repository.Settlement, error) {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	if description == "" {
		description = "Refund"
	}

	res, err := s.repo.Refund(ctx, userID, amount, description)
	if err != nil {
		return nil, err
	}
	s.logger.Info("wallet refunded", zap.String("userID", userID), zap.Stringer("amount", amount))
	return res, nil
}

// SetWalletStatus приостанавливает или возобновляет кошелёк.
func (s *Service) SetWalletStatus(ctx context.Context, userID string, status model.WalletStatus) (*model.Wallet, error) {
	if status != model.WalletActive && status != model.WalletSuspended {
		return nil, ErrInvalidStatus
	}
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.SetWalletStatus(ctx, userID, status)
}

// PendingPartners возвращает заявки партнёров на модерации.
func (s *Service) PendingPartners(ctx context.Context) ([]model.Partner, error) {
	return s.repo.ListPartners(ctx, repository.PartnerFilter{Status: model.ApprovalPending})
}

// ReviewPartner одобряет или отклоняет заявку партнёра.
func (s *Service) ReviewPartner(ctx context.Context, id string, approve bool) (*model.Partner, error) {
	status := model.ApprovalRejected
	if approve {
		status = model.ApprovalApproved
	}
	return s.repo.SetPartnerStatus(ctx, id, status)
}

// AnalyticsSummary возвращает сводные показатели.
func (s *Service) AnalyticsSummary(ctx context.Context) (*model.AnalyticsSummary, error) {
	return s.repo.AnalyticsSummary(ctx)
}

// TopPartners возвращает рейтинг партнёров.
func (s *Service) TopPartners(ctx context.Context) ([]model.TopPartner, error) {
	return s.repo.TopPartners(ctx, topPartnersLimit)
}

func emptyToNil(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}
