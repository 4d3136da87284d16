package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/repository"
)

// ErrEmptyRecipient возвращается, если у обычного сообщения нет адресата.
var ErrEmptyRecipient = errors.New("recipient is required")

// ListPartners возвращает одобренных партнёров по фильтру.
func (s *Service) ListPartners(ctx context.Context, f repository.PartnerFilter) ([]model.Partner, error) {
	f.Status = model.ApprovalApproved
	return s.repo.ListPartners(ctx, f)
}

// GetPartner возвращает одобренного партнёра.
func (s *Service) GetPartner(ctx context.Context, id string) (*model.Partner, error) {
	p, err := s.repo.GetPartner(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ApprovalApproved {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

// PartnerSearch описывает запрос подбора партнёров под поставку.
type PartnerSearch struct {
	ProductType string   `json:"productType"`
	Destination string   `json:"destination"`
	Volume      *float64 `json:"volume"`
	PartnerType string   `json:"partnerType"`
}

// PartnerMatches содержит найденных партнёров платформы и внешние записи рыночных данных.
type PartnerMatches struct {
	Internal []model.Partner    `json:"internal"`
	External []model.MarketData `json:"external"`
}

// SearchPartners подбирает одобренных партнёров. Совпадение специализации с товаром весит
// больше совпадения страны с направлением; при равенстве сохраняется порядок по рейтингу.
// Внешние совпадения берутся из рыночных данных по категории и географии.
func (s *Service) SearchPartners(ctx context.Context, q PartnerSearch) (*PartnerMatches, error) {
	partners, err := s.ListPartners(ctx, repository.PartnerFilter{Type: q.PartnerType})
	if err != nil {
		return nil, err
	}

	product := strings.ToLower(strings.TrimSpace(q.ProductType))
	destination := strings.TrimSpace(q.Destination)

	score := func(p model.Partner) int {
		n := 0
		if product != "" && lo.SomeBy(p.Specialties, func(sp string) bool {
			return strings.Contains(strings.ToLower(sp), product)
		}) {
			n += 2
		}
		if destination != "" && strings.EqualFold(p.Country, destination) {
			n++
		}
		return n
	}

	internal := partners
	if product != "" || destination != "" {
		internal = lo.Filter(partners, func(p model.Partner, _ int) bool { return score(p) > 0 })
	}
	slices.SortStableFunc(internal, func(a, b model.Partner) int { return cmp.Compare(score(b), score(a)) })

	external := []model.MarketData{}
	if product != "" || destination != "" {
		external, err = s.repo.ListMarketData(ctx, repository.MarketFilter{Category: q.ProductType, Geography: destination})
		if err != nil {
			return nil, err
		}
	}

	fields := []zap.Field{
		zap.String("productType", q.ProductType),
		zap.String("destination", destination),
		zap.Int("internal", len(internal)),
		zap.Int("external", len(external)),
	}
	if q.Volume != nil {
		fields = append(fields, zap.Float64("volume", *q.Volume))
	}
	s.logger.Info("partner search", fields...)

	return &PartnerMatches{Internal: nonNilSlice(internal), External: nonNilSlice(external)}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// RegisterPartner подаёт заявку партнёра от имени пользователя.
func (s *Service) RegisterPartner(ctx context.Context, userID string, p model.Partner) (*model.Partner, error) {
	p.ID = ""
	p.UserID = userID
	return s.repo.CreatePartner(ctx, p)
}

// SendMessage отправляет сообщение пользователю, партнёру или в поддержку.
// Сообщение партнёру доставляется владельцу партнёрской учётной записи.
func (s *Service) SendMessage(ctx context.Context, fromUserID string, m model.Message) (*model.Message, error) {
	m.ID = ""
	m.FromUserID = fromUserID

	if m.PartnerID != nil && m.ToUserID == nil {
		p, err := s.GetPartner(ctx, *m.PartnerID)
		if err != nil {
			return nil, err
		}
		m.ToUserID = &p.UserID
	}
	if m.ToUserID == nil && !m.IsSupport {
		return nil, ErrEmptyRecipient
	}

	return s.repo.CreateMessage(ctx, m)
}

// ListMessages возвращает папку сообщений пользователя.
func (s *Service) ListMessages(ctx context.Context, userID string, box repository.MessageBox) ([]model.Message, error) {
	return s.repo.ListMessages(ctx, userID, box)
}

// MarkMessage изменяет статус входящего сообщения.
func (s *Service) MarkMessage(ctx context.Context, userID, id string, status model.MessageStatus) (*model.Message, error) {
	return s.repo.SetMessageStatus(ctx, userID, id, status)
}

// ListMarketData возвращает рыночные данные по фильтру.
func (s *Service) ListMarketData(ctx context.Context, f repository.MarketFilter) ([]model.MarketData, error) {
	return s.repo.ListMarketData(ctx, f)
}

// PublishMarketData сохраняет запись рыночных данных, загруженную администратором.
func (s *Service) PublishMarketData(ctx context.Context, m model.MarketData) (*model.MarketData, error) {
	created, err := s.repo.CreateMarketData(ctx, m)
	if err != nil {
		return nil, err
	}

	if _, unknown := created.Data.(model.UnknownPayload); unknown {
		s.logger.Warn("market data stored with unrecognized payload", zap.String("id", created.ID), zap.String("type", string(created.Type)))
	}
	return created, nil
}
