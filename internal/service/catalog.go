package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/pricing"
	"github.com/mmeshcher/apse-storefront/internal/repository"
)

const servicesCacheKey = "services"

func serviceCacheKey(id string) string {
	return "service:" + id
}

// ListCategories возвращает категории товаров.
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListCategories(ctx)
}

// ListProducts возвращает товары категории либо все товары.
func (s *Service) ListProducts(ctx context.Context, category string) ([]model.Product, error) {
	return s.repo.ListProducts(ctx, category)
}

// GetProduct возвращает товар.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListServices возвращает активные услуги с правилами цены. Результат кешируется
// до изменения правил администратором.
func (s *Service) ListServices(ctx context.Context) ([]model.Service, error) {
	if v, ok := s.catalog.Get(servicesCacheKey); ok {
		return v.([]model.Service), nil
	}

	services, err := s.repo.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	s.catalog.Set(servicesCacheKey, services, cache.DefaultExpiration)
	return services, nil
}

// GetService возвращает услугу с правилами цены.
func (s *Service) GetService(ctx context.Context, id string) (*model.Service, error) {
	key := serviceCacheKey(id)
	if v, ok := s.catalog.Get(key); ok {
		svc := v.(model.Service)
		return &svc, nil
	}

	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	s.catalog.Set(key, *svc, cache.DefaultExpiration)
	return svc, nil
}

// CalculatePrice рассчитывает цену услуги по фильтрам.
func (s *Service) CalculatePrice(ctx context.Context, serviceID string, f pricing.Filters) (*pricing.Quote, error) {
	svc, err := s.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	q, err := pricing.Resolve(*svc, f, s.currency)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// invalidateCatalog сбрасывает кеш услуг после изменения правил цены.
func (s *Service) invalidateCatalog() {
	s.catalog.Flush()
}

// PlaceOrder оформляет заказ товаров. Повторяющиеся позиции объединяются.
// Адрес берётся из адресной книги, из строки запроса либо из адреса по умолчанию.
func (s *Service) PlaceOrder(ctx context.Context, userID string, items []model.OrderItem, d Delivery) (*model.Order, error) {
	items = lo.Filter(items, func(it model.OrderItem, _ int) bool { return it.Quantity > 0 })
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	grouped := lo.GroupBy(items, func(it model.OrderItem) int64 { return it.ProductID })
	lines := make([]repository.OrderLine, 0, len(grouped))
	for _, it := range lo.UniqBy(items, func(it model.OrderItem) int64 { return it.ProductID }) {
		lines = append(lines, repository.OrderLine{
			ProductID: it.ProductID,
			Quantity:  lo.SumBy(grouped[it.ProductID], func(g model.OrderItem) int { return g.Quantity }),
		})
	}

	ship, err := s.shipping(ctx, userID, d)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.CreateOrder(ctx, userID, lines, ship)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	return order, nil
}

// GetOrders возвращает заказы пользователя. Пустой статус или "all" означает все заказы,
// регистр статуса не важен.
func (s *Service) GetOrders(ctx context.Context, userID, status string) ([]model.Order, error) {
	st, err := orderStatusFilter(status)
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrdersByUser(ctx, userID, st)
}

func orderStatusFilter(status string) (model.OrderStatus, error) {
	status = strings.TrimSpace(status)
	if status == "" || strings.EqualFold(status, "all") {
		return "", nil
	}
	st := model.OrderStatus(strings.ToUpper(status))
	if !lo.Contains(model.OrderStatuses, st) {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// GetOrder возвращает заказ пользователя.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	return s.repo.GetOrder(ctx, userID, orderID)
}
