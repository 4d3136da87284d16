// Package pricing выбирает правило цены для услуги и рассчитывает стоимость.
package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

var (
	// ErrVolumeRequired возвращается, если процентное правило применено без объёма сделки.
	ErrVolumeRequired = errors.New("volume is required for percentage pricing")
	// ErrInvalidPrice возвращается, если рассчитанная цена отрицательна или не представима.
	ErrInvalidPrice = errors.New("calculated price is out of range")
)

// Filters содержит параметры запроса цены. Пустые поля не заданы.
type Filters struct {
	Category    *string  `json:"category,omitempty"`
	Geography   *string  `json:"geography,omitempty"`
	Volume      *float64 `json:"volume,omitempty"`
	Seasonality *string  `json:"seasonality,omitempty"`
	BuyerType   *string  `json:"buyerType,omitempty"`
}

// AppliedRule описывает правило, по которому рассчитана цена.
type AppliedRule struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Type  model.PricingType `json:"type"`
	Value float64           `json:"value"`
}

// Quote описывает результат расчёта цены. AppliedRule пуст, если ни одно правило не подошло:
// в этом случае услуга считается бесплатной.
type Quote struct {
	ServiceID       string       `json:"serviceId"`
	ServiceName     string       `json:"serviceName"`
	AppliedRule     *AppliedRule `json:"appliedRule"`
	CalculatedPrice model.Money  `json:"calculatedPrice"`
	Currency        string       `json:"currency"`
}

// Matches сообщает, подходит ли правило под фильтры.
func Matches(r model.PricingRule, f Filters) bool {
	if !r.IsActive {
		return false
	}

	if !fieldMatches(r.Category, f.Category) ||
		!fieldMatches(r.Geography, f.Geography) ||
		!fieldMatches(r.Seasonality, f.Seasonality) ||
		!fieldMatches(r.BuyerType, f.BuyerType) {
		return false
	}

	if r.MinVolume == nil && r.MaxVolume == nil {
		return true
	}
	if f.Volume == nil {
		return false
	}
	if r.MinVolume != nil && *f.Volume < *r.MinVolume {
		return false
	}
	if r.MaxVolume != nil && *f.Volume > *r.MaxVolume {
		return false
	}
	return true
}

func fieldMatches(rule, filter *string) bool {
	if rule == nil {
		return true
	}
	if filter == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*rule), strings.TrimSpace(*filter))
}

// Specificity возвращает число заданных условий правила.
func Specificity(r model.PricingRule) int {
	return lo.CountBy([]bool{
		r.Category != nil,
		r.Geography != nil,
		r.Seasonality != nil,
		r.BuyerType != nil,
		r.MinVolume != nil,
		r.MaxVolume != nil,
	}, func(set bool) bool { return set })
}

// Select возвращает наиболее конкретное подходящее правило.
// При равенстве выигрывает больший приоритет, затем более раннее создание, затем меньший id.
func Select(rules []model.PricingRule, f Filters) (model.PricingRule, bool) {
	candidates := lo.Filter(rules, func(r model.PricingRule, _ int) bool {
		return Matches(r, f)
	})
	if len(candidates) == 0 {
		return model.PricingRule{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if sa, sb := Specificity(a), Specificity(b); sa != sb {
			return sa > sb
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return candidates[0], true
}

// Price рассчитывает цену по правилу. Для PERCENTAGE объём означает стоимость сделки в рупиях.
func Price(r model.PricingRule, f Filters) (model.Money, error) {
	value := decimal.NewFromFloat(r.Value)

	switch r.PricingType {
	case model.PricingPercentage:
		if f.Volume == nil {
			return 0, ErrVolumeRequired
		}
		return checkedPrice(value.Mul(decimal.NewFromFloat(*f.Volume)).Div(decimal.NewFromInt(100)))
	default:
		return checkedPrice(value)
	}
}

func checkedPrice(d decimal.Decimal) (model.Money, error) {
	price, err := model.MoneyFromDecimal(d)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPrice, err)
	}
	if price < 0 {
		return 0, fmt.Errorf("%w: negative price %s", ErrInvalidPrice, price)
	}
	return price, nil
}

// Resolve рассчитывает цену услуги по её правилам.
func Resolve(svc model.Service, f Filters, currency string) (Quote, error) {
	q := Quote{
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		Currency:    currency,
	}

	rule, ok := Select(svc.PricingRules, f)
	if !ok {
		return q, nil
	}

	price, err := Price(rule, f)
	if err != nil {
		return Quote{}, err
	}

	q.AppliedRule = &AppliedRule{
		ID:    rule.ID,
		Name:  lo.FromPtrOr(rule.Name, string(rule.PricingType)),
		Type:  rule.PricingType,
		Value: rule.Value,
	}
	q.CalculatedPrice = price
	return q, nil
}
