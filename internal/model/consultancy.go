package model

import "time"

// Stage описывает этап консалтингового процесса.
type Stage string

const (
	StageProductResearch  Stage = "PRODUCT_RESEARCH"
	StageProductSelection Stage = "PRODUCT_SELECTION"
	StageMarketSearch     Stage = "MARKET_SEARCH"
	StagePartnerMatching  Stage = "PARTNER_MATCHING"
	StageDealCompletion   Stage = "DEAL_COMPLETION"
)

// Service описывает услугу одного этапа. После загрузки из каталога не изменяется.
type Service struct {
	ID           string        `json:"id"`
	Stage        Stage         `json:"stage"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Order        int           `json:"order"`
	IsActive     bool          `json:"isActive"`
	CanStartHere bool          `json:"canStartHere"`
	PricingRules []PricingRule `json:"pricingRules"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// PricingType описывает способ расчёта цены правилом.
type PricingType string

const (
	PricingFixed      PricingType = "FIXED"
	PricingPercentage PricingType = "PERCENTAGE"
)

// PricingRule описывает условие и цену для услуги. Пустое поле условия совпадает с любым значением фильтра.
type PricingRule struct {
	ID          string      `json:"id"`
	ServiceID   string      `json:"serviceId"`
	Name        *string     `json:"name,omitempty"`
	PricingType PricingType `json:"pricingType"`
	// Value содержит фиксированную цену в рупиях для FIXED либо процент для PERCENTAGE.
	Value       float64   `json:"value"`
	Category    *string   `json:"category"`
	Geography   *string   `json:"geography"`
	Seasonality *string   `json:"seasonality"`
	BuyerType   *string   `json:"buyerType"`
	MinVolume   *float64  `json:"minVolume"`
	MaxVolume   *float64  `json:"maxVolume"`
	Priority    int       `json:"priority"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserServiceStatus описывает статус услуги пользователя.
type UserServiceStatus string

const (
	UserServiceWishList   UserServiceStatus = "WISH_LIST"
	UserServiceInProgress UserServiceStatus = "IN_PROGRESS"
	UserServiceCompleted  UserServiceStatus = "COMPLETED"
	UserServicePaused     UserServiceStatus = "PAUSED"
)

// ProgressPaid задаёт прогресс услуги сразу после подтверждения оплаты.
const ProgressPaid = 10

// UserService описывает экземпляр начатой или купленной пользователем услуги.
// Создаётся до подтверждения оплаты, поэтому может существовать с нулевой AmountPaid.
type UserService struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	ServiceID   string            `json:"serviceId"`
	Stage       Stage             `json:"stage"`
	Status      UserServiceStatus `json:"status"`
	Price       Money             `json:"price"`
	AmountPaid  Money             `json:"amountPaid"`
	Progress    int               `json:"progress"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}
