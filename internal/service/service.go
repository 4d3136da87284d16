// Package service реализует бизнес-логику витрины APSE.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/gateway"
	"github.com/mmeshcher/apse-storefront/internal/metrics"
	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/repository"
)

var (
	// ErrInvalidCredentials возвращается при неверном email или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken возвращается для недействительного токена сброса пароля или подтверждения email.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrAmountMismatch возвращается, если сумма оплаты не совпадает с ценой услуги.
	ErrAmountMismatch = errors.New("amount does not match service price")
	// ErrInvalidPaymentMethod возвращается для неизвестного способа оплаты.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrServiceInactive возвращается при покупке отключённой услуги.
	ErrServiceInactive = errors.New("service is not active")
	// ErrEmptyOrder возвращается при оформлении заказа без позиций.
	ErrEmptyOrder = errors.New("order has no items")
	// ErrAddressRequired возвращается, если для заказа не выбран адрес и нет адреса по умолчанию.
	ErrAddressRequired = errors.New("Please select a delivery address")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u model.User) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context, role *model.Role) ([]model.User, error)
	UpdateUserPassword(ctx context.Context, id string, hash []byte) error
	SetUserVerified(ctx context.Context, id string, verified bool) (*model.User, error)
	SetUserRole(ctx context.Context, id string, role model.Role) (*model.User, error)

	ListCategories(ctx context.Context) ([]model.Category, error)
	ListProducts(ctx context.Context, category string) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	GetService(ctx context.Context, id string) (*model.Service, error)
	ListPricingRules(ctx context.Context, serviceID string) ([]model.PricingRule, error)
	GetPricingRule(ctx context.Context, id string) (*model.PricingRule, error)
	CreatePricingRule(ctx context.Context, pr model.PricingRule) (*model.PricingRule, error)
	UpdatePricingRule(ctx context.Context, pr model.PricingRule) (*model.PricingRule, error)
	DeletePricingRule(ctx context.Context, id string) error

	CreateOrder(ctx context.Context, userID string, lines []repository.OrderLine, ship repository.Shipping) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID string, status model.OrderStatus) ([]model.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error)

	ListAddresses(ctx context.Context, userID string) ([]model.Address, error)
	GetAddress(ctx context.Context, userID, id string) (*model.Address, error)
	GetDefaultAddress(ctx context.Context, userID string) (*model.Address, error)
	CreateAddress(ctx context.Context, a model.Address) (*model.Address, error)
	SetDefaultAddress(ctx context.Context, userID, id string) (*model.Address, error)

	CreateUserService(ctx context.Context, us model.UserService, idempotencyKey string) (*model.UserService, bool, error)
	GetUserService(ctx context.Context, userID, id string) (*model.UserService, error)
	ListUserServices(ctx context.Context, userID string) ([]model.UserService, error)
	CountUnpaidUserServices(ctx context.Context, userID, serviceID string) (int, error)

	GetOrCreateWallet(ctx context.Context, userID string) (*model.Wallet, error)
	ListTransactions(ctx context.Context, userID string) ([]model.WalletTransaction, error)
	CreatePendingTransaction(ctx context.Context, userID string, t model.WalletTransaction) (*model.WalletTransaction, error)
	CompleteGatewayPayment(ctx context.Context, userID, orderID, paymentID string) (*repository.Settlement, error)
	FailGatewayPayment(ctx context.Context, userID, orderID, reason string) (*model.WalletTransaction, error)
	PayServiceFromWallet(ctx context.Context, userID, userServiceID string, amount model.Money, description string) (*repository.Settlement, error)
	Refund(ctx context.Context, userID string, amount model.Money, description string) (*repository.Settlement, error)
	SetWalletStatus(ctx context.Context, userID string, status model.WalletStatus) (*model.Wallet, error)
	ExpirePendingTransactions(ctx context.Context, before time.Time, reason string) (int64, error)

	ListPartners(ctx context.Context, f repository.PartnerFilter) ([]model.Partner, error)
	GetPartner(ctx context.Context, id string) (*model.Partner, error)
	CreatePartner(ctx context.Context, p model.Partner) (*model.Partner, error)
	SetPartnerStatus(ctx context.Context, id string, status model.ApprovalStatus) (*model.Partner, error)

	CreateMessage(ctx context.Context, m model.Message) (*model.Message, error)
	ListMessages(ctx context.Context, userID string, box repository.MessageBox) ([]model.Message, error)
	SetMessageStatus(ctx context.Context, userID, id string, status model.MessageStatus) (*model.Message, error)

	ListMarketData(ctx context.Context, f repository.MarketFilter) ([]model.MarketData, error)
	CreateMarketData(ctx context.Context, m model.MarketData) (*model.MarketData, error)

	AnalyticsSummary(ctx context.Context) (*model.AnalyticsSummary, error)
	TopPartners(ctx context.Context, limit int) ([]model.TopPartner, error)
}

// Gateway описывает платёжный шлюз.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, amount model.Money, currency, receipt string, notes map[string]string) (*gateway.Order, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) error
}

// Tokens выпускает и проверяет одноцелевые токены (сброс пароля, подтверждение email).
type Tokens interface {
	IssuePurpose(userID, purpose string, ttl time.Duration) (string, error)
	ParsePurpose(token, purpose string) (string, error)
}

// Notifier доставляет пользователю ссылку с токеном.
type Notifier interface {
	Notify(ctx context.Context, email, subject, token string) error
}

// Options содержит необязательные зависимости и параметры сервиса.
type Options struct {
	Tokens            Tokens
	Notifier          Notifier
	Metrics           *metrics.Collectors
	Logger            *zap.Logger
	Currency          string
	CatalogCacheTTL   time.Duration
	PendingPaymentTTL time.Duration
}

// Service содержит бизнес-логику витрины.
type Service struct {
	repo       Repository
	gateway    Gateway
	tokens     Tokens
	notifier   Notifier
	metrics    *metrics.Collectors
	logger     *zap.Logger
	catalog    *cache.Cache
	currency   string
	pendingTTL time.Duration
	now        func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и платёжным шлюзом.
// Шлюз может быть nil: тогда оплата через шлюз недоступна.
func NewService(repo Repository, gw Gateway, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.CatalogCacheTTL <= 0 {
		opts.CatalogCacheTTL = 5 * time.Minute
	}
	if opts.PendingPaymentTTL <= 0 {
		opts.PendingPaymentTTL = 30 * time.Minute
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: opts.Logger}
	}

	return &Service{
		repo:       repo,
		gateway:    gw,
		tokens:     opts.Tokens,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		catalog:    cache.New(opts.CatalogCacheTTL, 2*opts.CatalogCacheTTL),
		currency:   opts.Currency,
		pendingTTL: opts.PendingPaymentTTL,
		now:        time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Currency возвращает валюту витрины.
func (s *Service) Currency() string {
	return s.currency
}

// LogNotifier пишет ссылки в лог вместо отправки писем.
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify логирует уведомление.
func (n LogNotifier) Notify(_ context.Context, email, subject, token string) error {
	n.Logger.Info("notification", zap.String("email", email), zap.String("subject", subject), zap.String("token", token))
	return nil
}
