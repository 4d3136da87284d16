// Package handler содержит HTTP-обработчики API витрины APSE.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/gateway"
	"github.com/mmeshcher/apse-storefront/internal/ledger"
	"github.com/mmeshcher/apse-storefront/internal/middleware"
	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/pricing"
	"github.com/mmeshcher/apse-storefront/internal/repository"
	"github.com/mmeshcher/apse-storefront/internal/service"
	"github.com/mmeshcher/apse-storefront/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	Currency() string

	RegisterUser(ctx context.Context, reg service.Registration) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	VerifyEmail(ctx context.Context, token string) (*model.User, error)
	ResendVerification(ctx context.Context, email string) error

	ListCategories(ctx context.Context) ([]model.Category, error)
	ListProducts(ctx context.Context, category string) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	GetService(ctx context.Context, id string) (*model.Service, error)
	CalculatePrice(ctx context.Context, serviceID string, f pricing.Filters) (*pricing.Quote, error)
	PlaceOrder(ctx context.Context, userID string, items []model.OrderItem, d service.Delivery) (*model.Order, error)
	GetOrders(ctx context.Context, userID, status string) ([]model.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error)
	ListAddresses(ctx context.Context, userID string) ([]model.Address, error)
	AddAddress(ctx context.Context, userID string, a model.Address) (*model.Address, error)
	SetDefaultAddress(ctx context.Context, userID, id string) (*model.Address, error)

	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)
	GetTransactions(ctx context.Context, userID string) (*service.TransactionHistory, error)
	CreateWalletOrder(ctx context.Context, userID string, amount model.Money) (*service.GatewayOrder, error)
	VerifyWalletPayment(ctx context.Context, userID string, proof service.PaymentProof) (*repository.Settlement, error)
	CancelPayment(ctx context.Context, userID, orderID string) (*model.WalletTransaction, error)

	PurchaseService(ctx context.Context, userID, serviceID string, req service.PurchaseRequest) (*model.UserService, error)
	CreateServiceOrder(ctx context.Context, userID, userServiceID string, amount model.Money, method model.PaymentMethod) (*service.GatewayOrder, error)
	VerifyServicePayment(ctx context.Context, userID, userServiceID string, proof service.PaymentProof) (*service.ServicePayment, error)
	ListUserServices(ctx context.Context, userID string) ([]model.UserService, error)

	ListPricingRules(ctx context.Context) ([]model.PricingRule, error)
	CreatePricingRule(ctx context.Context, pr model.PricingRule) (*model.PricingRule, error)
	UpdatePricingRule(ctx context.Context, id string, patch service.PricingRulePatch) (*model.PricingRule, error)
	DeletePricingRule(ctx context.Context, id string) error
	ListUsers(ctx context.Context, role *model.Role) ([]model.User, error)
	SetUserVerified(ctx context.Context, id string, verified bool) (*model.User, error)
	SetUserRole(ctx context.Context, id string, role model.Role) (*model.User, error)
	RefundWallet(ctx context.Context, userID string, amount model.Money, description string) (*repository.Settlement, error)
	SetWalletStatus(ctx context.Context, userID string, status model.WalletStatus) (*model.Wallet, error)
	PendingPartners(ctx context.Context) ([]model.Partner, error)
	ReviewPartner(ctx context.Context, id string, approve bool) (*model.Partner, error)
	AnalyticsSummary(ctx context.Context) (*model.AnalyticsSummary, error)
	TopPartners(ctx context.Context) ([]model.TopPartner, error)

	ListPartners(ctx context.Context, f repository.PartnerFilter) ([]model.Partner, error)
	GetPartner(ctx context.Context, id string) (*model.Partner, error)
	SearchPartners(ctx context.Context, q service.PartnerSearch) (*service.PartnerMatches, error)
	RegisterPartner(ctx context.Context, userID string, p model.Partner) (*model.Partner, error)
	SendMessage(ctx context.Context, fromUserID string, m model.Message) (*model.Message, error)
	ListMessages(ctx context.Context, userID string, box repository.MessageBox) ([]model.Message, error)
	MarkMessage(ctx context.Context, userID, id string, status model.MessageStatus) (*model.Message, error)
	ListMarketData(ctx context.Context, f repository.MarketFilter) ([]model.MarketData, error)
	PublishMarketData(ctx context.Context, m model.MarketData) (*model.MarketData, error)
}

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// metrics может быть nil: тогда /metrics не публикуется.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, metrics http.Handler) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		metrics:        metrics,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: true, Message: msg})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// decode читает тело запроса и проверяет теги validate.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validation.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
	}
	return id, ok
}

var badRequestErrors = []error{
	validation.ErrAmountTooSmall,
	validation.ErrAmountTooLarge,
	pricing.ErrVolumeRequired,
	pricing.ErrInvalidPrice,
	ledger.ErrNonPositiveAmount,
	service.ErrInvalidToken,
	service.ErrAmountMismatch,
	service.ErrInvalidPaymentMethod,
	service.ErrServiceInactive,
	service.ErrEmptyOrder,
	service.ErrAddressRequired,
	service.ErrInvalidRole,
	service.ErrInvalidStatus,
	service.ErrEmptyRecipient,
}

// fail отвечает статусом, соответствующим ошибке. Неожиданные ошибки логируются.
func (h *Handler) fail(w http.ResponseWriter, err error, op string, fields ...zap.Field) {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			respondError(w, http.StatusBadRequest, target.Error())
			return
		}
	}

	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, repository.ErrUserExists):
		respondError(w, http.StatusConflict, "User already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, repository.ErrInsufficientBalance):
		respondError(w, http.StatusPaymentRequired, "Insufficient wallet balance")
	case errors.Is(err, repository.ErrWalletSuspended):
		respondError(w, http.StatusForbidden, "Wallet is suspended")
	case errors.Is(err, repository.ErrAlreadyPaid),
		errors.Is(err, repository.ErrPaymentPending),
		errors.Is(err, repository.ErrTransactionFinalized),
		errors.Is(err, repository.ErrDuplicateOrder):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gateway.ErrSignatureMismatch):
		respondError(w, http.StatusBadRequest, "Payment verification failed")
	case errors.Is(err, gateway.ErrNotConfigured):
		respondError(w, http.StatusServiceUnavailable, "Payment gateway is not available")
	default:
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Health проверяет доступность хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("health check error", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	respondMessage(w, http.StatusOK, "ok")
}
