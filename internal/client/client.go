// Package client предоставляет типизированный клиент REST API витрины APSE.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/pricing"
)

// ErrUnauthorized возвращается, если API ответил 401.
var ErrUnauthorized = errors.New("unauthorized")

// APIError описывает ответ API с success=false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Unwrap позволяет проверять 401 через errors.Is(err, ErrUnauthorized).
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client инкапсулирует HTTP-взаимодействие с API витрины.
// Запросы не повторяются автоматически.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient создаёт клиент для API по адресу вида http://host:port/api.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetToken задаёт bearer-токен для последующих запросов. Пустая строка сбрасывает его.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token возвращает текущий bearer-токен.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, header http.Header) (string, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return "", fmt.Errorf("decode response: %w", err)
	}

	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("decode data: %w", err)
		}
	}
	return env.Message, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	_, err := c.do(ctx, http.MethodGet, path, nil, out, nil)
	return err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	_, err := c.do(ctx, http.MethodPost, path, body, out, nil)
	return err
}

// AuthResult содержит токен доступа и профиль пользователя.
type AuthResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Login выполняет вход и запоминает выданный токен.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var res AuthResult
	err := c.post(ctx, "/auth/login", map[string]string{"email": email, "password": password}, &res)
	if err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

// Me возвращает профиль текущего пользователя.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.get(ctx, "/auth/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Categories возвращает категории товаров.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var res []model.Category
	if err := c.get(ctx, "/categories", &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Products возвращает товары, опционально по категории.
func (c *Client) Products(ctx context.Context, category string) ([]model.Product, error) {
	path := "/products"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}

	var res []model.Product
	if err := c.get(ctx, path, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Product возвращает товар.
func (c *Client) Product(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	if err := c.get(ctx, fmt.Sprintf("/products/%d", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Services возвращает услуги вместе с правилами цены.
func (c *Client) Services(ctx context.Context) ([]model.Service, error) {
	var res []model.Service
	if err := c.get(ctx, "/services", &res); err != nil {
		return nil, err
	}
	return res, nil
}

// CalculatePrice запрашивает расчёт цены услуги.
func (c *Client) CalculatePrice(ctx context.Context, serviceID string, f pricing.Filters) (*pricing.Quote, error) {
	var q pricing.Quote
	if err := c.post(ctx, "/services/"+url.PathEscape(serviceID)+"/calculate-price", f, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// PurchaseRequest описывает тело запроса на начало работы над услугой.
type PurchaseRequest struct {
	CalculatedPrice *model.Money     `json:"calculatedPrice,omitempty"`
	PaymentMethod   string           `json:"paymentMethod,omitempty"`
	Filters         *pricing.Filters `json:"filters,omitempty"`
	// IdempotencyKey передаётся в заголовке Idempotency-Key, если задан.
	IdempotencyKey string `json:"-"`
}

// PurchaseService создаёт услугу пользователя в статусе IN_PROGRESS.
func (c *Client) PurchaseService(ctx context.Context, serviceID string, req PurchaseRequest) (*model.UserService, error) {
	var header http.Header
	if req.IdempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{req.IdempotencyKey}}
	}

	var us model.UserService
	_, err := c.do(ctx, http.MethodPost, "/services/"+url.PathEscape(serviceID)+"/purchase", req, &us, header)
	if err != nil {
		return nil, err
	}
	return &us, nil
}

// MyServices возвращает услуги текущего пользователя.
func (c *Client) MyServices(ctx context.Context) ([]model.UserService, error) {
	var res []model.UserService
	if err := c.get(ctx, "/services/user/my-services", &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Wallet возвращает кошелёк текущего пользователя.
func (c *Client) Wallet(ctx context.Context) (*model.Wallet, error) {
	var w model.Wallet
	if err := c.get(ctx, "/wallet/balance", &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// TransactionHistory содержит журнал операций и текущий баланс.
type TransactionHistory struct {
	Balance      model.Money               `json:"balance"`
	Currency     string                    `json:"currency"`
	Transactions []model.WalletTransaction `json:"transactions"`
}

// Transactions возвращает журнал операций кошелька.
func (c *Client) Transactions(ctx context.Context) (*TransactionHistory, error) {
	var h TransactionHistory
	if err := c.get(ctx, "/wallet/transactions", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// GatewayOrder описывает заказ шлюза. Amount указан в пайсах.
type GatewayOrder struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId,omitempty"`
	Paid     bool   `json:"paid,omitempty"`
}

// PaymentProof описывает ответ виджета оплаты, который пересылается без изменений.
type PaymentProof struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// WalletPayment описывает результат подтверждения пополнения.
type WalletPayment struct {
	Wallet      *model.Wallet            `json:"wallet"`
	Transaction *model.WalletTransaction `json:"transaction"`
}

// ServicePayment описывает результат подтверждения оплаты услуги.
type ServicePayment struct {
	UserService *model.UserService       `json:"userService"`
	Transaction *model.WalletTransaction `json:"transaction"`
}

// CreateWalletOrder создаёт заказ шлюза на пополнение кошелька.
func (c *Client) CreateWalletOrder(ctx context.Context, amount model.Money) (*GatewayOrder, error) {
	var o GatewayOrder
	if err := c.post(ctx, "/payments/wallet/create-order", map[string]model.Money{"amount": amount}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// VerifyWalletPayment подтверждает пополнение кошелька.
func (c *Client) VerifyWalletPayment(ctx context.Context, proof PaymentProof) (*WalletPayment, error) {
	var res WalletPayment
	if err := c.post(ctx, "/payments/wallet/verify", proof, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateServiceOrder оплачивает услугу с кошелька или создаёт заказ шлюза на полную сумму.
func (c *Client) CreateServiceOrder(ctx context.Context, userServiceID string, amount model.Money, method model.PaymentMethod) (*GatewayOrder, error) {
	body := struct {
		UserServiceID string              `json:"userServiceId"`
		Amount        model.Money         `json:"amount"`
		PaymentMethod model.PaymentMethod `json:"paymentMethod"`
	}{userServiceID, amount, method}

	var o GatewayOrder
	if err := c.post(ctx, "/payments/service/create-order", body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// VerifyServicePayment подтверждает оплату услуги через шлюз.
func (c *Client) VerifyServicePayment(ctx context.Context, userServiceID string, proof PaymentProof) (*ServicePayment, error) {
	body := struct {
		PaymentProof
		UserServiceID string `json:"userServiceId"`
	}{proof, userServiceID}

	var res ServicePayment
	if err := c.post(ctx, "/payments/service/verify", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CancelPayment отмечает платёж отменённым пользователем и возвращает причину.
func (c *Client) CancelPayment(ctx context.Context, orderID string) (string, error) {
	return c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(orderID)+"/cancel", nil, nil, nil)
}

// OrderLine описывает позицию заказа.
type OrderLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Delivery задаёт адрес доставки заказа: сохранённый адрес или текст.
// Без обоих сервер берёт адрес по умолчанию.
type Delivery struct {
	AddressID       string `json:"addressId,omitempty"`
	ShippingAddress string `json:"shippingAddress,omitempty"`
}

// PlaceOrder оформляет заказ товаров. Цены пересчитываются на сервере.
func (c *Client) PlaceOrder(ctx context.Context, lines []OrderLine, d Delivery) (*model.Order, error) {
	body := struct {
		Items []OrderLine `json:"items"`
		Delivery
	}{lines, d}

	var o model.Order
	if err := c.post(ctx, "/orders", body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Orders возвращает заказы текущего пользователя, опционально по статусу.
func (c *Client) Orders(ctx context.Context, status string) ([]model.Order, error) {
	path := "/orders"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var res []model.Order
	if err := c.get(ctx, path, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Addresses возвращает адресную книгу, адрес по умолчанию первым.
func (c *Client) Addresses(ctx context.Context) ([]model.Address, error) {
	var res []model.Address
	if err := c.get(ctx, "/addresses", &res); err != nil {
		return nil, err
	}
	return res, nil
}

// AddAddress сохраняет адрес доставки.
func (c *Client) AddAddress(ctx context.Context, a model.Address) (*model.Address, error) {
	var res model.Address
	if err := c.post(ctx, "/addresses", a, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetDefaultAddress делает адрес адресом по умолчанию.
func (c *Client) SetDefaultAddress(ctx context.Context, id string) (*model.Address, error) {
	var res model.Address
	if _, err := c.do(ctx, http.MethodPut, "/addresses/"+url.PathEscape(id)+"/default", nil, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

// PartnerSearch описывает критерии подбора партнёров.
type PartnerSearch struct {
	ProductType string   `json:"productType,omitempty"`
	Destination string   `json:"destination,omitempty"`
	Volume      *float64 `json:"volume,omitempty"`
	PartnerType string   `json:"partnerType,omitempty"`
}

// PartnerMatches содержит найденных партнёров платформы и внешние рыночные данные.
type PartnerMatches struct {
	Internal []model.Partner    `json:"internal"`
	External []model.MarketData `json:"external"`
}

// SearchPartners подбирает партнёров по товару и стране назначения.
func (c *Client) SearchPartners(ctx context.Context, q PartnerSearch) (*PartnerMatches, error) {
	var res PartnerMatches
	if err := c.post(ctx, "/partners/search", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MarketData возвращает рыночные данные по типу.
func (c *Client) MarketData(ctx context.Context, kind model.MarketDataType) ([]model.MarketData, error) {
	path := "/market-data"
	if kind != "" {
		path += "?type=" + url.QueryEscape(string(kind))
	}

	var res []model.MarketData
	if err := c.get(ctx, path, &res); err != nil {
		return nil, err
	}
	return res, nil
}
