// Package gateway предоставляет клиент платёжного шлюза Razorpay.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

var (
	// ErrNotConfigured возвращается, если ключи шлюза не заданы.
	ErrNotConfigured = errors.New("payment gateway not configured")
	// ErrSignatureMismatch возвращается, если подпись платежа не совпала.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
)

// Order описывает заказ, созданный в шлюзе. Amount указан в пайсах.
type Order struct {
	ID       string
	Amount   model.Money
	Currency string
	Receipt  string
	Status   string
}

type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Client инкапсулирует взаимодействие с Razorpay.
type Client struct {
	keyID  string
	secret string
	orders orderAPI
}

// NewClient создаёт клиент шлюза с указанными ключами.
func NewClient(keyID, secret string) *Client {
	rzp := razorpay.NewClient(keyID, secret)
	return &Client{
		keyID:  keyID,
		secret: secret,
		orders: rzp.Order,
	}
}

// KeyID возвращает публичный ключ, который передаётся в виджет оплаты.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// CreateOrder создаёт заказ в шлюзе на указанную сумму.
func (c *Client) CreateOrder(ctx context.Context, amount model.Money, currency, receipt string, notes map[string]string) (*Order, error) {
	if c == nil || c.orders == nil {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"amount":   int64(amount),
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		n := make(map[string]interface{}, len(notes))
		for k, v := range notes {
			n[k] = v
		}
		data["notes"] = n
	}

	resp, err := c.orders.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	id, _ := resp["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("create gateway order: empty order id")
	}

	order := &Order{
		ID:       id,
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
	}
	if v, ok := resp["amount"].(float64); ok {
		order.Amount = model.Money(v)
	}
	if v, ok := resp["currency"].(string); ok && v != "" {
		order.Currency = v
	}
	if v, ok := resp["status"].(string); ok {
		order.Status = v
	}
	return order, nil
}

// VerifyPaymentSignature проверяет подпись, которую виджет оплаты вернул клиенту.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	if c == nil || c.secret == "" {
		return ErrNotConfigured
	}

	expected := Sign(c.secret, orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign вычисляет подпись платежа так же, как это делает шлюз.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
