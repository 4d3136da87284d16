// Package settlement проводит покупку услуги и пополнение кошелька на стороне клиента:
// расчёт цены, создание услуги, выбор источника оплаты и подтверждение платежа шлюза.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/client"
	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/pricing"
	"github.com/mmeshcher/apse-storefront/internal/validation"
)

var (
	// ErrCheckoutDismissed возвращается Checkout, если пользователь закрыл окно оплаты.
	ErrCheckoutDismissed = errors.New("checkout dismissed")
	// ErrPaymentCancelled возвращается после отмены оплаты пользователем.
	ErrPaymentCancelled = errors.New("Payment cancelled by user")
	// ErrShortfallDeclined возвращается, если пользователь отказался оплачивать через шлюз.
	ErrShortfallDeclined = errors.New("gateway payment declined by user")
	// ErrInvalidQuote возвращается для отрицательной цены в расчёте сервера.
	ErrInvalidQuote = errors.New("invalid quote")
)

// State обозначает шаг проведения покупки.
type State string

const (
	StateQuoted     State = "QUOTED"
	StateInitiated  State = "INITIATED"
	StateWalletPay  State = "WALLET_PAY"
	StateGatewayPay State = "GATEWAY_PAY"
	StateVerifying  State = "VERIFYING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// GatewayResult описывает успешный ответ виджета оплаты.
type GatewayResult = client.PaymentProof

// API описывает вызовы REST API, нужные для проведения оплаты.
type API interface {
	CalculatePrice(ctx context.Context, serviceID string, f pricing.Filters) (*pricing.Quote, error)
	PurchaseService(ctx context.Context, serviceID string, req client.PurchaseRequest) (*model.UserService, error)
	Wallet(ctx context.Context) (*model.Wallet, error)
	CreateServiceOrder(ctx context.Context, userServiceID string, amount model.Money, method model.PaymentMethod) (*client.GatewayOrder, error)
	VerifyServicePayment(ctx context.Context, userServiceID string, proof client.PaymentProof) (*client.ServicePayment, error)
	CreateWalletOrder(ctx context.Context, amount model.Money) (*client.GatewayOrder, error)
	VerifyWalletPayment(ctx context.Context, proof client.PaymentProof) (*client.WalletPayment, error)
	CancelPayment(ctx context.Context, orderID string) (string, error)
}

// Checkout открывает окно оплаты шлюза для заказа.
// Закрытие окна пользователем возвращает ErrCheckoutDismissed.
type Checkout interface {
	Open(ctx context.Context, order client.GatewayOrder) (GatewayResult, error)
}

// Confirmer запрашивает у пользователя согласие оплатить полную сумму через шлюз,
// когда баланса кошелька не хватает.
type Confirmer interface {
	ConfirmShortfall(ctx context.Context, balance, amount model.Money) (bool, error)
}

// Result описывает итог проведения покупки.
type Result struct {
	State       State
	Quote       *pricing.Quote
	UserService *model.UserService
	Order       *client.GatewayOrder
	Transaction *model.WalletTransaction
	// Wallet перечитывается после каждого изменения на сервере.
	Wallet *model.Wallet
}

// Orchestrator проводит покупки через API. Повторный вызов Purchase создаёт новую услугу.
type Orchestrator struct {
	api       API
	checkout  Checkout
	confirmer Confirmer
	logger    *zap.Logger

	// OnTransition вызывается при каждом переходе между шагами.
	OnTransition func(State)
}

// New создаёт Orchestrator.
func New(api API, checkout Checkout, confirmer Confirmer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		api:       api,
		checkout:  checkout,
		confirmer: confirmer,
		logger:    logger,
	}
}

func (o *Orchestrator) enter(res *Result, s State) {
	res.State = s
	o.logger.Debug("settlement transition", zap.String("state", string(s)))
	if o.OnTransition != nil {
		o.OnTransition(s)
	}
}

func (o *Orchestrator) fail(res *Result, err error) (*Result, error) {
	o.enter(res, StateFailed)
	return res, err
}

// Purchase рассчитывает цену услуги, создаёт услугу пользователя и оплачивает её:
// с кошелька, если баланса хватает, иначе полной суммой через шлюз после подтверждения.
// При ошибке после создания услуги она остаётся неоплаченной в статусе IN_PROGRESS.
func (o *Orchestrator) Purchase(ctx context.Context, serviceID string, filters pricing.Filters) (*Result, error) {
	res := &Result{}

	quote, err := o.api.CalculatePrice(ctx, serviceID, filters)
	if err != nil {
		return o.fail(res, fmt.Errorf("calculate price: %w", err))
	}
	if quote.CalculatedPrice < 0 {
		return o.fail(res, fmt.Errorf("%w: price %s", ErrInvalidQuote, quote.CalculatedPrice))
	}
	res.Quote = quote
	o.enter(res, StateQuoted)

	amount := quote.CalculatedPrice
	us, err := o.api.PurchaseService(ctx, serviceID, client.PurchaseRequest{
		CalculatedPrice: &amount,
		Filters:         &filters,
	})
	if err != nil {
		return o.fail(res, fmt.Errorf("purchase service: %w", err))
	}
	res.UserService = us
	o.enter(res, StateInitiated)

	if amount == 0 {
		o.logger.Info("free service activated", zap.String("userServiceID", us.ID))
		o.enter(res, StateCompleted)
		return res, nil
	}

	wallet, err := o.api.Wallet(ctx)
	if err != nil {
		return o.fail(res, fmt.Errorf("get wallet: %w", err))
	}
	res.Wallet = wallet

	if wallet.Balance >= amount {
		return o.payFromWallet(ctx, res, amount)
	}
	return o.payThroughGateway(ctx, res, amount)
}

func (o *Orchestrator) payFromWallet(ctx context.Context, res *Result, amount model.Money) (*Result, error) {
	o.enter(res, StateWalletPay)

	order, err := o.api.CreateServiceOrder(ctx, res.UserService.ID, amount, model.PaymentWallet)
	if err != nil {
		return o.fail(res, fmt.Errorf("pay from wallet: %w", err))
	}
	res.Order = order

	if err := o.refreshWallet(ctx, res); err != nil {
		return o.fail(res, err)
	}

	o.logger.Info("service paid from wallet",
		zap.String("userServiceID", res.UserService.ID),
		zap.Float64("amount", amount.Rupees()),
	)
	o.enter(res, StateCompleted)
	return res, nil
}

func (o *Orchestrator) payThroughGateway(ctx context.Context, res *Result, amount model.Money) (*Result, error) {
	o.enter(res, StateGatewayPay)

	ok, err := o.confirmer.ConfirmShortfall(ctx, res.Wallet.Balance, amount)
	if err != nil {
		return o.fail(res, fmt.Errorf("confirm shortfall: %w", err))
	}
	if !ok {
		return o.fail(res, ErrShortfallDeclined)
	}

	order, err := o.api.CreateServiceOrder(ctx, res.UserService.ID, amount, model.PaymentRazorpay)
	if err != nil {
		return o.fail(res, fmt.Errorf("create gateway order: %w", err))
	}
	res.Order = order

	proof, err := o.openCheckout(ctx, *order)
	if err != nil {
		return o.fail(res, err)
	}

	o.enter(res, StateVerifying)
	paid, err := o.api.VerifyServicePayment(ctx, res.UserService.ID, proof)
	if err != nil {
		return o.fail(res, fmt.Errorf("verify payment: %w", err))
	}
	res.UserService = paid.UserService
	res.Transaction = paid.Transaction

	if err := o.refreshWallet(ctx, res); err != nil {
		return o.fail(res, err)
	}

	o.logger.Info("service paid through gateway",
		zap.String("userServiceID", res.UserService.ID),
		zap.String("orderID", order.OrderID),
	)
	o.enter(res, StateCompleted)
	return res, nil
}

// openCheckout открывает окно оплаты. Если пользователь закрыл его,
// платёж отменяется на сервере и возвращается ErrPaymentCancelled.
func (o *Orchestrator) openCheckout(ctx context.Context, order client.GatewayOrder) (GatewayResult, error) {
	proof, err := o.checkout.Open(ctx, order)
	if err == nil {
		return proof, nil
	}
	if !errors.Is(err, ErrCheckoutDismissed) {
		return GatewayResult{}, fmt.Errorf("checkout: %w", err)
	}

	if _, cerr := o.api.CancelPayment(ctx, order.OrderID); cerr != nil {
		o.logger.Warn("cancel payment failed", zap.String("orderID", order.OrderID), zap.Error(cerr))
	}
	return GatewayResult{}, ErrPaymentCancelled
}

func (o *Orchestrator) refreshWallet(ctx context.Context, res *Result) error {
	wallet, err := o.api.Wallet(ctx)
	if err != nil {
		return fmt.Errorf("refresh wallet: %w", err)
	}
	res.Wallet = wallet
	return nil
}

// LoadWallet пополняет кошелёк через шлюз. Сумма проверяется до любого обращения к сети.
func (o *Orchestrator) LoadWallet(ctx context.Context, amount model.Money) (*Result, error) {
	res := &Result{}

	if err := validation.LoadAmount(amount); err != nil {
		return o.fail(res, err)
	}

	order, err := o.api.CreateWalletOrder(ctx, amount)
	if err != nil {
		return o.fail(res, fmt.Errorf("create wallet order: %w", err))
	}
	res.Order = order
	o.enter(res, StateGatewayPay)

	proof, err := o.openCheckout(ctx, *order)
	if err != nil {
		return o.fail(res, err)
	}

	o.enter(res, StateVerifying)
	loaded, err := o.api.VerifyWalletPayment(ctx, proof)
	if err != nil {
		return o.fail(res, fmt.Errorf("verify payment: %w", err))
	}
	res.Transaction = loaded.Transaction
	res.Wallet = loaded.Wallet

	if err := o.refreshWallet(ctx, res); err != nil {
		return o.fail(res, err)
	}

	o.logger.Info("wallet loaded", zap.String("orderID", order.OrderID), zap.Float64("amount", amount.Rupees()))
	o.enter(res, StateCompleted)
	return res, nil
}
