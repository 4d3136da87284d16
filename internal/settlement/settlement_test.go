package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/apse-storefront/internal/client"
	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/pricing"
	"github.com/mmeshcher/apse-storefront/internal/validation"
)

// fakeAPI повторяет поведение сервера в памяти: кошелёк, журнал операций и заказы шлюза.
type fakeAPI struct {
	price   model.Money
	balance model.Money

	calls         int
	purchases     int
	gatewayOrders []client.GatewayOrder
	cancelled     []string
	txs           []model.WalletTransaction
}

func (f *fakeAPI) CalculatePrice(ctx context.Context, serviceID string, _ pricing.Filters) (*pricing.Quote, error) {
	f.calls++
	return &pricing.Quote{ServiceID: serviceID, CalculatedPrice: f.price, Currency: "INR"}, nil
}

func (f *fakeAPI) PurchaseService(ctx context.Context, serviceID string, req client.PurchaseRequest) (*model.UserService, error) {
	f.calls++
	f.purchases++
	return &model.UserService{
		ID:        fmt.Sprintf("us-%d", f.purchases),
		ServiceID: serviceID,
		Status:    model.UserServiceInProgress,
		Price:     *req.CalculatedPrice,
	}, nil
}

func (f *fakeAPI) Wallet(ctx context.Context) (*model.Wallet, error) {
	f.calls++
	return &model.Wallet{ID: "w-1", Balance: f.balance, Status: model.WalletActive}, nil
}

func (f *fakeAPI) newOrder(amount model.Money) *client.GatewayOrder {
	o := client.GatewayOrder{
		OrderID:  fmt.Sprintf("order_%d", len(f.gatewayOrders)+1),
		Amount:   int64(amount),
		Currency: "INR",
		KeyID:    "rzp_test",
	}
	f.gatewayOrders = append(f.gatewayOrders, o)
	return &o
}

func (f *fakeAPI) CreateServiceOrder(ctx context.Context, userServiceID string, amount model.Money, method model.PaymentMethod) (*client.GatewayOrder, error) {
	f.calls++
	switch method {
	case model.PaymentWallet:
		if f.balance < amount {
			return nil, &client.APIError{StatusCode: 402, Message: "Insufficient wallet balance"}
		}
		f.balance -= amount
		f.txs = append(f.txs, model.WalletTransaction{Type: model.TxServicePayment, Amount: amount, Status: model.TxCompleted})
		return &client.GatewayOrder{Amount: int64(amount), Currency: "INR", Paid: true}, nil
	default:
		o := f.newOrder(amount)
		f.txs = append(f.txs, model.WalletTransaction{Type: model.TxServicePayment, Amount: amount, Status: model.TxPending, GatewayOrderID: &o.OrderID})
		return o, nil
	}
}

func (f *fakeAPI) settle(orderID string, status model.TransactionStatus) *model.WalletTransaction {
	for i := range f.txs {
		if id := f.txs[i].GatewayOrderID; id != nil && *id == orderID {
			f.txs[i].Status = status
			return &f.txs[i]
		}
	}
	return nil
}

func (f *fakeAPI) VerifyServicePayment(ctx context.Context, userServiceID string, proof client.PaymentProof) (*client.ServicePayment, error) {
	f.calls++
	tx := f.settle(proof.OrderID, model.TxCompleted)
	return &client.ServicePayment{
		UserService: &model.UserService{ID: userServiceID, AmountPaid: tx.Amount, Progress: model.ProgressPaid},
		Transaction: tx,
	}, nil
}

func (f *fakeAPI) CreateWalletOrder(ctx context.Context, amount model.Money) (*client.GatewayOrder, error) {
	f.calls++
	o := f.newOrder(amount)
	f.txs = append(f.txs, model.WalletTransaction{Type: model.TxWalletLoad, Amount: amount, Status: model.TxPending, GatewayOrderID: &o.OrderID})
	return o, nil
}

func (f *fakeAPI) VerifyWalletPayment(ctx context.Context, proof client.PaymentProof) (*client.WalletPayment, error) {
	f.calls++
	tx := f.settle(proof.OrderID, model.TxCompleted)
	f.balance += tx.Amount
	return &client.WalletPayment{
		Wallet:      &model.Wallet{ID: "w-1", Balance: f.balance},
		Transaction: tx,
	}, nil
}

func (f *fakeAPI) CancelPayment(ctx context.Context, orderID string) (string, error) {
	f.calls++
	f.cancelled = append(f.cancelled, orderID)
	f.settle(orderID, model.TxFailed)
	return "Payment cancelled by user", nil
}

func (f *fakeAPI) pending() int {
	n := 0
	for _, tx := range f.txs {
		if tx.Status == model.TxPending {
			n++
		}
	}
	return n
}

type fakeCheckout struct {
	dismiss bool
	opened  []client.GatewayOrder
}

func (c *fakeCheckout) Open(ctx context.Context, order client.GatewayOrder) (GatewayResult, error) {
	c.opened = append(c.opened, order)
	if c.dismiss {
		return GatewayResult{}, ErrCheckoutDismissed
	}
	return GatewayResult{OrderID: order.OrderID, PaymentID: "pay_" + order.OrderID, Signature: "sig"}, nil
}

type fakeConfirmer struct {
	answer  bool
	asked   bool
	balance model.Money
	amount  model.Money
}

func (c *fakeConfirmer) ConfirmShortfall(ctx context.Context, balance, amount model.Money) (bool, error) {
	c.asked = true
	c.balance, c.amount = balance, amount
	return c.answer, nil
}

func newTestOrchestrator(api *fakeAPI, checkout *fakeCheckout, confirmer *fakeConfirmer) (*Orchestrator, *[]State) {
	o := New(api, checkout, confirmer, nil)
	var states []State
	o.OnTransition = func(s State) { states = append(states, s) }
	return o, &states
}

func TestPurchase_WalletBranch(t *testing.T) {
	api := &fakeAPI{price: model.MoneyFromRupees(3000), balance: model.MoneyFromRupees(5000)}
	checkout := &fakeCheckout{}
	confirmer := &fakeConfirmer{}
	o, states := newTestOrchestrator(api, checkout, confirmer)

	res, err := o.Purchase(context.Background(), "svc-1", pricing.Filters{})

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []State{StateQuoted, StateInitiated, StateWalletPay, StateCompleted}, *states)
	assert.Empty(t, api.gatewayOrders)
	assert.Empty(t, checkout.opened)
	assert.False(t, confirmer.asked)
	assert.Equal(t, model.MoneyFromRupees(2000), res.Wallet.Balance)

	require.Len(t, api.txs, 1)
	assert.Equal(t, model.TxServicePayment, api.txs[0].Type)
	assert.Equal(t, model.TxCompleted, api.txs[0].Status)
}

func TestPurchase_GatewayBranchChargesFullAmount(t *testing.T) {
	api := &fakeAPI{price: model.MoneyFromRupees(3000), balance: model.MoneyFromRupees(1000)}
	checkout := &fakeCheckout{}
	confirmer := &fakeConfirmer{answer: true}
	o, states := newTestOrchestrator(api, checkout, confirmer)

	res, err := o.Purchase(context.Background(), "svc-1", pricing.Filters{})

	require.NoError(t, err)
	assert.Equal(t, []State{StateQuoted, StateInitiated, StateGatewayPay, StateVerifying, StateCompleted}, *states)

	assert.True(t, confirmer.asked)
	assert.Equal(t, model.MoneyFromRupees(1000), confirmer.balance)
	assert.Equal(t, model.MoneyFromRupees(3000), confirmer.amount)

	require.Len(t, api.gatewayOrders, 1)
	assert.Equal(t, int64(300000), api.gatewayOrders[0].Amount)
	assert.Equal(t, model.MoneyFromRupees(1000), res.Wallet.Balance)
	assert.Equal(t, model.ProgressPaid, res.UserService.Progress)
	assert.Equal(t, model.TxCompleted, res.Transaction.Status)
}

func TestPurchase_ShortfallDeclined(t *testing.T) {
	api := &fakeAPI{price: model.MoneyFromRupees(3000), balance: model.MoneyFromRupees(1000)}
	o, _ := newTestOrchestrator(api, &fakeCheckout{}, &fakeConfirmer{answer: false})

	res, err := o.Purchase(context.Background(), "svc-1", pricing.Filters{})

	require.ErrorIs(t, err, ErrShortfallDeclined)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, api.gatewayOrders)
	assert.Equal(t, model.UserServiceInProgress, res.UserService.Status)
}

func TestPurchase_CheckoutDismissed(t *testing.T) {
	api := &fakeAPI{price: model.MoneyFromRupees(3000), balance: model.MoneyFromRupees(1000)}
	o, _ := newTestOrchestrator(api, &fakeCheckout{dismiss: true}, &fakeConfirmer{answer: true})

	res, err := o.Purchase(context.Background(), "svc-1", pricing.Filters{})

	require.ErrorIs(t, err, ErrPaymentCancelled)
	assert.Equal(t, "Payment cancelled by user", err.Error())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []string{"order_1"}, api.cancelled)
	assert.Zero(t, api.pending())
	assert.Equal(t, model.MoneyFromRupees(1000), api.balance)
}

func TestPurchase_FreeServiceSkipsPayment(t *testing.T) {
	api := &fakeAPI{price: 0, balance: 0}
	o, states := newTestOrchestrator(api, &fakeCheckout{}, &fakeConfirmer{})

	res, err := o.Purchase(context.Background(), "svc-1", pricing.Filters{})

	require.NoError(t, err)
	assert.Equal(t, []State{StateQuoted, StateInitiated, StateCompleted}, *states)
	assert.Empty(t, api.txs)
	assert.Nil(t, res.Order)
}

func TestPurchase_NegativeQuoteFailsBeforePurchase(t *testing.T) {
	api := &fakeAPI{price: -1, balance: model.MoneyFromRupees(1000)}
	o, states := newTestOrchestrator(api, &fakeCheckout{}, &fakeConfirmer{})

	res, err := o.Purchase(context.Background(), "svc-1", pricing.Filters{})

	require.ErrorIs(t, err, ErrInvalidQuote)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []State{StateFailed}, *states)
	assert.Zero(t, api.purchases)
	assert.Empty(t, api.txs)
}

func TestPurchase_RepeatedCallsCreateSeparateServices(t *testing.T) {
	api := &fakeAPI{price: model.MoneyFromRupees(100), balance: model.MoneyFromRupees(1000)}
	o, _ := newTestOrchestrator(api, &fakeCheckout{}, &fakeConfirmer{})

	first, err := o.Purchase(context.Background(), "svc-1", pricing.Filters{})
	require.NoError(t, err)
	second, err := o.Purchase(context.Background(), "svc-1", pricing.Filters{})
	require.NoError(t, err)

	assert.NotEqual(t, first.UserService.ID, second.UserService.ID)
	assert.Equal(t, model.MoneyFromRupees(800), api.balance)
}

func TestLoadWallet_BoundsCheckedBeforeNetwork(t *testing.T) {
	tests := []struct {
		name   string
		amount model.Money
		want   error
	}{
		{"below minimum", model.MoneyFromRupees(50), validation.ErrAmountTooSmall},
		{"above maximum", model.MoneyFromRupees(100001), validation.ErrAmountTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			o, _ := newTestOrchestrator(api, &fakeCheckout{}, &fakeConfirmer{})

			_, err := o.LoadWallet(context.Background(), tt.amount)

			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, api.calls)
		})
	}
}

func TestLoadWallet_MinimumMessage(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeAPI{}, &fakeCheckout{}, &fakeConfirmer{})

	_, err := o.LoadWallet(context.Background(), model.MoneyFromRupees(50))

	require.Error(t, err)
	assert.Equal(t, "Minimum amount is ₹100", err.Error())
}

func TestLoadWallet_Success(t *testing.T) {
	api := &fakeAPI{balance: model.MoneyFromRupees(500)}
	checkout := &fakeCheckout{}
	o, _ := newTestOrchestrator(api, checkout, &fakeConfirmer{})

	res, err := o.LoadWallet(context.Background(), model.MoneyFromRupees(2000))

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	require.Len(t, checkout.opened, 1)
	assert.Equal(t, int64(200000), checkout.opened[0].Amount)
	assert.Equal(t, model.MoneyFromRupees(2500), res.Wallet.Balance)
	assert.Equal(t, model.TxCompleted, res.Transaction.Status)
}

func TestLoadWallet_DismissedLeavesNothingPending(t *testing.T) {
	api := &fakeAPI{balance: model.MoneyFromRupees(500)}
	o, _ := newTestOrchestrator(api, &fakeCheckout{dismiss: true}, &fakeConfirmer{})

	_, err := o.LoadWallet(context.Background(), model.MoneyFromRupees(2000))

	require.True(t, errors.Is(err, ErrPaymentCancelled))
	assert.Zero(t, api.pending())
	assert.Equal(t, model.MoneyFromRupees(500), api.balance)
}
