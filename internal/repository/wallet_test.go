package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

// Тесты репозитория идут против настоящей базы; без DATABASE_URI они пропускаются.
func testRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		t.Skip("DATABASE_URI is not set")
	}

	r, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func createTestUser(t *testing.T, r *PostgresRepository) string {
	t.Helper()

	u, err := r.CreateUser(testContext(t), model.User{
		Email:        uuid.NewString() + "@storefront.test",
		PasswordHash: []byte("hash"),
	})
	require.NoError(t, err)
	return u.ID
}

const researchServiceID = "6a0d1f0e-0b8e-4c6e-9d3a-1f2a3b4c5d01"

func createTestUserService(t *testing.T, r *PostgresRepository, userID string, price model.Money) string {
	t.Helper()

	us, created, err := r.CreateUserService(testContext(t), model.UserService{
		UserID:    userID,
		ServiceID: researchServiceID,
		Stage:     model.StageProductResearch,
		Price:     price,
	}, "")
	require.NoError(t, err)
	require.True(t, created)
	return us.ID
}

func createGatewayOrder(t *testing.T, r *PostgresRepository, userID string, typ model.TransactionType, amount model.Money, userServiceID *string) string {
	t.Helper()

	orderID := "order_" + uuid.NewString()[:12]
	method := model.PaymentRazorpay
	_, err := r.CreatePendingTransaction(testContext(t), userID, model.WalletTransaction{
		Type:           typ,
		Amount:         amount,
		PaymentMethod:  &method,
		Description:    "test " + string(typ),
		GatewayOrderID: &orderID,
		UserServiceID:  userServiceID,
	})
	require.NoError(t, err)
	return orderID
}

func loadWallet(t *testing.T, r *PostgresRepository, userID string, amount model.Money) {
	t.Helper()

	orderID := createGatewayOrder(t, r, userID, model.TxWalletLoad, amount, nil)
	_, err := r.CompleteGatewayPayment(testContext(t), userID, orderID, "pay_"+orderID)
	require.NoError(t, err)
}

func TestCompleteGatewayPayment_WalletLoadIsAppliedOnce(t *testing.T) {
	r := testRepository(t)
	ctx := testContext(t)
	userID := createTestUser(t, r)

	orderID := createGatewayOrder(t, r, userID, model.TxWalletLoad, 50000, nil)

	res, err := r.CompleteGatewayPayment(ctx, userID, orderID, "pay_1")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, model.TxCompleted, res.Transaction.Status)
	assert.Equal(t, model.Money(50000), res.Wallet.Balance)
	assert.Equal(t, model.Money(50000), res.Wallet.TotalLoaded)

	replay, err := r.CompleteGatewayPayment(ctx, userID, orderID, "pay_1")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, model.Money(50000), replay.Wallet.Balance)

	w, err := r.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.Money(50000), w.Balance)
	assert.Equal(t, model.Money(50000), w.TotalLoaded)

	history, err := r.ListTransactions(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCompleteGatewayPayment_ServicePaymentMirrorsLoad(t *testing.T) {
	r := testRepository(t)
	ctx := testContext(t)
	userID := createTestUser(t, r)
	usID := createTestUserService(t, r, userID, 299900)

	orderID := createGatewayOrder(t, r, userID, model.TxServicePayment, 299900, &usID)

	res, err := r.CompleteGatewayPayment(ctx, userID, orderID, "pay_svc")
	require.NoError(t, err)
	assert.False(t, res.Overpaid)
	assert.Equal(t, model.TxServicePayment, res.Transaction.Type)
	assert.Zero(t, res.Wallet.Balance)
	assert.Equal(t, model.Money(299900), res.Wallet.TotalLoaded)
	assert.Equal(t, model.Money(299900), res.Wallet.TotalUsed)
	require.NotNil(t, res.UserService)
	assert.Equal(t, model.Money(299900), res.UserService.AmountPaid)

	history, err := r.ListTransactions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	types := []model.TransactionType{history[0].Type, history[1].Type}
	assert.ElementsMatch(t, []model.TransactionType{model.TxWalletLoad, model.TxServicePayment}, types)
	for _, tx := range history {
		assert.Equal(t, model.TxCompleted, tx.Status)
		assert.Equal(t, orderID, *tx.GatewayOrderID)
	}

	replay, err := r.CompleteGatewayPayment(ctx, userID, orderID, "pay_svc")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, model.TxServicePayment, replay.Transaction.Type)
	assert.Equal(t, model.Money(299900), replay.Wallet.TotalUsed)
	require.NotNil(t, replay.UserService)
	assert.Equal(t, usID, replay.UserService.ID)
}

func TestFailGatewayPayment_LeavesBalanceAndBlocksVerify(t *testing.T) {
	r := testRepository(t)
	ctx := testContext(t)
	userID := createTestUser(t, r)

	orderID := createGatewayOrder(t, r, userID, model.TxWalletLoad, 75000, nil)

	failed, err := r.FailGatewayPayment(ctx, userID, orderID, "Payment cancelled by user")
	require.NoError(t, err)
	assert.Equal(t, model.TxFailed, failed.Status)
	assert.Equal(t, "Payment cancelled by user", failed.Description)

	again, err := r.FailGatewayPayment(ctx, userID, orderID, "Payment expired")
	require.NoError(t, err)
	assert.Equal(t, "Payment cancelled by user", again.Description)

	_, err = r.CompleteGatewayPayment(ctx, userID, orderID, "pay_late")
	assert.ErrorIs(t, err, ErrTransactionFinalized)

	w, err := r.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, w.Balance)
	assert.Zero(t, w.TotalLoaded)
}

func TestCompleteGatewayPayment_ForeignOrderNotFound(t *testing.T) {
	r := testRepository(t)
	ctx := testContext(t)
	owner := createTestUser(t, r)
	other := createTestUser(t, r)

	orderID := createGatewayOrder(t, r, owner, model.TxWalletLoad, 10000, nil)

	_, err := r.CompleteGatewayPayment(ctx, other, orderID, "pay_x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServicePayment_PendingGatewayOrderBlocksSecondPayment(t *testing.T) {
	r := testRepository(t)
	ctx := testContext(t)
	userID := createTestUser(t, r)
	usID := createTestUserService(t, r, userID, 299900)
	loadWallet(t, r, userID, 500000)

	firstOrder := createGatewayOrder(t, r, userID, model.TxServicePayment, 299900, &usID)

	method := model.PaymentRazorpay
	secondOrder := "order_" + uuid.NewString()[:12]
	_, err := r.CreatePendingTransaction(ctx, userID, model.WalletTransaction{
		Type:           model.TxServicePayment,
		Amount:         299900,
		PaymentMethod:  &method,
		GatewayOrderID: &secondOrder,
		UserServiceID:  &usID,
	})
	assert.ErrorIs(t, err, ErrPaymentPending)

	_, err = r.PayServiceFromWallet(ctx, userID, usID, 299900, "Product Research")
	assert.ErrorIs(t, err, ErrPaymentPending)

	w, err := r.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.Money(500000), w.Balance)

	_, err = r.FailGatewayPayment(ctx, userID, firstOrder, "Payment cancelled by user")
	require.NoError(t, err)

	res, err := r.PayServiceFromWallet(ctx, userID, usID, 299900, "Product Research")
	require.NoError(t, err)
	assert.Equal(t, model.Money(200100), res.Wallet.Balance)
	assert.Equal(t, model.Money(299900), res.UserService.AmountPaid)

	_, err = r.PayServiceFromWallet(ctx, userID, usID, 299900, "Product Research")
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestCompleteGatewayPayment_AlreadyPaidServiceCreditsWallet(t *testing.T) {
	r := testRepository(t)
	ctx := testContext(t)
	userID := createTestUser(t, r)
	usID := createTestUserService(t, r, userID, 299900)

	orderID := createGatewayOrder(t, r, userID, model.TxServicePayment, 299900, &usID)

	// оплата прошла другим путём, пока заказ шлюза ждал подтверждения
	_, err := r.pool.Exec(ctx, `UPDATE user_services SET amount_paid = $2 WHERE id = $1`, usID, int64(299900))
	require.NoError(t, err)

	res, err := r.CompleteGatewayPayment(ctx, userID, orderID, "pay_over")
	require.NoError(t, err)
	assert.True(t, res.Overpaid)
	assert.Equal(t, model.TxWalletLoad, res.Transaction.Type)
	assert.Equal(t, model.TxCompleted, res.Transaction.Status)
	assert.Equal(t, model.Money(299900), res.Wallet.Balance)
	assert.Equal(t, model.Money(299900), res.Wallet.TotalLoaded)
	assert.Zero(t, res.Wallet.TotalUsed)
	require.NotNil(t, res.UserService)
	assert.Equal(t, model.Money(299900), res.UserService.AmountPaid)

	replay, err := r.CompleteGatewayPayment(ctx, userID, orderID, "pay_over")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.True(t, replay.Overpaid)
	assert.Equal(t, model.Money(299900), replay.Wallet.Balance)

	history, err := r.ListTransactions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.TxWalletLoad, history[0].Type)
}

func TestPayServiceFromWallet_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	r := testRepository(t)
	ctx := testContext(t)
	userID := createTestUser(t, r)
	loadWallet(t, r, userID, 100000)

	const attempts = 5
	services := make([]string, attempts)
	for i := range services {
		services[i] = createTestUserService(t, r, userID, 30000)
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		paid         int
		insufficient int
	)
	for _, usID := range services {
		wg.Add(1)
		go func(usID string) {
			defer wg.Done()

			_, err := r.PayServiceFromWallet(ctx, userID, usID, 30000, "Product Research")

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				paid++
			case errors.Is(err, ErrInsufficientBalance):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(usID)
	}
	wg.Wait()

	assert.Equal(t, 3, paid)
	assert.Equal(t, 2, insufficient)

	w, err := r.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.Money(10000), w.Balance)
	assert.Equal(t, model.Money(90000), w.TotalUsed)
}
