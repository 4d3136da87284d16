package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, body map[string]any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLogin_StoresToken(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a@b.in", body["email"])
			writeEnvelope(t, w, http.StatusOK, map[string]any{
				"success": true,
				"data":    map[string]any{"token": "tok-1", "user": map[string]any{"id": "u-1", "role": "USER"}},
			})
		case "/api/wallet/balance":
			gotAuth = r.Header.Get("Authorization")
			writeEnvelope(t, w, http.StatusOK, map[string]any{
				"success": true,
				"data":    map[string]any{"id": "w-1", "balance": 5000, "status": "ACTIVE"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL + "/api/")
	ctx := testContext(t)

	res, err := c.Login(ctx, "a@b.in", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "u-1", res.User.ID)
	assert.Equal(t, "tok-1", c.Token())

	w, err := c.Wallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, model.Money(500000), w.Balance)
}

func TestUnauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "Invalid or expired token",
		})
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Orders(testContext(t), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, "Invalid or expired token", err.Error())
}

func TestAPIErrorKeepsServerMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusPaymentRequired, map[string]any{
			"success": false,
			"error":   "Insufficient wallet balance",
		})
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).CreateServiceOrder(testContext(t), "us-1", 300000, model.PaymentWallet)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Equal(t, "Insufficient wallet balance", apiErr.Message)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestNonJSONErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Services(testContext(t))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestPurchaseService_IdempotencyHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/svc/services/svc-1/purchase", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 3000.0, body["calculatedPrice"])
		assert.NotContains(t, body, "IdempotencyKey")

		writeEnvelope(t, w, http.StatusCreated, map[string]any{
			"success": true,
			"data":    map[string]any{"id": "us-1", "status": "IN_PROGRESS", "amountPaid": 0},
		})
	}))
	defer ts.Close()

	price := model.Money(300000)
	us, err := NewClient(ts.URL+"/svc").PurchaseService(testContext(t), "svc-1", PurchaseRequest{
		CalculatedPrice: &price,
		IdempotencyKey:  "key-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "us-1", us.ID)
	assert.Equal(t, model.UserServiceInProgress, us.Status)
}

func TestVerifyServicePayment_ForwardsProofVerbatim(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"razorpay_order_id":   "order_1",
			"razorpay_payment_id": "pay_1",
			"razorpay_signature":  "sig",
			"userServiceId":       "us-1",
		}, body)

		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"userService": map[string]any{"id": "us-1", "amountPaid": 3000, "progress": 10},
				"transaction": map[string]any{"id": "tx-1", "status": "COMPLETED"},
			},
		})
	}))
	defer ts.Close()

	res, err := NewClient(ts.URL).VerifyServicePayment(testContext(t), "us-1", PaymentProof{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: "sig",
	})

	require.NoError(t, err)
	assert.Equal(t, model.Money(300000), res.UserService.AmountPaid)
	assert.Equal(t, model.TxCompleted, res.Transaction.Status)
}

func TestCancelPayment_ReturnsMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments/order_1/cancel", r.URL.Path)
		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Payment cancelled by user",
		})
	}))
	defer ts.Close()

	msg, err := NewClient(ts.URL).CancelPayment(testContext(t), "order_1")

	require.NoError(t, err)
	assert.Equal(t, "Payment cancelled by user", msg)
}
