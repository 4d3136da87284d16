package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/appstate"
	"github.com/mmeshcher/apse-storefront/internal/client"
	"github.com/mmeshcher/apse-storefront/internal/settlement"
)

// runCLI выполняет команду так же, как main, но с заданным вводом.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	t.Setenv("STOREFRONT_API_URL", "")
	t.Setenv("STOREFRONT_STATE_FILE", "")

	out := &bytes.Buffer{}
	cmd := newRootCmd(strings.NewReader(stdin), out, zap.NewNop())
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func statePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.json")
}

func TestQuote_SendsOnlyChangedFilters(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/svc-1/calculate-price", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"serviceName":"Market Research","calculatedPrice":3500,"currency":"INR","appliedRule":{"name":"Spices","type":"CATEGORY"}}}`)
	}))
	defer ts.Close()

	out, err := runCLI(t, "", "--api", ts.URL, "--state", statePath(t),
		"quote", "svc-1", "--category", "spices", "--volume", "250000")

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"category": "spices", "volume": 250000.0}, got)
	assert.Contains(t, out, "Market Research: ₹3500.00 INR")
	assert.Contains(t, out, "Applied rule: Spices (CATEGORY)")
}

func TestQuote_RequiresServiceID(t *testing.T) {
	_, err := runCLI(t, "", "--state", statePath(t), "quote")

	assert.Error(t, err)
}

func TestEnvOverridesFlags(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"id":"u-1","email":"a@b.in","role":"USER"}}`)
	}))
	defer ts.Close()

	state := statePath(t)
	store, err := appstate.Open(state, nil)
	require.NoError(t, err)
	require.NoError(t, store.SignIn(appstate.Session{Token: "tok-env"}))

	t.Setenv("STOREFRONT_API_URL", ts.URL)
	t.Setenv("STOREFRONT_STATE_FILE", state)
	out := &bytes.Buffer{}
	cmd := newRootCmd(strings.NewReader(""), out, zap.NewNop())
	cmd.SetArgs([]string{"--api", "http://127.0.0.1:1", "--state", statePath(t), "whoami"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "Bearer tok-env", gotAuth)
	assert.Contains(t, out.String(), "u-1 a@b.in (USER)")
}

func TestPrompt_DismissOnEmptyInput(t *testing.T) {
	p := newPrompt(strings.NewReader("\n"), &bytes.Buffer{})

	_, err := p.Open(context.Background(), client.GatewayOrder{OrderID: "order_1", Amount: 300000, Currency: "INR"})

	assert.True(t, errors.Is(err, settlement.ErrCheckoutDismissed))
}

func TestPrompt_ReadsPaymentProof(t *testing.T) {
	p := newPrompt(strings.NewReader("pay_1\nsig_1\n"), &bytes.Buffer{})

	res, err := p.Open(context.Background(), client.GatewayOrder{OrderID: "order_1", Amount: 300000, Currency: "INR"})

	require.NoError(t, err)
	assert.Equal(t, settlement.GatewayResult{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig_1"}, res)
}

func TestPrompt_ConfirmShortfall(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		out := &bytes.Buffer{}
		p := newPrompt(strings.NewReader(tt.input), out)

		got, err := p.ConfirmShortfall(context.Background(), 100000, 300000)

		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "₹3000.00")
	}
}

func TestOrders_UnauthorizedClearsSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shipped", r.URL.Query().Get("status"))
		assert.Equal(t, "Bearer stale", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusUnauthorized, `{"success":false,"error":"Invalid or expired token"}`)
	}))
	defer ts.Close()

	state := statePath(t)
	store, err := appstate.Open(state, nil)
	require.NoError(t, err)
	require.NoError(t, store.SignIn(appstate.Session{Token: "stale"}))

	_, err = runCLI(t, "", "--api", ts.URL, "--state", state, "orders", "--status", "shipped")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")

	reopened, err := appstate.Open(state, nil)
	require.NoError(t, err)
	_, ok := reopened.Session()
	assert.False(t, ok)
}

func TestCartCommands_PersistBetweenRuns(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/7", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"id":7,"name":"Basmati Rice","price":250,"category":"grains"}}`)
	}))
	defer ts.Close()

	state := statePath(t)

	out, err := runCLI(t, "", "--api", ts.URL, "--state", state, "cart", "add", "7", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "₹500.00")

	out, err = runCLI(t, "", "--api", ts.URL, "--state", state, "cart")
	require.NoError(t, err)
	assert.Contains(t, out, "Basmati Rice")

	out, err = runCLI(t, "", "--api", ts.URL, "--state", state, "cart", "set", "7", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart is empty")
}

func TestCartAdd_RejectsBadQuantity(t *testing.T) {
	_, err := runCLI(t, "", "--state", statePath(t), "cart", "add", "7", "two")

	assert.ErrorIs(t, err, errUsage)
}

func TestCheckout_SendsAddressID(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/7":
			writeJSON(w, http.StatusOK, `{"success":true,"data":{"id":7,"name":"Basmati Rice","price":250,"category":"grains"}}`)
		case "/orders":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			writeJSON(w, http.StatusCreated, `{"success":true,"data":{"id":"o-1","status":"PENDING","subtotal":500,"shippingAddress":"Asha Rao, 1 MG Road, Pune 411001, India"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	state := statePath(t)
	_, err := runCLI(t, "", "--api", ts.URL, "--state", state, "cart", "add", "7", "2")
	require.NoError(t, err)

	out, err := runCLI(t, "", "--api", ts.URL, "--state", state, "checkout", "--address-id", "a-1")

	require.NoError(t, err)
	assert.Equal(t, "a-1", body["addressId"])
	assert.NotContains(t, body, "shippingAddress")
	assert.Contains(t, out, "Order o-1 placed")
	assert.Contains(t, out, "Ship to: Asha Rao")

	out, err = runCLI(t, "", "--api", ts.URL, "--state", state, "cart")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart is empty")
}

func TestCheckout_AddressFlagsAreExclusive(t *testing.T) {
	_, err := runCLI(t, "", "--state", statePath(t), "checkout", "--address-id", "a-1", "--address", "Pune")

	assert.Error(t, err)
}

func TestAddressAdd(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addresses", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, `{"success":true,"data":{"id":"a-1","fullName":"Asha Rao","street":"1 MG Road","city":"Pune","postalCode":"411001","country":"India","isDefault":true}}`)
	}))
	defer ts.Close()

	out, err := runCLI(t, "", "--api", ts.URL, "--state", statePath(t),
		"address", "add", "--name", "Asha Rao", "--street", "1 MG Road", "--city", "Pune",
		"--postal-code", "411001", "--phone", "+919800000000")

	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", body["fullName"])
	assert.Equal(t, "India", body["country"])
	assert.Equal(t, false, body["isDefault"])
	assert.Contains(t, out, "Address a-1 saved: Asha Rao, 1 MG Road, Pune 411001, India")
}

func TestAddressAdd_RequiresFields(t *testing.T) {
	_, err := runCLI(t, "", "--state", statePath(t), "address", "add", "--name", "Asha Rao")

	assert.Error(t, err)
}

func TestAddressDefault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/addresses/a-2/default", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"id":"a-2","fullName":"Asha Rao","city":"Mumbai","isDefault":true}}`)
	}))
	defer ts.Close()

	out, err := runCLI(t, "", "--api", ts.URL, "--state", statePath(t), "address", "default", "a-2")

	require.NoError(t, err)
	assert.Contains(t, out, "Default address: Asha Rao, Mumbai")
}

func TestPartnersSearch(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/partners/search", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, `{"success":true,"data":{
			"internal":[{"id":"p-1","companyName":"Spice Route CHA","type":"CHA","country":"UAE","rating":4.5}],
			"external":[{"id":"m-1","type":"DEMAND_INDEX","source":"dgft","data":{"index":71.5,"trend":"UP"}}]}}`)
	}))
	defer ts.Close()

	out, err := runCLI(t, "", "--api", ts.URL, "--state", statePath(t),
		"partners", "search", "--product", "spices", "--destination", "UAE", "--volume", "20")

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"productType": "spices", "destination": "UAE", "volume": 20.0}, body)
	assert.Contains(t, out, "Spice Route CHA")
	assert.Contains(t, out, "external DEMAND_INDEX [dgft] index 71.5, trend UP")
}

func TestLoad_RejectsBadAmount(t *testing.T) {
	_, err := runCLI(t, "", "--state", statePath(t), "load", "12.5.0")

	assert.ErrorIs(t, err, errUsage)
}
