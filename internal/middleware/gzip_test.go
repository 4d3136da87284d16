package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

type loadRequest struct {
	Amount model.Money `json:"amount"`
}

type loadEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Amount   model.Money `json:"amount"`
		Currency string      `json:"currency"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// walletOrderHandler разбирает запрос пополнения и отвечает конвертом API, как обработчик create-order.
func walletOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Invalid request body"})
		return
	}

	var res loadEnvelope
	res.Success = true
	res.Data.Amount = req.Amount
	res.Data.Currency = "INR"
	w.Header().Set("Content-Length", "999")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(res)
}

func gzipped(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

func TestGzipMiddleware_WalletOrder(t *testing.T) {
	tests := []struct {
		name           string
		compressBody   bool
		acceptEncoding string
		wantEncoded    bool
	}{
		{name: "compressed both ways", compressBody: true, acceptEncoding: "gzip", wantEncoded: true},
		{name: "compressed request only", compressBody: true},
		{name: "compressed response only", acceptEncoding: "br, gzip", wantEncoded: true},
		{name: "plain", acceptEncoding: ""},
	}

	const body = `{"amount":500.25}`

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reqBody io.Reader = strings.NewReader(body)
			if tt.compressBody {
				reqBody = gzipped(t, body)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/payments/wallet/create-order", reqBody)
			req.Header.Set("Content-Type", "application/json")
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			rec := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(walletOrderHandler)).ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var respBody io.Reader = rec.Body
			if tt.wantEncoded {
				assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
				assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))
				assert.Empty(t, rec.Header().Get("Content-Length"))

				zr, err := gzip.NewReader(rec.Body)
				require.NoError(t, err)
				defer zr.Close()
				respBody = zr
			} else {
				assert.Empty(t, rec.Header().Get("Content-Encoding"))
			}

			var env loadEnvelope
			require.NoError(t, json.NewDecoder(respBody).Decode(&env))
			assert.True(t, env.Success)
			assert.Equal(t, model.Money(50025), env.Data.Amount)
			assert.Equal(t, "INR", env.Data.Currency)
		})
	}
}

func TestGzipMiddleware_CorruptedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/wallet/create-order", strings.NewReader(`{"amount":500}`))
	req.Header.Set("Content-Encoding", "gzip")

	called := false
	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestGzipMiddleware_OutOfRangeAmountRejectedAfterDecompression(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/wallet/create-order",
		gzipped(t, `{"amount":184467440737095521.16}`))
	req.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(walletOrderHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}
