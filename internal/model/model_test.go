package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Amount: 300050})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":3000.5}`, string(b))

	var v struct {
		Amount Money `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":99.999}`), &v))
	assert.Equal(t, Money(10000), v.Amount)
}

func TestMoneyJSON_RejectsOutOfRange(t *testing.T) {
	var v struct {
		Amount Money `json:"amount"`
	}

	err := json.Unmarshal([]byte(`{"amount":184467440737095521.16}`), &v)

	require.ErrorIs(t, err, ErrMoneyOutOfRange)
	assert.Zero(t, v.Amount)
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    Money
		wantErr bool
	}{
		{in: "500", want: 50000},
		{in: "1200.505", want: 120051},
		{in: "10000000000000", want: MaxMoney},
		{in: "10000000000000.01", wantErr: true},
		{in: "-10000000000000.01", wantErr: true},
		{in: "₹500", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoneyFromRupees(t *testing.T) {
	assert.Equal(t, Money(10000), MoneyFromRupees(100))
	assert.Equal(t, Money(1), MoneyFromRupees(0.005))
	assert.Equal(t, 2000.0, Money(200000).Rupees())
}

func TestDecodeMarketPayload(t *testing.T) {
	tests := []struct {
		name string
		kind MarketDataType
		raw  string
		want MarketPayload
	}{
		{
			name: "demand index",
			kind: MarketDemandIndex,
			raw:  `{"index":72.5,"trend":"UP"}`,
			want: DemandIndex{Index: 72.5, Trend: "UP"},
		},
		{
			name: "trade flow",
			kind: MarketTradeFlow,
			raw:  `{"origin":"IN","destination":"AE","volume":1200}`,
			want: TradeFlow{Origin: "IN", Destination: "AE", Volume: 1200},
		},
		{
			name: "unknown type keeps raw payload",
			kind: "TARIFF",
			raw:  `{"hs":"0901","duty":5}`,
			want: UnknownPayload{Raw: json.RawMessage(`{"hs":"0901","duty":5}`)},
		},
		{
			name: "malformed known type falls back to unknown",
			kind: MarketPriceTrend,
			raw:  `[1,2,3]`,
			want: UnknownPayload{Raw: json.RawMessage(`[1,2,3]`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeMarketPayload(tt.kind, []byte(tt.raw)))
		})
	}
}

func TestMarketDataRoundTripKeepsUnknownPayload(t *testing.T) {
	in := []byte(`{"id":"m1","type":"TARIFF","source":"dgft","data":{"duty":5},"lastCrawled":"2026-01-02T00:00:00Z","isValid":true,"createdAt":"2026-01-02T00:00:00Z"}`)

	var md MarketData
	require.NoError(t, json.Unmarshal(in, &md))
	require.IsType(t, UnknownPayload{}, md.Data)

	out, err := json.Marshal(md)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"data":{"duty":5}`)
}
