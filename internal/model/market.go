package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MarketDataType описывает вид рыночных данных.
type MarketDataType string

const (
	MarketPriceTrend  MarketDataType = "PRICE_TREND"
	MarketDemandIndex MarketDataType = "DEMAND_INDEX"
	MarketTradeFlow   MarketDataType = "TRADE_FLOW"
)

// MarketPayload описывает полезную нагрузку записи рыночных данных.
// Реализации: PriceTrend, DemandIndex, TradeFlow и UnknownPayload.
type MarketPayload interface {
	marketPayload()
}

// PricePoint описывает точку ценового ряда.
type PricePoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// PriceTrend описывает динамику цены.
type PriceTrend struct {
	Points []PricePoint `json:"points"`
}

// DemandIndex описывает индекс спроса.
type DemandIndex struct {
	Index float64 `json:"index"`
	Trend string  `json:"trend"`
}

// TradeFlow описывает торговый поток между странами.
type TradeFlow struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	Volume      float64 `json:"volume"`
}

// UnknownPayload хранит нагрузку неизвестного вида без изменений.
type UnknownPayload struct {
	Raw json.RawMessage
}

func (PriceTrend) marketPayload()     {}
func (DemandIndex) marketPayload()    {}
func (TradeFlow) marketPayload()      {}
func (UnknownPayload) marketPayload() {}

// MarshalJSON возвращает исходный JSON.
func (u UnknownPayload) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("null"), nil
	}
	return u.Raw, nil
}

// DecodeMarketPayload разбирает нагрузку по типу записи. Неизвестный тип или
// нагрузка, не подходящая под известную форму, сохраняются как UnknownPayload.
func DecodeMarketPayload(kind MarketDataType, raw []byte) MarketPayload {
	var (
		p   MarketPayload
		err error
	)

	switch kind {
	case MarketPriceTrend:
		var v PriceTrend
		err = json.Unmarshal(raw, &v)
		p = v
	case MarketDemandIndex:
		var v DemandIndex
		err = json.Unmarshal(raw, &v)
		p = v
	case MarketTradeFlow:
		var v TradeFlow
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		err = fmt.Errorf("unknown market data type %q", kind)
	}

	if err != nil {
		return UnknownPayload{Raw: append(json.RawMessage(nil), raw...)}
	}
	return p
}

// MarketData описывает запись рыночных данных.
type MarketData struct {
	ID          string         `json:"id"`
	Type        MarketDataType `json:"type"`
	Source      string         `json:"source"`
	Category    *string        `json:"category,omitempty"`
	Geography   *string        `json:"geography,omitempty"`
	Data        MarketPayload  `json:"data"`
	LastCrawled time.Time      `json:"lastCrawled"`
	IsValid     bool           `json:"isValid"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// UnmarshalJSON восстанавливает типизированную нагрузку по полю type.
func (m *MarketData) UnmarshalJSON(data []byte) error {
	type alias MarketData
	aux := struct {
		*alias
		Data json.RawMessage `json:"data"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Data = DecodeMarketPayload(m.Type, aux.Data)
	return nil
}
