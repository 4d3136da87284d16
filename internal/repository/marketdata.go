package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

// MarketFilter ограничивает выборку рыночных данных. Пустые поля не учитываются.
type MarketFilter struct {
	Type      model.MarketDataType
	Category  string
	Geography string
}

// ListMarketData возвращает актуальные записи рыночных данных с типизированной нагрузкой.
func (r *PostgresRepository) ListMarketData(ctx context.Context, f MarketFilter) ([]model.MarketData, error) {
	where := []string{"is_valid"}
	var args []any
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("LOWER(category) = LOWER($%d)", len(args)))
	}
	if f.Geography != "" {
		args = append(args, f.Geography)
		where = append(where, fmt.Sprintf("LOWER(geography) = LOWER($%d)", len(args)))
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, type, source, category, geography, data, last_crawled, is_valid, created_at
		 FROM market_data
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY last_crawled DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("select market data: %w", err)
	}
	defer rows.Close()

	var res []model.MarketData
	for rows.Next() {
		var (
			m    model.MarketData
			typ  string
			data []byte
		)
		if err := rows.Scan(&m.ID, &typ, &m.Source, &m.Category, &m.Geography, &data, &m.LastCrawled, &m.IsValid, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan market data: %w", err)
		}
		m.Type = model.MarketDataType(typ)
		m.Data = model.DecodeMarketPayload(m.Type, data)
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateMarketData сохраняет запись рыночных данных.
func (r *PostgresRepository) CreateMarketData(ctx context.Context, m model.MarketData) (*model.MarketData, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	data, err := json.Marshal(m.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal market payload: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO market_data (id, type, source, category, geography, data)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING last_crawled, is_valid, created_at`,
		m.ID, string(m.Type), m.Source, m.Category, m.Geography, data,
	).Scan(&m.LastCrawled, &m.IsValid, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert market data: %w", err)
	}
	return &m, nil
}
