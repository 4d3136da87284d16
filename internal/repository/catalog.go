package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

// ListCategories возвращает категории товаров.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug, image FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var res []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Image); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

const productColumns = `id, name, price, old_price, image, rating, category, badge`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var (
		p        model.Product
		price    int64
		oldPrice *int64
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &oldPrice, &p.Image, &p.Rating, &p.Category, &p.Badge); err != nil {
		return nil, err
	}
	p.Price = model.Money(price)
	if oldPrice != nil {
		v := model.Money(*oldPrice)
		p.OldPrice = &v
	}
	return &p, nil
}

// ListProducts возвращает товары, опционально отфильтрованные по категории.
func (r *PostgresRepository) ListProducts(ctx context.Context, category string) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

const serviceColumns = `id, stage, name, description, sort_order, is_active, can_start_here, created_at, updated_at`

func scanService(row pgx.Row) (*model.Service, error) {
	var (
		s     model.Service
		stage string
	)
	if err := row.Scan(&s.ID, &stage, &s.Name, &s.Description, &s.Order, &s.IsActive, &s.CanStartHere, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Stage = model.Stage(stage)
	return &s, nil
}

// ListServices возвращает активные услуги в порядке этапов вместе с их правилами цены.
func (r *PostgresRepository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE is_active ORDER BY sort_order`)
	if err != nil {
		return nil, fmt.Errorf("select services: %w", err)
	}
	defer rows.Close()

	var res []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		res = append(res, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	rules, err := r.ListPricingRules(ctx, "")
	if err != nil {
		return nil, err
	}

	byService := make(map[string][]model.PricingRule, len(res))
	for _, rule := range rules {
		byService[rule.ServiceID] = append(byService[rule.ServiceID], rule)
	}
	for i := range res {
		res[i].PricingRules = byService[res[i].ID]
	}

	return res, nil
}

// GetService возвращает услугу вместе с её правилами цены.
func (r *PostgresRepository) GetService(ctx context.Context, id string) (*model.Service, error) {
	s, err := scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}

	rules, err := r.ListPricingRules(ctx, id)
	if err != nil {
		return nil, err
	}
	s.PricingRules = rules
	return s, nil
}

const ruleColumns = `id, service_id, name, pricing_type, value, category, geography, seasonality, buyer_type,
	min_volume, max_volume, priority, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*model.PricingRule, error) {
	var (
		pr  model.PricingRule
		typ string
	)
	err := row.Scan(&pr.ID, &pr.ServiceID, &pr.Name, &typ, &pr.Value, &pr.Category, &pr.Geography,
		&pr.Seasonality, &pr.BuyerType, &pr.MinVolume, &pr.MaxVolume, &pr.Priority, &pr.IsActive,
		&pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	pr.PricingType = model.PricingType(typ)
	return &pr, nil
}

// ListPricingRules возвращает правила цены услуги либо все правила, если serviceID пуст.
func (r *PostgresRepository) ListPricingRules(ctx context.Context, serviceID string) ([]model.PricingRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM pricing_rules`
	args := []any{}
	if serviceID != "" {
		query += ` WHERE service_id = $1`
		args = append(args, serviceID)
	}
	query += ` ORDER BY priority DESC, created_at, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select pricing rules: %w", err)
	}
	defer rows.Close()

	var res []model.PricingRule
	for rows.Next() {
		pr, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pricing rule: %w", err)
		}
		res = append(res, *pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreatePricingRule сохраняет новое правило цены.
func (r *PostgresRepository) CreatePricingRule(ctx context.Context, pr model.PricingRule) (*model.PricingRule, error) {
	if pr.ID == "" {
		pr.ID = uuid.NewString()
	}

	created, err := scanRule(r.pool.QueryRow(ctx,
		`INSERT INTO pricing_rules (id, service_id, name, pricing_type, value, category, geography, seasonality,
			buyer_type, min_volume, max_volume, priority, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+ruleColumns,
		pr.ID, pr.ServiceID, pr.Name, string(pr.PricingType), pr.Value, pr.Category, pr.Geography, pr.Seasonality,
		pr.BuyerType, pr.MinVolume, pr.MaxVolume, pr.Priority, pr.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("insert pricing rule: %w", err)
	}
	return created, nil
}

// UpdatePricingRule перезаписывает изменяемые поля правила.
func (r *PostgresRepository) UpdatePricingRule(ctx context.Context, pr model.PricingRule) (*model.PricingRule, error) {
	updated, err := scanRule(r.pool.QueryRow(ctx,
		`UPDATE pricing_rules SET
			name = $2, pricing_type = $3, value = $4, category = $5, geography = $6, seasonality = $7,
			buyer_type = $8, min_volume = $9, max_volume = $10, priority = $11, is_active = $12, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+ruleColumns,
		pr.ID, pr.Name, string(pr.PricingType), pr.Value, pr.Category, pr.Geography, pr.Seasonality,
		pr.BuyerType, pr.MinVolume, pr.MaxVolume, pr.Priority, pr.IsActive,
	))
	if err != nil {
		return nil, notFound(err)
	}
	return updated, nil
}

// GetPricingRule возвращает правило по идентификатору.
func (r *PostgresRepository) GetPricingRule(ctx context.Context, id string) (*model.PricingRule, error) {
	pr, err := scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM pricing_rules WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return pr, nil
}

// DeletePricingRule удаляет правило.
func (r *PostgresRepository) DeletePricingRule(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pricing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pricing rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
