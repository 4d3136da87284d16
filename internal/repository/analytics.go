package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

// AnalyticsSummary собирает сводные показатели. Выручка считается как сумма завершённых
// оплат услуг, конверсия как доля оплаченных услуг среди начатых.
func (r *PostgresRepository) AnalyticsSummary(ctx context.Context) (*model.AnalyticsSummary, error) {
	var (
		s       model.AnalyticsSummary
		revenue int64
		started int64
		paid    int64
	)

	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM user_services WHERE status = 'IN_PROGRESS'),
			(SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions
				WHERE type = 'SERVICE_PAYMENT' AND status = 'COMPLETED'),
			(SELECT COUNT(*) FROM user_services WHERE status = 'COMPLETED'),
			(SELECT COUNT(*) FROM user_services),
			(SELECT COUNT(*) FROM user_services WHERE amount_paid > 0)`,
	).Scan(&s.TotalUsers, &s.ActiveServices, &revenue, &s.CompletedServices, &started, &paid)
	if err != nil {
		return nil, fmt.Errorf("select analytics summary: %w", err)
	}

	s.TotalRevenue = model.Money(revenue)
	if started > 0 {
		s.ConversionRate = float64(paid) / float64(started)
	}
	return &s, nil
}

// TopPartners возвращает партнёров с наибольшим числом сообщений по их услугам.
func (r *PostgresRepository) TopPartners(ctx context.Context, limit int) ([]model.TopPartner, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.company_name, COUNT(m.id) AS cnt
		 FROM partners p
		 LEFT JOIN messages m ON m.partner_id = p.id
		 WHERE p.status = 'APPROVED'
		 GROUP BY p.id, p.company_name
		 ORDER BY cnt DESC, p.company_name
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select top partners: %w", err)
	}
	defer rows.Close()

	var res []model.TopPartner
	for rows.Next() {
		var tp model.TopPartner
		if err := rows.Scan(&tp.Name, &tp.ServiceCount); err != nil {
			return nil, fmt.Errorf("scan top partner: %w", err)
		}
		res = append(res, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
