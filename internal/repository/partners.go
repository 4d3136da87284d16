package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

// PartnerFilter ограничивает выборку партнёров. Пустые поля не учитываются.
type PartnerFilter struct {
	Type      string
	Country   string
	Specialty string
	Status    model.ApprovalStatus
}

const partnerColumns = `id, user_id, company_name, type, description, specialties, country, city,
	base_fee, rating, status, approved_at, created_at`

func scanPartner(row pgx.Row) (*model.Partner, error) {
	var (
		p       model.Partner
		typ     string
		status  string
		baseFee *int64
	)
	err := row.Scan(&p.ID, &p.UserID, &p.CompanyName, &typ, &p.Description, &p.Specialties, &p.Country,
		&p.City, &baseFee, &p.Rating, &status, &p.ApprovedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Type = model.PartnerType(typ)
	p.Status = model.ApprovalStatus(status)
	if baseFee != nil {
		fee := model.Money(*baseFee)
		p.BaseFee = &fee
	}
	if p.Specialties == nil {
		p.Specialties = []string{}
	}
	return &p, nil
}

// ListPartners возвращает партнёров по фильтру, лучшие по рейтингу первыми.
func (r *PostgresRepository) ListPartners(ctx context.Context, f PartnerFilter) ([]model.Partner, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.Country != "" {
		add("LOWER(country) = LOWER($%d)", f.Country)
	}
	if f.Specialty != "" {
		add("$%d = ANY(specialties)", f.Specialty)
	}

	query := `SELECT ` + partnerColumns + ` FROM partners`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY rating DESC, created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select partners: %w", err)
	}
	defer rows.Close()

	var res []model.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		res = append(res, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetPartner возвращает партнёра по идентификатору.
func (r *PostgresRepository) GetPartner(ctx context.Context, id string) (*model.Partner, error) {
	p, err := scanPartner(r.pool.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// CreatePartner регистрирует заявку партнёра в статусе PENDING.
func (r *PostgresRepository) CreatePartner(ctx context.Context, p model.Partner) (*model.Partner, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Specialties == nil {
		p.Specialties = []string{}
	}
	var baseFee *int64
	if p.BaseFee != nil {
		v := int64(*p.BaseFee)
		baseFee = &v
	}

	created, err := scanPartner(r.pool.QueryRow(ctx,
		`INSERT INTO partners (id, user_id, company_name, type, description, specialties, country, city, base_fee, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+partnerColumns,
		p.ID, p.UserID, p.CompanyName, string(p.Type), p.Description, p.Specialties, p.Country, p.City,
		baseFee, string(model.ApprovalPending),
	))
	if err != nil {
		return nil, fmt.Errorf("insert partner: %w", err)
	}
	return created, nil
}

// SetPartnerStatus выставляет итог модерации. Одобрение также переводит
// владельца заявки в роль PARTNER.
func (r *PostgresRepository) SetPartnerStatus(ctx context.Context, id string, status model.ApprovalStatus) (*model.Partner, error) {
	var res *model.Partner

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := scanPartner(tx.QueryRow(ctx,
			`UPDATE partners
			 SET status = $2, approved_at = CASE WHEN $2 = 'APPROVED' THEN NOW() ELSE NULL END
			 WHERE id = $1
			 RETURNING `+partnerColumns,
			id, string(status),
		))
		if err != nil {
			return notFound(err)
		}

		if status == model.ApprovalApproved {
			_, err := tx.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1 AND role = $3`,
				p.UserID, string(model.RolePartner), string(model.RoleUser))
			if err != nil {
				return fmt.Errorf("promote partner user: %w", err)
			}
		}

		res = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
