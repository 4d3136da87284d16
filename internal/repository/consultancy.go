package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

const userServiceColumns = `id, user_id, service_id, stage, status, price, amount_paid, progress,
	started_at, completed_at, created_at, updated_at`

func scanUserService(row pgx.Row) (*model.UserService, error) {
	var (
		us          model.UserService
		stage       string
		status      string
		price, paid int64
	)
	err := row.Scan(&us.ID, &us.UserID, &us.ServiceID, &stage, &status, &price, &paid, &us.Progress,
		&us.StartedAt, &us.CompletedAt, &us.CreatedAt, &us.UpdatedAt)
	if err != nil {
		return nil, err
	}
	us.Stage = model.Stage(stage)
	us.Status = model.UserServiceStatus(status)
	us.Price = model.Money(price)
	us.AmountPaid = model.Money(paid)
	return &us, nil
}

// CreateUserService создаёт экземпляр услуги пользователя.
// Если ключ идемпотентности уже использован этим пользователем, возвращается
// ранее созданная запись и created = false.
func (r *PostgresRepository) CreateUserService(ctx context.Context, us model.UserService, idempotencyKey string) (*model.UserService, bool, error) {
	if us.ID == "" {
		us.ID = uuid.NewString()
	}
	if us.Status == "" {
		us.Status = model.UserServiceInProgress
	}

	var key *string
	if idempotencyKey != "" {
		key = &idempotencyKey
	}

	created, err := scanUserService(r.pool.QueryRow(ctx,
		`INSERT INTO user_services (id, user_id, service_id, stage, status, price, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+userServiceColumns,
		us.ID, us.UserID, us.ServiceID, string(us.Stage), string(us.Status), int64(us.Price), key,
	))
	if err == nil {
		return created, true, nil
	}
	if !isUniqueViolation(err, "user_services_idempotency_key") {
		return nil, false, fmt.Errorf("insert user service: %w", err)
	}

	existing, err := scanUserService(r.pool.QueryRow(ctx,
		`SELECT `+userServiceColumns+` FROM user_services WHERE user_id = $1 AND idempotency_key = $2`,
		us.UserID, idempotencyKey,
	))
	if err != nil {
		return nil, false, fmt.Errorf("select user service by key: %w", notFound(err))
	}
	return existing, false, nil
}

// GetUserService возвращает услугу пользователя. Чужая запись считается ненайденной.
func (r *PostgresRepository) GetUserService(ctx context.Context, userID, id string) (*model.UserService, error) {
	us, err := scanUserService(r.pool.QueryRow(ctx,
		`SELECT `+userServiceColumns+` FROM user_services WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return us, nil
}

// ListUserServices возвращает услуги пользователя, новые первыми.
func (r *PostgresRepository) ListUserServices(ctx context.Context, userID string) ([]model.UserService, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userServiceColumns+` FROM user_services WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select user services: %w", err)
	}
	defer rows.Close()

	var res []model.UserService
	for rows.Next() {
		us, err := scanUserService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user service: %w", err)
		}
		res = append(res, *us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CountUnpaidUserServices возвращает число неоплаченных услуг в работе для пары пользователь-услуга.
func (r *PostgresRepository) CountUnpaidUserServices(ctx context.Context, userID, serviceID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_services
		 WHERE user_id = $1 AND service_id = $2 AND status = $3 AND amount_paid = 0`,
		userID, serviceID, string(model.UserServiceInProgress),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unpaid user services: %w", err)
	}
	return n, nil
}

// lockUserService блокирует строку услуги пользователя до конца транзакции.
func lockUserService(ctx context.Context, tx pgx.Tx, userID, id string) (*model.UserService, error) {
	us, err := scanUserService(tx.QueryRow(ctx,
		`SELECT `+userServiceColumns+` FROM user_services WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return us, nil
}

// markUserServicePaid фиксирует оплаченную сумму в уже заблокированной строке.
func markUserServicePaid(ctx context.Context, tx pgx.Tx, id string, amount model.Money) (*model.UserService, error) {
	us, err := scanUserService(tx.QueryRow(ctx,
		`UPDATE user_services
		 SET amount_paid = $2, progress = GREATEST(progress, $3), updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userServiceColumns,
		id, int64(amount), model.ProgressPaid,
	))
	if err != nil {
		return nil, fmt.Errorf("update user service: %w", err)
	}
	return us, nil
}
