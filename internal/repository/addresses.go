package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

const addressColumns = `id, user_id, full_name, street, city, state, postal_code, country, phone,
	is_default, created_at`

func scanAddress(row pgx.Row) (*model.Address, error) {
	var a model.Address
	err := row.Scan(&a.ID, &a.UserID, &a.FullName, &a.Street, &a.City, &a.State, &a.PostalCode,
		&a.Country, &a.Phone, &a.IsDefault, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// lockAddressBook блокирует строку пользователя, чтобы изменения адреса по умолчанию шли по очереди.
func lockAddressBook(ctx context.Context, tx pgx.Tx, userID string) error {
	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id); err != nil {
		return notFound(err)
	}
	return nil
}

func clearDefaultAddress(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx, `UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`, userID); err != nil {
		return fmt.Errorf("clear default address: %w", err)
	}
	return nil
}

// ListAddresses возвращает адресную книгу пользователя, адрес по умолчанию первым.
func (r *PostgresRepository) ListAddresses(ctx context.Context, userID string) ([]model.Address, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("select addresses: %w", err)
	}
	defer rows.Close()

	var res []model.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		res = append(res, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetAddress возвращает адрес пользователя. Чужой адрес считается ненайденным.
func (r *PostgresRepository) GetAddress(ctx context.Context, userID, id string) (*model.Address, error) {
	a, err := scanAddress(r.pool.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// GetDefaultAddress возвращает адрес пользователя по умолчанию.
func (r *PostgresRepository) GetDefaultAddress(ctx context.Context, userID string) (*model.Address, error) {
	a, err := scanAddress(r.pool.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 AND is_default`, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// CreateAddress добавляет адрес. Первый адрес пользователя становится адресом по умолчанию;
// новый адрес по умолчанию снимает этот признак с прежнего.
func (r *PostgresRepository) CreateAddress(ctx context.Context, a model.Address) (*model.Address, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	var created *model.Address
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockAddressBook(ctx, tx, a.UserID); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM addresses WHERE user_id = $1`, a.UserID).Scan(&count); err != nil {
			return fmt.Errorf("count addresses: %w", err)
		}
		if count == 0 {
			a.IsDefault = true
		}
		if a.IsDefault {
			if err := clearDefaultAddress(ctx, tx, a.UserID); err != nil {
				return err
			}
		}

		var err error
		created, err = scanAddress(tx.QueryRow(ctx,
			`INSERT INTO addresses (id, user_id, full_name, street, city, state, postal_code, country, phone, is_default)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING `+addressColumns,
			a.ID, a.UserID, a.FullName, a.Street, a.City, a.State, a.PostalCode, a.Country, a.Phone, a.IsDefault,
		))
		if err != nil {
			return fmt.Errorf("insert address: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetDefaultAddress делает адрес пользователя адресом по умолчанию.
func (r *PostgresRepository) SetDefaultAddress(ctx context.Context, userID, id string) (*model.Address, error) {
	var res *model.Address
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockAddressBook(ctx, tx, userID); err != nil {
			return err
		}
		if err := clearDefaultAddress(ctx, tx, userID); err != nil {
			return err
		}

		var err error
		res, err = scanAddress(tx.QueryRow(ctx,
			`UPDATE addresses SET is_default = TRUE WHERE id = $1 AND user_id = $2 RETURNING `+addressColumns,
			id, userID,
		))
		if err != nil {
			return notFound(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
