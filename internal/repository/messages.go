package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

// MessageBox выбирает папку сообщений пользователя.
type MessageBox int

const (
	BoxReceived MessageBox = iota
	BoxSent
	BoxSupport
)

const messageColumns = `id, from_user_id, to_user_id, partner_id, subject, body, status, is_support, created_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	var (
		m      model.Message
		status string
	)
	err := row.Scan(&m.ID, &m.FromUserID, &m.ToUserID, &m.PartnerID, &m.Subject, &m.Body, &status, &m.IsSupport, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = model.MessageStatus(status)
	return &m, nil
}

// CreateMessage сохраняет новое сообщение.
func (r *PostgresRepository) CreateMessage(ctx context.Context, m model.Message) (*model.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	created, err := scanMessage(r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, from_user_id, to_user_id, partner_id, subject, body, status, is_support)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+messageColumns,
		m.ID, m.FromUserID, m.ToUserID, m.PartnerID, m.Subject, m.Body, string(model.MessageSent), m.IsSupport,
	))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return created, nil
}

// ListMessages возвращает сообщения папки пользователя, новые первыми.
// Архивные сообщения во входящие не попадают.
func (r *PostgresRepository) ListMessages(ctx context.Context, userID string, box MessageBox) ([]model.Message, error) {
	var query string
	switch box {
	case BoxReceived:
		query = `SELECT ` + messageColumns + ` FROM messages
			WHERE to_user_id = $1 AND status <> 'ARCHIVED' ORDER BY created_at DESC`
	case BoxSent:
		query = `SELECT ` + messageColumns + ` FROM messages
			WHERE from_user_id = $1 AND NOT is_support ORDER BY created_at DESC`
	case BoxSupport:
		query = `SELECT ` + messageColumns + ` FROM messages
			WHERE is_support AND (from_user_id = $1 OR to_user_id = $1) ORDER BY created_at DESC`
	default:
		return nil, fmt.Errorf("unknown message box %d", box)
	}

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var res []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// SetMessageStatus изменяет статус сообщения, адресованного пользователю.
func (r *PostgresRepository) SetMessageStatus(ctx context.Context, userID, id string, status model.MessageStatus) (*model.Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`UPDATE messages SET status = $3 WHERE id = $1 AND to_user_id = $2 RETURNING `+messageColumns,
		id, userID, string(status),
	))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}
