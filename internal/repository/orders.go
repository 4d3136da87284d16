package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

// OrderLine описывает позицию заказа, переданную клиентом. Цена берётся из каталога.
type OrderLine struct {
	ProductID int64
	Quantity  int
}

// Shipping описывает адрес доставки заказа. AddressID задан, если адрес взят из адресной книги.
type Shipping struct {
	AddressID *string
	Address   string
}

const orderColumns = `id, user_id, subtotal, status, address_id, shipping_address, created_at`

// CreateOrder оформляет заказ, перечитывая цены товаров в той же транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID string, lines []OrderLine, ship Shipping) (*model.Order, error) {
	var order *model.Order

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		o := model.Order{
			ID:              uuid.NewString(),
			UserID:          userID,
			Status:          model.OrderStatusPending,
			AddressID:       ship.AddressID,
			ShippingAddress: ship.Address,
		}

		for _, l := range lines {
			var (
				name  string
				price int64
			)
			err := tx.QueryRow(ctx, `SELECT name, price FROM products WHERE id = $1`, l.ProductID).Scan(&name, &price)
			if err != nil {
				return fmt.Errorf("product %d: %w", l.ProductID, notFound(err))
			}
			o.Items = append(o.Items, model.OrderItem{
				ProductID: l.ProductID,
				Name:      name,
				Price:     model.Money(price),
				Quantity:  l.Quantity,
			})
			o.Subtotal += model.Money(price * int64(l.Quantity))
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO orders (id, user_id, subtotal, status, address_id, shipping_address)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at`,
			o.ID, o.UserID, int64(o.Subtotal), string(o.Status), o.AddressID, o.ShippingAddress,
		).Scan(&o.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, it := range o.Items {
			_, err := tx.Exec(ctx,
				`INSERT INTO order_items (order_id, product_id, name, price, quantity) VALUES ($1, $2, $3, $4, $5)`,
				o.ID, it.ProductID, it.Name, int64(it.Price), it.Quantity,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		order = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми.
// Пустой статус означает заказы в любом статусе.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID string, status model.OrderStatus) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE user_id = $1 AND ($2::text = '' OR status = $2)
		 ORDER BY created_at DESC`,
		userID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var (
		res   []model.Order
		index = map[string]int{}
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		index[o.ID] = len(res)
		res = append(res, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	if len(res) == 0 {
		return res, nil
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT oi.order_id, oi.product_id, oi.name, oi.price, oi.quantity
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 WHERE o.user_id = $1 AND ($2::text = '' OR o.status = $2)
		 ORDER BY oi.product_id`,
		userID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID string
			it      model.OrderItem
			price   int64
		)
		if err := itemRows.Scan(&orderID, &it.ProductID, &it.Name, &price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Price = model.Money(price)
		if i, ok := index[orderID]; ok {
			res[i].Items = append(res[i].Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrder возвращает заказ пользователя. Чужой заказ считается ненайденным.
func (r *PostgresRepository) GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE id = $1 AND user_id = $2`,
		orderID, userID,
	))
	if err != nil {
		return nil, notFound(err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT product_id, name, price, quantity FROM order_items WHERE order_id = $1 ORDER BY product_id`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it    model.OrderItem
			price int64
		)
		if err := rows.Scan(&it.ProductID, &it.Name, &price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Price = model.Money(price)
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return o, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o        model.Order
		subtotal int64
		status   string
	)
	if err := row.Scan(&o.ID, &o.UserID, &subtotal, &status, &o.AddressID, &o.ShippingAddress, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Subtotal = model.Money(subtotal)
	o.Status = model.OrderStatus(status)
	return &o, nil
}
