// Package model содержит доменные сущности витрины APSE.
package model

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// Role описывает роль пользователя.
type Role string

const (
	RoleUser    Role = "USER"
	RolePartner Role = "PARTNER"
	RoleAdmin   Role = "ADMIN"
)

// Valid сообщает, известна ли роль.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RolePartner, RoleAdmin:
		return true
	}
	return false
}

// User представляет зарегистрированного пользователя.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	FirstName    *string   `json:"firstName"`
	LastName     *string   `json:"lastName"`
	Role         Role      `json:"role"`
	IsVerified   bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Product описывает товар каталога.
type Product struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    Money   `json:"price"`
	OldPrice *Money  `json:"oldPrice,omitempty"`
	Image    string  `json:"image"`
	Rating   float64 `json:"rating"`
	Category string  `json:"category"`
	Badge    *string `json:"badge,omitempty"`
}

// Category описывает категорию товаров.
type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image"`
}

// OrderStatus описывает статус заказа товаров.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// OrderStatuses перечисляет статусы заказа в порядке жизненного цикла.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// OrderItem описывает позицию заказа. Цена фиксируется на момент оформления.
type OrderItem struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Price     Money  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Order описывает заказ товаров пользователя.
type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Items           []OrderItem `json:"items"`
	Subtotal        Money       `json:"subtotal"`
	Status          OrderStatus `json:"status"`
	AddressID       *string     `json:"addressId,omitempty"`
	ShippingAddress string      `json:"shippingAddress"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Address описывает адрес доставки из адресной книги пользователя.
type Address struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	FullName   string    `json:"fullName"`
	Street     string    `json:"street"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postalCode"`
	Country    string    `json:"country"`
	Phone      string    `json:"phone"`
	IsDefault  bool      `json:"isDefault"`
	CreatedAt  time.Time `json:"createdAt"`
}

// String возвращает адрес одной строкой, как он печатается в заказе.
func (a Address) String() string {
	cityLine := strings.TrimSpace(a.City + " " + a.PostalCode)
	if a.State != "" {
		cityLine = strings.TrimSpace(a.City + ", " + a.State + " " + a.PostalCode)
	}
	parts := []string{a.FullName, a.Street, cityLine, a.Country, a.Phone}
	return strings.Join(lo.Compact(parts), ", ")
}
