package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

func testAddress(userID, city string) model.Address {
	return model.Address{
		UserID:     userID,
		FullName:   "Asha Rao",
		Street:     "1 MG Road",
		City:       city,
		PostalCode: "411001",
		Country:    "India",
		Phone:      "+919800000000",
	}
}

func TestAddressBook_SingleDefault(t *testing.T) {
	r := testRepository(t)
	ctx := testContext(t)
	userID := createTestUser(t, r)

	_, err := r.GetDefaultAddress(ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := r.CreateAddress(ctx, testAddress(userID, "Pune"))
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := r.CreateAddress(ctx, testAddress(userID, "Mumbai"))
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	third := testAddress(userID, "Chennai")
	third.IsDefault = true
	created, err := r.CreateAddress(ctx, third)
	require.NoError(t, err)
	assert.True(t, created.IsDefault)

	def, err := r.GetDefaultAddress(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, def.ID)

	_, err = r.SetDefaultAddress(ctx, userID, second.ID)
	require.NoError(t, err)

	list, err := r.ListAddresses(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, second.ID, list[0].ID)
	defaults := 0
	for _, a := range list {
		if a.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestAddressBook_ForeignAddressNotFound(t *testing.T) {
	r := testRepository(t)
	ctx := testContext(t)
	owner := createTestUser(t, r)
	other := createTestUser(t, r)

	a, err := r.CreateAddress(ctx, testAddress(owner, "Pune"))
	require.NoError(t, err)

	_, err = r.GetAddress(ctx, other, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.SetDefaultAddress(ctx, other, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := r.GetAddress(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pune", mine.City)
}

func TestGetOrdersByUser_StatusFilter(t *testing.T) {
	r := testRepository(t)
	ctx := testContext(t)
	userID := createTestUser(t, r)

	var productID int64
	require.NoError(t, r.pool.QueryRow(ctx, `SELECT id FROM products ORDER BY id LIMIT 1`).Scan(&productID))

	a, err := r.CreateAddress(ctx, testAddress(userID, "Pune"))
	require.NoError(t, err)

	pending, err := r.CreateOrder(ctx, userID, []OrderLine{{ProductID: productID, Quantity: 2}},
		Shipping{AddressID: &a.ID, Address: a.String()})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, pending.Status)

	shipped, err := r.CreateOrder(ctx, userID, []OrderLine{{ProductID: productID, Quantity: 1}},
		Shipping{Address: "12 Park Street, Kolkata"})
	require.NoError(t, err)
	_, err = r.pool.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, shipped.ID, string(model.OrderStatusShipped))
	require.NoError(t, err)

	all, err := r.GetOrdersByUser(ctx, userID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyShipped, err := r.GetOrdersByUser(ctx, userID, model.OrderStatusShipped)
	require.NoError(t, err)
	require.Len(t, onlyShipped, 1)
	assert.Equal(t, shipped.ID, onlyShipped[0].ID)
	assert.Nil(t, onlyShipped[0].AddressID)
	require.Len(t, onlyShipped[0].Items, 1)

	onlyPending, err := r.GetOrdersByUser(ctx, userID, model.OrderStatusPending)
	require.NoError(t, err)
	require.Len(t, onlyPending, 1)
	require.NotNil(t, onlyPending[0].AddressID)
	assert.Equal(t, a.ID, *onlyPending[0].AddressID)
	assert.Equal(t, "Asha Rao, 1 MG Road, Pune 411001, India, +919800000000", onlyPending[0].ShippingAddress)

	none, err := r.GetOrdersByUser(ctx, userID, model.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Empty(t, none)
}
