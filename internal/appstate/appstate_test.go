package appstate

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/apse-storefront/internal/client"
	"github.com/mmeshcher/apse-storefront/internal/model"
)

var (
	tea    = model.Product{ID: 1, Name: "Assam Tea", Price: model.MoneyFromRupees(450)}
	spices = model.Product{ID: 2, Name: "Spice Box", Price: model.MoneyFromRupees(1200.5)}
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state", "storefront.json")
	s, err := Open(path, nil)
	require.NoError(t, err)
	return s, path
}

func TestCart_AddThenRemoveRestoresTotals(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.AddToCart(spices, 1))

	count, subtotal := s.Count(), s.Subtotal()

	require.NoError(t, s.AddToCart(tea, 2))
	assert.Equal(t, count+2, s.Count())
	assert.Equal(t, subtotal+2*tea.Price, s.Subtotal())

	require.NoError(t, s.RemoveFromCart(tea.ID))
	assert.Equal(t, count, s.Count())
	assert.Equal(t, subtotal, s.Subtotal())
}

func TestCart_AddMergesByProduct(t *testing.T) {
	s, _ := openTemp(t)

	require.NoError(t, s.AddToCart(tea, 1))
	require.NoError(t, s.AddToCart(tea, 3))

	cart := s.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, 4, cart[0].Quantity)
}

func TestCart_UpdateQuantity(t *testing.T) {
	tests := []struct {
		name      string
		quantity  int
		wantItems int
		wantCount int
	}{
		{"increase", 5, 2, 6},
		{"zero removes", 0, 1, 1},
		{"negative removes", -1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := openTemp(t)
			require.NoError(t, s.AddToCart(tea, 2))
			require.NoError(t, s.AddToCart(spices, 1))

			require.NoError(t, s.UpdateQuantity(tea.ID, tt.quantity))

			assert.Len(t, s.Cart(), tt.wantItems)
			assert.Equal(t, tt.wantCount, s.Count())
		})
	}
}

func TestCart_IgnoresNonPositiveAdd(t *testing.T) {
	s, _ := openTemp(t)

	require.NoError(t, s.AddToCart(tea, 0))

	assert.Empty(t, s.Cart())
}

func TestHydrateRestoresPersistedState(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.SignIn(Session{Token: "tok-1", User: &model.User{ID: "u-1", Email: "a@b.in"}}))
	require.NoError(t, s.AddToCart(tea, 2))

	restored, err := Open(path, nil)
	require.NoError(t, err)

	sess, ok := restored.Session()
	require.True(t, ok)
	assert.Equal(t, "tok-1", sess.Token)
	assert.Equal(t, "u-1", sess.User.ID)
	assert.Equal(t, 2, restored.Count())
	assert.Equal(t, 2*tea.Price, restored.Subtotal())
}

func TestSignOutClearsSessionAndCart(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.SignIn(Session{Token: "tok-1"}))
	require.NoError(t, s.AddToCart(tea, 1))

	require.NoError(t, s.SignOut())

	restored, err := Open(path, nil)
	require.NoError(t, err)
	_, ok := restored.Session()
	assert.False(t, ok)
	assert.Zero(t, restored.Count())
}

func TestHandleAPIError(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.SignIn(Session{Token: "tok-1"}))

	assert.False(t, s.HandleAPIError(&client.APIError{StatusCode: 500, Message: "boom"}))
	_, ok := s.Session()
	assert.True(t, ok)

	unauthorized := fmt.Errorf("list orders: %w", &client.APIError{StatusCode: 401, Message: "Invalid or expired token"})
	assert.True(t, s.HandleAPIError(unauthorized))
	_, ok = s.Session()
	assert.False(t, ok)
}

func TestOpen_CorruptedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := Open(path, nil)

	require.NoError(t, err)
	assert.Zero(t, s.Count())
}

func TestFailedSaveKeepsPreviousState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s, err := Open(filepath.Join(dir, "storefront.json"), nil)
	require.NoError(t, err)
	require.NoError(t, s.AddToCart(tea, 1))

	// каталог состояния заменён файлом, поэтому запись невозможна
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, nil, 0o600))

	assert.Error(t, s.AddToCart(spices, 2))
	assert.Error(t, s.UpdateQuantity(tea.ID, 5))
	assert.Error(t, s.SignOut())

	assert.Equal(t, []CartItem{{ProductID: tea.ID, Name: tea.Name, Price: tea.Price, Quantity: 1}}, s.Cart())
	assert.Equal(t, 1, s.Count())
}

func TestInMemoryStore(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)

	require.NoError(t, s.AddToCart(spices, 2))

	assert.Equal(t, []client.OrderLine{{ProductID: spices.ID, Quantity: 2}}, s.OrderLines())
}
