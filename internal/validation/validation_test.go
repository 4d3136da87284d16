package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

func TestLoadAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount model.Money
		want   error
	}{
		{name: "below minimum", amount: model.MoneyFromRupees(50), want: ErrAmountTooSmall},
		{name: "minimum", amount: model.MoneyFromRupees(100)},
		{name: "maximum", amount: model.MoneyFromRupees(100000)},
		{name: "above maximum", amount: model.MoneyFromRupees(100000.01), want: ErrAmountTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := LoadAmount(tt.amount)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadAmount_Message(t *testing.T) {
	assert.EqualError(t, LoadAmount(model.MoneyFromRupees(50)), "Minimum amount is ₹100")
}

func TestStruct(t *testing.T) {
	type req struct {
		Email    string `validate:"required,email"`
		Password string `validate:"required,min=8"`
	}

	require.NoError(t, Struct(req{Email: "a@b.io", Password: "long-enough"}))

	err := Struct(req{Email: "nope", Password: "short"})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Fields["Email"])
	assert.Equal(t, "min", verr.Fields["Password"])
}
